// Package ticket models support tickets, their message log and automation
// events, and persists them in SQLite.
//
// The remediation pipeline only reads ticket content and mutates status,
// priority, assigned agent, source metadata and escalation path. Everything
// else is owned by intake.
package ticket

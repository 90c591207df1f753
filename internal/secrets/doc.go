// Package secrets redacts credentials from text the daemon sends out.
//
// Customer-facing ticket messages, plan artifacts, approval notifications
// and MCP tool output pass through a Scrubber. Built-in rules cover the
// keys the managed app uses; the gitleaks default rule set can be layered
// on top. Rules with a capture group redact only the value, so
// "STRIPE_SECRET_KEY=sk_live_..." becomes "STRIPE_SECRET_KEY=[REDACTED]".
// Placeholders such as FIXME_STRIPE_SECRET_KEY are allow-listed.
package secrets

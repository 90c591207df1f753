// Package approval implements the human sign-off checkpoint for risky
// remediation steps.
//
// A Gate blocks the caller until an operator approves or denies a Request,
// or until the request times out. A timeout is always a denial. Requests
// are announced through Notifiers (Telegram, NATS) and decided through
// Service.Decide, which the Telegram listener, the NATS bridge, the HTTP API
// and the MCP tools all call into.
//
// Every request and decision is recorded as an automation event on the
// ticket so other components can tell that a ticket is waiting for, or has
// just received, an operator decision.
package approval

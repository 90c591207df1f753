// Package router is the ticket dispatch state machine.
//
// Every inbound event (a poll cycle, a customer reply, an API trigger) ends
// in Router.Dispatch, which picks exactly one branch:
//
//  1. Autopatch: the configuration analyzer, then the pattern matcher, may
//     produce a candidate. The ticket is moved to investigating before any
//     other work so a concurrent dispatch observes the hand-off, the
//     candidate's instructions are executed and the ticket ends in
//     waiting_customer.
//  2. Error handler: critical failures, repeated errors and repeatedly
//     failed autopatches are counted in source metadata and escalated to a
//     human once the threshold is reached.
//  3. Default: a human agent is assigned by category.
//
// The Poller discovers open tickets on a cron schedule and skips tickets
// that are already being processed.
package router

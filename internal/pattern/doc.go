// Package pattern classifies tickets against a fixed, ordered catalogue of
// known failure signatures.
//
// Each rule is a regular expression over the ticket text plus a builder for
// the resulting autopatch.Candidate. The first matching rule wins, so
// narrower rules must come before broader ones, and a broad rule that
// overlaps a narrow one re-checks the narrow keywords before claiming a
// ticket.
package pattern

// Package instruction defines the closed vocabulary of remediation
// instructions that the pattern matcher and configuration analyzer emit and
// the executor applies.
//
// Every variant is a concrete struct implementing the sealed Instruction
// interface. Consumers dispatch through Apply with a Handler, which has one
// method per variant, so adding a variant fails to compile until every
// handler implements it.
//
// # Wire format
//
// Instructions travel as JSON objects discriminated by a "type" field:
//
//	{"type": "i18n-add-key", "key": "common.hello", "translations": {"de": "Hallo"}}
//
// List marshals and unmarshals ordered batches. The code-modify search term
// is either an explicit pattern object ({"kind": "regex", "value": "..."}) or
// a legacy plain string whose kind is inferred on decode.
package instruction

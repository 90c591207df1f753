package instruction

import "errors"

var (
	// ErrUnknownType is returned when decoding an instruction with an unknown
	// "type" discriminator.
	ErrUnknownType = errors.New("unknown instruction type")

	// ErrInvalid is returned by Validate when a required payload field is missing.
	ErrInvalid = errors.New("invalid instruction")
)

package domain

import "errors"

var (
	// ErrUnsupportedInputKind is returned for hypotheses, acts or messages
	// whose shape is not one of the recognised kinds.
	ErrUnsupportedInputKind = errors.New("unsupported input kind")
	// ErrInvalidCommandKind is returned for command names the dialogue
	// manager does not handle.
	ErrInvalidCommandKind = errors.New("invalid command kind")
)

package delivery

import "errors"

var (
	// ErrFloodDetected aborts a dispatch run whose queue looks anomalous.
	// Nothing is sent or deleted; rerun with Force once an operator has looked.
	ErrFloodDetected = errors.New("delivery flood detected")

	// ErrInvalidSelector reports an unknown mechanism or email frequency.
	ErrInvalidSelector = errors.New("invalid delivery selector")

	// ErrMessageTooLong reports an SMS that cannot fit the budget even after truncation.
	ErrMessageTooLong = errors.New("message too long")
)

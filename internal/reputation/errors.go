package reputation

import "errors"

var (
	// ErrCircuitOpen is returned while the breaker is engaged. No request was made.
	ErrCircuitOpen = errors.New("reputation service circuit open")
	// ErrUnavailable is returned when a request was made and failed.
	ErrUnavailable = errors.New("reputation service unavailable")
)

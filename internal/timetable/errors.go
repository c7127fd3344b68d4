package timetable

import "fmt"

// ValidationError reports a malformed raw event. Any ValidationError
// aborts the whole run.
type ValidationError struct {
	// Index is the position of the record in the input, or -1 when the
	// record was validated on its own.
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid event #%d: %s: %s", e.Index, e.Field, e.Reason)
}

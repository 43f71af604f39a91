package devices

import "fmt"

// UnsupportedOperationError is returned when a strategy is asked for
// something outside its capabilities, or a capture is unusable.
type UnsupportedOperationError struct {
	Operation string
	Reason    string
}

func (e *UnsupportedOperationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s is not supported", e.Operation)
	}
	return fmt.Sprintf("%s is not supported: %s", e.Operation, e.Reason)
}

func unsupported(op, format string, args ...interface{}) error {
	return &UnsupportedOperationError{Operation: op, Reason: fmt.Sprintf(format, args...)}
}

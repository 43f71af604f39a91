package wire

import (
	"errors"
	"fmt"
)

// ErrDetached is returned by protocol calls on a Conn whose socket was handed
// to the caller with Detach.
var ErrDetached = errors.New("wire: connection detached")

// ProtocolError is a non-OKAY status from the server, or a reply body that
// reports failure in text.
type ProtocolError struct {
	// Request is the service request that failed, if known.
	Request string
	// Reason is the text the server sent back.
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Request == "" {
		return fmt.Sprintf("adb: %s", e.Reason)
	}
	return fmt.Sprintf("adb: request %q failed: %s", e.Request, e.Reason)
}

// ShortReadError is returned when a frame ends before its declared size.
type ShortReadError struct {
	What string
	Got  int
	Want int
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("incomplete %s: read %d bytes, expecting %d", e.What, e.Got, e.Want)
}

func incompleteMessage(what string, got, want int) error {
	return &ShortReadError{What: what, Got: got, Want: want}
}

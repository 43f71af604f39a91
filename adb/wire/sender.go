package wire

import (
	"fmt"
	"io"
)

// MaxMessageLength is the largest payload a 4-digit hex length can describe.
const MaxMessageLength = 0xffff

// SendMessage writes msg prefixed with its length as 4 uppercase hex digits.
func SendMessage(w io.Writer, msg []byte) error {
	if len(msg) > MaxMessageLength {
		return fmt.Errorf("message length exceeds maximum: %d", len(msg))
	}

	frame := make([]byte, 0, 4+len(msg))
	frame = fmt.Appendf(frame, "%04X", len(msg))
	frame = append(frame, msg...)
	return writeFully(w, frame)
}

func writeFully(w io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return fmt.Errorf("error writing %d bytes: %w", len(data), err)
		}
		data = data[n:]
	}
	return nil
}

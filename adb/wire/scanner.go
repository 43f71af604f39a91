package wire

import (
	"errors"
	"fmt"
	"io"
	"strconv"
)

const (
	StatusSuccess = "OKAY"
	StatusFailure = "FAIL"
)

// readFull reads exactly len(buf) bytes. A stream that ends early, including
// one that ends before the first byte, is reported as a ShortReadError.
func readFull(r io.Reader, buf []byte, what string) error {
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return incompleteMessage(what, n, len(buf))
	}
	if err != nil {
		return fmt.Errorf("error reading %s: %w", what, err)
	}
	return nil
}

// ReadStatus reads a 4-byte status. Anything other than OKAY is a failure
// whose hex-length reason is read and returned as a *ProtocolError.
func ReadStatus(r io.Reader, request string) error {
	status := make([]byte, 4)
	if err := readFull(r, status, "status"); err != nil {
		return err
	}
	if string(status) == StatusSuccess {
		return nil
	}

	reason, err := ReadMessage(r)
	if err != nil {
		return fmt.Errorf("reading failure reason for %q: %w", request, err)
	}
	return &ProtocolError{Request: request, Reason: string(reason)}
}

// ReadMessage reads a hex-length-prefixed message.
func ReadMessage(r io.Reader) ([]byte, error) {
	length, err := readHexLength(r)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return []byte{}, nil
	}

	data := make([]byte, length)
	if err := readFull(r, data, "message data"); err != nil {
		return nil, err
	}
	return data, nil
}

func readHexLength(r io.Reader) (int, error) {
	lengthHex := make([]byte, 4)
	if err := readFull(r, lengthHex, "length"); err != nil {
		return 0, err
	}

	length, err := strconv.ParseUint(string(lengthHex), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid hex length %q: %w", lengthHex, err)
	}
	return int(length), nil
}

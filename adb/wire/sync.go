package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// SyncMaxChunkSize is the largest DATA frame the sync service accepts.
const SyncMaxChunkSize = 64 * 1024

const (
	syncSend = "SEND"
	syncData = "DATA"
	syncDone = "DONE"
	syncOkay = "OKAY"
	syncFail = "FAIL"
)

// SyncConn speaks the binary, little-endian sync sub-protocol over a stream
// obtained by detaching a "sync:" session.
type SyncConn struct {
	rw io.ReadWriter
}

func NewSyncConn(rw io.ReadWriter) *SyncConn {
	return &SyncConn{rw: rw}
}

// sendFrame writes id, a little-endian u32 length and payload as one write.
func (s *SyncConn) sendFrame(id string, payload []byte) error {
	frame := make([]byte, 8+len(payload))
	copy(frame, id)
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[8:], payload)
	return writeFully(s.rw, frame)
}

// SendFile runs SEND, DATA and DONE for one file and waits for the result.
// mode is the raw posix mode, formatted in decimal on the wire.
func (s *SyncConn) SendFile(path string, mode uint32, r io.Reader, mtime time.Time) error {
	header := fmt.Sprintf("%s,%d", path, mode)
	if err := s.sendFrame(syncSend, []byte(header)); err != nil {
		return err
	}

	buf := make([]byte, SyncMaxChunkSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if werr := s.sendFrame(syncData, buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading push source: %w", err)
		}
	}

	if mtime.IsZero() {
		mtime = time.Now()
	}
	done := make([]byte, 8)
	copy(done, syncDone)
	binary.LittleEndian.PutUint32(done[4:], uint32(mtime.Unix()))
	if err := writeFully(s.rw, done); err != nil {
		return err
	}

	return s.readResult(path)
}

// readResult reads the status that ends a transfer. The trailing message of
// an OKAY is discarded; the message of a FAIL becomes the error reason.
func (s *SyncConn) readResult(path string) error {
	id := make([]byte, 4)
	if err := readFull(s.rw, id, "sync status"); err != nil {
		return err
	}
	msg, err := s.readBinMessage()
	if err != nil {
		return err
	}

	switch string(id) {
	case syncOkay:
		return nil
	case syncFail:
		return &ProtocolError{Request: "sync:SEND " + path, Reason: string(msg)}
	default:
		return &ProtocolError{Request: "sync:SEND " + path, Reason: fmt.Sprintf("unexpected sync status %q", id)}
	}
}

func (s *SyncConn) readBinMessage() ([]byte, error) {
	lengthBytes := make([]byte, 4)
	if err := readFull(s.rw, lengthBytes, "sync length"); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lengthBytes)
	if length == 0 {
		return []byte{}, nil
	}
	if length > SyncMaxChunkSize {
		return nil, fmt.Errorf("sync message length %d exceeds maximum", length)
	}
	data := make([]byte, length)
	if err := readFull(s.rw, data, "sync message"); err != nil {
		return nil, err
	}
	return data, nil
}

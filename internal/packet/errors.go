package packet

import "github.com/pkg/errors"

var (
	// ErrBufferTooSmall is returned instead of writing or reading past the capacity of a caller buffer.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrMalformedPacket is returned for packets that violate MQTT v3.1.1 framing or flag rules.
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrReadFailed is matched by every *ReadError.
	ErrReadFailed = errors.New("read failed")

	// ErrUnexpectedPacket is returned when a buffer holds a different packet type than the one asked for.
	ErrUnexpectedPacket = errors.New("unexpected packet type")

	// ErrInvalidTopic is returned for empty, non UTF-8 or badly wildcarded topics.
	ErrInvalidTopic = errors.New("invalid topic")
)

// ReadError is returned by ReadPacket when the byte source fails before a full packet was read.
// It unwraps to the error of the byte source, so timeouts remain detectable.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return ErrReadFailed.Error() + ": " + e.Err.Error()
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

func (e *ReadError) Is(target error) bool {
	return target == ErrReadFailed
}

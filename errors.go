package oneshot

import (
	"github.com/RoanBrand/oneshot/internal/model"
	"github.com/RoanBrand/oneshot/internal/packet"
	"github.com/pkg/errors"
)

var (
	ErrTransportOpenFailed = errors.New("transport open failed")
	ErrSendFailed          = errors.New("send failed")
	ErrConnectRejected     = errors.New("connection rejected")
	ErrQoSMismatch         = errors.New("granted QoS differs from requested")
	ErrTimeout             = errors.New("timed out")

	ErrReadFailed      = packet.ErrReadFailed
	ErrProtocol        = packet.ErrUnexpectedPacket
	ErrBufferTooSmall  = packet.ErrBufferTooSmall
	ErrMalformedPacket = packet.ErrMalformedPacket
	ErrInvalidTopic    = packet.ErrInvalidTopic
)

// ConnectError is returned when the broker answers CONNECT with a non-zero return code.
type ConnectError struct {
	ReturnCode uint8
}

func (e *ConnectError) Error() string {
	return "connection rejected: " + model.ReturnCodeText(e.ReturnCode)
}

func (e *ConnectError) Is(target error) bool {
	return target == ErrConnectRejected
}

// OpError is a failed step of a session. It matches both Kind and the cause.
type OpError struct {
	Kind error
	Op   string
	Err  error
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func (e *OpError) Is(target error) bool {
	return target == e.Kind
}

package packet

import (
	"io"

	"github.com/RoanBrand/oneshot/internal/model"
	"github.com/pkg/errors"
)

// ReadPacket pulls one complete control packet from r into buf.
// It returns the packet type (upper nibble of the first byte) and the packet length.
// r may block. Nothing past the end of the packet is consumed.
func ReadPacket(buf []byte, r io.ByteReader) (uint8, int, error) {
	if len(buf) < 2 {
		return 0, 0, errors.Wrap(ErrBufferTooSmall, "buffer cannot hold a fixed header")
	}

	first, err := r.ReadByte()
	if err != nil {
		return 0, 0, &ReadError{Err: err}
	}
	controlType, flags := first&0xF0, first&0x0F
	if controlType < model.CONNECT || controlType > model.DISCONNECT {
		return 0, 1, errors.Wrapf(ErrMalformedPacket, "invalid control packet 0x%02X", first)
	}
	if err = validateFlags(controlType, flags); err != nil {
		return 0, 1, err
	}
	buf[0] = first
	n := 1

	// Remaining Length, kept as received.
	var rl int
	lenMul := 1
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, n, &ReadError{Err: err}
		}
		if n == len(buf) {
			return 0, n, errors.Wrap(ErrBufferTooSmall, "buffer cannot hold fixed header")
		}
		buf[n] = b
		n++

		rl += int(b&127) * lenMul
		if b&128 == 0 {
			break
		}
		lenMul *= 128
		if lenMul > 128*128*128 {
			return 0, n, errors.Wrap(ErrMalformedPacket, model.ErrMalformedLength.Error())
		}
	}

	if n+rl > len(buf) {
		return 0, n, errors.Wrapf(ErrBufferTooSmall, "%s of %d bytes does not fit in %d byte buffer", model.PacketName(controlType), n+rl, len(buf))
	}

	body := buf[n : n+rl]
	if rr, ok := r.(io.Reader); ok {
		got, err := io.ReadFull(rr, body)
		n += got
		if err != nil {
			return 0, n, &ReadError{Err: err}
		}
		return controlType, n, nil
	}

	for i := range body {
		b, err := r.ReadByte()
		if err != nil {
			return 0, n, &ReadError{Err: err}
		}
		body[i] = b
		n++
	}
	return controlType, n, nil
}

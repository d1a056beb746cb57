package model

import (
	"errors"
	"io"
)

// Control Packets
const (
	CONNECT     = 1 << 4
	CONNACK     = 2 << 4
	PUBLISH     = 3 << 4
	PUBACK      = 4 << 4
	PUBREC      = 5 << 4
	PUBREL      = 6 << 4
	PUBCOMP     = 7 << 4
	SUBSCRIBE   = 8 << 4
	SUBACK      = 9 << 4
	UNSUBSCRIBE = 10 << 4
	UNSUBACK    = 11 << 4
	PINGREQ     = 12 << 4
	PINGRESP    = 13 << 4
	DISCONNECT  = 14 << 4

	SUBSCRIBESend = SUBSCRIBE | 2
)

// CONNACK Return Codes (v3.1.1)
const (
	ConnectionAccepted          = 0
	UnacceptableProtocolVersion = 1
	IdentifierRejected          = 2
	ServerUnavailable           = 3
	BadUsernameOrPassword       = 4
	NotAuthorized               = 5
)

// SubscribeFailure is returned in SUBACK instead of a granted QoS.
const SubscribeFailure = 0x80

// MaxRemainingLength is the largest value a 4 byte Remaining Length can hold.
const MaxRemainingLength = 268435455

var ErrMalformedLength = errors.New("malformed remaining length")

// PacketName returns the name of a control packet type. Flags in the lower nibble are ignored.
func PacketName(controlType uint8) string {
	switch controlType & 0xF0 {
	case CONNECT:
		return "CONNECT"
	case CONNACK:
		return "CONNACK"
	case PUBLISH:
		return "PUBLISH"
	case PUBACK:
		return "PUBACK"
	case PUBREC:
		return "PUBREC"
	case PUBREL:
		return "PUBREL"
	case PUBCOMP:
		return "PUBCOMP"
	case SUBSCRIBE:
		return "SUBSCRIBE"
	case SUBACK:
		return "SUBACK"
	case UNSUBSCRIBE:
		return "UNSUBSCRIBE"
	case UNSUBACK:
		return "UNSUBACK"
	case PINGREQ:
		return "PINGREQ"
	case PINGRESP:
		return "PINGRESP"
	case DISCONNECT:
		return "DISCONNECT"
	default:
		return "reserved"
	}
}

// ReturnCodeText describes a CONNACK return code.
func ReturnCodeText(rc uint8) string {
	switch rc {
	case ConnectionAccepted:
		return "connection accepted"
	case UnacceptableProtocolVersion:
		return "unacceptable protocol version"
	case IdentifierRejected:
		return "identifier rejected"
	case ServerUnavailable:
		return "server unavailable"
	case BadUsernameOrPassword:
		return "bad username or password"
	case NotAuthorized:
		return "not authorized"
	default:
		return "unknown return code"
	}
}

// VariableLengthEncode appends the minimal encoding of l to packet.
// Callers must make sure l <= MaxRemainingLength.
func VariableLengthEncode(packet []byte, l int) []byte {
	for {
		eb := l % 128
		l /= 128
		if l > 0 {
			eb |= 128
		}
		packet = append(packet, byte(eb))
		if l <= 0 {
			break
		}
	}
	return packet
}

// VariableLengthDecode reads a Remaining Length from r.
// Returns the value and the number of bytes it occupied.
func VariableLengthDecode(r io.ByteReader) (int, int, error) {
	var l, n int
	lenMul := 1
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, n, err
		}
		n++

		l += int(b&127) * lenMul
		if b&128 == 0 {
			return l, n, nil
		}

		lenMul *= 128
		if lenMul > 128*128*128 {
			return 0, n, ErrMalformedLength
		}
	}
}

func LengthToNumberOfVariableLengthBytes(l int) int {
	switch {
	case l < 128:
		return 1
	case l < 16384:
		return 2
	case l < 2097152:
		return 3
	default:
		return 4
	}
}

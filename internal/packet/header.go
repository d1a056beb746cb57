package packet

import (
	"bytes"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/RoanBrand/oneshot/internal/model"
	"github.com/pkg/errors"
)

var errInvalidUTF = errors.New("invalid UTF8")
var errContainsWildCards = errors.New("contains wildcard characters")

// fits checks that a packet with remaining length rl can be written to buf.
func fits(buf []byte, rl int) error {
	if rl > model.MaxRemainingLength {
		return errors.Wrapf(ErrMalformedPacket, "remaining length %d exceeds maximum", rl)
	}
	if need := 1 + model.LengthToNumberOfVariableLengthBytes(rl) + rl; need > len(buf) {
		return errors.Wrapf(ErrBufferTooSmall, "need %d bytes, have %d", need, len(buf))
	}
	return nil
}

// appendString appends a length prefixed UTF-8 string. Length must be checked beforehand.
func appendString(b []byte, s string) []byte {
	b = append(b, byte(len(s)>>8), byte(len(s)))
	return append(b, s...)
}

func appendBytes(b []byte, s []byte) []byte {
	b = append(b, byte(len(s)>>8), byte(len(s)))
	return append(b, s...)
}

func checkLen(name string, l int) error {
	if l > math.MaxUint16 {
		return errors.Wrapf(ErrMalformedPacket, "%s longer than %d bytes", name, math.MaxUint16)
	}
	return nil
}

// validateFlags checks the fixed header flags of a received packet. [MQTT-2.2.2-1, 2-2]
func validateFlags(controlType, flags uint8) error {
	switch controlType {
	case model.PUBLISH:
		if flags&0x06 == 0x06 { // [MQTT-3.3.1-4]
			return errors.Wrap(ErrMalformedPacket, "PUBLISH with QoS 3")
		}
		if flags&0x08 > 0 && flags&0x06 == 0 { // [MQTT-3.3.1-2]
			return errors.Wrap(ErrMalformedPacket, "DUP set for QoS 0 PUBLISH")
		}
	case model.PUBREL, model.SUBSCRIBE, model.UNSUBSCRIBE:
		if flags != 0x02 {
			return errors.Wrapf(ErrMalformedPacket, "%s flags must be 0b0010", model.PacketName(controlType))
		}
	default:
		if flags != 0 {
			return errors.Wrapf(ErrMalformedPacket, "%s flags must be 0 (reserved)", model.PacketName(controlType))
		}
	}
	return nil
}

// decodeHeader splits a complete packet in buf into its fixed header parts and body.
func decodeHeader(buf []byte) (controlType, flags uint8, body []byte, err error) {
	if len(buf) < 2 {
		return 0, 0, nil, errors.Wrap(ErrMalformedPacket, "packet shorter than fixed header")
	}

	controlType, flags = buf[0]&0xF0, buf[0]&0x0F
	rl, n, err := model.VariableLengthDecode(bytes.NewReader(buf[1:]))
	if err != nil {
		return 0, 0, nil, errors.Wrap(ErrMalformedPacket, err.Error())
	}

	hl := 1 + n
	if len(buf) < hl+rl {
		return 0, 0, nil, errors.Wrapf(ErrMalformedPacket, "remaining length %d exceeds buffered %d bytes", rl, len(buf)-hl)
	}

	return controlType, flags, buf[hl : hl+rl], nil
}

func expectType(got, want uint8) error {
	if got != want {
		return errors.Wrapf(ErrUnexpectedPacket, "got %s, expected %s", model.PacketName(got), model.PacketName(want))
	}
	return nil
}

// [MQTT-1.5.3-1] [MQTT-1.5.3-3]
func checkUTF8(str []byte, checkWildCards bool) error {
	for i := 0; i < len(str); {
		if str[i] == 0 { // [MQTT-1.5.3-2]
			return errInvalidUTF
		}

		if checkWildCards && (str[i] == '+' || str[i] == '#') { // [MQTT-3.3.2-2]
			return errContainsWildCards
		} else if str[i]&0x80 == 0 {
			i++
		} else {
			r, size := utf8.DecodeRune(str[i:])
			if r == utf8.RuneError && size == 1 {
				return errInvalidUTF
			}
			i += size
		}
	}
	return nil
}

// CheckTopicName validates a Topic Name used in PUBLISH or as Will Topic.
func CheckTopicName(topic string) error {
	if topic == "" { // [MQTT-4.7.3-1]
		return errors.Wrap(ErrInvalidTopic, "empty topic name")
	}
	if err := checkLen("topic", len(topic)); err != nil {
		return err
	}
	if err := checkUTF8([]byte(topic), true); err != nil {
		return errors.Wrapf(ErrInvalidTopic, "%q: %s", topic, err)
	}
	return nil
}

// CheckTopicFilter validates a Topic Filter used in SUBSCRIBE, including wildcard placement.
func CheckTopicFilter(filter string) error {
	if filter == "" {
		return errors.Wrap(ErrInvalidTopic, "empty topic filter")
	}
	if err := checkLen("topic filter", len(filter)); err != nil {
		return err
	}
	if err := checkUTF8([]byte(filter), false); err != nil {
		return errors.Wrapf(ErrInvalidTopic, "%q: %s", filter, err)
	}

	levels := strings.Split(filter, "/")
	for i, l := range levels {
		if strings.ContainsAny(l, "+#") && len(l) != 1 { // [MQTT-4.7.1-2] [MQTT-4.7.1-3]
			return errors.Wrapf(ErrInvalidTopic, "%q: wildcard must occupy a whole level", filter)
		}
		if l == "#" && i != len(levels)-1 {
			return errors.Wrapf(ErrInvalidTopic, "%q: multi-level wildcard must be last", filter)
		}
	}
	return nil
}

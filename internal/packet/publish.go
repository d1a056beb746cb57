package packet

import (
	"encoding/binary"

	"github.com/RoanBrand/oneshot/internal/model"
	"github.com/pkg/errors"
)

// Publish is a decoded PUBLISH packet.
// Topic and Payload point into the buffer the packet was decoded from
// and are only valid until that buffer is reused.
type Publish struct {
	Dup      bool
	QoS      uint8
	Retain   bool
	PacketID uint16 // only for QoS > 0
	Topic    []byte
	Payload  []byte
}

// SerializePublish writes a PUBLISH packet to buf and returns its length.
// The packet identifier is omitted for QoS 0.
func SerializePublish(buf []byte, dup bool, qos uint8, retain bool, packetID uint16, topic string, payload []byte) (int, error) {
	if qos > 2 {
		return 0, errors.Wrap(ErrMalformedPacket, "invalid QoS")
	}
	if dup && qos == 0 { // [MQTT-3.3.1-2]
		return 0, errors.Wrap(ErrMalformedPacket, "DUP must be 0 for QoS 0")
	}
	if qos > 0 && packetID == 0 { // [MQTT-2.3.1-1]
		return 0, errors.Wrap(ErrMalformedPacket, "packet identifier must be non-zero for QoS > 0")
	}
	if err := CheckTopicName(topic); err != nil {
		return 0, err
	}

	rl := 2 + len(topic) + len(payload)
	if qos > 0 {
		rl += 2
	}
	if err := fits(buf, rl); err != nil {
		return 0, err
	}

	var publish byte = model.PUBLISH | qos<<1
	if dup {
		publish |= 0x08
	}
	if retain {
		publish |= 0x01
	}

	b := append(buf[:0], publish)
	b = model.VariableLengthEncode(b, rl)
	b = appendString(b, topic)
	if qos > 0 {
		b = append(b, byte(packetID>>8), byte(packetID))
	}
	b = append(b, payload...)

	return len(b), nil
}

// DeserializePublish decodes a PUBLISH packet held in buf.
func DeserializePublish(buf []byte) (Publish, error) {
	controlType, flags, body, err := decodeHeader(buf)
	if err != nil {
		return Publish{}, err
	}
	if err = expectType(controlType, model.PUBLISH); err != nil {
		return Publish{}, err
	}
	if err = validateFlags(controlType, flags); err != nil {
		return Publish{}, err
	}

	p := Publish{
		Dup:    flags&0x08 > 0,
		QoS:    (flags & 0x06) >> 1,
		Retain: flags&0x01 > 0,
	}

	if len(body) < 2 {
		return Publish{}, errors.Wrap(ErrMalformedPacket, "PUBLISH without topic length")
	}
	tLen := int(binary.BigEndian.Uint16(body))
	vhLen := 2 + tLen
	if p.QoS > 0 {
		vhLen += 2
	}
	if len(body) < vhLen {
		return Publish{}, errors.Wrapf(ErrMalformedPacket, "PUBLISH variable header of %d bytes exceeds remaining length %d", vhLen, len(body))
	}

	p.Topic = body[2 : 2+tLen]
	if tLen == 0 {
		return Publish{}, errors.Wrap(ErrMalformedPacket, "PUBLISH with empty topic")
	}
	if err := checkUTF8(p.Topic, true); err != nil { // [MQTT-3.3.2-1] [MQTT-3.3.2-2]
		return Publish{}, errors.Wrapf(ErrMalformedPacket, "PUBLISH topic: %s", err)
	}

	if p.QoS > 0 {
		p.PacketID = binary.BigEndian.Uint16(body[2+tLen:])
		if p.PacketID == 0 {
			return Publish{}, errors.Wrap(ErrMalformedPacket, "PUBLISH with zero packet identifier")
		}
	}

	p.Payload = body[vhLen:]
	return p, nil
}

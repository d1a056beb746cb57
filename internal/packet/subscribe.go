package packet

import (
	"encoding/binary"

	"github.com/RoanBrand/oneshot/internal/model"
	"github.com/pkg/errors"
)

// SerializeSubscribe writes a SUBSCRIBE packet requesting qoss[i] for topics[i] to buf.
func SerializeSubscribe(buf []byte, dup bool, packetID uint16, topics []string, qoss []uint8) (int, error) {
	if dup { // [MQTT-3.8.1-1]
		return 0, errors.Wrap(ErrMalformedPacket, "SUBSCRIBE fixed header flags must be 0b0010")
	}
	if len(topics) == 0 { // [MQTT-3.8.3-3]
		return 0, errors.Wrap(ErrMalformedPacket, "SUBSCRIBE without topic filters")
	}
	if len(topics) != len(qoss) {
		return 0, errors.Wrapf(ErrMalformedPacket, "%d topic filters with %d QoS levels", len(topics), len(qoss))
	}
	if packetID == 0 { // [MQTT-2.3.1-1]
		return 0, errors.Wrap(ErrMalformedPacket, "packet identifier must be non-zero")
	}

	rl := 2
	for i, t := range topics {
		if err := CheckTopicFilter(t); err != nil {
			return 0, err
		}
		if qoss[i] > 2 { // [MQTT-3-8.3-4]
			return 0, errors.Wrapf(ErrMalformedPacket, "requested QoS %d for %q", qoss[i], t)
		}
		rl += 3 + len(t)
	}
	if err := fits(buf, rl); err != nil {
		return 0, err
	}

	b := append(buf[:0], model.SUBSCRIBESend)
	b = model.VariableLengthEncode(b, rl)
	b = append(b, byte(packetID>>8), byte(packetID))
	for i, t := range topics {
		b = appendString(b, t)
		b = append(b, qoss[i])
	}

	return len(b), nil
}

// DeserializeSuback decodes a SUBACK packet held in buf.
// granted points into buf and holds one return code per requested topic filter.
func DeserializeSuback(buf []byte) (packetID uint16, granted []byte, err error) {
	controlType, flags, body, err := decodeHeader(buf)
	if err != nil {
		return 0, nil, err
	}
	if err = expectType(controlType, model.SUBACK); err != nil {
		return 0, nil, err
	}
	if err = validateFlags(controlType, flags); err != nil {
		return 0, nil, err
	}
	if len(body) < 3 {
		return 0, nil, errors.Wrap(ErrMalformedPacket, "SUBACK without return codes")
	}

	packetID = binary.BigEndian.Uint16(body)
	if packetID == 0 {
		return 0, nil, errors.Wrap(ErrMalformedPacket, "SUBACK with zero packet identifier")
	}

	granted = body[2:]
	for _, rc := range granted {
		if rc > 2 && rc != model.SubscribeFailure { // [MQTT-3.9.3-2]
			return 0, nil, errors.Wrapf(ErrMalformedPacket, "SUBACK return code 0x%02X", rc)
		}
	}
	return packetID, granted, nil
}

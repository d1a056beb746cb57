package packet

import (
	"github.com/RoanBrand/oneshot/internal/model"
	"github.com/pkg/errors"
)

// protocol name "MQTT" and level 4
var protocolHeader = []byte{0, 4, 'M', 'Q', 'T', 'T', 4}

// ConnectParams holds the fields of a CONNECT packet.
type ConnectParams struct {
	ClientID     string // may be empty, server then assigns one if CleanSession is set
	KeepAlive    uint16 // seconds
	CleanSession bool

	// Password is only sent when Username is set. [MQTT-3.1.2-22]
	Username string
	Password []byte

	// Will is only sent when WillTopic is set.
	WillTopic   string
	WillMessage []byte
	WillQoS     uint8
	WillRetain  bool
}

func (p *ConnectParams) hasWill() bool {
	return p.WillTopic != ""
}

// flags returns the Connect Flags byte of the variable header.
func (p *ConnectParams) flags() byte {
	var f byte
	if p.Username != "" {
		f |= 0x80
		if len(p.Password) > 0 {
			f |= 0x40
		}
	}
	if p.hasWill() {
		f |= 0x04 | p.WillQoS<<3
		if p.WillRetain {
			f |= 0x20
		}
	}
	if p.CleanSession {
		f |= 0x02
	}
	return f
}

func (p *ConnectParams) validate() error {
	if p.WillQoS > 2 {
		return errors.Wrap(ErrMalformedPacket, "invalid Will QoS")
	}
	if !p.hasWill() && (p.WillQoS != 0 || p.WillRetain) { // [MQTT-3.1.2-13] [MQTT-3.1.2-15]
		return errors.Wrap(ErrMalformedPacket, "Will QoS and Retain must be 0 without Will Topic")
	}
	if p.hasWill() {
		if err := CheckTopicName(p.WillTopic); err != nil {
			return err
		}
	}

	for _, s := range []struct {
		name string
		l    int
	}{
		{"client identifier", len(p.ClientID)},
		{"will message", len(p.WillMessage)},
		{"username", len(p.Username)},
		{"password", len(p.Password)},
	} {
		if err := checkLen(s.name, s.l); err != nil {
			return err
		}
	}
	return nil
}

func (p *ConnectParams) remainingLength() int {
	rl := len(protocolHeader) + 3 + 2 + len(p.ClientID) // + flags & keep alive
	if p.hasWill() {
		rl += 4 + len(p.WillTopic) + len(p.WillMessage)
	}
	if p.Username != "" {
		rl += 2 + len(p.Username)
		if len(p.Password) > 0 {
			rl += 2 + len(p.Password)
		}
	}
	return rl
}

// SerializeConnect writes a CONNECT packet to buf and returns its length.
func SerializeConnect(buf []byte, p *ConnectParams) (int, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}

	rl := p.remainingLength()
	if err := fits(buf, rl); err != nil {
		return 0, err
	}

	b := append(buf[:0], model.CONNECT)
	b = model.VariableLengthEncode(b, rl)
	b = append(b, protocolHeader...)
	b = append(b, p.flags(), byte(p.KeepAlive>>8), byte(p.KeepAlive))

	// Payload
	b = appendString(b, p.ClientID)
	if p.hasWill() {
		b = appendString(b, p.WillTopic)
		b = appendBytes(b, p.WillMessage)
	}
	if p.Username != "" {
		b = appendString(b, p.Username)
		if len(p.Password) > 0 {
			b = appendBytes(b, p.Password)
		}
	}

	return len(b), nil
}

// DeserializeConnack decodes a CONNACK packet held in buf.
func DeserializeConnack(buf []byte) (sessionPresent bool, returnCode uint8, err error) {
	controlType, flags, body, err := decodeHeader(buf)
	if err != nil {
		return false, 0, err
	}
	if err = expectType(controlType, model.CONNACK); err != nil {
		return false, 0, err
	}
	if err = validateFlags(controlType, flags); err != nil {
		return false, 0, err
	}
	if len(body) != 2 {
		return false, 0, errors.Wrapf(ErrMalformedPacket, "CONNACK remaining length %d, expected 2", len(body))
	}
	if body[0]&0xFE != 0 { // [MQTT-3.2.2-1]
		return false, 0, errors.Wrap(ErrMalformedPacket, "CONNACK Acknowledge Flags bits 7-1 must be 0")
	}

	sessionPresent, returnCode = body[0]&0x01 > 0, body[1]
	if sessionPresent && returnCode != model.ConnectionAccepted { // [MQTT-3.2.2-4]
		return false, 0, errors.Wrap(ErrMalformedPacket, "CONNACK Session Present set with non-zero return code")
	}
	return sessionPresent, returnCode, nil
}

// SerializeDisconnect writes the fixed 2 byte DISCONNECT packet to buf.
func SerializeDisconnect(buf []byte) (int, error) {
	if err := fits(buf, 0); err != nil {
		return 0, err
	}
	buf[0], buf[1] = model.DISCONNECT, 0
	return 2, nil
}

// SerializePingreq writes the fixed 2 byte PINGREQ packet to buf.
func SerializePingreq(buf []byte) (int, error) {
	if err := fits(buf, 0); err != nil {
		return 0, err
	}
	buf[0], buf[1] = model.PINGREQ, 0
	return 2, nil
}

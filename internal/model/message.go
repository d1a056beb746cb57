package model

import "time"

// Message is an application message delivered to a subscriber.
// It owns its memory and stays valid after the session that received it ended.
type Message struct {
	Topic    string
	Payload  []byte
	PacketID uint16 // only non-zero for QoS > 0
	QoS      uint8
	Retained bool
	Dup      bool

	Received time.Time
}

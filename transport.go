package oneshot

import (
	"context"
	"time"

	"github.com/RoanBrand/oneshot/internal/config"
	"github.com/RoanBrand/oneshot/internal/transport"
	"github.com/RoanBrand/oneshot/internal/websocket"
)

// Transport is a blocking byte stream to the broker. A new one is used for every session.
type Transport interface {
	Open(ctx context.Context) error
	Send(p []byte) (int, error)
	ReadByte() (byte, error)

	// SetReadDeadline makes a blocked ReadByte return a timeout error once t has passed.
	// A zero t means no deadline.
	SetReadDeadline(t time.Time) error

	// Close is called exactly once per session, also when Open failed.
	Close() error
}

func (c *Client) newTransport() Transport {
	if c.Dial != nil {
		return c.Dial()
	}

	switch c.Broker.Transport {
	case config.WS, config.WSS:
		return websocket.New(c.URL(), c.tlsConf)
	default:
		return transport.New(c.Addr(), c.tlsConf)
	}
}

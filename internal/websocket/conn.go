package websocket

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const subprotocol = "mqtt" // [MQTT-6.0.0-3]

// Conn carries MQTT over a websocket connection to a broker.
// Packets are sent as single binary messages. Received messages are read as one byte stream.
type Conn struct {
	URL    string
	Dialer websocket.Dialer

	conn *websocket.Conn
	r    io.Reader
	b    [1]byte
}

func New(url string, tlsConf *tls.Config) *Conn {
	return &Conn{
		URL: url,
		Dialer: websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
			Subprotocols:     []string{subprotocol},
			TLSClientConfig:  tlsConf,
		},
	}
}

func (c *Conn) Open(ctx context.Context) error {
	conn, resp, err := c.Dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		if resp != nil {
			return errors.Wrapf(err, "websocket handshake status %q", resp.Status)
		}
		return err
	}

	if conn.Subprotocol() != subprotocol {
		conn.Close()
		return errors.New("broker did not accept websocket sub protocol 'mqtt'")
	}

	c.conn, c.r = conn, nil
	return nil
}

func (c *Conn) Send(p []byte) (int, error) {
	if c.conn == nil {
		return 0, net.ErrClosed
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *Conn) Read(p []byte) (int, error) {
	if c.conn == nil {
		return 0, net.ErrClosed
	}

	for {
		if c.r == nil {
			var err error
			var mt int
			if mt, c.r, err = c.conn.NextReader(); err != nil {
				return 0, err
			}
			if mt != websocket.BinaryMessage { // [MQTT-6.0.0-1]
				return 0, errors.New("not binary message")
			}
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *Conn) ReadByte() (byte, error) {
	for {
		n, err := c.Read(c.b[:])
		if n == 1 {
			return c.b[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	if c.conn == nil {
		return net.ErrClosed
	}
	return c.conn.SetReadDeadline(t)
}

func (c *Conn) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.r = nil, nil
	return err
}

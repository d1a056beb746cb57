package oneshot

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/RoanBrand/oneshot/internal/config"
	"github.com/RoanBrand/oneshot/internal/model"
	"github.com/RoanBrand/oneshot/internal/packet"
	"github.com/RoanBrand/oneshot/internal/transport"
)

// Message is a PUBLISH received by Subscribe.
type Message = model.Message

// Client runs every Publish and Subscribe call as its own session:
// connect, do one thing, disconnect. It is safe for concurrent use.
type Client struct {
	config.Config

	// Dial, if set, creates the transport of each session instead of the configured broker transport.
	Dial func() Transport

	// IDs supplies SUBSCRIBE packet identifiers. Defaults to an in-memory counter.
	IDs IDSource

	initOnce sync.Once
	initErr  error
	tlsConf  *tls.Config
	bufs     sync.Pool // per call packet buffers
}

func (c *Client) init() error {
	c.initOnce.Do(func() {
		if c.initErr = c.Validate(); c.initErr != nil {
			return
		}
		if c.IDs == nil {
			c.IDs = &memIDs{}
		}
		if c.Dial == nil && c.Secure() {
			t := &c.Broker.TLS
			c.tlsConf, c.initErr = transport.TLSConfig(t.CA, t.Cert, t.Key, t.ServerName, t.InsecureSkipVerify)
		}
	})
	return c.initErr
}

func (c *Client) getBuf() []byte {
	if b := c.bufs.Get(); b != nil {
		return *b.(*[]byte)
	}
	return make([]byte, c.BufferSize)
}

func (c *Client) putBuf(b []byte) {
	c.bufs.Put(&b)
}

func (c *Client) connectTimeout() time.Duration {
	if c.ConnectTimeout < 0 {
		return 0
	}
	return time.Duration(c.ConnectTimeout) * time.Second
}

// Publish sends message to topic at QoS 0, not retained.
// Unless PublishSkipConnack is configured, PUBLISH is only sent after the broker accepted the connection.
func (c *Client) Publish(ctx context.Context, topic string, message []byte) error {
	if err := c.init(); err != nil {
		return err
	}
	if err := packet.CheckTopicName(topic); err != nil {
		return err
	}

	s := c.newSession(ctx)
	defer s.end()

	if err := s.connect(!c.PublishSkipConnack); err != nil {
		return err
	}
	return s.publish(topic, message)
}

// Subscribe subscribes to the topic filter at QoS 0 and returns the first message delivered.
// It waits at most SubscribeTimeout for the message, or until ctx is done.
func (c *Client) Subscribe(ctx context.Context, topic string) (Message, error) {
	if err := c.init(); err != nil {
		return Message{}, err
	}
	if err := packet.CheckTopicFilter(topic); err != nil {
		return Message{}, err
	}

	s := c.newSession(ctx)
	defer s.end()

	if err := s.connect(true); err != nil {
		return Message{}, err
	}
	if err := s.subscribe(topic); err != nil {
		return Message{}, err
	}
	return s.receive(time.Duration(c.SubscribeTimeout) * time.Second)
}

package tests_test

import (
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/gorilla/websocket"
)

// fakeBroker is a minimal MQTT 3.1.1 broker: it accepts or rejects CONNECT,
// grants SUBSCRIBE at a fixed QoS and forwards PUBLISH to subscribers of the exact topic, or "#".
type fakeBroker struct {
	returnCode byte
	grant      byte

	mu       sync.Mutex
	subs     map[string][]*brokerConn
	connects []*packets.ConnectPacket
	subIDs   []uint16
	discons  int

	subscribed chan string // topic filter, after SUBACK was sent
	published  chan *packets.PublishPacket
	closed     chan struct{} // one per ended connection
}

type brokerConn struct {
	rw io.ReadWriteCloser
	mu sync.Mutex
}

func (c *brokerConn) write(p packets.ControlPacket) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return p.Write(c.rw)
}

func newBroker() *fakeBroker {
	return &fakeBroker{
		subs:       make(map[string][]*brokerConn),
		subscribed: make(chan string, 16),
		published:  make(chan *packets.PublishPacket, 16),
		closed:     make(chan struct{}, 64),
	}
}

// listen serves plain TCP and returns the address.
func (b *fakeBroker) listen(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go b.serve(conn)
		}
	}()

	return l.Addr().String()
}

// wsHandler serves MQTT over websocket.
func (b *fakeBroker) wsHandler() http.Handler {
	up := websocket.Upgrader{Subprotocols: []string{"mqtt"}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mqtt" {
			http.NotFound(w, r)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.serve(&wsStream{Conn: conn})
	})
}

func (b *fakeBroker) serve(rw io.ReadWriteCloser) {
	c := &brokerConn{rw: rw}
	defer func() {
		rw.Close()
		b.unsubscribe(c)
		b.closed <- struct{}{}
	}()

	for {
		cp, err := packets.ReadPacket(rw)
		if err != nil {
			return
		}

		switch p := cp.(type) {
		case *packets.ConnectPacket:
			b.mu.Lock()
			b.connects = append(b.connects, p)
			b.mu.Unlock()

			ca := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
			ca.ReturnCode = b.returnCode
			if err = c.write(ca); err != nil || b.returnCode != packets.Accepted {
				return
			}

		case *packets.SubscribePacket:
			sa := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
			sa.MessageID = p.MessageID
			for range p.Topics {
				sa.ReturnCodes = append(sa.ReturnCodes, b.grant)
			}

			b.mu.Lock()
			b.subIDs = append(b.subIDs, p.MessageID)
			for _, t := range p.Topics {
				b.subs[t] = append(b.subs[t], c)
			}
			b.mu.Unlock()

			if err = c.write(sa); err != nil {
				return
			}
			for _, t := range p.Topics {
				b.subscribed <- t
			}

		case *packets.PublishPacket:
			b.published <- p
			b.forward(p)

		case *packets.PingreqPacket:
			if err = c.write(packets.NewControlPacket(packets.Pingresp)); err != nil {
				return
			}

		case *packets.DisconnectPacket:
			b.mu.Lock()
			b.discons++
			b.mu.Unlock()
			return

		default:
			return
		}
	}
}

func (b *fakeBroker) forward(p *packets.PublishPacket) {
	b.mu.Lock()
	subs := append(append([]*brokerConn(nil), b.subs[p.TopicName]...), b.subs["#"]...)
	b.mu.Unlock()

	for _, c := range subs {
		fp := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
		fp.TopicName, fp.Payload = p.TopicName, p.Payload
		c.write(fp)
	}
}

func (b *fakeBroker) unsubscribe(c *brokerConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for t, cs := range b.subs {
		for i := range cs {
			if cs[i] == c {
				b.subs[t] = append(cs[:i], cs[i+1:]...)
				break
			}
		}
	}
}

func (b *fakeBroker) disconnects() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.discons
}

func (b *fakeBroker) subscribeIDs() []uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]uint16(nil), b.subIDs...)
}

func (b *fakeBroker) lastConnect() *packets.ConnectPacket {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.connects) == 0 {
		return nil
	}
	return b.connects[len(b.connects)-1]
}

// waitClosed waits for n connections to end.
func (b *fakeBroker) waitClosed(t *testing.T, n int) {
	for i := 0; i < n; i++ {
		select {
		case <-b.closed:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for connection to end")
		}
	}
}

// wsStream is the broker side of a websocket connection.
type wsStream struct {
	*websocket.Conn
	r io.Reader
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.r == nil {
			var err error
			if _, s.r, err = s.NextReader(); err != nil {
				return 0, err
			}
		}
		n, err := s.r.Read(p)
		if err == io.EOF {
			s.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func wsAddress(url string) string {
	return strings.TrimPrefix(strings.TrimPrefix(url, "http://"), "https://")
}

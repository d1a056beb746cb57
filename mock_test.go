package oneshot

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/RoanBrand/oneshot/internal/model"
	"github.com/RoanBrand/oneshot/internal/packet"
)

// mockTransport serves scripted bytes and records what is sent.
// Once the script is exhausted, reads block until the read deadline or Close, unless eof is set.
type mockTransport struct {
	mu       sync.Mutex
	in       bytes.Buffer
	eof      bool
	openErr  error
	shortAt  int // 1 based Send that reports one byte less than asked
	deadline time.Time
	changed  chan struct{}

	// respond is called with every complete Send, and may add to in.
	respond func(m *mockTransport, p []byte)

	opens, closes int
	writes        [][]byte
	events        []string
}

func newMock(script ...[]byte) *mockTransport {
	m := mockTransport{changed: make(chan struct{})}
	for _, p := range script {
		m.in.Write(p)
	}
	return &m
}

func (m *mockTransport) signal() {
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *mockTransport) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	m.events = append(m.events, "open")
	return m.openErr
}

func (m *mockTransport) Send(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes = append(m.writes, append([]byte(nil), p...))
	m.events = append(m.events, model.PacketName(p[0]))
	if m.closes > 0 {
		return 0, net.ErrClosed
	}
	if len(m.writes) == m.shortAt {
		return len(p) - 1, nil
	}

	if m.respond != nil {
		m.respond(m, p)
		m.signal()
	}
	return len(p), nil
}

func (m *mockTransport) ReadByte() (byte, error) {
	for {
		m.mu.Lock()
		if m.closes > 0 {
			m.mu.Unlock()
			return 0, net.ErrClosed
		}
		if b, err := m.in.ReadByte(); err == nil {
			m.mu.Unlock()
			return b, nil
		}
		if m.eof {
			m.mu.Unlock()
			return 0, io.EOF
		}
		deadline, changed := m.deadline, m.changed
		m.mu.Unlock()

		if deadline.IsZero() {
			<-changed
			continue
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		t := time.NewTimer(wait)
		select {
		case <-t.C:
			return 0, os.ErrDeadlineExceeded
		case <-changed:
			t.Stop()
		}
	}
}

func (m *mockTransport) SetReadDeadline(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadline = t
	m.signal()
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	m.events = append(m.events, "close")
	m.signal()
	return nil
}

func (m *mockTransport) sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *mockTransport) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func connack(rc byte) []byte {
	return []byte{model.CONNACK, 2, 0, rc}
}

func suback(pID uint16, granted byte) []byte {
	return []byte{model.SUBACK, 3, byte(pID >> 8), byte(pID), granted}
}

func publish(topic, payload string) []byte {
	buf := make([]byte, 256)
	n, err := packet.SerializePublish(buf, false, 0, false, 0, topic, []byte(payload))
	if err != nil {
		panic(err)
	}
	return buf[:n]
}

// acceptAll answers like a broker that grants every subscription and then delivers pub, if any.
func acceptAll(pub []byte) func(*mockTransport, []byte) {
	return func(m *mockTransport, p []byte) {
		switch p[0] & 0xF0 {
		case model.CONNECT:
			m.in.Write(connack(model.ConnectionAccepted))
		case model.SUBSCRIBE:
			m.in.Write([]byte{model.SUBACK, 3, p[2], p[3], 0})
			m.in.Write(pub)
		}
	}
}

func clientFor(m *mockTransport) *Client {
	return &Client{Dial: func() Transport { return m }}
}

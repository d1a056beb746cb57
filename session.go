package oneshot

import (
	"context"
	"net"
	"os"
	"sync"
	"time"

	"github.com/RoanBrand/oneshot/internal/model"
	"github.com/RoanBrand/oneshot/internal/packet"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var aLongTimeAgo = time.Unix(1, 0) // used for cancellation

type state uint8

const (
	closed state = iota
	opening
	awaitingConnAck
	ready
	awaitingResponse
)

func (s state) String() string {
	switch s {
	case closed:
		return "Closed"
	case opening:
		return "Opening"
	case awaitingConnAck:
		return "AwaitingConnAck"
	case ready:
		return "Ready"
	case awaitingResponse:
		return "AwaitingResponse"
	default:
		return "unknown"
	}
}

// session is one connection lifecycle. It owns its transport and packet buffer,
// and must always be ended with end.
type session struct {
	c        *Client
	ctx      context.Context
	t        Transport
	buf      []byte
	clientId string
	state    state

	onlyOnce sync.Once
	stopped  chan struct{}
	watcher  sync.WaitGroup
}

func (c *Client) newSession(ctx context.Context) *session {
	return &session{
		c:        c,
		ctx:      ctx,
		t:        c.newTransport(),
		buf:      c.getBuf(),
		clientId: c.Connect.ID,
		stopped:  make(chan struct{}),
	}
}

// connect opens the transport and sends CONNECT. If waitConnack, the session is only
// ready once the broker accepted the connection.
func (s *session) connect(waitConnack bool) error {
	s.state = opening

	ctx := s.ctx
	if to := s.c.connectTimeout(); to > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, to)
		defer cancel()
	}
	if err := s.t.Open(ctx); err != nil {
		return &OpError{Kind: ErrTransportOpenFailed, Op: "open " + s.c.Addr(), Err: err}
	}
	s.watch()

	cn := &s.c.Connect
	p := packet.ConnectParams{
		ClientID:     s.clientId,
		KeepAlive:    s.c.KeepAlive(),
		CleanSession: s.c.Clean(),
		Username:     cn.Username,
		WillTopic:    cn.Will.Topic,
		WillQoS:      cn.Will.QoS,
		WillRetain:   cn.Will.Retain,
	}
	if cn.Password != "" {
		p.Password = []byte(cn.Password)
	}
	if cn.Will.Topic != "" {
		p.WillMessage = []byte(cn.Will.Message)
	}

	n, err := packet.SerializeConnect(s.buf, &p)
	if err != nil {
		return errors.Wrap(err, "CONNECT")
	}
	if err = s.send("CONNECT", s.buf[:n]); err != nil {
		return err
	}
	s.state = awaitingConnAck

	if !waitConnack {
		s.state = ready
		return nil
	}

	pt, n, err := s.readPacket("CONNACK", s.c.connectTimeout(), false)
	if err != nil {
		return err
	}
	if pt != model.CONNACK {
		return errors.Wrapf(ErrProtocol, "got %s, expected CONNACK", model.PacketName(pt))
	}

	sp, rc, err := packet.DeserializeConnack(s.buf[:n])
	if err != nil {
		return err
	}
	if rc != model.ConnectionAccepted {
		log.WithFields(log.Fields{
			"ClientId":    s.clientId,
			"Return Code": rc,
		}).Debug("CONNECT rejected")
		return &ConnectError{ReturnCode: rc}
	}

	s.state = ready
	log.WithFields(log.Fields{
		"ClientId":        s.clientId,
		"Session Present": sp,
	}).Debug("CONNACK received")
	return nil
}

func (s *session) publish(topic string, message []byte) error {
	n, err := packet.SerializePublish(s.buf, false, 0, false, 0, topic, message)
	if err != nil {
		return errors.Wrap(err, "PUBLISH")
	}
	if err = s.send("PUBLISH", s.buf[:n]); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"ClientId": s.clientId,
		"Topic":    topic,
	}).Debug("PUBLISH sent")
	return nil
}

func (s *session) subscribe(topic string) error {
	pID, err := s.c.IDs.NextID(s.clientId)
	if err != nil {
		return errors.Wrap(err, "unable to get packet identifier")
	}

	n, err := packet.SerializeSubscribe(s.buf, false, pID, []string{topic}, []uint8{0})
	if err != nil {
		return errors.Wrap(err, "SUBSCRIBE")
	}
	if err = s.send("SUBSCRIBE", s.buf[:n]); err != nil {
		return err
	}
	s.state = awaitingResponse

	pt, n, err := s.readPacket("SUBACK", s.c.connectTimeout(), false)
	if err != nil {
		return err
	}
	if pt != model.SUBACK {
		return errors.Wrapf(ErrProtocol, "got %s, expected SUBACK", model.PacketName(pt))
	}

	gotID, granted, err := packet.DeserializeSuback(s.buf[:n])
	if err != nil {
		return err
	}
	if gotID != pID {
		return errors.Wrapf(ErrProtocol, "SUBACK for packet %d, expected %d", gotID, pID)
	}
	if len(granted) != 1 {
		return errors.Wrapf(ErrProtocol, "SUBACK with %d return codes for 1 topic filter", len(granted))
	}
	if granted[0] != 0 {
		if granted[0] == model.SubscribeFailure {
			return errors.Wrapf(ErrQoSMismatch, "subscription to %q refused", topic)
		}
		return errors.Wrapf(ErrQoSMismatch, "requested QoS 0, granted QoS %d", granted[0])
	}

	s.state = ready
	log.WithFields(log.Fields{
		"ClientId": s.clientId,
		"Topic":    topic,
		"packetID": pID,
	}).Debug("SUBACK received")
	return nil
}

// receive waits for one PUBLISH and copies it out of the packet buffer.
// A zero timeout waits until the session's context is done.
func (s *session) receive(timeout time.Duration) (Message, error) {
	s.state = awaitingResponse

	pinging := s.c.KeepAlive() > 0
	if pinging {
		stop := s.keepAlive(time.Duration(s.c.KeepAlive()) * time.Second)
		defer stop()
	}

	pt, n, err := s.readPacket("PUBLISH", timeout, pinging)
	if err != nil {
		return Message{}, err
	}
	if pt != model.PUBLISH {
		return Message{}, errors.Wrapf(ErrProtocol, "got %s, expected PUBLISH", model.PacketName(pt))
	}

	p, err := packet.DeserializePublish(s.buf[:n])
	if err != nil {
		return Message{}, err
	}
	if p.QoS != 0 { // [MQTT-3.8.4-6]
		return Message{}, errors.Wrapf(ErrQoSMismatch, "PUBLISH delivered at QoS %d, subscribed at QoS 0", p.QoS)
	}

	s.state = ready
	m := Message{
		Topic:    string(p.Topic),
		Payload:  append([]byte(nil), p.Payload...),
		PacketID: p.PacketID,
		QoS:      p.QoS,
		Retained: p.Retain,
		Dup:      p.Dup,
		Received: time.Now(),
	}

	log.WithFields(log.Fields{
		"ClientId": s.clientId,
		"Topic":    m.Topic,
		"Retained": m.Retained,
	}).Debug("PUBLISH received")
	return m, nil
}

// keepAlive sends PINGREQ every interval until stop is called,
// so the broker does not drop a session that waits long for its message.
func (s *session) keepAlive(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()

		var p [2]byte // s.buf belongs to the reader
		n, _ := packet.SerializePingreq(p[:])

		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := s.send("PINGREQ", p[:n]); err != nil {
					log.WithFields(log.Fields{
						"ClientId": s.clientId,
						"err":      err,
					}).Error("failed to send PINGREQ")
					return
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// readPacket reads the next packet into s.buf, waiting at most timeout. 0 waits until ctx is done.
func (s *session) readPacket(what string, timeout time.Duration, skipPingresp bool) (uint8, int, error) {
	op := "waiting for " + what

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := s.t.SetReadDeadline(deadline); err != nil {
		return 0, 0, &OpError{Kind: ErrReadFailed, Op: op, Err: err}
	}
	if s.ctx.Err() != nil { // watcher may have fired before the deadline was set
		return 0, 0, s.ctxErr(op)
	}

	for {
		pt, n, err := packet.ReadPacket(s.buf, s.t)
		if err != nil {
			if s.ctx.Err() != nil {
				return 0, 0, s.ctxErr(op)
			}
			if isTimeout(err) {
				return 0, 0, &OpError{Kind: ErrTimeout, Op: op, Err: err}
			}
			return 0, 0, errors.Wrap(err, op)
		}

		if pt == model.PINGRESP && skipPingresp {
			continue
		}
		return pt, n, nil
	}
}

func (s *session) ctxErr(op string) error {
	err := s.ctx.Err()
	if err == context.DeadlineExceeded {
		return &OpError{Kind: ErrTimeout, Op: op, Err: err}
	}
	return errors.Wrap(err, op)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (s *session) send(what string, p []byte) error {
	n, err := s.t.Send(p)
	if err != nil {
		return &OpError{Kind: ErrSendFailed, Op: "send " + what, Err: err}
	}
	if n != len(p) {
		return errors.Wrapf(ErrSendFailed, "%s: sent %d of %d bytes", what, n, len(p))
	}
	return nil
}

// watch unblocks reads once the session's context is done.
func (s *session) watch() {
	done := s.ctx.Done()
	if done == nil {
		return
	}

	s.watcher.Add(1)
	go func() {
		defer s.watcher.Done()
		select {
		case <-done:
			s.t.SetReadDeadline(aLongTimeAgo)
		case <-s.stopped:
		}
	}()
}

// end sends DISCONNECT if CONNECT went out, and closes the transport. Safe to call more than once.
func (s *session) end() {
	s.onlyOnce.Do(func() {
		close(s.stopped)
		s.watcher.Wait()

		if s.state >= awaitingConnAck {
			n, err := packet.SerializeDisconnect(s.buf)
			if err == nil {
				err = s.send("DISCONNECT", s.buf[:n])
			}
			if err != nil {
				log.WithFields(log.Fields{
					"ClientId": s.clientId,
					"state":    s.state,
					"err":      err,
				}).Error("failed to send DISCONNECT")
			}
		}

		if s.state >= opening {
			if err := s.t.Close(); err != nil {
				log.WithFields(log.Fields{
					"ClientId": s.clientId,
					"err":      err,
				}).Debug("failed to close transport")
			}
		}

		s.state = closed
		s.c.putBuf(s.buf)
		s.buf = nil
	})
}

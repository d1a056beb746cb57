package transport

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				buf := make([]byte, 64)
				for {
					n, err := conn.Read(buf)
					if err != nil {
						return
					}
					if _, err = conn.Write(buf[:n]); err != nil {
						return
					}
				}
			}()
		}
	}()

	return l.Addr().String()
}

func TestConn(t *testing.T) {
	t.Parallel()
	c := New(echoServer(t), nil)
	require.NoError(t, c.Open(context.Background()))
	defer c.Close()

	n, err := c.Send([]byte{0xE0, 0, 1, 2})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	b, err := c.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0xE0), b)

	rest := make([]byte, 3)
	_, err = c.Read(rest[:1])
	require.NoError(t, err)
	b, err = c.ReadByte()
	require.NoError(t, err)
	b2, err := c.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, []byte{rest[0], b, b2})
}

func TestConnReadDeadline(t *testing.T) {
	t.Parallel()
	c := New(echoServer(t), nil)
	require.NoError(t, c.Open(context.Background()))
	defer c.Close()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(20*time.Millisecond)))
	_, err := c.ReadByte()
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestConnClosed(t *testing.T) {
	t.Parallel()
	c := New("127.0.0.1:1", nil)
	assert.NoError(t, c.Close())

	_, err := c.Send([]byte{1})
	assert.ErrorIs(t, err, net.ErrClosed)
	_, err = c.ReadByte()
	assert.ErrorIs(t, err, net.ErrClosed)
	assert.ErrorIs(t, c.SetReadDeadline(time.Time{}), net.ErrClosed)
}

func TestOpenCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(echoServer(t), nil)
	assert.Error(t, c.Open(ctx))
	assert.NoError(t, c.Close())
}

func TestTLSConfig(t *testing.T) {
	t.Parallel()
	conf, err := TLSConfig("", "", "", "broker.local", true)
	require.NoError(t, err)
	assert.Equal(t, "broker.local", conf.ServerName)
	assert.True(t, conf.InsecureSkipVerify)
	assert.Nil(t, conf.RootCAs)

	dir := t.TempDir()
	_, err = TLSConfig(filepath.Join(dir, "missing.pem"), "", "", "", false)
	assert.Error(t, err)

	notPEM := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(notPEM, []byte("not a certificate"), 0644))
	_, err = TLSConfig(notPEM, "", "", "", false)
	assert.Error(t, err)

	_, err = TLSConfig("", notPEM, notPEM, "", false)
	assert.Error(t, err)
}

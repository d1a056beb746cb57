package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Conn is a TCP or TLS connection to a broker.
// Reads go through a small buffer, as packets are assembled one byte at a time.
type Conn struct {
	Address string
	TLS     *tls.Config // nil for plain TCP
	Dialer  net.Dialer

	conn net.Conn
	r    *bufio.Reader
}

func New(address string, tlsConf *tls.Config) *Conn {
	return &Conn{Address: address, TLS: tlsConf}
}

func (c *Conn) Open(ctx context.Context) error {
	var conn net.Conn
	var err error

	if c.TLS != nil {
		d := tls.Dialer{NetDialer: &c.Dialer, Config: c.TLS}
		conn, err = d.DialContext(ctx, "tcp", c.Address)
	} else {
		conn, err = c.Dialer.DialContext(ctx, "tcp", c.Address)
	}
	if err != nil {
		return err
	}

	c.conn, c.r = conn, bufio.NewReaderSize(conn, 512)
	return nil
}

func (c *Conn) Send(p []byte) (int, error) {
	if c.conn == nil {
		return 0, net.ErrClosed
	}
	return c.conn.Write(p)
}

func (c *Conn) ReadByte() (byte, error) {
	if c.r == nil {
		return 0, net.ErrClosed
	}
	return c.r.ReadByte()
}

func (c *Conn) Read(p []byte) (int, error) {
	if c.r == nil {
		return 0, net.ErrClosed
	}
	return c.r.Read(p)
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
	c.conn = nil
	return err
}

// TLSConfig builds the client TLS configuration.
// caFile adds a root CA, certFile and keyFile a client certificate. All are optional.
func TLSConfig(caFile, certFile, keyFile, serverName string, insecureSkipVerify bool) (*tls.Config, error) {
	config := tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: insecureSkipVerify,
	}

	if caFile != "" {
		ca, err := os.ReadFile(caFile)
		if err != nil {
			return nil, err
		}

		config.RootCAs = x509.NewCertPool()
		if !config.RootCAs.AppendCertsFromPEM(ca) {
			return nil, errors.New("no certificates found in " + caFile)
		}
	}

	if certFile != "" {
		cert, err := os.ReadFile(certFile)
		if err != nil {
			return nil, err
		}

		key, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, err
		}

		kp, err := tls.X509KeyPair(cert, key)
		if err != nil {
			return nil, err
		}
		config.Certificates = []tls.Certificate{kp}
	}

	return &config, nil
}

package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Broker transports.
const (
	TCP = "tcp"
	TLS = "tls"
	WS  = "ws"
	WSS = "wss"
)

type Config struct {
	Broker struct {
		// Address of the MQTT broker in the form "host:port".
		// If only a host is given, the default port of the transport is used.
		Address string `json:"address"`

		// Transport is one of "tcp" (default), "tls", "ws" or "wss".
		Transport string `json:"transport"`

		// Path of the websocket endpoint. Default "/mqtt".
		Path string `json:"path"`

		// TLS is used for "tls" and "wss". All files are optional.
		TLS struct {
			CA                 string `json:"ca"`
			ServerName         string `json:"server_name"`
			InsecureSkipVerify bool   `json:"insecure_skip_verify"`
			keyPair
		} `json:"tls"`
	} `json:"broker"`

	// Connect configures the CONNECT packet sent for every session.
	Connect struct {
		// ID is the Client Identifier. If empty and CleanSession is off,
		// a random one is generated, as brokers reject that combination.
		ID           string `json:"id"`
		Username     string `json:"username"`
		Password     string `json:"password"`
		KeepAlive    *uint16 `json:"keep_alive"` // in s. Default 60, 0 disables
		CleanSession *bool   `json:"clean_session"`

		Will struct {
			Topic   string `json:"topic"`
			Message string `json:"message"`
			QoS     uint8  `json:"qos"`
			Retain  bool   `json:"retain"`
		} `json:"will"`
	} `json:"connect"`

	// BufferSize is the capacity of the packet buffer of each call.
	// Packets larger than this cannot be sent or received. Default 200.
	BufferSize int `json:"buffer_size"`

	// PublishSkipConnack sends PUBLISH straight after CONNECT, without waiting for CONNACK.
	PublishSkipConnack bool `json:"publish_skip_connack"`

	// Timeout in s for opening the transport and receiving CONNACK and SUBACK.
	// Default 10s. Set to -1 to wait indefinitely.
	ConnectTimeout int64 `json:"connect_timeout"`

	// Timeout in s waiting for the PUBLISH after subscribing.
	// 0 waits indefinitely.
	SubscribeTimeout int64 `json:"subscribe_timeout"`

	// Store optionally keeps packet identifiers on disk, so they keep increasing across invocations.
	Store struct {
		Dir string `json:"dir"`
	} `json:"store"`

	// Log configures optional log output file as well as the log level setting.
	Log struct {
		File  string `json:"file"`
		Level string `json:"level"`
	} `json:"log"`

	// Watch configures the watch command.
	Watch struct {
		Topic string `json:"topic"`

		// RelayTopic, if set, is where every received message is published to.
		RelayTopic string `json:"relay_topic"`
	} `json:"watch"`

	addr string // Broker.Address with the default port of the transport
}

type keyPair struct {
	Cert string `json:"cert"`
	Key  string `json:"key"`
}

func (c *Config) LoadFromFile(fPath string) error {
	f, err := os.Open(fPath)
	if err != nil {
		return errors.Wrap(err, "error opening config file")
	}

	defer f.Close()

	if err = json.NewDecoder(f).Decode(&c); err != nil {
		return errors.Wrap(err, "error reading config file")
	}

	return c.Validate()
}

// Validate checks the config and fills in defaults.
func (c *Config) Validate() error {
	b := &c.Broker
	b.Transport = strings.ToLower(b.Transport)

	var port string
	switch b.Transport {
	case "", TCP:
		b.Transport, port = TCP, "1883"
	case TLS:
		port = "8883"
	case WS:
		port = "80"
	case WSS:
		port = "443"
	default:
		return errors.New("unknown broker transport: " + b.Transport)
	}

	c.addr = b.Address
	if c.addr == "" {
		c.addr = "localhost"
	}
	if !strings.Contains(c.addr, ":") {
		c.addr += ":" + port // if just ip/host specified
	}

	if b.Transport == WS || b.Transport == WSS {
		if b.Path == "" {
			b.Path = "/mqtt"
		} else if b.Path[0] != '/' {
			b.Path = "/" + b.Path
		}
	}

	if (b.TLS.Cert == "") != (b.TLS.Key == "") {
		return errors.New("invalid TLS client certificate and/or private key file path setup")
	}

	cn := &c.Connect
	if cn.KeepAlive == nil {
		keepAlive := uint16(60)
		cn.KeepAlive = &keepAlive
	}
	if cn.CleanSession == nil {
		clean := true
		cn.CleanSession = &clean
	}
	if cn.ID == "" && !*cn.CleanSession { // [MQTT-3.1.3-7]
		cn.ID = uuid.NewString()
	}
	if cn.Password != "" && cn.Username == "" { // [MQTT-3.1.2-22]
		return errors.New("password set without username")
	}
	if cn.Will.QoS > 2 {
		return errors.New("invalid will QoS: " + strconv.Itoa(int(cn.Will.QoS)))
	}
	if cn.Will.Topic == "" && (cn.Will.Message != "" || cn.Will.QoS != 0 || cn.Will.Retain) {
		return errors.New("will configured without topic")
	}

	if c.BufferSize == 0 {
		c.BufferSize = 200
	} else if c.BufferSize < 4 {
		return errors.New("buffer size too small: " + strconv.Itoa(c.BufferSize))
	}

	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10
	}
	if c.SubscribeTimeout < 0 {
		c.SubscribeTimeout = 0
	}

	return nil
}

// Clean reports the CleanSession setting, which defaults to true.
func (c *Config) Clean() bool {
	return c.Connect.CleanSession == nil || *c.Connect.CleanSession
}

// KeepAlive reports the keep alive interval in s, which defaults to 60. 0 disables it.
func (c *Config) KeepAlive() uint16 {
	if c.Connect.KeepAlive == nil {
		return 60
	}
	return *c.Connect.KeepAlive
}

// Addr returns the broker "host:port", after Validate resolved the default port.
func (c *Config) Addr() string {
	if c.addr == "" {
		return c.Broker.Address
	}
	return c.addr
}

// URL returns the websocket URL of the broker.
func (c *Config) URL() string {
	return c.Broker.Transport + "://" + c.Addr() + c.Broker.Path
}

// Secure reports if the broker transport uses TLS.
func (c *Config) Secure() bool {
	return c.Broker.Transport == TLS || c.Broker.Transport == WSS
}

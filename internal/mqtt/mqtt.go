package mqtt

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Client struct {
	cli mqtt.Client
}

// ClientAPI is the minimal surface the ingest pipeline and command publisher
// need. It enables unit testing without a live broker.
type ClientAPI interface {
	Subscribe(topic string, cb Handler) error
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

// Message is re-exported type for handlers
type Message = mqtt.Message

// Handler is handler signature
type Handler = mqtt.MessageHandler

func New(brokerURL string) (*Client, error) {
	return newClient(brokerURL, 15*time.Second)
}

func newClient(brokerURL string, connectTimeout time.Duration) (*Client, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, err
	}
	opts := mqtt.NewClientOptions()
	server := u.Host
	if u.Scheme == "mqtt" || u.Scheme == "tcp" {
		server = "tcp://" + server
	} else if u.Scheme == "ssl" || u.Scheme == "tls" {
		server = "ssl://" + server
	} else if u.Scheme == "ws" || u.Scheme == "wss" {
		server = u.Scheme + "://" + server + u.Path
	}
	opts.AddBroker(server)
	opts.SetClientID("homesentry-" + time.Now().Format("150405.000"))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.OnConnect = func(c mqtt.Client) { slog.Info("mqtt connected", "broker", brokerURL) }
	opts.OnConnectionLost = func(c mqtt.Client, err error) { slog.Error("mqtt connection lost", "error", err) }
	if u.User != nil {
		pw, _ := u.User.Password()
		opts.SetUsername(u.User.Username())
		opts.SetPassword(pw)
	}
	if u.Scheme == "ssl" || u.Scheme == "tls" || u.Scheme == "wss" {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true}) // TODO: tighten
	}
	cli := mqtt.NewClient(opts)
	tok := cli.Connect()
	if ok := tok.WaitTimeout(connectTimeout); !ok {
		// With connect-retry enabled the token never carries an error on
		// timeout, so build one here.
		cli.Disconnect(0)
		if err := tok.Error(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("mqtt connect to %s timed out after %s", brokerURL, connectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, err
	}
	return &Client{cli: cli}, nil
}

// Subscribe registers a handler at QoS 1. The broker may redeliver; handlers
// are expected to be idempotent.
func (c *Client) Subscribe(topic string, cb Handler) error {
	t := c.cli.Subscribe(topic, 1, cb)
	if t.Wait() && t.Error() != nil {
		return t.Error()
	}
	slog.Info("mqtt subscribed", "topic", topic)
	return nil
}

// Publish sends at QoS 1 without the retained flag and waits for the broker
// acknowledgment.
func (c *Client) Publish(topic string, payload []byte) error {
	t := c.cli.Publish(topic, 1, false, payload)
	if t.Wait() && t.Error() != nil {
		return t.Error()
	}
	return nil
}

func (c *Client) IsConnected() bool {
	return c != nil && c.cli != nil && c.cli.IsConnected()
}

func (c *Client) Disconnect(quiesceMs uint) {
	if c == nil || c.cli == nil {
		return
	}
	c.cli.Disconnect(quiesceMs)
}

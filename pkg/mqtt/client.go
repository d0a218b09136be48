package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"

	"github.com/eclipse/paho.golang/paho"

	"github.com/autopeer-io/clusterpilot/pkg/log"
)

type pahoClient struct {
	cfg *ClientConfig

	mu      sync.Mutex
	session *session

	// subscriptions holds the registered handlers.
	// Key: topic filter (string), Value: subscriptionEntry
	subscriptions sync.Map
}

type subscriptionEntry struct {
	topic   string
	qos     int
	handler MessageHandler
}

// session is one CONNECT..disconnect lifetime of the underlying paho client.
type session struct {
	client *paho.Client
	done   chan struct{}
	once   sync.Once
	err    error
}

func newSession() *session {
	return &session{done: make(chan struct{})}
}

func (s *session) end(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

func (s *session) ended() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// NewClient creates a new MQTT client implementing the Client interface.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mqtt config is required")
	}

	setDefaultConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	return &pahoClient{
		cfg: cfg,
	}, nil
}

func (c *pahoClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && !c.session.ended() {
		return errors.New("mqtt: already connected")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	brokerURL, _ := url.Parse(c.cfg.BrokerURL) // Already validated
	conn, err := dial(ctx, brokerURL, c.cfg.InsecureSkipVerify)
	if err != nil {
		return fmt.Errorf("dial %s: %w", brokerURL.Host, err)
	}

	s := newSession()
	s.client = paho.NewClient(paho.ClientConfig{
		ClientID: c.cfg.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			c.router,
		},
		OnClientError: func(err error) {
			log.Error(err, "MQTT Client internal error")
			s.end(err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			reason := ""
			if d.Properties != nil {
				reason = d.Properties.ReasonString
			}
			log.Warn("MQTT Server requested disconnect", "code", d.ReasonCode, "reason", reason)
			s.end(fmt.Errorf("server disconnect (reason code %d): %s", d.ReasonCode, reason))
		},
	})

	cp := &paho.Connect{
		KeepAlive:    c.cfg.KeepAlive,
		ClientID:     c.cfg.ClientID,
		CleanStart:   c.cfg.CleanStart,
		Username:     c.cfg.Username,
		UsernameFlag: c.cfg.Username != "",
		Password:     []byte(c.cfg.Password),
		PasswordFlag: c.cfg.Password != "",
	}
	if c.cfg.SessionExpiry > 0 {
		expiry := c.cfg.SessionExpiry
		cp.Properties = &paho.ConnectProperties{SessionExpiryInterval: &expiry}
	}

	log.Info("Connecting MQTT Client", "broker", c.cfg.BrokerURL, "clientID", c.cfg.ClientID)
	if _, err := s.client.Connect(ctx, cp); err != nil {
		_ = conn.Close()
		return fmt.Errorf("mqtt connect: %w", err)
	}

	go func() {
		select {
		case <-s.client.Done():
			s.end(errors.New("mqtt: connection closed"))
		case <-s.done:
		}
	}()

	c.session = s
	log.Info("MQTT Connection established")

	var subErr error
	c.subscriptions.Range(func(key, value any) bool {
		entry := value.(subscriptionEntry)
		if err := subscribe(ctx, s.client, entry.topic, entry.qos); err != nil {
			subErr = fmt.Errorf("subscribe %s: %w", entry.topic, err)
			return false
		}
		log.Debug("Subscribed to topic", "topic", entry.topic)
		return true
	})
	if subErr != nil {
		_ = s.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		s.end(subErr)
		return subErr
	}

	return nil
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	s := c.current()
	if s == nil || s.ended() {
		return
	}
	_ = s.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	s.end(nil)
	log.Info("MQTT Client disconnected")
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	s := c.current()
	if s == nil || s.ended() {
		return ErrNotConnected
	}

	_, err := s.client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	})
	return err
}

func (c *pahoClient) Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error {
	c.subscriptions.Store(topic, subscriptionEntry{
		topic:   topic,
		qos:     qos,
		handler: handler,
	})

	// Not connected: the next Connect sends the SUBSCRIBE packet.
	s := c.current()
	if s == nil || s.ended() {
		return nil
	}
	if err := subscribe(ctx, s.client, topic, qos); err != nil {
		return fmt.Errorf("failed to send subscription packet: %w", err)
	}

	log.Info("Subscribed to topic", "topic", topic)
	return nil
}

func (c *pahoClient) Unsubscribe(ctx context.Context, topic string) error {
	c.subscriptions.Delete(topic)

	s := c.current()
	if s == nil || s.ended() {
		return nil
	}
	_, err := s.client.Unsubscribe(ctx, &paho.Unsubscribe{
		Topics: []string{topic},
	})
	return err
}

func (c *pahoClient) IsConnected() bool {
	s := c.current()
	return s != nil && !s.ended()
}

func (c *pahoClient) Done() <-chan struct{} {
	s := c.current()
	if s == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

func (c *pahoClient) Err() error {
	s := c.current()
	if s == nil || !s.ended() {
		return nil
	}
	return s.err
}

func (c *pahoClient) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// router handles incoming messages and dispatches them to the registered handlers.
// Handlers run inline so a slow consumer holds up the read loop.
func (c *pahoClient) router(p paho.PublishReceived) (bool, error) {
	matched := false
	c.subscriptions.Range(func(key, value any) bool {
		entry := value.(subscriptionEntry)
		if topicsMatch(topicFilter(entry.topic), p.Packet.Topic) {
			entry.handler(context.Background(), p.Packet.Topic, p.Packet.Payload)
			matched = true
		}
		return true
	})

	if !matched {
		log.Debug("Received message on unhandled topic", "topic", p.Packet.Topic)
	}

	return true, nil // Always acknowledge reception
}

func subscribe(ctx context.Context, cli *paho.Client, topic string, qos int) error {
	_, err := cli.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: topic, QoS: byte(qos)},
		},
	})
	return err
}

func dial(ctx context.Context, u *url.URL, insecure bool) (net.Conn, error) {
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), defaultPorts[u.Scheme])
	}

	if isTLS(u.Scheme) {
		d := &tls.Dialer{Config: &tls.Config{
			ServerName:         u.Hostname(),
			InsecureSkipVerify: insecure,
		}}
		return d.DialContext(ctx, "tcp", host)
	}

	var d net.Dialer
	return d.DialContext(ctx, "tcp", host)
}

// topicsMatch checks if a topic matches a filter (supports wildcards + and #).
func topicsMatch(filter, topic string) bool {
	if filter == topic {
		return true
	}

	if !strings.Contains(filter, "+") && !strings.Contains(filter, "#") {
		return false
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}

	return len(filterParts) == len(topicParts)
}

func topicFilter(filter string) string {
	if strings.HasPrefix(filter, "$share/") {
		// Format: $share/<group>/<topic>
		parts := strings.SplitN(filter, "/", 3)
		if len(parts) == 3 {
			return parts[2]
		}
	}
	return filter
}

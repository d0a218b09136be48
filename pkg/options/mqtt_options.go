package options

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/clusterpilot/pkg/mqtt"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions contains the MQTT session settings used when the control-plane
// endpoint is an MQTT broker (tcp://, mqtt://, ssl://, tls://, mqtts://).
type MqttOptions struct {
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// Client behavior
	KeepAlive     time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	SessionExpiry uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart    bool          `json:"clean-start" mapstructure:"clean-start"`

	// InsecureSkipVerify controls whether a client verifies the server's certificate chain and host name.
	// If true, TLS accepts any certificate presented by the server and any host name in that certificate.
	// In this mode, TLS is susceptible to man-in-the-middle attacks. This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// TopicRoot prefixes every topic: {TopicRoot}/command/{resourceID} and so on.
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		KeepAlive:     30 * time.Second,
		SessionExpiry: 0,
		CleanStart:    true,
		TopicRoot:     "cluster/v1",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}
	if o.TopicRoot == "" {
		errors = append(errors, errEmpty("mqtt.topic-root"))
	}
	if o.KeepAlive < 0 || o.KeepAlive > 65535*time.Second {
		errors = append(errors, errRange("mqtt.keep-alive", o.KeepAlive))
	}

	return errors
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "Explicit Client ID (optional, generated from the hostname when empty).")

	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT Keep Alive interval.")
	fs.Uint32Var(&o.SessionExpiry, "mqtt.session-expiry", o.SessionExpiry, "MQTT Session Expiry Interval in seconds.")
	fs.BoolVar(&o.CleanStart, "mqtt.clean-start", o.CleanStart, "Start every connection with a clean MQTT session.")
	fs.BoolVar(&o.InsecureSkipVerify, "mqtt.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")

	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "Topic prefix for commands, results and status pushes.")
}

// ToClientConfig converts the options into a client configuration for the given broker.
func (o *MqttOptions) ToClientConfig(broker string, connectTimeout time.Duration) *mqtt.ClientConfig {
	return &mqtt.ClientConfig{
		BrokerURL:          broker,
		Username:           o.Username,
		Password:           o.Password,
		ClientID:           o.ClientID,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		SessionExpiry:      o.SessionExpiry,
		ConnectTimeout:     connectTimeout,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}

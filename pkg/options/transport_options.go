package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*TransportOptions)(nil)

// Supported wire codecs.
const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// EndpointSchemes lists every scheme a control-plane endpoint may use.
var EndpointSchemes = []string{"ws", "wss", "tcp", "mqtt", "ssl", "tls", "mqtts"}

// TransportOptions configures the single connection to the control plane.
type TransportOptions struct {
	// Endpoint is the control-plane address. The scheme selects the transport:
	// ws:// and wss:// speak framed messages over a WebSocket, the others speak MQTT.
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`

	// Codec is the wire encoding, json or cbor.
	Codec string `json:"codec" mapstructure:"codec"`

	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`

	// StartupTimeout bounds the initial connection; the process exits when it expires.
	StartupTimeout time.Duration `json:"startup-timeout" mapstructure:"startup-timeout"`

	// WriteTimeout bounds writing a single outbound message.
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`

	// PingInterval is how often the WebSocket transport pings the peer.
	PingInterval time.Duration `json:"ping-interval" mapstructure:"ping-interval"`

	// IdleTimeout declares the connection lost when nothing was read for this long.
	IdleTimeout time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`

	// InsecureSkipVerify disables certificate verification for wss:// endpoints. Testing only.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`
}

// NewTransportOptions creates a TransportOptions object with default parameters.
func NewTransportOptions() *TransportOptions {
	return &TransportOptions{
		Endpoint:       "ws://127.0.0.1:8080",
		Codec:          CodecJSON,
		ConnectTimeout: 5 * time.Second,
		StartupTimeout: 30 * time.Second,
		WriteTimeout:   5 * time.Second,
		PingInterval:   15 * time.Second,
		IdleTimeout:    45 * time.Second,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *TransportOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if err := ValidateEndpoint(o.Endpoint, EndpointSchemes...); err != nil {
		errors = append(errors, err)
	}
	if o.Codec != CodecJSON && o.Codec != CodecCBOR {
		errors = append(errors, fmt.Errorf("--transport.codec: unsupported codec %q", o.Codec))
	}
	if o.ConnectTimeout <= 0 {
		errors = append(errors, errRange("transport.connect-timeout", o.ConnectTimeout))
	}
	if o.StartupTimeout < o.ConnectTimeout {
		errors = append(errors, fmt.Errorf("--transport.startup-timeout (%s) must not be shorter than --transport.connect-timeout (%s)",
			o.StartupTimeout, o.ConnectTimeout))
	}
	if o.PingInterval <= 0 || o.IdleTimeout <= o.PingInterval {
		errors = append(errors, fmt.Errorf("--transport.idle-timeout (%s) must be longer than --transport.ping-interval (%s)",
			o.IdleTimeout, o.PingInterval))
	}

	return errors
}

// AddFlags adds flags related to the transport to the specified FlagSet.
func (o *TransportOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Endpoint, "transport.endpoint", o.Endpoint, "The control-plane endpoint (ws://, wss://, tcp://, mqtt://, ssl://, tls://, mqtts://).")
	fs.StringVar(&o.Codec, "transport.codec", o.Codec, "The wire encoding of commands and results ('json' or 'cbor').")
	fs.DurationVar(&o.ConnectTimeout, "transport.connect-timeout", o.ConnectTimeout, "Timeout for a single connection attempt.")
	fs.DurationVar(&o.StartupTimeout, "transport.startup-timeout", o.StartupTimeout, "Timeout for the initial connection; the process exits when it expires.")
	fs.DurationVar(&o.WriteTimeout, "transport.write-timeout", o.WriteTimeout, "Timeout for writing one outbound message.")
	fs.DurationVar(&o.PingInterval, "transport.ping-interval", o.PingInterval, "Interval between WebSocket keepalive pings.")
	fs.DurationVar(&o.IdleTimeout, "transport.idle-timeout", o.IdleTimeout, "Declare the connection lost after this long without inbound traffic.")
	fs.BoolVar(&o.InsecureSkipVerify, "transport.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification of wss:// endpoints.")
}

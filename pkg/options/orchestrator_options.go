package options

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/clusterpilot/pkg/mqtt/topic"
)

var _ IOptions = (*OrchestratorOptions)(nil)

// OrchestratorOptions configures the control loop: capacities, deadlines and retry budgets.
type OrchestratorOptions struct {
	// DeliveryCapacity is the size of the channel between the transport and the control loop.
	DeliveryCapacity int `json:"delivery-capacity" mapstructure:"delivery-capacity"`

	// CommandTimeout is the deadline of every outstanding command.
	CommandTimeout time.Duration `json:"command-timeout" mapstructure:"command-timeout"`

	// TickInterval is the period of the timeout scan.
	TickInterval time.Duration `json:"tick-interval" mapstructure:"tick-interval"`

	// RetryLimit is the number of attempts a resource gets before it is reported as permanently failed.
	RetryLimit int `json:"retry-limit" mapstructure:"retry-limit"`

	// RetryDelay is the pause between a rejected command and its automatic re-issue.
	RetryDelay time.Duration `json:"retry-delay" mapstructure:"retry-delay"`

	// HealthCheckInterval is how often ready resources are health-checked. Zero disables it.
	HealthCheckInterval time.Duration `json:"health-check-interval" mapstructure:"health-check-interval"`

	ReconnectInitialDelay time.Duration `json:"reconnect-initial-delay" mapstructure:"reconnect-initial-delay"`
	ReconnectMaxDelay     time.Duration `json:"reconnect-max-delay" mapstructure:"reconnect-max-delay"`
	ReconnectFactor       float64       `json:"reconnect-factor" mapstructure:"reconnect-factor"`
	ReconnectAttempts     int           `json:"reconnect-attempts" mapstructure:"reconnect-attempts"`

	// ReconnectCooldown is the pause before a new round of reconnect attempts once a round is exhausted.
	ReconnectCooldown time.Duration `json:"reconnect-cooldown" mapstructure:"reconnect-cooldown"`

	// Resources are provisioned right after startup. Each entry is "id" or "id=replicas".
	Resources []string `json:"resources" mapstructure:"resources"`
}

// ResourceSpec is one statically configured resource.
type ResourceSpec struct {
	ID       string
	Replicas int
}

// NewOrchestratorOptions creates an OrchestratorOptions object with default parameters.
func NewOrchestratorOptions() *OrchestratorOptions {
	return &OrchestratorOptions{
		DeliveryCapacity:      16,
		CommandTimeout:        30 * time.Second,
		TickInterval:          time.Second,
		RetryLimit:            3,
		RetryDelay:            5 * time.Second,
		HealthCheckInterval:   time.Minute,
		ReconnectInitialDelay: 500 * time.Millisecond,
		ReconnectMaxDelay:     30 * time.Second,
		ReconnectFactor:       2.0,
		ReconnectAttempts:     8,
		ReconnectCooldown:     time.Minute,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *OrchestratorOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.DeliveryCapacity < 1 {
		errors = append(errors, errRange("orchestrator.delivery-capacity", o.DeliveryCapacity))
	}
	if o.CommandTimeout <= 0 {
		errors = append(errors, errRange("orchestrator.command-timeout", o.CommandTimeout))
	}
	if o.TickInterval <= 0 || o.TickInterval > o.CommandTimeout {
		errors = append(errors, fmt.Errorf("--orchestrator.tick-interval (%s) must be positive and not longer than --orchestrator.command-timeout (%s)",
			o.TickInterval, o.CommandTimeout))
	}
	if o.RetryLimit < 1 {
		errors = append(errors, errRange("orchestrator.retry-limit", o.RetryLimit))
	}
	if o.HealthCheckInterval < 0 {
		errors = append(errors, errRange("orchestrator.health-check-interval", o.HealthCheckInterval))
	}
	if o.ReconnectInitialDelay <= 0 || o.ReconnectMaxDelay < o.ReconnectInitialDelay {
		errors = append(errors, fmt.Errorf("--orchestrator.reconnect-max-delay (%s) must not be shorter than --orchestrator.reconnect-initial-delay (%s)",
			o.ReconnectMaxDelay, o.ReconnectInitialDelay))
	}
	if o.ReconnectFactor < 1 {
		errors = append(errors, errRange("orchestrator.reconnect-factor", o.ReconnectFactor))
	}
	if o.ReconnectAttempts < 1 {
		errors = append(errors, errRange("orchestrator.reconnect-attempts", o.ReconnectAttempts))
	}
	if _, err := o.ResourceSpecs(); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// ResourceSpecs parses Resources.
func (o *OrchestratorOptions) ResourceSpecs() ([]ResourceSpec, error) {
	specs := make([]ResourceSpec, 0, len(o.Resources))
	seen := make(map[string]struct{}, len(o.Resources))
	for _, entry := range o.Resources {
		id, replicas, hasReplicas := strings.Cut(strings.TrimSpace(entry), "=")
		if err := topic.ValidateSegment(id); err != nil {
			return nil, fmt.Errorf("--orchestrator.resources: invalid resource id in %q: %w", entry, err)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("--orchestrator.resources: duplicate resource id %q", id)
		}
		seen[id] = struct{}{}

		spec := ResourceSpec{ID: id}
		if hasReplicas {
			n, err := strconv.Atoi(replicas)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("--orchestrator.resources: invalid replica count in %q", entry)
			}
			spec.Replicas = n
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// AddFlags adds flags related to the control loop to the specified FlagSet.
func (o *OrchestratorOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.DeliveryCapacity, "orchestrator.delivery-capacity", o.DeliveryCapacity, "Capacity of the channel between the transport and the control loop.")
	fs.DurationVar(&o.CommandTimeout, "orchestrator.command-timeout", o.CommandTimeout, "Deadline of an outstanding command before it is retried.")
	fs.DurationVar(&o.TickInterval, "orchestrator.tick-interval", o.TickInterval, "Period of the outstanding-command timeout scan.")
	fs.IntVar(&o.RetryLimit, "orchestrator.retry-limit", o.RetryLimit, "Attempts per resource before it is reported as permanently failed.")
	fs.DurationVar(&o.RetryDelay, "orchestrator.retry-delay", o.RetryDelay, "Pause between a rejected command and its automatic re-issue.")
	fs.DurationVar(&o.HealthCheckInterval, "orchestrator.health-check-interval", o.HealthCheckInterval, "Health-check period for ready resources (0 disables).")
	fs.DurationVar(&o.ReconnectInitialDelay, "orchestrator.reconnect-initial-delay", o.ReconnectInitialDelay, "Delay before the first reconnect attempt.")
	fs.DurationVar(&o.ReconnectMaxDelay, "orchestrator.reconnect-max-delay", o.ReconnectMaxDelay, "Upper bound of the reconnect backoff delay.")
	fs.Float64Var(&o.ReconnectFactor, "orchestrator.reconnect-factor", o.ReconnectFactor, "Multiplier applied to the reconnect delay after each failed attempt.")
	fs.IntVar(&o.ReconnectAttempts, "orchestrator.reconnect-attempts", o.ReconnectAttempts, "Maximum reconnect attempts per round before a ConnectionError is reported. A round also ends once the delay reaches --orchestrator.reconnect-max-delay.")
	fs.DurationVar(&o.ReconnectCooldown, "orchestrator.reconnect-cooldown", o.ReconnectCooldown, "Pause before a new round of reconnect attempts.")
	fs.StringSliceVar(&o.Resources, "orchestrator.resources", o.Resources, "Resources to provision at startup, as 'id' or 'id=replicas'.")
}

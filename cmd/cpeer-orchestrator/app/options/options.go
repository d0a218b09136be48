package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator"
	"github.com/autopeer-io/clusterpilot/pkg/app"
	"github.com/autopeer-io/clusterpilot/pkg/log"
	"github.com/autopeer-io/clusterpilot/pkg/options"
)

type OrchestratorOptions struct {
	TransportOptions    *options.TransportOptions    `json:"transport" mapstructure:"transport"`
	MqttOptions         *options.MqttOptions         `json:"mqtt" mapstructure:"mqtt"`
	OrchestratorOptions *options.OrchestratorOptions `json:"orchestrator" mapstructure:"orchestrator"`
	HttpOptions         *options.HttpOptions         `json:"http" mapstructure:"http"`
	Log                 *log.Options                 `json:"log" mapstructure:"log"`
}

var (
	_ app.NamedFlagSetOptions = (*OrchestratorOptions)(nil)
	_ app.LoggerOptions       = (*OrchestratorOptions)(nil)
)

func NewOrchestratorOptions() *OrchestratorOptions {
	o := &OrchestratorOptions{
		TransportOptions:    options.NewTransportOptions(),
		MqttOptions:         options.NewMqttOptions(),
		OrchestratorOptions: options.NewOrchestratorOptions(),
		HttpOptions:         options.NewHttpOptions(),
		Log:                 log.NewOptions(),
	}

	return o
}

func (o *OrchestratorOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.TransportOptions.AddFlags(fss.FlagSet("transport"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.OrchestratorOptions.AddFlags(fss.FlagSet("orchestrator"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *OrchestratorOptions) Complete() error {
	if o.Log.Name == "" {
		o.Log.Name = "cpeer-orchestrator"
	}
	return nil
}

func (o *OrchestratorOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.TransportOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.OrchestratorOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *OrchestratorOptions) LogOptions() *log.Options {
	return o.Log
}

func (o *OrchestratorOptions) Config() (*orchestrator.Config, error) {
	return &orchestrator.Config{
		TransportOptions:    o.TransportOptions,
		MqttOptions:         o.MqttOptions,
		OrchestratorOptions: o.OrchestratorOptions,
		HttpOptions:         o.HttpOptions,
	}, nil
}

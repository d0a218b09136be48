package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/clusterpilot/cmd/cpeer-orchestrator/app/options"
	"github.com/autopeer-io/clusterpilot/pkg/app"
)

const (
	commandName = "cpeer-orchestrator"
	commandDesc = `The Clusterpilot orchestrator keeps one connection to the cluster control
plane, issues provision, scale, terminate and health-check commands for the
managed resources and tracks each resource through its lifecycle as results
come back. Lost connections are re-established with backoff and every
command still in flight is re-issued.`
)

func NewApp() *app.App {
	opts := options.NewOrchestratorOptions()
	application := app.NewApp(
		commandName,
		"Launch a Clusterpilot orchestrator",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithWatchConfig(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.OrchestratorOptions) app.RunFunc {
	return func() error {
		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		pilot, err := cfg.NewPilot()
		if err != nil {
			return fmt.Errorf("failed to create orchestrator: %w", err)
		}

		return pilot.Run(ctx)
	}
}

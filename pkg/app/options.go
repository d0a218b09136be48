package app

import (
	"fmt"

	"github.com/spf13/cobra"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/clusterpilot/pkg/log"
)

// NamedFlagSetOptions is implemented by the option struct of every command.
type NamedFlagSetOptions interface {
	// Flags returns the flag sets of the command, grouped by section.
	Flags() cliflag.NamedFlagSets

	// Complete fills in fields derived from other fields.
	Complete() error

	// Validate checks the options once flags and config file are merged.
	Validate() error
}

// LoggerOptions is implemented by option structs carrying logger settings.
// The logger is initialized from them before the run function is called.
type LoggerOptions interface {
	LogOptions() *log.Options
}

// RunFunc is the entry point of the command once options are settled.
type RunFunc func() error

// Option configures an App.
type Option func(*App)

// WithOptions sets the option struct bound to flags and the config file.
func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) {
		a.options = opts
	}
}

// WithRunFunc sets the function run by the command.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) {
		a.runFunc = run
	}
}

// WithDescription sets the long description shown by --help.
func WithDescription(desc string) Option {
	return func(a *App) {
		a.description = desc
	}
}

// WithDefaultValidArgs rejects positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

// WithNoConfig disables the --config flag and config file lookup.
func WithNoConfig() Option {
	return func(a *App) {
		a.noConfig = true
	}
}

// WithSilence suppresses the startup banner and the settings table.
func WithSilence() Option {
	return func(a *App) {
		a.silence = true
	}
}

// WithWatchConfig logs changes to the config file while the command runs.
func WithWatchConfig() Option {
	return func(a *App) {
		a.watch = true
	}
}

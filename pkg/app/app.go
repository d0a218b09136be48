package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/term"

	"github.com/autopeer-io/clusterpilot/pkg/log"
)

// App is a cobra command whose flags, config file and environment are
// merged into one option struct before RunFunc is called.
type App struct {
	name        string
	shortDesc   string
	description string
	options     NamedFlagSetOptions
	runFunc     RunFunc
	args        cobra.PositionalArgs
	noConfig    bool
	silence     bool
	watch       bool

	configFile string
	viper      *viper.Viper
	cmd        *cobra.Command
}

// NewApp creates an App named name.
func NewApp(name string, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
		viper:     viper.New(),
	}
	for _, o := range opts {
		o(a)
	}

	a.buildCommand()
	return a
}

// Command returns the underlying cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the command and exits the process on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          a.args,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run()
		},
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true

	var fss cliflag.NamedFlagSets
	if a.options != nil {
		fss = a.options.Flags()
	}
	if !a.noConfig {
		fss.FlagSet("global").StringVarP(&a.configFile, "config", "c", "",
			fmt.Sprintf("Read configuration from the specified file (defaults to ./%s.yaml, $HOME/.%s/ or /etc/%s/).", a.name, a.name, a.name))
	}
	for _, f := range fss.FlagSets {
		cmd.Flags().AddFlagSet(f)
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, fss, cols)

	a.cmd = cmd
}

func (a *App) run() error {
	if !a.noConfig {
		if err := a.loadConfig(); err != nil {
			return err
		}
	}

	if a.options != nil {
		if err := a.applyOptions(); err != nil {
			return err
		}
	}

	if lo, ok := a.options.(LoggerOptions); ok {
		log.Init(lo.LogOptions())
	}
	defer func() { _ = log.Sync() }()

	undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug(fmt.Sprintf(format, args...))
	}))
	if err != nil {
		log.Warn("Failed to set GOMAXPROCS", "err", err)
	}
	defer undo()

	if !a.silence {
		log.Info("Starting application", "name", a.name, "config", a.viper.ConfigFileUsed())
		fmt.Fprintln(a.cmd.OutOrStdout(), a.settingsTable())
	}

	if a.watch && a.viper.ConfigFileUsed() != "" {
		a.watchConfig()
	}

	if a.runFunc == nil {
		return nil
	}
	return a.runFunc()
}

// applyOptions merges flags, config file and environment into the options.
func (a *App) applyOptions() error {
	if err := a.viper.BindPFlags(a.cmd.Flags()); err != nil {
		return err
	}
	if err := a.viper.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := a.options.Complete(); err != nil {
		return err
	}
	return a.options.Validate()
}

package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/gosuri/uitable"
	"github.com/spf13/viper"

	"github.com/autopeer-io/clusterpilot/pkg/log"
)

// secretKeys are masked in the settings table.
var secretKeys = []string{"password", "secret", "token"}

// loadConfig reads the config file, if any, and binds the environment.
// Environment variables are named after the flag: --transport.endpoint is
// read from CPEER_ORCHESTRATOR_TRANSPORT_ENDPOINT for cpeer-orchestrator.
func (a *App) loadConfig() error {
	v := a.viper

	if a.configFile != "" {
		v.SetConfigFile(a.configFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+a.name))
		}
		v.AddConfigPath(filepath.Join("/etc", a.name))
		v.SetConfigName(a.name)
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(envPrefix(a.name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read configuration file(%s): %w", a.configFile, err)
		}
	}
	return nil
}

// watchConfig reports config file edits. Options are bound once at startup,
// so a change takes effect on the next restart.
func (a *App) watchConfig() {
	a.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		log.Warn("Configuration file changed, restart to apply", "file", e.Name, "op", e.Op.String())
	})
	a.viper.WatchConfig()
}

// settingsTable renders every effective setting, secrets masked.
func (a *App) settingsTable() *uitable.Table {
	keys := a.viper.AllKeys()
	sort.Strings(keys)

	table := uitable.New()
	table.MaxColWidth = 80
	table.Separator = "  "
	table.AddRow("SETTING", "VALUE")
	for _, key := range keys {
		table.AddRow(key, displayValue(key, a.viper.Get(key)))
	}
	return table
}

func displayValue(key string, value any) string {
	s := fmt.Sprint(value)
	if s == "" {
		return s
	}
	for _, secret := range secretKeys {
		if strings.Contains(key, secret) {
			return "******"
		}
	}
	return s
}

func envPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

package app

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/clusterpilot/pkg/log"
	"github.com/autopeer-io/clusterpilot/pkg/options"
)

type testOptions struct {
	Http *options.HttpOptions `mapstructure:"http"`
	Log  *log.Options         `mapstructure:"log"`

	completed bool
}

func newTestOptions() *testOptions {
	return &testOptions{Http: options.NewHttpOptions(), Log: log.NewOptions()}
}

func (o *testOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.Http.AddFlags(fss.FlagSet("http"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error {
	return utilerrors.NewAggregate(o.Http.Validate())
}

func (o *testOptions) LogOptions() *log.Options { return o.Log }

func execute(t *testing.T, opts *testOptions, args ...string) (*bytes.Buffer, bool, error) {
	t.Helper()
	ran := false
	a := NewApp("testapp", "A test application",
		WithOptions(opts),
		WithDefaultValidArgs(),
		WithRunFunc(func() error {
			ran = true
			return nil
		}),
	)

	out := &bytes.Buffer{}
	cmd := a.Command()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out, ran, err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "testapp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFlagsAreApplied(t *testing.T) {
	opts := newTestOptions()
	out, ran, err := execute(t, opts, "--http.addr=127.0.0.1:9999", "--log.level=debug")
	require.NoError(t, err)

	assert.True(t, ran)
	assert.True(t, opts.completed)
	assert.Equal(t, "127.0.0.1:9999", opts.Http.Addr)
	assert.Equal(t, "debug", opts.Log.Level)
	assert.Contains(t, out.String(), "http.addr")
}

func TestConfigFileAndPrecedence(t *testing.T) {
	path := writeConfig(t, "http:\n  addr: 127.0.0.1:7000\n  timeout: 3s\n")

	opts := newTestOptions()
	_, _, err := execute(t, opts, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", opts.Http.Addr)
	assert.Equal(t, 3*time.Second, opts.Http.Timeout)

	opts = newTestOptions()
	_, _, err = execute(t, opts, "--config", path, "--http.addr=127.0.0.1:7001")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7001", opts.Http.Addr)
	assert.Equal(t, 3*time.Second, opts.Http.Timeout)
}

func TestEnvironmentOverridesConfigFile(t *testing.T) {
	path := writeConfig(t, "http:\n  addr: 127.0.0.1:7000\n")
	t.Setenv("TESTAPP_HTTP_ADDR", "127.0.0.1:7100")

	opts := newTestOptions()
	_, _, err := execute(t, opts, "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7100", opts.Http.Addr)
}

func TestInvalidInvocations(t *testing.T) {
	_, ran, err := execute(t, newTestOptions(), "--http.addr=bogus")
	assert.Error(t, err)
	assert.False(t, ran)

	_, ran, err = execute(t, newTestOptions(), "extra")
	assert.Error(t, err)
	assert.False(t, ran)

	_, ran, err = execute(t, newTestOptions(), "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.False(t, ran)
}

func TestDisplayValueMasksSecrets(t *testing.T) {
	assert.Equal(t, "******", displayValue("mqtt.password", "hunter2"))
	assert.Equal(t, "", displayValue("mqtt.password", ""))
	assert.Equal(t, "ws://127.0.0.1:8080", displayValue("transport.endpoint", "ws://127.0.0.1:8080"))
	assert.Equal(t, "CPEER_ORCHESTRATOR", envPrefix("cpeer-orchestrator"))
}

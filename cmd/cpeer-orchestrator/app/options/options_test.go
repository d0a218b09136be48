package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	o := NewOrchestratorOptions()
	require.NoError(t, o.Complete())
	assert.NoError(t, o.Validate())
	assert.Equal(t, "cpeer-orchestrator", o.Log.Name)
	assert.Equal(t, 16, o.OrchestratorOptions.DeliveryCapacity)

	cfg, err := o.Config()
	require.NoError(t, err)
	assert.Same(t, o.TransportOptions, cfg.TransportOptions)
}

func TestFlagSections(t *testing.T) {
	fss := NewOrchestratorOptions().Flags()
	assert.Equal(t, []string{"transport", "mqtt", "orchestrator", "http", "log"}, fss.Order)
	assert.NotNil(t, fss.FlagSet("transport").Lookup("transport.endpoint"))
	assert.NotNil(t, fss.FlagSet("orchestrator").Lookup("orchestrator.delivery-capacity"))
}

func TestValidateAggregatesErrors(t *testing.T) {
	o := NewOrchestratorOptions()
	o.TransportOptions.Endpoint = "gopher://nowhere"
	o.OrchestratorOptions.RetryLimit = 0

	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gopher")
	assert.Contains(t, err.Error(), "retry-limit")
}

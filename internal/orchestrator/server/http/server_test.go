package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
)

type fakeSource struct {
	connected bool
	resources []model.ResourceStatus

	// calls records "op:id:arg" per command; err is returned by the next one.
	calls []string
	err   error
}

func (f *fakeSource) record(op, id, arg string) (string, error) {
	f.calls = append(f.calls, op+":"+id+":"+arg)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("c-%d", len(f.calls)), nil
}

func (f *fakeSource) Provision(ctx context.Context, id string, payload model.Payload) (string, error) {
	return f.record("provision", id, payload["image"])
}

func (f *fakeSource) Scale(ctx context.Context, id string, replicas int) (string, error) {
	return f.record("scale", id, fmt.Sprint(replicas))
}

func (f *fakeSource) Terminate(ctx context.Context, id string) (string, error) {
	return f.record("terminate", id, "")
}

func (f *fakeSource) HealthCheck(ctx context.Context, id string) (string, error) {
	return f.record("health-check", id, "")
}

func (f *fakeSource) Connected() bool { return f.connected }

func (f *fakeSource) Resources(ctx context.Context) ([]model.ResourceStatus, error) {
	return f.resources, nil
}

func (f *fakeSource) Resource(ctx context.Context, id string) (model.ResourceStatus, error) {
	for _, r := range f.resources {
		if r.ID == id {
			return r, nil
		}
	}
	return model.ResourceStatus{}, fmt.Errorf("%w: %s", model.ErrUnknownResource, id)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestProbes(t *testing.T) {
	src := &fakeSource{}
	h := NewHandler(src, time.Second)

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/readyz").Code)

	src.connected = true
	rec := get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestResourceEndpoints(t *testing.T) {
	src := &fakeSource{resources: []model.ResourceStatus{
		{ID: "node-1", State: model.ResourceStateReady},
		{ID: "node-2", State: model.ResourceStateProvisioning, Outstanding: []string{"c-1"}},
	}}
	h := NewHandler(src, time.Second)

	rec := get(t, h, "/debug/resources")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var all []model.ResourceStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, []string{"c-1"}, all[1].Outstanding)

	rec = get(t, h, "/debug/resources/node-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var one model.ResourceStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, model.ResourceStateReady, one.State)

	rec = get(t, h, "/debug/resources/node-9")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "node-9")
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, NewHandler(&fakeSource{}, 0), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "clusterpilot_")
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler(&fakeSource{}, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/debug/resources", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestCommandEndpoints(t *testing.T) {
	src := &fakeSource{connected: true}
	h := NewHandler(src, time.Second)

	tests := []struct {
		path string
		body string
		call string
	}{
		{"/resources/node-1/provision", "", "provision:node-1:"},
		{"/resources/node-1/provision", `{"image":"v2"}`, "provision:node-1:v2"},
		{"/resources/node-1/scale", `{"replicas":0}`, "scale:node-1:0"},
		{"/resources/node-1/scale", `{"replicas":4}`, "scale:node-1:4"},
		{"/resources/node-1/health-check", "", "health-check:node-1:"},
		{"/resources/node-1/terminate", "", "terminate:node-1:"},
	}
	for i, tt := range tests {
		rec := post(t, h, tt.path, tt.body)
		require.Equal(t, http.StatusAccepted, rec.Code, tt.path)

		var got accepted
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "node-1", got.ResourceID)
		assert.Equal(t, fmt.Sprintf("c-%d", i+1), got.CorrelationID)
		assert.Equal(t, tt.call, src.calls[i])
	}
}

func TestCommandEndpointErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		err  error
		code int
	}{
		{"unknown resource", "/resources/node-9/terminate", "", fmt.Errorf("%w: node-9", model.ErrUnknownResource), http.StatusNotFound},
		{"invalid transition", "/resources/node-1/provision", "", fmt.Errorf("%w: provision from Ready", model.ErrInvalidTransition), http.StatusConflict},
		{"invalid id", "/resources/node+1/provision", "", fmt.Errorf("%w: node+1", model.ErrInvalidResourceID), http.StatusBadRequest},
		{"missing replicas", "/resources/node-1/scale", "", nil, http.StatusBadRequest},
		{"negative replicas", "/resources/node-1/scale", `{"replicas":-1}`, nil, http.StatusBadRequest},
		{"malformed body", "/resources/node-1/provision", `{"image":`, nil, http.StatusBadRequest},
		{"unknown field", "/resources/node-1/scale", `{"count":2}`, nil, http.StatusBadRequest},
		{"stopped", "/resources/node-1/health-check", "", context.Canceled, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{err: tt.err}
			rec := post(t, NewHandler(src, time.Second), tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
			if tt.err == nil {
				assert.Empty(t, src.calls)
			}
		})
	}

	rec := httptest.NewRecorder()
	NewHandler(&fakeSource{}, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/resources/node-1/scale", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

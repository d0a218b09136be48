package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
)

func TestJSONEncodeCommand(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cmd := &model.Command{
		CorrelationID: "c-1",
		ResourceID:    "node-1",
		Kind:          model.CommandKindScale,
		Payload:       model.ScalePayload(3),
		IssuedAt:      issued,
	}

	data, err := jsonCodec{}.EncodeCommand(cmd)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "scale", doc["kind"])
	assert.Equal(t, "c-1", doc["correlationId"])
	assert.Equal(t, "node-1", doc["resourceId"])
	assert.Equal(t, map[string]any{"replicas": "3"}, doc["payload"])
	assert.Equal(t, "2026-03-01T12:00:00Z", doc["issuedAt"])
}

func TestJSONEncodeRejectsUnknownKind(t *testing.T) {
	_, err := jsonCodec{}.EncodeCommand(&model.Command{ResourceID: "n", Kind: "reboot"})
	assert.Error(t, err)
}

func TestJSONDecodeResult(t *testing.T) {
	r, err := jsonCodec{}.DecodeResult([]byte(`{"correlationId":"c-1","resourceId":"node-1","status":"failure","error":"quota","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, "c-1", r.CorrelationID)
	assert.Equal(t, "node-1", r.ResourceID)
	assert.Equal(t, model.ResultStatusFailure, r.Status)
	assert.Equal(t, "quota", r.Error)
	assert.True(t, r.Timestamp.IsZero())

	r, err = jsonCodec{}.DecodeResult([]byte(`{"resourceId":"node-1","status":"success","timestamp":"2026-03-01T12:00:00Z"}`))
	require.NoError(t, err)
	assert.True(t, r.Unsolicited())
	assert.Equal(t, 2026, r.Timestamp.Year())
}

func TestJSONDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `not json`},
		{"array", `[1,2]`},
		{"null", `null`},
		{"missing resource", `{"correlationId":"c","status":"success"}`},
		{"unknown status", `{"resourceId":"n","status":"done"}`},
		{"missing status", `{"resourceId":"n"}`},
		{"wrong type", `{"resourceId":7,"status":"success"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jsonCodec{}.DecodeResult([]byte(tt.raw))
			var de *model.DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.raw, string(de.Raw))
		})
	}
}

func TestDecodeErrorTruncatesRaw(t *testing.T) {
	raw := make([]byte, 4*maxRawBytes)
	for i := range raw {
		raw[i] = 'x'
	}
	_, err := jsonCodec{}.DecodeResult(raw)
	var de *model.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Len(t, de.Raw, maxRawBytes)
}

func TestCBORCodec(t *testing.T) {
	c, err := NewCodec(CodecCBOR)
	require.NoError(t, err)
	assert.True(t, c.Binary())

	data, err := c.EncodeCommand(&model.Command{CorrelationID: "c-2", ResourceID: "cluster-a", Kind: model.CommandKindTerminate})
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, cbor.Unmarshal(data, &doc))
	assert.Equal(t, "terminate", doc["kind"])
	assert.Equal(t, "cluster-a", doc["resourceId"])
	assert.NotContains(t, doc, "payload")

	in, err := cbor.Marshal(map[string]any{
		"correlationId": "c-2",
		"resourceId":    "cluster-a",
		"status":        "in-progress",
		"unknown":       42,
	})
	require.NoError(t, err)
	r, err := c.DecodeResult(in)
	require.NoError(t, err)
	assert.Equal(t, model.ResultStatusInProgress, r.Status)

	_, err = c.DecodeResult([]byte{0xff, 0x00})
	var de *model.DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestNewCodec(t *testing.T) {
	c, err := NewCodec("")
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, c.Name())

	_, err = NewCodec("xml")
	assert.Error(t, err)
}

package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
)

const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// maxRawBytes bounds the copy of an undecodable message kept for diagnostics.
const maxRawBytes = 256

// Codec translates between domain types and wire messages.
type Codec interface {
	Name() string

	// Binary reports whether encoded messages are binary rather than UTF-8 text.
	Binary() bool

	EncodeCommand(cmd *model.Command) ([]byte, error)

	// DecodeResult fails with a *model.DecodeError.
	DecodeResult(data []byte) (*model.CommandResult, error)
}

// NewCodec returns the codec registered under name.
func NewCodec(name string) (Codec, error) {
	switch name {
	case CodecJSON, "":
		return jsonCodec{}, nil
	case CodecCBOR:
		return newCBORCodec()
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// wireCommand is the command document: {kind, correlationId?, resourceId, payload?, issuedAt?}.
type wireCommand struct {
	Kind          model.CommandKind `json:"kind" cbor:"kind"`
	CorrelationID string            `json:"correlationId,omitempty" cbor:"correlationId,omitempty"`
	ResourceID    string            `json:"resourceId" cbor:"resourceId"`
	Payload       map[string]string `json:"payload,omitempty" cbor:"payload,omitempty"`
	IssuedAt      *time.Time        `json:"issuedAt,omitempty" cbor:"issuedAt,omitempty"`
}

// wireResult is the result document: {correlationId?, resourceId, status, error?, timestamp?}.
type wireResult struct {
	CorrelationID string             `json:"correlationId,omitempty" cbor:"correlationId,omitempty"`
	ResourceID    string             `json:"resourceId" cbor:"resourceId"`
	Status        model.ResultStatus `json:"status" cbor:"status"`
	Error         string             `json:"error,omitempty" cbor:"error,omitempty"`
	Timestamp     *time.Time         `json:"timestamp,omitempty" cbor:"timestamp,omitempty"`
}

func toWireCommand(cmd *model.Command) (*wireCommand, error) {
	if cmd == nil {
		return nil, errors.New("nil command")
	}
	if !cmd.Kind.Valid() {
		return nil, fmt.Errorf("unknown command kind %q", cmd.Kind)
	}
	w := &wireCommand{
		Kind:          cmd.Kind,
		CorrelationID: cmd.CorrelationID,
		ResourceID:    cmd.ResourceID,
		Payload:       cmd.Payload,
	}
	if !cmd.IssuedAt.IsZero() {
		issued := cmd.IssuedAt.UTC()
		w.IssuedAt = &issued
	}
	return w, nil
}

func fromWireResult(w *wireResult, raw []byte) (*model.CommandResult, error) {
	r := &model.CommandResult{
		CorrelationID: w.CorrelationID,
		ResourceID:    w.ResourceID,
		Status:        w.Status,
		Error:         w.Error,
	}
	if w.Timestamp != nil {
		r.Timestamp = *w.Timestamp
	}
	if err := r.Validate(); err != nil {
		return nil, decodeError(raw, err)
	}
	return r, nil
}

func decodeError(raw []byte, err error) *model.DecodeError {
	n := len(raw)
	if n > maxRawBytes {
		n = maxRawBytes
	}
	return &model.DecodeError{Raw: append([]byte(nil), raw[:n]...), Err: err}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecJSON }

func (jsonCodec) Binary() bool { return false }

func (jsonCodec) EncodeCommand(cmd *model.Command) ([]byte, error) {
	w, err := toWireCommand(cmd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (jsonCodec) DecodeResult(data []byte) (*model.CommandResult, error) {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, decodeError(data, err)
	}
	return fromWireResult(&w, data)
}

// cborCodec uses Core Deterministic Encoding and ignores unknown fields.
type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() (*cborCodec, error) {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	enc, err := encOptions.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}

	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decoder: %w", err)
	}

	return &cborCodec{enc: enc, dec: dec}, nil
}

func (c *cborCodec) Name() string { return CodecCBOR }

func (c *cborCodec) Binary() bool { return true }

func (c *cborCodec) EncodeCommand(cmd *model.Command) ([]byte, error) {
	w, err := toWireCommand(cmd)
	if err != nil {
		return nil, err
	}
	return c.enc.Marshal(w)
}

func (c *cborCodec) DecodeResult(data []byte) (*model.CommandResult, error) {
	var w wireResult
	if err := c.dec.Unmarshal(data, &w); err != nil {
		return nil, decodeError(data, err)
	}
	return fromWireResult(&w, data)
}

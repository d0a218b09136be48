package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core"
	"github.com/autopeer-io/clusterpilot/internal/orchestrator/core/model"
	"github.com/autopeer-io/clusterpilot/pkg/log"
)

// WebSocket is a Transport carrying one message per frame: text frames for
// JSON, binary frames for CBOR.
type WebSocket struct {
	opts     *Options
	codec    Codec
	out      chan<- model.Delivery
	observer core.Observer
	clock    clock.WithTicker
	dialer   *websocket.Dialer

	connectMu sync.Mutex

	mu      sync.Mutex
	session *wsSession
	epoch   uint64

	// writeMu serializes data frames; the read loop never takes it.
	writeMu sync.Mutex
}

type wsSession struct {
	conn *websocket.Conn
	in   *inbound

	// done is closed when the session ends for any reason.
	done     chan struct{}
	doneOnce sync.Once
}

func (s *wsSession) finish() {
	s.doneOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

var _ core.Transport = (*WebSocket)(nil)

// NewWebSocket creates a WebSocket transport delivering into out.
func NewWebSocket(opts *Options, codec Codec, out chan<- model.Delivery, obs core.Observer, clk clock.WithTicker) *WebSocket {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = opts.ConnectTimeout
	if opts.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &WebSocket{
		opts:     opts,
		codec:    codec,
		out:      out,
		observer: obs,
		clock:    clk,
		dialer:   &dialer,
	}
}

func (t *WebSocket) Connect(ctx context.Context) (model.ConnectionHandle, error) {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()

	if s := t.current(); s != nil {
		return model.ConnectionHandle{}, &model.ConnectionError{Endpoint: t.opts.Endpoint, Err: errors.New("already connected")}
	}

	ctx, cancel := context.WithTimeout(ctx, t.opts.ConnectTimeout)
	defer cancel()

	conn, resp, err := t.dialer.DialContext(ctx, t.opts.Endpoint, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		return model.ConnectionHandle{}, &model.ConnectionError{Endpoint: t.opts.Endpoint, Err: err}
	}

	t.mu.Lock()
	t.epoch++
	s := &wsSession{
		conn: conn,
		in:   newInbound(t.epoch, t.out, t.codec, t.observer, t.clock),
		done: make(chan struct{}),
	}
	t.session = s
	handle := model.ConnectionHandle{Epoch: t.epoch, Endpoint: t.opts.Endpoint, ConnectedAt: t.clock.Now()}
	t.mu.Unlock()

	_ = conn.SetReadDeadline(t.clock.Now().Add(t.opts.IdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(t.clock.Now().Add(t.opts.IdleTimeout))
	})

	go t.readLoop(s)
	go t.keepAlive(s)

	log.Info("WebSocket connection established", "endpoint", t.opts.Endpoint, "epoch", handle.Epoch)
	return handle, nil
}

func (t *WebSocket) Send(ctx context.Context, cmd *model.Command) error {
	s := t.current()
	if s == nil {
		return &model.SendError{CorrelationID: cmd.CorrelationID, ResourceID: cmd.ResourceID, Err: model.ErrNotConnected}
	}

	data, err := t.codec.EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("encode command %s: %w", cmd.CorrelationID, err)
	}

	messageType := websocket.TextMessage
	if t.codec.Binary() {
		messageType = websocket.BinaryMessage
	}

	deadline := t.clock.Now().Add(t.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		// Closing the socket makes the read loop report the loss.
		_ = s.conn.Close()
		return &model.SendError{CorrelationID: cmd.CorrelationID, ResourceID: cmd.ResourceID, Err: err}
	}
	return nil
}

func (t *WebSocket) Close(ctx context.Context) error {
	t.mu.Lock()
	s := t.session
	t.session = nil
	t.mu.Unlock()

	if s == nil {
		return nil
	}
	s.in.close()

	deadline := t.clock.Now().Add(t.opts.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	s.finish()

	log.Info("WebSocket connection closed", "endpoint", t.opts.Endpoint)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close websocket: %w", err)
	}
	return nil
}

// Epoch returns the epoch of the most recent successful Connect.
func (t *WebSocket) Epoch() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epoch
}

func (t *WebSocket) current() *wsSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

// end tears s down after a read or keepalive failure and signals the loss.
func (t *WebSocket) end(s *wsSession, err error) {
	t.mu.Lock()
	if t.session == s {
		t.session = nil
	}
	t.mu.Unlock()

	s.finish()
	if !s.in.isClosed() {
		log.Warn("WebSocket connection lost", "endpoint", t.opts.Endpoint, "epoch", s.in.epoch, "err", err)
	}
	s.in.lost(err)
}

func (t *WebSocket) readLoop(s *wsSession) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			t.end(s, err)
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		if !s.in.deliver(data) {
			return
		}

		// Time spent blocked on a full channel does not count as idle.
		_ = s.conn.SetReadDeadline(t.clock.Now().Add(t.opts.IdleTimeout))
	}
}

func (t *WebSocket) keepAlive(s *wsSession) {
	if t.opts.PingInterval <= 0 {
		return
	}
	ticker := t.clock.NewTicker(t.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C():
			deadline := t.clock.Now().Add(t.opts.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				t.end(s, fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

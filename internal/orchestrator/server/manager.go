package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/clusterpilot/pkg/log"
)

// Server defines the common interface for everything the manager runs.
type Server interface {
	Start(ctx context.Context) error
}

// ServerFunc adapts a function to Server.
type ServerFunc func(ctx context.Context) error

func (f ServerFunc) Start(ctx context.Context) error { return f(ctx) }

// Manager manages the lifecycle of the control loop and its servers.
type Manager struct {
	servers []Server
}

// NewManager creates a manager running servers. Nil entries are skipped.
func NewManager(servers ...Server) *Manager {
	m := &Manager{}
	for _, s := range servers {
		if s != nil {
			m.servers = append(m.servers, s)
		}
	}
	return m
}

// Start launches all servers in parallel and waits for termination. The
// first failure cancels the others.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, s := range m.servers {
		g.Go(func() error {
			return s.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}

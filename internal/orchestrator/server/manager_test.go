package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerStopsOnFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	stopped := make(chan struct{})

	m := NewManager(
		ServerFunc(func(ctx context.Context) error { return boom }),
		ServerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return nil
		}),
		nil,
	)
	require.Len(t, m.servers, 2)

	assert.ErrorIs(t, m.Start(context.Background()), boom)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("sibling server was not cancelled")
	}
}

func TestManagerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(ServerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}))

	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("manager did not stop")
	}
}

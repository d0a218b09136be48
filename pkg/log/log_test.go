package log

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	named := NewNopLogger().WithName("orchestrator")
	ctx := NewContext(context.Background(), named)

	if got := FromContext(ctx); got != named {
		t.Fatalf("FromContext returned a different logger")
	}
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	if got := FromContext(context.Background()); got != Std() {
		t.Fatalf("expected the global logger when ctx carries none")
	}
}

func TestNewLoggerDefaults(t *testing.T) {
	opts := NewOptions()
	opts.Level = "not-a-level"
	opts.OutputPaths = []string{"stderr"}

	l := NewLogger(opts)
	l.Info("hello", "key", "value")
	l.WithValues("resource", "node-1").Debug("suppressed at info level")
}

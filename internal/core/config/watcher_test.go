package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "reminders:\n  grace_minutes: 10\n")

	loaded := make(chan *Config, 4)
	w, err := NewWatcher(path, "/tmp/chime", zerolog.Nop(), func(c *Config) { loaded <- c })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("reminders:\n  grace_minutes: 20\n"), 0o644))

	select {
	case cfg := <-loaded:
		assert.Equal(t, 20, cfg.Reminders.GraceMinutes)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}

func TestWatcher_IgnoresInvalidConfig(t *testing.T) {
	path := writeConfig(t, "reminders:\n  grace_minutes: 10\n")

	loaded := make(chan *Config, 4)
	w, err := NewWatcher(path, "/tmp/chime", zerolog.Nop(), func(c *Config) { loaded <- c })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("reminders: ["), 0o644))

	select {
	case <-loaded:
		t.Fatal("invalid config should not be delivered")
	case <-time.After(500 * time.Millisecond):
	}
}

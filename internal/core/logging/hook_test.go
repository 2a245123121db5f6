package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHook_Run(t *testing.T) {
	tests := []struct {
		name      string
		setupCtx  func() context.Context
		wantKeys  map[string]string
		wantEmpty []string
	}{
		{
			name: "all keys",
			setupCtx: func() context.Context {
				ctx := context.Background()
				ctx = WithJobID(ctx, "job-1")
				ctx = WithJobKey(ctx, "process-alarms")
				ctx = WithAlarmID(ctx, "alarm-9")
				return ctx
			},
			wantKeys: map[string]string{
				"job_id":   "job-1",
				"job_key":  "process-alarms",
				"alarm_id": "alarm-9",
			},
		},
		{
			name: "only job key",
			setupCtx: func() context.Context {
				return WithJobKey(context.Background(), "boot-recovery")
			},
			wantKeys:  map[string]string{"job_key": "boot-recovery"},
			wantEmpty: []string{"job_id", "alarm_id"},
		},
		{
			name:      "no context values",
			setupCtx:  context.Background,
			wantEmpty: []string{"job_id", "job_key", "alarm_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			logger := zerolog.New(&buf).Hook(ContextHook{})
			logger.Info().Ctx(tt.setupCtx()).Msg("test")

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

			for k, v := range tt.wantKeys {
				assert.Equal(t, v, entry[k], "key %s", k)
			}
			for _, k := range tt.wantEmpty {
				assert.NotContains(t, entry, k)
			}
		})
	}
}

func TestGetters_Missing(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetJobID(ctx))
	assert.Empty(t, GetJobKey(ctx))
	assert.Empty(t, GetAlarmID(ctx))
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(zerolog.New(&buf), "wake")
	log.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "wake", entry[ComponentKey])
	assert.Equal(t, "hello", entry["message"])
}

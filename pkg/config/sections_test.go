package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerSection_SetData(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]any
		wantErr bool
		check   func(t *testing.T, s ServerSettings)
	}{
		{
			name: "yaml ints and duration strings",
			data: map[string]any{"port": 9300, "request_timeout": "5s", "max_connections": 2},
			check: func(t *testing.T, s ServerSettings) {
				assert.Equal(t, 9300, s.Port)
				assert.Equal(t, 5*time.Second, s.RequestTimeout)
				assert.Equal(t, 2, s.MaxConnections)
			},
		},
		{
			name: "json numbers and millisecond durations",
			data: map[string]any{"port": float64(9301), "request_timeout": float64(1500)},
			check: func(t *testing.T, s ServerSettings) {
				assert.Equal(t, 9301, s.Port)
				assert.Equal(t, 1500*time.Millisecond, s.RequestTimeout)
			},
		},
		{name: "bad host type", data: map[string]any{"host": 1}, wantErr: true},
		{name: "fractional port", data: map[string]any{"port": 1.5}, wantErr: true},
		{name: "bad duration", data: map[string]any{"write_timeout": "soon"}, wantErr: true},
		{name: "bad bool", data: map[string]any{"metrics_enabled": "yes"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServerSection()
			err := s.SetData(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, s.Snapshot())
		})
	}
}

func TestServerSection_Validate(t *testing.T) {
	s := NewServerSection()
	require.NoError(t, s.Validate())

	s.Port = -1
	assert.Error(t, s.Validate())

	s.Reset()
	s.RequestTimeout = 0
	assert.Error(t, s.Validate())

	s.Reset()
	assert.Equal(t, DefaultPort, s.Snapshot().Port)
}

func TestPortReclaimSection(t *testing.T) {
	s := NewPortReclaimSection()
	require.NoError(t, s.Validate())

	require.NoError(t, s.SetData(map[string]any{
		"max_attempts":  3,
		"initial_delay": "50ms",
		"max_delay":     "1s",
		"multiplier":    2,
	}))
	cfg := s.Backoff()
	assert.Equal(t, 50*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)

	s.MaxDelay = 10 * time.Millisecond
	assert.Error(t, s.Validate(), "max_delay below initial_delay")

	s.Reset()
	s.MaxAttempts = 0
	assert.Error(t, s.Validate())

	data := NewPortReclaimSection().Data()
	assert.Equal(t, "100ms", data["initial_delay"])
	assert.Equal(t, true, data["kill_existing"])
}

func TestNavigationSection(t *testing.T) {
	s := NewNavigationSection()
	require.NoError(t, s.SetData(map[string]any{
		"allowed_urls": []any{"https://*.example.com/**"},
		"denied_urls":  []string{"file://**"},
	}))
	require.NoError(t, s.Validate())

	allowed, denied := s.Patterns()
	assert.Equal(t, []string{"https://*.example.com/**"}, allowed)
	assert.Equal(t, []string{"file://**"}, denied)

	assert.Error(t, s.SetData(map[string]any{"allowed_urls": []any{1}}))

	s.AllowedURLs = []string{"[unclosed"}
	assert.Error(t, s.Validate())

	s.Reset()
	allowed, denied = s.Patterns()
	assert.Empty(t, allowed)
	assert.Empty(t, denied)
}

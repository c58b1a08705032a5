package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, 2*time.Minute, cfg.Presence.Window)
	assert.Equal(t, 30*time.Second, cfg.Presence.SweepInterval)
	assert.Equal(t, "redis", cfg.Fanout.Backend)
	assert.Equal(t, "VS Code", cfg.Usage.Aliases["code"])
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PRESENCE_WINDOW", "5m")
	t.Setenv("SWEEP_INTERVAL", "not-a-duration")
	t.Setenv("FANOUT_BACKEND", "NATS")
	t.Setenv("USAGE_ALIASES", "slack=Slack, Code = Visual Studio Code ,broken")

	cfg := Load()

	assert.Equal(t, 5*time.Minute, cfg.Presence.Window)
	assert.Equal(t, 30*time.Second, cfg.Presence.SweepInterval, "invalid duration falls back")
	assert.Equal(t, "nats", cfg.Fanout.Backend)
	assert.Equal(t, "Slack", cfg.Usage.Aliases["slack"])
	assert.Equal(t, "Visual Studio Code", cfg.Usage.Aliases["code"])
	assert.Equal(t, "Google Chrome", cfg.Usage.Aliases["chrome"])
}

func TestLoadAliasesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "managex.yaml")
	require.NoError(t, os.WriteFile(path, []byte("aliases:\n  Teams: Microsoft Teams\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg := Load()

	assert.Equal(t, "Microsoft Teams", cfg.Usage.Aliases["teams"])
}

func TestDBConfigURL(t *testing.T) {
	db := DBConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/n?sslmode=disable", db.URL())
}

func TestLoadAgent(t *testing.T) {
	t.Setenv("AGENT_SERVER_URL", "https://mx.example.com")
	t.Setenv("AGENT_DEVICE_ID", "PC-07")
	t.Setenv("AGENT_HEARTBEAT_INTERVAL", "10s")
	t.Setenv("AGENT_SNAPSHOT_INTERVAL", "-1s")

	cfg := LoadAgent()

	assert.Equal(t, "https://mx.example.com", cfg.ServerURL)
	assert.Equal(t, "PC-07", cfg.DeviceID)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 60*time.Second, cfg.SnapshotInterval)
	assert.Equal(t, 30*time.Second, cfg.RetryInterval)
	assert.Empty(t, cfg.LockCommand)
	assert.Nil(t, cfg.Location)
}

func TestLoadAgentLocation(t *testing.T) {
	t.Setenv("AGENT_LOCATION", "21.03, 105.85, 25")

	cfg := LoadAgent()

	require.NotNil(t, cfg.Location)
	assert.Equal(t, AgentLocation{Lat: 21.03, Lng: 105.85, AccuracyMeters: 25}, *cfg.Location)
}

func TestParseAgentLocation(t *testing.T) {
	tests := []struct {
		raw     string
		want    *AgentLocation
		wantErr bool
	}{
		{"", nil, false},
		{"10.5,-20", &AgentLocation{Lat: 10.5, Lng: -20}, false},
		{"0,0,5", &AgentLocation{AccuracyMeters: 5}, false},
		{"10", nil, true},
		{"1,2,3,4", nil, true},
		{"north,2", nil, true},
		{"91,0", nil, true},
		{"0,181", nil, true},
		{"0,0,-1", nil, true},
	}

	for _, tt := range tests {
		got, err := ParseAgentLocation(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestLoadAgentDefaultsToHostname(t *testing.T) {
	t.Setenv("AGENT_DEVICE_ID", "")
	host, err := os.Hostname()
	require.NoError(t, err)

	assert.Equal(t, host, LoadAgent().DeviceID)
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/quocanhngo/managex/pkg/logger"
	"github.com/spf13/viper"
)

// AgentConfig configures the endpoint agent (cmd/agent)
type AgentConfig struct {
	Log               logger.Config
	ServerURL         string
	DeviceID          string // defaults to the hostname
	LockCommand       string // run on LOCK; empty only logs
	Location          *AgentLocation
	HeartbeatInterval time.Duration
	SnapshotInterval  time.Duration
	RetryInterval     time.Duration
}

// AgentLocation is a fixed position the agent reports after registering
type AgentLocation struct {
	Lat            float64
	Lng            float64
	AccuracyMeters float64
}

// LoadAgent reads AGENT_* settings from .env and the environment
func LoadAgent() *AgentConfig {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("agent_server_url", "http://localhost:8080")
	v.SetDefault("agent_heartbeat_interval", "30s")
	v.SetDefault("agent_snapshot_interval", "60s")
	v.SetDefault("agent_retry_interval", "30s")
	v.SetDefault("log_level", "info")
	v.AutomaticEnv()

	deviceID := v.GetString("agent_device_id")
	if deviceID == "" {
		deviceID, _ = os.Hostname()
	}

	location, err := ParseAgentLocation(v.GetString("agent_location"))
	if err != nil {
		logger.Warn().Err(err).Msg("ignoring AGENT_LOCATION")
	}

	return &AgentConfig{
		Log: logger.Config{
			Level:   v.GetString("log_level"),
			Debug:   v.GetBool("debug"),
			Console: true,
		},
		ServerURL:         v.GetString("agent_server_url"),
		DeviceID:          deviceID,
		LockCommand:       v.GetString("agent_lock_command"),
		Location:          location,
		HeartbeatInterval: durationOr(v, "agent_heartbeat_interval", 30*time.Second),
		SnapshotInterval:  durationOr(v, "agent_snapshot_interval", 60*time.Second),
		RetryInterval:     durationOr(v, "agent_retry_interval", 30*time.Second),
	}
}

// ParseAgentLocation parses "lat,lng[,accuracyMeters]". An empty string means
// no location.
func ParseAgentLocation(raw string) (*AgentLocation, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("expected lat,lng[,accuracy], got %q", raw)
	}

	vals := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", p, err)
		}
		vals[i] = f
	}

	loc := &AgentLocation{Lat: vals[0], Lng: vals[1]}
	if len(vals) == 3 {
		loc.AccuracyMeters = vals[2]
	}

	switch {
	case loc.Lat < -90 || loc.Lat > 90:
		return nil, fmt.Errorf("latitude %v out of range", loc.Lat)
	case loc.Lng < -180 || loc.Lng > 180:
		return nil, fmt.Errorf("longitude %v out of range", loc.Lng)
	case loc.AccuracyMeters < 0:
		return nil, fmt.Errorf("accuracy %v is negative", loc.AccuracyMeters)
	}
	return loc, nil
}

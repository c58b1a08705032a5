package main

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"os/user"
	"strings"
	"syscall"

	"github.com/quocanhngo/managex/internal/agent"
	"github.com/quocanhngo/managex/internal/config"
	"github.com/quocanhngo/managex/internal/model"
	"github.com/quocanhngo/managex/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/host"
)

func main() {
	cfg := config.LoadAgent()
	if err := logger.Init(cfg.Log); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize logger")
	}
	log := logger.WithComponent("agent")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osName, arch := describeHost(ctx, log)

	var location *agent.Position
	if l := cfg.Location; l != nil {
		location = &agent.Position{Lat: l.Lat, Lng: l.Lng, AccuracyMeters: l.AccuracyMeters}
	}

	a := agent.New(agent.Config{
		ServerURL:         cfg.ServerURL,
		DeviceID:          cfg.DeviceID,
		Username:          currentUser(),
		OS:                osName,
		Model:             arch,
		Location:          location,
		HeartbeatInterval: cfg.HeartbeatInterval,
		SnapshotInterval:  cfg.SnapshotInterval,
		RetryInterval:     cfg.RetryInterval,
	}, log, agent.WithCommandHook(lockHook(cfg.LockCommand, log)))

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("agent failed")
	}
}

func describeHost(ctx context.Context, log zerolog.Logger) (string, string) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read host info")
		return "", ""
	}
	osName := strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
	if osName == "" {
		osName = info.OS
	}
	return osName, info.KernelArch
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

// lockHook runs the configured shell command on LOCK. UNLOCK is only logged;
// the endpoint is expected to be unlocked by the user signing in.
func lockHook(command string, log zerolog.Logger) agent.CommandHook {
	return func(ctx context.Context, cmd model.CommandEvent) {
		log.Info().Str("command", string(cmd.Command)).Str("message", cmd.Message).Msg("admin command")
		if cmd.Command != model.CommandLock || command == "" {
			return
		}

		out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
		if err != nil {
			log.Error().Err(err).Str("output", strings.TrimSpace(string(out))).Msg("lock command failed")
			return
		}
		log.Info().Msg("device locked")
	}
}

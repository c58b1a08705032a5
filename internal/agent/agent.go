// Package agent is the endpoint side of ManageX: it registers the machine,
// checks in periodically, reports running software and listens for commands.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/quocanhngo/managex/internal/model"
	"github.com/rs/zerolog"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultSnapshotInterval  = 60 * time.Second
	DefaultRetryInterval     = 30 * time.Second

	deviceTokenHeader = "X-Device-Token"
	requestTimeout    = 15 * time.Second
)

// errTokenRejected means the server no longer accepts our token
var errTokenRejected = errors.New("device token rejected")

// tokenRejectedError remembers which token was refused so that concurrent
// loops re-register only once per rejected token
type tokenRejectedError struct {
	token string
}

func (e *tokenRejectedError) Error() string { return errTokenRejected.Error() }
func (e *tokenRejectedError) Unwrap() error { return errTokenRejected }

// Position is a device-measured location
type Position struct {
	Lat            float64
	Lng            float64
	AccuracyMeters float64
}

// Config describes the device and the server it reports to
type Config struct {
	ServerURL string // e.g. http://localhost:8080
	DeviceID  string
	Username  string
	OS        string
	Model     string

	// Location is reported once after registration when set
	Location *Position

	HeartbeatInterval time.Duration
	SnapshotInterval  time.Duration
	RetryInterval     time.Duration
}

// CommandHook is invoked for every command received on the device channel
type CommandHook func(ctx context.Context, cmd model.CommandEvent)

// Agent runs the registration, heartbeat, snapshot and command loops
type Agent struct {
	cfg        Config
	httpClient *http.Client
	rest       *resty.Client
	dialer     *websocket.Dialer
	processes  ProcessLister
	onCommand  CommandHook
	log        zerolog.Logger

	mu    sync.RWMutex
	token string

	// serializes re-registration after a rejected token
	regMu sync.Mutex
}

// Option customizes an Agent
type Option func(*Agent)

// WithHTTPClient sets the transport used by the REST client
func WithHTTPClient(c *http.Client) Option {
	return func(a *Agent) { a.httpClient = c }
}

// WithProcessLister replaces gopsutil process enumeration
func WithProcessLister(l ProcessLister) Option {
	return func(a *Agent) { a.processes = l }
}

// WithCommandHook sets what happens when a LOCK or UNLOCK arrives
func WithCommandHook(h CommandHook) Option {
	return func(a *Agent) { a.onCommand = h }
}

func New(cfg Config, log zerolog.Logger, opts ...Option) *Agent {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = DefaultSnapshotInterval
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")

	a := &Agent{
		cfg:        cfg,
		httpClient: &http.Client{},
		dialer:     websocket.DefaultDialer,
		processes:  ListProcesses,
		log:        log.With().Str("device_id", cfg.DeviceID).Logger(),
	}
	a.onCommand = func(_ context.Context, cmd model.CommandEvent) {
		a.log.Warn().Str("command", string(cmd.Command)).Str("message", cmd.Message).Msg("command received, no hook configured")
	}
	for _, opt := range opts {
		opt(a)
	}

	a.rest = resty.NewWithClient(a.httpClient).
		SetBaseURL(cfg.ServerURL).
		SetTimeout(requestTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{a.log})
	return a
}

// Run registers (retrying until it succeeds) and then runs every loop until
// ctx is done
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info().Str("server", a.cfg.ServerURL).Msg("agent started")

	if err := a.registerWithRetry(ctx); err != nil {
		return err
	}

	if p := a.cfg.Location; p != nil {
		if err := a.ReportLocation(ctx, *p); err != nil {
			a.handleError(ctx, "location", err)
		} else {
			a.log.Info().Float64("lat", p.Lat).Float64("lng", p.Lng).Msg("location reported")
		}
	}

	var wg sync.WaitGroup
	loops := []func(context.Context){a.heartbeatLoop, a.snapshotLoop, a.commandLoop}
	for _, loop := range loops {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(loop)
	}
	wg.Wait()

	a.log.Info().Msg("agent stopped")
	return ctx.Err()
}

// Token returns the current device token
func (a *Agent) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// Register obtains a fresh token; any previous token stops working
func (a *Agent) Register(ctx context.Context) error {
	req := model.RegisterDeviceRequest{
		DeviceID: a.cfg.DeviceID,
		Username: a.cfg.Username,
		OS:       a.cfg.OS,
		Model:    a.cfg.Model,
	}

	var resp model.RegisterDeviceResponse
	if err := a.post(ctx, "/api/v1/device/register", req, &resp, false); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if resp.DeviceToken == "" {
		return errors.New("register: server returned no token")
	}

	a.mu.Lock()
	a.token = resp.DeviceToken
	a.mu.Unlock()

	a.log.Info().Msg("device registered")
	return nil
}

// Heartbeat checks in with the server
func (a *Agent) Heartbeat(ctx context.Context) error {
	return a.post(ctx, "/api/v1/device/heartbeat", model.DeviceAuthRequest{DeviceID: a.cfg.DeviceID}, nil, true)
}

// ReportLocation sends device-measured coordinates
func (a *Agent) ReportLocation(ctx context.Context, p Position) error {
	return a.post(ctx, "/api/v1/device/location", model.LocationRequest{
		DeviceID:       a.cfg.DeviceID,
		Lat:            &p.Lat,
		Lng:            &p.Lng,
		AccuracyMeters: &p.AccuracyMeters,
	}, nil, true)
}

// SendSnapshot reports running processes and returns today's software count
func (a *Agent) SendSnapshot(ctx context.Context) (int64, error) {
	names, err := a.processes(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}
	if names == nil {
		names = []string{}
	}

	var resp model.SnapshotResponse
	if err := a.post(ctx, "/api/v1/usage/process-snapshot", model.SnapshotRequest{
		DeviceID:  a.cfg.DeviceID,
		Processes: names,
	}, &resp, true); err != nil {
		return 0, err
	}
	return resp.SoftwareCount, nil
}

// ==================== Loops ====================

func (a *Agent) registerWithRetry(ctx context.Context) error {
	for {
		err := a.Register(ctx)
		if err == nil {
			return nil
		}
		a.log.Warn().Err(err).Dur("retry_in", a.cfg.RetryInterval).Msg("registration failed")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.RetryInterval):
		}
	}
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	a.every(ctx, a.cfg.HeartbeatInterval, func() {
		if err := a.Heartbeat(ctx); err != nil {
			a.handleError(ctx, "heartbeat", err)
			return
		}
		a.log.Debug().Msg("heartbeat ok")
	})
}

func (a *Agent) snapshotLoop(ctx context.Context) {
	a.every(ctx, a.cfg.SnapshotInterval, func() {
		count, err := a.SendSnapshot(ctx)
		if err != nil {
			a.handleError(ctx, "snapshot", err)
			return
		}
		a.log.Debug().Int64("software_count", count).Msg("snapshot ok")
	})
}

// every runs fn immediately and then on each tick
func (a *Agent) every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fn()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// handleError re-registers when the server rejected the token, e.g. after
// the device was registered again from another process
func (a *Agent) handleError(ctx context.Context, op string, err error) {
	if ctx.Err() != nil {
		return
	}
	var rejected *tokenRejectedError
	if errors.As(err, &rejected) {
		a.reregister(ctx, op, rejected.token)
		return
	}
	a.log.Warn().Err(err).Str("op", op).Msg("request failed")
}

// reregister registers again unless another loop already replaced the
// rejected token
func (a *Agent) reregister(ctx context.Context, op, rejected string) {
	a.regMu.Lock()
	defer a.regMu.Unlock()

	if a.Token() != rejected {
		return
	}
	a.log.Warn().Str("op", op).Msg("token rejected, registering again")
	if err := a.Register(ctx); err != nil {
		a.log.Error().Err(err).Msg("re-registration failed")
	}
}

// commandLoop keeps a websocket open on the device channel, reconnecting
// after RetryInterval. Commands sent while disconnected are lost.
func (a *Agent) commandLoop(ctx context.Context) {
	for {
		err := a.listen(ctx)
		switch {
		case ctx.Err() != nil:
		case errors.Is(err, errTokenRejected):
			a.handleError(ctx, "commands", err)
		case err != nil:
			a.log.Warn().Err(err).Dur("retry_in", a.cfg.RetryInterval).Msg("command channel closed")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.cfg.RetryInterval):
		}
	}
}

func (a *Agent) listen(ctx context.Context) error {
	token := a.Token()
	wsURL, err := a.channelURL(token)
	if err != nil {
		return err
	}

	conn, resp, err := a.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return &tokenRejectedError{token: token}
		}
		return err
	}
	defer conn.Close()

	// unblock ReadMessage on shutdown
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	a.log.Info().Msg("listening for commands")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &env); err != nil || env.Type != model.WSEventCommand {
			continue
		}

		var cmd model.CommandEvent
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			a.log.Warn().Err(err).Msg("malformed command")
			continue
		}
		a.log.Info().Str("command", string(cmd.Command)).Msg("command received")
		a.onCommand(ctx, cmd)
	}
}

func (a *Agent) channelURL(token string) (string, error) {
	u, err := url.Parse(a.cfg.ServerURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/device"
	u.RawQuery = url.Values{"deviceId": {a.cfg.DeviceID}, "token": {token}}.Encode()
	return u.String(), nil
}

// ==================== HTTP ====================

func (a *Agent) post(ctx context.Context, path string, body, out interface{}, authed bool) error {
	req := a.rest.R().SetContext(ctx).SetBody(body)

	var token string
	if authed {
		token = a.Token()
		req.SetHeader(deviceTokenHeader, token)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Post(path)
	if err != nil {
		return err
	}

	if authed && resp.StatusCode() == http.StatusUnauthorized {
		return &tokenRejectedError{token: token}
	}
	if resp.IsError() {
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// restyLogger routes resty's internal messages into zerolog
type restyLogger struct {
	log zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
func (l restyLogger) Warnf(format string, v ...interface{})  { l.log.Warn().Msgf(format, v...) }
func (l restyLogger) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }

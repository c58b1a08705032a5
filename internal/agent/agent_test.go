package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quocanhngo/managex/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer mimics the agent-facing routes. Each registration issues a new
// token and invalidates the previous one.
type fakeServer struct {
	mu         sync.Mutex
	token      string
	registers  int32
	heartbeats int32
	snapshot   []string
	location   chan model.LocationRequest
	commands   chan model.CommandEvent
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{
		location: make(chan model.LocationRequest, 1),
		commands: make(chan model.CommandEvent, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/device/register", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&fs.registers, 1)
		fs.mu.Lock()
		fs.token = "token-" + string(rune('0'+n))
		token := fs.token
		fs.mu.Unlock()
		writeJSON(w, model.RegisterDeviceResponse{DeviceToken: token})
	})
	mux.HandleFunc("/api/v1/device/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		if !fs.authorized(r.Header.Get(deviceTokenHeader)) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt32(&fs.heartbeats, 1)
		writeJSON(w, model.OKResponse{OK: true})
	})
	mux.HandleFunc("/api/v1/device/location", func(w http.ResponseWriter, r *http.Request) {
		if !fs.authorized(r.Header.Get(deviceTokenHeader)) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req model.LocationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		select {
		case fs.location <- req:
		default:
		}
		writeJSON(w, model.OKResponse{OK: true})
	})
	mux.HandleFunc("/api/v1/usage/process-snapshot", func(w http.ResponseWriter, r *http.Request) {
		if !fs.authorized(r.Header.Get(deviceTokenHeader)) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req model.SnapshotRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		fs.mu.Lock()
		fs.snapshot = req.Processes
		fs.mu.Unlock()
		writeJSON(w, model.SnapshotResponse{OK: true, SoftwareCount: int64(len(req.Processes))})
	})
	mux.HandleFunc("/ws/device", func(w http.ResponseWriter, r *http.Request) {
		if !fs.authorized(r.URL.Query().Get("token")) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for cmd := range fs.commands {
			_ = conn.WriteJSON(model.WSEvent{Type: "device-update", Payload: map[string]string{}})
			_ = conn.WriteJSON(model.WSEvent{Type: model.WSEventCommand, Payload: cmd})
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) authorized(token string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return token != "" && token == fs.token
}

func (fs *fakeServer) revoke() {
	fs.mu.Lock()
	fs.token = "someone-else"
	fs.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestAgent(srv *httptest.Server, opts ...Option) *Agent {
	return New(Config{
		ServerURL:     srv.URL + "/",
		DeviceID:      "PC-01",
		RetryInterval: 10 * time.Millisecond,
	}, zerolog.Nop(), opts...)
}

func TestRegisterAndHeartbeat(t *testing.T) {
	fs, srv := newFakeServer(t)
	a := newTestAgent(srv)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx))
	assert.Equal(t, "token-1", a.Token())

	require.NoError(t, a.Heartbeat(ctx))
	assert.EqualValues(t, 1, atomic.LoadInt32(&fs.heartbeats))
}

func TestRejectedTokenTriggersRegistration(t *testing.T) {
	fs, srv := newFakeServer(t)
	a := newTestAgent(srv)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx))
	fs.revoke()

	err := a.Heartbeat(ctx)
	require.ErrorIs(t, err, errTokenRejected)

	a.handleError(ctx, "heartbeat", err)
	assert.Equal(t, "token-2", a.Token())
	require.NoError(t, a.Heartbeat(ctx))
}

func TestConcurrentRejectionsRegisterOnce(t *testing.T) {
	fs, srv := newFakeServer(t)
	a := newTestAgent(srv)
	ctx := context.Background()

	require.NoError(t, a.Register(ctx))
	fs.revoke()

	hbErr := a.Heartbeat(ctx)
	_, snapErr := a.SendSnapshot(ctx)
	require.ErrorIs(t, hbErr, errTokenRejected)
	require.ErrorIs(t, snapErr, errTokenRejected)

	var wg sync.WaitGroup
	for op, err := range map[string]error{"heartbeat": hbErr, "snapshot": snapErr} {
		wg.Add(1)
		go func(op string, err error) {
			defer wg.Done()
			a.handleError(ctx, op, err)
		}(op, err)
	}
	wg.Wait()

	assert.EqualValues(t, 2, atomic.LoadInt32(&fs.registers))
	assert.Equal(t, "token-2", a.Token())
	require.NoError(t, a.Heartbeat(ctx))
}

func TestRunReportsConfiguredLocation(t *testing.T) {
	fs, srv := newFakeServer(t)
	a := New(Config{
		ServerURL:     srv.URL,
		DeviceID:      "PC-01",
		Location:      &Position{Lat: 21.03, Lng: 105.85, AccuracyMeters: 25},
		RetryInterval: 10 * time.Millisecond,
	}, zerolog.Nop(), WithProcessLister(func(context.Context) ([]string, error) {
		return nil, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case req := <-fs.location:
		assert.Equal(t, "PC-01", req.DeviceID)
		require.NotNil(t, req.Lat)
		require.NotNil(t, req.AccuracyMeters)
		assert.InDelta(t, 21.03, *req.Lat, 1e-9)
		assert.InDelta(t, 105.85, *req.Lng, 1e-9)
		assert.InDelta(t, 25, *req.AccuracyMeters, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("location was not reported")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	close(fs.commands)
}

func TestSendSnapshot(t *testing.T) {
	fs, srv := newFakeServer(t)
	a := newTestAgent(srv, WithProcessLister(func(context.Context) ([]string, error) {
		return []string{"chrome", "code"}, nil
	}))
	ctx := context.Background()
	require.NoError(t, a.Register(ctx))

	count, err := a.SendSnapshot(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.Equal(t, []string{"chrome", "code"}, fs.snapshot)
}

func TestSendSnapshotEmptyListIsArray(t *testing.T) {
	fs, srv := newFakeServer(t)
	a := newTestAgent(srv, WithProcessLister(func(context.Context) ([]string, error) {
		return nil, nil
	}))
	ctx := context.Background()
	require.NoError(t, a.Register(ctx))

	count, err := a.SendSnapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.NotNil(t, fs.snapshot)
}

func TestRegisterFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := newTestAgent(srv)
	err := a.Register(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Empty(t, a.Token())
}

func TestRunRetriesRegistrationUntilCancelled(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := newTestAgent(srv)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCommandsReachHook(t *testing.T) {
	fs, srv := newFakeServer(t)
	got := make(chan model.CommandEvent, 1)
	a := newTestAgent(srv, WithCommandHook(func(_ context.Context, cmd model.CommandEvent) {
		got <- cmd
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, a.Register(ctx))

	go func() { _ = a.listen(ctx) }()

	fs.commands <- model.CommandEvent{Command: model.CommandLock, Message: "locked"}

	select {
	case cmd := <-got:
		assert.Equal(t, model.CommandLock, cmd.Command)
		assert.Equal(t, "locked", cmd.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("command was not delivered")
	}
	close(fs.commands)
}

func TestListenRejectedToken(t *testing.T) {
	fs, srv := newFakeServer(t)
	a := newTestAgent(srv)
	ctx := context.Background()
	require.NoError(t, a.Register(ctx))
	fs.revoke()

	err := a.listen(ctx)
	assert.ErrorIs(t, err, errTokenRejected)
}

func TestChannelURL(t *testing.T) {
	a := New(Config{ServerURL: "https://mx.example.com/base/", DeviceID: "PC 01"}, zerolog.Nop())

	u, err := a.channelURL("abc")
	require.NoError(t, err)
	assert.Equal(t, "wss://mx.example.com/base/ws/device?deviceId=PC+01&token=abc", u)
}

func TestCleanNames(t *testing.T) {
	got := cleanNames([]string{"Chrome.exe", "chrome", " Code.EXE ", "", "  ", "explorer.exe", "zsh"})
	assert.Equal(t, []string{"chrome", "code", "explorer", "zsh"}, got)
}

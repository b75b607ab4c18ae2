package mgmt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Evoker-Industries/Janus/pkg/config"
	"github.com/Evoker-Industries/Janus/pkg/stats"
	"github.com/Evoker-Industries/Janus/pkg/upstream"
)

type stubReloader struct {
	generation uint64
	err        error
	calls      int
}

func (r *stubReloader) Reload() (uint64, error) {
	r.calls++
	if r.err != nil {
		return 0, r.err
	}
	r.generation++
	return r.generation, nil
}

func mgmtConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Upstreams = map[string]config.UpstreamConfig{
		"api": {
			LoadBalancing: "round_robin",
			Servers: []config.BackendServer{
				{Address: "a:80", Weight: 1},
				{Address: "b:80", Weight: 1},
			},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

// newTestServer stands up a management server on an httptest listener and
// returns it together with its reloader stub.
func newTestServer(t *testing.T) (*Server, *stubReloader, *httptest.Server) {
	t.Helper()

	cfg := mgmtConfig()
	store := config.NewStore(cfg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := upstream.NewPool(store.Get(), logger)
	reloader := &stubReloader{generation: 1}

	srv := NewServer(ServerConfig{
		Config:   cfg.Management,
		Store:    store,
		Reloader: reloader,
		Pool:     pool,
		Tracker:  stats.NewTracker(),
		Logger:   logger,
	})

	ts := httptest.NewServer(http.HandlerFunc(srv.handleSocket))
	t.Cleanup(ts.Close)
	return srv, reloader, ts
}

func dialSession(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, cmd Command) {
	t.Helper()
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
}

func sendRaw(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("WriteMessage() error: %v", err)
	}
}

// readMessage reads one JSON message into a generic map so tests can
// inspect replies and notifications alike.
func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal(%q) error: %v", data, err)
	}
	return msg
}

func TestGetStatus(t *testing.T) {
	_, _, ts := newTestServer(t)
	conn := dialSession(t, ts)

	send(t, conn, Command{Type: CmdGetStatus, ID: "s1"})
	msg := readMessage(t, conn)

	if msg["type"] != ReplyStatus {
		t.Fatalf("reply type = %v, want %q", msg["type"], ReplyStatus)
	}
	if msg["id"] != "s1" {
		t.Errorf("reply id = %v, want s1", msg["id"])
	}
	status, ok := msg["status"].(map[string]any)
	if !ok {
		t.Fatalf("status payload missing: %v", msg)
	}
	if status["generation"] != float64(1) {
		t.Errorf("generation = %v, want 1", status["generation"])
	}
	if status["sessions"] != float64(1) {
		t.Errorf("sessions = %v, want 1", status["sessions"])
	}
	if status["upstreams"] != float64(1) {
		t.Errorf("upstreams = %v, want 1", status["upstreams"])
	}
}

func TestGetConfig(t *testing.T) {
	_, _, ts := newTestServer(t)
	conn := dialSession(t, ts)

	send(t, conn, Command{Type: CmdGetConfig, ID: "c1"})
	msg := readMessage(t, conn)

	if msg["type"] != ReplyConfig {
		t.Fatalf("reply type = %v, want %q", msg["type"], ReplyConfig)
	}
	cfg, ok := msg["config"].(map[string]any)
	if !ok {
		t.Fatalf("config payload missing: %v", msg)
	}
	upstreams, ok := cfg["Upstreams"].(map[string]any)
	if !ok || upstreams["api"] == nil {
		t.Errorf("config payload lacks api upstream: %v", cfg)
	}
}

func TestGetStats(t *testing.T) {
	srv, _, ts := newTestServer(t)
	srv.tracker.RecordRequest(200, 100, "api")
	srv.tracker.RecordRequest(502, 0, "api")
	conn := dialSession(t, ts)

	send(t, conn, Command{Type: CmdGetStats, ID: "st1"})
	msg := readMessage(t, conn)

	if msg["type"] != ReplyStats {
		t.Fatalf("reply type = %v, want %q", msg["type"], ReplyStats)
	}
	payload, ok := msg["stats"].(map[string]any)
	if !ok {
		t.Fatalf("stats payload missing: %v", msg)
	}
	if payload["total_requests"] != float64(2) {
		t.Errorf("total_requests = %v, want 2", payload["total_requests"])
	}
	if payload["status_5xx"] != float64(1) {
		t.Errorf("status_5xx = %v, want 1", payload["status_5xx"])
	}
}

func TestListUpstreams(t *testing.T) {
	_, _, ts := newTestServer(t)
	conn := dialSession(t, ts)

	send(t, conn, Command{Type: CmdListUpstreams, ID: "u1"})
	msg := readMessage(t, conn)

	if msg["type"] != ReplyUpstreams {
		t.Fatalf("reply type = %v, want %q", msg["type"], ReplyUpstreams)
	}
	ups, ok := msg["upstreams"].([]any)
	if !ok || len(ups) != 1 {
		t.Fatalf("upstreams payload = %v, want one entry", msg["upstreams"])
	}
	entry := ups[0].(map[string]any)
	if entry["name"] != "api" {
		t.Errorf("upstream name = %v, want api", entry["name"])
	}
	targets, ok := entry["targets"].([]any)
	if !ok || len(targets) != 2 {
		t.Errorf("targets = %v, want two entries", entry["targets"])
	}
}

func TestReloadConfig(t *testing.T) {
	_, reloader, ts := newTestServer(t)
	conn := dialSession(t, ts)

	send(t, conn, Command{Type: CmdReloadConfig, ID: "r1"})
	msg := readMessage(t, conn)

	if msg["type"] != ReplyReloaded {
		t.Fatalf("reply type = %v, want %q", msg["type"], ReplyReloaded)
	}
	if msg["generation"] != float64(2) {
		t.Errorf("generation = %v, want 2", msg["generation"])
	}
	if reloader.calls != 1 {
		t.Errorf("reloader calls = %d, want 1", reloader.calls)
	}
}

func TestReloadConfigFailureKeepsSession(t *testing.T) {
	_, reloader, ts := newTestServer(t)
	reloader.err = errors.New("missing upstream for route /api")
	conn := dialSession(t, ts)

	send(t, conn, Command{Type: CmdReloadConfig, ID: "r1"})
	msg := readMessage(t, conn)

	if msg["type"] != ReplyError {
		t.Fatalf("reply type = %v, want %q", msg["type"], ReplyError)
	}
	if err, _ := msg["error"].(string); !strings.Contains(err, "missing upstream") {
		t.Errorf("error = %v, want reload failure detail", msg["error"])
	}

	// The session survives a rejected reload.
	send(t, conn, Command{Type: CmdGetStatus, ID: "r2"})
	if msg := readMessage(t, conn); msg["type"] != ReplyStatus {
		t.Errorf("follow-up reply type = %v, want %q", msg["type"], ReplyStatus)
	}
}

func TestSetUpstreamHealthBroadcasts(t *testing.T) {
	srv, _, ts := newTestServer(t)
	issuer := dialSession(t, ts)
	observer := dialSession(t, ts)
	waitForSessions(t, srv, 2)

	send(t, issuer, Command{
		Type:     CmdSetUpstreamHealth,
		ID:       "h1",
		Upstream: "api",
		Address:  "a:80",
		State:    "unhealthy",
	})

	reply := readMessage(t, issuer)
	if reply["type"] != ReplyAck || reply["id"] != "h1" {
		t.Fatalf("issuer reply = %v, want Ack h1", reply)
	}

	note := readMessage(t, observer)
	if note["type"] != NotifyUpstreamHealthChanged {
		t.Fatalf("notification type = %v, want %q", note["type"], NotifyUpstreamHealthChanged)
	}
	if note["upstream"] != "api" || note["address"] != "a:80" || note["state"] != "unhealthy" {
		t.Errorf("notification payload = %v", note)
	}

	target, err := srv.pool.Select("api", "")
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}
	defer srv.pool.Release(target)
	if target.Address != "b:80" {
		t.Errorf("selected %q after marking a:80 unhealthy, want b:80", target.Address)
	}
}

func TestSetUpstreamHealthUnknownTarget(t *testing.T) {
	_, _, ts := newTestServer(t)
	conn := dialSession(t, ts)

	send(t, conn, Command{
		Type:     CmdSetUpstreamHealth,
		ID:       "h1",
		Upstream: "api",
		Address:  "nope:80",
		State:    "healthy",
	})
	msg := readMessage(t, conn)
	if msg["type"] != ReplyError {
		t.Fatalf("reply type = %v, want %q", msg["type"], ReplyError)
	}
}

func TestSetUpstreamHealthBadState(t *testing.T) {
	_, _, ts := newTestServer(t)
	conn := dialSession(t, ts)

	send(t, conn, Command{
		Type:     CmdSetUpstreamHealth,
		ID:       "h1",
		Upstream: "api",
		Address:  "a:80",
		State:    "wounded",
	})
	msg := readMessage(t, conn)
	if msg["type"] != ReplyError {
		t.Fatalf("reply type = %v, want %q", msg["type"], ReplyError)
	}
}

func TestDeleteUpstreamTargetBroadcasts(t *testing.T) {
	srv, _, ts := newTestServer(t)
	issuer := dialSession(t, ts)
	observer := dialSession(t, ts)
	waitForSessions(t, srv, 2)

	send(t, issuer, Command{
		Type:     CmdDeleteUpstreamTarget,
		ID:       "d1",
		Upstream: "api",
		Address:  "b:80",
	})

	if reply := readMessage(t, issuer); reply["type"] != ReplyAck {
		t.Fatalf("issuer reply = %v, want Ack", reply)
	}

	note := readMessage(t, observer)
	if note["type"] != NotifyTargetDeleted {
		t.Fatalf("notification type = %v, want %q", note["type"], NotifyTargetDeleted)
	}
	if note["upstream"] != "api" || note["address"] != "b:80" {
		t.Errorf("notification payload = %v", note)
	}

	if got := len(srv.pool.Upstream("api").Targets()); got != 1 {
		t.Errorf("remaining targets = %d, want 1", got)
	}
}

func TestMalformedCommandKeepsSession(t *testing.T) {
	_, _, ts := newTestServer(t)
	conn := dialSession(t, ts)

	sendRaw(t, conn, `{"type": `)
	msg := readMessage(t, conn)
	if msg["type"] != ReplyError {
		t.Fatalf("reply type = %v, want %q", msg["type"], ReplyError)
	}

	send(t, conn, Command{Type: CmdGetStatus, ID: "after"})
	msg = readMessage(t, conn)
	if msg["type"] != ReplyStatus || msg["id"] != "after" {
		t.Errorf("follow-up reply = %v, want Status after", msg)
	}
}

func TestUnknownCommandType(t *testing.T) {
	_, _, ts := newTestServer(t)
	conn := dialSession(t, ts)

	send(t, conn, Command{Type: "SelfDestruct", ID: "x1"})
	msg := readMessage(t, conn)
	if msg["type"] != ReplyError {
		t.Fatalf("reply type = %v, want %q", msg["type"], ReplyError)
	}
	if err, _ := msg["error"].(string); !strings.Contains(err, "SelfDestruct") {
		t.Errorf("error = %v, want the offending type named", msg["error"])
	}
}

func TestDisconnectAcksThenCloses(t *testing.T) {
	srv, _, ts := newTestServer(t)
	conn := dialSession(t, ts)

	send(t, conn, Command{Type: CmdDisconnect, ID: "bye"})
	msg := readMessage(t, conn)
	if msg["type"] != ReplyAck || msg["id"] != "bye" {
		t.Fatalf("reply = %v, want Ack bye", msg)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to close after Disconnect ack")
	}
	waitForSessions(t, srv, 0)
}

func TestReloadBroadcastArrivesBeforeObserverReply(t *testing.T) {
	srv, _, ts := newTestServer(t)
	issuer := dialSession(t, ts)
	observer := dialSession(t, ts)
	waitForSessions(t, srv, 2)

	send(t, issuer, Command{Type: CmdReloadConfig, ID: "r1"})
	if reply := readMessage(t, issuer); reply["type"] != ReplyReloaded {
		t.Fatalf("issuer reply = %v, want Reloaded", reply)
	}

	// By the time the issuer has its reply the broadcast is already in
	// the observer's queue. A command sent now must be answered after it.
	send(t, observer, Command{Type: CmdGetStatus, ID: "o1"})

	first := readMessage(t, observer)
	if first["type"] != NotifyConfigReloaded {
		t.Fatalf("observer first message = %v, want %q", first, NotifyConfigReloaded)
	}
	if first["generation"] != float64(2) {
		t.Errorf("broadcast generation = %v, want 2", first["generation"])
	}
	second := readMessage(t, observer)
	if second["type"] != ReplyStatus {
		t.Errorf("observer second message = %v, want %q", second, ReplyStatus)
	}
}

func waitForSessions(t *testing.T, srv *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if srv.SessionCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session count = %d, want %d", srv.SessionCount(), want)
}

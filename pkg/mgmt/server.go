package mgmt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Evoker-Industries/Janus/pkg/config"
	"github.com/Evoker-Industries/Janus/pkg/stats"
	"github.com/Evoker-Industries/Janus/pkg/upstream"
)

// Reloader triggers an immediate configuration reload, bypassing the
// watcher's debounce. Satisfied by *config.Watcher.
type Reloader interface {
	Reload() (uint64, error)
}

// ServerConfig wires the management server's collaborators.
type ServerConfig struct {
	Config   config.ManagementConfig
	Store    *config.Store
	Reloader Reloader
	Pool     *upstream.Pool
	Tracker  *stats.Tracker
	Logger   *slog.Logger

	// MetricsHandler, when non-nil, is mounted on the management
	// listener at MetricsPath.
	MetricsHandler http.Handler
	MetricsPath    string
}

// Server is the management control plane: a WebSocket endpoint accepting
// persistent sessions that observe and mutate live server state. Mutations
// are serialized; reads run concurrently against immutable snapshots.
type Server struct {
	cfg       config.ManagementConfig
	store     *config.Store
	reloader  Reloader
	pool      *upstream.Pool
	tracker   *stats.Tracker
	logger    *slog.Logger
	startTime time.Time

	metricsHandler http.Handler
	metricsPath    string

	httpServer *http.Server
	upgrader   websocket.Upgrader

	// sessionMu guards the session set; mutateMu serializes
	// state-changing commands across sessions.
	sessionMu sync.RWMutex
	sessions  map[string]*Session
	mutateMu  sync.Mutex
}

// NewServer creates the management server. It does not listen until Start.
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		cfg:            cfg.Config,
		store:          cfg.Store,
		reloader:       cfg.Reloader,
		pool:           cfg.Pool,
		tracker:        cfg.Tracker,
		logger:         cfg.Logger,
		startTime:      time.Now(),
		metricsHandler: cfg.MetricsHandler,
		metricsPath:    cfg.MetricsPath,
		sessions:       make(map[string]*Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The management listener binds separately from the proxy;
			// origin policy is the operator's network boundary.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Start runs the management listener until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleSocket)
	if s.metricsHandler != nil && s.metricsPath != "" {
		mux.Handle(s.metricsPath, s.metricsHandler)
	}

	s.httpServer = &http.Server{
		Addr:        s.cfg.Addr(),
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("management server listening", slog.String("address", s.cfg.Addr()))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

// Shutdown closes every session and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.sessionMu.Lock()
	for _, sess := range s.sessions {
		sess.close()
	}
	s.sessions = make(map[string]*Session)
	s.sessionMu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// SessionCount returns the number of connected sessions.
func (s *Server) SessionCount() int {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	return len(s.sessions)
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	sess := newSession(conn, s.logger)
	s.register(sess)
	defer s.unregister(sess)

	go sess.writeLoop()
	s.logger.Info("management session connected", slog.String("session", sess.id))
	s.readLoop(sess)
	s.logger.Info("management session disconnected", slog.String("session", sess.id))
}

func (s *Server) register(sess *Session) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	s.sessions[sess.id] = sess
}

func (s *Server) unregister(sess *Session) {
	s.sessionMu.Lock()
	delete(s.sessions, sess.id)
	s.sessionMu.Unlock()
	sess.close()
}

// readLoop decodes inbound commands until the connection drops or the
// client asks to disconnect.
func (s *Server) readLoop(sess *Session) {
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			sess.enqueue(errorReply("", "malformed command: "+err.Error()))
			continue
		}

		if done := s.dispatch(sess, cmd); done {
			// Let the write loop flush the final reply before the
			// connection goes away.
			sess.shutdown()
			<-sess.closed
			return
		}
	}
}

// dispatch executes one command and enqueues its reply. A state-changing
// command enqueues the broadcast to every other session before the
// issuer's own reply. Returns true when the session asked to disconnect.
func (s *Server) dispatch(sess *Session, cmd Command) bool {
	switch cmd.Type {
	case CmdReloadConfig:
		s.handleReload(sess, cmd)
	case CmdGetStatus:
		sess.enqueue(s.statusReply(cmd))
	case CmdGetConfig:
		snap := s.store.Get()
		sess.enqueue(Reply{Type: ReplyConfig, ID: cmd.ID, Generation: snap.Generation, Config: snap.Config})
	case CmdGetStats:
		snapshot := s.tracker.Snapshot()
		sess.enqueue(Reply{Type: ReplyStats, ID: cmd.ID, Stats: &snapshot})
	case CmdListUpstreams:
		sess.enqueue(Reply{Type: ReplyUpstreams, ID: cmd.ID, Upstreams: s.pool.Status()})
	case CmdSetUpstreamHealth:
		s.handleSetHealth(sess, cmd)
	case CmdDeleteUpstreamTarget:
		s.handleDeleteTarget(sess, cmd)
	case CmdDisconnect:
		sess.enqueue(Reply{Type: ReplyAck, ID: cmd.ID})
		return true
	default:
		sess.enqueue(errorReply(cmd.ID, "unknown command type "+cmd.Type))
	}
	return false
}

func (s *Server) handleReload(sess *Session, cmd Command) {
	s.mutateMu.Lock()
	generation, err := s.reloader.Reload()
	if err != nil {
		s.mutateMu.Unlock()
		sess.enqueue(errorReply(cmd.ID, "reload rejected: "+err.Error()))
		return
	}
	s.broadcast(sess, Notification{
		Type:       NotifyConfigReloaded,
		Session:    sess.id,
		Generation: generation,
	})
	s.mutateMu.Unlock()

	sess.enqueue(Reply{Type: ReplyReloaded, ID: cmd.ID, Generation: generation})
}

func (s *Server) handleSetHealth(sess *Session, cmd Command) {
	state, ok := upstream.ParseHealthState(cmd.State)
	if !ok {
		sess.enqueue(errorReply(cmd.ID, "unknown health state "+cmd.State))
		return
	}

	s.mutateMu.Lock()
	err := s.pool.SetTargetHealth(cmd.Upstream, cmd.Address, state)
	if err != nil {
		s.mutateMu.Unlock()
		sess.enqueue(errorReply(cmd.ID, err.Error()))
		return
	}
	s.broadcast(sess, Notification{
		Type:     NotifyUpstreamHealthChanged,
		Session:  sess.id,
		Upstream: cmd.Upstream,
		Address:  cmd.Address,
		State:    state.String(),
	})
	s.mutateMu.Unlock()

	sess.enqueue(Reply{Type: ReplyAck, ID: cmd.ID})
}

func (s *Server) handleDeleteTarget(sess *Session, cmd Command) {
	s.mutateMu.Lock()
	err := s.pool.DeleteTarget(cmd.Upstream, cmd.Address)
	if err != nil {
		s.mutateMu.Unlock()
		sess.enqueue(errorReply(cmd.ID, err.Error()))
		return
	}
	s.broadcast(sess, Notification{
		Type:     NotifyTargetDeleted,
		Session:  sess.id,
		Upstream: cmd.Upstream,
		Address:  cmd.Address,
	})
	s.mutateMu.Unlock()

	sess.enqueue(Reply{Type: ReplyAck, ID: cmd.ID})
}

func (s *Server) statusReply(cmd Command) Reply {
	snap := s.store.Get()
	payload := &StatusPayload{
		Generation:    snap.Generation,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Sessions:      s.SessionCount(),
		Upstreams:     len(s.pool.Names()),
		TotalRequests: s.tracker.Snapshot().TotalRequests,
	}
	return Reply{Type: ReplyStatus, ID: cmd.ID, Generation: snap.Generation, Status: payload}
}

// broadcast enqueues a notification to every session except the issuer.
func (s *Server) broadcast(issuer *Session, note Notification) {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	for id, sess := range s.sessions {
		if issuer != nil && id == issuer.id {
			continue
		}
		sess.enqueue(note)
	}
}

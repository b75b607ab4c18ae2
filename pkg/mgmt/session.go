package mgmt

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// outboundQueueSize bounds each session's outbound queue. A session
	// that cannot drain this many messages is torn down rather than
	// allowed to stall the mutation path.
	outboundQueueSize = 64

	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Session is one connected management client. Replies and broadcasts go
// through the bounded outbound queue; the write loop is the only goroutine
// touching the connection for writes.
type Session struct {
	id     string
	conn   *websocket.Conn
	logger *slog.Logger

	outbound chan any

	closeOnce sync.Once
	closed    chan struct{}
	drainOnce sync.Once
	draining  chan struct{}
}

func newSession(conn *websocket.Conn, logger *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		conn:     conn,
		logger:   logger.With(slog.String("session", id)),
		outbound: make(chan any, outboundQueueSize),
		closed:   make(chan struct{}),
		draining: make(chan struct{}),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// enqueue queues one outbound message without blocking. A full queue means
// the client is too slow to keep its view current, so the session is torn
// down instead of blocking the caller.
func (s *Session) enqueue(msg any) {
	select {
	case s.outbound <- msg:
	case <-s.closed:
	default:
		s.logger.Warn("outbound queue overflow, closing session")
		s.close()
	}
}

// writeLoop drains the outbound queue onto the connection and keeps the
// connection alive with pings. Runs on its own goroutine per session.
func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-s.outbound:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Debug("session write failed", slog.String("error", err.Error()))
				s.close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		case <-s.draining:
			s.drainAndClose()
			return
		case <-s.closed:
			return
		}
	}
}

// shutdown asks the write loop to flush pending messages, send a close
// frame, and tear the session down. Used for client-requested disconnects
// so the final reply is not lost.
func (s *Session) shutdown() {
	s.drainOnce.Do(func() { close(s.draining) })
}

func (s *Session) drainAndClose() {
	defer s.close()
	for {
		select {
		case msg := <-s.outbound:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// close tears the session down. Safe to call from any goroutine, more than
// once.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

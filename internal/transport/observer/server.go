// Package observer serves read-only views of the planner: plan summaries over
// HTTP and a websocket stream of tick summaries and planning events.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mrskaggs/cline-ai-sub002/internal/plan/room"
	"github.com/mrskaggs/cline-ai-sub002/internal/protocol"
)

const sessionBuffer = 256

type Server struct {
	store room.Store
	log   *log.Logger

	// AllowRemote disables the loopback-only guard.
	AllowRemote bool

	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	nextID       atomic.Uint64
	tick     atomic.Uint64

	mu       sync.RWMutex
	sessions map[string]*session
	dropped  atomic.Uint64
}

type session struct {
	id  string
	out chan []byte

	mu     sync.Mutex
	rooms  map[string]bool
	events bool
}

func (s *session) wants(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms) == 0 || s.rooms[room]
}

func (s *session) wantsEvents() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

func (s *session) subscribe(sub protocol.SubscribeMsg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = make(map[string]bool, len(sub.Rooms))
	for _, r := range sub.Rooms {
		if r = strings.TrimSpace(r); r != "" {
			s.rooms[r] = true
		}
	}
	s.events = sub.Events
}

func NewServer(store room.Store, logger *log.Logger) *Server {
	return &Server{
		store: store,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		writeTimeout: 5 * time.Second,
		sessions:     map[string]*session{},
	}
}

// Handler routes the observer endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/plans", s.plansHandler)
	mux.HandleFunc("GET /v1/plans/{room}", s.planHandler)
	mux.HandleFunc("GET /v1/observe", s.wsHandler)
	return mux
}

// Publish forwards a tick summary to every session, trimmed to the rooms the
// session follows. Slow sessions lose messages instead of stalling the loop.
func (s *Server) Publish(sum protocol.TickSummary) {
	s.tick.Store(sum.Tick)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		view := sum
		view.Rooms = nil
		for _, rt := range sum.Rooms {
			if sess.wants(rt.Room) {
				view.Rooms = append(view.Rooms, rt)
			}
		}
		if len(view.Rooms) == 0 {
			continue
		}
		s.send(sess, view)
	}
}

// Emit implements room.EventSink.
func (s *Server) Emit(ev room.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg := ev.Message()
	for _, sess := range s.sessions {
		if sess.wantsEvents() && sess.wants(ev.Room) {
			s.send(sess, msg)
		}
	}
}

// Dropped counts messages discarded because a session fell behind.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) send(sess *session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logf("observer: marshal: %v", err)
		return
	}
	select {
	case sess.out <- b:
	default:
		s.dropped.Add(1)
	}
}

func (s *Server) plansHandler(rw http.ResponseWriter, r *http.Request) {
	if !s.allowed(r) {
		writeError(rw, http.StatusForbidden, protocol.ErrBadRequest, "forbidden")
		return
	}
	tick := s.tick.Load()
	out := make([]protocol.PlanSummary, 0)
	for _, name := range s.store.Rooms() {
		rec, ok := s.store.Load(name)
		if !ok || rec.Plan == nil {
			continue
		}
		out = append(out, protocol.NewPlanSummary(tick, rec.Plan, false))
	}
	writeJSON(rw, http.StatusOK, out)
}

func (s *Server) planHandler(rw http.ResponseWriter, r *http.Request) {
	if !s.allowed(r) {
		writeError(rw, http.StatusForbidden, protocol.ErrBadRequest, "forbidden")
		return
	}
	name := r.PathValue("room")
	rec, ok := s.store.Load(name)
	if !ok || rec.Plan == nil {
		writeError(rw, http.StatusNotFound, protocol.ErrNotFound, fmt.Sprintf("room %s has no plan", name))
		return
	}
	writeJSON(rw, http.StatusOK, protocol.NewPlanSummary(s.tick.Load(), rec.Plan, true))
}

func (s *Server) wsHandler(rw http.ResponseWriter, r *http.Request) {
	if !s.allowed(r) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Handshake: must send SUBSCRIBE first.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return
	}
	sub, ok := decodeSubscribe(msg)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
		return
	}

	sess := &session{id: fmt.Sprintf("O%d", s.nextID.Add(1)), out: make(chan []byte, sessionBuffer)}
	sess.subscribe(sub)
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	s.logf("observer %s joined (rooms=%v events=%v)", sess.id, sub.Rooms, sub.Events)
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
		s.logf("observer %s left", sess.id)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writeErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				writeErr <- ctx.Err()
				return
			case b := <-sess.out:
				_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					// Unblocks the reader so the session ends now.
					_ = conn.Close()
					return
				}
			}
		}
	}()

	// Reader loop: SUBSCRIBE may be resent to change the filter.
	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if sub, ok := decodeSubscribe(msg); ok {
			sess.subscribe(sub)
		}
	}

	cancel()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	select {
	case <-writeErr:
	case <-time.After(500 * time.Millisecond):
	}
}

func decodeSubscribe(b []byte) (protocol.SubscribeMsg, bool) {
	var sub protocol.SubscribeMsg
	if err := json.Unmarshal(b, &sub); err != nil {
		return sub, false
	}
	return sub, sub.Type == protocol.TypeSubscribe && sub.ProtocolVersion == protocol.Version
}

func (s *Server) allowed(r *http.Request) bool {
	return s.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, protocol.NewError(code, msg))
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

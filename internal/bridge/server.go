// Package bridge exposes a review session over loopback HTTP so the browser
// front-end can drive the same controller the terminal UI uses.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/kingrea/standin/internal/backend"
	"github.com/kingrea/standin/internal/swipe"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

var errServerDisabled = errors.New("bridge: server disabled")

// Session is the slice of swipe.Driver the bridge drives.
type Session interface {
	Start(reviewingUserID int64) (swipe.ViewModel, error)
	Decide(action swipe.Action) (swipe.ViewModel, error)
	Retry() (swipe.ViewModel, error)
	Reset() swipe.ViewModel
	View() swipe.ViewModel
}

// MatchLister lists a user's matches. backend.Social satisfies it.
type MatchLister interface {
	Matches(ctx context.Context, userID int64) ([]backend.Match, error)
}

// Journal receives one line per session-level event. logbook.Logbook satisfies it.
type Journal interface {
	Info(format string, args ...any)
}

// Server wraps the HTTP listener and handlers backing the bridge.
type Server struct {
	settings Settings
	session  Session
	matches  MatchLister
	feed     *Feed
	logger   Logger
	journal  Journal
	clock    func() time.Time

	// lifecycle serializes session start and reset with the id tagging.
	lifecycle sync.Mutex

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
	sessionID string
}

// Option customizes server construction.
type Option func(*Server)

// WithMatches enables GET /matches/{userId}.
func WithMatches(m MatchLister) Option {
	return func(s *Server) {
		s.matches = m
	}
}

// WithFeed enables GET /session/events. The same feed should observe the session's driver.
func WithFeed(f *Feed) Option {
	return func(s *Server) {
		s.feed = f
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithJournal records session starts, decisions and resets.
func WithJournal(j Journal) Option {
	return func(s *Server) {
		s.journal = j
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a bridge server that drives session.
func NewServer(settings Settings, session Session, opts ...Option) *Server {
	s := &Server{
		settings: settings,
		session:  session,
		logger:   nopLogger{},
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/session", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/session", s.handleView).Methods(http.MethodGet)
	r.HandleFunc("/session", s.handleReset).Methods(http.MethodDelete)
	r.HandleFunc("/session/decision", s.handleDecision).Methods(http.MethodPost)
	r.HandleFunc("/session/retry", s.handleRetry).Methods(http.MethodPost)
	r.HandleFunc("/session/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/matches/{userId}", s.handleMatches).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
	c := cors.New(cors.Options{
		AllowedOrigins: s.settings.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", backend.RequestIDHeader},
	})
	return c.Handler(r)
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("bridge: server is nil")
	}
	if !s.settings.Enabled {
		return errServerDisabled
	}
	if s.session == nil {
		return fmt.Errorf("bridge: no session to serve")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("bridge: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.startTime = s.clock()
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("bridge: serve error: %v", err)
		}
	}()
	s.logger.Printf("bridge: listening on %s", listener.Addr().String())
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(deadline); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.clock().Sub(s.startTime).Seconds())
}

func (s *Server) currentSessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(s.Status()),
		Version:       ProtocolVersion,
		SessionStatus: string(s.session.View().Status),
		UptimeSeconds: s.uptimeSeconds(),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	id := int64(req.UsuarioID)
	sessionID := uuid.NewString()
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.mu.Lock()
	previous := s.sessionID
	s.sessionID = sessionID
	s.mu.Unlock()
	// Tag the feed first: the new session's snapshots can arrive before Start returns.
	s.setFeedSession(sessionID)
	view, err := s.session.Start(id)
	if err != nil {
		s.mu.Lock()
		s.sessionID = previous
		s.mu.Unlock()
		s.setFeedSession(previous)
		s.writeError(w, err)
		return
	}
	s.journalInfo("session %s started for user %d", sessionID, id)
	s.writeView(w, http.StatusAccepted, view)
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	s.writeView(w, http.StatusOK, s.session.View())
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	action, err := req.Validate()
	if err != nil {
		s.writeError(w, err)
		return
	}
	view, err := s.session.Decide(action)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if candidate, ok := decidedCandidate(action, view); ok {
		s.journalInfo("session %s: %s user %d", s.currentSessionID(), action, candidate.OriginUserID)
	}
	s.writeView(w, http.StatusAccepted, view)
}

// decidedCandidate reads the candidate a successful Decide acted on from the
// view it returned. A reject has already advanced and recorded the decision;
// an accept leaves the cursor on its candidate until the submission lands.
func decidedCandidate(action swipe.Action, view swipe.ViewModel) (swipe.Candidate, bool) {
	if action == swipe.ActionReject {
		if view.LastDecision == nil {
			return swipe.Candidate{}, false
		}
		return view.LastDecision.Candidate, true
	}
	if view.Candidate == nil {
		return swipe.Candidate{}, false
	}
	return *view.Candidate, true
}

func (s *Server) handleRetry(w http.ResponseWriter, _ *http.Request) {
	view, err := s.session.Retry()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeView(w, http.StatusAccepted, view)
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	view := s.session.Reset()
	s.mu.Lock()
	previous := s.sessionID
	s.sessionID = ""
	s.mu.Unlock()
	s.setFeedSession("")
	if previous != "" {
		s.journalInfo("session %s reset", previous)
	}
	s.writeView(w, http.StatusOK, view)
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	if s.matches == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "matches are not available"})
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["userId"], 10, 64)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: userId must be an integer", swipe.ErrInvalidInput))
		return
	}
	matches, err := s.matches.Matches(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matchesResponse{UserID: id, Matches: matches})
}

// handleEvents streams view snapshots as server-sent events until the client leaves.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "event stream is not available"})
		return
	}
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}
	sub := s.feed.Subscribe()
	defer sub.Close()
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-sub.Updates:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				s.logger.Printf("bridge: encode snapshot %d: %v", snap.Seq, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: view\ndata: %s\n\n", snap.Seq, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "payload exceeds limit"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unable to read body"})
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		if errors.Is(err, swipe.ErrInvalidInput) {
			s.writeError(w, err)
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return false
	}
	return true
}

func (s *Server) writeView(w http.ResponseWriter, status int, view swipe.ViewModel) {
	writeJSON(w, status, sessionResponse{
		SessionID:  s.currentSessionID(),
		ServerTime: s.clock().UTC(),
		View:       view,
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Printf("bridge: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Mensaje: swipe.Message(err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, swipe.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, swipe.ErrNotReviewing),
		errors.Is(err, swipe.ErrDecisionInFlight),
		errors.Is(err, swipe.ErrNothingToRetry):
		return http.StatusConflict
	case errors.Is(err, swipe.ErrConnectionFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, swipe.ErrRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) setFeedSession(id string) {
	if s.feed != nil {
		s.feed.SetSession(id)
	}
}

func (s *Server) journalInfo(format string, args ...any) {
	if s.journal != nil {
		s.journal.Info(format, args...)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kingrea/standin/internal/backend"
	"github.com/kingrea/standin/internal/config"
	"github.com/kingrea/standin/internal/swipe"
)

type memorySource struct {
	queues map[int64]swipe.Queue
}

func (m memorySource) LoadQueue(ctx context.Context, reviewingUserID int64) (swipe.Queue, error) {
	if err := swipe.ValidateUserID(reviewingUserID); err != nil {
		return nil, err
	}
	return m.queues[reviewingUserID], nil
}

type memoryEnricher struct{}

func (memoryEnricher) Enrich(ctx context.Context, originUserID int64) (swipe.EnrichedProfile, error) {
	return swipe.EnrichedProfile{UserID: originUserID, DisplayName: "Candidate", Photos: []swipe.Photo{}}, nil
}

type memoryActions struct {
	mu    sync.Mutex
	liked []int64
}

func (m *memoryActions) SubmitAccept(ctx context.Context, reviewingUserID, candidateOriginUserID int64) (swipe.AcceptResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liked = append(m.liked, candidateOriginUserID)
	return swipe.AcceptResult{IsMatch: candidateOriginUserID == 42}, nil
}

type memoryMatches struct{}

func (memoryMatches) Matches(ctx context.Context, userID int64) ([]backend.Match, error) {
	if err := swipe.ValidateUserID(userID); err != nil {
		return nil, err
	}
	return []backend.Match{{ID: 1, UserA: 42, UserB: userID}}, nil
}

type journalLines struct {
	mu    sync.Mutex
	lines []string
}

func (j *journalLines) Info(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lines = append(j.lines, fmt.Sprintf(format, args...))
}

type bridgeFixture struct {
	srv     *Server
	driver  *swipe.Driver
	feed    *Feed
	actions *memoryActions
	journal *journalLines
}

func startBridge(t *testing.T) *bridgeFixture {
	t.Helper()
	actions := &memoryActions{}
	ctl := swipe.NewController(
		memorySource{queues: map[int64]swipe.Queue{99: {{LikeRecordID: 1, OriginUserID: 42}, {LikeRecordID: 2, OriginUserID: 7}}}},
		memoryEnricher{},
		actions,
	)
	feed := NewFeed()
	driver := swipe.NewDriver(context.Background(), ctl, swipe.WithObserver(feed.Publish))
	journal := &journalLines{}
	settings := Settings{Enabled: true, Host: "127.0.0.1", Port: 0, MaxBodyBytes: 1024, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second}
	settings.normalize()
	srv := NewServer(settings, driver,
		WithFeed(feed),
		WithMatches(memoryMatches{}),
		WithJournal(journal),
	)
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		driver.Close()
	})
	return &bridgeFixture{srv: srv, driver: driver, feed: feed, actions: actions, journal: journal}
}

func postJSON(t *testing.T, url string, body string) (*http.Response, sessionResponse) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out sessionResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func getView(t *testing.T, base string) sessionResponse {
	t.Helper()
	resp, err := http.Get(base + "/session")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	defer resp.Body.Close()
	var out sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return out
}

func TestSettingsFromConfig(t *testing.T) {
	disabled := false
	cfg := &config.Config{Project: config.ProjectConfig{Bridge: config.BridgeConfig{
		Enabled:        &disabled,
		Host:           "0.0.0.0",
		Port:           9001,
		AllowedOrigins: []string{"http://localhost:5500"},
	}}}
	settings := SettingsFromConfig(cfg)
	if settings.Port != 9001 || settings.Host != "0.0.0.0" || settings.Enabled {
		t.Fatalf("settings = %+v", settings)
	}
	if len(settings.AllowedOrigins) != 1 {
		t.Fatalf("origins = %v", settings.AllowedOrigins)
	}
	defaults := SettingsFromConfig(nil)
	if defaults.Address() != "127.0.0.1:8790" || len(defaults.AllowedOrigins) == 0 {
		t.Fatalf("defaults = %+v", defaults)
	}
}

func TestServerRunsASession(t *testing.T) {
	fx := startBridge(t)
	base := fx.srv.BaseURL()

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	resp.Body.Close()
	if health.Status != string(StatusReady) || health.SessionStatus != string(swipe.StatusIdle) {
		t.Fatalf("health = %+v", health)
	}

	resp, started := postJSON(t, base+"/session", `{"usuarioId":"99"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	if started.SessionID == "" || started.View.Status != swipe.StatusLoading {
		t.Fatalf("start = %+v", started)
	}
	fx.driver.Wait()

	view := getView(t, base)
	if view.View.Profile == nil || view.View.Profile.UserID != 42 {
		t.Fatalf("view = %+v, want candidate 42", view.View)
	}

	resp, _ = postJSON(t, base+"/session/decision", `{"action":"like"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("like status = %d", resp.StatusCode)
	}
	fx.driver.Wait()
	view = getView(t, base)
	if view.View.LastDecision == nil || !view.View.LastDecision.IsMatch || view.View.Cursor != 1 {
		t.Fatalf("after like = %+v", view.View)
	}

	postJSON(t, base+"/session/decision", `{"action":"dislike"}`)
	fx.driver.Wait()
	if got := getView(t, base).View.Status; got != swipe.StatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
	fx.actions.mu.Lock()
	liked := append([]int64(nil), fx.actions.liked...)
	fx.actions.mu.Unlock()
	if len(liked) != 1 || liked[0] != 42 {
		t.Fatalf("liked = %v, want only 42", liked)
	}
	fx.journal.mu.Lock()
	defer fx.journal.mu.Unlock()
	if len(fx.journal.lines) != 3 {
		t.Fatalf("journal lines = %v, want start and two decisions", fx.journal.lines)
	}
}

func TestServerMapsErrors(t *testing.T) {
	fx := startBridge(t)
	base := fx.srv.BaseURL()

	resp, _ := postJSON(t, base+"/session", `{"usuarioId":-1}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative id status = %d, want 400", resp.StatusCode)
	}
	resp, _ = postJSON(t, base+"/session", `{"usuarioId":"abc"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("non-numeric id status = %d, want 400", resp.StatusCode)
	}
	resp, _ = postJSON(t, base+"/session", `not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad json status = %d, want 400", resp.StatusCode)
	}
	resp, _ = postJSON(t, base+"/session/decision", `{"action":"like"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("decide while idle status = %d, want 409", resp.StatusCode)
	}
	resp, _ = postJSON(t, base+"/session/decision", `{"action":"superlike"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown action status = %d, want 400", resp.StatusCode)
	}
	resp, _ = postJSON(t, base+"/session", strings.Repeat("x", 2048))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized body status = %d, want 413", resp.StatusCode)
	}
	req, _ := http.NewRequest(http.MethodPut, base+"/session", nil)
	put, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	put.Body.Close()
	if put.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("put status = %d, want 405", put.StatusCode)
	}
}

func TestServerResetAndMatches(t *testing.T) {
	fx := startBridge(t)
	base := fx.srv.BaseURL()
	postJSON(t, base+"/session", `{"usuarioId":99}`)
	fx.driver.Wait()

	req, _ := http.NewRequest(http.MethodDelete, base+"/session", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	var reset sessionResponse
	_ = json.NewDecoder(resp.Body).Decode(&reset)
	resp.Body.Close()
	if reset.View.Status != swipe.StatusIdle || reset.SessionID != "" {
		t.Fatalf("reset = %+v", reset)
	}

	resp, err = http.Get(base + "/matches/99")
	if err != nil {
		t.Fatalf("matches: %v", err)
	}
	var matches matchesResponse
	_ = json.NewDecoder(resp.Body).Decode(&matches)
	resp.Body.Close()
	if len(matches.Matches) != 1 || matches.Matches[0].Other(99) != 42 {
		t.Fatalf("matches = %+v", matches)
	}
	resp, err = http.Get(base + "/matches/zero")
	if err != nil {
		t.Fatalf("matches: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", resp.StatusCode)
	}
}

func TestServerAllowsConfiguredOrigin(t *testing.T) {
	fx := startBridge(t)
	req, _ := http.NewRequest(http.MethodOptions, fx.srv.BaseURL()+"/session", nil)
	req.Header.Set("Origin", "http://localhost:5500")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5500" {
		t.Fatalf("allow origin = %q", got)
	}
}

func TestServerStreamsSnapshots(t *testing.T) {
	fx := startBridge(t)
	base := fx.srv.BaseURL()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, base+"/session/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	for fx.feed.Subscribers() == 0 {
		time.Sleep(time.Millisecond)
	}

	postJSON(t, base+"/session", `{"usuarioId":99}`)
	fx.driver.Wait()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var snap Snapshot
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		if snap.View.Status == swipe.StatusReviewing && snap.View.Profile != nil {
			if snap.SessionID == "" {
				t.Fatalf("snapshot missing session id")
			}
			return
		}
	}
	t.Fatalf("stream ended before a reviewing snapshot: %v", scanner.Err())
}

// scriptedSession returns canned views. Start for blockedID parks until gate
// closes and then fails.
type scriptedSession struct {
	view      swipe.ViewModel
	decided   swipe.ViewModel
	blockedID int64
	entered   chan struct{}
	gate      chan struct{}
}

func (s *scriptedSession) Start(id int64) (swipe.ViewModel, error) {
	if id == s.blockedID {
		close(s.entered)
		<-s.gate
		return swipe.ViewModel{}, swipe.ErrConnectionFailed
	}
	return swipe.ViewModel{Status: swipe.StatusLoading, ReviewingUserID: id}, nil
}

func (s *scriptedSession) Decide(swipe.Action) (swipe.ViewModel, error) { return s.decided, nil }
func (s *scriptedSession) Retry() (swipe.ViewModel, error)              { return s.view, nil }
func (s *scriptedSession) Reset() swipe.ViewModel                        { return swipe.ViewModel{} }
func (s *scriptedSession) View() swipe.ViewModel                         { return s.view }

func serve(handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestDecisionJournalNamesTheDecidedCandidate(t *testing.T) {
	first := swipe.Candidate{LikeRecordID: 1, OriginUserID: 42}
	second := swipe.Candidate{LikeRecordID: 2, OriginUserID: 7}
	third := swipe.Candidate{LikeRecordID: 3, OriginUserID: 5}
	// View already shows a later cursor than the one Decide acted on.
	session := &scriptedSession{
		view:    swipe.ViewModel{Status: swipe.StatusReviewing, Cursor: 2, Candidate: &third},
		decided: swipe.ViewModel{Status: swipe.StatusReviewing, Cursor: 1, Candidate: &second, LastDecision: &swipe.Decision{Action: swipe.ActionReject, Candidate: first}},
	}
	journal := &journalLines{}
	srv := NewServer(Settings{MaxBodyBytes: 1024}, session, WithJournal(journal))
	handler := srv.Handler()

	if rec := serve(handler, http.MethodPost, "/session/decision", `{"action":"dislike"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("reject status = %d: %s", rec.Code, rec.Body.String())
	}
	session.decided = swipe.ViewModel{Status: swipe.StatusReviewing, Cursor: 1, Candidate: &second, Deciding: true}
	if rec := serve(handler, http.MethodPost, "/session/decision", `{"action":"like"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("accept status = %d: %s", rec.Code, rec.Body.String())
	}

	journal.mu.Lock()
	defer journal.mu.Unlock()
	if len(journal.lines) != 2 {
		t.Fatalf("journal = %v", journal.lines)
	}
	if !strings.Contains(journal.lines[0], "user 42") || !strings.Contains(journal.lines[1], "user 7") {
		t.Fatalf("journal = %v, want user 42 then user 7", journal.lines)
	}
}

func TestConcurrentStartsKeepFeedAndSessionInStep(t *testing.T) {
	session := &scriptedSession{blockedID: 1, entered: make(chan struct{}), gate: make(chan struct{})}
	feed := NewFeed()
	srv := NewServer(Settings{MaxBodyBytes: 1024}, session, WithFeed(feed))
	handler := srv.Handler()

	var wg sync.WaitGroup
	var winner *httptest.ResponseRecorder
	wg.Add(1)
	go func() {
		defer wg.Done()
		serve(handler, http.MethodPost, "/session", `{"usuarioId":1}`)
	}()
	<-session.entered
	wg.Add(1)
	go func() {
		defer wg.Done()
		winner = serve(handler, http.MethodPost, "/session", `{"usuarioId":2}`)
	}()
	time.Sleep(20 * time.Millisecond)
	close(session.gate)
	wg.Wait()

	if winner.Code != http.StatusAccepted {
		t.Fatalf("second start status = %d: %s", winner.Code, winner.Body.String())
	}
	var resp sessionResponse
	if err := json.Unmarshal(winner.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	current := srv.currentSessionID()
	if current == "" || current != resp.SessionID {
		t.Fatalf("server session = %q, want the successful start's %q", current, resp.SessionID)
	}
	feed.mu.RLock()
	tagged := feed.sessionID
	feed.mu.RUnlock()
	if tagged != current {
		t.Fatalf("feed tagged %q, server holds %q", tagged, current)
	}
}

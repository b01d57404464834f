// internal/tui/app.go
//
// This is the main TUI (Terminal User Interface) for standin.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// The review session itself lives in swipe.Controller. Its network steps
// run as tea.Cmds and their events come back through Update, so the
// controller is only ever touched from this loop.

package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kingrea/standin/internal/backend"
	"github.com/kingrea/standin/internal/config"
	"github.com/kingrea/standin/internal/logbook"
	"github.com/kingrea/standin/internal/logging"
	"github.com/kingrea/standin/internal/swipe"
)

// appState represents which "screen" we're on
type appState int

const (
	statePrompt  appState = iota // Asking for the reviewing user id
	stateReview                  // Walking the likes-received queue
	stateMatches                 // Browsing the reviewer's matches
)

// MatchLister lists a user's matches. backend.Social satisfies it.
type MatchLister interface {
	Matches(ctx context.Context, userID int64) ([]backend.Match, error)
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithController swaps the session controller, typically for one wired to fakes.
func WithController(ctl *swipe.Controller) AppOption {
	return func(a *App) {
		if ctl != nil {
			a.controller = ctl
		}
	}
}

// WithMatchLister swaps the matches source.
func WithMatchLister(m MatchLister) AppOption {
	return func(a *App) {
		if m != nil {
			a.matchLister = m
		}
	}
}

// sessionEventMsg carries a finished controller step back into Update.
type sessionEventMsg struct {
	event swipe.Event
}

type matchesLoadedMsg struct {
	userID  int64
	matches []backend.Match
	err     error
}

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	state       appState
	config      *config.Config
	logbook     *logbook.Logbook
	logger      *logging.Logger
	controller  *swipe.Controller
	matchLister MatchLister

	ctx    context.Context
	cancel context.CancelFunc

	// UI components
	input       textinput.Model
	spinner     spinner.Model
	matchesList list.Model
	titleCaser  cases.Caser
	statusMsg   string
	inputErr    string

	sessionID   string
	lastView    swipe.ViewModel
	matchesFor  int64
	loadingList bool

	// Window size (we get this from bubbletea)
	width  int
	height int
}

// matchItem implements list.Item for the matches screen.
type matchItem struct {
	match  backend.Match
	viewer int64
}

func (i matchItem) Title() string { return fmt.Sprintf("Match #%d", i.match.ID) }
func (i matchItem) Description() string {
	desc := fmt.Sprintf("with user %d", i.match.Other(i.viewer))
	if created := strings.TrimSpace(i.match.CreatedAt); created != "" {
		desc += " · since " + created
	}
	return desc
}
func (i matchItem) FilterValue() string { return strconv.FormatInt(i.match.Other(i.viewer), 10) }

// NewApp creates a new App instance
func NewApp(projectDir string, opts ...AppOption) (*App, error) {
	if err := config.InitStandinDir(projectDir); err != nil {
		return nil, err
	}
	cfg, err := config.NewConfig(projectDir)
	if err != nil {
		return nil, err
	}
	lb, err := logbook.New(filepath.Join(cfg.LogsDir(), "journey.log"))
	if err == nil {
		lb.Info("Terminal opened")
	}
	logger, err := logging.New(projectDir, "standin")
	if err != nil {
		return nil, err
	}

	services := backend.FromConfig(cfg, logger)

	input := textinput.New()
	input.Placeholder = "user id"
	input.CharLimit = 19
	input.Width = 20
	input.Prompt = "› "
	if id := cfg.DefaultUserID(); id > 0 {
		input.SetValue(strconv.FormatInt(id, 10))
	}
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = accentStyle

	matchesList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	matchesList.Title = "Matches"
	matchesList.SetShowStatusBar(false)
	matchesList.SetFilteringEnabled(false)

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		state:       statePrompt,
		config:      cfg,
		logbook:     lb,
		logger:      logger,
		controller:  services.Controller(logger),
		matchLister: services.Social,
		ctx:         ctx,
		cancel:      cancel,
		input:       input,
		spinner:     spin,
		matchesList: matchesList,
		titleCaser:  cases.Title(language.Und),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	app.lastView = app.controller.View()
	return app, nil
}

// Close cancels in-flight requests and releases the diagnostic log.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	return errors.Join(a.logbook.Close(), a.logger.Close())
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

func (a *App) logWarn(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Warn(format, args...)
}

func (a *App) logError(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Error(format, args...)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.matchesList.SetSize(max(0, msg.Width-6), max(0, msg.Height-12))
		return a, nil

	case sessionEventMsg:
		next := a.controller.Apply(msg.event)
		a.observe()
		return a, a.runStep(next)

	case matchesLoadedMsg:
		return a.handleMatchesLoaded(msg)

	case spinner.TickMsg:
		if !a.busy() {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "ctrl+c", "q":
			return a, tea.Quit
		}
		switch a.state {
		case statePrompt:
			return a.updatePrompt(msg)
		case stateReview:
			return a.updateReview(key)
		case stateMatches:
			if key == "esc" {
				return a.leaveMatches()
			}
		}
	}

	var cmd tea.Cmd
	switch a.state {
	case statePrompt:
		a.input, cmd = a.input.Update(msg)
	case stateMatches:
		a.matchesList, cmd = a.matchesList.Update(msg)
	}
	return a, cmd
}

func (a *App) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return a.startSession()
	case "m":
		return a.openMatches()
	}
	if msg.Type == tea.KeyRunes && !allDigits(msg.Runes) {
		return a, nil
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	a.inputErr = ""
	return a, cmd
}

func allDigits(runes []rune) bool {
	for _, r := range runes {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (a *App) updateReview(key string) (tea.Model, tea.Cmd) {
	view := a.controller.View()
	switch key {
	case "l", "right":
		return a.decide(swipe.ActionAccept)
	case "h", "left":
		return a.decide(swipe.ActionReject)
	case "r":
		step, err := a.controller.Retry()
		if err != nil {
			a.statusMsg = swipe.Message(err)
			return a, nil
		}
		a.statusMsg = "Retrying profile..."
		a.observe()
		return a, tea.Batch(a.runStep(step), a.spinner.Tick)
	case "m":
		return a.openMatches()
	case "enter":
		if view.Status.Terminal() {
			return a.startSession()
		}
	case "esc":
		a.controller.Reset()
		a.observe()
		a.state = statePrompt
		a.input.Focus()
		a.statusMsg = ""
		if a.sessionID != "" {
			a.logInfo("Session %s · closed", a.sessionID)
			a.sessionID = ""
		}
	}
	return a, nil
}

// startSession validates the prompt and begins loading the queue.
func (a *App) startSession() (tea.Model, tea.Cmd) {
	raw := strings.TrimSpace(a.input.Value())
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		a.inputErr = fmt.Sprintf("%q is not a user id", raw)
		return a, nil
	}
	step, err := a.controller.Start(id)
	if err != nil {
		a.inputErr = swipe.Message(err)
		return a, nil
	}
	a.inputErr = ""
	a.statusMsg = ""
	a.state = stateReview
	a.input.Blur()
	a.sessionID = uuid.NewString()[:8]
	a.logInfo("Session %s · reviewing likes for user %d", a.sessionID, id)
	if id != a.config.DefaultUserID() {
		if err := a.config.SetDefaultUserID(id); err != nil {
			a.logWarn("Could not remember user %d: %v", id, err)
		}
	}
	a.observe()
	return a, tea.Batch(a.runStep(step), a.spinner.Tick)
}

func (a *App) decide(action swipe.Action) (tea.Model, tea.Cmd) {
	current := a.controller.View().Candidate
	step, err := a.controller.Decide(action)
	if err != nil {
		a.statusMsg = swipe.Message(err)
		return a, nil
	}
	a.statusMsg = ""
	if current != nil {
		verb := "Liked"
		if action == swipe.ActionReject {
			verb = "Passed on"
		}
		a.logInfo("Session %s · %s user %d", a.sessionID, verb, current.OriginUserID)
	}
	a.observe()
	if step == nil {
		return a, nil
	}
	return a, tea.Batch(a.runStep(step), a.spinner.Tick)
}

// runStep wraps a controller step as a tea.Cmd.
func (a *App) runStep(step swipe.Step) tea.Cmd {
	if step == nil {
		return nil
	}
	ctx := a.ctx
	return func() tea.Msg {
		return sessionEventMsg{event: step(ctx)}
	}
}

// observe journals the transitions between the previous and current view.
func (a *App) observe() {
	prev := a.lastView
	view := a.controller.View()
	a.lastView = view
	if view.Status == prev.Status && sameDecision(prev.LastDecision, view.LastDecision) && len(view.Errors) == len(prev.Errors) {
		return
	}
	if d := view.LastDecision; d != nil && d.IsMatch && !sameDecision(prev.LastDecision, d) {
		a.logInfo("Session %s · It's a match with user %d", a.sessionID, d.Candidate.OriginUserID)
	}
	if view.Status != prev.Status {
		switch view.Status {
		case swipe.StatusCompleted:
			a.logInfo("Session %s · queue finished (%d reviewed)", a.sessionID, view.Total)
		case swipe.StatusLoadFailed:
			a.logError("Session %s · could not load likes: %v", a.sessionID, view.Err)
		}
	}
	if len(view.Errors) > len(prev.Errors) && view.Status == swipe.StatusReviewing {
		a.logWarn("Session %s · %s", a.sessionID, view.Errors[len(view.Errors)-1])
	}
}

func sameDecision(a, b *swipe.Decision) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (a *App) busy() bool {
	view := a.controller.View()
	return view.Status == swipe.StatusLoading || view.Enriching || view.Deciding || a.loadingList
}

func (a *App) reviewerID() int64 {
	if id := a.controller.State().ReviewingUserID; id > 0 {
		return id
	}
	id, _ := strconv.ParseInt(strings.TrimSpace(a.input.Value()), 10, 64)
	return id
}

func (a *App) openMatches() (tea.Model, tea.Cmd) {
	id := a.reviewerID()
	if err := swipe.ValidateUserID(id); err != nil {
		a.inputErr = "Enter your user id to see matches"
		return a, nil
	}
	if a.matchLister == nil {
		a.statusMsg = "Matches are not available"
		return a, nil
	}
	a.state = stateMatches
	a.matchesFor = id
	a.loadingList = true
	a.matchesList.Title = fmt.Sprintf("Matches for user %d", id)
	a.matchesList.SetItems(nil)
	lister := a.matchLister
	ctx := a.ctx
	return a, tea.Batch(func() tea.Msg {
		matches, err := lister.Matches(ctx, id)
		return matchesLoadedMsg{userID: id, matches: matches, err: err}
	}, a.spinner.Tick)
}

func (a *App) handleMatchesLoaded(msg matchesLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.userID != a.matchesFor {
		return a, nil
	}
	a.loadingList = false
	if msg.err != nil {
		a.statusMsg = swipe.Message(msg.err)
		a.logWarn("Matches for user %d unavailable: %v", msg.userID, msg.err)
		return a, nil
	}
	items := make([]list.Item, 0, len(msg.matches))
	for _, m := range msg.matches {
		items = append(items, matchItem{match: m, viewer: msg.userID})
	}
	a.statusMsg = ""
	if len(items) == 0 {
		a.statusMsg = "No matches yet"
	}
	return a, a.matchesList.SetItems(items)
}

func (a *App) leaveMatches() (tea.Model, tea.Cmd) {
	a.loadingList = false
	a.matchesFor = 0
	a.statusMsg = ""
	if a.controller.View().Status == swipe.StatusIdle {
		a.state = statePrompt
		a.input.Focus()
		return a, textinput.Blink
	}
	a.state = stateReview
	return a, nil
}

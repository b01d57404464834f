package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/standin/internal/logbook"
	"github.com/kingrea/standin/internal/swipe"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	bodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F2C94C"))
	matchStyle  = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF6B6B")).
			Padding(0, 2)
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// View renders the current screen.
func (a *App) View() string {
	var main string
	switch a.state {
	case stateReview:
		main = a.renderReview()
	case stateMatches:
		main = a.renderMatches()
	default:
		main = a.renderPrompt()
	}
	width := max(40, a.width-4)
	sections := []string{
		headerStyle.Render("♥ STANDIN"),
		boxStyle.Width(width).Render(main),
	}
	if logPanel := a.renderLogPanel(width); logPanel != "" {
		sections = append(sections, logPanel)
	}
	sections = append(sections, a.renderFooter())
	return strings.Join(sections, "\n")
}

func (a *App) renderPrompt() string {
	lines := []string{
		accentStyle.Bold(true).Render("Review the people who liked you"),
		"",
		"Your user id:",
		a.input.View(),
	}
	if a.inputErr != "" {
		lines = append(lines, "", errorStyle.Render(a.inputErr))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderReview() string {
	view := a.controller.View()
	var lines []string
	lines = append(lines, accentStyle.Bold(true).Render(a.progressLine(view)), "")

	switch view.Status {
	case swipe.StatusLoading:
		lines = append(lines, fmt.Sprintf("%s Loading the people who liked you...", a.spinner.View()))
	case swipe.StatusLoadFailed:
		lines = append(lines,
			errorStyle.Render(swipe.Message(view.Err)),
			mutedStyle.Render("Press enter to try again or esc to change user."),
		)
	case swipe.StatusCompleted:
		if banner := a.renderMatchBanner(view); banner != "" {
			lines = append(lines, banner, "")
		}
		if view.Total == 0 {
			lines = append(lines, "Nobody has liked you yet.")
		} else {
			lines = append(lines, "You're all caught up.")
		}
		lines = append(lines, mutedStyle.Render("Press enter to review again, m for matches."))
	case swipe.StatusReviewing:
		if banner := a.renderMatchBanner(view); banner != "" {
			lines = append(lines, banner, "")
		}
		lines = append(lines, a.renderCard(view))
	}
	if view.Status == swipe.StatusReviewing {
		for _, msg := range view.Errors {
			lines = append(lines, "", errorStyle.Render(msg))
		}
	}
	return strings.Join(lines, "\n")
}

func (a *App) progressLine(view swipe.ViewModel) string {
	switch view.Status {
	case swipe.StatusReviewing:
		return fmt.Sprintf("User %d · %d of %d", view.ReviewingUserID, view.Cursor+1, view.Total)
	default:
		return fmt.Sprintf("User %d · %s", view.ReviewingUserID, view.Status.FriendlyName())
	}
}

func (a *App) renderMatchBanner(view swipe.ViewModel) string {
	d := view.LastDecision
	if d == nil || !d.IsMatch {
		return ""
	}
	return matchStyle.Render(fmt.Sprintf("It's a match with user %d!", d.Candidate.OriginUserID))
}

func (a *App) renderCard(view swipe.ViewModel) string {
	if view.Profile == nil {
		if view.Enriching {
			return fmt.Sprintf("%s Loading profile...", a.spinner.View())
		}
		return mutedStyle.Render("Profile unavailable. Press r to retry, or decide anyway.")
	}
	p := view.Profile
	var lines []string
	lines = append(lines, lipgloss.NewStyle().Bold(true).Render(a.titleCaser.String(p.DisplayName)))
	var meta []string
	if p.City != "" {
		meta = append(meta, a.titleCaser.String(p.City))
	}
	if p.Email != "" {
		meta = append(meta, p.Email)
	}
	if len(meta) > 0 {
		lines = append(lines, mutedStyle.Render(strings.Join(meta, " · ")))
	}
	bio := p.Bio
	if bio == "" {
		bio = "No description"
	}
	lines = append(lines, "", bodyStyle.Render(bio))
	if len(p.Photos) > 0 {
		lines = append(lines, "", accentStyle.Render(fmt.Sprintf("Photos (%d)", len(p.Photos))))
		for _, photo := range p.Photos {
			lines = append(lines, mutedStyle.Render("  "+photo.URL))
		}
	}
	if view.Deciding {
		lines = append(lines, "", fmt.Sprintf("%s Sending like...", a.spinner.View()))
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderMatches() string {
	if a.loadingList {
		return fmt.Sprintf("%s Loading matches for user %d...", a.spinner.View(), a.matchesFor)
	}
	if len(a.matchesList.Items()) == 0 {
		return fmt.Sprintf("%s\n\n%s", accentStyle.Bold(true).Render(a.matchesList.Title), "No matches yet")
	}
	return a.matchesList.View()
}

func (a *App) renderLogPanel(width int) string {
	if a.logbook == nil {
		return ""
	}
	entries, total := a.logbook.Entries(6)
	if len(entries) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := accentStyle.Bold(true).Render(fmt.Sprintf("LOG · %s (%d entries)", fileName, total))
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		style := bodyStyle
		switch entry.Level {
		case logbook.LevelWarn:
			style = warnStyle
		case logbook.LevelError:
			style = errorStyle
		}
		lines = append(lines, mutedStyle.Render(entry.Time.Local().Format("15:04:05"))+" "+style.Render(entry.Message))
	}
	return boxStyle.Width(width).Render(fmt.Sprintf("%s\n%s", head, strings.Join(lines, "\n")))
}

func (a *App) renderFooter() string {
	var hint string
	switch a.state {
	case stateReview:
		hint = "l/→ like · h/← pass · r retry · m matches · esc change user · q quit"
	case stateMatches:
		hint = "↑/↓ browse · esc back · q quit"
	default:
		hint = "enter start · m matches · q quit"
	}
	parts := []string{mutedStyle.Render(hint)}
	if a.statusMsg != "" {
		parts = append(parts, bodyStyle.Render(a.statusMsg))
	}
	return lipgloss.NewStyle().MarginTop(1).Render(strings.Join(parts, "\n"))
}

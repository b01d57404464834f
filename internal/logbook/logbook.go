// Package logbook keeps the reviewer-facing journal: one line per session
// event (start, like, pass, match, failure). The TUI tails it into its log
// panel and the bridge appends to the same file.
package logbook

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is one journal line.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
}

// String renders e in the on-disk format.
func (e Entry) String() string {
	return fmt.Sprintf("%s %-5s %s", e.Time.UTC().Format(time.RFC3339), string(e.Level), e.Message)
}

// ParseEntry reads a line written by Entry.String.
func ParseEntry(line string) (Entry, error) {
	stamp, rest, ok := strings.Cut(line, " ")
	if !ok {
		return Entry{}, fmt.Errorf("logbook: malformed entry %q", line)
	}
	at, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return Entry{}, fmt.Errorf("logbook: malformed timestamp in %q: %w", line, err)
	}
	level, message, _ := strings.Cut(rest, " ")
	switch Level(level) {
	case LevelInfo, LevelWarn, LevelError:
	default:
		return Entry{}, fmt.Errorf("logbook: unknown level %q", level)
	}
	return Entry{Time: at, Level: Level(level), Message: strings.TrimLeft(message, " ")}, nil
}

// Option customizes a Logbook.
type Option func(*Logbook)

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logbook) {
		if now != nil {
			l.now = now
		}
	}
}

// Logbook appends journal entries to a file it holds open until Close.
type Logbook struct {
	mu   sync.Mutex
	path string
	file *os.File
	now  func() time.Time
}

// New opens (or creates) the journal at path.
func New(path string, opts ...Option) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logbook: create dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logbook: open %s: %w", path, err)
	}
	l := &Logbook{path: path, file: file, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close releases the file. Later appends are dropped; Tail keeps working.
func (l *Logbook) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Append writes one entry. Newlines in message are folded so every entry
// stays on a single line.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	entry := Entry{Time: l.now(), Level: level, Message: strings.Join(strings.Fields(message), " ")}
	_, _ = l.file.WriteString(entry.String() + "\n")
}

// Tail returns up to maxLines of the most recent entries and the total
// number of entries in the file.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil || maxLines <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	ring := make([]string, maxLines)
	total := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		ring[total%maxLines] = scanner.Text()
		total++
	}
	if total == 0 {
		return nil, 0
	}
	if total <= maxLines {
		return ring[:total], total
	}
	start := total % maxLines
	return append(ring[start:], ring[:start]...), total
}

// Entries is Tail parsed into entries. Lines that do not parse are skipped.
func (l *Logbook) Entries(maxLines int) ([]Entry, int) {
	lines, total := l.Tail(maxLines)
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if entry, err := ParseEntry(line); err == nil {
			entries = append(entries, entry)
		}
	}
	return entries, total
}

// Printf lets a Logbook stand in for a Printf-style logger.
func (l *Logbook) Printf(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}

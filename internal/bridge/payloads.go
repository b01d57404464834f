package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/standin/internal/backend"
	"github.com/kingrea/standin/internal/swipe"
)

// ProtocolVersion identifies the bridge contract version exposed via /health.
const ProtocolVersion = "1.0.0"

// Logger records bridge status information. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

// userID accepts both 12 and "12"; browser forms post the latter.
type userID int64

func (u *userID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: usuarioId %q is not a number", swipe.ErrInvalidInput, raw)
		}
		*u = userID(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: usuarioId must be an integer", swipe.ErrInvalidInput)
	}
	*u = userID(n)
	return nil
}

type startRequest struct {
	UsuarioID userID `json:"usuarioId"`
}

type decisionRequest struct {
	Action string `json:"action"`
}

// Validate resolves the action spelling.
func (d decisionRequest) Validate() (swipe.Action, error) {
	return swipe.ParseAction(d.Action)
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	SessionStatus string `json:"session_status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// sessionResponse is the view model plus the id of the session it belongs to.
type sessionResponse struct {
	SessionID  string          `json:"sessionId,omitempty"`
	ServerTime time.Time       `json:"serverTime"`
	View       swipe.ViewModel `json:"view"`
}

type matchesResponse struct {
	UserID  int64           `json:"usuarioId"`
	Matches []backend.Match `json:"matches"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Mensaje string `json:"mensaje,omitempty"`
}

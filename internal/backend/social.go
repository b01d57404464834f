package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/kingrea/standin/internal/swipe"
)

// likeRecord mirrors one entry of /likes/recibidos/{id}.
type likeRecord struct {
	ID               int64  `json:"id"`
	UsuarioOrigenID  int64  `json:"usuarioOrigenId"`
	UsuarioDestinoID int64  `json:"usuarioDestinoId"`
	FechaCreacion    string `json:"fechaCreacion"`
	EsMatch          bool   `json:"esMatch"`
}

type createLike struct {
	UsuarioDestinoID int64 `json:"usuarioDestinoId"`
}

type matchRecord struct {
	ID            int64  `json:"id"`
	Usuario1ID    int64  `json:"usuario1Id"`
	Usuario2ID    int64  `json:"usuario2Id"`
	FechaCreacion string `json:"fechaCreacion"`
}

// Match is a mutual like between two users.
type Match struct {
	ID        int64  `json:"id"`
	UserA     int64  `json:"usuario1Id"`
	UserB     int64  `json:"usuario2Id"`
	CreatedAt string `json:"fechaCreacion,omitempty"`
}

// Other returns the participant that is not userID.
func (m Match) Other(userID int64) int64 {
	if m.UserA == userID {
		return m.UserB
	}
	return m.UserA
}

// Social reads likes and matches and records new likes.
type Social struct {
	client *Client
}

// NewSocial wraps a client rooted at the social service base URL.
func NewSocial(client *Client) *Social {
	return &Social{client: client}
}

// LoadQueue implements swipe.CandidateSource. Order and duplicates are kept
// exactly as the service returns them.
func (s *Social) LoadQueue(ctx context.Context, reviewingUserID int64) (swipe.Queue, error) {
	if err := swipe.ValidateUserID(reviewingUserID); err != nil {
		return nil, err
	}
	var recs []likeRecord
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("/likes/recibidos/%d", reviewingUserID), nil, &recs); err != nil {
		return nil, err
	}
	queue := make(swipe.Queue, 0, len(recs))
	for _, rec := range recs {
		queue = append(queue, swipe.Candidate{LikeRecordID: rec.ID, OriginUserID: rec.UsuarioOrigenID})
	}
	return queue, nil
}

// SubmitLike implements swipe.LikeSubmitter. A success response without a
// usable JSON body still records the like; it just reports no match.
func (s *Social) SubmitLike(ctx context.Context, fromUserID, toUserID int64) (swipe.AcceptResult, error) {
	if err := swipe.ValidateUserID(fromUserID); err != nil {
		return swipe.AcceptResult{}, err
	}
	if err := swipe.ValidateUserID(toUserID); err != nil {
		return swipe.AcceptResult{}, err
	}
	var rec likeRecord
	path := fmt.Sprintf("/likes?usuarioOrigenId=%d", fromUserID)
	err := s.client.do(ctx, http.MethodPost, path, createLike{UsuarioDestinoID: toUserID}, &rec)
	switch {
	case err == nil:
		return swipe.AcceptResult{IsMatch: rec.EsMatch}, nil
	case errors.Is(err, errEmptyBody), errors.Is(err, errMalformedBody):
		return swipe.AcceptResult{}, nil
	default:
		return swipe.AcceptResult{}, err
	}
}

// Matches lists the mutual likes userID takes part in.
func (s *Social) Matches(ctx context.Context, userID int64) ([]Match, error) {
	if err := swipe.ValidateUserID(userID); err != nil {
		return nil, err
	}
	var recs []matchRecord
	if err := s.client.do(ctx, http.MethodGet, fmt.Sprintf("/matches/%d", userID), nil, &recs); err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(recs))
	for _, rec := range recs {
		matches = append(matches, Match{ID: rec.ID, UserA: rec.Usuario1ID, UserB: rec.Usuario2ID, CreatedAt: rec.FechaCreacion})
	}
	return matches, nil
}

package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kingrea/standin/internal/swipe"
)

type photoRecord struct {
	ID        int64  `json:"id"`
	URL       string `json:"url"`
	UsuarioID int64  `json:"usuarioId"`
}

// Multimedia reads photo galleries.
type Multimedia struct {
	client *Client
}

// NewMultimedia wraps a client rooted at the multimedia service base URL.
func NewMultimedia(client *Client) *Multimedia {
	return &Multimedia{client: client}
}

// FetchPhotos implements swipe.PhotoFetcher.
func (m *Multimedia) FetchPhotos(ctx context.Context, userID int64) ([]swipe.Photo, error) {
	if err := swipe.ValidateUserID(userID); err != nil {
		return nil, err
	}
	var recs []photoRecord
	if err := m.client.do(ctx, http.MethodGet, fmt.Sprintf("/fotos/usuario/%d", userID), nil, &recs); err != nil {
		return nil, err
	}
	photos := make([]swipe.Photo, 0, len(recs))
	for _, rec := range recs {
		photos = append(photos, swipe.Photo{URL: rec.URL})
	}
	return photos, nil
}

package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kingrea/standin/internal/swipe"
)

// userRecord mirrors the users service's /usuario/{id} payload.
type userRecord struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	NombreCompleto string `json:"nombreCompleto"`
	Genero         string `json:"genero"`
	Ciudad         string `json:"ciudad"`
	Descripcion    string `json:"descripcion"`
	FotoPerfil     string `json:"fotoPerfil"`
}

// Users reads identity records.
type Users struct {
	client *Client
}

// NewUsers wraps a client rooted at the users service base URL.
func NewUsers(client *Client) *Users {
	return &Users{client: client}
}

// FetchProfile implements swipe.ProfileFetcher. An empty body is a rejection,
// since the profile is mandatory.
func (u *Users) FetchProfile(ctx context.Context, userID int64) (swipe.Profile, error) {
	if err := swipe.ValidateUserID(userID); err != nil {
		return swipe.Profile{}, err
	}
	var rec userRecord
	if err := u.client.do(ctx, http.MethodGet, fmt.Sprintf("/usuario/%d", userID), nil, &rec); err != nil {
		return swipe.Profile{}, err
	}
	id := rec.ID
	if id == 0 {
		id = userID
	}
	return swipe.Profile{
		ID:       id,
		FullName: rec.NombreCompleto,
		Bio:      rec.Descripcion,
		City:     rec.Ciudad,
		Email:    rec.Email,
	}, nil
}

package swipe

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Enricher combines the mandatory profile fetch with the best-effort photo
// fetch. Profile failures surface as ErrProfileUnavailable; photo failures
// are logged and yield an empty gallery.
type Enricher struct {
	profiles ProfileFetcher
	photos   PhotoFetcher
	logger   Logger
}

// EnricherOption customizes an Enricher.
type EnricherOption func(*Enricher)

// WithEnricherLogger routes swallowed photo errors to l.
func WithEnricherLogger(l Logger) EnricherOption {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEnricher builds an Enricher. photos may be nil, in which case galleries are always empty.
func NewEnricher(profiles ProfileFetcher, photos PhotoFetcher, opts ...EnricherOption) *Enricher {
	e := &Enricher{
		profiles: profiles,
		photos:   photos,
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Enrich fetches profile and photos for originUserID concurrently.
func (e *Enricher) Enrich(ctx context.Context, originUserID int64) (EnrichedProfile, error) {
	if err := ValidateUserID(originUserID); err != nil {
		return EnrichedProfile{}, fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
	}
	if e.profiles == nil {
		return EnrichedProfile{}, fmt.Errorf("%w: no profile source configured", ErrProfileUnavailable)
	}

	var (
		profile Profile
		photos  []Photo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := e.profiles.FetchProfile(gctx, originUserID)
		if err != nil {
			return fmt.Errorf("%w: user %d: %w", ErrProfileUnavailable, originUserID, err)
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		if e.photos == nil {
			return nil
		}
		list, err := e.photos.FetchPhotos(gctx, originUserID)
		if err != nil {
			e.logger.Printf("swipe: photos for user %d unavailable: %v", originUserID, err)
			return nil
		}
		photos = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return EnrichedProfile{}, err
	}
	return buildEnrichedProfile(originUserID, profile, photos), nil
}

func buildEnrichedProfile(userID int64, p Profile, photos []Photo) EnrichedProfile {
	name := strings.TrimSpace(p.FullName)
	if name == "" {
		name = fmt.Sprintf("User #%d", userID)
	}
	gallery := make([]Photo, 0, len(photos))
	for _, photo := range photos {
		url := strings.TrimSpace(photo.URL)
		if url == "" {
			continue
		}
		gallery = append(gallery, Photo{URL: url})
	}
	return EnrichedProfile{
		UserID:      userID,
		DisplayName: name,
		Bio:         strings.TrimSpace(p.Bio),
		City:        strings.TrimSpace(p.City),
		Email:       strings.TrimSpace(p.Email),
		Photos:      gallery,
	}
}

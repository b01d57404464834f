package swipe

import "context"

// CandidateSource loads the raw "likes received" queue for a reviewing user.
type CandidateSource interface {
	LoadQueue(ctx context.Context, reviewingUserID int64) (Queue, error)
}

// ProfileEnricher builds the display profile for one candidate.
type ProfileEnricher interface {
	Enrich(ctx context.Context, originUserID int64) (EnrichedProfile, error)
}

// ActionProcessor submits accept decisions. Rejects never reach it.
type ActionProcessor interface {
	SubmitAccept(ctx context.Context, reviewingUserID, candidateOriginUserID int64) (AcceptResult, error)
}

// ProfileFetcher reads a user's identity and bio attributes.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, userID int64) (Profile, error)
}

// PhotoFetcher reads a user's photo gallery.
type PhotoFetcher interface {
	FetchPhotos(ctx context.Context, userID int64) ([]Photo, error)
}

// LikeSubmitter records a like from one user to another.
type LikeSubmitter interface {
	SubmitLike(ctx context.Context, fromUserID, toUserID int64) (AcceptResult, error)
}

// Logger is satisfied by logging.Logger and log.Logger.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

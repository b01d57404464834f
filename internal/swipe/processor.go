package swipe

import (
	"context"
	"fmt"
)

// Processor submits accept decisions to the social service.
type Processor struct {
	likes  LikeSubmitter
	logger Logger
}

// NewProcessor wraps a LikeSubmitter. A nil logger discards output.
func NewProcessor(likes LikeSubmitter, logger Logger) *Processor {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Processor{likes: likes, logger: logger}
}

// SubmitAccept records reviewingUserID liking candidateOriginUserID back.
func (p *Processor) SubmitAccept(ctx context.Context, reviewingUserID, candidateOriginUserID int64) (AcceptResult, error) {
	if err := ValidateUserID(reviewingUserID); err != nil {
		return AcceptResult{}, err
	}
	if err := ValidateUserID(candidateOriginUserID); err != nil {
		return AcceptResult{}, err
	}
	if p.likes == nil {
		return AcceptResult{}, fmt.Errorf("swipe: submit accept: %w: no like submitter configured", ErrConnectionFailed)
	}
	res, err := p.likes.SubmitLike(ctx, reviewingUserID, candidateOriginUserID)
	if err != nil {
		return AcceptResult{}, fmt.Errorf("swipe: submit accept %d -> %d: %w", reviewingUserID, candidateOriginUserID, err)
	}
	if res.IsMatch {
		p.logger.Printf("swipe: match between %d and %d", reviewingUserID, candidateOriginUserID)
	}
	return res, nil
}

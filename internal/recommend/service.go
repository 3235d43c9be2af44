package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrRateLimited is returned when a client has used up its submissions for the window.
var ErrRateLimited = errors.New("recommend: rate limited")

// Result describes an accepted submission.
type Result struct {
	Sink string
	Note string
}

// Service rate limits, sanitises and forwards submissions.
type Service struct {
	limiter Limiter
	sink    Sink
	now     func() time.Time
}

// NewService creates a Service.
func NewService(limiter Limiter, sink Sink) *Service {
	logrus.WithField("sink", sink.Name()).Info("recommendation sink selected")
	return &Service{limiter: limiter, sink: sink, now: time.Now}
}

// Submit checks the limit for key before looking at the submission, so rejected
// clients learn nothing about validation.
func (s *Service) Submit(ctx context.Context, key string, sub Submission, userAgent string) (Result, error) {
	allowed, err := s.limiter.Allow(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("rate limiter: %w", err)
	}
	if !allowed {
		logrus.WithField("client", key).Warn("recommendation rate limit exceeded")
		return Result{}, ErrRateLimited
	}

	rec, err := Sanitize(sub)
	if err != nil {
		return Result{}, err
	}

	msg := NewMessage(rec, userAgent, s.now())
	if err := s.sink.Send(ctx, msg); err != nil {
		return Result{}, fmt.Errorf("send via %s: %w", s.sink.Name(), err)
	}

	result := Result{Sink: s.sink.Name()}
	if n, ok := s.sink.(interface{ Note() string }); ok {
		result.Note = n.Note()
	}
	return result, nil
}

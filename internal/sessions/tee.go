package sessions

import (
	"context"
	"errors"

	"sds/internal/domain"
)

type teeSink []Sink

// Tee forwards every message to each non-nil sink in order and joins
// their errors.
func Tee(sinks ...Sink) Sink {
	out := make(teeSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (t teeSink) PublishAct(ctx context.Context, sessionID string, msg domain.ActMessage) error {
	var errs []error
	for _, s := range t {
		if err := s.PublishAct(ctx, sessionID, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t teeSink) PublishEvent(ctx context.Context, sessionID string, cmd domain.Command) error {
	var errs []error
	for _, s := range t {
		if err := s.PublishEvent(ctx, sessionID, cmd); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

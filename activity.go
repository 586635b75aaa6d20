package authgate

import (
	"context"
	"errors"
	"time"
)

// ActivityEventType names an authentication outcome worth auditing.
type ActivityEventType string

const (
	ActivityEventLoginSuccess  ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure  ActivityEventType = "auth.login.failure"
	ActivityEventExternalLogin ActivityEventType = "auth.external.login"
	ActivityEventLinkRejected  ActivityEventType = "auth.external.link_rejected"
	ActivityEventTokenRejected ActivityEventType = "auth.token.rejected"
)

// ActivityEvent is emitted by the authenticators after a decision is made.
// UserID is zero when no local account was resolved.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     int64
	Provider   ProviderID
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink receives activity events. Record errors are logged by the
// caller and never change the outcome of an authentication.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans an event out to every non-nil sink and joins
// their errors.
func MultiActivitySink(sinks ...ActivitySink) ActivitySink {
	targets := make([]ActivitySink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			targets = append(targets, s)
		}
	}
	return ActivitySinkFunc(func(ctx context.Context, event ActivityEvent) error {
		var errs []error
		for _, s := range targets {
			if err := s.Record(ctx, event); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

var discardActivity ActivitySink = ActivitySinkFunc(nil)

func activitySinkOrDiscard(s ActivitySink) ActivitySink {
	if s == nil {
		return discardActivity
	}
	return s
}

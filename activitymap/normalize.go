// Package activitymap flattens authgate activity events into actor, verb and
// object records for audit logs and event streams.
package activitymap

import (
	"context"
	"maps"
	"strconv"
	"strings"
	"time"

	authgate "github.com/goliatone/go-authgate"
)

// MetadataKeyProvider holds the provider family unless the event already
// set it.
const MetadataKeyProvider = "provider"

// Normalized is one flattened activity record.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type mapper struct {
	channel    string
	objectType string
	anonymous  string
	objectID   func(authgate.ActivityEvent) string
}

type Option func(*mapper)

func WithDefaultChannel(channel string) Option {
	return func(m *mapper) { m.channel = strings.TrimSpace(channel) }
}

func WithDefaultObjectType(objectType string) Option {
	return func(m *mapper) { m.objectType = strings.TrimSpace(objectType) }
}

// WithObjectIDResolver replaces the user id as object id.
func WithObjectIDResolver(resolve func(authgate.ActivityEvent) string) Option {
	return func(m *mapper) { m.objectID = resolve }
}

// WithActorFallback names the actor of events without a resolved user.
func WithActorFallback(actorID string) Option {
	return func(m *mapper) { m.anonymous = strings.TrimSpace(actorID) }
}

func newMapper(opts []Option) *mapper {
	m := &mapper{
		channel:    "auth",
		objectType: "user",
		anonymous:  "anonymous",
		objectID:   subject,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.objectID == nil {
		m.objectID = subject
	}
	return m
}

func (m *mapper) apply(event authgate.ActivityEvent) Normalized {
	actor := subject(event)
	if actor == "" {
		actor = m.anonymous
	}

	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var meta map[string]any
	if len(event.Metadata) > 0 {
		meta = maps.Clone(event.Metadata)
	}
	if event.Provider != "" {
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		if _, ok := meta[MetadataKeyProvider]; !ok {
			meta[MetadataKeyProvider] = event.Provider.String()
		}
	}

	return Normalized{
		ActorID:    actor,
		Verb:       string(event.EventType),
		ObjectType: m.objectType,
		ObjectID:   strings.TrimSpace(m.objectID(event)),
		Channel:    m.channel,
		Metadata:   meta,
		OccurredAt: at,
	}
}

// Normalize flattens a single event. The event metadata is copied, never
// modified.
func Normalize(event authgate.ActivityEvent, opts ...Option) Normalized {
	return newMapper(opts).apply(event)
}

// LogSink writes each event, flattened, to logger at info level.
func LogSink(logger authgate.Logger, opts ...Option) authgate.ActivitySink {
	m := newMapper(opts)
	return authgate.ActivitySinkFunc(func(_ context.Context, event authgate.ActivityEvent) error {
		n := m.apply(event)
		logger.Info("auth activity",
			"verb", n.Verb,
			"actor_id", n.ActorID,
			"object_type", n.ObjectType,
			"object_id", n.ObjectID,
			"channel", n.Channel,
			"metadata", n.Metadata,
			"occurred_at", n.OccurredAt,
		)
		return nil
	})
}

func subject(event authgate.ActivityEvent) string {
	if event.UserID == 0 {
		return ""
	}
	return strconv.FormatInt(event.UserID, 10)
}

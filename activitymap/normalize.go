// Package activitymap turns gate activity events into a flat audit record
// that can be shipped to downstream systems.
package activitymap

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-gate"
)

const (
	// MetadataKeyReason stores the rejection reason of an admission
	MetadataKeyReason = "reason"
	// MetadataKeyError stores the failure message of an anomaly or error
	MetadataKeyError = "error"
	// MetadataKeyDurationMS stores how long the decision took
	MetadataKeyDurationMS = "duration_ms"
)

const (
	defaultChannel    = "auth"
	defaultObjectType = "user"
	defaultActorID    = "anonymous"
)

// Normalized is a transport agnostic activity shape
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
	now           func() time.Time
}

// Normalize converts an auth.ActivityEvent into a Normalized record
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	userID := strings.TrimSpace(event.UserID)
	actorID := userID
	if actorID == "" {
		actorID = options.actorFallback
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   userID,
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt.UTC(),
	}
}

// WithDefaultChannel sets the channel of every record
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the object type of every record
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when the event has no user
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if actorID = strings.TrimSpace(actorID); actorID != "" {
			opts.actorFallback = actorID
		}
	}
}

// WithClock sets the time used for events without OccurredAt
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

// Sink adapts a Normalized consumer to auth.ActivitySink
type Sink struct {
	emit func(ctx context.Context, record Normalized) error
	opts []Option
}

var _ auth.ActivitySink = (*Sink)(nil)

// NewSink returns a sink that normalizes each event before handing it to emit
func NewSink(emit func(ctx context.Context, record Normalized) error, opts ...Option) *Sink {
	return &Sink{emit: emit, opts: opts}
}

// Record implements auth.ActivitySink
func (s *Sink) Record(ctx context.Context, event auth.ActivityEvent) error {
	if s == nil || s.emit == nil {
		return nil
	}
	return s.emit(ctx, Normalize(event, s.opts...))
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func normalizeMetadata(event auth.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)
	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}

	if event.Reason != "" {
		set(MetadataKeyReason, string(event.Reason))
	}
	if event.Err != nil {
		set(MetadataKeyError, event.Err.Error())
	}
	if event.Duration > 0 {
		set(MetadataKeyDurationMS, event.Duration.Milliseconds())
	}
	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

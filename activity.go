package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAdmissionAccepted ActivityEventType = "auth.admission.accepted"
	ActivityEventAdmissionRejected ActivityEventType = "auth.admission.rejected"
	ActivityEventAdmissionAnomaly  ActivityEventType = "auth.admission.anomaly"
	ActivityEventAdmissionError    ActivityEventType = "auth.admission.error"
	ActivityEventLoginSuccess      ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure      ActivityEventType = "auth.login.failure"
	ActivityEventStampRotated      ActivityEventType = "auth.security_stamp.rotated"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Reason     RejectReason
	Err        error
	Metadata   map[string]any
	Duration   time.Duration
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans events out to every sink, returning the first error
type MultiActivitySink []ActivitySink

// Record implements ActivitySink.
func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LoggingActivitySink writes activity to a Logger. Anomalies and store
// failures go out at error level, rejections at warn, the rest at debug.
type LoggingActivitySink struct {
	Logger Logger
}

// Record implements ActivitySink.
func (s LoggingActivitySink) Record(_ context.Context, event ActivityEvent) error {
	logger := s.Logger
	if logger == nil {
		logger = defLogger{}
	}

	args := []any{"event", string(event.EventType), "user_id", event.UserID}
	if event.Reason != "" {
		args = append(args, "reason", string(event.Reason))
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	for k, v := range event.Metadata {
		args = append(args, k, v)
	}

	switch event.EventType {
	case ActivityEventAdmissionAnomaly, ActivityEventAdmissionError:
		logger.Error("auth activity", args...)
	case ActivityEventAdmissionRejected, ActivityEventLoginFailure:
		logger.Warn("auth activity", args...)
	default:
		logger.Debug("auth activity", args...)
	}
	return nil
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

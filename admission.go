package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// AdmissionGate runs the stateful checks that follow token verification:
// claims presence, stamp presence, user lookup, active flag, stamp
// revalidation and the last-login side effect. It holds no mutable state
// after construction and is safe for concurrent use.
type AdmissionGate struct {
	store        IdentityStore
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time
}

var _ Admitter = (*AdmissionGate)(nil)

// AdmissionOption configures an AdmissionGate at construction time
type AdmissionOption func(*AdmissionGate)

// WithAdmissionActivitySink sets the sink that receives admission outcomes
func WithAdmissionActivitySink(sink ActivitySink) AdmissionOption {
	return func(g *AdmissionGate) {
		g.activitySink = normalizeActivitySink(sink)
	}
}

// WithAdmissionLogger overrides the logger
func WithAdmissionLogger(logger Logger) AdmissionOption {
	return func(g *AdmissionGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithAdmissionClock overrides the time source used for durations
func WithAdmissionClock(now func() time.Time) AdmissionOption {
	return func(g *AdmissionGate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewAdmissionGate creates a gate backed by the given identity store
func NewAdmissionGate(store IdentityStore, opts ...AdmissionOption) *AdmissionGate {
	if store == nil {
		panic("AUTH: admission gate requires an identity store")
	}

	g := &AdmissionGate{
		store:        store,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		now:          time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Admit decides whether the verified principal may proceed. It returns the
// user record on acceptance. Errors are one of: a rejection (see
// RejectionReason), a consistency anomaly (see IsConsistencyAnomaly) or an
// internal store failure.
func (g *AdmissionGate) Admit(ctx context.Context, principal *Principal) (*User, error) {
	start := g.now()

	if !principal.HasClaims() {
		return nil, g.reject(ctx, start, "", ReasonNoClaims)
	}

	if principal.SecurityStamp() == "" {
		return nil, g.reject(ctx, start, principal.Subject(), ReasonNoSecurityStamp)
	}

	userID, err := principal.UserID()
	if err != nil {
		return nil, g.anomaly(ctx, start, principal.Subject(), newConsistencyAnomaly(err, map[string]any{
			"subject": principal.Subject(),
			"detail":  "subject is not a numeric user id",
		}))
	}
	subject := strconv.FormatInt(userID, 10)

	if err := ctx.Err(); err != nil {
		return nil, g.fail(ctx, start, subject, cancelled(err))
	}

	user, err := g.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) || goerrors.IsNotFound(err) {
			return nil, g.anomaly(ctx, start, subject, newConsistencyAnomaly(err, map[string]any{
				"user_id": userID,
			}))
		}
		return nil, g.fail(ctx, start, subject, wrapError(err, goerrors.CategoryInternal, "failed to load user for admission"))
	}

	if user == nil {
		return nil, g.anomaly(ctx, start, subject, newConsistencyAnomaly(nil, map[string]any{
			"user_id": userID,
		}))
	}

	if !user.IsActive {
		return nil, g.reject(ctx, start, subject, ReasonUserNotActive)
	}

	valid, err := g.store.RevalidateSecurityStamp(ctx, principal)
	if err != nil {
		return nil, g.fail(ctx, start, subject, wrapError(err, goerrors.CategoryInternal, "failed to revalidate security stamp"))
	}

	if !valid {
		return nil, g.reject(ctx, start, subject, ReasonInvalidSecurityStamp)
	}

	if err := ctx.Err(); err != nil {
		return nil, g.fail(ctx, start, subject, cancelled(err))
	}

	if err := g.store.UpdateLastLogin(ctx, user); err != nil {
		return nil, g.fail(ctx, start, subject, wrapError(err, goerrors.CategoryInternal, "failed to update last login date"))
	}

	g.record(ctx, ActivityEvent{
		EventType: ActivityEventAdmissionAccepted,
		UserID:    subject,
		Duration:  g.now().Sub(start),
	})

	return user, nil
}

func (g *AdmissionGate) reject(ctx context.Context, start time.Time, subject string, reason RejectReason) error {
	err := NewRejection(reason)
	g.record(ctx, ActivityEvent{
		EventType: ActivityEventAdmissionRejected,
		UserID:    subject,
		Reason:    reason,
		Err:       err,
		Duration:  g.now().Sub(start),
	})
	return err
}

func (g *AdmissionGate) anomaly(ctx context.Context, start time.Time, subject string, err *goerrors.Error) error {
	g.record(ctx, ActivityEvent{
		EventType: ActivityEventAdmissionAnomaly,
		UserID:    subject,
		Err:       err,
		Metadata:  err.Metadata,
		Duration:  g.now().Sub(start),
	})
	return err
}

func (g *AdmissionGate) fail(ctx context.Context, start time.Time, subject string, err error) error {
	g.record(ctx, ActivityEvent{
		EventType: ActivityEventAdmissionError,
		UserID:    subject,
		Err:       err,
		Duration:  g.now().Sub(start),
	})
	return err
}

func (g *AdmissionGate) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = g.now()
	}

	// the request context may already be cancelled; sinks still get the event
	if err := g.activitySink.Record(context.WithoutCancel(ctx), event); err != nil {
		g.logger.Warn("admission activity sink error", "error", err)
	}
}

func cancelled(err error) error {
	return wrapError(err, goerrors.CategoryOperation, "admission cancelled")
}

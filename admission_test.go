package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-gate"
)

func newGate(store auth.IdentityStore, sink auth.ActivitySink) *auth.AdmissionGate {
	logger := &MockLogger{}
	logger.On("Warn", mock.Anything, mock.Anything).Maybe()
	return auth.NewAdmissionGate(store,
		auth.WithAdmissionActivitySink(sink),
		auth.WithAdmissionLogger(logger),
	)
}

func TestAdmissionGate_Rejections(t *testing.T) {
	active := &auth.User{ID: 7, UserName: "ada", IsActive: true, SecurityStamp: "stamp-1"}

	tests := []struct {
		name      string
		principal *auth.Principal
		setup     func(m *MockIdentityStore)
		reason    auth.RejectReason
	}{
		{
			name:      "empty claims",
			principal: auth.NewPrincipal(),
			setup:     func(m *MockIdentityStore) {},
			reason:    auth.ReasonNoClaims,
		},
		{
			name:      "nil principal",
			principal: nil,
			setup:     func(m *MockIdentityStore) {},
			reason:    auth.ReasonNoClaims,
		},
		{
			name:      "missing security stamp",
			principal: principalFor(active, ""),
			setup:     func(m *MockIdentityStore) {},
			reason:    auth.ReasonNoSecurityStamp,
		},
		{
			name:      "blank security stamp",
			principal: principalFor(active, "   "),
			setup:     func(m *MockIdentityStore) {},
			reason:    auth.ReasonNoSecurityStamp,
		},
		{
			name:      "inactive user with current stamp",
			principal: principalFor(active, "stamp-1"),
			setup: func(m *MockIdentityStore) {
				m.On("FindByID", mock.Anything, int64(7)).
					Return(&auth.User{ID: 7, IsActive: false, SecurityStamp: "stamp-1"}, nil)
			},
			reason: auth.ReasonUserNotActive,
		},
		{
			name:      "inactive user with stale stamp",
			principal: principalFor(active, "old-stamp"),
			setup: func(m *MockIdentityStore) {
				m.On("FindByID", mock.Anything, int64(7)).
					Return(&auth.User{ID: 7, IsActive: false, SecurityStamp: "stamp-2"}, nil)
			},
			reason: auth.ReasonUserNotActive,
		},
		{
			name:      "stale stamp",
			principal: principalFor(active, "old-stamp"),
			setup: func(m *MockIdentityStore) {
				m.On("FindByID", mock.Anything, int64(7)).Return(active, nil)
				m.On("RevalidateSecurityStamp", mock.Anything, mock.Anything).Return(false, nil)
			},
			reason: auth.ReasonInvalidSecurityStamp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockIdentityStore{}
			tt.setup(store)
			sink := &captureSink{}

			user, err := newGate(store, sink).Admit(context.Background(), tt.principal)

			assert.Nil(t, user)
			require.Error(t, err)

			reason, ok := auth.RejectionReason(err)
			assert.True(t, ok)
			assert.Equal(t, tt.reason, reason)
			assert.True(t, auth.IsRejection(err))
			assert.False(t, auth.IsConsistencyAnomaly(err))

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, goerrors.CategoryAuth, richErr.Category)
			assert.Equal(t, goerrors.CodeUnauthorized, richErr.Code)

			event := sink.Last()
			assert.Equal(t, auth.ActivityEventAdmissionRejected, event.EventType)
			assert.Equal(t, tt.reason, event.Reason)

			store.AssertExpectations(t)
			store.AssertNotCalled(t, "UpdateLastLogin", mock.Anything, mock.Anything)
		})
	}
}

func TestAdmissionGate_InactiveSkipsStampRevalidation(t *testing.T) {
	store := &MockIdentityStore{}
	store.On("FindByID", mock.Anything, int64(3)).
		Return(&auth.User{ID: 3, IsActive: false, SecurityStamp: "s"}, nil)

	_, err := newGate(store, nil).Admit(context.Background(), principalFor(&auth.User{ID: 3}, "s"))

	reason, _ := auth.RejectionReason(err)
	assert.Equal(t, auth.ReasonUserNotActive, reason)
	store.AssertNotCalled(t, "RevalidateSecurityStamp", mock.Anything, mock.Anything)
}

func TestAdmissionGate_UnknownSubjectIsAnomaly(t *testing.T) {
	store := &MockIdentityStore{}
	store.On("FindByID", mock.Anything, int64(404)).Return(nil, auth.ErrIdentityNotFound)
	sink := &captureSink{}

	user, err := newGate(store, sink).Admit(context.Background(), principalFor(&auth.User{ID: 404}, "s"))

	assert.Nil(t, user)
	require.Error(t, err)
	assert.True(t, auth.IsConsistencyAnomaly(err))
	assert.False(t, auth.IsRejection(err))

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CodeUnauthorized, richErr.Code)
	assert.Equal(t, int64(404), richErr.Metadata["user_id"])

	assert.Equal(t, auth.ActivityEventAdmissionAnomaly, sink.Last().EventType)

	challenge := auth.NewChallengeFailure(err)
	assert.Equal(t, goerrors.CodeUnauthorized, challenge.Code)
	assert.True(t, auth.IsConsistencyAnomaly(challenge))
}

func TestAdmissionGate_NilUserIsAnomaly(t *testing.T) {
	store := &MockIdentityStore{}
	store.On("FindByID", mock.Anything, int64(5)).Return(nil, nil)

	_, err := newGate(store, nil).Admit(context.Background(), principalFor(&auth.User{ID: 5}, "s"))

	assert.True(t, auth.IsConsistencyAnomaly(err))
}

func TestAdmissionGate_NonNumericSubjectIsAnomaly(t *testing.T) {
	store := &MockIdentityStore{}
	principal := auth.NewPrincipal(
		auth.Claim{Type: auth.ClaimTypeSubject, Value: "not-a-number"},
		auth.Claim{Type: auth.ClaimTypeSecurityStamp, Value: "s"},
	)

	_, err := newGate(store, nil).Admit(context.Background(), principal)

	assert.True(t, auth.IsConsistencyAnomaly(err))
	store.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestAdmissionGate_StoreFailures(t *testing.T) {
	boom := errors.New("connection reset")
	notFound := goerrors.New("record not found", goerrors.CategoryNotFound)
	conflict := goerrors.New("stamp changed concurrently", goerrors.CategoryConflict)
	user := &auth.User{ID: 9, IsActive: true, SecurityStamp: "s"}

	tests := []struct {
		name  string
		cause error
		setup func(m *MockIdentityStore, cause error)
	}{
		{
			name:  "lookup",
			cause: boom,
			setup: func(m *MockIdentityStore, cause error) {
				m.On("FindByID", mock.Anything, int64(9)).Return(nil, cause)
			},
		},
		{
			name:  "stamp revalidation",
			cause: boom,
			setup: func(m *MockIdentityStore, cause error) {
				m.On("FindByID", mock.Anything, int64(9)).Return(user, nil)
				m.On("RevalidateSecurityStamp", mock.Anything, mock.Anything).Return(false, cause)
			},
		},
		{
			name:  "typed stamp revalidation failure",
			cause: conflict,
			setup: func(m *MockIdentityStore, cause error) {
				m.On("FindByID", mock.Anything, int64(9)).Return(user, nil)
				m.On("RevalidateSecurityStamp", mock.Anything, mock.Anything).Return(false, cause)
			},
		},
		{
			name:  "last login update",
			cause: boom,
			setup: func(m *MockIdentityStore, cause error) {
				m.On("FindByID", mock.Anything, int64(9)).Return(user, nil)
				m.On("RevalidateSecurityStamp", mock.Anything, mock.Anything).Return(true, nil)
				m.On("UpdateLastLogin", mock.Anything, user).Return(cause)
			},
		},
		{
			name:  "last login update on a vanished row",
			cause: notFound,
			setup: func(m *MockIdentityStore, cause error) {
				m.On("FindByID", mock.Anything, int64(9)).Return(user, nil)
				m.On("RevalidateSecurityStamp", mock.Anything, mock.Anything).Return(true, nil)
				m.On("UpdateLastLogin", mock.Anything, user).Return(cause)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockIdentityStore{}
			tt.setup(store, tt.cause)
			sink := &captureSink{}

			got, err := newGate(store, sink).Admit(context.Background(), principalFor(user, "s"))

			assert.Nil(t, got)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.cause)
			assert.False(t, auth.IsRejection(err))
			assert.False(t, auth.IsConsistencyAnomaly(err))

			var richErr *goerrors.Error
			require.True(t, goerrors.As(err, &richErr))
			assert.Equal(t, goerrors.CategoryInternal, richErr.Category)
			assert.Equal(t, tt.cause, richErr.Source)

			assert.Equal(t, auth.ActivityEventAdmissionError, sink.Last().EventType)

			// store failures surface as server errors, not challenges
			challenge := auth.NewChallengeFailure(err)
			assert.Equal(t, goerrors.CategoryInternal, challenge.Category)
			assert.NotEqual(t, goerrors.CodeUnauthorized, challenge.Code)
			store.AssertExpectations(t)
		})
	}
}

func TestAdmissionGate_CancelledContext(t *testing.T) {
	store := &MockIdentityStore{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newGate(store, nil).Admit(ctx, principalFor(&auth.User{ID: 1}, "s"))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	store.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestAdmissionGate_Accept(t *testing.T) {
	user := &auth.User{ID: 11, UserName: "grace", IsActive: true, SecurityStamp: "s"}
	store := &MockIdentityStore{}
	store.On("FindByID", mock.Anything, int64(11)).Return(user, nil)
	store.On("RevalidateSecurityStamp", mock.Anything, mock.Anything).Return(true, nil)
	store.On("UpdateLastLogin", mock.Anything, user).Return(nil)
	sink := &captureSink{}

	got, err := newGate(store, sink).Admit(context.Background(), principalFor(user, "s"))

	require.NoError(t, err)
	assert.Same(t, user, got)
	assert.Equal(t, auth.ActivityEventAdmissionAccepted, sink.Last().EventType)
	assert.Equal(t, "11", sink.Last().UserID)
	store.AssertExpectations(t)
}

func TestNewAdmissionGate_PanicsWithoutStore(t *testing.T) {
	assert.Panics(t, func() {
		auth.NewAdmissionGate(nil)
	})
}

func TestAdmissionGate_WithIdentityStore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repos := auth.NewRepositoryManager(db)
	user := createUser(t, repos, "linus", true)

	start := time.Now().Add(-time.Second)
	gate := newGate(auth.NewUserIdentityStore(repos.Users(), time.Now), nil)

	t.Run("valid token updates last login", func(t *testing.T) {
		admitted, err := gate.Admit(ctx, principalFor(user, user.SecurityStamp))
		require.NoError(t, err)
		require.NotNil(t, admitted.LastLoginDate)
		assert.False(t, admitted.LastLoginDate.Before(start))

		stored, err := repos.Users().GetByID(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.LastLoginDate)
		assert.False(t, stored.LastLoginDate.Before(start))
	})

	t.Run("admitting twice keeps last login non decreasing", func(t *testing.T) {
		first, err := gate.Admit(ctx, principalFor(user, user.SecurityStamp))
		require.NoError(t, err)
		firstLogin := *first.LastLoginDate

		second, err := gate.Admit(ctx, principalFor(user, user.SecurityStamp))
		require.NoError(t, err)
		assert.False(t, second.LastLoginDate.Before(firstLogin))
	})

	t.Run("concurrent admissions all succeed", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := gate.Admit(ctx, principalFor(user, user.SecurityStamp))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
	})

	t.Run("rotated stamp rejects old token", func(t *testing.T) {
		oldStamp := user.SecurityStamp
		_, err := repos.Users().UpdateSecurityStamp(ctx, user.ID)
		require.NoError(t, err)

		_, err = gate.Admit(ctx, principalFor(user, oldStamp))
		reason, ok := auth.RejectionReason(err)
		require.True(t, ok)
		assert.Equal(t, auth.ReasonInvalidSecurityStamp, reason)
	})

	t.Run("deactivated user is rejected", func(t *testing.T) {
		require.NoError(t, repos.Users().SetActive(ctx, user.ID, false))

		_, err := gate.Admit(ctx, principalFor(user, user.SecurityStamp))
		reason, ok := auth.RejectionReason(err)
		require.True(t, ok)
		assert.Equal(t, auth.ReasonUserNotActive, reason)
	})

	t.Run("deleted user is an anomaly", func(t *testing.T) {
		_, err := gate.Admit(ctx, principalFor(&auth.User{ID: 999}, "s"))
		assert.True(t, auth.IsConsistencyAnomaly(err))
	})
}

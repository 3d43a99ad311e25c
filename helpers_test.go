package auth_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/goliatone/go-auth-gate"
)

const (
	testSigningKey = "test-signing-key-0123456789"
	testIssuer     = "gate-test"
	testAudience   = "gate-test-clients"
)

// newTestDB opens a private in-memory sqlite database with the schema applied
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	_, err = auth.Migrate(context.Background(), db)
	require.NoError(t, err)
	return db
}

func newTestTokenService(t *testing.T, opts ...auth.TokenServiceOption) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService(auth.TokenValidationParameters{
		SigningKey: []byte(testSigningKey),
		Issuer:     testIssuer,
		Audience:   testAudience,
	}, opts...)
	require.NoError(t, err)
	return ts
}

func createUser(t *testing.T, repos auth.RepositoryManager, userName string, active bool) *auth.User {
	t.Helper()
	hash, err := auth.BcryptPasswords{Cost: 4}.HashPassword("correct-horse-battery")
	require.NoError(t, err)

	user, err := repos.Users().Create(context.Background(), &auth.User{
		UserName:     userName,
		Email:        userName + "@example.com",
		FullName:     "Test " + userName,
		PasswordHash: hash,
		IsActive:     active,
	})
	require.NoError(t, err)
	return user
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// MockIdentityStore implements auth.IdentityStore
type MockIdentityStore struct {
	mock.Mock
}

func (m *MockIdentityStore) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockIdentityStore) RevalidateSecurityStamp(ctx context.Context, principal *auth.Principal) (bool, error) {
	args := m.Called(ctx, principal)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdentityStore) UpdateLastLogin(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockLogger implements auth.Logger
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Info(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Warn(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Error(msg string, args ...any) {
	m.Called(msg, args)
}

// captureSink records activity events
type captureSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *captureSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Events() []auth.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auth.ActivityEvent(nil), s.events...)
}

func (s *captureSink) Last() auth.ActivityEvent {
	events := s.Events()
	if len(events) == 0 {
		return auth.ActivityEvent{}
	}
	return events[len(events)-1]
}

func principalFor(user *auth.User, stamp string) *auth.Principal {
	claims := []auth.Claim{
		{Type: auth.ClaimTypeSubject, Value: fmt.Sprint(user.ID)},
		{Type: auth.ClaimTypeName, Value: user.UserName},
	}
	if stamp != "" {
		claims = append(claims, auth.Claim{Type: auth.ClaimTypeSecurityStamp, Value: stamp})
	}
	return auth.NewPrincipal(claims...)
}

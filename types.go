package auth

import (
	"context"
	"fmt"
	"strings"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// IdentityStore is the identity collaborator the admission gate consults
// after a token passed signature, lifetime, issuer and audience checks.
type IdentityStore interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	RevalidateSecurityStamp(ctx context.Context, principal *Principal) (bool, error)
	UpdateLastLogin(ctx context.Context, user *User) error
}

// Admitter decides whether a verified principal may proceed
type Admitter interface {
	Admit(ctx context.Context, principal *Principal) (*User, error)
}

// TokenIssuer mints bearer tokens for a user
type TokenIssuer interface {
	Generate(user *User, roles []string) (string, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println("[ERR] AUTH " + msg + formatPairs(args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println("[WRN] AUTH " + msg + formatPairs(args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println("[INF] AUTH " + msg + formatPairs(args))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println("[DBG] AUTH " + msg + formatPairs(args))
}

// DefaultLogger returns the stdout logger used when none is configured
func DefaultLogger() Logger {
	return defLogger{}
}

// formatPairs renders slog style key/value args
func formatPairs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return b.String()
}

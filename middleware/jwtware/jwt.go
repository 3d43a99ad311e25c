package jwtware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	auth "github.com/goliatone/go-auth-gate"
)

var (
	defaultTokenLookup       = "header:" + fiber.HeaderAuthorization
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
)

const (
	// DefaultContextKey is the locals key holding the verified *auth.Principal
	DefaultContextKey = "user"
	// DefaultTokenKey is the locals key holding the raw token when SaveToken is set
	DefaultTokenKey = "access_token"
)

// ValidationListener is invoked after a token has been verified. Returning
// an error rejects the request through OnChallenge.
type ValidationListener func(c *fiber.Ctx, principal *auth.Principal) error

type Config struct {
	// Filter skips the middleware when it returns true
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler

	// OnAuthenticationFailed runs when token verification fails. The error
	// passed in already wraps the verification cause.
	OnAuthenticationFailed func(c *fiber.Ctx, err error) error
	// OnChallenge runs when no credentials were presented or a validation
	// listener refused the principal. err is nil in the first case.
	OnChallenge func(c *fiber.Ctx, err error) error

	ContextKey  string
	TokenLookup string
	AuthScheme  string

	// TokenValidator is required for token validation
	TokenValidator auth.TokenValidator

	// ValidationListeners run in order after verification; the first error wins
	ValidationListeners []ValidationListener

	// SaveToken stores the raw token under TokenKey
	SaveToken bool
	TokenKey  string

	// ContextEnricher propagates the principal to the request user context
	ContextEnricher func(c context.Context, principal *auth.Principal) context.Context
}

// New returns the bearer authentication middleware
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := ExtractRawToken(c, extractors)
		if err != nil || raw == "" {
			return cfg.OnChallenge(c, nil)
		}

		principal, err := cfg.TokenValidator.Validate(raw)
		if err != nil {
			return cfg.OnAuthenticationFailed(c, auth.NewVerificationFailure(err))
		}

		if err := cfg.runValidationListeners(c, principal); err != nil {
			return cfg.OnChallenge(c, err)
		}

		c.Locals(cfg.ContextKey, principal)
		if cfg.SaveToken {
			c.Locals(cfg.TokenKey, raw)
		}

		if cfg.ContextEnricher != nil {
			c.SetUserContext(cfg.ContextEnricher(c.UserContext(), principal))
		}

		return cfg.SuccessHandler(c)
	}
}

// GetDefaultConfig fills unset fields with defaults. It panics if no
// TokenValidator is configured.
func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.OnAuthenticationFailed == nil {
		cfg.OnAuthenticationFailed = func(_ *fiber.Ctx, err error) error {
			return err
		}
	}

	if cfg.OnChallenge == nil {
		cfg.OnChallenge = func(_ *fiber.Ctx, err error) error {
			return auth.NewChallengeFailure(err)
		}
	}

	if cfg.TokenValidator == nil {
		panic("AUTH: JWT middleware configuration: TokenValidator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.TokenKey == "" {
		cfg.TokenKey = DefaultTokenKey
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

// PrincipalFrom returns the principal stored by the middleware
func PrincipalFrom(c *fiber.Ctx, key ...string) (*auth.Principal, bool) {
	k := DefaultContextKey
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	p, ok := c.Locals(k).(*auth.Principal)
	return p, ok && p != nil
}

func (cfg *Config) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config) runValidationListeners(c *fiber.Ctx, principal *auth.Principal) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(c, principal); err != nil {
			return err
		}
	}
	return nil
}

// AdmissionListener adapts an auth.Admitter into a ValidationListener. The
// admitted user is stored in the request user context and under userKey.
func AdmissionListener(admitter auth.Admitter, userKey string) ValidationListener {
	if userKey == "" {
		userKey = "current_user"
	}
	return func(c *fiber.Ctx, principal *auth.Principal) error {
		ctx, cancel := requestContext(c)
		defer cancel()

		user, err := admitter.Admit(ctx, principal)
		if err != nil {
			return err
		}
		c.Locals(userKey, user)
		userCtx := auth.WithContext(c.UserContext(), user)
		c.SetUserContext(auth.WithPrincipalContext(userCtx, principal))
		return nil
	}
}

// requestContext keeps the values of the request user context and is
// cancelled when the server stops serving the request.
func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.UserContext())
	stop := context.AfterFunc(c.Context(), cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// EncryptionKeySize is the key length required for A128KW token encryption
const EncryptionKeySize = 16

var validHMACMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// TokenValidationParameters is the immutable verification setup for bearer
// tokens. Tokens must be signed, carry an expiration and match issuer and
// audience exactly. ClockSkew defaults to zero.
type TokenValidationParameters struct {
	SigningKey    []byte
	SigningKeyID  string
	KeyRing       map[string][]byte
	EncryptionKey []byte
	Issuer        string
	Audience      string
	ClockSkew     time.Duration
}

// Validate checks the parameters are usable
func (p TokenValidationParameters) Validate() error {
	if len(p.SigningKey) == 0 {
		return goerrors.New("token signing key is required", goerrors.CategoryValidation)
	}
	if strings.TrimSpace(p.Issuer) == "" {
		return goerrors.New("token issuer is required", goerrors.CategoryValidation)
	}
	if strings.TrimSpace(p.Audience) == "" {
		return goerrors.New("token audience is required", goerrors.CategoryValidation)
	}
	if len(p.EncryptionKey) > 0 && len(p.EncryptionKey) != EncryptionKeySize {
		return goerrors.New(
			fmt.Sprintf("token encryption key must be %d bytes", EncryptionKeySize),
			goerrors.CategoryValidation,
		)
	}
	if p.ClockSkew < 0 {
		return goerrors.New("clock skew must be non-negative", goerrors.CategoryValidation)
	}
	return nil
}

// TokenService issues and verifies bearer tokens
type TokenService struct {
	params     TokenValidationParameters
	notBefore  time.Duration
	expiration time.Duration
	keySet     *keyfunc.JWKS
	now        func() time.Time
	logger     Logger
}

var (
	_ TokenValidator = (*TokenService)(nil)
	_ TokenIssuer    = (*TokenService)(nil)
)

// TokenServiceOption customizes a TokenService
type TokenServiceOption func(*TokenService)

// WithTokenLifetime sets the not-before delay and the expiration window
func WithTokenLifetime(notBefore, expiration time.Duration) TokenServiceOption {
	return func(ts *TokenService) {
		ts.notBefore = notBefore
		ts.expiration = expiration
	}
}

// WithTokenClock overrides the time source for issuing and verification
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a new TokenService instance
func NewTokenService(params TokenValidationParameters, opts ...TokenServiceOption) (*TokenService, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ts := &TokenService{
		params:     params,
		expiration: time.Hour,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	if ts.expiration <= 0 {
		return nil, goerrors.New("token expiration must be positive", goerrors.CategoryValidation)
	}

	if len(params.KeyRing) > 0 || params.SigningKeyID != "" {
		given := make(map[string]keyfunc.GivenKey, len(params.KeyRing)+1)
		for kid, key := range params.KeyRing {
			given[kid] = keyfunc.NewGivenCustom(key, keyfunc.GivenKeyOptions{})
		}
		if params.SigningKeyID != "" {
			given[params.SigningKeyID] = keyfunc.NewGivenCustom(params.SigningKey, keyfunc.GivenKeyOptions{})
		}
		ts.keySet = keyfunc.NewGiven(given)
	}

	return ts, nil
}

// Parameters returns a copy of the verification parameters
func (ts *TokenService) Parameters() TokenValidationParameters {
	return ts.params
}

// Generate creates a signed (and optionally encrypted) token for the user
func (ts *TokenService) Generate(user *User, roles []string) (string, error) {
	if user == nil {
		return "", goerrors.New("user is required", goerrors.CategoryBadInput)
	}
	if user.SecurityStamp == "" {
		return "", goerrors.New("user has no security stamp", goerrors.CategoryBadInput)
	}

	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.params.Issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			Audience:  jwt.ClaimStrings{ts.params.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(ts.notBefore)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.expiration)),
			ID:        uuid.NewString(),
		},
		Name:          user.UserName,
		Email:         user.Email,
		Roles:         append([]string(nil), roles...),
		SecurityStamp: user.SecurityStamp,
	}

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenService) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if ts.params.SigningKeyID != "" {
		token.Header["kid"] = ts.params.SigningKeyID
	}

	signed, err := token.SignedString(ts.params.SigningKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	if len(ts.params.EncryptionKey) == 0 {
		return signed, nil
	}

	return ts.encrypt(signed)
}

// Validate parses and verifies a token string, returning the principal
func (ts *TokenService) Validate(raw string) (*Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenMalformed
	}

	compact := raw
	if isEncryptedToken(raw) {
		if len(ts.params.EncryptionKey) == 0 {
			return nil, malformed(fmt.Errorf("encrypted token received but no decryption key is configured"))
		}
		inner, err := ts.decrypt(raw)
		if err != nil {
			return nil, malformed(err)
		}
		compact = inner
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(validHMACMethods),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(ts.params.ClockSkew),
		jwt.WithIssuer(ts.params.Issuer),
		jwt.WithAudience(ts.params.Audience),
		jwt.WithTimeFunc(ts.now),
	)

	claims := &JWTClaims{}
	token, err := parser.ParseWithClaims(compact, claims, ts.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, goerrors.Wrap(err, goerrors.CategoryAuth, ErrTokenExpired.Message).
				WithTextCode(TextCodeTokenExpired).
				WithCode(goerrors.CodeUnauthorized)
		}
		return nil, malformed(err)
	}

	if !token.Valid {
		ts.logger.Error("TokenService validate could not decode or validate claims")
		return nil, ErrTokenMalformed
	}

	principal := claims.Principal()
	principal.Raw = raw
	return principal, nil
}

func (ts *TokenService) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}

	if kid, ok := t.Header["kid"].(string); ok && kid != "" && ts.keySet != nil {
		return ts.keySet.Keyfunc(t)
	}

	return ts.params.SigningKey, nil
}

func (ts *TokenService) encrypt(signed string) (string, error) {
	encrypter, err := jose.NewEncrypter(
		jose.A128CBC_HS256,
		jose.Recipient{Algorithm: jose.A128KW, Key: ts.params.EncryptionKey},
		(&jose.EncrypterOptions{}).WithType("JWT").WithContentType("JWT"),
	)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create token encrypter")
	}

	object, err := encrypter.Encrypt([]byte(signed))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encrypt JWT")
	}

	out, err := object.CompactSerialize()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to serialize encrypted JWT")
	}
	return out, nil
}

func (ts *TokenService) decrypt(raw string) (string, error) {
	object, err := jose.ParseEncrypted(
		raw,
		[]jose.KeyAlgorithm{jose.A128KW},
		[]jose.ContentEncryption{jose.A128CBC_HS256},
	)
	if err != nil {
		return "", err
	}

	plaintext, err := object.Decrypt(ts.params.EncryptionKey)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// compact JWE has five segments, JWS three
func isEncryptedToken(raw string) bool {
	return strings.Count(raw, ".") == 4
}

func malformed(err error) error {
	return wrapError(err, goerrors.CategoryAuth, ErrTokenMalformed.Message).
		WithTextCode(TextCodeTokenMalformed).
		WithCode(goerrors.CodeUnauthorized)
}

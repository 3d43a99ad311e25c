package jwtware

import (
	"fmt"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	auth "github.com/goliatone/go-auth-gate"
)

type SigningKey struct {
	JWTAlg string
	Key    any
}

// KeySetConfig describes keys for tokens issued by another party
type KeySetConfig struct {
	SigningKeys map[string]SigningKey
	JWKSetURLs  []string
	Issuer      string
	Audience    string
}

// KeyfuncValidator verifies tokens against a keyfunc key set and maps
// their claims to a principal
type KeyfuncValidator struct {
	keyFunc jwt.Keyfunc
	parser  *jwt.Parser
}

var _ auth.TokenValidator = (*KeyfuncValidator)(nil)

// NewKeyfuncValidator builds a validator from given keys and JWK Set URLs.
// Expiration, issuer and audience are mandatory with zero leeway.
func NewKeyfuncValidator(cfg KeySetConfig) (*KeyfuncValidator, error) {
	if len(cfg.SigningKeys) == 0 && len(cfg.JWKSetURLs) == 0 {
		return nil, fmt.Errorf("at least one signing key or JWK Set URL is required")
	}

	givenKeys := make(map[string]keyfunc.GivenKey, len(cfg.SigningKeys))
	for kid, key := range cfg.SigningKeys {
		givenKeys[kid] = keyfunc.NewGivenCustom(key.Key, keyfunc.GivenKeyOptions{
			Algorithm: key.JWTAlg,
		})
	}

	var kf jwt.Keyfunc
	if len(cfg.JWKSetURLs) > 0 {
		var err error
		kf, err = multiKeyfunc(givenKeys, cfg.JWKSetURLs)
		if err != nil {
			return nil, err
		}
	} else {
		kf = keyfunc.NewGiven(givenKeys).Keyfunc
	}

	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(0),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &KeyfuncValidator{
		keyFunc: kf,
		parser:  jwt.NewParser(opts...),
	}, nil
}

// Validate implements auth.TokenValidator
func (v *KeyfuncValidator) Validate(raw string) (*auth.Principal, error) {
	claims := &auth.JWTClaims{}
	token, err := v.parser.ParseWithClaims(raw, claims, v.keyFunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, auth.ErrTokenMalformed
	}

	principal := claims.Principal()
	principal.Raw = raw
	return principal, nil
}

func multiKeyfunc(givenKeys map[string]keyfunc.GivenKey, jwtSetUrls []string) (jwt.Keyfunc, error) {
	opts := keyfuncOptions(givenKeys)
	m := make(map[string]keyfunc.Options, len(jwtSetUrls))
	for _, url := range jwtSetUrls {
		m[url] = opts
	}
	mopts := keyfunc.MultipleOptions{
		KeySelector: keyfunc.KeySelectorFirst,
	}
	multi, err := keyfunc.GetMultiple(m, mopts)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWT URLs: %w", err)
	}
	return multi.Keyfunc, nil
}

func keyfuncOptions(givenKeys map[string]keyfunc.GivenKey) keyfunc.Options {
	return keyfunc.Options{
		GivenKeys: givenKeys,
		RefreshErrorHandler: func(err error) {
			log.Printf("failed to do a background refresh of JWT set: %s", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}
}

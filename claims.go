package auth

import (
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim types carried by issued tokens
const (
	ClaimTypeSubject       = "sub"
	ClaimTypeName          = "name"
	ClaimTypeEmail         = "email"
	ClaimTypeRole          = "role"
	ClaimTypeSecurityStamp = "sstamp"
	ClaimTypeTokenID       = "jti"
	ClaimTypeIssuer        = "iss"
	ClaimTypeAudience      = "aud"
)

// Claim is a single (type, value) pair of a principal
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Principal is the ordered claims set extracted from a verified token
type Principal struct {
	Claims    []Claim
	ExpiresAt time.Time
	IssuedAt  time.Time
	Raw       string
}

// NewPrincipal creates a principal from claims, keeping their order
func NewPrincipal(claims ...Claim) *Principal {
	return &Principal{Claims: claims}
}

// HasClaims reports whether the claims set is non-empty
func (p *Principal) HasClaims() bool {
	return p != nil && len(p.Claims) > 0
}

// FindFirst returns the value of the first claim of the given type
func (p *Principal) FindFirst(claimType string) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, c := range p.Claims {
		if c.Type == claimType {
			return c.Value, true
		}
	}
	return "", false
}

// FindAll returns every value for the given claim type, in order
func (p *Principal) FindAll(claimType string) []string {
	if p == nil {
		return nil
	}
	var out []string
	for _, c := range p.Claims {
		if c.Type == claimType {
			out = append(out, c.Value)
		}
	}
	return out
}

// Subject returns the subject claim
func (p *Principal) Subject() string {
	v, _ := p.FindFirst(ClaimTypeSubject)
	return v
}

// SecurityStamp returns the trimmed security stamp claim
func (p *Principal) SecurityStamp() string {
	v, _ := p.FindFirst(ClaimTypeSecurityStamp)
	return strings.TrimSpace(v)
}

// UserID parses the numeric user identifier from the subject claim
func (p *Principal) UserID() (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(p.Subject()), 10, 64)
}

// UserName returns the name claim
func (p *Principal) UserName() string {
	v, _ := p.FindFirst(ClaimTypeName)
	return v
}

// Roles returns all role claims
func (p *Principal) Roles() []string {
	return p.FindAll(ClaimTypeRole)
}

// HasRole checks if the principal carries the given role
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles() {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// JWTClaims is the token payload
type JWTClaims struct {
	jwt.RegisteredClaims
	Name          string   `json:"name,omitempty"`
	Email         string   `json:"email,omitempty"`
	Roles         []string `json:"role,omitempty"`
	SecurityStamp string   `json:"sstamp,omitempty"`
}

// Principal converts the payload into an ordered claims set.
// Empty values are skipped so an absent claim never shows up as present.
func (c *JWTClaims) Principal() *Principal {
	p := &Principal{}
	if c == nil {
		return p
	}

	add := func(claimType, value string) {
		if value == "" {
			return
		}
		p.Claims = append(p.Claims, Claim{Type: claimType, Value: value})
	}

	add(ClaimTypeSubject, c.Subject)
	add(ClaimTypeName, c.Name)
	add(ClaimTypeEmail, c.Email)
	for _, r := range c.Roles {
		add(ClaimTypeRole, r)
	}
	add(ClaimTypeSecurityStamp, c.SecurityStamp)
	add(ClaimTypeTokenID, c.ID)
	add(ClaimTypeIssuer, c.Issuer)
	for _, aud := range c.Audience {
		add(ClaimTypeAudience, aud)
	}

	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	if c.IssuedAt != nil {
		p.IssuedAt = c.IssuedAt.Time
	}

	return p
}

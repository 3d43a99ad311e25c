package auth

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// RejectReason is the human readable cause of a refused admission
type RejectReason string

const (
	ReasonNoClaims             RejectReason = "no claims"
	ReasonNoSecurityStamp      RejectReason = "no security stamp"
	ReasonInvalidSecurityStamp RejectReason = "invalid security stamp"
	ReasonUserNotActive        RejectReason = "user not active"
)

const (
	TextCodeNoClaims             = "TOKEN_NO_CLAIMS"
	TextCodeNoSecurityStamp      = "TOKEN_NO_SECURITY_STAMP"
	TextCodeInvalidSecurityStamp = "TOKEN_INVALID_SECURITY_STAMP"
	TextCodeUserNotActive        = "USER_NOT_ACTIVE"
	TextCodeIdentityInconsistent = "IDENTITY_INCONSISTENT"
	TextCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	TextCodeUnauthorized         = "UNAUTHORIZED"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
	TextCodeTokenMalformed       = "TOKEN_MALFORMED"
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS"
)

var reasonsByTextCode = map[string]RejectReason{
	TextCodeNoClaims:             ReasonNoClaims,
	TextCodeNoSecurityStamp:      ReasonNoSecurityStamp,
	TextCodeInvalidSecurityStamp: ReasonInvalidSecurityStamp,
	TextCodeUserNotActive:        ReasonUserNotActive,
}

// ErrNoClaims is returned when a token carries an empty claims set
var ErrNoClaims = goerrors.New("This token has no claims.", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoClaims).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoSecurityStamp is returned when the security stamp claim is missing or empty
var ErrNoSecurityStamp = goerrors.New("This token has no security stamp.", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoSecurityStamp).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidSecurityStamp is returned when the stamp no longer matches the user record
var ErrInvalidSecurityStamp = goerrors.New("Token security stamp is not valid.", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidSecurityStamp).
	WithCode(goerrors.CodeUnauthorized)

// ErrUserNotActive is returned when the user record is disabled
var ErrUserNotActive = goerrors.New("User is not active.", goerrors.CategoryAuth).
	WithTextCode(TextCodeUserNotActive).
	WithCode(goerrors.CodeUnauthorized)

// ErrIdentityInconsistent flags a verified token whose subject has no usable user record
var ErrIdentityInconsistent = goerrors.New("Token subject does not resolve to a user.", goerrors.CategoryAuth).
	WithTextCode(TextCodeIdentityInconsistent).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnauthorized is the generic challenge outcome
var ErrUnauthorized = goerrors.New("You are unauthorized to access this resource.", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired token lifetime is over
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed token could not be parsed or verified
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidCredentials user name or password did not match
var ErrInvalidCredentials = goerrors.New("invalid user name or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found")

// ErrNoEmptyString empty passwords are not hashed
var ErrNoEmptyString = errors.New("password can not be an empty string")

// ErrMismatchedHashAndPassword password does not match hash
var ErrMismatchedHashAndPassword = errors.New("password and hash do not match")

// NewRejection returns the rejection error for the given reason
func NewRejection(reason RejectReason) *goerrors.Error {
	switch reason {
	case ReasonNoClaims:
		return ErrNoClaims
	case ReasonNoSecurityStamp:
		return ErrNoSecurityStamp
	case ReasonInvalidSecurityStamp:
		return ErrInvalidSecurityStamp
	case ReasonUserNotActive:
		return ErrUserNotActive
	}
	return ErrUnauthorized
}

// RejectionReason returns the reason when err is an admission rejection
func RejectionReason(err error) (RejectReason, bool) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return "", false
	}
	reason, ok := reasonsByTextCode[richErr.TextCode]
	return reason, ok
}

// IsRejection reports whether err is an expected, user triggerable refusal
func IsRejection(err error) bool {
	_, ok := RejectionReason(err)
	return ok
}

// IsConsistencyAnomaly reports whether err signals a token/store mismatch
func IsConsistencyAnomaly(err error) bool {
	return hasTextCode(err, TextCodeIdentityInconsistent)
}

// IsVerificationFailure reports whether err comes from token verification
func IsVerificationFailure(err error) bool {
	return hasTextCode(err, TextCodeAuthenticationFailed)
}

// NewVerificationFailure wraps the cause of a failed token verification
func NewVerificationFailure(cause error) *goerrors.Error {
	if cause == nil {
		cause = ErrTokenMalformed
	}
	return wrapError(cause, goerrors.CategoryAuth, "Authentication failed.").
		WithTextCode(TextCodeAuthenticationFailed).
		WithCode(goerrors.CodeUnauthorized)
}

// NewChallengeFailure is the outcome of a challenge. With no prior failure
// it is the generic unauthorized error; otherwise it wraps the cause and
// keeps its text code so RejectionReason and IsConsistencyAnomaly still work.
// Internal failures are returned as they are and stay server errors.
func NewChallengeFailure(cause error) *goerrors.Error {
	if cause == nil {
		return ErrUnauthorized.Clone()
	}

	textCode := TextCodeUnauthorized
	var richErr *goerrors.Error
	if goerrors.As(cause, &richErr) {
		if richErr.Category == goerrors.CategoryInternal {
			return richErr
		}
		if richErr.TextCode != "" {
			textCode = richErr.TextCode
		}
	}

	return wrapError(cause, goerrors.CategoryAuth, "Authenticate failure.").
		WithTextCode(textCode).
		WithCode(goerrors.CodeUnauthorized)
}

func newConsistencyAnomaly(cause error, metadata map[string]any) *goerrors.Error {
	err := wrapError(cause, goerrors.CategoryAuth, ErrIdentityInconsistent.Message)
	err.WithTextCode(TextCodeIdentityInconsistent).
		WithCode(goerrors.CodeUnauthorized)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// wrapError always yields a fresh error with cause as its Source; goerrors.Wrap
// clones rich causes and keeps their category.
func wrapError(cause error, category goerrors.Category, message string) *goerrors.Error {
	err := goerrors.New(message, category)
	err.Source = cause
	return err
}

// hasTextCode walks the chain of rich errors looking for code
func hasTextCode(err error, code string) bool {
	for err != nil {
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) {
			return false
		}
		if richErr.TextCode == code {
			return true
		}
		err = richErr.Source
	}
	return false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if hasTextCode(err, TextCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

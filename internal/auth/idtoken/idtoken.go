// Package idtoken decodes OIDC ID tokens and checks their claims.
//
// ClaimsOnlyValidator does NOT verify the token signature. It checks the
// expiry and issuer claims only and must not be treated as a trust
// boundary. A signature-verifying Validator can replace it without changes
// to its callers.
package idtoken

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// Reasons carried by InvalidError.
const (
	ReasonMalformed = "malformed"
	ReasonExpired   = "expired"
	ReasonBadIssuer = "bad-issuer"
)

// InvalidError reports why an ID token was rejected.
type InvalidError struct {
	Reason string
	Err    error
}

func (e *InvalidError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid id token: %s: %v", e.Reason, e.Err)
	}
	return "invalid id token: " + e.Reason
}

func (e *InvalidError) Unwrap() error { return e.Err }

// Invalid builds an InvalidError for reason.
func Invalid(reason string) *InvalidError {
	return &InvalidError{Reason: reason}
}

// Claims are the ID token claims the console reads.
type Claims struct {
	Name              string   `json:"name,omitempty"`
	PreferredUsername string   `json:"preferred_username,omitempty"`
	Email             string   `json:"email,omitempty"`
	Groups            []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// Token is a decoded, not yet validated, ID token.
type Token struct {
	Raw    string
	Claims *Claims
}

// Decode splits the compact JWT and decodes its payload. The signature
// segment is carried along but not checked.
func Decode(raw string) (*Token, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, &InvalidError{Reason: ReasonMalformed, Err: err}
	}
	return &Token{Raw: raw, Claims: claims}, nil
}

// Validator decides whether a decoded ID token may be trusted.
type Validator interface {
	Validate(ctx context.Context, token *Token) error
}

// ClaimsOnlyValidator checks exp then iss. It is not cryptographic.
type ClaimsOnlyValidator struct {
	issuer string
	clock  clockwork.Clock
}

// Option configures a ClaimsOnlyValidator.
type Option func(*ClaimsOnlyValidator)

// WithClock sets the clock used for the expiry check.
func WithClock(clock clockwork.Clock) Option {
	return func(v *ClaimsOnlyValidator) {
		if clock != nil {
			v.clock = clock
		}
	}
}

func NewClaimsOnlyValidator(issuer string, opts ...Option) *ClaimsOnlyValidator {
	v := &ClaimsOnlyValidator{issuer: issuer, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Validate returns nil or an *InvalidError.
func (v *ClaimsOnlyValidator) Validate(_ context.Context, token *Token) error {
	if token == nil || token.Claims == nil {
		return Invalid(ReasonMalformed)
	}
	exp := token.Claims.ExpiresAt
	if exp == nil || !exp.Time.After(v.clock.Now()) {
		return Invalid(ReasonExpired)
	}
	if token.Claims.Issuer != v.issuer {
		return Invalid(ReasonBadIssuer)
	}
	return nil
}

// Issuer returns the expected iss claim.
func (v *ClaimsOnlyValidator) Issuer() string {
	return v.issuer
}

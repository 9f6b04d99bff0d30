package models

import "time"

// AuthorizationStatus is the session status every protected view reads.
type AuthorizationStatus string

const (
	StatusUnauthenticated AuthorizationStatus = "unauthenticated"
	StatusPending         AuthorizationStatus = "pending"
	StatusSuccessful      AuthorizationStatus = "successful"
	StatusError           AuthorizationStatus = "error"
	StatusForbidden       AuthorizationStatus = "forbidden"
)

// HoldsTokens reports whether tokens may be attached to a session in this status.
func (s AuthorizationStatus) HoldsTokens() bool {
	return s == StatusPending || s == StatusSuccessful
}

// Phase is the orchestrator state reached by one page load.
type Phase string

const (
	PhaseUnauthenticated Phase = "unauthenticated"
	PhasePendingRedirect Phase = "pending_redirect"
	PhasePendingExchange Phase = "pending_exchange"
	PhasePendingUserInfo Phase = "pending_user_info"
	PhaseAuthorized      Phase = "authorized"
	PhaseForbidden       Phase = "forbidden"
	PhaseError           Phase = "error"
)

// Terminal reports whether the page load ends in this phase.
func (p Phase) Terminal() bool {
	switch p {
	case PhasePendingRedirect, PhaseAuthorized, PhaseForbidden, PhaseError, PhaseUnauthenticated:
		return true
	default:
		return false
	}
}

// User is the resolved console user.
type User struct {
	Name              string      `json:"name"`
	PreferredUsername string      `json:"preferredUsername"`
	Email             string      `json:"email"`
	Roles             []string    `json:"roles"`
	PrimaryRole       PrimaryRole `json:"primaryRole,omitempty"`
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = append([]string(nil), u.Roles...)
	return &c
}

// Tokens is the persisted credential pair with its local expiry.
type Tokens struct {
	AccessToken string
	IDToken     string
	ExpiresAt   time.Time
}

// TokenSet is the result of an authorization code exchange.
type TokenSet struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// UserInfo is the profile resolved from a validated ID token.
type UserInfo struct {
	Name              string   `json:"name"`
	PreferredUsername string   `json:"preferred_username"`
	Email             string   `json:"email"`
	Roles             []string `json:"roles"`
}

// ErrorInfo is the error payload carried by failure events.
type ErrorInfo struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// NewErrorInfo wraps err as an error-severity payload.
func NewErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	return &ErrorInfo{Severity: "Error", Message: err.Error()}
}

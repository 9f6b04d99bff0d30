package models

import "time"

// EventKind names a session transition.
type EventKind string

const (
	KindStatusChanged          EventKind = "AUTH_AUTHORIZATION_STATUS_CHANGED"
	KindAuthorizationReset     EventKind = "AUTH_AUTHORIZATION_RESET"
	KindLoginRedirectSucceeded EventKind = "AUTH_CODE_SUCCEEDED"
	KindLoginRedirectFailed    EventKind = "AUTH_CODE_FAILED"
	KindLoginSucceeded         EventKind = "AUTH_LOGIN_SUCCEEDED"
	KindLoginFailed            EventKind = "AUTH_LOGIN_FAILED"
	KindInfoSucceeded          EventKind = "AUTH_INFO_SUCCEEDED"
	KindInfoFailed             EventKind = "AUTH_INFO_FAILED"
	KindLogoutSucceeded        EventKind = "AUTH_LOGOUT_SUCCEEDED"
	KindLogoutFailed           EventKind = "AUTH_LOGOUT_FAILED"
	KindUserInactive           EventKind = "AUTH_USER_INACTIVE"
)

// Event is a typed session transition dispatched into the projection.
type Event interface {
	Kind() EventKind
}

// StatusChanged moves the session to a new authorization status.
type StatusChanged struct {
	Status AuthorizationStatus
}

// AuthorizationReset drops tokens and user and lands on Status.
type AuthorizationReset struct {
	Status AuthorizationStatus
}

// LoginRedirectSucceeded records the authorization code the IdP returned.
type LoginRedirectSucceeded struct {
	Code string
}

type LoginRedirectFailed struct {
	Error *ErrorInfo
}

// LoginSucceeded attaches tokens to a pending session. ExpiresIn is zero
// when the session was resumed from storage.
type LoginSucceeded struct {
	AccessToken string
	IDToken     string
	ExpiresIn   int64
	ExpiresAt   time.Time
}

type LoginFailed struct {
	Error *ErrorInfo
}

// InfoSucceeded attaches the resolved user to an authorized session.
type InfoSucceeded struct {
	User User
}

type InfoFailed struct {
	Error *ErrorInfo
}

type LogoutSucceeded struct{}

type LogoutFailed struct {
	Error *ErrorInfo
}

// UserInactive records that the watchdog ended the session.
type UserInactive struct {
	InactiveFor time.Duration
}

func (StatusChanged) Kind() EventKind          { return KindStatusChanged }
func (AuthorizationReset) Kind() EventKind     { return KindAuthorizationReset }
func (LoginRedirectSucceeded) Kind() EventKind { return KindLoginRedirectSucceeded }
func (LoginRedirectFailed) Kind() EventKind    { return KindLoginRedirectFailed }
func (LoginSucceeded) Kind() EventKind         { return KindLoginSucceeded }
func (LoginFailed) Kind() EventKind            { return KindLoginFailed }
func (InfoSucceeded) Kind() EventKind          { return KindInfoSucceeded }
func (InfoFailed) Kind() EventKind             { return KindInfoFailed }
func (LogoutSucceeded) Kind() EventKind        { return KindLogoutSucceeded }
func (LogoutFailed) Kind() EventKind           { return KindLogoutFailed }
func (UserInactive) Kind() EventKind           { return KindUserInactive }

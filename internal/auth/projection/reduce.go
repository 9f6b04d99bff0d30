// Package projection folds session transition events into the read-only
// auth state every protected view consults.
package projection

import (
	"time"

	"conductor-console/internal/auth/models"
)

// State is the projected session. Tokens are raw fields; expiry-based
// validity is re-derived by readers.
type State struct {
	AuthorizationStatus models.AuthorizationStatus `json:"authorizationStatus"`
	Code                string                     `json:"code,omitempty"`
	AccessToken         string                     `json:"-"`
	IDToken             string                     `json:"-"`
	ExpiresIn           int64                      `json:"expiresIn,omitempty"`
	ExpiresAt           time.Time                  `json:"expiresAt,omitzero"`
	User                *models.User               `json:"user,omitempty"`
	Error               *models.ErrorInfo          `json:"error,omitempty"`
	InactiveFor         time.Duration              `json:"inactiveFor,omitempty"`
}

// Initial is the state before any event.
func Initial() State {
	return State{AuthorizationStatus: models.StatusUnauthenticated}
}

// IsAuthorized reports whether protected views may render.
func (s State) IsAuthorized() bool {
	return s.AuthorizationStatus == models.StatusSuccessful && s.User != nil
}

// HasTokens reports whether tokens are attached.
func (s State) HasTokens() bool {
	return s.AccessToken != "" && s.IDToken != ""
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := s
	c.User = s.User.Clone()
	if s.Error != nil {
		e := *s.Error
		c.Error = &e
	}
	return c
}

// Reduce returns the state after ev. It is pure: the result depends only on
// its arguments, prev is never modified, and unknown events return an
// unchanged copy.
func Reduce(prev State, ev models.Event) State {
	next := prev.Clone()
	if next.AuthorizationStatus == "" {
		next.AuthorizationStatus = models.StatusUnauthenticated
	}

	switch e := ev.(type) {
	case models.StatusChanged:
		next.AuthorizationStatus = e.Status
		if e.Status == models.StatusPending || e.Status == models.StatusSuccessful {
			next.Error = nil
		}
	case models.AuthorizationReset:
		status := e.Status
		if status == "" {
			status = models.StatusForbidden
		}
		next = State{
			AuthorizationStatus: status,
			Error:               next.Error,
			InactiveFor:         next.InactiveFor,
		}
	case models.LoginRedirectSucceeded:
		next.Code = e.Code
		next.Error = nil
	case models.LoginRedirectFailed:
		next.Error = cloneError(e.Error)
	case models.LoginSucceeded:
		if next.AuthorizationStatus.HoldsTokens() {
			next.AccessToken = e.AccessToken
			next.IDToken = e.IDToken
			next.ExpiresIn = e.ExpiresIn
			next.ExpiresAt = e.ExpiresAt
			next.InactiveFor = 0
		}
	case models.LoginFailed:
		next.Error = cloneError(e.Error)
	case models.InfoSucceeded:
		if next.AuthorizationStatus == models.StatusSuccessful {
			next.User = e.User.Clone()
		}
	case models.InfoFailed:
		next.Error = cloneError(e.Error)
	case models.LogoutSucceeded:
		next.Error = nil
	case models.LogoutFailed:
		next.Error = cloneError(e.Error)
	case models.UserInactive:
		next.InactiveFor = e.InactiveFor
	}

	return normalize(next)
}

// normalize enforces: user only when successful, tokens only when pending
// or successful.
func normalize(s State) State {
	if s.AuthorizationStatus != models.StatusSuccessful {
		s.User = nil
	}
	if !s.AuthorizationStatus.HoldsTokens() {
		s.AccessToken = ""
		s.IDToken = ""
		s.ExpiresIn = 0
		s.ExpiresAt = time.Time{}
	}
	return s
}

func cloneError(e *models.ErrorInfo) *models.ErrorInfo {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

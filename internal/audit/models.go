package audit

import (
	"context"
	"time"
)

// Category classifies audit events by their primary purpose so sinks can
// route and retain them differently.
type Category string

const (
	// CategorySecurity covers denials, failures and forced logouts.
	CategorySecurity Category = "security"
	// CategoryOperations covers routine login and logout activity.
	CategoryOperations Category = "operations"
)

// Action names what happened.
type Action string

const (
	ActionLoginRedirect         Action = "login_redirect"
	ActionLoginRedirectFailed   Action = "login_redirect_failed"
	ActionAccessDenied          Action = "access_denied"
	ActionTokenExchanged        Action = "token_exchanged"
	ActionTokenExchangeFailed   Action = "token_exchange_failed"
	ActionSessionResumed        Action = "session_resumed"
	ActionAuthorized            Action = "authorized"
	ActionForbidden             Action = "forbidden"
	ActionLogout                Action = "logout"
	ActionLogoutFailed          Action = "logout_failed"
	ActionTokenRevocationFailed Action = "token_revocation_failed"
	ActionInactivityTimeout     Action = "inactivity_timeout"
)

var actionCategories = map[Action]Category{
	ActionLoginRedirectFailed:   CategorySecurity,
	ActionAccessDenied:          CategorySecurity,
	ActionTokenExchangeFailed:   CategorySecurity,
	ActionForbidden:             CategorySecurity,
	ActionLogoutFailed:          CategorySecurity,
	ActionTokenRevocationFailed: CategorySecurity,
	ActionInactivityTimeout:     CategorySecurity,
}

// Category returns the category of a. Unknown actions are operations.
func (a Action) Category() Category {
	if c, ok := actionCategories[a]; ok {
		return c
	}
	return CategoryOperations
}

// Event is emitted by the session orchestrator and the auth service. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  Category  `json:"category"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	// Device is a readable label derived from UserAgent, e.g. "Chrome on Windows 10".
	Device string `json:"device,omitempty"`
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Emitter is what producers of audit events depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }

package idp

import (
	"errors"
	"fmt"
	"net/http"
)

// UpstreamFailure is implemented by errors that carry an IdP response the
// backend relays to its caller.
type UpstreamFailure interface {
	error
	HTTPStatus() int
	ResponseBody() []byte
	ResponseContentType() string
}

// upstream is the shared payload of the IdP error types. StatusCode is zero
// when no response was received.
type upstream struct {
	StatusCode  int
	Body        []byte
	ContentType string
	Err         error
}

func (u upstream) HTTPStatus() int {
	if u.StatusCode == 0 {
		return http.StatusBadGateway
	}
	return u.StatusCode
}

func (u upstream) ResponseBody() []byte         { return u.Body }
func (u upstream) ResponseContentType() string { return u.ContentType }

func (u upstream) describe(op string) string {
	switch {
	case u.StatusCode != 0 && u.Err != nil:
		return fmt.Sprintf("%s: idp returned %d: %v", op, u.StatusCode, u.Err)
	case u.StatusCode != 0:
		return fmt.Sprintf("%s: idp returned %d", op, u.StatusCode)
	case u.Err != nil:
		return fmt.Sprintf("%s: %v", op, u.Err)
	default:
		return op + " failed"
	}
}

// TokenExchangeError is returned when the code exchange fails.
type TokenExchangeError struct{ upstream }

func (e *TokenExchangeError) Error() string { return e.describe("token exchange") }
func (e *TokenExchangeError) Unwrap() error { return e.Err }

// TokenRevocationError is returned when revocation fails. Callers treat it as
// non-fatal.
type TokenRevocationError struct{ upstream }

func (e *TokenRevocationError) Error() string { return e.describe("token revocation") }
func (e *TokenRevocationError) Unwrap() error { return e.Err }

// LoginProbeError is returned when the authorize endpoint does not answer 2xx.
type LoginProbeError struct{ upstream }

func (e *LoginProbeError) Error() string { return e.describe("login probe") }
func (e *LoginProbeError) Unwrap() error { return e.Err }

func NewTokenExchangeError(status int, body []byte, contentType string, err error) *TokenExchangeError {
	return &TokenExchangeError{upstream{StatusCode: status, Body: body, ContentType: contentType, Err: err}}
}

func NewTokenRevocationError(status int, body []byte, contentType string, err error) *TokenRevocationError {
	return &TokenRevocationError{upstream{StatusCode: status, Body: body, ContentType: contentType, Err: err}}
}

func NewLoginProbeError(status int, body []byte, contentType string, err error) *LoginProbeError {
	return &LoginProbeError{upstream{StatusCode: status, Body: body, ContentType: contentType, Err: err}}
}

// serverFault reports whether err should count against the circuit breaker:
// transport failures and 5xx responses do, 4xx answers do not.
func serverFault(err error) bool {
	if err == nil {
		return false
	}
	var uf UpstreamFailure
	if !errors.As(err, &uf) {
		return true
	}
	status := uf.HTTPStatus()
	return status >= http.StatusInternalServerError
}

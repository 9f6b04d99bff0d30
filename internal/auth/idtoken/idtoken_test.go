package idtoken

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://idp.example.com/oauth2/aus123"

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-checked"))
	require.NoError(t, err)
	return raw
}

func claimsExpiringAt(exp time.Time, issuer string) Claims {
	return Claims{
		Name:   "Ada Lovelace",
		Email:  "ada@example.com",
		Groups: []string{"dlx.conductor.admin"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

func Test_Decode(t *testing.T) {
	raw := signToken(t, claimsExpiringAt(now.Add(time.Hour), testIssuer))

	token, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, token.Raw)
	assert.Equal(t, "Ada Lovelace", token.Claims.Name)
	assert.Equal(t, []string{"dlx.conductor.admin"}, token.Claims.Groups)
	assert.Equal(t, testIssuer, token.Claims.Issuer)
}

func Test_Decode_Malformed(t *testing.T) {
	for _, raw := range []string{"", "not-a-jwt", "a.b", "a.!!!.c"} {
		_, err := Decode(raw)
		var invalid *InvalidError
		require.True(t, errors.As(err, &invalid), "raw=%q", raw)
		assert.Equal(t, ReasonMalformed, invalid.Reason)
	}
}

func Test_ClaimsOnlyValidator(t *testing.T) {
	validator := NewClaimsOnlyValidator(testIssuer, WithClock(clockwork.NewFakeClockAt(now)))

	tests := []struct {
		name       string
		claims     Claims
		wantReason string
	}{
		{name: "valid", claims: claimsExpiringAt(now.Add(time.Second), testIssuer)},
		{name: "expired at exact instant", claims: claimsExpiringAt(now, testIssuer), wantReason: ReasonExpired},
		{name: "expired in the past", claims: claimsExpiringAt(now.Add(-time.Hour), testIssuer), wantReason: ReasonExpired},
		{name: "wrong issuer", claims: claimsExpiringAt(now.Add(time.Hour), "https://evil.example.com/oauth2/aus123"), wantReason: ReasonBadIssuer},
		{name: "expiry checked before issuer", claims: claimsExpiringAt(now.Add(-time.Hour), "https://evil.example.com"), wantReason: ReasonExpired},
		{name: "missing exp", claims: Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: testIssuer}}, wantReason: ReasonExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := Decode(signToken(t, tt.claims))
			require.NoError(t, err)

			err = validator.Validate(context.Background(), token)
			if tt.wantReason == "" {
				assert.NoError(t, err)
				return
			}
			var invalid *InvalidError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.wantReason, invalid.Reason)
		})
	}
}

func Test_ClaimsOnlyValidator_NilToken(t *testing.T) {
	err := NewClaimsOnlyValidator(testIssuer).Validate(context.Background(), nil)
	var invalid *InvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, ReasonMalformed, invalid.Reason)
}

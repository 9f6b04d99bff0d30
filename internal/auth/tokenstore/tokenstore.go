// Package tokenstore persists the console's OAuth tokens in the browser's
// durable storage and the post-login return address in its session storage.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"conductor-console/internal/auth/models"
	"conductor-console/internal/storage"
	"conductor-console/pkg/platform/sentinel"
)

// Durable storage keys.
const (
	KeyAccessToken    = "AUTH_TOKEN"
	KeyIDToken        = "ID_TOKEN"
	KeyExpirationDate = "AUTH_EXPIRATION_DATE"
)

// expiryMargin shortens the IdP lifetime so tokens are treated as stale
// slightly before they really are.
const expiryMargin = 0.9

// timeLayout is ISO-8601 UTC with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Store reads and writes the persisted token record.
type Store struct {
	storage storage.Store
	clock   clockwork.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for expiry decisions.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func New(st storage.Store, opts ...Option) *Store {
	s := &Store{storage: st, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Save writes both tokens and expiresAt = now + 0.9*expiresIn in one batch.
func (s *Store) Save(ctx context.Context, accessToken, idToken string, expiresInSeconds int64) (time.Time, error) {
	lifetime := time.Duration(float64(expiresInSeconds) * expiryMargin * float64(time.Second))
	expiresAt := s.clock.Now().Add(lifetime).UTC().Truncate(time.Millisecond)

	err := s.storage.SetMany(ctx, map[string]string{
		KeyAccessToken:    accessToken,
		KeyIDToken:        idToken,
		KeyExpirationDate: FormatTime(expiresAt),
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("save tokens: %w", err)
	}
	return expiresAt, nil
}

// LoadValid returns the stored tokens when both are present and expiresAt
// is strictly after now. It never clears storage.
func (s *Store) LoadValid(ctx context.Context) (models.Tokens, bool, error) {
	tokens, ok, err := s.Peek(ctx)
	if err != nil || !ok {
		return models.Tokens{}, false, err
	}
	if !s.clock.Now().Before(tokens.ExpiresAt) {
		return models.Tokens{}, false, nil
	}
	return tokens, true, nil
}

// Peek returns whatever complete record is stored, expired or not.
func (s *Store) Peek(ctx context.Context) (models.Tokens, bool, error) {
	access, err := s.get(ctx, KeyAccessToken)
	if err != nil {
		return models.Tokens{}, false, err
	}
	id, err := s.get(ctx, KeyIDToken)
	if err != nil {
		return models.Tokens{}, false, err
	}
	rawExp, err := s.get(ctx, KeyExpirationDate)
	if err != nil {
		return models.Tokens{}, false, err
	}
	if access == "" || id == "" || rawExp == "" {
		return models.Tokens{}, false, nil
	}
	expiresAt, err := ParseTime(rawExp)
	if err != nil {
		// An unreadable expiry is treated as already expired.
		return models.Tokens{AccessToken: access, IDToken: id}, true, nil
	}
	return models.Tokens{AccessToken: access, IDToken: id, ExpiresAt: expiresAt}, true, nil
}

// Clear removes the three token keys.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.storage.Delete(ctx, KeyAccessToken, KeyIDToken, KeyExpirationDate); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, err := s.storage.Get(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

// FormatTime renders t the way the expiration key stores it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime reads a stored expiration timestamp.
func ParseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse expiration %q: %w", v, sentinel.ErrInvalidState)
	}
	return t.UTC(), nil
}

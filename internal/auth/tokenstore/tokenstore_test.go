package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"conductor-console/internal/storage/memory"
)

type TokenStoreSuite struct {
	suite.Suite
	clock   *clockwork.FakeClock
	backend *memory.InMemoryStore
	store   *Store
}

func TestTokenStoreSuite(t *testing.T) {
	suite.Run(t, new(TokenStoreSuite))
}

func (s *TokenStoreSuite) SetupTest() {
	s.clock = clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	s.backend = memory.NewInMemoryStore()
	s.store = New(s.backend, WithClock(s.clock))
}

func (s *TokenStoreSuite) TestSaveWritesAllKeys() {
	ctx := context.Background()

	expiresAt, err := s.store.Save(ctx, "at", "it", 3600)
	s.Require().NoError(err)

	s.Equal(time.Date(2024, 5, 1, 12, 54, 0, 0, time.UTC), expiresAt)
	raw, err := s.backend.Get(ctx, KeyExpirationDate)
	s.Require().NoError(err)
	s.Equal("2024-05-01T12:54:00.000Z", raw)
	s.Equal(3, s.backend.Len())
}

func (s *TokenStoreSuite) TestLoadValidBoundary() {
	ctx := context.Background()
	_, err := s.store.Save(ctx, "at", "it", 100)
	s.Require().NoError(err)

	s.Run("fresh tokens load", func() {
		tokens, ok, err := s.store.LoadValid(ctx)
		s.Require().NoError(err)
		s.True(ok)
		s.Equal("at", tokens.AccessToken)
		s.Equal("it", tokens.IDToken)
	})

	s.Run("one millisecond before expiry is valid", func() {
		s.clock.Advance(90*time.Second - time.Millisecond)
		_, ok, err := s.store.LoadValid(ctx)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("exact expiry instant is invalid", func() {
		s.clock.Advance(time.Millisecond)
		_, ok, err := s.store.LoadValid(ctx)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("expired read does not clear storage", func() {
		_, ok, err := s.store.LoadValid(ctx)
		s.Require().NoError(err)
		s.False(ok)
		s.Equal(3, s.backend.Len())

		tokens, present, err := s.store.Peek(ctx)
		s.Require().NoError(err)
		s.True(present)
		s.Equal("at", tokens.AccessToken)
	})
}

func (s *TokenStoreSuite) TestLoadValidIsIdempotent() {
	ctx := context.Background()
	_, err := s.store.Save(ctx, "at", "it", 100)
	s.Require().NoError(err)

	first, ok1, err := s.store.LoadValid(ctx)
	s.Require().NoError(err)
	second, ok2, err := s.store.LoadValid(ctx)
	s.Require().NoError(err)

	s.Equal(ok1, ok2)
	s.Equal(first, second)
}

func (s *TokenStoreSuite) TestPartialRecordIsNotValid() {
	ctx := context.Background()
	s.Require().NoError(s.backend.SetMany(ctx, map[string]string{
		KeyAccessToken:    "at",
		KeyExpirationDate: "2099-01-01T00:00:00.000Z",
	}))

	_, ok, err := s.store.LoadValid(ctx)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *TokenStoreSuite) TestUnparseableExpiryIsNotValid() {
	ctx := context.Background()
	s.Require().NoError(s.backend.SetMany(ctx, map[string]string{
		KeyAccessToken:    "at",
		KeyIDToken:        "it",
		KeyExpirationDate: "tomorrow",
	}))

	_, ok, err := s.store.LoadValid(ctx)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *TokenStoreSuite) TestClear() {
	ctx := context.Background()
	_, err := s.store.Save(ctx, "at", "it", 100)
	s.Require().NoError(err)

	s.Require().NoError(s.store.Clear(ctx))

	s.Equal(0, s.backend.Len())
	_, ok, err := s.store.Peek(ctx)
	s.Require().NoError(err)
	s.False(ok)
}

type failingStorage struct{ err error }

func (f failingStorage) Get(context.Context, string) (string, error)      { return "", f.err }
func (f failingStorage) SetMany(context.Context, map[string]string) error { return f.err }
func (f failingStorage) Delete(context.Context, ...string) error          { return f.err }

func TestStore_PropagatesBackendErrors(t *testing.T) {
	boom := errors.New("connection refused")
	store := New(failingStorage{err: boom})
	ctx := context.Background()

	_, err := store.Save(ctx, "at", "it", 100)
	assert.ErrorIs(t, err, boom)

	_, _, err = store.LoadValid(ctx)
	assert.ErrorIs(t, err, boom)

	assert.ErrorIs(t, store.Clear(ctx), boom)
}

func TestPendingRedirect(t *testing.T) {
	ctx := context.Background()
	pending := NewPendingRedirect(memory.NewInMemoryStore())

	_, ok, err := pending.Take(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, pending.Save(ctx, "/workflow/123"))
	require.NoError(t, pending.Save(ctx, "/errors"))

	uri, ok, err := pending.Take(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/errors", uri)

	_, ok, err = pending.Take(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "consumed exactly once")
}

func TestTimeFormat(t *testing.T) {
	ts := time.Date(2024, 5, 1, 14, 3, 7, 123456789, time.FixedZone("CEST", 2*3600))

	formatted := FormatTime(ts)
	assert.Equal(t, "2024-05-01T12:03:07.123Z", formatted)

	parsed, err := ParseTime(formatted)
	require.NoError(t, err)
	assert.Equal(t, ts.UTC().Truncate(time.Millisecond), parsed)
}

//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	storagepg "conductor-console/internal/storage/postgres"
	"conductor-console/pkg/platform/sentinel"
	"conductor-console/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *storagepg.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.store = storagepg.NewPostgres(s.pg.DB, storagepg.WithClock(func() time.Time { return fixed }))
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.pg.DB.Exec(`TRUNCATE console_storage`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestUpsertOverwrites() {
	ctx := context.Background()

	s.Require().NoError(s.store.SetMany(ctx, map[string]string{"dev:AUTH_TOKEN": "first"}))
	s.Require().NoError(s.store.SetMany(ctx, map[string]string{"dev:AUTH_TOKEN": "second", "dev:ID_TOKEN": "it"}))

	v, err := s.store.Get(ctx, "dev:AUTH_TOKEN")
	s.Require().NoError(err)
	s.Equal("second", v)
}

func (s *PostgresStoreSuite) TestDeleteMany() {
	ctx := context.Background()
	s.Require().NoError(s.store.SetMany(ctx, map[string]string{"a": "1", "b": "2", "c": "3"}))

	s.Require().NoError(s.store.Delete(ctx, "a", "b"))

	_, err := s.store.Get(ctx, "a")
	s.ErrorIs(err, sentinel.ErrNotFound)
	v, err := s.store.Get(ctx, "c")
	s.Require().NoError(err)
	s.Equal("3", v)
}

func (s *PostgresStoreSuite) TestEnsureSchemaIsIdempotent() {
	s.NoError(s.store.EnsureSchema(context.Background()))
}

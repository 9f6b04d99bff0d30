package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor-console/internal/audit"
)

func TestInMemoryStore_ListRecent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	for _, a := range []audit.Action{audit.ActionLoginRedirect, audit.ActionTokenExchanged, audit.ActionAuthorized} {
		require.NoError(t, s.Append(ctx, audit.Event{Action: a, DeviceID: "d1"}))
	}
	require.NoError(t, s.Append(ctx, audit.Event{Action: audit.ActionLogout, DeviceID: "d2"}))

	recent, err := s.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, audit.ActionAuthorized, recent[0].Action)
	assert.Equal(t, audit.ActionLogout, recent[1].Action)

	all, _ := s.ListRecent(ctx, 100)
	assert.Len(t, all, 4)

	d1, _ := s.ListByDevice(ctx, "d1")
	assert.Len(t, d1, 3)

	s.Clear()
	all, _ = s.ListAll(ctx)
	assert.Empty(t, all)
}

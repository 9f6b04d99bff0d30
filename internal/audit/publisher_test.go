package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor-console/internal/audit"
	"conductor-console/internal/audit/memory"
	"conductor-console/pkg/platform/middleware/metadata"
	"conductor-console/pkg/requestcontext"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pub := audit.NewPublisher(store, audit.WithClock(clockwork.NewFakeClockAt(now)))

	ctx := requestcontext.WithRequestID(context.Background(), "req-1")
	ctx = requestcontext.WithDeviceID(ctx, "device-1")
	ctx = metadata.WithClientMetadata(ctx, "10.0.0.1", "test-agent")

	require.NoError(t, pub.Emit(ctx, audit.Event{Action: audit.ActionAccessDenied}))

	events, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	got := events[0]
	assert.Equal(t, audit.CategorySecurity, got.Category)
	assert.Equal(t, now, got.Timestamp)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "device-1", got.DeviceID)
	assert.Equal(t, "10.0.0.1", got.ClientIP)
	assert.Equal(t, "test-agent", got.UserAgent)
	assert.Contains(t, got.Device, " on ")
}

func TestPublisher_KeepsExplicitFields(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := audit.NewPublisher(store)
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	ctx := requestcontext.WithDeviceID(context.Background(), "from-context")
	require.NoError(t, pub.Emit(ctx, audit.Event{
		Action:    audit.ActionLogout,
		Category:  audit.CategorySecurity,
		Timestamp: ts,
		DeviceID:  "explicit",
	}))

	events, _ := store.ListByDevice(ctx, "explicit")
	require.Len(t, events, 1)
	assert.Equal(t, ts, events[0].Timestamp)
	assert.Equal(t, audit.CategorySecurity, events[0].Category)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := audit.NewPublisher(store, audit.WithAsyncBuffer(10))

	for range 3 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionAuthorized}))
	}
	pub.Close()

	events, err := store.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
}

func TestPublisher_AsyncDropsWhenFull(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	pub := audit.NewPublisher(store, audit.WithAsyncBuffer(1))

	// First event is taken by the worker and blocks; second fills the buffer.
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionLogout}))
	require.Eventually(t, func() bool { return store.started() }, time.Second, 5*time.Millisecond)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionLogout}))
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.ActionLogout}))

	assert.Equal(t, int64(1), pub.Dropped())
	close(store.release)
	pub.Close()
	assert.Equal(t, 2, store.count())
}

func TestPublisher_SyncPropagatesStoreError(t *testing.T) {
	pub := audit.NewPublisher(failingStore{})
	err := pub.Emit(context.Background(), audit.Event{Action: audit.ActionLogout})
	require.Error(t, err)
}

func TestWorker_SkipsFailedAppends(t *testing.T) {
	inbox := make(chan audit.Event, 2)
	inbox <- audit.Event{Action: audit.ActionLogout}
	inbox <- audit.Event{Action: audit.ActionLogout}
	close(inbox)

	store := &countingFailStore{}
	w := audit.NewWorker(store, inbox, nil)
	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, 2, store.calls)
}

func TestWorker_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := audit.NewWorker(memory.NewInMemoryStore(), make(chan audit.Event), nil)
	assert.ErrorIs(t, w.Run(ctx), context.Canceled)
}

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("sink down") }

type countingFailStore struct{ calls int }

func (s *countingFailStore) Append(context.Context, audit.Event) error {
	s.calls++
	return errors.New("sink down")
}

type blockingStore struct {
	mu      sync.Mutex
	n       int
	began   bool
	release chan struct{}
}

func (s *blockingStore) Append(context.Context, audit.Event) error {
	s.mu.Lock()
	s.began = true
	s.mu.Unlock()
	<-s.release
	s.mu.Lock()
	s.n++
	s.mu.Unlock()
	return nil
}

func (s *blockingStore) started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.began
}

func (s *blockingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

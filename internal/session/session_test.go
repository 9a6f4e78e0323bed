package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pastavicenzo/storefront/internal/cartsync"
	"github.com/pastavicenzo/storefront/internal/identity"
)

type memLocal struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemLocal() *memLocal {
	return &memLocal{data: make(map[string][]byte)}
}

func (m *memLocal) Read(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *memLocal) Write(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = blob
	return nil
}

func (m *memLocal) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type memRemote struct {
	mu   sync.Mutex
	docs map[string]cartsync.RemoteDocument
	sets int
}

func newMemRemote() *memRemote {
	return &memRemote{docs: make(map[string]cartsync.RemoteDocument)}
}

func (m *memRemote) Get(_ context.Context, userID string) (*cartsync.RemoteDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[userID]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (m *memRemote) Set(_ context.Context, userID string, doc cartsync.RemoteDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[userID] = doc
	m.sets++
	return nil
}

func (m *memRemote) setCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sets
}

func testManager(t *testing.T, idle time.Duration) (*Manager, *memLocal, *memRemote) {
	t.Helper()
	local := newMemLocal()
	remote := newMemRemote()
	m := NewManager(t.Context(), Config{
		Local:       local,
		Remote:      remote,
		Debounce:    10 * time.Millisecond,
		IdleTimeout: idle,
	})
	t.Cleanup(m.Close)
	return m, local, remote
}

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	t.Parallel()

	m, _, _ := testManager(t, time.Minute)
	a := m.GetOrCreate("device-1")
	b := m.GetOrCreate("device-1")
	assert.Same(t, a, b)
	assert.Equal(t, 1, m.Len())

	other := m.GetOrCreate("device-2")
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, m.Len())
}

func TestSessionHydratesFromLocalStore(t *testing.T) {
	t.Parallel()

	m, local, _ := testManager(t, time.Minute)
	require.NoError(t, local.Write(t.Context(), "device-1",
		[]byte(`{"lines":[{"lineId":"ravioli","displayName":"Ravioli","unitPrice":1200,"quantity":2}]}`)))

	s := m.GetOrCreate("device-1")
	assert.Equal(t, 2, s.Engine.TotalItems())
}

func TestHubDrivesEngineMerge(t *testing.T) {
	t.Parallel()

	m, _, remote := testManager(t, time.Minute)
	s := m.GetOrCreate("device-1")
	s.Hub.Set(identity.Anonymous)
	s.Engine.AddItem("gnocchi", "Gnocchi", decimal.NewFromInt(850), "", "")

	s.Hub.Set(identity.Authenticated("u1"))
	require.Eventually(t, func() bool {
		return remote.setCount() > 0
	}, time.Second, 5*time.Millisecond)

	doc, err := remote.Get(t.Context(), "u1")
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Len(t, doc.Lines, 1)
	assert.Equal(t, "gnocchi", doc.Lines[0].ID)
}

func TestEvictIdleClosesSession(t *testing.T) {
	t.Parallel()

	m, _, _ := testManager(t, 10*time.Millisecond)
	m.GetOrCreate("device-1")
	require.Equal(t, 1, m.Len())

	time.Sleep(20 * time.Millisecond)
	m.evictIdle()
	assert.Equal(t, 0, m.Len())

	// A new call after eviction creates a fresh session.
	fresh := m.GetOrCreate("device-1")
	assert.NotNil(t, fresh)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	m, _, _ := testManager(t, time.Minute)
	m.GetOrCreate("device-1")
	m.Close()
	m.Close()
	assert.Nil(t, m.GetOrCreate("device-2"))
}

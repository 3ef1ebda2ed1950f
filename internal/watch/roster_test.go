package watch

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deepakjacob/launchk/internal/domain"
)

// listingTransport answers domain listings from a table.
type listingTransport struct {
	mu       sync.Mutex
	listings map[domain.DomainType][]string
	embedErr map[domain.DomainType]bool

	// gate, when set, blocks every Query until closed.
	gate    chan struct{}
	entered chan struct{}
}

func newListingTransport() *listingTransport {
	return &listingTransport{
		listings: make(map[domain.DomainType][]string),
		embedErr: make(map[domain.DomainType]bool),
	}
}

func (t *listingTransport) set(d domain.DomainType, labels ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listings[d] = labels
}

func (t *listingTransport) Query(d domain.DomainType, name string) (domain.Record, error) {
	if t.gate != nil {
		select {
		case t.entered <- struct{}{}:
		default:
		}
		<-t.gate
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.embedErr[d] {
		return domain.Record{domain.ErrorKey: "Operation not permitted"}, nil
	}
	labels, ok := t.listings[d]
	if !ok {
		return nil, &domain.TransportError{Op: "list", Domain: d, Err: errors.New("unreachable")}
	}
	services := domain.Record{}
	for _, l := range labels {
		services[l] = domain.Record{"pid": int64(0)}
	}
	return domain.Record{"services": services}, nil
}

func (t *listingTransport) Mutate(domain.Mutation) error { return nil }

func (t *listingTransport) StreamProcessInfo(int64, io.Writer) error { return nil }

type countingStore struct {
	refreshes atomic.Int32
	err       error
}

func (s *countingStore) ConfigFor(string) (*domain.EntryConfig, bool) { return nil, false }
func (s *countingStore) AllConfigured() map[string]domain.EntryConfig { return nil }
func (s *countingStore) EditAndReplace(domain.EntryConfig) error      { return nil }
func (s *countingStore) Refresh() error {
	s.refreshes.Add(1)
	return s.err
}

func newTestRoster(tr domain.Transport, store domain.ConfigStore) *Roster {
	return NewRoster(RosterConfig{
		PollInterval:          10 * time.Millisecond,
		ConfigRefreshInterval: 10 * time.Millisecond,
	}, tr, store, zap.NewNop())
}

func TestDefaultRosterConfig(t *testing.T) {
	config := DefaultRosterConfig()

	assert.Equal(t, time.Second, config.PollInterval)
	assert.Equal(t, 10*time.Second, config.ConfigRefreshInterval)
}

func TestRoster_TickUnionsDomains(t *testing.T) {
	tr := newListingTransport()
	tr.set(domain.DomainSystem, "com.apple.a", "com.apple.shared")
	tr.set(domain.DomainUserLogin, "com.example.b", "com.apple.shared")
	tr.embedErr[domain.DomainPID] = true
	r := newTestRoster(tr, nil)

	require.True(t, r.Tick())

	assert.Equal(t, map[string]struct{}{
		"com.apple.a":      {},
		"com.apple.shared": {},
		"com.example.b":    {},
	}, r.Snapshot())
	assert.True(t, r.Contains("com.example.b"))
	assert.False(t, r.Contains("com.example.missing"))
	assert.Equal(t, 3, r.Len())
}

func TestRoster_TickReplacesWholesale(t *testing.T) {
	tr := newListingTransport()
	tr.set(domain.DomainSystem, "old")
	r := newTestRoster(tr, nil)
	r.Tick()

	tr.set(domain.DomainSystem, "new")
	r.Tick()

	assert.Equal(t, map[string]struct{}{"new": {}}, r.Snapshot())
}

func TestRoster_EveryDomainFailingEmptiesSet(t *testing.T) {
	tr := newListingTransport()
	tr.set(domain.DomainSystem, "job")
	r := newTestRoster(tr, nil)
	r.Tick()

	tr.mu.Lock()
	tr.listings = map[domain.DomainType][]string{}
	tr.mu.Unlock()
	r.Tick()

	assert.Equal(t, 0, r.Len())
}

func TestRoster_SnapshotIsCopy(t *testing.T) {
	tr := newListingTransport()
	tr.set(domain.DomainSystem, "job")
	r := newTestRoster(tr, nil)
	r.Tick()

	snap := r.Snapshot()
	delete(snap, "job")

	assert.True(t, r.Contains("job"))
}

func TestRoster_TickSkippedUnderContention(t *testing.T) {
	tr := newListingTransport()
	tr.set(domain.DomainSystem, "job")
	tr.gate = make(chan struct{})
	tr.entered = make(chan struct{}, 1)
	r := newTestRoster(tr, nil)

	done := make(chan bool)
	go func() { done <- r.Tick() }()
	<-tr.entered

	assert.False(t, r.Tick(), "second tick must not wait for the first")

	close(tr.gate)
	assert.True(t, <-done)
	assert.True(t, r.Contains("job"))
}

func TestRoster_TickSkippedWhileSetIsRead(t *testing.T) {
	tr := newListingTransport()
	tr.set(domain.DomainSystem, "old")
	r := newTestRoster(tr, nil)
	require.True(t, r.Tick())
	ch := r.Subscribe()

	tr.set(domain.DomainSystem, "new")
	r.mu.RLock()
	skipped := !r.Tick()
	r.mu.RUnlock()

	assert.True(t, skipped, "tick must not wait for readers")
	assert.True(t, r.Contains("old"))
	assert.False(t, r.Contains("new"))
	select {
	case <-ch:
		t.Fatal("skipped tick must not notify")
	default:
	}

	assert.True(t, r.Tick())
	assert.True(t, r.Contains("new"))
}

func TestRoster_SubscribeCoalesces(t *testing.T) {
	tr := newListingTransport()
	r := newTestRoster(tr, nil)
	ch := r.Subscribe()

	r.Tick()
	r.Tick()
	r.Tick()

	select {
	case <-ch:
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-ch:
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestRoster_Run(t *testing.T) {
	tr := newListingTransport()
	tr.set(domain.DomainUser, "job")
	store := &countingStore{err: errors.New("permission denied")}
	r := newTestRoster(tr, store)
	ch := r.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("roster never ticked")
	}
	assert.True(t, r.Contains("job"))

	assert.Eventually(t, func() bool { return store.refreshes.Load() > 0 },
		2*time.Second, 5*time.Millisecond, "plists are rescanned even when a refresh fails")

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

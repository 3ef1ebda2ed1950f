// Package watch keeps the set of loaded launchd labels current.
package watch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deepakjacob/launchk/internal/domain"
)

// RosterConfig holds the poll intervals.
type RosterConfig struct {
	PollInterval          time.Duration // How often to list every domain (default 1s)
	ConfigRefreshInterval time.Duration // How often to rescan plist directories (default 10s)
}

// DefaultRosterConfig returns default roster configuration.
func DefaultRosterConfig() RosterConfig {
	return RosterConfig{
		PollInterval:          time.Second,
		ConfigRefreshInterval: 10 * time.Second,
	}
}

// Roster is the set of labels launchd currently has loaded, across every
// domain. Reads never wait on a tick in progress for longer than the swap.
type Roster struct {
	config    RosterConfig
	transport domain.Transport
	store     domain.ConfigStore
	logger    *zap.Logger

	// tickMu serialises ticks; a tick that cannot take it is skipped.
	tickMu sync.Mutex

	mu     sync.RWMutex
	labels map[string]struct{}

	subMu sync.Mutex
	subs  []chan struct{}
}

// NewRoster creates an empty roster. store may be nil, in which case Run
// does not rescan plists.
func NewRoster(config RosterConfig, transport domain.Transport, store domain.ConfigStore, logger *zap.Logger) *Roster {
	return &Roster{
		config:    config,
		transport: transport,
		store:     store,
		logger:    logger,
		labels:    make(map[string]struct{}),
	}
}

// Tick lists every domain and replaces the loaded set with the union of
// their services. It returns false when another tick was already running
// or readers held the set at swap time; the next tick retries.
func (r *Roster) Tick() bool {
	if !r.tickMu.TryLock() {
		r.logger.Debug("roster tick skipped, previous tick still running")
		return false
	}
	defer r.tickMu.Unlock()

	next := make(map[string]struct{})
	for _, d := range domain.ProbeDomains() {
		rec, err := r.transport.Query(d, "")
		if err != nil {
			continue
		}
		if err := rec.Err(); err != nil {
			continue
		}
		services, ok := rec.Dict("services")
		if !ok {
			continue
		}
		for _, label := range services.Keys() {
			next[label] = struct{}{}
		}
	}

	if !r.mu.TryLock() {
		r.logger.Debug("roster tick skipped, loaded set is being read")
		return false
	}
	r.labels = next
	r.mu.Unlock()

	r.notify()
	return true
}

// Snapshot returns a copy of the loaded set.
func (r *Roster) Snapshot() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]struct{}, len(r.labels))
	for k := range r.labels {
		out[k] = struct{}{}
	}
	return out
}

// Contains reports whether label was loaded on the last tick.
func (r *Roster) Contains(label string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.labels[label]
	return ok
}

// Len returns the number of loaded labels.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.labels)
}

// Subscribe returns a channel signalled after every completed tick.
// Signals coalesce: a subscriber that is behind sees one pending signal.
func (r *Roster) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	r.subMu.Lock()
	r.subs = append(r.subs, ch)
	r.subMu.Unlock()
	return ch
}

func (r *Roster) notify() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Run polls until ctx is canceled.
func (r *Roster) Run(ctx context.Context) error {
	r.logger.Info("roster started",
		zap.Duration("poll_interval", r.config.PollInterval),
		zap.Duration("config_refresh_interval", r.config.ConfigRefreshInterval))

	r.Tick()

	pollTicker := time.NewTicker(r.config.PollInterval)
	refreshTicker := time.NewTicker(r.config.ConfigRefreshInterval)

	defer func() {
		pollTicker.Stop()
		refreshTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("roster stopping")
			return ctx.Err()

		case <-pollTicker.C:
			// Ticks run off the loop so a slow daemon never stalls refreshes.
			go r.Tick()

		case <-refreshTicker.C:
			r.refreshConfigs()
		}
	}
}

func (r *Roster) refreshConfigs() {
	if r.store == nil {
		return
	}
	if err := r.store.Refresh(); err != nil {
		r.logger.Warn("failed to refresh plists", zap.Error(err))
	}
}

// Ensure Roster implements domain.RosterReader.
var _ domain.RosterReader = (*Roster)(nil)

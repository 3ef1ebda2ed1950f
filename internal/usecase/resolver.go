package usecase

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/deepakjacob/launchk/internal/domain"
)

// Resolver finds which domain a label lives in and what launchd knows
// about it.
type Resolver struct {
	transport domain.Transport
	store     domain.ConfigStore
	cache     *EntryCache
	logger    *zap.Logger
}

// NewResolver creates a resolver backed by cache.
func NewResolver(transport domain.Transport, store domain.ConfigStore, cache *EntryCache, logger *zap.Logger) *Resolver {
	return &Resolver{
		transport: transport,
		store:     store,
		cache:     cache,
		logger:    logger,
	}
}

// Resolve returns the cached entry for label or probes every domain.
// It never fails: when no domain answers it returns the default entry
// and leaves the cache untouched so a later call can retry.
//
// The cache lock is not held across the probe. Two concurrent resolutions
// of the same label both probe and the last write wins.
func (r *Resolver) Resolve(label string) domain.EntryInfo {
	if info, ok := r.cache.Get(label); ok {
		return info
	}

	info, err := r.probe(label)
	if err != nil {
		r.logger.Debug("entry not resolved", zap.String("label", label))
		return domain.DefaultEntryInfo()
	}

	r.cache.Put(label, info)
	return info
}

// Lookup probes without consulting or filling the cache and reports
// domain.ErrNotFound when nothing answers.
func (r *Resolver) Lookup(label string) (domain.EntryInfo, error) {
	return r.probe(label)
}

func (r *Resolver) probe(label string) (domain.EntryInfo, error) {
	for _, d := range domain.ProbeDomains() {
		rec, err := r.transport.Query(d, label)
		if err != nil {
			continue
		}
		if rec.Err() != nil {
			continue
		}
		r.logger.Debug("entry resolved",
			zap.String("label", label),
			zap.Stringer("domain", d))
		return r.fromRecord(label, d, rec), nil
	}
	return domain.DefaultEntryInfo(), fmt.Errorf("%w: %s", domain.ErrNotFound, label)
}

// fromRecord degrades missing or wrong-typed fields to their defaults.
func (r *Resolver) fromRecord(label string, d domain.DomainType, rec domain.Record) domain.EntryInfo {
	info := domain.DefaultEntryInfo()
	info.Domain = d

	if pid, ok := rec.Int64("service", "PID"); ok {
		info.PID = pid
	}
	if s, ok := rec.String("service", "LimitLoadToSessionType"); ok {
		info.LimitLoadToSessionType = domain.SessionTypeFromString(s)
	}
	if r.store != nil {
		if cfg, ok := r.store.ConfigFor(label); ok {
			info.Config = cfg
		}
	}
	return info
}

// Ensure Resolver implements domain.EntryResolver.
var _ domain.EntryResolver = (*Resolver)(nil)

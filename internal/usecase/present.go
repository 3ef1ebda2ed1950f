package usecase

import (
	"sort"
	"strings"

	"github.com/deepakjacob/launchk/internal/domain"
)

// StatusFunc computes the status of one presented label. cfg is nil for a
// loaded job with no plist on disk.
type StatusFunc func(label string, cfg *domain.EntryConfig, loaded bool) domain.EntryStatus

// Present merges configured and loaded labels into the rows a user
// browses. It has no side effects beyond calling statusFor for rows that
// survive the filters.
//
// Rows are ordered unloaded before loaded, then by name.
func Present(
	configs map[string]domain.EntryConfig,
	roster map[string]struct{},
	statusFor StatusFunc,
	nameFilter string,
	jobFilter domain.JobTypeFilter,
) []domain.ServiceListItem {
	needle := strings.ToLower(nameFilter)

	labels := make([]string, 0, len(configs)+len(roster))
	for label := range configs {
		labels = append(labels, label)
	}
	for label := range roster {
		if _, ok := configs[label]; !ok {
			labels = append(labels, label)
		}
	}

	items := make([]domain.ServiceListItem, 0, len(labels))
	for _, label := range labels {
		if needle != "" && !strings.Contains(strings.ToLower(label), needle) {
			continue
		}

		_, loaded := roster[label]
		var cfg *domain.EntryConfig
		var jobType domain.JobTypeFilter
		if c, ok := configs[label]; ok {
			cfg = &c
			jobType = c.JobTypeFilter(loaded)
		} else if loaded {
			jobType = domain.JobLoaded
		}

		if !jobFilter.Matches(jobType) {
			continue
		}

		items = append(items, domain.ServiceListItem{
			Name:    label,
			Status:  statusFor(label, cfg, loaded),
			JobType: jobType,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		li, lj := items[i].Loaded(), items[j].Loaded()
		if li != lj {
			return !li
		}
		return items[i].Name < items[j].Name
	})
	return items
}

// Presenter binds Present to the live collaborators.
type Presenter struct {
	store    domain.ConfigStore
	roster   domain.RosterReader
	resolver domain.EntryResolver
}

// NewPresenter creates a presenter.
func NewPresenter(store domain.ConfigStore, roster domain.RosterReader, resolver domain.EntryResolver) *Presenter {
	return &Presenter{store: store, roster: roster, resolver: resolver}
}

// Items returns the filtered, sorted rows.
func (p *Presenter) Items(nameFilter string, jobFilter domain.JobTypeFilter) []domain.ServiceListItem {
	return Present(p.store.AllConfigured(), p.roster.Snapshot(), p.status, nameFilter, jobFilter)
}

// Item returns the row for a single label, ignoring filters.
func (p *Presenter) Item(label string) (domain.ServiceListItem, bool) {
	cfg, hasCfg := p.store.ConfigFor(label)
	snapshot := p.roster.Snapshot()
	_, loaded := snapshot[label]
	if !hasCfg && !loaded {
		return domain.ServiceListItem{}, false
	}

	var jobType domain.JobTypeFilter
	if hasCfg {
		jobType = cfg.JobTypeFilter(loaded)
	} else {
		jobType = domain.JobLoaded
	}
	return domain.ServiceListItem{
		Name:    label,
		Status:  p.status(label, cfg, loaded),
		JobType: jobType,
	}, true
}

// StatusFor returns the current status of label.
func (p *Presenter) StatusFor(label string) domain.EntryStatus {
	cfg, _ := p.store.ConfigFor(label)
	_, loaded := p.roster.Snapshot()[label]
	return p.status(label, cfg, loaded)
}

// status only asks launchd about loaded labels; it has no record of the rest.
func (p *Presenter) status(label string, cfg *domain.EntryConfig, loaded bool) domain.EntryStatus {
	info := domain.DefaultEntryInfo()
	if loaded {
		info = p.resolver.Resolve(label)
	}
	if info.Config == nil {
		info.Config = cfg
	}

	session := info.LimitLoadToSessionType
	if !session.Known() && cfg != nil && cfg.LimitLoadToSessionType.Known() {
		session = cfg.LimitLoadToSessionType
	}

	return domain.EntryStatus{
		Info:    info,
		Domain:  info.Domain,
		Session: session,
		Plist:   info.Config,
	}
}

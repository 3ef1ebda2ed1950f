package usecase

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/deepakjacob/launchk/internal/domain"
)

// mockTransport implements domain.Transport for testing
type mockTransport struct {
	mu sync.Mutex

	// answers[d][label] is the "service" body returned for a job query.
	answers map[domain.DomainType]map[string]domain.Record
	// listings[d] is the "services" body returned for a domain listing.
	listings map[domain.DomainType]domain.Record
	// embedErr makes misses return an embedded error key instead of failing.
	embedErr bool

	queries   []domain.DomainType
	mutations []domain.Mutation
	mutateErr error

	procinfo  string
	streamErr error
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		answers:  make(map[domain.DomainType]map[string]domain.Record),
		listings: make(map[domain.DomainType]domain.Record),
	}
}

func (m *mockTransport) answer(d domain.DomainType, label string, body domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.answers[d] == nil {
		m.answers[d] = make(map[string]domain.Record)
	}
	m.answers[d][label] = body
}

func (m *mockTransport) queryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

func (m *mockTransport) Query(d domain.DomainType, name string) (domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, d)

	if name == "" {
		if l, ok := m.listings[d]; ok {
			return domain.Record{"services": l}, nil
		}
		return nil, &domain.TransportError{Op: "query", Domain: d, Err: errors.New("unreachable")}
	}
	if body, ok := m.answers[d][name]; ok {
		return domain.Record{"service": body}, nil
	}
	if m.embedErr {
		return domain.Record{domain.ErrorKey: "Could not find service"}, nil
	}
	return nil, &domain.TransportError{Op: "query", Domain: d, Err: errors.New("unreachable")}
}

func (m *mockTransport) Mutate(mut domain.Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mutateErr != nil {
		return m.mutateErr
	}
	m.mutations = append(m.mutations, mut)
	return nil
}

func (m *mockTransport) StreamProcessInfo(pid int64, sink io.Writer) error {
	if _, err := io.WriteString(sink, m.procinfo); err != nil {
		return err
	}
	return m.streamErr
}

// mockStore implements domain.ConfigStore for testing
type mockStore struct {
	configs map[string]domain.EntryConfig
	editErr error
	edited  []string
}

func newMockStore(cfgs ...domain.EntryConfig) *mockStore {
	s := &mockStore{configs: make(map[string]domain.EntryConfig)}
	for _, c := range cfgs {
		s.configs[c.Label] = c
	}
	return s
}

func (s *mockStore) ConfigFor(label string) (*domain.EntryConfig, bool) {
	c, ok := s.configs[label]
	if !ok {
		return nil, false
	}
	return &c, true
}

func (s *mockStore) AllConfigured() map[string]domain.EntryConfig {
	out := make(map[string]domain.EntryConfig, len(s.configs))
	for k, v := range s.configs {
		out[k] = v
	}
	return out
}

func (s *mockStore) EditAndReplace(cfg domain.EntryConfig) error {
	if s.editErr != nil {
		return s.editErr
	}
	s.edited = append(s.edited, cfg.Label)
	return nil
}

func (s *mockStore) Refresh() error { return nil }

// mockRoster implements domain.RosterReader for testing
type mockRoster map[string]struct{}

func rosterOf(labels ...string) mockRoster {
	r := mockRoster{}
	for _, l := range labels {
		r[l] = struct{}{}
	}
	return r
}

func (r mockRoster) Snapshot() map[string]struct{} {
	out := make(map[string]struct{}, len(r))
	for k := range r {
		out[k] = struct{}{}
	}
	return out
}

// mockResolver implements domain.EntryResolver for testing
type mockResolver struct {
	infos    map[string]domain.EntryInfo
	resolved []string
}

func (r *mockResolver) Resolve(label string) domain.EntryInfo {
	r.resolved = append(r.resolved, label)
	if info, ok := r.infos[label]; ok {
		return info
	}
	return domain.DefaultEntryInfo()
}

type mockSurface struct{ cleared int }

func (s *mockSurface) Clear() { s.cleared++ }

type mockJournal struct {
	records []domain.MutationRecord
	err     error
}

func (j *mockJournal) Record(rec domain.MutationRecord) error {
	if j.err != nil {
		return j.err
	}
	j.records = append(j.records, rec)
	return nil
}

func (j *mockJournal) Recent(limit int) ([]domain.MutationRecord, error) { return j.records, nil }
func (j *mockJournal) Close() error                                       { return nil }

type mockPager struct {
	title string
	data  []byte
	err   error
}

func (p *mockPager) Show(title string, data []byte) error {
	p.title = title
	p.data = data
	return p.err
}

type mockInspector struct {
	desc string
	err  error
}

func (i *mockInspector) Describe(pid int64) (string, error) { return i.desc, i.err }

// osPipe adapts os.Pipe to domain.Pipe.
type osPipe struct {
	r, w *os.File
}

func (p *osPipe) Reader() io.ReadCloser  { return p.r }
func (p *osPipe) Writer() io.WriteCloser { return p.w }
func (p *osPipe) Remove() error {
	p.w.Close()
	return p.r.Close()
}

type osPipeFactory struct{ err error }

func (f osPipeFactory) NewPipe() (domain.Pipe, error) {
	if f.err != nil {
		return nil, f.err
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	return &osPipe{r: r, w: w}, nil
}

func agentConfig(label string) domain.EntryConfig {
	return domain.EntryConfig{
		Label:     label,
		PlistPath: "/Library/LaunchAgents/" + label + ".plist",
		Location:  domain.LocationGlobal,
		Kind:      domain.KindAgent,
	}
}

// itemWith builds a selected row with a plist and the given resolution.
func itemWith(label string, d domain.DomainType, s domain.SessionType, pid int64) *domain.ServiceListItem {
	cfg := agentConfig(label)
	return &domain.ServiceListItem{
		Name: label,
		Status: domain.EntryStatus{
			Info:    domain.EntryInfo{PID: pid, LimitLoadToSessionType: s, Domain: d, Config: &cfg},
			Domain:  d,
			Session: s,
			Plist:   &cfg,
		},
		JobType: cfg.JobTypeFilter(d != domain.DomainUnknown),
	}
}

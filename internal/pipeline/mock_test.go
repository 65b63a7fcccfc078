package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobchange-cli/internal/checkpoint"
	"github.com/sells-group/jobchange-cli/internal/detect"
	"github.com/sells-group/jobchange-cli/internal/enrich"
	"github.com/sells-group/jobchange-cli/internal/filter"
	"github.com/sells-group/jobchange-cli/internal/match"
	"github.com/sells-group/jobchange-cli/internal/model"
	"github.com/sells-group/jobchange-cli/internal/provider"
	"github.com/sells-group/jobchange-cli/internal/resilience"
)

type fakeStore struct {
	mu        sync.Mutex
	contacts  []model.Contact
	applied   [][]model.Update
	failApply bool
	onApply   func() // runs after every successful Apply
}

func (s *fakeStore) Load(context.Context) ([]model.Contact, error) {
	return s.contacts, nil
}

func (s *fakeStore) TotalRows(context.Context) (int, error) {
	return len(s.contacts) + 1, nil
}

func (s *fakeStore) Apply(_ context.Context, updates []model.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failApply {
		return errors.New("store unavailable")
	}
	s.applied = append(s.applied, updates)
	if s.onApply != nil {
		s.onApply()
	}
	return nil
}

func (s *fakeStore) Close() error { return nil }

// fields flattens every applied update into row -> field -> value.
func (s *fakeStore) fields() map[int]map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]map[string]string)
	for _, batch := range s.applied {
		for _, u := range batch {
			if out[u.Row] == nil {
				out[u.Row] = make(map[string]string)
			}
			for k, v := range u.Fields {
				out[u.Row][k] = v
			}
		}
	}
	return out
}

// fakeProfiles is a synchronous profile gateway: Submit stashes echo records,
// ParseProfile answers from a canned table keyed by normalized URL.
type fakeProfiles struct {
	mu      sync.Mutex
	byURL   map[string]model.Profile
	jobs    map[string][]provider.Record
	nextJob int
	failAll bool
}

func newFakeProfiles(profiles ...model.Profile) *fakeProfiles {
	f := &fakeProfiles{
		byURL: make(map[string]model.Profile),
		jobs:  make(map[string][]provider.Record),
	}
	for _, p := range profiles {
		f.byURL[filter.NormalizeProfileURL(p.URL)] = p
	}
	return f
}

func (f *fakeProfiles) Name() string                  { return "brightdata" }
func (f *fakeProfiles) Supports(k provider.Kind) bool { return k == provider.KindProfile }

func (f *fakeProfiles) Limits() provider.Limits {
	return provider.Limits{BatchSize: 5, MaxConcurrentBatches: 1, MaxPollAttempts: 1}
}

func (f *fakeProfiles) Submit(_ context.Context, reqs []provider.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return "", errors.New("snapshot trigger rejected")
	}
	recs := make([]provider.Record, 0, len(reqs))
	for _, r := range reqs {
		recs = append(recs, provider.Record{"url": r.Contact.LinkedInURL})
	}
	f.nextJob++
	id := fmt.Sprintf("snap-%d", f.nextJob)
	f.jobs[id] = recs
	return id, nil
}

func (f *fakeProfiles) Poll(_ context.Context, jobID string) (provider.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	recs, ok := f.jobs[jobID]
	if !ok {
		return provider.Attempt{}, fmt.Errorf("unknown snapshot %s", jobID)
	}
	delete(f.jobs, jobID)
	return provider.Attempt{JobID: jobID, Status: provider.StatusReady, Records: recs}, nil
}

func (f *fakeProfiles) ParseProfile(rec provider.Record) model.Profile {
	url := rec.Str("url")
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.byURL[filter.NormalizeProfileURL(url)]; ok {
		return p
	}
	return model.Profile{URL: url, Err: "Profile not found"}
}

// fakeEnricher answers one capability from a canned url -> value table and
// remembers which company each request carried.
type fakeEnricher struct {
	name   string
	kind   provider.Kind
	values map[string]string

	mu      sync.Mutex
	asked   map[string]string
	jobs    map[string][]provider.Record
	nextJob int
	failAll bool
}

func newFakeEnricher(name string, kind provider.Kind, values map[string]string) *fakeEnricher {
	return &fakeEnricher{
		name:   name,
		kind:   kind,
		values: values,
		asked:  make(map[string]string),
		jobs:   make(map[string][]provider.Record),
	}
}

func (f *fakeEnricher) Name() string                  { return f.name }
func (f *fakeEnricher) Supports(k provider.Kind) bool { return k == f.kind }

func (f *fakeEnricher) Limits() provider.Limits {
	return provider.Limits{BatchSize: 5, MaxConcurrentBatches: 1, MaxPollAttempts: 1}
}

func (f *fakeEnricher) Submit(_ context.Context, reqs []provider.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return "", errors.New("enrichment rejected")
	}
	recs := make([]provider.Record, 0, len(reqs))
	for _, r := range reqs {
		key := filter.NormalizeProfileURL(r.Contact.LinkedInURL)
		f.asked[key] = r.Contact.Company
		recs = append(recs, provider.Record{
			"linkedin_url": r.Contact.LinkedInURL,
			"value":        f.values[key],
		})
	}
	f.nextJob++
	id := fmt.Sprintf("job-%d", f.nextJob)
	f.jobs[id] = recs
	return id, nil
}

func (f *fakeEnricher) Poll(_ context.Context, jobID string) (provider.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	recs, ok := f.jobs[jobID]
	if !ok {
		return provider.Attempt{}, fmt.Errorf("unknown job %s", jobID)
	}
	delete(f.jobs, jobID)
	return provider.Attempt{JobID: jobID, Status: provider.StatusReady, Records: recs}, nil
}

func (f *fakeEnricher) ParseOutcome(rec provider.Record, _ provider.Kind) model.EnrichmentOutcome {
	value := rec.Str("value")
	return model.EnrichmentOutcome{
		Found:  value != "",
		Value:  value,
		Source: f.name,
	}
}

func (f *fakeEnricher) askedCompany(url string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.asked[filter.NormalizeProfileURL(url)]
}

func testLimiter() *resilience.Limiter {
	return resilience.NewLimiter(4, 0, resilience.Policy{MaxAttempts: 1})
}

type fixture struct {
	store    *fakeStore
	profiles *fakeProfiles
	phone    *fakeEnricher
	email    *fakeEnricher
	cp       *checkpoint.Manager
	spoolDir string
	pipe     *Pipeline
}

func newFixture(t *testing.T, store *fakeStore, profiles *fakeProfiles, phone, email *fakeEnricher, opts Options) *fixture {
	t.Helper()
	return newFixtureIn(t, t.TempDir(), store, profiles, phone, email, opts)
}

// newFixtureIn pins the checkpoint directory so a test can rebuild the
// pipeline against the same progress file, the way a restarted process would.
func newFixtureIn(t *testing.T, checkpointDir string, store *fakeStore, profiles *fakeProfiles, phone, email *fakeEnricher, opts Options) *fixture {
	t.Helper()

	matcher, err := match.New(match.Config{})
	require.NoError(t, err)

	cp := checkpoint.NewManager(checkpointDir, opts.Reverse)
	spoolDir := t.TempDir()

	pipe := New(
		store,
		cp,
		profiles,
		testLimiter(),
		enrich.NewChain(provider.KindPhone, enrich.Step{Gateway: phone, Limiter: testLimiter()}),
		enrich.NewChain(provider.KindEmail, enrich.Step{Gateway: email, Limiter: testLimiter()}),
		detect.New(matcher),
		filter.SkipRule{},
		NewSpool(spoolDir),
		opts,
	)

	return &fixture{
		store:    store,
		profiles: profiles,
		phone:    phone,
		email:    email,
		cp:       cp,
		spoolDir: spoolDir,
		pipe:     pipe,
	}
}

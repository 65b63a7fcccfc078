package provider

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/jobchange-cli/internal/model"
)

const leadMagicBaseURL = "https://api.leadmagic.io/v1"

// LeadMagicConfig configures the synchronous finder gateway.
type LeadMagicConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration

	MaxConcurrent int
	MinInterval   time.Duration
}

// LeadMagic answers one contact per call through its mobile-finder and
// email-finder endpoints. It is synchronous: Submit performs the lookup and
// stashes the result under a generated job ID, and the first Poll drains it.
type LeadMagic struct {
	client  *client
	baseURL string
	limits  Limits

	mu   sync.Mutex
	jobs map[string][]Record
}

// NewLeadMagic creates the gateway.
func NewLeadMagic(cfg LeadMagicConfig) *LeadMagic {
	base := cfg.BaseURL
	if base == "" {
		base = leadMagicBaseURL
	}
	header := http.Header{}
	header.Set("X-API-Key", cfg.APIKey)

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	return &LeadMagic{
		client:  newClient("leadmagic", cfg.Timeout, header),
		baseURL: strings.TrimRight(base, "/"),
		limits: Limits{
			BatchSize:            1,
			MaxConcurrentBatches: maxConcurrent,
			MaxPollAttempts:      1,
		},
		jobs: make(map[string][]Record),
	}
}

func (l *LeadMagic) Name() string         { return "leadmagic" }
func (l *LeadMagic) Supports(k Kind) bool { return k == KindEmail || k == KindPhone }
func (l *LeadMagic) Limits() Limits       { return l.limits }

// Submit performs the lookup immediately. A vendor 404 means the contact has
// no data, which is a result, not a failure.
func (l *LeadMagic) Submit(ctx context.Context, reqs []Request) (string, error) {
	records := make([]Record, 0, len(reqs))
	for _, req := range reqs {
		var rec Record
		var err error
		switch req.Kind {
		case KindPhone:
			rec, err = l.findMobile(ctx, req.Contact)
		case KindEmail:
			rec, err = l.findEmail(ctx, req.Contact)
		default:
			return "", eris.Errorf("leadmagic: unsupported kind %q", req.Kind)
		}
		if err != nil {
			return "", err
		}
		records = append(records, rec)
	}

	jobID := uuid.NewString()
	l.mu.Lock()
	l.jobs[jobID] = records
	l.mu.Unlock()
	return jobID, nil
}

// Poll returns the stashed result and forgets the job.
func (l *LeadMagic) Poll(_ context.Context, jobID string) (Attempt, error) {
	l.mu.Lock()
	records, ok := l.jobs[jobID]
	delete(l.jobs, jobID)
	l.mu.Unlock()

	if !ok {
		return Attempt{JobID: jobID}, eris.Errorf("leadmagic: unknown job %s", jobID)
	}
	return Attempt{JobID: jobID, Status: StatusReady, Records: records}, nil
}

func (l *LeadMagic) findMobile(ctx context.Context, c model.Contact) (Record, error) {
	payload := map[string]string{"profile_url": c.LinkedInURL}
	if c.Email != "" {
		payload["work_email"] = c.Email
	}

	var out map[string]any
	err := l.client.postJSON(ctx, l.baseURL+"/people/mobile-finder", payload, &out)
	if isNotFound(err) {
		out = map[string]any{}
		err = nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "leadmagic: mobile finder")
	}

	rec := Record(out)
	if rec == nil {
		rec = Record{}
	}
	rec["linkedin_url"] = c.LinkedInURL
	return rec, nil
}

func (l *LeadMagic) findEmail(ctx context.Context, c model.Contact) (Record, error) {
	payload := map[string]string{
		"first_name":   c.FirstName,
		"last_name":    c.LastName,
		"company_name": c.Company,
	}

	var out map[string]any
	err := l.client.postJSON(ctx, l.baseURL+"/people/email-finder", payload, &out)
	if isNotFound(err) {
		out = map[string]any{}
		err = nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "leadmagic: email finder")
	}

	rec := Record(out)
	if rec == nil {
		rec = Record{}
	}
	rec["linkedin_url"] = c.LinkedInURL
	rec["first_name"] = c.FirstName
	rec["last_name"] = c.LastName
	return rec, nil
}

// ParseOutcome extracts the requested data point from a finder response.
// Emails count as found only when the vendor rates them deliverable.
func (l *LeadMagic) ParseOutcome(rec Record, kind Kind) model.EnrichmentOutcome {
	out := model.EnrichmentOutcome{Source: l.Name()}

	switch kind {
	case KindPhone:
		phone := rec.Str("mobile", "phone", "mobile_phone", "mobile_number")
		if phone != "" && ValidPhone(phone) {
			out.Found = true
			out.Value = NormalizePhone(phone)
			out.Detail = rec.Str("phone_type")
		}
	case KindEmail:
		email := rec.Str("email")
		status := strings.ToLower(rec.Str("status"))
		out.Detail = status
		if email != "" && ValidEmail(email) && (status == "valid" || status == "valid_catch_all") {
			out.Found = true
			out.Value = email
		}
	}
	return out
}

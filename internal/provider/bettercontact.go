package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobchange-cli/internal/model"
)

const betterContactBaseURL = "https://app.bettercontact.rocks/api/v2"

// betterContactProcessing lists every status the vendor uses for a job that
// has not finished yet. Unknown statuses without a result payload are treated
// the same way rather than failing the job.
var betterContactProcessing = map[string]bool{
	"processing":  true,
	"pending":     true,
	"queued":      true,
	"in progress": true,
	"in_progress": true,
	"not_started": true,
	"started":     true,
}

// BetterContactConfig configures the async enrichment gateway.
type BetterContactConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration

	BatchSize            int
	MaxConcurrentBatches int
	PollInterval         time.Duration
	MaxPollAttempts      int
}

// BetterContact enriches emails and phones through an async batch API: a
// submit call returns a request ID, and results are collected by polling.
type BetterContact struct {
	client  *client
	baseURL string
	limits  Limits
}

// NewBetterContact creates the gateway.
func NewBetterContact(cfg BetterContactConfig) *BetterContact {
	base := cfg.BaseURL
	if base == "" {
		base = betterContactBaseURL
	}
	header := http.Header{}
	header.Set("X-API-Key", cfg.APIKey)

	limits := Limits{
		BatchSize:            cfg.BatchSize,
		MaxConcurrentBatches: cfg.MaxConcurrentBatches,
		PollInterval:         cfg.PollInterval,
		MaxPollAttempts:      cfg.MaxPollAttempts,
	}
	if limits.BatchSize <= 0 {
		limits.BatchSize = 10
	}
	if limits.MaxConcurrentBatches <= 0 {
		limits.MaxConcurrentBatches = 2
	}
	if limits.PollInterval <= 0 {
		limits.PollInterval = 10 * time.Second
	}
	if limits.MaxPollAttempts <= 0 {
		limits.MaxPollAttempts = 60
	}

	return &BetterContact{
		client:  newClient("bettercontact", cfg.Timeout, header),
		baseURL: strings.TrimRight(base, "/"),
		limits:  limits,
	}
}

func (b *BetterContact) Name() string         { return "bettercontact" }
func (b *BetterContact) Supports(k Kind) bool { return k == KindEmail || k == KindPhone }
func (b *BetterContact) Limits() Limits       { return b.limits }

// Submit sends the batch for enrichment. All requests in one batch carry the
// same Kind; it selects which data point the vendor resolves.
func (b *BetterContact) Submit(ctx context.Context, reqs []Request) (string, error) {
	if len(reqs) == 0 {
		return "", eris.New("bettercontact: empty batch")
	}

	kind := reqs[0].Kind
	data := make([]map[string]string, 0, len(reqs))
	for _, req := range reqs {
		entry := map[string]string{
			"first_name": req.Contact.FirstName,
			"last_name":  req.Contact.LastName,
			"company":    req.Contact.Company,
		}
		if req.Contact.LinkedInURL != "" {
			entry["linkedin_url"] = req.Contact.LinkedInURL
		}
		data = append(data, entry)
	}

	payload := map[string]any{
		"data":                 data,
		"enrich_email_address": kind == KindEmail,
		"enrich_phone_number":  kind == KindPhone,
	}

	var resp struct {
		RequestID string `json:"request_id"`
		ID        string `json:"id"`
	}
	if err := b.client.postJSON(ctx, b.baseURL+"/async", payload, &resp); err != nil {
		return "", eris.Wrap(err, "bettercontact: submit")
	}

	jobID := resp.RequestID
	if jobID == "" {
		jobID = resp.ID
	}
	if jobID == "" {
		return "", eris.New("bettercontact: submit returned no request id")
	}

	zap.L().Debug("enrichment batch submitted",
		zap.String("request_id", jobID),
		zap.Int("contacts", len(data)),
		zap.String("kind", string(kind)),
	)
	return jobID, nil
}

// Poll checks the job. A 202 or a known in-progress status means keep waiting.
func (b *BetterContact) Poll(ctx context.Context, jobID string) (Attempt, error) {
	status, payload, err := b.client.roundTrip(ctx, http.MethodGet, b.baseURL+"/async/"+jobID, nil)
	if err != nil {
		return Attempt{JobID: jobID}, eris.Wrap(err, "bettercontact: poll")
	}
	if status == http.StatusAccepted {
		return Attempt{JobID: jobID, Status: StatusPending}, nil
	}

	var resp struct {
		Status  string   `json:"status"`
		Results []Record `json:"results"`
		Data    []Record `json:"data"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Attempt{JobID: jobID}, eris.Wrap(err, "bettercontact: decode poll")
	}

	state := strings.ToLower(resp.Status)
	if betterContactProcessing[state] {
		return Attempt{JobID: jobID, Status: StatusPending}, nil
	}
	if state == "failed" || state == "error" {
		return Attempt{
			JobID:  jobID,
			Status: StatusFailed,
			Err:    eris.Errorf("bettercontact: request %s failed", jobID),
		}, nil
	}

	records := resp.Results
	if records == nil {
		records = resp.Data
	}
	if records == nil {
		// Unknown status with no results; keep polling rather than guess.
		zap.L().Warn("unrecognized poll response, treating as in progress",
			zap.String("request_id", jobID),
			zap.String("status", resp.Status),
		)
		return Attempt{JobID: jobID, Status: StatusPending}, nil
	}

	return Attempt{JobID: jobID, Status: StatusReady, Records: records}, nil
}

// ParseOutcome extracts the requested data point from one result record.
func (b *BetterContact) ParseOutcome(rec Record, kind Kind) model.EnrichmentOutcome {
	out := model.EnrichmentOutcome{Source: b.Name()}
	if errMsg := rec.Str("error"); errMsg != "" {
		out.Err = errMsg
	}

	switch kind {
	case KindEmail:
		email := rec.Str("contact_email_address", "email", "email_address")
		out.Detail = strings.ToLower(rec.Str("contact_email_address_status", "email_status"))
		if email != "" && ValidEmail(email) && !strings.HasPrefix(strings.ToLower(email), "noreply") {
			out.Found = true
			out.Value = email
		}
	case KindPhone:
		phone := rec.Str("contact_phone_number", "phone", "phone_number", "mobile")
		if phone != "" && ValidPhone(phone) {
			out.Found = true
			out.Value = NormalizePhone(phone)
		}
	}
	return out
}

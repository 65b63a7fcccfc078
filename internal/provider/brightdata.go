package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobchange-cli/internal/model"
)

const brightDataBaseURL = "https://api.brightdata.com/datasets/v3"

// BrightDataConfig configures the profile snapshot gateway.
type BrightDataConfig struct {
	APIKey    string
	DatasetID string

	// BaseURL overrides the API host, used in tests.
	BaseURL string
	Timeout time.Duration

	BatchSize            int
	MaxConcurrentBatches int
	PollInterval         time.Duration
	MaxPollAttempts      int
}

// BrightData fetches public profile snapshots through an asynchronous dataset
// API: a trigger call returns a snapshot ID, and the snapshot endpoint answers
// 202 (or a running status) until collection finishes.
type BrightData struct {
	client  *client
	baseURL string
	dataset string
	limits  Limits
}

// NewBrightData creates the gateway.
func NewBrightData(cfg BrightDataConfig) *BrightData {
	base := cfg.BaseURL
	if base == "" {
		base = brightDataBaseURL
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)

	limits := Limits{
		BatchSize:            cfg.BatchSize,
		MaxConcurrentBatches: cfg.MaxConcurrentBatches,
		PollInterval:         cfg.PollInterval,
		MaxPollAttempts:      cfg.MaxPollAttempts,
	}
	if limits.BatchSize <= 0 {
		limits.BatchSize = 20
	}
	if limits.MaxConcurrentBatches <= 0 {
		limits.MaxConcurrentBatches = 3
	}
	if limits.PollInterval <= 0 {
		limits.PollInterval = 15 * time.Second
	}
	if limits.MaxPollAttempts <= 0 {
		limits.MaxPollAttempts = 60
	}

	return &BrightData{
		client:  newClient("brightdata", cfg.Timeout, header),
		baseURL: strings.TrimRight(base, "/"),
		dataset: cfg.DatasetID,
		limits:  limits,
	}
}

func (b *BrightData) Name() string         { return "brightdata" }
func (b *BrightData) Supports(k Kind) bool { return k == KindProfile }
func (b *BrightData) Limits() Limits       { return b.limits }

// Submit triggers a snapshot collection for the batch's profile URLs.
func (b *BrightData) Submit(ctx context.Context, reqs []Request) (string, error) {
	payload := make([]map[string]string, 0, len(reqs))
	for _, r := range reqs {
		payload = append(payload, map[string]string{"url": r.Contact.LinkedInURL})
	}

	url := fmt.Sprintf("%s/trigger?dataset_id=%s&include_errors=true&format=json", b.baseURL, b.dataset)
	var resp struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := b.client.postJSON(ctx, url, payload, &resp); err != nil {
		return "", eris.Wrap(err, "brightdata: trigger")
	}
	if resp.SnapshotID == "" {
		return "", eris.New("brightdata: trigger returned no snapshot id")
	}

	zap.L().Debug("snapshot triggered",
		zap.String("snapshot_id", resp.SnapshotID),
		zap.Int("urls", len(payload)),
	)
	return resp.SnapshotID, nil
}

// Poll fetches the snapshot. A 202 or a running/building status means the
// collection is still in progress.
func (b *BrightData) Poll(ctx context.Context, jobID string) (Attempt, error) {
	url := fmt.Sprintf("%s/snapshot/%s?format=json", b.baseURL, jobID)

	status, payload, err := b.client.roundTrip(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Attempt{JobID: jobID}, eris.Wrap(err, "brightdata: snapshot")
	}
	if status == http.StatusAccepted {
		return Attempt{JobID: jobID, Status: StatusPending}, nil
	}

	// The body is either an array of records or a progress object.
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		var progress struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload, &progress); err != nil {
			return Attempt{JobID: jobID}, eris.Wrap(err, "brightdata: decode progress")
		}
		switch strings.ToLower(progress.Status) {
		case "failed", "error":
			return Attempt{
				JobID:  jobID,
				Status: StatusFailed,
				Err:    eris.Errorf("brightdata: snapshot %s failed: %s", jobID, progress.Message),
			}, nil
		default:
			return Attempt{JobID: jobID, Status: StatusPending}, nil
		}
	}

	var records []Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return Attempt{JobID: jobID}, eris.Wrap(err, "brightdata: decode snapshot")
	}
	return Attempt{JobID: jobID, Status: StatusReady, Records: records}, nil
}

// ParseProfile turns a raw snapshot record into a Profile. Field names vary
// between dataset versions, so every read goes through the fallback accessors.
func (b *BrightData) ParseProfile(rec Record) model.Profile {
	if len(rec) == 0 {
		return model.Profile{Err: "no data returned"}
	}

	url := rec.Str("url", "input_url", "linkedin_url", "profile_url")
	if url == "" {
		if input := rec.Sub("input"); input != nil {
			url = input.Str("url")
		}
	}

	if errMsg := rec.Str("error", "warning"); errMsg != "" || strings.EqualFold(rec.Str("status"), "error") {
		if errMsg == "" {
			errMsg = rec.Str("message")
		}
		if strings.Contains(strings.ToLower(errMsg), "private") {
			return model.Profile{URL: url, Private: true}
		}
		return model.Profile{URL: url, Err: errMsg}
	}
	if rec.Bool("is_private") {
		return model.Profile{URL: url, Private: true}
	}

	profile := model.Profile{
		URL:      url,
		Name:     rec.Str("name", "full_name"),
		Headline: rec.Str("headline"),
		Location: rec.Str("location", "city"),
	}

	for _, exp := range rec.List("experience") {
		entry := model.Experience{
			Company:   companyName(exp, "company_name", "company"),
			Title:     exp.Str("title", "position", "job_title", "role"),
			StartDate: exp.Str("start_date"),
			EndDate:   exp.Str("end_date"),
		}
		entry.Current = currentRole(exp)
		profile.Experience = append(profile.Experience, entry)

		if entry.Current && profile.CurrentCompany == "" && entry.Company != "" {
			profile.CurrentCompany = entry.Company
			profile.CurrentTitle = entry.Title
		}
	}

	// Top-level fields fill gaps the experience list left.
	if profile.CurrentCompany == "" {
		profile.CurrentCompany = companyName(rec, "current_company", "company")
		if profile.CurrentTitle == "" {
			if cc := rec.Sub("current_company"); cc != nil {
				profile.CurrentTitle = cc.Str("title")
			}
		}
	}
	if profile.CurrentCompany == "" {
		profile.CurrentCompany = rec.Str("current_company_name")
	}
	if profile.CurrentTitle == "" {
		profile.CurrentTitle = rec.Str("current_company_position", "current_position", "position", "title", "job_title", "headline")
	}

	return profile
}

// companyName reads a company field that is sometimes a string and sometimes
// a nested object.
func companyName(rec Record, keys ...string) string {
	for _, k := range keys {
		if sub := rec.Sub(k); sub != nil {
			if name := sub.Str("name", "company_name"); name != "" {
				return name
			}
			continue
		}
		if s := rec.Str(k); s != "" {
			return s
		}
	}
	return ""
}

// currentRole decides whether an experience entry is ongoing: an explicit
// is_current flag wins, otherwise an absent or "Present" end date counts.
func currentRole(exp Record) bool {
	if v, ok := exp["is_current"].(bool); ok {
		return v
	}
	end := exp.Str("end_date")
	return end == "" || strings.EqualFold(end, "present")
}

// Package provider defines the gateway contract for enrichment vendors and
// implements the Bright Data, LeadMagic and Better Contact clients.
//
// Vendors split into two shapes: synchronous APIs that answer one contact per
// call, and asynchronous batch APIs that accept a job and expect polling. Both
// are driven through the same Gateway interface; synchronous gateways simply
// perform the work in Submit and report Ready on the first Poll.
package provider

import (
	"context"
	"time"

	"github.com/sells-group/jobchange-cli/internal/model"
)

// Kind names a capability a gateway may support.
type Kind string

const (
	KindProfile Kind = "profile"
	KindEmail   Kind = "email"
	KindPhone   Kind = "phone"
)

// Status is the state of a submitted job.
type Status string

const (
	StatusReady   Status = "ready"
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// Request is one contact to look up.
type Request struct {
	Contact model.Contact
	Kind    Kind
}

// Limits describes a gateway's batching and polling envelope.
type Limits struct {
	// BatchSize is the maximum contacts per submitted job. Synchronous
	// gateways use 1.
	BatchSize int

	// MaxConcurrentBatches caps jobs in flight at once.
	MaxConcurrentBatches int

	// PollInterval is the delay between Poll calls for pending jobs.
	PollInterval time.Duration

	// MaxPollAttempts bounds polling; a job still pending after this many
	// polls is treated as timed out.
	MaxPollAttempts int
}

// Attempt is the observed state of a job at one poll.
type Attempt struct {
	JobID   string
	Status  Status
	Records []Record
	Err     error
}

// Gateway is the vendor contract. Submit returns a job ID; Poll reports the
// job's progress and, once Ready, its records.
type Gateway interface {
	Name() string
	Supports(kind Kind) bool
	Limits() Limits
	Submit(ctx context.Context, reqs []Request) (string, error)
	Poll(ctx context.Context, jobID string) (Attempt, error)
}

// ProfileSource is a gateway that returns public profile snapshots.
type ProfileSource interface {
	Gateway
	ParseProfile(rec Record) model.Profile
}

// Enricher is a gateway that returns contact data points.
type Enricher interface {
	Gateway
	ParseOutcome(rec Record, kind Kind) model.EnrichmentOutcome
}

// Package model defines the shared types for the job change pipeline.
package model

// Contact is one roster row under enrichment. The pipeline holds a transient
// in-memory copy per run; only Update records flow back to the row store.
type Contact struct {
	Row         int    `json:"row"`
	ContactID   string `json:"contact_id,omitempty"`
	Email       string `json:"email,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Company     string `json:"company,omitempty"`
	Title       string `json:"title,omitempty"`
	Phone       string `json:"phone,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`

	// Prior enrichment state, as read from the row store.
	JobChanged       string `json:"job_changed,omitempty"`
	NewCompany       string `json:"new_company,omitempty"`
	NewEmail         string `json:"new_email,omitempty"`
	NewPhone         string `json:"new_phone,omitempty"`
	EnrichmentStatus string `json:"enrichment_status,omitempty"`

	// SkipReason is set during filtering and never persisted as-is.
	SkipReason string `json:"-"`
}

// FullName returns "First Last" with missing parts trimmed away.
func (c Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// Update is a sparse field update for a single row. Writes are idempotent
// overwrites, so replaying an Update is always safe.
type Update struct {
	Row    int               `json:"row"`
	Fields map[string]string `json:"fields"`
}

// Set records a field value, allocating the map on first use.
func (u *Update) Set(field, value string) {
	if u.Fields == nil {
		u.Fields = make(map[string]string)
	}
	u.Fields[field] = value
}

// Persisted field keys. The row store adapters map these onto their own
// column layouts.
const (
	FieldConfirmedLinkedIn = "confirmed_linkedin"
	FieldJobChanged        = "job_changed"
	FieldNewCompany        = "new_company"
	FieldNewTitle          = "new_title"
	FieldLastProcessedDate = "last_processed_date"
	FieldNewEmail          = "new_email"
	FieldNewPhone          = "new_phone"
	FieldEnrichmentStatus  = "enrichment_status"
	FieldValidationDate    = "validation_date"
	FieldReadyForOutreach  = "ready_for_outreach"
)

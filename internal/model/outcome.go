package model

// EnrichmentOutcome is the result of one phone or email resolution attempt.
// Found == true implies Value is non-empty and passed the capability's
// validity checks.
type EnrichmentOutcome struct {
	Key    string `json:"key"`
	Found  bool   `json:"found"`
	Value  string `json:"value,omitempty"`
	Detail string `json:"detail,omitempty"` // phone type or email status
	Source string `json:"source,omitempty"` // vendor that supplied the value
	Err    string `json:"error,omitempty"`
}

// JobChangeResult classifies a (recorded company, observed company) pair.
// Derived only; its effects are written to row-store fields, never the
// struct itself.
type JobChangeResult struct {
	IsChange        bool    `json:"is_change"`
	Confidence      float64 `json:"confidence"`
	ObservedCompany string  `json:"observed_company"`
	RecordedCompany string  `json:"recorded_company"`
	ObservedTitle   string  `json:"observed_title,omitempty"`
	Reason          string  `json:"reason"`
}

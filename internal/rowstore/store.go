// Package rowstore abstracts the contact roster behind one contract with
// spreadsheet, SQLite and Postgres adapters. Rows keep their spreadsheet
// numbering (header is row 1, data starts at row 2) across every backend so
// checkpoints stay meaningful when the backend changes.
package rowstore

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/jobchange-cli/internal/model"
)

// Store is the roster the scan reads from and writes back to.
type Store interface {
	// Load returns every contact row in order, row numbers populated.
	Load(ctx context.Context) ([]model.Contact, error)

	// TotalRows reports the live row count including the header, for drift
	// detection against the checkpoint.
	TotalRows(ctx context.Context) (int, error)

	// Apply writes the batched field updates. Updates touch only the
	// enrichment output columns, never the source data.
	Apply(ctx context.Context, updates []model.Update) error

	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend string `yaml:"backend" mapstructure:"backend"` // xlsx, sqlite, postgres
	Path    string `yaml:"path" mapstructure:"path"`       // xlsx workbook or sqlite file
	Sheet   string `yaml:"sheet" mapstructure:"sheet"`     // xlsx sheet name, first sheet if empty
	DSN     string `yaml:"dsn" mapstructure:"dsn"`         // postgres connection string
}

// Open creates the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "xlsx":
		return OpenXLSX(cfg.Path, cfg.Sheet)
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path)
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, eris.Errorf("rowstore: unknown backend %q", cfg.Backend)
	}
}

// Source data columns.
const (
	colContactID = "contact_id"
	colFirstName = "first_name"
	colLastName  = "last_name"
	colEmail     = "email"
	colCompany   = "company"
	colTitle     = "title"
	colPhone     = "phone"
	colLinkedIn  = "linkedin_url"
)

// writable lists the enrichment output columns Apply may touch. Anything
// else in an update is a programming error, not data.
var writable = map[string]bool{
	model.FieldConfirmedLinkedIn: true,
	model.FieldJobChanged:        true,
	model.FieldNewCompany:        true,
	model.FieldNewTitle:          true,
	model.FieldLastProcessedDate: true,
	model.FieldNewEmail:          true,
	model.FieldNewPhone:          true,
	model.FieldEnrichmentStatus:  true,
	model.FieldValidationDate:    true,
	model.FieldReadyForOutreach:  true,
}

func checkWritable(updates []model.Update) error {
	for _, u := range updates {
		for field := range u.Fields {
			if !writable[field] {
				return eris.Errorf("rowstore: refusing to write field %q on row %d", field, u.Row)
			}
		}
	}
	return nil
}

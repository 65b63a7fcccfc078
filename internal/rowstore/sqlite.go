package rowstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/jobchange-cli/internal/model"
)

// SQLiteStore keeps the roster in a local SQLite database. Row numbers mirror
// spreadsheet numbering (first contact is 2) so checkpoints transfer between
// backends.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	row_num             INTEGER PRIMARY KEY,
	contact_id          TEXT NOT NULL DEFAULT '',
	first_name          TEXT NOT NULL DEFAULT '',
	last_name           TEXT NOT NULL DEFAULT '',
	email               TEXT NOT NULL DEFAULT '',
	company             TEXT NOT NULL DEFAULT '',
	title               TEXT NOT NULL DEFAULT '',
	phone               TEXT NOT NULL DEFAULT '',
	linkedin_url        TEXT NOT NULL DEFAULT '',
	confirmed_linkedin  TEXT NOT NULL DEFAULT '',
	job_changed         TEXT NOT NULL DEFAULT '',
	new_company         TEXT NOT NULL DEFAULT '',
	new_title           TEXT NOT NULL DEFAULT '',
	last_processed_date TEXT NOT NULL DEFAULT '',
	new_email           TEXT NOT NULL DEFAULT '',
	new_phone           TEXT NOT NULL DEFAULT '',
	enrichment_status   TEXT NOT NULL DEFAULT '',
	validation_date     TEXT NOT NULL DEFAULT '',
	ready_for_outreach  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_contacts_enrichment_status ON contacts(enrichment_status);
`

// OpenSQLite opens the database, configures WAL mode and runs the migration.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteMigration); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]model.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT row_num, contact_id, first_name, last_name, email, company, title,
		       phone, linkedin_url, job_changed, new_company, new_email, new_phone,
		       enrichment_status
		FROM contacts ORDER BY row_num`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load contacts")
	}
	defer rows.Close() //nolint:errcheck

	var contacts []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(
			&c.Row, &c.ContactID, &c.FirstName, &c.LastName, &c.Email, &c.Company,
			&c.Title, &c.Phone, &c.LinkedInURL, &c.JobChanged, &c.NewCompany,
			&c.NewEmail, &c.NewPhone, &c.EnrichmentStatus,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		contacts = append(contacts, c)
	}
	return contacts, eris.Wrap(rows.Err(), "sqlite: iterate contacts")
}

// TotalRows counts data rows plus the notional header row, matching
// spreadsheet numbering.
func (s *SQLiteStore) TotalRows(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count contacts")
	}
	return n + 1, nil
}

// Apply writes all updates in one transaction.
func (s *SQLiteStore) Apply(ctx context.Context, updates []model.Update) error {
	if len(updates) == 0 {
		return nil
	}
	if err := checkWritable(updates); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, update := range updates {
		set, args := updateClause(update, "?")
		args = append(args, update.Row)
		query := fmt.Sprintf(`UPDATE contacts SET %s WHERE row_num = ?`, set)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update row %d", update.Row)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return eris.Errorf("sqlite: row %d not found", update.Row)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// updateClause renders "col = ?, col = ?" deterministically. Field names were
// validated against the writable allowlist, so splicing them is safe.
func updateClause(update model.Update, placeholder string) (string, []any) {
	fields := make([]string, 0, len(update.Fields))
	for f := range update.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for i, f := range fields {
		ph := placeholder
		if placeholder == "$" {
			ph = fmt.Sprintf("$%d", i+1)
		}
		parts = append(parts, fmt.Sprintf("%s = %s", f, ph))
		args = append(args, update.Fields[f])
	}
	return strings.Join(parts, ", "), args
}

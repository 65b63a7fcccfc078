package rowstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/jobchange-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs, narrowed so tests can
// substitute a mock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore keeps the roster in Postgres for teams running the scan
// against a shared database instead of a workbook.
type PostgresStore struct {
	pool Pool
}

const postgresMigration = `
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

// OpenPostgres connects, pings and migrates.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	if _, err := pool.Exec(ctx, postgresMigration); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: migrate")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Load(ctx context.Context) ([]model.Contact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT row_num, contact_id, first_name, last_name, email, company, title,
		       phone, linkedin_url, job_changed, new_company, new_email, new_phone,
		       enrichment_status
		FROM contacts ORDER BY row_num`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load contacts")
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(
			&c.Row, &c.ContactID, &c.FirstName, &c.LastName, &c.Email, &c.Company,
			&c.Title, &c.Phone, &c.LinkedInURL, &c.JobChanged, &c.NewCompany,
			&c.NewEmail, &c.NewPhone, &c.EnrichmentStatus,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		contacts = append(contacts, c)
	}
	return contacts, eris.Wrap(rows.Err(), "postgres: iterate contacts")
}

func (s *PostgresStore) TotalRows(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM contacts`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count contacts")
	}
	return n + 1, nil
}

// Apply writes all updates in one transaction.
func (s *PostgresStore) Apply(ctx context.Context, updates []model.Update) error {
	if len(updates) == 0 {
		return nil
	}
	if err := checkWritable(updates); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, update := range updates {
		set, args := updateClause(update, "$")
		args = append(args, update.Row)
		query := fmt.Sprintf(`UPDATE contacts SET %s WHERE row_num = $%d`, set, len(args))
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return eris.Wrapf(err, "postgres: update row %d", update.Row)
		}
		if tag.RowsAffected() == 0 {
			return eris.Errorf("postgres: row %d not found", update.Row)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

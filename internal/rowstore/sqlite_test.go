package rowstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobchange-cli/internal/model"
)

func openSeededSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()

	store, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "roster.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for _, args := range [][]any{
		{2, "c-1", "Jane", "Doe", "jane@globex.com", "Globex", "https://linkedin.com/in/jane-doe"},
		{3, "c-2", "Sam", "Lee", "sam@initech.com", "Initech", ""},
	} {
		_, err := store.db.ExecContext(ctx, `
			INSERT INTO contacts (row_num, contact_id, first_name, last_name, email, company, linkedin_url)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, args...)
		require.NoError(t, err)
	}
	return store
}

func TestSQLiteLoadAndCount(t *testing.T) {
	store := openSeededSQLite(t)
	ctx := context.Background()

	contacts, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, 2, contacts[0].Row)
	assert.Equal(t, "Jane", contacts[0].FirstName)
	assert.Equal(t, "Initech", contacts[1].Company)

	total, err := store.TotalRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total, "count matches spreadsheet numbering with its header row")
}

func TestSQLiteApply(t *testing.T) {
	store := openSeededSQLite(t)
	ctx := context.Background()

	err := store.Apply(ctx, []model.Update{
		{Row: 2, Fields: map[string]string{
			model.FieldJobChanged:       "Yes",
			model.FieldNewCompany:       "NewCo",
			model.FieldEnrichmentStatus: "Updated",
		}},
		{Row: 3, Fields: map[string]string{
			model.FieldEnrichmentStatus: "Skip - Generic Email Account",
		}},
	})
	require.NoError(t, err)

	contacts, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Yes", contacts[0].JobChanged)
	assert.Equal(t, "NewCo", contacts[0].NewCompany)
	assert.Equal(t, "Updated", contacts[0].EnrichmentStatus)
	assert.Equal(t, "Skip - Generic Email Account", contacts[1].EnrichmentStatus)
}

func TestSQLiteApplyUnknownRowRollsBack(t *testing.T) {
	store := openSeededSQLite(t)
	ctx := context.Background()

	err := store.Apply(ctx, []model.Update{
		{Row: 2, Fields: map[string]string{model.FieldEnrichmentStatus: "Updated"}},
		{Row: 99, Fields: map[string]string{model.FieldEnrichmentStatus: "Updated"}},
	})
	require.Error(t, err)

	contacts, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", contacts[0].EnrichmentStatus, "failed batch must not partially apply")
}

func TestSQLiteApplyRejectsSourceColumns(t *testing.T) {
	store := openSeededSQLite(t)

	err := store.Apply(context.Background(), []model.Update{
		{Row: 2, Fields: map[string]string{"first_name": "Mallory"}},
	})
	require.Error(t, err)
}

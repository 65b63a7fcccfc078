package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/jobchange-cli/internal/model"
)

// Spool writes updates that could not be persisted to disk so the enrichment
// spend behind them survives the failure. Artifacts are plain JSON, replayable
// by hand or by a future run.
type Spool struct {
	dir string
}

// NewSpool creates a spool rooted at dir. The directory is created lazily on
// first save.
func NewSpool(dir string) *Spool {
	return &Spool{dir: dir}
}

type spoolArtifact struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	FirstRow  int            `json:"first_row"`
	LastRow   int            `json:"last_row"`
	Cause     string         `json:"cause"`
	Updates   []model.Update `json:"updates"`
}

// Save writes one artifact and returns its path.
func (s *Spool) Save(updates []model.Update, cause error) (string, error) {
	if len(updates) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", eris.Wrap(err, "spool: create directory")
	}

	art := spoolArtifact{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		FirstRow:  updates[0].Row,
		LastRow:   updates[0].Row,
		Updates:   updates,
	}
	if cause != nil {
		art.Cause = cause.Error()
	}
	for _, u := range updates {
		if u.Row < art.FirstRow {
			art.FirstRow = u.Row
		}
		if u.Row > art.LastRow {
			art.LastRow = u.Row
		}
	}

	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "spool: encode artifact")
	}

	path := filepath.Join(s.dir, art.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", eris.Wrap(err, "spool: write artifact")
	}
	return path, nil
}

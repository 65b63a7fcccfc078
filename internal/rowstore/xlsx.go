package rowstore

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/jobchange-cli/internal/model"
)

// XLSXStore reads and writes the roster workbook in place. The header row
// maps column titles to fields, so column order in the workbook is free.
type XLSXStore struct {
	path string

	mu      sync.Mutex
	file    *xlsx.File
	sheet   *xlsx.Sheet
	columns map[string]int // normalized header -> cell index
}

// OpenXLSX opens the workbook. Sheet selection falls back to the first sheet.
func OpenXLSX(path, sheetName string) (*XLSXStore, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found in %s", sheetName, path)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.Errorf("xlsx: %s has no sheets", path)
		}
		sheet = f.Sheets[0]
	}
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("xlsx: sheet %q has no header row", sheet.Name)
	}

	columns := make(map[string]int)
	for i, cell := range sheet.Rows[0].Cells {
		if name := normalizeHeader(cell.String()); name != "" {
			columns[name] = i
		}
	}

	return &XLSXStore{path: path, file: f, sheet: sheet, columns: columns}, nil
}

// normalizeHeader folds "LinkedIn URL" and "linkedin_url" onto one key.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	return h
}

func (s *XLSXStore) cell(row *xlsx.Row, column string) string {
	idx, ok := s.columns[column]
	if !ok || idx >= len(row.Cells) {
		return ""
	}
	return strings.TrimSpace(row.Cells[idx].String())
}

// Load reads every data row. Spreadsheet numbering: the header is row 1, the
// first contact is row 2.
func (s *XLSXStore) Load(_ context.Context) ([]model.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contacts := make([]model.Contact, 0, len(s.sheet.Rows)-1)
	for i, row := range s.sheet.Rows {
		if i == 0 {
			continue
		}
		contacts = append(contacts, model.Contact{
			Row:              i + 1,
			ContactID:        s.cell(row, colContactID),
			FirstName:        s.cell(row, colFirstName),
			LastName:         s.cell(row, colLastName),
			Email:            s.cell(row, colEmail),
			Company:          s.cell(row, colCompany),
			Title:            s.cell(row, colTitle),
			Phone:            s.cell(row, colPhone),
			LinkedInURL:      s.cell(row, colLinkedIn),
			JobChanged:       s.cell(row, model.FieldJobChanged),
			NewCompany:       s.cell(row, model.FieldNewCompany),
			NewEmail:         s.cell(row, model.FieldNewEmail),
			NewPhone:         s.cell(row, model.FieldNewPhone),
			EnrichmentStatus: s.cell(row, model.FieldEnrichmentStatus),
		})
	}
	return contacts, nil
}

// TotalRows counts all rows including the header.
func (s *XLSXStore) TotalRows(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sheet.Rows), nil
}

// Apply writes the updates into their cells and saves the workbook once.
// Output columns missing from the header are appended to it on first use.
func (s *XLSXStore) Apply(_ context.Context, updates []model.Update) error {
	if len(updates) == 0 {
		return nil
	}
	if err := checkWritable(updates); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, update := range updates {
		idx := update.Row - 1
		if idx <= 0 || idx >= len(s.sheet.Rows) {
			return eris.Errorf("xlsx: row %d out of range", update.Row)
		}
		row := s.sheet.Rows[idx]
		for field, value := range update.Fields {
			col, err := s.ensureColumn(field)
			if err != nil {
				return err
			}
			for len(row.Cells) <= col {
				row.AddCell()
			}
			row.Cells[col].Value = value
		}
	}

	if err := s.file.Save(s.path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", s.path)
	}
	return nil
}

func (s *XLSXStore) ensureColumn(field string) (int, error) {
	if idx, ok := s.columns[field]; ok {
		return idx, nil
	}

	header := s.sheet.Rows[0]
	idx := len(header.Cells)
	header.AddCell().Value = field
	s.columns[field] = idx
	return idx, nil
}

func (s *XLSXStore) Close() error { return nil }

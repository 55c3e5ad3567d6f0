package excel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ImportConfig defines the import configuration
type ImportConfig struct {
	SheetName  string // Sheet holding sessions in xlsx files
	TimeLayout string // Layout of the Start and End columns
	StartRow   int    // The row to start importing from (1-based index)
	MaxErrors  int    // Row errors kept in the result
}

// DefaultImportConfig reads the Sessions sheet written by Export
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		SheetName:  DefaultExportConfig().SessionsSheet,
		TimeLayout: "2006-01-02 15:04",
		StartRow:   2, // By default, start from the second row (skip header)
		MaxErrors:  20,
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Skipped        int
	Errors         []string
}

// SessionRecorder stores closed sessions, skipping ones already present
type SessionRecorder interface {
	Record(ctx context.Context, ownerID int64, start, end time.Time, topic string) (bool, error)
}

// Importer loads closed sessions from xlsx or CSV files with the columns
// Start, End, Minutes, Topic. Open sessions are skipped.
type Importer struct {
	store  SessionRecorder
	config ImportConfig
}

func NewImporter(store SessionRecorder, config ImportConfig) *Importer {
	return &Importer{store: store, config: config}
}

// Import reads r as CSV when name ends in .csv and as xlsx otherwise.
// Times are read in loc. Row problems are collected, store failures abort.
func (i *Importer) Import(ctx context.Context, ownerID int64, name string, r io.Reader, loc *time.Location) (*ImportResult, error) {
	var (
		rows [][]string
		err  error
	)
	if strings.ToLower(filepath.Ext(name)) == ".csv" {
		rows, err = readCSV(r)
	} else {
		rows, err = i.readExcel(r)
	}
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for n, row := range rows {
		// Skip header rows
		if n < i.config.StartRow-1 || emptyRow(row) {
			continue
		}
		result.TotalProcessed++

		created, err := i.processRow(ctx, ownerID, row, loc)
		var rowErr *rowError
		switch {
		case errors.As(err, &rowErr):
			result.Skipped++
			if len(result.Errors) < i.config.MaxErrors {
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", n+1, rowErr.msg))
			}
		case err != nil:
			return result, err
		case created:
			result.Created++
		default:
			result.Skipped++
		}
	}
	return result, nil
}

type rowError struct{ msg string }

func (e *rowError) Error() string { return e.msg }

func (i *Importer) processRow(ctx context.Context, ownerID int64, row []string, loc *time.Location) (bool, error) {
	if len(row) < 2 {
		return false, &rowError{"missing start or end"}
	}
	rawEnd := strings.TrimSpace(row[1])
	if rawEnd == "" || strings.EqualFold(rawEnd, "open") {
		return false, nil
	}
	start, err := time.ParseInLocation(i.config.TimeLayout, strings.TrimSpace(row[0]), loc)
	if err != nil {
		return false, &rowError{fmt.Sprintf("invalid start %q", row[0])}
	}
	end, err := time.ParseInLocation(i.config.TimeLayout, rawEnd, loc)
	if err != nil {
		return false, &rowError{fmt.Sprintf("invalid end %q", row[1])}
	}
	if end.Before(start) {
		return false, &rowError{"end is before start"}
	}
	var topic string
	if len(row) > 3 {
		topic = strings.TrimSpace(row[3])
	}
	return i.store.Record(ctx, ownerID, start.UTC(), end.UTC(), topic)
}

func (i *Importer) readExcel(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(i.config.SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

func emptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

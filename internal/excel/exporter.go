package excel

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/ledger"
	"github.com/example/studybot/pkg/models"
)

// ExportConfig defines the export configuration
type ExportConfig struct {
	WeekSheet     string // Name of the per-day summary sheet
	SessionsSheet string // Name of the session log sheet
	SessionDays   int    // How many days of sessions to include
}

// DefaultExportConfig returns the default export configuration
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		WeekSheet:     "Week",
		SessionsSheet: "Sessions",
		SessionDays:   30,
	}
}

// Weekly supplies the per-day summary
type Weekly interface {
	WeeklySummary(ctx context.Context, ownerID int64, today clock.Day) (ledger.Weekly, error)
}

// Sessions lists sessions overlapping a range
type Sessions interface {
	Overlapping(ctx context.Context, ownerID int64, from, to time.Time) ([]models.StudySession, error)
}

// Exporter writes an owner's study log to an xlsx workbook
type Exporter struct {
	weekly   Weekly
	sessions Sessions
	config   ExportConfig
}

func NewExporter(weekly Weekly, sessions Sessions, config ExportConfig) *Exporter {
	return &Exporter{weekly: weekly, sessions: sessions, config: config}
}

// FileName is the attachment name for an export made on day
func FileName(day clock.Day) string {
	return fmt.Sprintf("study-log-%s.xlsx", day)
}

// Export builds the workbook for the week ending at today plus the sessions
// of the last SessionDays days. now measures open sessions.
func (e *Exporter) Export(ctx context.Context, ownerID int64, today clock.Day, now time.Time) (*bytes.Buffer, error) {
	week, err := e.weekly.WeeklySummary(ctx, ownerID, today)
	if err != nil {
		return nil, err
	}
	from := today.AddDays(-(e.config.SessionDays - 1))
	sessions, err := e.sessions.Overlapping(ctx, ownerID, from.Start(), today.End())
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create style: %w", err)
	}

	f.SetSheetName("Sheet1", e.config.WeekSheet)
	rows := [][]any{{"Day", "Weekday", "Minutes"}}
	for _, d := range week.Days {
		rows = append(rows, []any{d.Day.String(), d.Day.Weekday().String(), d.Minutes})
	}
	rows = append(rows, []any{}, []any{"Total", "", week.Total}, []any{fmt.Sprintf("Days with %d+ min", ledger.QualifyingMinutes), "", week.QualifyingDays})
	if err := writeRows(f, e.config.WeekSheet, rows, bold); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(e.config.SessionsSheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	loc := today.Location()
	rows = [][]any{{"Start", "End", "Minutes", "Topic"}}
	for _, s := range sessions {
		end := "open"
		if s.EndedAt != nil {
			end = s.EndedAt.In(loc).Format("2006-01-02 15:04")
		}
		minutes := int(s.EndOr(now).Sub(s.StartedAt) / time.Minute)
		if minutes < 0 {
			minutes = 0
		}
		rows = append(rows, []any{s.StartedAt.In(loc).Format("2006-01-02 15:04"), end, minutes, s.Topic})
	}
	if err := writeRows(f, e.config.SessionsSheet, rows, bold); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf, nil
}

// writeRows writes rows starting at A1 and makes the first row bold
func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to set %s!%s: %w", sheet, cell, err)
			}
		}
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
	}
	return f.SetColWidth(sheet, "A", "D", 18)
}

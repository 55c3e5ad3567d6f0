package excel

import (
	"context"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/database"
	"github.com/example/studybot/internal/ledger"
)

func TestExport(t *testing.T) {
	ctx := context.Background()
	db, err := database.Connect(ctx, database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()

	loc, _ := time.LoadLocation("Europe/Helsinki")
	today := clock.NewDay(2025, 1, 10, loc)
	clk := clock.NewManual(today.At(12, 0))
	sessions := database.NewSessionRepository(db)
	l := ledger.New(sessions, clk, zaptest.NewLogger(t).Sugar())

	if _, err := l.Start(ctx, 1, today.At(8, 0), "thesis"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := l.Stop(ctx, 1, today.At(8, 25)); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := l.Start(ctx, 1, today.At(11, 0), ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	buf, err := NewExporter(l, sessions, DefaultExportConfig()).Export(ctx, 1, today, clk.Now())
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenReader(buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	week, err := f.GetRows("Week")
	if err != nil {
		t.Fatalf("week rows: %v", err)
	}
	if len(week) < 8 || week[7][0] != "2025-01-10" || week[7][2] != "85" {
		t.Fatalf("unexpected week sheet %v", week)
	}

	rows, err := f.GetRows("Sessions")
	if err != nil {
		t.Fatalf("session rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and two sessions, got %v", rows)
	}
	if rows[1][0] != "2025-01-10 08:00" || rows[1][2] != "25" || rows[1][3] != "thesis" {
		t.Fatalf("unexpected first session %v", rows[1])
	}
	if rows[2][1] != "open" || rows[2][2] != "60" {
		t.Fatalf("unexpected open session %v", rows[2])
	}
	if FileName(today) != "study-log-2025-01-10.xlsx" {
		t.Fatalf("unexpected file name %s", FileName(today))
	}
}

package excel

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/example/studybot/internal/clock"
	"github.com/example/studybot/internal/database"
	"github.com/example/studybot/internal/ledger"
)

func TestImportExportedWorkbook(t *testing.T) {
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
	data := buf.Bytes()

	imp := NewImporter(sessions, DefaultImportConfig())
	res, err := imp.Import(ctx, 2, "study-log.xlsx", strings.NewReader(string(data)), loc)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.TotalProcessed != 2 || res.Created != 1 || res.Skipped != 1 || len(res.Errors) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	minutes, err := l.MinutesForDay(ctx, 2, today, clk.Now())
	if err != nil {
		t.Fatalf("minutes: %v", err)
	}
	if minutes != 25 {
		t.Fatalf("expected 25 imported minutes, got %d", minutes)
	}

	res, err = imp.Import(ctx, 2, "study-log.xlsx", strings.NewReader(string(data)), loc)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if res.Created != 0 || res.Skipped != 2 {
		t.Fatalf("second import should change nothing, got %+v", res)
	}
}

func TestImportCSVCollectsRowErrors(t *testing.T) {
	ctx := context.Background()
	db, err := database.Connect(ctx, database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()

	csv := "Start,End,Minutes,Topic\n" +
		"2025-01-10 08:00,2025-01-10 08:30,30,reading\n" +
		"yesterday,2025-01-10 09:00,,\n" +
		"2025-01-10 10:00,2025-01-10 09:00,,\n" +
		",,,\n" +
		"2025-01-10 11:00\n"

	imp := NewImporter(database.NewSessionRepository(db), DefaultImportConfig())
	res, err := imp.Import(ctx, 1, "log.CSV", strings.NewReader(csv), time.UTC)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.TotalProcessed != 4 || res.Created != 1 || res.Skipped != 3 || len(res.Errors) != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.HasPrefix(res.Errors[0], "Row 3:") {
		t.Fatalf("row numbers should be 1-based, got %q", res.Errors[0])
	}
}

func TestImportRejectsGarbage(t *testing.T) {
	imp := NewImporter(nil, DefaultImportConfig())
	if _, err := imp.Import(context.Background(), 1, "x.xlsx", strings.NewReader("not a zip"), time.UTC); err == nil {
		t.Fatal("expected an error for a broken workbook")
	}
}

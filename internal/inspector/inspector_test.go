package inspector

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestInspectCSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "atc.csv", "codigoatc,descatc\nA,ALIMENTARY\nA01,STOMATOLOGICAL\n")
	writeFile(t, dir, "dcp.csv", "codigodcp,nombredcp,codigodcsa\n1,X,2\n")
	writeFile(t, dir, "notes.txt", "ignored")

	conn, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	summaries, err := InspectCSV(context.Background(), conn, dir, logger)
	if err != nil {
		t.Fatalf("InspectCSV: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}

	atc := summaries[0]
	if atc.Name != "atc.csv" || atc.RowCount != 2 || len(atc.Columns) != 2 {
		t.Errorf("atc summary = %+v", atc)
	}
	if atc.Columns[0].Name != "codigoatc" || atc.Columns[0].Type != "VARCHAR" {
		t.Errorf("atc first column = %+v", atc.Columns[0])
	}
	if summaries[1].RowCount != 1 || len(summaries[1].Columns) != 3 {
		t.Errorf("dcp summary = %+v", summaries[1])
	}

	var buf bytes.Buffer
	Print(&buf, summaries, true)
	for _, want := range []string{"atc.csv", "codigoatc, descatc", "dcp.csv"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestInspectCSV_EmptyDir(t *testing.T) {
	conn, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	summaries, err := InspectCSV(context.Background(), conn, t.TempDir(), logger)
	if err != nil || len(summaries) != 0 {
		t.Errorf("InspectCSV on empty dir = %v, %v", summaries, err)
	}
}

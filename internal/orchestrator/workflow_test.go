package orchestrator

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/brensch/nomenclator/internal/config"
	"github.com/brensch/nomenclator/internal/db"
	"github.com/brensch/nomenclator/internal/downloader"
)

func dumpZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func workflowSetup(t *testing.T, handler http.HandlerFunc) (config.Config, *sql.DB) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	conn, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.InitializeSchema(conn); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.DumpURL = srv.URL + "/prescripcion.zip"
	cfg.WorkDir = filepath.Join(t.TempDir(), "xml")
	cfg.OutputDir = filepath.Join(t.TempDir(), "csv")
	cfg.Concurrency = 2
	return cfg, conn
}

func eventCount(t *testing.T, conn *sql.DB, stage, event string) int {
	t.Helper()
	events, err := db.QueryEvents(context.Background(), conn, db.EventFilter{Stage: stage, Event: event})
	if err != nil {
		t.Fatal(err)
	}
	return len(events)
}

func TestRunWorkflow_RecordsEvents(t *testing.T) {
	body := dumpZip(t, map[string]string{
		"DICCIONARIO_ATC.xml": `<aemps_prescripcion_atc><atc><nroatc>1</nroatc><codigoatc>A</codigoatc><descatc>A - ALIMENTARY</descatc></atc></aemps_prescripcion_atc>`,
	})
	cfg, conn := workflowSetup(t, func(w http.ResponseWriter, r *http.Request) { w.Write(body) })

	report, err := RunWorkflow(context.Background(), cfg, conn, http.DefaultClient, discardLogger(), WorkflowOptions{})
	if err != nil {
		t.Fatalf("RunWorkflow: %v", err)
	}
	if s, f, k := report.Counts(); s != 1 || f != 0 || k != 12 {
		t.Errorf("Counts() = %d/%d/%d, want 1/0/12", s, f, k)
	}

	checks := []struct {
		stage, event string
		want         int
	}{
		{db.StageRun, db.EventRunStart, 1},
		{db.StageRun, db.EventRunEnd, 1},
		{db.StageFetch, db.EventFetchEnd, 1},
		{db.StageCatalog, db.EventParseStart, 1},
		{db.StageCatalog, db.EventParseEnd, 1},
		{db.StageCatalog, db.EventSkip, 12},
		{db.StagePrescription, db.EventSkip, 1},
	}
	for _, c := range checks {
		if got := eventCount(t, conn, c.stage, c.event); got != c.want {
			t.Errorf("%s/%s events = %d, want %d", c.stage, c.event, got, c.want)
		}
	}

	last, found, err := db.LastRun(context.Background(), conn)
	if err != nil || !found || last.Failed() {
		t.Errorf("LastRun = %+v, %v, %v", last, found, err)
	}
}

func TestRunWorkflow_FetchFailure(t *testing.T) {
	cfg, conn := workflowSetup(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})

	report, err := RunWorkflow(context.Background(), cfg, conn, http.DefaultClient, discardLogger(), WorkflowOptions{})
	if !errors.Is(err, downloader.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if report != nil {
		t.Errorf("report = %+v, want nil", report)
	}
	if got := eventCount(t, conn, db.StageFetch, db.EventError); got != 1 {
		t.Errorf("fetch error events = %d, want 1", got)
	}
	last, found, _ := db.LastRun(context.Background(), conn)
	if !found || !last.Failed() {
		t.Errorf("LastRun = %+v, want failed run", last)
	}
}

func TestRunWorkflow_SkipFetchWithoutDatabase(t *testing.T) {
	cfg, _ := workflowSetup(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("dump requested with SkipFetch")
	})

	report, err := RunWorkflow(context.Background(), cfg, nil, http.DefaultClient, discardLogger(), WorkflowOptions{SkipFetch: true})
	if err != nil {
		t.Fatalf("RunWorkflow: %v", err)
	}
	if _, _, k := report.Counts(); k != 13 || report.Prescription.Status != Skipped {
		t.Errorf("report = %+v", report)
	}
}

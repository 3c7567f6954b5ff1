package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brensch/nomenclator/internal/config"
	"github.com/brensch/nomenclator/internal/nomenclator"
)

type fakeParser struct {
	name  string
	parse func(xmlPath, csvPath string) error
}

func (f fakeParser) Name() string       { return f.name }
func (f fakeParser) SourceFile() string { return f.name + ".xml" }
func (f fakeParser) TargetFile() string { return f.name + ".csv" }
func (f fakeParser) Parse(xmlPath, csvPath string) error {
	if f.parse != nil {
		return f.parse(xmlPath, csvPath)
	}
	return os.WriteFile(csvPath, []byte("code\n"), 0o644)
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished map[string]JobStatus
}

func (r *recordingObserver) JobStarted(name, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, name)
}

func (r *recordingObserver) JobFinished(res JobResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = map[string]JobStatus{}
	}
	r.finished[res.Name] = res.Status
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("<x/>"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func newTestOrchestrator(parsers ...nomenclator.Parser) *Orchestrator {
	return &Orchestrator{
		Parsers:     parsers,
		Concurrency: 4,
		Decompose: func(xmlPath, outDir string) (nomenclator.DecomposeStats, error) {
			return nomenclator.DecomposeStats{}, nil
		},
		Logger: discardLogger(),
	}
}

func statusOf(r *Report, name string) JobStatus {
	for _, j := range r.Jobs {
		if j.Name == name {
			return j.Status
		}
	}
	return Pending
}

func TestRun_MissingSourceIsSkipped(t *testing.T) {
	work, out := t.TempDir(), t.TempDir()
	touch(t, work, "a.xml", "c.xml")
	o := newTestOrchestrator(fakeParser{name: "a"}, fakeParser{name: "b"}, fakeParser{name: "c"})

	report, err := o.Run(context.Background(), work, out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := statusOf(report, "b"); got != Skipped {
		t.Errorf("b = %s, want skipped", got)
	}
	for _, name := range []string{"a", "c"} {
		if got := statusOf(report, name); got != Succeeded {
			t.Errorf("%s = %s, want succeeded", name, got)
		}
		if _, err := os.Stat(filepath.Join(out, name+".csv")); err != nil {
			t.Errorf("%s.csv missing: %v", name, err)
		}
	}
	if report.Prescription.Status != Skipped {
		t.Errorf("prescription = %s, want skipped", report.Prescription.Status)
	}
	if err := report.Err(); err != nil {
		t.Errorf("Err() = %v, want nil when only skips", err)
	}
	if s, f, k := report.Counts(); s != 2 || f != 0 || k != 1 {
		t.Errorf("Counts() = %d/%d/%d, want 2/0/1", s, f, k)
	}
}

func TestRun_FailureDoesNotStopOthers(t *testing.T) {
	work, out := t.TempDir(), t.TempDir()
	touch(t, work, "a.xml", "b.xml", "c.xml", nomenclator.PrescriptionXMLFile)
	errBroken := errors.New("broken dictionary")
	o := newTestOrchestrator(
		fakeParser{name: "a"},
		fakeParser{name: "b", parse: func(string, string) error { return errBroken }},
		fakeParser{name: "c"},
	)

	report, err := o.Run(context.Background(), work, out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if statusOf(report, "a") != Succeeded || statusOf(report, "c") != Succeeded {
		t.Errorf("siblings of a failed job did not succeed: %+v", report.Jobs)
	}
	if statusOf(report, "b") != Failed {
		t.Errorf("b = %s, want failed", statusOf(report, "b"))
	}
	if report.Prescription.Status != Succeeded {
		t.Errorf("prescription = %s, want succeeded", report.Prescription.Status)
	}
	err = report.Err()
	if !errors.Is(err, errBroken) {
		t.Fatalf("Err() = %v, want it to wrap the job error", err)
	}
	if !strings.Contains(err.Error(), "b:") {
		t.Errorf("Err() = %q, want the catalog name", err)
	}
}

func TestRun_PanicIsFailure(t *testing.T) {
	work, out := t.TempDir(), t.TempDir()
	touch(t, work, "a.xml", "b.xml")
	o := newTestOrchestrator(
		fakeParser{name: "a", parse: func(string, string) error { panic("nil map") }},
		fakeParser{name: "b"},
	)

	report, err := o.Run(context.Background(), work, out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if statusOf(report, "a") != Failed || statusOf(report, "b") != Succeeded {
		t.Errorf("jobs = %+v", report.Jobs)
	}
	if err := report.Err(); err == nil || !strings.Contains(err.Error(), "panic: nil map") {
		t.Errorf("Err() = %v, want panic message", err)
	}
}

func TestRun_ConcurrencyBound(t *testing.T) {
	const jobs, limit = 10, 3
	work, out := t.TempDir(), t.TempDir()

	var running, peak atomic.Int32
	parsers := make([]nomenclator.Parser, jobs)
	for i := range parsers {
		name := fmt.Sprintf("job%02d", i)
		touch(t, work, name+".xml")
		parsers[i] = fakeParser{name: name, parse: func(string, string) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return nil
		}}
	}
	o := newTestOrchestrator(parsers...)
	o.Concurrency = limit

	report, err := o.Run(context.Background(), work, out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := peak.Load(); got > limit {
		t.Errorf("peak concurrency = %d, want <= %d", got, limit)
	}
	if got := peak.Load(); got < 2 {
		t.Errorf("peak concurrency = %d, jobs never overlapped", got)
	}
	if s, _, _ := report.Counts(); s != jobs {
		t.Errorf("succeeded = %d, want %d", s, jobs)
	}
}

func TestRun_PrescriptionRunsAfterCatalogs(t *testing.T) {
	work, out := t.TempDir(), t.TempDir()
	touch(t, work, "a.xml", "b.xml", nomenclator.PrescriptionXMLFile)

	var done atomic.Int32
	slow := func(string, string) error {
		time.Sleep(10 * time.Millisecond)
		done.Add(1)
		return nil
	}
	o := newTestOrchestrator(fakeParser{name: "a", parse: slow}, fakeParser{name: "b", parse: slow})
	var doneAtDecompose int32 = -1
	o.Decompose = func(xmlPath, outDir string) (nomenclator.DecomposeStats, error) {
		doneAtDecompose = done.Load()
		return nomenclator.DecomposeStats{ListDate: "2024-05-01"}, nil
	}

	report, err := o.Run(context.Background(), work, out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if doneAtDecompose != 2 {
		t.Errorf("prescription step saw %d finished catalogs, want 2", doneAtDecompose)
	}
	if report.Prescription.Stats.ListDate != "2024-05-01" {
		t.Errorf("stats not carried into report: %+v", report.Prescription.Stats)
	}
}

func TestRun_PrescriptionFailureFailsRun(t *testing.T) {
	work, out := t.TempDir(), t.TempDir()
	touch(t, work, "a.xml", nomenclator.PrescriptionXMLFile)
	o := newTestOrchestrator(fakeParser{name: "a"})
	o.Decompose = func(string, string) (nomenclator.DecomposeStats, error) {
		return nomenclator.DecomposeStats{}, &nomenclator.SchemaError{Catalog: "Prescription", Err: errors.New("bad")}
	}

	report, err := o.Run(context.Background(), work, out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if statusOf(report, "a") != Succeeded {
		t.Errorf("a = %s", statusOf(report, "a"))
	}
	if report.Prescription.Status != Failed {
		t.Errorf("prescription = %s, want failed", report.Prescription.Status)
	}
	if !errors.Is(report.Err(), nomenclator.ErrSchema) {
		t.Errorf("Err() = %v, want ErrSchema", report.Err())
	}
}

func TestRun_CancelledBeforeAdmission(t *testing.T) {
	work, out := t.TempDir(), t.TempDir()
	touch(t, work, "a.xml", "b.xml", nomenclator.PrescriptionXMLFile)
	var calls atomic.Int32
	count := func(string, string) error { calls.Add(1); return nil }
	o := newTestOrchestrator(fakeParser{name: "a", parse: count}, fakeParser{name: "b", parse: count})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := o.Run(ctx, work, out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("%d jobs ran after cancellation", calls.Load())
	}
	if !errors.Is(report.Err(), context.Canceled) {
		t.Errorf("Err() = %v, want context.Canceled", report.Err())
	}
	if report.Prescription.Status != Failed {
		t.Errorf("prescription = %s, want failed", report.Prescription.Status)
	}
}

func TestRun_ObserverSeesEveryJob(t *testing.T) {
	work, out := t.TempDir(), t.TempDir()
	touch(t, work, "a.xml", nomenclator.PrescriptionXMLFile)
	obs := &recordingObserver{}
	o := newTestOrchestrator(fakeParser{name: "a"}, fakeParser{name: "b"})
	o.Observer = obs

	if _, err := o.Run(context.Background(), work, out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(obs.started) != 2 {
		t.Errorf("started = %v, want a and Prescription", obs.started)
	}
	want := map[string]JobStatus{"a": Succeeded, "b": Skipped, PrescriptionJobName: Succeeded}
	for name, status := range want {
		if obs.finished[name] != status {
			t.Errorf("finished[%s] = %s, want %s", name, obs.finished[name], status)
		}
	}
}

func TestRun_RealCatalogsEndToEnd(t *testing.T) {
	work, out := t.TempDir(), filepath.Join(t.TempDir(), "csv")
	os.WriteFile(filepath.Join(work, "DICCIONARIO_ATC.xml"), []byte(`<aemps_prescripcion_atc>
<atc><nroatc>1</nroatc><codigoatc>A</codigoatc><descatc>A - ALIMENTARY</descatc></atc>
</aemps_prescripcion_atc>`), 0o644)
	os.WriteFile(filepath.Join(work, "DICCIONARIO_DCSA.xml"), []byte(`<wrong_root/>`), 0o644)
	var flags strings.Builder
	for _, name := range []string{
		"sw_psicotropo", "sw_estupefaciente", "sw_afecta_conduccion", "sw_triangulo_negro",
		"sw_receta", "sw_generico", "sw_sustituible", "sw_envase_clinico",
		"sw_uso_hospitalario", "sw_diagnostico_hospitalario", "sw_tld", "sw_especial_control_medico",
		"sw_huerfano", "sw_base_a_plantas", "sw_comercializado", "sw_tiene_excipientes_decl_obligatoria",
		"biosimilar", "importacion_paralela", "radiofarmaco", "serializacion",
	} {
		fmt.Fprintf(&flags, "<%s>1</%s>", name, name)
	}
	os.WriteFile(filepath.Join(work, nomenclator.PrescriptionXMLFile), []byte(`<aemps_prescripcion>
<prescription><cod_nacion>600000</cod_nacion><nro_definitivo>1</nro_definitivo>
<des_nomco>ASPIRINA</des_nomco><des_prese>ASPIRINA 500 MG 20 comprimidos</des_prese>`+flags.String()+`</prescription>
</aemps_prescripcion>`), 0o644)

	cfg := config.Default()
	cfg.Concurrency = 2
	report, err := New(cfg, discardLogger()).Run(context.Background(), work, out)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	s, f, k := report.Counts()
	if s != 1 || f != 1 || k != 11 {
		t.Errorf("Counts() = %d/%d/%d, want 1/1/11", s, f, k)
	}
	if statusOf(report, "DCSA") != Failed || !errors.Is(report.Err(), nomenclator.ErrSchema) {
		t.Errorf("DCSA = %s, Err() = %v", statusOf(report, "DCSA"), report.Err())
	}
	if report.Prescription.Status != Succeeded || report.Prescription.Stats.Rows[nomenclator.PrescriptionsCSV] != 1 {
		t.Errorf("prescription = %+v", report.Prescription)
	}
	for _, name := range append([]string{"atc.csv"}, nomenclator.PrescriptionTables...) {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}

	rendered := report.Render()
	for _, want := range []string{"ATC", "DCSA", "Prescription", "1 succeeded, 1 failed, 11 skipped"} {
		if !strings.Contains(rendered, want) {
			t.Errorf("Render() missing %q:\n%s", want, rendered)
		}
	}
}

func TestJobStatus_String(t *testing.T) {
	for s, want := range map[JobStatus]string{Pending: "pending", Running: "running", Skipped: "skipped", Succeeded: "succeeded", Failed: "failed"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
	if Running.Final() || !Failed.Final() {
		t.Error("Final() wrong")
	}
}

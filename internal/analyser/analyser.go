// Package analyser checks that the codes used by the prescription tables
// resolve against the catalog CSVs.
package analyser

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/brensch/nomenclator/internal/nomenclator"
	"github.com/brensch/nomenclator/internal/util"

	_ "github.com/marcboeker/go-duckdb"
)

// Reference is a code column that should match a catalog's code column.
type Reference struct {
	Name         string
	ChildFile    string
	ChildColumn  string
	ParentFile   string
	ParentColumn string
}

// References are the checks Analyse runs by default.
var References = []Reference{
	{"prescription DCSA", nomenclator.PrescriptionsCSV, "cod_dcsa", nomenclator.DcsaCatalog.CSVFile, "code"},
	{"prescription DCP", nomenclator.PrescriptionsCSV, "cod_dcp", nomenclator.DcpCatalog.CSVFile, "code"},
	{"prescription DCPF", nomenclator.PrescriptionsCSV, "cod_dcpf", nomenclator.DcpfCatalog.CSVFile, "code"},
	{"prescription container", nomenclator.PrescriptionsCSV, "cod_envase", nomenclator.ContainerCatalog.CSVFile, "code"},
	{"prescription content unit", nomenclator.PrescriptionsCSV, "unid_contenido", nomenclator.ContainerUnitCatalog.CSVFile, "code"},
	{"prescription holder laboratory", nomenclator.PrescriptionsCSV, "laboratorio_titular", nomenclator.LaboratoryCatalog.CSVFile, "code"},
	{"prescription registration status", nomenclator.PrescriptionsCSV, "cod_sitreg", nomenclator.RegistrationStatusCatalog.CSVFile, "code"},
	{"pharmaceutical form", nomenclator.PrescriptionFormsCSV, "form_code", nomenclator.PharmaceuticalFormCatalog.CSVFile, "code"},
	{"simplified pharmaceutical form", nomenclator.PrescriptionFormsCSV, "simplified_form_code", nomenclator.SimplifiedPharmaceuticalFormCatalog.CSVFile, "code"},
	{"active ingredient", nomenclator.PrescriptionActiveIngredientsCSV, "active_ingredient_code", nomenclator.ActiveIngredientCatalog.CSVFile, "code"},
	{"administration route", nomenclator.PrescriptionAdminRoutesCSV, "route_code", nomenclator.AdministrationRouteCatalog.CSVFile, "code"},
	{"ATC code", nomenclator.PrescriptionAtcCSV, "atc_code", nomenclator.AtcCatalog.CSVFile, "code"},
}

// Result is the outcome of one Reference check.
type Result struct {
	Reference Reference
	// Skipped is set when one of the two files does not exist.
	Skipped bool
	Rows    int64
	Orphans int64
	// Samples holds up to five unresolved codes.
	Samples []string
	Err     error
}

// Analyse runs every reference check over the CSVs in dir. Checks whose
// files are missing are skipped; failed queries are joined in the error.
func Analyse(ctx context.Context, db *sql.DB, dir string, refs []Reference, logger *slog.Logger) ([]Result, error) {
	logger.Info("--- Starting Reference Analysis ---", slog.String("dir", dir))

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection from pool: %w", err)
	}
	defer conn.Close()

	results := make([]Result, 0, len(refs))
	var errs error
	for _, ref := range refs {
		l := logger.With(slog.String("check", ref.Name))
		res := Result{Reference: ref}
		child := filepath.Join(dir, ref.ChildFile)
		parent := filepath.Join(dir, ref.ParentFile)
		if !exists(child) || !exists(parent) {
			res.Skipped = true
			l.Debug("Input file missing, skipping check.")
			results = append(results, res)
			continue
		}

		res.Rows, res.Orphans, res.Samples, res.Err = check(ctx, conn, child, ref.ChildColumn, parent, ref.ParentColumn)
		if res.Err != nil {
			res.Err = fmt.Errorf("%s: %w", ref.Name, res.Err)
			l.Error("Reference check failed.", "error", res.Err)
			errs = errors.Join(errs, res.Err)
		} else if res.Orphans > 0 {
			l.Warn("Unresolved codes found.", slog.Int64("orphans", res.Orphans), slog.Int64("rows", res.Rows))
		}
		results = append(results, res)
	}

	logger.Info("--- Reference Analysis Finished ---", slog.Int("checks", len(results)))
	return results, errs
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func check(ctx context.Context, conn *sql.Conn, child, childCol, parent, parentCol string) (rows, orphans int64, samples []string, err error) {
	cc, pc := util.QuoteIdentifier(childCol), util.QuoteIdentifier(parentCol)
	base := fmt.Sprintf(`
        FROM read_csv(%s, header=true, all_varchar=true) c
        LEFT JOIN (SELECT DISTINCT %s AS code FROM read_csv(%s, header=true, all_varchar=true)) p
            ON c.%s = p.code
        WHERE c.%s IS NOT NULL AND c.%s <> ''`,
		util.SQLStringLiteral(child), pc, util.SQLStringLiteral(parent), cc, cc, cc)

	countSQL := `SELECT COUNT(*), COUNT(*) FILTER (WHERE p.code IS NULL) ` + base + `;`
	if err := conn.QueryRowContext(ctx, countSQL).Scan(&rows, &orphans); err != nil {
		return 0, 0, nil, fmt.Errorf("count references: %w", err)
	}
	if orphans == 0 {
		return rows, 0, nil, nil
	}

	sampleSQL := fmt.Sprintf(`SELECT DISTINCT c.%s %s AND p.code IS NULL ORDER BY 1 LIMIT 5;`, cc, base)
	sampleRows, err := conn.QueryContext(ctx, sampleSQL)
	if err != nil {
		return rows, orphans, nil, fmt.Errorf("sample unresolved codes: %w", err)
	}
	defer sampleRows.Close()
	for sampleRows.Next() {
		var code string
		if err := sampleRows.Scan(&code); err != nil {
			return rows, orphans, samples, fmt.Errorf("scan unresolved code: %w", err)
		}
		samples = append(samples, code)
	}
	return rows, orphans, samples, sampleRows.Err()
}

// Print writes the results as a table.
func Print(w io.Writer, results []Result) {
	fmt.Fprintln(w, "--- Reference Analysis ---")
	fmt.Fprintf(w, "%-34s | %-10s | %-10s | %s\n", "Check", "Rows", "Unresolved", "Examples / Errors")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, r := range results {
		switch {
		case r.Skipped:
			fmt.Fprintf(w, "%-34s | %-10s | %-10s | %s\n", r.Reference.Name, "-", "-", "skipped (file missing)")
		case r.Err != nil:
			fmt.Fprintf(w, "%-34s | %-10d | %-10d | %s\n", r.Reference.Name, r.Rows, r.Orphans, r.Err)
		default:
			fmt.Fprintf(w, "%-34s | %-10d | %-10d | %s\n", r.Reference.Name, r.Rows, r.Orphans, strings.Join(r.Samples, ", "))
		}
	}
	fmt.Fprintln(w, strings.Repeat("-", 100))
}

package nomenclator

import (
	"errors"
	"path/filepath"
)

// Output files of DecomposePrescriptions.
const (
	PrescriptionsCSV                 = "prescriptions.csv"
	PrescriptionFormsCSV             = "prescription_forms.csv"
	PrescriptionActiveIngredientsCSV = "prescription_active_ingredients.csv"
	PrescriptionAdminRoutesCSV       = "prescription_admin_routes.csv"
	PrescriptionAtcCSV               = "prescription_atc.csv"
	PrescriptionAtcDuplicatesCSV     = "prescription_atc_duplicates.csv"
	PrescriptionSupplyProblemsCSV    = "prescription_supply_problems.csv"
)

// PrescriptionTables lists the seven files in the order they are opened.
var PrescriptionTables = []string{
	PrescriptionsCSV,
	PrescriptionFormsCSV,
	PrescriptionActiveIngredientsCSV,
	PrescriptionAdminRoutesCSV,
	PrescriptionAtcCSV,
	PrescriptionAtcDuplicatesCSV,
	PrescriptionSupplyProblemsCSV,
}

// Child rows: the parent's cod_nacion followed by the child's own columns.

type formRow struct {
	PrescriptionID string `csv:"prescription_id"`
	PrescriptionForm
}

type ingredientRow struct {
	PrescriptionID string `csv:"prescription_id"`
	ActiveIngredient
}

type routeRow struct {
	PrescriptionID string `csv:"prescription_id"`
	AdminRoute
}

type atcRow struct {
	PrescriptionID string `csv:"prescription_id"`
	PrescriptionAtc
}

type atcDuplicateRow struct {
	PrescriptionID string `csv:"prescription_id"`
	AtcCode        string `csv:"atc_code"`
	AtcDuplicate
}

type supplyProblemRow struct {
	PrescriptionID string `csv:"prescription_id"`
	SupplyProblem
}

// DecomposeStats reports what a decomposition wrote.
type DecomposeStats struct {
	ListDate string
	// Rows maps each output file name to its data row count.
	Rows map[string]int
}

// prescriptionSinks holds the seven output tables for one pass.
type prescriptionSinks struct {
	main        *table[PrescriptionRecord]
	forms       *table[formRow]
	ingredients *table[ingredientRow]
	routes      *table[routeRow]
	atc         *table[atcRow]
	duplicates  *table[atcDuplicateRow]
	supply      *table[supplyProblemRow]
}

func openPrescriptionSinks(dir string) (*prescriptionSinks, error) {
	s := &prescriptionSinks{}
	path := func(name string) string { return filepath.Join(dir, name) }
	var err error
	if s.main, err = createTable[PrescriptionRecord](path(PrescriptionsCSV)); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	if s.forms, err = createTable[formRow](path(PrescriptionFormsCSV)); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	if s.ingredients, err = createTable[ingredientRow](path(PrescriptionActiveIngredientsCSV)); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	if s.routes, err = createTable[routeRow](path(PrescriptionAdminRoutesCSV)); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	if s.atc, err = createTable[atcRow](path(PrescriptionAtcCSV)); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	if s.duplicates, err = createTable[atcDuplicateRow](path(PrescriptionAtcDuplicatesCSV)); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	if s.supply, err = createTable[supplyProblemRow](path(PrescriptionSupplyProblemsCSV)); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

// Close flushes and closes every table that was opened.
func (s *prescriptionSinks) Close() error {
	return errors.Join(
		s.main.Close(),
		s.forms.Close(),
		s.ingredients.Close(),
		s.routes.Close(),
		s.atc.Close(),
		s.duplicates.Close(),
		s.supply.Close(),
	)
}

func (s *prescriptionSinks) rowCounts() map[string]int {
	return map[string]int{
		PrescriptionsCSV:                 s.main.rows,
		PrescriptionFormsCSV:             s.forms.rows,
		PrescriptionActiveIngredientsCSV: s.ingredients.rows,
		PrescriptionAdminRoutesCSV:       s.routes.rows,
		PrescriptionAtcCSV:               s.atc.rows,
		PrescriptionAtcDuplicatesCSV:     s.duplicates.rows,
		PrescriptionSupplyProblemsCSV:    s.supply.rows,
	}
}

// emit writes one prescription and all its nested rows, in document order.
func (s *prescriptionSinks) emit(rec *PrescriptionRecord) error {
	id := rec.CodNacion
	if err := s.main.Write(rec); err != nil {
		return err
	}
	if form := rec.Form; form != nil {
		if err := s.forms.Write(&formRow{PrescriptionID: id, PrescriptionForm: *form}); err != nil {
			return err
		}
		for _, ingredient := range form.ActiveIngredients {
			if err := s.ingredients.Write(&ingredientRow{PrescriptionID: id, ActiveIngredient: ingredient}); err != nil {
				return err
			}
		}
		for _, route := range form.AdminRoutes {
			if err := s.routes.Write(&routeRow{PrescriptionID: id, AdminRoute: route}); err != nil {
				return err
			}
		}
	}
	for _, atc := range rec.AtcCodes {
		if err := s.atc.Write(&atcRow{PrescriptionID: id, PrescriptionAtc: atc}); err != nil {
			return err
		}
		for _, dup := range atc.Duplicates {
			if err := s.duplicates.Write(&atcDuplicateRow{PrescriptionID: id, AtcCode: atc.AtcCode, AtcDuplicate: dup}); err != nil {
				return err
			}
		}
	}
	for _, problem := range rec.SupplyProblems {
		if err := s.supply.Write(&supplyProblemRow{PrescriptionID: id, SupplyProblem: problem}); err != nil {
			return err
		}
	}
	return nil
}

// WriteTables writes the document into the seven prescription tables under
// outDir. If a write fails midway the tables are still closed and keep the
// rows written so far; there is no rollback.
func (doc *PrescriptionDocument) WriteTables(outDir string) (stats DecomposeStats, err error) {
	sinks, err := openPrescriptionSinks(outDir)
	if err != nil {
		return stats, err
	}
	defer func() {
		if cerr := sinks.Close(); err == nil {
			err = cerr
		}
	}()

	for i := range doc.Records {
		if err := sinks.emit(&doc.Records[i]); err != nil {
			return stats, err
		}
	}
	return DecomposeStats{ListDate: doc.ListDate, Rows: sinks.rowCounts()}, nil
}

// DecomposePrescriptions converts Prescripcion.xml into the seven
// prescription tables. The document is decoded completely before any file
// is created.
func DecomposePrescriptions(xmlPath, outDir string) (DecomposeStats, error) {
	doc, err := ReadPrescriptions(xmlPath)
	if err != nil {
		return DecomposeStats{}, err
	}
	return doc.WriteTables(outDir)
}

package nomenclator

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeXML(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

// catalogXML renders <root><elem>fields</elem>...</root>, one element per entry of records.
func catalogXML(root, elem string, records []map[string]string, order []string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<" + root + ">\n")
	for _, rec := range records {
		b.WriteString("  <" + elem + ">")
		for _, k := range order {
			if v, ok := rec[k]; ok {
				b.WriteString("<" + k + ">" + v + "</" + k + ">")
			}
		}
		b.WriteString("</" + elem + ">\n")
	}
	b.WriteString("</" + root + ">\n")
	return b.String()
}

func TestCatalogs_AllTypesWriteOneRowPerRecord(t *testing.T) {
	tests := []struct {
		parser  Parser
		root    string
		elem    string
		fields  []string
		records []map[string]string
	}{
		{DcpCatalog, "aemps_prescripcion_dcp", "dcp", []string{"codigodcp", "nombredcp", "codigodcsa"}, []map[string]string{
			{"codigodcp": "1001", "nombredcp": "PARACETAMOL 500 MG", "codigodcsa": "77"},
			{"codigodcp": "1002", "nombredcp": "IBUPROFENO 400 MG", "codigodcsa": "78"},
		}},
		{DcpfCatalog, "aemps_prescripcion_dcpf", "dcpf", []string{"codigodcpf", "nombredcpf", "codigodcp"}, []map[string]string{
			{"codigodcpf": "5", "nombredcpf": "PARACETAMOL 500 MG COMPRIMIDO", "codigodcp": "1001"},
		}},
		{DcsaCatalog, "aemps_prescripcion_dcsa", "dcsa", []string{"codigodcsa", "nombredcsa"}, []map[string]string{
			{"codigodcsa": "77", "nombredcsa": "PARACETAMOL"},
			{"codigodcsa": "78", "nombredcsa": "IBUPROFENO"},
			{"codigodcsa": "79", "nombredcsa": "AMOXICILINA"},
		}},
		{ContainerCatalog, "aemps_prescripcion_envases", "envases", []string{"codigoenvase", "envase"}, []map[string]string{
			{"codigoenvase": "11", "envase": "BLISTER"},
		}},
		{ExcipientCatalog, "aemps_prescripcion_excipientes", "excipientes", []string{"codigoedo", "edo"}, []map[string]string{
			{"codigoedo": "E1", "edo": "LACTOSA"},
			{"codigoedo": "E2", "edo": "SACAROSA"},
		}},
		{PharmaceuticalFormCatalog, "aemps_prescripcion_formas_farmaceuticas", "formasfarmaceuticas", []string{"codigoformafarmaceutica", "formafarmaceutica", "codigoformafarmaceuticasimplificada"}, []map[string]string{
			{"codigoformafarmaceutica": "40", "formafarmaceutica": "COMPRIMIDO RECUBIERTO", "codigoformafarmaceuticasimplificada": "4"},
		}},
		{SimplifiedPharmaceuticalFormCatalog, "aemps_prescripcion_formas_farmaceuticas_simplificadas", "formasfarmaceuticassimplificadas", []string{"codigoformafarmaceuticasimplificada", "formafarmaceuticasimplificada"}, []map[string]string{
			{"codigoformafarmaceuticasimplificada": "4", "formafarmaceuticasimplificada": "COMPRIMIDO"},
		}},
		{LaboratoryCatalog, "aemps_prescripcion_laboratorios", "laboratorios", []string{"codigolaboratorio", "laboratorio", "direccion", "codigopostal", "localidad", "cif"}, []map[string]string{
			{"codigolaboratorio": "1", "laboratorio": "LAB UNO", "direccion": "C/ Mayor 1", "codigopostal": "28001", "localidad": "MADRID", "cif": "A00000001"},
		}},
		{ActiveIngredientCatalog, "aemps_prescripcion_principios_activos", "principiosactivos", []string{"nroprincipioactivo", "codigoprincipioactivo", "principioactivo"}, []map[string]string{
			{"nroprincipioactivo": "1", "codigoprincipioactivo": "PA1", "principioactivo": "PARACETAMOL"},
		}},
		{RegistrationStatusCatalog, "aemps_prescripcion_situacion_registro", "situacionesregistro", []string{"codigosituacionregistro", "situacionregistro"}, []map[string]string{
			{"codigosituacionregistro": "1", "situacionregistro": "Autorizado"},
			{"codigosituacionregistro": "2", "situacionregistro": "Suspendido"},
		}},
		{ContainerUnitCatalog, "aemps_prescripcion_unidad_contenido", "unidadescontenido", []string{"codigounidadcontenido", "unidadcontenido"}, []map[string]string{
			{"codigounidadcontenido": "1", "unidadcontenido": "comprimidos"},
		}},
		{AdministrationRouteCatalog, "aemps_prescripcion_vias_administracion", "viasadministracion", []string{"codigoviaadministracion", "viaadministracion"}, []map[string]string{
			{"codigoviaadministracion": "48", "viaadministracion": "VÍA ORAL"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.parser.Name(), func(t *testing.T) {
			dir := t.TempDir()
			xmlPath := writeXML(t, dir, tt.parser.SourceFile(), catalogXML(tt.root, tt.elem, tt.records, tt.fields))
			csvPath := filepath.Join(dir, tt.parser.TargetFile())

			if err := tt.parser.Parse(xmlPath, csvPath); err != nil {
				t.Fatalf("Parse: %v", err)
			}
			rows := readCSV(t, csvPath)
			if len(rows) != len(tt.records)+1 {
				t.Fatalf("got %d rows, want %d data rows plus header", len(rows), len(tt.records))
			}
			for i, rec := range tt.records {
				want := make([]string, len(tt.fields))
				for j, k := range tt.fields {
					want[j] = rec[k]
				}
				if !reflect.DeepEqual(rows[i+1], want) {
					t.Errorf("row %d = %q, want %q", i+1, rows[i+1], want)
				}
			}
		})
	}
}

func TestAtcCatalog_StripsCodePrefix(t *testing.T) {
	dir := t.TempDir()
	xmlPath := writeXML(t, dir, "DICCIONARIO_ATC.xml", `<?xml version="1.0" encoding="UTF-8"?>
<aemps_prescripcion_atc>
  <atc><nroatc>1</nroatc><codigoatc>A01</codigoatc><descatc>A01 - DIGESTIVE</descatc></atc>
  <atc><nroatc>2</nroatc><codigoatc>B01</codigoatc><descatc>BLOOD</descatc></atc>
  <atc><nroatc>3</nroatc><codigoatc>C01</codigoatc><descatc>A01 - OTHER CODE</descatc></atc>
</aemps_prescripcion_atc>`)
	csvPath := filepath.Join(dir, "atc.csv")

	if err := AtcCatalog.Parse(xmlPath, csvPath); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := [][]string{
		{"number", "code", "description"},
		{"1", "A01", "DIGESTIVE"},
		{"2", "B01", "BLOOD"},
		{"3", "C01", "A01 - OTHER CODE"},
	}
	if got := readCSV(t, csvPath); !reflect.DeepEqual(got, want) {
		t.Errorf("atc.csv = %q, want %q", got, want)
	}
}

func TestCleanAtcDescription(t *testing.T) {
	tests := []struct {
		code, desc, want string
	}{
		{"A01", "A01 - DIGESTIVE", "DIGESTIVE"},
		{"A01", "DIGESTIVE", "DIGESTIVE"},
		{"A01", "A01-DIGESTIVE", "A01-DIGESTIVE"},
		{"A01", "A01 - ", ""},
		{"", " - X", "X"},
	}
	for _, tt := range tests {
		r := AtcRecord{Code: tt.code, Description: tt.desc}
		CleanAtcDescription(&r)
		if r.Description != tt.want {
			t.Errorf("CleanAtcDescription(%q, %q) = %q, want %q", tt.code, tt.desc, r.Description, tt.want)
		}
	}
}

func TestLaboratoryCatalog_OptionalFieldsAreEmpty(t *testing.T) {
	dir := t.TempDir()
	xmlPath := writeXML(t, dir, "DICCIONARIO_LABORATORIOS.xml", `<aemps_prescripcion_laboratorios>
  <laboratorios><codigolaboratorio>1</codigolaboratorio><laboratorio>LAB UNO</laboratorio></laboratorios>
  <laboratorios><codigolaboratorio>2</codigolaboratorio><laboratorio>LAB DOS</laboratorio><localidad>SEVILLA</localidad></laboratorios>
</aemps_prescripcion_laboratorios>`)
	csvPath := filepath.Join(dir, "laboratorios.csv")

	if err := LaboratoryCatalog.Parse(xmlPath, csvPath); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := [][]string{
		{"code", "name", "address", "zip", "city", "vat"},
		{"1", "LAB UNO", "", "", "", ""},
		{"2", "LAB DOS", "", "", "SEVILLA", ""},
	}
	if got := readCSV(t, csvPath); !reflect.DeepEqual(got, want) {
		t.Errorf("laboratorios.csv = %q, want %q", got, want)
	}
}

func TestCatalog_EmptyDocumentWritesHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	xmlPath := writeXML(t, dir, "DICCIONARIO_DCSA.xml", `<aemps_prescripcion_dcsa></aemps_prescripcion_dcsa>`)
	csvPath := filepath.Join(dir, "dcsa.csv")

	if err := DcsaCatalog.Parse(xmlPath, csvPath); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rows := readCSV(t, csvPath)
	if len(rows) != 1 || !reflect.DeepEqual(rows[0], []string{"code", "name"}) {
		t.Errorf("got %q, want header only", rows)
	}
}

func TestCatalog_IgnoresUnknownElements(t *testing.T) {
	dir := t.TempDir()
	xmlPath := writeXML(t, dir, "DICCIONARIO_ENVASES.xml", `<aemps_prescripcion_envases>
  <header><date>2024-01-01</date></header>
  <envases><codigoenvase>1</codigoenvase><envase>FRASCO</envase><extra>x</extra></envases>
</aemps_prescripcion_envases>`)
	csvPath := filepath.Join(dir, "envases.csv")

	if err := ContainerCatalog.Parse(xmlPath, csvPath); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rows := readCSV(t, csvPath); len(rows) != 2 || rows[1][1] != "FRASCO" {
		t.Errorf("got %q", rows)
	}
}

func TestCatalog_SchemaErrorsCreateNoOutput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `<aemps_prescripcion_atc><atc><nroatc>1</nroatc>`},
		{"wrong root", `<aemps_prescripcion_dcp><atc><nroatc>1</nroatc></atc></aemps_prescripcion_dcp>`},
		{"bad number", `<aemps_prescripcion_atc><atc><nroatc>one</nroatc><codigoatc>A</codigoatc><descatc>x</descatc></atc></aemps_prescripcion_atc>`},
		{"empty file", ``},
		{"missing number", `<aemps_prescripcion_atc><atc><codigoatc>A</codigoatc><descatc>x</descatc></atc></aemps_prescripcion_atc>`},
		{"blank code", `<aemps_prescripcion_atc><atc><nroatc>1</nroatc><codigoatc> </codigoatc><descatc>x</descatc></atc></aemps_prescripcion_atc>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			xmlPath := writeXML(t, dir, "DICCIONARIO_ATC.xml", tt.body)
			csvPath := filepath.Join(dir, "atc.csv")

			err := AtcCatalog.Parse(xmlPath, csvPath)
			if !errors.Is(err, ErrSchema) {
				t.Fatalf("err = %v, want ErrSchema", err)
			}
			var se *SchemaError
			if !errors.As(err, &se) || se.Catalog != "ATC" {
				t.Errorf("err = %#v, want *SchemaError for ATC", err)
			}
			if _, statErr := os.Stat(csvPath); !os.IsNotExist(statErr) {
				t.Errorf("atc.csv exists after schema error")
			}
		})
	}
}

func TestCatalog_MissingFileIsNotSchemaError(t *testing.T) {
	dir := t.TempDir()
	err := DcpCatalog.Parse(filepath.Join(dir, "nope.xml"), filepath.Join(dir, "dcp.csv"))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrSchema) {
		t.Errorf("missing file reported as schema error: %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}

func TestCatalog_MissingRequiredFieldNamesRecord(t *testing.T) {
	dir := t.TempDir()
	xmlPath := writeXML(t, dir, "DICCIONARIO_DCP.xml", `<aemps_prescripcion_dcp>
<dcp><codigodcp>1</codigodcp><nombredcp>A</nombredcp><codigodcsa>9</codigodcsa></dcp>
<dcp><codigodcp>2</codigodcp><codigodcsa>9</codigodcsa></dcp>
</aemps_prescripcion_dcp>`)

	err := DcpCatalog.Parse(xmlPath, filepath.Join(dir, "dcp.csv"))
	var mf *MissingFieldError
	if !errors.As(err, &mf) || mf.Field != "nombredcp" {
		t.Fatalf("err = %v, want MissingFieldError for nombredcp", err)
	}
	if !errors.Is(err, ErrSchema) || !strings.Contains(err.Error(), "<dcp> #2") {
		t.Errorf("err = %q, want schema error at <dcp> #2", err)
	}
}

func TestCatalog_UnwritableTargetIsNotSchemaError(t *testing.T) {
	dir := t.TempDir()
	xmlPath := writeXML(t, dir, "DICCIONARIO_ATC.xml", `<aemps_prescripcion_atc>
<atc><nroatc>1</nroatc><codigoatc>A</codigoatc><descatc>A - ALIMENTARY</descatc></atc>
</aemps_prescripcion_atc>`)

	err := AtcCatalog.Parse(xmlPath, filepath.Join(dir, "no-such-dir", "atc.csv"))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrSchema) {
		t.Errorf("write failure reported as schema error: %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}

func TestCatalog_DecodesDeclaredCharset(t *testing.T) {
	dir := t.TempDir()
	// "VÍA ORAL" in ISO-8859-1: Í is 0xCD.
	body := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<aemps_prescripcion_vias_administracion><viasadministracion>" +
		"<codigoviaadministracion>48</codigoviaadministracion>" +
		"<viaadministracion>V\xcdA ORAL</viaadministracion>" +
		"</viasadministracion></aemps_prescripcion_vias_administracion>"
	xmlPath := writeXML(t, dir, "DICCIONARIO_VIAS_ADMINISTRACION.xml", body)
	csvPath := filepath.Join(dir, "vias_administracion.csv")

	if err := AdministrationRouteCatalog.Parse(xmlPath, csvPath); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rows := readCSV(t, csvPath); rows[1][1] != "VÍA ORAL" {
		t.Errorf("name = %q, want %q", rows[1][1], "VÍA ORAL")
	}
}

func TestCatalogs_DistinctFiles(t *testing.T) {
	parsers := Catalogs()
	if len(parsers) != 13 {
		t.Fatalf("got %d catalogs, want 13", len(parsers))
	}
	seenXML := map[string]bool{}
	seenCSV := map[string]bool{}
	for _, p := range parsers {
		if seenXML[p.SourceFile()] || seenCSV[p.TargetFile()] {
			t.Errorf("%s: duplicate file name", p.Name())
		}
		seenXML[p.SourceFile()] = true
		seenCSV[p.TargetFile()] = true
	}
}

package nomenclator

import (
	"encoding/xml"
	"fmt"
	"os"
)

// PrescriptionXMLFile is the composite file of the dump.
const PrescriptionXMLFile = "Prescripcion.xml"

// ActiveIngredient is one entry of a form's composition.
type ActiveIngredient struct {
	ActiveIngredientCode string `xml:"cod_principio_activo" csv:"active_ingredient_code"`
	Order                string `xml:"orden_colacion" csv:"order"`
	Dose                 string `xml:"dosis_pa" csv:"dose"`
	DoseUnit             string `xml:"unidad_dosis_pa" csv:"dose_unit"`
	CompositionDose      string `xml:"dosis_composicion" csv:"composition_dose"`
	CompositionUnit      string `xml:"unidad_composicion" csv:"composition_unit"`
	AdministrationDose   string `xml:"dosis_administracion" csv:"administration_dose"`
	AdministrationUnit   string `xml:"unidad_administracion" csv:"administration_unit"`
	PrescriptionDose     string `xml:"dosis_prescripcion" csv:"prescription_dose"`
	PrescriptionUnit     string `xml:"unidad_prescripcion" csv:"prescription_unit"`
}

type AdminRoute struct {
	RouteCode string `xml:"cod_via_admin" csv:"route_code" required:"true"`
}

type PrescriptionForm struct {
	FormCode             string             `xml:"cod_forfar" csv:"form_code" required:"true"`
	SimplifiedFormCode   string             `xml:"cod_forfar_simplificada" csv:"simplified_form_code" required:"true"`
	NumActiveIngredients string             `xml:"nro_pactiv" csv:"num_active_ingredients"`
	ActiveIngredients    []ActiveIngredient `xml:"composicion_pa" csv:"-"`
	AdminRoutes          []AdminRoute       `xml:"viasadministracion" csv:"-"`
}

// AtcDuplicate flags an ATC classification that overlaps another one and
// carries the clinical warning for it.
type AtcDuplicate struct {
	DuplicateAtc   string `xml:"atc_duplicidad" csv:"duplicate_atc" required:"true"`
	Description    string `xml:"descripcion_atc_duplicidad" csv:"description"`
	Effect         string `xml:"efecto_duplicidad" csv:"effect"`
	Recommendation string `xml:"recomendacion_duplicidad" csv:"recommendation"`
}

type PrescriptionAtc struct {
	AtcCode    string         `xml:"cod_atc" csv:"atc_code" required:"true"`
	Duplicates []AtcDuplicate `xml:"duplicidades" csv:"-"`
}

type SupplyProblem struct {
	StartDate    string `xml:"fecha_inicio" csv:"start_date"`
	Observations string `xml:"observaciones" csv:"observations"`
}

// PrescriptionRecord is one prescribable presentation, identified by CodNacion.
// Nested collections are excluded from the main table and written to the
// child tables instead.
type PrescriptionRecord struct {
	CodNacion                   string `xml:"cod_nacion" csv:"cod_nacion" required:"true"`
	NroDefinitivo               string `xml:"nro_definitivo" csv:"nro_definitivo" required:"true"`
	DesNomco                    string `xml:"des_nomco" csv:"des_nomco" required:"true"`
	DesPrese                    string `xml:"des_prese" csv:"des_prese" required:"true"`
	CodDcsa                     string `xml:"cod_dcsa" csv:"cod_dcsa"`
	CodDcp                      string `xml:"cod_dcp" csv:"cod_dcp"`
	CodDcpf                     string `xml:"cod_dcpf" csv:"cod_dcpf"`
	DesDosific                  string `xml:"des_dosific" csv:"des_dosific"`
	CodEnvase                   string `xml:"cod_envase" csv:"cod_envase"`
	Contenido                   string `xml:"contenido" csv:"contenido"`
	UnidContenido               string `xml:"unid_contenido" csv:"unid_contenido"`
	NroConte                    string `xml:"nro_conte" csv:"nro_conte"`
	SwPsicotropo                Flag   `xml:"sw_psicotropo" csv:"sw_psicotropo" required:"true"`
	SwEstupefaciente            Flag   `xml:"sw_estupefaciente" csv:"sw_estupefaciente" required:"true"`
	SwAfectaConduccion          Flag   `xml:"sw_afecta_conduccion" csv:"sw_afecta_conduccion" required:"true"`
	SwTrianguloNegro            Flag   `xml:"sw_triangulo_negro" csv:"sw_triangulo_negro" required:"true"`
	URLFictec                   string `xml:"url_fictec" csv:"url_fictec"`
	URLProsp                    string `xml:"url_prosp" csv:"url_prosp"`
	SwReceta                    Flag   `xml:"sw_receta" csv:"sw_receta" required:"true"`
	SwGenerico                  Flag   `xml:"sw_generico" csv:"sw_generico" required:"true"`
	SwSustituible               Flag   `xml:"sw_sustituible" csv:"sw_sustituible" required:"true"`
	SwEnvaseClinico             Flag   `xml:"sw_envase_clinico" csv:"sw_envase_clinico" required:"true"`
	SwUsoHospitalario           Flag   `xml:"sw_uso_hospitalario" csv:"sw_uso_hospitalario" required:"true"`
	SwDiagnosticoHospitalario   Flag   `xml:"sw_diagnostico_hospitalario" csv:"sw_diagnostico_hospitalario" required:"true"`
	SwTld                       Flag   `xml:"sw_tld" csv:"sw_tld" required:"true"`
	SwEspecialControlMedico     Flag   `xml:"sw_especial_control_medico" csv:"sw_especial_control_medico" required:"true"`
	SwHuerfano                  Flag   `xml:"sw_huerfano" csv:"sw_huerfano" required:"true"`
	SwBaseAPlantas              Flag   `xml:"sw_base_a_plantas" csv:"sw_base_a_plantas" required:"true"`
	LaboratorioTitular          string `xml:"laboratorio_titular" csv:"laboratorio_titular"`
	LaboratorioComercializador  string `xml:"laboratorio_comercializador" csv:"laboratorio_comercializador"`
	FechaAutorizacion           string `xml:"fecha_autorizacion" csv:"fecha_autorizacion"`
	SwComercializado            Flag   `xml:"sw_comercializado" csv:"sw_comercializado" required:"true"`
	FecComer                    string `xml:"fec_comer" csv:"fec_comer"`
	CodSitreg                   string `xml:"cod_sitreg" csv:"cod_sitreg"`
	CodSitregPresen             string `xml:"cod_sitreg_presen" csv:"cod_sitreg_presen"`
	FechaSituacionRegistro      string `xml:"fecha_situacion_registro" csv:"fecha_situacion_registro"`
	FecSitregPresen             string `xml:"fec_sitreg_presen" csv:"fec_sitreg_presen"`
	SwTieneExcipientesDeclOblig Flag   `xml:"sw_tiene_excipientes_decl_obligatoria" csv:"sw_tiene_excipientes_decl_obligatoria" required:"true"`
	Biosimilar                  Flag   `xml:"biosimilar" csv:"biosimilar" required:"true"`
	ImportacionParalela         Flag   `xml:"importacion_paralela" csv:"importacion_paralela" required:"true"`
	Radiofarmaco                Flag   `xml:"radiofarmaco" csv:"radiofarmaco" required:"true"`
	Serializacion               Flag   `xml:"serializacion" csv:"serializacion" required:"true"`

	Form           *PrescriptionForm `xml:"formasfarmaceuticas" csv:"-"`
	AtcCodes       []PrescriptionAtc `xml:"atc" csv:"-"`
	SupplyProblems []SupplyProblem   `xml:"problemassuministro" csv:"-"`
}

// PrescriptionDocument is the decoded content of Prescripcion.xml.
type PrescriptionDocument struct {
	// ListDate is the dump date from <header><listprescriptiondate>, if present.
	ListDate string
	Records  []PrescriptionRecord
}

type prescriptionHeader struct {
	ListPrescriptionDate string `xml:"listprescriptiondate" required:"true"`
}

// ReadPrescriptions decodes the whole composite file. Nothing is returned
// unless every record decodes and carries its required fields.
func ReadPrescriptions(xmlPath string) (*PrescriptionDocument, error) {
	f, err := os.Open(xmlPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc := &PrescriptionDocument{}
	err = walkDocument(f, "aemps_prescripcion", map[string]elementHandler{
		"header": func(dec *xml.Decoder, start *xml.StartElement) error {
			var h prescriptionHeader
			if err := dec.DecodeElement(&h, start); err != nil {
				return fmt.Errorf("<header>: %w", err)
			}
			if err := checkRequired(&h); err != nil {
				return fmt.Errorf("<header>: %w", err)
			}
			doc.ListDate = h.ListPrescriptionDate
			return nil
		},
		"prescription": func(dec *xml.Decoder, start *xml.StartElement) error {
			var rec PrescriptionRecord
			if err := dec.DecodeElement(&rec, start); err != nil {
				return fmt.Errorf("<prescription> #%d: %w", len(doc.Records)+1, err)
			}
			if err := checkRequired(&rec); err != nil {
				return fmt.Errorf("<prescription> #%d: %w", len(doc.Records)+1, err)
			}
			doc.Records = append(doc.Records, rec)
			return nil
		},
	})
	if err != nil {
		return nil, &SchemaError{Catalog: "Prescription", Err: err}
	}
	return doc, nil
}

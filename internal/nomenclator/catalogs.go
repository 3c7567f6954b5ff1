package nomenclator

import "strings"

// AtcRecord is one row of DICCIONARIO_ATC.xml. Number is nil only when
// <nroatc> is absent.
type AtcRecord struct {
	Number      *int   `xml:"nroatc" csv:"number" required:"true"`
	Code        string `xml:"codigoatc" csv:"code" required:"true"`
	Description string `xml:"descatc" csv:"description" required:"true"`
}

// DcpRecord is one row of DICCIONARIO_DCP.xml.
type DcpRecord struct {
	Code     string `xml:"codigodcp" csv:"code" required:"true"`
	Name     string `xml:"nombredcp" csv:"name" required:"true"`
	DcsaCode string `xml:"codigodcsa" csv:"dcsa_code" required:"true"`
}

// DcpfRecord is one row of DICCIONARIO_DCPF.xml.
type DcpfRecord struct {
	Code    string `xml:"codigodcpf" csv:"code" required:"true"`
	Name    string `xml:"nombredcpf" csv:"name" required:"true"`
	DcpCode string `xml:"codigodcp" csv:"dcp_code" required:"true"`
}

// DcsaRecord is one row of DICCIONARIO_DCSA.xml.
type DcsaRecord struct {
	Code string `xml:"codigodcsa" csv:"code" required:"true"`
	Name string `xml:"nombredcsa" csv:"name" required:"true"`
}

// ContainerRecord is one row of DICCIONARIO_ENVASES.xml.
type ContainerRecord struct {
	Code string `xml:"codigoenvase" csv:"code" required:"true"`
	Name string `xml:"envase" csv:"name" required:"true"`
}

// ExcipientRecord is one row of DICCIONARIO_EXCIPIENTES_DECL_OBLIGATORIA.xml.
type ExcipientRecord struct {
	Code string `xml:"codigoedo" csv:"code" required:"true"`
	Name string `xml:"edo" csv:"name" required:"true"`
}

// PharmaceuticalFormRecord is one row of DICCIONARIO_FORMA_FARMACEUTICA.xml.
type PharmaceuticalFormRecord struct {
	Code           string `xml:"codigoformafarmaceutica" csv:"code" required:"true"`
	Name           string `xml:"formafarmaceutica" csv:"name" required:"true"`
	SimplifiedCode string `xml:"codigoformafarmaceuticasimplificada" csv:"simplified_code" required:"true"`
}

// SimplifiedPharmaceuticalFormRecord is one row of
// DICCIONARIO_FORMA_FARMACEUTICA_SIMPLIFICADAS.xml.
type SimplifiedPharmaceuticalFormRecord struct {
	Code string `xml:"codigoformafarmaceuticasimplificada" csv:"code" required:"true"`
	Name string `xml:"formafarmaceuticasimplificada" csv:"name" required:"true"`
}

// LaboratoryRecord is the only catalog with optional columns; absent
// elements are written as empty cells.
type LaboratoryRecord struct {
	Code    string `xml:"codigolaboratorio" csv:"code" required:"true"`
	Name    string `xml:"laboratorio" csv:"name" required:"true"`
	Address string `xml:"direccion" csv:"address"`
	Zip     string `xml:"codigopostal" csv:"zip"`
	City    string `xml:"localidad" csv:"city"`
	Vat     string `xml:"cif" csv:"vat"`
}

// ActiveIngredientRecord is one row of DICCIONARIO_PRINCIPIOS_ACTIVOS.xml.
type ActiveIngredientRecord struct {
	Number string `xml:"nroprincipioactivo" csv:"number" required:"true"`
	Code   string `xml:"codigoprincipioactivo" csv:"code" required:"true"`
	Name   string `xml:"principioactivo" csv:"name" required:"true"`
}

// RegistrationStatusRecord is one row of DICCIONARIO_SITUACION_REGISTRO.xml.
type RegistrationStatusRecord struct {
	Code string `xml:"codigosituacionregistro" csv:"code" required:"true"`
	Name string `xml:"situacionregistro" csv:"name" required:"true"`
}

// ContainerUnitRecord is one row of DICCIONARIO_UNIDAD_CONTENIDO.xml.
type ContainerUnitRecord struct {
	Code string `xml:"codigounidadcontenido" csv:"code" required:"true"`
	Name string `xml:"unidadcontenido" csv:"name" required:"true"`
}

// AdministrationRouteRecord is one row of DICCIONARIO_VIAS_ADMINISTRACION.xml.
type AdministrationRouteRecord struct {
	Code string `xml:"codigoviaadministracion" csv:"code" required:"true"`
	Name string `xml:"viaadministracion" csv:"name" required:"true"`
}

// CleanAtcDescription strips a leading "{code} - " from the description,
// e.g. "A01 - DIGESTIVE" becomes "DIGESTIVE".
func CleanAtcDescription(r *AtcRecord) {
	r.Description = strings.TrimPrefix(r.Description, r.Code+" - ")
}

var (
	AtcCatalog = Catalog[AtcRecord]{
		Label: "ATC", XMLFile: "DICCIONARIO_ATC.xml", CSVFile: "atc.csv",
		Root: "aemps_prescripcion_atc", Element: "atc",
		Transform: CleanAtcDescription,
	}
	DcpCatalog = Catalog[DcpRecord]{
		Label: "DCP", XMLFile: "DICCIONARIO_DCP.xml", CSVFile: "dcp.csv",
		Root: "aemps_prescripcion_dcp", Element: "dcp",
	}
	DcpfCatalog = Catalog[DcpfRecord]{
		Label: "DCPF", XMLFile: "DICCIONARIO_DCPF.xml", CSVFile: "dcpf.csv",
		Root: "aemps_prescripcion_dcpf", Element: "dcpf",
	}
	DcsaCatalog = Catalog[DcsaRecord]{
		Label: "DCSA", XMLFile: "DICCIONARIO_DCSA.xml", CSVFile: "dcsa.csv",
		Root: "aemps_prescripcion_dcsa", Element: "dcsa",
	}
	ContainerCatalog = Catalog[ContainerRecord]{
		Label: "Envases", XMLFile: "DICCIONARIO_ENVASES.xml", CSVFile: "envases.csv",
		Root: "aemps_prescripcion_envases", Element: "envases",
	}
	ExcipientCatalog = Catalog[ExcipientRecord]{
		Label: "Excipientes", XMLFile: "DICCIONARIO_EXCIPIENTES_DECL_OBLIGATORIA.xml", CSVFile: "excipientes.csv",
		Root: "aemps_prescripcion_excipientes", Element: "excipientes",
	}
	PharmaceuticalFormCatalog = Catalog[PharmaceuticalFormRecord]{
		Label: "Forma Farmaceutica", XMLFile: "DICCIONARIO_FORMA_FARMACEUTICA.xml", CSVFile: "forma_farmaceutica.csv",
		Root: "aemps_prescripcion_formas_farmaceuticas", Element: "formasfarmaceuticas",
	}
	SimplifiedPharmaceuticalFormCatalog = Catalog[SimplifiedPharmaceuticalFormRecord]{
		Label: "Forma Farmaceutica Simplificada", XMLFile: "DICCIONARIO_FORMA_FARMACEUTICA_SIMPLIFICADAS.xml", CSVFile: "forma_farmaceutica_simplificada.csv",
		Root: "aemps_prescripcion_formas_farmaceuticas_simplificadas", Element: "formasfarmaceuticassimplificadas",
	}
	LaboratoryCatalog = Catalog[LaboratoryRecord]{
		Label: "Laboratorio", XMLFile: "DICCIONARIO_LABORATORIOS.xml", CSVFile: "laboratorios.csv",
		Root: "aemps_prescripcion_laboratorios", Element: "laboratorios",
	}
	ActiveIngredientCatalog = Catalog[ActiveIngredientRecord]{
		Label: "Principio Activo", XMLFile: "DICCIONARIO_PRINCIPIOS_ACTIVOS.xml", CSVFile: "principios_activos.csv",
		Root: "aemps_prescripcion_principios_activos", Element: "principiosactivos",
	}
	RegistrationStatusCatalog = Catalog[RegistrationStatusRecord]{
		Label: "Situacion Registro", XMLFile: "DICCIONARIO_SITUACION_REGISTRO.xml", CSVFile: "situacion_registro.csv",
		Root: "aemps_prescripcion_situacion_registro", Element: "situacionesregistro",
	}
	ContainerUnitCatalog = Catalog[ContainerUnitRecord]{
		Label: "Unidad Contenido", XMLFile: "DICCIONARIO_UNIDAD_CONTENIDO.xml", CSVFile: "unidad_contenido.csv",
		Root: "aemps_prescripcion_unidad_contenido", Element: "unidadescontenido",
	}
	AdministrationRouteCatalog = Catalog[AdministrationRouteRecord]{
		Label: "Via Administracion", XMLFile: "DICCIONARIO_VIAS_ADMINISTRACION.xml", CSVFile: "vias_administracion.csv",
		Root: "aemps_prescripcion_vias_administracion", Element: "viasadministracion",
	}
)

// Catalogs returns the 13 dictionary parsers in dump order.
func Catalogs() []Parser {
	return []Parser{
		AtcCatalog,
		DcpCatalog,
		DcpfCatalog,
		DcsaCatalog,
		ContainerCatalog,
		ExcipientCatalog,
		PharmaceuticalFormCatalog,
		SimplifiedPharmaceuticalFormCatalog,
		LaboratoryCatalog,
		ActiveIngredientCatalog,
		RegistrationStatusCatalog,
		ContainerUnitCatalog,
		AdministrationRouteCatalog,
	}
}

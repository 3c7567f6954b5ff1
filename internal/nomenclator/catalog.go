// Package nomenclator converts the AEMPS Nomenclator XML dictionaries into CSV.
//
// Each flat dictionary is described by a Catalog and converted with a single
// generic routine. The composite Prescripcion.xml file is handled by
// DecomposePrescriptions, which fans every prescription out into seven
// related tables keyed by cod_nacion.
package nomenclator

import (
	"fmt"
	"os"
)

// Parser converts one dictionary file into one CSV file.
type Parser interface {
	// Name identifies the catalog in logs, errors and reports.
	Name() string
	// SourceFile is the XML file name inside the extracted dump.
	SourceFile() string
	// TargetFile is the CSV file name written to the output directory.
	TargetFile() string
	// Parse reads xmlPath and writes csvPath.
	Parse(xmlPath, csvPath string) error
}

// Catalog describes a flat dictionary file: <Root><Element/>...</Root>.
type Catalog[R any] struct {
	Label   string
	XMLFile string
	CSVFile string
	Root    string
	Element string
	// Transform, when set, is applied to every record before it is written.
	Transform func(*R)
}

var _ Parser = Catalog[AtcRecord]{}

func (c Catalog[R]) Name() string       { return c.Label }
func (c Catalog[R]) SourceFile() string { return c.XMLFile }
func (c Catalog[R]) TargetFile() string { return c.CSVFile }

// Read decodes every record of the catalog file.
func (c Catalog[R]) Read(xmlPath string) ([]R, error) {
	f, err := os.Open(xmlPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := decodeList[R](f, c.Root, c.Element)
	if err != nil {
		return nil, &SchemaError{Catalog: c.Label, Err: err}
	}
	if c.Transform != nil {
		for i := range records {
			c.Transform(&records[i])
		}
	}
	return records, nil
}

// Parse decodes the whole file before creating csvPath, so a schema error
// leaves no output behind.
func (c Catalog[R]) Parse(xmlPath, csvPath string) (err error) {
	records, err := c.Read(xmlPath)
	if err != nil {
		return err
	}
	out, err := createTable[R](csvPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	for i := range records {
		if err := out.Write(&records[i]); err != nil {
			return fmt.Errorf("%s record %d: %w", c.Label, i+1, err)
		}
	}
	return nil
}

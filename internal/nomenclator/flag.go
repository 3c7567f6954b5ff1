package nomenclator

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// Flag is a boolean carried in the dump as the strings "0" and "1". Set is
// false when the element never appeared in the record.
type Flag struct {
	Value bool
	Set   bool
}

// ParseFlag converts "1" to true and "0" to false. Surrounding whitespace is
// ignored; any other value is rejected.
func ParseFlag(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "1":
		return true, nil
	case "0":
		return false, nil
	}
	return false, &FlagError{Value: s}
}

// UnmarshalXML implements xml.Unmarshaler.
func (f *Flag) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	v, err := ParseFlag(s)
	if err != nil {
		return &FlagError{Field: start.Name.Local, Value: s}
	}
	*f = Flag{Value: v, Set: true}
	return nil
}

// String renders the flag the way it is written to CSV.
func (f Flag) String() string {
	if !f.Set {
		return ""
	}
	return strconv.FormatBool(f.Value)
}

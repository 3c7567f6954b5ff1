package nomenclator

import (
	"fmt"
	"reflect"
	"strings"
)

var flagType = reflect.TypeFor[Flag]()

// checkRequired returns a *MissingFieldError for the first field tagged
// `required:"true"` that rec, a pointer to a decoded record, does not carry.
// Nested structs, struct pointers and slices of structs are checked as well.
//
// encoding/xml cannot tell an absent element from an empty one, so an empty
// or blank string counts as missing. Other kinds need a presence marker: a
// Flag reports Set, a pointer is nil until its element is decoded.
func checkRequired(rec any) error {
	return requiredFields(reflect.ValueOf(rec).Elem(), "")
}

func requiredFields(v reflect.Value, path string) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		field := elementName(f)
		if path != "" {
			field = path + "/" + field
		}
		fv := v.Field(i)
		if f.Tag.Get("required") == "true" && missing(fv) {
			return &MissingFieldError{Field: field}
		}
		if err := requiredNested(fv, field); err != nil {
			return err
		}
	}
	return nil
}

func requiredNested(v reflect.Value, path string) error {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || v.Elem().Kind() != reflect.Struct {
			return nil
		}
		return requiredFields(v.Elem(), path)
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			if v.Index(i).Kind() != reflect.Struct {
				return nil
			}
			if err := requiredFields(v.Index(i), fmt.Sprintf("%s[%d]", path, i+1)); err != nil {
				return err
			}
		}
	case reflect.Struct:
		if v.Type() != flagType {
			return requiredFields(v, path)
		}
	}
	return nil
}

func missing(v reflect.Value) bool {
	if v.Type() == flagType {
		return !v.Interface().(Flag).Set
	}
	switch v.Kind() {
	case reflect.String:
		return strings.TrimSpace(v.String()) == ""
	case reflect.Pointer, reflect.Slice:
		return v.IsNil()
	}
	return false
}

// elementName is the XML element a field decodes from.
func elementName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("xml"), ",")
	if name == "" {
		return f.Name
	}
	return name
}

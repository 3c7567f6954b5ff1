package nomenclator

import (
	"encoding/csv"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"sync"
)

// column maps one `csv` struct tag to the field holding its value.
// Embedded structs contribute their own columns in place.
type column struct {
	name  string
	index []int
}

var columnCache sync.Map // reflect.Type -> []column

func columnsOf(t reflect.Type) []column {
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]column)
	}
	cols := collectColumns(t, nil)
	columnCache.Store(t, cols)
	return cols
}

func collectColumns(t reflect.Type, parent []int) []column {
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int{}, parent...), i)
		tag, tagged := f.Tag.Lookup("csv")
		if tag == "-" {
			continue
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct && !tagged {
			cols = append(cols, collectColumns(f.Type, index)...)
			continue
		}
		if !tagged || !f.IsExported() {
			continue
		}
		cols = append(cols, column{name: tag, index: index})
	}
	return cols
}

// Header returns the CSV header for record type R.
func Header[R any]() []string {
	cols := columnsOf(reflect.TypeFor[R]())
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

func formatField(v reflect.Value) (string, error) {
	if f, ok := v.Interface().(Flag); ok {
		return f.String(), nil
	}
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return "", nil
		}
		return formatField(v.Elem())
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	}
	return "", fmt.Errorf("unsupported csv field kind %s", v.Kind())
}

// table is a CSV file holding rows of type R, header first.
type table[R any] struct {
	path string
	file *os.File
	w    *csv.Writer
	cols []column
	rows int
}

func createTable[R any](path string) (*table[R], error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	t := &table[R]{
		path: path,
		file: f,
		w:    csv.NewWriter(f),
		cols: columnsOf(reflect.TypeFor[R]()),
	}
	if err := t.w.Write(Header[R]()); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

// Write appends one record. Rows are buffered until Close.
func (t *table[R]) Write(rec *R) error {
	v := reflect.ValueOf(rec).Elem()
	row := make([]string, len(t.cols))
	for i, c := range t.cols {
		s, err := formatField(v.FieldByIndex(c.index))
		if err != nil {
			return fmt.Errorf("%s column %s: %w", t.path, c.name, err)
		}
		row[i] = s
	}
	if err := t.w.Write(row); err != nil {
		return fmt.Errorf("write %s: %w", t.path, err)
	}
	t.rows++
	return nil
}

// Close flushes buffered rows and closes the file. Safe on nil and repeated calls.
func (t *table[R]) Close() error {
	if t == nil || t.file == nil {
		return nil
	}
	t.w.Flush()
	flushErr := t.w.Error()
	closeErr := t.file.Close()
	t.file = nil
	if flushErr != nil {
		return fmt.Errorf("flush %s: %w", t.path, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", t.path, closeErr)
	}
	return nil
}

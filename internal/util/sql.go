package util

import "strings"

// SQLStringLiteral quotes a path for inline use in DuckDB SQL. DuckDB wants
// forward slashes even on Windows.
func SQLStringLiteral(path string) string {
	p := strings.ReplaceAll(path, `\`, `/`)
	return "'" + strings.ReplaceAll(p, "'", "''") + "'"
}

// QuoteIdentifier quotes a table or column name.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

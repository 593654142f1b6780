// =============================================================================
// NF-e to XLSX Converter - Shared Types
// =============================================================================
//
// This package contains shared types used across multiple modules to avoid
// import cycles. Types defined here are used by:
//   - converter
//   - tabular / taxcalc
//   - xlsxwriter
//   - validation
//
// =============================================================================

package types

import (
	"sort"
	"strings"
)

// =============================================================================
// OUTPUT MODES
// =============================================================================

// Mode selects which spreadsheet a conversion run produces.
type Mode string

const (
	// ModeCalculation writes one row per invoice line item with the derived
	// ST/IPI columns.
	ModeCalculation Mode = "calculo"

	// ModeFiltered writes only the columns whose tags the user picked from the
	// line-oriented view of each document.
	ModeFiltered Mode = "filtrado"

	// ModeRaw writes every leaf tag of the best repeating group.
	ModeRaw Mode = "bruto"
)

// ParseMode maps a user-supplied mode name to a Mode.
// English aliases are accepted next to the Portuguese names.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "calculo", "calculos", "calc", "calculation":
		return ModeCalculation, true
	case "filtrado", "filtered", "powerquery", "power-query", "selecao":
		return ModeFiltered, true
	case "bruto", "raw", "xml":
		return ModeRaw, true
	default:
		return "", false
	}
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// Input is one file handed to a conversion run.
type Input struct {
	// Path is the location of the file on disk.
	Path string

	// Name is the display name (usually the original file name).
	Name string
}

// Document is an input that was resolved to a readable XML file.
type Document struct {
	// XMLPath is the XML file to read. For PDF/TXT sources this is a scratch
	// file owned by the run.
	XMLPath string

	// Name is the display name of the original input.
	Name string

	// SourcePath is the original input path. Selections are keyed by it.
	SourcePath string
}

// SelectionSet holds zero-based line indices picked from the line-oriented
// view of one document.
type SelectionSet map[int]struct{}

// NewSelectionSet builds a set from a list of indices.
func NewSelectionSet(indices ...int) SelectionSet {
	s := make(SelectionSet, len(indices))
	for _, i := range indices {
		s[i] = struct{}{}
	}
	return s
}

// Sorted returns the indices in ascending order.
func (s SelectionSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for i := range s {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// =============================================================================
// ROWS
// =============================================================================

// Row is an ordered mapping from column name to a scalar value.
//
// Column names are compared case-insensitively. The spelling of a column is
// the one seen first; later writes to the same column keep that spelling.
// Values are string, bool, decimal.Decimal, float64 or nil.
type Row struct {
	keys   []string
	values []any
	index  map[string]int
}

// NewRow creates an empty row.
func NewRow() *Row {
	return &Row{index: make(map[string]int)}
}

// Set stores a value under key, appending the column if it is new.
func (r *Row) Set(key string, value any) {
	fold := strings.ToUpper(key)
	if i, ok := r.index[fold]; ok {
		r.values[i] = value
		return
	}
	r.index[fold] = len(r.keys)
	r.keys = append(r.keys, key)
	r.values = append(r.values, value)
}

// Get returns the value stored under key.
func (r *Row) Get(key string) (any, bool) {
	i, ok := r.index[strings.ToUpper(key)]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// GetString returns the value under key when it is a string.
func (r *Row) GetString(key string) (string, bool) {
	v, ok := r.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Has reports whether the row contains key.
func (r *Row) Has(key string) bool {
	_, ok := r.index[strings.ToUpper(key)]
	return ok
}

// Keys returns the column names in insertion order.
func (r *Row) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of columns.
func (r *Row) Len() int {
	return len(r.keys)
}

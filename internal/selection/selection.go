// =============================================================================
// NF-e to XLSX Converter - Line Selection Parser
// =============================================================================
//
// In filtered mode the user picks lines from the line-oriented view of each
// document (see the `lines` command, which prints zero-based indices). This
// module reads those picks from the command line or from a CSV file.
//
// SELECTION FILE FORMAT:
//
//   | Column A        | Column B   |
//   |-----------------|------------|
//   | file            | line       |   <- optional header row
//   | nota1.xml       | 12         |
//   | nota1.xml       | 14-16      |
//   | C:\in\nota2.pdf | 3          |
//
//   - The delimiter is ',' or ';' (detected from the first line).
//   - Column B accepts the same syntax as --lines: "3,5,10-12".
//   - A file matches an input by full path or by base name, ignoring case.
//
// =============================================================================

package selection

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/types"
)

// =============================================================================
// SELECTION TABLE
// =============================================================================

// Table holds the selections read from a selection file, per file.
type Table struct {
	// SourceFile is the path of the selection file.
	SourceFile string

	byPath map[string]types.SelectionSet
	byBase map[string]types.SelectionSet
}

// NewTable creates an empty selection table.
func NewTable() *Table {
	return &Table{
		byPath: make(map[string]types.SelectionSet),
		byBase: make(map[string]types.SelectionSet),
	}
}

// Add records indices for file.
func (t *Table) Add(file string, indices types.SelectionSet) {
	merge(t.byPath, pathKey(file), indices)
	merge(t.byBase, baseKey(file), indices)
}

func merge(m map[string]types.SelectionSet, key string, indices types.SelectionSet) {
	set, ok := m[key]
	if !ok {
		set = make(types.SelectionSet)
		m[key] = set
	}
	for i := range indices {
		set[i] = struct{}{}
	}
}

// For returns the selection recorded for path. A full-path entry wins over
// a base-name entry.
func (t *Table) For(path string) (types.SelectionSet, bool) {
	if t == nil {
		return nil, false
	}
	if s, ok := t.byPath[pathKey(path)]; ok {
		return s, true
	}
	s, ok := t.byBase[baseKey(path)]
	return s, ok
}

// Len returns the number of distinct files in the table.
func (t *Table) Len() int {
	return len(t.byPath)
}

func pathKey(p string) string {
	return strings.ToLower(filepath.Clean(p))
}

func baseKey(p string) string {
	return strings.ToLower(filepath.Base(p))
}

// =============================================================================
// PARSING
// =============================================================================

// ParseFile reads a selection file.
func ParseFile(filePath string) (*Table, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open selection file: %w", err)
	}
	defer file.Close()

	table, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	table.SourceFile = filePath
	return table, nil
}

// Parse reads selection rows from r.
func Parse(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)

	delimiter, err := detectDelimiter(br)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(br)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	table := NewTable()
	rowNumber := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read selection row: %w", err)
		}
		rowNumber++

		if isRowEmpty(record) {
			continue
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("row %d: expected file and line columns", rowNumber)
		}

		file := strings.TrimSpace(record[0])
		spec := strings.TrimSpace(strings.Join(record[1:], ","))

		indices, err := ParseLineSpec(spec)
		if err != nil {
			if rowNumber == 1 {
				continue // header
			}
			return nil, fmt.Errorf("row %d: %w", rowNumber, err)
		}
		if file == "" {
			return nil, fmt.Errorf("row %d: empty file name", rowNumber)
		}

		table.Add(file, indices)
	}

	return table, nil
}

// detectDelimiter peeks at the first line and picks ';' when it has a
// semicolon but no comma.
func detectDelimiter(br *bufio.Reader) (rune, error) {
	peek, err := br.Peek(br.Size())
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return 0, fmt.Errorf("failed to read selection file: %w", err)
	}

	first := string(peek)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}

	if strings.Contains(first, ";") && !strings.Contains(first, ",") {
		return ';', nil
	}
	return ',', nil
}

func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// LINE SPECS
// =============================================================================

// MaxLineIndex is the highest line index a selection can hold. Ranges are
// clipped to it and larger single indices are dropped, like any other index
// past the end of a document.
const MaxLineIndex = 100000

// ParseLineSpec parses "3,5,10-12" into zero-based line indices. Ranges are
// inclusive. Blank parts are ignored.
func ParseLineSpec(spec string) (types.SelectionSet, error) {
	set := make(types.SelectionSet)
	parts := 0

	for _, part := range strings.FieldsFunc(spec, func(r rune) bool { return r == ',' || r == ';' || r == ' ' }) {
		lo, hi, err := parseRange(part)
		if err != nil {
			return nil, err
		}
		parts++
		hi = min(hi, MaxLineIndex)
		for i := lo; i <= hi; i++ {
			set[i] = struct{}{}
		}
	}

	if parts == 0 {
		return nil, fmt.Errorf("no line indices in %q", spec)
	}
	return set, nil
}

func parseRange(part string) (int, int, error) {
	if from, to, ok := strings.Cut(part, "-"); ok {
		lo, err := parseIndex(from)
		if err != nil {
			return 0, 0, err
		}
		hi, err := parseIndex(to)
		if err != nil {
			return 0, 0, err
		}
		if hi < lo {
			return 0, 0, fmt.Errorf("invalid range %q", part)
		}
		return lo, hi, nil
	}

	i, err := parseIndex(part)
	return i, i, err
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid line index %q", s)
	}
	return i, nil
}

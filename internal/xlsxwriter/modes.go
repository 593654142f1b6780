package xlsxwriter

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/loader"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/tabular"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/taxcalc"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/types"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/xmldoc"
)

// Sheet-name suffixes per mode.
const (
	FilteredSuffix = "_FILTRADO"
	RawSuffix      = "_RAW"
)

// Placeholder messages written into A1 when a sheet cannot be filled.
const (
	NoItemsMessage       = "Não encontrei itens <det> nesse XML."
	NoSelectionMessage   = "Nenhuma linha selecionada."
	NoTagValueMessage    = "Não foi possível extrair TAG/VALOR deste XML."
	NoRepeatGroupMessage = "Não encontrei itens repetidos (produtos) nesse XML."
)

// openTagPattern finds the first opening tag of a line. Close tags and
// processing instructions cannot match: the name must start with a letter
// or underscore.
var openTagPattern = regexp.MustCompile(`<\s*([A-Za-z_][A-Za-z0-9_:\-.]*)\b`)

// =============================================================================
// CALCULATION MODE
// =============================================================================

// WriteCalculation writes one sheet per document with the fifteen tax
// columns of every line item.
func WriteCalculation(docs []types.Document, dest string, opts WriteOptions) (*Report, error) {
	return build(dest, opts, func(wb *workbook) ([]SheetReport, error) {
		var reports []SheetReport
		for _, doc := range docs {
			report, err := wb.writeCalculationSheet(doc)
			if err != nil {
				return nil, err
			}
			reports = append(reports, report)
		}
		return reports, nil
	})
}

func (wb *workbook) writeCalculationSheet(doc types.Document) (SheetReport, error) {
	s, err := wb.addSheet(stem(doc.Name), wb.opts.MaxColumnWidth)
	if err != nil {
		return SheetReport{}, err
	}
	report := SheetReport{Document: doc.Name, Sheet: s.name}

	items, err := taxcalc.ComputeFile(doc.XMLPath)
	if err != nil || len(items) == 0 {
		report.Err = wb.noRows(doc, s.name, err)
		return report, s.placeholder(NoItemsMessage, true)
	}

	rows := taxcalc.Rows(items)
	columns := rows[0].Keys()

	if err := s.header(columns); err != nil {
		return report, err
	}
	for r, row := range rows {
		for c, col := range columns {
			v, _ := row.Get(col)
			if err := s.value(c+1, r+2, v, false); err != nil {
				return report, err
			}
		}
	}

	report.Rows = len(rows)
	return report, s.finish()
}

// =============================================================================
// RAW GROUP MODE
// =============================================================================

// WriteRawGroup writes one sheet per document with every leaf tag of its
// best repeating group. Documents without a repeating group get a two-row
// tag/value dump instead.
func WriteRawGroup(docs []types.Document, dest string, opts WriteOptions) (*Report, error) {
	return build(dest, opts, func(wb *workbook) ([]SheetReport, error) {
		var reports []SheetReport
		for _, doc := range docs {
			report, err := wb.writeRawSheet(doc)
			if err != nil {
				return nil, err
			}
			reports = append(reports, report)
		}
		return reports, nil
	})
}

func (wb *workbook) writeRawSheet(doc types.Document) (SheetReport, error) {
	s, err := wb.addSheet(stem(doc.Name)+RawSuffix, wb.opts.MaxColumnWidth)
	if err != nil {
		return SheetReport{}, err
	}
	report := SheetReport{Document: doc.Name, Sheet: s.name}

	parsed, err := xmldoc.Load(doc.XMLPath)
	if err != nil {
		report.Err = wb.noRows(doc, s.name, err)
		return report, s.placeholder(NoTagValueMessage, true)
	}

	table, ok := tabular.ExtractGroupTable(parsed)
	if !ok {
		pairs := tabular.FlattenSingleRecord(parsed)
		if len(pairs) == 0 {
			report.Err = wb.noRows(doc, s.name, nil)
			return report, s.placeholder(NoTagValueMessage, true)
		}

		s.maxWidth = wb.opts.RawDumpMaxColumnWidth
		for i, kv := range pairs {
			if err := s.set(i+1, 1, kv.Key, wb.boldStyle); err != nil {
				return report, err
			}
			if err := s.value(i+1, 2, kv.Value, true); err != nil {
				return report, err
			}
		}
		report.Rows = 1
		report.Fallback = true
		return report, s.finish()
	}

	if len(table.Rows) == 0 || len(table.Columns) == 0 {
		report.Err = wb.noRows(doc, s.name, nil)
		return report, s.placeholder(NoRepeatGroupMessage, true)
	}

	if err := wb.writeTable(s, table, table.Columns); err != nil {
		return report, err
	}
	report.Rows = len(table.Rows)
	return report, s.finish()
}

// =============================================================================
// FILTERED MODE
// =============================================================================

// WriteFiltered writes one sheet per document holding only the columns named
// by the lines the user selected. selections is keyed by
// types.Document.SourcePath.
func WriteFiltered(docs []types.Document, dest string, selections map[string]types.SelectionSet, opts WriteOptions) (*Report, error) {
	return build(dest, opts, func(wb *workbook) ([]SheetReport, error) {
		var reports []SheetReport
		for _, doc := range docs {
			report, err := wb.writeFilteredSheet(doc, selections[doc.SourcePath])
			if err != nil {
				return nil, err
			}
			reports = append(reports, report)
		}
		return reports, nil
	})
}

func (wb *workbook) writeFilteredSheet(doc types.Document, selected types.SelectionSet) (SheetReport, error) {
	s, err := wb.addSheet(stem(doc.Name)+FilteredSuffix, wb.opts.MaxColumnWidth)
	if err != nil {
		return SheetReport{}, err
	}
	report := SheetReport{Document: doc.Name, Sheet: s.name}

	picked := SelectLines(loader.ToLines(doc.XMLPath), selected)
	if len(picked) == 0 {
		report.Err = wb.noRows(doc, s.name, nil)
		return report, s.placeholder(NoSelectionMessage, false)
	}

	columns := DesiredColumns(picked)
	if len(columns) == 0 {
		report.Rows, report.Fallback = 1, true
		return report, wb.writeLineDump(s, picked)
	}

	parsed, err := xmldoc.Load(doc.XMLPath)
	if err != nil {
		report.Rows, report.Fallback = 1, true
		return report, wb.writeLineDump(s, picked)
	}
	table, ok := tabular.ExtractGroupTable(parsed)
	if !ok {
		report.Rows, report.Fallback = 1, true
		return report, wb.writeLineDump(s, picked)
	}

	if err := wb.writeTable(s, table, columns); err != nil {
		return report, err
	}
	report.Rows = len(table.Rows)
	return report, s.finish()
}

// writeLineDump writes one column per selected line: "Linha N" over the
// verbatim line.
func (wb *workbook) writeLineDump(s *sheet, lines []string) error {
	for i, line := range lines {
		if err := s.set(i+1, 1, fmt.Sprintf("Linha %d", i+1), wb.boldStyle); err != nil {
			return err
		}
		if err := s.value(i+1, 2, line, true); err != nil {
			return err
		}
	}
	return s.finish()
}

// SelectLines returns the selected lines in ascending index order.
// Indices outside lines are ignored.
func SelectLines(lines []string, selected types.SelectionSet) []string {
	var out []string
	for _, idx := range selected.Sorted() {
		if idx >= 0 && idx < len(lines) {
			out = append(out, lines[idx])
		}
	}
	return out
}

// DesiredColumns takes the first opening tag of each line, drops its
// namespace prefix and removes case-insensitive duplicates, keeping the
// first spelling.
func DesiredColumns(lines []string) []string {
	var cols []string
	seen := make(map[string]bool)

	for _, l := range lines {
		line := strings.TrimSpace(l)
		if line == "" {
			continue
		}

		m := openTagPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		tag := m[1]
		if i := strings.LastIndexByte(tag, ':'); i >= 0 {
			tag = tag[i+1:]
		}
		if strings.TrimSpace(tag) == "" {
			continue
		}

		key := strings.ToUpper(tag)
		if !seen[key] {
			seen[key] = true
			cols = append(cols, tag)
		}
	}

	return cols
}

// =============================================================================
// SHARED
// =============================================================================

// writeTable writes the header and one row per table row, projecting the
// given columns. Missing or blank values become the placeholder text.
func (wb *workbook) writeTable(s *sheet, table *tabular.Table, columns []string) error {
	if err := s.header(columns); err != nil {
		return err
	}

	for r, row := range table.Rows {
		for c, col := range columns {
			v, ok := row.GetString(col)
			if !ok || strings.TrimSpace(v) == "" {
				v = wb.opts.MissingPlaceholder
			}
			if err := s.value(c+1, r+2, v, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// noRows logs a placeholder sheet and returns the error recorded for it.
func (wb *workbook) noRows(doc types.Document, sheetName string, cause error) error {
	fields := []zap.Field{
		zap.String("file", doc.Name),
		zap.String("sheet", sheetName),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
		wb.opts.Logger.Warn("sheet written with placeholder", fields...)
		return fmt.Errorf("%w: %v", types.ErrNoRowsExtracted, cause)
	}
	wb.opts.Logger.Warn("sheet written with placeholder", fields...)
	return types.ErrNoRowsExtracted
}

// stem is the file name without directory and extension.
func stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// =============================================================================
// NF-e to XLSX Converter - Spreadsheet Writer
// =============================================================================
//
// This module writes the output workbook with excelize. Every input document
// gets one worksheet, in input order. Three procedures share the layout rules
// implemented here:
//
//   - header row in bold, frozen below row 1
//   - column widths fitted to content, capped (120, or 80 for the
//     single-record tag/value dump)
//   - numbers right-aligned with two decimals
//   - long text wrapped
//
// SAVING:
//   The destination directory is probed before any document is read: a
//   temporary file is created next to the destination. If that fails the
//   run stops with ErrWriteFailure. The workbook is written to the
//   temporary file and renamed over the destination at the end, so a failed
//   run never leaves a partial workbook behind.
//
// =============================================================================

package xlsxwriter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/types"
)

// =============================================================================
// WRITE OPTIONS
// =============================================================================

// WriteOptions contains options shared by the three write procedures.
type WriteOptions struct {
	// MaxColumnWidth caps fitted column widths.
	// Default: 120
	MaxColumnWidth float64

	// RawDumpMaxColumnWidth caps widths of the single-record tag/value dump.
	// Default: 80
	RawDumpMaxColumnWidth float64

	// MissingPlaceholder fills cells of columns a row does not have.
	// Default: "não possui"
	MissingPlaceholder string

	// Logger receives per-sheet diagnostics. Default: no-op.
	Logger *zap.Logger
}

// DefaultWriteOptions returns the default write options.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{
		MaxColumnWidth:        120,
		RawDumpMaxColumnWidth: 80,
		MissingPlaceholder:    "não possui",
		Logger:                zap.NewNop(),
	}
}

func (o WriteOptions) withDefaults() WriteOptions {
	def := DefaultWriteOptions()
	if o.MaxColumnWidth <= 0 {
		o.MaxColumnWidth = def.MaxColumnWidth
	}
	if o.RawDumpMaxColumnWidth <= 0 {
		o.RawDumpMaxColumnWidth = def.RawDumpMaxColumnWidth
	}
	if o.MissingPlaceholder == "" {
		o.MissingPlaceholder = def.MissingPlaceholder
	}
	if o.Logger == nil {
		o.Logger = def.Logger
	}
	return o
}

// =============================================================================
// REPORT
// =============================================================================

// SheetReport describes the worksheet written for one document.
type SheetReport struct {
	// Document is the display name of the input.
	Document string

	// Sheet is the worksheet name.
	Sheet string

	// Rows is the number of data rows written below the header.
	Rows int

	// Fallback is set when a simpler layout replaced the table.
	Fallback bool

	// Err wraps types.ErrNoRowsExtracted when the sheet holds a placeholder.
	Err error
}

// Report is the outcome of one write procedure.
type Report struct {
	// Destination is the path of the saved workbook.
	Destination string

	// Sheets lists one entry per document, in input order.
	Sheets []SheetReport
}

// Placeholders returns the reports of sheets that hold a placeholder.
func (r *Report) Placeholders() []SheetReport {
	var out []SheetReport
	for _, s := range r.Sheets {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// =============================================================================
// WORKBOOK
// =============================================================================

// workbook wraps an excelize file with the shared styles and the sheet-name
// registry.
type workbook struct {
	file   *excelize.File
	names  *SheetNamer
	opts   WriteOptions
	sheets int

	boldStyle   int
	numberStyle int
	wrapStyle   int
}

// build creates the workbook, lets fill add the sheets, and saves the result
// to dest through a temporary file.
func build(dest string, opts WriteOptions, fill func(wb *workbook) ([]SheetReport, error)) (*Report, error) {
	opts = opts.withDefaults()

	tmp, err := reserve(dest)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	wb, err := newWorkbook(opts)
	if err != nil {
		return nil, err
	}
	defer wb.file.Close()

	sheets, err := fill(wb)
	if err != nil {
		return nil, err
	}

	if wb.sheets == 0 {
		return nil, fmt.Errorf("%w: no worksheet to save", types.ErrWriteFailure)
	}
	wb.file.SetActiveSheet(0)

	if _, err := wb.file.WriteTo(tmp); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrWriteFailure, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrWriteFailure, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrWriteFailure, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrWriteFailure, err)
	}
	committed = true

	opts.Logger.Info("workbook saved",
		zap.String("path", dest),
		zap.Int("sheets", len(sheets)))

	return &Report{Destination: dest, Sheets: sheets}, nil
}

// reserve creates the temporary file the workbook is written to.
func reserve(dest string) (*os.File, error) {
	if strings.TrimSpace(dest) == "" {
		return nil, fmt.Errorf("%w: empty destination path", types.ErrWriteFailure)
	}

	dir := filepath.Dir(dest)
	base := strings.TrimSuffix(filepath.Base(dest), filepath.Ext(dest))

	tmp, err := os.CreateTemp(dir, "."+base+"-*.xlsx")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrWriteFailure, err)
	}
	return tmp, nil
}

func newWorkbook(opts WriteOptions) (*workbook, error) {
	f := excelize.NewFile()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	number, err := f.NewStyle(&excelize.Style{
		NumFmt:    2, // 0.00
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create number style: %w", err)
	}

	wrap, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create wrap style: %w", err)
	}

	return &workbook{
		file:        f,
		names:       NewSheetNamer(),
		opts:        opts,
		boldStyle:   bold,
		numberStyle: number,
		wrapStyle:   wrap,
	}, nil
}

// addSheet creates a worksheet named after base. The first sheet reuses the
// default sheet of a new file.
func (wb *workbook) addSheet(base string, maxWidth float64) (*sheet, error) {
	name := wb.names.Next(base)

	if wb.sheets == 0 {
		if err := wb.file.SetSheetName(wb.file.GetSheetName(0), name); err != nil {
			return nil, fmt.Errorf("failed to name sheet %q: %w", name, err)
		}
	} else if _, err := wb.file.NewSheet(name); err != nil {
		return nil, fmt.Errorf("failed to add sheet %q: %w", name, err)
	}
	wb.sheets++

	return &sheet{wb: wb, name: name, maxWidth: maxWidth, widths: make(map[int]int)}, nil
}

// =============================================================================
// SHEET
// =============================================================================

// sheet writes cells into one worksheet and tracks the widest text of each
// column for the final fit.
type sheet struct {
	wb       *workbook
	name     string
	maxWidth float64
	widths   map[int]int
}

// header writes bold column titles into row 1.
func (s *sheet) header(columns []string) error {
	for i, title := range columns {
		if err := s.set(i+1, 1, title, s.wb.boldStyle); err != nil {
			return err
		}
	}
	return nil
}

// placeholder writes a single bold message into A1.
func (s *sheet) placeholder(message string, bold bool) error {
	style := 0
	if bold {
		style = s.wb.boldStyle
	}
	return s.set(1, 1, message, style)
}

// value writes a data cell. Numbers get the number style, strings the wrap
// style when wrap is set.
func (s *sheet) value(col, row int, v any, wrap bool) error {
	style := 0
	if isNumeric(v) {
		style = s.wb.numberStyle
	} else if wrap {
		style = s.wb.wrapStyle
	}
	return s.set(col, row, v, style)
}

func (s *sheet) set(col, row int, v any, style int) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}

	v = cellValue(v)
	if err := s.wb.file.SetCellValue(s.name, cell, v); err != nil {
		return fmt.Errorf("failed to write %s!%s: %w", s.name, cell, err)
	}
	if style != 0 {
		if err := s.wb.file.SetCellStyle(s.name, cell, cell, style); err != nil {
			return fmt.Errorf("failed to style %s!%s: %w", s.name, cell, err)
		}
	}

	if w := displayWidth(v); w > s.widths[col] {
		s.widths[col] = w
	}
	return nil
}

// finish freezes the header row and fits column widths.
func (s *sheet) finish() error {
	err := s.wb.file.SetPanes(s.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
		Selection: []excelize.Selection{
			{SQRef: "A2", ActiveCell: "A2", Pane: "bottomLeft"},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to freeze header of %s: %w", s.name, err)
	}

	return s.fitColumns()
}

// fitColumns sets each used column to its widest text plus padding, capped.
func (s *sheet) fitColumns() error {
	for col, chars := range s.widths {
		width := float64(chars) + 2
		if width > s.maxWidth {
			width = s.maxWidth
		}

		name, err := excelize.ColumnNumberToName(col)
		if err != nil {
			return err
		}
		if err := s.wb.file.SetColWidth(s.name, name, name, width); err != nil {
			return fmt.Errorf("failed to size column %s of %s: %w", name, s.name, err)
		}
	}
	return nil
}

// =============================================================================
// CELL VALUES
// =============================================================================

// cellValue converts row values to types excelize writes natively.
func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case decimal.Decimal:
		return t.InexactFloat64()
	default:
		return v
	}
}

func isNumeric(v any) bool {
	switch v.(type) {
	case decimal.Decimal, float32, float64,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

// displayWidth is the length in characters of the longest line of v.
func displayWidth(v any) int {
	var text string
	switch t := v.(type) {
	case string:
		text = t
	case float64:
		text = decimal.NewFromFloat(t).StringFixed(2)
	default:
		text = fmt.Sprint(t)
	}

	widest := 0
	for _, line := range strings.Split(text, "\n") {
		if n := utf8.RuneCountInString(line); n > widest {
			widest = n
		}
	}
	return widest
}

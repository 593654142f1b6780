// =============================================================================
// NF-e to XLSX Converter - Converter Module
// =============================================================================
//
// This module contains the conversion run orchestration. It takes the inputs
// chosen by the caller through every stage up to the saved workbook.
//
// CONVERSION PIPELINE:
//   1. Check every input (exists, supported extension)
//   2. Resolve PDF/TXT inputs to a scratch XML file via the text extractor
//   3. Calculation mode only: apply the NF-e admission filter
//   4. Ask the caller whether to continue when some inputs were rejected
//   5. Filtered mode only: ask the caller for each document's line selection
//   6. Write one worksheet per accepted document
//   7. Remove every scratch file, success or failure
//
// CONCURRENCY:
//   A run is sequential. Inputs are processed in the order given, which is
//   also the worksheet order. The context is checked between inputs; once
//   writing starts the run completes or fails as a whole.
//
// =============================================================================

package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/config"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/loader"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/pdftext"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/types"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/validation"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/xlsxwriter"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/xmldoc"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/xmltext"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/pkg/utils"
)

// =============================================================================
// OPTIONS
// =============================================================================

// PageTextExtractor returns the concatenated page text of a PDF file.
type PageTextExtractor interface {
	PageText(path string) (string, error)
}

// Options configures a conversion run.
type Options struct {
	// MaxFiles caps the number of inputs per run. Zero or less means no cap.
	// Default: 10
	MaxFiles int

	// ScratchDir receives the XML extracted from PDF/TXT inputs.
	// Default: "" (OS temporary directory)
	ScratchDir string

	// Admission configures the calculation-mode filter.
	Admission validation.AdmissionOptions

	// Write configures the spreadsheet writer.
	Write xlsxwriter.WriteOptions

	// PDF reads page text from real PDF inputs.
	// Default: pdftext.New()
	PDF PageTextExtractor

	// Logger receives run events. Nil means no logging.
	Logger *zap.Logger
}

// DefaultOptions returns the default run options.
func DefaultOptions() Options {
	return Options{
		MaxFiles:  10,
		Admission: validation.DefaultAdmissionOptions(),
		Write:     xlsxwriter.DefaultWriteOptions(),
		PDF:       pdftext.New(),
	}
}

// OptionsFromConfig builds run options from the main configuration.
func OptionsFromConfig(cfg *config.MainConfig, logger *zap.Logger) Options {
	opts := DefaultOptions()
	opts.MaxFiles = cfg.MaxFiles
	opts.ScratchDir = cfg.ScratchDir
	opts.Admission = validation.AdmissionOptions{
		ScanLimit: cfg.AdmissionScanLimit,
		Namespace: cfg.NFeNamespace,
	}
	opts.Write = xlsxwriter.WriteOptions{
		MaxColumnWidth:        cfg.MaxColumnWidth,
		RawDumpMaxColumnWidth: cfg.RawDumpMaxColumnWidth,
		MissingPlaceholder:    cfg.MissingPlaceholder,
	}
	opts.Logger = logger
	return opts
}

func (o Options) withDefaults() Options {
	if o.PDF == nil {
		o.PDF = pdftext.New()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	o.Write.Logger = o.Logger
	return o
}

// =============================================================================
// BATCH
// =============================================================================

// Batch is the outcome of resolving and checking a run's inputs. Every input
// ends up in exactly one of Documents or Rejected.
type Batch struct {
	// Documents are the accepted inputs, in input order.
	Documents []types.Document

	// Rejected are the per-file rejections, in input order.
	Rejected []*validation.InputError

	scratch *utils.ScratchManager
}

// Names returns the display names of the accepted documents.
func (b *Batch) Names() []string {
	names := make([]string, len(b.Documents))
	for i, doc := range b.Documents {
		names[i] = doc.Name
	}
	return names
}

// RejectionLines returns the rejections as "name: reason", without duplicates.
func (b *Batch) RejectionLines() []string {
	return validation.Lines(b.Rejected)
}

// Cleanup removes the scratch files created for the batch.
func (b *Batch) Cleanup() error {
	if b == nil || b.scratch == nil {
		return nil
	}
	return b.scratch.Cleanup()
}

// Prepare checks every input and resolves it to an XML file.
//
// PARAMETERS:
//   - ctx: Checked before each input.
//   - inputs: The files chosen by the caller.
//   - mode: The output mode; calculation mode adds the admission filter.
//   - opts: Run options.
//
// RETURNS:
//   - The batch. The caller must call Cleanup, also when an error is returned.
//   - ErrTooManyFiles, ErrCancelled or ErrWriteFailure for run-level failures.
func Prepare(ctx context.Context, inputs []types.Input, mode types.Mode, opts Options) (*Batch, error) {
	opts = opts.withDefaults()
	batch := &Batch{scratch: utils.NewScratchManager(opts.ScratchDir)}

	if opts.MaxFiles > 0 && len(inputs) > opts.MaxFiles {
		return batch, fmt.Errorf("%w: %d given, at most %d allowed", types.ErrTooManyFiles, len(inputs), opts.MaxFiles)
	}

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return batch, fmt.Errorf("%w: %v", types.ErrCancelled, err)
		}

		doc, err := batch.resolve(in, opts)
		if err == nil && mode == types.ModeCalculation {
			err = validation.Admit(doc.XMLPath, doc.Name, opts.Admission)
		}

		var ie *validation.InputError
		switch {
		case err == nil:
			batch.Documents = append(batch.Documents, doc)
			opts.Logger.Debug("input accepted", zap.String("file", in.Name), zap.String("xml", doc.XMLPath))
		case errors.As(err, &ie):
			batch.Rejected = append(batch.Rejected, ie)
			opts.Logger.Warn("input rejected",
				zap.String("file", ie.File),
				zap.String("reason", ie.Reason()),
				zap.String("detail", ie.Detail))
		default:
			return batch, err
		}
	}

	return batch, nil
}

// resolve maps an input to the XML file that represents it.
func (b *Batch) resolve(in types.Input, opts Options) (types.Document, error) {
	doc := types.Document{Name: in.Name, SourcePath: in.Path}

	ext, err := validation.CheckInput(in.Path, in.Name)
	if err != nil {
		return doc, err
	}

	if ext == ".xml" {
		doc.XMLPath = in.Path
		return doc, nil
	}

	content, err := os.ReadFile(in.Path)
	if err != nil {
		return doc, validation.NewInputError(in.Name, types.ErrNoXMLFound, err.Error())
	}

	var text string
	if xmltext.LooksLikePDF(content) {
		text, err = opts.PDF.PageText(in.Path)
		if err != nil {
			return doc, validation.NewInputError(in.Name, types.ErrNoXMLFound, err.Error())
		}
	} else {
		text = xmldoc.DecodeText(content)
	}

	fragment, err := xmltext.Extract(text)
	if err != nil {
		return doc, validation.NewInputError(in.Name, types.ErrNoXMLFound, "")
	}

	path, err := b.scratch.WriteXML(xmltext.NormalizeDeclaration(fragment))
	if err != nil {
		return doc, fmt.Errorf("%w: %v", types.ErrWriteFailure, err)
	}

	doc.XMLPath = path
	return doc, nil
}

// =============================================================================
// RUN
// =============================================================================

// ConfirmFunc is asked whether to continue with the valid inputs only.
// invalid holds "name: reason" lines; valid holds display names.
type ConfirmFunc func(invalid, valid []string) bool

// SelectFunc returns the lines picked for doc from its line view. Returning
// false cancels the run.
type SelectFunc func(doc types.Document, lines []string) (types.SelectionSet, bool)

// Request describes one conversion run.
type Request struct {
	Inputs      []types.Input
	Mode        types.Mode
	Destination string

	// Confirm is only called when some inputs were rejected and at least one
	// was accepted. Nil declines.
	Confirm ConfirmFunc

	// Select is required in filtered mode.
	Select SelectFunc
}

// Result is the outcome of a run.
type Result struct {
	Mode      types.Mode
	Accepted  []types.Document
	Rejected  []*validation.InputError
	Report    *xlsxwriter.Report
	StartTime time.Time
	EndTime   time.Time
}

// Run executes a conversion run. The returned Result is never nil, so the
// caller can report rejections even when the run fails.
//
// ERRORS:
//   - types.ErrNoValidInput: every input was rejected; no workbook is written.
//   - types.ErrCancelled: the caller declined to continue, cancelled a
//     selection, or ctx was cancelled before writing.
//   - types.ErrWriteFailure: the workbook could not be written.
func Run(ctx context.Context, req Request, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	result := &Result{Mode: req.Mode, StartTime: time.Now()}
	defer func() { result.EndTime = time.Now() }()

	mode, ok := types.ParseMode(string(req.Mode))
	if !ok {
		return result, fmt.Errorf("unknown mode %q", req.Mode)
	}
	req.Mode, result.Mode = mode, mode
	log := opts.Logger.With(zap.String("mode", string(mode)))

	batch, err := Prepare(ctx, req.Inputs, req.Mode, opts)
	defer func() {
		if err := batch.Cleanup(); err != nil {
			log.Warn("failed to remove scratch files", zap.Error(err))
		}
	}()
	result.Rejected = batch.Rejected
	if err != nil {
		return result, err
	}

	if len(batch.Documents) == 0 {
		log.Warn("no valid input", zap.Int("rejected", len(batch.Rejected)))
		return result, types.ErrNoValidInput
	}

	if len(batch.Rejected) > 0 {
		if req.Confirm == nil || !req.Confirm(batch.RejectionLines(), batch.Names()) {
			log.Info("run declined by caller")
			return result, types.ErrCancelled
		}
	}

	var selections map[string]types.SelectionSet
	if req.Mode == types.ModeFiltered {
		selections, err = collectSelections(ctx, batch.Documents, req.Select)
		if err != nil {
			return result, err
		}
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("%w: %v", types.ErrCancelled, err)
	}

	result.Accepted = batch.Documents

	var report *xlsxwriter.Report
	switch req.Mode {
	case types.ModeCalculation:
		report, err = xlsxwriter.WriteCalculation(batch.Documents, req.Destination, opts.Write)
	case types.ModeFiltered:
		report, err = xlsxwriter.WriteFiltered(batch.Documents, req.Destination, selections, opts.Write)
	case types.ModeRaw:
		report, err = xlsxwriter.WriteRawGroup(batch.Documents, req.Destination, opts.Write)
	}
	if err != nil {
		return result, err
	}
	result.Report = report

	log.Info("conversion complete",
		zap.String("workbook", report.Destination),
		zap.Int("sheets", len(report.Sheets)),
		zap.Int("rejected", len(batch.Rejected)))

	return result, nil
}

// collectSelections asks for the selection of every document, keyed by
// source path.
func collectSelections(ctx context.Context, docs []types.Document, sel SelectFunc) (map[string]types.SelectionSet, error) {
	if sel == nil {
		return nil, fmt.Errorf("%w: no line selection given", types.ErrCancelled)
	}

	selections := make(map[string]types.SelectionSet, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrCancelled, err)
		}

		set, ok := sel(doc, loader.ToLines(doc.XMLPath))
		if !ok {
			return nil, fmt.Errorf("%w: selection cancelled for %s", types.ErrCancelled, doc.Name)
		}
		selections[doc.SourcePath] = set
	}
	return selections, nil
}

// =============================================================================
// REPORTING
// =============================================================================

// Summary converts the result into a run summary for the summary log.
func (r *Result) Summary() utils.ProcessingSummary {
	summary := utils.ProcessingSummary{
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Mode:        string(r.Mode),
		TotalFiles:  len(r.Accepted) + len(r.Rejected),
		FailedFiles: len(r.Rejected),
	}

	if r.Report != nil {
		summary.Workbook = r.Report.Destination
		for _, sheet := range r.Report.Sheets {
			info := utils.ProcessedFileInfo{InputFile: sheet.Document, Sheet: sheet.Sheet, Rows: sheet.Rows}
			switch {
			case sheet.Err != nil:
				info.Note = sheet.Err.Error()
			case sheet.Fallback:
				info.Note = "fallback layout"
			}
			summary.ProcessedFiles = append(summary.ProcessedFiles, info)
			summary.TotalRows += sheet.Rows
		}
		summary.SuccessfulFiles = len(r.Report.Sheets)
	}

	for _, e := range r.Rejected {
		summary.FailedFilesList = append(summary.FailedFilesList, utils.FailedFileInfo{
			InputFile:    e.File,
			ErrorMessage: e.Reason(),
		})
	}

	return summary
}

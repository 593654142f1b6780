// =============================================================================
// NF-e to XLSX Converter - Convert Command
// =============================================================================
//
// This file defines the 'convert' command, which runs one conversion and
// writes one workbook.
//
// COMMAND USAGE:
//   conversor convert FILE|DIR... [flags]
//
// FLAGS:
//   --mode       : calculo (default), filtrado or bruto
//   --out        : Workbook path (default: output_dir/output_name_format)
//   --yes        : Continue with the valid files without asking
//   --selection  : CSV of "file,lines" rows (filtrado mode)
//   --lines      : Line spec applied to files without a --selection row
//   --summary    : Also write a processing summary next to the workbook
//
// PROCESSING PIPELINE:
//   1. Expand directories into their .xml/.pdf/.txt files
//   2. Check and resolve every input (see internal/converter)
//   3. Ask before continuing when some inputs were rejected
//   4. Write the workbook
//   5. Print per-file results and write the optional logs
//
// =============================================================================

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/converter"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/selection"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/types"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/validation"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	modeFlag      string
	outFlag       string
	assumeYes     bool
	selectionFlag string
	linesFlag     string
	writeSummary  bool
)

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	warnMark = color.New(color.FgYellow).SprintFunc()
)

// =============================================================================
// CONVERT COMMAND DEFINITION
// =============================================================================

var convertCmd = &cobra.Command{
	Use:   "convert FILE|DIR...",
	Short: "Convert NF-e files (XML, PDF, TXT) into one XLSX workbook",
	Long: `The convert command writes one worksheet per accepted input into a single
workbook.

Inputs that do not exist, have an unsupported extension, hold no XML, or (in
calculo mode) are not NF-e documents are rejected. When some inputs are
rejected you are asked whether to continue with the valid ones; when all are
rejected no workbook is written.

In filtrado mode each document needs a line selection. Use 'conversor lines'
to see the line numbers, then pass them with --lines or --selection.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&modeFlag, "mode", "m", string(types.ModeCalculation),
		"Output mode: calculo, filtrado or bruto")
	convertCmd.Flags().StringVarP(&outFlag, "out", "o", "",
		"Workbook path (default: output_dir/output_name_format)")
	convertCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false,
		"Continue with the valid files without asking")
	convertCmd.Flags().StringVar(&selectionFlag, "selection", "",
		"CSV file of file,lines rows for filtrado mode")
	convertCmd.Flags().StringVar(&linesFlag, "lines", "",
		`Line indices for filtrado mode, e.g. "3,5,10-12"`)
	convertCmd.Flags().BoolVar(&writeSummary, "summary", false,
		"Write a processing summary next to the workbook")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

func runConvert(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	mode, ok := types.ParseMode(modeFlag)
	if !ok {
		return fmt.Errorf("unknown mode %q (use calculo, filtrado or bruto)", modeFlag)
	}

	paths, err := utils.ExpandInputs(args, validation.SupportedExtensions)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no .xml, .pdf or .txt files in %s", strings.Join(args, ", "))
	}

	inputs := make([]types.Input, len(paths))
	for i, p := range paths {
		inputs[i] = types.Input{Path: p, Name: filepath.Base(p)}
	}

	dest, err := destination(outFlag, mode)
	if err != nil {
		return err
	}

	req := converter.Request{
		Inputs:      inputs,
		Mode:        mode,
		Destination: dest,
		Confirm:     confirmFunc(cmd.InOrStdin(), out, assumeYes),
	}
	if mode == types.ModeFiltered {
		req.Select, err = selector(selectionFlag, linesFlag)
		if err != nil {
			return err
		}
	}

	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, os.Interrupt)
	defer stop()

	fmt.Fprintln(out, "=== NF-e to XLSX Converter ===")
	fmt.Fprintf(out, "Mode: %s, %d file(s)\n", mode, len(inputs))

	result, runErr := converter.Run(ctx, req, converter.OptionsFromConfig(mainConfig, logger))

	printResult(out, result)
	writeLogs(out, result, filepath.Dir(dest))

	switch {
	case errors.Is(runErr, types.ErrNoValidInput):
		return fmt.Errorf("no workbook written: %w", runErr)
	case runErr != nil:
		return runErr
	}

	fmt.Fprintf(out, "\nWorkbook saved: %s\n", result.Report.Destination)
	return nil
}

// destination returns the workbook path: the --out value, or a generated
// name inside output_dir.
func destination(out string, mode types.Mode) (string, error) {
	if out != "" {
		if !strings.EqualFold(filepath.Ext(out), ".xlsx") {
			out += ".xlsx"
		}
		return out, nil
	}

	if err := os.MkdirAll(mainConfig.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", mainConfig.OutputDir, err)
	}
	name := utils.GenerateOutputFileName(mainConfig.OutputNameFormat, map[string]string{"mode": string(mode)})
	return filepath.Join(mainConfig.OutputDir, name), nil
}

// =============================================================================
// CALLER DECISIONS
// =============================================================================

// confirmFunc lists the rejected files and asks whether to go on with the
// valid ones. Anything other than y/yes/s/sim declines.
func confirmFunc(in io.Reader, out io.Writer, assumeYes bool) converter.ConfirmFunc {
	reader := bufio.NewReader(in)

	return func(invalid, valid []string) bool {
		fmt.Fprintf(out, "\n%d file(s) rejected:\n", len(invalid))
		for _, line := range invalid {
			fmt.Fprintf(out, "  %s %s\n", failMark("✗"), line)
		}
		fmt.Fprintf(out, "%d file(s) can be converted: %s\n", len(valid), strings.Join(valid, ", "))

		if assumeYes {
			return true
		}

		fmt.Fprint(out, "Continue with the valid files only? [y/N] ")
		answer, _ := reader.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes", "s", "sim":
			return true
		}
		return false
	}
}

// selector builds the filtered-mode selection source. A per-file row in the
// selection file wins over the --lines spec.
func selector(selectionFile, lineSpec string) (converter.SelectFunc, error) {
	var table *selection.Table
	if selectionFile != "" {
		t, err := selection.ParseFile(selectionFile)
		if err != nil {
			return nil, err
		}
		table = t
	}

	var fallback types.SelectionSet
	if lineSpec != "" {
		s, err := selection.ParseLineSpec(lineSpec)
		if err != nil {
			return nil, fmt.Errorf("--lines: %w", err)
		}
		fallback = s
	}

	if table == nil && fallback == nil {
		return nil, errors.New("filtrado mode needs --lines or --selection")
	}

	return func(doc types.Document, lines []string) (types.SelectionSet, bool) {
		if s, ok := table.For(doc.SourcePath); ok {
			return s, true
		}
		if fallback != nil {
			return fallback, true
		}
		logger.Warn("no line selection for document", zap.String("file", doc.Name))
		return nil, false
	}, nil
}

// =============================================================================
// REPORTING
// =============================================================================

func printResult(out io.Writer, result *converter.Result) {
	if result == nil {
		return
	}

	if result.Report == nil {
		if len(result.Rejected) > 0 && len(result.Accepted) == 0 {
			fmt.Fprintln(out)
			for _, line := range validation.Lines(result.Rejected) {
				fmt.Fprintf(out, "  %s %s\n", failMark("✗"), line)
			}
		}
		return
	}

	fmt.Fprintln(out)
	for _, sheet := range result.Report.Sheets {
		switch {
		case sheet.Err != nil:
			fmt.Fprintf(out, "  %s %s -> %s (empty: %v)\n", warnMark("!"), sheet.Document, sheet.Sheet, sheet.Err)
		default:
			fmt.Fprintf(out, "  %s %s -> %s (%d row(s))\n", okMark("✓"), sheet.Document, sheet.Sheet, sheet.Rows)
		}
	}
	for _, line := range validation.Lines(result.Rejected) {
		fmt.Fprintf(out, "  %s %s\n", failMark("✗"), line)
	}

	elapsed := result.EndTime.Sub(result.StartTime)
	fmt.Fprintln(out, "\n=== Conversion Complete ===")
	fmt.Fprintf(out, "Sheets written:  %d\n", len(result.Report.Sheets))
	fmt.Fprintf(out, "Rejected:        %d\n", len(result.Rejected))
	fmt.Fprintf(out, "Time elapsed:    %s\n", elapsed.Round(time.Millisecond))
}

// writeLogs writes the rejection log and the processing summary when
// enabled. Failures are reported but never fail the command.
func writeLogs(out io.Writer, result *converter.Result, dir string) {
	if result == nil {
		return
	}

	if mainConfig.WriteErrorLog && len(result.Rejected) > 0 {
		path, err := utils.WriteErrorLog(validation.LogEntries(result.Rejected, time.Now()), dir)
		if err != nil {
			logger.Warn("failed to write error log", zap.Error(err))
		} else {
			fmt.Fprintf(out, "Rejections have been logged to %s\n", path)
		}
	}

	if writeSummary && result.Report != nil {
		path, err := utils.WriteSummaryLog(result.Summary(), dir)
		if err != nil {
			logger.Warn("failed to write summary", zap.Error(err))
		} else {
			fmt.Fprintf(out, "Summary written to %s\n", path)
		}
	}
}

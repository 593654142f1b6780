// =============================================================================
// NF-e to XLSX Converter - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the converter, including:
//   - Scratch files for XML pulled out of PDF/TXT inputs
//   - Input discovery (directories expand to the files they contain)
//   - Output file naming
//   - Error log and run summary generation
//
// SCRATCH FILE STRATEGY:
//   - Each extracted XML is written as xml_<uuid>.xml, UTF-8 without BOM
//   - The ScratchManager tracks every file it wrote
//   - Cleanup removes them all; callers defer it right after creation so the
//     files go away whether the run succeeds or not
//
// =============================================================================

package utils

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SCRATCH FILES
// =============================================================================

// ScratchManager writes and later removes scratch XML files.
type ScratchManager struct {
	// Dir is where scratch files are created.
	Dir string

	files []string
}

// NewScratchManager creates a manager writing into dir. An empty dir means
// the OS temporary directory.
func NewScratchManager(dir string) *ScratchManager {
	if dir == "" {
		dir = os.TempDir()
	}
	return &ScratchManager{Dir: dir}
}

// WriteXML stores content in a new scratch file and returns its path.
func (sm *ScratchManager) WriteXML(content string) (string, error) {
	if err := os.MkdirAll(sm.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", sm.Dir, err)
	}

	name := fmt.Sprintf("xml_%s.xml", strings.ReplaceAll(uuid.New().String(), "-", ""))
	path := filepath.Join(sm.Dir, name)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write scratch file: %w", err)
	}

	sm.files = append(sm.files, path)
	return path, nil
}

// Files returns the scratch files written so far.
func (sm *ScratchManager) Files() []string {
	out := make([]string, len(sm.files))
	copy(out, sm.files)
	return out
}

// Cleanup removes every scratch file. Files already gone are ignored; other
// failures are joined into the returned error.
func (sm *ScratchManager) Cleanup() error {
	var errs []error
	for _, path := range sm.files {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	sm.files = nil
	return errors.Join(errs...)
}

// =============================================================================
// INPUT DISCOVERY
// =============================================================================

// ExpandInputs replaces every directory in paths with the files directly
// inside it whose extension is in extensions, sorted by name. Other paths
// are kept as given, so missing files still reach validation.
func ExpandInputs(paths []string, extensions []string) ([]string, error) {
	var out []string

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			out = append(out, p)
			continue
		}

		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", p, err)
		}

		var found []string
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			for _, want := range extensions {
				if ext == want {
					found = append(found, filepath.Join(p, entry.Name()))
					break
				}
			}
		}
		sort.Strings(found)
		out = append(out, found...)
	}

	return out, nil
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// GenerateOutputFileName generates the workbook file name.
//
// PARAMETERS:
//   - format: The format string for the file name. Placeholders are
//     {uuid}, {timestamp} (YYYYMMDD_HHMM), {date} (YYYYMMDD) and
//     {time} (HHMM).
//   - params: Extra placeholder values, keyed without braces.
//
// RETURNS:
//   - The generated file name, always ending in .xlsx.
//
// For example "ConversorNFe_{timestamp}.xlsx" becomes
// "ConversorNFe_20240115_1430.xlsx".
func GenerateOutputFileName(format string, params map[string]string) string {
	return generateOutputFileName(format, params, time.Now())
}

func generateOutputFileName(format string, params map[string]string, now time.Time) string {
	replacements := map[string]string{
		"{uuid}":      uuid.New().String(),
		"{timestamp}": now.Format("20060102_1504"),
		"{date}":      now.Format("20060102"),
		"{time}":      now.Format("1504"),
	}
	for key, value := range params {
		replacements["{"+key+"}"] = value
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	if !strings.HasSuffix(strings.ToLower(result), ".xlsx") {
		result += ".xlsx"
	}

	return result
}

// =============================================================================
// ERROR LOG GENERATION
// =============================================================================

// ErrorLogEntry represents one rejected input.
type ErrorLogEntry struct {
	Timestamp time.Time
	FileName  string
	Reason    string
	Detail    string
}

// WriteErrorLog writes error entries to a log file.
//
// PARAMETERS:
//   - entries: The error entries to write.
//   - outputDir: The directory to write the log file.
//
// RETURNS:
//   - The path to the error log file, or "" when there is nothing to log.
//   - An error if writing fails.
func WriteErrorLog(entries []ErrorLogEntry, outputDir string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join(outputDir, fmt.Sprintf("error_log_%s.txt", timestamp))

	file, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create error log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	fmt.Fprintf(writer, "NF-e to XLSX Converter - Error Log\n"+
		"Generated: %s\n"+
		"Total Errors: %d\n"+
		"================================================================================\n\n",
		time.Now().Format("2006-01-02 15:04:05"),
		len(entries))

	for i, entry := range entries {
		fmt.Fprintf(writer, "Error #%d\n"+
			"  Timestamp:      %s\n"+
			"  File:           %s\n"+
			"  Reason:         %s\n",
			i+1,
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.FileName,
			entry.Reason)
		if entry.Detail != "" {
			fmt.Fprintf(writer, "  Detail:         %s\n", entry.Detail)
		}
		writer.WriteString("\n")
	}

	writer.WriteString("================================================================================\n" +
		"End of Error Log\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush error log: %w", err)
	}

	return logPath, nil
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary contains summary information about a conversion run.
type ProcessingSummary struct {
	StartTime       time.Time
	EndTime         time.Time
	Mode            string
	Workbook        string
	TotalFiles      int
	SuccessfulFiles int
	FailedFiles     int
	TotalRows       int
	ProcessedFiles  []ProcessedFileInfo
	FailedFilesList []FailedFileInfo
}

// ProcessedFileInfo describes the sheet written for one input.
type ProcessedFileInfo struct {
	InputFile string
	Sheet     string
	Rows      int
	Note      string
}

// FailedFileInfo contains information about a rejected input.
type FailedFileInfo struct {
	InputFile    string
	ErrorMessage string
}

// WriteSummaryLog writes a processing summary to a log file.
//
// PARAMETERS:
//   - summary: The processing summary.
//   - outputDir: The directory to write the summary file.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func WriteSummaryLog(summary ProcessingSummary, outputDir string) (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	summaryPath := filepath.Join(outputDir, fmt.Sprintf("processing_summary_%s.txt", timestamp))

	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	duration := summary.EndTime.Sub(summary.StartTime)
	fmt.Fprintf(writer, "NF-e to XLSX Converter - Processing Summary\n"+
		"================================================================================\n\n"+
		"Run Information:\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n"+
		"  Mode:           %s\n"+
		"  Workbook:       %s\n\n"+
		"Statistics:\n"+
		"  Total Files:    %d\n"+
		"  Successful:     %d\n"+
		"  Failed:         %d\n"+
		"  Total Rows:     %d\n\n",
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		duration.String(),
		summary.Mode,
		summary.Workbook,
		summary.TotalFiles,
		summary.SuccessfulFiles,
		summary.FailedFiles,
		summary.TotalRows)

	if len(summary.ProcessedFiles) > 0 {
		writer.WriteString("Successful Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, pf := range summary.ProcessedFiles {
			fmt.Fprintf(writer, "  Input:        %s\n", pf.InputFile)
			fmt.Fprintf(writer, "  Sheet:        %s\n", pf.Sheet)
			fmt.Fprintf(writer, "  Rows:         %d\n", pf.Rows)
			if pf.Note != "" {
				fmt.Fprintf(writer, "  Note:         %s\n", pf.Note)
			}
			writer.WriteString("\n")
		}
	}

	if len(summary.FailedFilesList) > 0 {
		writer.WriteString("Failed Files:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, ff := range summary.FailedFilesList {
			fmt.Fprintf(writer, "  File:  %s\n", ff.InputFile)
			fmt.Fprintf(writer, "  Error: %s\n\n", ff.ErrorMessage)
		}
	}

	writer.WriteString("================================================================================\n" +
		"End of Summary\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}

	return summaryPath, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

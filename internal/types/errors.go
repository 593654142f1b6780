package types

import "errors"

// =============================================================================
// ERROR TAXONOMY
// =============================================================================
// Per-file errors are collected as rejections and never abort a run.
// ErrWriteFailure aborts the whole run.

var (
	// ErrFileNotFound means the input path does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrUnsupportedExtension means the input is not .xml, .pdf or .txt.
	ErrUnsupportedExtension = errors.New("unsupported extension")

	// ErrNoXMLFound means no XML fragment could be located in a PDF/TXT source.
	ErrNoXMLFound = errors.New("no XML found")

	// ErrInvalidXMLForMode means the document failed the calculation-mode
	// admission filter.
	ErrInvalidXMLForMode = errors.New("not a valid XML for calculation mode")

	// ErrNoRowsExtracted means a sheet was written with a placeholder because
	// the document yielded no rows.
	ErrNoRowsExtracted = errors.New("no rows extracted")

	// ErrWriteFailure means the destination workbook could not be written.
	ErrWriteFailure = errors.New("write failure")

	// ErrNoValidInput means every input was rejected.
	ErrNoValidInput = errors.New("no valid input files")

	// ErrTooManyFiles means a run was given more inputs than allowed.
	ErrTooManyFiles = errors.New("too many input files")

	// ErrCancelled means the caller declined to continue.
	ErrCancelled = errors.New("conversion cancelled")
)

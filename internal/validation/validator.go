// =============================================================================
// NF-e to XLSX Converter - Input Validation
// =============================================================================
//
// This module decides which inputs may take part in a conversion run.
//
// VALIDATION STAGES:
//   1. Input check: the file must exist and end in .xml, .pdf or .txt.
//   2. Extraction: PDF/TXT sources must yield an XML fragment (done by the
//      converter; failures are reported here as ErrNoXMLFound).
//   3. Admission (calculation mode only): the first characters of the XML
//      must carry the NF-e namespace and an <nfeProc> or <NFe> tag.
//
// ERROR HANDLING:
//   - Rejections are collected, never thrown: each one is an InputError
//     carrying the file, the kind (a types.Err* sentinel) and a detail.
//   - The user-facing line is "name: reason". Duplicate lines are collapsed.
//
// =============================================================================

package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/types"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/xmldoc"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/pkg/utils"
)

// SupportedExtensions lists the accepted input extensions.
var SupportedExtensions = []string{".xml", ".pdf", ".txt"}

// EnvelopeMarkers are the root tags accepted by the admission filter.
var EnvelopeMarkers = []string{"<nfeProc", "<NFe"}

// =============================================================================
// INPUT ERROR
// =============================================================================

// InputError is a per-file rejection.
type InputError struct {
	// File is the display name of the input.
	File string

	// Kind is one of the types.Err* sentinels.
	Kind error

	// Detail is optional diagnostic text for logs.
	Detail string
}

// NewInputError creates a rejection of the given kind.
func NewInputError(file string, kind error, detail string) *InputError {
	return &InputError{File: file, Kind: kind, Detail: detail}
}

// Error implements the error interface.
func (e *InputError) Error() string {
	if e.Detail == "" {
		return e.Line()
	}
	return fmt.Sprintf("%s (%s)", e.Line(), e.Detail)
}

// Unwrap exposes Kind to errors.Is.
func (e *InputError) Unwrap() error {
	return e.Kind
}

// Reason is the user-facing rejection reason.
func (e *InputError) Reason() string {
	if e.Kind == nil {
		return "unknown error"
	}
	return e.Kind.Error()
}

// Line renders the rejection as "name: reason".
func (e *InputError) Line() string {
	return e.File + ": " + e.Reason()
}

// =============================================================================
// INPUT CHECK
// =============================================================================

// CheckInput verifies that path exists and has a supported extension.
//
// RETURNS:
//   - The lower-cased extension on success.
//   - An *InputError wrapping ErrFileNotFound or ErrUnsupportedExtension.
func CheckInput(path, name string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", NewInputError(name, types.ErrFileNotFound, err.Error())
	}
	if info.IsDir() {
		return "", NewInputError(name, types.ErrFileNotFound, "is a directory")
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !IsSupportedExtension(ext) {
		return "", NewInputError(name, types.ErrUnsupportedExtension, ext)
	}

	return ext, nil
}

// IsSupportedExtension reports whether ext (with dot) is accepted.
func IsSupportedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// =============================================================================
// CALCULATION MODE ADMISSION
// =============================================================================

// AdmissionOptions configures the calculation-mode admission filter.
type AdmissionOptions struct {
	// ScanLimit is the number of leading characters inspected.
	// Default: 20000
	ScanLimit int

	// Namespace is the URI every authentic NF-e declares.
	// Default: "http://www.portalfiscal.inf.br/nfe"
	Namespace string
}

// DefaultAdmissionOptions returns the default admission options.
func DefaultAdmissionOptions() AdmissionOptions {
	return AdmissionOptions{
		ScanLimit: 20000,
		Namespace: "http://www.portalfiscal.inf.br/nfe",
	}
}

// Admit checks the XML file at xmlPath against the admission filter.
// An unreadable file is rejected the same way as a non-NF-e one.
func Admit(xmlPath, name string, opts AdmissionOptions) error {
	text, err := xmldoc.ReadText(xmlPath)
	if err != nil {
		return NewInputError(name, types.ErrInvalidXMLForMode, err.Error())
	}
	if !LooksLikeNFe(text, opts) {
		return NewInputError(name, types.ErrInvalidXMLForMode, "")
	}
	return nil
}

// LooksLikeNFe reports whether the first ScanLimit characters of text
// contain the namespace and one of the envelope markers, ignoring case.
func LooksLikeNFe(text string, opts AdmissionOptions) bool {
	def := DefaultAdmissionOptions()
	if opts.ScanLimit <= 0 {
		opts.ScanLimit = def.ScanLimit
	}
	if opts.Namespace == "" {
		opts.Namespace = def.Namespace
	}

	if len(text) > opts.ScanLimit {
		if r := []rune(text); len(r) > opts.ScanLimit {
			text = string(r[:opts.ScanLimit])
		}
	}
	lower := strings.ToLower(text)

	if !strings.Contains(lower, strings.ToLower(opts.Namespace)) {
		return false
	}
	for _, marker := range EnvelopeMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// =============================================================================
// REPORTING
// =============================================================================

// Lines renders rejections as "name: reason", dropping duplicates and
// keeping first-seen order.
func Lines(errs []*InputError) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range errs {
		line := e.Line()
		if !seen[line] {
			seen[line] = true
			out = append(out, line)
		}
	}
	return out
}

// KindOf returns the sentinel of err when it is an *InputError.
func KindOf(err error) error {
	var ie *InputError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return nil
}

// FormatErrors formats rejections for display or logging.
func FormatErrors(errs []*InputError) string {
	if len(errs) == 0 {
		return "No rejected files."
	}

	lines := Lines(errs)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("%d file(s) rejected:\n\n", len(lines)))
	for i, line := range lines {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, line))
	}
	return builder.String()
}

// LogEntries converts rejections into error log entries stamped with now.
func LogEntries(errs []*InputError, now time.Time) []utils.ErrorLogEntry {
	entries := make([]utils.ErrorLogEntry, 0, len(errs))
	for _, e := range errs {
		entries = append(entries, utils.ErrorLogEntry{
			Timestamp: now,
			FileName:  e.File,
			Reason:    e.Reason(),
			Detail:    e.Detail,
		})
	}
	return entries
}

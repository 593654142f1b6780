package xlsxwriter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxSheetNameLength is the Excel limit on worksheet names.
const MaxSheetNameLength = 31

// DefaultSheetName replaces names that sanitize to nothing.
const DefaultSheetName = "Planilha"

// invalidSheetChars are the characters Excel refuses in a sheet name.
var invalidSheetChars = regexp.MustCompile(`[\[\]*:/\\?]`)

// SheetNamer hands out unique worksheet names for one workbook.
// Names are compared case-insensitively, as Excel does. It is not safe for
// concurrent use; a workbook is built by a single goroutine.
type SheetNamer struct {
	used map[string]bool
}

// NewSheetNamer creates an empty registry.
func NewSheetNamer() *SheetNamer {
	return &SheetNamer{used: make(map[string]bool)}
}

// Next returns a sanitized name derived from base that no earlier call
// returned, and records it. On collision "_2", "_3", ... is appended, cutting
// the base so the result stays within 31 characters.
func (n *SheetNamer) Next(base string) string {
	name := SanitizeSheetName(base)

	if !n.used[strings.ToUpper(name)] {
		n.used[strings.ToUpper(name)] = true
		return name
	}

	for i := 2; ; i++ {
		suffix := fmt.Sprintf("_%d", i)
		attempt := truncateRunes(name, MaxSheetNameLength-utf8.RuneCountInString(suffix)) + suffix
		key := strings.ToUpper(attempt)
		if !n.used[key] {
			n.used[key] = true
			return attempt
		}
	}
}

// SanitizeSheetName replaces illegal characters with '_', trims spaces and
// apostrophes from the ends and cuts the result to 31 characters.
func SanitizeSheetName(name string) string {
	name = invalidSheetChars.ReplaceAllString(name, "_")
	name = strings.Trim(strings.TrimSpace(name), " '")
	name = strings.Trim(truncateRunes(name, MaxSheetNameLength), " '")
	if name == "" {
		return DefaultSheetName
	}
	return name
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

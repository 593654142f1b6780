// =============================================================================
// NF-e to XLSX Converter - XML Text Extractor
// =============================================================================
//
// This module locates an XML fragment inside free text: the text of every
// page of a PDF, or the contents of a TXT (or mislabelled PDF) file.
//
// SELECTION POLICY (first hit wins):
//   1. <nfeProc ...> ... </nfeProc>  signed invoice envelope
//   2. <NFe ...> ... </NFe>          unsigned invoice
//   3. generic: first tag name found, cut at the LAST matching close tag;
//      without a close tag, cut at the last '>'
//
// Tag matching for 1 and 2 is case-insensitive, from the first "<tag" to the
// first "</tag>" after it. The generic tier assumes that when content is
// duplicated or garbled, the final close tag is the authoritative one.
//
// =============================================================================

package xmltext

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/types"
)

// pdfMagic is the signature every real PDF starts with.
var pdfMagic = []byte("%PDF-")

// EnvelopeTags are tried in order before the generic fallback.
var EnvelopeTags = []string{"nfeProc", "NFe"}

// rootTagPattern finds the first element name in a fragment.
var rootTagPattern = regexp.MustCompile(`(?s)<\s*([A-Za-z_][A-Za-z0-9_:\-.]*)\b[^>]*>`)

// declEncodingPattern matches the encoding attribute of a leading XML declaration.
var declEncodingPattern = regexp.MustCompile(`^(\s*<\?xml[^>]*?encoding\s*=\s*["'])[^"']*(["'])`)

// LooksLikePDF reports whether content starts with the PDF signature.
func LooksLikePDF(content []byte) bool {
	return len(content) >= len(pdfMagic) && bytes.Equal(content[:len(pdfMagic)], pdfMagic)
}

// Extract returns the best XML fragment found in text.
//
// PARAMETERS:
//   - text: Page text of a PDF, or the raw text of any other source.
//
// RETURNS:
//   - The fragment, starting with '<' and ending with '>'.
//   - types.ErrNoXMLFound if no tier yields non-blank text.
func Extract(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", types.ErrNoXMLFound
	}

	if first := strings.IndexByte(text, '<'); first > 0 {
		text = text[first:]
	}

	for _, tag := range EnvelopeTags {
		if block := blockByTag(text, tag); strings.TrimSpace(block) != "" {
			return block, nil
		}
	}

	if block := genericBlock(text); strings.TrimSpace(block) != "" {
		return block, nil
	}

	return "", types.ErrNoXMLFound
}

// blockByTag cuts from the first "<tag" to the first "</tag>" after it.
func blockByTag(text, tag string) string {
	lower := asciiLower(text)
	open := asciiLower("<" + tag)
	closeTag := asciiLower("</" + tag + ">")

	start := strings.Index(lower, open)
	if start < 0 {
		return ""
	}

	rel := strings.Index(lower[start:], closeTag)
	if rel <= 0 {
		return ""
	}
	end := start + rel

	return text[start : end+len(closeTag)]
}

// genericBlock handles documents that are not NF-e.
func genericBlock(text string) string {
	lower := asciiLower(text)

	start := strings.Index(lower, "<?xml")
	if start < 0 {
		start = strings.IndexByte(text, '<')
	}
	if start < 0 {
		return ""
	}

	candidate := text[start:]

	m := rootTagPattern.FindStringSubmatch(candidate)
	if m == nil {
		return ""
	}

	closeTag := "</" + m[1] + ">"
	if end := strings.LastIndex(asciiLower(candidate), asciiLower(closeTag)); end > 0 {
		return candidate[:end+len(closeTag)]
	}

	if lastGt := strings.LastIndexByte(candidate, '>'); lastGt > 0 {
		return candidate[:lastGt+1]
	}

	return ""
}

// NormalizeDeclaration rewrites the encoding of a leading XML declaration to
// UTF-8. Extracted fragments are always stored as UTF-8, whatever the source
// declared.
func NormalizeDeclaration(fragment string) string {
	return declEncodingPattern.ReplaceAllString(fragment, "${1}UTF-8${2}")
}

// asciiLower lowercases ASCII letters only, so byte offsets stay valid for
// the original string.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

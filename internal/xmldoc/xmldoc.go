// =============================================================================
// NF-e to XLSX Converter - XML Document Loading
// =============================================================================
//
// This module loads XML documents into an etree DOM and provides the small
// traversal helpers shared by the tabular extractor and the line loader.
//
// ENCODINGS:
//   NF-e files are usually UTF-8, but exports from older ERPs declare
//   ISO-8859-1 or Windows-1252. Declared encodings are decoded through
//   golang.org/x/text. Plain text that is not valid UTF-8 is read as
//   Windows-1252.
//
// NAMESPACES:
//   Every lookup in this project is by local name. etree keeps the prefix in
//   Element.Space and the local name in Element.Tag, so matching on Tag alone
//   ignores whatever namespace the document declares.
//
// =============================================================================

package xmldoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
)

// utf8BOM is stripped from every input before parsing.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrNoRoot is returned when a document parses but has no root element.
var ErrNoRoot = errors.New("XML has no root element")

// =============================================================================
// LOADING
// =============================================================================

// Load reads and parses the XML file at path.
func Load(path string) (*etree.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read XML file: %w", err)
	}
	return Parse(data)
}

// Parse parses raw XML bytes. The document must have a root element.
func Parse(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader

	if err := doc.ReadFromBytes(bytes.TrimPrefix(data, utf8BOM)); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	if doc.Root() == nil {
		return nil, ErrNoRoot
	}
	return doc, nil
}

// charsetReader resolves the encoding named in an XML declaration.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported XML encoding %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported XML encoding %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

// ReadText reads a file as text. See DecodeText.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return DecodeText(data), nil
}

// DecodeText turns raw bytes into a UTF-8 string, dropping a leading BOM.
// Bytes that are not valid UTF-8 are decoded as Windows-1252.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return string(data)
	}
	return string(decoded)
}

// =============================================================================
// TRAVERSAL HELPERS
// =============================================================================

// Descendants returns every element below el in document order, el excluded.
func Descendants(el *etree.Element) []*etree.Element {
	var out []*etree.Element
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		for _, child := range e.ChildElements() {
			out = append(out, child)
			walk(child)
		}
	}
	walk(el)
	return out
}

// IsLeaf reports whether el has no child elements.
func IsLeaf(el *etree.Element) bool {
	for _, tok := range el.Child {
		if _, ok := tok.(*etree.Element); ok {
			return false
		}
	}
	return true
}

// LocalName returns the element name without its namespace prefix.
func LocalName(el *etree.Element) string {
	return el.Tag
}

// InnerText concatenates all character data below el.
func InnerText(el *etree.Element) string {
	var b strings.Builder
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		for _, tok := range e.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				b.WriteString(t.Data)
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(el)
	return b.String()
}

// AttrValue returns the value of the unprefixed attribute key, or "".
func AttrValue(el *etree.Element, key string) string {
	for _, a := range el.Attr {
		if a.Space == "" && a.Key == key {
			return a.Value
		}
	}
	return ""
}

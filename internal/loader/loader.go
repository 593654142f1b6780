// Package loader presents an XML file as a list of text lines, the view a
// user picks rows from in filtered mode.
package loader

import (
	"os"
	"strings"

	"github.com/beevik/etree"

	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/xmldoc"
)

// IndentSpaces is the indentation used when re-serialising a document.
const IndentSpaces = 2

// ToLines reads path and returns its lines.
//
// Well-formed XML is re-serialised with one element per line first, so a
// single-line NF-e becomes browsable. Anything else is split as read, after
// the text decoding of xmldoc.DecodeText: a UTF-8 BOM is dropped and bytes
// that are not valid UTF-8 are re-decoded as Windows-1252. Empty lines are
// kept. Any read failure yields an empty slice, never an
// error.
func ToLines(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return []string{}
	}

	text := xmldoc.DecodeText(data)
	if pretty, ok := reindent(data); ok {
		text = pretty
	}

	return SplitLines(text)
}

// SplitLines splits on \n after folding \r\n and lone \r into \n.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}

// reindent parses data and writes it back indented, without the XML
// declaration.
func reindent(data []byte) (string, bool) {
	doc, err := xmldoc.Parse(data)
	if err != nil {
		return "", false
	}

	for _, tok := range doc.Child {
		if pi, ok := tok.(*etree.ProcInst); ok && pi.Target == "xml" {
			doc.RemoveChild(pi)
			break
		}
	}

	doc.Indent(IndentSpaces)

	out, err := doc.WriteToString()
	if err != nil {
		return "", false
	}

	return strings.TrimRight(out, "\n"), true
}

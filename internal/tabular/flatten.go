package tabular

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/xmldoc"
)

// KV is one tag/value pair of a flattened single-record document.
type KV struct {
	Key   string
	Value string
}

// FlattenSingleRecord lists every leaf under the root in document order.
//
// Repeated tag names are kept apart with a numeric suffix ("cProd",
// "cProd_2", "cProd_3", ...), counted case-insensitively. This differs from
// the " | " merge used by ExtractGroupTable on purpose: a single record has
// no row to merge into.
func FlattenSingleRecord(doc *etree.Document) []KV {
	if doc == nil || doc.Root() == nil {
		return nil
	}

	var out []KV
	seen := make(map[string]int)

	for _, el := range xmldoc.Descendants(doc.Root()) {
		if !xmldoc.IsLeaf(el) {
			continue
		}

		base := strings.TrimSpace(xmldoc.LocalName(el))
		if base == "" {
			continue
		}

		k := strings.ToUpper(base)
		seen[k]++

		key := base
		if n := seen[k]; n > 1 {
			key = fmt.Sprintf("%s_%d", base, n)
		}

		out = append(out, KV{Key: key, Value: strings.TrimSpace(xmldoc.InnerText(el))})
	}

	return out
}

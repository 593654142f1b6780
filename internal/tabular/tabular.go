// =============================================================================
// NF-e to XLSX Converter - Tabular Extractor
// =============================================================================
//
// This module turns a semi-structured XML document into a table. It finds the
// element that repeats like a "row" (for NF-e, the <det> line item) and
// flattens every instance into a Row of leaf-tag -> text.
//
// GROUP DETECTION:
//   1. Any element named "det" (case-insensitive, any namespace) wins.
//   2. Otherwise every descendant of the root is grouped by local name
//      (case-insensitive). Groups with more than one member are scored
//      members x (leaf descendants of the first member + 1) and the highest
//      score wins.
//
// TIES:
//   On equal scores the group whose name appeared first in document order
//   wins. This is implementation-defined: callers must not rely on which of
//   two equally scored groups is chosen.
//
// FLATTENING:
//   - An "nItem" attribute on the group member seeds the "nItem" column.
//   - Each leaf descendant becomes column = local name, value = trimmed text.
//   - A leaf name that repeats inside one member joins distinct non-empty
//     values with " | ". A value equal (ignoring case) to what is already
//     stored is not appended.
//
// =============================================================================

package tabular

import (
	"sort"
	"strings"

	"github.com/beevik/etree"

	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/types"
	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/xmldoc"
)

// ItemTag is the NF-e line-item element.
const ItemTag = "det"

// PriorityColumn is always placed first when present.
const PriorityColumn = "nItem"

// JoinSeparator separates repeated values of one leaf tag inside a row.
const JoinSeparator = " | "

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Table is the flattened form of the best repeating group of a document.
type Table struct {
	// GroupName is the local name of the element used as row.
	GroupName string

	// Rows holds one Row per group member that produced at least one column.
	Rows []*types.Row

	// Columns is the union of row keys, sorted case-insensitively, with
	// nItem first when present.
	Columns []string
}

// group is one candidate row element, in first-seen order.
type group struct {
	name    string
	members []*etree.Element
}

// =============================================================================
// EXTRACTION
// =============================================================================

// ExtractGroupTable finds and flattens the best repeating group.
//
// RETURNS:
//   - The table and true, or nil and false when no usable rows or columns
//     were found.
func ExtractGroupTable(doc *etree.Document) (*Table, bool) {
	if doc == nil || doc.Root() == nil {
		return nil, false
	}

	all := xmldoc.Descendants(doc.Root())

	var members []*etree.Element
	name := ""
	for _, el := range all {
		if strings.EqualFold(xmldoc.LocalName(el), ItemTag) {
			members = append(members, el)
		}
	}

	if len(members) > 0 {
		name = xmldoc.LocalName(members[0])
	} else {
		best, ok := bestGroup(groupByLocalName(all))
		if !ok {
			return nil, false
		}
		name = best.name
		members = best.members
	}

	rows, columns := buildTable(members)
	if len(rows) == 0 || len(columns) == 0 {
		return nil, false
	}

	return &Table{GroupName: name, Rows: rows, Columns: columns}, true
}

// groupByLocalName buckets elements by case-insensitive local name, keeping
// the order in which names first appear.
func groupByLocalName(elements []*etree.Element) []*group {
	var groups []*group
	byName := make(map[string]*group)

	for _, el := range elements {
		key := strings.ToUpper(xmldoc.LocalName(el))
		g, ok := byName[key]
		if !ok {
			g = &group{name: xmldoc.LocalName(el)}
			byName[key] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, el)
	}

	return groups
}

// Score is members x (leafDescendantsOfFirstMember + 1).
func Score(memberCount, firstMemberLeaves int) int {
	return memberCount * (firstMemberLeaves + 1)
}

// bestGroup picks the highest scoring group with more than one member.
// Ties keep the earlier group.
func bestGroup(groups []*group) (*group, bool) {
	var best *group
	bestScore := -1

	for _, g := range groups {
		if len(g.members) < 2 {
			continue
		}
		s := Score(len(g.members), countLeaves(g.members[0]))
		if s > bestScore {
			best, bestScore = g, s
		}
	}

	return best, best != nil
}

// countLeaves counts descendants of el that have no child elements.
func countLeaves(el *etree.Element) int {
	n := 0
	for _, d := range xmldoc.Descendants(el) {
		if xmldoc.IsLeaf(d) {
			n++
		}
	}
	return n
}

// buildTable flattens each member into a Row and computes the column set.
func buildTable(members []*etree.Element) ([]*types.Row, []string) {
	var rows []*types.Row
	columns := newColumnSet()

	for _, item := range members {
		row := types.NewRow()

		if n := strings.TrimSpace(xmldoc.AttrValue(item, PriorityColumn)); n != "" {
			row.Set(PriorityColumn, n)
			columns.add(PriorityColumn)
		}

		for _, el := range xmldoc.Descendants(item) {
			if !xmldoc.IsLeaf(el) {
				continue
			}

			key := strings.TrimSpace(xmldoc.LocalName(el))
			if key == "" {
				continue
			}

			value := strings.TrimSpace(xmldoc.InnerText(el))
			mergeValue(row, key, value)
			columns.add(key)
		}

		if row.Len() > 0 {
			rows = append(rows, row)
		}
	}

	return rows, columns.sorted()
}

// mergeValue stores value under key, joining repeated leaf values.
func mergeValue(row *types.Row, key, value string) {
	existing, _ := row.GetString(key)
	if strings.TrimSpace(existing) == "" {
		row.Set(key, value)
		return
	}
	if strings.TrimSpace(value) != "" && !strings.EqualFold(existing, value) {
		row.Set(key, existing+JoinSeparator+value)
	}
}

// =============================================================================
// COLUMN SET
// =============================================================================

// columnSet is a case-insensitive set that remembers the first spelling.
type columnSet struct {
	names []string
	seen  map[string]bool
}

func newColumnSet() *columnSet {
	return &columnSet{seen: make(map[string]bool)}
}

func (c *columnSet) add(name string) {
	key := strings.ToUpper(name)
	if c.seen[key] {
		return
	}
	c.seen[key] = true
	c.names = append(c.names, name)
}

// sorted orders names case-insensitively and moves nItem to the front.
func (c *columnSet) sorted() []string {
	cols := make([]string, len(c.names))
	copy(cols, c.names)
	sort.SliceStable(cols, func(i, j int) bool {
		return strings.ToUpper(cols[i]) < strings.ToUpper(cols[j])
	})

	for i, name := range cols {
		if strings.EqualFold(name, PriorityColumn) {
			cols = append(cols[:i], cols[i+1:]...)
			cols = append([]string{PriorityColumn}, cols...)
			break
		}
	}

	return cols
}

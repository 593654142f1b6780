// =============================================================================
// NF-e to XLSX Converter - Tax Calculator
// =============================================================================
//
// This module reads the line items (<det>) of an NF-e and derives the per-unit
// ST and IPI values used by the calculation spreadsheet.
//
// FIELDS READ:
//   <prod>     cEAN, xProd, NCM, CEST (text), qTrib, vProd, vDesc, vUnTrib
//   <imposto>  vIPI and vICMSST, found at any depth by local name
//
// DERIVED VALUES:
//   unitST       = totalST / quantity          (0 when quantity <= 0)
//   netValue     = totalValue - discount
//   unitIPI      = ipi / quantity              (0 when quantity <= 0)
//   netTotal     = netValue + totalST + ipi
//   unitNetTotal = netTotal / quantity         (0 when quantity <= 0)
//
// ROUNDING:
//   Every numeric output is rounded to 2 places with banker's rounding
//   (half to even): 0.125 -> 0.12, 0.135 -> 0.14.
//
// =============================================================================

package taxcalc

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/types"
)

// Column names of the calculation sheet, in output order.
const (
	ColEAN          = "EAN"
	ColProduct      = "PRODUTO"
	ColNCM          = "NCM"
	ColCEST         = "CEST"
	ColQuantity     = "QUANTIDADE"
	ColUnitValue    = "VALOR UNITARIO"
	ColGrossValue   = "VALOR BRUTO"
	ColDiscount     = "DESCONTO"
	ColNetValue     = "VALOR SEM ST"
	ColUnitST       = "VALOR UNITARIO ST"
	ColTotalST      = "VALOR TOTAL ST"
	ColUnitIPI      = "VALOR UNITARIO IPI"
	ColTotalIPI     = "VALOR TOTAL IPI"
	ColNetTotal     = "VALOR TOTAL LIQUIDO"
	ColUnitNetTotal = "VALOR UNITARIO LIQUIDO"
)

const roundPlaces = 2

// itemXPath matches <det> in any namespace.
const itemXPath = "//*[local-name()='det']"

// Columns lists the fifteen calculation columns in output order.
var Columns = []string{
	ColEAN, ColProduct, ColNCM, ColCEST,
	ColQuantity, ColUnitValue, ColGrossValue, ColDiscount,
	ColNetValue, ColUnitST, ColTotalST, ColUnitIPI, ColTotalIPI,
	ColNetTotal, ColUnitNetTotal,
}

// =============================================================================
// LINE ITEM
// =============================================================================

// LineItem holds the values read from one <det> and the values derived from
// them. Numbers are unrounded; Row applies the rounding.
type LineItem struct {
	EAN          string
	Product      string
	NCM          string
	CEST         string
	Quantity     decimal.Decimal
	UnitValue    decimal.Decimal
	TotalValue   decimal.Decimal
	Discount     decimal.Decimal
	TotalST      decimal.Decimal
	IPI          decimal.Decimal
	NetValue     decimal.Decimal
	UnitST       decimal.Decimal
	UnitIPI      decimal.Decimal
	NetTotal     decimal.Decimal
	UnitNetTotal decimal.Decimal
}

// Row renders the item as a calculation sheet row. Text fields are strings,
// numbers are decimals rounded to 2 places.
func (li LineItem) Row() *types.Row {
	row := types.NewRow()
	row.Set(ColEAN, li.EAN)
	row.Set(ColProduct, li.Product)
	row.Set(ColNCM, li.NCM)
	row.Set(ColCEST, li.CEST)
	row.Set(ColQuantity, Round2(li.Quantity))
	row.Set(ColUnitValue, Round2(li.UnitValue))
	row.Set(ColGrossValue, Round2(li.TotalValue))
	row.Set(ColDiscount, Round2(li.Discount))
	row.Set(ColNetValue, Round2(li.NetValue))
	row.Set(ColUnitST, Round2(li.UnitST))
	row.Set(ColTotalST, Round2(li.TotalST))
	row.Set(ColUnitIPI, Round2(li.UnitIPI))
	row.Set(ColTotalIPI, Round2(li.IPI))
	row.Set(ColNetTotal, Round2(li.NetTotal))
	row.Set(ColUnitNetTotal, Round2(li.UnitNetTotal))
	return row
}

// ComputeLineItem reads one <det> element.
//
// RETURNS:
//   - The item and true, or false when det has no <prod> child.
//     A missing <imposto> is not an error; its values are 0.
func ComputeLineItem(det *xmlquery.Node) (LineItem, bool) {
	prod := child(det, "prod")
	if prod == nil {
		return LineItem{}, false
	}
	imposto := child(det, "imposto")

	li := LineItem{
		EAN:        childText(prod, "cEAN"),
		Product:    childText(prod, "xProd"),
		NCM:        childText(prod, "NCM"),
		CEST:       childText(prod, "CEST"),
		Quantity:   ParseDecimal(childText(prod, "qTrib")),
		TotalValue: ParseDecimal(childText(prod, "vProd")),
		Discount:   ParseDecimal(childText(prod, "vDesc")),
		UnitValue:  ParseDecimal(childText(prod, "vUnTrib")),
		IPI:        ParseDecimal(descendantText(imposto, "vIPI")),
		TotalST:    ParseDecimal(descendantText(imposto, "vICMSST")),
	}

	li.NetValue = li.TotalValue.Sub(li.Discount)
	li.NetTotal = li.NetValue.Add(li.TotalST).Add(li.IPI)

	if li.Quantity.IsPositive() {
		li.UnitST = li.TotalST.Div(li.Quantity)
		li.UnitIPI = li.IPI.Div(li.Quantity)
		li.UnitNetTotal = li.NetTotal.Div(li.Quantity)
	}

	return li, true
}

// =============================================================================
// DOCUMENT
// =============================================================================

// ComputeFile reads every line item of the NF-e at path.
func ComputeFile(path string) ([]LineItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open XML file: %w", err)
	}
	defer f.Close()

	return Compute(f)
}

// Compute reads every line item of an NF-e. Items without <prod> are
// skipped. A document with no <det> at all yields an empty slice.
func Compute(r io.Reader) ([]LineItem, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	if doc == nil || firstElement(doc) == nil {
		return nil, fmt.Errorf("failed to parse XML: no root element")
	}

	dets, err := xmlquery.QueryAll(doc, itemXPath)
	if err != nil {
		return nil, fmt.Errorf("failed to query line items: %w", err)
	}

	items := make([]LineItem, 0, len(dets))
	for _, det := range dets {
		if li, ok := ComputeLineItem(det); ok {
			items = append(items, li)
		}
	}

	return items, nil
}

// Rows renders items as calculation sheet rows.
func Rows(items []LineItem) []*types.Row {
	rows := make([]*types.Row, 0, len(items))
	for _, li := range items {
		rows = append(rows, li.Row())
	}
	return rows
}

// =============================================================================
// NUMBERS
// =============================================================================

// maxScale and maxMagnitude bound accepted values to what a 96-bit fiscal
// decimal can hold.
const maxScale = 28

var maxMagnitude = decimal.RequireFromString("79228162514264337593543950335")

// ParseDecimal reads a number written with '.' or ',' as decimal separator.
// Blank, unparseable or out-of-range input yields 0, and so does exponent
// notation.
func ParseDecimal(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "eE") {
		return decimal.Zero
	}

	if d, err := decimal.NewFromString(s); err == nil {
		return bounded(d)
	}

	if d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ".")); err == nil {
		return bounded(d)
	}

	return decimal.Zero
}

func bounded(d decimal.Decimal) decimal.Decimal {
	if exp := d.Exponent(); exp < -maxScale || exp > maxScale {
		return decimal.Zero
	}
	if d.Abs().GreaterThan(maxMagnitude) {
		return decimal.Zero
	}
	return d
}

// Round2 rounds to 2 decimal places, half to even.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(roundPlaces)
}

// =============================================================================
// NODE HELPERS
// =============================================================================

// child returns the first direct element child with the given local name.
func child(n *xmlquery.Node, name string) *xmlquery.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode && c.Data == name {
			return c
		}
	}
	return nil
}

func childText(n *xmlquery.Node, name string) string {
	c := child(n, name)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.InnerText())
}

// descendantText returns the text of the first element below n whose local
// name matches name, ignoring case and namespace.
func descendantText(n *xmlquery.Node, name string) string {
	if n == nil {
		return ""
	}
	var found *xmlquery.Node
	var walk func(*xmlquery.Node) bool
	walk = func(p *xmlquery.Node) bool {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != xmlquery.ElementNode {
				continue
			}
			if strings.EqualFold(c.Data, name) {
				found = c
				return true
			}
			if walk(c) {
				return true
			}
		}
		return false
	}
	if !walk(n) {
		return ""
	}
	return found.InnerText()
}

func firstElement(doc *xmlquery.Node) *xmlquery.Node {
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

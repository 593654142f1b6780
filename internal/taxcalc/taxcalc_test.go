package taxcalc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invoiceTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
  <NFe>
    <infNFe Id="NFe3519">
      %ITEMS%
    </infNFe>
  </NFe>
</nfeProc>`

const sampleItem = `<det nItem="1">
  <prod>
    <cEAN>7891234567895</cEAN>
    <xProd>Parafuso sextavado</xProd>
    <NCM>73181500</NCM>
    <CEST>1000100</CEST>
    <qTrib>10.0000</qTrib>
    <vUnTrib>10.0000000000</vUnTrib>
    <vProd>100.00</vProd>
    <vDesc>10.00</vDesc>
  </prod>
  <imposto>
    <ICMS><ICMS10><vICMSST>5.00</vICMSST></ICMS10></ICMS>
    <IPI><IPITrib><vIPI>2.00</vIPI></IPITrib></IPI>
  </imposto>
</det>`

func invoice(items ...string) string {
	return strings.Replace(invoiceTemplate, "%ITEMS%", strings.Join(items, "\n"), 1)
}

func fixed(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func TestComputeDerivedValues(t *testing.T) {
	items, err := Compute(strings.NewReader(invoice(sampleItem)))
	require.NoError(t, err)
	require.Len(t, items, 1)

	li := items[0]
	assert.Equal(t, "7891234567895", li.EAN)
	assert.Equal(t, "Parafuso sextavado", li.Product)
	assert.Equal(t, "73181500", li.NCM)
	assert.Equal(t, "1000100", li.CEST)

	assert.Equal(t, "90.00", fixed(Round2(li.NetValue)))
	assert.Equal(t, "0.50", fixed(Round2(li.UnitST)))
	assert.Equal(t, "0.20", fixed(Round2(li.UnitIPI)))
	assert.Equal(t, "97.00", fixed(Round2(li.NetTotal)))
	assert.Equal(t, "9.70", fixed(Round2(li.UnitNetTotal)))
}

func TestRowHasFixedColumnOrder(t *testing.T) {
	items, err := Compute(strings.NewReader(invoice(sampleItem)))
	require.NoError(t, err)

	row := items[0].Row()
	assert.Equal(t, Columns, row.Keys())
	assert.Len(t, Columns, 15)

	v, ok := row.Get(ColNetTotal)
	require.True(t, ok)
	assert.Equal(t, "97", v.(decimal.Decimal).String())
}

func TestZeroQuantityAvoidsDivision(t *testing.T) {
	item := strings.Replace(sampleItem, "<qTrib>10.0000</qTrib>", "<qTrib>0</qTrib>", 1)

	items, err := Compute(strings.NewReader(invoice(item)))
	require.NoError(t, err)
	require.Len(t, items, 1)

	li := items[0]
	assert.True(t, li.UnitST.IsZero())
	assert.True(t, li.UnitIPI.IsZero())
	assert.True(t, li.UnitNetTotal.IsZero())
	assert.Equal(t, "97.00", fixed(li.NetTotal))
}

func TestItemWithoutProdIsSkipped(t *testing.T) {
	noProd := `<det nItem="2"><imposto><vIPI>1.00</vIPI></imposto></det>`
	noTax := `<det nItem="3"><prod><xProd>Sem imposto</xProd><qTrib>2</qTrib><vProd>8</vProd></prod></det>`

	items, err := Compute(strings.NewReader(invoice(sampleItem, noProd, noTax)))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Sem imposto", items[1].Product)
	assert.True(t, items[1].IPI.IsZero())
	assert.True(t, items[1].TotalST.IsZero())
	assert.Equal(t, "4.00", fixed(items[1].UnitNetTotal))
}

func TestTaxTagsMatchIgnoringCase(t *testing.T) {
	item := `<det><prod><qTrib>4</qTrib></prod><imposto><x><VICMSST>8,00</VICMSST></x></imposto></det>`

	items, err := Compute(strings.NewReader(invoice(item)))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "2.00", fixed(items[0].UnitST))
}

func TestComputeWithoutItems(t *testing.T) {
	items, err := Compute(strings.NewReader(invoice()))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestComputeRejectsMalformedXML(t *testing.T) {
	_, err := Compute(strings.NewReader("<nfeProc><NFe>"))
	assert.Error(t, err)
}

func TestComputeIsDeterministic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nota.xml")
	require.NoError(t, os.WriteFile(path, []byte(invoice(sampleItem)), 0o644))

	first, err := ComputeFile(path)
	require.NoError(t, err)
	second, err := ComputeFile(path)
	require.NoError(t, err)

	a, b := first[0].Row(), second[0].Row()
	for _, col := range Columns {
		va, _ := a.Get(col)
		vb, _ := b.Get(col)
		assert.Equal(t, va, vb, col)
	}
}

func TestComputeFileMissing(t *testing.T) {
	_, err := ComputeFile(filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)
}

func TestParseDecimal(t *testing.T) {
	comma := ParseDecimal("1234,56")
	dot := ParseDecimal("1234.56")
	assert.True(t, comma.Equal(dot))
	assert.Equal(t, "1234.56", dot.String())

	assert.True(t, ParseDecimal(" 7.5 ").Equal(decimal.RequireFromString("7.5")))
	assert.True(t, ParseDecimal("abc").IsZero())
	assert.True(t, ParseDecimal("").IsZero())
	assert.True(t, ParseDecimal("1.234,56").IsZero())
}

func TestParseDecimalRejectsOutOfRangeValues(t *testing.T) {
	for _, s := range []string{
		"1e30",
		"1E2",
		"1e-20000000",
		"1e2000000",
		"0." + strings.Repeat("0", 40) + "1",
		"1" + strings.Repeat("0", 40),
	} {
		assert.True(t, ParseDecimal(s).IsZero(), s)
	}

	assert.Equal(t, "79228162514264337593543950335",
		ParseDecimal("79228162514264337593543950335").String())
	assert.Equal(t, "0.0000000000000000000000000001",
		ParseDecimal("0,0000000000000000000000000001").String())
}

func TestComputeIgnoresExponentQuantity(t *testing.T) {
	xml := `<NFe><det nItem="1"><prod><qTrib>1e-20000000</qTrib><vProd>10.00</vProd></prod></det></NFe>`

	items, err := Compute(strings.NewReader(xml))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Quantity.IsZero())
	assert.True(t, items[0].UnitNetTotal.IsZero())
}

func TestRound2IsHalfToEven(t *testing.T) {
	assert.Equal(t, "0.12", fixed(Round2(decimal.RequireFromString("0.125"))))
	assert.Equal(t, "0.14", fixed(Round2(decimal.RequireFromString("0.135"))))
	assert.Equal(t, "0.33", fixed(Round2(decimal.NewFromInt(1).Div(decimal.NewFromInt(3)))))
}

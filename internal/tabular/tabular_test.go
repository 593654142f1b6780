package tabular

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/xmldoc"
)

func parse(t *testing.T, s string) *etree.Document {
	t.Helper()
	doc, err := xmldoc.Parse([]byte(s))
	require.NoError(t, err)
	return doc
}

const threeItemInvoice = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
  <NFe>
    <infNFe>
      <emit><xNome>Loja</xNome><CNPJ>1</CNPJ></emit>
      <det nItem="1"><prod><cProd>A1</cProd><xProd>Parafuso</xProd></prod></det>
      <det nItem="2"><prod><cProd>B2</cProd><xProd>Porca</xProd></prod></det>
      <det nItem="3"><prod><cProd>C3</cProd><xProd>Arruela</xProd></prod></det>
    </infNFe>
  </NFe>
</nfeProc>`

func TestExtractGroupTablePrefersDet(t *testing.T) {
	table, ok := ExtractGroupTable(parse(t, threeItemInvoice))
	require.True(t, ok)

	assert.Equal(t, "det", table.GroupName)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, []string{"nItem", "cProd", "xProd"}, table.Columns)

	n, _ := table.Rows[1].GetString("nItem")
	assert.Equal(t, "2", n)
	p, _ := table.Rows[2].GetString("xprod")
	assert.Equal(t, "Arruela", p)
}

func TestExtractGroupTableMatchesPrefixedDet(t *testing.T) {
	doc := parse(t, `<n:root xmlns:n="urn:x"><n:DET><n:v>1</n:v></n:DET></n:root>`)

	table, ok := ExtractGroupTable(doc)
	require.True(t, ok)
	assert.Equal(t, "DET", table.GroupName)
	require.Len(t, table.Rows, 1)
}

func TestExtractGroupTableScoresGenericGroups(t *testing.T) {
	// "tag" repeats 4 times but has no leaves below it: score 4 x 1 = 4.
	// "pedido" repeats twice with 3 leaves: score 2 x 4 = 8.
	doc := parse(t, `<lote>
	  <tags><tag/><tag/><tag/><tag/></tags>
	  <pedido><id>1</id><cliente>Ana</cliente><total>10</total></pedido>
	  <pedido><id>2</id><cliente>Bia</cliente><total>20</total></pedido>
	</lote>`)

	table, ok := ExtractGroupTable(doc)
	require.True(t, ok)
	assert.Equal(t, "pedido", table.GroupName)
	assert.Equal(t, []string{"cliente", "id", "total"}, table.Columns)
	require.Len(t, table.Rows, 2)
}

func TestExtractGroupTableWithoutRepeatsFails(t *testing.T) {
	_, ok := ExtractGroupTable(parse(t, `<a><b>1</b><c>2</c></a>`))
	assert.False(t, ok)

	_, ok = ExtractGroupTable(nil)
	assert.False(t, ok)
}

func TestExtractGroupTableMergesRepeatedLeaves(t *testing.T) {
	doc := parse(t, `<r>
	  <det><obs>a</obs><obs>A</obs><obs>b</obs><obs></obs></det>
	  <det><obs></obs><obs>x</obs></det>
	</r>`)

	table, ok := ExtractGroupTable(doc)
	require.True(t, ok)

	first, _ := table.Rows[0].GetString("obs")
	assert.Equal(t, "a | b", first)

	// An empty stored value is overwritten, not joined.
	second, _ := table.Rows[1].GetString("obs")
	assert.Equal(t, "x", second)
}

func TestExtractGroupTableColumnOrder(t *testing.T) {
	doc := parse(t, `<r>
	  <det nItem="1"><b>1</b><A>2</A></det>
	  <det nItem="2"><c>3</c><a>4</a></det>
	</r>`)

	table, ok := ExtractGroupTable(doc)
	require.True(t, ok)
	assert.Equal(t, []string{"nItem", "A", "b", "c"}, table.Columns)
}

func TestScore(t *testing.T) {
	assert.Equal(t, 8, Score(2, 3))
	assert.Equal(t, 4, Score(4, 0))
	assert.Greater(t, Score(3, 5), Score(5, 2))
}

func TestFlattenSingleRecordSuffixesRepeats(t *testing.T) {
	doc := parse(t, `<cad><nome> Ana </nome><tel>1</tel><TEL>2</TEL><x><tel>3</tel></x></cad>`)

	got := FlattenSingleRecord(doc)
	assert.Equal(t, []KV{
		{Key: "nome", Value: "Ana"},
		{Key: "tel", Value: "1"},
		{Key: "TEL_2", Value: "2"},
		{Key: "tel_3", Value: "3"},
	}, got)
}

func TestFlattenSingleRecordEmpty(t *testing.T) {
	assert.Empty(t, FlattenSingleRecord(parse(t, `<vazio/>`)))
	assert.Nil(t, FlattenSingleRecord(nil))
}

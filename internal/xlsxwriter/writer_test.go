package xlsxwriter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/NFe-to-XLSX-conversion/internal/types"
)

const invoiceXML = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
<NFe><infNFe>
<det nItem="1"><prod><cEAN>789</cEAN><xProd>Parafuso</xProd><NCM>7318</NCM><qTrib>10</qTrib><vUnTrib>10</vUnTrib><vProd>100.00</vProd><vDesc>10.00</vDesc></prod>
<imposto><ICMS><ICMS10><vICMSST>5.00</vICMSST></ICMS10></ICMS><IPI><IPITrib><vIPI>2.00</vIPI></IPITrib></IPI></imposto></det>
<det nItem="2"><prod><cEAN>790</cEAN><xProd>Porca</xProd><NCM>7318</NCM><qTrib>4</qTrib><vProd>8</vProd></prod></det>
</infNFe></NFe>
</nfeProc>`

func writeDoc(t *testing.T, dir, name, content string) types.Document {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return types.Document{XMLPath: path, Name: name, SourcePath: path}
}

func openResult(t *testing.T, path string) *excelize.File {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func raw(t *testing.T, f *excelize.File, sheet, cell string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	return v
}

func TestWriteCalculation(t *testing.T) {
	dir := t.TempDir()
	docs := []types.Document{
		writeDoc(t, dir, "nota.xml", invoiceXML),
		writeDoc(t, dir, "nota.txt", invoiceXML),
		writeDoc(t, dir, "vazia.xml", `<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe"><NFe/></nfeProc>`),
	}
	dest := filepath.Join(dir, "out.xlsx")

	report, err := WriteCalculation(docs, dest, DefaultWriteOptions())
	require.NoError(t, err)
	require.Len(t, report.Sheets, 3)

	f := openResult(t, dest)
	assert.Equal(t, []string{"nota", "nota_2", "vazia"}, f.GetSheetList())

	assert.Equal(t, "EAN", raw(t, f, "nota", "A1"))
	assert.Equal(t, "VALOR UNITARIO LIQUIDO", raw(t, f, "nota", "O1"))
	assert.Equal(t, "Parafuso", raw(t, f, "nota", "B2"))
	assert.Equal(t, "90", raw(t, f, "nota", "I2"))
	assert.Equal(t, "0.5", raw(t, f, "nota", "J2"))
	assert.Equal(t, "97", raw(t, f, "nota", "N2"))
	assert.Equal(t, "9.7", raw(t, f, "nota", "O2"))
	assert.Equal(t, "2", raw(t, f, "nota", "O3"))

	panes, err := f.GetPanes("nota")
	require.NoError(t, err)
	assert.True(t, panes.Freeze)
	assert.Equal(t, 1, panes.YSplit)

	assert.Equal(t, NoItemsMessage, raw(t, f, "vazia", "A1"))
	assert.ErrorIs(t, report.Sheets[2].Err, types.ErrNoRowsExtracted)
	assert.Len(t, report.Placeholders(), 1)
}

func TestWriteCalculationUnparsableDocumentGetsPlaceholder(t *testing.T) {
	dir := t.TempDir()
	docs := []types.Document{writeDoc(t, dir, "ruim.xml", "<nfeProc><NFe>")}
	dest := filepath.Join(dir, "out.xlsx")

	report, err := WriteCalculation(docs, dest, DefaultWriteOptions())
	require.NoError(t, err)
	assert.ErrorIs(t, report.Sheets[0].Err, types.ErrNoRowsExtracted)

	f := openResult(t, dest)
	assert.Equal(t, NoItemsMessage, raw(t, f, "ruim", "A1"))
}

func TestWriteRawGroup(t *testing.T) {
	dir := t.TempDir()
	docs := []types.Document{
		writeDoc(t, dir, "nota.xml", invoiceXML),
		writeDoc(t, dir, "cadastro.xml", `<cad><nome>Ana</nome><tel>1</tel><tel>2</tel></cad>`),
	}
	dest := filepath.Join(dir, "raw.xlsx")

	report, err := WriteRawGroup(docs, dest, DefaultWriteOptions())
	require.NoError(t, err)

	f := openResult(t, dest)
	assert.Equal(t, []string{"nota_RAW", "cadastro_RAW"}, f.GetSheetList())

	rows, err := f.GetRows("nota_RAW")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "nItem", rows[0][0])
	assert.Equal(t, "1", rows[1][0])
	assert.Contains(t, rows[0], "vIPI")

	// The second item has no vIPI.
	col := indexOf(rows[0], "vIPI")
	assert.Equal(t, "2.00", rows[1][col])
	assert.Equal(t, "não possui", rows[2][col])

	// No repeating group: two-row tag/value dump.
	assert.Equal(t, "nome", raw(t, f, "cadastro_RAW", "A1"))
	assert.Equal(t, "tel_2", raw(t, f, "cadastro_RAW", "C1"))
	assert.Equal(t, "2", raw(t, f, "cadastro_RAW", "C2"))
	assert.True(t, report.Sheets[1].Fallback)
}

func TestWriteRawGroupPlaceholderWhenNothingToDump(t *testing.T) {
	dir := t.TempDir()
	docs := []types.Document{writeDoc(t, dir, "vazio.xml", `<vazio/>`)}
	dest := filepath.Join(dir, "raw.xlsx")

	report, err := WriteRawGroup(docs, dest, DefaultWriteOptions())
	require.NoError(t, err)
	assert.ErrorIs(t, report.Sheets[0].Err, types.ErrNoRowsExtracted)

	f := openResult(t, dest)
	assert.Equal(t, NoTagValueMessage, raw(t, f, "vazio_RAW", "A1"))
}

func TestWriteFiltered(t *testing.T) {
	dir := t.TempDir()
	doc := writeDoc(t, dir, "nota.xml", invoiceXML)
	other := writeDoc(t, dir, "outra.xml", invoiceXML)
	dest := filepath.Join(dir, "filtrado.xlsx")

	// Loader view: line 0 is <nfeProc ...>, then <NFe>, <infNFe>,
	// <det nItem="1">, <prod>, <cEAN>, <xProd> ...
	selections := map[string]types.SelectionSet{
		doc.SourcePath: types.NewSelectionSet(6, 5, 999),
	}

	report, err := WriteFiltered([]types.Document{doc, other}, dest, selections, DefaultWriteOptions())
	require.NoError(t, err)

	f := openResult(t, dest)
	assert.Equal(t, []string{"nota_FILTRADO", "outra_FILTRADO"}, f.GetSheetList())

	rows, err := f.GetRows("nota_FILTRADO")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"cEAN", "xProd"},
		{"789", "Parafuso"},
		{"790", "Porca"},
	}, rows)

	assert.Equal(t, NoSelectionMessage, raw(t, f, "outra_FILTRADO", "A1"))
	assert.ErrorIs(t, report.Sheets[1].Err, types.ErrNoRowsExtracted)
}

func TestWriteFilteredFallsBackToLineDump(t *testing.T) {
	dir := t.TempDir()
	doc := writeDoc(t, dir, "texto.xml", "linha sem tag\noutra linha")
	dest := filepath.Join(dir, "filtrado.xlsx")

	selections := map[string]types.SelectionSet{doc.SourcePath: types.NewSelectionSet(0)}

	report, err := WriteFiltered([]types.Document{doc}, dest, selections, DefaultWriteOptions())
	require.NoError(t, err)
	assert.True(t, report.Sheets[0].Fallback)

	f := openResult(t, dest)
	assert.Equal(t, "Linha 1", raw(t, f, "texto_FILTRADO", "A1"))
	assert.Equal(t, "linha sem tag", raw(t, f, "texto_FILTRADO", "A2"))
}

func TestWriteFailsFastOnUnwritableDestination(t *testing.T) {
	dir := t.TempDir()
	docs := []types.Document{writeDoc(t, dir, "nota.xml", invoiceXML)}
	dest := filepath.Join(dir, "nao", "existe", "out.xlsx")

	_, err := WriteCalculation(docs, dest, DefaultWriteOptions())
	assert.ErrorIs(t, err, types.ErrWriteFailure)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteLeavesNoTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(out, 0o755))
	docs := []types.Document{writeDoc(t, dir, "nota.xml", invoiceXML)}

	_, err := WriteCalculation(docs, filepath.Join(out, "r.xlsx"), WriteOptions{})
	require.NoError(t, err)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "r.xlsx", entries[0].Name())
}

func TestDesiredColumns(t *testing.T) {
	lines := []string{
		"  <nfe:xProd>Parafuso</nfe:xProd>",
		"</det>",
		`<?xml version="1.0"?>`,
		"texto solto",
		"<XPROD>dup</XPROD>",
		"<vIPI>2.00</vIPI>",
		"",
	}
	assert.Equal(t, []string{"xProd", "vIPI"}, DesiredColumns(lines))
}

func TestSelectLines(t *testing.T) {
	lines := []string{"a", "b", "c"}
	assert.Equal(t, []string{"a", "c"}, SelectLines(lines, types.NewSelectionSet(2, 0, -1, 3)))
	assert.Empty(t, SelectLines(lines, nil))
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

package xmldoc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecodesDeclaredLatin1(t *testing.T) {
	// "Ação" in ISO-8859-1.
	data := []byte("<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><a><b>A\xe7\xe3o</b></a>")

	doc, err := Parse(data)
	require.NoError(t, err)

	leaves := Descendants(doc.Root())
	require.Len(t, leaves, 1)
	assert.Equal(t, "Ação", InnerText(leaves[0]))
}

func TestParseStripsBOM(t *testing.T) {
	doc, err := Parse(append([]byte{0xEF, 0xBB, 0xBF}, []byte("<root><x>1</x></root>")...))
	require.NoError(t, err)
	assert.Equal(t, "root", doc.Root().Tag)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("<a><b></a>"))
	require.Error(t, err)

	_, err = Parse([]byte("   "))
	require.Error(t, err)
}

func TestDescendantsAndLocalNames(t *testing.T) {
	doc, err := Parse([]byte(`<ns:a xmlns:ns="urn:x"><ns:b><ns:c>1</ns:c></ns:b><d/></ns:a>`))
	require.NoError(t, err)

	var names []string
	for _, el := range Descendants(doc.Root()) {
		names = append(names, LocalName(el))
	}
	assert.Equal(t, []string{"b", "c", "d"}, names)

	b := Descendants(doc.Root())[0]
	assert.False(t, IsLeaf(b))
	assert.True(t, IsLeaf(Descendants(doc.Root())[1]))
}

func TestDecodeTextFallsBackToWindows1252(t *testing.T) {
	assert.Equal(t, "Não", DecodeText([]byte("N\xe3o")))
	assert.Equal(t, "já utf-8", DecodeText([]byte("já utf-8")))
}

func TestLoadAndReadText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.xml")
	require.NoError(t, os.WriteFile(path, []byte(`<det nItem=" 7 "><v>x</v></det>`), 0o644))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, " 7 ", AttrValue(doc.Root(), "nItem"))
	assert.Equal(t, "", AttrValue(doc.Root(), "missing"))

	text, err := ReadText(path)
	require.NoError(t, err)
	assert.Contains(t, text, "<v>x</v>")

	_, err = Load(filepath.Join(t.TempDir(), "missing.xml"))
	require.Error(t, err)
}

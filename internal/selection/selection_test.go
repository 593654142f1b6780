package selection

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineSpec(t *testing.T) {
	tests := []struct {
		spec string
		want []int
	}{
		{"3", []int{3}},
		{"3,5,10-12", []int{3, 5, 10, 11, 12}},
		{" 7 ; 2 ,2", []int{2, 7}},
		{"0-0", []int{0}},
	}

	for _, tt := range tests {
		got, err := ParseLineSpec(tt.spec)
		require.NoError(t, err, tt.spec)
		assert.Equal(t, tt.want, got.Sorted(), tt.spec)
	}
}

func TestParseLineSpecClipsHugeRanges(t *testing.T) {
	got, err := ParseLineSpec("0-9223372036854775807")
	require.NoError(t, err)
	assert.Len(t, got, MaxLineIndex+1)
	assert.Contains(t, got, MaxLineIndex)
	assert.NotContains(t, got, MaxLineIndex+1)

	got, err = ParseLineSpec("4,200000-300000")
	require.NoError(t, err)
	assert.Equal(t, []int{4}, got.Sorted())

	got, err = ParseLineSpec("9223372036854775807")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseLineSpecErrors(t *testing.T) {
	for _, spec := range []string{"", " , ", "a", "-1", "5-2", "1-x"} {
		_, err := ParseLineSpec(spec)
		assert.Error(t, err, spec)
	}
}

func TestParseCommaFileWithHeader(t *testing.T) {
	input := "file,line\nnota1.xml,12\nnota1.xml,\"14-16\"\n\n# comentário\nin/nota2.pdf,3,5\n"

	table, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())

	s, ok := table.For("/outro/lugar/NOTA1.xml")
	require.True(t, ok)
	assert.Equal(t, []int{12, 14, 15, 16}, s.Sorted())

	s, ok = table.For("in/nota2.pdf")
	require.True(t, ok)
	assert.Equal(t, []int{3, 5}, s.Sorted())

	_, ok = table.For("nota3.xml")
	assert.False(t, ok)
}

func TestParseSemicolonFile(t *testing.T) {
	table, err := Parse(strings.NewReader("arquivo;linha\nnota.xml;1-2\n"))
	require.NoError(t, err)

	s, ok := table.For("nota.xml")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, s.Sorted())
}

func TestForPrefersFullPath(t *testing.T) {
	table := NewTable()
	a, _ := ParseLineSpec("1")
	b, _ := ParseLineSpec("2")
	table.Add("a/nota.xml", a)
	table.Add("b/nota.xml", b)

	s, _ := table.For("b/nota.xml")
	assert.Equal(t, []int{2}, s.Sorted())

	// Base-name lookup merges every file with that name.
	s, _ = table.For("c/nota.xml")
	assert.Equal(t, []int{1, 2}, s.Sorted())
}

func TestParseRejectsBadRows(t *testing.T) {
	_, err := Parse(strings.NewReader("nota.xml,1\nnota.xml,x\n"))
	assert.ErrorContains(t, err, "row 2")

	_, err = Parse(strings.NewReader("nota.xml,1\nsozinho\n"))
	assert.ErrorContains(t, err, "row 2")
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sel.csv")
	require.NoError(t, os.WriteFile(path, []byte("nota.xml,4\n"), 0o644))

	table, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, table.SourceFile)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

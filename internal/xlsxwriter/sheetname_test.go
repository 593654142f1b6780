package xlsxwriter

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeSheetName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"nota", "nota"},
		{"a[b]c*d:e/f\\g?h", "a_b_c_d_e_f_g_h"},
		{"  espaços  ", "espaços"},
		{"'citado'", "citado"},
		{"", DefaultSheetName},
		{"   ", DefaultSheetName},
		{strings.Repeat("x", 40), strings.Repeat("x", 31)},
		{strings.Repeat("ç", 40), strings.Repeat("ç", 31)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeSheetName(tt.in), tt.in)
	}
}

func TestSheetNamerAddsSuffixOnCollision(t *testing.T) {
	n := NewSheetNamer()

	assert.Equal(t, "nota", n.Next("nota"))
	assert.Equal(t, "NOTA_2", n.Next("NOTA"))
	assert.Equal(t, "nota_3", n.Next("nota"))
	assert.Equal(t, "outra", n.Next("outra"))
}

func TestSheetNamerKeepsLongNamesWithinLimit(t *testing.T) {
	n := NewSheetNamer()
	base := strings.Repeat("N", 40)

	first := n.Next(base)
	second := n.Next(base)

	assert.Equal(t, 31, utf8.RuneCountInString(first))
	assert.Equal(t, 31, utf8.RuneCountInString(second))
	assert.Equal(t, strings.Repeat("N", 29)+"_2", second)
	assert.True(t, strings.HasPrefix(first, second[:29]))
}

func TestSheetNamerSuffixDoesNotCollideWithExistingName(t *testing.T) {
	n := NewSheetNamer()

	assert.Equal(t, "a_2", n.Next("a_2"))
	assert.Equal(t, "a", n.Next("a"))
	assert.Equal(t, "a_3", n.Next("a"))
}

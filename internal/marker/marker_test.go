package marker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan_AllSyntaxes(t *testing.T) {
	tpl := "/* slot:imports */\n  // slot:body\n<!-- slot:footer -->\n"

	markers := Scan(tpl)
	require.Len(t, markers, 3)

	assert.Equal(t, "imports", markers[0].Name)
	assert.Equal(t, SyntaxBlock, markers[0].Syntax)
	assert.Equal(t, "", markers[0].Indent)

	assert.Equal(t, "body", markers[1].Name)
	assert.Equal(t, SyntaxLine, markers[1].Syntax)
	assert.Equal(t, "  ", markers[1].Indent)

	assert.Equal(t, "footer", markers[2].Name)
	assert.Equal(t, SyntaxHTML, markers[2].Syntax)
	assert.Equal(t, len(tpl), markers[2].End, "end includes trailing newline")
}

func TestScan_IgnoresInlineMarkers(t *testing.T) {
	tpl := "const a = 1 /* slot:inline */\n"
	assert.Empty(t, Scan(tpl))
}

func TestNames_DistinctInOrder(t *testing.T) {
	tpl := "// slot:b\n// slot:a\n/* slot:b */\n"
	assert.Equal(t, []string{"b", "a"}, Names(tpl))
	assert.Len(t, Find(tpl, "b"), 2)
}

func TestIndent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		indent  string
		want    string
	}{
		{"empty", "", "  ", ""},
		{"adds newline", "a", "", "a\n"},
		{"indents lines", "a\nb\n", "\t", "\ta\n\tb\n"},
		{"keeps blank lines bare", "a\n\nb", "  ", "  a\n\n  b\n"},
		{"normalizes crlf", "a\r\nb", "", "a\nb\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Indent(tt.content, tt.indent))
		})
	}
}

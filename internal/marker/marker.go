// Package marker recognises slot marker comments inside templates.
//
// Three comment syntaxes are accepted, each on a line of its own:
//
//	/* slot:NAME */
//	// slot:NAME
//	<!-- slot:NAME -->
//
// The leading whitespace of the marker line is kept so rendered slot content
// can be re-indented to match.
package marker

import (
	"regexp"
	"strings"
)

// Syntax identifies which comment form a marker uses.
type Syntax int

const (
	SyntaxBlock Syntax = iota + 1 // /* slot:NAME */
	SyntaxLine                    // // slot:NAME
	SyntaxHTML                    // <!-- slot:NAME -->
)

func (s Syntax) String() string {
	switch s {
	case SyntaxBlock:
		return "block"
	case SyntaxLine:
		return "line"
	case SyntaxHTML:
		return "html"
	default:
		return "unknown"
	}
}

var markerRE = regexp.MustCompile(`(?m)^([ \t]*)(?:` +
	`/\*[ \t]*slot:([A-Za-z0-9_.-]+)[ \t]*\*/` +
	`|//[ \t]*slot:([A-Za-z0-9_.-]+)` +
	`|<!--[ \t]*slot:([A-Za-z0-9_.-]+)[ \t]*-->` +
	`)[ \t]*\r?$`)

// Marker is one marker occurrence in a template.
// Start and End delimit the whole marker line, including its line break
// when there is one.
type Marker struct {
	Name   string
	Syntax Syntax
	Indent string
	Start  int
	End    int
}

// Scan returns every marker in the template in order of appearance.
func Scan(template string) []Marker {
	matches := markerRE.FindAllStringSubmatchIndex(template, -1)
	markers := make([]Marker, 0, len(matches))
	for _, m := range matches {
		mk := Marker{
			Indent: template[m[2]:m[3]],
			Start:  m[0],
			End:    m[1],
		}
		for group, syntax := range []Syntax{SyntaxBlock, SyntaxLine, SyntaxHTML} {
			lo, hi := m[4+group*2], m[5+group*2]
			if lo >= 0 {
				mk.Name = template[lo:hi]
				mk.Syntax = syntax
				break
			}
		}
		if mk.End < len(template) && template[mk.End] == '\n' {
			mk.End++
		}
		markers = append(markers, mk)
	}
	return markers
}

// Names returns the distinct marker names in order of first appearance.
func Names(template string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range Scan(template) {
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		names = append(names, m.Name)
	}
	return names
}

// Find returns the markers for one slot name.
func Find(template, name string) []Marker {
	var out []Marker
	for _, m := range Scan(template) {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Indent normalises line endings to \n, ensures a trailing newline and
// prefixes every non-empty line with indent. Empty input stays empty.
func Indent(content, indent string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	if content == "" {
		return ""
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if indent == "" {
		return content
	}
	lines := strings.SplitAfter(content, "\n")
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		if line != "\n" {
			b.WriteString(indent)
		}
		b.WriteString(line)
	}
	return b.String()
}

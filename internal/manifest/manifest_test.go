package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hostgen/internal/host"
	"github.com/roach88/hostgen/internal/registry"
	"github.com/roach88/hostgen/internal/runtime"
)

const siteDir = "testdata/site"

func TestLoad_YAMLAndCUEAgree(t *testing.T) {
	y, err := Load(filepath.Join(siteDir, "site.yaml"))
	require.NoError(t, err)
	c, err := Load(filepath.Join(siteDir, "site.cue"))
	require.NoError(t, err)

	assert.Equal(t, "app", y.Owner)
	assert.Len(t, y.Hosts, 5)
	assert.Equal(t, y.Hosts, c.Hosts)
	assert.Equal(t, y.Dir, c.Dir)
	assert.True(t, filepath.IsAbs(y.Dir))
}

func TestParseYAML_RejectsUnknownFields(t *testing.T) {
	_, err := ParseYAML([]byte("hosts:\n  - path: a.txt\n    txet: {content: x}\n"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeParse, le.Code)
}

func TestParseYAML_Empty(t *testing.T) {
	m, err := ParseYAML(nil)
	require.NoError(t, err)
	assert.Empty(t, m.Hosts)
}

func TestParseCUE_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"bad conflict policy", `hosts: [{path: "a.txt", conflict: "never", text: content: "x"}]`},
		{"unknown field", `hosts: [{path: "a.txt", txet: content: "x"}]`},
		{"empty path", `hosts: [{path: "", text: content: "x"}]`},
		{"unknown preset", `hosts: [{path: "a.ts", slots: {template: "", slots: a: preset: "nope"}}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCUE("m.cue", []byte(tt.src))
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, ErrCodeSchema, le.Code)
		})
	}
}

func TestParseCUE_SyntaxError(t *testing.T) {
	_, err := ParseCUE("m.cue", []byte(`hosts: [`))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeParse, le.Code)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	toml := filepath.Join(dir, "m.toml")
	require.NoError(t, os.WriteFile(toml, []byte(""), 0o644))

	_, err := Load(toml)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeUnsupported, le.Code)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)
}

func TestDeclarations_HostErrors(t *testing.T) {
	content := "x"
	tests := []struct {
		name string
		host HostDecl
		want string
	}{
		{"no mode", HostDecl{Path: "a.txt"}, "MODE_NOT_SET"},
		{"two modes", HostDecl{Path: "a.txt", Text: &TextDecl{Content: &content}, CopyFile: &CopyFileDecl{Source: "a"}}, "MODE_ALREADY_SET"},
		{"inline and file", HostDecl{Path: "a.txt", Text: &TextDecl{Content: &content, ContentFile: "a"}}, "mutually exclusive"},
		{"bad eol", HostDecl{Path: "a.txt", Text: &TextDecl{Content: &content, EOL: "cr"}}, "unknown eol"},
		{"bad stage", HostDecl{Path: "a.ts", Slots: &SlotsDecl{Template: &content, IgnoreMissing: true,
			Add: []ItemDecl{{Slot: "s", Stage: "late"}}}}, "unknown stage"},
		{"missing path", HostDecl{Text: &TextDecl{Content: &content}}, "EMPTY_PATH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Manifest{Owner: "app", Hosts: []HostDecl{tt.host}}
			_, err := m.Declarations()
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, ErrCodeHost, le.Code)
			assert.Contains(t, le.Message, "hosts[0]")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDeclarations_ResolvesFilesAndObserves(t *testing.T) {
	m, err := Load(filepath.Join(siteDir, "site.yaml"))
	require.NoError(t, err)
	decls, err := m.Declarations()
	require.NoError(t, err)
	require.Len(t, decls, 5)

	app := decls[0].Spec
	assert.Equal(t, "src/app.ts", app.ID)
	assert.Equal(t, []string{WatchID(filepath.Join(m.Dir, "templates", "app.ts.tpl"))}, app.Observe)
	tpl := app.Payload.(*host.SlotsPayload).Template
	assert.False(t, tpl.IsLiteral())
	assert.Equal(t, "file:"+filepath.ToSlash(filepath.Join(m.Dir, "templates", "app.ts.tpl")), tpl.Key())

	public := decls[2].Spec
	assert.Equal(t, filepath.Join(m.Dir, "assets"), public.Payload.(*host.CopyDirPayload).Source)
	assert.Equal(t, []string{WatchID(filepath.Join(m.Dir, "assets", "**", "*.css"))}, public.Observe)

	pages := decls[4]
	assert.Equal(t, "pages", pages.Owner)
	require.Len(t, pages.Pushes, 1)
	assert.Equal(t, "src/routes.json", pages.Pushes[0].Target)
}

func TestRegister_CommitsSite(t *testing.T) {
	m, err := Load(filepath.Join(siteDir, "site.yaml"))
	require.NoError(t, err)

	reg := registry.New()
	require.NoError(t, Register(reg, m))

	out := t.TempDir()
	rt := runtime.New(reg.Snapshot, runtime.WithOutDir(out))
	t.Cleanup(func() { rt.Close() })

	res, err := rt.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"README.md",
		"public/site.css",
		"src/app.ts",
		"src/pages.ts",
		"src/routes.json",
	}, res.Written)

	read := func(p string) string {
		data, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(p)))
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, "import React from 'react'\n\nexport function main() {\n  console.log('hello')\n}\n", read("src/app.ts"))
	assert.Equal(t, "# Generated\n", read("README.md"))
	assert.Equal(t, "body { margin: 0 }\n", read("public/site.css"))
	assert.Equal(t, "{\n  \"home\": {\n    \"key\": \"home\",\n    \"path\": \"/\"\n  }\n}\n", read("src/routes.json"))

	snap := reg.Snapshot()
	assert.Contains(t, snap.Graph.Edges, registry.Edge{From: "src/pages.ts", To: "src/routes.json"})
}

func TestRegister_IsIdempotentForSameManifest(t *testing.T) {
	m, err := Load(filepath.Join(siteDir, "site.cue"))
	require.NoError(t, err)

	reg := registry.New()
	require.NoError(t, Register(reg, m))
	require.NoError(t, Register(reg, m), "re-registering identical hosts merges owners")
	assert.Equal(t, 5, reg.Snapshot().Len())
}

package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rc = RenderContext{Host: "src/gen.ts", Slot: "s"}

func TestImports_Render(t *testing.T) {
	tests := []struct {
		name  string
		items []Item
		want  string
	}{
		{
			name: "named deduplicated and sorted by imported name",
			items: []Item{
				{Kind: KindImport, Data: ImportSpec{From: "vue", Named: []string{"watch", "ref as vueRef"}}},
				{Kind: KindImport, Data: ImportSpec{From: "vue", Named: []string{"watch", "computed"}}},
			},
			want: "import { computed, ref as vueRef, watch } from 'vue'",
		},
		{
			name: "side effect only",
			items: []Item{
				{Kind: KindImport, Data: ImportSpec{From: "./polyfill", SideEffect: true}},
			},
			want: "import './polyfill'",
		},
		{
			name: "side effect folded into named import",
			items: []Item{
				{Kind: KindImport, Data: ImportSpec{From: "x", SideEffect: true}},
				{Kind: KindImport, Data: ImportSpec{From: "x", Named: []string{"a"}}},
			},
			want: "import { a } from 'x'",
		},
		{
			name: "multiple defaults",
			items: []Item{
				{Kind: KindImport, Data: ImportSpec{From: "m", Default: "B"}},
				{Kind: KindImport, Data: ImportSpec{From: "m", Default: "A"}},
			},
			want: "import A from 'm'\nimport B from 'm'",
		},
		{
			name: "map data from manifests",
			items: []Item{
				{Kind: KindImport, Data: map[string]any{"from": "react", "default": "React", "typeOnly": false}},
			},
			want: "import React from 'react'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Imports().Render(rc, tt.items)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestImports_InvalidData(t *testing.T) {
	_, err := Imports().Render(rc, []Item{{Kind: KindImport, Data: ImportSpec{Named: []string{"a"}}}})
	assert.True(t, IsViolation(err, ErrCodeInvalidData))

	_, err = Imports().Render(rc, []Item{{Kind: KindImport, Data: 42}})
	assert.True(t, IsViolation(err, ErrCodeInvalidData))
}

func TestDeclarations_SortedByKindThenName(t *testing.T) {
	items := []Item{
		{Kind: KindDeclaration, Data: DeclarationSpec{Kind: "function", Name: "b", Code: "function b() {}\n"}},
		{Kind: KindDeclaration, Data: DeclarationSpec{Kind: "const", Name: "z", Code: "const z = 1"}},
		{Kind: KindDeclaration, Data: DeclarationSpec{Kind: "function", Name: "a", Code: "function a() {}"}},
	}

	out, err := Declarations().Render(rc, items)
	require.NoError(t, err)
	assert.Equal(t, "const z = 1\nfunction a() {}\nfunction b() {}", out)
}

func TestRegistryTable_MergesIdenticalPayloads(t *testing.T) {
	p := RegistryTable(RegistryOptions{Prefix: "export default ", Suffix: ";"})
	items := []Item{
		{Kind: KindRegistry, Key: "a", Data: map[string]any{"n": 1}, Source: Provenance{Module: "m1"}},
		{Kind: KindRegistry, Key: "a", Data: map[string]any{"n": 1.0}, Source: Provenance{Module: "m2"}},
	}

	deduped, err := p.Dedupe(rc, items)
	require.NoError(t, err)
	require.Len(t, deduped, 1)

	out, err := p.Render(rc, deduped)
	require.NoError(t, err)
	assert.Equal(t, "export default {\n  \"a\": {\n    \"n\": 1\n  }\n};", out)
}

func TestRegistryTable_ConflictingPayloads(t *testing.T) {
	p := RegistryTable(RegistryOptions{})
	items := []Item{
		{Kind: KindRegistry, Key: "a", Data: "x", Source: Provenance{Module: "m1"}},
		{Kind: KindRegistry, Key: "a", Data: "y", Source: Provenance{Module: "m2"}},
	}

	_, err := p.Dedupe(rc, items)
	require.Error(t, err)
	assert.True(t, IsViolation(err, ErrCodeRegistryConflict))
	assert.Contains(t, err.Error(), "m1 vs m2")
}

func TestSnippets_RejectsNonText(t *testing.T) {
	_, err := Snippets().Render(rc, []Item{{Kind: KindSnippet, Key: "k", Data: map[string]any{}}})
	assert.True(t, IsViolation(err, ErrCodeInvalidData))
}

func TestPresetApply_KeepsExplicitFields(t *testing.T) {
	custom := func(RenderContext, []Item) (string, error) { return "custom", nil }
	s := &Spec{Name: "x", Accepts: []string{"a"}, Render: custom}
	Imports().Apply(s)

	assert.Equal(t, []string{"a"}, s.Accepts)
	out, err := s.Render(rc, nil)
	require.NoError(t, err)
	assert.Equal(t, "custom", out)
	assert.Equal(t, "imports", s.Preset)
}

func TestPresetByName(t *testing.T) {
	for _, name := range []string{"snippet", "imports", "declarations", "registry"} {
		_, ok := PresetByName(name)
		assert.True(t, ok, name)
	}
	_, ok := PresetByName("nope")
	assert.False(t, ok)
}

func TestCompareItems_TotalOrder(t *testing.T) {
	items := []Item{
		{Kind: "b", Key: "", Seq: 1},
		{Kind: "a", Key: "z", Stage: StagePost},
		{Kind: "a", Key: "y", Order: 2},
		{Kind: "a", Key: "y", Order: 1, Source: Provenance{Module: "m2"}},
		{Kind: "a", Key: "y", Order: 1, Source: Provenance{Module: "m1"}},
		{Kind: "b", Key: "k"},
		{Kind: "x", Stage: StagePre},
	}
	want := []Item{items[6], items[5], items[0], items[4], items[3], items[2], items[1]}

	got := append([]Item(nil), items...)
	sortItems(got)
	assert.Equal(t, want, got)
}

package codegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docleaai/doclea/pkg/memory"
)

func TestMap_EmitsNodesForRecognizedKinds(t *testing.T) {
	idx := Index{
		Documents: []Document{
			{
				RelativePath: "pkg/foo/foo.go",
				Symbols: []Symbol{
					{Symbol: "pkg/foo/Foo#", Kind: "class", DisplayName: "Foo"},
					{Symbol: "pkg/foo/Foo#Bar().", Kind: "function", DisplayName: "Bar"},
					{Symbol: "pkg/foo/unknown", Kind: "literal"},
				},
			},
		},
	}

	nodes, _ := Map(idx)
	require.Len(t, nodes, 2)

	byID := map[string]memory.CodeNode{}
	for _, n := range nodes {
		byID[n.ID] = n
	}
	assert.Equal(t, memory.CodeNodeClass, byID["pkg/foo/Foo#"].Type)
	assert.Equal(t, memory.CodeNodeFunction, byID["pkg/foo/Foo#Bar()."].Type)
}

func TestMap_InfersKindFromDescriptorSuffix(t *testing.T) {
	idx := Index{
		Documents: []Document{
			{
				RelativePath: "pkg/foo/foo.go",
				Symbols: []Symbol{
					{Symbol: "pkg/foo/Baz()."},
					{Symbol: "pkg/foo/Qux#"},
					{Symbol: "pkg/foo/"},
				},
			},
		},
	}

	nodes, _ := Map(idx)
	require.Len(t, nodes, 3)
	byID := map[string]memory.CodeNode{}
	for _, n := range nodes {
		byID[n.ID] = n
	}
	assert.Equal(t, memory.CodeNodeFunction, byID["pkg/foo/Baz()."].Type)
	assert.Equal(t, memory.CodeNodeClass, byID["pkg/foo/Qux#"].Type)
	assert.Equal(t, memory.CodeNodeModule, byID["pkg/foo/"].Type)
}

func TestMap_RelationshipEdges(t *testing.T) {
	idx := Index{
		Documents: []Document{
			{
				RelativePath: "pkg/foo/foo.go",
				Symbols: []Symbol{
					{
						Symbol: "pkg/foo/Impl#", Kind: "class",
						Relationships: []Relationship{
							{Symbol: "pkg/foo/Iface#", IsImplementation: true},
						},
					},
					{
						Symbol: "pkg/foo/Sub#", Kind: "class",
						Relationships: []Relationship{
							{Symbol: "pkg/foo/Base#", IsTypeDefinition: true},
						},
					},
				},
			},
		},
	}

	_, edges := Map(idx)
	require.Len(t, edges, 2)

	var implements, extends bool
	for _, e := range edges {
		switch e.Type {
		case memory.CodeEdgeImplements:
			implements = e.FromNode == "pkg/foo/Impl#" && e.ToNode == "pkg/foo/Iface#"
		case memory.CodeEdgeExtends:
			extends = e.FromNode == "pkg/foo/Sub#" && e.ToNode == "pkg/foo/Base#"
		}
	}
	assert.True(t, implements)
	assert.True(t, extends)
}

func TestMap_OccurrenceEdgesFromEnclosingDefinition(t *testing.T) {
	idx := Index{
		Documents: []Document{
			{
				RelativePath: "pkg/foo/foo.go",
				Symbols: []Symbol{
					{Symbol: "pkg/foo/Caller().", Kind: "function"},
					{Symbol: "pkg/foo/Callee().", Kind: "function"},
				},
				Occurrences: []Occurrence{
					{Symbol: "pkg/foo/Caller().", Range: []int{0, 0, 10, 1}, SymbolRoles: RoleDefinition},
					{Symbol: "pkg/foo/Callee().", Range: []int{5, 4, 10}, SymbolRoles: RoleRead},
					{Symbol: "pkg/other", Range: []int{1, 0, 5}, SymbolRoles: RoleImport},
				},
			},
		},
	}

	_, edges := Map(idx)

	var calls, imports bool
	for _, e := range edges {
		if e.Type == memory.CodeEdgeCalls && e.FromNode == "pkg/foo/Caller()." && e.ToNode == "pkg/foo/Callee()." {
			calls = true
		}
		if e.Type == memory.CodeEdgeImports && e.FromNode == "pkg/foo/Caller()." && e.ToNode == "pkg/other" {
			imports = true
		}
	}
	assert.True(t, calls)
	assert.True(t, imports)
}

func TestNormalizeRange_SingleAndMultiLine(t *testing.T) {
	single := normalizeRange([]int{4, 0, 10})
	assert.Equal(t, 5, single.startLine)
	assert.Equal(t, 5, single.endLine)

	multi := normalizeRange([]int{4, 0, 9, 1})
	assert.Equal(t, 5, multi.startLine)
	assert.Equal(t, 10, multi.endLine)
}

package mcptool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_AllOperationsDeclared(t *testing.T) {
	tools := Catalog()

	want := []string{
		OpStore, OpSearch, OpGet, OpUpdate, OpDelete, OpInit,
		OpDetectRelations, OpGetSuggestions, OpReviewSuggestion, OpBulkReview,
		OpSuggestRelations, OpSuggestCrossLayer, OpGetCrossLayerSuggestions,
		OpReviewCrossLayer, OpBulkReviewCrossLayer, OpRefreshConfidence,
		OpGraphRAGSearch, OpExport, OpImport,
		OpChangelog, OpCommitMessage, OpPRDescription, OpSuggestReviewers,
	}

	got := make(map[string]bool, len(tools))
	for _, tool := range tools {
		got[tool.Definition.Name] = true
		require.NotNil(t, tool.Definition.InputSchema, "tool %q missing input schema", tool.Definition.Name)
	}

	for _, name := range want {
		assert.True(t, got[name], "catalog missing operation %q", name)
	}
	assert.Len(t, tools, len(want))
}

func TestCatalog_GitPorcelainStubsReturnNotImplemented(t *testing.T) {
	stubs := map[string]bool{
		OpChangelog: true, OpCommitMessage: true, OpPRDescription: true, OpSuggestReviewers: true,
	}

	for _, tool := range Catalog() {
		if !stubs[tool.Definition.Name] {
			continue
		}
		require.NotNil(t, tool.Handler, "stub %q has no handler", tool.Definition.Name)
		_, err := tool.Handler(context.Background(), "{}")
		assert.ErrorIs(t, err, ErrNotImplemented)
	}
}

func TestToolDefinition_ToMCP(t *testing.T) {
	def := ToolDefinition{Name: "search", Description: "desc"}
	mt := def.ToMCP()
	require.NotNil(t, mt)
	assert.Equal(t, "search", mt.Name)
	assert.Equal(t, "desc", mt.Description)
}

func TestToolResult_ToCallToolResult(t *testing.T) {
	res := ToolResult{Content: "hello", IsError: true}
	ctr := res.ToCallToolResult()
	require.Len(t, ctr.Content, 1)
	assert.True(t, ctr.IsError)
}

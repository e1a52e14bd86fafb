package chunk_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docleaai/doclea/pkg/chunk"
)

func TestSplitPreservesFrontmatter(t *testing.T) {
	doc := "---\ntitle: x\n---\n# Heading\n\nbody text\n"
	chunks := chunk.Split(doc, chunk.Options{})
	require.NotEmpty(t, chunks)
	require.True(t, chunks[0].Metadata.HasFrontmatter)
	require.Contains(t, chunks[0].Content, "title: x")
}

func TestSplitKeepsCodeFenceAtomic(t *testing.T) {
	doc := "# A\n\n```go\nfunc main() {\n\tprintln(\"hi\")\n}\n```\n\nafter\n"
	chunks := chunk.Split(doc, chunk.Options{MaxTokens: 1})
	require.NotEmpty(t, chunks)

	var sawFence bool
	for _, c := range chunks {
		if strings.Contains(c.Content, "```go") {
			sawFence = true
			require.True(t, c.Metadata.HasCodeBlock)
			require.Contains(t, c.Content, "}\n```") // closing fence present after the body, never split mid-block
		}
	}
	require.True(t, sawFence)
}

func TestSplitHeaderHierarchy(t *testing.T) {
	doc := "# A\n\n## B\n\ntext under B\n\n## C\n\ntext under C\n"
	chunks := chunk.Split(doc, chunk.Options{})

	var sawB, sawC bool
	for _, c := range chunks {
		if strings.Contains(c.Content, "text under B") {
			require.Equal(t, []string{"A", "B"}, c.Metadata.Headers)
			sawB = true
		}
		if strings.Contains(c.Content, "text under C") {
			require.Equal(t, []string{"A", "C"}, c.Metadata.Headers)
			sawC = true
		}
	}
	require.True(t, sawB)
	require.True(t, sawC)
}

func TestSplitNormalizesCRLF(t *testing.T) {
	doc := "# A\r\n\r\nbody\r\n"
	chunks := chunk.Split(doc, chunk.Options{})
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		require.NotContains(t, c.Content, "\r")
	}
}

func TestSplitUnclosedFenceConsumesRest(t *testing.T) {
	doc := "# A\n\n```go\nfunc f() {}\n"
	chunks := chunk.Split(doc, chunk.Options{})
	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	require.True(t, last.Metadata.HasCodeBlock)
}

func TestToMemoryChunksDisjointAndOrdered(t *testing.T) {
	doc := "# A\n\nfirst paragraph\n\nsecond paragraph\n"
	chunks := chunk.Split(doc, chunk.Options{MaxTokens: 2})
	memChunks := chunk.ToMemoryChunks(doc, chunks)

	for i := 1; i < len(memChunks); i++ {
		require.LessOrEqual(t, memChunks[i-1].EndOffset, memChunks[i].StartOffset)
	}
	for _, c := range memChunks {
		require.LessOrEqual(t, c.EndOffset, len(doc))
		require.Less(t, c.StartOffset, c.EndOffset)
	}
}

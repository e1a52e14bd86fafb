package chunk

import (
	"strings"

	"github.com/docleaai/doclea/pkg/memory"
)

// ToMemoryChunks computes byte offsets for each chunker [Chunk] against the
// full document text and returns the storage-facing [memory.Chunk] rows,
// disjoint and ordered per spec.md §3 invariant 5. Header-hierarchy
// metadata does not survive this step — it exists only to guide splitting.
func ToMemoryChunks(documentText string, chunks []Chunk) []memory.Chunk {
	out := make([]memory.Chunk, 0, len(chunks))
	cursor := 0
	for _, c := range chunks {
		idx := indexFrom(documentText, c.Content, cursor)
		start := idx
		if idx < 0 {
			start = cursor
		}
		end := start + len(c.Content)
		out = append(out, memory.Chunk{
			Content:     c.Content,
			StartOffset: start,
			EndOffset:   end,
		})
		cursor = end
	}
	return out
}

func indexFrom(haystack, needle string, from int) int {
	if from > len(haystack) {
		from = len(haystack)
	}
	idx := strings.Index(haystack[from:], needle)
	if idx < 0 {
		return -1
	}
	return from + idx
}

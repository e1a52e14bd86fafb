package weaviate

import (
	"fmt"

	"github.com/docleaai/doclea/pkg/vectorstore"
)

// parseSearchResponse walks the untyped GraphQL Get response shape
// ({"Get": {"<Class>": [{...}, ...]}}) into [vectorstore.SearchResult]s.
func parseSearchResponse(data map[string]any, class string) ([]vectorstore.SearchResult, error) {
	getField, ok := data["Get"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("vectorstore/weaviate: unexpected response shape: missing Get")
	}
	items, ok := getField[class].([]any)
	if !ok {
		return nil, nil
	}

	out := make([]vectorstore.SearchResult, 0, len(items))
	for _, raw := range items {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		ownerKind, _ := obj[fieldOwnerKind].(string)
		ownerID, _ := obj[fieldOwnerID].(string)

		var id string
		var certainty float64
		if additional, ok := obj["_additional"].(map[string]any); ok {
			id, _ = additional["id"].(string)
			if c, ok := additional["certainty"].(float64); ok {
				certainty = c
			}
		}

		out = append(out, vectorstore.SearchResult{
			Record: vectorstore.Record{
				ID:        id,
				OwnerKind: vectorstore.OwnerKind(ownerKind),
				OwnerID:   ownerID,
			},
			Similarity: certainty,
		})
	}
	return out, nil
}

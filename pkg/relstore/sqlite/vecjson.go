package sqlite

import "encoding/json"

// encodeFloat32JSON/decodeFloat32JSON store []float32 vectors as plain JSON
// arrays in TEXT columns (embedding_cache.embedding). The KNN-searchable
// copy of a vector lives in pkg/vectorstore, not here — this column only
// backs cache lookups by (content_hash, model).
func encodeFloat32JSON(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeFloat32JSON(s string) []float32 {
	if s == "" {
		return nil
	}
	var out []float32
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

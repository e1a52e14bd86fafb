package portable

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// requiredTopLevelFields are the export document's required keys (spec.md
// §4.M/§6). A compatible reader must reject a document missing any of
// these but tolerate any additional, unrecognized key — the opposite of
// [config.LoadFromReader]'s DisallowUnknownFields, which is appropriate
// for an operator-authored config file but wrong for a document another,
// possibly newer, version of this program wrote.
var requiredTopLevelFields = []string{
	"version", "exportedAt", "backendType", "storageMode", "schemaVersion", "data", "metadata",
}

var requiredDataFields = []string{
	"memories", "documents", "chunks", "memoryRelations", "crossLayerRelations", "pendingMemories",
}

// Load decodes a portable export [Document] from r, requiring every field
// in [requiredTopLevelFields] and [requiredDataFields] to be present while
// tolerating any unrecognized field.
func Load(r io.Reader) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("portable: read export document: %w", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("portable: decode export document: %w", err)
	}
	if err := requireFields("export document", top, requiredTopLevelFields); err != nil {
		return nil, err
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(top["data"], &data); err != nil {
		return nil, fmt.Errorf("portable: decode export document data: %w", err)
	}
	if err := requireFields("export document data", data, requiredDataFields); err != nil {
		return nil, err
	}

	doc := &Document{}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("portable: decode export document: %w", err)
	}
	if doc.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("portable: unsupported schema version %q (want %q)", doc.SchemaVersion, SchemaVersion)
	}
	return doc, nil
}

func requireFields(what string, present map[string]json.RawMessage, required []string) error {
	var errs []error
	for _, f := range required {
		if _, ok := present[f]; !ok {
			errs = append(errs, fmt.Errorf("%s: missing required field %q", what, f))
		}
	}
	return errors.Join(errs...)
}

// Encode writes doc to w as indented JSON.
func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("portable: encode export document: %w", err)
	}
	return nil
}

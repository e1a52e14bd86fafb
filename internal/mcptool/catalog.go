package mcptool

import "github.com/google/jsonschema-go/jsonschema"

// Operation name constants, one per spec.md §6 tool.
const (
	OpStore                     = "store"
	OpSearch                    = "search"
	OpGet                       = "get"
	OpUpdate                    = "update"
	OpDelete                    = "delete"
	OpInit                      = "init"
	OpDetectRelations           = "detect_relations"
	OpGetSuggestions            = "get_suggestions"
	OpReviewSuggestion          = "review_suggestion"
	OpBulkReview                = "bulk_review"
	OpSuggestRelations          = "suggest_relations"
	OpSuggestCrossLayer         = "suggest_crosslayer"
	OpGetCrossLayerSuggestions  = "get_crosslayer_suggestions"
	OpReviewCrossLayer          = "review_crosslayer"
	OpBulkReviewCrossLayer      = "bulk_review_crosslayer"
	OpRefreshConfidence         = "refresh_confidence"
	OpGraphRAGSearch            = "graphrag_search"
	OpExport                    = "export"
	OpImport                    = "import"

	// Git-porcelain operations. Explicitly out of scope; see [ErrNotImplemented].
	OpChangelog        = "changelog"
	OpCommitMessage    = "commit_message"
	OpPRDescription    = "pr_description"
	OpSuggestReviewers = "suggest_reviewers"
)

func strProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func intProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: desc}
}

func numProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number", Description: desc}
}

func boolProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "boolean", Description: desc}
}

func enumProp(desc string, values ...string) *jsonschema.Schema {
	anys := make([]any, len(values))
	for i, v := range values {
		anys[i] = v
	}
	return &jsonschema.Schema{Type: "string", Description: desc, Enum: anys}
}

func arrayProp(desc string, items *jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Description: desc, Items: items}
}

func objSchema(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

// Catalog returns the full set of [ToolDefinition] values named in spec.md
// §6, in declaration order. Handlers for the nineteen memory operations are
// the caller's responsibility to wire to a concrete backend; the four
// git-porcelain operations are pre-bound to [ErrNotImplemented].
func Catalog() []Tool {
	return []Tool{
		{
			Definition: ToolDefinition{
				Name:        OpStore,
				Description: "Persist a new memory, embed its content, and upsert it into the vector index. The content is stored as given; it is not chunked.",
				InputSchema: objSchema([]string{"type", "content"}, map[string]*jsonschema.Schema{
					"type":          enumProp("Memory type.", "decision", "solution", "pattern", "architecture", "note"),
					"content":       strProp("Free-text content of the memory."),
					"tags":          arrayProp("Caller-supplied tags.", strProp("")),
					"relatedFiles":  arrayProp("Repository-relative file paths this memory concerns.", strProp("")),
					"importance":    numProp("Caller-asserted importance, 0.0-1.0."),
				}),
				Idempotent: false,
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpSearch,
				Description: "Run a scored semantic retrieval query across memories. The code graph and GraphRAG graph are not searched.",
				InputSchema: objSchema([]string{"query"}, map[string]*jsonschema.Schema{
					"query":     strProp("Natural-language search query."),
					"topK":      intProp("Maximum number of results. Defaults to 10."),
					"types":     arrayProp("Restrict to these memory types.", strProp("")),
					"tags":      arrayProp("Restrict to memories carrying any of these tags.", strProp("")),
					"minScore":  numProp("Discard results scoring below this threshold."),
				}),
				Idempotent:       true,
				CacheableSeconds: 15,
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpGet,
				Description: "Fetch a single memory by ID.",
				InputSchema: objSchema([]string{"id"}, map[string]*jsonschema.Schema{
					"id": strProp("Memory ID."),
				}),
				Idempotent:       true,
				CacheableSeconds: 30,
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpUpdate,
				Description: "Apply a partial update to an existing memory, re-embedding and re-upserting if content changed.",
				InputSchema: objSchema([]string{"id"}, map[string]*jsonschema.Schema{
					"id":         strProp("Memory ID."),
					"content":    strProp("New content. Omit to leave unchanged."),
					"importance": numProp("New importance, 0.0-1.0. Omit to leave unchanged."),
					"tags":       arrayProp("Replacement tag set. Omit to leave unchanged.", strProp("")),
				}),
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpDelete,
				Description: "Delete a memory and its vector-index entry.",
				InputSchema: objSchema([]string{"id"}, map[string]*jsonschema.Schema{
					"id": strProp("Memory ID."),
				}),
				Idempotent: true,
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpInit,
				Description: "Initialise the relational schema and vector index for a new project, applying any pending migrations.",
				InputSchema: objSchema(nil, map[string]*jsonschema.Schema{
					"dryRun": boolProp("Plan migrations without applying them."),
				}),
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpDetectRelations,
				Description: "Run the memory-memory relation detector over a set of candidate memories, auto-approving high-confidence matches and recording the rest as suggestions.",
				InputSchema: objSchema(nil, map[string]*jsonschema.Schema{
					"memoryIds": arrayProp("Restrict detection to these memory IDs. Omit to scan all memories.", strProp("")),
				}),
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpGetSuggestions,
				Description: "List pending memory-memory relation suggestions awaiting review.",
				InputSchema: objSchema(nil, map[string]*jsonschema.Schema{
					"limit": intProp("Maximum number of suggestions to return."),
				}),
				Idempotent: true,
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpReviewSuggestion,
				Description: "Approve or reject a single pending relation suggestion.",
				InputSchema: objSchema([]string{"id", "decision"}, map[string]*jsonschema.Schema{
					"id":       strProp("Suggestion ID."),
					"decision": enumProp("Review outcome.", "approved", "rejected"),
				}),
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpBulkReview,
				Description: "Approve or reject many pending relation suggestions in one call.",
				InputSchema: objSchema([]string{"ids", "decision"}, map[string]*jsonschema.Schema{
					"ids":      arrayProp("Suggestion IDs.", strProp("")),
					"decision": enumProp("Review outcome applied to every ID.", "approved", "rejected"),
				}),
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpSuggestRelations,
				Description: "Run the memory-memory relation detector for a single memory on demand; auto-approved relations and suggestions are persisted as detect_relations does.",
				InputSchema: objSchema([]string{"id"}, map[string]*jsonschema.Schema{
					"id": strProp("Memory ID to find relation candidates for."),
				}),
				Idempotent:       true,
				CacheableSeconds: 10,
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpSuggestCrossLayer,
				Description: "Run the memory-code relation detector for a single memory against the code graph.",
				InputSchema: objSchema([]string{"memoryId"}, map[string]*jsonschema.Schema{
					"memoryId": strProp("Memory ID to find code-graph relation candidates for."),
				}),
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpGetCrossLayerSuggestions,
				Description: "List pending memory-code relation suggestions awaiting review.",
				InputSchema: objSchema(nil, map[string]*jsonschema.Schema{
					"limit": intProp("Maximum number of suggestions to return."),
				}),
				Idempotent: true,
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpReviewCrossLayer,
				Description: "Approve or reject a single pending cross-layer suggestion.",
				InputSchema: objSchema([]string{"id", "decision"}, map[string]*jsonschema.Schema{
					"id":       strProp("Suggestion ID."),
					"decision": enumProp("Review outcome.", "approved", "rejected"),
				}),
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpBulkReviewCrossLayer,
				Description: "Approve or reject many pending cross-layer suggestions in one call.",
				InputSchema: objSchema([]string{"ids", "decision"}, map[string]*jsonschema.Schema{
					"ids":      arrayProp("Suggestion IDs.", strProp("")),
					"decision": enumProp("Review outcome applied to every ID.", "approved", "rejected"),
				}),
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpRefreshConfidence,
				Description: "Reset every memory's decay anchor (lastRefreshedAt) to now and report each memory's effective confidence before and after. Staleness is not re-evaluated.",
				InputSchema: objSchema(nil, nil),
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpGraphRAGSearch,
				Description: "Run a local or global GraphRAG search over the entity/community/report graph.",
				InputSchema: objSchema([]string{"query"}, map[string]*jsonschema.Schema{
					"query": strProp("Natural-language query."),
					"scope": enumProp("Search scope.", "local", "global"),
				}),
				Idempotent:       true,
				CacheableSeconds: 15,
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpExport,
				Description: "Export memories, relations, and suggestions to a portable document.",
				InputSchema: objSchema(nil, map[string]*jsonschema.Schema{
					"memoryIds": arrayProp("Accepted but not applied: the export always covers every memory.", strProp("")),
				}),
				Idempotent: true,
			},
		},
		{
			Definition: ToolDefinition{
				Name:        OpImport,
				Description: "Import a portable export document, applying the configured conflict policy to overlapping IDs.",
				InputSchema: objSchema([]string{"document"}, map[string]*jsonschema.Schema{
					"document":       strProp("JSON-encoded portable export document."),
					"conflictPolicy": enumProp("How to resolve ID collisions.", "skip", "overwrite", "error"),
				}),
			},
		},

		// Git-porcelain tools: declared for catalogue completeness, always
		// return ErrNotImplemented.
		{Definition: ToolDefinition{Name: OpChangelog, Description: "Out of scope.", InputSchema: objSchema(nil, nil)}, Handler: notImplementedHandler},
		{Definition: ToolDefinition{Name: OpCommitMessage, Description: "Out of scope.", InputSchema: objSchema(nil, nil)}, Handler: notImplementedHandler},
		{Definition: ToolDefinition{Name: OpPRDescription, Description: "Out of scope.", InputSchema: objSchema(nil, nil)}, Handler: notImplementedHandler},
		{Definition: ToolDefinition{Name: OpSuggestReviewers, Description: "Out of scope.", InputSchema: objSchema(nil, nil)}, Handler: notImplementedHandler},
	}
}

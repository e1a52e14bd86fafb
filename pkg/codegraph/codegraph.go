// Package codegraph maps a compiler-accurate symbol-index document (spec.md
// §4.E) into the [memory.CodeNode]/[memory.CodeEdge] shapes the relational
// store persists.
package codegraph

import (
	"strings"

	"github.com/docleaai/doclea/pkg/memory"
)

// Symbol-occurrence role bit flags, following the same convention as SCIP
// occurrence roles: a symbol's role on one occurrence is the OR of the bits
// that apply.
const (
	RoleDefinition = 1 << 0
	RoleImport     = 1 << 1
	RoleRead       = 1 << 2
	RoleWrite      = 1 << 3
)

// Index is the root symbol-index document.
type Index struct {
	Documents []Document `json:"documents"`
}

// Document is one source file's symbol table.
type Document struct {
	RelativePath string       `json:"relativePath"`
	Symbols      []Symbol     `json:"symbols"`
	Occurrences  []Occurrence `json:"occurrences"`
}

// Symbol describes one declared symbol within a [Document].
type Symbol struct {
	Symbol          string         `json:"symbol"`
	DisplayName     string         `json:"displayName,omitempty"`
	Documentation   []string       `json:"documentation,omitempty"`
	EnclosingSymbol string         `json:"enclosingSymbol,omitempty"`
	Kind            string         `json:"kind,omitempty"`
	Relationships   []Relationship `json:"relationships,omitempty"`
}

// Relationship links a [Symbol] to another symbol it implements, extends, or
// references.
type Relationship struct {
	Symbol           string `json:"symbol"`
	IsImplementation bool   `json:"isImplementation,omitempty"`
	IsTypeDefinition bool   `json:"isTypeDefinition,omitempty"`
	IsReference      bool   `json:"isReference,omitempty"`
}

// Occurrence is one appearance of a symbol at a source range.
type Occurrence struct {
	Symbol string `json:"symbol"`
	// Range is either [line, col, endCol] (single-line) or
	// [line, col, endLine, endCol], 0-based per the symbol-index convention.
	Range        []int `json:"range"`
	SymbolRoles  int   `json:"symbolRoles,omitempty"`
}

// normalizedRange is an Occurrence.Range converted to 1-based inclusive
// start/end lines.
type normalizedRange struct {
	startLine, endLine int
}

func normalizeRange(r []int) normalizedRange {
	switch len(r) {
	case 3:
		return normalizedRange{startLine: r[0] + 1, endLine: r[0] + 1}
	case 4:
		return normalizedRange{startLine: r[0] + 1, endLine: r[2] + 1}
	default:
		return normalizedRange{}
	}
}

// kindToNodeType maps a declared or inferred kind string to a
// [memory.CodeNodeType]. Returns ok=false for kinds with no graph
// representation.
func kindToNodeType(kind string) (memory.CodeNodeType, bool) {
	switch strings.ToLower(kind) {
	case "function", "method":
		return memory.CodeNodeFunction, true
	case "class":
		return memory.CodeNodeClass, true
	case "interface":
		return memory.CodeNodeInterface, true
	case "type":
		return memory.CodeNodeTypeKind, true
	case "module":
		return memory.CodeNodeModule, true
	case "package", "namespace":
		return memory.CodeNodePackage, true
	default:
		return "", false
	}
}

// inferKind guesses a symbol's kind from its descriptor suffix and
// documentation text when Kind is unspecified (spec.md §4.E rule 1).
func inferKind(sym Symbol) (memory.CodeNodeType, bool) {
	desc := sym.Symbol
	switch {
	case strings.HasSuffix(desc, "()."):
		return memory.CodeNodeFunction, true
	case strings.HasSuffix(desc, "#"):
		return memory.CodeNodeClass, true
	case strings.HasSuffix(desc, "/"):
		return memory.CodeNodeModule, true
	}

	doc := strings.ToLower(strings.Join(sym.Documentation, "\n"))
	switch {
	case strings.Contains(doc, "=>"), strings.Contains(doc, "function"):
		return memory.CodeNodeFunction, true
	case strings.Contains(doc, "interface"):
		return memory.CodeNodeInterface, true
	case strings.Contains(doc, "class"):
		return memory.CodeNodeClass, true
	case strings.Contains(doc, "namespace"):
		return memory.CodeNodePackage, true
	case strings.Contains(doc, "type"):
		return memory.CodeNodeTypeKind, true
	}
	return "", false
}

// resolveNodeType applies the declared-kind-first, inferred-kind-fallback
// rule.
func resolveNodeType(sym Symbol) (memory.CodeNodeType, bool) {
	if sym.Kind != "" {
		if t, ok := kindToNodeType(sym.Kind); ok {
			return t, true
		}
	}
	return inferKind(sym)
}

func displayName(sym Symbol) string {
	if sym.DisplayName != "" {
		return sym.DisplayName
	}
	return sym.Symbol
}

func summary(sym Symbol) string {
	return strings.Join(sym.Documentation, "\n")
}

// Map converts a symbol-index document into the graph's nodes and edges.
// Node IDs are the raw symbol descriptor strings (already globally unique
// within the index); edges carry no ID of their own. Callers persisting
// through [memory.CodeGraphStore] may re-key them as needed.
func Map(idx Index) ([]memory.CodeNode, []memory.CodeEdge) {
	var nodes []memory.CodeNode
	nodeTypes := make(map[string]bool) // symbol -> has a CodeNode

	for _, doc := range idx.Documents {
		for _, sym := range doc.Symbols {
			nodeType, ok := resolveNodeType(sym)
			if !ok {
				continue
			}
			startLine, endLine := definitionLines(doc, sym.Symbol)
			nodes = append(nodes, memory.CodeNode{
				ID:        sym.Symbol,
				Type:      nodeType,
				Name:      displayName(sym),
				FilePath:  doc.RelativePath,
				StartLine: startLine,
				EndLine:   endLine,
				Summary:   summary(sym),
			})
			nodeTypes[sym.Symbol] = true
		}
	}

	var edges []memory.CodeEdge
	seen := make(map[string]bool)
	addEdge := func(from, to string, typ memory.CodeEdgeType) {
		if from == "" || to == "" || from == to {
			return
		}
		key := from + "\x00" + to + "\x00" + string(typ)
		if seen[key] {
			return
		}
		seen[key] = true
		edges = append(edges, memory.CodeEdge{FromNode: from, ToNode: to, Type: typ})
	}

	for _, doc := range idx.Documents {
		for _, sym := range doc.Symbols {
			for _, rel := range sym.Relationships {
				switch {
				case rel.IsImplementation:
					addEdge(sym.Symbol, rel.Symbol, memory.CodeEdgeImplements)
				case rel.IsTypeDefinition:
					addEdge(sym.Symbol, rel.Symbol, memory.CodeEdgeExtends)
				case rel.IsReference:
					addEdge(sym.Symbol, rel.Symbol, memory.CodeEdgeReferences)
				}
			}
		}

		definitions := definitionRanges(doc)
		for _, occ := range doc.Occurrences {
			if occ.SymbolRoles&RoleDefinition != 0 {
				continue
			}
			enclosing := smallestEnclosing(definitions, normalizeRange(occ.Range))
			if enclosing == "" {
				continue
			}
			if occ.SymbolRoles&RoleImport != 0 {
				addEdge(enclosing, occ.Symbol, memory.CodeEdgeImports)
			} else {
				addEdge(enclosing, occ.Symbol, memory.CodeEdgeCalls)
			}
		}
	}

	return nodes, edges
}

type definitionRange struct {
	symbol string
	rng    normalizedRange
}

// definitionRanges collects every occurrence in doc marked as a definition,
// used to resolve the smallest enclosing symbol for non-definition
// occurrences.
func definitionRanges(doc Document) []definitionRange {
	var out []definitionRange
	for _, occ := range doc.Occurrences {
		if occ.SymbolRoles&RoleDefinition == 0 {
			continue
		}
		out = append(out, definitionRange{symbol: occ.Symbol, rng: normalizeRange(occ.Range)})
	}
	return out
}

// definitionLines returns the definition occurrence's line span for symbol
// in doc, or (0,0) if no definition occurrence exists.
func definitionLines(doc Document, symbol string) (start, end int) {
	for _, occ := range doc.Occurrences {
		if occ.Symbol == symbol && occ.SymbolRoles&RoleDefinition != 0 {
			r := normalizeRange(occ.Range)
			return r.startLine, r.endLine
		}
	}
	return 0, 0
}

// smallestEnclosing finds the definition range with the tightest span that
// contains target, per spec.md §4.E rule 3.
func smallestEnclosing(defs []definitionRange, target normalizedRange) string {
	best := ""
	bestSpan := -1
	for _, d := range defs {
		if d.rng.startLine > target.startLine || d.rng.endLine < target.endLine {
			continue
		}
		span := d.rng.endLine - d.rng.startLine
		if bestSpan == -1 || span < bestSpan {
			bestSpan = span
			best = d.symbol
		}
	}
	return best
}

// Package mcptool defines the tool-surface types shared with the (external)
// Model Context Protocol dispatcher: the catalogue of [ToolDefinition] values
// describing every memory operation in spec.md §6, the [ToolResult] shape
// returned from executing one, and conversion helpers to the official MCP Go
// SDK's wire types.
//
// The dispatcher that owns server lifecycle, transport, and routing is out of
// scope for this module (spec.md §6's CLI/docker-compose/git-porcelain
// surface is explicitly excluded); this package only carries the shapes a
// dispatcher would need to expose doclea's operations to an LLM.
package mcptool

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrNotImplemented is returned by handlers for operations explicitly out of
// scope for this module (the git-porcelain tool surface).
var ErrNotImplemented = errors.New("mcptool: operation not implemented")

// ToolResult holds the outcome of a single tool execution.
type ToolResult struct {
	// Content is the tool's textual output, typically a JSON string ready
	// for insertion into an LLM context window.
	Content string

	// IsError indicates an application-level error (as opposed to a
	// transport/protocol failure returned via the Go error return value).
	// When true, Content holds the error message.
	IsError bool

	// DurationMs is the wall-clock time in milliseconds the operation took.
	DurationMs int64
}

// ToolDefinition describes a single doclea operation offered to an LLM
// through an MCP dispatcher.
type ToolDefinition struct {
	// Name is the tool's unique identifier, matching one of the Op constants.
	Name string

	// Description explains what the tool does, included in LLM prompts.
	Description string

	// InputSchema is the JSON Schema describing the tool's input parameters.
	InputSchema *jsonschema.Schema

	// Idempotent indicates whether the operation is safe to retry.
	Idempotent bool

	// CacheableSeconds is how long results may be cached by a dispatcher.
	// Zero means never.
	CacheableSeconds int
}

// Handler executes a tool call with a JSON-encoded argument object and
// returns a result. Implementations must be safe for concurrent use and must
// respect context cancellation.
type Handler func(ctx context.Context, args string) (ToolResult, error)

// Tool pairs a [ToolDefinition] with the [Handler] that executes it.
type Tool struct {
	Definition ToolDefinition
	Handler    Handler
}

// ToMCP converts a ToolDefinition to the official SDK's wire representation,
// ready for registration on an *mcpsdk.Server via AddTool.
func (d ToolDefinition) ToMCP() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: d.InputSchema,
	}
}

// ToCallToolResult converts a ToolResult to the SDK's result type.
func (r ToolResult) ToCallToolResult() *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: r.Content}},
		IsError: r.IsError,
	}
}

// notImplementedHandler returns a [Handler] that always fails with
// [ErrNotImplemented], used for the git-porcelain tool stubs.
func notImplementedHandler(_ context.Context, _ string) (ToolResult, error) {
	return ToolResult{}, ErrNotImplemented
}

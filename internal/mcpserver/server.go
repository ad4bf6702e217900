// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes fmschema tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/fmschema/internal/apperr"
	"github.com/starford/fmschema/internal/parser"
	"github.com/starford/fmschema/internal/pipeline"
	"github.com/starford/fmschema/internal/propertypath"
	"github.com/starford/fmschema/internal/storage"
	"github.com/starford/fmschema/internal/template"
)

// DirectivesURI is the resource holding the directive contract.
const DirectivesURI = "fmschema://directives"

// Server wraps the MCP server with fmschema tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *pipeline.Service
	store storage.Provider
}

// New creates a new MCP server with all fmschema tools registered.
func New(svc *pipeline.Service, store storage.Provider) *Server {
	s := &Server{svc: svc, store: store}

	s.mcp = server.NewMCPServer(
		"fmschema",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("build",
		mcp.WithDescription("Run the pipeline: extract frontmatter from every input document, "+
			"aggregate it into the schema and write the output. Returns build statistics and warnings."),
	), s.build)

	s.mcp.AddTool(mcp.NewTool("get_aggregate",
		mcp.WithDescription("Return the aggregated structure of the last build as JSON."),
		mcp.WithString("path", mcp.Description("Optional property path inside the aggregate (e.g. tools.commands.0)")),
	), s.getAggregate)

	s.mcp.AddTool(mcp.NewTool("render_template",
		mcp.WithDescription("Resolve {{variable}} placeholders in a template against the last aggregate."),
		mcp.WithString("template", mcp.Required(), mcp.Description("Template text")),
		mcp.WithBoolean("allow_partial", mcp.Description("Leave unresolved placeholders instead of failing")),
		mcp.WithBoolean("use_defaults", mcp.Description("Use {{name|default}} fallbacks")),
	), s.renderTemplate)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List input documents matching the configured glob pattern."),
		mcp.WithString("pattern", mcp.Description("Optional glob overriding the configured pattern")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("create_document",
		mcp.WithDescription("Create a new input document. Content MUST start with frontmatter "+
			"matching the part item schema. Read the contract first via get_directive_contract "+
			"or the "+DirectivesURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path; must match the input pattern")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Document content with frontmatter")),
	), s.createDocument)

	s.mcp.AddTool(mcp.NewTool("get_directive_contract",
		mcp.WithDescription("Returns the x-* directive contract and the directives of the configured schema."),
	), s.getDirectiveContract)

	s.mcp.AddResource(
		mcp.NewResource(DirectivesURI, "Schema Directive Contract",
			mcp.WithResourceDescription("How x-* schema directives drive frontmatter aggregation."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDirectivesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) build(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := s.svc.Build(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"stats":      b.Stats,
		"warnings":   b.Warnings,
		"unresolved": b.Unresolved,
	})
}

func (s *Server) getAggregate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, ok := s.svc.Last()
	if !ok {
		return mcp.NewToolResultError("no build yet: call the build tool first"), nil
	}
	path := req.GetString("path", "")
	if path == "" {
		return jsonResult(b.Aggregate)
	}
	v, err := propertypath.Get(b.Aggregate, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(v)
}

func (s *Server) renderTemplate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tmpl, err := req.RequireString("template")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Render(tmpl, template.Options{
		AllowPartialResolution: req.GetBool("allow_partial", false),
		UseDefaults:            req.GetBool("use_defaults", false),
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError("no build yet: call the build tool first"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(res.Text), nil
}

func (s *Server) listDocuments(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pattern := req.GetString("pattern", s.svc.Config().Pattern)
	metas, err := s.store.List(pattern)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(metas) == 0 {
		return mcp.NewToolResultText("no documents found"), nil
	}
	paths := make([]string, 0, len(metas))
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) createDocument(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	pattern := s.svc.Config().Pattern
	if ok, _ := doublestar.Match(pattern, path); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("path %s does not match input pattern %s", path, pattern)), nil
	}
	if _, readErr := s.store.Read(path); readErr == nil {
		return mcp.NewToolResultError(fmt.Sprintf("document already exists: %s", path)), nil
	}

	data := []byte(content)
	res, err := parser.Parse(data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res.Format == parser.FormatNone {
		return mcp.NewToolResultError("content has no frontmatter; see " + DirectivesURI), nil
	}
	if err := s.store.Write(path, data); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", path)), nil
}

func (s *Server) getDirectiveContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := DirectiveContract
	if d, err := s.svc.Directives(); err == nil {
		out, _ := json.MarshalIndent(d, "", "  ")
		text += "\n## Configured schema\n\n```json\n" + string(out) + "\n```\n"
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) readDirectivesResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      DirectivesURI,
			MIMEType: "text/markdown",
			Text:     DirectiveContract,
		},
	}, nil
}

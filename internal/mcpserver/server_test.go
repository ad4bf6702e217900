package mcpserver

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/fmschema/internal/pipeline"
	"github.com/starford/fmschema/internal/storage"
	"github.com/starford/fmschema/internal/testutil"
)

func testServer(t *testing.T) (*Server, storage.Provider) {
	t.Helper()

	_, store := testutil.TestInputs(t, testutil.RegistryDocs)
	schemaPath := filepath.Join(t.TempDir(), "schema.json")
	testutil.WriteFile(t, schemaPath, testutil.RegistrySchema)

	svc, err := pipeline.NewService(pipeline.Config{
		Pattern:    "commands/*.md",
		SchemaPath: schemaPath,
	}, store, pipeline.WithLogger(testutil.Logger()))
	if err != nil {
		t.Fatal(err)
	}
	return New(svc, store), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are called directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "build":
		result, err = srv.build(ctx, req)
	case "get_aggregate":
		result, err = srv.getAggregate(ctx, req)
	case "render_template":
		result, err = srv.renderTemplate(ctx, req)
	case "list_documents":
		result, err = srv.listDocuments(ctx, req)
	case "create_document":
		result, err = srv.createDocument(ctx, req)
	case "get_directive_contract":
		result, err = srv.getDirectiveContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestBuildThenAggregate(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "get_aggregate", map[string]any{})
	if !r.IsError {
		t.Fatal("expected error before first build")
	}

	r = callTool(t, srv, "build", map[string]any{})
	if r.IsError {
		t.Fatalf("build failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"items": 3`) {
		t.Errorf("build result = %s", resultText(r))
	}

	r = callTool(t, srv, "get_aggregate", map[string]any{"path": "tools.availableConfigs"})
	text := resultText(r)
	if r.IsError || !strings.Contains(text, `"git"`) || !strings.Contains(text, `"spec"`) {
		t.Errorf("aggregate = %q", text)
	}

	r = callTool(t, srv, "get_aggregate", map[string]any{"path": "tools.missing"})
	if !r.IsError {
		t.Error("expected error for missing path")
	}
}

func TestRenderTemplate(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "build", map[string]any{})

	r := callTool(t, srv, "render_template", map[string]any{"template": "first={{tools.commands.0.c2}}"})
	if text := resultText(r); text != "first=branch" {
		t.Errorf("render = %q", text)
	}

	r = callTool(t, srv, "render_template", map[string]any{"template": "{{nope}}"})
	if !r.IsError {
		t.Error("expected strict failure")
	}

	r = callTool(t, srv, "render_template", map[string]any{"template": "{{nope}}", "allow_partial": true})
	if r.IsError || resultText(r) != "{{nope}}" {
		t.Errorf("partial render = %q", resultText(r))
	}

	r = callTool(t, srv, "render_template", map[string]any{"template": "{{nope|x}}", "use_defaults": true})
	if resultText(r) != "x" {
		t.Errorf("default render = %q", resultText(r))
	}
}

func TestListDocuments(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_documents", map[string]any{})
	lines := strings.Split(resultText(r), "\n")
	if len(lines) != 4 || lines[0] != "commands/README.md" {
		t.Errorf("list = %v", lines)
	}

	r = callTool(t, srv, "list_documents", map[string]any{"pattern": "**/git-*.md"})
	if got := resultText(r); got != "commands/git-branch.md\ncommands/git-commit.md" {
		t.Errorf("filtered list = %q", got)
	}

	r = callTool(t, srv, "list_documents", map[string]any{"pattern": "*.txt"})
	if resultText(r) != "no documents found" {
		t.Errorf("empty list = %q", resultText(r))
	}
}

func TestCreateDocument(t *testing.T) {
	srv, store := testServer(t)

	r := callTool(t, srv, "create_document", map[string]any{
		"path":    "commands/spec-list.md",
		"content": "---\nc1: spec\nc2: list\n---\n",
	})
	if text := resultText(r); text != "created: commands/spec-list.md" {
		t.Fatalf("create result = %q", text)
	}
	data, err := store.Read("commands/spec-list.md")
	if err != nil || !strings.Contains(string(data), "c2: list") {
		t.Fatalf("read back = %q, %v", data, err)
	}

	r = callTool(t, srv, "create_document", map[string]any{
		"path":    "commands/spec-list.md",
		"content": "---\nc1: spec\n---\n",
	})
	if !r.IsError {
		t.Error("expected error for existing document")
	}

	r = callTool(t, srv, "create_document", map[string]any{
		"path":    "other/x.md",
		"content": "---\nc1: x\n---\n",
	})
	if !r.IsError {
		t.Error("expected error for path outside pattern")
	}

	r = callTool(t, srv, "create_document", map[string]any{
		"path":    "commands/plain.md",
		"content": "# no frontmatter",
	})
	if !r.IsError {
		t.Error("expected error for missing frontmatter")
	}
}

func TestDirectiveContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_directive_contract", map[string]any{})
	text := resultText(r)
	if !strings.Contains(text, "x-frontmatter-part") {
		t.Error("contract missing directive table")
	}
	if !strings.Contains(text, `"partPath": "tools.commands"`) {
		t.Errorf("contract missing configured schema: %s", text)
	}

	contents, err := srv.readDirectivesResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
}

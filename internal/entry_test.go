package internal

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/fmschema/internal/testutil"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	inputDir, _ := testutil.TestInputs(t, testutil.RegistryDocs)
	confDir := t.TempDir()
	schemaPath := filepath.Join(confDir, "schema.json")
	testutil.WriteFile(t, schemaPath, testutil.RegistrySchema)

	cfg := NewDefaultConfig()
	cfg.Input.Path = inputDir
	cfg.Schema.Path = schemaPath
	cfg.Output.Path = filepath.Join(confDir, "registry.yaml")
	cfg.Cache.Enabled = true
	cfg.Cache.Path = filepath.Join(confDir, "cache.db")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func TestBuild_WritesOutput(t *testing.T) {
	cfg := testConfig(t)

	b, err := Build(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if b.Stats.Format != "yaml" || b.Stats.Items != 3 {
		t.Errorf("stats = %+v", b.Stats)
	}
	data, err := os.ReadFile(cfg.Output.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(b.Output) {
		t.Error("written output differs from build output")
	}
	if _, err := os.Stat(cfg.Cache.Path); err != nil {
		t.Errorf("cache not created: %v", err)
	}
}

func TestBuild_RequiresConfig(t *testing.T) {
	if _, err := Build(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestBuild_MissingInputDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input.Path = filepath.Join(t.TempDir(), "nope")
	if _, err := Build(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard)); err == nil {
		t.Fatal("expected error for missing input dir")
	}
}

func TestRender(t *testing.T) {
	cfg := testConfig(t)
	cfg.Resolve.UseDefaults = true

	got, err := Render(context.Background(), "{{tools.availableConfigs}} v{{version|1}}", WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != `["git","spec"] v1` {
		t.Errorf("Render = %q", got)
	}
}

func TestHandler_HealthAndAPI(t *testing.T) {
	cfg := testConfig(t)
	rt, err := setup([]Option{WithConfig(cfg), WithLogOutput(io.Discard)})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer rt.close()
	h := newHandler(rt, nil)

	get := func(path string) int {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w.Code
	}

	if code := get("/health/live"); code != http.StatusOK {
		t.Errorf("live = %d", code)
	}
	if code := get("/health/ready"); code != http.StatusServiceUnavailable {
		t.Errorf("ready before build = %d, want 503", code)
	}

	if _, err := rt.svc.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if code := get("/health/ready"); code != http.StatusOK {
		t.Errorf("ready after build = %d", code)
	}
	if code := get("/api/aggregate"); code != http.StatusOK {
		t.Errorf("api aggregate = %d", code)
	}
}

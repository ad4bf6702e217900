// Package testutil provides shared test helpers for input trees, schemas and
// cache databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/fmschema/internal/index"
	"github.com/starford/fmschema/internal/storage"
)

// RegistrySchema declares a command registry: every document becomes one
// item of tools.commands and tools.availableConfigs collects the distinct c1
// values.
const RegistrySchema = `{
  "type": "object",
  "properties": {
    "version": {"type": "string"},
    "tools": {
      "type": "object",
      "properties": {
        "availableConfigs": {
          "type": "array",
          "x-derived-from": "commands[].c1",
          "x-derived-unique": true
        },
        "commands": {
          "type": "array",
          "x-frontmatter-part": true,
          "items": {"$ref": "#/definitions/command"}
        }
      }
    }
  },
  "definitions": {
    "command": {
      "type": "object",
      "properties": {"c1": {"type": "string"}, "c2": {"type": "string"}}
    }
  }
}`

// RegistryDocs are three command documents plus one without frontmatter.
var RegistryDocs = map[string]string{
	"commands/git-commit.md":  "---\nc1: git\nc2: commit\n---\n# git commit\n",
	"commands/spec-create.md": "---\nc1: spec\nc2: create\n---\n# spec create\n",
	"commands/git-branch.md":  "---\nc1: git\nc2: branch\n---\n# git branch\n",
	"commands/README.md":      "# Commands\nNo frontmatter here.\n",
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite cache that is automatically closed.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestInputs creates a temporary input directory holding files and returns
// it with a storage.Provider rooted there.
func TestInputs(t *testing.T, files map[string]string) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		WriteFile(t, filepath.Join(dir, rel), content)
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

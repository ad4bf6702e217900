package internal

import (
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestInputConfig_Validation(t *testing.T) {
	cases := []struct {
		name string
		in   InputConfig
		ok   bool
	}{
		{"valid", InputConfig{Path: ".", Pattern: "**/*.md"}, true},
		{"missing path", InputConfig{Pattern: "*.md"}, false},
		{"missing pattern", InputConfig{Path: "."}, false},
		{"bad glob", InputConfig{Path: ".", Pattern: "[a-"}, false},
		{"negative workers", InputConfig{Path: ".", Pattern: "*.md", Workers: -1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestOutputConfig_Format(t *testing.T) {
	for _, f := range []string{"", "json", "yaml", "yml", "xml"} {
		cfg := OutputConfig{Format: f}
		if err := cfg.Validate(); err != nil {
			t.Errorf("format %q should pass: %v", f, err)
		}
	}
	cfg := OutputConfig{Format: "toml"}
	if err := cfg.Validate(); err == nil {
		t.Error("toml should fail")
	}
}

func TestCacheConfig_PathRequiredWhenEnabled(t *testing.T) {
	cfg := CacheConfig{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled cache without path should fail")
	}
	cfg.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled cache should pass: %v", err)
	}
}

func TestConfig_Pipeline(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Template.Path = "t.yaml"
	cfg.Output.Path = "out.xml"
	cfg.Resolve.AllowPartial = true

	p := cfg.Pipeline()
	if p.Pattern != "**/*.md" || p.SchemaPath != "schema.json" || p.Workers != 4 {
		t.Errorf("pipeline config = %+v", p)
	}
	if p.TemplatePath != "t.yaml" || p.OutputPath != "out.xml" || p.XMLRoot != "root" {
		t.Errorf("pipeline config = %+v", p)
	}
	if !p.Resolve.AllowPartialResolution || p.Resolve.UseDefaults {
		t.Errorf("resolve = %+v", p.Resolve)
	}
}

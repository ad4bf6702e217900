package internal

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bmatcuk/doublestar/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/fmschema/internal/output"
	"github.com/starford/fmschema/internal/pipeline"
	"github.com/starford/fmschema/internal/template"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Input    InputConfig       `yaml:"input"`
	Schema   SchemaConfig      `yaml:"schema"`
	Template TemplateConfig    `yaml:"template"`
	Output   OutputConfig      `yaml:"output"`
	Resolve  ResolveConfig     `yaml:"resolve"`
	Cache    CacheConfig       `yaml:"cache"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Input.Validate(); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if err := c.Schema.Validate(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return c.Auth.Validate()
}

// Pipeline returns the build configuration derived from c.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Pattern:           c.Input.Pattern,
		Workers:           c.Input.Workers,
		SchemaPath:        c.Schema.Path,
		TemplatePath:      c.Template.Path,
		ItemsTemplatePath: c.Template.ItemsPath,
		OutputPath:        c.Output.Path,
		Format:            c.Output.Format,
		XMLRoot:           c.Output.XMLRoot,
		Resolve: template.Options{
			AllowPartialResolution: c.Resolve.AllowPartial,
			UseDefaults:            c.Resolve.UseDefaults,
		},
	}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// InputConfig selects the documents to aggregate.
type InputConfig struct {
	Path    string `yaml:"path"`
	Pattern string `yaml:"pattern"`
	Workers int    `yaml:"workers"`
}

// Validate validates the input configuration.
func (c *InputConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Pattern, validation.Required, validation.By(globRule)),
		validation.Field(&c.Workers, validation.Min(0), validation.Max(256)),
	)
}

func globRule(v any) error {
	p, _ := v.(string)
	if !doublestar.ValidatePattern(p) {
		return errors.New("invalid glob pattern")
	}
	return nil
}

// SchemaConfig points at the JSON Schema carrying the x-* directives.
type SchemaConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the schema configuration.
func (c *SchemaConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// TemplateConfig overrides the schema's template directives.
type TemplateConfig struct {
	Path      string `yaml:"path"`
	ItemsPath string `yaml:"items_path"`
}

// OutputConfig controls where and how the result is written.
// An empty Path writes nothing; an empty Format is inferred from Path.
type OutputConfig struct {
	Path    string `yaml:"path"`
	Format  string `yaml:"format"`
	XMLRoot string `yaml:"xml_root"`
}

// Validate validates the output configuration.
func (c *OutputConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Format, validation.In(output.JSON, output.YAML, "yml", output.XML)),
	)
}

// ResolveConfig sets template resolution behaviour.
type ResolveConfig struct {
	AllowPartial bool `yaml:"allow_partial"`
	UseDefaults  bool `yaml:"use_defaults"`
}

// CacheConfig holds the SQLite extraction cache configuration.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Input: InputConfig{
			Path:    ".",
			Pattern: "**/*.md",
			Workers: 4,
		},
		Schema: SchemaConfig{
			Path: "schema.json",
		},
		Output: OutputConfig{
			XMLRoot: output.DefaultXMLRoot,
		},
		Cache: CacheConfig{
			Path: ".fmschema-cache.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}

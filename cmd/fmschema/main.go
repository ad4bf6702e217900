package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/fmschema/internal"
	pkgconfig "github.com/starford/fmschema/pkg/config"
)

// loadConfig reads the config file (defaults when it is missing) and applies
// command-line overrides.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	overrides := []struct {
		flag   string
		target *string
	}{
		{"input", &cfg.Input.Path},
		{"pattern", &cfg.Input.Pattern},
		{"schema", &cfg.Schema.Path},
		{"template", &cfg.Template.Path},
		{"items-template", &cfg.Template.ItemsPath},
		{"output", &cfg.Output.Path},
		{"format", &cfg.Output.Format},
	}
	for _, o := range overrides {
		if cmd.IsSet(o.flag) {
			*o.target = cmd.String(o.flag)
		}
	}
	if cmd.IsSet("allow-partial") {
		cfg.Resolve.AllowPartial = cmd.Bool("allow-partial")
	}
	if cmd.IsSet("use-defaults") {
		cfg.Resolve.UseDefaults = cmd.Bool("use-defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runBuild(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	b, err := internal.Build(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if cfg.Output.Path == "" {
		_, err = os.Stdout.Write(b.Output)
	}
	return err
}

func runRender(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tmpl := cmd.Args().First()
	if file := cmd.String("file"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read template: %w", err)
		}
		tmpl = string(data)
	}
	if tmpl == "" {
		return fmt.Errorf("render: template argument or --file is required")
	}
	out, err := internal.Render(ctx, tmpl, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	_, err = fmt.Fprintln(os.Stdout, out)
	return err
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Watch(ctx, internal.WithConfig(cfg))
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func pipelineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Input directory"},
		&cli.StringFlag{Name: "pattern", Aliases: []string{"p"}, Usage: "Glob selecting input documents (e.g. **/*.md)"},
		&cli.StringFlag{Name: "schema", Aliases: []string{"s"}, Usage: "Schema file with x-* directives"},
		&cli.StringFlag{Name: "template", Aliases: []string{"t"}, Usage: "Template overriding x-template"},
		&cli.StringFlag{Name: "items-template", Usage: "Item template overriding x-template-items"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file (stdout when empty)"},
		&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Output format: json, yaml or xml"},
		&cli.BoolFlag{Name: "allow-partial", Usage: "Leave unresolved placeholders instead of failing"},
		&cli.BoolFlag{Name: "use-defaults", Usage: "Use {{name|default}} fallbacks"},
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "fmschema",
		Usage: "Aggregate Markdown frontmatter into a schema-shaped document",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("FMSCHEMA_CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "Run the pipeline once",
				Flags:  pipelineFlags(),
				Action: runBuild,
			},
			{
				Name:   "watch",
				Usage:  "Rebuild whenever inputs, schema or templates change",
				Flags:  pipelineFlags(),
				Action: runWatch,
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API with live rebuilds",
				Flags:  pipelineFlags(),
				Action: runServe,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Flags:  pipelineFlags(),
				Action: runMCP,
			},
			{
				Name:      "render",
				Usage:     "Resolve a template against the aggregate and print it",
				ArgsUsage: "[template]",
				Flags: append(pipelineFlags(),
					&cli.StringFlag{Name: "file", Usage: "Read the template from a file"},
				),
				Action: runRender,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

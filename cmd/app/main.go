package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/projectvak/contracthub/internal"
	pkgconfig "github.com/projectvak/contracthub/pkg/config"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
}

func options(cmd *cli.Command) ([]internal.Option, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func sweep(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	// Logs go to stderr so stdout carries only the result.
	res, err := internal.RunSweep(ctx, append(opts, internal.WithLogOutput(os.Stderr))...)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	return printJSON(res)
}

func link(ctx context.Context, cmd *cli.Command) error {
	filename := cmd.Args().First()
	if filename == "" {
		return fmt.Errorf("link: contract filename is required")
	}
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	res, err := internal.RunLink(ctx, filename, append(opts, internal.WithLogOutput(os.Stderr))...)
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	return printJSON(res)
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "contracthub",
		Usage:   "Rental contract hub: review extracted contracts, link source PDFs and push to the CRM",
		Version: version,
		Action:  serve,
		Flags:   []cli.Flag{configFlag()},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, catalog watcher and sweep scheduler",
				Flags:  []cli.Flag{configFlag()},
				Action: serve,
			},
			{
				Name:   "sweep",
				Usage:  "Push every ready contract once and print the result",
				Flags:  []cli.Flag{configFlag()},
				Action: sweep,
			},
			{
				Name:      "link",
				Usage:     "Find the source PDF for a contract and store the link",
				ArgsUsage: "<filename>",
				Flags:     []cli.Flag{configFlag()},
				Action:    link,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Flags:  []cli.Flag{configFlag()},
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

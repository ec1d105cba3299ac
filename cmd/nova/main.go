// Command nova runs the declarative agent runtime.
//
// Usage:
//
//	nova serve
//	nova validate ./agents
//	nova version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/wsaadi/nova/pkg/adl"
	"github.com/wsaadi/nova/pkg/config"
	"github.com/wsaadi/nova/pkg/logger"
	"github.com/wsaadi/nova/pkg/runtime"
	"github.com/wsaadi/nova/pkg/server"
	"github.com/wsaadi/nova/pkg/version"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" default:"1" help:"Start the agent runtime server."`
	Validate ValidateCmd `cmd:"" help:"Validate agent definition files."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." env:"NOVA_LOG_LEVEL" default:""`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("nova %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildDate)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Host      string `help:"Bind address (overrides RUNTIME_HOST)."`
	Port      int    `help:"Listen port (overrides RUNTIME_PORT)." default:"0"`
	AgentsDir string `name:"agents-dir" help:"Agents directory (overrides RUNTIME_AGENTS_STORAGE_PATH)." type:"path"`
	NoWatch   bool   `name:"no-watch" help:"Disable hot reload of the agents directory."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	if c.Host != "" {
		cfg.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if c.AgentsDir != "" {
		cfg.AgentsStoragePath = c.AgentsDir
	}
	if c.NoWatch {
		cfg.WatchAgents = false
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	rt, err := runtime.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to build runtime: %w", err)
	}
	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("failed to start runtime: %w", err)
	}
	defer rt.Stop()

	slog.Info("runtime ready",
		"agents", rt.Loader.Count(),
		"providers", rt.LLMs.Providers(),
		"address", cfg.Address())

	return server.New(rt).Start(ctx)
}

// ValidateCmd checks agent files without starting the server.
type ValidateCmd struct {
	Path string `arg:"" help:"Agent file or directory to validate." type:"path"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	info, err := os.Stat(c.Path)
	if err != nil {
		return err
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(c.Path)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if !entry.IsDir() && adl.HasKnownExtension(entry.Name()) {
				files = append(files, filepath.Join(c.Path, entry.Name()))
			}
		}
	} else {
		files = []string{c.Path}
	}

	if len(files) == 0 {
		return fmt.Errorf("no agent files found under %s", c.Path)
	}

	failed := 0
	for _, file := range files {
		doc, err := adl.ParseFile(file)
		if err != nil {
			fmt.Printf("FAIL  %s\n      %v\n", file, err)
			failed++
			continue
		}

		result := adl.Validate(doc, adl.ValidateOptions{})
		for _, warning := range result.Warnings {
			fmt.Printf("WARN  %s: %s\n", file, warning.String())
		}
		if !result.Valid() {
			fmt.Printf("FAIL  %s\n%s\n", file, result.FormatErrors())
			failed++
			continue
		}
		fmt.Printf("OK    %s (%s)\n", file, doc.Identity.ID)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed validation", failed, len(files))
	}
	fmt.Printf("%d files valid\n", len(files))
	return nil
}

func loadConfig(cli *CLI) (*config.Config, error) {
	if err := config.LoadEnvFiles(); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	output := os.Stderr
	if cli.LogFile != "" {
		// The file stays open for the process lifetime.
		file, _, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return nil, err
		}
		output = file
	}
	logger.Init(level, output, cli.LogFormat)

	return cfg, nil
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("nova"),
		kong.Description("Declarative agent runtime."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

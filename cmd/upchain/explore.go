package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kadirpekel/upchain/pkg/datasource"
	"github.com/kadirpekel/upchain/pkg/explorer"
	"github.com/kadirpekel/upchain/pkg/observability"
	"github.com/kadirpekel/upchain/pkg/oracle"
	"github.com/kadirpekel/upchain/pkg/server"
)

// ExploreCmd runs one full exploration.
type ExploreCmd struct {
	Requirement string `arg:"" help:"Free-text sourcing requirement to explore." placeholder:"TEXT"`

	Mode   string `help:"Override the recursion mode (tree or queue)."`
	Report string `short:"o" help:"Write the full JSON run report to this path ('-' for stdout)." placeholder:"PATH"`
}

func (c *ExploreCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, closer, err := loadConfig(ctx, cli.Config)
	if err != nil {
		return err
	}
	defer closer()

	if c.Mode != "" {
		cfg.Explorer.Mode = c.Mode
		if err := cfg.Explorer.Validate(); err != nil {
			return err
		}
	}

	metrics, err := observability.InitMetrics(ctx, cfg.Observability.Enabled)
	if err != nil {
		return err
	}
	observability.SetGlobalMetrics(metrics)

	tracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		Enabled:      cfg.Observability.Tracing.Enabled,
		Exporter:     cfg.Observability.Tracing.Exporter,
		Endpoint:     cfg.Observability.Tracing.Endpoint,
		SamplingRate: cfg.Observability.Tracing.SamplingRate,
		Insecure:     cfg.Observability.Tracing.IsInsecure(),
		Timeout:      time.Duration(cfg.Observability.Tracing.Timeout) * time.Second,
	})
	if err != nil {
		return err
	}
	observability.SetGlobalTracer(tracer)
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	if cfg.Observability.Enabled {
		ops := server.New(cfg.Observability.Port)
		go func() {
			if err := ops.Start(); err != nil {
				slog.Error("ops server failed", "error", err)
			}
		}()
		defer func() { _ = ops.Shutdown(context.Background()) }()
	}

	provider, err := oracle.New(&cfg.Oracle)
	if err != nil {
		return err
	}
	defer provider.Close()

	source, err := datasource.New(&cfg.DataSource)
	if err != nil {
		return err
	}
	defer source.Close()

	pipeline, err := explorer.NewPipeline(provider, source, cfg)
	if err != nil {
		return err
	}

	controller, err := explorer.NewController(pipeline, &cfg.Explorer)
	if err != nil {
		return err
	}

	report, err := controller.Explore(ctx, c.Requirement)
	if err != nil {
		return err
	}

	printSummary(report)

	if c.Report != "" {
		if err := writeReport(report, c.Report); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(report *explorer.Report) {
	fmt.Printf("\nExploration finished (%s mode): %d requirements in %s\n",
		report.Mode, report.Admitted, report.Duration.Round(time.Millisecond))
	if report.Pending {
		fmt.Println("Iteration cap reached with requirements still pending.")
	}

	for _, node := range report.Selected() {
		selected := node.Outcome.Selected
		fmt.Printf("  depth %d: %s (%s, %s)", node.Depth, selected.Name, selected.CandidateID, selected.Location)
		if node.Stop != explorer.Continue {
			fmt.Printf(" [stop: %s]", node.Stop)
		}
		fmt.Println()
	}
}

func writeReport(report *explorer.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if path == "-" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	slog.Info("run report written", "path", path)
	return nil
}

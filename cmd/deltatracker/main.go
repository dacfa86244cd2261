// Command deltatracker runs the change tracker once for the configured table and prints the
// stored snapshot as JSON on stdout. Configuration comes from the environment, see package config.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"

	"github.com/AntonStoeckl/table-delta-tracker/deltatracker"
	"github.com/AntonStoeckl/table-delta-tracker/deltatracker/oteladapters"
	"github.com/AntonStoeckl/table-delta-tracker/shell/config"
)

const instrumentationName = "github.com/AntonStoeckl/table-delta-tracker"

var version = "dev"

func main() {
	if err := run(context.Background(), os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "deltatracker:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout, stderr io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	handler, err := cfg.Log.NewSlogHandler(stderr)
	if err != nil {
		return err
	}

	logger := oteladapters.NewSlogBridgeLoggerWithHandler(handler)
	slog.SetDefault(slog.New(handler))

	providers, err := config.NewObservabilityProviders(ctx, cfg.OTel, version)
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := providers.Shutdown(); shutdownErr != nil {
			logger.Warn("observability shutdown failed", "error", shutdownErr.Error())
		}
	}()

	components, err := config.BuildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	runCtx, cancel := context.WithTimeout(ctx, cfg.Run.Timeout)
	defer cancel()

	if provisionErr := components.Store.Provision(runCtx); provisionErr != nil {
		return provisionErr
	}

	options := append(cfg.EngineOptions(), deltatracker.WithLogger(logger))
	if providers != nil {
		options = append(options,
			deltatracker.WithContextualLogger(oteladapters.NewSlogBridgeLogger(instrumentationName)),
			deltatracker.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter(instrumentationName))),
			deltatracker.WithTracing(oteladapters.NewTracingCollector(otel.Tracer(instrumentationName))),
		)
	}

	engine, err := deltatracker.NewEngine(components.Store, components.Source, options...)
	if err != nil {
		return err
	}

	result, runErr := engine.Run(runCtx, cfg.TableID)
	if runErr != nil {
		if errors.Is(runErr, context.DeadlineExceeded) {
			return fmt.Errorf("run exceeded %s: %w", cfg.Run.Timeout, runErr)
		}

		return runErr
	}

	encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(stdout, string(encoded))

	return err
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/moznion/go-optional"
	"github.com/openquant-lab/breakwater/internal/backtest/engine"
	engine_v1 "github.com/openquant-lab/breakwater/internal/backtest/engine/engine_v1"
	"github.com/openquant-lab/breakwater/internal/backtest/engine/engine_v1/datasource"
	"github.com/openquant-lab/breakwater/internal/logger"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

// backtestAction loads the configuration and data files, runs the full
// simulation with a progress bar, and writes the result artifacts.
func backtestAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	dataPattern := cmd.String("data")
	outputDir := cmd.String("output")

	config, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	backtester, err := engine_v1.NewBacktestEngineV1()
	if err != nil {
		return fmt.Errorf("failed to create backtest engine: %w", err)
	}

	if err := backtester.Initialize(string(config)); err != nil {
		return fmt.Errorf("failed to initialize backtest engine: %w", err)
	}

	appLogger, err := logger.NewLogger()
	if err != nil {
		return err
	}

	source, err := datasource.LoadCSV(dataPattern, appLogger)
	if err != nil {
		return fmt.Errorf("failed to load data: %w", err)
	}
	defer source.Close()

	if err := backtester.SetDataSource(source); err != nil {
		return err
	}

	var bar *progressbar.ProgressBar

	onStep := engine.OnStepCallback(func(current, total int) {
		if bar == nil {
			bar = progressbar.Default(int64(total), "backtest")
		}

		_ = bar.Set(current)
	})

	result, err := backtester.Run(optional.Some(onStep))
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	if err := backtester.WriteResults(result, outputDir); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	fmt.Printf("\nTotal return: %.2f%%\n", result.Metrics.TotalReturn*100)
	fmt.Printf("Max drawdown: %.2f%%\n", result.Metrics.MaxDrawdown*100)
	fmt.Printf("Sharpe ratio: %.2f\n", result.Metrics.SharpeRatio)
	fmt.Printf("Trades: %d (win rate %.1f%%)\n", result.Metrics.TotalTrades, result.Metrics.WinRate*100)
	fmt.Printf("Results written to %s\n", outputDir)

	return nil
}

// schemaAction prints the JSON schema of the engine configuration.
func schemaAction(ctx context.Context, cmd *cli.Command) error {
	backtester, err := engine_v1.NewBacktestEngineV1()
	if err != nil {
		return err
	}

	schema, err := backtester.GetConfigSchema()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Run a rule-based strategy backtest over historical daily data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the backtest configuration YAML",
				Value:    "config/backtest.yaml",
				Required: false,
			},
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Glob pattern of asset CSV files (one file per asset)",
				Value:    "data/*.csv",
				Required: false,
			},
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "Directory for result artifacts",
				Value:    "results",
				Required: false,
			},
		},
		Action: backtestAction,
		Commands: []*cli.Command{
			{
				Name:   "schema",
				Usage:  "Print the configuration JSON schema",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

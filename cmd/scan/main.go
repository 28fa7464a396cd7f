package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strconv"

	engine_v1 "github.com/openquant-lab/breakwater/internal/backtest/engine/engine_v1"
	"github.com/openquant-lab/breakwater/internal/backtest/engine/engine_v1/datasource"
	"github.com/openquant-lab/breakwater/internal/logger"
	"github.com/openquant-lab/breakwater/internal/types"
	"github.com/urfave/cli/v3"
)

// scanAction scores the whole universe at the latest available date and
// prints the ranking, best candidates first.
func scanAction(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	dataPattern := cmd.String("data")
	outputPath := cmd.String("output")
	top := cmd.Int("top")

	config, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	scanner, err := engine_v1.NewBacktestEngineV1()
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	if err := scanner.Initialize(string(config)); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
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

	if err := scanner.SetDataSource(source); err != nil {
		return err
	}

	dates := source.AllDates()
	if len(dates) == 0 {
		return fmt.Errorf("no observations in %s", dataPattern)
	}

	asOf := dates[len(dates)-1]

	scores, err := scanner.GenerateSignals(asOf)
	if err != nil {
		return fmt.Errorf("signal generation failed: %w", err)
	}

	ranked := engine_v1.RankScores(scores)

	fmt.Printf("Signal scan as of %s (%d assets scored)\n\n", asOf.Format("2006-01-02"), len(ranked))
	fmt.Printf("%-4s %-10s %7s %6s %6s %6s %6s %6s %6s %6s\n",
		"#", "ASSET", "TOTAL", "CONS", "VOL", "BRK", "BRKV", "RSI", "MA", "CAP")

	for i, score := range ranked {
		if top > 0 && i >= int(top) {
			break
		}

		fmt.Printf("%-4d %-10s %7.2f %6.0f %6.0f %6.0f %6.0f %6.0f %6.0f %6.0f\n",
			i+1, score.AssetID, score.TotalScore,
			score.ConsolidationScore, score.VolumeStabilityScore,
			score.BreakoutScore, score.BreakoutVolumeScore,
			score.RSITrendScore, score.MACrossScore, score.MarketCapScore)
	}

	if outputPath != "" {
		if err := writeScoresCSV(outputPath, ranked); err != nil {
			return fmt.Errorf("failed to write %s: %w", outputPath, err)
		}

		fmt.Printf("\nScores written to %s\n", outputPath)
	}

	return nil
}

func writeScoresCSV(path string, ranked []types.SignalScore) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"asset_id", "date", "total_score",
		"consolidation", "volume_stability", "breakout", "breakout_volume",
		"rsi_trend", "ma_cross", "market_cap_score",
		"rsi", "price", "market_cap",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	f := func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}

	for _, score := range ranked {
		record := []string{
			score.AssetID,
			score.Date.Format("2006-01-02"),
			f(score.TotalScore),
			f(score.ConsolidationScore), f(score.VolumeStabilityScore),
			f(score.BreakoutScore), f(score.BreakoutVolumeScore),
			f(score.RSITrendScore), f(score.MACrossScore), f(score.MarketCapScore),
			f(score.RSI), f(score.LatestPrice), f(score.MarketCap),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "scan",
		Usage: "Score the asset universe at the latest available date",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the configuration YAML",
				Value:    "config/backtest.yaml",
				Required: false,
			},
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Glob pattern of asset CSV files",
				Value:    "data/*.csv",
				Required: false,
			},
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "Optional CSV file for the full ranked score list",
				Value:    "",
				Required: false,
			},
			&cli.IntFlag{
				Name:     "top",
				Aliases:  []string{"n"},
				Usage:    "Number of rows to print (0 = all)",
				Value:    20,
				Required: false,
			},
		},
		Action: scanAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

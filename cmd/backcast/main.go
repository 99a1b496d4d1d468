package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moznion/go-optional"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/backcast-lab/backcast/internal/backtest/engine"
	enginev1 "github.com/backcast-lab/backcast/internal/backtest/engine/engine_v1"
	"github.com/backcast-lab/backcast/internal/backtest/engine/engine_v1/datasource"
	"github.com/backcast-lab/backcast/internal/logger"
	"github.com/backcast-lab/backcast/internal/server"
	"github.com/backcast-lab/backcast/internal/strategy"
	"github.com/backcast-lab/backcast/internal/types"
	"github.com/backcast-lab/backcast/internal/version"
)

// runAction loads the data and configuration, runs the replay to completion
// and prints the statistics report.
func runAction(ctx context.Context, cmd *cli.Command) error {
	e := enginev1.NewBacktestEngineV1()

	configContent := ""

	if path := cmd.String("config"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}

		configContent = string(raw)
	}

	if err := e.Initialize(configContent); err != nil {
		return err
	}

	logInstance, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	// The configured time window is applied by the engine when the dataset
	// is loaded, so the loader reads the files unbounded.
	series, err := datasource.LoadPath(cmd.String("data"),
		optional.None[time.Time](), optional.None[time.Time](), logInstance)
	if err != nil {
		return err
	}

	if err := e.SetDataSet(series); err != nil {
		return err
	}

	strat, err := strategy.Builtin(cmd.String("strategy"))
	if err != nil {
		return err
	}

	if err := e.SetStrategy(strat); err != nil {
		return err
	}

	if output := cmd.String("output"); output != "" {
		if err := e.SetResultsFolder(output); err != nil {
			return err
		}
	}

	var stateServer *server.StateServer

	if addr := cmd.String("listen"); addr != "" {
		stateServer = server.NewStateServer(logInstance)
		if err := stateServer.Start(addr); err != nil {
			return err
		}

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := stateServer.Shutdown(shutdownCtx); err != nil {
				logInstance.Error("failed to shut down state server", zap.Error(err))
			}
		}()

		stateServer.Publish(e.GetStateSnapshot())
	}

	bar := progressbar.Default(int64(e.TotalSteps()))
	bar.Describe(fmt.Sprintf("Replaying %d bars with %s", e.TotalSteps(), strat.Name()))

	onStep := engine.OnStepCallback(func(_ int, _ int) error {
		_ = bar.Add(1)

		if stateServer != nil {
			stateServer.Publish(e.GetStateSnapshot())
		}

		return nil
	})

	report, runErr := e.Run(ctx, engine.LifecycleCallbacks{OnStep: &onStep, OnFinished: nil})

	_ = bar.Finish()
	fmt.Println()

	if runErr != nil && runErr != context.Canceled {
		return runErr
	}

	if stateServer != nil {
		stateServer.Publish(e.GetStateSnapshot())
	}

	if runErr == context.Canceled {
		fmt.Println("Replay interrupted, reporting the partial run:")
	}

	return printReport(report)
}

// printReport renders the statistics report as YAML on stdout.
func printReport(report types.StatsReport) error {
	rendered, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	fmt.Print(string(rendered))

	return nil
}

// schemaAction prints the JSON schema of the engine configuration.
func schemaAction(_ context.Context, _ *cli.Command) error {
	schema, err := enginev1.NewBacktestEngineV1().GetConfigSchema()
	if err != nil {
		return err
	}

	fmt.Println(schema)

	return nil
}

// versionAction prints the engine version.
func versionAction(_ context.Context, _ *cli.Command) error {
	fmt.Println(version.GetVersion())

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "backcast",
		Usage: "Replay bar data through a trading strategy",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run a backtest over local bar data",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the engine YAML configuration file",
						Required: false,
					},
					&cli.StringFlag{
						Name:     "data",
						Aliases:  []string{"d"},
						Usage:    "Path to a CSV or Parquet file, or a directory of them",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "strategy",
						Aliases:  []string{"s"},
						Usage:    "Built-in strategy to run (buyhold, sma-cross)",
						Value:    "buyhold",
						Required: false,
					},
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Usage:    "Directory for recorded results (Parquet + stats.yaml)",
						Required: false,
					},
					&cli.StringFlag{
						Name:     "listen",
						Aliases:  []string{"l"},
						Usage:    "Address for the state snapshot server (e.g. :8080)",
						Required: false,
					},
				},
				Action: runAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the JSON schema of the engine configuration",
				Action: schemaAction,
			},
			{
				Name:   "version",
				Usage:  "Print the engine version",
				Action: versionAction,
			},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, stopping...")
		cancel()
	}()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:          "trader",
	Short:        "Spot signal trader for Binance",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler and the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			a.server.Start()
			if err := a.runner.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			a.log.Info("Shutdown signal received, gracefully shutting down...")
			a.runner.Stop()
			return shutdown(a)
		})
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run only the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			a.server.Start()
			<-ctx.Done()
			return shutdown(a)
		})
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Evaluate the top gainer candidates once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			report, err := a.scanner.EvaluateCandidates(ctx)
			if err != nil {
				return err
			}
			a.log.Info("Scan complete", zap.Int("candidates", len(report.Candidates)), zap.Int("results", len(report.Results)))
			return nil
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Advance every open trade once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			report, err := a.sweeper.SweepLifecycle(ctx)
			if err != nil {
				return err
			}
			a.log.Info("Sweep complete", zap.Int("trades_processed", report.TradesProcessed), zap.Int("errors", report.Errors))
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", "./configs", "directory containing config.yml")
	rootCmd.AddCommand(runCmd, serveCmd, scanCmd, sweepCmd)
}

// withApp builds the application and runs fn until it returns or a signal
// arrives.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(configDir)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := a.client.GetServerTime(ctx); err != nil {
		a.log.Error("Failed to connect to Binance API", zap.Error(err))
		return err
	}
	a.log.Info("Successfully connected to Binance API.")

	return fn(ctx, a)
}

func shutdown(a *app) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Stop(ctx); err != nil {
		return err
	}
	a.log.Info("Trader has been shut down.")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

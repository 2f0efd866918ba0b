package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bayesprev/adapters/rng"
	"bayesprev/adapters/sqlite"
	"bayesprev/app"
	"bayesprev/domain/core"
	"bayesprev/domain/fit"
	"bayesprev/internal/predict"
	"bayesprev/internal/testkit"
	"bayesprev/ports"
)

func main() {
	// .env is optional; flags and defaults cover everything it sets
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "bayesprev",
		Short: "Bayesian hierarchical prevalence regression",
	}

	rootCmd.AddCommand(
		newFitCmd(),
		newShowCmd(),
		newListCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newFitCmd() *cobra.Command {
	opts := app.DefaultFitOptions()
	var (
		nTrain     int
		nTest      int
		dataSeed   int64
		lambdaMode string
		skipZero   bool
		storePath  string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit the model on synthetic data and evaluate train/test accuracy",
		Long: `Fit the hierarchical prevalence model on a synthetic dataset generated
from known parameters, then evaluate predictive accuracy on both splits.

Example: bayesprev fit --train-rows 120 --test-rows 40 --chains 4 --iterations 2000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(verbose)
			defer logger.Sync()

			opts.TestLambda = predict.LambdaMode(lambdaMode)
			if skipZero {
				opts.ZeroOutcome = predict.ZeroOutcomeSkip
			}

			gen := testkit.NewGenerator(dataSeed)
			train, test, _, err := gen.TrainTestTables(nTrain, nTest, testkit.DefaultTruth())
			if err != nil {
				return err
			}

			var store ports.FitStore
			if storePath != "" {
				store, err = sqlite.NewFitStore(storePath)
				if err != nil {
					return err
				}
				defer store.Close()
			}

			svc := app.NewFitService(rng.New(), store, logger)
			result, _, err := svc.Fit(context.Background(), train, test, opts)
			if err != nil {
				return err
			}
			return printResult(result, false)
		},
	}

	cmd.Flags().IntVar(&opts.Sampler.Chains, "chains", envInt("BAYESPREV_CHAINS", opts.Sampler.Chains), "independent MCMC chains")
	cmd.Flags().IntVar(&opts.Sampler.Warmup, "warmup", opts.Sampler.Warmup, "discarded adaptation iterations per chain")
	cmd.Flags().IntVar(&opts.Sampler.Iterations, "iterations", opts.Sampler.Iterations, "total iterations per chain")
	cmd.Flags().IntVar(&opts.Sampler.Thin, "thin", opts.Sampler.Thin, "keep every k-th post-warmup draw")
	cmd.Flags().Int64Var(&opts.Sampler.Seed, "seed", envInt64("BAYESPREV_SEED", opts.Sampler.Seed), "sampler seed")
	cmd.Flags().Float64Var(&opts.Sampler.TargetAccept, "target-accept", opts.Sampler.TargetAccept, "step-size adaptation target")
	cmd.Flags().IntVar(&opts.Sampler.MaxDepth, "max-depth", opts.Sampler.MaxDepth, "trajectory doubling cap")
	cmd.Flags().Float64Var(&opts.Sampler.StepSize, "step-size", opts.Sampler.StepSize, "initial integrator step")
	cmd.Flags().IntVar(&nTrain, "train-rows", 100, "synthetic training rows")
	cmd.Flags().IntVar(&nTest, "test-rows", 30, "synthetic test rows")
	cmd.Flags().Int64Var(&dataSeed, "data-seed", 42, "synthetic data seed")
	cmd.Flags().StringVar(&lambdaMode, "test-lambda", string(opts.TestLambda), "random effect for test rows: resample or zero")
	cmd.Flags().BoolVar(&skipZero, "mape-skip-zero", false, "skip zero outcomes in MAPE instead of failing")
	cmd.Flags().StringVar(&storePath, "store", os.Getenv("BAYESPREV_STORE"), "sqlite path for persisting the fit")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "debug logging")
	return cmd
}

func newShowCmd() *cobra.Command {
	var storePath string
	var full bool

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a stored fit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := core.ParseRunID(args[0])
			if err != nil {
				return err
			}
			store, err := sqlite.NewFitStore(storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			result, err := store.GetResult(context.Background(), runID)
			if err != nil {
				return err
			}
			return printResult(result, full)
		},
	}
	cmd.Flags().StringVar(&storePath, "store", os.Getenv("BAYESPREV_STORE"), "sqlite path of the fit store")
	cmd.Flags().BoolVar(&full, "full", false, "include per-observation random effects")
	return cmd
}

func newListCmd() *cobra.Command {
	var storePath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored fit runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.NewFitStore(storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(context.Background())
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Printf("%s\t%s\t%s\n", r.RunID, r.CreatedAt.Time().Format("2006-01-02 15:04:05"), r.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&storePath, "store", os.Getenv("BAYESPREV_STORE"), "sqlite path of the fit store")
	return cmd
}

// printResult emits the result as indented JSON. Per-observation random
// effect summaries dominate the output and are elided unless full is set.
func printResult(result *fit.Result, full bool) error {
	out := *result
	if !full {
		filtered := make([]fit.ParamSummary, 0, len(out.Summaries))
		for _, ps := range out.Summaries {
			if strings.HasPrefix(ps.Name.String(), "lambda[") {
				continue
			}
			filtered = append(filtered, ps)
		}
		out.Summaries = filtered
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(&out)
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

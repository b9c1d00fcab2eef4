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

	"github.com/lineup-tv/lineup-api/internal/engine"
	"github.com/lineup-tv/lineup-api/internal/models"
	"github.com/lineup-tv/lineup-api/pkg/config"
)

var generateCommand = &cobra.Command{
	Use:   "generate",
	Short: "Generate a lineup from a profile and a media library",
	Long: `Runs the optimizer locally: loads a programming profile and a media library from JSON files, executes N scored iterations and prints the best lineup as JSON.

Engine tuning is read from the environment (ENGINE_* variables), matching the API server.`,
	RunE: runGenerateCmd,
}

var (
	generateProfilePath string
	generateLibraryPath string
	generateIterations  int
	generateSeed        int64
	generateParallelism int
	generateBreakdown   bool
	generateOutputPath  string
	generateVerbose     bool
)

func init() {
	generateCommand.Flags().StringVarP(&generateProfilePath, "profile", "p", "", "Path to the programming profile JSON file")
	generateCommand.Flags().StringVarP(&generateLibraryPath, "library", "l", "", "Path to the media library JSON file (array of items)")
	generateCommand.Flags().IntVarP(&generateIterations, "iterations", "n", 0, "Iteration count (overrides the profile's value)")
	generateCommand.Flags().Int64Var(&generateSeed, "seed", 0, "Base seed for deterministic runs (defaults to the current time)")
	generateCommand.Flags().IntVar(&generateParallelism, "parallelism", 0, "Concurrent iterations (0 runs sequentially)")
	generateCommand.Flags().BoolVar(&generateBreakdown, "breakdown", false, "Attach per-criterion score breakdowns to placed items")
	generateCommand.Flags().StringVarP(&generateOutputPath, "output", "o", "", "Write the lineup JSON to a file instead of stdout")
	generateCommand.Flags().BoolVarP(&generateVerbose, "verbose", "v", false, "Print iteration progress to stderr")

	_ = generateCommand.MarkFlagRequired("profile")
	_ = generateCommand.MarkFlagRequired("library")

	rootCmd.AddCommand(generateCommand)
}

func runGenerateCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var profile models.Profile
	if err := loadJSON(generateProfilePath, &profile); err != nil {
		return err
	}

	var items []models.MediaItem
	if err := loadJSON(generateLibraryPath, &items); err != nil {
		return err
	}
	pool, err := engine.NewPool(items)
	if err != nil {
		return err
	}

	seed := generateSeed
	if !cmd.Flags().Changed("seed") {
		seed = time.Now().UnixNano()
	}

	opts := engine.Options{
		Iterations:        generateIterations,
		Seed:              seed,
		Parallelism:       generateParallelism,
		IncludeBreakdowns: generateBreakdown,
	}
	if generateVerbose {
		opts.Progress = engine.ProgressFunc(func(completed, total int, bestScore float64) {
			fmt.Fprintf(os.Stderr, "iteration %d/%d best=%.3f\n", completed, total, bestScore)
		})
	}

	optimizer := engine.NewOptimizer(engineTuning(cfg), zap.NewNop())
	lineup, err := optimizer.Run(ctx, profile, pool, opts)
	if err != nil {
		return err
	}

	return writeResult(generateOutputPath, lineup)
}

func engineTuning(cfg *config.Config) engine.Tuning {
	return engine.Tuning{
		Epsilon:           cfg.Engine.Epsilon,
		DurationTolerance: cfg.Engine.DurationTolerance,
		RecencyWindow:     cfg.Engine.RecencyWindow,
		BlockbusterRating: cfg.Engine.BlockbusterRating,
	}
}

package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lineup-tv/lineup-api/internal/models"
)

// ProgressSink receives a notification after each completed iteration. The
// optimizer invokes the sink synchronously between iterations, so
// implementations must return promptly and never block.
type ProgressSink interface {
	Progress(completed, total int, bestScore float64)
}

// ProgressFunc adapts a plain function to the ProgressSink interface.
type ProgressFunc func(completed, total int, bestScore float64)

// Progress implements ProgressSink.
func (f ProgressFunc) Progress(completed, total int, bestScore float64) {
	f(completed, total, bestScore)
}

// Options control a single optimizer run.
type Options struct {
	// Iterations overrides the profile's iteration count when > 0.
	Iterations int
	// Seed is the base seed; iteration i runs with Seed + i.
	Seed int64
	// Parallelism > 1 runs iterations concurrently on isolated pool clones.
	Parallelism int
	// IncludeBreakdowns attaches per-criterion breakdowns to placed items.
	IncludeBreakdowns bool
	// Progress, when set, is notified after every completed iteration.
	Progress ProgressSink
	// Now anchors recency scoring. Zero means time.Now in UTC.
	Now time.Time
}

// Optimizer runs repeated lineup builds and keeps the best result.
type Optimizer struct {
	tuning Tuning
	logger *zap.Logger
}

// NewOptimizer wires the optimizer. A nil logger disables logging.
func NewOptimizer(tuning Tuning, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{tuning: tuning.normalize(), logger: logger}
}

// Run executes N independent builds with derived seeds and returns the
// highest scoring lineup; ties keep the earliest iteration. Cancellation is
// checked between iterations and returns the best lineup so far with
// canceled status rather than an error. A run where no iteration places a
// single item returns a valid empty lineup with a diagnostic note.
func (o *Optimizer) Run(ctx context.Context, profile models.Profile, pool *Pool, opts Options) (models.Lineup, error) {
	if err := profile.Validate(); err != nil {
		return models.Lineup{}, err
	}
	if pool == nil || pool.Len() == 0 {
		return models.Lineup{}, &models.ConfigError{Field: "pool", Msg: "candidate pool is empty"}
	}
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = profile.Iterations
	}
	if iterations <= 0 {
		iterations = 1
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	start := time.Now()
	var best models.Lineup
	var completed int
	if opts.Parallelism > 1 && iterations > 1 {
		best, completed = o.runParallel(ctx, profile, pool, opts, iterations)
	} else {
		best, completed = o.runSequential(ctx, profile, pool, opts, iterations)
	}

	if completed == 0 {
		best = models.Lineup{
			ProfileID: profile.ID,
			Seed:      opts.Seed,
			Status:    models.LineupEmpty,
			Blocks:    models.BlockFillList{},
		}
	}
	if ctx.Err() != nil && completed < iterations {
		best.Status = models.LineupCanceled
		best.Note = fmt.Sprintf("canceled after %d of %d iterations", completed, iterations)
	}
	o.logger.Info("optimizer run finished",
		zap.String("profile_id", profile.ID),
		zap.Int("iterations", completed),
		zap.Float64("best_score", best.Score),
		zap.String("status", string(best.Status)),
		zap.Duration("took", time.Since(start)),
	)
	return best, nil
}

func (o *Optimizer) runSequential(ctx context.Context, profile models.Profile, pool *Pool, opts Options, iterations int) (models.Lineup, int) {
	builder := NewBuilder(o.tuning)
	var best models.Lineup
	completed := 0
	for i := 0; i < iterations; i++ {
		if ctx.Err() != nil {
			break
		}
		lineup := builder.Build(profile, pool.Clone(), opts.Seed+int64(i), opts.Now, opts.IncludeBreakdowns)
		lineup.Iteration = i
		if completed == 0 || lineup.Score > best.Score {
			best = lineup
		}
		completed++
		o.logger.Debug("iteration finished",
			zap.Int("iteration", i),
			zap.Float64("score", lineup.Score),
			zap.Float64("best_score", best.Score),
		)
		if opts.Progress != nil {
			opts.Progress.Progress(completed, iterations, best.Score)
		}
	}
	return best, completed
}

// runParallel executes iterations over isolated pool clones. Results are
// collected by iteration index and the winner is chosen by ascending index,
// so a fixed seed set yields the same best lineup as the sequential path.
func (o *Optimizer) runParallel(ctx context.Context, profile models.Profile, pool *Pool, opts Options, iterations int) (models.Lineup, int) {
	builder := NewBuilder(o.tuning)
	results := make([]*models.Lineup, iterations)

	var mu sync.Mutex
	completed := 0
	bestScore := 0.0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)
	for i := 0; i < iterations; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			lineup := builder.Build(profile, pool.Clone(), opts.Seed+int64(i), opts.Now, opts.IncludeBreakdowns)
			lineup.Iteration = i
			mu.Lock()
			results[i] = &lineup
			completed++
			if completed == 1 || lineup.Score > bestScore {
				bestScore = lineup.Score
			}
			done, score := completed, bestScore
			mu.Unlock()
			o.logger.Debug("iteration finished",
				zap.Int("iteration", i),
				zap.Float64("score", lineup.Score),
				zap.Float64("best_score", score),
			)
			if opts.Progress != nil {
				opts.Progress.Progress(done, iterations, score)
			}
			return nil
		})
	}
	_ = g.Wait()

	var best models.Lineup
	have := false
	for _, lineup := range results {
		if lineup == nil {
			continue
		}
		if !have || lineup.Score > best.Score {
			best = *lineup
			have = true
		}
	}
	return best, completed
}

package batch

import (
	"context"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/marcbridge/internal/diag"
	"github.com/roach88/marcbridge/internal/ir"
)

// Converter is the conversion entry point a Runner drives.
// *engine.Dispatcher implements it.
type Converter interface {
	Convert(ctx context.Context, model string, dir ir.Direction, rec ir.Record) (ir.Record, diag.Warnings, error)
}

// Job is one record to convert. Name identifies it in results and logs,
// typically the file it was read from.
type Job struct {
	Name   string
	Record ir.Record
}

// Result is the outcome of one job.
//
// Err holds a caller error for this record only (wrong record shape,
// unknown model); it never aborts the rest of the run.
type Result struct {
	Seq       int64
	ID        string
	Name      string
	Model     string
	Direction ir.Direction
	Input     ir.Record
	Output    ir.Record
	Warnings  diag.Warnings
	Err       error
}

// Runner converts jobs concurrently with a bounded number of workers.
//
// Sequence numbers and ids are assigned in input order before any work
// starts and results come back in input order, so a run is reproducible
// whatever the scheduling.
type Runner struct {
	conv    Converter
	workers int
	clock   *Clock
	ids     IDGenerator
	sink    diag.Sink
	logger  *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkers bounds concurrent conversions. Values below 1 mean
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(r *Runner) {
		r.workers = n
	}
}

// WithClock sets the logical clock results are stamped from.
func WithClock(c *Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithIDGenerator sets how conversion ids are minted.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Runner) {
		r.ids = g
	}
}

// WithSink sets the sink every job's warnings are reported to once the run
// finishes, in input order.
func WithSink(s diag.Sink) Option {
	return func(r *Runner) {
		r.sink = s
	}
}

// WithLogger sets the logger for run summaries.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a Runner over conv.
func NewRunner(conv Converter, opts ...Option) *Runner {
	r := &Runner{
		conv:   conv,
		clock:  NewClock(),
		ids:    UUIDv7Generator{},
		sink:   diag.Discard,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = runtime.GOMAXPROCS(0)
	}
	return r
}

// Run converts every job with model in direction dir.
//
// The returned error is non-nil only when ctx is cancelled; results of
// jobs that did not run are then left without output.
func (r *Runner) Run(ctx context.Context, model string, dir ir.Direction, jobs []Job) ([]Result, error) {
	results := make([]Result, len(jobs))
	for i, job := range jobs {
		results[i] = Result{
			Seq:       r.clock.Next(),
			ID:        r.ids.Generate(),
			Name:      job.Name,
			Model:     model,
			Direction: dir,
			Input:     job.Record,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := &results[i]
			res.Output, res.Warnings, res.Err = r.conv.Convert(gctx, model, dir, res.Input)
			return nil
		})
	}
	err := g.Wait()

	// Each job buffered its own warnings; report them in input order.
	for _, res := range results {
		if len(res.Warnings) > 0 {
			r.sink.Report(ctx, res.Warnings)
		}
	}

	s := Summarize(results)
	r.logger.LogAttrs(ctx, slog.LevelInfo, "batch finished",
		slog.String("model", model),
		slog.String("direction", string(dir)),
		slog.Int("jobs", s.Jobs),
		slog.Int("failed", s.Failed),
		slog.Int("warnings", s.Warnings),
		slog.Int("workers", r.workers),
	)
	return results, err
}

// Summary counts the outcome of a run.
type Summary struct {
	Jobs     int
	Failed   int
	Warnings int
	ByCode   map[diag.Code]int
}

// Summarize tallies results.
func Summarize(results []Result) Summary {
	s := Summary{Jobs: len(results), ByCode: make(map[diag.Code]int)}
	for _, res := range results {
		if res.Err != nil {
			s.Failed++
		}
		s.Warnings += len(res.Warnings)
		for _, w := range res.Warnings {
			s.ByCode[w.Code]++
		}
	}
	return s
}

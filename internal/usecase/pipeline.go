package usecase

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pricefeed/backend/internal/domain"
	"github.com/pricefeed/backend/internal/logger"
	"github.com/pricefeed/backend/internal/normalizer"
)

// PipelineConfig holds configuration for the batch orchestrator
type PipelineConfig struct {
	BatchSize int
	// MemoryCheckpoint forces a GC cycle after each batch so batch-scoped
	// allocations are reclaimed before the next one
	MemoryCheckpoint bool
	// Parallelism caps concurrent shops in RunShops; 0 means one per shop
	Parallelism int
}

// PipelineObserver receives per-record and per-batch events, e.g. for metrics
type PipelineObserver interface {
	ObserveResult(shop string, r domain.NormalizationResult)
	ObserveBatch(shop string, records int, elapsed time.Duration)
}

// NormalizerSource looks up the normalizer of a shop
type NormalizerSource interface {
	Get(shop string) (normalizer.Normalizer, error)
}

// RunState is the lifecycle of one streamed run
type RunState int32

const (
	StateIdle RunState = iota
	StateStreaming
	StateCompleted
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	}
	return fmt.Sprintf("RunState(%d)", int32(s))
}

// Run is one shop feed being streamed through its normalizer.
// Results arrive in input order; Wait returns the final stats.
type Run struct {
	shop    string
	results chan domain.NormalizationResult
	done    chan struct{}
	state   atomic.Int32
	stats   domain.NormalizationStats
}

// Shop returns the shop the run normalizes
func (r *Run) Shop() string { return r.shop }

// Results is closed once every record has been processed
func (r *Run) Results() <-chan domain.NormalizationResult { return r.results }

// State returns the current lifecycle state
func (r *Run) State() RunState { return RunState(r.state.Load()) }

// Wait discards results not yet received and returns the final stats.
// Call it after ranging over Results, or instead of doing so.
func (r *Run) Wait() domain.NormalizationStats {
	for range r.results {
	}
	<-r.done
	return r.stats
}

// Pipeline streams raw records through per-shop normalizers in fixed-size batches
type Pipeline struct {
	normalizers NormalizerSource
	config      PipelineConfig
	observer    PipelineObserver
	log         logger.Logger
}

// NewPipeline creates a new batch orchestrator
func NewPipeline(normalizers NormalizerSource, config PipelineConfig, observer PipelineObserver, log logger.Logger) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = 1000 // Default batch size
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &Pipeline{
		normalizers: normalizers,
		config:      config,
		observer:    observer,
		log:         log.With("component", "pipeline"),
	}
}

// Stream starts normalizing records for shop and returns immediately.
// Each record yields exactly one result carrying its 1-based line number;
// a record whose normalization panics yields a failed result instead of
// stopping the run. Cancelling ctx ends the run after the current record.
func (p *Pipeline) Stream(
	ctx context.Context,
	shop string,
	records []domain.RawRecord,
	opts domain.NormalizeOptions,
) (*Run, error) {
	n, err := p.normalizers.Get(shop)
	if err != nil {
		return nil, err
	}

	run := &Run{
		shop:    n.Shop(),
		results: make(chan domain.NormalizationResult, p.config.BatchSize),
		done:    make(chan struct{}),
		stats:   domain.NewNormalizationStats(),
	}
	run.state.Store(int32(StateIdle))

	go p.stream(ctx, n, run, records, opts)
	return run, nil
}

func (p *Pipeline) stream(
	ctx context.Context,
	n normalizer.Normalizer,
	run *Run,
	records []domain.RawRecord,
	opts domain.NormalizeOptions,
) {
	run.state.Store(int32(StateStreaming))
	start := time.Now()
	stats := domain.NewNormalizationStats()
	log := p.log.With("shop", run.shop)

	defer func() {
		stats.Elapsed = time.Since(start)
		run.stats = stats
		run.state.Store(int32(StateCompleted))
		close(run.results)
		close(run.done)
		log.Info("feed normalized",
			"total", stats.Total,
			"successful", stats.Successful,
			"failed", stats.Failed,
			"mapped", stats.Mapped,
			"unmapped", stats.Unmapped,
			"batches", stats.Batches,
			"elapsed", stats.Elapsed,
		)
	}()

	for offset := 0; offset < len(records); offset += p.config.BatchSize {
		end := min(offset+p.config.BatchSize, len(records))
		batchStart := time.Now()

		for i := offset; i < end; i++ {
			res := normalizer.SafeNormalize(ctx, n, records[i], opts)
			res.LineNumber = i + 1

			// only results handed to the channel are counted
			select {
			case run.results <- res:
			case <-ctx.Done():
				log.Warn("run cancelled", "line", i+1, "error", ctx.Err())
				stats.Batches++
				return
			}
			stats.Record(res)
			if p.observer != nil {
				p.observer.ObserveResult(run.shop, res)
			}
		}

		stats.Batches++
		stats.Elapsed = time.Since(start)
		batchElapsed := time.Since(batchStart)
		if p.observer != nil {
			p.observer.ObserveBatch(run.shop, end-offset, batchElapsed)
		}
		log.Info("batch normalized",
			"batch", stats.Batches,
			"records", end-offset,
			"processed", stats.Total,
			"failed", stats.Failed,
			"elapsed", batchElapsed,
		)

		if p.config.MemoryCheckpoint {
			runtime.GC()
		}
	}
}

// Process streams records for shop, hands every result to fn in order and
// returns the final stats
func (p *Pipeline) Process(
	ctx context.Context,
	shop string,
	records []domain.RawRecord,
	opts domain.NormalizeOptions,
	fn func(domain.NormalizationResult),
) (domain.NormalizationStats, error) {
	run, err := p.Stream(ctx, shop, records, opts)
	if err != nil {
		return domain.NormalizationStats{}, err
	}
	for res := range run.Results() {
		if fn != nil {
			fn(res)
		}
	}
	return run.Wait(), nil
}

// ShopJob is one shop feed for RunShops. Emit is called from the shop's
// own goroutine.
type ShopJob struct {
	Shop    string
	Records []domain.RawRecord
	Options domain.NormalizeOptions
	Emit    func(domain.NormalizationResult)
}

// RunShops processes each job concurrently, one orchestrator per shop, and
// returns the stats keyed by shop. Records within a shop keep input order.
func RunShops(ctx context.Context, p *Pipeline, jobs []ShopJob) (map[string]domain.NormalizationStats, error) {
	g, gctx := errgroup.WithContext(ctx)
	if p.config.Parallelism > 0 {
		g.SetLimit(p.config.Parallelism)
	}

	var mu sync.Mutex
	out := make(map[string]domain.NormalizationStats, len(jobs))

	for _, job := range jobs {
		g.Go(func() error {
			stats, err := p.Process(gctx, job.Shop, job.Records, job.Options, job.Emit)
			if err != nil {
				return fmt.Errorf("shop %s: %w", job.Shop, err)
			}
			mu.Lock()
			if prev, ok := out[job.Shop]; ok {
				prev.Merge(stats)
				stats = prev
			}
			out[job.Shop] = stats
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

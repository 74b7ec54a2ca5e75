package batch

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/price-getter/pkg/logging"
	"github.com/Sternrassler/price-getter/pkg/product"
	"github.com/rs/zerolog"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel lookups
	MaxConcurrency int

	// MaxItems caps the number of codes per batch
	MaxItems int
}

// DefaultConfig returns safe defaults for the retailer API
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		MaxItems:       25,
	}
}

// FetchFunc looks up one product code.
type FetchFunc func(ctx context.Context, upc string) (*product.Quote, error)

// Result is the outcome for one code.
type Result struct {
	Index int
	UPC   string
	Quote *product.Quote
	Err   error
}

type job struct {
	index int
	upc   string
}

// Fetcher runs lookups through a worker pool.
type Fetcher struct {
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a batch fetcher
func NewFetcher(config Config) *Fetcher {
	defaults := DefaultConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.MaxItems <= 0 {
		config.MaxItems = defaults.MaxItems
	}
	return &Fetcher{
		config: config,
		logger: logging.NewLogger(logging.ComponentBatch),
	}
}

// MaxItems returns the configured batch size limit.
func (f *Fetcher) MaxItems() int {
	return f.config.MaxItems
}

// FetchAll looks up every code and returns one result per code, in the
// order given. Codes not started before ctx is done report ctx.Err().
func (f *Fetcher) FetchAll(ctx context.Context, upcs []string, fetch FetchFunc) []Result {
	start := time.Now()
	results := make([]Result, len(upcs))
	if len(upcs) == 0 {
		return results
	}

	workers := f.config.MaxConcurrency
	if workers > len(upcs) {
		workers = len(upcs)
	}

	jobs := make(chan job, len(upcs))
	for i, upc := range upcs {
		jobs <- job{index: i, upc: upc}
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go f.worker(ctx, jobs, results, fetch, &wg, i)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}

	f.logger.Info().
		Int("items", len(upcs)).
		Int("failed", failed).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Batch lookup complete")

	return results
}

// worker processes codes from the queue. Each writes only its own slots of
// results.
func (f *Fetcher) worker(ctx context.Context, jobs <-chan job, results []Result, fetch FetchFunc, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for j := range jobs {
		result := Result{Index: j.index, UPC: j.upc}

		if err := ctx.Err(); err != nil {
			result.Err = err
			results[j.index] = result
			continue
		}

		result.Quote, result.Err = fetch(ctx, j.upc)
		if result.Err != nil {
			f.logger.Debug().
				Err(result.Err).
				Int("worker_id", workerID).
				Str("upc", j.upc).
				Msg("Batch item failed")
		}
		results[j.index] = result
		processed++
	}

	f.logger.Debug().
		Int("worker_id", workerID).
		Int("items_processed", processed).
		Msg("Worker completed")
}

package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/marvel-client/pkg/catalog"
	"github.com/Sternrassler/marvel-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marvel_aggregation_pages_total",
		Help: "Pages fetched by the aggregator by outcome",
	}, []string{"outcome"})

	entriesHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marvel_aggregation_entries",
		Help:    "Distinct names returned per aggregation",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	durationHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marvel_aggregation_duration_seconds",
		Help:    "Wall time of a complete aggregation",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Config holds aggregator configuration.
type Config struct {
	// BatchSize is the page size requested upstream (1..100).
	BatchSize int
	// Timeout bounds each page fetch.
	Timeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize: catalog.MaxPageSize,
		Timeout:   15 * time.Second,
	}
}

// PageFetcher fetches one flattened page of characters.
// *catalog.Service implements it.
type PageFetcher interface {
	FetchCharacterSummaries(ctx context.Context, page catalog.PageRequest) ([]catalog.CharacterSummary, error)
}

// Aggregator merges sequential pages into a catalog.AggregatedResult.
type Aggregator struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewAggregator creates an aggregator. Out-of-range settings fall back to
// the defaults.
func NewAggregator(fetcher PageFetcher, config Config) *Aggregator {
	if config.BatchSize <= 0 || config.BatchSize > catalog.MaxPageSize {
		config.BatchSize = catalog.MaxPageSize
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &Aggregator{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("aggregator"),
	}
}

// BatchSize returns the effective page size.
func (a *Aggregator) BatchSize() int {
	return a.config.BatchSize
}

// Aggregate retrieves up to limit characters starting at offset. It issues
// at most ceil(limit/BatchSize) calls. limit <= 0 returns an empty result
// without calling upstream. A page larger than requested is truncated.
func (a *Aggregator) Aggregate(ctx context.Context, limit, offset int) (catalog.AggregatedResult, error) {
	start := time.Now()
	result := make(catalog.AggregatedResult)

	if limit <= 0 {
		return result, nil
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be >= 0 (got %d)", catalog.ErrInvalidPage, offset)
	}

	logger := a.logger.With().Int("limit", limit).Int("offset", offset).Logger()
	logger.Debug().Int("batch_size", a.config.BatchSize).Msg("Starting aggregation")

	retrieved := 0
	pages := 0
	for retrieved < limit {
		select {
		case <-ctx.Done():
			logger.Debug().Int("pages", pages).Msg("Aggregation cancelled")
			return nil, ctx.Err()
		default:
		}

		requestSize := min(a.config.BatchSize, limit-retrieved)

		pageCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		entries, err := a.fetcher.FetchCharacterSummaries(pageCtx, catalog.PageRequest{
			Limit:  requestSize,
			Offset: offset,
		})
		cancel()

		if err != nil {
			pagesTotal.WithLabelValues("error").Inc()
			logger.Warn().
				Err(err).
				Int("page", pages+1).
				Int("page_offset", offset).
				Int("retrieved", retrieved).
				Msg("Page fetch failed, discarding partial result")
			return nil, fmt.Errorf("fetch page at offset %d: %w", offset, err)
		}
		pagesTotal.WithLabelValues("ok").Inc()
		pages++

		if len(entries) > requestSize {
			entries = entries[:requestSize]
		}

		result.Merge(entries)
		retrieved += len(entries)
		offset += requestSize

		if len(entries) < requestSize {
			logger.Debug().
				Int("requested", requestSize).
				Int("returned", len(entries)).
				Msg("Short page, upstream exhausted")
			break
		}
	}

	elapsed := time.Since(start)
	entriesHistogram.Observe(float64(len(result)))
	durationHistogram.Observe(elapsed.Seconds())

	logger.Info().
		Int("pages", pages).
		Int("retrieved", retrieved).
		Int("entries", len(result)).
		Dur("duration", elapsed).
		Msg("Aggregation complete")

	return result, nil
}

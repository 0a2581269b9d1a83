// Package server is the HTTP front end of the proxy.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Sternrassler/marvel-client/pkg/catalog"
	"github.com/Sternrassler/marvel-client/pkg/logging"
	"github.com/Sternrassler/marvel-client/pkg/metrics"
	"github.com/rs/zerolog"
)

// Catalog is the subset of *catalog.Service the handlers use.
type Catalog interface {
	ListCharacters(ctx context.Context, page catalog.PageRequest) (json.RawMessage, error)
	ListComics(ctx context.Context, page catalog.PageRequest) (json.RawMessage, error)
	ListSeries(ctx context.Context, page catalog.PageRequest) (json.RawMessage, error)
	GetCharacter(ctx context.Context, id int) (json.RawMessage, error)
	SearchCharacters(ctx context.Context, query string, limit int) (catalog.AggregatedResult, error)
}

// Aggregator is implemented by *pagination.Aggregator.
type Aggregator interface {
	Aggregate(ctx context.Context, limit, offset int) (catalog.AggregatedResult, error)
}

// Pinger reports backend readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tune the front end.
type Options struct {
	// Version is reported by GET /.
	Version string

	// DefaultAggregateLimit applies when /characters_all has no limit.
	DefaultAggregateLimit int

	// RequestTimeout bounds each request, including every page of an
	// aggregation.
	RequestTimeout time.Duration

	// Ready is pinged by /ready. nil means always ready.
	Ready Pinger
}

// DefaultOptions returns the options used when fields are left zero.
func DefaultOptions() Options {
	return Options{
		Version:               "0.1.0",
		DefaultAggregateLimit: 100,
		RequestTimeout:        90 * time.Second,
	}
}

// Server routes requests to the catalog and the aggregator.
type Server struct {
	catalog    Catalog
	aggregator Aggregator
	opts       Options
	mux        *http.ServeMux
	logger     zerolog.Logger
}

// New creates a server with its routes registered.
func New(cat Catalog, agg Aggregator, opts Options) *Server {
	def := DefaultOptions()
	if opts.Version == "" {
		opts.Version = def.Version
	}
	if opts.DefaultAggregateLimit <= 0 {
		opts.DefaultAggregateLimit = def.DefaultAggregateLimit
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = def.RequestTimeout
	}

	s := &Server{
		catalog:    cat,
		aggregator: agg,
		opts:       opts,
		mux:        http.NewServeMux(),
		logger:     logging.NewLogger("server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.Handle("GET /metrics", metrics.Handler())

	s.mux.HandleFunc("GET /characters", s.handleListCharacters)
	s.mux.HandleFunc("GET /characters/{id}", s.handleCharacter)
	s.mux.HandleFunc("GET /characters/search/{name}", s.handleSearch)
	s.mux.HandleFunc("GET /character_comics/{name}", s.handleCharacterComics)
	s.mux.HandleFunc("GET /characters_all", s.handleAggregate)
	s.mux.HandleFunc("GET /characters_comics", s.handleAggregate)
	s.mux.HandleFunc("GET /comics", s.handleListComics)
	s.mux.HandleFunc("GET /series", s.handleListSeries)
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.requestID(s.instrument(s.mux))
}

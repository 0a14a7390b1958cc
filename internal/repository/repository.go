// Package repository provides read-only data access for the research
// analytics service.
//
// # Overview
//
// Repositories assemble aggregation pipelines from an entity scope plus the
// compiled query filters, execute them against the document store and return
// lazily materialized streams of typed domain records. The store is the sole
// owner of persistence; this layer owns only the transient pipeline and DTO
// objects constructed per request.
//
// # Repositories
//
//   - WorkRepository: works by affiliation/person/source scope, global search
//   - PersonRepository: person lookup and search
//   - AffiliationRepository: affiliation lookup, hierarchy resolution
//   - SourceRepository: source lookup, search and source facets
//   - FacetRepository: available-filter fan-out over a works scope
//   - PlotRepository: cursor-producing pipelines for plot series
//   - CSVRepository: projection pipelines for CSV export
//
// # Error Handling
//
// Entity-resolution failures return *domain.NotFoundError; malformed query
// input returns *domain.ValidationError. Driver errors are wrapped with
// fmt.Errorf and %w.
//
// # Thread Safety
//
// All repositories are safe for concurrent use; the driver's connection pool
// is the only shared mutable resource and pipelines are read-only.
package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/impactu/research-analytics-service/internal/database"
	"github.com/impactu/research-analytics-service/internal/domain"
	"github.com/impactu/research-analytics-service/internal/observability"
	"github.com/impactu/research-analytics-service/internal/pipeline"
)

// CollectionProvider hands out named collections. *database.DB satisfies it.
type CollectionProvider interface {
	Collection(name string) database.Collection
}

// countDoc is the single output document of a $count pipeline.
type countDoc struct {
	Total int64 `bson:"total"`
}

// runCount executes a counting pipeline and returns the total, which is zero
// when the pipeline matches nothing.
func runCount(ctx context.Context, coll database.Collection, p pipeline.Pipeline) (int64, error) {
	cursor, err := coll.Aggregate(ctx, p.Append(pipeline.Count{Field: "total"}).Lower())
	if err != nil {
		return 0, fmt.Errorf("run count pipeline: %w", err)
	}
	defer cursor.Close(ctx)
	if !cursor.Next(ctx) {
		return 0, cursor.Err()
	}
	var doc countDoc
	if err := cursor.Decode(&doc); err != nil {
		return 0, fmt.Errorf("decode count document: %w", err)
	}
	return doc.Total, nil
}

// decodeObserver records every document a stream drops for failing to
// decode. Streams skip such documents rather than abort, so the skip has to
// be visible in the logs and the decode-failure counter; a count pipeline
// over the same scope still includes the dropped document.
type decodeObserver struct {
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func (o decodeObserver) observe(err *domain.DecodeError) {
	o.logger.Warn().
		Int("position", err.Position).
		Err(err.Cause).
		Msg("skipping undecodable document")
	if o.metrics != nil {
		o.metrics.StreamDecodeFailures.Inc()
	}
}

// aggregate lowers and executes a pipeline, returning a typed stream over
// its cursor. Per-record decode failures the stream skips are reported
// through obs.
func aggregate[T any](ctx context.Context, coll database.Collection, p pipeline.Pipeline, obs decodeObserver) (*Stream[T], error) {
	cursor, err := coll.Aggregate(ctx, p.Lower())
	if err != nil {
		return nil, fmt.Errorf("run aggregation pipeline: %w", err)
	}
	return NewStream[T](ctx, cursor, obs.observe), nil
}

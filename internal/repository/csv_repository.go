package repository

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/impactu/research-analytics-service/internal/database"
	"github.com/impactu/research-analytics-service/internal/domain"
	"github.com/impactu/research-analytics-service/internal/observability"
	"github.com/impactu/research-analytics-service/internal/pipeline"
)

// csvProjection limits CSV export pipelines to the fields the row shaper
// reads. Adding a CSV column usually means adding a field here.
var csvProjection = pipeline.ProjectFields(
	"external_ids",
	"authors",
	"bibliographic_info",
	"open_access",
	"citations_count",
	"subjects",
	"titles",
	"abstract",
	"types",
	"source",
	"groups",
	"year_published",
	"date_published",
	"ranking",
	"primary_topic",
	"doi",
)

// CSVRepository streams works for CSV export: scope plus filters, projected
// down to the exported fields, no pagination.
type CSVRepository struct {
	db       CollectionProvider
	works    database.Collection
	logger   zerolog.Logger
	observer decodeObserver
}

// NewCSVRepository creates a CSVRepository.
func NewCSVRepository(db CollectionProvider, metrics *observability.Metrics, logger zerolog.Logger) *CSVRepository {
	componentLogger := logger.With().Str("component", "csv-repository").Logger()
	return &CSVRepository{
		db:       db,
		works:    db.Collection(pipeline.CollectionWorks),
		logger:   componentLogger,
		observer: decodeObserver{logger: componentLogger, metrics: metrics},
	}
}

// WorksForExport streams every work of a scope under the given filters. The
// stream must be consumed lazily; exports of large scopes do not fit in
// memory.
func (r *CSVRepository) WorksForExport(ctx context.Context, scope pipeline.Scope, params domain.QueryParams) (*Stream[domain.Work], error) {
	coll := r.works
	if scope.Collection != pipeline.CollectionWorks {
		coll = r.db.Collection(scope.Collection)
	}

	p := scope.Stages.Clone().Append(pipeline.CompileFilters(params)...)
	p = append(p, pipeline.DeriveISSN()...)
	p = p.Append(csvProjection)
	return aggregate[domain.Work](ctx, coll, p, r.observer)
}

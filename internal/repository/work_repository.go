package repository

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/impactu/research-analytics-service/internal/database"
	"github.com/impactu/research-analytics-service/internal/domain"
	"github.com/impactu/research-analytics-service/internal/observability"
	"github.com/impactu/research-analytics-service/internal/pipeline"
)

// WorkRepository reads works through scope-anchored aggregation pipelines.
type WorkRepository struct {
	db           CollectionProvider
	works        database.Collection
	affiliations database.Collection
	logger       zerolog.Logger
	observer     decodeObserver
}

// NewWorkRepository creates a WorkRepository.
func NewWorkRepository(db CollectionProvider, metrics *observability.Metrics, logger zerolog.Logger) *WorkRepository {
	componentLogger := logger.With().Str("component", "work-repository").Logger()
	return &WorkRepository{
		db:           db,
		works:        db.Collection(pipeline.CollectionWorks),
		affiliations: db.Collection(pipeline.CollectionAffiliations),
		logger:       componentLogger,
		observer:     decodeObserver{logger: componentLogger, metrics: metrics},
	}
}

// collectionFor returns the collection a scope's pipeline runs against.
// Faculty and department scopes start from the person collection.
func (r *WorkRepository) collectionFor(scope pipeline.Scope) database.Collection {
	if scope.Collection == pipeline.CollectionWorks {
		return r.works
	}
	return r.db.Collection(scope.Collection)
}

// GetWorkByID returns a single work with its derived ISSN structure.
func (r *WorkRepository) GetWorkByID(ctx context.Context, id primitive.ObjectID) (*domain.Work, error) {
	p := pipeline.Pipeline{pipeline.Match{Predicate: bson.M{"_id": id}}}
	p = append(p, pipeline.DeriveISSN()...)

	stream, err := aggregate[domain.Work](ctx, r.works, p, r.observer)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	if !stream.Next() {
		if err := stream.Err(); err != nil {
			return nil, err
		}
		return nil, &domain.NotFoundError{Entity: "work", ID: id.Hex()}
	}
	work, err := stream.Record()
	if err != nil {
		return nil, err
	}
	return &work, nil
}

// ResolveAffiliationScope loads the affiliation, determines its kind when
// the caller passed none, and builds the works scope for it. Faculty and
// department scopes require a parent institution resolved through the
// education relation; its absence is a NotFoundError, never an unbounded
// result set.
func (r *WorkRepository) ResolveAffiliationScope(ctx context.Context, affiliationID primitive.ObjectID, kind string) (pipeline.Scope, error) {
	var affiliation domain.Affiliation
	if err := r.affiliations.FindOne(ctx, bson.M{"_id": affiliationID}, &affiliation); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return pipeline.Scope{}, &domain.NotFoundError{Entity: "affiliation", ID: affiliationID.Hex()}
		}
		return pipeline.Scope{}, err
	}
	if kind == "" {
		kind = affiliation.Kind()
	}

	parentID := primitive.NilObjectID
	if kind == domain.AffiliationFaculty || kind == domain.AffiliationDepartment {
		id, ok := affiliation.ParentInstitutionID()
		if !ok {
			return pipeline.Scope{}, &domain.NotFoundError{
				Entity: "education relation for " + kind,
				ID:     affiliationID.Hex(),
			}
		}
		parentID = id
	}
	return pipeline.WorksByAffiliation(affiliationID, kind, parentID)
}

// WorksByScope returns the lazily materialized works of a scope with
// filters, sort and pagination applied, plus the matching total count.
func (r *WorkRepository) WorksByScope(ctx context.Context, scope pipeline.Scope, params domain.QueryParams) (*Stream[domain.Work], int64, error) {
	coll := r.collectionFor(scope)

	base := scope.Stages.Clone().Append(pipeline.CompileFilters(params)...)

	listPipeline := base.Clone()
	listPipeline = append(listPipeline, pipeline.DeriveISSN()...)
	listPipeline, err := pipeline.AppendListStages(listPipeline, params)
	if err != nil {
		return nil, 0, err
	}

	total, err := runCount(ctx, coll, base)
	if err != nil {
		return nil, 0, err
	}

	stream, err := aggregate[domain.Work](ctx, coll, listPipeline, r.observer)
	if err != nil {
		return nil, 0, err
	}
	return stream, total, nil
}

// WorksByAffiliation resolves the affiliation scope and returns its works.
func (r *WorkRepository) WorksByAffiliation(ctx context.Context, affiliationID primitive.ObjectID, kind string, params domain.QueryParams) (*Stream[domain.Work], int64, error) {
	scope, err := r.ResolveAffiliationScope(ctx, affiliationID, kind)
	if err != nil {
		return nil, 0, err
	}
	return r.WorksByScope(ctx, scope, params)
}

// WorksByPerson returns the works authored by a person.
func (r *WorkRepository) WorksByPerson(ctx context.Context, personID primitive.ObjectID, params domain.QueryParams) (*Stream[domain.Work], int64, error) {
	return r.WorksByScope(ctx, pipeline.WorksByPerson(personID), params)
}

// WorksBySource returns the works published in a source.
func (r *WorkRepository) WorksBySource(ctx context.Context, sourceID primitive.ObjectID, params domain.QueryParams) (*Stream[domain.Work], int64, error) {
	return r.WorksByScope(ctx, pipeline.WorksBySource(sourceID), params)
}

// SearchWorks runs a global keyword search over works. On the filterless
// browse path the total is a cheap estimated document count; as soon as any
// filter is active an exact aggregation count is used instead.
func (r *WorkRepository) SearchWorks(ctx context.Context, params domain.QueryParams) (*Stream[domain.Work], int64, error) {
	var base pipeline.Pipeline
	if params.Keywords != "" {
		base = append(base, pipeline.TextSearch(params.Keywords))
	}
	base = base.Append(pipeline.CompileFilters(params)...)

	listPipeline := base.Clone()
	listPipeline = append(listPipeline, pipeline.DeriveISSN()...)
	listPipeline, err := pipeline.AppendListStages(listPipeline, params)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if params.HasFilters() {
		total, err = runCount(ctx, r.works, base)
	} else {
		total, err = r.works.EstimatedDocumentCount(ctx)
	}
	if err != nil {
		return nil, 0, err
	}

	stream, err := aggregate[domain.Work](ctx, r.works, listPipeline, r.observer)
	if err != nil {
		return nil, 0, err
	}
	return stream, total, nil
}

// CountWorksByScope returns the exact number of works a scope yields under
// the given filters.
func (r *WorkRepository) CountWorksByScope(ctx context.Context, scope pipeline.Scope, params domain.QueryParams) (int64, error) {
	base := scope.Stages.Clone().Append(pipeline.CompileFilters(params)...)
	return runCount(ctx, r.collectionFor(scope), base)
}

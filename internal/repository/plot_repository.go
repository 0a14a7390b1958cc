package repository

import (
	"context"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/impactu/research-analytics-service/internal/database"
	"github.com/impactu/research-analytics-service/internal/domain"
	"github.com/impactu/research-analytics-service/internal/observability"
	"github.com/impactu/research-analytics-service/internal/pipeline"
)

// AffiliationProductCount is the works count of one scienti level-2
// classification under one child affiliation.
type AffiliationProductCount struct {
	Name       string `bson:"name" json:"name"`
	Type       string `bson:"type" json:"type"`
	WorksCount int64  `bson:"works_count" json:"works_count"`
}

// AffiliationCitations collects the citation counts of the works attributed
// to one child affiliation.
type AffiliationCitations struct {
	ID             primitive.ObjectID      `bson:"id" json:"id"`
	Name           string                  `bson:"name" json:"name"`
	CitationsCount []domain.CitationsCount `bson:"citations_count" json:"citations_count"`
}

// AffiliationAPC is one work's article processing charge attributed to a
// child affiliation.
type AffiliationAPC struct {
	Name string      `bson:"name" json:"name"`
	APC  *domain.APC `bson:"apc,omitempty" json:"apc,omitempty"`
}

// PlotRepository produces the cursor-backed series plot reducers consume.
// Annual series iterate a plain scoped works stream; the per-affiliation
// breakdowns run dedicated grouping pipelines anchored on the child
// affiliation ids resolved by the AffiliationRepository.
type PlotRepository struct {
	db       CollectionProvider
	works    database.Collection
	logger   zerolog.Logger
	observer decodeObserver
}

// NewPlotRepository creates a PlotRepository.
func NewPlotRepository(db CollectionProvider, metrics *observability.Metrics, logger zerolog.Logger) *PlotRepository {
	componentLogger := logger.With().Str("component", "plot-repository").Logger()
	return &PlotRepository{
		db:       db,
		works:    db.Collection(pipeline.CollectionWorks),
		logger:   componentLogger,
		observer: decodeObserver{logger: componentLogger, metrics: metrics},
	}
}

// ScopedWorks streams every work of a scope under the given filters, without
// pagination. Plot reducers fold the stream; it must be consumed lazily.
func (r *PlotRepository) ScopedWorks(ctx context.Context, scope pipeline.Scope, params domain.QueryParams) (*Stream[domain.Work], error) {
	coll := r.works
	if scope.Collection != pipeline.CollectionWorks {
		coll = r.db.Collection(scope.Collection)
	}
	p := scope.Stages.Clone().Append(pipeline.CompileFilters(params)...)
	return aggregate[domain.Work](ctx, coll, p, r.observer)
}

// WorksCountByChildAffiliations counts scienti level-2 works per child
// affiliation, for institution-to-faculty/department breakdowns.
func (r *PlotRepository) WorksCountByChildAffiliations(ctx context.Context, childIDs []primitive.ObjectID, params domain.QueryParams) ([]AffiliationProductCount, error) {
	p := pipeline.Pipeline(pipeline.CompileFilters(params))
	p = p.Append(pipeline.ProjectFields(
		"authors.affiliations.name",
		"authors.affiliations.id",
		"types.source",
		"types.level",
		"types.type",
	))
	p = p.Append(
		pipeline.Unwind{Path: "$authors"},
		pipeline.Unwind{Path: "$authors.affiliations"},
		pipeline.Match{Predicate: bson.M{"authors.affiliations.id": bson.M{"$in": childIDs}}},
		pipeline.Unwind{Path: "$types"},
		pipeline.Match{Predicate: bson.M{"types.source": domain.SourceScienti, "types.level": 2}},
		pipeline.Group{Spec: bson.M{
			"_id":         bson.M{"id": "$_id", "type": "$types.type", "name": "$authors.affiliations.name"},
			"works_count": bson.M{"$sum": 1},
		}},
		pipeline.Project{Spec: bson.M{
			"_id":         0,
			"type":        "$_id.type",
			"name":        "$_id.name",
			"works_count": 1,
		}},
	)
	stream, err := aggregate[AffiliationProductCount](ctx, r.works, p, r.observer)
	if err != nil {
		return nil, err
	}
	return Collect(stream)
}

// WorksCountByGroups counts scienti level-2 works per research group.
func (r *PlotRepository) WorksCountByGroups(ctx context.Context, groupIDs []primitive.ObjectID, params domain.QueryParams) ([]AffiliationProductCount, error) {
	p := pipeline.Pipeline(pipeline.CompileFilters(params))
	p = p.Append(pipeline.ProjectFields("groups.id", "groups.name", "types.source", "types.level", "types.type"))
	p = p.Append(
		pipeline.Match{Predicate: bson.M{"groups.id": bson.M{"$in": groupIDs}}},
		pipeline.Unwind{Path: "$groups"},
		pipeline.Match{Predicate: bson.M{"groups.id": bson.M{"$in": groupIDs}}},
		pipeline.Unwind{Path: "$types"},
		pipeline.Match{Predicate: bson.M{"types.source": domain.SourceScienti, "types.level": 2}},
		pipeline.Group{Spec: bson.M{
			"_id":         bson.M{"id": "$_id", "type": "$types.type", "name": "$groups.name"},
			"works_count": bson.M{"$sum": 1},
		}},
		pipeline.Project{Spec: bson.M{
			"_id":         0,
			"type":        "$_id.type",
			"name":        "$_id.name",
			"works_count": 1,
		}},
	)
	stream, err := aggregate[AffiliationProductCount](ctx, r.works, p, r.observer)
	if err != nil {
		return nil, err
	}
	return Collect(stream)
}

// CitationsByChildAffiliations collects per-child-affiliation citation
// counts. The kind match keeps a department's works from being attributed to
// a same-named faculty.
func (r *PlotRepository) CitationsByChildAffiliations(ctx context.Context, childIDs []primitive.ObjectID, kind string, params domain.QueryParams) ([]AffiliationCitations, error) {
	p := pipeline.Pipeline(pipeline.CompileFilters(params))
	p = p.Append(pipeline.ProjectFields(
		"authors.affiliations.id",
		"authors.affiliations.name",
		"authors.affiliations.types.type",
		"citations_count",
	))
	p = p.Append(
		pipeline.Match{Predicate: bson.M{"authors.affiliations.id": bson.M{"$in": childIDs}}},
		pipeline.Unwind{Path: "$authors"},
		pipeline.Unwind{Path: "$authors.affiliations"},
		pipeline.Match{Predicate: bson.M{
			"authors.affiliations.id":         bson.M{"$in": childIDs},
			"authors.affiliations.types.type": kind,
		}},
		pipeline.Unwind{Path: "$citations_count"},
		pipeline.Group{Spec: bson.M{
			"_id":             "$authors.affiliations.id",
			"name":            bson.M{"$first": "$authors.affiliations.name"},
			"citations_count": bson.M{"$push": "$citations_count"},
		}},
		pipeline.Project{Spec: bson.M{"_id": 0, "id": "$_id", "name": 1, "citations_count": 1}},
	)
	stream, err := aggregate[AffiliationCitations](ctx, r.works, p, r.observer)
	if err != nil {
		return nil, err
	}
	return Collect(stream)
}

// APCExpensesByChildAffiliations streams the APC charge of each work that
// carries one, attributed to each matching child affiliation.
func (r *PlotRepository) APCExpensesByChildAffiliations(ctx context.Context, childIDs []primitive.ObjectID, params domain.QueryParams) (*Stream[AffiliationAPC], error) {
	p := pipeline.Pipeline(pipeline.CompileFilters(params))
	p = p.Append(pipeline.ProjectFields("authors.affiliations.id", "authors.affiliations.name", "source.apc"))
	p = p.Append(
		pipeline.Match{Predicate: bson.M{"authors.affiliations.id": bson.M{"$in": childIDs}}},
		pipeline.Match{Predicate: bson.M{"source.apc": bson.M{"$exists": true, "$ne": bson.M{}}}},
		pipeline.Unwind{Path: "$authors"},
		pipeline.Unwind{Path: "$authors.affiliations"},
		pipeline.Match{Predicate: bson.M{"authors.affiliations.id": bson.M{"$in": childIDs}}},
		pipeline.Project{Spec: bson.M{"name": "$authors.affiliations.name", "apc": "$source.apc"}},
	)
	return aggregate[AffiliationAPC](ctx, r.works, p, r.observer)
}

// APCExpensesByGroups streams work APC charges attributed to research groups.
func (r *PlotRepository) APCExpensesByGroups(ctx context.Context, groupIDs []primitive.ObjectID, params domain.QueryParams) (*Stream[AffiliationAPC], error) {
	p := pipeline.Pipeline(pipeline.CompileFilters(params))
	p = p.Append(pipeline.ProjectFields("groups.id", "groups.name", "source.apc"))
	p = p.Append(
		pipeline.Match{Predicate: bson.M{"groups.id": bson.M{"$in": groupIDs}}},
		pipeline.Unwind{Path: "$groups"},
		pipeline.Match{Predicate: bson.M{"groups.id": bson.M{"$in": groupIDs}}},
		pipeline.Project{Spec: bson.M{"name": "$groups.name", "apc": "$source.apc"}},
	)
	return aggregate[AffiliationAPC](ctx, r.works, p, r.observer)
}

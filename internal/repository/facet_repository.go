package repository

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/impactu/research-analytics-service/internal/database"
	"github.com/impactu/research-analytics-service/internal/domain"
	"github.com/impactu/research-analytics-service/internal/observability"
	"github.com/impactu/research-analytics-service/internal/pipeline"
)

// ProductTypeChild is one classification entry within a product-type facet,
// grouped under its data source.
type ProductTypeChild struct {
	Type  string `bson:"type" json:"type"`
	Code  string `bson:"code,omitempty" json:"code,omitempty"`
	Level *int   `bson:"level,omitempty" json:"level,omitempty"`
	Count int64  `bson:"count" json:"count"`
}

// ProductTypeFacet groups the classification entries of one data source.
type ProductTypeFacet struct {
	Source string             `bson:"_id" json:"source"`
	Types  []ProductTypeChild `bson:"types" json:"types"`
}

// YearBounds is the publication-year range of a scope. Nil bounds mean the
// scope has no numerically dated works.
type YearBounds struct {
	MinYear *int `bson:"min_year" json:"min_year"`
	MaxYear *int `bson:"max_year" json:"max_year"`
}

// StatusFacet is the work count of one open-access status. A nil status
// groups the works whose state is unknown.
type StatusFacet struct {
	Status *string `bson:"_id" json:"status"`
	Count  int64   `bson:"count" json:"count"`
}

// SubjectChild is one subject term within a subject facet.
type SubjectChild struct {
	ID    interface{} `bson:"id,omitempty" json:"id,omitempty"`
	Name  string      `bson:"name" json:"name"`
	Level int         `bson:"level" json:"level"`
	Count int64       `bson:"count" json:"count"`
}

// SubjectFacet groups subject terms by the data source that assigned them.
type SubjectFacet struct {
	Source   string         `bson:"_id" json:"source"`
	Subjects []SubjectChild `bson:"subjects" json:"subjects"`
}

// CountryFacet counts distinct works per author-affiliation country.
type CountryFacet struct {
	CountryCode string `bson:"_id" json:"country_code"`
	Count       int64  `bson:"count" json:"count"`
}

// RankFacet is one distinct ranking label.
type RankFacet struct {
	Rank interface{} `bson:"_id" json:"rank"`
}

// TopicFacet counts works per primary topic.
type TopicFacet struct {
	ID          string `bson:"id" json:"id"`
	DisplayName string `bson:"display_name" json:"display_name"`
	Count       int64  `bson:"count" json:"count"`
}

// WorkFacets is the available-filter summary of a works scope. A dimension
// whose sub-pipeline failed is left at its zero value and omitted from the
// client payload.
type WorkFacets struct {
	ProductTypes   []ProductTypeFacet
	Years          *YearBounds
	Status         []StatusFacet
	Subjects       []SubjectFacet
	Countries      []CountryFacet
	AuthorsRanking []RankFacet
	GroupsRanking  []RankFacet
	Topics         []TopicFacet
}

// FacetRepository computes available-filter facets by fanning independent
// dimension sub-pipelines out over a bounded worker pool. Each sub-pipeline
// re-derives the scope's base stages, so every dimension query is
// independently runnable; the duplication buys isolation at the cost of
// redundant scope filtering.
type FacetRepository struct {
	db                  CollectionProvider
	works               database.Collection
	workers             int
	timeout             time.Duration
	topicShareThreshold float64
	logger              zerolog.Logger
	metrics             *observability.Metrics
}

// NewFacetRepository creates a FacetRepository. workers bounds the fan-out
// concurrency and timeout caps the whole fan-out; the topic share threshold
// is the minimum fraction of the scope's total works a topic needs to be
// surfaced individually.
func NewFacetRepository(db CollectionProvider, workers int, timeout time.Duration, topicShareThreshold float64, logger zerolog.Logger, metrics *observability.Metrics) *FacetRepository {
	return &FacetRepository{
		db:                  db,
		works:               db.Collection(pipeline.CollectionWorks),
		workers:             workers,
		timeout:             timeout,
		topicShareThreshold: topicShareThreshold,
		logger:              logger.With().Str("component", "facet-repository").Logger(),
		metrics:             metrics,
	}
}

// WorksFacets computes the facet summary for a works scope under the given
// filters. A failing dimension is logged and omitted rather than failing the
// whole request; the returned error is non-nil only when the scope's own
// count query fails.
func (r *FacetRepository) WorksFacets(ctx context.Context, scope pipeline.Scope, params domain.QueryParams) (*WorkFacets, error) {
	start := time.Now()
	r.metrics.FacetQueriesTotal.Inc()
	defer func() {
		r.metrics.FacetDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	base := scope.Stages.Clone().Append(pipeline.CompileFilters(params)...)
	coll := r.collectionFor(scope)

	// The topics threshold is relative to the scope's total, so the count
	// has to land before topic consolidation.
	total, err := runCount(ctx, coll, base)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		facets WorkFacets
	)
	p := pool.New().WithContext(ctx).WithMaxGoroutines(r.workers)

	runDimension(r, p, &mu, coll, base, "product_types", productTypesStages(),
		func(out []ProductTypeFacet) { facets.ProductTypes = out })
	runDimension(r, p, &mu, coll, base, "years", yearBoundsStages(),
		func(out []YearBounds) {
			if len(out) > 0 {
				facets.Years = &out[0]
			} else {
				facets.Years = &YearBounds{}
			}
		})
	runDimension(r, p, &mu, coll, base, "status", statusStages(),
		func(out []StatusFacet) { facets.Status = out })
	runDimension(r, p, &mu, coll, base, "subjects", subjectsStages(),
		func(out []SubjectFacet) { facets.Subjects = out })
	runDimension(r, p, &mu, coll, base, "countries", countriesStages(),
		func(out []CountryFacet) { facets.Countries = out })
	runDimension(r, p, &mu, coll, base, "authors_ranking", authorsRankingStages(),
		func(out []RankFacet) { facets.AuthorsRanking = out })
	runDimension(r, p, &mu, coll, base, "groups_ranking", groupsRankingStages(),
		func(out []RankFacet) { facets.GroupsRanking = out })
	runDimension(r, p, &mu, coll, base, "topics", topicsStages(),
		func(out []TopicFacet) { facets.Topics = significantTopics(out, total, r.topicShareThreshold) })

	// Dimension failures were already logged and omitted inside
	// runDimension; the pool never returns an error.
	_ = p.Wait()
	return &facets, nil
}

// runDimension schedules one dimension sub-pipeline on the pool. The query
// runs unlocked; only the write into the shared facet struct is serialized.
// Failures are downgraded to a log line and a metric so the remaining
// dimensions still land.
func runDimension[T any](r *FacetRepository, p *pool.ContextPool, mu *sync.Mutex, coll database.Collection, base pipeline.Pipeline, dimension string, stages pipeline.Pipeline, assign func([]T)) {
	p.Go(func(ctx context.Context) error {
		obs := decodeObserver{logger: r.logger, metrics: r.metrics}
		out, err := collectDimension[T](ctx, coll, base, stages, obs)
		if err != nil {
			r.metrics.FacetDimensionFailures.WithLabelValues(dimension).Inc()
			r.logger.Warn().Err(err).Str("dimension", dimension).Msg("facet dimension failed, omitting from payload")
			return nil
		}
		mu.Lock()
		assign(out)
		mu.Unlock()
		return nil
	})
}

func (r *FacetRepository) collectionFor(scope pipeline.Scope) database.Collection {
	if scope.Collection == pipeline.CollectionWorks {
		return r.works
	}
	return r.db.Collection(scope.Collection)
}

// collectDimension runs base + dimension stages and materializes the small
// result set.
func collectDimension[T any](ctx context.Context, coll database.Collection, base pipeline.Pipeline, stages pipeline.Pipeline, obs decodeObserver) ([]T, error) {
	stream, err := aggregate[T](ctx, coll, base.Clone().Append(stages...), obs)
	if err != nil {
		return nil, err
	}
	return Collect(stream)
}

// significantTopics keeps only topics whose count reaches the share
// threshold of the scope's total work count.
func significantTopics(topics []TopicFacet, total int64, threshold float64) []TopicFacet {
	if total == 0 {
		return nil
	}
	minCount := threshold * float64(total)
	out := make([]TopicFacet, 0, len(topics))
	for _, t := range topics {
		if float64(t.Count) >= minCount {
			out = append(out, t)
		}
	}
	return out
}

func productTypesStages() pipeline.Pipeline {
	return pipeline.Pipeline{
		pipeline.ProjectFields("types"),
		pipeline.Project{Spec: bson.M{"types.provenance": 0}},
		pipeline.Unwind{Path: "$types"},
		pipeline.Group{Spec: bson.M{
			"_id": bson.M{
				"source": "$types.source",
				"type":   "$types.type",
				"code":   "$types.code",
				"level":  "$types.level",
			},
			"count": bson.M{"$sum": 1},
		}},
		pipeline.Group{Spec: bson.M{
			"_id": "$_id.source",
			"types": bson.M{"$addToSet": bson.M{
				"type":  "$_id.type",
				"code":  "$_id.code",
				"level": "$_id.level",
				"count": "$count",
			}},
		}},
	}
}

func yearBoundsStages() pipeline.Pipeline {
	return pipeline.Pipeline{
		pipeline.ProjectFields("year_published"),
		pipeline.Match{Predicate: bson.M{"year_published": bson.M{"$type": "number"}}},
		pipeline.Group{Spec: bson.M{
			"_id":      nil,
			"min_year": bson.M{"$min": "$year_published"},
			"max_year": bson.M{"$max": "$year_published"},
		}},
		pipeline.Project{Spec: bson.M{"_id": 0, "min_year": 1, "max_year": 1}},
	}
}

func statusStages() pipeline.Pipeline {
	return pipeline.Pipeline{
		pipeline.ProjectFields("open_access"),
		pipeline.Group{Spec: bson.M{
			"_id":   "$open_access.open_access_status",
			"count": bson.M{"$sum": 1},
		}},
		pipeline.Sort{Spec: bson.D{{Key: "count", Value: -1}}},
	}
}

func subjectsStages() pipeline.Pipeline {
	return pipeline.Pipeline{
		pipeline.Project{Spec: bson.M{
			"subjects.source":         1,
			"subjects.subjects.id":    1,
			"subjects.subjects.name":  1,
			"subjects.subjects.level": 1,
		}},
		pipeline.Unwind{Path: "$subjects"},
		pipeline.Unwind{Path: "$subjects.subjects"},
		pipeline.Group{Spec: bson.M{
			"_id": bson.M{
				"source":        "$subjects.source",
				"subject_id":    "$subjects.subjects.id",
				"subject_name":  "$subjects.subjects.name",
				"subject_level": "$subjects.subjects.level",
			},
			"count": bson.M{"$sum": 1},
		}},
		pipeline.Group{Spec: bson.M{
			"_id": "$_id.source",
			"subjects": bson.M{"$addToSet": bson.M{
				"id":    "$_id.subject_id",
				"name":  "$_id.subject_name",
				"level": "$_id.subject_level",
				"count": "$count",
			}},
		}},
	}
}

func countriesStages() pipeline.Pipeline {
	return pipeline.Pipeline{
		pipeline.Match{Predicate: bson.M{"authors.affiliations.addresses.country_code": bson.M{"$ne": nil}}},
		pipeline.ProjectFields("authors.affiliations.addresses.country_code"),
		pipeline.Unwind{Path: "$authors"},
		pipeline.Unwind{Path: "$authors.affiliations"},
		pipeline.Unwind{Path: "$authors.affiliations.addresses"},
		// Count each work at most once per country, not once per author.
		pipeline.Group{Spec: bson.M{
			"_id": bson.M{
				"work_id":      "$_id",
				"country_code": "$authors.affiliations.addresses.country_code",
			},
		}},
		pipeline.Group{Spec: bson.M{"_id": "$_id.country_code", "count": bson.M{"$sum": 1}}},
		pipeline.Sort{Spec: bson.D{{Key: "count", Value: -1}}},
	}
}

func authorsRankingStages() pipeline.Pipeline {
	return pipeline.Pipeline{
		pipeline.Project{Spec: bson.M{"authors.ranking.source": 1, "authors.ranking.rank": 1}},
		pipeline.Unwind{Path: "$authors"},
		pipeline.Unwind{Path: "$authors.ranking"},
		pipeline.Match{Predicate: bson.M{"authors.ranking.source": "minciencias"}},
		pipeline.Group{Spec: bson.M{"_id": "$authors.ranking.rank"}},
	}
}

func groupsRankingStages() pipeline.Pipeline {
	return pipeline.Pipeline{
		pipeline.Project{Spec: bson.M{"groups.ranking.rank": 1, "groups.ranking.source": 1}},
		pipeline.Unwind{Path: "$groups"},
		pipeline.Project{Spec: bson.M{"rank_val": "$groups.ranking.rank", "source_val": "$groups.ranking.source"}},
		pipeline.Match{Predicate: bson.M{"source_val": "minciencias"}},
		// Some documents carry the rank as a one-element array.
		pipeline.Project{Spec: bson.M{
			"rank_val": bson.M{"$cond": bson.M{
				"if":   bson.M{"$isArray": "$rank_val"},
				"then": bson.M{"$arrayElemAt": bson.A{"$rank_val", 0}},
				"else": "$rank_val",
			}},
		}},
		pipeline.Group{Spec: bson.M{"_id": "$rank_val"}},
	}
}

func topicsStages() pipeline.Pipeline {
	return pipeline.Pipeline{
		pipeline.Match{Predicate: bson.M{"primary_topic": bson.M{"$ne": bson.M{}}}},
		pipeline.Project{Spec: bson.M{"primary_topic.id": 1, "primary_topic.display_name": 1}},
		pipeline.Group{Spec: bson.M{
			"_id":   bson.M{"id": "$primary_topic.id", "display_name": "$primary_topic.display_name"},
			"count": bson.M{"$sum": 1},
		}},
		pipeline.Project{Spec: bson.M{
			"_id":          0,
			"id":           "$_id.id",
			"display_name": "$_id.display_name",
			"count":        1,
		}},
		pipeline.Sort{Spec: bson.D{{Key: "count", Value: -1}}},
	}
}

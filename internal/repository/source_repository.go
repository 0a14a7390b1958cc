package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/impactu/research-analytics-service/internal/database"
	"github.com/impactu/research-analytics-service/internal/domain"
	"github.com/impactu/research-analytics-service/internal/observability"
	"github.com/impactu/research-analytics-service/internal/pipeline"
)

// SourceTypeChild is one classification entry within a source-type facet.
type SourceTypeChild struct {
	Type  string `bson:"type" json:"type"`
	Count int64  `bson:"count" json:"count"`
}

// SourceTypeFacet groups a source search's classification entries by data
// source.
type SourceTypeFacet struct {
	Source string            `bson:"_id" json:"source"`
	Types  []SourceTypeChild `bson:"types" json:"types"`
}

// QuartileFacet counts sources per current Scimago quartile.
type QuartileFacet struct {
	Quartile string `bson:"_id" json:"quartile"`
	Count    int64  `bson:"count" json:"count"`
}

// SourceFacets is the available-filter summary of a source search.
type SourceFacets struct {
	SourceTypes      []SourceTypeFacet `bson:"source_types" json:"source_types"`
	ScimagoQuartiles []QuartileFacet   `bson:"scimago_quartiles" json:"scimago_quartiles"`
}

// SourceRepository reads source (journal/venue) documents.
type SourceRepository struct {
	sources             database.Collection
	topicShareThreshold float64
	logger              zerolog.Logger
	observer            decodeObserver
}

// NewSourceRepository creates a SourceRepository. The topic share threshold
// bounds which topics are surfaced on the source detail payload.
func NewSourceRepository(db CollectionProvider, topicShareThreshold float64, metrics *observability.Metrics, logger zerolog.Logger) *SourceRepository {
	componentLogger := logger.With().Str("component", "source-repository").Logger()
	return &SourceRepository{
		sources:             db.Collection(pipeline.CollectionSources),
		topicShareThreshold: topicShareThreshold,
		logger:              componentLogger,
		observer:            decodeObserver{logger: componentLogger, metrics: metrics},
	}
}

// GetSourceByID returns a single source with its topics list reduced to the
// significant ones: topics whose per-source occurrence count reaches the
// share threshold of the total count across all the source's topics.
func (r *SourceRepository) GetSourceByID(ctx context.Context, id primitive.ObjectID) (*domain.Source, error) {
	var source domain.Source
	if err := r.sources.FindOne(ctx, bson.M{"_id": id}, &source); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &domain.NotFoundError{Entity: "source", ID: id.Hex()}
		}
		return nil, err
	}
	source.Topics = significantSourceTopics(source.Topics, r.topicShareThreshold)
	return &source, nil
}

// CurrentQuartile returns the source's Scimago quartile at the given instant.
func (r *SourceRepository) CurrentQuartile(ctx context.Context, id primitive.ObjectID, now time.Time) (string, error) {
	source, err := r.GetSourceByID(ctx, id)
	if err != nil {
		return "", err
	}
	return source.CurrentQuartile(now.Unix()), nil
}

// SearchSources runs a keyword search over sources with the source-search
// filter dimensions, sort and pagination applied.
func (r *SourceRepository) SearchSources(ctx context.Context, params domain.QueryParams) (*Stream[domain.Source], int64, error) {
	var base pipeline.Pipeline
	if params.Keywords != "" {
		base = append(base, pipeline.TextSearch(params.Keywords))
	}
	base = base.Append(pipeline.CompileSourceFilters(params)...)

	listPipeline, err := pipeline.AppendListStages(base.Clone(), params)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if params.HasFilters() {
		total, err = runCount(ctx, r.sources, base)
	} else {
		total, err = r.sources.EstimatedDocumentCount(ctx)
	}
	if err != nil {
		return nil, 0, err
	}

	stream, err := aggregate[domain.Source](ctx, r.sources, listPipeline, r.observer)
	if err != nil {
		return nil, 0, err
	}
	return stream, total, nil
}

// SearchSourcesFacets computes the available filters of a source search: the
// classification entries grouped per data source and the distribution of
// current Scimago quartiles. Both run as sub-pipelines of a single $facet
// stage; unlike the works facet fan-out there are only two dimensions here,
// so a worker pool buys nothing.
func (r *SourceRepository) SearchSourcesFacets(ctx context.Context, params domain.QueryParams) (*SourceFacets, error) {
	var base pipeline.Pipeline
	if params.Keywords != "" {
		base = append(base, pipeline.TextSearch(params.Keywords))
	}
	base = base.Append(pipeline.CompileSourceFilters(params)...)

	base = base.Append(pipeline.Facet{Fields: map[string]pipeline.Pipeline{
		"source_types": {
			pipeline.ProjectFields("types"),
			pipeline.Unwind{Path: "$types"},
			pipeline.Group{Spec: bson.M{
				"_id":   bson.M{"source": "$types.source", "type": "$types.type"},
				"count": bson.M{"$sum": 1},
			}},
			pipeline.Group{Spec: bson.M{
				"_id":   "$_id.source",
				"types": bson.M{"$push": bson.M{"type": "$_id.type", "count": "$count"}},
			}},
		},
		"scimago_quartiles": {
			pipeline.ProjectFields("ranking"),
			pipeline.Match{Predicate: bson.M{
				"ranking": bson.M{"$elemMatch": bson.M{
					"source": bson.M{"$in": pipeline.ScimagoRankingSources},
					"rank":   bson.M{"$in": bson.A{"Q1", "Q2", "Q3", "Q4", "-"}},
				}},
			}},
			pipeline.Unwind{Path: "$ranking"},
			pipeline.Match{Predicate: bson.M{
				"ranking.source": bson.M{"$in": pipeline.ScimagoRankingSources},
				"ranking.rank":   bson.M{"$exists": true, "$nin": bson.A{nil, ""}},
			}},
			// Latest window per source wins: the first rank after this sort
			// is the current quartile.
			pipeline.Sort{Spec: bson.D{{Key: "_id", Value: 1}, {Key: "ranking.to_date", Value: -1}}},
			pipeline.Group{Spec: bson.M{
				"_id":              "$_id",
				"current_quartile": bson.M{"$first": "$ranking.rank"},
			}},
			pipeline.Match{Predicate: bson.M{"current_quartile": bson.M{"$in": bson.A{"Q1", "Q2", "Q3", "Q4", "-"}}}},
			pipeline.Group{Spec: bson.M{"_id": "$current_quartile", "count": bson.M{"$sum": 1}}},
			pipeline.Sort{Spec: bson.D{{Key: "_id", Value: 1}}},
		},
	}})

	stream, err := aggregate[SourceFacets](ctx, r.sources, base, r.observer)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	if !stream.Next() {
		if err := stream.Err(); err != nil {
			return nil, err
		}
		return &SourceFacets{}, nil
	}
	facets, err := stream.Record()
	if err != nil {
		return nil, err
	}
	return &facets, nil
}

// significantSourceTopics keeps topics whose count reaches the share
// threshold of the total occurrence count across the source's topics.
func significantSourceTopics(topics []domain.Topic, threshold float64) []domain.Topic {
	var total int
	for _, t := range topics {
		total += t.Count
	}
	if total == 0 {
		return nil
	}
	minCount := threshold * float64(total)
	out := make([]domain.Topic, 0, len(topics))
	for _, t := range topics {
		if float64(t.Count) >= minCount {
			out = append(out, t)
		}
	}
	return out
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/impactu/research-analytics-service/internal/domain"
	"github.com/impactu/research-analytics-service/internal/observability"
	"github.com/impactu/research-analytics-service/internal/pipeline"
)

// Collectors register once on the default registry for the whole test
// binary.
var testMetrics = observability.NewMetrics("analytics_repository_test")

// newFacetRepo runs the fan-out single-threaded so queued fake results land
// on dimensions in scheduling order.
func newFacetRepo(provider *fakeProvider, threshold float64) *FacetRepository {
	return NewFacetRepository(provider, 1, time.Second, threshold, zerolog.Nop(), testMetrics)
}

func TestFacetRepository_WorksFacets(t *testing.T) {
	provider := newFakeProvider()
	works := provider.collection(pipeline.CollectionWorks)
	works.results = [][]interface{}{
		countResult(10),
		// product_types
		{bson.M{"_id": "scienti", "types": []bson.M{{"type": "Artículo", "code": "111", "count": 4}}}},
		// years
		{bson.M{"min_year": 2010, "max_year": 2022}},
		// status
		{bson.M{"_id": "gold", "count": 6}},
		// subjects
		{bson.M{"_id": "openalex", "subjects": []bson.M{{"name": "Medicine", "level": 1, "count": 3}}}},
		// countries
		{bson.M{"_id": "CO", "count": 9}},
		// authors_ranking
		{bson.M{"_id": "Senior"}},
		// groups_ranking
		{bson.M{"_id": "A1"}},
		// topics
		{
			bson.M{"id": "T1", "display_name": "Oncology", "count": 5},
			bson.M{"id": "T2", "display_name": "Botany", "count": 1},
		},
	}

	repo := newFacetRepo(provider, 0.2)
	facets, err := repo.WorksFacets(context.Background(), pipeline.WorksByPerson(primitive.NewObjectID()), domain.QueryParams{})
	require.NoError(t, err)

	require.Len(t, facets.ProductTypes, 1)
	assert.Equal(t, "scienti", facets.ProductTypes[0].Source)

	require.NotNil(t, facets.Years)
	require.NotNil(t, facets.Years.MinYear)
	assert.Equal(t, 2010, *facets.Years.MinYear)

	require.Len(t, facets.Status, 1)
	require.NotNil(t, facets.Status[0].Status)
	assert.Equal(t, "gold", *facets.Status[0].Status)

	require.Len(t, facets.Countries, 1)
	assert.Equal(t, "CO", facets.Countries[0].CountryCode)

	require.Len(t, facets.AuthorsRanking, 1)
	require.Len(t, facets.GroupsRanking, 1)

	// Only topics above the 20% share of the 10-work scope survive.
	require.Len(t, facets.Topics, 1)
	assert.Equal(t, "T1", facets.Topics[0].ID)
}

func TestFacetRepository_FailedDimensionIsOmitted(t *testing.T) {
	provider := newFakeProvider()
	works := provider.collection(pipeline.CollectionWorks)
	works.results = [][]interface{}{
		countResult(2),
		// product_types decodes fine.
		{bson.M{"_id": "openalex", "types": []bson.M{{"type": "article", "count": 2}}}},
		// years is undecodable and must be dropped, not fail the request.
		{bson.M{"min_year": "corrupt"}},
		{}, {}, {}, {}, {},
		{bson.M{"id": "T1", "display_name": "Oncology", "count": 2}},
	}

	repo := newFacetRepo(provider, 0)
	facets, err := repo.WorksFacets(context.Background(), pipeline.WorksByPerson(primitive.NewObjectID()), domain.QueryParams{})
	require.NoError(t, err)

	assert.Nil(t, facets.Years)
	require.Len(t, facets.ProductTypes, 1)
	require.Len(t, facets.Topics, 1)
}

func TestSignificantTopics(t *testing.T) {
	t.Parallel()

	topics := []TopicFacet{{ID: "a", Count: 10}, {ID: "b", Count: 1}}

	kept := significantTopics(topics, 100, 0.05)
	require.Len(t, kept, 1)
	assert.Equal(t, "a", kept[0].ID)

	assert.Nil(t, significantTopics(topics, 0, 0.05))
	assert.Len(t, significantTopics(topics, 100, 0), 2)
}

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/impactu/research-analytics-service/internal/domain"
)

func matchPredicate(t *testing.T, stage Stage) bson.M {
	t.Helper()
	match, ok := stage.(Match)
	require.True(t, ok, "expected a match stage, got %T", stage)
	return match.Predicate
}

func TestCompileFilters_NoActiveDimensions(t *testing.T) {
	t.Parallel()

	assert.Empty(t, CompileFilters(domain.QueryParams{Limit: 10, Page: 2, Sort: "year_desc"}))
}

func TestCompileFilters_OneStagePerDimension(t *testing.T) {
	t.Parallel()

	stages := CompileFilters(domain.QueryParams{
		ProductTypes: "openalex_article",
		Years:        "2020",
		Status:       "closed",
	})
	assert.Len(t, stages, 3)
}

func TestCompileProductTypes_TokenForms(t *testing.T) {
	t.Parallel()

	stages := CompileFilters(domain.QueryParams{
		ProductTypes: "openalex,scienti_article_11,minciencias_book",
	})
	require.Len(t, stages, 1)

	or, ok := matchPredicate(t, stages[0])["$or"].([]bson.M)
	require.True(t, ok)
	require.Len(t, or, 3)

	// Bare source token matches any type from that source.
	assert.Equal(t, bson.M{"$elemMatch": bson.M{"source": "openalex"}}, or[0]["types"])

	// Three-part scienti token adds the hierarchical code prefix.
	scienti := or[1]["types"].(bson.M)["$elemMatch"].(bson.M)
	assert.Equal(t, "scienti", scienti["source"])
	assert.Equal(t, "article", scienti["type"])
	assert.Equal(t, bson.M{"$regex": "^11"}, scienti["code"])
}

func TestCompileProductTypes_ThreePartTokenOnlyForScienti(t *testing.T) {
	t.Parallel()

	// A three-part token from any other source is malformed and skipped;
	// with no valid tokens left, the dimension compiles to nothing.
	assert.Empty(t, CompileFilters(domain.QueryParams{ProductTypes: "openalex_article_11"}))
}

func TestCompileYears_CollapsesToRange(t *testing.T) {
	t.Parallel()

	stages := CompileFilters(domain.QueryParams{Years: "2019,2015,2022"})
	require.Len(t, stages, 1)

	predicate := matchPredicate(t, stages[0])
	assert.Equal(t, bson.M{"$gte": 2015, "$lte": 2022}, predicate["year_published"])
}

func TestCompileYears_SkipsMalformedTokens(t *testing.T) {
	t.Parallel()

	stages := CompileFilters(domain.QueryParams{Years: "abc,2021"})
	require.Len(t, stages, 1)
	predicate := matchPredicate(t, stages[0])
	assert.Equal(t, bson.M{"$gte": 2021, "$lte": 2021}, predicate["year_published"])

	assert.Empty(t, CompileFilters(domain.QueryParams{Years: "abc,,xyz"}))
}

func TestCompileStatus_Sentinels(t *testing.T) {
	t.Parallel()

	stages := CompileFilters(domain.QueryParams{Status: "unknown,open,gold"})
	require.Len(t, stages, 1)

	or := matchPredicate(t, stages[0])["$or"].([]bson.M)
	require.Len(t, or, 3)
	assert.Equal(t, bson.M{"open_access.open_access_status": nil}, or[0])
	assert.Equal(t, bson.M{
		"open_access.open_access_status": bson.M{"$nin": bson.A{nil, "closed"}},
	}, or[1])
	assert.Equal(t, bson.M{"open_access.open_access_status": "gold"}, or[2])
}

func TestCompileSubjects_LevelNamePairs(t *testing.T) {
	t.Parallel()

	stages := CompileFilters(domain.QueryParams{Subjects: "1_Medicine,not-a-pair"})
	require.Len(t, stages, 1)

	or := matchPredicate(t, stages[0])["$or"].([]bson.M)
	require.Len(t, or, 1)
	assert.Equal(t, bson.M{
		"subjects.subjects": bson.M{"$elemMatch": bson.M{"level": 1, "name": "Medicine"}},
	}, or[0])
}

func TestCompileTopics_Membership(t *testing.T) {
	t.Parallel()

	stages := CompileFilters(domain.QueryParams{Topics: "T123, T456 ,"})
	require.Len(t, stages, 1)

	predicate := matchPredicate(t, stages[0])
	assert.Equal(t, bson.M{"$in": []string{"T123", "T456"}}, predicate["primary_topic.id"])
}

func TestCompileAuthorsRanking_SingleElemMatch(t *testing.T) {
	t.Parallel()

	stages := CompileFilters(domain.QueryParams{AuthorsRanking: "Senior,Junior"})
	require.Len(t, stages, 1)

	predicate := matchPredicate(t, stages[0])
	assert.Equal(t, bson.M{"$elemMatch": bson.M{
		"ranking": bson.M{"$elemMatch": bson.M{"rank": bson.M{"$in": []string{"Senior", "Junior"}}}},
	}}, predicate["authors"])
}

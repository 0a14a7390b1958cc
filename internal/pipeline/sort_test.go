package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/impactu/research-analytics-service/internal/domain"
)

func TestCompileSort_KnownTokensCarryTiebreaker(t *testing.T) {
	t.Parallel()

	for token := range sortTable {
		stage, err := CompileSort(token)
		require.NoError(t, err, token)

		sort, ok := stage.(Sort)
		require.True(t, ok)
		require.NotEmpty(t, sort.Spec)
		assert.Equal(t, "_id", sort.Spec[len(sort.Spec)-1].Key, token)
	}
}

func TestCompileSort_UnknownTokenFailsFast(t *testing.T) {
	t.Parallel()

	_, err := CompileSort("relevance_desc")
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "sort", ve.Field)
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	stages := Paginate(domain.QueryParams{Limit: 10, Page: 3})
	require.Len(t, stages, 2)
	assert.Equal(t, Skip{N: 20}, stages[0])
	assert.Equal(t, Limit{N: 10}, stages[1])

	// Page one skips nothing.
	stages = Paginate(domain.QueryParams{Limit: 10, Page: 1})
	require.Len(t, stages, 1)
	assert.Equal(t, Limit{N: 10}, stages[0])

	// No pagination at all appends nothing.
	assert.Empty(t, Paginate(domain.QueryParams{}))
}

func TestAppendListStages_OrderAndErrors(t *testing.T) {
	t.Parallel()

	base := Pipeline{Match{Predicate: bson.M{"x": 1}}}

	p, err := AppendListStages(base.Clone(), domain.QueryParams{Sort: "year_asc", Limit: 5, Page: 2})
	require.NoError(t, err)
	require.Len(t, p, 4)
	_, isSort := p[1].(Sort)
	_, isSkip := p[2].(Skip)
	_, isLimit := p[3].(Limit)
	assert.True(t, isSort)
	assert.True(t, isSkip)
	assert.True(t, isLimit)

	_, err = AppendListStages(base.Clone(), domain.QueryParams{Sort: "bogus"})
	require.Error(t, err)
}

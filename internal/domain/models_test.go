package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestIsEducationRelation_CaseInsensitive(t *testing.T) {
	t.Parallel()

	assert.True(t, IsEducationRelation("education"))
	assert.True(t, IsEducationRelation("Education"))
	assert.False(t, IsEducationRelation("employment"))
}

func TestAffiliation_ParentInstitutionID(t *testing.T) {
	t.Parallel()

	parentID := primitive.NewObjectID()
	affiliation := Affiliation{
		Relations: []Relation{
			{ID: primitive.NewObjectID(), Types: []Type{{Type: "department"}}},
			{ID: parentID, Types: []Type{{Type: "Education"}}},
		},
	}

	id, ok := affiliation.ParentInstitutionID()
	require.True(t, ok)
	assert.Equal(t, parentID, id)
}

func TestAffiliation_ParentInstitutionID_Missing(t *testing.T) {
	t.Parallel()

	affiliation := Affiliation{
		Relations: []Relation{{ID: primitive.NewObjectID(), Types: []Type{{Type: "group"}}}},
	}

	_, ok := affiliation.ParentInstitutionID()
	assert.False(t, ok)
}

func TestAffiliation_LogoURL(t *testing.T) {
	t.Parallel()

	affiliation := Affiliation{ExternalURLs: []ExternalURL{
		{URL: "https://example.org", Source: "site"},
		{URL: "https://example.org/logo.png", Source: "logo"},
	}}
	assert.Equal(t, "https://example.org/logo.png", affiliation.LogoURL())

	assert.Empty(t, (&Affiliation{}).LogoURL())
}

func TestRanking_CoversInstant(t *testing.T) {
	t.Parallel()

	rank := Ranking{Rank: "Q1", FromDate: 100, ToDate: 200}
	assert.True(t, rank.CoversInstant(100))
	assert.True(t, rank.CoversInstant(200))
	assert.False(t, rank.CoversInstant(99))
	assert.False(t, rank.CoversInstant(201))

	// Point-in-time measurements never cover a window.
	assert.False(t, Ranking{Rank: "A1", Date: 150}.CoversInstant(150))
}

func TestSource_CurrentQuartile_PrefersLatestWindow(t *testing.T) {
	t.Parallel()

	source := Source{Ranking: []Ranking{
		{Rank: "Q3", FromDate: 0, ToDate: 300},
		{Rank: "Q1", FromDate: 100, ToDate: 500},
		{Rank: "Q2", FromDate: 600, ToDate: 700},
	}}

	assert.Equal(t, "Q1", source.CurrentQuartile(250))
	assert.Equal(t, "Q2", source.CurrentQuartile(650))
	assert.Empty(t, source.CurrentQuartile(550))
}

func TestWork_CitationsBySource(t *testing.T) {
	t.Parallel()

	work := Work{CitationsCount: []CitationsCount{
		{Source: SourceOpenAlex, Count: 42},
		{Source: SourceScholar, Count: 57},
	}}

	assert.Equal(t, 42, work.CitationsBySource(SourceOpenAlex))
	assert.Zero(t, work.CitationsBySource(SourceScienti))
}

package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/impactu/research-analytics-service/internal/domain"
	"github.com/impactu/research-analytics-service/internal/repository"
)

func worksIter(works ...domain.Work) WorkIterator {
	return func(fn func(domain.Work) error) error {
		for _, work := range works {
			if err := fn(work); err != nil {
				return err
			}
		}
		return nil
	}
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func TestWithPercentage(t *testing.T) {
	t.Parallel()

	plot := WithPercentage([]PieSlice{{Name: "a", Value: 1}, {Name: "b", Value: 3}})
	assert.Equal(t, 4, plot.Sum)
	assert.Equal(t, 25.0, plot.Plot[0].Percentage)
	assert.Equal(t, 75.0, plot.Plot[1].Percentage)
}

func TestWithPercentage_ZeroSum(t *testing.T) {
	t.Parallel()

	plot := WithPercentage([]PieSlice{{Name: "a"}, {Name: "b"}})
	assert.Equal(t, 0, plot.Sum)
	for _, slice := range plot.Plot {
		assert.Zero(t, slice.Percentage)
	}
}

func TestAnnualEvolutionByScientiType(t *testing.T) {
	t.Parallel()

	iter := worksIter(
		domain.Work{YearPublished: intPtr(2021), Types: []domain.Type{
			{Source: domain.SourceScienti, Type: "Artículo", Level: intPtr(2)},
			{Source: domain.SourceScienti, Type: "Capítulo", Level: intPtr(1)},
		}},
		domain.Work{YearPublished: intPtr(2020), Types: []domain.Type{
			{Source: domain.SourceScienti, Type: "Artículo", Level: intPtr(2)},
		}},
		domain.Work{Types: []domain.Type{
			{Source: domain.SourceScienti, Type: "Artículo", Level: intPtr(2)},
		}},
	)

	plot, err := AnnualEvolutionByScientiType(iter)
	require.NoError(t, err)
	require.Len(t, plot.Plot, 2)
	assert.Equal(t, BarPoint{X: 2020, Y: 1, Type: "Artículo"}, plot.Plot[0])
	assert.Equal(t, BarPoint{X: 2021, Y: 1, Type: "Artículo"}, plot.Plot[1])
}

func TestAnnualCitationCount(t *testing.T) {
	t.Parallel()

	iter := worksIter(
		domain.Work{CitationsByYear: []domain.CitationByYear{
			{Year: 2019, CitedByCount: 4},
			{Year: 2020, CitedByCount: 2},
		}},
		domain.Work{CitationsByYear: []domain.CitationByYear{
			{Year: 2020, CitedByCount: 3},
		}},
		domain.Work{},
	)

	plot, err := AnnualCitationCount(iter)
	require.NoError(t, err)
	require.Len(t, plot.Plot, 3)
	assert.Equal(t, BarPoint{X: 2019, Y: 4}, plot.Plot[0])
	assert.Equal(t, BarPoint{X: 2020, Y: 5}, plot.Plot[1])
	assert.Equal(t, BarPoint{X: "Sin información", Y: 1}, plot.Plot[2])
}

func TestAnnualCitationCount_NoBucketWhenAllHaveHistory(t *testing.T) {
	t.Parallel()

	iter := worksIter(
		domain.Work{CitationsByYear: []domain.CitationByYear{{Year: 2021, CitedByCount: 6}}},
		domain.Work{CitationsByYear: []domain.CitationByYear{{Year: 2022, CitedByCount: 1}}},
	)

	plot, err := AnnualCitationCount(iter)
	require.NoError(t, err)
	require.Len(t, plot.Plot, 2)
	assert.Equal(t, BarPoint{X: 2021, Y: 6}, plot.Plot[0])
	assert.Equal(t, BarPoint{X: 2022, Y: 1}, plot.Plot[1])
}

func TestAnnualOpenAccess_Buckets(t *testing.T) {
	t.Parallel()

	iter := worksIter(
		domain.Work{YearPublished: intPtr(2021), OpenAccess: &domain.OpenAccess{IsOpenAccess: boolPtr(true)}},
		domain.Work{YearPublished: intPtr(2021), OpenAccess: &domain.OpenAccess{IsOpenAccess: boolPtr(false)}},
		domain.Work{YearPublished: intPtr(2021)},
		domain.Work{OpenAccess: &domain.OpenAccess{IsOpenAccess: boolPtr(true)}},
	)

	plot, err := AnnualOpenAccess(iter)
	require.NoError(t, err)
	require.Len(t, plot.Plot, 4)

	// The yearless bucket sorts after real years.
	assert.Equal(t, "Sin año", plot.Plot[3].X)

	byType := map[string]int{}
	for _, point := range plot.Plot[:3] {
		assert.Equal(t, 2021, point.X)
		byType[point.Type] = point.Y
	}
	assert.Equal(t, map[string]int{"Abierto": 1, "Cerrado": 1, "Sin información": 1}, byType)
}

func TestAnnualAPCExpenses(t *testing.T) {
	t.Parallel()

	iter := worksIter(
		domain.Work{YearPublished: intPtr(2020), Source: &domain.EmbeddedSource{
			APC: &domain.APC{Paid: &domain.Paid{ValueUSD: 1500}},
		}},
		domain.Work{YearPublished: intPtr(2020), Source: &domain.EmbeddedSource{
			APC: &domain.APC{Paid: &domain.Paid{ValueUSD: 500}},
		}},
		domain.Work{YearPublished: intPtr(2021)},
	)

	plot, err := AnnualAPCExpenses(iter)
	require.NoError(t, err)
	assert.Equal(t, 2000, plot.TotalAPC)
	assert.Equal(t, 3, plot.TotalResults)
	require.Len(t, plot.Plot, 1)
	assert.Equal(t, BarPoint{X: 2020, Y: 2000}, plot.Plot[0])
}

func TestArticlesByPublisher_OrdersByCount(t *testing.T) {
	t.Parallel()

	pub := func(name string) domain.Work {
		return domain.Work{Source: &domain.EmbeddedSource{Publisher: &domain.Publisher{Name: name}}}
	}
	plot, err := ArticlesByPublisher(worksIter(pub("Elsevier"), pub("Elsevier"), pub("SciELO"), domain.Work{}))
	require.NoError(t, err)

	require.Len(t, plot.Plot, 3)
	assert.Equal(t, "Elsevier", plot.Plot[0].Name)
	assert.Equal(t, 2, plot.Plot[0].Value)
	assert.Equal(t, 50.0, plot.Plot[0].Percentage)

	// Ties break alphabetically.
	assert.Equal(t, "SciELO", plot.Plot[1].Name)
	assert.Equal(t, "Sin información", plot.Plot[2].Name)
}

func TestProductsByAccessRoute(t *testing.T) {
	t.Parallel()

	plot, err := ProductsByAccessRoute(worksIter(
		domain.Work{OpenAccess: &domain.OpenAccess{OpenAccessStatus: strPtr("gold")}},
		domain.Work{OpenAccess: &domain.OpenAccess{OpenAccessStatus: strPtr("gold")}},
		domain.Work{},
	))
	require.NoError(t, err)
	require.Len(t, plot.Plot, 2)
	assert.Equal(t, PieSlice{Name: "gold", Value: 2, Percentage: 66.67}, plot.Plot[0])
}

func TestArticlesByScimagoQuartile_WindowCoverage(t *testing.T) {
	t.Parallel()

	ranked := domain.Work{
		DatePublished: 1500,
		Source: &domain.EmbeddedSource{Ranking: []domain.Ranking{
			{Source: "Scimago Best Quartile", Rank: "-", FromDate: 1000, ToDate: 2000},
			{Source: "Scimago Best Quartile", Rank: "Q2", FromDate: 1000, ToDate: 2000},
		}},
	}
	outsideWindow := domain.Work{
		DatePublished: 5000,
		Source: &domain.EmbeddedSource{Ranking: []domain.Ranking{
			{Source: "Scimago Best Quartile", Rank: "Q1", FromDate: 1000, ToDate: 2000},
		}},
	}

	plot, err := ArticlesByScimagoQuartile(worksIter(ranked, outsideWindow, domain.Work{}))
	require.NoError(t, err)

	require.Len(t, plot.Plot, 2)
	assert.Equal(t, "Sin información", plot.Plot[0].Name)
	assert.Equal(t, 2, plot.Plot[0].Value)
	assert.Equal(t, "Q2", plot.Plot[1].Name)
	assert.Equal(t, 1, plot.Plot[1].Value)
}

func TestArticlesByPublishingInstitution(t *testing.T) {
	t.Parallel()

	institution := &domain.Affiliation{Names: []domain.Name{{Name: "Universidad de Antioquia"}}}
	pub := func(name string) domain.Work {
		return domain.Work{Source: &domain.EmbeddedSource{Publisher: &domain.Publisher{Name: name}}}
	}

	plot, err := ArticlesByPublishingInstitution(
		worksIter(pub("UNIVERSIDAD DE ANTIOQUIA"), pub("Springer"), domain.Work{}),
		institution,
	)
	require.NoError(t, err)

	values := map[string]int{}
	for _, slice := range plot.Plot {
		values[slice.Name] = slice.Value
	}
	assert.Equal(t, map[string]int{"Misma": 1, "Diferente": 1, "Sin información": 1}, values)
}

func TestAffiliationsByProductType_SortsDescending(t *testing.T) {
	t.Parallel()

	plot := AffiliationsByProductType([]repository.AffiliationProductCount{
		{Name: "Facultad de Medicina", Type: "Artículo", WorksCount: 2},
		{Name: "Facultad de Artes", Type: "Artículo", WorksCount: 9},
	})

	require.Len(t, plot.Plot, 2)
	assert.Equal(t, BarPoint{X: "Facultad de Artes", Y: 9, Type: "Artículo"}, plot.Plot[0])
}

func TestCitationsByAffiliations(t *testing.T) {
	t.Parallel()

	plot := CitationsByAffiliations([]repository.AffiliationCitations{
		{Name: "Grupo A", CitationsCount: []domain.CitationsCount{
			{Source: domain.SourceScholar, Count: 99},
			{Source: domain.SourceOpenAlex, Count: 10},
		}},
		{CitationsCount: []domain.CitationsCount{{Source: domain.SourceOpenAlex, Count: 30}}},
	})

	require.Len(t, plot.Plot, 2)
	assert.Equal(t, 40, plot.Sum)
	assert.Equal(t, PieSlice{Name: "Grupo A", Value: 10, Percentage: 25}, plot.Plot[0])
	assert.Equal(t, "Sin información", plot.Plot[1].Name)
}

func TestAPCExpensesByAffiliations(t *testing.T) {
	t.Parallel()

	each := func(fn func(repository.AffiliationAPC) error) error {
		items := []repository.AffiliationAPC{
			{Name: "Facultad de Medicina", APC: &domain.APC{Paid: &domain.Paid{ValueUSD: 100}}},
			{Name: "Facultad de Medicina", APC: &domain.APC{Paid: &domain.Paid{ValueUSD: 200}}},
			{Name: "Facultad de Artes"},
		}
		for _, item := range items {
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	}

	plot, err := APCExpensesByAffiliations(each)
	require.NoError(t, err)
	require.Len(t, plot.Plot, 1)
	assert.Equal(t, PieSlice{Name: "Facultad de Medicina", Value: 300, Percentage: 100}, plot.Plot[0])
}

func TestPlotReducers_PropagateIteratorError(t *testing.T) {
	t.Parallel()

	boom := errors.New("cursor failed")
	failing := func(func(domain.Work) error) error { return boom }

	_, err := AnnualCitationCount(failing)
	assert.ErrorIs(t, err, boom)

	_, err = ArticlesByPublisher(failing)
	assert.ErrorIs(t, err, boom)
}

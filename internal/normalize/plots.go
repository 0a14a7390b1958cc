package normalize

import (
	"math"
	"sort"
	"strings"

	"github.com/impactu/research-analytics-service/internal/domain"
	"github.com/impactu/research-analytics-service/internal/repository"
)

// Spanish bucket labels used across plot payloads.
const (
	labelNoInfo    = "Sin información"
	labelNoYear    = "Sin año"
	labelOpen      = "Abierto"
	labelClosed    = "Cerrado"
	labelSame      = "Misma"
	labelDifferent = "Diferente"
)

// BarPoint is one bar of a grouped bar series. X is a year or a sentinel
// label; Type distinguishes series within the same year.
type BarPoint struct {
	X    interface{} `json:"x"`
	Y    int         `json:"y"`
	Type string      `json:"type,omitempty"`
}

// BarPlot is a bar chart payload.
type BarPlot struct {
	Plot []BarPoint `json:"plot"`
}

// APCPlot is the annual APC expenses payload.
type APCPlot struct {
	Plot         []BarPoint `json:"plot"`
	TotalAPC     int        `json:"total_apc"`
	TotalResults int        `json:"total_results"`
}

// PieSlice is one slice of a pie chart. The percentage is computed against
// the slice sum by WithPercentage.
type PieSlice struct {
	Name       string  `json:"name"`
	Value      int     `json:"value"`
	Percentage float64 `json:"percentage"`
}

// PiePlot is a pie chart payload.
type PiePlot struct {
	Plot []PieSlice `json:"plot"`
	Sum  int        `json:"sum"`
}

// WorkIterator feeds plot reducers one work at a time; Stream.Each satisfies
// it.
type WorkIterator = func(func(domain.Work) error) error

// WithPercentage computes each slice's share of the total. All percentages
// are zero when the sum is zero, never a division error.
func WithPercentage(slices []PieSlice) *PiePlot {
	var sum int
	for _, s := range slices {
		sum += s.Value
	}
	for i := range slices {
		if sum > 0 {
			slices[i].Percentage = math.Round(float64(slices[i].Value)/float64(sum)*100*100) / 100
		} else {
			slices[i].Percentage = 0
		}
	}
	return &PiePlot{Plot: slices, Sum: sum}
}

// AnnualEvolutionByScientiType counts works per year and scienti level-2
// classification.
func AnnualEvolutionByScientiType(each WorkIterator) (*BarPlot, error) {
	counts := map[int]map[string]int{}
	err := each(func(work domain.Work) error {
		if work.YearPublished == nil {
			return nil
		}
		for _, t := range work.Types {
			if t.Source == domain.SourceScienti && t.Level != nil && *t.Level == 2 {
				year := *work.YearPublished
				if counts[year] == nil {
					counts[year] = map[string]int{}
				}
				counts[year][t.Type]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var plot []BarPoint
	for year, types := range counts {
		for t, count := range types {
			plot = append(plot, BarPoint{X: year, Y: count, Type: t})
		}
	}
	sortBarsByYear(plot)
	return &BarPlot{Plot: plot}, nil
}

// AnnualCitationCount sums per-year citations across the scope. Works
// without any citation history are counted into a trailing no-info bucket,
// present only when such works exist.
func AnnualCitationCount(each WorkIterator) (*BarPlot, error) {
	counts := map[int]int{}
	noInfo := 0
	err := each(func(work domain.Work) error {
		if len(work.CitationsByYear) == 0 {
			noInfo++
			return nil
		}
		for _, citation := range work.CitationsByYear {
			counts[citation.Year] += citation.CitedByCount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var plot []BarPoint
	for year, count := range counts {
		plot = append(plot, BarPoint{X: year, Y: count})
	}
	sortBarsByYear(plot)
	if noInfo > 0 {
		plot = append(plot, BarPoint{X: labelNoInfo, Y: noInfo})
	}
	return &BarPlot{Plot: plot}, nil
}

// AnnualOpenAccess splits each year's works into open, closed and unknown
// buckets; works without a year land in a trailing no-year bucket.
func AnnualOpenAccess(each WorkIterator) (*BarPlot, error) {
	type key struct {
		year   interface{}
		status string
	}
	counts := map[key]int{}
	err := each(func(work domain.Work) error {
		var year interface{} = labelNoYear
		if work.YearPublished != nil {
			year = *work.YearPublished
		}
		status := labelNoInfo
		if work.OpenAccess != nil && work.OpenAccess.IsOpenAccess != nil {
			if *work.OpenAccess.IsOpenAccess {
				status = labelOpen
			} else {
				status = labelClosed
			}
		}
		counts[key{year: year, status: status}]++
		return nil
	})
	if err != nil {
		return nil, err
	}
	var plot []BarPoint
	for k, count := range counts {
		plot = append(plot, BarPoint{X: k.year, Y: count, Type: k.status})
	}
	sortBarsByYear(plot)
	return &BarPlot{Plot: plot}, nil
}

// AnnualAPCExpenses sums the paid USD APC value per publication year, plus
// the scope totals.
func AnnualAPCExpenses(each WorkIterator) (*APCPlot, error) {
	expenses := map[int]int{}
	totalAPC := 0
	totalResults := 0
	err := each(func(work domain.Work) error {
		totalResults++
		if work.Source == nil || work.Source.APC == nil || work.Source.APC.Paid == nil {
			return nil
		}
		value := work.Source.APC.Paid.ValueUSD
		if value == 0 || work.YearPublished == nil {
			return nil
		}
		expenses[*work.YearPublished] += value
		totalAPC += value
		return nil
	})
	if err != nil {
		return nil, err
	}
	var plot []BarPoint
	for year, value := range expenses {
		plot = append(plot, BarPoint{X: year, Y: value})
	}
	sortBarsByYear(plot)
	return &APCPlot{Plot: plot, TotalAPC: totalAPC, TotalResults: totalResults}, nil
}

// AffiliationsByProductType turns per-affiliation scienti counts into a bar
// series sorted by descending count.
func AffiliationsByProductType(data []repository.AffiliationProductCount) *BarPlot {
	plot := make([]BarPoint, 0, len(data))
	for _, item := range data {
		plot = append(plot, BarPoint{X: item.Name, Y: int(item.WorksCount), Type: item.Type})
	}
	sort.SliceStable(plot, func(i, j int) bool { return plot[i].Y > plot[j].Y })
	return &BarPlot{Plot: plot}
}

// CitationsByAffiliations builds the per-affiliation citation pie from the
// openalex citation counts.
func CitationsByAffiliations(data []repository.AffiliationCitations) *PiePlot {
	slices := make([]PieSlice, 0, len(data))
	for _, item := range data {
		count := 0
		for _, cc := range item.CitationsCount {
			if cc.Source == domain.SourceOpenAlex {
				count = cc.Count
				break
			}
		}
		name := item.Name
		if name == "" {
			name = labelNoInfo
		}
		slices = append(slices, PieSlice{Name: name, Value: count})
	}
	return WithPercentage(slices)
}

// APCExpensesByAffiliations folds streamed per-work APC charges into a
// per-affiliation expense pie.
func APCExpensesByAffiliations(each func(func(repository.AffiliationAPC) error) error) (*PiePlot, error) {
	expenses := map[string]int{}
	err := each(func(item repository.AffiliationAPC) error {
		if item.APC == nil || item.APC.Paid == nil {
			return nil
		}
		name := item.Name
		if name == "" {
			name = labelNoInfo
		}
		expenses[name] += item.APC.Paid.ValueUSD
		return nil
	})
	if err != nil {
		return nil, err
	}
	return WithPercentage(pieFromCounts(expenses)), nil
}

// ArticlesByPublisher counts works per source publisher.
func ArticlesByPublisher(each WorkIterator) (*PiePlot, error) {
	counts := map[string]int{}
	err := each(func(work domain.Work) error {
		name := labelNoInfo
		if work.Source != nil && work.Source.Publisher != nil && work.Source.Publisher.Name != "" {
			name = work.Source.Publisher.Name
		}
		counts[name]++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return WithPercentage(pieFromCounts(counts)), nil
}

// ProductsBySubject counts works per openalex subject term.
func ProductsBySubject(each WorkIterator) (*PiePlot, error) {
	counts := map[string]int{}
	err := each(func(work domain.Work) error {
		for _, subject := range work.Subjects {
			if subject.Source != domain.SourceOpenAlex {
				continue
			}
			for _, term := range subject.Subjects {
				if term.Name != "" {
					counts[term.Name]++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return WithPercentage(pieFromCounts(counts)), nil
}

// ProductsByAccessRoute counts works per open-access status.
func ProductsByAccessRoute(each WorkIterator) (*PiePlot, error) {
	counts := map[string]int{}
	err := each(func(work domain.Work) error {
		status := labelNoInfo
		if work.OpenAccess != nil && work.OpenAccess.OpenAccessStatus != nil {
			status = *work.OpenAccess.OpenAccessStatus
		}
		counts[status]++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return WithPercentage(pieFromCounts(counts)), nil
}

// ArticlesByScimagoQuartile buckets works by the Scimago quartile whose
// validity window covers the publication date; works whose source has no
// covering quartile land in the no-info bucket.
func ArticlesByScimagoQuartile(each WorkIterator) (*PiePlot, error) {
	counts := map[string]int{}
	total := 0
	ranked := 0
	err := each(func(work domain.Work) error {
		total++
		if work.Source == nil || work.DatePublished == 0 {
			return nil
		}
		for _, rank := range work.Source.Ranking {
			if !isScimagoSource(rank.Source) || rank.Rank == "-" {
				continue
			}
			if rank.FromDate <= work.DatePublished && work.DatePublished <= rank.ToDate {
				counts[rank.Rank]++
				ranked++
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices := []PieSlice{{Name: labelNoInfo, Value: total - ranked}}
	slices = append(slices, pieFromCounts(counts)...)
	return WithPercentage(slices), nil
}

// ArticlesByPublishingInstitution splits works by whether the source's
// publisher is the scope institution itself.
func ArticlesByPublishingInstitution(each WorkIterator, institution *domain.Affiliation) (*PiePlot, error) {
	names := map[string]bool{}
	if institution != nil {
		for _, name := range institution.Names {
			names[strings.ToLower(name.Name)] = true
		}
	}
	counts := map[string]int{labelSame: 0, labelDifferent: 0, labelNoInfo: 0}
	err := each(func(work domain.Work) error {
		if work.Source == nil || work.Source.Publisher == nil || work.Source.Publisher.Name == "" {
			counts[labelNoInfo]++
			return nil
		}
		if names[strings.ToLower(work.Source.Publisher.Name)] {
			counts[labelSame]++
		} else {
			counts[labelDifferent]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return WithPercentage(pieFromCounts(counts)), nil
}

func isScimagoSource(source string) bool {
	return strings.EqualFold(source, "Scimago Best Quartile")
}

// pieFromCounts renders a counter as deterministic slices, largest first.
func pieFromCounts(counts map[string]int) []PieSlice {
	slices := make([]PieSlice, 0, len(counts))
	for name, value := range counts {
		slices = append(slices, PieSlice{Name: name, Value: value})
	}
	sort.SliceStable(slices, func(i, j int) bool {
		if slices[i].Value != slices[j].Value {
			return slices[i].Value > slices[j].Value
		}
		return slices[i].Name < slices[j].Name
	})
	return slices
}

// sortBarsByYear orders bars by ascending year with sentinel labels last.
func sortBarsByYear(plot []BarPoint) {
	sort.SliceStable(plot, func(i, j int) bool {
		yi, iok := plot[i].X.(int)
		yj, jok := plot[j].X.(int)
		switch {
		case iok && jok:
			return yi < yj
		case iok:
			return true
		case jok:
			return false
		default:
			return false
		}
	})
}

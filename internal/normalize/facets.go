package normalize

import (
	"fmt"
	"sort"

	"github.com/impactu/research-analytics-service/internal/domain"
	"github.com/impactu/research-analytics-service/internal/pipeline"
	"github.com/impactu/research-analytics-service/internal/repository"
)

// FacetItem is one entry of a client-facing facet panel. Value is the filter
// token that reproduces the selection; nested classifications hang off
// Children.
type FacetItem struct {
	Title    string      `json:"title,omitempty"`
	Label    string      `json:"label,omitempty"`
	Value    string      `json:"value"`
	Count    int64       `json:"count,omitempty"`
	Children []FacetItem `json:"children,omitempty"`
}

// WorkFacetsPayload is the shaped available-filters response for a works
// scope. Dimensions whose sub-pipeline failed are nil and omitted.
type WorkFacetsPayload struct {
	ProductTypes   []FacetItem            `json:"product_types,omitempty"`
	Years          *repository.YearBounds `json:"years,omitempty"`
	Status         []FacetItem            `json:"status,omitempty"`
	Subjects       []FacetItem            `json:"subjects,omitempty"`
	Countries      []FacetItem            `json:"countries,omitempty"`
	AuthorsRanking []FacetItem            `json:"authors_ranking,omitempty"`
	GroupsRanking  []FacetItem            `json:"groups_ranking,omitempty"`
	Topics         []FacetItem            `json:"topics,omitempty"`
}

// SourceFacetsPayload is the shaped available-filters response for a source
// search.
type SourceFacetsPayload struct {
	SourceTypes      []FacetItem `json:"source_types,omitempty"`
	ScimagoQuartiles []FacetItem `json:"scimago_quartiles,omitempty"`
}

// ShapeWorkFacets converts the raw facet summary into the client payload,
// rebuilding each dimension's filter tokens.
func ShapeWorkFacets(facets *repository.WorkFacets) *WorkFacetsPayload {
	payload := &WorkFacetsPayload{Years: facets.Years}

	for _, group := range facets.ProductTypes {
		item := FacetItem{Title: group.Source, Value: group.Source}
		for _, child := range group.Types {
			value := group.Source + "_" + child.Type
			if group.Source == domain.SourceScienti && child.Code != "" {
				value += "_" + child.Code
			}
			item.Children = append(item.Children, FacetItem{
				Title: child.Type,
				Value: value,
				Count: child.Count,
			})
		}
		sortByCount(item.Children)
		payload.ProductTypes = append(payload.ProductTypes, item)
	}
	sortByTitle(payload.ProductTypes)

	for _, status := range facets.Status {
		label := "unknown"
		if status.Status != nil {
			label = *status.Status
		}
		payload.Status = append(payload.Status, FacetItem{
			Label: label,
			Value: label,
			Count: status.Count,
		})
	}

	for _, group := range facets.Subjects {
		item := FacetItem{Title: group.Source, Value: group.Source}
		for _, child := range group.Subjects {
			item.Children = append(item.Children, FacetItem{
				Title: child.Name,
				Value: fmt.Sprintf("%d_%s", child.Level, child.Name),
				Count: child.Count,
			})
		}
		sortByCount(item.Children)
		payload.Subjects = append(payload.Subjects, item)
	}
	sortByTitle(payload.Subjects)

	for _, country := range facets.Countries {
		payload.Countries = append(payload.Countries, FacetItem{
			Label: country.CountryCode,
			Value: country.CountryCode,
			Count: country.Count,
		})
	}

	payload.AuthorsRanking = rankItems(facets.AuthorsRanking)
	payload.GroupsRanking = rankItems(facets.GroupsRanking)

	for _, topic := range facets.Topics {
		payload.Topics = append(payload.Topics, FacetItem{
			Title: topic.DisplayName,
			Value: topic.ID,
			Count: topic.Count,
		})
	}
	return payload
}

// quartileLabels order the Scimago facet and render the quartile-less
// bucket.
var quartileOrder = []string{"Q1", "Q2", "Q3", "Q4", "-"}

var quartileLabels = map[string]string{
	"Q1": "Q1",
	"Q2": "Q2",
	"Q3": "Q3",
	"Q4": "Q4",
	"-":  "Sin cuartil",
}

// ShapeSourceFacets converts the raw source search facets into the client
// payload, folding raw classification labels onto the normalized source-type
// vocabulary and ordering quartiles Q1 through Q4.
func ShapeSourceFacets(facets *repository.SourceFacets) *SourceFacetsPayload {
	payload := &SourceFacetsPayload{}

	for _, group := range facets.SourceTypes {
		if group.Source == "" {
			continue
		}
		normalized := map[string]int64{}
		for _, child := range group.Types {
			if child.Type == "" {
				continue
			}
			normalized[pipeline.NormalizeSourceType(child.Type)] += child.Count
		}
		item := FacetItem{Title: group.Source, Value: group.Source}
		for name, count := range normalized {
			item.Children = append(item.Children, FacetItem{
				Title: name,
				Value: group.Source + "_" + name,
				Count: count,
			})
		}
		sortByCount(item.Children)
		payload.SourceTypes = append(payload.SourceTypes, item)
	}
	sortByTitle(payload.SourceTypes)

	counts := map[string]int64{}
	for _, quartile := range facets.ScimagoQuartiles {
		counts[quartile.Quartile] = quartile.Count
	}
	for _, quartile := range quartileOrder {
		payload.ScimagoQuartiles = append(payload.ScimagoQuartiles, FacetItem{
			Title: quartileLabels[quartile],
			Value: quartile,
			Count: counts[quartile],
		})
	}
	return payload
}

func rankItems(ranks []repository.RankFacet) []FacetItem {
	items := make([]FacetItem, 0, len(ranks))
	for _, rank := range ranks {
		label := fmt.Sprintf("%v", rank.Rank)
		if rank.Rank == nil || label == "" {
			continue
		}
		items = append(items, FacetItem{Label: label, Value: label})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items
}

func sortByCount(items []FacetItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Count > items[j].Count })
}

func sortByTitle(items []FacetItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Title < items[j].Title })
}

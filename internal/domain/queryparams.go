package domain

import (
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Pagination limits for list queries.
const (
	// DefaultLimit is the page size injected when the caller supplies no
	// pagination at all.
	DefaultLimit = 10

	// MaxLimit is the hard cap on page size; larger requests are clamped,
	// not rejected.
	MaxLimit = 250

	// DefaultSort is the sort token injected together with DefaultLimit.
	DefaultSort = "citations_desc"
)

var validate = validator.New()

// QueryParams is the filter and pagination contract for list, facet, CSV and
// plot queries. Filter dimensions hold raw comma-separated value strings; the
// pipeline package compiles them into match stages.
type QueryParams struct {
	Limit    int    `validate:"omitempty,gte=1,lte=250"`
	Page     int    `validate:"omitempty,gte=1"`
	Keywords string `validate:"omitempty,max=512"`
	Sort     string
	Plot     string

	ProductTypes   string
	Years          string
	Status         string
	Subjects       string
	Topics         string
	Countries      string
	GroupsRanking  string
	AuthorsRanking string

	// Source-search dimensions.
	SourceTypes      string
	ScimagoQuartiles string
}

// ParseQueryParams decodes URL query values into QueryParams, applying the
// documented defaults: when none of max, page, sort and plot are supplied,
// the query gets limit=10, page=1, sort="citations_desc". A requested max
// above MaxLimit is clamped, never rejected.
func ParseQueryParams(values url.Values) (QueryParams, error) {
	params := QueryParams{
		Keywords:       values.Get("keywords"),
		Sort:           values.Get("sort"),
		Plot:           values.Get("plot"),
		ProductTypes:   values.Get("product_types"),
		Years:          values.Get("years"),
		Status:         values.Get("status"),
		Subjects:       values.Get("subjects"),
		Topics:         values.Get("topics"),
		Countries:      values.Get("countries"),
		GroupsRanking:  values.Get("groups_ranking"),
		AuthorsRanking: values.Get("authors_ranking"),

		SourceTypes:      values.Get("source_types"),
		ScimagoQuartiles: values.Get("scimago_quartiles"),
	}

	if raw := values.Get("max"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return QueryParams{}, &ValidationError{Field: "max", Message: "must be a positive integer"}
		}
		if limit > MaxLimit {
			limit = MaxLimit
		}
		params.Limit = limit
	}
	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return QueryParams{}, &ValidationError{Field: "page", Message: "must be a positive integer"}
		}
		params.Page = page
	}

	params.ApplyDefaults()

	if err := validate.Struct(params); err != nil {
		return QueryParams{}, &ValidationError{Field: "query", Message: err.Error()}
	}
	return params, nil
}

// ApplyDefaults injects the default pagination contract when the caller
// supplied none of limit, page, sort and plot.
func (q *QueryParams) ApplyDefaults() {
	if q.Plot == "" && q.Limit == 0 && q.Page == 0 && q.Sort == "" {
		q.Limit = DefaultLimit
		q.Page = 1
		q.Sort = DefaultSort
	}
}

// Skip returns the number of documents to skip for the requested page.
func (q QueryParams) Skip() int {
	if q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// HasFilters reports whether any dimension beyond bare pagination and sort is
// active. Full scans without filters may use a cheap estimated count instead
// of an exact aggregation count; this method is the explicit definition of
// that contract.
func (q QueryParams) HasFilters() bool {
	return q.Keywords != "" ||
		q.ProductTypes != "" ||
		q.Years != "" ||
		q.Status != "" ||
		q.Subjects != "" ||
		q.Topics != "" ||
		q.Countries != "" ||
		q.GroupsRanking != "" ||
		q.AuthorsRanking != "" ||
		q.SourceTypes != "" ||
		q.ScimagoQuartiles != ""
}

package pipeline

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/impactu/research-analytics-service/internal/domain"
)

// sortTable maps symbolic sort tokens to field and direction. Unknown tokens
// fail fast: sort correctness is load-bearing for pagination determinism, so
// there is no graceful degradation here, unlike the filter compiler.
var sortTable = map[string]bson.D{
	"citations_asc":     {{Key: "citations_count.count", Value: 1}, {Key: "_id", Value: 1}},
	"citations_desc":    {{Key: "citations_count.count", Value: -1}, {Key: "_id", Value: 1}},
	"year_asc":          {{Key: "year_published", Value: 1}, {Key: "_id", Value: 1}},
	"year_desc":         {{Key: "year_published", Value: -1}, {Key: "_id", Value: 1}},
	"alphabetical_asc":  {{Key: "titles.0.title", Value: 1}, {Key: "_id", Value: 1}},
	"alphabetical_desc": {{Key: "titles.0.title", Value: -1}, {Key: "_id", Value: 1}},
	"products_asc":      {{Key: "products_count", Value: 1}, {Key: "_id", Value: 1}},
	"products_desc":     {{Key: "products_count", Value: -1}, {Key: "_id", Value: 1}},
}

// CompileSort resolves a symbolic sort token into a sort stage. The _id
// tiebreaker in every entry keeps pagination stable across identical sort
// keys.
func CompileSort(token string) (Stage, error) {
	spec, ok := sortTable[token]
	if !ok {
		return nil, &domain.ValidationError{Field: "sort", Message: "unknown sort token: " + token}
	}
	return Sort{Spec: spec}, nil
}

// Paginate appends the skip and limit stages for the requested page. The
// limit is assumed to be already clamped by QueryParams parsing.
func Paginate(params domain.QueryParams) Pipeline {
	var stages Pipeline
	if skip := params.Skip(); skip > 0 {
		stages = append(stages, Skip{N: skip})
	}
	if params.Limit > 0 {
		stages = append(stages, Limit{N: params.Limit})
	}
	return stages
}

// AppendListStages splices sort and pagination onto a scoped pipeline, in
// that order. An empty sort token appends no sort stage.
func AppendListStages(p Pipeline, params domain.QueryParams) (Pipeline, error) {
	if params.Sort != "" {
		sortStage, err := CompileSort(params.Sort)
		if err != nil {
			return nil, err
		}
		p = p.Append(sortStage)
	}
	return append(p, Paginate(params)...), nil
}

package pipeline

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/impactu/research-analytics-service/internal/domain"
)

// ScimagoRankingSources are the labels under which Scimago quartile entries
// appear in ranking lists; upstream data is inconsistent about casing.
var ScimagoRankingSources = bson.A{"scimago Best Quartile", "Scimago Best Quartile"}

// scimagoQuartiles is the closed set of valid quartile tokens. "-" marks
// sources Scimago lists without a quartile.
var scimagoQuartiles = map[string]bool{"Q1": true, "Q2": true, "Q3": true, "Q4": true, "-": true}

// normalizedSourceTypes folds raw per-source classification labels (including
// the scienti single-letter codes) onto the normalized source-type vocabulary
// used by the source search filters.
var normalizedSourceTypes = map[string]string{
	"e":                          "journal",
	"el":                         "journal",
	"ie":                         "journal",
	"im":                         "journal",
	"l":                          "journal",
	"p":                          "journal",
	"journal":                    "journal",
	"trade journal":              "trade journal",
	"book series":                "book series",
	"conference":                 "conference",
	"conference and proceedings": "conference and proceedings",
	"ebook platform":             "ebook platform",
	"metadata":                   "metadata",
	"repository":                 "repository",
	"other":                      "other",
}

// NormalizeSourceType maps a raw classification label to the normalized
// source-type vocabulary, falling back to "other".
func NormalizeSourceType(raw string) string {
	if mapped, ok := normalizedSourceTypes[strings.ToLower(raw)]; ok {
		return mapped
	}
	return "other"
}

// CompileSourceFilters translates the source-search dimensions into match
// stages. Unrecognized tokens are skipped, matching the filter compiler's
// graceful degradation.
func CompileSourceFilters(params domain.QueryParams) Pipeline {
	var stages Pipeline
	if s, ok := compileSourceTypes(params.SourceTypes); ok {
		stages = append(stages, s)
	}
	if s, ok := compileScimagoQuartiles(params.ScimagoQuartiles); ok {
		stages = append(stages, s)
	}
	return stages
}

func compileSourceTypes(raw string) (Stage, bool) {
	if raw == "" {
		return nil, false
	}
	var types []string
	for _, token := range strings.Split(raw, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if mapped, ok := normalizedSourceTypes[token]; ok {
			types = append(types, mapped)
		}
	}
	if len(types) == 0 {
		return nil, false
	}
	return Match{Predicate: bson.M{"types.type": bson.M{"$in": types}}}, true
}

func compileScimagoQuartiles(raw string) (Stage, bool) {
	if raw == "" {
		return nil, false
	}
	var quartiles []string
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if scimagoQuartiles[token] {
			quartiles = append(quartiles, token)
		}
	}
	if len(quartiles) == 0 {
		return nil, false
	}
	return Match{Predicate: bson.M{
		"ranking": bson.M{"$elemMatch": bson.M{
			"source": bson.M{"$in": ScimagoRankingSources},
			"rank":   bson.M{"$in": quartiles},
		}},
	}}, true
}

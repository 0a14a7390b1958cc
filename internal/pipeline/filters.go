package pipeline

import (
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/impactu/research-analytics-service/internal/domain"
)

// CompileFilters translates the filter dimensions of the query parameters
// into independent match stages, one per active dimension. Stages are
// self-contained and conjoined by pipeline order; within a dimension,
// comma-separated values are disjoined with $or.
//
// Malformed or empty tokens are silently skipped rather than rejected: a
// filter that cannot be parsed degrades to "no restriction" on that token.
// This permissive behavior is part of the documented contract.
func CompileFilters(params domain.QueryParams) Pipeline {
	var stages Pipeline
	if s, ok := compileProductTypes(params.ProductTypes); ok {
		stages = append(stages, s)
	}
	if s, ok := compileYears(params.Years); ok {
		stages = append(stages, s)
	}
	if s, ok := compileStatus(params.Status); ok {
		stages = append(stages, s)
	}
	if s, ok := compileSubjects(params.Subjects); ok {
		stages = append(stages, s)
	}
	if s, ok := compileTopics(params.Topics); ok {
		stages = append(stages, s)
	}
	if s, ok := compileCountries(params.Countries); ok {
		stages = append(stages, s)
	}
	if s, ok := compileGroupsRanking(params.GroupsRanking); ok {
		stages = append(stages, s)
	}
	if s, ok := compileAuthorsRanking(params.AuthorsRanking); ok {
		stages = append(stages, s)
	}
	return stages
}

// compileProductTypes handles tokens of the forms "source",
// "source_type" and "source_type_codePrefix"; the three-part form is only
// meaningful for the scienti classification, where the third part is a
// hierarchical code prefix.
func compileProductTypes(raw string) (Stage, bool) {
	if raw == "" {
		return nil, false
	}
	var conditions []bson.M
	for _, token := range strings.Split(raw, ",") {
		parts := strings.Split(token, "_")
		switch {
		case len(parts) == 1 && parts[0] != "":
			conditions = append(conditions, bson.M{
				"types": bson.M{"$elemMatch": bson.M{"source": parts[0]}},
			})
		case len(parts) == 2:
			conditions = append(conditions, bson.M{
				"types": bson.M{"$elemMatch": bson.M{"source": parts[0], "type": parts[1]}},
			})
		case len(parts) == 3 && parts[0] == domain.SourceScienti:
			conditions = append(conditions, bson.M{
				"types": bson.M{"$elemMatch": bson.M{
					"source": parts[0],
					"type":   parts[1],
					"code":   bson.M{"$regex": "^" + parts[2]},
				}},
			})
		}
	}
	if len(conditions) == 0 {
		return nil, false
	}
	return Match{Predicate: bson.M{"$or": conditions}}, true
}

// compileYears collapses the year list to the inclusive range
// [min(list), max(list)] on year_published.
func compileYears(raw string) (Stage, bool) {
	if raw == "" {
		return nil, false
	}
	first, last := 0, 0
	seen := false
	for _, token := range strings.Split(raw, ",") {
		year, err := strconv.Atoi(strings.TrimSpace(token))
		if err != nil {
			continue
		}
		if !seen {
			first, last = year, year
			seen = true
			continue
		}
		if year < first {
			first = year
		}
		if year > last {
			last = year
		}
	}
	if !seen {
		return nil, false
	}
	return Match{Predicate: bson.M{
		"year_published": bson.M{"$gte": first, "$lte": last},
	}}, true
}

// compileStatus maps status tokens onto the open_access_status field. The
// sentinel "unknown" selects documents with a null status and "open" selects
// any status that is neither null nor "closed".
func compileStatus(raw string) (Stage, bool) {
	if raw == "" {
		return nil, false
	}
	var conditions []bson.M
	for _, token := range strings.Split(raw, ",") {
		switch strings.TrimSpace(token) {
		case "":
			continue
		case "unknown":
			conditions = append(conditions, bson.M{"open_access.open_access_status": nil})
		case "open":
			conditions = append(conditions, bson.M{
				"open_access.open_access_status": bson.M{"$nin": bson.A{nil, "closed"}},
			})
		default:
			conditions = append(conditions, bson.M{"open_access.open_access_status": strings.TrimSpace(token)})
		}
	}
	if len(conditions) == 0 {
		return nil, false
	}
	return Match{Predicate: bson.M{"$or": conditions}}, true
}

// compileSubjects handles "level_name" tokens matched as exact (level, name)
// pairs against the nested subject arrays.
func compileSubjects(raw string) (Stage, bool) {
	if raw == "" {
		return nil, false
	}
	var conditions []bson.M
	for _, token := range strings.Split(raw, ",") {
		parts := strings.SplitN(token, "_", 2)
		if len(parts) != 2 {
			continue
		}
		level, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		conditions = append(conditions, bson.M{
			"subjects.subjects": bson.M{"$elemMatch": bson.M{"level": level, "name": parts[1]}},
		})
	}
	if len(conditions) == 0 {
		return nil, false
	}
	return Match{Predicate: bson.M{"$or": conditions}}, true
}

// compileTopics builds a membership test against primary_topic.id.
func compileTopics(raw string) (Stage, bool) {
	if raw == "" {
		return nil, false
	}
	var ids []string
	for _, token := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(token); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, false
	}
	return Match{Predicate: bson.M{"primary_topic.id": bson.M{"$in": ids}}}, true
}

// compileCountries matches ISO country codes per author affiliation address.
func compileCountries(raw string) (Stage, bool) {
	if raw == "" {
		return nil, false
	}
	var conditions []bson.M
	for _, token := range strings.Split(raw, ",") {
		code := strings.TrimSpace(token)
		if code == "" {
			continue
		}
		conditions = append(conditions, bson.M{
			"authors.affiliations.addresses": bson.M{"$elemMatch": bson.M{"country_code": code}},
		})
	}
	if len(conditions) == 0 {
		return nil, false
	}
	return Match{Predicate: bson.M{"$or": conditions}}, true
}

// compileGroupsRanking matches rank labels against the ranking history of a
// work's groups.
func compileGroupsRanking(raw string) (Stage, bool) {
	if raw == "" {
		return nil, false
	}
	var conditions []bson.M
	for _, token := range strings.Split(raw, ",") {
		rank := strings.TrimSpace(token)
		if rank == "" {
			continue
		}
		conditions = append(conditions, bson.M{
			"groups": bson.M{"$elemMatch": bson.M{"ranking.rank": rank}},
		})
	}
	if len(conditions) == 0 {
		return nil, false
	}
	return Match{Predicate: bson.M{"$or": conditions}}, true
}

// compileAuthorsRanking matches rank labels against the nested ranking
// entries of a work's authors.
func compileAuthorsRanking(raw string) (Stage, bool) {
	if raw == "" {
		return nil, false
	}
	var ranks []string
	for _, token := range strings.Split(raw, ",") {
		if rank := strings.TrimSpace(token); rank != "" {
			ranks = append(ranks, rank)
		}
	}
	if len(ranks) == 0 {
		return nil, false
	}
	return Match{Predicate: bson.M{
		"authors": bson.M{"$elemMatch": bson.M{
			"ranking": bson.M{"$elemMatch": bson.M{"rank": bson.M{"$in": ranks}}},
		}},
	}}, true
}

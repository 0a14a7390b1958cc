package pipeline

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/impactu/research-analytics-service/internal/domain"
)

// Collection names the scope pipelines run against.
const (
	CollectionWorks        = "works"
	CollectionPersons      = "person"
	CollectionAffiliations = "affiliations"
	CollectionSources      = "sources"
)

// Scope is the entity anchor of a works query: the collection to aggregate
// on and the stages that reach Work documents from that anchor. For most
// scopes the collection is works itself; faculty and department scopes start
// from the person collection and join across to works.
type Scope struct {
	Collection string
	Stages     Pipeline
}

// WorksByPerson anchors the pipeline on a single author id.
func WorksByPerson(personID primitive.ObjectID) Scope {
	return Scope{
		Collection: CollectionWorks,
		Stages:     Pipeline{Match{Predicate: bson.M{"authors.id": personID}}},
	}
}

// WorksBySource anchors the pipeline on the embedded source reference.
func WorksBySource(sourceID primitive.ObjectID) Scope {
	return Scope{
		Collection: CollectionWorks,
		Stages:     Pipeline{Match{Predicate: bson.M{"source.id": sourceID}}},
	}
}

// WorksByAffiliation resolves an affiliation scope into the pipeline that
// reaches its works, following the affiliation hierarchy:
//
//   - institution: direct membership match on the author affiliation snapshot;
//   - group: direct match on the work's group attachments;
//   - faculty, department: these are not attached to works directly. The
//     caller must resolve the parent institution id through the affiliation's
//     education relation and pass it in; the pipeline then starts from the
//     person collection (department membership lives on the person record,
//     not on the work snapshot) and keeps only works that also carry the
//     parent institution among their authors' affiliations.
//
// Faculty and department scopes without a resolved parent institution are a
// hard error: an unbounded join there would silently return works from every
// institution.
func WorksByAffiliation(affiliationID primitive.ObjectID, kind string, parentInstitutionID primitive.ObjectID) (Scope, error) {
	switch kind {
	case domain.AffiliationInstitution:
		return Scope{
			Collection: CollectionWorks,
			Stages:     Pipeline{Match{Predicate: bson.M{"authors.affiliations.id": affiliationID}}},
		}, nil
	case domain.AffiliationGroup:
		return Scope{
			Collection: CollectionWorks,
			Stages:     Pipeline{Match{Predicate: bson.M{"groups.id": affiliationID}}},
		}, nil
	case domain.AffiliationFaculty, domain.AffiliationDepartment:
		if parentInstitutionID.IsZero() {
			return Scope{}, &domain.NotFoundError{
				Entity: "parent institution for " + kind,
				ID:     affiliationID.Hex(),
			}
		}
		return Scope{
			Collection: CollectionPersons,
			Stages: Pipeline{
				Match{Predicate: bson.M{"affiliations.id": affiliationID}},
				Project{Spec: bson.M{"_id": 1}},
				Lookup{
					From:         CollectionWorks,
					LocalField:   "_id",
					ForeignField: "authors.id",
					As:           "work",
				},
				Unwind{Path: "$work"},
				Match{Predicate: bson.M{"work.authors.affiliations.id": parentInstitutionID}},
				ReplaceRoot{NewRoot: "$work"},
				// The person-side join duplicates a work once per matching
				// author; collapse back to one document per work.
				Group{Spec: bson.M{"_id": "$_id", "work": bson.M{"$first": "$$ROOT"}}},
				ReplaceRoot{NewRoot: "$work"},
			},
		}, nil
	default:
		return Scope{}, &domain.ValidationError{
			Field:   "affiliation_type",
			Message: fmt.Sprintf("unknown affiliation type %q", kind),
		}
	}
}

// issnSources are the external-id sources that carry ISSN data.
var issnSources = bson.A{"issn", "issn_l", "eissn", "pissn"}

// DeriveISSN returns the stages that reshape source.external_ids into the
// normalized {issn_l, issn: [...]} structure on the embedded source: issn_l
// becomes a single string, and the issn list tags each value as issn_l,
// issn, eissn or pissn, with values equal to the canonical issn_l tagged
// distinctly from plain issn entries. A work without ISSN data gets a null
// issn_l and an empty list.
func DeriveISSN() Pipeline {
	issnLEntry := bson.M{
		"$first": bson.M{
			"$filter": bson.M{
				"input": "$_issn_data",
				"as":    "e",
				"cond":  bson.M{"$eq": bson.A{"$$e.source", "issn_l"}},
			},
		},
	}

	return Pipeline{
		Set{Fields: bson.M{
			"_issn_data": bson.M{
				"$filter": bson.M{
					"input": bson.M{"$ifNull": bson.A{"$source.external_ids", bson.A{}}},
					"as":    "e",
					"cond":  bson.M{"$in": bson.A{"$$e.source", issnSources}},
				},
			},
		}},
		Set{Fields: bson.M{
			"source.issn_l": bson.M{
				"$let": bson.M{
					"vars": bson.M{"issn_l_entry": issnLEntry},
					"in":   "$$issn_l_entry.id",
				},
			},
			"source.issn": bson.M{
				"$reduce": bson.M{
					"input":        "$_issn_data",
					"initialValue": bson.A{},
					"in": bson.M{
						"$concatArrays": bson.A{
							"$$value",
							bson.M{"$switch": bson.M{
								"branches": bson.A{
									bson.M{
										"case": bson.M{"$eq": bson.A{"$$this.source", "issn"}},
										"then": bson.M{
											"$map": bson.M{
												"input": bson.M{"$cond": bson.A{
													bson.M{"$isArray": "$$this.id"}, "$$this.id", bson.A{"$$this.id"},
												}},
												"as": "issn_val",
												"in": bson.M{"$cond": bson.A{
													bson.M{"$let": bson.M{
														"vars": bson.M{"issn_l_entry": issnLEntry},
														"in":   bson.M{"$eq": bson.A{"$$issn_val", "$$issn_l_entry.id"}},
													}},
													bson.M{"issn_l": "$$issn_val"},
													bson.M{"issn": "$$issn_val"},
												}},
											},
										},
									},
									bson.M{
										"case": bson.M{"$eq": bson.A{"$$this.source", "eissn"}},
										"then": bson.A{bson.M{"eissn": "$$this.id"}},
									},
									bson.M{
										"case": bson.M{"$eq": bson.A{"$$this.source", "pissn"}},
										"then": bson.A{bson.M{"pissn": "$$this.id"}},
									},
								},
								"default": bson.A{},
							}},
						},
					},
				},
			},
		}},
		Unset{Fields: []string{"_issn_data"}},
	}
}

// CurrentRankingFilter restricts the embedded ranking list to the entries
// whose validity window covers the document's date_published.
func CurrentRankingFilter() Set {
	return Set{Fields: bson.M{
		"ranking": bson.M{
			"$filter": bson.M{
				"input": "$ranking",
				"as":    "rank",
				"cond": bson.M{"$and": bson.A{
					bson.M{"$lte": bson.A{"$$rank.from_date", "$date_published"}},
					bson.M{"$gte": bson.A{"$$rank.to_date", "$date_published"}},
				}},
			},
		},
	}}
}

// Package domain contains the document-shaped domain model for the research
// analytics service.
//
// All entities are externally ingested and read-only from this service's
// point of view: the repositories only read and reshape them. Most fields are
// heterogeneous-source records (one entry per upstream data source), so the
// model keeps the per-source lists intact and leaves canonical resolution to
// the normalize package.
package domain

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Data source identifiers as they appear in per-source record lists.
const (
	SourceOpenAlex    = "openalex"
	SourceScholar     = "scholar"
	SourceScienti     = "scienti"
	SourceMinciencias = "minciencias"
	SourceImpactu     = "impactu"
)

// Affiliation kinds, ordered from leaf to root of the affiliation hierarchy:
// group < department < faculty < institution.
const (
	AffiliationGroup       = "group"
	AffiliationDepartment  = "department"
	AffiliationFaculty     = "faculty"
	AffiliationInstitution = "institution"
)

// RelationTypeEducation links a faculty or department to its parent
// institution. Upstream data carries both "education" and "Education";
// comparisons must go through IsEducationRelation.
const RelationTypeEducation = "education"

// sensitiveIDSources are national identity document sources that must never
// be exposed on any author-facing payload.
var sensitiveIDSources = map[string]bool{
	"Cédula de Ciudadanía":  true,
	"Cédula de Extranjería": true,
	"Passport":              true,
}

// IsSensitiveIDSource reports whether an external-id source is a national
// identity document that must be redacted from author payloads.
func IsSensitiveIDSource(source string) bool {
	return sensitiveIDSources[source]
}

// IsEducationRelation reports whether a relation type string names the
// parent-institution relation. The comparison is case-insensitive because
// the ingested data is inconsistent about casing.
func IsEducationRelation(relationType string) bool {
	return strings.EqualFold(relationType, RelationTypeEducation)
}

// Name is a per-language, per-source display name.
type Name struct {
	Name   string `bson:"name" json:"name"`
	Lang   string `bson:"lang,omitempty" json:"lang,omitempty"`
	Source string `bson:"source,omitempty" json:"source,omitempty"`
}

// Type is a classification entry from one data source. Multiple
// classification systems coexist on the same entity.
type Type struct {
	Source string `bson:"source" json:"source"`
	Type   string `bson:"type" json:"type"`
	Level  *int   `bson:"level,omitempty" json:"level,omitempty"`
	Code   string `bson:"code,omitempty" json:"code,omitempty"`
}

// ExternalID is an identifier in an external system. The id value is
// heterogeneous upstream (string, int, list) so it is kept untyped.
type ExternalID struct {
	ID         interface{} `bson:"id" json:"id"`
	Source     string      `bson:"source" json:"source"`
	Provenance string      `bson:"provenance,omitempty" json:"provenance,omitempty"`
}

// ExternalURL is a URL record tagged with its source (e.g. "logo", "site").
type ExternalURL struct {
	URL    string `bson:"url" json:"url"`
	Source string `bson:"source" json:"source"`
}

// Address is a physical address attached to an affiliation.
type Address struct {
	City        string `bson:"city,omitempty" json:"city,omitempty"`
	Country     string `bson:"country,omitempty" json:"country,omitempty"`
	CountryCode string `bson:"country_code,omitempty" json:"country_code,omitempty"`
	Postcode    string `bson:"postcode,omitempty" json:"postcode,omitempty"`
	State       string `bson:"state,omitempty" json:"state,omitempty"`
}

// Ranking is a time-windowed ranking entry. A ranking is current when its
// [FromDate, ToDate] validity window covers the reference instant. Entries
// carrying only Date are point-in-time measurements.
type Ranking struct {
	Rank     string `bson:"rank" json:"rank"`
	Source   string `bson:"source" json:"source"`
	FromDate int64  `bson:"from_date,omitempty" json:"from_date,omitempty"`
	ToDate   int64  `bson:"to_date,omitempty" json:"to_date,omitempty"`
	Date     int64  `bson:"date,omitempty" json:"date,omitempty"`
}

// CoversInstant reports whether the ranking validity window contains the
// given unix timestamp.
func (r Ranking) CoversInstant(ts int64) bool {
	return r.FromDate != 0 && r.ToDate != 0 && r.FromDate <= ts && ts <= r.ToDate
}

// CitationsCount is a citation total from one counting source.
type CitationsCount struct {
	Source string `bson:"source" json:"source"`
	Count  int    `bson:"count" json:"count"`
}

// CitationByYear is a per-year citation count.
type CitationByYear struct {
	Year         int `bson:"year" json:"year"`
	CitedByCount int `bson:"cited_by_count" json:"cited_by_count"`
}

// AuthorAffiliation is the affiliation snapshot embedded on a work's author.
// EndDate == -1 means the affiliation is currently active.
type AuthorAffiliation struct {
	ID        primitive.ObjectID `bson:"id" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Types     []Type             `bson:"types,omitempty" json:"types,omitempty"`
	StartDate int64              `bson:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate   int64              `bson:"end_date,omitempty" json:"end_date,omitempty"`
	Addresses []Address          `bson:"addresses,omitempty" json:"addresses,omitempty"`
	Ranking   []Ranking          `bson:"ranking,omitempty" json:"ranking,omitempty"`
}

// Kind returns the affiliation kind. The first type entry conventionally
// determines it.
func (a AuthorAffiliation) Kind() string {
	if len(a.Types) == 0 {
		return ""
	}
	return a.Types[0].Type
}

// Author is an author entry embedded on a work, carrying its own
// affiliations snapshot.
type Author struct {
	ID           primitive.ObjectID  `bson:"id" json:"id"`
	FullName     string              `bson:"full_name" json:"full_name"`
	Affiliations []AuthorAffiliation `bson:"affiliations,omitempty" json:"affiliations,omitempty"`
	ExternalIDs  []ExternalID        `bson:"external_ids,omitempty" json:"external_ids,omitempty"`
	Ranking      []Ranking           `bson:"ranking,omitempty" json:"ranking,omitempty"`
}

// Group is a research-group attachment on a work, with the group's own
// ranking history.
type Group struct {
	ID      primitive.ObjectID `bson:"id" json:"id"`
	Name    string             `bson:"name" json:"name"`
	Ranking []Ranking          `bson:"ranking,omitempty" json:"ranking,omitempty"`
}

// SubjectContent is a single subject term inside a per-source subject list.
type SubjectContent struct {
	ID    interface{} `bson:"id,omitempty" json:"id,omitempty"`
	Name  string      `bson:"name" json:"name"`
	Level int         `bson:"level" json:"level"`
}

// Subject groups subject terms by the data source that assigned them.
type Subject struct {
	Source   string           `bson:"source" json:"source"`
	Subjects []SubjectContent `bson:"subjects,omitempty" json:"subjects,omitempty"`
}

// TopicLevel is one level of the topic taxonomy (subfield, field, domain).
type TopicLevel struct {
	ID          string `bson:"id,omitempty" json:"id,omitempty"`
	DisplayName string `bson:"display_name" json:"display_name"`
}

// Topic is a work's primary research topic with its taxonomy path.
type Topic struct {
	ID          string      `bson:"id" json:"id"`
	DisplayName string      `bson:"display_name" json:"display_name"`
	Subfield    *TopicLevel `bson:"subfield,omitempty" json:"subfield,omitempty"`
	Field       *TopicLevel `bson:"field,omitempty" json:"field,omitempty"`
	Domain      *TopicLevel `bson:"domain,omitempty" json:"domain,omitempty"`
	Count       int         `bson:"count,omitempty" json:"count,omitempty"`
}

// Publisher is a source's publisher record.
type Publisher struct {
	ID          string `bson:"id,omitempty" json:"id,omitempty"`
	Name        string `bson:"name,omitempty" json:"name,omitempty"`
	CountryCode string `bson:"country_code,omitempty" json:"country_code,omitempty"`
}

// Paid holds the paid portion of an article processing charge.
type Paid struct {
	Currency string `bson:"currency,omitempty" json:"currency,omitempty"`
	Source   string `bson:"source,omitempty" json:"source,omitempty"`
	Value    int    `bson:"value,omitempty" json:"value,omitempty"`
	ValueUSD int    `bson:"value_usd,omitempty" json:"value_usd,omitempty"`
}

// APC is an article-processing-charge structure. YearPublished is a per-work
// override stamped in by pipelines that embed a source into a work.
type APC struct {
	Charges       int    `bson:"charges,omitempty" json:"charges,omitempty"`
	Currency      string `bson:"currency,omitempty" json:"currency,omitempty"`
	Paid          *Paid  `bson:"paid,omitempty" json:"paid,omitempty"`
	YearPublished int    `bson:"year_published,omitempty" json:"year_published,omitempty"`
}

// ISSNEntry tags a single normalized ISSN value with its kind: issn, issn_l,
// eissn or pissn.
type ISSNEntry map[string]string

// EmbeddedSource is the source reference embedded on a work, including the
// derived ISSN fields produced by the pipeline builder.
type EmbeddedSource struct {
	ID           primitive.ObjectID `bson:"id" json:"id"`
	Name         string             `bson:"name,omitempty" json:"name,omitempty"`
	Names        []Name             `bson:"names,omitempty" json:"names,omitempty"`
	Types        []Type             `bson:"types,omitempty" json:"types,omitempty"`
	Publisher    *Publisher         `bson:"publisher,omitempty" json:"publisher,omitempty"`
	Ranking      []Ranking          `bson:"ranking,omitempty" json:"ranking,omitempty"`
	APC          *APC               `bson:"apc,omitempty" json:"apc,omitempty"`
	ExternalIDs  []ExternalID       `bson:"external_ids,omitempty" json:"external_ids,omitempty"`
	ExternalURLs []ExternalURL      `bson:"external_urls,omitempty" json:"external_urls,omitempty"`
	ISSNL        string             `bson:"issn_l,omitempty" json:"issn_l,omitempty"`
	ISSN         []ISSNEntry        `bson:"issn,omitempty" json:"issn,omitempty"`
}

// OpenAccess describes a work's open access state. A nil status means the
// state is unknown.
type OpenAccess struct {
	IsOpenAccess     *bool   `bson:"is_open_access,omitempty" json:"is_open_access,omitempty"`
	OpenAccessStatus *string `bson:"open_access_status,omitempty" json:"open_access_status,omitempty"`
	URL              string  `bson:"url,omitempty" json:"url,omitempty"`
}

// BibliographicInfo holds the bibliographic details of a work.
type BibliographicInfo struct {
	Bibtex    string `bson:"bibtex,omitempty" json:"bibtex,omitempty"`
	Pages     string `bson:"pages,omitempty" json:"pages,omitempty"`
	Issue     string `bson:"issue,omitempty" json:"issue,omitempty"`
	StartPage string `bson:"start_page,omitempty" json:"start_page,omitempty"`
	EndPage   string `bson:"end_page,omitempty" json:"end_page,omitempty"`
	Volume    string `bson:"volume,omitempty" json:"volume,omitempty"`
}

// Title is a per-source, per-language title candidate.
type Title struct {
	Title  string `bson:"title" json:"title"`
	Lang   string `bson:"lang,omitempty" json:"lang,omitempty"`
	Source string `bson:"source" json:"source"`
}

// Work is a research product.
type Work struct {
	ID                primitive.ObjectID `bson:"_id" json:"id"`
	Titles            []Title            `bson:"titles,omitempty" json:"titles,omitempty"`
	Abstract          string             `bson:"abstract,omitempty" json:"abstract,omitempty"`
	Authors           []Author           `bson:"authors,omitempty" json:"authors,omitempty"`
	AuthorCount       int                `bson:"author_count,omitempty" json:"author_count,omitempty"`
	Source            *EmbeddedSource    `bson:"source,omitempty" json:"source,omitempty"`
	Types             []Type             `bson:"types,omitempty" json:"types,omitempty"`
	CitationsCount    []CitationsCount   `bson:"citations_count,omitempty" json:"citations_count,omitempty"`
	CitationsByYear   []CitationByYear   `bson:"citations_by_year,omitempty" json:"citations_by_year,omitempty"`
	Subjects          []Subject          `bson:"subjects,omitempty" json:"subjects,omitempty"`
	PrimaryTopic      *Topic             `bson:"primary_topic,omitempty" json:"primary_topic,omitempty"`
	YearPublished     *int               `bson:"year_published,omitempty" json:"year_published,omitempty"`
	DatePublished     int64              `bson:"date_published,omitempty" json:"date_published,omitempty"`
	OpenAccess        *OpenAccess        `bson:"open_access,omitempty" json:"open_access,omitempty"`
	Ranking           []Ranking          `bson:"ranking,omitempty" json:"ranking,omitempty"`
	Groups            []Group            `bson:"groups,omitempty" json:"groups,omitempty"`
	ExternalIDs       []ExternalID       `bson:"external_ids,omitempty" json:"external_ids,omitempty"`
	DOI               string             `bson:"doi,omitempty" json:"doi,omitempty"`
	BibliographicInfo *BibliographicInfo `bson:"bibliographic_info,omitempty" json:"bibliographic_info,omitempty"`
}

// CitationsBySource returns the citation count reported by the given source,
// or zero when that source has no entry.
func (w *Work) CitationsBySource(source string) int {
	for _, cc := range w.CitationsCount {
		if cc.Source == source {
			return cc.Count
		}
	}
	return 0
}

// Person is a top-level person document. End-dated affiliations remain in
// the history; EndDate == -1 marks the currently active ones.
type Person struct {
	ID           primitive.ObjectID  `bson:"_id" json:"id"`
	FullName     string              `bson:"full_name" json:"full_name"`
	FirstNames   []string            `bson:"first_names,omitempty" json:"first_names,omitempty"`
	LastNames    []string            `bson:"last_names,omitempty" json:"last_names,omitempty"`
	Affiliations []AuthorAffiliation `bson:"affiliations,omitempty" json:"affiliations,omitempty"`
	ExternalIDs  []ExternalID        `bson:"external_ids,omitempty" json:"external_ids,omitempty"`
	Ranking      []Ranking           `bson:"ranking,omitempty" json:"ranking,omitempty"`
	Birthdate    int64               `bson:"birthdate,omitempty" json:"birthdate,omitempty"`
	Sex          string              `bson:"sex,omitempty" json:"sex,omitempty"`
}

// Relation is an edge to a parent or child affiliation.
type Relation struct {
	ID    primitive.ObjectID `bson:"id" json:"id"`
	Name  string             `bson:"name,omitempty" json:"name,omitempty"`
	Types []Type             `bson:"types,omitempty" json:"types,omitempty"`
}

// Affiliation is a top-level affiliation document: an institution, faculty,
// department or research group.
type Affiliation struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	Names        []Name             `bson:"names,omitempty" json:"names,omitempty"`
	Types        []Type             `bson:"types,omitempty" json:"types,omitempty"`
	Relations    []Relation         `bson:"relations,omitempty" json:"relations,omitempty"`
	Addresses    []Address          `bson:"addresses,omitempty" json:"addresses,omitempty"`
	Ranking      []Ranking          `bson:"ranking,omitempty" json:"ranking,omitempty"`
	ExternalIDs  []ExternalID       `bson:"external_ids,omitempty" json:"external_ids,omitempty"`
	ExternalURLs []ExternalURL      `bson:"external_urls,omitempty" json:"external_urls,omitempty"`
}

// Kind returns the affiliation kind determined by the first type entry.
func (a *Affiliation) Kind() string {
	if len(a.Types) == 0 {
		return ""
	}
	return a.Types[0].Type
}

// LogoURL returns the URL of the external_urls entry tagged source "logo",
// or the empty string when the affiliation has none.
func (a *Affiliation) LogoURL() string {
	for _, u := range a.ExternalURLs {
		if u.Source == "logo" {
			return u.URL
		}
	}
	return ""
}

// ParentInstitutionID resolves the parent institution of a faculty or
// department through its education relation. The second return value is
// false when no education relation exists.
func (a *Affiliation) ParentInstitutionID() (primitive.ObjectID, bool) {
	for _, rel := range a.Relations {
		for _, t := range rel.Types {
			if IsEducationRelation(t.Type) {
				return rel.ID, true
			}
		}
	}
	return primitive.NilObjectID, false
}

// Source is a top-level source (journal/venue) document.
type Source struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	Names        []Name             `bson:"names,omitempty" json:"names,omitempty"`
	Types        []Type             `bson:"types,omitempty" json:"types,omitempty"`
	Publisher    *Publisher         `bson:"publisher,omitempty" json:"publisher,omitempty"`
	Ranking      []Ranking          `bson:"ranking,omitempty" json:"ranking,omitempty"`
	APC          *APC               `bson:"apc,omitempty" json:"apc,omitempty"`
	ExternalIDs  []ExternalID       `bson:"external_ids,omitempty" json:"external_ids,omitempty"`
	ExternalURLs []ExternalURL      `bson:"external_urls,omitempty" json:"external_urls,omitempty"`
	Topics       []Topic            `bson:"topics,omitempty" json:"topics,omitempty"`
}

// CurrentQuartile returns the rank of the most recent ranking entry whose
// validity window covers the given instant, preferring later windows.
func (s *Source) CurrentQuartile(ts int64) string {
	var best *Ranking
	for i := range s.Ranking {
		r := &s.Ranking[i]
		if !r.CoversInstant(ts) {
			continue
		}
		if best == nil || r.ToDate > best.ToDate {
			best = r
		}
	}
	if best == nil {
		return ""
	}
	return best.Rank
}

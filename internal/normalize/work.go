package normalize

import (
	"sort"

	"github.com/impactu/research-analytics-service/internal/domain"
)

// WorkPayload is the client-facing projection of a work: canonical title and
// language resolved from the per-source candidates, authors redacted, types
// ordered by source priority.
type WorkPayload struct {
	ID                string                    `json:"id"`
	Title             string                    `json:"title"`
	Language          string                    `json:"language,omitempty"`
	Abstract          string                    `json:"abstract,omitempty"`
	Authors           []domain.Author           `json:"authors,omitempty"`
	OpenAccess        *domain.OpenAccess        `json:"open_access,omitempty"`
	CitationsCount    []domain.CitationsCount   `json:"citations_count,omitempty"`
	ProductTypes      []domain.Type             `json:"product_types,omitempty"`
	YearPublished     *int                      `json:"year_published,omitempty"`
	Subjects          []domain.Subject          `json:"subjects,omitempty"`
	PrimaryTopic      *domain.Topic             `json:"primary_topic,omitempty"`
	Source            *domain.EmbeddedSource    `json:"source,omitempty"`
	Ranking           []domain.Ranking          `json:"ranking,omitempty"`
	Groups            []domain.Group            `json:"groups,omitempty"`
	ExternalIDs       []domain.ExternalID       `json:"external_ids,omitempty"`
	DOI               string                    `json:"doi,omitempty"`
	BibliographicInfo *domain.BibliographicInfo `json:"bibliographic_info,omitempty"`
}

// ShapeWork builds the client payload of a work. The input is mutated: its
// authors are redacted in place.
func ShapeWork(work *domain.Work) *WorkPayload {
	RedactWorkAuthors(work)
	title, lang := CanonicalTitle(work)

	types := make([]domain.Type, len(work.Types))
	copy(types, work.Types)
	sort.SliceStable(types, func(i, j int) bool {
		return priorityOf(types[i].Source) < priorityOf(types[j].Source)
	})

	return &WorkPayload{
		ID:                work.ID.Hex(),
		Title:             title,
		Language:          lang,
		Abstract:          work.Abstract,
		Authors:           work.Authors,
		OpenAccess:        work.OpenAccess,
		CitationsCount:    work.CitationsCount,
		ProductTypes:      types,
		YearPublished:     work.YearPublished,
		Subjects:          work.Subjects,
		PrimaryTopic:      work.PrimaryTopic,
		Source:            work.Source,
		Ranking:           work.Ranking,
		Groups:            work.Groups,
		ExternalIDs:       work.ExternalIDs,
		DOI:               work.DOI,
		BibliographicInfo: work.BibliographicInfo,
	}
}

// ShapePerson redacts a person document for the client. The input is mutated
// in place and returned for convenience.
func ShapePerson(person *domain.Person) *domain.Person {
	RedactPerson(person)
	return person
}

// AffiliationPayload is the client-facing projection of an affiliation.
type AffiliationPayload struct {
	*domain.Affiliation
	Kind    string `json:"kind,omitempty"`
	LogoURL string `json:"logo_url,omitempty"`
}

// ShapeAffiliation derives the affiliation's kind and logo URL alongside the
// raw document.
func ShapeAffiliation(affiliation *domain.Affiliation) *AffiliationPayload {
	return &AffiliationPayload{
		Affiliation: affiliation,
		Kind:        affiliation.Kind(),
		LogoURL:     affiliation.LogoURL(),
	}
}

// Package normalize reshapes raw domain documents into client-facing
// payloads: canonical field resolution across competing per-source records,
// author redaction, CSV rows, plot series and facet payloads.
package normalize

import (
	"github.com/impactu/research-analytics-service/internal/domain"
)

// sourcePriority is the fixed resolution order for per-source candidate
// fields. Ties are broken by this list, never by insertion order; sources not
// listed rank last.
var sourcePriority = map[string]int{
	domain.SourceOpenAlex:    0,
	domain.SourceScholar:     1,
	domain.SourceScienti:     2,
	domain.SourceMinciencias: 3,
}

func priorityOf(source string) int {
	if p, ok := sourcePriority[source]; ok {
		return p
	}
	return len(sourcePriority)
}

// CanonicalTitle resolves a work's display title and language from its
// per-source title candidates.
func CanonicalTitle(work *domain.Work) (title, lang string) {
	best := -1
	for i, t := range work.Titles {
		if best == -1 || priorityOf(t.Source) < priorityOf(work.Titles[best].Source) {
			best = i
		}
	}
	if best == -1 {
		return "", ""
	}
	return work.Titles[best].Title, work.Titles[best].Lang
}

// CanonicalType resolves a work's product type from its per-source
// classification entries.
func CanonicalType(work *domain.Work) *domain.Type {
	best := -1
	for i, t := range work.Types {
		if best == -1 || priorityOf(t.Source) < priorityOf(work.Types[best].Source) {
			best = i
		}
	}
	if best == -1 {
		return nil
	}
	return &work.Types[best]
}

// CanonicalRanking resolves an entity's ranking entry from competing
// per-source ranking records.
func CanonicalRanking(ranking []domain.Ranking) *domain.Ranking {
	best := -1
	for i, r := range ranking {
		if best == -1 || priorityOf(r.Source) < priorityOf(ranking[best].Source) {
			best = i
		}
	}
	if best == -1 {
		return nil
	}
	return &ranking[best]
}

// RedactAuthor strips national identity document entries from an author's
// external ids. Every code path that serializes an Author must pass through
// here; the redaction is a privacy requirement, not formatting.
func RedactAuthor(author *domain.Author) {
	if len(author.ExternalIDs) == 0 {
		return
	}
	kept := author.ExternalIDs[:0]
	for _, id := range author.ExternalIDs {
		if domain.IsSensitiveIDSource(id.Source) {
			continue
		}
		kept = append(kept, id)
	}
	author.ExternalIDs = kept
}

// RedactWorkAuthors redacts every author of a work in place.
func RedactWorkAuthors(work *domain.Work) {
	for i := range work.Authors {
		RedactAuthor(&work.Authors[i])
	}
}

// RedactPerson strips national identity document entries from a person
// document.
func RedactPerson(person *domain.Person) {
	if len(person.ExternalIDs) == 0 {
		return
	}
	kept := person.ExternalIDs[:0]
	for _, id := range person.ExternalIDs {
		if domain.IsSensitiveIDSource(id.Source) {
			continue
		}
		kept = append(kept, id)
	}
	person.ExternalIDs = kept
}

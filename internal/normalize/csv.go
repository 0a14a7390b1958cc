package normalize

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/impactu/research-analytics-service/internal/domain"
)

// csvDateFormat renders unix timestamps in ranking columns.
const csvDateFormat = "02-01-2006"

// csvJoin separates multi-valued CSV cells.
const csvJoin = " | "

// CSVColumns is the fixed export column set, in order.
var CSVColumns = []string{
	"title",
	"language",
	"abstract",
	"authors",
	"institutions",
	"faculties",
	"departments",
	"groups",
	"countries",
	"groups_ranking",
	"ranking",
	"issue",
	"is_open_access",
	"open_access_status",
	"pages",
	"start_page",
	"end_page",
	"volume",
	"bibtex",
	"openalex_citations_count",
	"scholar_citations_count",
	"subjects",
	"year_published",
	"doi",
	"publisher",
	"openalex_types",
	"scienti_types",
	"impactu_types",
	"source_name",
	"source_apc",
	"source_urls",
	"primary_topic",
}

// CSVRow is one flattened export row keyed by column name.
type CSVRow map[string]string

// BuildCSVRow flattens a work into its export row. Authors are redacted
// before any field is read from them.
func BuildCSVRow(work *domain.Work) CSVRow {
	RedactWorkAuthors(work)

	row := CSVRow{}
	title, lang := CanonicalTitle(work)
	row["title"] = title
	row["language"] = lang
	row["abstract"] = work.Abstract

	row["authors"] = joinSorted(authorNames(work))
	fillAffiliationColumns(work, row)
	fillRankingColumn(work, row)
	fillBibliographicColumns(work, row)
	fillOpenAccessColumns(work, row)
	fillCitationColumns(work, row)
	fillTypeColumns(work, row)
	fillSourceColumns(work, row)
	row["subjects"] = subjectsColumn(work)
	row["primary_topic"] = primaryTopicColumn(work)

	if work.YearPublished != nil {
		row["year_published"] = strconv.Itoa(*work.YearPublished)
	}
	row["doi"] = work.DOI
	return row
}

// WriteCSV streams export rows for every work the iterator yields, using the
// fixed column set. each is expected to behave like Stream.Each: invoke the
// callback once per decodable work and return the terminal error. The row
// count of written data rows is returned alongside any error.
func WriteCSV(w io.Writer, each func(func(domain.Work) error) error) (int64, error) {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVColumns); err != nil {
		return 0, err
	}

	var rows int64
	err := each(func(work domain.Work) error {
		row := BuildCSVRow(&work)
		record := make([]string, len(CSVColumns))
		for i, col := range CSVColumns {
			record[i] = row[col]
		}
		if err := writer.Write(record); err != nil {
			return err
		}
		rows++
		return nil
	})
	if err != nil {
		return rows, err
	}
	writer.Flush()
	return rows, writer.Error()
}

func authorNames(work *domain.Work) mapset.Set[string] {
	names := mapset.NewThreadUnsafeSet[string]()
	for _, author := range work.Authors {
		if author.FullName != "" {
			names.Add(author.FullName)
		}
	}
	return names
}

// fillAffiliationColumns walks every author affiliation once and buckets the
// names by kind. Anything that is not a department, faculty or group counts
// as an institution; upstream types carry several institutional variants.
func fillAffiliationColumns(work *domain.Work, row CSVRow) {
	institutions := mapset.NewThreadUnsafeSet[string]()
	departments := mapset.NewThreadUnsafeSet[string]()
	faculties := mapset.NewThreadUnsafeSet[string]()
	groups := mapset.NewThreadUnsafeSet[string]()
	countries := mapset.NewThreadUnsafeSet[string]()

	for _, author := range work.Authors {
		for _, affiliation := range author.Affiliations {
			switch affiliation.Kind() {
			case domain.AffiliationDepartment:
				departments.Add(affiliation.Name)
			case domain.AffiliationFaculty:
				faculties.Add(affiliation.Name)
			case domain.AffiliationGroup:
				groups.Add(affiliation.Name)
			default:
				institutions.Add(affiliation.Name)
				if len(affiliation.Addresses) > 0 && affiliation.Addresses[0].Country != "" {
					countries.Add(affiliation.Addresses[0].Country)
				}
			}
		}
	}

	groupsRanking := mapset.NewThreadUnsafeSet[string]()
	for _, group := range work.Groups {
		for _, rank := range group.Ranking {
			if entry := formatRankingWindow(rank); entry != "" {
				groupsRanking.Add(entry)
			}
		}
	}

	row["institutions"] = joinSorted(institutions)
	row["departments"] = joinSorted(departments)
	row["faculties"] = joinSorted(faculties)
	row["groups"] = joinSorted(groups)
	row["countries"] = joinSorted(countries)
	row["groups_ranking"] = joinSorted(groupsRanking)
}

// formatRankingWindow renders a group ranking entry with its validity window
// when both bounds exist, or its single measurement date.
func formatRankingWindow(rank domain.Ranking) string {
	switch {
	case rank.FromDate != 0 && rank.ToDate != 0:
		return fmt.Sprintf("%s / %s - %s",
			rank.Rank,
			time.Unix(rank.FromDate, 0).Format(csvDateFormat),
			time.Unix(rank.ToDate, 0).Format(csvDateFormat))
	case rank.Date != 0:
		return fmt.Sprintf("%s / %s", rank.Rank, time.Unix(rank.Date, 0).Format(csvDateFormat))
	default:
		return ""
	}
}

func fillRankingColumn(work *domain.Work, row CSVRow) {
	var entries []string
	for _, rank := range work.Ranking {
		parts := []string{rank.Rank, rank.Source}
		if rank.Date != 0 {
			parts = append(parts, time.Unix(rank.Date, 0).Format(csvDateFormat))
		}
		entries = append(entries, strings.Join(parts, " / "))
	}
	row["ranking"] = strings.Join(entries, csvJoin)
}

func fillBibliographicColumns(work *domain.Work, row CSVRow) {
	info := work.BibliographicInfo
	if info == nil {
		return
	}
	row["bibtex"] = strings.ReplaceAll(info.Bibtex, "\n", " ")
	row["pages"] = info.Pages
	row["issue"] = info.Issue
	row["start_page"] = info.StartPage
	row["end_page"] = info.EndPage
	row["volume"] = info.Volume
}

func fillOpenAccessColumns(work *domain.Work, row CSVRow) {
	if work.OpenAccess == nil {
		return
	}
	if work.OpenAccess.IsOpenAccess != nil {
		row["is_open_access"] = strconv.FormatBool(*work.OpenAccess.IsOpenAccess)
	}
	if work.OpenAccess.OpenAccessStatus != nil {
		row["open_access_status"] = *work.OpenAccess.OpenAccessStatus
	}
}

func fillCitationColumns(work *domain.Work, row CSVRow) {
	for _, cc := range work.CitationsCount {
		switch cc.Source {
		case domain.SourceOpenAlex:
			row["openalex_citations_count"] = strconv.Itoa(cc.Count)
		case domain.SourceScholar:
			row["scholar_citations_count"] = strconv.Itoa(cc.Count)
		}
	}
}

func fillTypeColumns(work *domain.Work, row CSVRow) {
	openalex := mapset.NewThreadUnsafeSet[string]()
	scienti := mapset.NewThreadUnsafeSet[string]()
	impactu := mapset.NewThreadUnsafeSet[string]()
	for _, t := range work.Types {
		if t.Type == "" {
			continue
		}
		switch t.Source {
		case domain.SourceOpenAlex:
			openalex.Add(t.Type)
		case domain.SourceScienti:
			scienti.Add(t.Type)
		case domain.SourceImpactu:
			impactu.Add(t.Type)
		}
	}
	row["openalex_types"] = joinSorted(openalex)
	row["scienti_types"] = joinSorted(scienti)
	row["impactu_types"] = joinSorted(impactu)
}

func fillSourceColumns(work *domain.Work, row CSVRow) {
	source := work.Source
	if source == nil {
		return
	}
	row["source_name"] = source.Name
	if row["source_name"] == "" && len(source.Names) > 0 {
		row["source_name"] = source.Names[0].Name
	}
	if source.Publisher != nil {
		row["publisher"] = source.Publisher.Name
	}
	if source.APC != nil && source.APC.Charges > 0 {
		row["source_apc"] = fmt.Sprintf("%d %s", source.APC.Charges, source.APC.Currency)
	}
	urls := mapset.NewThreadUnsafeSet[string]()
	for _, u := range source.ExternalURLs {
		if u.URL != "" {
			urls.Add(u.URL)
		}
	}
	row["source_urls"] = joinSorted(urls)
}

// subjectsColumn joins the subject names of the work's first subject source.
func subjectsColumn(work *domain.Work) string {
	if len(work.Subjects) == 0 {
		return ""
	}
	names := mapset.NewThreadUnsafeSet[string]()
	for _, subject := range work.Subjects[0].Subjects {
		if subject.Name != "" {
			names.Add(subject.Name)
		}
	}
	return joinSorted(names)
}

// primaryTopicColumn renders the topic taxonomy path of the work's primary
// topic.
func primaryTopicColumn(work *domain.Work) string {
	topic := work.PrimaryTopic
	if topic == nil {
		return ""
	}
	var parts []string
	if topic.DisplayName != "" {
		parts = append(parts, "Topic: "+topic.DisplayName)
	}
	if topic.Subfield != nil {
		parts = append(parts, "Subfield: "+topic.Subfield.DisplayName)
	}
	if topic.Field != nil {
		parts = append(parts, "Field: "+topic.Field.DisplayName)
	}
	if topic.Domain != nil {
		parts = append(parts, "Domain: "+topic.Domain.DisplayName)
	}
	return strings.Join(parts, csvJoin)
}

// joinSorted renders a dedup set as a deterministic pipe-joined cell.
func joinSorted(set mapset.Set[string]) string {
	values := set.ToSlice()
	sort.Strings(values)
	return strings.Join(values, csvJoin)
}

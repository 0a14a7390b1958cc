package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/impactu/research-analytics-service/internal/domain"
	"github.com/impactu/research-analytics-service/internal/normalize"
	"github.com/impactu/research-analytics-service/internal/pipeline"
)

// getWork handles GET /app/work/{workID}.
func (s *Server) getWork(w http.ResponseWriter, r *http.Request) {
	id, ok := parseObjectID(w, chi.URLParam(r, "workID"), "work_id")
	if !ok {
		return
	}

	work, err := s.works.GetWorkByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: normalize.ShapeWork(work)})
}

// searchWorks handles GET /app/search/works: keyword search over the full
// works collection with the standard filter dimensions.
func (s *Server) searchWorks(w http.ResponseWriter, r *http.Request) {
	params, ok := s.parseParams(w, r)
	if !ok {
		return
	}

	start := time.Now()
	stream, total, err := s.works.SearchWorks(r.Context(), params)
	s.observeQuery("work", "search", start, err)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeWorkList(w, stream, total)
}

// searchWorksFilters handles GET /app/search/works/filters.
func (s *Server) searchWorksFilters(w http.ResponseWriter, r *http.Request) {
	params, ok := s.parseParams(w, r)
	if !ok {
		return
	}

	facets, err := s.facets.WorksFacets(r.Context(), globalWorksScope(params), params)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: normalize.ShapeWorkFacets(facets)})
}

// globalWorksScope anchors a facet query on the whole works collection,
// narrowed by the keyword text search when one is active.
func globalWorksScope(params domain.QueryParams) pipeline.Scope {
	scope := pipeline.Scope{Collection: pipeline.CollectionWorks}
	if params.Keywords != "" {
		scope.Stages = pipeline.Pipeline{pipeline.TextSearch(params.Keywords)}
	}
	return scope
}

// searchPersons handles GET /app/search/persons.
func (s *Server) searchPersons(w http.ResponseWriter, r *http.Request) {
	params, ok := s.parseParams(w, r)
	if !ok {
		return
	}

	start := time.Now()
	stream, total, err := s.persons.SearchPersons(r.Context(), params)
	s.observeQuery("person", "search", start, err)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	payloads := []*domain.Person{}
	err = stream.Each(func(person domain.Person) error {
		payloads = append(payloads, normalize.ShapePerson(&person))
		if s.metrics != nil {
			s.metrics.DocumentsStreamed.Inc()
		}
		return nil
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: payloads, TotalResults: total})
}

// searchSources handles GET /app/search/sources.
func (s *Server) searchSources(w http.ResponseWriter, r *http.Request) {
	params, ok := s.parseParams(w, r)
	if !ok {
		return
	}

	start := time.Now()
	stream, total, err := s.sources.SearchSources(r.Context(), params)
	s.observeQuery("source", "search", start, err)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	payloads := []domain.Source{}
	err = stream.Each(func(source domain.Source) error {
		payloads = append(payloads, source)
		if s.metrics != nil {
			s.metrics.DocumentsStreamed.Inc()
		}
		return nil
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: payloads, TotalResults: total})
}

// searchSourcesFilters handles GET /app/search/sources/filters.
func (s *Server) searchSourcesFilters(w http.ResponseWriter, r *http.Request) {
	params, ok := s.parseParams(w, r)
	if !ok {
		return
	}

	facets, err := s.sources.SearchSourcesFacets(r.Context(), params)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: normalize.ShapeSourceFacets(facets)})
}

// writeWorksCSV streams the CSV export of a works scope. Rows are written
// directly onto the response; failures past the header can only be logged.
func (s *Server) writeWorksCSV(w http.ResponseWriter, r *http.Request, entity string, scope pipeline.Scope, params domain.QueryParams) {
	stream, err := s.csv.WorksForExport(r.Context(), scope, params)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="works.csv"`)

	rows, err := normalize.WriteCSV(w, stream.Each)
	if s.metrics != nil {
		s.metrics.CSVExportsTotal.WithLabelValues(entity).Inc()
		s.metrics.CSVRowsStreamed.Add(float64(rows))
	}
	if err != nil {
		s.logger.Error().Err(err).Str("entity", entity).Int64("rows", rows).Msg("CSV export aborted mid-stream")
	}
}

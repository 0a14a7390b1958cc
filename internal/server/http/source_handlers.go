package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/impactu/research-analytics-service/internal/normalize"
	"github.com/impactu/research-analytics-service/internal/pipeline"
)

// getSource handles GET /app/source/{sourceID}. The returned source carries
// its significant topics only; see SourceRepository.GetSourceByID.
func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	id, ok := parseObjectID(w, chi.URLParam(r, "sourceID"), "source_id")
	if !ok {
		return
	}

	source, err := s.sources.GetSourceByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: source})
}

// sourceWorks handles GET /app/source/{sourceID}/research/products.
func (s *Server) sourceWorks(w http.ResponseWriter, r *http.Request) {
	id, ok := parseObjectID(w, chi.URLParam(r, "sourceID"), "source_id")
	if !ok {
		return
	}
	params, ok := s.parseParams(w, r)
	if !ok {
		return
	}

	if params.Plot != "" {
		s.renderPlot(w, r, pipeline.WorksBySource(id), nil, params)
		return
	}

	start := time.Now()
	stream, total, err := s.works.WorksBySource(r.Context(), id, params)
	s.observeQuery("work", "source", start, err)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeWorkList(w, stream, total)
}

// sourceWorksFilters handles the available-filters facet fan-out for a
// source scope.
func (s *Server) sourceWorksFilters(w http.ResponseWriter, r *http.Request) {
	id, ok := parseObjectID(w, chi.URLParam(r, "sourceID"), "source_id")
	if !ok {
		return
	}
	params, ok := s.parseParams(w, r)
	if !ok {
		return
	}

	facets, err := s.facets.WorksFacets(r.Context(), pipeline.WorksBySource(id), params)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: normalize.ShapeWorkFacets(facets)})
}

// sourceWorksCSV handles the CSV export of a source scope.
func (s *Server) sourceWorksCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := parseObjectID(w, chi.URLParam(r, "sourceID"), "source_id")
	if !ok {
		return
	}
	params, ok := s.parseParams(w, r)
	if !ok {
		return
	}
	s.writeWorksCSV(w, r, "source", pipeline.WorksBySource(id), params)
}

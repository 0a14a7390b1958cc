package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/impactu/research-analytics-service/internal/normalize"
	"github.com/impactu/research-analytics-service/internal/pipeline"
)

// getPerson handles GET /app/person/{personID}.
func (s *Server) getPerson(w http.ResponseWriter, r *http.Request) {
	id, ok := parseObjectID(w, chi.URLParam(r, "personID"), "person_id")
	if !ok {
		return
	}

	person, err := s.persons.GetPersonByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: normalize.ShapePerson(person)})
}

// personWorks handles GET /app/person/{personID}/research/products.
func (s *Server) personWorks(w http.ResponseWriter, r *http.Request) {
	id, ok := parseObjectID(w, chi.URLParam(r, "personID"), "person_id")
	if !ok {
		return
	}
	params, ok := s.parseParams(w, r)
	if !ok {
		return
	}

	if params.Plot != "" {
		s.renderPlot(w, r, pipeline.WorksByPerson(id), nil, params)
		return
	}

	start := time.Now()
	stream, total, err := s.works.WorksByPerson(r.Context(), id, params)
	s.observeQuery("work", "person", start, err)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeWorkList(w, stream, total)
}

// personWorksFilters handles the available-filters facet fan-out for a
// person scope.
func (s *Server) personWorksFilters(w http.ResponseWriter, r *http.Request) {
	id, ok := parseObjectID(w, chi.URLParam(r, "personID"), "person_id")
	if !ok {
		return
	}
	params, ok := s.parseParams(w, r)
	if !ok {
		return
	}

	facets, err := s.facets.WorksFacets(r.Context(), pipeline.WorksByPerson(id), params)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: normalize.ShapeWorkFacets(facets)})
}

// personWorksCSV handles the CSV export of a person scope.
func (s *Server) personWorksCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := parseObjectID(w, chi.URLParam(r, "personID"), "person_id")
	if !ok {
		return
	}
	params, ok := s.parseParams(w, r)
	if !ok {
		return
	}
	s.writeWorksCSV(w, r, "person", pipeline.WorksByPerson(id), params)
}

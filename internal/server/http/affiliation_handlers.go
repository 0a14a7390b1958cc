package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/impactu/research-analytics-service/internal/domain"
	"github.com/impactu/research-analytics-service/internal/normalize"
)

// affiliationParams extracts the affiliation id and type path parameters.
func affiliationParams(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, string, bool) {
	id, ok := parseObjectID(w, chi.URLParam(r, "affiliationID"), "affiliation_id")
	if !ok {
		return primitive.NilObjectID, "", false
	}
	return id, chi.URLParam(r, "affiliationType"), true
}

// getAffiliation handles GET /app/affiliation/{affiliationType}/{affiliationID}.
func (s *Server) getAffiliation(w http.ResponseWriter, r *http.Request) {
	id, _, ok := affiliationParams(w, r)
	if !ok {
		return
	}

	affiliation, err := s.affiliations.GetAffiliationByID(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: normalize.ShapeAffiliation(affiliation)})
}

// relatedAffiliationsResponse groups an affiliation's related units by kind.
type relatedAffiliationsResponse struct {
	Faculties   []*normalize.AffiliationPayload `json:"faculties,omitempty"`
	Departments []*normalize.AffiliationPayload `json:"departments,omitempty"`
	Groups      []*normalize.AffiliationPayload `json:"groups,omitempty"`
}

// getRelatedAffiliations handles
// GET /app/affiliation/{affiliationType}/{affiliationID}/affiliations: the
// units below this one in the hierarchy, grouped by kind.
func (s *Server) getRelatedAffiliations(w http.ResponseWriter, r *http.Request) {
	id, _, ok := affiliationParams(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	affiliation, err := s.affiliations.GetAffiliationByID(ctx, id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var childKinds []string
	switch affiliation.Kind() {
	case domain.AffiliationInstitution:
		childKinds = []string{domain.AffiliationFaculty, domain.AffiliationDepartment, domain.AffiliationGroup}
	case domain.AffiliationFaculty:
		childKinds = []string{domain.AffiliationDepartment, domain.AffiliationGroup}
	case domain.AffiliationDepartment:
		childKinds = []string{domain.AffiliationGroup}
	}

	response := relatedAffiliationsResponse{}
	for _, kind := range childKinds {
		related, err := s.affiliations.RelatedAffiliations(ctx, id, kind)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		payloads := make([]*normalize.AffiliationPayload, 0, len(related))
		for i := range related {
			payloads = append(payloads, normalize.ShapeAffiliation(&related[i]))
		}
		switch kind {
		case domain.AffiliationFaculty:
			response.Faculties = payloads
		case domain.AffiliationDepartment:
			response.Departments = payloads
		case domain.AffiliationGroup:
			response.Groups = payloads
		}
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: response})
}

// affiliationWorks handles
// GET /app/affiliation/{affiliationType}/{affiliationID}/research/products.
// A plot parameter turns the request into the named plot over the same scope.
func (s *Server) affiliationWorks(w http.ResponseWriter, r *http.Request) {
	id, kind, ok := affiliationParams(w, r)
	if !ok {
		return
	}
	params, ok := s.parseParams(w, r)
	if !ok {
		return
	}

	if params.Plot != "" {
		scope, err := s.works.ResolveAffiliationScope(r.Context(), id, kind)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		s.renderPlot(w, r, scope, &plotAnchor{affiliationID: id, kind: kind}, params)
		return
	}

	start := time.Now()
	stream, total, err := s.works.WorksByAffiliation(r.Context(), id, kind, params)
	s.observeQuery("work", "affiliation", start, err)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeWorkList(w, stream, total)
}

// affiliationWorksFilters handles the available-filters facet fan-out for an
// affiliation scope.
func (s *Server) affiliationWorksFilters(w http.ResponseWriter, r *http.Request) {
	id, kind, ok := affiliationParams(w, r)
	if !ok {
		return
	}
	params, ok := s.parseParams(w, r)
	if !ok {
		return
	}

	scope, err := s.works.ResolveAffiliationScope(r.Context(), id, kind)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	facets, err := s.facets.WorksFacets(r.Context(), scope, params)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Data: normalize.ShapeWorkFacets(facets)})
}

// affiliationWorksCSV handles the CSV export of an affiliation scope.
func (s *Server) affiliationWorksCSV(w http.ResponseWriter, r *http.Request) {
	id, kind, ok := affiliationParams(w, r)
	if !ok {
		return
	}
	params, ok := s.parseParams(w, r)
	if !ok {
		return
	}

	scope, err := s.works.ResolveAffiliationScope(r.Context(), id, kind)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeWorksCSV(w, r, "affiliation", scope, params)
}

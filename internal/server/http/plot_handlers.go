package httpserver

import (
	"fmt"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/impactu/research-analytics-service/internal/domain"
	"github.com/impactu/research-analytics-service/internal/normalize"
	"github.com/impactu/research-analytics-service/internal/pipeline"
	"github.com/impactu/research-analytics-service/internal/repository"
)

// Plot tokens accepted on the research/products endpoints.
const (
	plotAnnualEvolution   = "annual_evolution_by_scienti_classification"
	plotAnnualCitations   = "annual_citation_count"
	plotAnnualOpenAccess  = "annual_articles_open_access"
	plotAnnualAPC         = "annual_apc_expenses"
	plotByPublisher       = "articles_by_publisher"
	plotBySubject         = "products_by_subject"
	plotByAccessRoute     = "products_by_access_route"
	plotByScimagoQuartile = "articles_by_scimago_quartile"
	plotByPublishingInst  = "articles_by_publishing_institution"

	plotFacultiesByType   = "faculties_by_product_type"
	plotDepartmentsByType = "departments_by_product_type"
	plotGroupsByType      = "research_groups_by_product_type"
	plotCitationsFaculty  = "citations_by_faculty"
	plotCitationsDept     = "citations_by_department"
	plotCitationsGroup    = "citations_by_research_group"
	plotAPCFaculty        = "apc_expenses_by_faculty"
	plotAPCDept           = "apc_expenses_by_department"
	plotAPCGroup          = "apc_expenses_by_research_group"
)

// plotAnchor carries the affiliation behind an affiliation-scoped plot
// request. Plots that drill into the hierarchy or compare against the
// publishing institution need it; pure scope plots do not.
type plotAnchor struct {
	affiliationID primitive.ObjectID
	kind          string
}

// renderPlot dispatches the plot token of a research/products request.
func (s *Server) renderPlot(w http.ResponseWriter, r *http.Request, scope pipeline.Scope, anchor *plotAnchor, params domain.QueryParams) {
	switch params.Plot {
	case plotAnnualEvolution:
		s.scopedWorksPlot(w, r, scope, params, func(each normalize.WorkIterator) (interface{}, error) {
			return normalize.AnnualEvolutionByScientiType(each)
		})
	case plotAnnualCitations:
		s.scopedWorksPlot(w, r, scope, params, func(each normalize.WorkIterator) (interface{}, error) {
			return normalize.AnnualCitationCount(each)
		})
	case plotAnnualOpenAccess:
		s.scopedWorksPlot(w, r, scope, params, func(each normalize.WorkIterator) (interface{}, error) {
			return normalize.AnnualOpenAccess(each)
		})
	case plotAnnualAPC:
		s.scopedWorksPlot(w, r, scope, params, func(each normalize.WorkIterator) (interface{}, error) {
			return normalize.AnnualAPCExpenses(each)
		})
	case plotByPublisher:
		s.scopedWorksPlot(w, r, scope, params, func(each normalize.WorkIterator) (interface{}, error) {
			return normalize.ArticlesByPublisher(each)
		})
	case plotBySubject:
		s.scopedWorksPlot(w, r, scope, params, func(each normalize.WorkIterator) (interface{}, error) {
			return normalize.ProductsBySubject(each)
		})
	case plotByAccessRoute:
		s.scopedWorksPlot(w, r, scope, params, func(each normalize.WorkIterator) (interface{}, error) {
			return normalize.ProductsByAccessRoute(each)
		})
	case plotByScimagoQuartile:
		s.scopedWorksPlot(w, r, scope, params, func(each normalize.WorkIterator) (interface{}, error) {
			return normalize.ArticlesByScimagoQuartile(each)
		})
	case plotByPublishingInst:
		s.publishingInstitutionPlot(w, r, scope, anchor, params)

	case plotFacultiesByType:
		s.childProductTypePlot(w, r, anchor, domain.AffiliationFaculty, params)
	case plotDepartmentsByType:
		s.childProductTypePlot(w, r, anchor, domain.AffiliationDepartment, params)
	case plotGroupsByType:
		s.childProductTypePlot(w, r, anchor, domain.AffiliationGroup, params)
	case plotCitationsFaculty:
		s.childCitationsPlot(w, r, anchor, domain.AffiliationFaculty, params)
	case plotCitationsDept:
		s.childCitationsPlot(w, r, anchor, domain.AffiliationDepartment, params)
	case plotCitationsGroup:
		s.childCitationsPlot(w, r, anchor, domain.AffiliationGroup, params)
	case plotAPCFaculty:
		s.childAPCPlot(w, r, anchor, domain.AffiliationFaculty, params)
	case plotAPCDept:
		s.childAPCPlot(w, r, anchor, domain.AffiliationDepartment, params)
	case plotAPCGroup:
		s.childAPCPlot(w, r, anchor, domain.AffiliationGroup, params)

	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown plot type %q", params.Plot))
	}
}

// scopedWorksPlot streams the scope's works through the given reducer and
// writes the resulting plot payload.
func (s *Server) scopedWorksPlot(w http.ResponseWriter, r *http.Request, scope pipeline.Scope, params domain.QueryParams, reduce func(normalize.WorkIterator) (interface{}, error)) {
	stream, err := s.plots.ScopedWorks(r.Context(), scope, params)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	plot, err := reduce(stream.Each)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plot)
}

// requireAnchor rejects hierarchy plots on scopes without an affiliation.
func requireAnchor(w http.ResponseWriter, anchor *plotAnchor) bool {
	if anchor == nil {
		writeError(w, http.StatusBadRequest, "plot requires an affiliation scope")
		return false
	}
	return true
}

// childProductTypePlot builds the per-child-affiliation product counts plot.
func (s *Server) childProductTypePlot(w http.ResponseWriter, r *http.Request, anchor *plotAnchor, childKind string, params domain.QueryParams) {
	if !requireAnchor(w, anchor) {
		return
	}
	ctx := r.Context()

	ids, err := s.affiliations.RelatedAffiliationIDs(ctx, anchor.affiliationID, childKind)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var data []repository.AffiliationProductCount
	if childKind == domain.AffiliationGroup {
		data, err = s.plots.WorksCountByGroups(ctx, ids, params)
	} else {
		data, err = s.plots.WorksCountByChildAffiliations(ctx, ids, params)
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, normalize.AffiliationsByProductType(data))
}

// childCitationsPlot builds the per-child-affiliation citations pie.
func (s *Server) childCitationsPlot(w http.ResponseWriter, r *http.Request, anchor *plotAnchor, childKind string, params domain.QueryParams) {
	if !requireAnchor(w, anchor) {
		return
	}
	ctx := r.Context()

	ids, err := s.affiliations.RelatedAffiliationIDs(ctx, anchor.affiliationID, childKind)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	data, err := s.plots.CitationsByChildAffiliations(ctx, ids, childKind, params)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, normalize.CitationsByAffiliations(data))
}

// childAPCPlot builds the per-child-affiliation APC expenses pie.
func (s *Server) childAPCPlot(w http.ResponseWriter, r *http.Request, anchor *plotAnchor, childKind string, params domain.QueryParams) {
	if !requireAnchor(w, anchor) {
		return
	}
	ctx := r.Context()

	ids, err := s.affiliations.RelatedAffiliationIDs(ctx, anchor.affiliationID, childKind)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var stream *repository.Stream[repository.AffiliationAPC]
	if childKind == domain.AffiliationGroup {
		stream, err = s.plots.APCExpensesByGroups(ctx, ids, params)
	} else {
		stream, err = s.plots.APCExpensesByChildAffiliations(ctx, ids, params)
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	plot, err := normalize.APCExpensesByAffiliations(stream.Each)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plot)
}

// publishingInstitutionPlot splits the scope's works by whether their source
// is published by the scope's own institution. A faculty, department or group
// anchor resolves up to its parent institution first.
func (s *Server) publishingInstitutionPlot(w http.ResponseWriter, r *http.Request, scope pipeline.Scope, anchor *plotAnchor, params domain.QueryParams) {
	if !requireAnchor(w, anchor) {
		return
	}
	ctx := r.Context()

	institution, err := s.affiliations.GetAffiliationByID(ctx, anchor.affiliationID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if institution.Kind() != domain.AffiliationInstitution {
		institution, err = s.affiliations.ResolveParentInstitution(ctx, institution)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	stream, err := s.plots.ScopedWorks(ctx, scope, params)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	plot, err := normalize.ArticlesByPublishingInstitution(stream.Each, institution)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plot)
}

package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/impactu/research-analytics-service/internal/domain"
	"github.com/impactu/research-analytics-service/internal/normalize"
	"github.com/impactu/research-analytics-service/internal/repository"
)

// listResponse is the envelope of every paginated list endpoint.
type listResponse struct {
	Data         interface{} `json:"data"`
	TotalResults int64       `json:"total_results"`
}

// dataResponse is the envelope of single-entity endpoints.
type dataResponse struct {
	Data interface{} `json:"data"`
}

// writeDomainError maps domain errors to HTTP status codes. Internal error
// details are logged, not leaked to clients.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseObjectID parses a document id path parameter, writing a 400 response
// if invalid. The raw input is not echoed back.
func parseObjectID(w http.ResponseWriter, raw, fieldName string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid document id", fieldName))
		return primitive.NilObjectID, false
	}
	return id, true
}

// parseParams decodes and validates the request's query parameters.
func (s *Server) parseParams(w http.ResponseWriter, r *http.Request) (domain.QueryParams, bool) {
	params, err := domain.ParseQueryParams(r.URL.Query())
	if err != nil {
		s.writeDomainError(w, err)
		return domain.QueryParams{}, false
	}
	return params, true
}

// observeQuery records the outcome of a list query.
func (s *Server) observeQuery(entity, scope string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.QueriesTotal.WithLabelValues(entity, scope).Inc()
	s.metrics.QueryDuration.WithLabelValues(entity, scope).Observe(time.Since(start).Seconds())
	if err != nil {
		kind := "internal"
		switch {
		case errors.Is(err, domain.ErrNotFound):
			kind = "not_found"
		case errors.Is(err, domain.ErrInvalidInput):
			kind = "invalid_input"
		}
		s.metrics.QueryErrors.WithLabelValues(entity, kind).Inc()
	}
}

// collectWorkPayloads drains a work stream into client payloads.
func (s *Server) collectWorkPayloads(stream *repository.Stream[domain.Work]) ([]*normalize.WorkPayload, error) {
	payloads := []*normalize.WorkPayload{}
	err := stream.Each(func(work domain.Work) error {
		payloads = append(payloads, normalize.ShapeWork(&work))
		if s.metrics != nil {
			s.metrics.DocumentsStreamed.Inc()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payloads, nil
}

// writeWorkList drains the stream and writes the standard list envelope.
func (s *Server) writeWorkList(w http.ResponseWriter, stream *repository.Stream[domain.Work], total int64) {
	payloads, err := s.collectWorkPayloads(stream)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: payloads, TotalResults: total})
}

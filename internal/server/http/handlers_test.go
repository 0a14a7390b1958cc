package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/impactu/research-analytics-service/internal/database"
	"github.com/impactu/research-analytics-service/internal/observability"
	"github.com/impactu/research-analytics-service/internal/pipeline"
	"github.com/impactu/research-analytics-service/internal/repository"
)

// Collectors register once on the default registry for the whole test
// binary.
var testMetrics = observability.NewMetrics("analytics_http_test")

type stubCursor struct {
	docs []interface{}
	pos  int
}

func (c *stubCursor) Next(context.Context) bool {
	if c.pos+1 >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *stubCursor) Decode(val interface{}) error {
	raw, err := bson.Marshal(c.docs[c.pos])
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, val)
}

func (c *stubCursor) Err() error { return nil }

func (c *stubCursor) Close(context.Context) error { return nil }

// stubCollection serves queued aggregation results in call order.
type stubCollection struct {
	results    [][]interface{}
	estimated  int64
	findOneDoc interface{}
	findOneErr error
}

func (c *stubCollection) Aggregate(context.Context, interface{}) (database.Cursor, error) {
	var docs []interface{}
	if len(c.results) > 0 {
		docs = c.results[0]
		c.results = c.results[1:]
	}
	return &stubCursor{docs: docs, pos: -1}, nil
}

func (c *stubCollection) EstimatedDocumentCount(context.Context) (int64, error) {
	return c.estimated, nil
}

func (c *stubCollection) FindOne(_ context.Context, _ interface{}, result interface{}) error {
	if c.findOneErr != nil {
		return c.findOneErr
	}
	raw, err := bson.Marshal(c.findOneDoc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, result)
}

type stubProvider struct {
	collections map[string]*stubCollection
}

func newStubProvider() *stubProvider {
	return &stubProvider{collections: map[string]*stubCollection{}}
}

func (p *stubProvider) Collection(name string) database.Collection {
	if coll, ok := p.collections[name]; ok {
		return coll
	}
	coll := &stubCollection{}
	p.collections[name] = coll
	return coll
}

func (p *stubProvider) collection(name string) *stubCollection {
	p.Collection(name)
	return p.collections[name]
}

type stubHealth struct {
	status database.HealthStatus
}

func (h *stubHealth) Health(context.Context) database.HealthStatus { return h.status }

func newTestServer(provider *stubProvider, db HealthChecker, cfg Config) *Server {
	logger := zerolog.Nop()
	works := repository.NewWorkRepository(provider, testMetrics, logger)
	persons := repository.NewPersonRepository(provider, testMetrics, logger)
	affiliations := repository.NewAffiliationRepository(provider, testMetrics, logger)
	sources := repository.NewSourceRepository(provider, 0.02, testMetrics, logger)
	facets := repository.NewFacetRepository(provider, 1, time.Second, 0.02, logger, testMetrics)
	plots := repository.NewPlotRepository(provider, testMetrics, logger)
	csv := repository.NewCSVRepository(provider, testMetrics, logger)
	return NewServer(cfg, works, persons, affiliations, sources, facets, plots, csv, db, testMetrics, logger)
}

func healthyDB() *stubHealth {
	return &stubHealth{status: database.HealthStatus{Status: "healthy"}}
}

func doRequest(srv *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(newStubProvider(), healthyDB(), Config{})
	rec := doRequest(srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = doRequest(srv, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestServer(newStubProvider(), &stubHealth{
		status: database.HealthStatus{Status: "unhealthy", Error: "no reachable servers"},
	}, Config{})
	rec = doRequest(down, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doRequest(down, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not_ready", decodeBody(t, rec)["status"])
}

func TestGetWork(t *testing.T) {
	t.Parallel()

	provider := newStubProvider()
	workID := primitive.NewObjectID()
	provider.collection(pipeline.CollectionWorks).results = [][]interface{}{
		{bson.M{
			"_id":    workID,
			"titles": []bson.M{{"title": "A study", "lang": "en", "source": "openalex"}},
		}},
	}
	srv := newTestServer(provider, healthyDB(), Config{})

	rec := doRequest(srv, http.MethodGet, "/app/work/"+workID.Hex())
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, workID.Hex(), data["id"])
	assert.Equal(t, "A study", data["title"])
}

func TestGetWork_InvalidID(t *testing.T) {
	t.Parallel()

	srv := newTestServer(newStubProvider(), healthyDB(), Config{})
	rec := doRequest(srv, http.MethodGet, "/app/work/not-an-id")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "work_id must be a valid document id", decodeBody(t, rec)["error"])
}

func TestGetWork_NotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(newStubProvider(), healthyDB(), Config{})
	rec := doRequest(srv, http.MethodGet, "/app/work/"+primitive.NewObjectID().Hex())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchWorks_ListEnvelope(t *testing.T) {
	t.Parallel()

	provider := newStubProvider()
	works := provider.collection(pipeline.CollectionWorks)
	works.estimated = 77
	works.results = [][]interface{}{
		{bson.M{
			"_id":    primitive.NewObjectID(),
			"titles": []bson.M{{"title": "First", "source": "openalex"}},
		}},
	}
	srv := newTestServer(provider, healthyDB(), Config{})

	rec := doRequest(srv, http.MethodGet, "/app/search/works")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(77), body["total_results"])
	require.Len(t, body["data"], 1)
}

func TestSearchWorks_MalformedPagination(t *testing.T) {
	t.Parallel()

	srv := newTestServer(newStubProvider(), healthyDB(), Config{})
	rec := doRequest(srv, http.MethodGet, "/app/search/works?max=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPersonWorks(t *testing.T) {
	t.Parallel()

	provider := newStubProvider()
	works := provider.collection(pipeline.CollectionWorks)
	works.results = [][]interface{}{
		{bson.M{"total": int64(3)}},
		{bson.M{
			"_id":    primitive.NewObjectID(),
			"titles": []bson.M{{"title": "Scoped", "source": "openalex"}},
		}},
	}
	srv := newTestServer(provider, healthyDB(), Config{})

	rec := doRequest(srv, http.MethodGet, "/app/person/"+primitive.NewObjectID().Hex()+"/research/products")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decodeBody(t, rec)["total_results"])
}

func TestAffiliationWorks_UnknownAffiliation(t *testing.T) {
	t.Parallel()

	provider := newStubProvider()
	provider.collection(pipeline.CollectionAffiliations).findOneErr = mongo.ErrNoDocuments
	srv := newTestServer(provider, healthyDB(), Config{})

	rec := doRequest(srv, http.MethodGet, "/app/affiliation/faculty/"+primitive.NewObjectID().Hex()+"/research/products")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAffiliationWorks_UnknownPlot(t *testing.T) {
	t.Parallel()

	provider := newStubProvider()
	affiliationID := primitive.NewObjectID()
	provider.collection(pipeline.CollectionAffiliations).findOneDoc = bson.M{
		"_id":   affiliationID,
		"types": []bson.M{{"source": "impactu", "type": "institution"}},
	}
	srv := newTestServer(provider, healthyDB(), Config{})

	rec := doRequest(srv, http.MethodGet, "/app/affiliation/institution/"+affiliationID.Hex()+"/research/products?plot=nonsense")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "unknown plot type")
}

func TestPersonWorksCSV(t *testing.T) {
	t.Parallel()

	provider := newStubProvider()
	provider.collection(pipeline.CollectionWorks).results = [][]interface{}{
		{bson.M{
			"_id":    primitive.NewObjectID(),
			"titles": []bson.M{{"title": "Exported", "source": "openalex"}},
		}},
	}
	srv := newTestServer(provider, healthyDB(), Config{})

	rec := doRequest(srv, http.MethodGet, "/app/person/"+primitive.NewObjectID().Hex()+"/research/products/csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "works.csv")
	assert.Contains(t, rec.Body.String(), "Exported")
}

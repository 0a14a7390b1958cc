package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/impactu/research-analytics-service/internal/database"
)

// fakeCursor replays canned documents. Decode round-trips the current
// document through bson so type mismatches fail exactly like driver decodes.
type fakeCursor struct {
	docs     []interface{}
	pos      int
	terminal error
	closed   bool
}

func newFakeCursor(docs ...interface{}) *fakeCursor {
	return &fakeCursor{docs: docs, pos: -1}
}

func (c *fakeCursor) Next(context.Context) bool {
	if c.pos+1 >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Decode(val interface{}) error {
	raw, err := bson.Marshal(c.docs[c.pos])
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, val)
}

func (c *fakeCursor) Err() error { return c.terminal }

func (c *fakeCursor) Close(context.Context) error {
	c.closed = true
	return nil
}

// fakeCollection serves queued aggregation results in call order and records
// every pipeline it was asked to run.
type fakeCollection struct {
	results   [][]interface{}
	pipelines []interface{}
	cursors   []*fakeCursor

	aggregateErr error
	estimated    int64
	findOneDoc   interface{}
	findOneErr   error
}

func (c *fakeCollection) Aggregate(_ context.Context, pipeline interface{}) (database.Cursor, error) {
	c.pipelines = append(c.pipelines, pipeline)
	if c.aggregateErr != nil {
		return nil, c.aggregateErr
	}
	var docs []interface{}
	if len(c.results) > 0 {
		docs = c.results[0]
		c.results = c.results[1:]
	}
	cursor := newFakeCursor(docs...)
	c.cursors = append(c.cursors, cursor)
	return cursor, nil
}

func (c *fakeCollection) EstimatedDocumentCount(context.Context) (int64, error) {
	return c.estimated, nil
}

func (c *fakeCollection) FindOne(_ context.Context, _ interface{}, result interface{}) error {
	if c.findOneErr != nil {
		return c.findOneErr
	}
	raw, err := bson.Marshal(c.findOneDoc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, result)
}

// fakeProvider hands out fake collections by name, creating them on demand.
type fakeProvider struct {
	collections map[string]*fakeCollection
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{collections: map[string]*fakeCollection{}}
}

func (p *fakeProvider) Collection(name string) database.Collection {
	if coll, ok := p.collections[name]; ok {
		return coll
	}
	coll := &fakeCollection{}
	p.collections[name] = coll
	return coll
}

func (p *fakeProvider) collection(name string) *fakeCollection {
	p.Collection(name)
	return p.collections[name]
}

// countResult builds the single-document output of a $count pipeline.
func countResult(total int64) []interface{} {
	return []interface{}{bson.M{"total": total}}
}

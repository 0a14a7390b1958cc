package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/impactu/research-analytics-service/internal/domain"
)

func TestStream_EachSkipsUndecodableRecords(t *testing.T) {
	t.Parallel()

	cursor := newFakeCursor(
		bson.M{"titles": []bson.M{{"title": "first", "source": "openalex"}}},
		bson.M{"year_published": "not-a-number"},
		bson.M{"titles": []bson.M{{"title": "second", "source": "openalex"}}},
	)
	var skipped []*domain.DecodeError
	stream := NewStream[domain.Work](context.Background(), cursor, func(err *domain.DecodeError) {
		skipped = append(skipped, err)
	})

	var titles []string
	err := stream.Each(func(work domain.Work) error {
		titles = append(titles, work.Titles[0].Title)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, titles)
	assert.True(t, cursor.closed)

	// The dropped record must be reported, not silently lost.
	require.Len(t, skipped, 1)
	assert.Equal(t, 1, skipped[0].Position)
	assert.Error(t, skipped[0].Cause)
}

func TestStream_EachWithoutObserverStillSkips(t *testing.T) {
	t.Parallel()

	cursor := newFakeCursor(
		bson.M{"year_published": "not-a-number"},
		bson.M{"titles": []bson.M{{"title": "kept", "source": "openalex"}}},
	)
	stream := NewStream[domain.Work](context.Background(), cursor, nil)

	var titles []string
	err := stream.Each(func(work domain.Work) error {
		titles = append(titles, work.Titles[0].Title)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, titles)
}

func TestStream_EachStopsOnCallbackError(t *testing.T) {
	t.Parallel()

	cursor := newFakeCursor(bson.M{}, bson.M{})
	stream := NewStream[domain.Work](context.Background(), cursor, nil)

	boom := errors.New("sink full")
	calls := 0
	err := stream.Each(func(domain.Work) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.True(t, cursor.closed)
}

func TestStream_EachReportsTerminalCursorError(t *testing.T) {
	t.Parallel()

	cursor := newFakeCursor()
	cursor.terminal = errors.New("connection reset")
	stream := NewStream[domain.Work](context.Background(), cursor, nil)

	err := stream.Each(func(domain.Work) error { return nil })
	assert.EqualError(t, err, "connection reset")
}

func TestStream_RecordWrapsDecodeFailure(t *testing.T) {
	t.Parallel()

	cursor := newFakeCursor(bson.M{"year_published": "nope"})
	stream := NewStream[domain.Work](context.Background(), cursor, nil)

	require.True(t, stream.Next())
	_, err := stream.Record()
	var decodeErr *domain.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, 0, decodeErr.Position)
}

func TestCollect_StopsAtFirstDecodeError(t *testing.T) {
	t.Parallel()

	cursor := newFakeCursor(
		bson.M{"titles": []bson.M{{"title": "ok", "source": "openalex"}}},
		bson.M{"year_published": "nope"},
		bson.M{"titles": []bson.M{{"title": "never reached", "source": "openalex"}}},
	)
	stream := NewStream[domain.Work](context.Background(), cursor, nil)

	records, err := Collect(stream)
	var decodeErr *domain.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Len(t, records, 1)
	assert.True(t, cursor.closed)
}

func TestCollect_AllRecords(t *testing.T) {
	t.Parallel()

	cursor := newFakeCursor(bson.M{"total": int64(3)}, bson.M{"total": int64(7)})
	stream := NewStream[countDoc](context.Background(), cursor, nil)

	records, err := Collect(stream)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(7), records[1].Total)
}

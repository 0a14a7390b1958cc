package repository

import (
	"context"
	"errors"

	"github.com/impactu/research-analytics-service/internal/database"
	"github.com/impactu/research-analytics-service/internal/domain"
)

// Stream is a lazy, single-pass sequence of typed domain records decoded
// from an aggregation cursor. It is restartable only by re-issuing the
// query.
//
// Records are decoded one at a time as they are pulled: a malformed document
// surfaces as a DecodeError attributable to that one record without aborting
// the remainder of the stream. The stream never buffers the full cursor;
// callers needing a count must issue a separate count pipeline.
type Stream[T any] struct {
	ctx           context.Context
	cursor        database.Cursor
	pos           int
	onDecodeError func(*domain.DecodeError)
}

// NewStream wraps a cursor in a typed stream. onDecodeError, when non-nil,
// observes every per-record decode failure Each skips over; skipped records
// must never disappear silently.
func NewStream[T any](ctx context.Context, cursor database.Cursor, onDecodeError func(*domain.DecodeError)) *Stream[T] {
	return &Stream[T]{ctx: ctx, cursor: cursor, pos: -1, onDecodeError: onDecodeError}
}

// Next advances to the next document. It returns false when the stream is
// exhausted or the cursor failed terminally (see Err).
func (s *Stream[T]) Next() bool {
	if !s.cursor.Next(s.ctx) {
		return false
	}
	s.pos++
	return true
}

// Record decodes the current document. A failed decode returns a
// DecodeError for this record only; the stream remains consumable.
func (s *Stream[T]) Record() (T, error) {
	var record T
	if err := s.cursor.Decode(&record); err != nil {
		return record, &domain.DecodeError{Position: s.pos, Cause: err}
	}
	return record, nil
}

// Err returns the terminal cursor error, if any.
func (s *Stream[T]) Err() error {
	return s.cursor.Err()
}

// Close releases the cursor.
func (s *Stream[T]) Close() error {
	return s.cursor.Close(s.ctx)
}

// Each applies fn to every decodable record and returns the terminal cursor
// error. Records that fail to decode are skipped, but every skip is reported
// through the stream's decode-error observer first. The stream is closed on
// return.
func (s *Stream[T]) Each(fn func(T) error) error {
	defer s.Close()
	for s.Next() {
		record, err := s.Record()
		if err != nil {
			s.noteSkipped(err)
			continue
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return s.Err()
}

// noteSkipped reports a record Each dropped to the observer.
func (s *Stream[T]) noteSkipped(err error) {
	if s.onDecodeError == nil {
		return
	}
	var decodeErr *domain.DecodeError
	if errors.As(err, &decodeErr) {
		s.onDecodeError(decodeErr)
	}
}

// Collect materializes the remaining records into a slice. It stops at the
// first decode error. Intended only for the small result sets of facet and
// plot sub-pipelines; list endpoints must consume the stream lazily.
func Collect[T any](s *Stream[T]) ([]T, error) {
	defer s.Close()
	var out []T
	for s.Next() {
		record, err := s.Record()
		if err != nil {
			return out, err
		}
		out = append(out, record)
	}
	return out, s.Err()
}

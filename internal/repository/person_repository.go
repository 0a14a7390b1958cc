package repository

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/impactu/research-analytics-service/internal/database"
	"github.com/impactu/research-analytics-service/internal/domain"
	"github.com/impactu/research-analytics-service/internal/observability"
	"github.com/impactu/research-analytics-service/internal/pipeline"
)

// PersonRepository reads person documents.
type PersonRepository struct {
	persons  database.Collection
	logger   zerolog.Logger
	observer decodeObserver
}

// NewPersonRepository creates a PersonRepository.
func NewPersonRepository(db CollectionProvider, metrics *observability.Metrics, logger zerolog.Logger) *PersonRepository {
	componentLogger := logger.With().Str("component", "person-repository").Logger()
	return &PersonRepository{
		persons:  db.Collection(pipeline.CollectionPersons),
		logger:   componentLogger,
		observer: decodeObserver{logger: componentLogger, metrics: metrics},
	}
}

// GetPersonByID returns a single person.
func (r *PersonRepository) GetPersonByID(ctx context.Context, id primitive.ObjectID) (*domain.Person, error) {
	var person domain.Person
	if err := r.persons.FindOne(ctx, bson.M{"_id": id}, &person); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &domain.NotFoundError{Entity: "person", ID: id.Hex()}
		}
		return nil, err
	}
	return &person, nil
}

// SearchPersons runs a keyword search over persons with sort and pagination.
// The filterless browse path uses an estimated total.
func (r *PersonRepository) SearchPersons(ctx context.Context, params domain.QueryParams) (*Stream[domain.Person], int64, error) {
	var base pipeline.Pipeline
	if params.Keywords != "" {
		base = append(base, pipeline.TextSearch(params.Keywords))
	}

	listPipeline, err := pipeline.AppendListStages(base.Clone(), params)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if params.Keywords != "" {
		total, err = runCount(ctx, r.persons, base)
	} else {
		total, err = r.persons.EstimatedDocumentCount(ctx)
	}
	if err != nil {
		return nil, 0, err
	}

	stream, err := aggregate[domain.Person](ctx, r.persons, listPipeline, r.observer)
	if err != nil {
		return nil, 0, err
	}
	return stream, total, nil
}

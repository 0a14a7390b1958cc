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

// AffiliationRepository reads affiliation documents and resolves hierarchy
// edges between them.
type AffiliationRepository struct {
	affiliations database.Collection
	logger       zerolog.Logger
	observer     decodeObserver
}

// NewAffiliationRepository creates an AffiliationRepository.
func NewAffiliationRepository(db CollectionProvider, metrics *observability.Metrics, logger zerolog.Logger) *AffiliationRepository {
	componentLogger := logger.With().Str("component", "affiliation-repository").Logger()
	return &AffiliationRepository{
		affiliations: db.Collection(pipeline.CollectionAffiliations),
		logger:       componentLogger,
		observer:     decodeObserver{logger: componentLogger, metrics: metrics},
	}
}

// GetAffiliationByID returns a single affiliation.
func (r *AffiliationRepository) GetAffiliationByID(ctx context.Context, id primitive.ObjectID) (*domain.Affiliation, error) {
	var affiliation domain.Affiliation
	if err := r.affiliations.FindOne(ctx, bson.M{"_id": id}, &affiliation); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &domain.NotFoundError{Entity: "affiliation", ID: id.Hex()}
		}
		return nil, err
	}
	return &affiliation, nil
}

// RelatedAffiliations returns the affiliations of the given kind that carry a
// relation edge to the parent, e.g. the departments of an institution or the
// groups of a department.
func (r *AffiliationRepository) RelatedAffiliations(ctx context.Context, parentID primitive.ObjectID, kind string) ([]domain.Affiliation, error) {
	p := pipeline.Pipeline{
		pipeline.Match{Predicate: bson.M{
			"relations.id": parentID,
			"types.type":   kind,
		}},
	}
	stream, err := aggregate[domain.Affiliation](ctx, r.affiliations, p, r.observer)
	if err != nil {
		return nil, err
	}
	return Collect(stream)
}

// RelatedAffiliationIDs returns just the ids of the affiliations of a kind
// under the parent. Plot pipelines anchor their membership matches on it.
func (r *AffiliationRepository) RelatedAffiliationIDs(ctx context.Context, parentID primitive.ObjectID, kind string) ([]primitive.ObjectID, error) {
	related, err := r.RelatedAffiliations(ctx, parentID, kind)
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(related))
	for _, a := range related {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

// ResolveParentInstitution loads the parent institution of a faculty or
// department through its education relation.
func (r *AffiliationRepository) ResolveParentInstitution(ctx context.Context, affiliation *domain.Affiliation) (*domain.Affiliation, error) {
	parentID, ok := affiliation.ParentInstitutionID()
	if !ok {
		return nil, &domain.NotFoundError{
			Entity: "education relation for " + affiliation.Kind(),
			ID:     affiliation.ID.Hex(),
		}
	}
	return r.GetAffiliationByID(ctx, parentID)
}

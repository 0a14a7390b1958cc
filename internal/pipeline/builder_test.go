package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/impactu/research-analytics-service/internal/domain"
)

func TestWorksByPerson(t *testing.T) {
	t.Parallel()

	personID := primitive.NewObjectID()
	scope := WorksByPerson(personID)

	assert.Equal(t, CollectionWorks, scope.Collection)
	require.Len(t, scope.Stages, 1)
	predicate := scope.Stages[0].(Match).Predicate
	assert.Equal(t, personID, predicate["authors.id"])
}

func TestWorksBySource(t *testing.T) {
	t.Parallel()

	sourceID := primitive.NewObjectID()
	scope := WorksBySource(sourceID)

	assert.Equal(t, CollectionWorks, scope.Collection)
	require.Len(t, scope.Stages, 1)
	predicate := scope.Stages[0].(Match).Predicate
	assert.Equal(t, sourceID, predicate["source.id"])
}

func TestWorksByAffiliation_Institution(t *testing.T) {
	t.Parallel()

	id := primitive.NewObjectID()
	scope, err := WorksByAffiliation(id, domain.AffiliationInstitution, primitive.NilObjectID)
	require.NoError(t, err)

	assert.Equal(t, CollectionWorks, scope.Collection)
	require.Len(t, scope.Stages, 1)
	predicate := scope.Stages[0].(Match).Predicate
	assert.Equal(t, id, predicate["authors.affiliations.id"])
}

func TestWorksByAffiliation_Group(t *testing.T) {
	t.Parallel()

	id := primitive.NewObjectID()
	scope, err := WorksByAffiliation(id, domain.AffiliationGroup, primitive.NilObjectID)
	require.NoError(t, err)

	assert.Equal(t, CollectionWorks, scope.Collection)
	require.Len(t, scope.Stages, 1)
	predicate := scope.Stages[0].(Match).Predicate
	assert.Equal(t, id, predicate["groups.id"])
}

func TestWorksByAffiliation_DepartmentJoinsThroughPersons(t *testing.T) {
	t.Parallel()

	id := primitive.NewObjectID()
	parentID := primitive.NewObjectID()
	scope, err := WorksByAffiliation(id, domain.AffiliationDepartment, parentID)
	require.NoError(t, err)

	assert.Equal(t, CollectionPersons, scope.Collection)

	// The membership match anchors on the person record, the lookup joins
	// across to works, and the parent-institution match bounds the join.
	require.NotEmpty(t, scope.Stages)
	assert.Equal(t, bson.M{"affiliations.id": id}, scope.Stages[0].(Match).Predicate)

	var sawLookup, sawParentBound, sawGroup bool
	for _, stage := range scope.Stages {
		switch s := stage.(type) {
		case Lookup:
			sawLookup = s.From == CollectionWorks
		case Match:
			if _, ok := s.Predicate["work.authors.affiliations.id"]; ok {
				assert.Equal(t, parentID, s.Predicate["work.authors.affiliations.id"])
				sawParentBound = true
			}
		case Group:
			sawGroup = true
		}
	}
	assert.True(t, sawLookup, "missing lookup into works")
	assert.True(t, sawParentBound, "missing parent institution bound")
	assert.True(t, sawGroup, "missing per-work dedup group")
}

func TestWorksByAffiliation_FacultyWithoutParentIsNotFound(t *testing.T) {
	t.Parallel()

	_, err := WorksByAffiliation(primitive.NewObjectID(), domain.AffiliationFaculty, primitive.NilObjectID)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestWorksByAffiliation_UnknownKind(t *testing.T) {
	t.Parallel()

	_, err := WorksByAffiliation(primitive.NewObjectID(), "campus", primitive.NilObjectID)
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "affiliation_type", ve.Field)
}

func TestDeriveISSN_StageShape(t *testing.T) {
	t.Parallel()

	stages := DeriveISSN()
	require.Len(t, stages, 3)

	_, isSet := stages[0].(Set)
	_, isSet2 := stages[1].(Set)
	unset, isUnset := stages[2].(Unset)
	assert.True(t, isSet)
	assert.True(t, isSet2)
	require.True(t, isUnset)
	assert.Equal(t, []string{"_issn_data"}, unset.Fields)
}

func TestPipeline_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	base := Pipeline{Match{Predicate: bson.M{"a": 1}}}
	clone := base.Clone().Append(Limit{N: 1})

	assert.Len(t, base, 1)
	assert.Len(t, clone, 2)
}

func TestPipeline_Lower(t *testing.T) {
	t.Parallel()

	p := Pipeline{Match{Predicate: bson.M{"a": 1}}, Limit{N: 5}}
	lowered := p.Lower()
	require.Len(t, lowered, 2)
	assert.Equal(t, "$match", lowered[0][0].Key)
	assert.Equal(t, "$limit", lowered[1][0].Key)
}

// Package pipeline builds aggregation pipelines at runtime from user-supplied
// filter parameters and entity scopes.
//
// Stages are modeled as a small tagged union of typed variants instead of
// untyped nested maps, so pipelines can be composed and inspected
// programmatically before being lowered to the driver's native
// representation.
package pipeline

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Stage is one aggregation pipeline stage. Each variant lowers itself to a
// single bson document.
type Stage interface {
	// Document returns the driver representation of the stage.
	Document() bson.D
}

// Pipeline is an ordered sequence of stages.
type Pipeline []Stage

// Lower converts the pipeline to the driver's native representation.
func (p Pipeline) Lower() mongo.Pipeline {
	out := make(mongo.Pipeline, 0, len(p))
	for _, s := range p {
		out = append(out, s.Document())
	}
	return out
}

// Append returns the pipeline with the given stages appended.
func (p Pipeline) Append(stages ...Stage) Pipeline {
	return append(p, stages...)
}

// Clone returns a shallow copy of the pipeline. Facet sub-pipelines extend a
// shared base scope; cloning keeps them independently runnable.
func (p Pipeline) Clone() Pipeline {
	out := make(Pipeline, len(p))
	copy(out, p)
	return out
}

// Match filters documents by the given predicate.
type Match struct {
	Predicate bson.M
}

// Document returns the driver representation of the stage.
func (s Match) Document() bson.D { return bson.D{{Key: "$match", Value: s.Predicate}} }

// Lookup joins documents from another collection.
type Lookup struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
	Pipeline     Pipeline
}

// Document returns the driver representation of the stage.
func (s Lookup) Document() bson.D {
	spec := bson.M{
		"from":         s.From,
		"localField":   s.LocalField,
		"foreignField": s.ForeignField,
		"as":           s.As,
	}
	if len(s.Pipeline) > 0 {
		spec["pipeline"] = s.Pipeline.Lower()
	}
	return bson.D{{Key: "$lookup", Value: spec}}
}

// Unwind deconstructs an array field into one document per element.
type Unwind struct {
	Path string
}

// Document returns the driver representation of the stage.
func (s Unwind) Document() bson.D { return bson.D{{Key: "$unwind", Value: s.Path}} }

// Project reshapes documents by including, excluding or computing fields.
type Project struct {
	Spec bson.M
}

// Document returns the driver representation of the stage.
func (s Project) Document() bson.D { return bson.D{{Key: "$project", Value: s.Spec}} }

// ProjectFields builds an inclusion projection over the given field names,
// always keeping _id.
func ProjectFields(fields ...string) Project {
	spec := bson.M{"_id": 1}
	for _, f := range fields {
		spec[f] = 1
	}
	return Project{Spec: spec}
}

// Group accumulates documents by a grouping key.
type Group struct {
	Spec bson.M
}

// Document returns the driver representation of the stage.
func (s Group) Document() bson.D { return bson.D{{Key: "$group", Value: s.Spec}} }

// Sort orders documents. Spec is a bson.D so key order is preserved.
type Sort struct {
	Spec bson.D
}

// Document returns the driver representation of the stage.
func (s Sort) Document() bson.D { return bson.D{{Key: "$sort", Value: s.Spec}} }

// Skip skips over the given number of documents.
type Skip struct {
	N int
}

// Document returns the driver representation of the stage.
func (s Skip) Document() bson.D { return bson.D{{Key: "$skip", Value: s.N}} }

// Limit caps the number of documents passed on.
type Limit struct {
	N int
}

// Document returns the driver representation of the stage.
func (s Limit) Document() bson.D { return bson.D{{Key: "$limit", Value: s.N}} }

// Count emits a single document carrying the count of inputs under Field.
type Count struct {
	Field string
}

// Document returns the driver representation of the stage.
func (s Count) Document() bson.D { return bson.D{{Key: "$count", Value: s.Field}} }

// Set adds or overwrites fields with computed values.
type Set struct {
	Fields bson.M
}

// Document returns the driver representation of the stage.
func (s Set) Document() bson.D { return bson.D{{Key: "$set", Value: s.Fields}} }

// Unset removes fields.
type Unset struct {
	Fields []string
}

// Document returns the driver representation of the stage.
func (s Unset) Document() bson.D {
	if len(s.Fields) == 1 {
		return bson.D{{Key: "$unset", Value: s.Fields[0]}}
	}
	return bson.D{{Key: "$unset", Value: s.Fields}}
}

// ReplaceRoot promotes an embedded document to the root.
type ReplaceRoot struct {
	NewRoot string
}

// Document returns the driver representation of the stage.
func (s ReplaceRoot) Document() bson.D {
	return bson.D{{Key: "$replaceRoot", Value: bson.M{"newRoot": s.NewRoot}}}
}

// Facet runs several named sub-pipelines over the same input set.
type Facet struct {
	Fields map[string]Pipeline
}

// Document returns the driver representation of the stage.
func (s Facet) Document() bson.D {
	spec := bson.M{}
	for name, sub := range s.Fields {
		spec[name] = sub.Lower()
	}
	return bson.D{{Key: "$facet", Value: spec}}
}

// TextSearch builds the match stage for a full-text keyword search.
func TextSearch(keywords string) Match {
	return Match{Predicate: bson.M{"$text": bson.M{"$search": keywords}}}
}

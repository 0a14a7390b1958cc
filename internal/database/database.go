// Package database provides document-store connectivity for the research
// analytics service.
//
// The rest of the service depends only on the narrow Collection and Cursor
// interfaces defined here: an aggregation-pipeline execution primitive plus
// the count helpers. This keeps repositories testable with in-memory fakes
// and keeps the driver type out of the query layer.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/impactu/research-analytics-service/internal/config"
)

// HealthCheckTimeout is the maximum time to wait for a health check ping.
const HealthCheckTimeout = 5 * time.Second

// Cursor is the lazily-consumed result of an aggregation. *mongo.Cursor
// satisfies it.
type Cursor interface {
	// Next advances to the next document, blocking until one is available
	// or the stream ends.
	Next(ctx context.Context) bool

	// Decode unmarshals the current document into val.
	Decode(val interface{}) error

	// Err returns the terminal error of the cursor, if any.
	Err() error

	// Close releases the server-side resources held by the cursor.
	Close(ctx context.Context) error
}

// Collection is the document-store surface the repositories consume.
type Collection interface {
	// Aggregate executes an aggregation pipeline and returns its cursor.
	Aggregate(ctx context.Context, pipeline interface{}) (Cursor, error)

	// EstimatedDocumentCount returns a cheap approximate document count
	// based on collection metadata.
	EstimatedDocumentCount(ctx context.Context) (int64, error)

	// FindOne returns the single document matching the filter, or
	// mongo.ErrNoDocuments.
	FindOne(ctx context.Context, filter interface{}, result interface{}) error
}

// HealthStatus contains database health information.
type HealthStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// DB wraps the driver client and exposes named collections.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
	logger zerolog.Logger
}

// New connects to the document store and verifies the connection with a
// ping.
func New(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetConnectTimeout(cfg.ConnectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to document store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping document store: %w", err)
	}

	logger.Info().Str("database", cfg.Name).Msg("connected to document store")

	return &DB{
		client: client,
		db:     client.Database(cfg.Name),
		logger: logger.With().Str("component", "database").Logger(),
	}, nil
}

// Collection returns the named collection behind the Collection interface.
func (d *DB) Collection(name string) Collection {
	return &driverCollection{coll: d.db.Collection(name)}
}

// Health reports connectivity status for readiness probes.
func (d *DB) Health(ctx context.Context) HealthStatus {
	pingCtx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	if err := d.client.Ping(pingCtx, readpref.Primary()); err != nil {
		return HealthStatus{Status: "unhealthy", Error: err.Error()}
	}
	return HealthStatus{Status: "healthy"}
}

// Close disconnects the underlying client.
func (d *DB) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// driverCollection adapts *mongo.Collection to the Collection interface.
type driverCollection struct {
	coll *mongo.Collection
}

func (c *driverCollection) Aggregate(ctx context.Context, pipeline interface{}) (Cursor, error) {
	cursor, err := c.coll.Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

func (c *driverCollection) EstimatedDocumentCount(ctx context.Context) (int64, error) {
	return c.coll.EstimatedDocumentCount(ctx)
}

func (c *driverCollection) FindOne(ctx context.Context, filter interface{}, result interface{}) error {
	return c.coll.FindOne(ctx, filter).Decode(result)
}

// EnsureIndexes creates the indexes the query layer depends on: the text
// index used by keyword search and the membership indexes used by the scope
// match stages. Existing indexes are left untouched.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	works := d.db.Collection("works")
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "titles.title", Value: "text"}}},
		{Keys: bson.D{{Key: "authors.id", Value: 1}}},
		{Keys: bson.D{{Key: "authors.affiliations.id", Value: 1}}},
		{Keys: bson.D{{Key: "groups.id", Value: 1}}},
		{Keys: bson.D{{Key: "source.id", Value: 1}}},
		{Keys: bson.D{{Key: "year_published", Value: 1}}},
	}
	if _, err := works.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create works indexes: %w", err)
	}

	persons := d.db.Collection("person")
	if _, err := persons.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "affiliations.id", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("create person indexes: %w", err)
	}

	d.logger.Info().Msg("indexes ensured")
	return nil
}

// Package mongodb stores headlines in a MongoDB collection and ranks entities
// with the aggregation framework.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/DeafMist/headline-radar/internal/models"
)

const defaultBatchSize = 500

// Config selects the server, database and collection.
type Config struct {
	URI        string
	Database   string
	Collection string
	PageSize   int
}

// Client is a headline store over one MongoDB collection.
type Client struct {
	client    *mongo.Client
	coll      *mongo.Collection
	batchSize int32
	log       *slog.Logger
}

// New connects to MongoDB. The connection is lazy; use Ping to verify it.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	batchSize := int32(cfg.PageSize)
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &Client{
		client:    client,
		coll:      client.Database(cfg.Database).Collection(cfg.Collection),
		batchSize: batchSize,
		log:       logger,
	}, nil
}

// Ping checks the primary is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongodb: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// EnsureIndex indexes sentiment_entities.type for the lookup query.
func (c *Client) EnsureIndex(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "sentiment_entities.type", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create entity type index: %w", err)
	}
	return nil
}

// InsertHeadlines inserts documents unordered. Duplicate ids are skipped and
// not counted; any other write error is returned.
func (c *Client) InsertHeadlines(ctx context.Context, docs ...models.HeadlineDocument) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	batch := make([]any, 0, len(docs))
	for _, doc := range docs {
		batch = append(batch, doc)
	}

	_, err := c.coll.InsertMany(ctx, batch, options.InsertMany().SetOrdered(false))
	if err == nil {
		return len(docs), nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
		return 0, fmt.Errorf("insert headlines: %w", err)
	}

	for _, we := range bwe.WriteErrors {
		if !mongo.IsDuplicateKeyError(we) {
			return len(docs) - len(bwe.WriteErrors), fmt.Errorf("insert headlines: %w", err)
		}
	}
	return len(docs) - len(bwe.WriteErrors), nil
}

// ForEachHeadline streams the collection in _id order.
func (c *Client) ForEachHeadline(ctx context.Context, fn func(models.HeadlineDocument) error) error {
	opts := options.Find().
		SetBatchSize(c.batchSize).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := c.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return fmt.Errorf("find headlines: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc models.HeadlineDocument
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("decode headline: %w", err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("iterate headlines: %w", err)
	}
	return nil
}

// UpdateEnrichment $sets both derived fields in one update.
func (c *Client) UpdateEnrichment(ctx context.Context, id string, e models.Enrichment) error {
	res, err := c.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, enrichmentUpdate(e))
	if err != nil {
		return fmt.Errorf("update headline %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update headline %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// AggregateEntities unwinds sentiment_entities, counts each (type, value)
// pair and returns the top limit rows.
func (c *Client) AggregateEntities(ctx context.Context, limit int) ([]models.EntityFrequencyRow, error) {
	cursor, err := c.coll.Aggregate(ctx, entityPipeline(limit))
	if err != nil {
		return nil, fmt.Errorf("aggregate entities: %w", err)
	}
	defer cursor.Close(ctx)

	var buckets []struct {
		ID    models.EntityAnnotation `bson:"_id"`
		Count int                     `bson:"count"`
	}
	if err := cursor.All(ctx, &buckets); err != nil {
		return nil, fmt.Errorf("decode entity counts: %w", err)
	}

	rows := make([]models.EntityFrequencyRow, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, models.EntityFrequencyRow{Entity: b.ID, Count: b.Count})
	}
	return rows, nil
}

// FindByEntityType returns up to limit headlines holding an entity of entityType.
func (c *Client) FindByEntityType(ctx context.Context, entityType string, limit int) ([]models.HeadlineDocument, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := c.coll.Find(ctx, entityTypeFilter(entityType), opts)
	if err != nil {
		return nil, fmt.Errorf("find headlines by entity type: %w", err)
	}
	defer cursor.Close(ctx)

	docs := make([]models.HeadlineDocument, 0)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode headlines: %w", err)
	}
	return docs, nil
}

func enrichmentUpdate(e models.Enrichment) bson.D {
	entities := e.Entities
	if entities == nil {
		entities = []models.EntityAnnotation{}
	}
	return bson.D{{Key: "$set", Value: bson.D{
		{Key: "sentiment_entities", Value: entities},
		{Key: "sentiment", Value: e.Sentiment},
	}}}
}

func entityTypeFilter(entityType string) bson.D {
	return bson.D{{Key: "sentiment_entities", Value: bson.D{
		{Key: "$elemMatch", Value: bson.D{{Key: "type", Value: entityType}}},
	}}}
}

func entityPipeline(limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$unwind", Value: "$sentiment_entities"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$sentiment_entities"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{
			{Key: "count", Value: -1},
			{Key: "_id.type", Value: 1},
			{Key: "_id.value", Value: 1},
		}}},
		{{Key: "$limit", Value: limit}},
	}
}

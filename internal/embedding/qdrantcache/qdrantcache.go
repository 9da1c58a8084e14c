// Package qdrantcache persists text->vector embedding lookups in a Qdrant
// collection so repeated dedup runs over the same corpus skip re-embedding,
// following the reference engine's qdrantVector wrapper in
// internal/persistence/databases/qdrant_vector.go.
package qdrantcache

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const textFieldName = "_text"

// Cache stores embedding vectors keyed by their source text, addressed by a
// deterministic UUID derived from the text (Qdrant point IDs must be UUIDs
// or positive integers).
type Cache struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// New connects to Qdrant at host:port and ensures collection exists with
// the given vector dimension, creating it on first use.
func New(ctx context.Context, host string, port int, collection string, dimension int) (*Cache, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrantcache: collection name is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("qdrantcache: dimension must be > 0")
	}
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("qdrantcache: create client: %w", err)
	}
	c := &Cache{client: client, collection: collection, dimension: dimension}
	if err := c.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) ensureCollection(ctx context.Context) error {
	exists, err := c.client.CollectionExists(ctx, c.collection)
	if err != nil {
		return fmt.Errorf("qdrantcache: check collection: %w", err)
	}
	if exists {
		return nil
	}
	return c.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: c.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(c.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func pointID(key string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String())
}

// Get returns the cached vector for key, if present.
func (c *Cache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	points, err := c.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: c.collection,
		Ids:            []*qdrant.PointId{pointID(key)},
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("qdrantcache: get: %w", err)
	}
	if len(points) == 0 {
		return nil, false, nil
	}
	dense := points[0].GetVectors().GetVector().GetDense()
	if dense == nil {
		return nil, false, nil
	}
	return dense.GetData(), true, nil
}

// Put stores vector under key.
func (c *Cache) Put(ctx context.Context, key string, vector []float32) error {
	vec := make([]float32, len(vector))
	copy(vec, vector)
	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      pointID(key),
				Vectors: qdrant.NewVectorsDense(vec),
				Payload: qdrant.NewValueMap(map[string]any{textFieldName: key}),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrantcache: upsert: %w", err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (c *Cache) Close() error { return c.client.Close() }

// Package chromem provides an embedded, in-memory implementation of
// session-scoped vector storage backed by chromem-go.
//
// chromem-go is a pure Go embedded vector database, which makes this backend
// suitable for local development and tests: no external store process, real
// cosine similarity search. Data does not survive process restarts.
package chromem

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/echoprompt/echomem-go/pkg/vector"
)

// Client implements vector.Store using chromem-go.
type Client struct {
	db         *chromem.DB
	dimensions int

	// mu serializes collection creation; chromem collections are themselves
	// safe for concurrent use.
	mu sync.Mutex
}

// Config contains configuration for the embedded store.
type Config struct {
	// EmbeddingModelDims is the dimension of embedding vectors.
	EmbeddingModelDims int
}

// NewClient creates a new embedded vector store client.
func NewClient(cfg *Config) (*Client, error) {
	return &Client{
		db:         chromem.NewDB(),
		dimensions: cfg.EmbeddingModelDims,
	}, nil
}

// EnsureCollection creates the session's collection if it is absent.
func (c *Client) EnsureCollection(ctx context.Context, sessionID int64) error {
	_, err := c.collection(sessionID, true)
	return err
}

// Upsert writes or overwrites a point keyed by point.ID. chromem's
// AddDocument replaces an existing document with the same ID.
func (c *Client) Upsert(ctx context.Context, sessionID int64, point *vector.Point) error {
	if len(point.Vector) != c.dimensions {
		return fmt.Errorf("Upsert: got %d dimensions, store configured for %d: %w",
			len(point.Vector), c.dimensions, vector.ErrDimensionMismatch)
	}

	col, err := c.collection(sessionID, true)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        strconv.FormatInt(point.ID, 10),
		Content:   point.Payload.Content,
		Embedding: toFloat32(point.Vector),
		Metadata:  payloadToMetadata(&point.Payload),
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

// Get returns one point by ID. A missing point or collection yields (nil, nil).
func (c *Client) Get(ctx context.Context, sessionID int64, pointID int64) (*vector.Point, error) {
	col, err := c.collection(sessionID, false)
	if err != nil || col == nil {
		return nil, err
	}

	doc, err := col.GetByID(ctx, strconv.FormatInt(pointID, 10))
	if err != nil {
		// chromem reports an unknown ID as an error; the store contract
		// makes it (nil, nil).
		if strings.Contains(err.Error(), "find") || strings.Contains(err.Error(), "not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("Get: %w", err)
	}

	point, err := docToPoint(doc)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return point, nil
}

// Search performs cosine similarity search over the session's collection.
//
// Equality conditions are pushed down as a chromem where clause; the
// timestamp lower bound is applied by post-filtering, since chromem only
// supports string-equality metadata filters. A missing collection yields an
// empty result, not an error.
func (c *Client) Search(ctx context.Context, sessionID int64, queryVector []float64, filter *vector.Filter, limit int) ([]*vector.ScoredPoint, error) {
	if len(queryVector) != c.dimensions {
		return nil, fmt.Errorf("Search: got %d dimensions, store configured for %d: %w",
			len(queryVector), c.dimensions, vector.ErrDimensionMismatch)
	}

	col, err := c.collection(sessionID, false)
	if err != nil || col == nil {
		return []*vector.ScoredPoint{}, err
	}

	where := map[string]string{}
	if filter != nil {
		if filter.UserID != "" {
			where["user_id"] = filter.UserID
		}
		if filter.MemoryType != "" {
			where["memory_type"] = string(filter.MemoryType)
		}
		if filter.DocumentID != "" {
			where["document_id"] = filter.DocumentID
		}
	}

	// chromem rejects nResults larger than the number of stored documents,
	// and the where clause may shrink the candidate set further. Clamp to
	// the collection size, then back off on the "insufficient documents"
	// error until the query fits.
	//
	// With a timestamp bound the post-filter below discards candidates, so
	// fetching only the top limit could drop recent points that rank below
	// stale ones. Fetch every candidate and truncate after filtering.
	n := limit
	if filter != nil && !filter.Since.IsZero() {
		n = col.Count()
	}
	if count := col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return []*vector.ScoredPoint{}, nil
	}

	var raw []chromem.Result
	for ; n >= 1; n-- {
		raw, err = col.QueryEmbedding(ctx, toFloat32(queryVector), n, where, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if n == 1 {
				return []*vector.ScoredPoint{}, nil
			}
			continue
		}
		return nil, fmt.Errorf("Search: %w", err)
	}

	results := []*vector.ScoredPoint{}
	for _, res := range raw {
		point, err := resultToPoint(res)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		if filter != nil && !filter.Since.IsZero() && point.Payload.Timestamp.Before(filter.Since) {
			continue
		}
		results = append(results, point)
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes one point. Deleting an absent point or collection is a no-op.
func (c *Client) Delete(ctx context.Context, sessionID int64, pointID int64) error {
	col, err := c.collection(sessionID, false)
	if err != nil || col == nil {
		return err
	}

	if err := col.Delete(ctx, nil, nil, strconv.FormatInt(pointID, 10)); err != nil {
		// chromem reports deleting an unknown ID as an error; the store
		// contract makes it a no-op.
		if strings.Contains(err.Error(), "not found") {
			return nil
		}
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// DeleteCollection removes the session's collection. Removing an absent
// collection is a no-op.
func (c *Client) DeleteCollection(ctx context.Context, sessionID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.DeleteCollection(vector.CollectionName(sessionID)); err != nil {
		return fmt.Errorf("DeleteCollection: %w", err)
	}
	return nil
}

// Dimensions returns the configured vector dimensionality.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close releases resources. chromem keeps everything in memory, so there is
// nothing to close; the method exists for interface compatibility.
func (c *Client) Close() error {
	return nil
}

// collection returns the session's collection, creating it when create is
// true. Returns (nil, nil) for an absent collection when create is false.
func (c *Client) collection(sessionID int64, create bool) (*chromem.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := vector.CollectionName(sessionID)
	if col := c.db.GetCollection(name, nil); col != nil {
		return col, nil
	}
	if !create {
		return nil, nil
	}

	col, err := c.db.CreateCollection(name, nil, nil)
	if err != nil {
		// A concurrent creator winning the race is success.
		if existing := c.db.GetCollection(name, nil); existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("EnsureCollection: %w", err)
	}
	return col, nil
}

// isInsufficientDocsError checks whether the query failed because nResults
// exceeded the (possibly filtered) document count.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

// toFloat32 converts a float64 vector to chromem's float32 representation.
func toFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

// toFloat64 converts a chromem float32 vector back to float64.
func toFloat64(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

// Package mysql provides a MySQL implementation of session-scoped vector storage.
//
// Vectors are stored as JSON strings in TEXT columns and similarity search
// uses in-process cosine similarity calculation, since stock MySQL has no
// native vector operations. Each session's collection is one table named
// session_<id>.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/echoprompt/echomem-go/pkg/vector"
)

// Client implements vector.Store using MySQL as the backend.
type Client struct {
	db         *sql.DB
	dimensions int
}

// Config contains MySQL configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	EmbeddingModelDims int
}

// NewClient creates a new MySQL vector store client.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	return &Client{
		db:         db,
		dimensions: cfg.EmbeddingModelDims,
	}, nil
}

// EnsureCollection creates the session's table if it is absent.
func (c *Client) EnsureCollection(ctx context.Context, sessionID int64) error {
	table := vector.CollectionName(sessionID)
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			message_id BIGINT NOT NULL,
			user_id VARCHAR(255),
			document_id VARCHAR(255),
			role VARCHAR(32) NOT NULL,
			content TEXT NOT NULL,
			summary TEXT,
			memory_type VARCHAR(32) NOT NULL DEFAULT 'short_term',
			importance DOUBLE DEFAULT 0.5,
			token_count INT DEFAULT 0,
			created_at DATETIME(6) NOT NULL,
			topic VARCHAR(255),
			language VARCHAR(16),
			source_type VARCHAR(32),
			embedding_model VARCHAR(64),
			embedding MEDIUMTEXT NOT NULL,
			INDEX idx_tier (memory_type, user_id)
		)
	`, table)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("EnsureCollection: %w", err)
	}

	return nil
}

// Upsert writes or overwrites a point keyed by point.ID.
func (c *Client) Upsert(ctx context.Context, sessionID int64, point *vector.Point) error {
	if len(point.Vector) != c.dimensions {
		return fmt.Errorf("Upsert: got %d dimensions, store configured for %d: %w",
			len(point.Vector), c.dimensions, vector.ErrDimensionMismatch)
	}

	if err := c.EnsureCollection(ctx, sessionID); err != nil {
		return err
	}

	embeddingJSON, err := json.Marshal(point.Vector)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	p := point.Payload
	query := fmt.Sprintf(`
		REPLACE INTO %s
		(id, message_id, user_id, document_id, role, content, summary, memory_type,
		 importance, token_count, created_at, topic, language, source_type,
		 embedding_model, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, vector.CollectionName(sessionID))

	_, err = c.db.ExecContext(ctx, query,
		point.ID,
		p.MessageID,
		nullableString(p.UserID),
		nullableString(p.DocumentID),
		p.Role,
		p.Content,
		nullableString(p.Summary),
		string(p.MemoryType),
		p.Importance,
		p.TokenCount,
		p.Timestamp.UTC(),
		nullableString(p.Topic),
		nullableString(p.Language),
		nullableString(p.SourceType),
		nullableString(p.EmbeddingModel),
		string(embeddingJSON),
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	return nil
}

// Get returns one point by ID. A missing point or table yields (nil, nil).
func (c *Client) Get(ctx context.Context, sessionID int64, pointID int64) (*vector.Point, error) {
	exists, err := c.collectionExists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, message_id, user_id, document_id, role, content, summary,
		       memory_type, importance, token_count, created_at, topic,
		       language, source_type, embedding_model, embedding
		FROM %s
		WHERE id = ?
	`, vector.CollectionName(sessionID))

	rows, err := c.db.QueryContext(ctx, query, pointID)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("Get: %w", err)
		}
		return nil, nil
	}

	scored, embedding, err := scanPoint(rows)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	scored.Payload.SessionID = sessionID

	return &vector.Point{
		ID:      scored.ID,
		Vector:  embedding,
		Payload: scored.Payload,
	}, nil
}

// Search performs cosine similarity search over the session's table.
//
// A missing table yields an empty result, not an error.
func (c *Client) Search(ctx context.Context, sessionID int64, queryVector []float64, filter *vector.Filter, limit int) ([]*vector.ScoredPoint, error) {
	if len(queryVector) != c.dimensions {
		return nil, fmt.Errorf("Search: got %d dimensions, store configured for %d: %w",
			len(queryVector), c.dimensions, vector.ErrDimensionMismatch)
	}

	exists, err := c.collectionExists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []*vector.ScoredPoint{}, nil
	}

	whereClause, args := buildFilterClause(filter)
	query := fmt.Sprintf(`
		SELECT id, message_id, user_id, document_id, role, content, summary,
		       memory_type, importance, token_count, created_at, topic,
		       language, source_type, embedding_model, embedding
		FROM %s
		%s
		ORDER BY id
	`, vector.CollectionName(sessionID), whereClause)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []*vector.ScoredPoint{}
	for rows.Next() {
		point, embedding, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		point.Payload.SessionID = sessionID
		point.Score = cosineSimilarity(queryVector, embedding)
		results = append(results, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	return topByScore(results, limit), nil
}

// Delete removes one point. Deleting an absent point or table is a no-op.
func (c *Client) Delete(ctx context.Context, sessionID int64, pointID int64) error {
	exists, err := c.collectionExists(ctx, sessionID)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", vector.CollectionName(sessionID))
	if _, err := c.db.ExecContext(ctx, query, pointID); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// DeleteCollection drops the session's table. Dropping an absent table is a no-op.
func (c *Client) DeleteCollection(ctx context.Context, sessionID int64) error {
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", vector.CollectionName(sessionID))
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("DeleteCollection: %w", err)
	}
	return nil
}

// Dimensions returns the configured vector dimensionality.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// collectionExists checks information_schema for the session's table.
func (c *Client) collectionExists(ctx context.Context, sessionID int64) (bool, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
		vector.CollectionName(sessionID),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("collectionExists: %w", err)
	}
	return count > 0, nil
}

// scanPoint scans one row into a ScoredPoint plus its raw embedding.
func scanPoint(rows *sql.Rows) (*vector.ScoredPoint, []float64, error) {
	var (
		point        vector.ScoredPoint
		userID       sql.NullString
		documentID   sql.NullString
		summary      sql.NullString
		topic        sql.NullString
		language     sql.NullString
		sourceType   sql.NullString
		embedModel   sql.NullString
		memoryType   string
		createdAt    time.Time
		embeddingStr string
	)

	err := rows.Scan(
		&point.ID,
		&point.Payload.MessageID,
		&userID,
		&documentID,
		&point.Payload.Role,
		&point.Payload.Content,
		&summary,
		&memoryType,
		&point.Payload.Importance,
		&point.Payload.TokenCount,
		&createdAt,
		&topic,
		&language,
		&sourceType,
		&embedModel,
		&embeddingStr,
	)
	if err != nil {
		return nil, nil, err
	}

	point.Payload.UserID = userID.String
	point.Payload.DocumentID = documentID.String
	point.Payload.Summary = summary.String
	point.Payload.MemoryType = vector.MemoryType(memoryType)
	point.Payload.Timestamp = createdAt
	point.Payload.Topic = topic.String
	point.Payload.Language = language.String
	point.Payload.SourceType = sourceType.String
	point.Payload.EmbeddingModel = embedModel.String

	var embedding []float64
	if err := json.Unmarshal([]byte(embeddingStr), &embedding); err != nil {
		return nil, nil, fmt.Errorf("parse embedding: %w", err)
	}

	return &point, embedding, nil
}

// nullableString converts an empty string to a SQL NULL.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

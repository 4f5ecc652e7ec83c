// Package postgres provides a PostgreSQL + pgvector implementation of
// session-scoped vector storage.
//
// Each session's collection is one table named session_<id> with a pgvector
// column, so similarity search and ordering happen inside the database using
// the <=> cosine-distance operator.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/echoprompt/echomem-go/pkg/vector"
)

// Client implements vector.Store using PostgreSQL with pgvector.
type Client struct {
	db         *sql.DB
	dimensions int
}

// Config contains PostgreSQL configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	EmbeddingModelDims int
	SSLMode            string
}

// NewClient creates a new PostgreSQL vector store client and enables the
// pgvector extension.
func NewClient(cfg *Config) (*Client, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return nil, fmt.Errorf("NewPostgresClient: create extension: %w", err)
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
			importance FLOAT DEFAULT 0.5,
			token_count INT DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			topic VARCHAR(255),
			language VARCHAR(16),
			source_type VARCHAR(32),
			embedding_model VARCHAR(64),
			embedding vector(%d) NOT NULL
		)
	`, table, c.dimensions)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("EnsureCollection: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_tier ON %s(memory_type, user_id)
	`, table, table)
	if _, err := c.db.ExecContext(ctx, indexQuery); err != nil {
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

	p := point.Payload
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, message_id, user_id, document_id, role, content, summary, memory_type,
		 importance, token_count, created_at, topic, language, source_type,
		 embedding_model, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			message_id = EXCLUDED.message_id,
			user_id = EXCLUDED.user_id,
			document_id = EXCLUDED.document_id,
			role = EXCLUDED.role,
			content = EXCLUDED.content,
			summary = EXCLUDED.summary,
			memory_type = EXCLUDED.memory_type,
			importance = EXCLUDED.importance,
			token_count = EXCLUDED.token_count,
			topic = EXCLUDED.topic,
			language = EXCLUDED.language,
			source_type = EXCLUDED.source_type,
			embedding_model = EXCLUDED.embedding_model,
			embedding = EXCLUDED.embedding
	`, vector.CollectionName(sessionID))

	_, err := c.db.ExecContext(ctx, query,
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
		vectorToString(point.Vector),
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
		       language, source_type, embedding_model, embedding::text
		FROM %s
		WHERE id = $1
	`, vector.CollectionName(sessionID))

	var (
		point        vector.Point
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

	err = c.db.QueryRowContext(ctx, query, pointID).Scan(
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
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	point.Payload.SessionID = sessionID
	point.Payload.UserID = userID.String
	point.Payload.DocumentID = documentID.String
	point.Payload.Summary = summary.String
	point.Payload.MemoryType = vector.MemoryType(memoryType)
	point.Payload.Timestamp = createdAt
	point.Payload.Topic = topic.String
	point.Payload.Language = language.String
	point.Payload.SourceType = sourceType.String
	point.Payload.EmbeddingModel = embedModel.String

	embedding, err := stringToVector(embeddingStr)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	point.Vector = embedding

	return &point, nil
}

// Search performs vector search using pgvector's cosine distance.
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

	// $1 is the query vector; filter placeholders start at $2.
	whereClause, filterArgs := buildFilterClause(filter, 2)

	query := fmt.Sprintf(`
		SELECT id, message_id, user_id, document_id, role, content, summary,
		       memory_type, importance, token_count, created_at, topic,
		       language, source_type, embedding_model,
		       1 - (embedding <=> $1) AS similarity
		FROM %s
		%s
		ORDER BY embedding <=> $1, created_at DESC, id ASC
		LIMIT $%d
	`, vector.CollectionName(sessionID), whereClause, len(filterArgs)+2)

	allArgs := []interface{}{vectorToString(queryVector)}
	allArgs = append(allArgs, filterArgs...)
	allArgs = append(allArgs, limit)

	rows, err := c.db.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []*vector.ScoredPoint{}
	for rows.Next() {
		point, err := scanPoint(rows)
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		point.Payload.SessionID = sessionID
		results = append(results, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	return results, nil
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

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", vector.CollectionName(sessionID))
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

// collectionExists checks the catalog for the session's table.
func (c *Client) collectionExists(ctx context.Context, sessionID int64) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)",
		vector.CollectionName(sessionID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("collectionExists: %w", err)
	}
	return exists, nil
}

// scanPoint scans one row (including the similarity column) into a ScoredPoint.
func scanPoint(rows *sql.Rows) (*vector.ScoredPoint, error) {
	var (
		point      vector.ScoredPoint
		userID     sql.NullString
		documentID sql.NullString
		summary    sql.NullString
		topic      sql.NullString
		language   sql.NullString
		sourceType sql.NullString
		embedModel sql.NullString
		memoryType string
		createdAt  time.Time
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
		&point.Score,
	)
	if err != nil {
		return nil, err
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

	return &point, nil
}

// nullableString converts an empty string to a SQL NULL.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

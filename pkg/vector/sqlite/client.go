// Package sqlite provides a SQLite implementation of session-scoped vector storage.
//
// SQLite is a lightweight, file-based database suitable for local development
// and small-scale deployments. Each session's collection is one table named
// session_<id>. Vectors are stored as JSON strings in TEXT fields, and
// similarity search uses in-process cosine similarity calculation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/echoprompt/echomem-go/pkg/vector"
)

// Client implements vector.Store using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB

	// dimensions is the dimension of embedding vectors.
	dimensions int
}

// Config contains configuration for creating a SQLite vector store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// EmbeddingModelDims is the dimension of embedding vectors.
	EmbeddingModelDims int
}

// NewClient creates a new SQLite vector store client.
//
// Parameters:
//   - cfg: Configuration containing database path and embedding dimensions
//
// Returns:
//   - *Client: The SQLite client instance
//   - error: Error if the database connection fails
func NewClient(cfg *Config) (*Client, error) {
	// Create parent directory if it doesn't exist
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	return &Client{
		db:         db,
		dimensions: cfg.EmbeddingModelDims,
	}, nil
}

// EnsureCollection creates the session's table if it is absent.
//
// CREATE TABLE IF NOT EXISTS makes re-creation idempotent, matching the
// contract that an "already exists" condition is success.
func (c *Client) EnsureCollection(ctx context.Context, sessionID int64) error {
	table := vector.CollectionName(sessionID)
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			message_id INTEGER NOT NULL,
			user_id TEXT,
			document_id TEXT,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			summary TEXT,
			memory_type TEXT NOT NULL DEFAULT 'short_term',
			importance REAL DEFAULT 0.5,
			token_count INTEGER DEFAULT 0,
			created_at DATETIME NOT NULL,
			topic TEXT,
			language TEXT,
			source_type TEXT,
			embedding_model TEXT,
			embedding TEXT NOT NULL
		)
	`, table)

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
//
// INSERT OR REPLACE keeps the operation idempotent: a retried upsert of the
// same ID leaves exactly one row with the latest content and embedding.
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
		INSERT OR REPLACE INTO %s
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
// SQLite has no native vector operations, so similarity is calculated in
// process after loading the rows matching the filter. A missing table yields
// an empty result, not an error.
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

// collectionExists checks the sqlite_master catalog for the session's table.
func (c *Client) collectionExists(ctx context.Context, sessionID int64) (bool, error) {
	var name string
	err := c.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		vector.CollectionName(sessionID),
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("collectionExists: %w", err)
	}
	return true, nil
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

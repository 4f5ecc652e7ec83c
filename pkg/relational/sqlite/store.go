// Package sqlite provides the SQLite implementation of the relational store
// for users, sessions, and messages.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/echoprompt/echomem-go/pkg/relational"
)

// Store implements relational.Store using SQLite as the backend.
type Store struct {
	// db is the SQLite database connection.
	db *sql.DB
}

// Config contains configuration for creating a SQLite relational store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
}

// NewStore creates a new SQLite relational store.
//
// Parameters:
//   - cfg: Configuration containing the database path
//
// Returns:
//   - *Store: The store instance
//   - error: Error if database connection or table creation fails
func NewStore(cfg *Config) (*Store, error) {
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewStore: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewStore: %w", err)
	}

	store := &Store{db: db}

	if err := store.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// initTables initializes the database table structure.
func (s *Store) initTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_identifier TEXT NOT NULL UNIQUE,
			display_name TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			user_id INTEGER REFERENCES users(id),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			role TEXT NOT NULL,
			document_id TEXT,
			memory_type TEXT NOT NULL DEFAULT 'short_term',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("initTables: %w", err)
		}
	}
	return nil
}

// CreateUser registers a user under a unique external identifier.
func (s *Store) CreateUser(ctx context.Context, identifier, displayName string) (*relational.User, error) {
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO users (user_identifier, display_name) VALUES (?, ?)",
		identifier, nullableString(displayName),
	)
	if err != nil {
		return nil, fmt.Errorf("CreateUser: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("CreateUser: %w", err)
	}
	return s.GetUser(ctx, id)
}

// GetUser retrieves a user by numeric ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*relational.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_identifier, display_name, created_at FROM users WHERE id = ?", id)
	return scanUser(row)
}

// GetUserByIdentifier retrieves a user by external identifier.
func (s *Store) GetUserByIdentifier(ctx context.Context, identifier string) (*relational.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_identifier, display_name, created_at FROM users WHERE user_identifier = ?", identifier)
	return scanUser(row)
}

// CreateSession creates a session, optionally owned by a user.
func (s *Store) CreateSession(ctx context.Context, name string, userID int64) (*relational.Session, error) {
	var owner interface{}
	if userID != 0 {
		owner = userID
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (name, user_id) VALUES (?, ?)", name, owner)
	if err != nil {
		return nil, fmt.Errorf("CreateSession: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("CreateSession: %w", err)
	}
	return s.GetSession(ctx, id)
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id int64) (*relational.Session, error) {
	var (
		session relational.Session
		userID  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, user_id, created_at, updated_at FROM sessions WHERE id = ?", id,
	).Scan(&session.ID, &session.Name, &userID, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, relational.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetSession: %w", err)
	}
	session.UserID = userID.Int64
	return &session, nil
}

// ListUserSessions lists the sessions owned by a user, newest first.
func (s *Store) ListUserSessions(ctx context.Context, userID int64) ([]*relational.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, user_id, created_at, updated_at FROM sessions WHERE user_id = ? ORDER BY created_at DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("ListUserSessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := []*relational.Session{}
	for rows.Next() {
		var (
			session relational.Session
			owner   sql.NullInt64
		)
		if err := rows.Scan(&session.ID, &session.Name, &owner, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListUserSessions: %w", err)
		}
		session.UserID = owner.Int64
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session; messages cascade via the foreign key.
// Deleting an absent session is a no-op.
func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("DeleteSession: %w", err)
	}
	return nil
}

// SessionOwnerIdentifier resolves the external identifier of a session's
// owning user. Ownerless sessions resolve to "".
func (s *Store) SessionOwnerIdentifier(ctx context.Context, sessionID int64) (string, error) {
	var identifier sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT u.user_identifier
		FROM sessions s
		LEFT JOIN users u ON u.id = s.user_id
		WHERE s.id = ?
	`, sessionID).Scan(&identifier)
	if err == sql.ErrNoRows {
		return "", relational.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("SessionOwnerIdentifier: %w", err)
	}
	return identifier.String, nil
}

// CreateMessage inserts a message row.
func (s *Store) CreateMessage(ctx context.Context, msg *relational.Message) (*relational.Message, error) {
	memoryType := msg.MemoryType
	if memoryType == "" {
		memoryType = "short_term"
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (session_id, content, role, document_id, memory_type) VALUES (?, ?, ?, ?, ?)",
		msg.SessionID, msg.Content, msg.Role, nullableString(msg.DocumentID), memoryType)
	if err != nil {
		return nil, fmt.Errorf("CreateMessage: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("CreateMessage: %w", err)
	}
	return s.GetMessage(ctx, id)
}

// GetMessage retrieves a message by ID.
func (s *Store) GetMessage(ctx context.Context, id int64) (*relational.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, content, role, document_id, memory_type, created_at, updated_at
		FROM messages WHERE id = ?
	`, id)
	return scanMessage(row)
}

// UpdateMessage applies a partial edit and returns the updated row.
func (s *Store) UpdateMessage(ctx context.Context, id int64, update *relational.MessageUpdate) (*relational.Message, error) {
	setClauses := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if update.Content != nil {
		setClauses = append(setClauses, "content = ?")
		args = append(args, *update.Content)
	}
	if update.Role != nil {
		setClauses = append(setClauses, "role = ?")
		args = append(args, *update.Role)
	}
	if update.DocumentID != nil {
		setClauses = append(setClauses, "document_id = ?")
		args = append(args, nullableString(*update.DocumentID))
	}
	if update.MemoryType != nil {
		setClauses = append(setClauses, "memory_type = ?")
		args = append(args, *update.MemoryType)
	}
	args = append(args, id)

	query := "UPDATE messages SET " + strings.Join(setClauses, ", ") + " WHERE id = ?"
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("UpdateMessage: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("UpdateMessage: %w", err)
	}
	if affected == 0 {
		return nil, relational.ErrNotFound
	}

	return s.GetMessage(ctx, id)
}

// DeleteMessage removes one message row. Deleting an absent message is a no-op.
func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", id); err != nil {
		return fmt.Errorf("DeleteMessage: %w", err)
	}
	return nil
}

// ListMessages lists a session's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, sessionID int64) ([]*relational.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, content, role, document_id, memory_type, created_at, updated_at
		FROM messages
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ListMessages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []*relational.Message{}
	for rows.Next() {
		msg, err := scanMessageRows(rows)
		if err != nil {
			return nil, fmt.Errorf("ListMessages: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MessageTree groups a session's messages by document_id.
//
// Messages sharing a document_id become children of a synthetic document
// node; messages without one are roots in their own right. Order follows
// first appearance in creation order.
func (s *Store) MessageTree(ctx context.Context, sessionID int64) ([]*relational.MessageTreeNode, error) {
	messages, err := s.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	roots := []*relational.MessageTreeNode{}
	groups := map[string]*relational.MessageTreeNode{}

	for _, msg := range messages {
		created := msg.CreatedAt
		node := &relational.MessageTreeNode{
			ID:        msg.ID,
			Content:   msg.Content,
			Role:      msg.Role,
			CreatedAt: &created,
			Children:  []*relational.MessageTreeNode{},
		}

		if msg.DocumentID == "" {
			roots = append(roots, node)
			continue
		}

		group, ok := groups[msg.DocumentID]
		if !ok {
			group = &relational.MessageTreeNode{
				DocumentID: msg.DocumentID,
				Content:    msg.DocumentID,
				Children:   []*relational.MessageTreeNode{},
			}
			groups[msg.DocumentID] = group
			roots = append(roots, group)
		}
		group.Children = append(group.Children, node)
	}

	return roots, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// scanUser scans a user row, mapping sql.ErrNoRows to ErrNotFound.
func scanUser(row *sql.Row) (*relational.User, error) {
	var (
		user        relational.User
		displayName sql.NullString
	)
	err := row.Scan(&user.ID, &user.UserIdentifier, &displayName, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, relational.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanUser: %w", err)
	}
	user.DisplayName = displayName.String
	return &user, nil
}

// scanMessage scans a message from a single-row query.
func scanMessage(row *sql.Row) (*relational.Message, error) {
	var (
		msg        relational.Message
		documentID sql.NullString
		updatedAt  sql.NullTime
	)
	err := row.Scan(&msg.ID, &msg.SessionID, &msg.Content, &msg.Role,
		&documentID, &msg.MemoryType, &msg.CreatedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, relational.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanMessage: %w", err)
	}
	msg.DocumentID = documentID.String
	if updatedAt.Valid {
		msg.UpdatedAt = &updatedAt.Time
	}
	return &msg, nil
}

// scanMessageRows scans a message from a multi-row query.
func scanMessageRows(rows *sql.Rows) (*relational.Message, error) {
	var (
		msg        relational.Message
		documentID sql.NullString
		updatedAt  sql.NullTime
	)
	err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Content, &msg.Role,
		&documentID, &msg.MemoryType, &msg.CreatedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	msg.DocumentID = documentID.String
	if updatedAt.Valid {
		msg.UpdatedAt = &updatedAt.Time
	}
	return &msg, nil
}

// nullableString converts an empty string to a SQL NULL.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

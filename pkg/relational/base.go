// Package relational provides interfaces and types for the relational store
// backing sessions, users, and messages.
//
// The retrieval engine treats this store as an external collaborator: it is
// consulted to resolve a session's owning user identity, and the conversation
// orchestrator records message rows here alongside the vector points.
package relational

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates that a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// User is a registered owner of sessions. UserIdentifier is the opaque
// external identity (e.g. email, username) that vector payloads are scoped
// by; the numeric ID never leaves the relational layer.
type User struct {
	ID             int64     `json:"id"`
	UserIdentifier string    `json:"user_identifier"`
	DisplayName    string    `json:"display_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session is one conversation. UserID is zero for ownerless sessions.
type Session struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	UserID    int64     `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one chat message row.
type Message struct {
	ID         int64      `json:"id"`
	SessionID  int64      `json:"session_id"`
	Content    string     `json:"content"`
	Role       string     `json:"role"`
	DocumentID string     `json:"document_id,omitempty"`
	MemoryType string     `json:"memory_type"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// MessageUpdate describes a partial message edit. Nil fields are left
// unchanged.
type MessageUpdate struct {
	Content    *string
	Role       *string
	DocumentID *string
	MemoryType *string
}

// MessageTreeNode is one node of a session's message tree, where messages
// sharing a document_id are grouped under a document node.
type MessageTreeNode struct {
	ID         int64              `json:"id"`
	DocumentID string             `json:"document_id,omitempty"`
	Content    string             `json:"content"`
	Role       string             `json:"role,omitempty"`
	CreatedAt  *time.Time         `json:"created_at,omitempty"`
	Children   []*MessageTreeNode `json:"children"`
}

// Store defines the relational persistence interface.
type Store interface {
	// CreateUser registers a user under a unique external identifier.
	CreateUser(ctx context.Context, identifier, displayName string) (*User, error)

	// GetUser retrieves a user by numeric ID.
	GetUser(ctx context.Context, id int64) (*User, error)

	// GetUserByIdentifier retrieves a user by external identifier.
	GetUserByIdentifier(ctx context.Context, identifier string) (*User, error)

	// CreateSession creates a session, optionally owned by a user (userID 0
	// means no owner).
	CreateSession(ctx context.Context, name string, userID int64) (*Session, error)

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id int64) (*Session, error)

	// ListUserSessions lists the sessions owned by a user, newest first.
	ListUserSessions(ctx context.Context, userID int64) ([]*Session, error)

	// DeleteSession removes a session and all its messages.
	DeleteSession(ctx context.Context, id int64) error

	// SessionOwnerIdentifier resolves the external identifier of the user
	// owning a session. Returns "" for ownerless sessions and ErrNotFound
	// when the session does not exist.
	SessionOwnerIdentifier(ctx context.Context, sessionID int64) (string, error)

	// CreateMessage inserts a message row and fills in its generated ID and
	// creation timestamp.
	CreateMessage(ctx context.Context, msg *Message) (*Message, error)

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// UpdateMessage applies a partial edit and returns the updated row.
	UpdateMessage(ctx context.Context, id int64, update *MessageUpdate) (*Message, error)

	// DeleteMessage removes one message row.
	DeleteMessage(ctx context.Context, id int64) error

	// ListMessages lists a session's messages in creation order.
	ListMessages(ctx context.Context, sessionID int64) ([]*Message, error)

	// MessageTree returns a session's messages grouped into a tree by
	// document_id: each document group forms a node whose children are its
	// messages in creation order; ungrouped messages are roots themselves.
	MessageTree(ctx context.Context, sessionID int64) ([]*MessageTreeNode, error)

	// Close closes the store and releases resources.
	Close() error
}

// Package store persists per-user conversation state.
//
// Two backends implement HistoryStore: an in-process map (volatile, the
// default) and MongoDB (durable). The backend is chosen exactly once at
// startup by Open; when the durable backend is requested but unusable
// (missing URI, unreachable server, unknown kind) the process degrades to
// the in-memory store for its whole lifetime rather than failing.
//
// Persistence is last-write-wins per user key. Two pipelines handling
// rapid-fire messages from the same user may interleave Load and Save, and
// the later Save silently overwrites the earlier one. That is an accepted
// property of the design, not a defect.
package store

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goanswer/internal/history"
)

// Storage kinds recognized by Open. Comparison is case-insensitive.
const (
	KindMemory = "memory"
	KindMongo  = "mongodb"
)

// connectTimeout bounds the one-time durable connection attempt at startup.
const connectTimeout = 5 * time.Second

// UserInfo is the audit snapshot persisted alongside a conversation. Only
// these primitive fields are ever stored.
type UserInfo struct {
	ID            string `json:"id" bson:"id"`
	Name          string `json:"name,omitempty" bson:"name,omitempty"`
	Discriminator string `json:"discriminator,omitempty" bson:"discriminator,omitempty"`
	DisplayName   string `json:"display_name,omitempty" bson:"display_name,omitempty"`
	IsBot         bool   `json:"is_bot" bson:"is_bot"`
}

// ConversationRecord is the persisted state for one user.
type ConversationRecord struct {
	History        []history.Turn `json:"conversation_history" bson:"conversation_history"`
	ConversationID string         `json:"conversation_id" bson:"conversation_id"`
	UserInfo       *UserInfo      `json:"user_info,omitempty" bson:"user_info,omitempty"`
	LastUpdated    time.Time      `json:"last_updated,omitempty" bson:"last_updated,omitempty"`
}

// newRecord returns the default record handed out when nothing is stored
// for a user yet (or when a durable read fails).
func newRecord() *ConversationRecord {
	return &ConversationRecord{History: make([]history.Turn, 0)}
}

// HistoryStore is the persistence contract the relay depends on.
type HistoryStore interface {
	// Load returns the conversation state for a user. It never fails from
	// the caller's perspective: a missing record and a backend error both
	// produce a fresh empty record (errors are logged inside). The result
	// is the caller's own copy.
	Load(ctx context.Context, userID string) *ConversationRecord

	// Save upserts the user's record, capping the history to the newest
	// history.MaxTurns turns first. The returned error is informational;
	// persistence is best-effort and callers continue on failure.
	Save(ctx context.Context, userID string, turns []history.Turn, conversationID string, info *UserInfo) error

	// Name identifies the backend ("memory" or "mongodb").
	Name() string

	// Close releases backend resources. No-op for the in-memory store.
	Close(ctx context.Context) error
}

// Config selects and parameterizes the backend.
type Config struct {
	Kind       string
	MongoURI   string
	Database   string
	Collection string
}

// Open picks the backend once at startup. It never returns an error: every
// failure path degrades to the in-memory store so the relay always has
// working (if volatile) persistence.
func Open(ctx context.Context, cfg Config) HistoryStore {
	log := slog.Default().With("component", "store")

	switch strings.ToLower(cfg.Kind) {
	case "", KindMemory:
		log.Info("using in-memory history store")
		return NewMemoryStore()

	case KindMongo:
		if cfg.MongoURI == "" {
			log.Warn("mongodb storage selected but no URI configured, falling back to in-memory store")
			return NewMemoryStore()
		}
		ms, err := NewMongoStore(ctx, cfg.MongoURI, cfg.Database, cfg.Collection)
		if err != nil {
			log.Error("mongodb connection failed, falling back to in-memory store", "error", err)
			return NewMemoryStore()
		}
		log.Info("connected to mongodb history store", "database", cfg.Database, "collection", cfg.Collection)
		return ms

	default:
		log.Warn("unrecognized storage kind, falling back to in-memory store", "kind", cfg.Kind)
		return NewMemoryStore()
	}
}

package store

import (
	"context"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goanswer/internal/history"
)

// MemoryStore keeps conversation records in a process-local map. Everything
// is lost on restart. The mutex only protects the map itself; the
// read-modify-write cycle spanning a whole relay pipeline is still
// last-write-wins (see the package comment).
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*ConversationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*ConversationRecord)}
}

func (s *MemoryStore) Load(ctx context.Context, userID string) *ConversationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return newRecord()
	}

	// Hand out a copy so the caller's appends never alias stored state.
	cp := &ConversationRecord{
		History:        history.Clone(rec.History),
		ConversationID: rec.ConversationID,
		LastUpdated:    rec.LastUpdated,
	}
	if rec.UserInfo != nil {
		info := *rec.UserInfo
		cp.UserInfo = &info
	}
	return cp
}

func (s *MemoryStore) Save(ctx context.Context, userID string, turns []history.Turn, conversationID string, info *UserInfo) error {
	turns = history.Cap(turns)

	s.mu.Lock()
	defer s.mu.Unlock()

	// A nil info keeps the previous snapshot, like the durable backend.
	if info == nil {
		if prev, ok := s.records[userID]; ok {
			info = prev.UserInfo
		}
	}
	s.records[userID] = &ConversationRecord{
		History:        history.Clone(turns),
		ConversationID: conversationID,
		UserInfo:       info,
		LastUpdated:    time.Now().UTC(),
	}
	return nil
}

func (s *MemoryStore) Name() string { return KindMemory }

func (s *MemoryStore) Close(ctx context.Context) error { return nil }

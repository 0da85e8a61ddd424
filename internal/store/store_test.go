package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/nextlevelbuilder/goanswer/internal/history"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	turns := []history.Turn{
		{Role: history.RoleUser, Content: "what is go?"},
		{Role: history.RoleAssistant, Content: "a programming language"},
	}
	info := &UserInfo{ID: "42", Name: "sam", DisplayName: "Sam", IsBot: false}

	if err := s.Save(ctx, "42", turns, "conv-1", info); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec := s.Load(ctx, "42")
	if len(rec.History) != 2 {
		t.Fatalf("loaded %d turns, want 2", len(rec.History))
	}
	if rec.History[0] != turns[0] || rec.History[1] != turns[1] {
		t.Errorf("history mismatch: %+v", rec.History)
	}
	if rec.ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q, want %q", rec.ConversationID, "conv-1")
	}
	if rec.UserInfo == nil || *rec.UserInfo != *info {
		t.Errorf("UserInfo = %+v, want %+v", rec.UserInfo, info)
	}
	if rec.LastUpdated.IsZero() {
		t.Errorf("LastUpdated not set on save")
	}
}

func TestMemoryStore_LoadAbsentUser(t *testing.T) {
	s := NewMemoryStore()

	rec := s.Load(context.Background(), "nobody")
	if rec == nil {
		t.Fatal("Load returned nil for absent user")
	}
	if len(rec.History) != 0 {
		t.Errorf("absent user history = %+v, want empty", rec.History)
	}
	if rec.ConversationID != "" {
		t.Errorf("absent user ConversationID = %q, want empty", rec.ConversationID)
	}
	if rec.UserInfo != nil {
		t.Errorf("absent user UserInfo = %+v, want nil", rec.UserInfo)
	}
}

// TestMemoryStore_SaveCapsHistory verifies the retention invariant: writing
// more than MaxPairs exchanges keeps exactly the newest MaxTurns turns.
func TestMemoryStore_SaveCapsHistory(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var turns []history.Turn
	for i := 0; i < 14; i++ {
		turns = append(turns,
			history.Turn{Role: history.RoleUser, Content: fmt.Sprintf("q%d", i)},
			history.Turn{Role: history.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
	}

	if err := s.Save(ctx, "u", turns, "", nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec := s.Load(ctx, "u")
	if len(rec.History) != history.MaxTurns {
		t.Fatalf("stored %d turns, want %d", len(rec.History), history.MaxTurns)
	}
	if got := rec.History[0].Content; got != "q4" {
		t.Errorf("oldest surviving turn = %q, want %q", got, "q4")
	}
	if got := rec.History[len(rec.History)-1].Content; got != "a13" {
		t.Errorf("newest turn = %q, want %q", got, "a13")
	}
}

func TestMemoryStore_NilInfoKeepsSnapshot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Save(ctx, "u", nil, "c1", &UserInfo{ID: "u", Name: "sam"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, "u", nil, "c2", nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec := s.Load(ctx, "u")
	if rec.UserInfo == nil || rec.UserInfo.Name != "sam" {
		t.Errorf("UserInfo = %+v, want the earlier snapshot kept", rec.UserInfo)
	}
	if rec.ConversationID != "c2" {
		t.Errorf("ConversationID = %q, want the newest write", rec.ConversationID)
	}
}

// TestMemoryStore_LoadReturnsCopy ensures a caller appending to a loaded
// record cannot corrupt what is stored.
func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	turns := []history.Turn{
		{Role: history.RoleUser, Content: "q"},
		{Role: history.RoleAssistant, Content: "a"},
	}
	if err := s.Save(ctx, "u", turns, "c", nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec := s.Load(ctx, "u")
	rec.History[0].Content = "tampered"
	rec.History = append(rec.History, history.Turn{Role: history.RoleUser, Content: "extra"})
	rec.ConversationID = "other"

	fresh := s.Load(ctx, "u")
	if fresh.History[0].Content != "q" {
		t.Errorf("stored turn mutated through loaded record: %+v", fresh.History)
	}
	if len(fresh.History) != 2 {
		t.Errorf("stored history length changed: %d", len(fresh.History))
	}
	if fresh.ConversationID != "c" {
		t.Errorf("stored ConversationID changed: %q", fresh.ConversationID)
	}
}

func TestOpen_Fallbacks(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"unrecognized kind", Config{Kind: "redis"}},
		{"mongodb without uri", Config{Kind: KindMongo}},
		{"mixed case memory", Config{Kind: "Memory"}},
		{"empty kind", Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Open(context.Background(), tt.cfg)
			if s.Name() != KindMemory {
				t.Errorf("Open(%+v) picked %q, want %q", tt.cfg, s.Name(), KindMemory)
			}
		})
	}
}

// TestOpen_UnreachableMongoFallsBack covers the startup degradation path: a
// configured but unreachable MongoDB must yield a working in-memory store,
// and reads/writes after the fallback must succeed.
func TestOpen_UnreachableMongoFallsBack(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out the 5s connect timeout")
	}

	ctx := context.Background()
	s := Open(ctx, Config{
		Kind:       KindMongo,
		MongoURI:   "mongodb://127.0.0.1:1",
		Database:   "discord_bot_memory",
		Collection: "chat_histories",
	})

	if s.Name() != KindMemory {
		t.Fatalf("expected in-memory fallback, got %q", s.Name())
	}

	turns := []history.Turn{{Role: history.RoleUser, Content: "still alive?"}}
	if err := s.Save(ctx, "u", turns, "", nil); err != nil {
		t.Fatalf("Save after fallback: %v", err)
	}
	if rec := s.Load(ctx, "u"); len(rec.History) != 1 {
		t.Errorf("Load after fallback returned %d turns, want 1", len(rec.History))
	}
}

package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/nextlevelbuilder/goanswer/internal/history"
)

func TestAsk_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer": "42", "conversation_id": "conv-new"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key")
	res := c.Ask(context.Background(), "meaning of life?", nil, "conv-old")

	if res.Answer != "42" {
		t.Errorf("Answer = %q, want %q", res.Answer, "42")
	}
	if res.ConversationID != "conv-new" {
		t.Errorf("ConversationID = %q, want %q", res.ConversationID, "conv-new")
	}
}

// TestAsk_WireFormat pins the request shape: history must travel as a
// JSON-array string inside the JSON body, and a missing conversation ID
// must serialize as null.
func TestAsk_WireFormat(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"answer": "ok"}`))
	}))
	defer srv.Close()

	turns := []history.Turn{
		{Role: history.RoleUser, Content: "q1"},
		{Role: history.RoleAssistant, Content: "a1"},
		{Role: history.RoleUser, Content: "in flight"},
	}

	c := New(srv.URL, "secret")
	c.Ask(context.Background(), "in flight", turns, "")

	var question, apiKey, historyStr string
	if err := json.Unmarshal(got["question"], &question); err != nil || question != "in flight" {
		t.Errorf("question = %s (%v)", got["question"], err)
	}
	if err := json.Unmarshal(got["api_key"], &apiKey); err != nil || apiKey != "secret" {
		t.Errorf("api_key = %s (%v)", got["api_key"], err)
	}
	if string(got["conversation_id"]) != "null" {
		t.Errorf("conversation_id = %s, want null", got["conversation_id"])
	}

	// history is a string field whose content is itself a JSON array of
	// prompt/response pairs, minus the unanswered trailing turn.
	if err := json.Unmarshal(got["history"], &historyStr); err != nil {
		t.Fatalf("history is not a JSON string: %s", got["history"])
	}
	var pairs []history.QAPair
	if err := json.Unmarshal([]byte(historyStr), &pairs); err != nil {
		t.Fatalf("history string is not a JSON array: %q", historyStr)
	}
	if len(pairs) != 1 || pairs[0].Prompt != "q1" || pairs[0].Response != "a1" {
		t.Errorf("history pairs = %+v", pairs)
	}
}

// TestAsk_NoAPIKey verifies the short-circuit: no key means no network
// call at all, a configuration-error answer, and an untouched
// conversation ID.
func TestAsk_NoAPIKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	res := c.Ask(context.Background(), "anyone home?", nil, "conv-1")

	if n := calls.Load(); n != 0 {
		t.Errorf("made %d network calls, want 0", n)
	}
	if res.Answer != "Error: Backend API key is not configured." {
		t.Errorf("Answer = %q", res.Answer)
	}
	if res.ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q, want %q", res.ConversationID, "conv-1")
	}
}

func TestAsk_FailureModes(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantSuffix string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"detail": "boom"}`, http.StatusInternalServerError)
			},
			wantSuffix: "(Error: 500)",
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nothing here", http.StatusNotFound)
			},
			wantSuffix: "(Error: 404)",
		},
		{
			name: "garbage body on success status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>not json</html>"))
			},
			wantSuffix: "(Invalid Response Format)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := New(srv.URL, "key")
			res := c.Ask(context.Background(), "q", nil, "conv-keep")

			if !strings.HasSuffix(res.Answer, tt.wantSuffix) {
				t.Errorf("Answer = %q, want suffix %q", res.Answer, tt.wantSuffix)
			}
			if !strings.HasPrefix(res.Answer, "Sorry, I couldn't get an answer") {
				t.Errorf("Answer should lead with the generic failure text, got %q", res.Answer)
			}
			if res.ConversationID != "conv-keep" {
				t.Errorf("ConversationID = %q, want preserved %q", res.ConversationID, "conv-keep")
			}
		})
	}
}

func TestAsk_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := New(srv.URL, "key")
	res := c.Ask(context.Background(), "q", nil, "conv-keep")

	if !strings.HasSuffix(res.Answer, "(Network Error)") {
		t.Errorf("Answer = %q, want network error suffix", res.Answer)
	}
	if res.ConversationID != "conv-keep" {
		t.Errorf("ConversationID = %q, want preserved", res.ConversationID)
	}
}

func TestAsk_PartialSuccessBody(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantAns  string
		wantConv string
	}{
		{
			name:     "answer missing",
			body:     `{"conversation_id": "conv-new"}`,
			wantAns:  "Sorry, I couldn't get an answer from the backend service.",
			wantConv: "conv-new",
		},
		{
			name:     "conversation_id missing",
			body:     `{"answer": "hello"}`,
			wantAns:  "hello",
			wantConv: "conv-old",
		},
		{
			name:     "extra fields ignored",
			body:     `{"answer": "hello", "conversation_id": "c2", "sources": [1,2]}`,
			wantAns:  "hello",
			wantConv: "c2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(srv.URL, "key")
			res := c.Ask(context.Background(), "q", nil, "conv-old")

			if res.Answer != tt.wantAns {
				t.Errorf("Answer = %q, want %q", res.Answer, tt.wantAns)
			}
			if res.ConversationID != tt.wantConv {
				t.Errorf("ConversationID = %q, want %q", res.ConversationID, tt.wantConv)
			}
		})
	}
}

func TestExtractDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"structured detail", `{"detail": "quota exceeded"}`, "quota exceeded"},
		{"plain text", "Internal Server Error", "Internal Server Error"},
		{"json without detail", `{"error": "other"}`, `{"error": "other"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractDetail([]byte(tt.body)); got != tt.want {
				t.Errorf("extractDetail(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

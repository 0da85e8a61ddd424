// Package answer wraps the question-answering backend API.
//
// The client never surfaces an error to its caller: every failure mode is
// folded into a Result whose Answer is a terse user-facing failure string
// while the diagnostic detail goes to the log. The caller always has
// something sendable and the conversation ID survives all failures.
package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goanswer/internal/history"
)

const (
	// DefaultBaseURL is the hosted backend used when none is configured.
	DefaultBaseURL = "https://gptcloud.arc53.com"

	answerPath = "/api/answer"

	// requestTimeout bounds the whole call: dialing, writing, waiting and
	// reading the body. There is no retry.
	requestTimeout = 120 * time.Second
)

// User-facing failure strings. Failure categories carry a short suffix so
// users can report what kind of problem they hit; everything else stays in
// the logs.
const (
	msgNoAPIKey       = "Error: Backend API key is not configured."
	msgDefaultFailure = "Sorry, I couldn't get an answer from the backend service."
)

// Client calls the backend answer endpoint.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *slog.Logger
}

func New(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: requestTimeout},
		log:     slog.Default().With("component", "answer"),
	}
}

// Result is the outcome of an Ask call. Answer holds the backend's answer
// or a failure string. ConversationID is the server-assigned session ID
// when the backend returned one, otherwise whatever the caller passed in.
type Result struct {
	Answer         string
	ConversationID string
}

// askRequest is the wire shape of the backend request. History is a
// JSON-array string, not nested JSON; the backend requires it encoded that
// way. ConversationID serializes as null when no session exists yet.
type askRequest struct {
	Question       string  `json:"question"`
	APIKey         string  `json:"api_key"`
	History        string  `json:"history"`
	ConversationID *string `json:"conversation_id"`
}

// askResponse uses pointers so an absent field is distinguishable from an
// empty one; extra fields are ignored.
type askResponse struct {
	Answer         *string `json:"answer"`
	ConversationID *string `json:"conversation_id"`
}

// Ask sends one question with the paired transcript of prior turns. It
// blocks up to requestTimeout and always returns a usable Result.
func (c *Client) Ask(ctx context.Context, question string, turns []history.Turn, conversationID string) Result {
	fail := func(suffix string) Result {
		return Result{Answer: msgDefaultFailure + suffix, ConversationID: conversationID}
	}

	if c.apiKey == "" {
		c.log.Error("backend API key not configured, skipping call")
		return Result{Answer: msgNoAPIKey, ConversationID: conversationID}
	}

	transcript, err := json.Marshal(history.Pair(turns))
	if err != nil {
		// A broken transcript must not block the question itself.
		c.log.Warn("transcript marshal failed, sending empty history", "error", err)
		transcript = []byte("[]")
	}

	reqBody := askRequest{
		Question: question,
		APIKey:   c.apiKey,
		History:  string(transcript),
	}
	if conversationID != "" {
		reqBody.ConversationID = &conversationID
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		c.log.Error("marshal request failed", "error", err)
		return fail(" (Unexpected Error)")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+answerPath, bytes.NewReader(payload))
	if err != nil {
		c.log.Error("build request failed", "url", c.baseURL+answerPath, "error", err)
		return fail(" (Client Error)")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Error("backend request failed", "error", err)
		return fail(" (Network Error)")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Error("read backend response failed", "status", resp.StatusCode, "error", err)
		return fail(" (Network Error)")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Error("backend returned error", "status", resp.StatusCode, "detail", extractDetail(body))
		return fail(fmt.Sprintf(" (Error: %d)", resp.StatusCode))
	}

	var parsed askResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.log.Error("unparseable backend response", "error", err, "body", snippet(body))
		return fail(" (Invalid Response Format)")
	}

	result := Result{Answer: msgDefaultFailure, ConversationID: conversationID}
	if parsed.Answer != nil {
		result.Answer = *parsed.Answer
	}
	if parsed.ConversationID != nil {
		result.ConversationID = *parsed.ConversationID
	}
	return result
}

// extractDetail pulls the backend's structured error message out of a
// non-2xx body, falling back to the raw text.
func extractDetail(body []byte) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Detail != "" {
		return e.Detail
	}
	return snippet(body)
}

func snippet(b []byte) string {
	const max = 200
	s := strings.ToValidUTF8(string(b), "")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

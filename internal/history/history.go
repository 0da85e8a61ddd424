// Package history holds the conversation turn model shared by the store,
// the answer client, and the relay pipeline.
//
// A history is an oldest-first sequence of turns. User and assistant turns
// generally alternate, but a trailing unpaired user turn (the question
// currently in flight) is normal and is preserved in storage. The backend
// API consumes history in a different shape: completed question/answer
// pairs only, so Pair drops the in-flight turn when building the transcript
// (it travels separately as the current question).
package history

// Turn roles. Anything else is treated as malformed and skipped by Pair.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role    string `json:"role" bson:"role"`
	Content string `json:"content" bson:"content"`
}

// QAPair is one completed question/answer exchange in the wire shape the
// backend expects.
type QAPair struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// Retention bounds applied on every store write.
const (
	MaxPairs = 10
	MaxTurns = 2 * MaxPairs
)

// Pair converts a turn sequence into completed prompt/response pairs.
//
// Scanning left to right: a user turn immediately followed by an assistant
// turn emits one pair and advances past both. Any other turn (an assistant
// turn with no preceding user turn, an unknown role, or a trailing user
// turn with no answer yet) is skipped without output. Order is preserved.
// The input is never mutated and the result is always non-nil, so it
// marshals to a JSON array even when empty.
func Pair(turns []Turn) []QAPair {
	pairs := make([]QAPair, 0, len(turns)/2)
	i := 0
	for i < len(turns) {
		if turns[i].Role == RoleUser && i+1 < len(turns) && turns[i+1].Role == RoleAssistant {
			pairs = append(pairs, QAPair{Prompt: turns[i].Content, Response: turns[i+1].Content})
			i += 2
			continue
		}
		i++
	}
	return pairs
}

// Cap truncates a history to the newest MaxTurns turns. Shorter histories
// are returned unchanged.
func Cap(turns []Turn) []Turn {
	if len(turns) <= MaxTurns {
		return turns
	}
	return turns[len(turns)-MaxTurns:]
}

// Clone returns an independent copy of a turn sequence. Used by the store
// so callers never alias persisted state.
func Clone(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

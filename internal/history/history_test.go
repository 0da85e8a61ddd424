package history

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestPair(t *testing.T) {
	tests := []struct {
		name  string
		turns []Turn
		want  []QAPair
	}{
		{
			name:  "empty",
			turns: []Turn{},
			want:  []QAPair{},
		},
		{
			name:  "single completed exchange",
			turns: []Turn{{RoleUser, "hi"}, {RoleAssistant, "hello"}},
			want:  []QAPair{{Prompt: "hi", Response: "hello"}},
		},
		{
			name:  "trailing in-flight question dropped",
			turns: []Turn{{RoleUser, "hi"}, {RoleAssistant, "hello"}, {RoleUser, "and now?"}},
			want:  []QAPair{{Prompt: "hi", Response: "hello"}},
		},
		{
			name:  "lone user turn",
			turns: []Turn{{RoleUser, "anyone?"}},
			want:  []QAPair{},
		},
		{
			name:  "assistant turn with no question skipped",
			turns: []Turn{{RoleAssistant, "orphan"}, {RoleUser, "q"}, {RoleAssistant, "a"}},
			want:  []QAPair{{Prompt: "q", Response: "a"}},
		},
		{
			name:  "double user turn pairs the second",
			turns: []Turn{{RoleUser, "first"}, {RoleUser, "second"}, {RoleAssistant, "a"}},
			want:  []QAPair{{Prompt: "second", Response: "a"}},
		},
		{
			name:  "unknown role skipped",
			turns: []Turn{{RoleUser, "q"}, {"system", "noise"}, {RoleUser, "q2"}, {RoleAssistant, "a2"}},
			want:  []QAPair{{Prompt: "q2", Response: "a2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pair(tt.turns)
			if len(got) != len(tt.want) {
				t.Fatalf("Pair() returned %d pairs, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("pair %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// TestPair_PreservesOrder verifies pairs come out in first-occurrence order
// of their user turns, for a history long enough to expose reordering.
func TestPair_PreservesOrder(t *testing.T) {
	var turns []Turn
	for i := 0; i < 15; i++ {
		turns = append(turns,
			Turn{RoleUser, fmt.Sprintf("q%d", i)},
			Turn{RoleAssistant, fmt.Sprintf("a%d", i)},
		)
	}

	pairs := Pair(turns)
	if len(pairs) != 15 {
		t.Fatalf("got %d pairs, want 15", len(pairs))
	}
	for i, p := range pairs {
		if p.Prompt != fmt.Sprintf("q%d", i) || p.Response != fmt.Sprintf("a%d", i) {
			t.Errorf("pair %d out of order: %+v", i, p)
		}
	}
}

func TestPair_DoesNotMutateInput(t *testing.T) {
	turns := []Turn{{RoleUser, "q"}, {RoleAssistant, "a"}, {RoleUser, "pending"}}
	Pair(turns)

	if turns[2].Role != RoleUser || turns[2].Content != "pending" {
		t.Errorf("input mutated: %+v", turns)
	}
	if len(turns) != 3 {
		t.Errorf("input length changed: %d", len(turns))
	}
}

// TestPair_EmptyMarshalsToArray pins the wire contract: an empty transcript
// must serialize as "[]", never "null".
func TestPair_EmptyMarshalsToArray(t *testing.T) {
	b, err := json.Marshal(Pair(nil))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "[]" {
		t.Errorf("empty transcript marshals to %q, want %q", b, "[]")
	}
}

func TestCap(t *testing.T) {
	mk := func(n int) []Turn {
		var turns []Turn
		for i := 0; i < n; i++ {
			turns = append(turns,
				Turn{RoleUser, fmt.Sprintf("q%d", i)},
				Turn{RoleAssistant, fmt.Sprintf("a%d", i)},
			)
		}
		return turns
	}

	tests := []struct {
		name      string
		turns     []Turn
		wantLen   int
		wantFirst string
	}{
		{"under limit", mk(3), 6, "q0"},
		{"at limit", mk(10), 20, "q0"},
		{"over limit drops oldest", mk(14), 20, "q4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cap(tt.turns)
			if len(got) != tt.wantLen {
				t.Fatalf("Cap() length = %d, want %d", len(got), tt.wantLen)
			}
			if got[0].Content != tt.wantFirst {
				t.Errorf("first turn after cap = %q, want %q", got[0].Content, tt.wantFirst)
			}
			if last := got[len(got)-1]; last.Role != RoleAssistant {
				t.Errorf("capped history should end on the assistant turn, got role %q", last.Role)
			}
		})
	}
}

func TestClone_Independent(t *testing.T) {
	orig := []Turn{{RoleUser, "q"}, {RoleAssistant, "a"}}
	cp := Clone(orig)

	cp[0].Content = "changed"
	if orig[0].Content != "q" {
		t.Errorf("Clone shares backing array with input")
	}
	if Clone(nil) != nil {
		t.Errorf("Clone(nil) should be nil")
	}
}

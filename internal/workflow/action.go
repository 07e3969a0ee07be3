package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/engram/internal/storage"
)

// ActionKind enumerates the workflow action types the executor knows.
type ActionKind string

const (
	ActionCreateEntity ActionKind = "create_entity"
	ActionNotify       ActionKind = "notify"
	ActionAIReasoning  ActionKind = "ai_reasoning"
	ActionAINudge      ActionKind = "ai_nudge"
	ActionUnknown      ActionKind = "unknown"
)

// Params carries the per-action configuration. Which fields matter
// depends on the kind; unused ones stay empty.
type Params struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Template string `json:"template"`
	Prompt   string `json:"prompt"`
}

// Action is one decoded workflow step. Unknown wire types decode to
// ActionUnknown, which the executor skips instead of failing the chain.
type Action struct {
	Kind ActionKind
	// CreateKind is the entity type for ActionCreateEntity, taken from
	// the create_* suffix of the wire type.
	CreateKind storage.EntityType
	// WireType preserves the raw type string for logging unknowns.
	WireType string
	Params   Params
}

type wireAction struct {
	Type   string `json:"type"`
	Params Params `json:"params"`
}

// DecodeActions parses the stored actions JSON into typed actions. Any
// type of the form create_<kind> creates an entity of that kind; the
// remaining recognized types map one to one. Decoding is strict about
// JSON shape but lenient about unknown types.
func DecodeActions(raw string) ([]Action, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var wire []wireAction
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("parsing actions: %w", err)
	}

	actions := make([]Action, 0, len(wire))
	for _, w := range wire {
		a := Action{WireType: w.Type, Params: w.Params}
		switch {
		case w.Type == string(ActionNotify):
			a.Kind = ActionNotify
		case w.Type == string(ActionAIReasoning):
			a.Kind = ActionAIReasoning
		case w.Type == string(ActionAINudge):
			a.Kind = ActionAINudge
		case strings.HasPrefix(w.Type, "create_"):
			a.Kind = ActionCreateEntity
			a.CreateKind = storage.EntityType(strings.ToUpper(strings.TrimPrefix(w.Type, "create_")))
		default:
			a.Kind = ActionUnknown
		}
		actions = append(actions, a)
	}
	return actions, nil
}

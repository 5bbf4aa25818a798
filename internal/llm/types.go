package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Roles for conversation turns. The engine only ever sends user and
// assistant turns; tool results are folded into a synthesized user turn
// before transmission.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// BlankContentPlaceholder replaces empty message content before
// transmission. Providers reject blank turns, and an empty assistant
// turn usually means the model spent its whole response on tool calls.
const BlankContentPlaceholder = "Continuing with the task."

// Message is one turn of a conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCall is a tool invocation requested by the model. Arguments are
// normalized to a structured map at the provider boundary — see
// [DecodeArguments]. ID correlates the call with its result.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// DecodeArguments normalizes tool-call arguments received from a
// provider. Models (and provider SDKs) deliver arguments as either a
// JSON-encoded string or an already-decoded map; everything downstream
// of this function sees only map[string]any.
func DecodeArguments(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		return decodeArgumentsJSON([]byte(v))
	case []byte:
		return decodeArgumentsJSON(v)
	case json.RawMessage:
		return decodeArgumentsJSON(v)
	default:
		return nil, fmt.Errorf("unsupported argument type %T", raw)
	}
}

func decodeArgumentsJSON(data []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return args, nil
}

// SanitizeMessages returns a copy of messages with blank turns replaced
// by [BlankContentPlaceholder]. A transcript sent to a provider must
// never contain a turn with empty content.
func SanitizeMessages(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			m.Content = BlankContentPlaceholder
		}
		out = append(out, m)
	}
	return out
}

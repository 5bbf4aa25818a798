package llm

import (
	"errors"
	"testing"
)

func TestDecodeArgumentsFromMap(t *testing.T) {
	in := map[string]any{"file_path": "main.go", "content": "package main"}
	args, err := DecodeArguments(in)
	if err != nil {
		t.Fatalf("DecodeArguments: %v", err)
	}
	if args["file_path"] != "main.go" {
		t.Errorf("file_path = %v, want main.go", args["file_path"])
	}
}

func TestDecodeArgumentsFromJSONString(t *testing.T) {
	args, err := DecodeArguments(`{"file_path": "a.py", "lines": 3}`)
	if err != nil {
		t.Fatalf("DecodeArguments: %v", err)
	}
	if args["file_path"] != "a.py" {
		t.Errorf("file_path = %v, want a.py", args["file_path"])
	}
	// JSON numbers decode as float64.
	if args["lines"] != float64(3) {
		t.Errorf("lines = %v, want 3", args["lines"])
	}
}

func TestDecodeArgumentsEmpty(t *testing.T) {
	for _, raw := range []any{nil, "", "   "} {
		args, err := DecodeArguments(raw)
		if err != nil {
			t.Fatalf("DecodeArguments(%v): %v", raw, err)
		}
		if len(args) != 0 {
			t.Errorf("DecodeArguments(%v) = %v, want empty map", raw, args)
		}
	}
}

func TestDecodeArgumentsInvalid(t *testing.T) {
	if _, err := DecodeArguments("not json"); err == nil {
		t.Error("expected error for malformed JSON string")
	}
	if _, err := DecodeArguments(42); err == nil {
		t.Error("expected error for unsupported type")
	}
}

func TestSanitizeMessagesReplacesBlankContent(t *testing.T) {
	in := []Message{
		{Role: RoleUser, Content: "implement the plan"},
		{Role: RoleAssistant, Content: "   "},
		{Role: RoleUser, Content: ""},
	}
	out := SanitizeMessages(in)

	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[0].Content != "implement the plan" {
		t.Errorf("non-blank content modified: %q", out[0].Content)
	}
	for _, i := range []int{1, 2} {
		if out[i].Content != BlankContentPlaceholder {
			t.Errorf("message %d content = %q, want placeholder", i, out[i].Content)
		}
	}
	// Input must not be mutated.
	if in[1].Content != "   " {
		t.Error("SanitizeMessages mutated its input")
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &TransportError{Provider: "anthropic", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if !IsTransport(err) {
		t.Error("IsTransport(TransportError) = false")
	}
	if IsTransport(cause) {
		t.Error("IsTransport(plain error) = true")
	}
}

package mcp

import "testing"

func TestPromptRegistry_Descriptors_ReturnsBothPrompts(t *testing.T) {
	reg := NewPromptRegistry()
	descriptors := reg.Descriptors()
	if len(descriptors) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(descriptors))
	}
	if descriptors[0].Name != "draft-task-from-description" {
		t.Fatalf("expected draft-task-from-description first, got %s", descriptors[0].Name)
	}
	if descriptors[1].Name != "explain-execution-failure" {
		t.Fatalf("expected explain-execution-failure second, got %s", descriptors[1].Name)
	}
}

func TestPromptRegistry_Get_RequiresArguments(t *testing.T) {
	reg := NewPromptRegistry()
	_, err := reg.Get("draft-task-from-description", map[string]string{})
	if err == nil {
		t.Fatal("expected an error when the required description argument is missing")
	}
}

func TestPromptRegistry_Get_RendersWithRequiredArguments(t *testing.T) {
	reg := NewPromptRegistry()
	messages, err := reg.Get("draft-task-from-description", map[string]string{"description": "sum two numbers"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(messages) != 1 || len(messages[0].Content) != 1 {
		t.Fatalf("expected one message with one content block, got %+v", messages)
	}
	if messages[0].Content[0].Text == "" {
		t.Fatal("expected rendered prompt text to be non-empty")
	}
}

func TestPromptRegistry_Get_UnknownPromptErrors(t *testing.T) {
	reg := NewPromptRegistry()
	_, err := reg.Get("does-not-exist", nil)
	if err == nil {
		t.Fatal("expected an error for an unknown prompt name")
	}
}

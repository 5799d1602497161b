package mcp

import (
	"fmt"
)

// PromptRegistry serves the static prompt catalogue, grounded on
// mcp-north-cloud/internal/mcp/prompts.go's name-to-template table.
type PromptRegistry struct {
	prompts map[string]promptDefinition
}

type promptDefinition struct {
	descriptor PromptDescriptor
	render     func(args map[string]string) []PromptMessage
}

func NewPromptRegistry() *PromptRegistry {
	r := &PromptRegistry{prompts: make(map[string]promptDefinition)}
	r.register(promptDefinition{
		descriptor: PromptDescriptor{
			Name:        "draft-task-from-description",
			Description: "Draft a JavaScript task implementation from a plain-language description.",
			Arguments: []PromptArgument{
				{Name: "description", Description: "What the task should do", Required: true},
				{Name: "input_shape", Description: "Expected JSON input shape, if known", Required: false},
			},
		},
		render: func(args map[string]string) []PromptMessage {
			prompt := fmt.Sprintf(
				"Write a Ratchet task (a JavaScript `run(input)` function) that does the following:\n\n%s",
				args["description"],
			)
			if shape := args["input_shape"]; shape != "" {
				prompt += fmt.Sprintf("\n\nThe input will look like:\n%s", shape)
			}
			return []PromptMessage{{Role: "user", Content: []ContentBlock{{Type: "text", Text: prompt}}}}
		},
	})
	r.register(promptDefinition{
		descriptor: PromptDescriptor{
			Name:        "explain-execution-failure",
			Description: "Explain why a task execution failed and suggest a fix.",
			Arguments: []PromptArgument{
				{Name: "execution_id", Description: "UUID of the failed execution", Required: true},
				{Name: "error_message", Description: "The execution's recorded error message", Required: true},
			},
		},
		render: func(args map[string]string) []PromptMessage {
			prompt := fmt.Sprintf(
				"Execution %s failed with:\n\n%s\n\nExplain the likely cause and suggest a fix to the task's script.",
				args["execution_id"], args["error_message"],
			)
			return []PromptMessage{{Role: "user", Content: []ContentBlock{{Type: "text", Text: prompt}}}}
		},
	})
	return r
}

func (r *PromptRegistry) register(def promptDefinition) {
	r.prompts[def.descriptor.Name] = def
}

// Descriptors returns the prompts/list payload.
func (r *PromptRegistry) Descriptors() []PromptDescriptor {
	out := make([]PromptDescriptor, 0, len(r.prompts))
	for _, name := range []string{"draft-task-from-description", "explain-execution-failure"} {
		if def, ok := r.prompts[name]; ok {
			out = append(out, def.descriptor)
		}
	}
	return out
}

// Get renders the named prompt's messages against args, validating that
// every required argument was supplied.
func (r *PromptRegistry) Get(name string, args map[string]string) ([]PromptMessage, error) {
	def, ok := r.prompts[name]
	if !ok {
		return nil, fmt.Errorf("unknown prompt %q", name)
	}
	for _, arg := range def.descriptor.Arguments {
		if arg.Required && args[arg.Name] == "" {
			return nil, fmt.Errorf("missing required argument %q", arg.Name)
		}
	}
	return def.render(args), nil
}

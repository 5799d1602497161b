package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRootCommand_RegistersAllSubcommands(t *testing.T) {
	root := newRootCommand()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}

	assert.True(t, names["serve"])
	assert.True(t, names["mcp-serve"])
	assert.True(t, names["tools"])
	assert.True(t, names["test"])
}

func TestNewRootCommand_HasConfigFlag(t *testing.T) {
	root := newRootCommand()
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

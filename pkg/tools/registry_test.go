package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubTool(name string) Tool {
	return &fakeTool{
		name: name,
		execFn: func(_ context.Context, _ map[string]any) (string, error) {
			return "", nil
		},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(stubTool("alpha")))
	require.NoError(t, reg.Register(stubTool("beta")))

	tool, err := reg.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", tool.Name())

	_, err = reg.Get("gamma")
	assert.Error(t, err)
	assert.Equal(t, 2, reg.Len())
}

func TestRegistryRejectsDuplicatesAndNil(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(stubTool("alpha")))

	err := reg.Register(stubTool("alpha"))
	assert.Error(t, err)

	err = reg.Register(nil)
	assert.Error(t, err)
}

func TestRegistryDefinitionsSorted(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(stubTool("zeta")))
	require.NoError(t, reg.Register(stubTool("alpha")))
	require.NoError(t, reg.Register(stubTool("mid")))

	defs := reg.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, []string{defs[0].Name, defs[1].Name, defs[2].Name})
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.Names())
}

func TestRegistryPromptDocumentation(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(stubTool("alpha")))

	docs := reg.PromptDocumentation()
	assert.Contains(t, docs, "## Available Tools")
	assert.Contains(t, docs, "alpha")
}

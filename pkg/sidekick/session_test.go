package sidekick

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sidekick/pkg/llm"
)

func TestSessionRegistryCreateAndGet(t *testing.T) {
	reg := NewSessionRegistry()

	a := reg.GetOrCreate("a")
	again := reg.GetOrCreate("a")
	assert.Same(t, a, again)
	assert.Equal(t, 1, reg.Len())

	b := reg.GetOrCreate("b")
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, reg.Len())

	got, ok := reg.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestSessionRegistryGeneratesID(t *testing.T) {
	reg := NewSessionRegistry()

	first := reg.GetOrCreate("")
	second := reg.GetOrCreate("")
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID, "each empty-id call creates a distinct session")
	assert.Equal(t, 2, reg.Len())
}

func TestSessionRegistryEvict(t *testing.T) {
	reg := NewSessionRegistry()
	reg.GetOrCreate("a")
	reg.Evict("a")
	assert.Equal(t, 0, reg.Len())

	// Evicting an unknown id is a no-op.
	reg.Evict("ghost")
}

func TestSessionLastAssistantContent(t *testing.T) {
	sess := &SessionState{}
	assert.Equal(t, "", sess.LastAssistantContent())

	sess.Append(
		llm.Message{Role: llm.RoleUser, Content: "q"},
		llm.Message{Role: llm.RoleAssistant, Content: "a1"},
		llm.Message{Role: llm.RoleTool, Content: "t"},
	)
	assert.Equal(t, "a1", sess.LastAssistantContent())
}

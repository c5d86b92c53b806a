package reason

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundline/groundline/pkg/llm"
)

func TestGenerate_BuildsPromptFromContext(t *testing.T) {
	client := &scriptedLLM{handlers: []scriptedHandler{
		{response: "Romaine, parmesan, and croutons."},
	}}
	s := NewSynthesizer(client)

	answer := s.Generate(context.Background(),
		"What is in a caesar salad?",
		"romaine lettuce\n\n---\n\nparmesan and croutons",
		"You are a cooking assistant.", "")

	assert.Equal(t, "Romaine, parmesan, and croutons.", answer)
	require.Len(t, client.calls, 1)
	call := client.calls[0]
	assert.Equal(t, llm.KindAdvanced, call.Kind)
	assert.Equal(t, float32(0.3), call.Temperature)
	assert.Equal(t, "What is in a caesar salad?", call.User)
	assert.True(t, strings.HasPrefix(call.System, "You are a cooking assistant."))
	assert.Contains(t, call.System, "RETRIEVED KNOWLEDGE BASE CONTEXT:")
	assert.Contains(t, call.System, "parmesan and croutons")
	assert.NotContains(t, call.System, "MULTIMODAL INPUT (User uploaded media):")
}

func TestGenerate_MultimodalSectionIncluded(t *testing.T) {
	client := &scriptedLLM{handlers: []scriptedHandler{{response: "ok"}}}
	s := NewSynthesizer(client)

	s.Generate(context.Background(), "What is in the image?", "ctx", "prompt",
		"[Image] A bowl of salad with croutons")

	require.Len(t, client.calls, 1)
	assert.Contains(t, client.calls[0].System, "MULTIMODAL INPUT (User uploaded media):")
	assert.Contains(t, client.calls[0].System, "[Image] A bowl of salad with croutons")
}

func TestGenerate_ProviderErrorReturnsApology(t *testing.T) {
	client := &scriptedLLM{handlers: []scriptedHandler{{err: errors.New("rate limited")}}}
	s := NewSynthesizer(client)

	answer := s.Generate(context.Background(), "q", "ctx", "prompt", "")
	assert.Equal(t, synthesizerApology, answer)
}

func TestGenerate_ContextTruncated(t *testing.T) {
	client := &scriptedLLM{handlers: []scriptedHandler{{response: "ok"}}}
	s := NewSynthesizer(client)

	s.Generate(context.Background(), "q", strings.Repeat("x", maxContextChars+5000), "prompt", "")

	require.Len(t, client.calls, 1)
	// The prompt carries a fixed instruction block around the context,
	// so allow for that overhead while catching an untruncated context.
	assert.Less(t, len(client.calls[0].System), maxContextChars+1000)
	assert.Contains(t, client.calls[0].System, strings.Repeat("x", maxContextChars))
	assert.NotContains(t, client.calls[0].System, strings.Repeat("x", maxContextChars+1))
}

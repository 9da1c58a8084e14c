package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dunimd/zi/internal/record"
	"github.com/dunimd/zi/internal/registry"
)

func newReg(t *testing.T) *registry.Registry {
	r := registry.New()
	Register(r)
	return r
}

func TestTokenCountWritesEstimate(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("llm.token_count", map[string]any{})
	require.NoError(t, err)

	batch := record.Batch{{Payload: map[string]any{"text": "hello there friend"}}}
	out, err := op.Apply(batch)
	require.NoError(t, err)
	count, ok := out[0].Metadata["token_count"].(int)
	require.True(t, ok)
	assert.Greater(t, count, 0)
}

func TestConversationFormatChatML(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("llm.conversation_format", map[string]any{"format": "chatml"})
	require.NoError(t, err)

	batch := record.Batch{{Payload: map[string]any{
		"conversation": map[string]any{
			"system": "be nice",
			"turns":  []any{"hi", "hello back"},
		},
	}}}
	out, err := op.Apply(batch)
	require.NoError(t, err)
	messages, ok := out[0].Payload.(map[string]any)["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 3)
	first := messages[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
}

func TestConversationFormatOpenAIPassthrough(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("llm.conversation_format", map[string]any{"format": "openai"})
	require.NoError(t, err)

	batch := record.Batch{{Payload: map[string]any{
		"conversation": []any{map[string]any{"role": "user", "content": "hi"}},
	}}}
	out, err := op.Apply(batch)
	require.NoError(t, err)
	messages := out[0].Payload.(map[string]any)["messages"].([]any)
	assert.Len(t, messages, 1)
}

func TestContextLengthFilter(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("llm.context_length", map[string]any{
		"action": "filter", "min_tokens": 0, "max_tokens": 2,
	})
	require.NoError(t, err)

	batch := record.Batch{
		{Payload: map[string]any{"text": "short"}},
		{Payload: map[string]any{"text": "this text has rather a lot more words in it than the other"}},
	}
	out, err := op.Apply(batch)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestContextLengthSplitSuffixesID(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("llm.context_length", map[string]any{
		"action": "split", "max_tokens": 2, "overlap": 0,
	})
	require.NoError(t, err)

	id := "doc-1"
	longText := ""
	for i := 0; i < 50; i++ {
		longText += "word "
	}
	batch := record.Batch{{ID: &id, Payload: map[string]any{"text": longText}}}
	out, err := op.Apply(batch)
	require.NoError(t, err)
	require.Greater(t, len(out), 1)
	assert.Contains(t, *out[0].ID, "doc-1_chunk_0")
}

func TestQAExtractHeuristic(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("llm.qa_extract", map[string]any{})
	require.NoError(t, err)

	text := "Q: What is Zi?\nA: A record processing engine.\nQ: What language?\nA: Go."
	batch := record.Batch{{Payload: map[string]any{"text": text}}}
	out, err := op.Apply(batch)
	require.NoError(t, err)
	pairs, ok := out[0].Payload.(map[string]any)["qa_pairs"].([]any)
	require.True(t, ok)
	require.Len(t, pairs, 2)
	first := pairs[0].(map[string]any)
	assert.Equal(t, "What is Zi?", first["question"])
}

func TestInstructionFormatAlpaca(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("llm.instruction_format", map[string]any{"format": "alpaca"})
	require.NoError(t, err)

	batch := record.Batch{{Payload: map[string]any{"instruction": "Summarize this.", "input": "long text"}}}
	out, err := op.Apply(batch)
	require.NoError(t, err)
	formatted := out[0].Payload.(map[string]any)["formatted"].(string)
	assert.Contains(t, formatted, "### Instruction:")
	assert.Contains(t, formatted, "### Input:")
}

func TestInstructionFormatCustomTemplate(t *testing.T) {
	r := newReg(t)
	op, err := r.Instantiate("llm.instruction_format", map[string]any{
		"format": "custom", "template": "I: {{instruction}} / IN: {{input}}",
	})
	require.NoError(t, err)

	batch := record.Batch{{Payload: map[string]any{"instruction": "do X", "input": "Y"}}}
	out, err := op.Apply(batch)
	require.NoError(t, err)
	formatted := out[0].Payload.(map[string]any)["formatted"].(string)
	assert.Equal(t, "I: do X / IN: Y", formatted)
}

func TestInstructionFormatCustomRequiresTemplate(t *testing.T) {
	r := newReg(t)
	_, err := r.Instantiate("llm.instruction_format", map[string]any{"format": "custom"})
	assert.Error(t, err)
}

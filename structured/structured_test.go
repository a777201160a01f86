package structured

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbxark/leadagent/llmtest"
)

type companyArgs struct {
	Company string `json:"company" jsonschema:"description=Company name"`
}

func promptFor(ctx context.Context, in string) ([]*schema.Message, error) {
	return []*schema.Message{schema.SystemMessage("extract"), schema.UserMessage(in)}, nil
}

func TestChainInvoke(t *testing.T) {
	t.Run("Should decode the forced tool call", func(t *testing.T) {
		m := llmtest.NewModel().ReplyTool("extract_company", `{"company":"Acme"}`)
		chain, err := NewChain[string, companyArgs](m, promptFor, "extract_company", "extract the company")
		require.NoError(t, err)

		out, err := chain.Invoke(context.Background(), "trabalho na Acme")
		require.NoError(t, err)
		assert.Equal(t, "Acme", out.Company)
		require.Len(t, m.Calls(), 1)
		assert.Equal(t, "trabalho na Acme", m.Calls()[0][1].Content)
	})

	t.Run("Should fail when the model answers without a tool call", func(t *testing.T) {
		m := llmtest.NewModel().Reply("sem ferramenta")
		chain, err := NewChain[string, companyArgs](m, promptFor, "extract_company", "extract the company")
		require.NoError(t, err)

		_, err = chain.Invoke(context.Background(), "x")
		assert.ErrorIs(t, err, ErrNoToolCall)
	})

	t.Run("Should propagate model failures", func(t *testing.T) {
		boom := errors.New("rate limited")
		m := llmtest.NewModel().Fail(boom)
		chain, err := NewChain[string, companyArgs](m, promptFor, "extract_company", "extract the company")
		require.NoError(t, err)

		_, err = chain.Invoke(context.Background(), "x")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Should treat empty arguments as an empty result", func(t *testing.T) {
		m := llmtest.NewModel().ReplyTool("extract_company", "")
		chain, err := NewChain[string, companyArgs](m, promptFor, "extract_company", "extract the company")
		require.NoError(t, err)

		out, err := chain.Invoke(context.Background(), "x")
		require.NoError(t, err)
		assert.Empty(t, out.Company)
	})
}

func TestNewChainRequiresModel(t *testing.T) {
	_, err := NewChain[string, companyArgs](nil, promptFor, "extract_company", "d")
	assert.Error(t, err)
}

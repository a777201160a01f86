package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/leadagent/structured"
	"github.com/tbxark/leadagent/types"
)

const (
	ToolName        = "extract_lead"
	toolDescription = "Record lead details explicitly stated by the prospect. Leave a field empty when it was not mentioned."
)

const defaultSystemPrompt = `You extract lead qualification data from a single message written by a prospect talking to a sales assistant.
Only report information the prospect states explicitly in the message. Never guess.
Fields already known are listed below; do not repeat them.

Known fields:
%s`

type toolInput struct {
	Utterance string
	Current   types.LeadProfile
}

// ToolBasedExtractor asks the chat model, through a forced tool call, for the
// fields the heuristics cannot see (company, need, deadline).
type ToolBasedExtractor struct {
	chain *structured.Chain[toolInput, types.LeadUpdate]
}

func NewToolBasedExtractor(chatModel model.ToolCallingChatModel) (*ToolBasedExtractor, error) {
	chain, err := structured.NewChain[toolInput, types.LeadUpdate](chatModel, buildPrompt, ToolName, toolDescription)
	if err != nil {
		return nil, fmt.Errorf("create extraction chain failed: %w", err)
	}
	return &ToolBasedExtractor{chain: chain}, nil
}

func (t *ToolBasedExtractor) Extract(ctx context.Context, utterance string, current types.LeadProfile) (*types.LeadUpdate, error) {
	if strings.TrimSpace(utterance) == "" {
		return nil, nil
	}
	proposed, err := t.chain.Invoke(ctx, toolInput{Utterance: utterance, Current: current})
	if err != nil {
		return nil, err
	}
	return current.Missing(proposed), nil
}

func buildPrompt(ctx context.Context, in toolInput) ([]*schema.Message, error) {
	return []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(defaultSystemPrompt, formatKnown(in.Current))),
		schema.UserMessage(in.Utterance),
	}, nil
}

func formatKnown(p types.LeadProfile) string {
	fields := []struct{ name, value string }{
		{"name", p.Name},
		{"email", p.Email},
		{"company", p.Company},
		{"need", p.Need},
		{"deadline", p.Deadline},
	}
	var sb strings.Builder
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		sb.WriteString("- ")
		sb.WriteString(f.name)
		sb.WriteString(": ")
		sb.WriteString(f.value)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return "(none)"
	}
	return strings.TrimRight(sb.String(), "\n")
}

var _ Extractor = (*ToolBasedExtractor)(nil)

package transcript

import (
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/leadagent/types"
)

// Build assembles the prompt: preamble, prior turns in their original order, then the new utterance.
func Build(preamble string, turns []types.Turn, utterance string) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turns)+2)
	messages = append(messages, schema.SystemMessage(preamble))
	for _, turn := range turns {
		messages = append(messages, toMessage(turn))
	}
	messages = append(messages, schema.UserMessage(utterance))
	return messages
}

func toMessage(turn types.Turn) *schema.Message {
	if turn.Role == types.RoleAssistant {
		return schema.AssistantMessage(turn.Content, nil)
	}
	return schema.UserMessage(turn.Content)
}

package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
)

var _ adk.Agent = (*Agent)(nil)

const defaultSessionID = "default"

// Agent exposes a Service to eino's ADK runner. The session is taken from
// WithSessionID on the run context and created on first use.
type Agent struct {
	name        string
	description string
	service     *Service
}

func NewAgent(name, description string, service *Service) *Agent {
	return &Agent{
		name:        name,
		description: description,
		service:     service,
	}
}

func (a *Agent) Name(ctx context.Context) string {
	return a.name
}

func (a *Agent) Description(ctx context.Context) string {
	return a.description
}

func (a *Agent) Run(ctx context.Context, input *adk.AgentInput, options ...adk.AgentRunOption) *adk.AsyncIterator[*adk.AgentEvent] {
	iter, gen := adk.NewAsyncIteratorPair[*adk.AgentEvent]()
	go func() {
		defer func() {
			e := recover()
			if e != nil {
				gen.Send(&adk.AgentEvent{
					Err: fmt.Errorf("recover from panic: %v", e),
				})
			}
			gen.Close()
		}()
		if input == nil || len(input.Messages) == 0 {
			gen.Send(&adk.AgentEvent{
				Err: fmt.Errorf("no messages in input"),
			})
			return
		}
		sessionID, ok := SessionIDFromContext(ctx)
		if !ok {
			sessionID = defaultSessionID
		}
		if _, err := a.service.Lead(ctx, sessionID); errors.Is(err, ErrSessionNotFound) {
			if _, err := a.service.InitSession(ctx, sessionID); err != nil {
				gen.Send(&adk.AgentEvent{Err: fmt.Errorf("init session failed: %w", err)})
				return
			}
		}
		result, err := a.service.ProcessTurn(ctx, sessionID, input.Messages[len(input.Messages)-1].Content)
		if err != nil {
			gen.Send(&adk.AgentEvent{
				Err: fmt.Errorf("process turn failed: %w", err),
			})
			return
		}
		for _, turn := range result.Turns[1:] {
			gen.Send(&adk.AgentEvent{
				AgentName: a.name,
				Output: &adk.AgentOutput{
					MessageOutput: &adk.MessageVariant{
						IsStreaming: false,
						Message:     schema.AssistantMessage(turn.Content, nil),
						Role:        schema.Assistant,
					},
				},
			})
		}
	}()
	return iter
}

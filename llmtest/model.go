// Package llmtest provides a scripted chat model for tests and offline runs.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var ErrScriptExhausted = errors.New("llmtest: no scripted reply left")

type reply struct {
	msg *schema.Message
	err error
}

// Model replays queued replies in order and records every prompt it receives.
type Model struct {
	mu      sync.Mutex
	replies []reply
	calls   [][]*schema.Message
	tools   []*schema.ToolInfo

	// Fallback, when set, answers once the queue is empty.
	Fallback func(input []*schema.Message) (*schema.Message, error)
}

func NewModel() *Model {
	return &Model{}
}

// Reply queues a plain assistant text.
func (m *Model) Reply(content string) *Model {
	return m.push(reply{msg: schema.AssistantMessage(content, nil)})
}

// ReplyTool queues an assistant message carrying a single tool call.
func (m *Model) ReplyTool(name, arguments string) *Model {
	return m.push(reply{msg: schema.AssistantMessage("", []schema.ToolCall{{
		ID:       "call_" + name,
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: arguments},
	}})})
}

// Fail queues an error.
func (m *Model) Fail(err error) *Model {
	return m.push(reply{err: err})
}

func (m *Model) push(r reply) *Model {
	m.mu.Lock()
	m.replies = append(m.replies, r)
	m.mu.Unlock()
	return m
}

// Calls returns the prompts received so far.
func (m *Model) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*schema.Message, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *Model) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.calls = append(m.calls, input)
	if len(m.replies) == 0 {
		fallback := m.Fallback
		m.mu.Unlock()
		if fallback != nil {
			return fallback(input)
		}
		return nil, ErrScriptExhausted
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	m.mu.Unlock()
	return r.msg, r.err
}

func (m *Model) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *Model) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.mu.Lock()
	m.tools = tools
	m.mu.Unlock()
	return m, nil
}

var _ model.ToolCallingChatModel = (*Model)(nil)

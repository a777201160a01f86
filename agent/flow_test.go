package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbxark/leadagent/llmtest"
	"github.com/tbxark/leadagent/marker"
	"github.com/tbxark/leadagent/types"
)

func newTestFlow(t *testing.T, m *llmtest.Model, sched *fakeScheduler) *Flow {
	t.Helper()
	f, err := NewFlow(m, sched, WithOfferIDGenerator(sequentialIDs()), WithPreamble("preamble"))
	require.NoError(t, err)
	return f
}

func TestFlowInvoke(t *testing.T) {
	ctx := context.Background()

	t.Run("Should offer slots when interest is confirmed", func(t *testing.T) {
		m := llmtest.NewModel().Reply("Ótimo! [INTERESSE_CONFIRMADO]")
		f := newTestFlow(t, m, newFakeScheduler())
		resp, err := f.Invoke(ctx, &Request{State: NewState(testNow), UserInput: "Sim, tenho interesse"})
		require.NoError(t, err)
		assert.Equal(t, types.ActionOfferSlots, resp.Action)
		assert.Equal(t, "Ótimo!", resp.Message)
		assert.Len(t, resp.Payload.Slots, 3)
		assert.Equal(t, "offer-1", resp.Payload.OfferID)
	})

	t.Run("Should send preamble, history and utterance in order", func(t *testing.T) {
		m := llmtest.NewModel().Reply("Qual é o seu nome?")
		f := newTestFlow(t, m, newFakeScheduler())
		history := []types.Turn{
			{Role: types.RoleAssistant, Content: "Olá!", Ordinal: 1},
			{Role: types.RoleUser, Content: "Oi", Ordinal: 2},
		}
		_, err := f.Invoke(ctx, &Request{State: NewState(testNow), History: history, UserInput: "quero saber mais"})
		require.NoError(t, err)
		call := m.Calls()[0]
		require.Len(t, call, 4)
		assert.Equal(t, schema.System, call[0].Role)
		assert.Equal(t, "Olá!", call[1].Content)
		assert.Equal(t, "Oi", call[2].Content)
		assert.Equal(t, "quero saber mais", call[3].Content)
	})

	t.Run("Should carry the open offer id with a schedule directive", func(t *testing.T) {
		m := llmtest.NewModel().Reply("Perfeito! [AGENDAR_REUNIAO] 1")
		sched := newFakeScheduler()
		f := newTestFlow(t, m, sched)
		state := NewState(testNow)
		state.Phase = types.PhaseSlotsOffered
		state.Offer = &types.SlotOffer{ID: "offer-9", Slots: sched.slots}

		resp, err := f.Invoke(ctx, &Request{State: state, UserInput: "o segundo"})
		require.NoError(t, err)
		assert.Equal(t, types.ActionScheduleMeeting, resp.Action)
		assert.Equal(t, 1, resp.Payload.SlotIndex)
		assert.Equal(t, "offer-9", resp.Payload.OfferID)
		assert.Equal(t, "Perfeito!", resp.Message)
	})

	t.Run("Should degrade a schedule directive without an open offer to data collection", func(t *testing.T) {
		m := llmtest.NewModel().Reply("Perfeito! [AGENDAR_REUNIAO] 0")
		f := newTestFlow(t, m, newFakeScheduler())
		resp, err := f.Invoke(ctx, &Request{State: NewState(testNow), UserInput: "ana@acme.com"})
		require.NoError(t, err)
		assert.Equal(t, types.ActionCollectData, resp.Action)
		assert.Equal(t, marker.ScheduleMeeting, resp.Directive.Kind)
		require.NotNil(t, resp.Payload.Update)
		assert.Equal(t, "ana@acme.com", resp.Payload.Update.Email)
	})

	t.Run("Should end the conversation on no interest", func(t *testing.T) {
		m := llmtest.NewModel().Reply("Entendo. [SEM_INTERESSE]")
		f := newTestFlow(t, m, newFakeScheduler())
		resp, err := f.Invoke(ctx, &Request{State: NewState(testNow), UserInput: "não, obrigado"})
		require.NoError(t, err)
		assert.Equal(t, types.ActionEndConversation, resp.Action)
		assert.Equal(t, "Entendo.", resp.Message)
	})

	t.Run("Should extract from the user's message not the reply", func(t *testing.T) {
		m := llmtest.NewModel().Reply("Obrigado, Bruno Lima! Qual é o seu e-mail? Ex.: nome@empresa.com")
		f := newTestFlow(t, m, newFakeScheduler())
		resp, err := f.Invoke(ctx, &Request{State: NewState(testNow), UserInput: "Ana Souza"})
		require.NoError(t, err)
		assert.Equal(t, types.ActionCollectData, resp.Action)
		assert.Equal(t, &types.LeadUpdate{Name: "Ana Souza"}, resp.Payload.Update)
	})

	t.Run("Should propagate backend failures", func(t *testing.T) {
		boom := errors.New("429 too many requests")
		m := llmtest.NewModel().Fail(boom)
		f := newTestFlow(t, m, newFakeScheduler())
		_, err := f.Invoke(ctx, &Request{State: NewState(testNow), UserInput: "oi"})
		assert.ErrorIs(t, err, ErrBackend)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Should treat an empty reply as a backend failure", func(t *testing.T) {
		m := llmtest.NewModel().Reply("")
		f := newTestFlow(t, m, newFakeScheduler())
		_, err := f.Invoke(ctx, &Request{State: NewState(testNow), UserInput: "oi"})
		assert.ErrorIs(t, err, ErrBackend)
	})

	t.Run("Should propagate slot lookup failures", func(t *testing.T) {
		sched := newFakeScheduler()
		sched.slotErr = errors.New("calendar down")
		m := llmtest.NewModel().Reply("Ótimo! [INTERESSE_CONFIRMADO]")
		f := newTestFlow(t, m, sched)
		_, err := f.Invoke(ctx, &Request{State: NewState(testNow), UserInput: "Sim"})
		assert.ErrorIs(t, err, sched.slotErr)
	})

	t.Run("Should refuse terminal phases without calling the model", func(t *testing.T) {
		m := llmtest.NewModel()
		f := newTestFlow(t, m, newFakeScheduler())
		state := NewState(testNow)
		state.Phase = types.PhaseClosed
		_, err := f.Invoke(ctx, &Request{State: state, UserInput: "oi"})
		assert.ErrorIs(t, err, ErrConversationClosed)
		assert.Empty(t, m.Calls())
	})

	t.Run("Should not mutate the request state", func(t *testing.T) {
		m := llmtest.NewModel().Reply("Ótimo! [INTERESSE_CONFIRMADO]")
		f := newTestFlow(t, m, newFakeScheduler())
		state := NewState(testNow)
		before := *state
		_, err := f.Invoke(ctx, &Request{State: state, UserInput: "Sim"})
		require.NoError(t, err)
		assert.Equal(t, before, *state)
	})
}

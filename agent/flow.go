package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/google/uuid"

	"github.com/tbxark/leadagent/extract"
	"github.com/tbxark/leadagent/marker"
	"github.com/tbxark/leadagent/scheduling"
	"github.com/tbxark/leadagent/transcript"
	"github.com/tbxark/leadagent/types"
)

// Flow turns one user message into a reply and an action. It calls the chat
// model and the slot source but never writes state.
type Flow struct {
	chatModel model.BaseChatModel
	slots     scheduling.SlotSource
	parser    marker.Parser
	extractor extract.Extractor
	preamble  string
	daysAhead int
	newID     func() string
	logger    *slog.Logger
}

type FlowOption func(*Flow)

func WithParser(p marker.Parser) FlowOption {
	return func(f *Flow) {
		f.parser = p
	}
}

func WithExtractor(e extract.Extractor) FlowOption {
	return func(f *Flow) {
		f.extractor = e
	}
}

// WithPreamble sets the system prompt; see transcript.SystemPrompt.
func WithPreamble(preamble string) FlowOption {
	return func(f *Flow) {
		f.preamble = preamble
	}
}

func WithDaysAhead(days int) FlowOption {
	return func(f *Flow) {
		f.daysAhead = days
	}
}

// WithOfferIDGenerator replaces the uuid generator used for slot offers.
func WithOfferIDGenerator(fn func() string) FlowOption {
	return func(f *Flow) {
		f.newID = fn
	}
}

func WithFlowLogger(logger *slog.Logger) FlowOption {
	return func(f *Flow) {
		f.logger = logger
	}
}

func NewFlow(chatModel model.BaseChatModel, slots scheduling.SlotSource, opts ...FlowOption) (*Flow, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if slots == nil {
		return nil, errors.New("slot source is required")
	}
	f := &Flow{
		chatModel: chatModel,
		slots:     slots,
		parser:    marker.NewMarkerParser(),
		extractor: extract.NewHeuristicExtractor(),
		preamble:  transcript.SystemPrompt(),
		daysAhead: scheduling.DefaultDaysAhead,
		newID:     uuid.NewString,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	if f.daysAhead <= 0 {
		f.daysAhead = scheduling.DefaultDaysAhead
	}
	return f, nil
}

func (f *Flow) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || req.State == nil {
		return nil, errors.New("request state is required")
	}
	state := req.State
	if state.Phase.Terminal() {
		return nil, ErrConversationClosed
	}

	messages := transcript.Build(f.preamble, req.History, req.UserInput)
	f.logger.Debug("Calling chat model", "messages", len(messages), "phase", state.Phase)
	reply, err := f.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackend, err)
	}
	if reply == nil || reply.Content == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrBackend)
	}

	clean, directive := f.parser.Parse(reply.Content)
	f.logger.Debug("Parsed directive", "kind", directive.Kind, "slot_index", directive.SlotIndex)
	resp := &Response{Message: clean, Directive: directive}

	switch directive.Kind {
	case marker.InterestConfirmed:
		slots, err := f.slots.AvailableSlots(ctx, f.daysAhead)
		if err != nil {
			return nil, fmt.Errorf("slot lookup: %w", err)
		}
		if len(slots) > scheduling.MaxSlots {
			slots = slots[:scheduling.MaxSlots]
		}
		if len(slots) == 0 {
			f.logger.Warn("Slot source returned no slots")
		}
		resp.Action = types.ActionOfferSlots
		resp.Payload = Payload{Slots: slots, OfferID: f.newID()}
		return resp, nil
	case marker.ScheduleMeeting:
		if state.Phase == types.PhaseSlotsOffered && state.Offer != nil {
			resp.Action = types.ActionScheduleMeeting
			resp.Payload = Payload{SlotIndex: directive.SlotIndex, OfferID: state.Offer.ID}
			return resp, nil
		}
		f.logger.Warn("Ignoring schedule directive without an open offer", "phase", state.Phase)
	case marker.NoInterest:
		resp.Action = types.ActionEndConversation
		return resp, nil
	}

	resp.Action = types.ActionCollectData
	resp.Payload = Payload{Update: f.extract(ctx, req.UserInput, state.Lead)}
	return resp, nil
}

func (f *Flow) extract(ctx context.Context, utterance string, lead types.LeadProfile) *types.LeadUpdate {
	if f.extractor == nil {
		return nil
	}
	update, err := f.extractor.Extract(ctx, utterance, lead)
	if err != nil {
		f.logger.Warn("Lead extraction failed", "error", err)
		return nil
	}
	return lead.Missing(update)
}

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tbxark/leadagent/crm"
	"github.com/tbxark/leadagent/extract"
	"github.com/tbxark/leadagent/scheduling"
	"github.com/tbxark/leadagent/types"
)

// Lifecycle applies a Flow response to a session state. It owns every durable
// side effect: lead merges, CRM registration and meeting creation.
type Lifecycle struct {
	meetings  scheduling.MeetingCreator
	registrar *crm.Registrar
	now       func() time.Time
	logger    *slog.Logger
}

type LifecycleOption func(*Lifecycle)

func WithClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) {
		l.now = now
	}
}

func WithLifecycleLogger(logger *slog.Logger) LifecycleOption {
	return func(l *Lifecycle) {
		l.logger = logger
	}
}

// NewLifecycle builds a manager. A nil registrar disables CRM registration.
func NewLifecycle(meetings scheduling.MeetingCreator, registrar *crm.Registrar, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{
		meetings:  meetings,
		registrar: registrar,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Apply mutates state according to resp. A returned error is fatal to the turn
// and the caller must discard state.
func (l *Lifecycle) Apply(ctx context.Context, state *State, resp *Response) (Outcome, error) {
	out := Outcome{Action: resp.Action}
	switch resp.Action {
	case types.ActionCollectData:
		merged, err := extract.Merge(state.Lead, resp.Payload.Update)
		if err != nil {
			return out, fmt.Errorf("merge lead update: %w", err)
		}
		state.Lead = merged
	case types.ActionOfferSlots:
		state.Lead.MarkInterested()
		state.Offer = &types.SlotOffer{
			ID:        resp.Payload.OfferID,
			Slots:     append([]types.TimeSlot(nil), resp.Payload.Slots...),
			OfferedAt: l.now(),
		}
		state.Phase = types.PhaseSlotsOffered
		out.CRMError = l.registerIfNeeded(ctx, state)
	case types.ActionScheduleMeeting:
		if err := l.schedule(ctx, state, resp.Payload, &out); err != nil {
			return out, err
		}
	case types.ActionEndConversation:
		state.Phase = types.PhaseClosed
		state.Status = types.StatusCompleted
		state.Offer = nil
		out.CRMError = l.registerIfNeeded(ctx, state)
	default:
		return out, fmt.Errorf("unknown action %q", resp.Action)
	}
	state.UpdatedAt = l.now()
	return out, nil
}

func (l *Lifecycle) schedule(ctx context.Context, state *State, p Payload, out *Outcome) error {
	slot, err := resolveSlot(state, p)
	if err != nil {
		l.logger.Info("Scheduling rejected", "reason", err, "slot_index", p.SlotIndex, "offer_id", p.OfferID)
		out.SchedulingFailed = true
		out.SchedulingErr = err
		return nil
	}

	lead := state.Lead
	res, err := l.meetings.CreateMeeting(ctx, scheduling.MeetingRequest{
		Summary:       types.FormatMeetingSummary(lead),
		Description:   types.FormatMeetingDescription(lead),
		Start:         slot.Start,
		End:           slot.End,
		AttendeeEmail: lead.Email,
		AttendeeName:  lead.DisplayName(),
		Key:           state.Offer.ID + ":" + strconv.Itoa(p.SlotIndex),
	})
	if err != nil {
		return fmt.Errorf("create meeting: %w", err)
	}

	state.Lead.SetMeeting(*res)
	state.Lead.MarkInterested()
	state.Offer = nil
	state.Phase = types.PhaseScheduled
	state.Status = types.StatusCompleted
	out.Slot = &slot
	out.Meeting = res

	if err := l.registerIfNeeded(ctx, state); err != nil {
		out.CRMError = err
		return nil
	}
	if l.registrar != nil && state.Lead.CRMRecordID != "" {
		if err := l.registrar.RecordMeeting(ctx, state.Lead.CRMRecordID, state.Lead); err != nil {
			l.logger.Warn("CRM meeting update failed", "record_id", state.Lead.CRMRecordID, "error", err)
			out.CRMError = err
		}
	}
	return nil
}

func resolveSlot(state *State, p Payload) (types.TimeSlot, error) {
	if state.Phase != types.PhaseSlotsOffered || state.Offer == nil || len(state.Offer.Slots) == 0 {
		return types.TimeSlot{}, ErrSlotUnavailable
	}
	if p.OfferID != state.Offer.ID {
		return types.TimeSlot{}, ErrStaleOffer
	}
	slot, ok := state.Offer.Slot(p.SlotIndex)
	if !ok {
		return types.TimeSlot{}, ErrSlotUnavailable
	}
	return slot, nil
}

// registerIfNeeded creates or finds the CRM record once an email is known.
// Failures are logged and returned for the Outcome, never propagated.
func (l *Lifecycle) registerIfNeeded(ctx context.Context, state *State) error {
	if l.registrar == nil || state.Lead.Email == "" || state.Lead.CRMRecordID != "" {
		return nil
	}
	id, err := l.registrar.Register(ctx, state.Lead)
	if err != nil {
		l.logger.Warn("CRM registration failed", "error", err)
		return err
	}
	state.Lead.SetCRMRecord(id)
	return nil
}

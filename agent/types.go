package agent

import (
	"time"

	"github.com/tbxark/leadagent/marker"
	"github.com/tbxark/leadagent/types"
)

// State is the single mutable record kept per session.
type State struct {
	Phase     types.Phase              `json:"phase"`
	Status    types.ConversationStatus `json:"status"`
	Lead      types.LeadProfile        `json:"lead"`
	Offer     *types.SlotOffer         `json:"offer,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

func NewState(now time.Time) *State {
	return &State{
		Phase:     types.PhaseDiscovering,
		Status:    types.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy, so a turn can work on it and be discarded on failure.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	if s.Lead.MeetingDatetime != nil {
		at := *s.Lead.MeetingDatetime
		out.Lead.MeetingDatetime = &at
	}
	if s.Offer != nil {
		offer := *s.Offer
		offer.Slots = append([]types.TimeSlot(nil), s.Offer.Slots...)
		out.Offer = &offer
	}
	return &out
}

type Request struct {
	State     *State
	History   []types.Turn
	UserInput string
}

type Payload struct {
	Update    *types.LeadUpdate `json:"update,omitempty"`
	Slots     []types.TimeSlot  `json:"slots,omitempty"`
	OfferID   string            `json:"offer_id,omitempty"`
	SlotIndex int               `json:"slot_index"`
}

type Response struct {
	Message   string           `json:"message"`
	Action    types.Action     `json:"action"`
	Payload   Payload          `json:"payload"`
	Directive marker.Directive `json:"-"`
}

// Outcome reports what Lifecycle.Apply did beyond mutating the state.
type Outcome struct {
	Action           types.Action         `json:"action"`
	SchedulingFailed bool                 `json:"scheduling_failed,omitempty"`
	SchedulingErr    error                `json:"-"`
	Slot             *types.TimeSlot      `json:"slot,omitempty"`
	Meeting          *types.MeetingResult `json:"meeting,omitempty"`
	CRMError         error                `json:"-"`
}

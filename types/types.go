package types

import (
	"strings"
	"time"
)

// Phase is the explicit conversation state persisted next to the lead.
type Phase string

const (
	PhaseDiscovering  Phase = "discovering"
	PhaseSlotsOffered Phase = "slots_offered"
	PhaseScheduled    Phase = "scheduled"
	PhaseClosed       Phase = "closed"
)

// Terminal reports whether no further turns are accepted in this phase.
func (p Phase) Terminal() bool {
	return p == PhaseScheduled || p == PhaseClosed
}

type Action string

const (
	ActionCollectData     Action = "collect_data"
	ActionOfferSlots      Action = "offer_slots"
	ActionScheduleMeeting Action = "schedule_meeting"
	ActionEndConversation Action = "end_conversation"
)

type ConversationStatus string

const (
	StatusActive    ConversationStatus = "active"
	StatusCompleted ConversationStatus = "completed"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Ordinal int    `json:"ordinal"`
}

type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// SlotOffer is the slot list held between an offer and the user's choice.
// ID changes on every offer so a choice can be bound to the list it was made against.
type SlotOffer struct {
	ID        string     `json:"id"`
	Slots     []TimeSlot `json:"slots"`
	OfferedAt time.Time  `json:"offered_at"`
}

// Slot returns the slot at index, or false when the index is out of range.
func (o *SlotOffer) Slot(index int) (TimeSlot, bool) {
	if o == nil || index < 0 || index >= len(o.Slots) {
		return TimeSlot{}, false
	}
	return o.Slots[index], true
}

type MeetingResult struct {
	MeetingLink     string    `json:"meeting_link"`
	MeetingDatetime time.Time `json:"meeting_datetime"`
}

// LeadUpdate is a partial set of lead fields. Empty strings mean "not provided".
type LeadUpdate struct {
	Name     string `json:"name,omitempty" jsonschema:"description=Full name of the prospect"`
	Email    string `json:"email,omitempty" jsonschema:"description=Contact e-mail address"`
	Company  string `json:"company,omitempty" jsonschema:"description=Company the prospect represents"`
	Need     string `json:"need,omitempty" jsonschema:"description=Main need or pain the prospect wants to solve"`
	Deadline string `json:"deadline,omitempty" jsonschema:"description=Desired implementation deadline, as stated by the prospect"`
}

func (u *LeadUpdate) IsEmpty() bool {
	if u == nil {
		return true
	}
	return strings.TrimSpace(u.Name) == "" &&
		strings.TrimSpace(u.Email) == "" &&
		strings.TrimSpace(u.Company) == "" &&
		strings.TrimSpace(u.Need) == "" &&
		strings.TrimSpace(u.Deadline) == ""
}

// LeadProfile accumulates what is known about a prospect.
// Fields are only ever filled, never replaced or cleared.
type LeadProfile struct {
	Name              string     `json:"name,omitempty"`
	Email             string     `json:"email,omitempty"`
	Company           string     `json:"company,omitempty"`
	Need              string     `json:"need,omitempty"`
	Deadline          string     `json:"deadline,omitempty"`
	InterestConfirmed bool       `json:"interest_confirmed"`
	CRMRecordID       string     `json:"crm_record_id,omitempty"`
	MeetingLink       string     `json:"meeting_link,omitempty"`
	MeetingDatetime   *time.Time `json:"meeting_datetime,omitempty"`
}

// Missing returns the update restricted to fields that are still unset on the profile.
func (p *LeadProfile) Missing(u *LeadUpdate) *LeadUpdate {
	if u == nil {
		return nil
	}
	out := &LeadUpdate{}
	if p.Name == "" {
		out.Name = strings.TrimSpace(u.Name)
	}
	if p.Email == "" {
		out.Email = strings.TrimSpace(u.Email)
	}
	if p.Company == "" {
		out.Company = strings.TrimSpace(u.Company)
	}
	if p.Need == "" {
		out.Need = strings.TrimSpace(u.Need)
	}
	if p.Deadline == "" {
		out.Deadline = strings.TrimSpace(u.Deadline)
	}
	if out.IsEmpty() {
		return nil
	}
	return out
}

func (p *LeadProfile) MarkInterested() {
	p.InterestConfirmed = true
}

// SetCRMRecord stores the CRM id once; later calls keep the first id.
func (p *LeadProfile) SetCRMRecord(id string) {
	if p.CRMRecordID == "" {
		p.CRMRecordID = id
	}
}

func (p *LeadProfile) SetMeeting(m MeetingResult) {
	p.MeetingLink = m.MeetingLink
	at := m.MeetingDatetime
	p.MeetingDatetime = &at
}

// DisplayName falls back to "Lead" when the name is still unknown.
func (p *LeadProfile) DisplayName() string {
	if p.Name == "" {
		return "Lead"
	}
	return p.Name
}

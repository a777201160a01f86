package marker

type Kind string

const (
	InterestConfirmed Kind = "interest_confirmed"
	ScheduleMeeting   Kind = "schedule_meeting"
	NoInterest        Kind = "no_interest"
	CollectData       Kind = "collect_data"
)

// Directive is the control instruction carried by one assistant reply.
// SlotIndex is only meaningful for ScheduleMeeting.
type Directive struct {
	Kind      Kind `json:"kind"`
	SlotIndex int  `json:"slot_index,omitempty"`
}

type Parser interface {
	Parse(text string) (string, Directive)
}

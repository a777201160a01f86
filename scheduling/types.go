package scheduling

import (
	"context"
	"time"

	"github.com/tbxark/leadagent/types"
)

const (
	DefaultDaysAhead = 7
	MaxSlots         = 3
	DefaultTimeZone  = "America/Sao_Paulo"
)

type MeetingRequest struct {
	Summary       string
	Description   string
	Start         time.Time
	End           time.Time
	AttendeeEmail string
	AttendeeName  string
	// Key identifies the booking. Requests sharing a non-empty Key create at
	// most one event.
	Key string
}

// SlotSource lists up to MaxSlots free windows, earliest first.
type SlotSource interface {
	AvailableSlots(ctx context.Context, daysAhead int) ([]types.TimeSlot, error)
}

type MeetingCreator interface {
	CreateMeeting(ctx context.Context, req MeetingRequest) (*types.MeetingResult, error)
}

type Scheduler interface {
	SlotSource
	MeetingCreator
}

// Interval is a busy window reported by the calendar.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LoadLocation resolves name, defaulting to DefaultTimeZone and falling back to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		name = DefaultTimeZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

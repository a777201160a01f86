package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tbxark/leadagent/types"
)

const MockMeetingURLPrefix = "https://meet.google.com/mock-"

// Fallback wraps a Scheduler so that neither call fails: slot lookup falls back
// to FixedSlots and meeting creation to a synthetic Meet link. A nil Inner
// always uses the fallbacks.
type Fallback struct {
	Inner    Scheduler
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

func NewFallback(inner Scheduler, loc *time.Location) *Fallback {
	return &Fallback{Inner: inner, Location: loc}
}

func (f *Fallback) AvailableSlots(ctx context.Context, daysAhead int) ([]types.TimeSlot, error) {
	if f.Inner != nil {
		slots, err := f.Inner.AvailableSlots(ctx, daysAhead)
		if err == nil && len(slots) > 0 {
			return slots, nil
		}
		if err != nil {
			f.logger().Warn("Slot lookup failed, offering fixed slots", "error", err)
		} else {
			f.logger().Info("No free slots found, offering fixed slots", "days_ahead", daysAhead)
		}
	}
	return FixedSlots(f.now(), f.Location, MaxSlots), nil
}

func (f *Fallback) CreateMeeting(ctx context.Context, req MeetingRequest) (*types.MeetingResult, error) {
	if f.Inner != nil {
		res, err := f.Inner.CreateMeeting(ctx, req)
		if err == nil {
			return res, nil
		}
		f.logger().Warn("Meeting creation failed, using synthetic link", "error", err, "start", req.Start)
	}
	return &types.MeetingResult{
		MeetingLink:     fmt.Sprintf("%s%d", MockMeetingURLPrefix, f.now().UnixMilli()),
		MeetingDatetime: req.Start,
	}, nil
}

func (f *Fallback) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *Fallback) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

var _ Scheduler = (*Fallback)(nil)

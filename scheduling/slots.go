package scheduling

import (
	"fmt"
	"time"

	"github.com/tbxark/leadagent/types"
)

const (
	BusinessDayStart = 9
	BusinessDayEnd   = 18
	SlotDuration     = time.Hour
)

var (
	weekdayNames = [...]string{"Domingo", "Segunda", "Terça", "Quarta", "Quinta", "Sexta", "Sábado"}
	monthNames   = [...]string{"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"}
)

// FormatSlotLabel renders t in its own location, e.g. "Segunda, 3 de nov às 14:00".
func FormatSlotLabel(t time.Time) string {
	return fmt.Sprintf("%s, %d de %s às %02d:%02d",
		weekdayNames[t.Weekday()], t.Day(), monthNames[t.Month()-1], t.Hour(), t.Minute())
}

// ComputeSlots walks one-hour business-hour slots on weekdays from now until
// now+daysAhead, skipping slots that have started or overlap a busy interval.
func ComputeSlots(now time.Time, daysAhead int, busy []Interval, loc *time.Location, limit int) []types.TimeSlot {
	if loc == nil {
		loc = time.UTC
	}
	if daysAhead <= 0 {
		daysAhead = DefaultDaysAhead
	}
	if limit <= 0 {
		limit = MaxSlots
	}
	now = now.In(loc)
	horizon := now.AddDate(0, 0, daysAhead)

	var slots []types.TimeSlot
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	for ; day.Before(horizon) && len(slots) < limit; day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		for hour := BusinessDayStart; hour < BusinessDayEnd && len(slots) < limit; hour++ {
			start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, loc)
			if !start.Before(horizon) {
				break
			}
			if !start.After(now) {
				continue
			}
			end := start.Add(SlotDuration)
			if overlapsAny(start, end, busy) {
				continue
			}
			slots = append(slots, types.TimeSlot{Start: start, End: end, Label: FormatSlotLabel(start)})
		}
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if start.Before(b.End) && end.After(b.Start) {
			return true
		}
	}
	return false
}

// FixedSlots returns n slots on the following n days at 14:00-15:00.
func FixedSlots(now time.Time, loc *time.Location, n int) []types.TimeSlot {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	slots := make([]types.TimeSlot, 0, n)
	for i := 1; i <= n; i++ {
		d := now.AddDate(0, 0, i)
		start := time.Date(d.Year(), d.Month(), d.Day(), 14, 0, 0, 0, loc)
		slots = append(slots, types.TimeSlot{Start: start, End: start.Add(SlotDuration), Label: FormatSlotLabel(start)})
	}
	return slots
}

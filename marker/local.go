package marker

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
)

const (
	DefaultInterestMarker   = "[INTERESSE_CONFIRMADO]"
	DefaultScheduleMarker   = "[AGENDAR_REUNIAO]"
	DefaultNoInterestMarker = "[SEM_INTERESSE]"
)

// MarkerParser recognizes the exact, case-sensitive control tokens the model is
// instructed to emit. The first matching marker in priority order wins.
type MarkerParser struct {
	InterestMarker   string
	ScheduleMarker   string
	NoInterestMarker string

	mu           sync.Mutex
	schedule     *regexp.Regexp
	scheduleFrom string
}

func NewMarkerParser() *MarkerParser {
	p := &MarkerParser{
		InterestMarker:   DefaultInterestMarker,
		ScheduleMarker:   DefaultScheduleMarker,
		NoInterestMarker: DefaultNoInterestMarker,
	}
	p.scheduleRegexp()
	return p
}

func (p *MarkerParser) Parse(text string) (string, Directive) {
	if p.InterestMarker != "" && strings.Contains(text, p.InterestMarker) {
		return strip(text, p.InterestMarker), Directive{Kind: InterestConfirmed}
	}
	if p.ScheduleMarker != "" && strings.Contains(text, p.ScheduleMarker) {
		pattern := p.scheduleRegexp()
		index := 0
		if m := pattern.FindStringSubmatch(text); len(m) > 1 && m[1] != "" {
			if n, err := strconv.Atoi(m[1]); err == nil {
				index = n
			}
		}
		clean := strings.TrimSpace(pattern.ReplaceAllString(text, ""))
		return clean, Directive{Kind: ScheduleMeeting, SlotIndex: index}
	}
	if p.NoInterestMarker != "" && strings.Contains(text, p.NoInterestMarker) {
		return strip(text, p.NoInterestMarker), Directive{Kind: NoInterest}
	}
	return text, Directive{Kind: CollectData}
}

// scheduleRegexp matches the marker and, when present, the index right after
// it. It is compiled once per ScheduleMarker value.
func (p *MarkerParser) scheduleRegexp() *regexp.Regexp {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.schedule == nil || p.scheduleFrom != p.ScheduleMarker {
		p.schedule = regexp.MustCompile(regexp.QuoteMeta(p.ScheduleMarker) + `(?:\s*(\d+))?`)
		p.scheduleFrom = p.ScheduleMarker
	}
	return p.schedule
}

func strip(text, marker string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, marker, ""))
}

var _ Parser = (*MarkerParser)(nil)

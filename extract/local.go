package extract

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tbxark/leadagent/types"
)

var emailPattern = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)

// HeuristicExtractor picks up an e-mail token and a capitalized 2-4 word name.
// It is crude on purpose and accepts false positives.
type HeuristicExtractor struct {
	MinNameWords int
	MaxNameWords int
}

func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{MinNameWords: 2, MaxNameWords: 4}
}

func (h *HeuristicExtractor) Extract(ctx context.Context, utterance string, current types.LeadProfile) (*types.LeadUpdate, error) {
	update := &types.LeadUpdate{}
	if current.Email == "" {
		update.Email = emailPattern.FindString(utterance)
	}
	if current.Name == "" && h.looksLikeName(utterance) {
		update.Name = strings.Join(strings.Fields(utterance), " ")
	}
	if update.IsEmpty() {
		return nil, nil
	}
	return update, nil
}

func (h *HeuristicExtractor) looksLikeName(utterance string) bool {
	words := strings.Fields(utterance)
	if len(words) < h.MinNameWords || len(words) > h.MaxNameWords {
		return false
	}
	for _, w := range words {
		r, _ := utf8.DecodeRuneInString(w)
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

var _ Extractor = (*HeuristicExtractor)(nil)

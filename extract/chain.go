package extract

import (
	"context"
	"log/slog"

	"github.com/tbxark/leadagent/types"
)

// ChainExtractor runs extractors in order. Each one sees the profile filled
// with what earlier extractors found. Failures are logged and skipped.
type ChainExtractor struct {
	Extractors []Extractor
	Logger     *slog.Logger
}

func NewChainExtractor(extractors ...Extractor) *ChainExtractor {
	return &ChainExtractor{Extractors: extractors}
}

func (c *ChainExtractor) Extract(ctx context.Context, utterance string, current types.LeadProfile) (*types.LeadUpdate, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	working := current
	for i, ex := range c.Extractors {
		update, err := ex.Extract(ctx, utterance, working)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Lead extractor failed, skipping", "index", i, "error", err)
			continue
		}
		if update.IsEmpty() {
			continue
		}
		merged, err := Merge(working, update)
		if err != nil {
			logger.Warn("Discarding extractor update", "index", i, "error", err)
			continue
		}
		working = merged
	}

	return diff(current, working), nil
}

// diff reports the fields that went from unset to set.
func diff(before, after types.LeadProfile) *types.LeadUpdate {
	u := &types.LeadUpdate{}
	if before.Name == "" {
		u.Name = after.Name
	}
	if before.Email == "" {
		u.Email = after.Email
	}
	if before.Company == "" {
		u.Company = after.Company
	}
	if before.Need == "" {
		u.Need = after.Need
	}
	if before.Deadline == "" {
		u.Deadline = after.Deadline
	}
	if u.IsEmpty() {
		return nil
	}
	return u
}

var _ Extractor = (*ChainExtractor)(nil)

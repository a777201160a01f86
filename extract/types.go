package extract

import (
	"context"

	"github.com/tbxark/leadagent/types"
)

// Extractor proposes lead fields found in a user utterance.
// Implementations never propose a field that is already set on current.
type Extractor interface {
	Extract(ctx context.Context, utterance string, current types.LeadProfile) (*types.LeadUpdate, error)
}

type ExtractorFunc func(ctx context.Context, utterance string, current types.LeadProfile) (*types.LeadUpdate, error)

func (f ExtractorFunc) Extract(ctx context.Context, utterance string, current types.LeadProfile) (*types.LeadUpdate, error) {
	return f(ctx, utterance, current)
}

package extract

import (
	"fmt"

	"github.com/tbxark/leadagent/patch"
	"github.com/tbxark/leadagent/types"
)

// LeadPaths are the JSON pointers an update is allowed to fill.
var LeadPaths = map[string]bool{
	"/name":     true,
	"/email":    true,
	"/company":  true,
	"/need":     true,
	"/deadline": true,
}

// Merge fills the unset fields of profile from u. Fields already present are kept.
func Merge(profile types.LeadProfile, u *types.LeadUpdate) (types.LeadProfile, error) {
	if u.IsEmpty() {
		return profile, nil
	}
	ops, err := patch.FillMissing(profile, u, LeadPaths)
	if err != nil {
		return profile, fmt.Errorf("build lead patch: %w", err)
	}
	if err := patch.ValidatePatchOperations(ops, LeadPaths); err != nil {
		return profile, fmt.Errorf("invalid lead patch: %w", err)
	}
	merged, err := patch.ApplyRFC6902(profile, ops)
	if err != nil {
		return profile, fmt.Errorf("apply lead patch: %w", err)
	}
	return merged, nil
}

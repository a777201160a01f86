package patch

import (
	"fmt"
)

// ValidatePatchOperations rejects ops outside allowedPaths and any op that could clear a value.
func ValidatePatchOperations(ops []Operation, allowedPaths map[string]bool) error {
	for i, op := range ops {
		switch op.Op {
		case OperationAdd, OperationReplace:
		default:
			return fmt.Errorf("operation %d: op %q is not permitted", i, op.Op)
		}
		if len(allowedPaths) > 0 && !allowedPaths[op.Path] {
			return fmt.Errorf("operation %d: path %q is not in the allowed paths set", i, op.Path)
		}
	}
	return nil
}

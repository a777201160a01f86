package patch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// FillMissing builds "add" operations that copy top-level fields of update into
// current only where current has no value yet. Populated fields are never touched.
func FillMissing[T any](current T, update any, allowed map[string]bool) ([]Operation, error) {
	currentDoc, err := toObject(current)
	if err != nil {
		return nil, fmt.Errorf("failed to read current state: %w", err)
	}
	updateDoc, err := toObject(update)
	if err != nil {
		return nil, fmt.Errorf("failed to read update: %w", err)
	}

	keys := make([]string, 0, len(updateDoc))
	for k := range updateDoc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var ops []Operation
	for _, key := range keys {
		value := updateDoc[key]
		if isZero(value) {
			continue
		}
		path := "/" + escapeToken(key)
		if len(allowed) > 0 && !allowed[path] {
			continue
		}
		if existing, ok := currentDoc[key]; ok && !isZero(existing) {
			continue
		}
		if s, ok := value.(string); ok {
			value = strings.TrimSpace(s)
		}
		ops = append(ops, Operation{Op: OperationAdd, Path: path, Value: value})
	}
	return ops, nil
}

func toObject(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	raw, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if string(raw) == "null" {
		return doc, nil
	}
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func isZero(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case bool:
		return !x
	case float64:
		return x == 0
	case map[string]any:
		return len(x) == 0
	case []any:
		return len(x) == 0
	}
	return false
}

func escapeToken(s string) string {
	s = strings.ReplaceAll(s, "~", "~0")
	return strings.ReplaceAll(s, "/", "~1")
}

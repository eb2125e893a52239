// Package delta implements the pure mutation engine that applies
// path-addressed partial updates to component state trees.
package delta

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/TheGoodCatalyst/chameleon/errors"
	"github.com/TheGoodCatalyst/chameleon/event"
)

// Apply applies a delta to a state tree and returns the mutated tree.
// The input tree is never modified in place: nodes along the mutated
// path are copied, untouched subtrees are shared with the input. This
// makes prior tree values safe to retain.
//
// Trees are JSON-shaped values: map[string]any records, []any sequences,
// and scalar leaves.
func Apply(tree any, d event.StateDelta) (any, error) {
	if err := d.Validate(); err != nil {
		return tree, err
	}

	if d.Path == "" {
		return applyRoot(tree, d)
	}

	segments, err := parsePointer(d.Path)
	if err != nil {
		return tree, err
	}

	return applyAt(tree, segments, d)
}

// applyRoot applies an untargeted operation to the whole tree
func applyRoot(tree any, d event.StateDelta) (any, error) {
	switch d.Operation {
	case event.OpReplace, event.OpCreate:
		return d.Payload, nil

	case event.OpUpdate, event.OpPatch:
		record, ok := tree.(map[string]any)
		if !ok {
			return tree, errors.WrapProtocol(
				fmt.Errorf("%w: update requires a record tree, got %T", errors.ErrInvalidPayload, tree),
				"delta", "Apply", "untargeted update")
		}
		payload, ok := d.Payload.(map[string]any)
		if !ok {
			return tree, errors.WrapProtocol(
				fmt.Errorf("%w: update payload must be a record, got %T", errors.ErrInvalidPayload, d.Payload),
				"delta", "Apply", "untargeted update")
		}
		return mergeRecords(record, payload), nil

	case event.OpAppend:
		seq, ok := tree.([]any)
		if !ok {
			return tree, nil // append to a non-sequence is a no-op
		}
		next := make([]any, len(seq), len(seq)+1)
		copy(next, seq)
		return append(next, d.Payload), nil

	case event.OpDelete:
		// Untargeted delete has no addressable victim
		return tree, nil

	default:
		return tree, nil
	}
}

// applyAt walks the remaining pointer segments with copy-on-write and
// applies the operation at the terminal segment
func applyAt(node any, segments []string, d event.StateDelta) (any, error) {
	seg := segments[0]
	terminal := len(segments) == 1

	switch current := node.(type) {
	case map[string]any:
		next := mergeRecords(current, nil) // shallow copy
		if terminal {
			applyTerminalRecord(next, seg, d)
			return next, nil
		}
		child, exists := next[seg]
		if !exists {
			if d.Operation == event.OpDelete {
				return node, nil // deleting below a missing path is a no-op
			}
			// Create intermediate records for missing non-terminal segments
			child = map[string]any{}
		}
		mutated, err := applyAt(child, segments[1:], d)
		if err != nil {
			return node, err
		}
		next[seg] = mutated
		return next, nil

	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(current) {
			if d.Operation == event.OpDelete {
				return node, nil // deleting a non-existent index is a no-op
			}
			return node, errors.WrapProtocol(
				fmt.Errorf("%w: segment %q does not address sequence of length %d",
					errors.ErrInvalidPayload, seg, len(current)),
				"delta", "Apply", "sequence index")
		}
		next := make([]any, len(current))
		copy(next, current)
		if terminal {
			return applyTerminalSequence(next, idx, d), nil
		}
		mutated, err := applyAt(next[idx], segments[1:], d)
		if err != nil {
			return node, err
		}
		next[idx] = mutated
		return next, nil

	default:
		// Scalar in the middle of the path: replace it with a record so
		// the remaining segments have somewhere to land
		if d.Operation == event.OpDelete {
			return node, nil
		}
		mutated, err := applyAt(map[string]any{}, segments, d)
		if err != nil {
			return node, err
		}
		return mutated, nil
	}
}

// applyTerminalRecord applies the operation at a record key in place.
// The record passed in is already a private copy.
func applyTerminalRecord(record map[string]any, key string, d event.StateDelta) {
	switch d.Operation {
	case event.OpReplace, event.OpCreate:
		record[key] = d.Payload

	case event.OpUpdate, event.OpPatch:
		existing, existsOK := record[key].(map[string]any)
		payload, payloadOK := d.Payload.(map[string]any)
		if existsOK && payloadOK {
			record[key] = mergeRecords(existing, payload)
		} else {
			record[key] = d.Payload
		}

	case event.OpDelete:
		delete(record, key) // deleting a missing key is a no-op

	case event.OpAppend:
		seq, ok := record[key].([]any)
		if !ok {
			return // append to a non-sequence terminal is a no-op
		}
		next := make([]any, len(seq), len(seq)+1)
		copy(next, seq)
		record[key] = append(next, d.Payload)
	}
}

// applyTerminalSequence applies the operation at a sequence index.
// The sequence passed in is already a private copy.
func applyTerminalSequence(seq []any, idx int, d event.StateDelta) any {
	switch d.Operation {
	case event.OpReplace, event.OpCreate:
		seq[idx] = d.Payload
		return seq

	case event.OpUpdate, event.OpPatch:
		existing, existsOK := seq[idx].(map[string]any)
		payload, payloadOK := d.Payload.(map[string]any)
		if existsOK && payloadOK {
			seq[idx] = mergeRecords(existing, payload)
		} else {
			seq[idx] = d.Payload
		}
		return seq

	case event.OpDelete:
		return append(seq[:idx], seq[idx+1:]...)

	case event.OpAppend:
		child, ok := seq[idx].([]any)
		if !ok {
			return seq
		}
		next := make([]any, len(child), len(child)+1)
		copy(next, child)
		seq[idx] = append(next, d.Payload)
		return seq

	default:
		return seq
	}
}

// mergeRecords returns a new record with base's entries overlaid by
// overlay's entries. Passing a nil overlay yields a shallow copy.
func mergeRecords(base, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// parsePointer splits a JSON-Pointer string into unescaped segments
func parsePointer(path string) ([]string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, errors.WrapProtocol(
			fmt.Errorf("%w: pointer %q must start with '/'", errors.ErrInvalidPayload, path),
			"delta", "parsePointer", "pointer syntax")
	}

	raw := strings.Split(path[1:], "/")
	segments := make([]string, len(raw))
	for i, seg := range raw {
		seg = strings.ReplaceAll(seg, "~1", "/")
		seg = strings.ReplaceAll(seg, "~0", "~")
		segments[i] = seg
	}
	return segments, nil
}

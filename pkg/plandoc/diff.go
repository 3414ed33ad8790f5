package plandoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PathSeparator joins object keys in Diff.Path.
const PathSeparator = "."

// Diff is one leaf-level divergence between two documents. A nil OldValue
// marks an addition and a nil NewValue marks a removal.
type Diff struct {
	Field    string
	OldValue Value
	NewValue Value
	Path     string
}

func (d Diff) IsAddition() bool { return d.OldValue == nil && d.NewValue != nil }
func (d Diff) IsRemoval() bool  { return d.NewValue == nil && d.OldValue != nil }

type diffJSON struct {
	Field    string          `json:"field"`
	OldValue json.RawMessage `json:"oldValue,omitempty"`
	NewValue json.RawMessage `json:"newValue,omitempty"`
	Path     string          `json:"path"`
}

// MarshalJSON omits an undefined side rather than writing null, so that a
// removed key and a key set to null stay distinguishable.
func (d Diff) MarshalJSON() ([]byte, error) {
	out := diffJSON{Field: d.Field, Path: d.Path}
	if d.OldValue != nil {
		out.OldValue = Encode(d.OldValue)
	}
	if d.NewValue != nil {
		out.NewValue = Encode(d.NewValue)
	}
	return json.Marshal(out)
}

func (d *Diff) UnmarshalJSON(data []byte) error {
	var in diffJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*d = Diff{Field: in.Field, Path: in.Path}
	if len(in.OldValue) > 0 {
		v, err := Parse(in.OldValue)
		if err != nil {
			return fmt.Errorf("oldValue: %w", err)
		}
		d.OldValue = v
	}
	if len(in.NewValue) > 0 {
		v, err := Parse(in.NewValue)
		if err != nil {
			return fmt.Errorf("newValue: %w", err)
		}
		d.NewValue = v
	}
	return nil
}

// Compare returns every leaf-level difference between before and after.
//
// Objects are walked key by key: keys of after in order, then keys that only
// before has. Arrays are opaque; two arrays differ when their canonical JSON
// differs and are then reported as one Diff carrying both arrays. Values of
// different kinds are reported as a single change at their path.
//
// The result order depends only on the inputs, and Compare never fails.
//
// Paths join keys with PathSeparator and do not escape it, so a key that
// itself contains "." yields a path that Apply reads as nesting. Field always
// holds the unsplit key.
func Compare(before, after Value) []Diff {
	return compareAt(nil, before, after, "", "")
}

func compareAt(diffs []Diff, before, after Value, path, field string) []Diff {
	bo, beforeIsObject := before.(Object)
	ao, afterIsObject := after.(Object)
	if beforeIsObject && afterIsObject {
		for _, key := range ao.keys {
			childPath := joinPath(path, key)
			bv, ok := bo.fields[key]
			if !ok {
				diffs = append(diffs, Diff{Field: key, NewValue: ao.fields[key], Path: childPath})
				continue
			}
			diffs = compareAt(diffs, bv, ao.fields[key], childPath, key)
		}
		for _, key := range bo.keys {
			if _, ok := ao.fields[key]; ok {
				continue
			}
			diffs = append(diffs, Diff{Field: key, OldValue: bo.fields[key], Path: joinPath(path, key)})
		}
		return diffs
	}

	ba, beforeIsArray := before.(Array)
	aa, afterIsArray := after.(Array)
	if beforeIsArray && afterIsArray {
		if !bytes.Equal(Encode(ba), Encode(aa)) {
			diffs = append(diffs, Diff{Field: field, OldValue: before, NewValue: after, Path: path})
		}
		return diffs
	}

	if !leafEqual(before, after) {
		diffs = append(diffs, Diff{Field: field, OldValue: before, NewValue: after, Path: path})
	}
	return diffs
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + PathSeparator + key
}

// Apply writes each diff's NewValue at its path, creating intermediate
// objects as needed, and returns the resulting document. A nil NewValue
// deletes the key. doc itself is left untouched.
//
// Apply(a, Compare(a, b)) reproduces b only when no object key in a or b
// contains PathSeparator; such keys are split into nested objects.
func Apply(doc Value, diffs []Diff) Value {
	for _, d := range diffs {
		if d.Path == "" {
			doc = d.NewValue
			continue
		}
		doc = setPath(doc, strings.Split(d.Path, PathSeparator), d.NewValue)
	}
	return doc
}

func setPath(node Value, segments []string, v Value) Value {
	obj, _ := node.(Object)
	key := segments[0]

	if len(segments) == 1 {
		return obj.With(key, v)
	}

	child, ok := obj.Get(key)
	if !ok && v == nil {
		return obj
	}
	return obj.With(key, setPath(child, segments[1:], v))
}

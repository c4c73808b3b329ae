package repository

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

type mutationKind int

const (
	mutSet mutationKind = iota
	mutIncrement
	mutArrayUnion
	mutArrayRemove
)

// Mutation is one field-level change applied by DocumentStore.Update.
// Build them with SetField, Increment, ArrayUnion and ArrayRemove.
type Mutation struct {
	kind  mutationKind
	Field string
	Value any
	Delta int64
}

// SetField replaces the value at path, creating intermediate maps as needed.
func SetField(path string, value any) Mutation {
	return Mutation{kind: mutSet, Field: path, Value: value}
}

// Increment adds delta to the number at path. A missing field counts as 0.
func Increment(path string, delta int64) Mutation {
	return Mutation{kind: mutIncrement, Field: path, Delta: delta}
}

// ArrayUnion appends value to the array at path unless an equal element is
// already present.
func ArrayUnion(path string, value any) Mutation {
	return Mutation{kind: mutArrayUnion, Field: path, Value: value}
}

// ArrayRemove deletes every element equal to value from the array at path.
func ArrayRemove(path string, value any) Mutation {
	return Mutation{kind: mutArrayRemove, Field: path, Value: value}
}

func (m Mutation) String() string {
	switch m.kind {
	case mutSet:
		return "set " + m.Field
	case mutIncrement:
		return fmt.Sprintf("increment %s by %d", m.Field, m.Delta)
	case mutArrayUnion:
		return "array-union " + m.Field
	default:
		return "array-remove " + m.Field
	}
}

// Apply performs the mutation on a decoded JSON document. Numbers in doc are
// expected as json.Number (decode with UseNumber) so large integers such as
// timestamps survive unchanged.
func (m Mutation) Apply(doc map[string]any) error {
	if err := ValidatePath(m.Field); err != nil {
		return err
	}
	parent, key, err := walk(doc, m.Field)
	if err != nil {
		return err
	}

	switch m.kind {
	case mutSet:
		v, err := normalize(m.Value)
		if err != nil {
			return err
		}
		parent[key] = v

	case mutIncrement:
		var cur int64
		switch n := parent[key].(type) {
		case nil:
		case json.Number:
			if i, err := n.Int64(); err == nil {
				cur = i
			} else if f, err := n.Float64(); err == nil {
				cur = int64(f)
			} else {
				return fmt.Errorf("repository: field %q is not a number", m.Field)
			}
		case float64:
			cur = int64(n)
		default:
			return fmt.Errorf("repository: field %q is not a number", m.Field)
		}
		parent[key] = json.Number(fmt.Sprint(cur + m.Delta))

	case mutArrayUnion, mutArrayRemove:
		arr, err := asArray(parent[key], m.Field)
		if err != nil {
			return err
		}
		v, err := normalize(m.Value)
		if err != nil {
			return err
		}
		if m.kind == mutArrayUnion {
			for _, e := range arr {
				if reflect.DeepEqual(e, v) {
					return nil
				}
			}
			parent[key] = append(arr, v)
			return nil
		}
		kept := make([]any, 0, len(arr))
		for _, e := range arr {
			if !reflect.DeepEqual(e, v) {
				kept = append(kept, e)
			}
		}
		parent[key] = kept
	}
	return nil
}

// walk descends to the map holding the last path segment, creating maps for
// missing intermediate segments.
func walk(doc map[string]any, path string) (map[string]any, string, error) {
	segs := strings.Split(path, ".")
	cur := doc
	for _, s := range segs[:len(segs)-1] {
		next, ok := cur[s]
		if !ok || next == nil {
			m := map[string]any{}
			cur[s] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("repository: %q is not an object in path %q", s, path)
		}
		cur = m
	}
	return cur, segs[len(segs)-1], nil
}

func asArray(v any, field string) ([]any, error) {
	switch a := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return a, nil
	default:
		return nil, fmt.Errorf("repository: field %q is not an array", field)
	}
}

// normalize converts a Go value into the generic form produced by decoding
// JSON with UseNumber, so DeepEqual compares like with like.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("repository: encoding value: %w", err)
	}
	return DecodeGeneric(b)
}

// DecodeGeneric decodes JSON into map/slice/json.Number values.
func DecodeGeneric(b []byte) (any, error) {
	dec := json.NewDecoder(strings.NewReader(string(b)))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("repository: decoding document: %w", err)
	}
	return out, nil
}

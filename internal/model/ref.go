package model

import (
	"bytes"
	"encoding/json"
)

// Record is implemented by every entity that can be the target of a Ref.
type Record interface {
	RecordID() string
}

// Ref is a reference to a T that is either Unresolved (only the id is known)
// or Resolved (the full record was hydrated by the read path). The id is
// always available regardless of the variant.
//
// JSON encodes an unresolved ref as the bare id string and a resolved ref as
// the record object.
type Ref[T Record] struct {
	id  string
	rec *T
}

// Unresolved returns a reference carrying only the target id.
func Unresolved[T Record](id string) Ref[T] {
	return Ref[T]{id: id}
}

// Resolved returns a reference carrying the full record.
func Resolved[T Record](rec T) Ref[T] {
	return Ref[T]{id: rec.RecordID(), rec: &rec}
}

// ID returns the referenced record id.
func (r Ref[T]) ID() string { return r.id }

// IsResolved reports whether the full record is attached.
func (r Ref[T]) IsResolved() bool { return r.rec != nil }

// Record returns the hydrated record, if any.
func (r Ref[T]) Record() (T, bool) {
	if r.rec == nil {
		var zero T
		return zero, false
	}
	return *r.rec, true
}

// Unresolve drops the hydrated record and keeps only the id.
func (r Ref[T]) Unresolve() Ref[T] {
	return Ref[T]{id: r.id}
}

func (r Ref[T]) MarshalJSON() ([]byte, error) {
	if r.rec != nil {
		return json.Marshal(r.rec)
	}
	return json.Marshal(r.id)
}

func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*r = Ref[T]{}
		return nil
	case len(data) > 0 && data[0] == '"':
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = Unresolved[T](id)
		return nil
	default:
		var rec T
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		*r = Resolved(rec)
		return nil
	}
}

// RefIDs returns the ids of the given refs in order.
func RefIDs[T Record](refs []Ref[T]) []string {
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID()
	}
	return ids
}

// UnresolvedRefs builds unresolved refs for the given ids.
func UnresolvedRefs[T Record](ids []string) []Ref[T] {
	refs := make([]Ref[T], len(ids))
	for i, id := range ids {
		refs[i] = Unresolved[T](id)
	}
	return refs
}

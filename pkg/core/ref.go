package core

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// RefState enumerates the three observable states of a reference slot.
type RefState int

const (
	// RefUnset means the field was never set: neither key nor document.
	RefUnset RefState = iota
	// RefKey means the slot holds an unresolved scalar identifier.
	RefKey
	// RefDocument means the slot holds a materialized document.
	RefDocument
)

func (s RefState) String() string {
	switch s {
	case RefKey:
		return "key"
	case RefDocument:
		return "document"
	default:
		return "unset"
	}
}

// Ref is a reference field: it holds either a foreign-key-like scalar or
// a fully hydrated document, never both. A slot starts unset; decoding a
// stored document produces the key variant; populate replaces the key
// with the document. Callers narrow via State, Key and Document before
// dereferencing.
type Ref[T any] struct {
	state RefState
	key   Key
	doc   *T
}

// RefTo builds a key-variant reference. A zero key yields an unset slot.
func RefTo[T any](key Key) Ref[T] {
	if key.IsZero() {
		return Ref[T]{}
	}
	return Ref[T]{state: RefKey, key: key}
}

// RefOf builds a document-variant reference. A nil document yields an
// unset slot. When doc exposes its primary key the slot retains it, so
// the key remains observable after population.
func RefOf[T any](doc *T) Ref[T] {
	if doc == nil {
		return Ref[T]{}
	}
	r := Ref[T]{state: RefDocument, doc: doc}
	if keyed, ok := any(doc).(Keyed); ok {
		r.key = keyed.DocumentKey()
	}
	return r
}

// State reports which variant the slot holds.
func (r Ref[T]) State() RefState { return r.state }

// IsUnset reports the third, absent state.
func (r Ref[T]) IsUnset() bool { return r.state == RefUnset }

// IsDocument reports whether the slot holds a materialized document.
func (r Ref[T]) IsDocument() bool { return r.state == RefDocument }

// IsRefType reports whether the slot holds an unresolved key.
func (r Ref[T]) IsRefType() bool { return r.state == RefKey }

// Key returns the scalar identifier. It is available in the key state
// and, when the document exposes one, in the document state too.
func (r Ref[T]) Key() (Key, bool) {
	if r.key.IsZero() {
		return Key{}, false
	}
	return r.key, true
}

// Document returns the hydrated document when the slot holds one.
func (r Ref[T]) Document() (*T, bool) {
	if r.state != RefDocument {
		return nil, false
	}
	return r.doc, true
}

// RefSlot is the reflection-facing contract of reference fields. The
// populate machinery uses it to read keys and install documents without
// knowing the concrete element type.
type RefSlot interface {
	RefKey() (Key, bool)
	RefState() RefState
	// SetRefKey replaces the held key, typically after the model layer
	// coerced a decoded scalar into the declared key variant. A zero key
	// resets the slot to unset.
	SetRefKey(key Key)
	// HydrateRef installs a hydrated document (a *T) into the slot,
	// replacing the key variant. Populate is its only caller.
	HydrateRef(doc any) error
}

// RefKey implements RefSlot.
func (r *Ref[T]) RefKey() (Key, bool) { return r.Key() }

// SetRefKey implements RefSlot.
func (r *Ref[T]) SetRefKey(key Key) {
	if key.IsZero() {
		*r = Ref[T]{}
		return
	}
	r.key = key
	r.state = RefKey
	r.doc = nil
}

// RefState implements RefSlot.
func (r *Ref[T]) RefState() RefState { return r.state }

// HydrateRef implements RefSlot.
func (r *Ref[T]) HydrateRef(doc any) error {
	d, ok := doc.(*T)
	if !ok {
		return fmt.Errorf("%w: cannot hydrate %T into Ref[%T]", ErrNotPopulatable, doc, *new(T))
	}
	if d == nil {
		return fmt.Errorf("%w: nil document", ErrNotPopulatable)
	}
	r.doc = d
	r.state = RefDocument
	if keyed, ok := any(d).(Keyed); ok && r.key.IsZero() {
		r.key = keyed.DocumentKey()
	}
	return nil
}

// MarshalJSON writes the key variant as its scalar and the document
// variant as the embedded object. Unset encodes as null.
func (r Ref[T]) MarshalJSON() ([]byte, error) {
	switch r.state {
	case RefKey:
		return json.Marshal(r.key)
	case RefDocument:
		return json.Marshal(r.doc)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON always produces the key variant: hydration is populate's
// job, not the decoder's. Scalars decode directly; objects contribute
// their "_id" field.
func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	var k Key
	if err := k.UnmarshalJSON(data); err == nil {
		*r = RefTo[T](k)
		return nil
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("cannot decode reference: %w", err)
	}
	key, ok := KeyFromValue(obj["_id"])
	if !ok {
		return fmt.Errorf("reference object has no usable _id field")
	}
	*r = RefTo[T](key)
	return nil
}

// MarshalYAML mirrors the JSON encoding.
func (r Ref[T]) MarshalYAML() (any, error) {
	switch r.state {
	case RefKey:
		return r.key.MarshalYAML()
	case RefDocument:
		return r.doc, nil
	default:
		return nil, nil
	}
}

// UnmarshalYAML mirrors the JSON decoding.
func (r *Ref[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		var obj map[string]any
		if err := node.Decode(&obj); err != nil {
			return fmt.Errorf("cannot decode reference: %w", err)
		}
		key, ok := KeyFromValue(obj["_id"])
		if !ok {
			return fmt.Errorf("reference object has no usable _id field")
		}
		*r = RefTo[T](key)
		return nil
	}
	var k Key
	if err := k.UnmarshalYAML(node); err != nil {
		return err
	}
	*r = RefTo[T](k)
	return nil
}

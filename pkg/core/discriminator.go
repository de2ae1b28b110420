package core

import "reflect"

// The discriminator predicates classify a reference-or-document value at
// runtime. They are pure, total and never panic: any input (including
// nil, typed nil pointers and non-sequence values passed to the slice
// forms) yields a boolean. Population is performed elsewhere; these
// functions only observe.

// IsDocument reports whether v is a materialized document: a value that
// carries the runtime Meta marker assigned during hydration. Key-variant
// scalars, plain structs (even ones embedding Base that were never
// hydrated), nil and typed nils all yield false.
func IsDocument(v any) bool {
	if isNilValue(v) {
		return false
	}
	if state, ok := refState(v); ok {
		return state == RefDocument
	}
	d, ok := v.(Document)
	if !ok {
		return false
	}
	return d.DocumentMeta() != nil
}

// IsRefType reports whether v is an unresolved key-variant reference:
// non-nil and not a document. An absent reference (nil, zero Key, unset
// Ref) is neither a key nor a document and yields false; callers handle
// the unset state separately.
func IsRefType(v any) bool {
	if isNilValue(v) {
		return false
	}
	if state, ok := refState(v); ok {
		return state == RefKey
	}
	if k, ok := v.(Key); ok {
		return !k.IsZero()
	}
	return !IsDocument(v)
}

// IsDocumentSlice reports whether v is a slice or array whose every
// element satisfies IsDocument. An empty sequence yields true; a
// non-sequence value yields false. Elements must be checked one by one:
// partial population leaves mixed sequences, which satisfy neither this
// predicate nor IsRefTypeSlice.
func IsDocumentSlice(v any) bool {
	return everyElement(v, IsDocument)
}

// IsRefTypeSlice reports whether v is a slice or array whose every
// element satisfies IsRefType. An empty sequence yields true; a
// non-sequence value yields false.
func IsRefTypeSlice(v any) bool {
	return everyElement(v, IsRefType)
}

func everyElement(v any, pred func(any) bool) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
	default:
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if !pred(rv.Index(i).Interface()) {
			return false
		}
	}
	return true
}

// refState recognizes Ref[T] values (and pointers to them) without
// knowing the element type.
func refState(v any) (RefState, bool) {
	if s, ok := v.(interface{ State() RefState }); ok {
		return s.State(), true
	}
	return RefUnset, false
}

// isNilValue treats untyped nil and nil-valued pointers, maps, slices,
// funcs and channels as absent. A typed nil pointer inside an interface
// must not reach a method call on the marker interface.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

package core

import (
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type testUser struct {
	Base
	Name string `json:"name"`
}

// hydrated builds a document the way the model layer does: by stamping
// the runtime marker onto a struct embedding Base.
func hydrated(name string) *testUser {
	u := &testUser{Name: name}
	u.SetDocumentMeta(&Meta{
		Key:        StringKey(name),
		Model:      "User",
		Collection: "users",
	})
	return u
}

func TestIsDocumentKeyVariants(t *testing.T) {
	oid, err := bson.ObjectIDFromHex("507f1f77bcf86cd799439011")
	if err != nil {
		t.Fatalf("ObjectIDFromHex failed: %v", err)
	}

	keyVariants := []any{
		int64(42),
		"507f1f77bcf86cd799439011",
		oid,
		[]byte{0x01, 0x02},
		Int64Key(42),
		StringKey("abc"),
		ObjectIDKey(oid),
		BufferKey([]byte{0x01}),
	}

	for _, v := range keyVariants {
		if IsDocument(v) {
			t.Errorf("IsDocument(%v) = true, want false", v)
		}
		if !IsRefType(v) {
			t.Errorf("IsRefType(%v) = false, want true", v)
		}
	}
}

func TestIsDocumentMaterialized(t *testing.T) {
	doc := hydrated("alice")

	if !IsDocument(doc) {
		t.Error("IsDocument(hydrated) = false, want true")
	}
	if IsRefType(doc) {
		t.Error("IsRefType(hydrated) = true, want false")
	}
}

func TestIsDocumentPlainStruct(t *testing.T) {
	// Embeds Base but never hydrated: carries no marker.
	plain := &testUser{Name: "bob"}

	if IsDocument(plain) {
		t.Error("IsDocument(plain struct) = true, want false")
	}
	if !IsRefType(plain) {
		t.Error("IsRefType(plain struct) = false, want true")
	}
}

func TestPredicatesNilSafety(t *testing.T) {
	var typedNil *testUser
	var nilAny any

	inputs := []any{nil, nilAny, typedNil, (map[string]any)(nil)}
	for _, v := range inputs {
		if IsDocument(v) {
			t.Errorf("IsDocument(%#v) = true, want false", v)
		}
		if IsRefType(v) {
			t.Errorf("IsRefType(%#v) = true, want false", v)
		}
	}

	// The zero Key is an absent reference, not a key variant.
	if IsRefType(Key{}) {
		t.Error("IsRefType(zero Key) = true, want false")
	}
}

func TestComplementLawNonNilDomain(t *testing.T) {
	values := []any{
		int64(1),
		"id",
		hydrated("carol"),
		&testUser{Name: "dan"},
		[]byte{0xff},
		3.5,
		struct{}{},
	}
	for _, v := range values {
		if IsDocument(v) == IsRefType(v) {
			t.Errorf("IsDocument and IsRefType agree on %#v; they must partition the non-nil domain", v)
		}
	}
}

func TestSlicePredicates(t *testing.T) {
	docs := []any{hydrated("a"), hydrated("b")}
	keys := []any{int64(1), "two"}
	mixed := []any{int64(1), hydrated("a")}

	if !IsDocumentSlice(docs) {
		t.Error("IsDocumentSlice(all documents) = false, want true")
	}
	if IsRefTypeSlice(docs) {
		t.Error("IsRefTypeSlice(all documents) = true, want false")
	}

	if !IsRefTypeSlice(keys) {
		t.Error("IsRefTypeSlice(all keys) = false, want true")
	}
	if IsDocumentSlice(keys) {
		t.Error("IsDocumentSlice(all keys) = true, want false")
	}

	// Partial population: neither predicate tolerates it.
	if IsDocumentSlice(mixed) {
		t.Error("IsDocumentSlice(mixed) = true, want false")
	}
	if IsRefTypeSlice(mixed) {
		t.Error("IsRefTypeSlice(mixed) = true, want false")
	}
}

func TestSlicePredicatesEmptyAndNonSequence(t *testing.T) {
	// Both vacuous truths coexist on the empty sequence.
	empty := []any{}
	if !IsDocumentSlice(empty) || !IsRefTypeSlice(empty) {
		t.Error("empty slice must satisfy both slice predicates")
	}

	// Typed slices work too.
	if !IsDocumentSlice([]*testUser{}) {
		t.Error("IsDocumentSlice(empty typed slice) = false, want true")
	}

	// Non-sequence inputs.
	for _, v := range []any{nil, 42, "nope", hydrated("x")} {
		if IsDocumentSlice(v) {
			t.Errorf("IsDocumentSlice(%#v) = true, want false", v)
		}
		if IsRefTypeSlice(v) {
			t.Errorf("IsRefTypeSlice(%#v) = true, want false", v)
		}
	}
}

func TestPredicatesOverRefValues(t *testing.T) {
	keyed := RefTo[testUser](StringKey("alice"))
	populated := RefOf(hydrated("alice"))
	var unset Ref[testUser]

	if IsDocument(keyed) || !IsRefType(keyed) {
		t.Error("key-variant Ref must be ref-type, not document")
	}
	if !IsDocument(populated) || IsRefType(populated) {
		t.Error("document-variant Ref must be document, not ref-type")
	}
	if IsDocument(unset) || IsRefType(unset) {
		t.Error("unset Ref is neither key nor document")
	}

	if !IsRefTypeSlice([]Ref[testUser]{keyed, keyed}) {
		t.Error("slice of key-variant refs must satisfy IsRefTypeSlice")
	}
	if !IsDocumentSlice([]Ref[testUser]{populated}) {
		t.Error("slice of populated refs must satisfy IsDocumentSlice")
	}
	if IsDocumentSlice([]Ref[testUser]{keyed, populated}) || IsRefTypeSlice([]Ref[testUser]{keyed, populated}) {
		t.Error("partially populated ref slice satisfies neither predicate")
	}
}

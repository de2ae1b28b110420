package core

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"go.mongodb.org/mongo-driver/v2/bson"
	"gopkg.in/yaml.v3"
)

// KeyKind identifies which scalar variant a Key holds.
type KeyKind int

const (
	KeyNone KeyKind = iota
	KeyInt64
	KeyString
	KeyObjectID
	KeyBuffer
)

// String returns the kind name as used in schema declarations.
func (k KeyKind) String() string {
	switch k {
	case KeyInt64:
		return "int64"
	case KeyString:
		return "string"
	case KeyObjectID:
		return "objectid"
	case KeyBuffer:
		return "buffer"
	default:
		return "none"
	}
}

// Key is the unresolved form of a reference: a foreign-key-like scalar
// identifying a document that has not been loaded yet.
// The zero Key means "no key" (see IsZero); an absent key is neither a
// key variant nor a document variant.
type Key struct {
	kind KeyKind
	i64  int64
	str  string
	oid  bson.ObjectID
	buf  []byte
}

// Int64Key wraps a 64-bit integer identifier.
func Int64Key(v int64) Key {
	return Key{kind: KeyInt64, i64: v}
}

// StringKey wraps a string identifier.
func StringKey(v string) Key {
	return Key{kind: KeyString, str: v}
}

// ObjectIDKey wraps a 12-byte object identifier.
func ObjectIDKey(v bson.ObjectID) Key {
	return Key{kind: KeyObjectID, oid: v}
}

// BufferKey wraps an opaque byte identifier. The buffer is copied.
func BufferKey(v []byte) Key {
	return Key{kind: KeyBuffer, buf: bytes.Clone(v)}
}

// NewObjectIDKey generates a fresh object-identifier key.
func NewObjectIDKey() Key {
	return ObjectIDKey(bson.NewObjectID())
}

// Kind reports which variant the key holds.
func (k Key) Kind() KeyKind { return k.kind }

// IsZero reports whether the key is absent.
func (k Key) IsZero() bool { return k.kind == KeyNone }

// Int64 returns the integer variant.
func (k Key) Int64() (int64, bool) {
	return k.i64, k.kind == KeyInt64
}

// Str returns the string variant.
func (k Key) Str() (string, bool) {
	return k.str, k.kind == KeyString
}

// ObjectID returns the object-identifier variant.
func (k Key) ObjectID() (bson.ObjectID, bool) {
	return k.oid, k.kind == KeyObjectID
}

// Buffer returns a copy of the byte-buffer variant.
func (k Key) Buffer() ([]byte, bool) {
	if k.kind != KeyBuffer {
		return nil, false
	}
	return bytes.Clone(k.buf), true
}

// Value returns the underlying scalar (int64, string, bson.ObjectID or
// []byte), or nil for the zero Key. Used by serializers.
func (k Key) Value() any {
	switch k.kind {
	case KeyInt64:
		return k.i64
	case KeyString:
		return k.str
	case KeyObjectID:
		return k.oid
	case KeyBuffer:
		return bytes.Clone(k.buf)
	default:
		return nil
	}
}

// String renders the key as a stable identifier string: decimal for
// integers, the raw value for strings, hex for object identifiers and
// byte buffers. The rendering is used for filenames and log fields.
func (k Key) String() string {
	switch k.kind {
	case KeyInt64:
		return strconv.FormatInt(k.i64, 10)
	case KeyString:
		return k.str
	case KeyObjectID:
		return k.oid.Hex()
	case KeyBuffer:
		return hex.EncodeToString(k.buf)
	default:
		return ""
	}
}

// Equal reports whether two keys hold the same variant and value.
func (k Key) Equal(o Key) bool {
	if k.kind != o.kind {
		return false
	}
	switch k.kind {
	case KeyInt64:
		return k.i64 == o.i64
	case KeyString:
		return k.str == o.str
	case KeyObjectID:
		return k.oid == o.oid
	case KeyBuffer:
		return bytes.Equal(k.buf, o.buf)
	default:
		return true
	}
}

// MarshalJSON encodes the underlying scalar: integers as numbers,
// strings as strings, object identifiers as hex strings and buffers as
// base64 strings. The zero Key encodes as null.
func (k Key) MarshalJSON() ([]byte, error) {
	switch k.kind {
	case KeyInt64:
		return json.Marshal(k.i64)
	case KeyString:
		return json.Marshal(k.str)
	case KeyObjectID:
		return json.Marshal(k.oid.Hex())
	case KeyBuffer:
		return json.Marshal(base64.StdEncoding.EncodeToString(k.buf))
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a scalar into a key. Numbers become int64 keys,
// strings become string keys (schema-driven coercion may refine the kind
// later, see CoerceKey), null becomes the zero Key.
func (k *Key) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*k = Key{}
		return nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		*k = StringKey(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err == nil {
		i, err := n.Int64()
		if err != nil {
			return fmt.Errorf("key must be an integer number: %w", err)
		}
		*k = Int64Key(i)
		return nil
	}

	return fmt.Errorf("cannot decode %s as a key scalar", trimmed)
}

// MarshalYAML mirrors the JSON encoding.
func (k Key) MarshalYAML() (any, error) {
	switch k.kind {
	case KeyBuffer:
		return base64.StdEncoding.EncodeToString(k.buf), nil
	case KeyObjectID:
		return k.oid.Hex(), nil
	default:
		return k.Value(), nil
	}
}

// UnmarshalYAML mirrors the JSON decoding.
func (k *Key) UnmarshalYAML(node *yaml.Node) error {
	var i int64
	if err := node.Decode(&i); err == nil {
		*k = Int64Key(i)
		return nil
	}
	var s string
	if err := node.Decode(&s); err == nil {
		*k = StringKey(s)
		return nil
	}
	if node.Tag == "!!null" {
		*k = Key{}
		return nil
	}
	return fmt.Errorf("cannot decode yaml %s as a key scalar", node.Tag)
}

// KeyFromValue detects the key variant of a raw scalar. It accepts the
// four key-variant types plus the loose forms serializers produce
// (any integer width, integral floats, json.Number). It returns false
// for nil and for values that are not key-shaped.
func KeyFromValue(v any) (Key, bool) {
	switch t := v.(type) {
	case nil:
		return Key{}, false
	case Key:
		return t, !t.IsZero()
	case int:
		return Int64Key(int64(t)), true
	case int32:
		return Int64Key(int64(t)), true
	case int64:
		return Int64Key(t), true
	case uint32:
		return Int64Key(int64(t)), true
	case float64:
		if t == float64(int64(t)) {
			return Int64Key(int64(t)), true
		}
		return Key{}, false
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return Key{}, false
		}
		return Int64Key(i), true
	case string:
		return StringKey(t), true
	case bson.ObjectID:
		return ObjectIDKey(t), true
	case []byte:
		return BufferKey(t), true
	default:
		return Key{}, false
	}
}

// CoerceKey converts a raw scalar into a key of the requested kind.
// Serializers lose the distinction between strings, hex object
// identifiers and base64 buffers; the schema records the intended kind
// and this function re-establishes it on read.
func CoerceKey(kind KeyKind, v any) (Key, error) {
	k, ok := KeyFromValue(v)
	if !ok {
		return Key{}, fmt.Errorf("value %v (%T) is not key-shaped", v, v)
	}
	if kind == KeyNone || k.kind == kind {
		return k, nil
	}

	switch kind {
	case KeyObjectID:
		s, ok := k.Str()
		if !ok {
			return Key{}, fmt.Errorf("cannot coerce %s key to objectid", k.kind)
		}
		oid, err := bson.ObjectIDFromHex(s)
		if err != nil {
			return Key{}, fmt.Errorf("invalid object identifier %q: %w", s, err)
		}
		return ObjectIDKey(oid), nil
	case KeyBuffer:
		s, ok := k.Str()
		if !ok {
			return Key{}, fmt.Errorf("cannot coerce %s key to buffer", k.kind)
		}
		buf, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Key{}, fmt.Errorf("invalid buffer key %q: %w", s, err)
		}
		return BufferKey(buf), nil
	case KeyInt64:
		if s, ok := k.Str(); ok {
			i, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return Key{}, fmt.Errorf("invalid int64 key %q: %w", s, err)
			}
			return Int64Key(i), nil
		}
		return Key{}, fmt.Errorf("cannot coerce %s key to int64", k.kind)
	case KeyString:
		return StringKey(k.String()), nil
	default:
		return Key{}, fmt.Errorf("unknown key kind %d", kind)
	}
}

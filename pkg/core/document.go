// Meta and Base define the runtime marker that distinguishes a
// materialized document from plain data.
package core

import "time"

// Meta is the identity and lifecycle marker the runtime stamps on
// materialized documents. It is assigned exclusively by the model layer
// during hydration; a struct that merely embeds Base carries no Meta and
// is therefore not a document as far as the discriminator is concerned.
type Meta struct {
	Key        Key
	Model      string // owning model tag
	Collection string
	IsNew      bool
	LoadedAt   time.Time
}

// Document is the runtime marker interface carried by materialized
// documents. User structs obtain it by embedding Base.
type Document interface {
	// DocumentMeta returns the runtime marker, or nil when the value has
	// not been materialized by a model.
	DocumentMeta() *Meta
}

// MetaSetter is satisfied by Base. The model layer uses it to attach the
// marker during hydration; application code has no reason to call it.
type MetaSetter interface {
	SetDocumentMeta(m *Meta)
}

// Keyed exposes the primary key slot of a document struct.
type Keyed interface {
	DocumentKey() Key
	SetDocumentKey(k Key)
}

// Base is the embeddable document base. It holds the primary key and the
// runtime marker.
//
//	type User struct {
//		core.Base `yaml:",inline"`
//		Email     string `json:"email"`
//	}
type Base struct {
	ID Key `json:"_id,omitzero" yaml:"_id,omitempty"`

	meta *Meta
}

// DocumentMeta implements Document.
func (b *Base) DocumentMeta() *Meta { return b.meta }

// SetDocumentMeta implements MetaSetter.
func (b *Base) SetDocumentMeta(m *Meta) {
	b.meta = m
	if m != nil && !m.Key.IsZero() {
		b.ID = m.Key
	}
}

// DocumentKey implements Keyed.
func (b *Base) DocumentKey() Key { return b.ID }

// SetDocumentKey implements Keyed.
func (b *Base) SetDocumentKey(k Key) { b.ID = k }

var (
	_ Document   = (*Base)(nil)
	_ MetaSetter = (*Base)(nil)
	_ Keyed      = (*Base)(nil)
)

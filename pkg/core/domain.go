// Package core defines the storage-agnostic contracts of silt: keys,
// records, repositories, references and the document guards built on
// top of them.
package core

import "fmt"

// Metadata represents the flexible field map carried by a stored record.
type Metadata map[string]any

// Clone returns a shallow copy of the field map.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Record is what adapters persist: a collection name, a primary key and
// the raw field map. Models convert between records and typed structs;
// adapters never see user types.
type Record struct {
	Collection string
	Key        Key
	Fields     Metadata
}

// EventType represents the type of change in the store.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
)

// Event represents a change in the store.
type Event struct {
	Type       EventType
	Collection string
	ID         string // key rendering, see Key.String
	Timestamp  int64  // Unix timestamp
}

// String implements the lifecycle event contract.
func (e Event) String() string {
	return fmt.Sprintf("%s %s/%s", e.Type, e.Collection, e.ID)
}

type contextKey string

// ChangeReasonKey is the context key for passing specific change reasons
// (commit messages) during Save/Delete operations.
const ChangeReasonKey contextKey = "change_reason"

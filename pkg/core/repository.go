package core

import "context"

// Repository defines the contract for storing and retrieving records.
// Adhering to this interface allows the model layer to be independent of
// the underlying storage mechanism (Filesystem, memory, SQL, S3, etc).
type Repository interface {
	// Save persists a record. It creates if not exists, or updates if it does.
	Save(ctx context.Context, rec Record) error

	// Get retrieves a record by collection and key.
	Get(ctx context.Context, collection string, key Key) (Record, error)

	// List returns all records of a collection.
	List(ctx context.Context, collection string) ([]Record, error)

	// Collections enumerates the known collection names.
	Collections(ctx context.Context) ([]string, error)

	// Delete removes a record.
	Delete(ctx context.Context, collection string, key Key) error

	// Initialize ensures the underlying storage is ready (e.g., create
	// directories, git init, schema migration).
	Initialize(ctx context.Context) error
}

// Syncable defines an interface for repositories that support
// synchronization with a remote.
type Syncable interface {
	// Sync synchronizes the local state with a remote source (e.g. git pull/push).
	Sync(ctx context.Context) error
}

// Watchable defines an interface for repositories that can emit change
// events. The pattern is a doublestar glob over "collection/id" paths.
type Watchable interface {
	Watch(ctx context.Context, pattern string) (<-chan Event, error)
}

// IndexSpec is the storage-level form of a secondary index declaration,
// produced by schema assembly and consumed by indexed repositories.
type IndexSpec struct {
	Name               string
	Fields             []string
	Unique             bool
	Sparse             bool
	ExpireAfterSeconds *int32

	// PartialFilter is a boolean expression over the raw field map.
	// Records it rejects are left out of the index, so unique
	// constraints only bind among the matching records.
	PartialFilter string

	// Passthrough carries adapter-specific settings uninterpreted.
	Passthrough map[string]any
}

// IndexedRepository is implemented by backends that can maintain
// secondary indexes declared on a schema.
type IndexedRepository interface {
	Repository

	// EnsureIndexes installs (or refreshes) the index set of a collection.
	EnsureIndexes(ctx context.Context, collection string, specs []IndexSpec) error
}

// Transaction defines the contract for a unit of work. Changes made
// within a transaction are atomic and isolated (depending on
// implementation).
type Transaction interface {
	// Save stages a record for persistence.
	Save(ctx context.Context, rec Record) error

	// Get retrieves a record, preferring the staged version if it exists
	// in the transaction.
	Get(ctx context.Context, collection string, key Key) (Record, error)

	// Delete stages a record for removal.
	Delete(ctx context.Context, collection string, key Key) error

	// Commit applies all staged changes atomically.
	Commit(ctx context.Context, changeReason string) error

	// Rollback discards all staged changes.
	Rollback(ctx context.Context) error
}

// Transactional extends Repository to support transactions.
type Transactional interface {
	Repository

	// Begin starts a new transaction.
	Begin(ctx context.Context) (Transaction, error)
}

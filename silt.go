package silt

import (
	"log/slog"

	"github.com/aretw0/silt/internal/platform"
	"github.com/aretw0/silt/pkg/core"
	"github.com/aretw0/silt/pkg/model"
	"github.com/aretw0/silt/pkg/schema"
)

// --- Types ---

// Key identifies a record. The zero Key means "absent".
type Key = core.Key

// Ref is a tagged reference to another document: unset, key, or a
// materialized document.
type Ref[T any] = core.Ref[T]

// Base is the embeddable document base carrying the key and runtime
// metadata. Every model struct must embed it.
type Base = core.Base

// Registry binds models to a repository.
type Registry = model.Registry

// Model is a typed collection handle.
type Model[T any] = model.Model[T]

// Schema describes the shape, validation and hooks of a collection.
type Schema = schema.Schema

// Repository is the storage contract models run on.
type Repository = core.Repository

// Event is a change notification from a watched repository.
type Event = core.Event

// --- Key constructors ---

// Int64Key builds an integer key.
func Int64Key(v int64) Key { return core.Int64Key(v) }

// StringKey builds a string key.
func StringKey(v string) Key { return core.StringKey(v) }

// NewObjectIDKey builds a fresh ObjectID key.
func NewObjectIDKey() Key { return core.NewObjectIDKey() }

// BufferKey builds a byte-slice key.
func BufferKey(v []byte) Key { return core.BufferKey(v) }

// --- Reference constructors and guards ---

// RefTo builds a key-only reference. A zero key yields an unset ref.
func RefTo[T any](key Key) Ref[T] { return core.RefTo[T](key) }

// RefOf builds a materialized reference to an already-loaded document.
func RefOf[T any](doc *T) Ref[T] { return core.RefOf[T](doc) }

// IsDocument reports whether v is a document materialized through a model.
func IsDocument(v any) bool { return core.IsDocument(v) }

// IsRefType reports whether v is a plain reference value (key or
// unhydrated struct), the complement of IsDocument over non-nil values.
func IsRefType(v any) bool { return core.IsRefType(v) }

// IsDocumentSlice reports whether every element of the slice is a document.
func IsDocumentSlice(v any) bool { return core.IsDocumentSlice(v) }

// IsRefTypeSlice reports whether every element of the slice is a plain reference.
func IsRefTypeSlice(v any) bool { return core.IsRefTypeSlice(v) }

// --- Configuration ---

// Option defines a functional option for configuring silt.
type Option = platform.Option

// WithAutoInit enables automatic initialization of the store (creates directory and git init).
func WithAutoInit(auto bool) Option {
	return platform.WithAutoInit(auto)
}

// WithVersioning enables or disables version control (e.g. Git).
func WithVersioning(enabled bool) Option {
	return platform.WithVersioning(enabled)
}

// WithForceTemp forces the use of a temporary directory (useful for testing).
func WithForceTemp(force bool) Option {
	return platform.WithForceTemp(force)
}

// WithMustExist ensures the store directory must already exist.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithLogger sets the logger for the runtime.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithRepository allows injecting a custom storage adapter.
func WithRepository(repo core.Repository) Option {
	return platform.WithRepository(repo)
}

// WithAdapter allows specifying the storage adapter to use by name
// ("fs" or "memory").
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithSystemDir allows specifying the hidden bookkeeping directory name (e.g. ".silt").
func WithSystemDir(name string) Option {
	return platform.WithSystemDir(name)
}

// WithDefaultFormat sets the extension for newly written records.
func WithDefaultFormat(ext string) Option {
	return platform.WithDefaultFormat(ext)
}

// WithStrict enables precision-preserving number decoding in the default serializers.
func WithStrict(strict bool) Option {
	return platform.WithStrict(strict)
}

// WithSerializer registers a custom serializer for a file extension.
func WithSerializer(ext string, s any) Option {
	return platform.WithSerializer(ext, s)
}

// WithReadOnly enables read-only mode.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithDevSafety controls the sandbox mechanism for `go run` sessions.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// WithWatcherErrorHandler registers a callback for asynchronous watcher errors.
func WithWatcherErrorHandler(fn func(error)) Option {
	return platform.WithWatcherErrorHandler(fn)
}

// WithGlobalSchemaOptions sets schema defaults inherited by every registered model.
func WithGlobalSchemaOptions(g schema.GlobalOptions) Option {
	return platform.WithGlobalSchemaOptions(g)
}

// --- Factory ---

// New opens (or creates) a store and returns a model registry bound to it.
func New(path string, opts ...Option) (*Registry, error) {
	return platform.New(path, opts...)
}

// Init initializes a repository explicitly, without the model layer.
func Init(path string, opts ...Option) (core.Repository, error) {
	return platform.Init(path, opts...)
}

// --- Model registration ---

// Register binds a schema and a struct type to a registry and returns
// the typed model.
func Register[T any](r *Registry, sc *schema.Schema, opts ...model.ModelOption) (*Model[T], error) {
	return model.Register[T](r, sc, opts...)
}

// MustRegister is Register that panics on error. Intended for package
// init of applications with static schemas.
func MustRegister[T any](r *Registry, sc *schema.Schema, opts ...model.ModelOption) *Model[T] {
	return model.MustRegister[T](r, sc, opts...)
}

// --- Operations ---

// Sync performs a synchronization (pull/push) of the store.
func Sync(path string, opts ...Option) error {
	return platform.Sync(path, opts...)
}

// --- Safety & Utils ---

// ResolveStorePath determines the actual path for the store based on safety rules.
func ResolveStorePath(userPath string, forceTemp bool) string {
	return platform.ResolveStorePath(userPath, forceTemp)
}

// IsDevRun checks if the current process is running via `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}

// FindStoreRoot recursively looks upwards for a store root indicator.
func FindStoreRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}

// --- Semantic Commits ---

const (
	CommitTypeFeat     = platform.CommitTypeFeat
	CommitTypeFix      = platform.CommitTypeFix
	CommitTypeDocs     = platform.CommitTypeDocs
	CommitTypeStyle    = platform.CommitTypeStyle
	CommitTypeRefactor = platform.CommitTypeRefactor
	CommitTypePerf     = platform.CommitTypePerf
	CommitTypeTest     = platform.CommitTypeTest
	CommitTypeChore    = platform.CommitTypeChore
)

// FormatChangeReason builds a Conventional Commit message.
func FormatChangeReason(ctype, scope, subject, body string) string {
	return platform.FormatChangeReason(ctype, scope, subject, body)
}

// AppendFooter appends the silt footer to an arbitrary message.
func AppendFooter(msg string) string {
	return platform.AppendFooter(msg)
}

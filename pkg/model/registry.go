// Package model binds assembled schemas to typed Go structs and a
// repository, giving each registered type a full document API: CRUD,
// hooks, validation, population and watching.
package model

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/aretw0/introspection"

	"github.com/aretw0/silt/pkg/core"
	"github.com/aretw0/silt/pkg/schema"
)

// Registry holds the registered models of one repository. Reference
// targets (PropOptions.Ref, virtuals) are resolved through it by model
// name.
type Registry struct {
	mu      sync.RWMutex
	repo    core.Repository
	models  map[string]modelRef
	globals schema.GlobalOptions
	logger  *slog.Logger
}

// modelRef is the untyped face a model shows to the populate machinery
// of sibling models.
type modelRef interface {
	Name() string
	Collection() string
	Schema() *schema.Schema

	// findAny returns the hydrated *T for a key as any.
	findAny(ctx context.Context, key core.Key) (any, error)
	// findByForeign returns the hydrated documents whose foreignField
	// matches value, after applying the extra equality filters.
	findByForeign(ctx context.Context, foreignField string, value any, match map[string]any) ([]any, error)
}

// RegistryOption configures a registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger models inherit.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// WithGlobalOptions sets defaults merged into every registration.
func WithGlobalOptions(opts schema.GlobalOptions) RegistryOption {
	return func(r *Registry) { r.globals = opts }
}

// NewRegistry creates a registry over a repository.
func NewRegistry(repo core.Repository, opts ...RegistryOption) *Registry {
	r := &Registry{
		repo:   repo,
		models: make(map[string]modelRef),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Repository returns the underlying repository.
func (r *Registry) Repository() core.Repository { return r.repo }

// ModelNames returns the registered model names, sorted.
func (r *Registry) ModelNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (modelRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m, ok
}

// RegistryState exposes internal state for observability.
type RegistryState struct {
	Models         []string `json:"models"`
	RepositoryType string   `json:"repository_type"`
}

// State implements introspection.Introspectable.
func (r *Registry) State() any {
	repoType := "repository"
	if comp, ok := r.repo.(introspection.Component); ok {
		repoType = comp.ComponentType()
	}
	return RegistryState{
		Models:         r.ModelNames(),
		RepositoryType: repoType,
	}
}

// ComponentType implements introspection.Component.
func (r *Registry) ComponentType() string {
	return "model-registry"
}

var (
	_ introspection.Introspectable = (*Registry)(nil)
	_ introspection.Component      = (*Registry)(nil)
)

// Register binds T to a schema under the registry. *T must embed
// core.Base (or otherwise implement core.Document, core.MetaSetter and
// core.Keyed). The model name derives from the Go type name unless
// ModelOptions override it; registering the same name twice fails. The
// model persists through the registry's repository unless WithRepository
// binds another one.
func Register[T any](r *Registry, sc *schema.Schema, opts ...ModelOption) (*Model[T], error) {
	var probe any = new(T)
	if _, ok := probe.(core.Document); !ok {
		return nil, fmt.Errorf("model %T: must embed core.Base", probe)
	}
	if _, ok := probe.(core.MetaSetter); !ok {
		return nil, fmt.Errorf("model %T: must embed core.Base", probe)
	}
	if _, ok := probe.(core.Keyed); !ok {
		return nil, fmt.Errorf("model %T: must embed core.Base", probe)
	}

	var mo schema.ModelOptions
	for _, opt := range opts {
		opt(&mo)
	}

	sc = mergeSchemaOptions(sc, r.globals.SchemaOptions, mo.SchemaOptions)

	name := mo.CustomName
	if name == "" {
		name = reflect.TypeFor[T]().Name()
	}
	if name == "" {
		return nil, fmt.Errorf("cannot derive a model name for %T; set a custom name", probe)
	}
	if mo.AutomaticName {
		name = name + "_" + sc.Collection()
	}

	repo := r.repo
	if mo.ExistingRepository != nil {
		repo = mo.ExistingRepository
	}

	m := &Model[T]{
		name:     name,
		schema:   sc,
		repo:     repo,
		registry: r,
		logger:   r.logger.With("model", name),
	}

	r.mu.Lock()
	if _, exists := r.models[name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("model %q is already registered", name)
	}
	r.models[name] = m
	r.mu.Unlock()

	if mo.RunSyncIndexes || r.globals.RunSyncIndexes {
		if err := m.SyncIndexes(context.Background()); err != nil {
			m.logger.Warn("index sync failed at registration", "error", err)
		}
	}

	return m, nil
}

// MustRegister is Register that panics on error, for package-level model
// variables.
func MustRegister[T any](r *Registry, sc *schema.Schema, opts ...ModelOption) *Model[T] {
	m, err := Register[T](r, sc, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// ModelOption configures one registration.
type ModelOption func(*schema.ModelOptions)

// WithCustomName overrides the derived model name.
func WithCustomName(name string) ModelOption {
	return func(o *schema.ModelOptions) { o.CustomName = name }
}

// WithAutomaticName suffixes the model name with the collection.
func WithAutomaticName() ModelOption {
	return func(o *schema.ModelOptions) { o.AutomaticName = true }
}

// WithSyncIndexes pushes index declarations to the repository at
// registration time.
func WithSyncIndexes() ModelOption {
	return func(o *schema.ModelOptions) { o.RunSyncIndexes = true }
}

// WithRepository binds the model to the given repository instead of the
// registry's own. The model stays registered for reference resolution,
// so sibling models can populate across backends.
func WithRepository(repo core.Repository) ModelOption {
	return func(o *schema.ModelOptions) { o.ExistingRepository = repo }
}

// WithSchemaOptions overrides schema options for this registration only.
func WithSchemaOptions(so schema.SchemaOptions) ModelOption {
	return func(o *schema.ModelOptions) { o.SchemaOptions = &so }
}

// mergeSchemaOptions layers global and per-registration overrides on top
// of the schema's own options, rebuilding only when something changes.
func mergeSchemaOptions(sc *schema.Schema, global schema.SchemaOptions, override *schema.SchemaOptions) *schema.Schema {
	merged := sc.Options()

	if merged.Collection == "" && global.Collection != "" {
		merged.Collection = global.Collection
	}
	if global.Timestamps {
		merged.Timestamps = true
	}
	if global.Strict {
		merged.Strict = true
	}

	if override != nil {
		if override.Collection != "" {
			merged.Collection = override.Collection
		}
		if override.IDKind != core.KeyNone {
			merged.IDKind = override.IDKind
		}
		if override.Timestamps {
			merged.Timestamps = true
		}
		if override.Strict {
			merged.Strict = true
		}
	}

	if merged == sc.Options() {
		return sc
	}
	return sc.WithOptions(merged)
}

// Package schema declares the option surfaces accepted at field and
// model declaration time, and assembles them into immutable schemas.
//
// The option records are passive data: constructed by the caller, read
// once by Build, never mutated afterwards. They are not validated where
// they are declared; Build rejects incoherent shapes.
package schema

import (
	"context"

	"github.com/aretw0/silt/pkg/core"
)

// Getter transforms a stored value on read.
type Getter func(v any) any

// Setter transforms a value before it is stored.
type Setter func(v any) any

// PropOptions shapes one scalar field's storage, validation and
// reference behavior.
type PropOptions struct {
	// Storage behavior.
	Required  bool
	Default   any
	Immutable bool
	Select    *bool // nil means "always selected"
	Alias     string

	// Index shorthand; full declarations go through Builder.Index.
	Unique bool
	Index  bool
	Sparse bool

	// Validation.
	Enum      []any
	Min, Max  *float64 // numeric bounds
	MinLength *int     // string length bounds
	MaxLength *int
	Match     string // regular expression for strings
	Validate  string // expression over {value, doc}, see expr-lang

	// Transforms.
	Lowercase bool
	Uppercase bool
	Trim      bool
	Get       Getter
	Set       Setter

	// Reference behavior. Ref names the target model statically; RefPath
	// names a sibling field that holds the target model name per
	// document. RefType declares the key variant stored in the slot.
	Ref     string
	RefPath string
	RefType core.KeyKind

	// Passthrough carries adapter-specific settings the schema layer
	// does not interpret. It is the single escape hatch; there is no
	// open-ended option indexing.
	Passthrough map[string]any
}

// ArrayPropOptions shapes one array-typed field, including nested-array
// dimensionality.
type ArrayPropOptions struct {
	PropOptions

	// Items is the element kind.
	Items FieldKind
	// Dim is the nesting depth: 1 for []T, 2 for [][]T, and so on.
	// Zero means 1.
	Dim int
	// InnerOptions apply to the elements, OuterOptions to the array
	// itself. Both are optional.
	InnerOptions *PropOptions
	OuterOptions *PropOptions
}

// MapPropOptions shapes a key-to-value map field.
type MapPropOptions struct {
	PropOptions

	// Of is the value kind; map keys are always strings.
	Of FieldKind
}

// VirtualOptions declares a non-stored, populate-time join.
type VirtualOptions struct {
	Ref          string
	LocalField   string
	ForeignField string
	// JustOne resolves to a single document instead of a slice.
	JustOne bool
	// Count resolves to the number of matches instead of the documents.
	Count bool
	// Match adds equality filters on the foreign documents.
	Match map[string]any
}

// IndexOptions declares a secondary index over one or more fields.
type IndexOptions struct {
	Name               string
	Unique             bool
	Sparse             bool
	ExpireAfterSeconds *int32

	// PartialFilter is a boolean expression over the document's raw
	// field map, see expr-lang. Documents it rejects are left out of
	// the index; a unique partial index only constrains the matching
	// documents.
	PartialFilter string

	// Background, Weights and Collation exist for declaration
	// compatibility; no backend honors them, and Build rejects
	// declarations that set them.
	Background bool
	Weights    map[string]int
	Collation  string

	// Passthrough carries adapter-specific settings the schema layer
	// does not interpret.
	Passthrough map[string]any
}

// Stage identifies a hook point around model operations.
type Stage string

const (
	PreValidate  Stage = "pre:validate"
	PostValidate Stage = "post:validate"
	PreSave      Stage = "pre:save"
	PostSave     Stage = "post:save"
	PreDelete    Stage = "pre:delete"
	PostDelete   Stage = "post:delete"
)

// HookFunc runs at a hook stage. doc is the typed document (*T) being
// operated on; for delete stages it is the document fetched before
// removal, when one exists.
type HookFunc func(ctx context.Context, doc any) error

// HookEntry binds a hook function to a stage.
type HookEntry struct {
	Stage Stage
	Fn    HookFunc
}

// PluginEntry extends a schema under construction. Plugins run first
// during Build, before shape validation, so whatever they add is checked
// like hand-declared options.
type PluginEntry struct {
	Name  string
	Apply func(b *Builder) error
}

// SchemaOptions configures the assembled schema itself.
type SchemaOptions struct {
	// Collection is the storage collection name. Defaults to the
	// lowercased schema name.
	Collection string
	// IDKind is the key variant of the primary key. Defaults to
	// KeyObjectID.
	IDKind core.KeyKind
	// Timestamps maintains createdAt/updatedAt fields on save.
	Timestamps bool
	// Strict rejects fields not declared on the schema.
	Strict bool
}

// ModelOptions configures model registration and naming.
type ModelOptions struct {
	// CustomName overrides the derived model name.
	CustomName string
	// AutomaticName suffixes the name with the collection, keeping
	// models of the same type distinct across collections.
	AutomaticName bool
	// RunSyncIndexes pushes index declarations to the repository at
	// registration time (backends implementing core.IndexedRepository).
	RunSyncIndexes bool
	// SchemaOptions overrides merged on top of the schema's own.
	SchemaOptions *SchemaOptions
	// ExistingRepository binds the model to this repository instead of
	// the registry's own. Reference resolution still goes through the
	// registry, so populated models may span backends.
	ExistingRepository core.Repository
}

// GlobalOptions are defaults merged into every registration.
type GlobalOptions struct {
	SchemaOptions  SchemaOptions
	RunSyncIndexes bool
}

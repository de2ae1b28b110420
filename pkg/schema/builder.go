package schema

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-multierror"

	"github.com/aretw0/silt/pkg/core"
)

// Builder accumulates field, virtual, index, hook and plugin
// declarations and assembles them into an immutable Schema.
type Builder struct {
	name    string
	options SchemaOptions

	fields   []*Field
	virtuals map[string]VirtualOptions
	vOrder   []string
	indexes  []indexDecl
	hooks    []HookEntry
	plugins  []PluginEntry
}

type indexDecl struct {
	fields []string
	opts   IndexOptions
}

// BuildOption configures the schema under construction.
type BuildOption func(*SchemaOptions)

// WithCollection sets the storage collection name.
func WithCollection(name string) BuildOption {
	return func(o *SchemaOptions) { o.Collection = name }
}

// WithIDKind sets the primary-key variant.
func WithIDKind(kind core.KeyKind) BuildOption {
	return func(o *SchemaOptions) { o.IDKind = kind }
}

// WithTimestamps maintains createdAt/updatedAt on save.
func WithTimestamps(enabled bool) BuildOption {
	return func(o *SchemaOptions) { o.Timestamps = enabled }
}

// WithStrict rejects undeclared fields at validation time.
func WithStrict(enabled bool) BuildOption {
	return func(o *SchemaOptions) { o.Strict = enabled }
}

// New starts a schema for the named model.
func New(name string, opts ...BuildOption) *Builder {
	options := SchemaOptions{
		Collection: strings.ToLower(name) + "s",
		IDKind:     core.KeyObjectID,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Builder{
		name:     name,
		options:  options,
		virtuals: make(map[string]VirtualOptions),
	}
}

// Field declares a scalar field.
func (b *Builder) Field(name string, kind FieldKind, opts PropOptions) *Builder {
	b.fields = append(b.fields, &Field{Name: name, Kind: kind, Options: opts})
	return b
}

// ArrayField declares an array field.
func (b *Builder) ArrayField(name string, opts ArrayPropOptions) *Builder {
	a := opts
	if a.Dim == 0 {
		a.Dim = 1
	}
	b.fields = append(b.fields, &Field{Name: name, Kind: a.Items, Options: a.PropOptions, Array: &a})
	return b
}

// MapField declares a string-keyed map field.
func (b *Builder) MapField(name string, opts MapPropOptions) *Builder {
	m := opts
	b.fields = append(b.fields, &Field{Name: name, Kind: m.Of, Options: m.PropOptions, Map: &m})
	return b
}

// Virtual declares a populate-time join that is never stored.
func (b *Builder) Virtual(name string, opts VirtualOptions) *Builder {
	if _, exists := b.virtuals[name]; !exists {
		b.vOrder = append(b.vOrder, name)
	}
	b.virtuals[name] = opts
	return b
}

// Index declares a secondary index over one or more fields.
func (b *Builder) Index(fields []string, opts IndexOptions) *Builder {
	b.indexes = append(b.indexes, indexDecl{fields: fields, opts: opts})
	return b
}

// Pre registers a hook before the given operation.
func (b *Builder) Pre(stage Stage, fn HookFunc) *Builder {
	b.hooks = append(b.hooks, HookEntry{Stage: stage, Fn: fn})
	return b
}

// Post registers a hook after the given operation.
func (b *Builder) Post(stage Stage, fn HookFunc) *Builder {
	return b.Pre(stage, fn)
}

// Hook registers a prepared hook entry.
func (b *Builder) Hook(entry HookEntry) *Builder {
	b.hooks = append(b.hooks, entry)
	return b
}

// Plugin schedules a plugin to run at the start of Build.
func (b *Builder) Plugin(entry PluginEntry) *Builder {
	b.plugins = append(b.plugins, entry)
	return b
}

// Build runs plugins, validates the declared option shapes, compiles
// per-field rules and returns the immutable schema. Every shape failure
// is reported, not just the first.
func (b *Builder) Build() (*Schema, error) {
	for _, p := range b.plugins {
		if p.Apply == nil {
			return nil, fmt.Errorf("plugin %q has no apply function", p.Name)
		}
		if err := p.Apply(b); err != nil {
			return nil, fmt.Errorf("plugin %q: %w", p.Name, err)
		}
	}

	var errs *multierror.Error

	if b.name == "" {
		errs = multierror.Append(errs, fmt.Errorf("schema has no name"))
	}
	if err := validateSchemaOptions(b.options); err != nil {
		errs = multierror.Append(errs, err)
	}

	s := &Schema{
		name:     b.name,
		options:  b.options,
		byName:   make(map[string]*Field),
		byAlias:  make(map[string]string),
		virtuals: make(map[string]VirtualOptions),
		hooks:    make(map[Stage][]HookFunc),
	}

	for _, f := range b.fields {
		if err := validateField(f); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("field %q: %w", f.Name, err))
			continue
		}
		if _, dup := s.byName[f.Name]; dup {
			errs = multierror.Append(errs, fmt.Errorf("field %q: declared twice", f.Name))
			continue
		}

		compiled := *f
		rules, program, err := compileFieldRules(f)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("field %q: %w", f.Name, err))
			continue
		}
		compiled.rules = rules
		compiled.program = program

		s.fields = append(s.fields, &compiled)
		s.byName[f.Name] = &compiled
		if f.Options.Alias != "" {
			s.byAlias[f.Options.Alias] = f.Name
		}
	}

	for _, name := range b.vOrder {
		v := b.virtuals[name]
		if err := validateVirtual(name, v, s); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		s.virtuals[name] = v
		s.virtualOrder = append(s.virtualOrder, name)
	}

	s.indexes = assembleIndexes(b, s, &errs)

	for _, h := range b.hooks {
		if h.Fn == nil {
			errs = multierror.Append(errs, fmt.Errorf("hook at %s has no function", h.Stage))
			continue
		}
		if !validStage(h.Stage) {
			errs = multierror.Append(errs, fmt.Errorf("unknown hook stage %q", h.Stage))
			continue
		}
		s.hooks[h.Stage] = append(s.hooks[h.Stage], h.Fn)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("schema %s: %w", b.name, err)
	}
	return s, nil
}

// MustBuild is Build for declaration-time schemas where a shape error is
// a programming bug.
func (b *Builder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

func validStage(s Stage) bool {
	switch s {
	case PreValidate, PostValidate, PreSave, PostSave, PreDelete, PostDelete:
		return true
	}
	return false
}

func validateSchemaOptions(o SchemaOptions) error {
	return validation.Errors{
		"collection": validation.Validate(o.Collection, validation.Required),
	}.Filter()
}

// assembleIndexes merges explicit index declarations with the
// single-field indexes implied by Unique/Index property flags.
func assembleIndexes(b *Builder, s *Schema, errs **multierror.Error) []core.IndexSpec {
	var specs []core.IndexSpec
	seen := make(map[string]bool)

	for _, f := range s.fields {
		if !f.Options.Unique && !f.Options.Index {
			continue
		}
		spec := core.IndexSpec{
			Name:   f.Name + "_1",
			Fields: []string{f.Name},
			Unique: f.Options.Unique,
			Sparse: f.Options.Sparse,
		}
		specs = append(specs, spec)
		seen[spec.Name] = true
	}

	for _, decl := range b.indexes {
		if len(decl.fields) == 0 {
			*errs = multierror.Append(*errs, fmt.Errorf("index %q: no fields", decl.opts.Name))
			continue
		}
		for _, name := range decl.fields {
			if _, ok := s.byName[name]; !ok {
				*errs = multierror.Append(*errs, fmt.Errorf("index %q: unknown field %q", decl.opts.Name, name))
			}
		}

		name := decl.opts.Name
		if name == "" {
			name = strings.Join(decl.fields, "_") + "_1"
		}
		if seen[name] {
			*errs = multierror.Append(*errs, fmt.Errorf("index %q: declared twice", name))
			continue
		}
		seen[name] = true

		if err := validateIndexOptions(name, decl.opts); err != nil {
			*errs = multierror.Append(*errs, err)
			continue
		}

		specs = append(specs, core.IndexSpec{
			Name:               name,
			Fields:             append([]string(nil), decl.fields...),
			Unique:             decl.opts.Unique,
			Sparse:             decl.opts.Sparse,
			ExpireAfterSeconds: decl.opts.ExpireAfterSeconds,
			PartialFilter:      decl.opts.PartialFilter,
			Passthrough:        decl.opts.Passthrough,
		})
	}

	return specs
}

// validateIndexOptions rejects declarations no backend can honor and
// malformed partial-filter expressions.
func validateIndexOptions(name string, o IndexOptions) error {
	switch {
	case o.Background:
		return fmt.Errorf("index %q: background builds are not supported", name)
	case len(o.Weights) > 0:
		return fmt.Errorf("index %q: text weights are not supported", name)
	case o.Collation != "":
		return fmt.Errorf("index %q: collations are not supported", name)
	}
	if o.PartialFilter != "" {
		if _, err := expr.Compile(o.PartialFilter, expr.AsBool(), expr.AllowUndefinedVariables()); err != nil {
			return fmt.Errorf("index %q: invalid partial filter: %w", name, err)
		}
	}
	return nil
}

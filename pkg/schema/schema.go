package schema

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/expr-lang/expr/vm"
	"github.com/hashicorp/go-multierror"

	"github.com/aretw0/silt/pkg/core"
)

// FieldKind represents the abstract storage type of a schema field.
type FieldKind int

const (
	KindAny FieldKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
	KindObjectID
	KindBuffer
	KindObject
	KindRef
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindObjectID:
		return "objectid"
	case KindBuffer:
		return "buffer"
	case KindObject:
		return "object"
	case KindRef:
		return "ref"
	default:
		return "any"
	}
}

func (k FieldKind) numeric() bool {
	return k == KindInt || k == KindFloat
}

// Field describes a single declared field of a schema.
type Field struct {
	Name    string
	Kind    FieldKind
	Options PropOptions

	// Array and Map are set for container fields; Kind then describes
	// the container ("ref" arrays keep KindRef for the element kind
	// lookup via Array.Items).
	Array *ArrayPropOptions
	Map   *MapPropOptions

	rules   []validation.Rule
	program *vm.Program
}

// Schema is an immutable, assembled model schema. Build is the only
// constructor.
type Schema struct {
	name    string
	options SchemaOptions

	fields  []*Field
	byName  map[string]*Field
	byAlias map[string]string

	virtuals     map[string]VirtualOptions
	virtualOrder []string
	indexes      []core.IndexSpec
	hooks        map[Stage][]HookFunc
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// WithOptions returns a copy of the schema carrying different options.
// The field, virtual, index and hook tables are shared; they are
// immutable after Build.
func (s *Schema) WithOptions(opts SchemaOptions) *Schema {
	clone := *s
	clone.options = opts
	return &clone
}

// Options returns a copy of the schema options.
func (s *Schema) Options() SchemaOptions { return s.options }

// Collection returns the storage collection name.
func (s *Schema) Collection() string { return s.options.Collection }

// IDKind returns the primary-key variant.
func (s *Schema) IDKind() core.KeyKind { return s.options.IDKind }

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []*Field {
	out := make([]*Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks a field up by name or alias.
func (s *Schema) Field(name string) (*Field, bool) {
	if f, ok := s.byName[name]; ok {
		return f, true
	}
	if canonical, ok := s.byAlias[name]; ok {
		f, ok := s.byName[canonical]
		return f, ok
	}
	return nil, false
}

// Virtual looks a virtual declaration up by name.
func (s *Schema) Virtual(name string) (VirtualOptions, bool) {
	v, ok := s.virtuals[name]
	return v, ok
}

// Virtuals returns the declared virtual names in declaration order.
func (s *Schema) Virtuals() []string {
	out := make([]string, len(s.virtualOrder))
	copy(out, s.virtualOrder)
	return out
}

// Indexes returns the assembled index specifications, including the
// single-field indexes implied by Unique/Index property options.
func (s *Schema) Indexes() []core.IndexSpec {
	out := make([]core.IndexSpec, len(s.indexes))
	copy(out, s.indexes)
	return out
}

// Hooks returns the hook chain of a stage.
func (s *Schema) Hooks(stage Stage) []HookFunc {
	return s.hooks[stage]
}

// HasImmutable reports whether any field is declared immutable.
func (s *Schema) HasImmutable() bool {
	for _, f := range s.fields {
		if f.Options.Immutable {
			return true
		}
	}
	return false
}

// ImmutableFields returns the names of immutable fields.
func (s *Schema) ImmutableFields() []string {
	var out []string
	for _, f := range s.fields {
		if f.Options.Immutable {
			out = append(out, f.Name)
		}
	}
	return out
}

// ValidateDocument checks a raw field map against the schema's compiled
// rules. All field failures are reported together.
func (s *Schema) ValidateDocument(fields core.Metadata) error {
	var errs *multierror.Error

	for _, f := range s.fields {
		value, present := fields[f.Name]
		if !present && f.Options.Alias != "" {
			value = fields[f.Options.Alias]
		}

		if f.Kind.numeric() {
			value = normalizeNumber(value)
		}

		if err := validation.Validate(value, f.rules...); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("field %q: %w", f.Name, err))
		}

		if f.program != nil && value != nil {
			ok, err := runValidateProgram(f.program, value, fields)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("field %q: validate expression: %w", f.Name, err))
			} else if !ok {
				errs = multierror.Append(errs, fmt.Errorf("field %q: validation failed", f.Name))
			}
		}
	}

	if s.options.Strict {
		for name := range fields {
			if name == "_id" || name == "createdAt" || name == "updatedAt" {
				continue
			}
			if _, ok := s.Field(name); !ok {
				errs = multierror.Append(errs, fmt.Errorf("field %q: not declared on schema %s", name, s.name))
			}
		}
	}

	return errs.ErrorOrNil()
}

// ApplyTransforms returns a copy of the field map with defaults filled
// in and declared transforms (trim, case folding, setters) applied.
// Called by the model layer before validation and persistence.
func (s *Schema) ApplyTransforms(fields core.Metadata) core.Metadata {
	out := fields.Clone()
	if out == nil {
		out = make(core.Metadata)
	}

	for _, f := range s.fields {
		value, present := out[f.Name]

		if (!present || value == nil) && f.Options.Default != nil {
			out[f.Name] = f.Options.Default
			continue
		}
		if !present {
			continue
		}

		if str, ok := value.(string); ok {
			if f.Options.Trim {
				str = strings.TrimSpace(str)
			}
			if f.Options.Lowercase {
				str = strings.ToLower(str)
			}
			if f.Options.Uppercase {
				str = strings.ToUpper(str)
			}
			value = str
		}

		if f.Options.Set != nil {
			value = f.Options.Set(value)
		}

		out[f.Name] = value
	}

	return out
}

// ApplyGetters returns a copy of the field map with declared getters
// applied. Called by the model layer after reads.
func (s *Schema) ApplyGetters(fields core.Metadata) core.Metadata {
	out := fields.Clone()
	for _, f := range s.fields {
		if f.Options.Get == nil {
			continue
		}
		if value, ok := out[f.Name]; ok {
			out[f.Name] = f.Options.Get(value)
		}
	}
	return out
}

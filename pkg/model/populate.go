package model

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/aretw0/silt/pkg/core"
)

// Populate hydrates the named reference fields of doc in place. With no
// paths, every reference field is populated. Slots already holding a
// document (or unset) are left alone; slots whose target no longer
// exists keep their key. Other failures are aggregated and returned
// after the remaining paths are attempted.
func (m *Model[T]) Populate(ctx context.Context, doc *T, paths ...string) error {
	p := &populator{registry: m.registry, cache: make(map[string]any)}
	return m.populateWith(ctx, p, doc, paths)
}

// PopulateAll hydrates reference fields across a result set, sharing
// fetches between documents that point at the same target.
func (m *Model[T]) PopulateAll(ctx context.Context, docs []*T, paths ...string) error {
	p := &populator{registry: m.registry, cache: make(map[string]any)}

	var errs *multierror.Error
	for _, doc := range docs {
		if err := m.populateWith(ctx, p, doc, paths); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// ResolveVirtual evaluates a declared virtual join for one document.
// The result is []any of target documents, a single document (or nil)
// for JustOne virtuals, and an int for Count virtuals.
func (m *Model[T]) ResolveVirtual(ctx context.Context, doc *T, name string) (any, error) {
	v, ok := m.schema.Virtual(name)
	if !ok {
		return nil, fmt.Errorf("model %s has no virtual %q", m.name, name)
	}

	target, ok := m.registry.lookup(v.Ref)
	if !ok {
		return nil, fmt.Errorf("virtual %q: %w: %s", name, core.ErrUnknownModel, v.Ref)
	}

	local, err := m.localValue(doc, v.LocalField)
	if err != nil {
		return nil, fmt.Errorf("virtual %q: %w", name, err)
	}

	matches, err := target.findByForeign(ctx, v.ForeignField, local, v.Match)
	if err != nil {
		return nil, fmt.Errorf("virtual %q: %w", name, err)
	}

	switch {
	case v.Count:
		return len(matches), nil
	case v.JustOne:
		if len(matches) == 0 {
			return nil, nil
		}
		return matches[0], nil
	default:
		return matches, nil
	}
}

// localValue reads the join-side value: the document key for "_id",
// otherwise the raw field value after a marshal round trip.
func (m *Model[T]) localValue(doc *T, field string) (any, error) {
	if field == "_id" {
		keyed, ok := any(doc).(core.Keyed)
		if !ok {
			return nil, fmt.Errorf("%T does not embed core.Base", doc)
		}
		return keyed.DocumentKey(), nil
	}

	fields, err := m.toFields(doc)
	if err != nil {
		return nil, err
	}
	v, ok := fields[field]
	if !ok {
		return nil, fmt.Errorf("document has no field %q", field)
	}
	return v, nil
}

// populator shares resolved targets across slots and documents within
// one populate pass. Cache keys are model-qualified key renderings.
type populator struct {
	registry *Registry
	cache    map[string]any
}

// resolve fetches the target document of a key through the registry,
// consulting the cache first. A nil return with nil error means the
// target does not exist.
func (p *populator) resolve(ctx context.Context, modelName string, key core.Key) (any, error) {
	target, ok := p.registry.lookup(modelName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownModel, modelName)
	}

	cacheKey := modelName + "\x00" + key.Kind().String() + ":" + key.String()
	if hit, ok := p.cache[cacheKey]; ok {
		return hit, nil
	}

	doc, err := target.findAny(ctx, key)
	if errors.Is(err, core.ErrNotFound) {
		p.cache[cacheKey] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.cache[cacheKey] = doc
	return doc, nil
}

func (m *Model[T]) populateWith(ctx context.Context, p *populator, doc *T, paths []string) error {
	slots, err := refSlots(doc)
	if err != nil {
		return err
	}

	var fields core.Metadata // lazily built, only needed for RefPath
	var errs *multierror.Error

	seen := make(map[string]bool, len(slots))
	for _, slot := range slots {
		seen[slot.name] = true
		if len(paths) > 0 && !containsPath(paths, slot.name) {
			continue
		}

		sf, ok := m.schema.Field(slot.name)
		if !ok || (sf.Options.Ref == "" && sf.Options.RefPath == "") {
			if len(paths) > 0 {
				errs = multierror.Append(errs, fmt.Errorf("path %q is not a reference field", slot.name))
			}
			continue
		}

		targetModel := sf.Options.Ref
		if targetModel == "" {
			if fields == nil {
				if fields, err = m.toFields(doc); err != nil {
					return err
				}
			}
			name, _ := fields[sf.Options.RefPath].(string)
			if name == "" {
				errs = multierror.Append(errs, fmt.Errorf(
					"path %q: field %q names no target model", slot.name, sf.Options.RefPath))
				continue
			}
			targetModel = name
		}

		for _, ref := range slot.refs {
			key, ok := ref.RefKey()
			if !ok {
				continue // unset or already a document
			}
			target, err := p.resolve(ctx, targetModel, key)
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("path %q key %s: %w", slot.name, key, err))
				continue
			}
			if target == nil {
				continue // dangling reference keeps its key
			}
			if err := ref.HydrateRef(target); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("path %q key %s: %w", slot.name, key, err))
			}
		}
	}

	for _, path := range paths {
		if !seen[path] {
			errs = multierror.Append(errs, fmt.Errorf("path %q is not a reference field", path))
		}
	}

	return errs.ErrorOrNil()
}

// refSlot is one populatable path of a document: a single reference
// field or the elements of a reference array.
type refSlot struct {
	name string
	refs []core.RefSlot
}

var refSlotType = reflect.TypeFor[core.RefSlot]()

// refSlots walks the exported fields of doc and collects every
// core.RefSlot it can address, naming each by its JSON field name.
// Slices of reference slots contribute one slot per element; an empty
// slice is still a known path.
func refSlots(doc any) ([]refSlot, error) {
	rv := reflect.ValueOf(doc)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, fmt.Errorf("populate needs a non-nil struct pointer, got %T", doc)
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("populate needs a struct pointer, got %T", doc)
	}

	var out []refSlot
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() || field.Anonymous {
			continue
		}
		name := jsonName(field)
		if name == "" {
			continue
		}

		fv := rv.Field(i)
		switch {
		case fv.Kind() == reflect.Struct && fv.CanAddr():
			if ref, ok := fv.Addr().Interface().(core.RefSlot); ok {
				out = append(out, refSlot{name: name, refs: []core.RefSlot{ref}})
			}
		case fv.Kind() == reflect.Slice:
			if !reflect.PointerTo(fv.Type().Elem()).Implements(refSlotType) {
				continue
			}
			refs := make([]core.RefSlot, 0, fv.Len())
			for j := 0; j < fv.Len(); j++ {
				refs = append(refs, fv.Index(j).Addr().Interface().(core.RefSlot))
			}
			out = append(out, refSlot{name: name, refs: refs})
		}
	}
	return out, nil
}

func jsonName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return ""
	}
	if idx := strings.Index(tag, ","); idx >= 0 {
		tag = tag[:idx]
	}
	if tag != "" {
		return tag
	}
	return field.Name
}

func containsPath(paths []string, name string) bool {
	for _, p := range paths {
		if p == name {
			return true
		}
	}
	return false
}

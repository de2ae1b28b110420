package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/expr-lang/expr"
	"github.com/google/uuid"

	"github.com/aretw0/silt/pkg/core"
	"github.com/aretw0/silt/pkg/schema"
)

// Model is a registered document type: a schema bound to a repository.
// All persistence goes through records; the repository never sees T.
type Model[T any] struct {
	name     string
	schema   *schema.Schema
	repo     core.Repository
	registry *Registry
	logger   *slog.Logger
}

// Name returns the model name used for reference resolution.
func (m *Model[T]) Name() string { return m.name }

// Collection returns the storage collection name.
func (m *Model[T]) Collection() string { return m.schema.Collection() }

// Schema returns the bound schema.
func (m *Model[T]) Schema() *schema.Schema { return m.schema }

// Create persists a new document. A zero key is generated when the
// schema's key variant allows it (ObjectID and string keys); int64 and
// buffer keys must be assigned by the caller. The caller's struct is
// updated in place with transforms, defaults, timestamps and the
// generated key, then hydrated.
func (m *Model[T]) Create(ctx context.Context, doc *T) error {
	key, err := m.ensureKey(doc)
	if err != nil {
		return err
	}

	if _, err := m.repo.Get(ctx, m.Collection(), key); err == nil {
		return fmt.Errorf("%s/%s: %w", m.Collection(), key, core.ErrDuplicateKey)
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	return m.persist(ctx, doc, key, true, nil)
}

// Save persists a document, creating or replacing it. Immutable fields
// of an existing document are silently restored to their stored values
// before validation.
func (m *Model[T]) Save(ctx context.Context, doc *T) error {
	key, err := m.ensureKey(doc)
	if err != nil {
		return err
	}

	var prior core.Metadata
	if rec, err := m.repo.Get(ctx, m.Collection(), key); err == nil {
		prior = rec.Fields
	} else if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	return m.persist(ctx, doc, key, prior == nil, prior)
}

// FindByID retrieves one document.
func (m *Model[T]) FindByID(ctx context.Context, key core.Key) (*T, error) {
	if key.IsZero() {
		return nil, core.ErrMissingKey
	}
	rec, err := m.repo.Get(ctx, m.Collection(), key)
	if err != nil {
		return nil, err
	}
	return m.fromRecord(rec)
}

// All retrieves every document of the collection.
func (m *Model[T]) All(ctx context.Context) ([]*T, error) {
	recs, err := m.repo.List(ctx, m.Collection())
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(recs))
	for _, rec := range recs {
		doc, err := m.fromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("record %s/%s: %w", rec.Collection, rec.Key, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

// Find returns the documents the predicate accepts.
func (m *Model[T]) Find(ctx context.Context, match func(*T) bool) ([]*T, error) {
	docs, err := m.All(ctx)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, doc := range docs {
		if match(doc) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// FindOne returns the first document the predicate accepts, or
// core.ErrNotFound.
func (m *Model[T]) FindOne(ctx context.Context, match func(*T) bool) (*T, error) {
	docs, err := m.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if match(doc) {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("%s: no match: %w", m.Collection(), core.ErrNotFound)
}

// Where filters the collection with a boolean expression evaluated over
// each document's raw field map, for example "age >= 18 && role == 'admin'".
func (m *Model[T]) Where(ctx context.Context, src string) ([]*T, error) {
	program, err := expr.Compile(src, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("filter expression: %w", err)
	}

	recs, err := m.repo.List(ctx, m.Collection())
	if err != nil {
		return nil, err
	}

	var out []*T
	for _, rec := range recs {
		res, err := expr.Run(program, map[string]any(rec.Fields))
		if err != nil {
			return nil, fmt.Errorf("filter expression on %s/%s: %w", rec.Collection, rec.Key, err)
		}
		if ok, _ := res.(bool); !ok {
			continue
		}
		doc, err := m.fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Count returns the number of documents in the collection.
func (m *Model[T]) Count(ctx context.Context) (int, error) {
	recs, err := m.repo.List(ctx, m.Collection())
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Delete removes a document by key, running the delete hooks around the
// removal. The pre and post hooks receive the stored document when it
// could be loaded.
func (m *Model[T]) Delete(ctx context.Context, key core.Key) error {
	if key.IsZero() {
		return core.ErrMissingKey
	}

	var hookDoc any
	if doc, err := m.FindByID(ctx, key); err == nil {
		hookDoc = doc
	}

	if err := m.runHooks(ctx, schema.PreDelete, hookDoc); err != nil {
		return err
	}
	if err := m.repo.Delete(ctx, m.Collection(), key); err != nil {
		return err
	}
	m.logger.Debug("document deleted", "key", key.String())
	return m.runHooks(ctx, schema.PostDelete, hookDoc)
}

// Watch streams change events for this model's collection. The
// repository must implement core.Watchable.
func (m *Model[T]) Watch(ctx context.Context) (<-chan core.Event, error) {
	w, ok := m.repo.(core.Watchable)
	if !ok {
		return nil, fmt.Errorf("repository %T does not support watching", m.repo)
	}
	return w.Watch(ctx, m.Collection()+"/**")
}

// SyncIndexes pushes the schema's index declarations to the repository.
// Repositories without index support make this a no-op.
func (m *Model[T]) SyncIndexes(ctx context.Context) error {
	idx, ok := m.repo.(core.IndexedRepository)
	if !ok {
		return nil
	}
	specs := m.schema.Indexes()
	if len(specs) == 0 {
		return nil
	}
	m.logger.Debug("syncing indexes", "count", len(specs))
	return idx.EnsureIndexes(ctx, m.Collection(), specs)
}

// ensureKey reads the document key, generating one for generatable key
// variants when it is zero, and writes it back into the struct.
func (m *Model[T]) ensureKey(doc *T) (core.Key, error) {
	keyed, ok := any(doc).(core.Keyed)
	if !ok {
		return core.Key{}, fmt.Errorf("%T does not embed core.Base", doc)
	}

	key := keyed.DocumentKey()
	if !key.IsZero() {
		if key.Kind() != m.schema.IDKind() {
			return core.Key{}, fmt.Errorf("key %s is %s, schema %s expects %s: %w",
				key, key.Kind(), m.schema.Name(), m.schema.IDKind(), core.ErrInvalidKey)
		}
		return key, nil
	}

	switch m.schema.IDKind() {
	case core.KeyObjectID:
		key = core.NewObjectIDKey()
	case core.KeyString:
		key = core.StringKey(uuid.NewString())
	default:
		return core.Key{}, fmt.Errorf("%s keys must be assigned by the caller: %w",
			m.schema.IDKind(), core.ErrMissingKey)
	}
	keyed.SetDocumentKey(key)
	return key, nil
}

// persist runs the validate and save hook chain, applies transforms and
// timestamps, validates, writes the record and rehydrates doc from the
// persisted fields.
func (m *Model[T]) persist(ctx context.Context, doc *T, key core.Key, isNew bool, prior core.Metadata) error {
	if err := m.runHooks(ctx, schema.PreValidate, doc); err != nil {
		return err
	}

	fields, err := m.toFields(doc)
	if err != nil {
		return err
	}
	fields = m.schema.ApplyTransforms(fields)

	for _, name := range m.schema.ImmutableFields() {
		if prior == nil {
			break
		}
		if stored, ok := prior[name]; ok {
			fields[name] = stored
		}
	}

	if m.schema.Options().Timestamps {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		if isNew || fields["createdAt"] == nil {
			if prior != nil && prior["createdAt"] != nil {
				fields["createdAt"] = prior["createdAt"]
			} else {
				fields["createdAt"] = now
			}
		}
		fields["updatedAt"] = now
	}

	if err := m.schema.ValidateDocument(fields); err != nil {
		return fmt.Errorf("model %s: %w", m.name, err)
	}
	if err := m.runHooks(ctx, schema.PostValidate, doc); err != nil {
		return err
	}
	if err := m.runHooks(ctx, schema.PreSave, doc); err != nil {
		return err
	}

	rec := core.Record{Collection: m.Collection(), Key: key, Fields: fields}
	if err := m.repo.Save(ctx, rec); err != nil {
		return err
	}
	m.logger.Debug("document saved", "key", key.String(), "new", isNew)

	if err := m.intoDoc(rec, doc, isNew); err != nil {
		return err
	}
	return m.runHooks(ctx, schema.PostSave, doc)
}

func (m *Model[T]) runHooks(ctx context.Context, stage schema.Stage, doc any) error {
	for _, h := range m.schema.Hooks(stage) {
		if err := h(ctx, doc); err != nil {
			return fmt.Errorf("%s hook: %w", stage, err)
		}
	}
	return nil
}

// toFields converts the typed struct into a raw field map through a JSON
// round trip, dropping the key field (the record carries it).
func (m *Model[T]) toFields(doc *T) (core.Metadata, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", doc, err)
	}
	var fields core.Metadata
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("field map for %T: %w", doc, err)
	}
	delete(fields, "_id")
	return fields, nil
}

// fromRecord builds a fresh hydrated *T from a stored record, with
// getters applied.
func (m *Model[T]) fromRecord(rec core.Record) (*T, error) {
	doc := new(T)
	if err := m.intoDoc(rec, doc, false); err != nil {
		return nil, err
	}
	return doc, nil
}

// intoDoc decodes the record's fields into the struct and stamps the
// document metadata that marks it as materialized.
func (m *Model[T]) intoDoc(rec core.Record, doc *T, isNew bool) error {
	fields := m.schema.ApplyGetters(rec.Fields)
	if fields == nil {
		fields = make(core.Metadata)
	}
	fields["_id"] = rec.Key

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode record %s/%s: %w", rec.Collection, rec.Key, err)
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return fmt.Errorf("decode record %s/%s into %T: %w", rec.Collection, rec.Key, doc, err)
	}

	m.coerceRefKeys(doc)

	setter, ok := any(doc).(core.MetaSetter)
	if !ok {
		return fmt.Errorf("%T does not embed core.Base", doc)
	}
	setter.SetDocumentMeta(&core.Meta{
		Key:        rec.Key,
		Model:      m.name,
		Collection: rec.Collection,
		IsNew:      isNew,
		LoadedAt:   time.Now(),
	})
	return nil
}

// coerceRefKeys restores the declared key variant of decoded reference
// slots. A JSON round trip turns ObjectID and buffer keys into plain
// strings; the field's RefType, or the target model's key kind, says
// what they actually are.
func (m *Model[T]) coerceRefKeys(doc *T) {
	slots, err := refSlots(doc)
	if err != nil {
		return
	}

	for _, slot := range slots {
		sf, ok := m.schema.Field(slot.name)
		if !ok {
			continue
		}
		kind := sf.Options.RefType
		if kind == core.KeyNone && sf.Options.Ref != "" {
			if target, ok := m.registry.lookup(sf.Options.Ref); ok {
				kind = target.Schema().IDKind()
			}
		}
		if kind == core.KeyNone {
			continue
		}
		for _, ref := range slot.refs {
			key, ok := ref.RefKey()
			if !ok || key.Kind() == kind {
				continue
			}
			if coerced, err := core.CoerceKey(kind, key.Value()); err == nil {
				ref.SetRefKey(coerced)
			}
		}
	}
}

// findAny implements modelRef.
func (m *Model[T]) findAny(ctx context.Context, key core.Key) (any, error) {
	return m.FindByID(ctx, key)
}

// findByForeign implements modelRef. The match is over raw field values
// after JSON normalization, so int64 keys compare equal to the float64
// a round trip produces.
func (m *Model[T]) findByForeign(ctx context.Context, foreignField string, value any, match map[string]any) ([]any, error) {
	recs, err := m.repo.List(ctx, m.Collection())
	if err != nil {
		return nil, err
	}

	want := renderComparable(value)
	var out []any
	for _, rec := range recs {
		fieldVal := rec.Fields[foreignField]
		if foreignField == "_id" {
			fieldVal = rec.Key
		}
		if renderComparable(fieldVal) != want {
			continue
		}
		if !matchesFilters(rec.Fields, match) {
			continue
		}
		doc, err := m.fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func matchesFilters(fields core.Metadata, match map[string]any) bool {
	for k, v := range match {
		if renderComparable(fields[k]) != renderComparable(v) {
			return false
		}
	}
	return true
}

// renderComparable gives values a normalized string form so that keys,
// json numbers and native integers compare across serialization
// boundaries. Kind is deliberately not part of the form: an ObjectID
// key stored in a foreign field round-trips as its hex string.
func renderComparable(v any) string {
	if v == nil {
		return "\x00"
	}
	if k, ok := core.KeyFromValue(v); ok {
		return k.String()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

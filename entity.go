package arbor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/arbor-orm/arbor/plan"
	"github.com/arbor-orm/arbor/schema"
	"github.com/arbor-orm/arbor/utils"
)

// Entity is one in-memory row: a raw attribute map, the original
// snapshot captured at load/save time for dirty-diffing, and a cache of
// resolved relations.
type Entity struct {
	db     *DB
	schema *schema.Schema

	attributes map[string]interface{}
	original   map[string]interface{}
	relations  map[string]interface{}
	pivot      *Pivot
	exists     bool
}

func newEntity(db *DB, s *schema.Schema) *Entity {
	return &Entity{
		db:         db,
		schema:     s,
		attributes: map[string]interface{}{},
		original:   map[string]interface{}{},
		relations:  map[string]interface{}{},
	}
}

// hydrate builds a persisted entity from a result row.
func hydrate(db *DB, s *schema.Schema, row plan.Row) *Entity {
	e := newEntity(db, s)
	for column, value := range row {
		e.attributes[column] = value
	}
	e.syncOriginal()
	e.exists = true
	return e
}

// Schema returns the entity's metadata.
func (e *Entity) Schema() *schema.Schema { return e.schema }

// Exists reports whether the entity has been persisted.
func (e *Entity) Exists() bool { return e.exists }

// Key returns the primary key value, nil until persisted for
// incrementing keys.
func (e *Entity) Key() interface{} {
	return e.attributes[e.schema.PrimaryKey]
}

// Set writes one attribute through the mutation pipeline. Direct
// single-attribute writes bypass mass-assignment protection.
func (e *Entity) Set(column string, value interface{}) error {
	if mutator, ok := e.schema.Mutator(column); ok {
		raw, err := mutator(value)
		if err != nil {
			return err
		}
		e.attributes[column] = raw
		return nil
	}
	e.attributes[column] = value
	return nil
}

// Fill bulk-assigns attributes under mass-assignment protection: the
// fillable allow-list takes precedence when non-empty, otherwise the
// guarded deny-list applies. A violation writes nothing at all.
func (e *Entity) Fill(attrs map[string]interface{}) error {
	for column := range attrs {
		if !e.fillable(column) {
			return &MassAssignmentError{Entity: e.schema.Entity, Attribute: column}
		}
	}
	return e.ForceFill(attrs)
}

// ForceFill bulk-assigns attributes without protection, still running
// mutators.
func (e *Entity) ForceFill(attrs map[string]interface{}) error {
	for column, value := range attrs {
		if err := e.Set(column, value); err != nil {
			return err
		}
	}
	return nil
}

func (e *Entity) fillable(column string) bool {
	if len(e.schema.Fillable) > 0 {
		return utils.Contains(e.schema.Fillable, column)
	}
	if utils.Contains(e.schema.Guarded, "*") {
		return false
	}
	return !utils.Contains(e.schema.Guarded, column)
}

// Raw returns the stored attribute value without any pipeline transform.
func (e *Entity) Raw(column string) interface{} {
	return e.attributes[column]
}

// Original returns the snapshot value captured at load/save time.
func (e *Entity) Original(column string) interface{} {
	return e.original[column]
}

// Dirty returns the symmetric difference between the current attributes
// and the original snapshot; removed attributes map to nil.
func (e *Entity) Dirty() map[string]interface{} {
	dirty := map[string]interface{}{}
	for column, value := range e.attributes {
		if orig, ok := e.original[column]; !ok || !equalValues(orig, value) {
			dirty[column] = value
		}
	}
	for column := range e.original {
		if _, ok := e.attributes[column]; !ok {
			dirty[column] = nil
		}
	}
	return dirty
}

// IsDirty reports whether any attribute differs from its snapshot.
func (e *Entity) IsDirty() bool {
	return len(e.Dirty()) > 0
}

func (e *Entity) syncOriginal() {
	e.original = make(map[string]interface{}, len(e.attributes))
	for column, value := range e.attributes {
		e.original[column] = value
	}
}

// SetRelation stores a resolved relation value (entity, collection or
// nil) in the relation cache.
func (e *Entity) SetRelation(name string, value interface{}) {
	e.relations[name] = value
}

// RelationLoaded reports whether a relation has been resolved.
func (e *Entity) RelationLoaded(name string) bool {
	_, ok := e.relations[name]
	return ok
}

// Relation resolves a relation, lazily on first access, and returns the
// cached value afterwards without re-querying.
func (e *Entity) Relation(ctx context.Context, name string) (interface{}, error) {
	if value, ok := e.relations[name]; ok {
		return value, nil
	}
	if _, err := e.db.loadRelation(ctx, []*Entity{e}, e.schema, name, nil); err != nil {
		return nil, err
	}
	return e.relations[name], nil
}

// RelatedOne resolves a single-valued relation.
func (e *Entity) RelatedOne(ctx context.Context, name string) (*Entity, error) {
	value, err := e.Relation(ctx, name)
	if err != nil || value == nil {
		return nil, err
	}
	related, ok := value.(*Entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is not single-valued", ErrUnsupportedRelation, e.schema.Entity, name)
	}
	return related, nil
}

// Related resolves a collection-valued relation.
func (e *Entity) Related(ctx context.Context, name string) (*Collection, error) {
	value, err := e.Relation(ctx, name)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, fmt.Errorf("%w: %s.%s is not collection-valued", ErrUnsupportedRelation, e.schema.Entity, name)
	}
	related, ok := value.(*Collection)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is not collection-valued", ErrUnsupportedRelation, e.schema.Entity, name)
	}
	return related, nil
}

func (e *Entity) loadedRelationNames() []string {
	names := make([]string, 0, len(e.relations))
	for name := range e.relations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pivot returns the pivot record attached when the entity was hydrated
// through a many-to-many relation, nil otherwise.
func (e *Entity) Pivot() *Pivot { return e.pivot }

// ToMap serializes the entity through the attribute pipeline, honoring
// hidden/visible lists and including loaded relations.
func (e *Entity) ToMap() map[string]interface{} {
	out := map[string]interface{}{}
	for column := range e.attributes {
		if !e.serializable(column) {
			continue
		}
		out[column] = e.Get(column)
	}
	for name, value := range e.relations {
		switch related := value.(type) {
		case *Entity:
			out[name] = related.ToMap()
		case *Collection:
			out[name] = related.ToMaps()
		case nil:
			out[name] = nil
		}
	}
	if e.pivot != nil {
		out["pivot"] = e.pivot.Attributes()
	}
	return out
}

func (e *Entity) serializable(column string) bool {
	if len(e.schema.Visible) > 0 {
		return utils.Contains(e.schema.Visible, column)
	}
	return !utils.Contains(e.schema.Hidden, column)
}

// MarshalJSON implements json.Marshaler over ToMap.
func (e *Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToMap())
}

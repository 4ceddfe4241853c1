package arbor

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/arbor-orm/arbor/plan"
	"github.com/arbor-orm/arbor/schema"
)

// Create news up an entity, mass-assigns attrs under protection and
// saves it. A canceled save leaves the entity unsaved (Exists false)
// without an error.
func (db *DB) Create(ctx context.Context, entity string, attrs map[string]interface{}) (*Entity, error) {
	e, err := db.New(entity)
	if err != nil {
		return nil, err
	}
	if err := e.Fill(attrs); err != nil {
		return nil, err
	}
	if _, err := db.Save(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Save persists the entity: insert when new, dirty-column update when
// it already exists. The saved return is false when a listener canceled
// the operation; no I/O happens for a canceled stage.
func (db *DB) Save(ctx context.Context, e *Entity) (saved bool, err error) {
	if !db.events.fire(EventSaving, e) {
		return false, nil
	}

	if e.exists {
		saved, err = db.performUpdate(ctx, e)
	} else {
		saved, err = db.performInsert(ctx, e)
	}
	if err != nil || !saved {
		return saved, err
	}

	if err := db.touchOwners(ctx, e); err != nil {
		return false, err
	}

	db.events.fire(EventSaved, e)
	e.syncOriginal()
	return true, nil
}

func (db *DB) performInsert(ctx context.Context, e *Entity) (bool, error) {
	s := e.schema
	if !db.events.fire(EventCreating, e) {
		return false, nil
	}

	now := db.now()
	if s.CreatedAtColumn != "" && e.attributes[s.CreatedAtColumn] == nil {
		e.attributes[s.CreatedAtColumn] = now
	}
	if s.UpdatedAtColumn != "" && e.attributes[s.UpdatedAtColumn] == nil {
		e.attributes[s.UpdatedAtColumn] = now
	}
	if !s.Incrementing && emptyKey(e.Key()) {
		e.attributes[s.PrimaryKey] = uuid.NewString()
	}

	m := &plan.Mutation{Kind: plan.Insert, Table: s.Table}
	if err := setSerialized(m, s, e.attributes); err != nil {
		return false, err
	}

	res, err := db.exec(ctx, m)
	if err != nil {
		return false, err
	}
	if s.Incrementing && emptyKey(e.Key()) {
		e.attributes[s.PrimaryKey] = res.LastInsertID
	}
	e.exists = true

	db.events.fire(EventCreated, e)
	return true, nil
}

func (db *DB) performUpdate(ctx context.Context, e *Entity) (bool, error) {
	s := e.schema
	dirty := e.Dirty()
	if len(dirty) == 0 {
		// nothing to write; the update statement would touch zero columns
		return true, nil
	}
	if !db.events.fire(EventUpdating, e) {
		return false, nil
	}

	if s.UpdatedAtColumn != "" {
		if _, changed := dirty[s.UpdatedAtColumn]; !changed {
			now := db.now()
			e.attributes[s.UpdatedAtColumn] = now
			dirty[s.UpdatedAtColumn] = now
		}
	}

	m := &plan.Mutation{
		Kind:   plan.Update,
		Table:  s.Table,
		Wheres: []plan.Expression{plan.Eq{Column: s.PrimaryKey, Value: e.Key()}},
	}
	if err := setSerialized(m, s, dirty); err != nil {
		return false, err
	}

	if _, err := db.exec(ctx, m); err != nil {
		return false, err
	}

	db.events.fire(EventUpdated, e)
	return true, nil
}

// Delete removes the entity: a deletion-timestamp update under soft
// deletes, a row delete otherwise.
func (db *DB) Delete(ctx context.Context, e *Entity) (bool, error) {
	if !e.exists {
		return false, nil
	}
	if !db.events.fire(EventDeleting, e) {
		return false, nil
	}

	if e.schema.SoftDeletes() {
		if err := db.performSoftDelete(ctx, e); err != nil {
			return false, err
		}
	} else {
		if err := db.performHardDelete(ctx, e); err != nil {
			return false, err
		}
	}

	db.events.fire(EventDeleted, e)
	return true, nil
}

// ForceDelete removes the row even when the entity soft deletes.
func (db *DB) ForceDelete(ctx context.Context, e *Entity) (bool, error) {
	if !e.exists {
		return false, nil
	}
	if !db.events.fire(EventDeleting, e) {
		return false, nil
	}
	if err := db.performHardDelete(ctx, e); err != nil {
		return false, err
	}
	db.events.fire(EventDeleted, e)
	return true, nil
}

func (db *DB) performSoftDelete(ctx context.Context, e *Entity) error {
	s := e.schema
	now := db.now()

	m := &plan.Mutation{
		Kind:   plan.Update,
		Table:  s.Table,
		Wheres: []plan.Expression{plan.Eq{Column: s.PrimaryKey, Value: e.Key()}},
	}
	e.attributes[s.DeletedAtColumn] = now
	m.SetValue(s.DeletedAtColumn, now.Format(dateTimeLayout))
	if s.UpdatedAtColumn != "" {
		e.attributes[s.UpdatedAtColumn] = now
		m.SetValue(s.UpdatedAtColumn, now.Format(dateTimeLayout))
	}

	if _, err := db.exec(ctx, m); err != nil {
		return err
	}
	e.syncOriginal()
	return nil
}

func (db *DB) performHardDelete(ctx context.Context, e *Entity) error {
	m := &plan.Mutation{
		Kind:   plan.Delete,
		Table:  e.schema.Table,
		Wheres: []plan.Expression{plan.Eq{Column: e.schema.PrimaryKey, Value: e.Key()}},
	}
	if _, err := db.exec(ctx, m); err != nil {
		return err
	}
	e.exists = false
	return nil
}

// Restore clears the deletion timestamp of a soft-deleted entity and
// re-includes it in default queries.
func (db *DB) Restore(ctx context.Context, e *Entity) (bool, error) {
	s := e.schema
	if !s.SoftDeletes() {
		return false, fmt.Errorf("%s does not soft delete", s.Entity)
	}
	if !db.events.fire(EventRestoring, e) {
		return false, nil
	}

	now := db.now()
	m := &plan.Mutation{
		Kind:   plan.Update,
		Table:  s.Table,
		Wheres: []plan.Expression{plan.Eq{Column: s.PrimaryKey, Value: e.Key()}},
	}
	e.attributes[s.DeletedAtColumn] = nil
	m.SetValue(s.DeletedAtColumn, nil)
	if s.UpdatedAtColumn != "" {
		e.attributes[s.UpdatedAtColumn] = now
		m.SetValue(s.UpdatedAtColumn, now.Format(dateTimeLayout))
	}

	if _, err := db.exec(ctx, m); err != nil {
		return false, err
	}
	e.syncOriginal()

	db.events.fire(EventRestored, e)
	return true, nil
}

// Push saves the entity and every loaded relation depth-first. The
// first failure or cancellation stops the walk; nothing is rolled back
// here, wrap Push in Transaction for atomicity.
func (db *DB) Push(ctx context.Context, e *Entity) (bool, error) {
	saved, err := db.Save(ctx, e)
	if err != nil || !saved {
		return saved, err
	}

	for _, name := range e.loadedRelationNames() {
		switch related := e.relations[name].(type) {
		case *Entity:
			if saved, err := db.Push(ctx, related); err != nil || !saved {
				return saved, err
			}
		case *Collection:
			for _, member := range related.All() {
				if saved, err := db.Push(ctx, member); err != nil || !saved {
					return saved, err
				}
			}
		}
	}
	return true, nil
}

// touchOwners bumps the updated_at of belongs-to parents named in the
// touch list.
func (db *DB) touchOwners(ctx context.Context, e *Entity) error {
	for _, name := range e.schema.Touches {
		rel, ok := e.schema.Relation(name)
		if !ok || rel.Kind != schema.BelongsTo {
			continue
		}
		parentKey := e.Raw(rel.ForeignKey)
		if parentKey == nil {
			continue
		}
		parent, err := db.relatedSchema(e.schema, rel)
		if err != nil {
			return err
		}
		if parent.UpdatedAtColumn == "" {
			continue
		}

		m := &plan.Mutation{
			Kind:   plan.Update,
			Table:  parent.Table,
			Wheres: []plan.Expression{plan.Eq{Column: relatedSideKey(rel, parent), Value: parentKey}},
		}
		m.SetValue(parent.UpdatedAtColumn, db.now().Format(dateTimeLayout))
		if _, err := db.exec(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// setSerialized writes attrs into the mutation in column order, pushing
// every value through cast/date serialization first.
func setSerialized(m *plan.Mutation, s *schema.Schema, attrs map[string]interface{}) error {
	columns := make([]string, 0, len(attrs))
	for column := range attrs {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	for _, column := range columns {
		value, err := serializeAttribute(s, column, attrs[column])
		if err != nil {
			return err
		}
		m.SetValue(column, value)
	}
	return nil
}

func emptyKey(key interface{}) bool {
	return key == nil || key == "" || key == 0 || key == int64(0)
}

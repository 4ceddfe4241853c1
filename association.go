package arbor

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/arbor-orm/arbor/plan"
	"github.com/arbor-orm/arbor/schema"
)

// Association manipulates the pivot rows of one many-to-many relation
// instance for an owner already fetched from storage.
type Association struct {
	db      *DB
	owner   *Entity
	rel     *schema.Relationship
	related *schema.Schema
	err     error
}

// SyncResult reports which related ids a Sync attached, detached and
// updated.
type SyncResult struct {
	Attached []interface{}
	Detached []interface{}
	Updated  []interface{}
}

// Association returns the pivot manager for a many-to-many relation.
func (e *Entity) Association(name string) *Association {
	a := &Association{db: e.db, owner: e}

	rel, ok := e.schema.Relation(name)
	if !ok {
		a.err = &RelationDefinitionError{Entity: e.schema.Entity, Relation: name, Reason: "relation not defined"}
		return a
	}
	switch rel.Kind {
	case schema.BelongsToMany, schema.MorphToMany, schema.MorphedByMany:
	default:
		a.err = fmt.Errorf("%w: %s.%s is not many-to-many", ErrUnsupportedRelation, e.schema.Entity, name)
		return a
	}
	a.rel = rel

	related, err := e.db.relatedSchema(e.schema, rel)
	if err != nil {
		a.err = err
		return a
	}
	a.related = related

	if e.Raw(rel.LocalKey) == nil {
		a.err = fmt.Errorf("%s.%s: owner has no %s value", e.schema.Entity, name, rel.LocalKey)
	}
	return a
}

// pivotWheres scopes pivot rows to the owner, including the morph
// discriminator on shared pivots.
func (a *Association) pivotWheres() []plan.Expression {
	wheres := []plan.Expression{
		plan.Eq{Column: a.rel.PivotForeignKey, Value: a.owner.Raw(a.rel.LocalKey)},
	}
	if column, value, ok := a.pivotType(); ok {
		wheres = append(wheres, plan.Eq{Column: column, Value: value})
	}
	return wheres
}

func (a *Association) pivotType() (column string, value interface{}, ok bool) {
	switch a.rel.Kind {
	case schema.MorphToMany:
		return a.rel.TypeColumn, a.owner.schema.MorphClass, true
	case schema.MorphedByMany:
		return a.rel.TypeColumn, a.related.MorphClass, true
	}
	return "", nil, false
}

// currentRows fetches the owner's pivot rows keyed by related id.
func (a *Association) currentRows(ctx context.Context) (map[string]plan.Row, []interface{}, error) {
	q := &plan.Query{Table: a.rel.PivotTable, Wheres: a.pivotWheres()}
	rows, err := a.db.query(ctx, q)
	if err != nil {
		return nil, nil, err
	}

	byID := map[string]plan.Row{}
	var ids []interface{}
	for _, row := range rows {
		id := row[a.rel.PivotRelatedKey]
		k := keyOf(id)
		if _, dup := byID[k]; dup {
			continue
		}
		byID[k] = row
		ids = append(ids, id)
	}
	return byID, ids, nil
}

// IDs returns the related ids currently attached to the owner.
func (a *Association) IDs(ctx context.Context) ([]interface{}, error) {
	if a.err != nil {
		return nil, a.err
	}
	_, ids, err := a.currentRows(ctx)
	return ids, err
}

// Attach inserts one pivot row per id not already attached. ids may be
// a single value, a slice, or a map of id to extra-attribute map;
// attrs, when given, applies to every inserted row.
func (a *Association) Attach(ctx context.Context, ids interface{}, attrs ...map[string]interface{}) error {
	if a.err != nil {
		return a.err
	}
	pairs, err := normalizeIDs(ids, attrs...)
	if err != nil {
		return err
	}

	existing, _, err := a.currentRows(ctx)
	if err != nil {
		return err
	}

	for _, pair := range pairs {
		if _, attached := existing[keyOf(pair.id)]; attached {
			continue
		}
		if err := a.insertPivot(ctx, pair); err != nil {
			return err
		}
	}
	return nil
}

// Detach deletes pivot rows for the given ids, or every pivot row for
// the owner when none are given.
func (a *Association) Detach(ctx context.Context, ids ...interface{}) (int64, error) {
	if a.err != nil {
		return 0, a.err
	}

	m := &plan.Mutation{
		Kind:   plan.Delete,
		Table:  a.rel.PivotTable,
		Wheres: a.pivotWheres(),
	}
	if len(ids) > 0 {
		m.Wheres = append(m.Wheres, plan.In{Column: a.rel.PivotRelatedKey, Values: ids})
	}

	res, err := a.db.exec(ctx, m)
	if err != nil {
		return 0, &PivotConstraintError{Table: a.rel.PivotTable, Err: err}
	}
	return res.RowsAffected, nil
}

// Sync reconciles the pivot with the supplied set: ids no longer
// present are detached, new ids attached, and ids present on both sides
// with changed extra attributes updated.
func (a *Association) Sync(ctx context.Context, ids interface{}) (*SyncResult, error) {
	if a.err != nil {
		return nil, a.err
	}
	pairs, err := normalizeIDs(ids)
	if err != nil {
		return nil, err
	}

	current, currentIDs, err := a.currentRows(ctx)
	if err != nil {
		return nil, err
	}

	desired := map[string]struct{}{}
	for _, pair := range pairs {
		desired[keyOf(pair.id)] = struct{}{}
	}

	result := &SyncResult{}

	var detach []interface{}
	for _, id := range currentIDs {
		if _, keep := desired[keyOf(id)]; !keep {
			detach = append(detach, id)
		}
	}
	if len(detach) > 0 {
		if _, err := a.Detach(ctx, detach...); err != nil {
			return nil, err
		}
		result.Detached = detach
	}

	for _, pair := range pairs {
		row, attached := current[keyOf(pair.id)]
		if !attached {
			if err := a.insertPivot(ctx, pair); err != nil {
				return nil, err
			}
			result.Attached = append(result.Attached, pair.id)
			continue
		}
		if pivotChanged(row, pair.attrs) {
			if _, err := a.UpdateExistingPivot(ctx, pair.id, pair.attrs); err != nil {
				return nil, err
			}
			result.Updated = append(result.Updated, pair.id)
		}
	}
	return result, nil
}

// UpdateExistingPivot updates extra columns on one attached pivot row
// without detaching it, refreshing the pivot timestamp when configured.
func (a *Association) UpdateExistingPivot(ctx context.Context, id interface{}, attrs map[string]interface{}) (int64, error) {
	if a.err != nil {
		return 0, a.err
	}

	m := &plan.Mutation{
		Kind:   plan.Update,
		Table:  a.rel.PivotTable,
		Wheres: append(a.pivotWheres(), plan.Eq{Column: a.rel.PivotRelatedKey, Value: id}),
	}
	for _, column := range sortedKeys(attrs) {
		m.SetValue(column, attrs[column])
	}
	if a.rel.PivotTimestamps {
		m.SetValue("updated_at", a.db.now().Format(dateTimeLayout))
	}

	res, err := a.db.exec(ctx, m)
	if err != nil {
		return 0, &PivotConstraintError{Table: a.rel.PivotTable, Err: err}
	}
	return res.RowsAffected, nil
}

// Save persists related when new, then attaches it with the given
// extra attributes. A canceled save attaches nothing.
func (a *Association) Save(ctx context.Context, related *Entity, attrs ...map[string]interface{}) (bool, error) {
	if a.err != nil {
		return false, a.err
	}
	if !related.Exists() {
		saved, err := a.db.Save(ctx, related)
		if err != nil || !saved {
			return saved, err
		}
	}
	if err := a.Attach(ctx, related.Key(), attrs...); err != nil {
		return false, err
	}
	return true, nil
}

func (a *Association) insertPivot(ctx context.Context, pair idAttrs) error {
	m := &plan.Mutation{Kind: plan.Insert, Table: a.rel.PivotTable}
	m.SetValue(a.rel.PivotForeignKey, a.owner.Raw(a.rel.LocalKey))
	m.SetValue(a.rel.PivotRelatedKey, pair.id)
	if column, value, ok := a.pivotType(); ok {
		m.SetValue(column, value)
	}
	for _, column := range sortedKeys(pair.attrs) {
		m.SetValue(column, pair.attrs[column])
	}
	if a.rel.PivotTimestamps {
		now := a.db.now().Format(dateTimeLayout)
		m.SetValue("created_at", now)
		m.SetValue("updated_at", now)
	}

	if _, err := a.db.exec(ctx, m); err != nil {
		return &PivotConstraintError{Table: a.rel.PivotTable, Err: err}
	}
	return nil
}

func pivotChanged(row plan.Row, attrs map[string]interface{}) bool {
	for column, value := range attrs {
		if !equalValues(row[column], value) {
			return true
		}
	}
	return false
}

type idAttrs struct {
	id    interface{}
	attrs map[string]interface{}
}

// normalizeIDs accepts a single id, any slice of ids, or a map of id to
// extra attributes; shared attrs apply to every pair, with per-id
// attributes taking precedence.
func normalizeIDs(ids interface{}, shared ...map[string]interface{}) ([]idAttrs, error) {
	var base map[string]interface{}
	if len(shared) > 0 {
		base = shared[0]
	}

	merge := func(own map[string]interface{}) map[string]interface{} {
		if base == nil {
			return own
		}
		merged := map[string]interface{}{}
		for column, value := range base {
			merged[column] = value
		}
		for column, value := range own {
			merged[column] = value
		}
		return merged
	}

	if ids == nil {
		return nil, nil
	}

	if byID, ok := ids.(map[interface{}]map[string]interface{}); ok {
		pairs := make([]idAttrs, 0, len(byID))
		for id, attrs := range byID {
			pairs = append(pairs, idAttrs{id: id, attrs: merge(attrs)})
		}
		sort.Slice(pairs, func(i, j int) bool { return keyOf(pairs[i].id) < keyOf(pairs[j].id) })
		return pairs, nil
	}

	value := reflect.ValueOf(ids)
	if value.Kind() == reflect.Slice {
		pairs := make([]idAttrs, 0, value.Len())
		for i := 0; i < value.Len(); i++ {
			pairs = append(pairs, idAttrs{id: value.Index(i).Interface(), attrs: merge(nil)})
		}
		return pairs, nil
	}
	if value.Kind() == reflect.Map {
		return nil, fmt.Errorf("unsupported id map type %T", ids)
	}

	return []idAttrs{{id: ids, attrs: merge(nil)}}, nil
}

func sortedKeys(attrs map[string]interface{}) []string {
	keys := make([]string, 0, len(attrs))
	for column := range attrs {
		keys = append(keys, column)
	}
	sort.Strings(keys)
	return keys
}

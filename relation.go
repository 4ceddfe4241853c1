package arbor

import (
	"context"
	"fmt"
	"strings"

	"github.com/arbor-orm/arbor/plan"
	"github.com/arbor-orm/arbor/schema"
)

// pivotPrefix is the alias prefix used to carry pivot columns alongside
// related columns in one batched query.
const pivotPrefix = "pivot_"

// throughKeyAlias carries the owner key through a two-hop join.
const throughKeyAlias = "through_key"

// loadRelation resolves one relation for a batch of owners with a
// single follow-up query (one per distinct discriminator for MorphTo)
// and populates every owner's relation cache. It returns the related
// entities it hydrated so nested paths can recurse.
func (db *DB) loadRelation(ctx context.Context, owners []*Entity, s *schema.Schema, name string, constraint func(*Query)) ([]*Entity, error) {
	rel, ok := s.Relation(name)
	if !ok {
		return nil, &RelationDefinitionError{Entity: s.Entity, Relation: name, Reason: "relation not defined"}
	}

	switch rel.Kind {
	case schema.HasOne, schema.HasMany, schema.MorphOne, schema.MorphMany:
		return db.loadHas(ctx, owners, s, rel, constraint)
	case schema.BelongsTo:
		return db.loadBelongsTo(ctx, owners, s, rel, constraint)
	case schema.BelongsToMany, schema.MorphToMany, schema.MorphedByMany:
		return db.loadManyToMany(ctx, owners, s, rel, constraint)
	case schema.HasManyThrough:
		return db.loadHasManyThrough(ctx, owners, s, rel, constraint)
	case schema.MorphTo:
		return db.loadMorphTo(ctx, owners, s, rel, constraint)
	}
	return nil, &RelationDefinitionError{Entity: s.Entity, Relation: name, Reason: "unknown relation kind"}
}

func (db *DB) relatedSchema(s *schema.Schema, rel *schema.Relationship) (*schema.Schema, error) {
	related, ok := db.registry.Lookup(rel.Related)
	if !ok {
		return nil, &RelationDefinitionError{
			Entity:   s.Entity,
			Relation: rel.Name,
			Reason:   fmt.Sprintf("related entity %q is not registered", rel.Related),
		}
	}
	return related, nil
}

// relatedSideKey is the related-table key column of a belongs-to or
// many-to-many relation, defaulting to the related primary key.
func relatedSideKey(rel *schema.Relationship, related *schema.Schema) string {
	switch rel.Kind {
	case schema.BelongsTo:
		if rel.LocalKey != "" {
			return rel.LocalKey
		}
	default:
		if rel.RelatedKey != "" {
			return rel.RelatedKey
		}
	}
	return related.PrimaryKey
}

// runRelation finishes a relation query: builds the descriptor, applies
// the relation's own refinement closure and executes.
func (db *DB) runRelation(ctx context.Context, q *Query, rel *schema.Relationship) ([]plan.Row, error) {
	pq, err := q.buildPlan()
	if err != nil {
		return nil, err
	}
	if rel.Constraint != nil {
		rel.Constraint(pq)
	}
	return db.query(ctx, pq)
}

// distinctKeys collects the distinct non-nil values of column across
// owners, in first-seen order.
func distinctKeys(owners []*Entity, column string) []interface{} {
	var keys []interface{}
	seen := map[string]struct{}{}
	for _, owner := range owners {
		value := owner.Raw(column)
		if value == nil {
			continue
		}
		k := keyOf(value)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, value)
	}
	return keys
}

func setDefaults(owners []*Entity, rel *schema.Relationship, db *DB, related *schema.Schema) {
	for _, owner := range owners {
		if rel.Kind.Many() {
			owner.SetRelation(rel.Name, newCollection(db, related, nil))
		} else {
			owner.SetRelation(rel.Name, nil)
		}
	}
}

// finishRelated runs any preloads a caller constraint attached to the
// relation query against the freshly hydrated related entities.
func (db *DB) finishRelated(ctx context.Context, q *Query, related *schema.Schema, entities []*Entity) error {
	if len(q.preloads) == 0 || len(entities) == 0 {
		return nil
	}
	return db.eagerLoad(ctx, entities, related, q.preloads)
}

// loadHas covers HasOne/HasMany and their polymorphic counterparts: the
// related table carries the owner key (plus a discriminator for morphs).
func (db *DB) loadHas(ctx context.Context, owners []*Entity, s *schema.Schema, rel *schema.Relationship, constraint func(*Query)) ([]*Entity, error) {
	related, err := db.relatedSchema(s, rel)
	if err != nil {
		return nil, err
	}
	setDefaults(owners, rel, db, related)

	foreignKey := rel.ForeignKey
	if foreignKey == "" {
		foreignKey = rel.IDColumn
	}

	keys := distinctKeys(owners, rel.LocalKey)
	if len(keys) == 0 {
		return nil, nil
	}

	q := db.newQuery(related)
	if constraint != nil {
		constraint(q)
	}
	q.WhereIn(foreignKey, keys)
	if rel.Kind == schema.MorphOne || rel.Kind == schema.MorphMany {
		q.Where(rel.TypeColumn, "=", s.MorphClass)
	}

	rows, err := db.runRelation(ctx, q, rel)
	if err != nil {
		return nil, err
	}

	entities := make([]*Entity, 0, len(rows))
	group := map[string][]*Entity{}
	for _, row := range rows {
		e := hydrate(db, related, row)
		entities = append(entities, e)
		k := keyOf(e.Raw(foreignKey))
		group[k] = append(group[k], e)
	}

	for _, owner := range owners {
		matched := group[keyOf(owner.Raw(rel.LocalKey))]
		if rel.Kind.Many() {
			owner.SetRelation(rel.Name, newCollection(db, related, matched))
		} else if len(matched) > 0 {
			owner.SetRelation(rel.Name, matched[0])
		}
	}

	return entities, db.finishRelated(ctx, q, related, entities)
}

// loadBelongsTo batches the inverse side: owners carry the foreign key,
// the related table is filtered on its local key.
func (db *DB) loadBelongsTo(ctx context.Context, owners []*Entity, s *schema.Schema, rel *schema.Relationship, constraint func(*Query)) ([]*Entity, error) {
	related, err := db.relatedSchema(s, rel)
	if err != nil {
		return nil, err
	}
	setDefaults(owners, rel, db, related)

	ownerKey := relatedSideKey(rel, related)
	keys := distinctKeys(owners, rel.ForeignKey)
	if len(keys) == 0 {
		return nil, nil
	}

	q := db.newQuery(related)
	if constraint != nil {
		constraint(q)
	}
	q.WhereIn(ownerKey, keys)

	rows, err := db.runRelation(ctx, q, rel)
	if err != nil {
		return nil, err
	}

	entities := make([]*Entity, 0, len(rows))
	byKey := map[string]*Entity{}
	for _, row := range rows {
		e := hydrate(db, related, row)
		entities = append(entities, e)
		k := keyOf(e.Raw(ownerKey))
		if _, dup := byKey[k]; !dup {
			byKey[k] = e
		}
	}

	for _, owner := range owners {
		if parent, ok := byKey[keyOf(owner.Raw(rel.ForeignKey))]; ok {
			owner.SetRelation(rel.Name, parent)
		}
	}

	return entities, db.finishRelated(ctx, q, related, entities)
}

// loadManyToMany joins the related table through the pivot and carries
// the pivot row back under aliased columns, so one query serves any
// number of owners. Morph variants scope the shared pivot by its
// discriminator column.
func (db *DB) loadManyToMany(ctx context.Context, owners []*Entity, s *schema.Schema, rel *schema.Relationship, constraint func(*Query)) ([]*Entity, error) {
	related, err := db.relatedSchema(s, rel)
	if err != nil {
		return nil, err
	}
	setDefaults(owners, rel, db, related)

	keys := distinctKeys(owners, rel.LocalKey)
	if len(keys) == 0 {
		return nil, nil
	}

	relatedKey := relatedSideKey(rel, related)

	q := db.newQuery(related)
	if constraint != nil {
		constraint(q)
	}

	q.columns = append(q.columns, plan.Column{Table: related.Table, Name: "*"})
	for _, column := range pivotColumnSet(rel) {
		q.columns = append(q.columns, plan.Column{
			Table: rel.PivotTable,
			Name:  column,
			Alias: pivotPrefix + column,
		})
	}

	q.joins = append(q.joins, plan.Join{
		Kind:  plan.InnerJoin,
		Table: rel.PivotTable,
		On: []plan.JoinOn{{
			LeftTable:   rel.PivotTable,
			LeftColumn:  rel.PivotRelatedKey,
			RightTable:  related.Table,
			RightColumn: relatedKey,
		}},
	})

	q.WhereIn(rel.PivotTable+"."+rel.PivotForeignKey, keys)
	switch rel.Kind {
	case schema.MorphToMany:
		q.Where(rel.PivotTable+"."+rel.TypeColumn, "=", s.MorphClass)
	case schema.MorphedByMany:
		q.Where(rel.PivotTable+"."+rel.TypeColumn, "=", related.MorphClass)
	}

	rows, err := db.runRelation(ctx, q, rel)
	if err != nil {
		return nil, err
	}

	entities := make([]*Entity, 0, len(rows))
	group := map[string][]*Entity{}
	for _, row := range rows {
		attrs, pivotAttrs := splitPivotRow(row)
		e := hydrate(db, related, attrs)
		e.pivot = &Pivot{table: rel.PivotTable, attributes: pivotAttrs}
		entities = append(entities, e)
		k := keyOf(pivotAttrs[rel.PivotForeignKey])
		group[k] = append(group[k], e)
	}

	for _, owner := range owners {
		matched := group[keyOf(owner.Raw(rel.LocalKey))]
		owner.SetRelation(rel.Name, newCollection(db, related, matched))
	}

	return entities, db.finishRelated(ctx, q, related, entities)
}

// pivotColumnSet is every pivot column fetched and attached to hydrated
// entities: both keys, the morph discriminator when present, declared
// extras and timestamps when configured.
func pivotColumnSet(rel *schema.Relationship) []string {
	columns := []string{rel.PivotForeignKey, rel.PivotRelatedKey}
	if rel.Kind == schema.MorphToMany || rel.Kind == schema.MorphedByMany {
		columns = append(columns, rel.TypeColumn)
	}
	columns = append(columns, rel.PivotColumns...)
	if rel.PivotTimestamps {
		columns = append(columns, "created_at", "updated_at")
	}
	return columns
}

func splitPivotRow(row plan.Row) (plan.Row, map[string]interface{}) {
	attrs := plan.Row{}
	pivotAttrs := map[string]interface{}{}
	for column, value := range row {
		if strings.HasPrefix(column, pivotPrefix) {
			pivotAttrs[strings.TrimPrefix(column, pivotPrefix)] = value
		} else {
			attrs[column] = value
		}
	}
	return attrs, pivotAttrs
}

// loadHasManyThrough resolves the two-hop join in one query; the owner
// key travels on an aliased through column and intermediate entities are
// never materialized.
func (db *DB) loadHasManyThrough(ctx context.Context, owners []*Entity, s *schema.Schema, rel *schema.Relationship, constraint func(*Query)) ([]*Entity, error) {
	related, err := db.relatedSchema(s, rel)
	if err != nil {
		return nil, err
	}
	through, ok := db.registry.Lookup(rel.Through)
	if !ok {
		return nil, &RelationDefinitionError{
			Entity:   s.Entity,
			Relation: rel.Name,
			Reason:   fmt.Sprintf("through entity %q is not registered", rel.Through),
		}
	}
	setDefaults(owners, rel, db, related)

	throughLocal := rel.ThroughLocalKey
	if throughLocal == "" {
		throughLocal = through.PrimaryKey
	}

	keys := distinctKeys(owners, rel.LocalKey)
	if len(keys) == 0 {
		return nil, nil
	}

	q := db.newQuery(related)
	if constraint != nil {
		constraint(q)
	}

	q.columns = append(q.columns,
		plan.Column{Table: related.Table, Name: "*"},
		plan.Column{Table: through.Table, Name: rel.ForeignKey, Alias: throughKeyAlias},
	)
	q.joins = append(q.joins, plan.Join{
		Kind:  plan.InnerJoin,
		Table: through.Table,
		On: []plan.JoinOn{{
			LeftTable:   through.Table,
			LeftColumn:  throughLocal,
			RightTable:  related.Table,
			RightColumn: rel.ThroughKey,
		}},
	})
	q.WhereIn(through.Table+"."+rel.ForeignKey, keys)

	rows, err := db.runRelation(ctx, q, rel)
	if err != nil {
		return nil, err
	}

	entities := make([]*Entity, 0, len(rows))
	group := map[string][]*Entity{}
	for _, row := range rows {
		ownerKey := row[throughKeyAlias]
		delete(row, throughKeyAlias)
		e := hydrate(db, related, row)
		entities = append(entities, e)
		group[keyOf(ownerKey)] = append(group[keyOf(ownerKey)], e)
	}

	for _, owner := range owners {
		matched := group[keyOf(owner.Raw(rel.LocalKey))]
		owner.SetRelation(rel.Name, newCollection(db, related, matched))
	}

	return entities, db.finishRelated(ctx, q, related, entities)
}

// loadMorphTo resolves the stored discriminator per owner, then issues
// one batched query per distinct target type present. An unknown
// discriminator value is a resolution error, not a nil result.
func (db *DB) loadMorphTo(ctx context.Context, owners []*Entity, s *schema.Schema, rel *schema.Relationship, constraint func(*Query)) ([]*Entity, error) {
	for _, owner := range owners {
		owner.SetRelation(rel.Name, nil)
	}

	type morphGroup struct {
		target *schema.Schema
		ids    []interface{}
		owners []*Entity
	}
	var classes []string
	groups := map[string]*morphGroup{}

	for _, owner := range owners {
		class := keyOf(owner.Raw(rel.TypeColumn))
		id := owner.Raw(rel.IDColumn)
		if class == "" || id == nil {
			continue
		}
		g, ok := groups[class]
		if !ok {
			target, known := db.registry.Morph(class)
			if !known {
				return nil, &RelationDefinitionError{
					Entity:   s.Entity,
					Relation: rel.Name,
					Reason:   fmt.Sprintf("unresolvable discriminator %q", class),
				}
			}
			g = &morphGroup{target: target}
			groups[class] = g
			classes = append(classes, class)
		}
		g.ids = append(g.ids, id)
		g.owners = append(g.owners, owner)
	}

	var all []*Entity
	for _, class := range classes {
		g := groups[class]

		q := db.newQuery(g.target)
		if constraint != nil {
			constraint(q)
		}
		q.WhereIn(g.target.PrimaryKey, dedupe(g.ids))

		rows, err := db.runRelation(ctx, q, rel)
		if err != nil {
			return nil, err
		}

		byKey := map[string]*Entity{}
		for _, row := range rows {
			e := hydrate(db, g.target, row)
			all = append(all, e)
			byKey[keyOf(e.Key())] = e
		}
		for _, owner := range g.owners {
			if target, ok := byKey[keyOf(owner.Raw(rel.IDColumn))]; ok {
				owner.SetRelation(rel.Name, target)
			}
		}
	}
	return all, nil
}

func dedupe(values []interface{}) []interface{} {
	seen := map[string]struct{}{}
	out := values[:0]
	for _, v := range values {
		k := keyOf(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

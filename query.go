package arbor

import (
	"context"
	"fmt"

	"github.com/arbor-orm/arbor/plan"
	"github.com/arbor-orm/arbor/schema"
)

// Query is a chainable builder over one entity type. Builders are cheap
// and single-use: obtain one from DB.Model, refine it, finish with
// Find/First/FirstOrFail.
type Query struct {
	db     *DB
	schema *schema.Schema
	err    error

	columns []plan.Column
	wheres  []plan.Expression
	joins   []plan.Join
	orders  []plan.Order
	limit   *int
	offset  *int

	preloads         []preloadEntry
	withoutScopes    map[string]struct{}
	withoutAllScopes bool
}

func (db *DB) newQuery(s *schema.Schema) *Query {
	return &Query{db: db, schema: s}
}

// Where adds a comparison predicate. Supported operators: =, !=, <>, >,
// >=, <, <=.
func (q *Query) Where(column, op string, value interface{}) *Query {
	switch op {
	case "=":
		q.wheres = append(q.wheres, plan.Eq{Column: column, Value: value})
	case "!=", "<>":
		q.wheres = append(q.wheres, plan.Neq{Column: column, Value: value})
	case ">":
		q.wheres = append(q.wheres, plan.Gt{Column: column, Value: value})
	case ">=":
		q.wheres = append(q.wheres, plan.Gte{Column: column, Value: value})
	case "<":
		q.wheres = append(q.wheres, plan.Lt{Column: column, Value: value})
	case "<=":
		q.wheres = append(q.wheres, plan.Lte{Column: column, Value: value})
	default:
		q.fail(fmt.Errorf("unsupported operator %q", op))
	}
	return q
}

// WhereIn adds an IN predicate.
func (q *Query) WhereIn(column string, values []interface{}) *Query {
	q.wheres = append(q.wheres, plan.In{Column: column, Values: values})
	return q
}

// WhereNull adds an IS NULL predicate.
func (q *Query) WhereNull(column string) *Query {
	q.wheres = append(q.wheres, plan.IsNull{Column: column})
	return q
}

// WhereNotNull adds an IS NOT NULL predicate.
func (q *Query) WhereNotNull(column string) *Query {
	q.wheres = append(q.wheres, plan.NotNull{Column: column})
	return q
}

// WhereKey filters on the primary key.
func (q *Query) WhereKey(value interface{}) *Query {
	if q.err != nil {
		return q
	}
	return q.Where(q.schema.PrimaryKey, "=", value)
}

// OrderBy appends an ascending ordering term.
func (q *Query) OrderBy(column string) *Query {
	q.orders = append(q.orders, plan.Order{Column: column})
	return q
}

// OrderByDesc appends a descending ordering term.
func (q *Query) OrderByDesc(column string) *Query {
	q.orders = append(q.orders, plan.Order{Column: column, Desc: true})
	return q
}

// Limit caps the result size.
func (q *Query) Limit(n int) *Query {
	q.limit = &n
	return q
}

// Offset skips the first n rows.
func (q *Query) Offset(n int) *Query {
	q.offset = &n
	return q
}

// With requests eager loading of a dot-separated relation path, with an
// optional constraint applied to the path's final level.
func (q *Query) With(path string, constraint ...func(*Query)) *Query {
	entry := preloadEntry{path: path}
	if len(constraint) > 0 {
		entry.constraint = constraint[0]
	}
	q.preloads = append(q.preloads, entry)
	return q
}

// WithoutGlobalScope removes named global scopes for this query only.
func (q *Query) WithoutGlobalScope(names ...string) *Query {
	if q.withoutScopes == nil {
		q.withoutScopes = map[string]struct{}{}
	}
	for _, name := range names {
		q.withoutScopes[name] = struct{}{}
	}
	return q
}

// WithoutGlobalScopes removes every global scope for this query only.
func (q *Query) WithoutGlobalScopes() *Query {
	q.withoutAllScopes = true
	return q
}

// WithTrashed includes soft-deleted rows by removing the soft-delete
// scope for this query.
func (q *Query) WithTrashed() *Query {
	return q.WithoutGlobalScope(SoftDeleteScope)
}

// OnlyTrashed restricts the query to soft-deleted rows.
func (q *Query) OnlyTrashed() *Query {
	if q.err != nil {
		return q
	}
	if !q.schema.SoftDeletes() {
		q.fail(fmt.Errorf("%s does not soft delete", q.schema.Entity))
		return q
	}
	return q.WithTrashed().WhereNotNull(q.schema.DeletedAtColumn)
}

// Find executes the query and returns the matching collection, eager
// loading any requested relation paths.
func (q *Query) Find(ctx context.Context) (*Collection, error) {
	rows, err := q.run(ctx)
	if err != nil {
		return nil, err
	}

	entities := make([]*Entity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, hydrate(q.db, q.schema, row))
	}

	if len(q.preloads) > 0 {
		if err := q.db.eagerLoad(ctx, entities, q.schema, q.preloads); err != nil {
			return nil, err
		}
	}
	return newCollection(q.db, q.schema, entities), nil
}

// First executes the query with limit 1; a nil entity and nil error
// means no match.
func (q *Query) First(ctx context.Context) (*Entity, error) {
	limited := *q
	one := 1
	limited.limit = &one

	result, err := limited.Find(ctx)
	if err != nil {
		return nil, err
	}
	if result.Len() == 0 {
		return nil, nil
	}
	return result.At(0), nil
}

// FirstOrFail is First returning ErrModelNotFound on no match.
func (q *Query) FirstOrFail(ctx context.Context) (*Entity, error) {
	e, err := q.First(ctx)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, q.schema.Entity)
	}
	return e, nil
}

// FindKey fetches one entity by primary key, or ErrModelNotFound.
func (q *Query) FindKey(ctx context.Context, key interface{}) (*Entity, error) {
	return q.WhereKey(key).FirstOrFail(ctx)
}

func (q *Query) run(ctx context.Context) ([]plan.Row, error) {
	pq, err := q.buildPlan()
	if err != nil {
		return nil, err
	}
	return q.db.query(ctx, pq)
}

// buildPlan assembles the descriptor: global scopes first, caller
// predicates after, as the composer contract requires.
func (q *Query) buildPlan() (*plan.Query, error) {
	if q.err != nil {
		return nil, q.err
	}

	scoped := q.applyGlobalScopes(q.db.newQuery(q.schema))
	if scoped.err != nil {
		return nil, scoped.err
	}

	pq := &plan.Query{
		Table:   q.schema.Table,
		Columns: append(append([]plan.Column(nil), scoped.columns...), q.columns...),
		Wheres:  append(append([]plan.Expression(nil), scoped.wheres...), q.wheres...),
		Joins:   append(append([]plan.Join(nil), scoped.joins...), q.joins...),
		Orders:  append(append([]plan.Order(nil), scoped.orders...), q.orders...),
		Limit:   q.limit,
		Offset:  q.offset,
	}
	return pq, nil
}

func (q *Query) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

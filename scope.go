package arbor

// SoftDeleteScope is the name of the built-in scope that hides
// soft-deleted rows; WithTrashed removes exactly this one.
const SoftDeleteScope = "soft_delete"

// ScopeFunc refines a query. Global scopes run in registration order,
// ahead of any caller-supplied predicate.
type ScopeFunc func(*Query) *Query

type namedScope struct {
	name string
	fn   ScopeFunc
}

// scopeBank holds the ordered global scopes per table. Appended to at
// boot, read-only afterwards.
type scopeBank struct {
	byTable map[string][]namedScope
}

func newScopeBank() *scopeBank {
	return &scopeBank{byTable: map[string][]namedScope{}}
}

func (b *scopeBank) add(table, name string, fn ScopeFunc) {
	b.byTable[table] = append(b.byTable[table], namedScope{name: name, fn: fn})
}

func (b *scopeBank) forTable(table string) []namedScope {
	return b.byTable[table]
}

// AddGlobalScope registers a global scope for an entity type. An empty
// name makes the scope anonymous and not individually removable.
func (db *DB) AddGlobalScope(entity, name string, fn ScopeFunc) error {
	s, err := db.schemaFor(entity)
	if err != nil {
		return err
	}
	db.scopes.add(s.Table, name, fn)
	return nil
}

// applyGlobalScopes runs the registered scopes for the query's table
// into dst, honoring per-query removals. The registered list itself is
// never mutated.
func (q *Query) applyGlobalScopes(dst *Query) *Query {
	if q.withoutAllScopes {
		return dst
	}
	for _, scope := range q.db.scopes.forTable(q.schema.Table) {
		if scope.name != "" {
			if _, removed := q.withoutScopes[scope.name]; removed {
				continue
			}
		}
		dst = scope.fn(dst)
	}
	return dst
}

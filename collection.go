package arbor

import (
	"context"

	"github.com/arbor-orm/arbor/schema"
)

// Collection is an ordered set of entities of one type. Lazy eager
// loading mutates each member's relation cache in place.
type Collection struct {
	db       *DB
	schema   *schema.Schema
	entities []*Entity
}

func newCollection(db *DB, s *schema.Schema, entities []*Entity) *Collection {
	return &Collection{db: db, schema: s, entities: entities}
}

// Len returns the number of entities.
func (c *Collection) Len() int { return len(c.entities) }

// At returns the entity at index i.
func (c *Collection) At(i int) *Entity { return c.entities[i] }

// All returns the backing slice; callers must not reorder it while
// loading relations.
func (c *Collection) All() []*Entity { return c.entities }

// Keys returns the primary key values in order.
func (c *Collection) Keys() []interface{} {
	keys := make([]interface{}, 0, len(c.entities))
	for _, e := range c.entities {
		keys = append(keys, e.Key())
	}
	return keys
}

// Load eager-loads relation paths onto the already-materialized
// collection, overwriting any previously cached values.
func (c *Collection) Load(ctx context.Context, paths ...string) error {
	entries := make([]preloadEntry, 0, len(paths))
	for _, path := range paths {
		entries = append(entries, preloadEntry{path: path})
	}
	return c.db.eagerLoad(ctx, c.entities, c.schema, entries)
}

// LoadWith is Load for one path with a constraint on its final level.
func (c *Collection) LoadWith(ctx context.Context, path string, constraint func(*Query)) error {
	return c.db.eagerLoad(ctx, c.entities, c.schema, []preloadEntry{{path: path, constraint: constraint}})
}

// ToMaps serializes every member through the attribute pipeline.
func (c *Collection) ToMaps() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(c.entities))
	for _, e := range c.entities {
		out = append(out, e.ToMap())
	}
	return out
}

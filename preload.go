package arbor

import (
	"context"
	"strings"

	"github.com/arbor-orm/arbor/schema"
)

// preloadEntry is one requested eager-load path. The constraint applies
// to the path's final level only.
type preloadEntry struct {
	path       string
	constraint func(*Query)
}

// eagerLoad is the batching planner: paths are grouped by their head
// relation, each head costs exactly one follow-up query (one per
// distinct discriminator for MorphTo) regardless of how many entities
// are being loaded, and nested levels recurse with the freshly loaded
// related entities as the new base.
func (db *DB) eagerLoad(ctx context.Context, entities []*Entity, s *schema.Schema, entries []preloadEntry) error {
	if len(entities) == 0 || len(entries) == 0 {
		return nil
	}

	type headGroup struct {
		constraint func(*Query)
		nested     []preloadEntry
	}
	var order []string
	groups := map[string]*headGroup{}

	for _, entry := range entries {
		head, rest := splitPath(entry.path)
		g, ok := groups[head]
		if !ok {
			g = &headGroup{}
			groups[head] = g
			order = append(order, head)
		}
		if rest == "" {
			if entry.constraint != nil {
				g.constraint = entry.constraint
			}
		} else {
			g.nested = append(g.nested, preloadEntry{path: rest, constraint: entry.constraint})
		}
	}

	for _, head := range order {
		g := groups[head]
		related, err := db.loadRelation(ctx, entities, s, head, g.constraint)
		if err != nil {
			return err
		}
		if len(g.nested) == 0 || len(related) == 0 {
			continue
		}

		// MorphTo resolution can hydrate mixed types; recurse per schema.
		for _, batch := range groupBySchema(related) {
			if err := db.eagerLoad(ctx, batch, batch[0].schema, g.nested); err != nil {
				return err
			}
		}
	}
	return nil
}

func splitPath(path string) (head, rest string) {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i], path[i+1:]
	}
	return path, ""
}

func groupBySchema(entities []*Entity) [][]*Entity {
	var order []*schema.Schema
	groups := map[*schema.Schema][]*Entity{}
	for _, e := range entities {
		if _, ok := groups[e.schema]; !ok {
			order = append(order, e.schema)
		}
		groups[e.schema] = append(groups[e.schema], e)
	}
	out := make([][]*Entity, 0, len(order))
	for _, s := range order {
		out = append(out, groups[s])
	}
	return out
}

// Load eager-loads relation paths onto a single entity, overwriting any
// cached values for the loaded names.
func (e *Entity) Load(ctx context.Context, paths ...string) error {
	entries := make([]preloadEntry, 0, len(paths))
	for _, path := range paths {
		entries = append(entries, preloadEntry{path: path})
	}
	return e.db.eagerLoad(ctx, []*Entity{e}, e.schema, entries)
}

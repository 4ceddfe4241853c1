// Package arbor is an attribute-map object-relational mapper. Entities
// are typed by registered schemas rather than Go structs; queries are
// emitted as abstract descriptors and executed by an external
// plan.Executor, so swapping storage backends never changes relationship
// semantics.
package arbor

import (
	"context"
	"fmt"
	"time"

	"github.com/arbor-orm/arbor/logger"
	"github.com/arbor-orm/arbor/plan"
	"github.com/arbor-orm/arbor/schema"
)

// Config arbor config
type Config struct {
	// Logger receives structured logs and descriptor traces
	Logger logger.Interface
	// NowFunc the function to be used when creating a new timestamp
	NowFunc func() time.Time
	// Namer tables, columns naming strategy
	Namer schema.Namer
	// ColumnChecker optional schema collaborator used to validate
	// cast/date configuration at registration
	ColumnChecker schema.ColumnChecker
}

// DB is the root handle: a registry of entity schemas plus the executor
// they run against. Registration (schemas, scopes, listeners) happens
// once at boot and is read-only afterwards.
type DB struct {
	*Config

	executor plan.Executor
	registry *schema.Registry
	scopes   *scopeBank
	events   *eventBank
}

// Open initializes a DB around an executor.
func Open(executor plan.Executor, config *Config) (*DB, error) {
	if executor == nil {
		return nil, ErrMissingExecutor
	}
	if config == nil {
		config = &Config{}
	}
	if config.Logger == nil {
		config.Logger = logger.Default
	}
	if config.NowFunc == nil {
		config.NowFunc = func() time.Time { return time.Now().Local() }
	}
	if config.Namer == nil {
		config.Namer = schema.NamingStrategy{}
	}

	opts := []schema.RegistryOption{schema.WithNamer(config.Namer)}
	if config.ColumnChecker != nil {
		opts = append(opts, schema.WithColumnChecker(config.ColumnChecker))
	}

	return &DB{
		Config:   config,
		executor: executor,
		registry: schema.NewRegistry(opts...),
		scopes:   newScopeBank(),
		events:   newEventBank(),
	}, nil
}

// Register boots entity schemas. Soft-deleting schemas get the built-in
// soft-delete scope attached here, ahead of any user scope.
func (db *DB) Register(schemas ...*schema.Schema) error {
	if err := db.registry.Register(schemas...); err != nil {
		return err
	}
	for _, s := range schemas {
		if s.SoftDeletes() {
			column := s.DeletedAtColumn
			db.scopes.add(s.Table, SoftDeleteScope, func(q *Query) *Query {
				return q.WhereNull(column)
			})
		}
	}
	return nil
}

// Registry exposes the schema registry.
func (db *DB) Registry() *schema.Registry { return db.registry }

// Model starts a query builder for a registered entity type, addressed
// by entity name or table name.
func (db *DB) Model(name string) *Query {
	s, err := db.schemaFor(name)
	q := &Query{db: db, schema: s}
	if err != nil {
		q.err = err
	}
	return q
}

// New builds an unsaved entity of the named type.
func (db *DB) New(name string) (*Entity, error) {
	s, err := db.schemaFor(name)
	if err != nil {
		return nil, err
	}
	return newEntity(db, s), nil
}

// Transaction acquires a scoped transaction from the executor when it
// supports one and runs fn inside it; otherwise fn runs against the
// plain executor. Rollback and retry policy belong to the executor.
func (db *DB) Transaction(ctx context.Context, fn func(tx *DB) error) error {
	if t, ok := db.executor.(plan.Transactor); ok {
		return t.Transaction(ctx, func(exec plan.Executor) error {
			txDB := *db
			txDB.executor = exec
			return fn(&txDB)
		})
	}
	return fn(db)
}

func (db *DB) schemaFor(name string) (*schema.Schema, error) {
	if s, ok := db.registry.Lookup(name); ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, name)
}

func (db *DB) now() time.Time {
	return db.NowFunc()
}

// query runs a select descriptor through the executor with tracing.
func (db *DB) query(ctx context.Context, q *plan.Query) ([]plan.Row, error) {
	begin := db.now()
	rows, err := db.executor.Query(ctx, q)
	db.Logger.Trace(ctx, begin, func() (string, int64) {
		return describeQuery(q), int64(len(rows))
	}, err)
	return rows, err
}

// exec runs a mutation descriptor through the executor with tracing.
func (db *DB) exec(ctx context.Context, m *plan.Mutation) (plan.Result, error) {
	begin := db.now()
	res, err := db.executor.Exec(ctx, m)
	db.Logger.Trace(ctx, begin, func() (string, int64) {
		return describeMutation(m), res.RowsAffected
	}, err)
	return res, err
}

func describeQuery(q *plan.Query) string {
	return fmt.Sprintf("select %s [wheres=%d joins=%d orders=%d]",
		q.Table, len(q.Wheres), len(q.Joins), len(q.Orders))
}

func describeMutation(m *plan.Mutation) string {
	var kind string
	switch m.Kind {
	case plan.Insert:
		kind = "insert"
	case plan.Update:
		kind = "update"
	case plan.Delete:
		kind = "delete"
	}
	return fmt.Sprintf("%s %s [columns=%d wheres=%d]", kind, m.Table, len(m.Columns), len(m.Wheres))
}

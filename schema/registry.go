package schema

import (
	"errors"
	"fmt"
)

// ErrRegistration wraps every schema registration failure.
var ErrRegistration = errors.New("schema registration")

// ColumnChecker is the external schema collaborator, consulted only to
// validate that cast and date configuration points at real columns.
type ColumnChecker interface {
	HasColumn(table, column string) (bool, error)
}

// Registry holds every registered schema, keyed by entity name, table
// and morph class. Registration happens once at boot; the registry is
// read-only afterwards.
type Registry struct {
	namer    Namer
	checker  ColumnChecker
	byEntity map[string]*Schema
	byTable  map[string]*Schema
	byMorph  map[string]*Schema
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithNamer overrides the naming strategy.
func WithNamer(namer Namer) RegistryOption {
	return func(r *Registry) { r.namer = namer }
}

// WithColumnChecker wires the external schema collaborator.
func WithColumnChecker(checker ColumnChecker) RegistryOption {
	return func(r *Registry) { r.checker = checker }
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		namer:    NamingStrategy{},
		byEntity: map[string]*Schema{},
		byTable:  map[string]*Schema{},
		byMorph:  map[string]*Schema{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Namer returns the registry's naming strategy.
func (r *Registry) Namer() Namer { return r.namer }

// Register boots and validates schemas. Deferred definition errors
// (duplicate relation names), fillable/guarded conflicts, duplicate
// identities and unknown cast/date columns are all rejected here.
func (r *Registry) Register(schemas ...*Schema) error {
	for _, s := range schemas {
		if err := r.register(s); err != nil {
			return fmt.Errorf("%w: %v", ErrRegistration, err)
		}
	}
	return nil
}

func (r *Registry) register(s *Schema) error {
	if s.err != nil {
		return s.err
	}
	if s.booted {
		return fmt.Errorf("%s: already registered", s.Entity)
	}
	if len(s.Fillable) > 0 && len(s.Guarded) > 0 {
		return fmt.Errorf("%s: fillable and guarded are mutually exclusive", s.Entity)
	}

	r.bootSchema(s)

	if _, dup := r.byEntity[s.Entity]; dup {
		return fmt.Errorf("entity %q already registered", s.Entity)
	}
	if _, dup := r.byTable[s.Table]; dup {
		return fmt.Errorf("table %q already registered", s.Table)
	}
	if _, dup := r.byMorph[s.MorphClass]; dup {
		return fmt.Errorf("morph class %q already registered", s.MorphClass)
	}

	if r.checker != nil {
		if err := r.checkColumns(s); err != nil {
			return err
		}
	}

	s.booted = true
	r.byEntity[s.Entity] = s
	r.byTable[s.Table] = s
	r.byMorph[s.MorphClass] = s
	return nil
}

// bootSchema fills owner-side defaults. Related-side key defaults need
// the related schema and stay empty until first resolution.
func (r *Registry) bootSchema(s *Schema) {
	if s.Table == "" {
		s.Table = r.namer.TableName(s.Entity)
	}
	if s.PrimaryKey == "" {
		s.PrimaryKey = "id"
	}
	if s.MorphClass == "" {
		s.MorphClass = s.Table
	}

	for _, name := range s.relationNames {
		rel := s.relations[name]
		switch rel.Kind {
		case HasOne, HasMany:
			if rel.LocalKey == "" {
				rel.LocalKey = s.PrimaryKey
			}
			if rel.ForeignKey == "" {
				rel.ForeignKey = r.namer.ForeignKeyName(s.Table)
			}
		case BelongsTo:
			if rel.ForeignKey == "" {
				rel.ForeignKey = r.namer.ForeignKeyName(rel.Related)
			}
		case BelongsToMany:
			if rel.LocalKey == "" {
				rel.LocalKey = s.PrimaryKey
			}
			if rel.PivotTable == "" {
				rel.PivotTable = r.namer.JoinTableName(s.Table, rel.Related)
			}
			if rel.PivotForeignKey == "" {
				rel.PivotForeignKey = r.namer.ForeignKeyName(s.Table)
			}
			if rel.PivotRelatedKey == "" {
				rel.PivotRelatedKey = r.namer.ForeignKeyName(rel.Related)
			}
		case HasManyThrough:
			if rel.LocalKey == "" {
				rel.LocalKey = s.PrimaryKey
			}
			if rel.ForeignKey == "" {
				rel.ForeignKey = r.namer.ForeignKeyName(s.Table)
			}
			if rel.ThroughKey == "" {
				rel.ThroughKey = r.namer.ForeignKeyName(rel.Through)
			}
		case MorphTo:
			if rel.TypeColumn == "" || rel.IDColumn == "" {
				rel.TypeColumn, rel.IDColumn = r.namer.MorphName(rel.MorphName)
			}
		case MorphOne, MorphMany:
			if rel.LocalKey == "" {
				rel.LocalKey = s.PrimaryKey
			}
			if rel.TypeColumn == "" || rel.IDColumn == "" {
				rel.TypeColumn, rel.IDColumn = r.namer.MorphName(rel.MorphName)
			}
		case MorphToMany:
			if rel.LocalKey == "" {
				rel.LocalKey = s.PrimaryKey
			}
			if rel.TypeColumn == "" || rel.IDColumn == "" {
				rel.TypeColumn, rel.IDColumn = r.namer.MorphName(rel.MorphName)
			}
			if rel.PivotTable == "" {
				rel.PivotTable = r.namer.TableName(rel.MorphName)
			}
			if rel.PivotForeignKey == "" {
				rel.PivotForeignKey = rel.IDColumn
			}
			if rel.PivotRelatedKey == "" {
				rel.PivotRelatedKey = r.namer.ForeignKeyName(rel.Related)
			}
		case MorphedByMany:
			if rel.LocalKey == "" {
				rel.LocalKey = s.PrimaryKey
			}
			if rel.TypeColumn == "" || rel.IDColumn == "" {
				rel.TypeColumn, rel.IDColumn = r.namer.MorphName(rel.MorphName)
			}
			if rel.PivotTable == "" {
				rel.PivotTable = r.namer.TableName(rel.MorphName)
			}
			if rel.PivotForeignKey == "" {
				rel.PivotForeignKey = r.namer.ForeignKeyName(s.Table)
			}
			if rel.PivotRelatedKey == "" {
				rel.PivotRelatedKey = rel.IDColumn
			}
		}
	}
}

func (r *Registry) checkColumns(s *Schema) error {
	check := func(column, kind string) error {
		ok, err := r.checker.HasColumn(s.Table, column)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: %s column %q does not exist on %q", s.Entity, kind, column, s.Table)
		}
		return nil
	}

	for column := range s.Casts {
		if err := check(column, "cast"); err != nil {
			return err
		}
	}
	for _, column := range s.Dates {
		if err := check(column, "date"); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns a schema by entity name or table name.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	if s, ok := r.byEntity[name]; ok {
		return s, true
	}
	s, ok := r.byTable[name]
	return s, ok
}

// Morph resolves a discriminator value to its schema.
func (r *Registry) Morph(class string) (*Schema, bool) {
	s, ok := r.byMorph[class]
	return s, ok
}

// Package schema holds per-entity-type metadata: table and key naming,
// mass-assignment rules, attribute casts, timestamp configuration and
// relationship descriptors. Metadata is built with option functions and
// becomes immutable once registered.
package schema

import "fmt"

// CastType tags the declared type of an attribute column.
type CastType int

const (
	// Int casts to int64.
	Int CastType = iota + 1
	// Float casts to float64.
	Float
	// Str casts to string.
	Str
	// Bool casts to bool.
	Bool
	// Dict casts to map[string]interface{} via JSON.
	Dict
	// List casts to []interface{} via JSON.
	List
	// Date casts to time.Time; declared implicitly by Dates.
	Date
)

func (c CastType) String() string {
	switch c {
	case Int:
		return "int"
	case Float:
		return "float"
	case Str:
		return "str"
	case Bool:
		return "bool"
	case Dict:
		return "dict"
	case List:
		return "list"
	case Date:
		return "date"
	}
	return "unknown"
}

// Accessor transforms a raw column value on read.
type Accessor func(value interface{}) interface{}

// Mutator transforms a value on write and returns the raw value to
// store.
type Mutator func(value interface{}) (interface{}, error)

// Schema is the immutable metadata of one entity type.
type Schema struct {
	Entity       string
	Table        string
	PrimaryKey   string
	Incrementing bool
	MorphClass   string

	Fillable []string
	Guarded  []string
	Dates    []string
	Hidden   []string
	Visible  []string
	Touches  []string
	Casts    map[string]CastType

	// Timestamp columns; empty string disables the column.
	CreatedAtColumn string
	UpdatedAtColumn string
	DeletedAtColumn string

	accessors map[string]Accessor
	mutators  map[string]Mutator

	relations     map[string]*Relationship
	relationNames []string

	booted bool
	err    error
}

// Option configures a Schema under construction.
type Option func(*Schema)

// New builds metadata for one entity type. Table and key names left
// unset are derived from the registry's naming strategy at registration
// time.
func New(entity string, opts ...Option) *Schema {
	s := &Schema{
		Entity:       entity,
		Incrementing: true,
		accessors:    map[string]Accessor{},
		mutators:     map[string]Mutator{},
		relations:    map[string]*Relationship{},
		Casts:        map[string]CastType{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Table overrides the derived table name.
func Table(name string) Option {
	return func(s *Schema) { s.Table = name }
}

// PrimaryKey overrides the primary key column, default "id".
func PrimaryKey(column string) Option {
	return func(s *Schema) { s.PrimaryKey = column }
}

// NonIncrementing marks the primary key as application-assigned; a UUID
// is generated on insert when the key is still empty.
func NonIncrementing() Option {
	return func(s *Schema) { s.Incrementing = false }
}

// MorphClass overrides the discriminator value stored for this type in
// polymorphic relations, default the table name.
func MorphClass(class string) Option {
	return func(s *Schema) { s.MorphClass = class }
}

// Fillable sets the mass-assignment allow-list.
func Fillable(columns ...string) Option {
	return func(s *Schema) { s.Fillable = columns }
}

// Guarded sets the mass-assignment deny-list; Guarded("*") blocks all
// mass assignment.
func Guarded(columns ...string) Option {
	return func(s *Schema) { s.Guarded = columns }
}

// Casts declares attribute cast types.
func Casts(casts map[string]CastType) Option {
	return func(s *Schema) {
		for column, cast := range casts {
			s.Casts[column] = cast
		}
	}
}

// Dates declares date attributes parsed to time.Time on read.
func Dates(columns ...string) Option {
	return func(s *Schema) { s.Dates = append(s.Dates, columns...) }
}

// Hidden hides attributes from serialized output.
func Hidden(columns ...string) Option {
	return func(s *Schema) { s.Hidden = append(s.Hidden, columns...) }
}

// Visible restricts serialized output to the named attributes.
func Visible(columns ...string) Option {
	return func(s *Schema) { s.Visible = append(s.Visible, columns...) }
}

// Touches lists relations whose parents get their updated_at bumped when
// this entity is saved.
func Touches(relations ...string) Option {
	return func(s *Schema) { s.Touches = append(s.Touches, relations...) }
}

// Timestamps enables created_at/updated_at maintenance with the default
// column names.
func Timestamps() Option {
	return func(s *Schema) {
		s.CreatedAtColumn = "created_at"
		s.UpdatedAtColumn = "updated_at"
	}
}

// CreatedAt enables only the creation timestamp, under column.
func CreatedAt(column string) Option {
	return func(s *Schema) { s.CreatedAtColumn = column }
}

// UpdatedAt enables only the update timestamp, under column.
func UpdatedAt(column string) Option {
	return func(s *Schema) { s.UpdatedAtColumn = column }
}

// SoftDeletes opts in to soft deletion under the "deleted_at" column.
func SoftDeletes() Option {
	return func(s *Schema) { s.DeletedAtColumn = "deleted_at" }
}

// DeletedAt opts in to soft deletion under a custom column.
func DeletedAt(column string) Option {
	return func(s *Schema) { s.DeletedAtColumn = column }
}

// WithAccessor registers a read transform for column.
func WithAccessor(column string, fn Accessor) Option {
	return func(s *Schema) { s.accessors[column] = fn }
}

// WithMutator registers a write transform for column.
func WithMutator(column string, fn Mutator) Option {
	return func(s *Schema) { s.mutators[column] = fn }
}

// Accessor returns the read transform for column, if any.
func (s *Schema) Accessor(column string) (Accessor, bool) {
	fn, ok := s.accessors[column]
	return fn, ok
}

// Mutator returns the write transform for column, if any.
func (s *Schema) Mutator(column string) (Mutator, bool) {
	fn, ok := s.mutators[column]
	return fn, ok
}

// SoftDeletes reports whether the type opts in to soft deletion.
func (s *Schema) SoftDeletes() bool {
	return s.DeletedAtColumn != ""
}

// IsDate reports whether column is a declared date attribute.
func (s *Schema) IsDate(column string) bool {
	for _, c := range s.Dates {
		if c == column {
			return true
		}
	}
	return false
}

// Relation returns the named relationship descriptor.
func (s *Schema) Relation(name string) (*Relationship, bool) {
	rel, ok := s.relations[name]
	return rel, ok
}

// Relations returns relationship names in definition order.
func (s *Schema) Relations() []string {
	return s.relationNames
}

func (s *Schema) addRelation(rel *Relationship) *Schema {
	if _, dup := s.relations[rel.Name]; dup {
		s.fail(fmt.Errorf("%s: relation %q already defined", s.Entity, rel.Name))
		return s
	}
	rel.owner = s
	s.relations[rel.Name] = rel
	s.relationNames = append(s.relationNames, rel.Name)
	return s
}

func (s *Schema) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

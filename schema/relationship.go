package schema

import "github.com/arbor-orm/arbor/plan"

// Kind is the relationship variant tag.
type Kind int

const (
	HasOne Kind = iota + 1
	HasMany
	BelongsTo
	BelongsToMany
	HasManyThrough
	MorphTo
	MorphOne
	MorphMany
	MorphToMany
	MorphedByMany
)

func (k Kind) String() string {
	switch k {
	case HasOne:
		return "has_one"
	case HasMany:
		return "has_many"
	case BelongsTo:
		return "belongs_to"
	case BelongsToMany:
		return "belongs_to_many"
	case HasManyThrough:
		return "has_many_through"
	case MorphTo:
		return "morph_to"
	case MorphOne:
		return "morph_one"
	case MorphMany:
		return "morph_many"
	case MorphToMany:
		return "morph_to_many"
	case MorphedByMany:
		return "morphed_by_many"
	}
	return "unknown"
}

// Many reports whether the variant resolves to a collection.
func (k Kind) Many() bool {
	switch k {
	case HasMany, BelongsToMany, HasManyThrough, MorphMany, MorphToMany, MorphedByMany:
		return true
	}
	return false
}

// Relationship is one tagged relation descriptor. Key fields left empty
// are filled from the naming strategy when the owning schema is
// registered; their meaning varies with Kind:
//
//	HasOne/HasMany   ForeignKey on the related table, LocalKey on the owner
//	BelongsTo        ForeignKey on the owner, LocalKey on the related table
//	BelongsToMany    PivotForeignKey/PivotRelatedKey on the pivot,
//	                 LocalKey on the owner, RelatedKey on the related table
//	HasManyThrough   ForeignKey on the through table pointing at the owner,
//	                 ThroughKey on the related table pointing at the through
//	Morph*           TypeColumn/IDColumn hold the discriminator pair
type Relationship struct {
	Kind Kind
	Name string

	// Related is the related table; empty for MorphTo, whose target is
	// resolved per row from the stored discriminator.
	Related string

	ForeignKey string
	LocalKey   string

	// Many-to-many pivot metadata.
	PivotTable      string
	PivotForeignKey string
	PivotRelatedKey string
	RelatedKey      string
	PivotColumns    []string
	PivotTimestamps bool

	// Has-many-through metadata.
	Through         string
	ThroughKey      string
	ThroughLocalKey string

	// Polymorphic discriminator columns and the relation's morph name.
	MorphName  string
	TypeColumn string
	IDColumn   string

	// Constraint refines the relation's base query on every resolution.
	Constraint func(*plan.Query)

	owner *Schema
}

// Owner returns the schema the relation was defined on.
func (r *Relationship) Owner() *Schema { return r.owner }

// RelationOption overrides derived relationship keys.
type RelationOption func(*Relationship)

// ForeignKey overrides the foreign key column.
func ForeignKey(column string) RelationOption {
	return func(r *Relationship) { r.ForeignKey = column }
}

// LocalKey overrides the owner-side key column.
func LocalKey(column string) RelationOption {
	return func(r *Relationship) { r.LocalKey = column }
}

// RelatedKey overrides the related-side key column of a many-to-many.
func RelatedKey(column string) RelationOption {
	return func(r *Relationship) { r.RelatedKey = column }
}

// PivotTable overrides the pivot table name.
func PivotTable(name string) RelationOption {
	return func(r *Relationship) { r.PivotTable = name }
}

// PivotKeys overrides both pivot key columns.
func PivotKeys(foreignKey, relatedKey string) RelationOption {
	return func(r *Relationship) {
		r.PivotForeignKey = foreignKey
		r.PivotRelatedKey = relatedKey
	}
}

// PivotColumns declares extra pivot columns carried on attach and
// exposed on the hydrated pivot record.
func PivotColumns(columns ...string) RelationOption {
	return func(r *Relationship) { r.PivotColumns = append(r.PivotColumns, columns...) }
}

// PivotTimestamps maintains created_at/updated_at on pivot rows.
func PivotTimestamps() RelationOption {
	return func(r *Relationship) { r.PivotTimestamps = true }
}

// ThroughKeys overrides the two hop keys of a has-many-through:
// firstKey on the through table referencing the owner, secondKey on the
// related table referencing the through table.
func ThroughKeys(firstKey, secondKey string) RelationOption {
	return func(r *Relationship) {
		r.ForeignKey = firstKey
		r.ThroughKey = secondKey
	}
}

// ThroughLocalKey overrides the through-table key referenced by the
// related table.
func ThroughLocalKey(column string) RelationOption {
	return func(r *Relationship) { r.ThroughLocalKey = column }
}

// Constrain attaches a query refinement applied on every resolution of
// the relation.
func Constrain(fn func(*plan.Query)) RelationOption {
	return func(r *Relationship) { r.Constraint = fn }
}

// HasOne defines a one-to-one relation keyed on the related table.
func (s *Schema) HasOne(name, related string, opts ...RelationOption) *Schema {
	return s.addRelation(newRelation(HasOne, name, related, opts))
}

// HasMany defines a one-to-many relation keyed on the related table.
func (s *Schema) HasMany(name, related string, opts ...RelationOption) *Schema {
	return s.addRelation(newRelation(HasMany, name, related, opts))
}

// BelongsTo defines the inverse of a has relation, keyed on the owner.
func (s *Schema) BelongsTo(name, related string, opts ...RelationOption) *Schema {
	return s.addRelation(newRelation(BelongsTo, name, related, opts))
}

// BelongsToMany defines a many-to-many relation through a pivot table.
func (s *Schema) BelongsToMany(name, related string, opts ...RelationOption) *Schema {
	return s.addRelation(newRelation(BelongsToMany, name, related, opts))
}

// HasManyThrough defines a two-hop relation via an intermediate table.
func (s *Schema) HasManyThrough(name, related, through string, opts ...RelationOption) *Schema {
	rel := newRelation(HasManyThrough, name, related, opts)
	rel.Through = through
	return s.addRelation(rel)
}

// MorphTo defines a polymorphic parent relation resolved per row from
// the discriminator pair named after the relation.
func (s *Schema) MorphTo(name string, opts ...RelationOption) *Schema {
	rel := newRelation(MorphTo, name, "", opts)
	rel.MorphName = name
	return s.addRelation(rel)
}

// MorphOne defines a polymorphic one-to-one on the related table using
// the morphName discriminator pair.
func (s *Schema) MorphOne(name, related, morphName string, opts ...RelationOption) *Schema {
	rel := newRelation(MorphOne, name, related, opts)
	rel.MorphName = morphName
	return s.addRelation(rel)
}

// MorphMany defines a polymorphic one-to-many on the related table.
func (s *Schema) MorphMany(name, related, morphName string, opts ...RelationOption) *Schema {
	rel := newRelation(MorphMany, name, related, opts)
	rel.MorphName = morphName
	return s.addRelation(rel)
}

// MorphToMany defines a polymorphic many-to-many where the owner side is
// stored with a discriminator on the shared pivot.
func (s *Schema) MorphToMany(name, related, morphName string, opts ...RelationOption) *Schema {
	rel := newRelation(MorphToMany, name, related, opts)
	rel.MorphName = morphName
	return s.addRelation(rel)
}

// MorphedByMany is the inverse of MorphToMany: the related side carries
// the discriminator on the shared pivot.
func (s *Schema) MorphedByMany(name, related, morphName string, opts ...RelationOption) *Schema {
	rel := newRelation(MorphedByMany, name, related, opts)
	rel.MorphName = morphName
	return s.addRelation(rel)
}

func newRelation(kind Kind, name, related string, opts []RelationOption) *Relationship {
	rel := &Relationship{Kind: kind, Name: name, Related: related}
	for _, opt := range opts {
		opt(rel)
	}
	return rel
}

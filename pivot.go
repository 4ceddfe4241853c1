package arbor

// Pivot is the intermediate-table row attached to entities hydrated
// through a many-to-many relation. It carries the two foreign keys,
// declared extra columns and optional timestamps; it is owned by the
// relationship and never tracked as a standalone entity type.
type Pivot struct {
	table      string
	attributes map[string]interface{}
}

// Table returns the pivot table name.
func (p *Pivot) Table() string { return p.table }

// Get returns one pivot column value.
func (p *Pivot) Get(column string) interface{} {
	return p.attributes[column]
}

// Attributes returns a copy of the pivot row.
func (p *Pivot) Attributes() map[string]interface{} {
	out := make(map[string]interface{}, len(p.attributes))
	for column, value := range p.attributes {
		out[column] = value
	}
	return out
}

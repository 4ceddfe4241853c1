// Package plan defines the abstract query descriptors the core emits and
// the executor boundary that turns them into rows. Dialect SQL, pooling
// and retries all live on the far side of Executor.
package plan

import "context"

// Row is one result row, column name to raw driver value.
type Row map[string]interface{}

// Result reports the outcome of a mutation.
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

// Executor runs descriptors against a backing store. Implementations are
// expected to be safe for sequential reuse; the core never calls them
// concurrently within one logical operation.
type Executor interface {
	Query(ctx context.Context, q *Query) ([]Row, error)
	Exec(ctx context.Context, m *Mutation) (Result, error)
}

// Transactor is optionally implemented by executors that support scoped
// transactions. Multi-step operations run inside fn when available.
type Transactor interface {
	Transaction(ctx context.Context, fn func(Executor) error) error
}

// Column names a selected column, optionally table-qualified and aliased.
// Name "*" selects every column of Table.
type Column struct {
	Table string
	Name  string
	Alias string
}

// Order is a single ordering term.
type Order struct {
	Column string
	Desc   bool
}

// JoinKind enumerates supported join types.
type JoinKind string

const (
	InnerJoin JoinKind = "inner"
	LeftJoin  JoinKind = "left"
)

// JoinOn equates two table-qualified columns.
type JoinOn struct {
	LeftTable   string
	LeftColumn  string
	RightTable  string
	RightColumn string
}

// Join describes one join clause.
type Join struct {
	Kind  JoinKind
	Table string
	On    []JoinOn
}

// Query is a select descriptor. A nil Limit/Offset means unset. Columns
// empty means "select everything from Table".
type Query struct {
	Table   string
	Columns []Column
	Wheres  []Expression
	Joins   []Join
	Orders  []Order
	Limit   *int
	Offset  *int
}

// Clone returns a deep enough copy for independent mutation of the
// top-level slices.
func (q *Query) Clone() *Query {
	dup := *q
	dup.Columns = append([]Column(nil), q.Columns...)
	dup.Wheres = append([]Expression(nil), q.Wheres...)
	dup.Joins = append([]Join(nil), q.Joins...)
	dup.Orders = append([]Order(nil), q.Orders...)
	return &dup
}

// MutationKind enumerates write descriptors.
type MutationKind int

const (
	Insert MutationKind = iota
	Update
	Delete
)

// Mutation is a write descriptor. Values is used by Insert and Update;
// Wheres scopes Update and Delete. Columns preserves a deterministic
// value ordering for executors that need one.
type Mutation struct {
	Kind    MutationKind
	Table   string
	Columns []string
	Values  map[string]interface{}
	Wheres  []Expression
}

// SetValue records a column value, keeping Columns ordered by first
// assignment.
func (m *Mutation) SetValue(column string, value interface{}) {
	if m.Values == nil {
		m.Values = map[string]interface{}{}
	}
	if _, ok := m.Values[column]; !ok {
		m.Columns = append(m.Columns, column)
	}
	m.Values[column] = value
}

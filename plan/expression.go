package plan

// Expression is a predicate node in a query descriptor. Column names may
// be table-qualified ("pivot_table.user_id"); unqualified names refer to
// the descriptor's primary table.
type Expression interface {
	expression()
}

// Eq matches Column = Value. A nil Value means IS NULL for executors
// that normalize it, but the core always emits IsNull explicitly.
type Eq struct {
	Column string
	Value  interface{}
}

// Neq matches Column <> Value.
type Neq struct {
	Column string
	Value  interface{}
}

// Gt matches Column > Value.
type Gt struct {
	Column string
	Value  interface{}
}

// Lt matches Column < Value.
type Lt struct {
	Column string
	Value  interface{}
}

// Gte matches Column >= Value.
type Gte struct {
	Column string
	Value  interface{}
}

// Lte matches Column <= Value.
type Lte struct {
	Column string
	Value  interface{}
}

// In matches Column against a value set.
type In struct {
	Column string
	Values []interface{}
}

// IsNull matches Column IS NULL.
type IsNull struct {
	Column string
}

// NotNull matches Column IS NOT NULL.
type NotNull struct {
	Column string
}

// And groups sub-expressions conjunctively.
type And struct {
	Exprs []Expression
}

// Or groups sub-expressions disjunctively.
type Or struct {
	Exprs []Expression
}

func (Eq) expression()      {}
func (Neq) expression()     {}
func (Gt) expression()      {}
func (Lt) expression()      {}
func (Gte) expression()     {}
func (Lte) expression()     {}
func (In) expression()      {}
func (IsNull) expression()  {}
func (NotNull) expression() {}
func (And) expression()     {}
func (Or) expression()      {}

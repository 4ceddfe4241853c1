// Package sqlexec is a reference plan.Executor over database/sql. It
// renders descriptors with generic `?` placeholders and double-quoted
// identifiers; production deployments substitute their own executor for
// dialect-specific SQL, pooling and retries. The arbor core never
// imports this package.
package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/arbor-orm/arbor/plan"
)

// Executor implements plan.Executor and plan.Transactor over a *sql.DB.
type Executor struct {
	db *sql.DB
}

// New wraps an opened database handle.
func New(db *sql.DB) *Executor {
	return &Executor{db: db}
}

type queryable interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Query renders and runs a select descriptor.
func (e *Executor) Query(ctx context.Context, q *plan.Query) ([]plan.Row, error) {
	return runQuery(ctx, e.db, q)
}

// Exec renders and runs a mutation descriptor.
func (e *Executor) Exec(ctx context.Context, m *plan.Mutation) (plan.Result, error) {
	return runExec(ctx, e.db, m)
}

// Transaction runs fn inside one database transaction, rolling back on
// error.
func (e *Executor) Transaction(ctx context.Context, fn func(plan.Executor) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&txExecutor{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%v (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

type txExecutor struct {
	tx *sql.Tx
}

func (e *txExecutor) Query(ctx context.Context, q *plan.Query) ([]plan.Row, error) {
	return runQuery(ctx, e.tx, q)
}

func (e *txExecutor) Exec(ctx context.Context, m *plan.Mutation) (plan.Result, error) {
	return runExec(ctx, e.tx, m)
}

func runQuery(ctx context.Context, db queryable, q *plan.Query) ([]plan.Row, error) {
	stmt, args := RenderQuery(q)
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []plan.Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		dests := make([]interface{}, len(columns))
		for i := range values {
			dests[i] = &values[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		row := plan.Row{}
		for i, column := range columns {
			row[column] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func runExec(ctx context.Context, db queryable, m *plan.Mutation) (plan.Result, error) {
	stmt, args := RenderMutation(m)
	res, err := db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return plan.Result{}, err
	}

	var result plan.Result
	if id, err := res.LastInsertId(); err == nil {
		result.LastInsertID = id
	}
	if n, err := res.RowsAffected(); err == nil {
		result.RowsAffected = n
	}
	return result, nil
}

// RenderQuery turns a select descriptor into placeholder SQL.
func RenderQuery(q *plan.Query) (string, []interface{}) {
	var (
		b    strings.Builder
		args []interface{}
	)

	b.WriteString("SELECT ")
	if len(q.Columns) == 0 {
		b.WriteString("*")
	} else {
		for i, column := range q.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			writeColumn(&b, column)
		}
	}

	b.WriteString(" FROM ")
	b.WriteString(quote(q.Table))

	for _, join := range q.Joins {
		switch join.Kind {
		case plan.LeftJoin:
			b.WriteString(" LEFT JOIN ")
		default:
			b.WriteString(" INNER JOIN ")
		}
		b.WriteString(quote(join.Table))
		b.WriteString(" ON ")
		for i, on := range join.On {
			if i > 0 {
				b.WriteString(" AND ")
			}
			fmt.Fprintf(&b, "%s.%s = %s.%s",
				quote(on.LeftTable), quote(on.LeftColumn),
				quote(on.RightTable), quote(on.RightColumn))
		}
	}

	if len(q.Wheres) > 0 {
		b.WriteString(" WHERE ")
		args = append(args, writeExpressions(&b, q.Wheres, " AND ")...)
	}

	if len(q.Orders) > 0 {
		b.WriteString(" ORDER BY ")
		for i, order := range q.Orders {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quoteQualified(order.Column))
			if order.Desc {
				b.WriteString(" DESC")
			}
		}
	}

	if q.Limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *q.Limit)
	}
	if q.Offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *q.Offset)
	}

	return b.String(), args
}

// RenderMutation turns a mutation descriptor into placeholder SQL.
func RenderMutation(m *plan.Mutation) (string, []interface{}) {
	var (
		b    strings.Builder
		args []interface{}
	)

	switch m.Kind {
	case plan.Insert:
		b.WriteString("INSERT INTO ")
		b.WriteString(quote(m.Table))
		b.WriteString(" (")
		for i, column := range m.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quote(column))
		}
		b.WriteString(") VALUES (")
		for i, column := range m.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, m.Values[column])
		}
		b.WriteString(")")

	case plan.Update:
		b.WriteString("UPDATE ")
		b.WriteString(quote(m.Table))
		b.WriteString(" SET ")
		for i, column := range m.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quote(column))
			b.WriteString(" = ?")
			args = append(args, m.Values[column])
		}
		if len(m.Wheres) > 0 {
			b.WriteString(" WHERE ")
			args = append(args, writeExpressions(&b, m.Wheres, " AND ")...)
		}

	case plan.Delete:
		b.WriteString("DELETE FROM ")
		b.WriteString(quote(m.Table))
		if len(m.Wheres) > 0 {
			b.WriteString(" WHERE ")
			args = append(args, writeExpressions(&b, m.Wheres, " AND ")...)
		}
	}

	return b.String(), args
}

func writeExpressions(b *strings.Builder, exprs []plan.Expression, sep string) []interface{} {
	var args []interface{}
	for i, expr := range exprs {
		if i > 0 {
			b.WriteString(sep)
		}
		args = append(args, writeExpression(b, expr)...)
	}
	return args
}

func writeExpression(b *strings.Builder, expr plan.Expression) []interface{} {
	switch e := expr.(type) {
	case plan.Eq:
		if e.Value == nil {
			fmt.Fprintf(b, "%s IS NULL", quoteQualified(e.Column))
			return nil
		}
		fmt.Fprintf(b, "%s = ?", quoteQualified(e.Column))
		return []interface{}{e.Value}
	case plan.Neq:
		fmt.Fprintf(b, "%s <> ?", quoteQualified(e.Column))
		return []interface{}{e.Value}
	case plan.Gt:
		fmt.Fprintf(b, "%s > ?", quoteQualified(e.Column))
		return []interface{}{e.Value}
	case plan.Gte:
		fmt.Fprintf(b, "%s >= ?", quoteQualified(e.Column))
		return []interface{}{e.Value}
	case plan.Lt:
		fmt.Fprintf(b, "%s < ?", quoteQualified(e.Column))
		return []interface{}{e.Value}
	case plan.Lte:
		fmt.Fprintf(b, "%s <= ?", quoteQualified(e.Column))
		return []interface{}{e.Value}
	case plan.In:
		fmt.Fprintf(b, "%s IN (", quoteQualified(e.Column))
		for i := range e.Values {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
		}
		b.WriteString(")")
		return e.Values
	case plan.IsNull:
		fmt.Fprintf(b, "%s IS NULL", quoteQualified(e.Column))
		return nil
	case plan.NotNull:
		fmt.Fprintf(b, "%s IS NOT NULL", quoteQualified(e.Column))
		return nil
	case plan.And:
		b.WriteString("(")
		args := writeExpressions(b, e.Exprs, " AND ")
		b.WriteString(")")
		return args
	case plan.Or:
		b.WriteString("(")
		args := writeExpressions(b, e.Exprs, " OR ")
		b.WriteString(")")
		return args
	}
	return nil
}

func writeColumn(b *strings.Builder, column plan.Column) {
	if column.Table != "" {
		b.WriteString(quote(column.Table))
		b.WriteString(".")
	}
	if column.Name == "*" {
		b.WriteString("*")
	} else {
		b.WriteString(quote(column.Name))
	}
	if column.Alias != "" {
		b.WriteString(" AS ")
		b.WriteString(quote(column.Alias))
	}
}

func quoteQualified(column string) string {
	if i := strings.IndexByte(column, '.'); i >= 0 {
		return quote(column[:i]) + "." + quote(column[i+1:])
	}
	return quote(column)
}

func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

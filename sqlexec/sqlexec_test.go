package sqlexec

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbor-orm/arbor/plan"
)

func TestRenderQuery(t *testing.T) {
	limit := 10
	q := &plan.Query{
		Table: "users",
		Wheres: []plan.Expression{
			plan.Eq{Column: "status", Value: "active"},
			plan.In{Column: "id", Values: []interface{}{1, 2, 3}},
			plan.IsNull{Column: "deleted_at"},
		},
		Orders: []plan.Order{{Column: "name"}, {Column: "id", Desc: true}},
		Limit:  &limit,
	}

	stmt, args := RenderQuery(q)
	assert.Equal(t,
		`SELECT * FROM "users" WHERE "status" = ? AND "id" IN (?, ?, ?) AND "deleted_at" IS NULL ORDER BY "name", "id" DESC LIMIT 10`,
		stmt)
	assert.Equal(t, []interface{}{"active", 1, 2, 3}, args)
}

func TestRenderQueryJoinAndAliases(t *testing.T) {
	q := &plan.Query{
		Table: "roles",
		Columns: []plan.Column{
			{Table: "roles", Name: "*"},
			{Table: "role_user", Name: "user_id", Alias: "pivot_user_id"},
		},
		Joins: []plan.Join{{
			Kind:  plan.InnerJoin,
			Table: "role_user",
			On: []plan.JoinOn{{
				LeftTable: "role_user", LeftColumn: "role_id",
				RightTable: "roles", RightColumn: "id",
			}},
		}},
		Wheres: []plan.Expression{
			plan.In{Column: "role_user.user_id", Values: []interface{}{7}},
		},
	}

	stmt, args := RenderQuery(q)
	assert.Equal(t,
		`SELECT "roles".*, "role_user"."user_id" AS "pivot_user_id" FROM "roles" INNER JOIN "role_user" ON "role_user"."role_id" = "roles"."id" WHERE "role_user"."user_id" IN (?)`,
		stmt)
	assert.Equal(t, []interface{}{7}, args)
}

func TestRenderMutation(t *testing.T) {
	insert := &plan.Mutation{Kind: plan.Insert, Table: "users"}
	insert.SetValue("name", "jinzhu")
	insert.SetValue("age", 18)

	stmt, args := RenderMutation(insert)
	assert.Equal(t, `INSERT INTO "users" ("name", "age") VALUES (?, ?)`, stmt)
	assert.Equal(t, []interface{}{"jinzhu", 18}, args)

	update := &plan.Mutation{
		Kind:   plan.Update,
		Table:  "users",
		Wheres: []plan.Expression{plan.Eq{Column: "id", Value: 1}},
	}
	update.SetValue("age", 20)

	stmt, args = RenderMutation(update)
	assert.Equal(t, `UPDATE "users" SET "age" = ? WHERE "id" = ?`, stmt)
	assert.Equal(t, []interface{}{20, 1}, args)

	del := &plan.Mutation{
		Kind:   plan.Delete,
		Table:  "users",
		Wheres: []plan.Expression{plan.Eq{Column: "id", Value: 1}},
	}

	stmt, args = RenderMutation(del)
	assert.Equal(t, `DELETE FROM "users" WHERE "id" = ?`, stmt)
	assert.Equal(t, []interface{}{1}, args)
}

func TestExecutorQuery(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT * FROM "users" WHERE "id" = ?`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "jinzhu"))

	rows, err := New(db).Query(context.Background(), &plan.Query{
		Table:  "users",
		Wheres: []plan.Expression{plan.Eq{Column: "id", Value: 1}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "jinzhu", rows[0]["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutorExec(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO "users" ("name") VALUES (?)`).
		WithArgs("jinzhu").
		WillReturnResult(sqlmock.NewResult(3, 1))

	m := &plan.Mutation{Kind: plan.Insert, Table: "users"}
	m.SetValue("name", "jinzhu")

	result, err := New(db).Exec(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.LastInsertID)
	assert.Equal(t, int64(1), result.RowsAffected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutorTransaction(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "users" WHERE "id" = ?`).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = New(db).Transaction(context.Background(), func(exec plan.Executor) error {
		_, err := exec.Exec(context.Background(), &plan.Mutation{
			Kind:   plan.Delete,
			Table:  "users",
			Wheres: []plan.Expression{plan.Eq{Column: "id", Value: 1}},
		})
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutorTransactionRollback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = New(db).Transaction(context.Background(), func(plan.Executor) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

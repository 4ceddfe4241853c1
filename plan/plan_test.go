package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryClone(t *testing.T) {
	limit := 5
	q := &Query{
		Table:   "users",
		Columns: []Column{{Name: "id"}},
		Wheres:  []Expression{Eq{Column: "status", Value: "active"}},
		Orders:  []Order{{Column: "name"}},
		Limit:   &limit,
	}

	dup := q.Clone()
	dup.Columns = append(dup.Columns, Column{Name: "name"})
	dup.Wheres = append(dup.Wheres, IsNull{Column: "deleted_at"})
	dup.Orders[0] = Order{Column: "id", Desc: true}

	assert.Len(t, q.Columns, 1)
	assert.Len(t, q.Wheres, 1)
	assert.Equal(t, Order{Column: "name"}, q.Orders[0])
	assert.Equal(t, "users", dup.Table)
	assert.Same(t, q.Limit, dup.Limit)
}

func TestMutationSetValueKeepsFirstAssignmentOrder(t *testing.T) {
	m := &Mutation{Kind: Insert, Table: "users"}
	m.SetValue("name", "jinzhu")
	m.SetValue("age", 18)
	m.SetValue("name", "updated")

	assert.Equal(t, []string{"name", "age"}, m.Columns)
	assert.Equal(t, "updated", m.Values["name"])
}

package arbor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbor-orm/arbor/logger"
	"github.com/arbor-orm/arbor/plan"
	"github.com/arbor-orm/arbor/schema"
)

var fixedNow = time.Date(2023, 8, 15, 12, 0, 0, 0, time.UTC)

// fakeExecutor is an in-memory plan.Executor: seeded tables, equality
// joins and predicate filtering, plus a recording of every descriptor it
// ran so tests can assert query counts and mutation shapes.
type fakeExecutor struct {
	tables map[string][]plan.Row

	queries   []*plan.Query
	mutations []*plan.Mutation

	queryErr error
	execErr  error
	nextID   int64
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{tables: map[string][]plan.Row{}, nextID: 100}
}

func (f *fakeExecutor) seed(table string, rows ...plan.Row) {
	f.tables[table] = append(f.tables[table], rows...)
}

func (f *fakeExecutor) queryCount() int { return len(f.queries) }

func (f *fakeExecutor) lastMutation() *plan.Mutation {
	if len(f.mutations) == 0 {
		return nil
	}
	return f.mutations[len(f.mutations)-1]
}

func (f *fakeExecutor) Query(_ context.Context, q *plan.Query) ([]plan.Row, error) {
	f.queries = append(f.queries, q)
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	// working set: source rows keyed by the table they came from
	var work []map[string]plan.Row
	for _, row := range f.tables[q.Table] {
		work = append(work, map[string]plan.Row{q.Table: row})
	}

	for _, join := range q.Joins {
		var next []map[string]plan.Row
		for _, item := range work {
			for _, row := range f.tables[join.Table] {
				cand := map[string]plan.Row{join.Table: row}
				for table, r := range item {
					cand[table] = r
				}
				if joinMatches(cand, join.On) {
					next = append(next, cand)
				}
			}
		}
		work = next
	}

	var out []plan.Row
	for _, item := range work {
		if !exprsMatch(item, q.Table, q.Wheres) {
			continue
		}
		out = append(out, projectRow(item, q))
	}

	if q.Offset != nil {
		if *q.Offset >= len(out) {
			out = nil
		} else {
			out = out[*q.Offset:]
		}
	}
	if q.Limit != nil && *q.Limit < len(out) {
		out = out[:*q.Limit]
	}
	return out, nil
}

func (f *fakeExecutor) Exec(_ context.Context, m *plan.Mutation) (plan.Result, error) {
	f.mutations = append(f.mutations, m)
	if f.execErr != nil {
		return plan.Result{}, f.execErr
	}
	f.nextID++
	return plan.Result{LastInsertID: f.nextID, RowsAffected: 1}, nil
}

func joinMatches(item map[string]plan.Row, on []plan.JoinOn) bool {
	for _, o := range on {
		left := item[o.LeftTable][o.LeftColumn]
		right := item[o.RightTable][o.RightColumn]
		if !equalValues(left, right) {
			return false
		}
	}
	return true
}

func lookupColumn(item map[string]plan.Row, base, column string) interface{} {
	if i := strings.IndexByte(column, '.'); i >= 0 {
		return item[column[:i]][column[i+1:]]
	}
	return item[base][column]
}

func exprsMatch(item map[string]plan.Row, base string, exprs []plan.Expression) bool {
	for _, expr := range exprs {
		if !exprMatch(item, base, expr) {
			return false
		}
	}
	return true
}

func exprMatch(item map[string]plan.Row, base string, expr plan.Expression) bool {
	switch e := expr.(type) {
	case plan.Eq:
		return equalValues(lookupColumn(item, base, e.Column), e.Value)
	case plan.Neq:
		return !equalValues(lookupColumn(item, base, e.Column), e.Value)
	case plan.Gt:
		return compareValues(lookupColumn(item, base, e.Column), e.Value) > 0
	case plan.Gte:
		return compareValues(lookupColumn(item, base, e.Column), e.Value) >= 0
	case plan.Lt:
		return compareValues(lookupColumn(item, base, e.Column), e.Value) < 0
	case plan.Lte:
		return compareValues(lookupColumn(item, base, e.Column), e.Value) <= 0
	case plan.In:
		value := lookupColumn(item, base, e.Column)
		for _, candidate := range e.Values {
			if equalValues(value, candidate) {
				return true
			}
		}
		return false
	case plan.IsNull:
		return lookupColumn(item, base, e.Column) == nil
	case plan.NotNull:
		return lookupColumn(item, base, e.Column) != nil
	case plan.And:
		return exprsMatch(item, base, e.Exprs)
	case plan.Or:
		for _, sub := range e.Exprs {
			if exprMatch(item, base, sub) {
				return true
			}
		}
		return false
	}
	return false
}

func compareValues(a, b interface{}) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func projectRow(item map[string]plan.Row, q *plan.Query) plan.Row {
	out := plan.Row{}
	if len(q.Columns) == 0 {
		for column, value := range item[q.Table] {
			out[column] = value
		}
		return out
	}
	for _, col := range q.Columns {
		table := col.Table
		if table == "" {
			table = q.Table
		}
		if col.Name == "*" {
			for column, value := range item[table] {
				out[column] = value
			}
			continue
		}
		key := col.Name
		if col.Alias != "" {
			key = col.Alias
		}
		out[key] = item[table][col.Name]
	}
	return out
}

// fakeTransactor adds scoped-transaction support on top of fakeExecutor.
type fakeTransactor struct {
	*fakeExecutor
	began int
}

func (f *fakeTransactor) Transaction(_ context.Context, fn func(plan.Executor) error) error {
	f.began++
	return fn(f.fakeExecutor)
}

func testSchemas() []*schema.Schema {
	user := schema.New("User",
		schema.Fillable("name", "email", "age", "settings", "birthday"),
		schema.Casts(map[string]schema.CastType{"age": schema.Int, "settings": schema.Dict}),
		schema.Dates("birthday"),
		schema.Hidden("password"),
		schema.Timestamps(),
		schema.SoftDeletes(),
	)
	user.HasMany("posts", "Post")
	user.HasOne("profile", "Profile")
	user.BelongsToMany("roles", "Role", schema.PivotColumns("expires"), schema.PivotTimestamps())
	user.HasManyThrough("comments", "Comment", "Post")

	post := schema.New("Post", schema.Guarded("id"), schema.Timestamps(), schema.Touches("author"))
	post.BelongsTo("author", "User")
	post.HasMany("comments", "Comment")
	post.MorphMany("images", "Image", "imageable")
	post.MorphToMany("tags", "Tag", "taggable")

	comment := schema.New("Comment")
	comment.BelongsTo("post", "Post")

	profile := schema.New("Profile")
	profile.BelongsTo("user", "User")

	role := schema.New("Role")

	image := schema.New("Image")
	image.MorphTo("imageable")

	tag := schema.New("Tag")
	tag.MorphedByMany("posts", "Post", "taggable")

	staff := schema.New("Staff", schema.MorphClass("staff"))
	staff.MorphOne("avatar", "Image", "imageable")

	return []*schema.Schema{user, post, comment, profile, role, image, tag, staff}
}

func newTestDB(t *testing.T) (*DB, *fakeExecutor) {
	t.Helper()
	exec := newFakeExecutor()
	db, err := Open(exec, &Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	require.NoError(t, db.Register(testSchemas()...))
	return db, exec
}

// seedBlog loads a small consistent dataset most relation tests share.
func seedBlog(f *fakeExecutor) {
	f.seed("users",
		plan.Row{"id": int64(1), "name": "jinzhu", "age": int64(18)},
		plan.Row{"id": int64(2), "name": "friend", "age": int64(22)},
		plan.Row{"id": int64(3), "name": "lonely", "age": int64(30)},
	)
	f.seed("posts",
		plan.Row{"id": int64(10), "user_id": int64(1), "title": "first"},
		plan.Row{"id": int64(11), "user_id": int64(1), "title": "second"},
		plan.Row{"id": int64(12), "user_id": int64(2), "title": "other"},
	)
	f.seed("comments",
		plan.Row{"id": int64(100), "post_id": int64(10), "body": "nice"},
		plan.Row{"id": int64(101), "post_id": int64(10), "body": "agreed"},
		plan.Row{"id": int64(102), "post_id": int64(12), "body": "hmm"},
	)
	f.seed("profiles",
		plan.Row{"id": int64(20), "user_id": int64(1), "bio": "gopher"},
	)
	f.seed("roles",
		plan.Row{"id": int64(1), "name": "admin"},
		plan.Row{"id": int64(2), "name": "editor"},
		plan.Row{"id": int64(3), "name": "viewer"},
	)
	f.seed("role_user",
		plan.Row{"user_id": int64(1), "role_id": int64(1), "expires": "never"},
		plan.Row{"user_id": int64(1), "role_id": int64(2), "expires": "2024-01-01"},
		plan.Row{"user_id": int64(2), "role_id": int64(2), "expires": nil},
	)
}

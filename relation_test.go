package arbor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbor-orm/arbor/plan"
)

func TestHasManyPartitionsByOwner(t *testing.T) {
	db, exec := newTestDB(t)
	seedBlog(exec)

	users, err := db.Model("User").Find(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, users.Len())

	require.NoError(t, users.Load(context.Background(), "posts"))

	posts, err := users.At(0).Related(context.Background(), "posts")
	require.NoError(t, err)
	assert.Equal(t, 2, posts.Len())

	posts, err = users.At(1).Related(context.Background(), "posts")
	require.NoError(t, err)
	assert.Equal(t, 1, posts.Len())

	// an owner with no rows still gets an empty collection, not nil
	posts, err = users.At(2).Related(context.Background(), "posts")
	require.NoError(t, err)
	assert.Equal(t, 0, posts.Len())
}

func TestHasOne(t *testing.T) {
	db, exec := newTestDB(t)
	seedBlog(exec)

	user, err := db.Model("User").FindKey(context.Background(), int64(1))
	require.NoError(t, err)

	profile, err := user.RelatedOne(context.Background(), "profile")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "gopher", profile.Get("bio"))

	other, err := db.Model("User").FindKey(context.Background(), int64(2))
	require.NoError(t, err)
	profile, err = other.RelatedOne(context.Background(), "profile")
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestBelongsTo(t *testing.T) {
	db, exec := newTestDB(t)
	seedBlog(exec)

	post, err := db.Model("Post").FindKey(context.Background(), int64(10))
	require.NoError(t, err)

	author, err := post.RelatedOne(context.Background(), "author")
	require.NoError(t, err)
	require.NotNil(t, author)
	assert.Equal(t, "jinzhu", author.Get("name"))
}

func TestLazyRelationIsCached(t *testing.T) {
	db, exec := newTestDB(t)
	seedBlog(exec)

	post, err := db.Model("Post").FindKey(context.Background(), int64(10))
	require.NoError(t, err)
	before := exec.queryCount()

	_, err = post.RelatedOne(context.Background(), "author")
	require.NoError(t, err)
	assert.Equal(t, before+1, exec.queryCount())
	assert.True(t, post.RelationLoaded("author"))

	// second access hits the cache
	_, err = post.RelatedOne(context.Background(), "author")
	require.NoError(t, err)
	assert.Equal(t, before+1, exec.queryCount())
}

func TestBelongsToMany(t *testing.T) {
	db, exec := newTestDB(t)
	seedBlog(exec)

	users, err := db.Model("User").With("roles").Find(context.Background())
	require.NoError(t, err)

	roles, err := users.At(0).Related(context.Background(), "roles")
	require.NoError(t, err)
	require.Equal(t, 2, roles.Len())

	admin := roles.At(0)
	require.NotNil(t, admin.Pivot())
	assert.Equal(t, "role_user", admin.Pivot().Table())
	assert.Equal(t, "never", admin.Pivot().Get("expires"))
	assert.Equal(t, int64(1), admin.Pivot().Get("user_id"))

	roles, err = users.At(2).Related(context.Background(), "roles")
	require.NoError(t, err)
	assert.Equal(t, 0, roles.Len())
}

func TestHasManyThrough(t *testing.T) {
	db, exec := newTestDB(t)
	seedBlog(exec)

	users, err := db.Model("User").With("comments").Find(context.Background())
	require.NoError(t, err)

	comments, err := users.At(0).Related(context.Background(), "comments")
	require.NoError(t, err)
	assert.Equal(t, 2, comments.Len())

	comments, err = users.At(1).Related(context.Background(), "comments")
	require.NoError(t, err)
	assert.Equal(t, 1, comments.Len())
	assert.Equal(t, "hmm", comments.At(0).Get("body"))

	// the aliased owner key never leaks into attributes
	_, present := comments.At(0).attributes[throughKeyAlias]
	assert.False(t, present)
}

func TestMorphMany(t *testing.T) {
	db, exec := newTestDB(t)
	seedBlog(exec)
	exec.seed("images",
		plan.Row{"id": int64(1), "imageable_type": "posts", "imageable_id": int64(10), "url": "a.png"},
		plan.Row{"id": int64(2), "imageable_type": "posts", "imageable_id": int64(10), "url": "b.png"},
		// same id, different discriminator: must not match
		plan.Row{"id": int64(3), "imageable_type": "staff", "imageable_id": int64(10), "url": "c.png"},
	)

	post, err := db.Model("Post").FindKey(context.Background(), int64(10))
	require.NoError(t, err)

	images, err := post.Related(context.Background(), "images")
	require.NoError(t, err)
	assert.Equal(t, 2, images.Len())
}

func TestMorphOne(t *testing.T) {
	db, exec := newTestDB(t)
	exec.seed("staffs", plan.Row{"id": int64(7), "name": "pat"})
	exec.seed("images",
		plan.Row{"id": int64(1), "imageable_type": "staff", "imageable_id": int64(7), "url": "pat.png"},
	)

	staff, err := db.Model("Staff").FindKey(context.Background(), int64(7))
	require.NoError(t, err)

	avatar, err := staff.RelatedOne(context.Background(), "avatar")
	require.NoError(t, err)
	require.NotNil(t, avatar)
	assert.Equal(t, "pat.png", avatar.Get("url"))
}

func TestMorphToResolvesPerDiscriminator(t *testing.T) {
	db, exec := newTestDB(t)
	seedBlog(exec)
	exec.seed("staffs", plan.Row{"id": int64(7), "name": "pat"})
	exec.seed("images",
		plan.Row{"id": int64(1), "imageable_type": "posts", "imageable_id": int64(10)},
		plan.Row{"id": int64(2), "imageable_type": "staff", "imageable_id": int64(7)},
		plan.Row{"id": int64(3), "imageable_type": "posts", "imageable_id": int64(12)},
	)

	images, err := db.Model("Image").Find(context.Background())
	require.NoError(t, err)
	before := exec.queryCount()

	require.NoError(t, images.Load(context.Background(), "imageable"))

	// one query per distinct discriminator, not per image
	assert.Equal(t, before+2, exec.queryCount())

	owner, err := images.At(0).RelatedOne(context.Background(), "imageable")
	require.NoError(t, err)
	assert.Equal(t, "posts", owner.Schema().Table)
	assert.Equal(t, "first", owner.Get("title"))

	owner, err = images.At(1).RelatedOne(context.Background(), "imageable")
	require.NoError(t, err)
	assert.Equal(t, "staff", owner.Schema().MorphClass)
	assert.Equal(t, int64(7), owner.Key())
}

func TestMorphToUnknownDiscriminator(t *testing.T) {
	db, exec := newTestDB(t)
	exec.seed("images",
		plan.Row{"id": int64(1), "imageable_type": "aliens", "imageable_id": int64(1)},
	)

	images, err := db.Model("Image").Find(context.Background())
	require.NoError(t, err)

	err = images.Load(context.Background(), "imageable")
	var relErr *RelationDefinitionError
	require.ErrorAs(t, err, &relErr)
	assert.Contains(t, relErr.Reason, `"aliens"`)
}

func TestMorphToNilDiscriminator(t *testing.T) {
	db, exec := newTestDB(t)
	exec.seed("images", plan.Row{"id": int64(1), "imageable_type": nil, "imageable_id": nil})

	images, err := db.Model("Image").Find(context.Background())
	require.NoError(t, err)
	require.NoError(t, images.Load(context.Background(), "imageable"))

	owner, err := images.At(0).Relation(context.Background(), "imageable")
	require.NoError(t, err)
	assert.Nil(t, owner)
}

func TestMorphToMany(t *testing.T) {
	db, exec := newTestDB(t)
	seedBlog(exec)
	exec.seed("tags",
		plan.Row{"id": int64(1), "name": "go"},
		plan.Row{"id": int64(2), "name": "orm"},
	)
	exec.seed("taggables",
		plan.Row{"tag_id": int64(1), "taggable_type": "posts", "taggable_id": int64(10)},
		plan.Row{"tag_id": int64(2), "taggable_type": "posts", "taggable_id": int64(10)},
		plan.Row{"tag_id": int64(1), "taggable_type": "videos", "taggable_id": int64(10)},
	)

	post, err := db.Model("Post").FindKey(context.Background(), int64(10))
	require.NoError(t, err)

	tags, err := post.Related(context.Background(), "tags")
	require.NoError(t, err)
	assert.Equal(t, 2, tags.Len())
}

func TestMorphedByMany(t *testing.T) {
	db, exec := newTestDB(t)
	seedBlog(exec)
	exec.seed("tags", plan.Row{"id": int64(1), "name": "go"})
	exec.seed("taggables",
		plan.Row{"tag_id": int64(1), "taggable_type": "posts", "taggable_id": int64(10)},
		plan.Row{"tag_id": int64(1), "taggable_type": "posts", "taggable_id": int64(12)},
		plan.Row{"tag_id": int64(1), "taggable_type": "videos", "taggable_id": int64(11)},
	)

	tag, err := db.Model("Tag").FindKey(context.Background(), int64(1))
	require.NoError(t, err)

	posts, err := tag.Related(context.Background(), "posts")
	require.NoError(t, err)
	assert.Equal(t, 2, posts.Len())
}

func TestRelationNotDefined(t *testing.T) {
	db, exec := newTestDB(t)
	seedBlog(exec)

	post, err := db.Model("Post").FindKey(context.Background(), int64(10))
	require.NoError(t, err)

	_, err = post.Relation(context.Background(), "subscribers")
	var relErr *RelationDefinitionError
	require.ErrorAs(t, err, &relErr)
	assert.Equal(t, "subscribers", relErr.Relation)
}

func TestRelatedOneOnCollectionRelationFails(t *testing.T) {
	db, exec := newTestDB(t)
	seedBlog(exec)

	user, err := db.Model("User").FindKey(context.Background(), int64(1))
	require.NoError(t, err)

	_, err = user.RelatedOne(context.Background(), "posts")
	assert.ErrorIs(t, err, ErrUnsupportedRelation)
}

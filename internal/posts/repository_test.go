package posts

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tagTable is an in-memory stand-in for the tags and post_tags tables that
// understands the statements the repository issues.
type tagTable struct {
	pgx.Tx
	tags   map[string]Tag
	links  map[int64][]int64
	nextID int64
	log    []string
}

func newTagTable() *tagTable {
	return &tagTable{tags: map[string]Tag{}, links: map[int64][]int64{}}
}

func (tt *tagTable) hasTagID(id int64) bool {
	for _, tag := range tt.tags {
		if tag.ID == id {
			return true
		}
	}
	return false
}

func (tt *tagTable) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	switch {
	case strings.Contains(sql, "pg_advisory_xact_lock_shared"):
		tt.log = append(tt.log, "lock shared")
		return pgconn.NewCommandTag("SELECT 1"), nil
	case strings.Contains(sql, "pg_advisory_xact_lock("):
		tt.log = append(tt.log, "lock exclusive")
		return pgconn.NewCommandTag("SELECT 1"), nil
	case strings.HasPrefix(sql, "DELETE FROM post_tags"):
		tt.log = append(tt.log, "clear links")
		delete(tt.links, args[0].(int64))
		return pgconn.NewCommandTag("DELETE 0"), nil
	case strings.HasPrefix(sql, "DELETE FROM tags"):
		tt.log = append(tt.log, "sweep")
		used := map[int64]bool{}
		for _, ids := range tt.links {
			for _, id := range ids {
				used[id] = true
			}
		}
		removed := 0
		for key, tag := range tt.tags {
			if !used[tag.ID] {
				delete(tt.tags, key)
				removed++
			}
		}
		return pgconn.NewCommandTag("DELETE " + strconv.Itoa(removed)), nil
	case strings.HasPrefix(sql, "INSERT INTO post_tags"):
		postID, tagID := args[0].(int64), args[1].(int64)
		if !tt.hasTagID(tagID) {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23503", Message: "post_tags_tag_id_fkey"}
		}
		tt.links[postID] = append(tt.links[postID], tagID)
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return pgconn.CommandTag{}, errors.New("unexpected statement: " + sql)
}

func (tt *tagTable) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if !strings.HasPrefix(sql, "INSERT INTO tags") {
		return tagRow{err: errors.New("unexpected query: " + sql)}
	}
	tt.log = append(tt.log, "upsert "+args[0].(string))
	key := args[1].(string)
	tag, ok := tt.tags[key]
	if !ok {
		tt.nextID++
		tag = Tag{ID: tt.nextID, Name: args[0].(string)}
		tt.tags[key] = tag
	}
	return tagRow{tag: tag}
}

func (tt *tagTable) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	tt.log = append(tt.log, "link")
	results := &batchResults{}
	for _, q := range b.QueuedQueries {
		if _, err := tt.Exec(ctx, q.SQL, q.Arguments...); err != nil && results.err == nil {
			results.err = err
		}
	}
	return results
}

type tagRow struct {
	tag Tag
	err error
}

func (r tagRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.tag.ID
	*dest[1].(*string) = r.tag.Name
	return nil
}

type batchResults struct {
	pgx.BatchResults
	err error
}

func (b *batchResults) Close() error { return b.err }

func TestSavePostRecreatesTagsSweptAfterSpawn(t *testing.T) {
	ctx := context.Background()
	table := newTagTable()

	fresh, err := spawnTag(ctx, table, "fresh")
	require.NoError(t, err)
	kept, err := spawnTag(ctx, table, "Kept")
	require.NoError(t, err)
	post := &Post{ID: 1}
	post.SetTags([]Tag{fresh, kept})

	// The sweep lands between the spawn and the save.
	removed, err := removeUnusedTags(ctx, table)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	require.NoError(t, savePost(ctx, table, post))
	assert.Equal(t, []string{"fresh", "Kept"}, post.TagNames())
	require.Len(t, table.links[1], 2)
	for _, id := range table.links[1] {
		assert.True(t, table.hasTagID(id))
	}
	assert.NotEqual(t, fresh.ID, post.Tags[0].ID)
}

func TestSavePostLocksBeforeTouchingTags(t *testing.T) {
	ctx := context.Background()
	table := newTagTable()
	post := &Post{ID: 7}
	post.SetTags([]Tag{{Name: "a"}, {Name: "b"}})

	require.NoError(t, savePost(ctx, table, post))
	assert.Equal(t, []string{"lock shared", "upsert a", "upsert b", "clear links", "link"}, table.log)
	assert.Equal(t, []int64{1, 2}, table.links[7])
}

func TestSavePostWithoutTagsClearsLinks(t *testing.T) {
	ctx := context.Background()
	table := newTagTable()
	table.links[3] = []int64{9}

	require.NoError(t, savePost(ctx, table, &Post{ID: 3}))
	assert.Empty(t, table.links[3])
	assert.Equal(t, []string{"lock shared", "clear links"}, table.log)
}

func TestRemoveUnusedTagsTakesExclusiveLock(t *testing.T) {
	ctx := context.Background()
	table := newTagTable()
	post := &Post{ID: 1}
	post.SetTags([]Tag{{Name: "used"}})
	require.NoError(t, savePost(ctx, table, post))
	_, err := spawnTag(ctx, table, "orphan")
	require.NoError(t, err)
	table.log = nil

	removed, err := removeUnusedTags(ctx, table)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
	assert.Equal(t, []string{"lock exclusive", "sweep"}, table.log)
	assert.Contains(t, table.tags, TagKey("used"))
	assert.NotContains(t, table.tags, TagKey("orphan"))
}

package posts

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/tagboard/tagboard/internal/platform/db"
	"github.com/tagboard/tagboard/internal/shared"
)

// Repository defines persistence operations for posts and tags.
type Repository interface {
	GetPost(ctx context.Context, id int64) (*Post, error)
	// SavePost stores the tag links of post, recreating any of its tags that
	// were removed since they were spawned.
	SavePost(ctx context.Context, post *Post) error
	// SpawnTags returns existing tags for names, creating missing ones.
	SpawnTags(ctx context.Context, names []string) ([]Tag, error)
	// RemoveUnusedTags deletes tags no post references and reports how many.
	RemoveUnusedTags(ctx context.Context) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool   *pgxpool.Pool
	spawns singleflight.Group
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetPost loads a post with its uploader and tags.
func (r *PGRepository) GetPost(ctx context.Context, id int64) (*Post, error) {
	post := Post{ID: id}
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(u.name, '') FROM posts p
		LEFT JOIN users u ON u.id = p.uploader_id WHERE p.id = $1`, id).Scan(&post.UploaderName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &shared.NotFoundError{Entity: "post", Key: strconv.FormatInt(id, 10)}
		}
		return nil, fmt.Errorf("posts: get post: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT t.id, t.name FROM post_tags pt
		JOIN tags t ON t.id = pt.tag_id WHERE pt.post_id = $1 ORDER BY pt.position`, id)
	if err != nil {
		return nil, fmt.Errorf("posts: list tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("posts: scan tag: %w", err)
		}
		post.Tags = append(post.Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("posts: list tags: %w", err)
	}
	return &post, nil
}

// tagSweepLock is the advisory lock key shared by post saves and taken
// exclusively by the unused-tag sweep.
const tagSweepLock int64 = 0x7461677377656570

// rowQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SavePost replaces the stored tag links of the post in one transaction. The
// tags are resolved by name again inside that transaction, so tags swept since
// SpawnTags are recreated instead of breaking the links.
func (r *PGRepository) SavePost(ctx context.Context, post *Post) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return savePost(ctx, tx, post)
	})
}

func savePost(ctx context.Context, tx pgx.Tx, post *Post) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock_shared($1)`, tagSweepLock); err != nil {
		return fmt.Errorf("posts: lock tags: %w", err)
	}
	tags := make([]Tag, 0, len(post.Tags))
	for _, tag := range post.Tags {
		stored, err := spawnTag(ctx, tx, tag.Name)
		if err != nil {
			return err
		}
		tags = append(tags, stored)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM post_tags WHERE post_id = $1`, post.ID); err != nil {
		return fmt.Errorf("posts: clear tags: %w", err)
	}
	if len(tags) > 0 {
		batch := &pgx.Batch{}
		for i, tag := range tags {
			batch.Queue(`INSERT INTO post_tags (post_id, tag_id, position) VALUES ($1, $2, $3)`, post.ID, tag.ID, i)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("posts: link tags: %w", err)
		}
	}
	post.Tags = tags
	return nil
}

// SpawnTags resolves each name to a stored tag. Concurrent spawns of the same
// name inside this process share one round trip.
func (r *PGRepository) SpawnTags(ctx context.Context, names []string) ([]Tag, error) {
	tags := make([]Tag, 0, len(names))
	for _, name := range names {
		v, err, _ := r.spawns.Do(TagKey(name), func() (interface{}, error) {
			return spawnTag(ctx, r.pool, name)
		})
		if err != nil {
			return nil, err
		}
		tags = append(tags, v.(Tag))
	}
	return tags, nil
}

func spawnTag(ctx context.Context, q rowQuerier, name string) (Tag, error) {
	var tag Tag
	err := q.QueryRow(ctx, `INSERT INTO tags (name, name_key) VALUES ($1, $2)
		ON CONFLICT (name_key) DO UPDATE SET name_key = EXCLUDED.name_key
		RETURNING id, name`, name, TagKey(name)).Scan(&tag.ID, &tag.Name)
	if err != nil {
		return Tag{}, fmt.Errorf("posts: spawn tag %q: %w", name, err)
	}
	return tag, nil
}

// RemoveUnusedTags deletes orphaned tags. It waits for post saves in flight.
func (r *PGRepository) RemoveUnusedTags(ctx context.Context) (int64, error) {
	var removed int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		removed, err = removeUnusedTags(ctx, tx)
		return err
	})
	return removed, err
}

func removeUnusedTags(ctx context.Context, tx pgx.Tx) (int64, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, tagSweepLock); err != nil {
		return 0, fmt.Errorf("posts: lock tags: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM tags t WHERE NOT EXISTS
		(SELECT 1 FROM post_tags pt WHERE pt.tag_id = t.id)`)
	if err != nil {
		return 0, fmt.Errorf("posts: remove unused tags: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)

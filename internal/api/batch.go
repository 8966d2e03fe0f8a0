package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tagboard/tagboard/internal/access"
	"github.com/tagboard/tagboard/internal/posts"
)

// Batch runs many tag edits in a batch mode and defers persistence to Commit,
// which saves every touched post once and sweeps unused tags once.
type Batch struct {
	dispatcher *Dispatcher
	identity   access.Identity
	mode       Mode
	pending    map[int64]*posts.Post
	order      []int64
}

// NewBatch starts a batch. mode must be one of the batch modes.
func (d *Dispatcher) NewBatch(identity access.Identity, mode Mode) (*Batch, error) {
	if !mode.IsBatch() {
		return nil, fmt.Errorf("api: %s is not a batch mode", mode)
	}
	return &Batch{
		dispatcher: d,
		identity:   identity,
		mode:       mode,
		pending:    make(map[int64]*posts.Post),
	}, nil
}

// EditPostTags sets the tags of a post. Posts edited earlier in the same
// batch are edited in memory.
func (b *Batch) EditPostTags(ctx context.Context, postID int64, tagNames []string) (*posts.Post, error) {
	args := Args{ArgPostID: postID, ArgTagNames: tagNames}
	result, err := b.dispatcher.run(ctx, b.identity, EditPostTags{}, args, b.mode, Target{Post: b.pending[postID]})
	if err != nil {
		return nil, err
	}
	post := result.(*posts.Post)
	if _, seen := b.pending[post.ID]; !seen {
		b.order = append(b.order, post.ID)
	}
	b.pending[post.ID] = post
	return post, nil
}

// Pending reports how many posts wait for Commit.
func (b *Batch) Pending() int {
	return len(b.order)
}

// Commit saves the touched posts and removes tags left unused. The batch is
// empty afterwards, even on error.
func (b *Batch) Commit(ctx context.Context) error {
	defer func() {
		b.pending = make(map[int64]*posts.Post)
		b.order = nil
	}()
	repo := b.dispatcher.env.Posts
	for _, id := range b.order {
		if err := repo.SavePost(ctx, b.pending[id]); err != nil {
			return fmt.Errorf("api: commit post %d: %w", id, err)
		}
	}
	if len(b.order) == 0 {
		return nil
	}
	removed, err := repo.RemoveUnusedTags(ctx)
	if err != nil {
		return fmt.Errorf("api: remove unused tags: %w", err)
	}
	b.dispatcher.logger.Debug("batch committed", slog.Int("posts", len(b.order)), slog.Int64("removed_tags", removed))
	return nil
}

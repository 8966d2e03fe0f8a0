package api

import (
	"context"

	"github.com/tagboard/tagboard/internal/access"
	"github.com/tagboard/tagboard/internal/audit"
	"github.com/tagboard/tagboard/internal/posts"
)

// Audit templates emitted by EditPostTags.
const (
	TemplatePostUntagged = "{user} untagged {post} with {tag}"
	TemplatePostTagged   = "{user} tagged {post} with {tag}"
)

// EditPostTags replaces the tag set of a post.
type EditPostTags struct{ sealed }

func (EditPostTags) Name() string { return "EditPostTags" }

func (EditPostTags) IsSatisfied(args Args) bool {
	return args.Has(ArgPostID) && args.Has(ArgTagNames)
}

func (EditPostTags) Prepare(ctx context.Context, call *Call) error {
	if call.Post != nil {
		return nil
	}
	id, err := call.Args.Int64(ArgPostID)
	if err != nil {
		return err
	}
	post, err := call.Env.Posts.GetPost(ctx, id)
	if err != nil {
		return err
	}
	call.Post = post
	return nil
}

// RequiresPrivilege asks for AddPostTags when tags are being added in bulk
// and EditPostTags otherwise, scoped by the uploader in both cases.
func (EditPostTags) RequiresPrivilege(call *Call) access.Requirement {
	privilege := access.EditPostTags
	if call.Mode == ModeBatchAdd {
		privilege = access.AddPostTags
	}
	return access.RequireOwned(privilege, call.Post.UploaderName)
}

// Execute returns the edited *posts.Post.
func (j EditPostTags) Execute(ctx context.Context, call *Call) (any, error) {
	post := call.Post
	raw, err := call.Args.StringSlice(ArgTagNames)
	if err != nil {
		return nil, err
	}
	names, err := posts.NormalizeTagNames(raw)
	if err != nil {
		return nil, err
	}
	tags, err := call.Env.Posts.SpawnTags(ctx, names)
	if err != nil {
		return nil, wrap(j, "spawn tags", err)
	}

	before := post.TagNames()
	post.SetTags(tags)
	after := post.TagNames()

	if call.Mode == ModeNormal {
		if err := call.Env.Posts.SavePost(ctx, post); err != nil {
			return nil, wrap(j, "save post", err)
		}
		if _, err := call.Env.Posts.RemoveUnusedTags(ctx); err != nil {
			return nil, wrap(j, "remove unused tags", err)
		}
	}

	removed, added := posts.DiffTagNames(before, after)
	for _, name := range removed {
		call.audit(ctx, TemplatePostUntagged, map[string]string{
			audit.FieldPost: audit.ReprPost(post.ID),
			audit.FieldTag:  audit.ReprTag(name),
		})
	}
	for _, name := range added {
		call.audit(ctx, TemplatePostTagged, map[string]string{
			audit.FieldPost: audit.ReprPost(post.ID),
			audit.FieldTag:  audit.ReprTag(name),
		})
	}
	return post, nil
}

var _ Job = EditPostTags{}

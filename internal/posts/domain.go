package posts

// Tag is a label attached to posts.
type Tag struct {
	ID   int64
	Name string
}

// Post is the taggable content entity. Only the fields the job core needs are
// modelled here.
type Post struct {
	ID           int64
	UploaderName string
	Tags         []Tag
}

// TagNames returns the names of the post's tags in order.
func (p *Post) TagNames() []string {
	names := make([]string, 0, len(p.Tags))
	for _, tag := range p.Tags {
		names = append(names, tag.Name)
	}
	return names
}

// SetTags replaces the tag set, dropping case-insensitive duplicates while
// keeping the first occurrence.
func (p *Post) SetTags(tags []Tag) {
	seen := make(map[string]struct{}, len(tags))
	deduped := make([]Tag, 0, len(tags))
	for _, tag := range tags {
		key := TagKey(tag.Name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, tag)
	}
	p.Tags = deduped
}

// Clone returns a deep copy of the post.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Tags = append([]Tag(nil), p.Tags...)
	return &clone
}

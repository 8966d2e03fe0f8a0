package posts

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffTagNames(t *testing.T) {
	removed, added := DiffTagNames([]string{"a", "b"}, []string{"b", "c"})
	if diff := cmp.Diff([]string{"a"}, removed); diff != "" {
		t.Fatalf("removed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c"}, added); diff != "" {
		t.Fatalf("added mismatch (-want +got):\n%s", diff)
	}
}

func TestDiffTagNamesIgnoresCase(t *testing.T) {
	removed, added := DiffTagNames([]string{"Sky"}, []string{"sky", "sea"})
	assert.Empty(t, removed)
	assert.Equal(t, []string{"sea"}, added)
}

func TestDiffTagNamesUnchanged(t *testing.T) {
	removed, added := DiffTagNames([]string{"x", "y"}, []string{"y", "x"})
	assert.Empty(t, removed)
	assert.Empty(t, added)
}

func TestNormalizeTagNames(t *testing.T) {
	names, err := NormalizeTagNames([]string{" landscape ", "Landscape", "night"})
	require.NoError(t, err)
	assert.Equal(t, []string{"landscape", "night"}, names)
}

func TestNormalizeTagNamesRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"":                      "Tag name cannot be empty.",
		"two words":             `Invalid tag "two words".`,
		"hash#tag":              `Invalid tag "hash#tag".`,
		strings.Repeat("t", 65): "Tag name must have at most 64 characters.",
	}
	for input, msg := range cases {
		_, err := NormalizeTagNames([]string{"ok", input})
		assert.EqualError(t, err, msg, input)
	}
}

func TestTagKeyFoldsUnicode(t *testing.T) {
	assert.Equal(t, TagKey("Ünïcode"), TagKey("ünïcode"))
}

func TestPostSetTagsDeduplicates(t *testing.T) {
	post := &Post{ID: 1}
	post.SetTags([]Tag{{ID: 1, Name: "a"}, {ID: 2, Name: "A"}, {ID: 3, Name: "b"}})
	assert.Equal(t, []string{"a", "b"}, post.TagNames())

	clone := post.Clone()
	clone.Tags[0].Name = "z"
	assert.Equal(t, "a", post.Tags[0].Name)
}

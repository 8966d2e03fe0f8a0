package posts

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/tagboard/tagboard/internal/shared"
)

// MaxTagNameLength bounds tag names in characters.
const MaxTagNameLength = 64

var tagNamePattern = regexp.MustCompile(`^[^\s%+#/]+$`)

// NormalizeTagName trims and NFC-normalizes a tag name, then validates it.
func NormalizeTagName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return "", shared.NewValidationError("Tag name cannot be empty.")
	}
	if utf8.RuneCountInString(name) > MaxTagNameLength {
		return "", shared.NewValidationError("Tag name must have at most %d characters.", MaxTagNameLength)
	}
	if !tagNamePattern.MatchString(name) {
		return "", shared.NewValidationError("Invalid tag %q.", name)
	}
	return name, nil
}

// NormalizeTagNames normalizes every name, dropping case-insensitive
// duplicates. Nothing is returned unless every name is valid.
func NormalizeTagNames(names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, raw := range names {
		name, err := NormalizeTagName(raw)
		if err != nil {
			return nil, err
		}
		key := TagKey(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// TagKey is the case-folded identity of a tag name. Casers keep state, so a
// fresh one is built per call.
func TagKey(name string) string {
	return cases.Fold().String(norm.NFC.String(name))
}

// DiffTagNames computes the symmetric difference of two tag name sets under
// TagKey equality. Both results keep input order.
func DiffTagNames(before, after []string) (removed, added []string) {
	oldKeys := make(map[string]struct{}, len(before))
	for _, name := range before {
		oldKeys[TagKey(name)] = struct{}{}
	}
	newKeys := make(map[string]struct{}, len(after))
	for _, name := range after {
		newKeys[TagKey(name)] = struct{}{}
	}
	for _, name := range before {
		if _, ok := newKeys[TagKey(name)]; !ok {
			removed = append(removed, name)
		}
	}
	for _, name := range after {
		if _, ok := oldKeys[TagKey(name)]; !ok {
			added = append(added, name)
		}
	}
	return removed, added
}

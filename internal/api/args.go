package api

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tagboard/tagboard/internal/shared"
)

// Argument keys understood by the jobs in this package.
const (
	ArgPostID        = "post_id"
	ArgTagNames      = "tag_names"
	ArgUserName      = "user_name"
	ArgNewUserName   = "new_user_name"
	ArgNewPassword   = "new_password"
	ArgNewEmail      = "new_email"
	ArgNewAccessRank = "new_access_rank"
	ArgBanned        = "banned"
	ArgToken         = "token"
)

// Args is the argument bag bound to a job invocation. Values come from
// untrusted callers, so every accessor checks the dynamic type and reports a
// ValidationError instead of panicking.
type Args map[string]any

// Has reports whether key is present, even with a nil value.
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// String returns a string argument. Numbers are formatted; a missing key
// yields "".
func (a Args) String(key string) (string, error) {
	v, ok := a[key]
	if !ok || v == nil {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	case int, int32, int64:
		return fmt.Sprint(t), nil
	default:
		return "", shared.NewValidationError("Expected string")
	}
}

// StringSlice returns a list of strings. Anything that is not a list, or a
// list holding non-strings, is rejected with "Expected array".
func (a Args) StringSlice(key string) ([]string, error) {
	switch t := a[key].(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, shared.NewValidationError("Expected array")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, shared.NewValidationError("Expected array")
	}
}

// Int64 returns an integer argument. Decimal strings are accepted.
func (a Args) Int64(key string) (int64, error) {
	switch t := a[key].(type) {
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		if t == float64(int64(t)) {
			return int64(t), nil
		}
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err == nil {
			return n, nil
		}
	}
	return 0, shared.NewValidationError("Expected integer for %s", key)
}

// Bool returns a boolean argument. "1", "0", "true" and "false" strings are
// accepted.
func (a Args) Bool(key string) (bool, error) {
	switch t := a[key].(type) {
	case bool:
		return t, nil
	case int:
		return t != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err == nil {
			return b, nil
		}
	}
	return false, shared.NewValidationError("Expected boolean for %s", key)
}

func (a Args) clone() Args {
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

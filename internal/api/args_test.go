package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagboard/tagboard/internal/access"
)

func TestArgsStringSlice(t *testing.T) {
	args := Args{"list": []any{"a", "b"}, "typed": []string{"c"}, "mixed": []any{"a", 1}, "scalar": "a b"}

	got, err := args.StringSlice("list")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = args.StringSlice("typed")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, got)

	for _, key := range []string{"mixed", "scalar", "missing"} {
		_, err := args.StringSlice(key)
		assert.EqualError(t, err, "Expected array", key)
	}
}

func TestArgsScalars(t *testing.T) {
	args := Args{"id": "42", "n": 7, "f": 3.0, "frac": 1.5, "yes": "true", "flag": true, "rank": access.Moderator}

	n, err := args.Int64("id")
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)
	n, err = args.Int64("n")
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	n, err = args.Int64("f")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	_, err = args.Int64("frac")
	assert.Error(t, err)

	b, err := args.Bool("yes")
	require.NoError(t, err)
	assert.True(t, b)
	b, err = args.Bool("flag")
	require.NoError(t, err)
	assert.True(t, b)
	_, err = args.Bool("id")
	assert.Error(t, err)

	s, err := args.String("rank")
	require.NoError(t, err)
	assert.Equal(t, "moderator", s)
	s, err = args.String("missing")
	require.NoError(t, err)
	assert.Empty(t, s)
	_, err = args.String("flag")
	assert.EqualError(t, err, "Expected string")
}

func TestModeIsBatch(t *testing.T) {
	assert.False(t, ModeNormal.IsBatch())
	assert.True(t, ModeBatchAdd.IsBatch())
	assert.True(t, ModeBatchEdit.IsBatch())
	assert.Equal(t, "batch-add", ModeBatchAdd.String())
}

package deep

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/conneroisu/kreate/internal/errors"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name      string
		target    Map
		source    Map
		overwrite bool
		expected  Map
	}{
		{
			name:      "scalar overwritten",
			target:    Map{"a": 1},
			source:    Map{"a": 2},
			overwrite: true,
			expected:  Map{"a": 2},
		},
		{
			name:      "scalar kept without overwrite",
			target:    Map{"a": 1},
			source:    Map{"a": 2, "b": 3},
			overwrite: false,
			expected:  Map{"a": 1, "b": 3},
		},
		{
			name:      "mappings recurse",
			target:    Map{"app": Map{"name": "web", "env": "dev"}},
			source:    Map{"app": Map{"env": "prod", "team": "x"}},
			overwrite: true,
			expected:  Map{"app": Map{"name": "web", "env": "prod", "team": "x"}},
		},
		{
			name:      "sequences append",
			target:    Map{"files": []any{"a", "b"}},
			source:    Map{"files": []any{"c"}},
			overwrite: true,
			expected:  Map{"files": []any{"a", "b", "c"}},
		},
		{
			name:      "nil target value replaced by mapping",
			target:    Map{"a": nil},
			source:    Map{"a": Map{"b": 1}},
			overwrite: false,
			expected:  Map{"a": Map{"b": 1}},
		},
		{
			name:      "nil source value keeps existing mapping",
			target:    Map{"a": Map{"b": 1}},
			source:    Map{"a": nil},
			overwrite: true,
			expected:  Map{"a": Map{"b": 1}},
		},
		{
			name:      "nil source value keeps existing scalar",
			target:    Map{"a": 1, "s": []any{"x"}},
			source:    Map{"a": nil, "s": nil, "c": nil},
			overwrite: true,
			expected:  Map{"a": 1, "s": []any{"x"}, "c": nil},
		},
		{
			name:      "sentinel disables overwrite",
			target:    Map{"a": 1},
			source:    Map{NoOverwriteKey: true, "a": 2, "b": 2},
			overwrite: true,
			expected:  Map{"a": 1, "b": 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, Merge(tt.target, tt.source, tt.overwrite))
			assert.Equal(t, tt.expected, tt.target)
		})
	}
}

func TestMergeConflicts(t *testing.T) {
	tests := []struct {
		name   string
		target Map
		source Map
		path   string
	}{
		{"mapping over scalar", Map{"a": 1}, Map{"a": Map{"b": 1}}, "a"},
		{"scalar over mapping", Map{"a": Map{"b": 1}}, Map{"a": 1}, "a"},
		{"sequence over scalar", Map{"a": "x"}, Map{"a": []any{1}}, "a"},
		{"scalar over sequence", Map{"a": []any{1}}, Map{"a": "x"}, "a"},
		{"nested path reported", Map{"a": Map{"b": Map{}}}, Map{"a": Map{"b": "x"}}, "a.b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Merge(tt.target, tt.source, true)
			require.Error(t, err)
			assert.True(t, errors.Is(err, kerrors.ErrMergeConflict))

			var ke *kerrors.KreateError
			require.True(t, errors.As(err, &ke))
			assert.Equal(t, tt.path, ke.Path)
		})
	}
}

func TestMergeAt(t *testing.T) {
	tests := []struct {
		name     string
		index    int
		expected []any
	}{
		{"front", 0, []any{"x", "a", "b"}},
		{"middle", 1, []any{"a", "x", "b"}},
		{"clamped", 10, []any{"a", "b", "x"}},
		{"end", -1, []any{"a", "b", "x"}},
		{"before last", -2, []any{"a", "x", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := Map{"l": []any{"a", "b"}}
			require.NoError(t, MergeAt(target, Map{"l": []any{"x"}}, true, tt.index))
			assert.Equal(t, tt.expected, target["l"])
		})
	}
}

func TestMergeDoesNotAlias(t *testing.T) {
	source := Map{"a": Map{"b": []any{1}}}
	target := Map{}
	require.NoError(t, Merge(target, source, true))

	source["a"].(Map)["b"] = []any{1, 2}
	source["a"].(Map)["c"] = 3

	assert.Equal(t, Map{"a": Map{"b": []any{1}}}, target)
}

func TestNormalize(t *testing.T) {
	in := map[any]any{
		"a": map[any]any{1: "one"},
		"b": []any{map[any]any{"c": true}},
		"d": []string{"x"},
	}
	out := Normalize(in)
	assert.Equal(t, Map{
		"a": Map{"1": "one"},
		"b": []any{Map{"c": true}},
		"d": []any{"x"},
	}, out)
}

package deep

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/conneroisu/kreate/internal/errors"
)

func TestChainPrecedence(t *testing.T) {
	high := Map{"replicas": 3, "app": Map{"env": "prod"}, "ports": []any{80}}
	low := Map{"replicas": 1, "app": Map{"env": "dev", "name": "web"}, "ports": []any{8080, 9090}, "extra": "x"}

	merged, err := Chain(high, low)
	require.NoError(t, err)

	assert.Equal(t, 3, merged["replicas"])
	assert.Equal(t, Map{"env": "prod", "name": "web"}, merged["app"])
	assert.Equal(t, []any{80}, merged["ports"])
	assert.Equal(t, "x", merged["extra"])
}

func TestChainConflict(t *testing.T) {
	_, err := Chain(Map{"a": Map{"b": 1}}, Map{"a": "scalar"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, kerrors.ErrMergeConflict))

	_, err = Chain(Map{"a": 1}, Map{"a": Map{"b": 1}})
	assert.True(t, errors.Is(err, kerrors.ErrMergeConflict))
}

func TestChainOwnsResult(t *testing.T) {
	layer := Map{"app": Map{"name": "web"}}
	merged, err := Chain(layer)
	require.NoError(t, err)

	layer["app"].(Map)["name"] = "changed"
	assert.Equal(t, "web", GetString(merged, "app.name", ""))
}

func TestChainEmpty(t *testing.T) {
	merged, err := Chain()
	require.NoError(t, err)
	assert.Empty(t, merged)
}

package refpath

import (
	"testing"

	"docstore-gateway/internal/gateway/domain/model"
	"docstore-gateway/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDepths(t *testing.T) {
	ref, err := Parse("app")
	require.NoError(t, err)
	assert.Equal(t, model.DatabaseRef{Name: "app"}, ref)

	ref, err = Parse("app/users")
	require.NoError(t, err)
	col, ok := ref.(model.CollectionRef)
	require.True(t, ok)
	assert.Equal(t, "users", col.Name)
	assert.Equal(t, "app", col.Database.Name)

	ref, err = Parse("app/users/alice")
	require.NoError(t, err)
	doc, ok := ref.(model.DocumentRef)
	require.True(t, ok)
	assert.Equal(t, "alice", doc.ID)
	assert.Equal(t, "app/users/alice", doc.Path())
}

func TestParseTrimsSurroundingSlashes(t *testing.T) {
	ref, err := Parse("/app/users/")
	require.NoError(t, err)
	assert.Equal(t, "app/users", ref.Path())
}

func TestParseRejectsMalformedPaths(t *testing.T) {
	cases := []string{
		"",
		"/",
		"app/users/alice/extra",
		"app//alice",
		"app/us ers",
		"app/users/al.ice",
	}
	for _, path := range cases {
		_, err := Parse(path)
		assert.Error(t, err, "path %q", path)
		assert.True(t, errors.IsInvalidReference(err), "path %q", path)
	}
}

func TestParseKindMismatch(t *testing.T) {
	_, err := ParseDatabase("app/users")
	assert.True(t, errors.IsInvalidReference(err))

	_, err = ParseCollection("app")
	assert.True(t, errors.IsInvalidReference(err))

	_, err = ParseDocument("app/users")
	assert.True(t, errors.IsInvalidReference(err))
}

func TestParseKinds(t *testing.T) {
	db, err := ParseDatabase("app")
	require.NoError(t, err)
	assert.Equal(t, "app", db.Name)

	col, err := ParseCollection("app/users")
	require.NoError(t, err)
	assert.Equal(t, "users", col.Name)

	doc, err := ParseDocument("app/users/alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", doc.ID)
}

func TestIsValidID(t *testing.T) {
	assert.True(t, IsValidID("user_1-a"))
	assert.False(t, IsValidID(""))
	assert.False(t, IsValidID("a/b"))
	assert.False(t, IsValidID("with space"))
}

package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferencePaths(t *testing.T) {
	db := DatabaseRef{Name: "app"}
	col := CollectionRef{Database: db, Name: "users"}
	doc := col.Doc("alice")

	assert.Equal(t, "app", db.Path())
	assert.Equal(t, "app/users", col.Path())
	assert.Equal(t, "app/users/alice", doc.Path())
}

func TestDocComposesOwningChain(t *testing.T) {
	col := CollectionRef{Database: DatabaseRef{Name: "app"}, Name: "users"}
	doc := col.Doc("alice")

	assert.Equal(t, "alice", doc.ID)
	assert.True(t, doc.Collection.Equal(col))
	assert.True(t, doc.Collection.Database.Equal(col.Database))
}

func TestCollectionEqualityIgnoresQuery(t *testing.T) {
	base := CollectionRef{Database: DatabaseRef{Name: "app"}, Name: "users"}
	narrowed := base
	narrowed.Query = Query{Where: []Filter{{Field: "age", Operator: OperatorGreaterThan, Value: 21}}}

	assert.True(t, base.Equal(narrowed))
	assert.False(t, base.Equal(CollectionRef{Database: DatabaseRef{Name: "app"}, Name: "orders"}))
	assert.False(t, base.Equal(CollectionRef{Database: DatabaseRef{Name: "other"}, Name: "users"}))
}

func TestDocumentEquality(t *testing.T) {
	col := CollectionRef{Database: DatabaseRef{Name: "app"}, Name: "users"}

	assert.True(t, col.Doc("alice").Equal(col.Doc("alice")))
	assert.False(t, col.Doc("alice").Equal(col.Doc("bob")))
}

func TestReferenceMarshalsAsWirePath(t *testing.T) {
	doc := CollectionRef{Database: DatabaseRef{Name: "app"}, Name: "users"}.Doc("alice")

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, `"app/users/alice"`, string(raw))

	raw, err = json.Marshal(Snapshot{Ref: doc, Data: map[string]interface{}{"name": "Alice"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ref":"app/users/alice","data":{"name":"Alice"}}`, string(raw))
}

package memory

import (
	"context"
	"testing"

	"docstore-gateway/internal/gateway/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notesRef() model.CollectionRef {
	return model.CollectionRef{Database: model.DatabaseRef{Name: "app"}, Name: "notes"}
}

func TestCreateAndReadDocument(t *testing.T) {
	a := New()
	ctx := context.Background()
	col := notesRef()

	record, err := a.CreateDocument(ctx, col, map[string]interface{}{"title": "hello"})
	require.NoError(t, err)
	id, ok := record["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)
	assert.Equal(t, "hello", record["title"])

	read, err := a.ReadDocument(ctx, col.Doc(id))
	require.NoError(t, err)
	assert.Equal(t, record, read)
}

func TestCreateDocumentExplicitID(t *testing.T) {
	a := New()
	ctx := context.Background()
	col := notesRef()

	record, err := a.CreateDocument(ctx, col, map[string]interface{}{"id": "n1", "title": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "n1", record["id"])

	read, err := a.ReadDocument(ctx, col.Doc("n1"))
	require.NoError(t, err)
	assert.Equal(t, "hello", read["title"])
}

func TestReadDocumentAbsent(t *testing.T) {
	a := New()

	read, err := a.ReadDocument(context.Background(), notesRef().Doc("missing"))
	require.NoError(t, err)
	assert.Nil(t, read)
}

func TestUpdateDocumentMergesFields(t *testing.T) {
	a := New()
	ctx := context.Background()
	col := notesRef()

	_, err := a.CreateDocument(ctx, col, map[string]interface{}{"id": "n1", "title": "hello", "pinned": true})
	require.NoError(t, err)

	updated, err := a.UpdateDocument(ctx, col.Doc("n1"), map[string]interface{}{"title": "hi"}, model.WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hi", updated["title"])
	assert.Equal(t, true, updated["pinned"])
}

func TestUpdateDocumentReplace(t *testing.T) {
	a := New()
	ctx := context.Background()
	col := notesRef()

	_, err := a.CreateDocument(ctx, col, map[string]interface{}{"id": "n1", "title": "hello", "pinned": true})
	require.NoError(t, err)

	updated, err := a.UpdateDocument(ctx, col.Doc("n1"), map[string]interface{}{"title": "hi"}, model.WriteOptions{Replace: true})
	require.NoError(t, err)
	assert.Equal(t, "hi", updated["title"])
	_, hasPinned := updated["pinned"]
	assert.False(t, hasPinned)
}

func TestUpdateDocumentAbsent(t *testing.T) {
	a := New()

	updated, err := a.UpdateDocument(context.Background(), notesRef().Doc("missing"), map[string]interface{}{"title": "x"}, model.WriteOptions{})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestDeleteDocument(t *testing.T) {
	a := New()
	ctx := context.Background()
	col := notesRef()

	_, err := a.CreateDocument(ctx, col, map[string]interface{}{"id": "n1", "title": "hello"})
	require.NoError(t, err)

	deleted, err := a.DeleteDocument(ctx, col.Doc("n1"))
	require.NoError(t, err)
	assert.Equal(t, "hello", deleted["title"])

	read, err := a.ReadDocument(ctx, col.Doc("n1"))
	require.NoError(t, err)
	assert.Nil(t, read)

	// Deleting again is not an error and returns nothing.
	deleted, err = a.DeleteDocument(ctx, col.Doc("n1"))
	require.NoError(t, err)
	assert.Nil(t, deleted)
}

func seedScores(t *testing.T, a *Adapter, col model.CollectionRef) {
	t.Helper()
	ctx := context.Background()
	docs := []map[string]interface{}{
		{"id": "a", "name": "ana", "score": 10, "tags": []interface{}{"x"}},
		{"id": "b", "name": "bob", "score": 30, "tags": []interface{}{"x", "y"}},
		{"id": "c", "name": "cyn", "score": 20, "tags": []interface{}{"z"}},
	}
	for _, doc := range docs {
		_, err := a.CreateDocument(ctx, col, doc)
		require.NoError(t, err)
	}
}

func TestReadCollectionFilters(t *testing.T) {
	a := New()
	col := notesRef()
	seedScores(t, a, col)

	col.Query = model.Query{Where: []model.Filter{{Field: "score", Operator: model.OperatorGreaterThan, Value: 15}}}
	rows, err := a.ReadCollection(context.Background(), col)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0]["id"])
	assert.Equal(t, "c", rows[1]["id"])
}

func TestReadCollectionArrayContains(t *testing.T) {
	a := New()
	col := notesRef()
	seedScores(t, a, col)

	col.Query = model.Query{Where: []model.Filter{{Field: "tags", Operator: model.OperatorArrayContains, Value: "y"}}}
	rows, err := a.ReadCollection(context.Background(), col)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0]["id"])

	col.Query = model.Query{Where: []model.Filter{{Field: "tags", Operator: model.OperatorArrayNotContains, Value: "x"}}}
	rows, err = a.ReadCollection(context.Background(), col)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "c", rows[0]["id"])
}

func TestReadCollectionOrderAndLimit(t *testing.T) {
	a := New()
	col := notesRef()
	seedScores(t, a, col)

	col.Query = model.Query{
		OrderBy: []model.Order{{Field: "score", Direction: model.Descending}},
		Limit:   2,
	}
	rows, err := a.ReadCollection(context.Background(), col)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0]["id"])
	assert.Equal(t, "c", rows[1]["id"])
}

func TestReadCollectionStableDefaultOrder(t *testing.T) {
	a := New()
	col := notesRef()
	seedScores(t, a, col)

	rows, err := a.ReadCollection(context.Background(), col)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0]["id"])
	assert.Equal(t, "b", rows[1]["id"])
	assert.Equal(t, "c", rows[2]["id"])
}

func TestGetCollections(t *testing.T) {
	a := New()
	ctx := context.Background()
	db := model.DatabaseRef{Name: "app"}

	_, err := a.CreateDocument(ctx, model.CollectionRef{Database: db, Name: "notes"}, map[string]interface{}{"v": 1})
	require.NoError(t, err)
	_, err = a.CreateDocument(ctx, model.CollectionRef{Database: db, Name: "archive"}, map[string]interface{}{"v": 1})
	require.NoError(t, err)

	names, err := a.GetCollections(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{"archive", "notes"}, names)

	names, err = a.GetCollections(ctx, model.DatabaseRef{Name: "empty"})
	require.NoError(t, err)
	assert.Empty(t, names)
}

type capturedChange struct {
	oldData map[string]interface{}
	newData map[string]interface{}
}

func captureChanges() (func(err error, oldData, newData map[string]interface{}), *[]capturedChange) {
	var changes []capturedChange
	return func(err error, oldData, newData map[string]interface{}) {
		changes = append(changes, capturedChange{oldData: oldData, newData: newData})
	}, &changes
}

func TestDocumentSubscriptionFanout(t *testing.T) {
	a := New()
	ctx := context.Background()
	col := notesRef()
	handler, changes := captureChanges()

	require.NoError(t, a.SubscribeDocument(ctx, "sub-1", col.Doc("n1"), handler))

	_, err := a.CreateDocument(ctx, col, map[string]interface{}{"id": "n1", "title": "hello"})
	require.NoError(t, err)
	_, err = a.CreateDocument(ctx, col, map[string]interface{}{"id": "other", "title": "ignored"})
	require.NoError(t, err)
	_, err = a.UpdateDocument(ctx, col.Doc("n1"), map[string]interface{}{"title": "hi"}, model.WriteOptions{})
	require.NoError(t, err)
	_, err = a.DeleteDocument(ctx, col.Doc("n1"))
	require.NoError(t, err)

	require.Len(t, *changes, 3)
	assert.Nil(t, (*changes)[0].oldData)
	assert.Equal(t, "hello", (*changes)[0].newData["title"])
	assert.Equal(t, "hello", (*changes)[1].oldData["title"])
	assert.Equal(t, "hi", (*changes)[1].newData["title"])
	assert.Equal(t, "hi", (*changes)[2].oldData["title"])
	assert.Nil(t, (*changes)[2].newData)
}

func TestCollectionSubscriptionQueryPrefilter(t *testing.T) {
	a := New()
	ctx := context.Background()
	col := notesRef()
	col.Query = model.Query{Where: []model.Filter{{Field: "pinned", Operator: model.OperatorEqual, Value: true}}}
	handler, changes := captureChanges()

	require.NoError(t, a.SubscribeCollection(ctx, "sub-1", col, handler))

	plain := notesRef()
	_, err := a.CreateDocument(ctx, plain, map[string]interface{}{"id": "n1", "pinned": true})
	require.NoError(t, err)
	_, err = a.CreateDocument(ctx, plain, map[string]interface{}{"id": "n2", "pinned": false})
	require.NoError(t, err)

	// Deletions match on their old side.
	_, err = a.DeleteDocument(ctx, plain.Doc("n1"))
	require.NoError(t, err)

	require.Len(t, *changes, 2)
	assert.Equal(t, "n1", (*changes)[0].newData["id"])
	assert.Equal(t, "n1", (*changes)[1].oldData["id"])
	assert.Nil(t, (*changes)[1].newData)
}

func TestUnsubscribeStopsFanout(t *testing.T) {
	a := New()
	ctx := context.Background()
	col := notesRef()
	handler, changes := captureChanges()

	require.NoError(t, a.SubscribeCollection(ctx, "sub-1", col, handler))
	require.NoError(t, a.Unsubscribe(ctx, "sub-1"))
	require.NoError(t, a.Unsubscribe(ctx, "sub-1"))
	require.NoError(t, a.Unsubscribe(ctx, "never-existed"))

	_, err := a.CreateDocument(ctx, col, map[string]interface{}{"title": "hello"})
	require.NoError(t, err)

	assert.Empty(t, *changes)
}

func TestFanoutDeliversClones(t *testing.T) {
	a := New()
	ctx := context.Background()
	col := notesRef()

	var received map[string]interface{}
	handler := func(err error, oldData, newData map[string]interface{}) {
		received = newData
	}
	require.NoError(t, a.SubscribeDocument(ctx, "sub-1", col.Doc("n1"), handler))

	_, err := a.CreateDocument(ctx, col, map[string]interface{}{"id": "n1", "title": "hello"})
	require.NoError(t, err)

	received["title"] = "mutated"

	read, err := a.ReadDocument(ctx, col.Doc("n1"))
	require.NoError(t, err)
	assert.Equal(t, "hello", read["title"])
}

package mongodb

import (
	"testing"

	"docstore-gateway/internal/gateway/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestToRecordExposesID(t *testing.T) {
	record := toRecord(bson.M{"_id": "n1", "title": "hello"})

	assert.Equal(t, "n1", record["id"])
	assert.Equal(t, "hello", record["title"])
	_, hasRaw := record["_id"]
	assert.False(t, hasRaw)
}

func TestToRecordNil(t *testing.T) {
	assert.Nil(t, toRecord(nil))
}

func TestTranslateWhereEmpty(t *testing.T) {
	assert.Equal(t, bson.M{}, translateWhere(nil))
}

func TestTranslateWhereConjunction(t *testing.T) {
	filter := translateWhere([]model.Filter{
		{Field: "owner", Operator: model.OperatorEqual, Value: "alice"},
		{Field: "score", Operator: model.OperatorGreaterThan, Value: 10},
	})

	clauses, ok := filter["$and"].([]bson.M)
	require.True(t, ok)
	require.Len(t, clauses, 2)
	assert.Equal(t, bson.M{"owner": bson.M{"$eq": "alice"}}, clauses[0])
	assert.Equal(t, bson.M{"score": bson.M{"$gt": 10}}, clauses[1])
}

func TestTranslateWhereMapsIDField(t *testing.T) {
	filter := translateWhere([]model.Filter{
		{Field: "id", Operator: model.OperatorEqual, Value: "n1"},
	})

	clauses := filter["$and"].([]bson.M)
	assert.Equal(t, bson.M{"_id": bson.M{"$eq": "n1"}}, clauses[0])
}

func TestTranslateClauseOperators(t *testing.T) {
	cases := []struct {
		operator string
		expected bson.M
	}{
		{model.OperatorNotEqual, bson.M{"f": bson.M{"$ne": 1}}},
		{model.OperatorLessThan, bson.M{"f": bson.M{"$lt": 1}}},
		{model.OperatorLessThanOrEqual, bson.M{"f": bson.M{"$lte": 1}}},
		{model.OperatorGreaterThanOrEqual, bson.M{"f": bson.M{"$gte": 1}}},
		{model.OperatorArrayContains, bson.M{"f": bson.M{"$elemMatch": bson.M{"$eq": 1}}}},
		{model.OperatorArrayNotContains, bson.M{"f": bson.M{"$not": bson.M{"$elemMatch": bson.M{"$eq": 1}}}}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, translateClause("f", tc.operator, 1), "operator %s", tc.operator)
	}
}

func TestTranslateClauseUnknownOperatorMatchesNothing(t *testing.T) {
	assert.Equal(t, bson.M{"$expr": false}, translateClause("f", "between", 1))
}

func TestChangeStreamMatchEmptyQuery(t *testing.T) {
	assert.Empty(t, changeStreamMatch(nil))
}

func TestChangeStreamMatchFiltersBothEventSides(t *testing.T) {
	pipeline := changeStreamMatch([]model.Filter{
		{Field: "owner", Operator: model.OperatorEqual, Value: "alice"},
	})

	require.Len(t, pipeline, 1)
	expected := bson.D{{Key: "$match", Value: bson.M{"$or": []bson.M{
		{"$and": []bson.M{{"fullDocument.owner": bson.M{"$eq": "alice"}}}},
		{"$and": []bson.M{{"fullDocumentBeforeChange.owner": bson.M{"$eq": "alice"}}}},
	}}}}
	assert.Equal(t, expected, pipeline[0])
}

func TestChangeStreamMatchMapsIDField(t *testing.T) {
	pipeline := changeStreamMatch([]model.Filter{
		{Field: "id", Operator: model.OperatorEqual, Value: "n1"},
	})

	require.Len(t, pipeline, 1)
	match := pipeline[0][0].Value.(bson.M)
	sides := match["$or"].([]bson.M)
	assert.Equal(t, bson.M{"$and": []bson.M{{"fullDocument._id": bson.M{"$eq": "n1"}}}}, sides[0])
	assert.Equal(t, bson.M{"$and": []bson.M{{"fullDocumentBeforeChange._id": bson.M{"$eq": "n1"}}}}, sides[1])
}

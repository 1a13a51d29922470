package postgres

import (
	"testing"

	"docstore-gateway/internal/gateway/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notesRef() model.CollectionRef {
	return model.CollectionRef{Database: model.DatabaseRef{Name: "app"}, Name: "notes"}
}

func TestTableNameQuotesIdentifiers(t *testing.T) {
	assert.Equal(t, `"app"."notes"`, tableName(notesRef()))

	hostile := model.CollectionRef{Database: model.DatabaseRef{Name: `ap"p`}, Name: "notes"}
	assert.Equal(t, `"ap""p"."notes"`, tableName(hostile))
}

func TestBuildSelectPlain(t *testing.T) {
	sql, args := buildSelect(notesRef())

	assert.Equal(t, `SELECT id, data FROM "app"."notes" ORDER BY id`, sql)
	assert.Empty(t, args)
}

func TestBuildSelectStringFilter(t *testing.T) {
	ref := notesRef()
	ref.Query = model.Query{Where: []model.Filter{{Field: "owner", Operator: model.OperatorEqual, Value: "alice"}}}

	sql, args := buildSelect(ref)
	assert.Contains(t, sql, `data->>'owner' = $1`)
	require.Len(t, args, 1)
	assert.Equal(t, "alice", args[0])
}

func TestBuildSelectIDFilterUsesIDColumn(t *testing.T) {
	ref := notesRef()
	ref.Query = model.Query{Where: []model.Filter{{Field: "id", Operator: model.OperatorEqual, Value: "n1"}}}

	sql, args := buildSelect(ref)
	assert.Contains(t, sql, `WHERE id = $1`)
	assert.NotContains(t, sql, `data->>'id'`)
	require.Len(t, args, 1)
	assert.Equal(t, "n1", args[0])
}

func TestBuildSelectNumericFilterCasts(t *testing.T) {
	ref := notesRef()
	ref.Query = model.Query{Where: []model.Filter{{Field: "score", Operator: model.OperatorGreaterThanOrEqual, Value: 10}}}

	sql, args := buildSelect(ref)
	assert.Contains(t, sql, `(data->>'score')::numeric >= $1`)
	require.Len(t, args, 1)
	assert.Equal(t, 10, args[0])
}

func TestBuildSelectArrayContains(t *testing.T) {
	ref := notesRef()
	ref.Query = model.Query{Where: []model.Filter{{Field: "tags", Operator: model.OperatorArrayContains, Value: "x"}}}

	sql, args := buildSelect(ref)
	assert.Contains(t, sql, `data->'tags' @> to_jsonb($1)`)
	require.Len(t, args, 1)
	assert.Equal(t, []interface{}{"x"}, args[0])
}

func TestBuildSelectMultipleConditionsNumberArgs(t *testing.T) {
	ref := notesRef()
	ref.Query = model.Query{Where: []model.Filter{
		{Field: "owner", Operator: model.OperatorEqual, Value: "alice"},
		{Field: "score", Operator: model.OperatorLessThan, Value: 100},
	}}

	sql, args := buildSelect(ref)
	assert.Contains(t, sql, `data->>'owner' = $1`)
	assert.Contains(t, sql, `(data->>'score')::numeric < $2`)
	assert.Contains(t, sql, " AND ")
	assert.Len(t, args, 2)
}

func TestBuildSelectOrderByAndLimit(t *testing.T) {
	ref := notesRef()
	ref.Query = model.Query{
		OrderBy: []model.Order{
			{Field: "score", Direction: model.Descending},
			{Field: "name", Direction: model.Ascending},
		},
		Limit: 7,
	}

	sql, _ := buildSelect(ref)
	assert.Contains(t, sql, `ORDER BY data->>'score' DESC, data->>'name' ASC`)
	assert.Contains(t, sql, "LIMIT 7")
}

func TestBuildSelectUnknownOperatorMatchesNothing(t *testing.T) {
	ref := notesRef()
	ref.Query = model.Query{Where: []model.Filter{{Field: "x", Operator: "between", Value: 1}}}

	sql, args := buildSelect(ref)
	assert.Contains(t, sql, "WHERE FALSE")
	assert.Empty(t, args)
}

func TestQuoteLiteralEscapesQuotes(t *testing.T) {
	assert.Equal(t, `'it''s'`, quoteLiteral("it's"))
}

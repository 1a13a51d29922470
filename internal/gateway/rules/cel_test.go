package rules

import (
	"context"
	"testing"

	"docstore-gateway/internal/gateway/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileCELOwnerRule(t *testing.T) {
	rule, err := CompileCEL(`resource.data.owner == request.client.id`)
	require.NoError(t, err)

	req := &Request{Client: &model.Client{ID: "alice"}, Ref: testRef()}

	ok, err := rule.Evaluate(context.Background(), req, &Response{Data: map[string]interface{}{"owner": "alice"}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rule.Evaluate(context.Background(), req, &Response{Data: map[string]interface{}{"owner": "bob"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompileCELAdminRule(t *testing.T) {
	rule := MustCompileCEL(`request.client.admin == true`)

	ok, err := rule.Evaluate(context.Background(), &Request{Client: &model.Client{Admin: true}}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rule.Evaluate(context.Background(), &Request{Client: &model.Client{}}, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompileCELWriteDataRule(t *testing.T) {
	rule := MustCompileCEL(`request.data.visibility == "public"`)

	req := &Request{Data: map[string]interface{}{"visibility": "public"}}
	ok, err := rule.Evaluate(context.Background(), req, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompileCELRejectsInvalidExpression(t *testing.T) {
	_, err := CompileCEL(`resource.data.owner ==`)
	assert.Error(t, err)
}

func TestCELNonBooleanResult(t *testing.T) {
	rule := MustCompileCEL(`request.client.id`)

	_, err := rule.Evaluate(context.Background(), &Request{Client: &model.Client{ID: "alice"}}, nil)
	assert.Error(t, err)
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable(TableDefinition{
		"app": {
			"notes": {
				"read":   `resource.data.owner == request.client.id`,
				"create": `request.client.id != ""`,
			},
		},
	})
	require.NoError(t, err)

	v := NewValidator(table)
	col := model.CollectionRef{Database: model.DatabaseRef{Name: "app"}, Name: "notes"}
	doc := col.Doc("n1")

	req := &Request{Client: &model.Client{ID: "alice"}, Ref: doc}
	res := &Response{Data: map[string]interface{}{"owner": "alice"}}
	assert.NoError(t, v.Validate(context.Background(), OperationRead, doc, req, res))

	res = &Response{Data: map[string]interface{}{"owner": "bob"}}
	assert.Error(t, v.Validate(context.Background(), OperationRead, doc, req, res))
}

func TestParseTableRejectsUnknownOperation(t *testing.T) {
	_, err := ParseTable(TableDefinition{
		"app": {"notes": {"list": `true`}},
	})
	assert.Error(t, err)
}

func TestParseTableRejectsBadExpression(t *testing.T) {
	_, err := ParseTable(TableDefinition{
		"app": {"notes": {"read": `((`}},
	})
	assert.Error(t, err)
}

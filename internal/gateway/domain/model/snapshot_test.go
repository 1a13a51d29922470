package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyChange(t *testing.T) {
	old := map[string]interface{}{"v": 1}
	updated := map[string]interface{}{"v": 2}

	assert.Equal(t, ChangeTypeCreate, ClassifyChange(nil, updated))
	assert.Equal(t, ChangeTypeUpdate, ClassifyChange(old, updated))
	assert.Equal(t, ChangeTypeDelete, ClassifyChange(old, nil))
}

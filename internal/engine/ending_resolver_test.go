package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-client/internal/models"
)

func TestSelectEnding(t *testing.T) {
	endings := []models.Ending{
		{Index: 1, Title: "Triumph", Condition: map[string]interface{}{"power": ">=50"}},
		{Index: 2, Title: "Quiet Life", Condition: map[string]interface{}{}},
	}

	t.Run("first condition match wins", func(t *testing.T) {
		got, err := SelectEnding(endings, map[string]interface{}{"power": 60.0}, false)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Index)
	})

	t.Run("unconditional ending catches the rest", func(t *testing.T) {
		got, err := SelectEnding(endings, map[string]interface{}{"power": 30.0}, false)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Index)
	})

	t.Run("falls back to first ending when nothing matches", func(t *testing.T) {
		strict := []models.Ending{
			{Index: 1, Condition: map[string]interface{}{"power": ">=50"}},
			{Index: 2, Condition: map[string]interface{}{"power": ">=90"}},
		}
		got, err := SelectEnding(strict, map[string]interface{}{"power": 1.0}, false)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Index)
	})

	t.Run("creator bypasses conditions", func(t *testing.T) {
		got, err := SelectEnding(endings, map[string]interface{}{}, true)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Index)
	})

	t.Run("no endings is an error", func(t *testing.T) {
		_, err := SelectEnding(nil, map[string]interface{}{}, false)
		assert.ErrorIs(t, err, models.ErrNoEndingsAvailable)
	})
}

func TestSelectEndingByIndex(t *testing.T) {
	endings := []models.Ending{{Index: 1}, {Index: 3}}

	got, err := SelectEndingByIndex(endings, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Index)

	_, err = SelectEndingByIndex(endings, 2)
	assert.ErrorIs(t, err, models.ErrEndingNotFound)
}

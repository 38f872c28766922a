package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyChoiceDeltas(t *testing.T) {
	t.Run("numeric deltas accumulate", func(t *testing.T) {
		attrs := map[string]interface{}{}
		statuses := map[string]interface{}{}

		applyChoiceDeltas(attrs, statuses, map[string]interface{}{"gold": 10.0}, nil)
		applyChoiceDeltas(attrs, statuses, map[string]interface{}{"gold": 5.0}, nil)

		assert.Equal(t, 15.0, attrs["gold"])
	})

	t.Run("missing key defaults to zero", func(t *testing.T) {
		attrs := map[string]interface{}{}
		applyChoiceDeltas(attrs, map[string]interface{}{}, map[string]interface{}{"trust": -3.0}, nil)
		assert.Equal(t, -3.0, attrs["trust"])
	})

	t.Run("nil removes a status", func(t *testing.T) {
		statuses := map[string]interface{}{"cursed": true}
		applyChoiceDeltas(map[string]interface{}{}, statuses, nil, map[string]interface{}{"cursed": nil})
		_, present := statuses["cursed"]
		assert.False(t, present)
	})

	t.Run("false removes a status", func(t *testing.T) {
		statuses := map[string]interface{}{"blessed": "aura"}
		applyChoiceDeltas(map[string]interface{}{}, statuses, nil, map[string]interface{}{"blessed": false})
		assert.NotContains(t, statuses, "blessed")
	})

	t.Run("nil on an attribute is ignored", func(t *testing.T) {
		attrs := map[string]interface{}{"honor": 7.0}
		applyChoiceDeltas(attrs, map[string]interface{}{}, map[string]interface{}{"honor": nil}, nil)
		assert.Equal(t, 7.0, attrs["honor"])
	})

	t.Run("non-numeric value overwrites", func(t *testing.T) {
		attrs := map[string]interface{}{"title": "squire"}
		applyChoiceDeltas(attrs, map[string]interface{}{}, map[string]interface{}{"title": "knight"}, nil)
		assert.Equal(t, "knight", attrs["title"])
	})

	t.Run("misfiled attribute key is routed to statuses", func(t *testing.T) {
		attrs := map[string]interface{}{}
		statuses := map[string]interface{}{"poisoned": 1.0}

		// "poisoned" already lives in statuses; the author put it in the
		// attributes delta by mistake.
		applyChoiceDeltas(attrs, statuses, map[string]interface{}{"poisoned": 2.0}, nil)

		assert.NotContains(t, attrs, "poisoned")
		assert.Equal(t, 3.0, statuses["poisoned"])
	})

	t.Run("misfiled status key is routed to attributes", func(t *testing.T) {
		attrs := map[string]interface{}{"trust": 4.0}
		statuses := map[string]interface{}{}

		applyChoiceDeltas(attrs, statuses, nil, map[string]interface{}{"trust": 1.0})

		assert.Equal(t, 5.0, attrs["trust"])
		assert.NotContains(t, statuses, "trust")
	})

	t.Run("status numeric delta accumulates", func(t *testing.T) {
		statuses := map[string]interface{}{"suspicion": 2.0}
		applyChoiceDeltas(map[string]interface{}{}, statuses, nil, map[string]interface{}{"suspicion": 1.0})
		assert.Equal(t, 3.0, statuses["suspicion"])
	})
}

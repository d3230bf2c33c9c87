package relief

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectionToggle(t *testing.T) {
	req := testRequest()
	sel := NewSelection(req)

	t.Run("unknown item", func(t *testing.T) {
		err := sel.Toggle("nope", true)
		assert.Equal(t, ErrItemNotFound, errors.Cause(err))
	})

	t.Run("fully funded item is a no-op", func(t *testing.T) {
		require.NoError(t, sel.Toggle("tent", true))
		assert.False(t, sel.IsSelected("tent"))
	})

	t.Run("select and deselect", func(t *testing.T) {
		require.NoError(t, sel.Toggle("food", true))
		assert.True(t, sel.IsSelected("food"))
		require.NoError(t, sel.Toggle("food", false))
		assert.False(t, sel.IsSelected("food"))
	})

	t.Run("deselecting clears the override", func(t *testing.T) {
		require.NoError(t, sel.Toggle("food", true))
		require.NoError(t, sel.SetAmount("food", "100"))
		_, ok := sel.Override("food")
		require.True(t, ok)

		require.NoError(t, sel.Toggle("food", false))
		_, ok = sel.Override("food")
		assert.False(t, ok)
	})
}

func TestSelectionSetAmount(t *testing.T) {
	req := testRequest()
	sel := NewSelection(req)
	require.NoError(t, sel.Toggle("food", true))

	t.Run("unknown item", func(t *testing.T) {
		err := sel.SetAmount("nope", "100")
		assert.Equal(t, ErrItemNotFound, errors.Cause(err))
	})

	t.Run("valid amount is stored as typed", func(t *testing.T) {
		require.NoError(t, sel.SetAmount("food", "100.25"))
		amt, ok := sel.Override("food")
		require.True(t, ok)
		assert.True(t, amt.Equal(dec("100.25")))
	})

	t.Run("invalid input clears the override without failing", func(t *testing.T) {
		require.NoError(t, sel.SetAmount("food", "100"))
		for _, raw := range []string{"abc", "", "-5", "0"} {
			require.NoError(t, sel.SetAmount("food", raw))
			_, ok := sel.Override("food")
			assert.False(t, ok, "raw %q should clear the override", raw)
		}
	})

	t.Run("amount above remaining is kept as entered", func(t *testing.T) {
		// capping happens at allocation time, not on input
		require.NoError(t, sel.SetAmount("food", "99999"))
		amt, ok := sel.Override("food")
		require.True(t, ok)
		assert.True(t, amt.Equal(dec("99999")))
	})
}

func TestSelectionClear(t *testing.T) {
	req := testRequest()
	sel := NewSelection(req)
	require.NoError(t, sel.Toggle("food", true))
	require.NoError(t, sel.SetAmount("food", "100"))
	require.NoError(t, sel.Toggle("meds", true))

	sel.Clear()
	assert.True(t, sel.IsEmpty())
	assert.False(t, sel.IsSelected("food"))
	_, ok := sel.Override("food")
	assert.False(t, ok)
}

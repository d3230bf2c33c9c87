package relief

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testRequest() Request {
	return Request{
		ID:       "req1",
		VictimID: "vic1",
		Title:    "Flood relief for Kalemie",
		Status:   StatusActive,
		Items: []Item{
			{ID: "tent", Name: "Family tent", Cost: dec("500"), Funded: dec("500")},
			{ID: "food", Name: "Food ration", Cost: dec("2000"), Funded: dec("500")},
			{ID: "meds", Name: "First aid kit", Cost: dec("300"), Funded: decimal.Zero},
		},
	}
}

func TestComputeAllocation(t *testing.T) {
	req := testRequest()

	t.Run("fully funded item is excluded even when selected", func(t *testing.T) {
		sel := NewSelection(req)
		require.NoError(t, sel.Toggle("tent", true))
		alloc := ComputeAllocation(req, sel)
		assert.Empty(t, alloc.Lines)
		assert.True(t, alloc.Total.IsZero())
	})

	t.Run("no override defaults to remaining", func(t *testing.T) {
		sel := NewSelection(req)
		require.NoError(t, sel.Toggle("food", true))
		alloc := ComputeAllocation(req, sel)
		require.Len(t, alloc.Lines, 1)
		assert.Equal(t, "food", alloc.Lines[0].ItemID)
		assert.True(t, alloc.Lines[0].Amount.Equal(dec("1500")))
		assert.True(t, alloc.Total.Equal(dec("1500")))
	})

	t.Run("override above remaining is capped", func(t *testing.T) {
		sel := NewSelection(req)
		require.NoError(t, sel.Toggle("food", true))
		require.NoError(t, sel.SetAmount("food", "3000"))
		alloc := ComputeAllocation(req, sel)
		require.Len(t, alloc.Lines, 1)
		assert.True(t, alloc.Lines[0].Amount.Equal(dec("1500")))
	})

	t.Run("override below remaining is honored", func(t *testing.T) {
		sel := NewSelection(req)
		require.NoError(t, sel.Toggle("food", true))
		require.NoError(t, sel.SetAmount("food", "250.50"))
		alloc := ComputeAllocation(req, sel)
		require.Len(t, alloc.Lines, 1)
		assert.True(t, alloc.Lines[0].Amount.Equal(dec("250.50")))
	})

	t.Run("unparseable override falls back to remaining", func(t *testing.T) {
		sel := NewSelection(req)
		require.NoError(t, sel.Toggle("food", true))
		require.NoError(t, sel.SetAmount("food", "abc"))
		alloc := ComputeAllocation(req, sel)
		require.Len(t, alloc.Lines, 1)
		assert.True(t, alloc.Lines[0].Amount.Equal(dec("1500")))
	})

	t.Run("empty selection yields zero total", func(t *testing.T) {
		sel := NewSelection(req)
		alloc := ComputeAllocation(req, sel)
		assert.True(t, alloc.IsEmpty())
		assert.True(t, alloc.Total.IsZero())
	})

	t.Run("lines follow item order and total is the sum", func(t *testing.T) {
		sel := NewSelection(req)
		require.NoError(t, sel.Toggle("meds", true))
		require.NoError(t, sel.Toggle("food", true))
		require.NoError(t, sel.SetAmount("food", "100"))
		alloc := ComputeAllocation(req, sel)
		require.Len(t, alloc.Lines, 2)
		assert.Equal(t, "food", alloc.Lines[0].ItemID)
		assert.Equal(t, "meds", alloc.Lines[1].ItemID)
		assert.True(t, alloc.Total.Equal(dec("400")))
	})

	t.Run("recomputing is idempotent", func(t *testing.T) {
		sel := NewSelection(req)
		require.NoError(t, sel.Toggle("food", true))
		require.NoError(t, sel.SetAmount("food", "700"))
		first := ComputeAllocation(req, sel)
		second := ComputeAllocation(req, sel)
		assert.Equal(t, first, second)
	})
}

func TestBuildCheckoutPayload(t *testing.T) {
	req := testRequest()

	t.Run("freezes the allocation", func(t *testing.T) {
		sel := NewSelection(req)
		require.NoError(t, sel.Toggle("food", true))
		require.NoError(t, sel.Toggle("meds", true))
		alloc := ComputeAllocation(req, sel)

		payload, err := BuildCheckoutPayload(req, alloc)
		require.NoError(t, err)
		assert.Equal(t, PayloadSchemaVersion, payload.SchemaVersion)
		assert.Equal(t, req.ID, payload.RequestID)
		require.Len(t, payload.Lines, 2)
		assert.True(t, payload.Total.Equal(dec("1800")))
		require.NoError(t, payload.Validate())

		// later selection changes must not leak into the snapshot
		require.NoError(t, sel.Toggle("meds", false))
		assert.Len(t, payload.Lines, 2)
	})

	t.Run("rejects empty allocation", func(t *testing.T) {
		sel := NewSelection(req)
		alloc := ComputeAllocation(req, sel)
		_, err := BuildCheckoutPayload(req, alloc)
		assert.Equal(t, ErrEmptyAllocation, err)
	})
}

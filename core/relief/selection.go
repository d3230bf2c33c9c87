package relief

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrItemNotFound flags an operation referencing an item that does not belong
// to the request at hand. This is a programmer error in the calling layer and
// must fail loudly rather than silently corrupt a donor's selection.
var ErrItemNotFound = errors.New("item not found in request")

// Selection is a donor's in-progress choice of which Items of a single
// Request to fund and for how much. It is ephemeral: discarded when the donor
// navigates away without committing.
//
// Membership is explicit; an item absent from the selected set was never
// toggled, as opposed to toggled off. Override amounts are kept separately
// and only exist while the item is selected.
type Selection struct {
	req       Request
	selected  map[string]bool
	overrides map[string]decimal.Decimal
}

func NewSelection(req Request) *Selection {
	return &Selection{
		req:       req,
		selected:  make(map[string]bool, len(req.Items)),
		overrides: make(map[string]decimal.Decimal),
	}
}

// Toggle updates the selection membership of an item.
// Selecting a fully funded item is a defensive no-op, mirroring the disabled
// checkbox in the UI. Deselecting clears any override amount so a stale value
// cannot reappear on reselection.
func (s *Selection) Toggle(itemID string, selected bool) error {
	it, ok := s.req.Item(itemID)
	if !ok {
		return errors.Wrapf(ErrItemNotFound, "toggling item %q", itemID)
	}
	if selected && it.FullyFunded() {
		return nil
	}
	if !selected {
		delete(s.selected, itemID)
		delete(s.overrides, itemID)
		return nil
	}
	s.selected[itemID] = true
	return nil
}

// SetAmount records a donor-supplied override amount for an item, parsed from
// the raw form input. Unparseable or non-positive input unsets the override
// (the item falls back to "fund full remaining"); it is never an error.
// The value is not clamped here; clamping happens at computation time so the
// form field can keep showing the donor's literal input.
func (s *Selection) SetAmount(itemID, rawAmount string) error {
	if _, ok := s.req.Item(itemID); !ok {
		return errors.Wrapf(ErrItemNotFound, "setting amount for item %q", itemID)
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil || !amount.IsPositive() {
		delete(s.overrides, itemID)
		return nil
	}
	s.overrides[itemID] = amount
	return nil
}

func (s *Selection) IsSelected(itemID string) bool { return s.selected[itemID] }

// Override returns the override amount for an item and whether one is set.
func (s *Selection) Override(itemID string) (decimal.Decimal, bool) {
	amount, ok := s.overrides[itemID]
	return amount, ok
}

func (s *Selection) IsEmpty() bool { return len(s.selected) == 0 }

// Clear discards all selection state, e.g. when the donor abandons the flow.
func (s *Selection) Clear() {
	s.selected = make(map[string]bool, len(s.req.Items))
	s.overrides = make(map[string]decimal.Decimal)
}

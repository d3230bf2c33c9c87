package relief

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyAllocation flags a checkout attempt with nothing selected.
	// Recoverable; surfaced to the donor as "select at least one item".
	ErrEmptyAllocation = errors.New("select at least one item to donate")

	errPayloadSchema = errors.New("invalid checkout payload")
)

// PayloadSchemaVersion is bumped whenever the CheckoutPayload wire format
// changes incompatibly.
const PayloadSchemaVersion = 1

type (
	// AllocationLine is the amount to apply to a single item.
	AllocationLine struct {
		ItemID   string          `json:"item_id"`
		ItemName string          `json:"item_name"`
		Amount   decimal.Decimal `json:"amount"`
	}

	// Allocation is the computed, validated result of applying a Selection to
	// a Request's Items. It is derived state: never stored, cheap to recompute
	// on every selection change.
	Allocation struct {
		RequestID string           `json:"request_id"`
		Lines     []AllocationLine `json:"lines"`
		Total     decimal.Decimal  `json:"total"`
	}

	// CheckoutPayload is an immutable snapshot of an Allocation taken when the
	// donor proceeds to checkout. It carries the numbers across the payment
	// boundary; once built it is never recomputed from live selection state.
	CheckoutPayload struct {
		SchemaVersion int              `json:"schema_version"`
		RequestID     string           `json:"request_id"`
		Lines         []AllocationLine `json:"items"`
		Total         decimal.Decimal  `json:"total"`
	}
)

func (a Allocation) IsEmpty() bool { return len(a.Lines) == 0 }

// ComputeAllocation derives the per-item amounts and grand total for a
// donor's selection. Pure: same (request, selection) always yields the same
// Allocation. Items are visited in the Request's fixed order; unselected and
// fully funded items are skipped; an override amount is capped at the item's
// remaining need.
func ComputeAllocation(req Request, sel *Selection) Allocation {
	alloc := Allocation{RequestID: req.ID, Total: decimal.Zero}
	for _, it := range req.Items {
		if !sel.IsSelected(it.ID) || it.FullyFunded() {
			continue
		}
		amount := it.Remaining()
		if override, ok := sel.Override(it.ID); ok && override.LessThan(amount) {
			amount = override
		}
		alloc.Lines = append(alloc.Lines, AllocationLine{ItemID: it.ID, ItemName: it.Name, Amount: amount})
		alloc.Total = alloc.Total.Add(amount)
	}
	return alloc
}

// BuildCheckoutPayload freezes an Allocation into a CheckoutPayload.
// Fails with ErrEmptyAllocation when there is nothing to donate.
func BuildCheckoutPayload(req Request, alloc Allocation) (CheckoutPayload, error) {
	if alloc.IsEmpty() || !alloc.Total.IsPositive() {
		return CheckoutPayload{}, ErrEmptyAllocation
	}
	lines := make([]AllocationLine, len(alloc.Lines))
	copy(lines, alloc.Lines)
	return CheckoutPayload{
		SchemaVersion: PayloadSchemaVersion,
		RequestID:     req.ID,
		Lines:         lines,
		Total:         alloc.Total,
	}, nil
}

// Validate checks the structural integrity of a payload received across a
// process or page boundary. A payload that fails here was tampered with or
// produced by an incompatible writer; it must be rejected, never "repaired".
func (p CheckoutPayload) Validate() error {
	if p.SchemaVersion != PayloadSchemaVersion {
		return errors.Wrapf(errPayloadSchema, "unsupported schema version %d", p.SchemaVersion)
	}
	if p.RequestID == "" {
		return errors.Wrap(errPayloadSchema, "missing request id")
	}
	if len(p.Lines) == 0 {
		return ErrEmptyAllocation
	}
	seen := make(map[string]bool, len(p.Lines))
	total := decimal.Zero
	for _, line := range p.Lines {
		if line.ItemID == "" {
			return errors.Wrap(errPayloadSchema, "missing item id")
		}
		if seen[line.ItemID] {
			return errors.Wrapf(errPayloadSchema, "duplicate item %q", line.ItemID)
		}
		seen[line.ItemID] = true
		if !line.Amount.IsPositive() {
			return errors.Wrapf(errPayloadSchema, "non-positive amount for item %q", line.ItemID)
		}
		total = total.Add(line.Amount)
	}
	if !total.Equal(p.Total) {
		return errors.Wrapf(errPayloadSchema, "total %s does not match sum of items %s", p.Total, total)
	}
	return nil
}

func (p CheckoutPayload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	return data, errors.Wrap(err, "encoding checkout payload")
}

// DecodeCheckoutPayload parses and validates a serialized payload.
func DecodeCheckoutPayload(data []byte) (CheckoutPayload, error) {
	var p CheckoutPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return CheckoutPayload{}, errors.Wrap(errPayloadSchema, err.Error())
	}
	if err := p.Validate(); err != nil {
		return CheckoutPayload{}, err
	}
	return p, nil
}

// IsPayloadSchemaError reports whether err flags a malformed checkout payload.
func IsPayloadSchemaError(err error) bool {
	return errors.Cause(err) == errPayloadSchema
}

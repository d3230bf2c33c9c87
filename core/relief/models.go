package relief

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/reliefbridge/core"
)

func init() {
	// monetary amounts serialize as JSON numbers, not quoted strings
	decimal.MarshalJSONWithoutQuotes = true
}

// Priority is the fixed ordered urgency scale shared by Requests and Items.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var priorityRanks = map[Priority]int{
	PriorityCritical: 4,
	PriorityHigh:     3,
	PriorityMedium:   2,
	PriorityLow:      1,
}

func (p Priority) Valid() bool { return priorityRanks[p] > 0 }
func (p Priority) Rank() int   { return priorityRanks[p] }

type Status string

const (
	StatusActive    Status = "active"
	StatusFunded    Status = "funded"
	StatusDelivered Status = "delivered"
)

// Item is a single fundable line within a Request.
// Invariant: 0 <= Funded <= Cost; Funded never decreases.
type Item struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Quantity    int             `json:"quantity"`
	Unit        string          `json:"unit"`
	Priority    Priority        `json:"priority"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
	Funded      decimal.Decimal `json:"funded"`
}

// Remaining is the maximum fundable amount for this item at this point in time.
func (it Item) Remaining() decimal.Decimal {
	if rem := it.Cost.Sub(it.Funded); rem.IsPositive() {
		return rem
	}
	return decimal.Zero
}

func (it Item) FullyFunded() bool { return !it.Funded.LessThan(it.Cost) }

// Request is a victim's submission describing needed supplies, decomposed
// into Items. Items keep their insertion order; it is the display order.
type Request struct {
	ID          string    `json:"id"`
	VictimID    string    `json:"victim_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Disaster    string    `json:"disaster"`
	Urgency     Priority  `json:"urgency"`
	Status      Status    `json:"status"`
	DonorsCount int       `json:"donors_count"`
	Items       []Item    `json:"items"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// TotalCost is always the sum of the items' costs; it is never stored.
func (r Request) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, it := range r.Items {
		total = total.Add(it.Cost)
	}
	return total
}

// FundedAmount is always the sum of the items' funded amounts; it is never stored.
func (r Request) FundedAmount() decimal.Decimal {
	total := decimal.Zero
	for _, it := range r.Items {
		total = total.Add(it.Funded)
	}
	return total
}

func (r Request) FullyFunded() bool {
	for _, it := range r.Items {
		if !it.FullyFunded() {
			return false
		}
	}
	return true
}

// Item looks an item up by ID.
func (r Request) Item(id string) (Item, bool) {
	for _, it := range r.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// NewItem contains information needed to add an Item to a new Request.
type NewItem struct {
	Name        string          `json:"name" validate:"required"`
	Category    string          `json:"category"`
	Quantity    int             `json:"quantity" validate:"omitempty,min=1"`
	Unit        string          `json:"unit"`
	Priority    Priority        `json:"priority" validate:"omitempty,oneof=critical high medium low"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
}

// NewRequest contains information needed to create a new Request.
type NewRequest struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	Location    string    `json:"location" validate:"required"`
	Disaster    string    `json:"disaster" validate:"required"`
	Urgency     Priority  `json:"urgency" validate:"omitempty,oneof=critical high medium low"`
	Items       []NewItem `json:"items" validate:"required,min=1,dive"`
}

func (nr *NewRequest) Validate(validate *validator.Validate) error {
	nr.Title = core.CleanString(nr.Title)
	nr.Location = core.CleanString(nr.Location)
	nr.Disaster = core.CleanString(nr.Disaster)
	if nr.Urgency == "" {
		nr.Urgency = PriorityHigh
	}
	for i := range nr.Items {
		nr.Items[i].Name = core.CleanString(nr.Items[i].Name)
		if nr.Items[i].Priority == "" {
			nr.Items[i].Priority = PriorityMedium
		}
		if nr.Items[i].Quantity == 0 {
			nr.Items[i].Quantity = 1
		}
	}
	return validate.Struct(nr)
}

// QueryFilter narrows down Request listings; fields combine with AND.
type QueryFilter struct {
	Search      string    `query:"search"`
	Disaster    string    `query:"disaster"`
	Urgency     Priority  `query:"urgency"`
	Status      Status    `query:"status"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Disaster == "" && qf.Urgency == "" && qf.Status == "" &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Disaster = core.CleanString(qf.Disaster)
}

var (
	itemCostTag  = "itemcost"
	itemCostText = "cost must be greater than 0"
)

// InitValidators registers the relief domain's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(newItemStructValidation, NewItem{})
	core.RegisterCustomTranslation(validate, translator, itemCostTag, itemCostText)
}

// newItemStructValidation checks constraints the tag validators cannot
// express on decimal fields.
func newItemStructValidation(sl validator.StructLevel) {
	ni := sl.Current().Interface().(NewItem)
	if !ni.Cost.IsPositive() {
		sl.ReportError(ni.Cost, "cost", "Cost", itemCostTag, "")
	}
}

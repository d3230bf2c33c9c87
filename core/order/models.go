package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusInTransit Status = "in-transit"
	StatusDelivered Status = "delivered"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInTransit, StatusDelivered:
		return true
	}
	return false
}

type (
	// OrderItem is a procurement line copied from the funded request.
	OrderItem struct {
		Name     string `json:"name"`
		Quantity int    `json:"quantity"`
		Unit     string `json:"unit,omitempty"`
	}

	// Order is a fulfillment job assigned to a vendor once a request is
	// funded. Amounts are frozen at assignment time.
	Order struct {
		ID               string          `json:"id"`
		VendorID         string          `json:"vendor_id"`
		RequestID        string          `json:"request_id"`
		RequestTitle     string          `json:"request_title"`
		Location         string          `json:"location"`
		Items            []OrderItem     `json:"items"`
		TotalAmount      decimal.Decimal `json:"total_amount"`
		AdvancePayment   decimal.Decimal `json:"advance_payment"`
		Status           Status          `json:"status"`
		TrackingNumber   string          `json:"tracking_number,omitempty"`
		OrderDate        time.Time       `json:"order_date"`
		DeliveryDeadline time.Time       `json:"delivery_deadline"`
	}
)

// RemainingPayment is the balance due to the vendor on delivery.
func (o Order) RemainingPayment() decimal.Decimal {
	rem := o.TotalAmount.Sub(o.AdvancePayment)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

func (o Order) Delivered() bool { return o.Status == StatusDelivered }

package core

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrPaymentDeclined = errors.New("payment declined")
	ErrPaymentCanceled = errors.New("payment canceled")
)

type (
	// Card carries the fields collected by the checkout form. Numbers are
	// passed straight to the gateway and never stored.
	Card struct {
		Number     string `json:"card_number" validate:"required,numeric,min=12,max=19"`
		HolderName string `json:"card_name" validate:"required"`
		ExpiryDate string `json:"expiry_date" validate:"required"`
		CVV        string `json:"cvv" validate:"required,numeric,min=3,max=4"`
	}

	// PaymentGateway is any service that can charge a card. A nil error means
	// the charge was confirmed; no charge may be in flight after an error.
	PaymentGateway interface {
		Charge(ctx context.Context, card Card, amount decimal.Decimal, reference string) error
	}
)

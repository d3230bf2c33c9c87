// Package paymentsvc provides payment gateway implementations.
// Only a simulated gateway exists for now; a real processor plugs in behind
// core.PaymentGateway.
package paymentsvc

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/reliefbridge/core"
)

// declinedTestCard always fails, for exercising the decline path end to end.
const declinedTestCard = "4000000000000002"

type (
	// ChargeRecord is kept for inspection in tests and the dev console.
	ChargeRecord struct {
		CardNumber string
		Amount     decimal.Decimal
		Reference  string
		ChargedAt  time.Time
	}

	dummyGateway struct {
		delay  time.Duration
		logger core.Logger

		mu      sync.Mutex
		charges []ChargeRecord
	}
)

var _ core.PaymentGateway = (*dummyGateway)(nil)

func NewDummyGateway(delay time.Duration, logger core.Logger) *dummyGateway {
	return &dummyGateway{delay: delay, logger: logger}
}

func (gw *dummyGateway) Charge(ctx context.Context, card core.Card, amount decimal.Decimal, reference string) error {
	if !amount.IsPositive() {
		return core.ErrPaymentDeclined
	}

	// simulate processor latency, honoring cancellation
	if gw.delay > 0 {
		t := time.NewTimer(gw.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return core.ErrPaymentCanceled
		case <-t.C:
		}
	}

	if card.Number == declinedTestCard {
		return core.ErrPaymentDeclined
	}

	gw.mu.Lock()
	gw.charges = append(gw.charges, ChargeRecord{
		CardNumber: card.Number,
		Amount:     amount,
		Reference:  reference,
		ChargedAt:  time.Now(),
	})
	gw.mu.Unlock()

	gw.logger.Info("payment charged", "amount", amount.String(), "reference", reference)
	return nil
}

// Charges returns a snapshot of all successful charges.
func (gw *dummyGateway) Charges() []ChargeRecord {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return append([]ChargeRecord(nil), gw.charges...)
}

package order

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/reliefbridge/core/relief"
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Warn(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Fatal(msg string, args ...interface{}) {}

type repoMock struct {
	mu     sync.Mutex
	orders map[string]Order
}

var _ Repository = (*repoMock)(nil)

func newRepoMock() *repoMock { return &repoMock{orders: make(map[string]Order)} }

func (r *repoMock) CreateOrder(ctx context.Context, ord Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[ord.ID] = ord
	return nil
}

func (r *repoMock) GetOrder(ctx context.Context, id string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ord, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return ord, nil
}

func (r *repoMock) QueryOrdersByVendor(ctx context.Context, vendorID string) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, ord := range r.orders {
		if ord.VendorID == vendorID {
			out = append(out, ord)
		}
	}
	return out, nil
}

func (r *repoMock) UpdateOrder(ctx context.Context, ord Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[ord.ID]; !ok {
		return ErrNotFound
	}
	r.orders[ord.ID] = ord
	return nil
}

// reliefSvcMock records MarkDelivered calls.
type reliefSvcMock struct {
	relief.Service
	delivered []string
}

func (m *reliefSvcMock) MarkDelivered(ctx context.Context, id string) error {
	m.delivered = append(m.delivered, id)
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fundedRequest() relief.Request {
	return relief.Request{
		ID:       "req1",
		VictimID: "vic1",
		Title:    "Flood relief for Kalemie",
		Location: "Kalemie",
		Status:   relief.StatusFunded,
		Items: []relief.Item{
			{ID: "food", Name: "Food ration", Quantity: 20, Unit: "box", Cost: dec("2000"), Funded: dec("2000")},
			{ID: "meds", Name: "First aid kit", Quantity: 5, Cost: dec("300"), Funded: dec("300")},
		},
	}
}

func TestAssignFromRequest(t *testing.T) {
	ctx := context.Background()
	repo := newRepoMock()
	svc := NewService(repo, &reliefSvcMock{}, nopLogger{})

	req := fundedRequest()
	ord, err := svc.AssignFromRequest(ctx, req, "vendor1")
	require.NoError(t, err)
	assert.NotEmpty(t, ord.ID)
	assert.Equal(t, StatusPending, ord.Status)
	assert.Equal(t, req.ID, ord.RequestID)
	require.Len(t, ord.Items, 2)
	assert.True(t, ord.TotalAmount.Equal(dec("2300")))
	assert.True(t, ord.AdvancePayment.Equal(dec("1150")))
	assert.True(t, ord.RemainingPayment().Equal(dec("1150")))
	assert.True(t, ord.DeliveryDeadline.After(ord.OrderDate))

	got, err := svc.QueryByVendor(ctx, "vendor1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ord.ID, got[0].ID)
}

func TestAssignFromRequestRejectsUnfunded(t *testing.T) {
	svc := NewService(newRepoMock(), &reliefSvcMock{}, nopLogger{})
	req := fundedRequest()
	req.Items[0].Funded = dec("10")
	_, err := svc.AssignFromRequest(context.Background(), req, "vendor1")
	assert.Error(t, err)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (Service, *reliefSvcMock, Order) {
		repo := newRepoMock()
		reliefSvc := &reliefSvcMock{}
		svc := NewService(repo, reliefSvc, nopLogger{})
		ord, err := svc.AssignFromRequest(ctx, fundedRequest(), "vendor1")
		require.NoError(t, err)
		return svc, reliefSvc, ord
	}

	t.Run("pending to in-transit with tracking", func(t *testing.T) {
		svc, reliefSvc, ord := setup(t)
		got, err := svc.UpdateStatus(ctx, ord.ID, StatusInTransit, "TRK-123")
		require.NoError(t, err)
		assert.Equal(t, StatusInTransit, got.Status)
		assert.Equal(t, "TRK-123", got.TrackingNumber)
		assert.Empty(t, reliefSvc.delivered)
	})

	t.Run("delivery propagates to the relief request", func(t *testing.T) {
		svc, reliefSvc, ord := setup(t)
		got, err := svc.UpdateStatus(ctx, ord.ID, StatusDelivered, "")
		require.NoError(t, err)
		assert.True(t, got.Delivered())
		assert.Equal(t, []string{ord.RequestID}, reliefSvc.delivered)
	})

	t.Run("cannot move backwards", func(t *testing.T) {
		svc, _, ord := setup(t)
		_, err := svc.UpdateStatus(ctx, ord.ID, StatusDelivered, "")
		require.NoError(t, err)
		_, err = svc.UpdateStatus(ctx, ord.ID, StatusPending, "")
		assert.Equal(t, ErrInvalidTransition, errors.Cause(err))
	})

	t.Run("unknown status", func(t *testing.T) {
		svc, _, ord := setup(t)
		_, err := svc.UpdateStatus(ctx, ord.ID, Status("lost"), "")
		assert.Equal(t, ErrInvalidStatus, errors.Cause(err))
	})

	t.Run("unknown order", func(t *testing.T) {
		svc, _, _ := setup(t)
		_, err := svc.UpdateStatus(ctx, "nope", StatusInTransit, "")
		assert.Equal(t, ErrNotFound, errors.Cause(err))
	})
}

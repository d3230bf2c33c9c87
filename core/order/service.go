package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/reliefbridge/core"
	"github.com/trezcool/reliefbridge/core/relief"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

var nowFunc func() time.Time = time.Now

// deliveryWindow is how long a vendor has to fulfill from assignment.
const deliveryWindow = 7 * 24 * time.Hour

// advanceRate is the share of the order total paid to the vendor up front.
var advanceRate = decimal.NewFromFloat(0.5)

type (
	Repository interface {
		CreateOrder(ctx context.Context, ord Order) error
		GetOrder(ctx context.Context, id string) (Order, error)
		QueryOrdersByVendor(ctx context.Context, vendorID string) ([]Order, error)
		UpdateOrder(ctx context.Context, ord Order) error
	}

	Service interface {
		// AssignFromRequest turns a fully funded relief request into a
		// procurement order for a vendor.
		AssignFromRequest(ctx context.Context, req relief.Request, vendorID string) (Order, error)
		GetByID(ctx context.Context, id string) (Order, error)
		QueryByVendor(ctx context.Context, vendorID string) ([]Order, error)
		UpdateStatus(ctx context.Context, id string, status Status, trackingNumber string) (Order, error)
	}

	service struct {
		repo      Repository
		reliefSvc relief.Service
		logger    core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, reliefSvc relief.Service, logger core.Logger) Service {
	return &service{repo: repo, reliefSvc: reliefSvc, logger: logger}
}

func (svc *service) AssignFromRequest(ctx context.Context, req relief.Request, vendorID string) (Order, error) {
	if !req.FullyFunded() {
		return Order{}, errors.New("request is not fully funded")
	}
	now := nowFunc()
	ord := Order{
		ID:               uuid.New().String(),
		VendorID:         vendorID,
		RequestID:        req.ID,
		RequestTitle:     req.Title,
		Location:         req.Location,
		Items:            make([]OrderItem, 0, len(req.Items)),
		TotalAmount:      req.TotalCost(),
		Status:           StatusPending,
		OrderDate:        now,
		DeliveryDeadline: now.Add(deliveryWindow),
	}
	ord.AdvancePayment = ord.TotalAmount.Mul(advanceRate).Round(2)
	for _, it := range req.Items {
		ord.Items = append(ord.Items, OrderItem{Name: it.Name, Quantity: it.Quantity, Unit: it.Unit})
	}
	if err := svc.repo.CreateOrder(ctx, ord); err != nil {
		return Order{}, errors.Wrap(err, "creating order")
	}
	return ord, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Order, error) {
	return svc.repo.GetOrder(ctx, id)
}

func (svc *service) QueryByVendor(ctx context.Context, vendorID string) ([]Order, error) {
	return svc.repo.QueryOrdersByVendor(ctx, vendorID)
}

// UpdateStatus moves an order forward through pending -> in-transit ->
// delivered. Delivery also flips the underlying relief request.
func (svc *service) UpdateStatus(ctx context.Context, id string, status Status, trackingNumber string) (Order, error) {
	if !status.Valid() {
		return Order{}, errors.Wrapf(ErrInvalidStatus, "%q", status)
	}
	ord, err := svc.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !transitionAllowed(ord.Status, status) {
		return Order{}, errors.Wrapf(ErrInvalidTransition, "%s -> %s", ord.Status, status)
	}
	ord.Status = status
	if trackingNumber != "" {
		ord.TrackingNumber = core.CleanString(trackingNumber)
	}
	if err := svc.repo.UpdateOrder(ctx, ord); err != nil {
		return Order{}, errors.Wrap(err, "updating order")
	}
	if status == StatusDelivered {
		if err := svc.reliefSvc.MarkDelivered(ctx, ord.RequestID); err != nil {
			svc.logger.Error("marking request delivered", "request", ord.RequestID, "error", err)
		}
	}
	return ord, nil
}

func transitionAllowed(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusInTransit || to == StatusDelivered
	case StatusInTransit:
		return to == StatusDelivered
	}
	return false
}

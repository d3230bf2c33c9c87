package relief

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/reliefbridge/core"
)

var ErrRequestNotFound = errors.New("request not found")

// nowFunc abstracts time for tests.
var nowFunc func() time.Time = time.Now

const (
	// WarnPartialCommit: other donors funded part of the item between payload
	// creation and commit; only the remaining gap was applied.
	WarnPartialCommit = "partial"
	// WarnAlreadyFunded: the item reached its cost before this commit; nothing
	// was applied for it.
	WarnAlreadyFunded = "already-funded"
)

type (
	// FundingDelta records how much of a payload line was actually applied.
	FundingDelta struct {
		ItemID  string          `json:"item_id"`
		Applied decimal.Decimal `json:"applied"`
	}

	// CommitWarning discloses a divergence between what the donor confirmed
	// and what could still be applied at commit time.
	CommitWarning struct {
		ItemID    string          `json:"item_id"`
		ItemName  string          `json:"item_name"`
		Kind      string          `json:"kind"`
		Requested decimal.Decimal `json:"requested"`
		Applied   decimal.Decimal `json:"applied"`
	}

	// CommitResult is the outcome of committing a checkout payload.
	CommitResult struct {
		RequestID      string          `json:"request_id"`
		Deltas         []FundingDelta  `json:"deltas"`
		Warnings       []CommitWarning `json:"warnings,omitempty"`
		TotalRequested decimal.Decimal `json:"total_requested"`
		TotalApplied   decimal.Decimal `json:"total_applied"`
	}

	Repository interface {
		CreateRequest(ctx context.Context, req Request) error
		GetRequest(ctx context.Context, id string) (Request, error)
		QueryAllRequests(ctx context.Context) ([]Request, error)
		FilterRequests(ctx context.Context, filter QueryFilter) ([]Request, error)
		QueryRequestsByVictim(ctx context.Context, victimID string) ([]Request, error)
		// AtomicIncreaseFunded raises an item's funded amount by at most
		// `amount`, never past its cost, and returns the portion applied.
		// The whole read-clamp-write must be a single atomic step.
		AtomicIncreaseFunded(ctx context.Context, itemID string, amount decimal.Decimal) (decimal.Decimal, error)
		UpdateRequestStatus(ctx context.Context, id string, status Status) error
		IncrementDonorsCount(ctx context.Context, id string) error
	}

	// Stats summarizes platform-wide relief activity for the admin dashboard.
	Stats struct {
		RequestsTotal     int             `json:"requests_total"`
		RequestsActive    int             `json:"requests_active"`
		RequestsFunded    int             `json:"requests_funded"`
		RequestsDelivered int             `json:"requests_delivered"`
		AmountNeeded      decimal.Decimal `json:"amount_needed"`
		AmountFunded      decimal.Decimal `json:"amount_funded"`
		Donors            int             `json:"donors"`
	}

	Service interface {
		Create(ctx context.Context, victimID string, nr NewRequest) (Request, error)
		GetByID(ctx context.Context, id string) (Request, error)
		QueryAll(ctx context.Context) ([]Request, error)
		Filter(ctx context.Context, filter QueryFilter) ([]Request, error)
		QueryByVictim(ctx context.Context, victimID string) ([]Request, error)
		MarkDelivered(ctx context.Context, id string) error
		Commit(ctx context.Context, payload CheckoutPayload) (CommitResult, error)
		Stats(ctx context.Context) (Stats, error)
	}

	service struct {
		repo   Repository
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, logger core.Logger) Service {
	return &service{repo: repo, logger: logger}
}

func (svc *service) Create(ctx context.Context, victimID string, nr NewRequest) (Request, error) {
	now := nowFunc()
	req := Request{
		ID:          uuid.New().String(),
		VictimID:    victimID,
		Title:       nr.Title,
		Description: nr.Description,
		Location:    nr.Location,
		Disaster:    nr.Disaster,
		Urgency:     nr.Urgency,
		Status:      StatusActive,
		Items:       make([]Item, 0, len(nr.Items)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, ni := range nr.Items {
		req.Items = append(req.Items, Item{
			ID:          uuid.New().String(),
			Name:        ni.Name,
			Category:    ni.Category,
			Quantity:    ni.Quantity,
			Unit:        ni.Unit,
			Priority:    ni.Priority,
			Description: ni.Description,
			Cost:        ni.Cost,
			Funded:      decimal.Zero,
		})
	}
	if err := svc.repo.CreateRequest(ctx, req); err != nil {
		return Request{}, errors.Wrap(err, "creating request")
	}
	return req, nil
}

func (svc *service) GetByID(ctx context.Context, id string) (Request, error) {
	return svc.repo.GetRequest(ctx, id)
}

func (svc *service) QueryAll(ctx context.Context) ([]Request, error) {
	return svc.repo.QueryAllRequests(ctx)
}

func (svc *service) Filter(ctx context.Context, filter QueryFilter) ([]Request, error) {
	return svc.repo.FilterRequests(ctx, filter)
}

func (svc *service) QueryByVictim(ctx context.Context, victimID string) ([]Request, error) {
	return svc.repo.QueryRequestsByVictim(ctx, victimID)
}

func (svc *service) MarkDelivered(ctx context.Context, id string) error {
	if _, err := svc.repo.GetRequest(ctx, id); err != nil {
		return err
	}
	return svc.repo.UpdateRequestStatus(ctx, id, StatusDelivered)
}

// Commit applies a confirmed checkout payload to live funded state. The
// payload is trusted arithmetic but stale data: items may have been funded
// further (or fully) since it was built, so each line is clamped atomically
// against the item's current gap and any shortfall is disclosed as a warning
// rather than failing the whole donation.
func (svc *service) Commit(ctx context.Context, payload CheckoutPayload) (CommitResult, error) {
	if err := payload.Validate(); err != nil {
		return CommitResult{}, err
	}
	req, err := svc.repo.GetRequest(ctx, payload.RequestID)
	if err != nil {
		return CommitResult{}, err
	}
	// every payload line must still reference an item of this request
	for _, line := range payload.Lines {
		if _, ok := req.Item(line.ItemID); !ok {
			return CommitResult{}, errors.Wrapf(ErrItemNotFound, "item %q", line.ItemID)
		}
	}

	res := CommitResult{
		RequestID:      payload.RequestID,
		Deltas:         make([]FundingDelta, 0, len(payload.Lines)),
		TotalRequested: payload.Total,
		TotalApplied:   decimal.Zero,
	}
	for _, line := range payload.Lines {
		applied, err := svc.repo.AtomicIncreaseFunded(ctx, line.ItemID, line.Amount)
		if err != nil {
			return CommitResult{}, errors.Wrapf(err, "funding item %q", line.ItemID)
		}
		res.Deltas = append(res.Deltas, FundingDelta{ItemID: line.ItemID, Applied: applied})
		res.TotalApplied = res.TotalApplied.Add(applied)

		if applied.LessThan(line.Amount) {
			kind := WarnPartialCommit
			if applied.IsZero() {
				kind = WarnAlreadyFunded
			}
			res.Warnings = append(res.Warnings, CommitWarning{
				ItemID:    line.ItemID,
				ItemName:  line.ItemName,
				Kind:      kind,
				Requested: line.Amount,
				Applied:   applied,
			})
		}
	}

	if res.TotalApplied.IsPositive() {
		if err := svc.repo.IncrementDonorsCount(ctx, payload.RequestID); err != nil {
			svc.logger.Error("incrementing donors count", "request", payload.RequestID, "error", err)
		}
	}
	svc.refreshStatus(ctx, payload.RequestID)
	return res, nil
}

// refreshStatus flips an active request to funded once every item reached its
// cost. Best effort; funded amounts are the source of truth, the status is a
// browsing convenience.
func (svc *service) refreshStatus(ctx context.Context, id string) {
	req, err := svc.repo.GetRequest(ctx, id)
	if err != nil {
		svc.logger.Error("refreshing request status", "request", id, "error", err)
		return
	}
	if req.Status == StatusActive && req.FullyFunded() {
		if err := svc.repo.UpdateRequestStatus(ctx, id, StatusFunded); err != nil {
			svc.logger.Error("refreshing request status", "request", id, "error", err)
		}
	}
}

func (svc *service) Stats(ctx context.Context) (Stats, error) {
	reqs, err := svc.repo.QueryAllRequests(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{AmountNeeded: decimal.Zero, AmountFunded: decimal.Zero}
	for _, req := range reqs {
		stats.RequestsTotal++
		switch req.Status {
		case StatusActive:
			stats.RequestsActive++
		case StatusFunded:
			stats.RequestsFunded++
		case StatusDelivered:
			stats.RequestsDelivered++
		}
		stats.AmountNeeded = stats.AmountNeeded.Add(req.TotalCost())
		stats.AmountFunded = stats.AmountFunded.Add(req.FundedAmount())
		stats.Donors += req.DonorsCount
	}
	return stats, nil
}

// Message renders a warning for display to the donor.
func (w CommitWarning) Message() string {
	switch w.Kind {
	case WarnAlreadyFunded:
		return fmt.Sprintf("%s was fully funded by other donors before your donation was processed; %s was not applied to it", w.ItemName, w.Requested)
	default:
		return fmt.Sprintf("%s was partially funded by other donors in the meantime; %s of your %s was applied", w.ItemName, w.Applied, w.Requested)
	}
}

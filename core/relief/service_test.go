package relief

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Warn(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Fatal(msg string, args ...interface{}) {}

// repoMock is a minimal in-memory Repository with the same clamping contract
// as the real stores.
type repoMock struct {
	mu       sync.Mutex
	requests map[string]*Request
}

var _ Repository = (*repoMock)(nil)

func newRepoMock(reqs ...Request) *repoMock {
	repo := &repoMock{requests: make(map[string]*Request)}
	for i := range reqs {
		req := reqs[i]
		repo.requests[req.ID] = &req
	}
	return repo
}

func (r *repoMock) CreateRequest(ctx context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = &req
	return nil
}

func (r *repoMock) GetRequest(ctx context.Context, id string) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return Request{}, ErrRequestNotFound
	}
	cp := *req
	cp.Items = append([]Item(nil), req.Items...)
	return cp, nil
}

func (r *repoMock) QueryAllRequests(ctx context.Context) ([]Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reqs := make([]Request, 0, len(r.requests))
	for _, req := range r.requests {
		reqs = append(reqs, *req)
	}
	return reqs, nil
}

func (r *repoMock) FilterRequests(ctx context.Context, filter QueryFilter) ([]Request, error) {
	return r.QueryAllRequests(ctx)
}

func (r *repoMock) QueryRequestsByVictim(ctx context.Context, victimID string) ([]Request, error) {
	reqs, _ := r.QueryAllRequests(ctx)
	var out []Request
	for _, req := range reqs {
		if req.VictimID == victimID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *repoMock) AtomicIncreaseFunded(ctx context.Context, itemID string, amount decimal.Decimal) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		for i := range req.Items {
			if req.Items[i].ID != itemID {
				continue
			}
			gap := req.Items[i].Cost.Sub(req.Items[i].Funded)
			if gap.IsNegative() {
				gap = decimal.Zero
			}
			applied := amount
			if gap.LessThan(applied) {
				applied = gap
			}
			req.Items[i].Funded = req.Items[i].Funded.Add(applied)
			return applied, nil
		}
	}
	return decimal.Zero, errors.Wrapf(ErrItemNotFound, "item %q", itemID)
}

func (r *repoMock) UpdateRequestStatus(ctx context.Context, id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	req.Status = status
	return nil
}

func (r *repoMock) IncrementDonorsCount(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	req.DonorsCount++
	return nil
}

func payloadFor(t *testing.T, req Request, itemIDs ...string) CheckoutPayload {
	t.Helper()
	sel := NewSelection(req)
	for _, id := range itemIDs {
		require.NoError(t, sel.Toggle(id, true))
	}
	payload, err := BuildCheckoutPayload(req, ComputeAllocation(req, sel))
	require.NoError(t, err)
	return payload
}

func TestServiceCreate(t *testing.T) {
	ctx := context.Background()
	repo := newRepoMock()
	svc := NewService(repo, nopLogger{})

	nr := NewRequest{
		Title:    "Earthquake shelter",
		Location: "Goma",
		Disaster: "earthquake",
		Urgency:  PriorityCritical,
		Items: []NewItem{
			{Name: "Tarpaulin", Category: "shelter", Quantity: 4, Priority: PriorityHigh, Cost: dec("120")},
			{Name: "Blankets", Category: "shelter", Quantity: 10, Priority: PriorityMedium, Cost: dec("80")},
		},
	}
	req, err := svc.Create(ctx, "vic1", nr)
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, StatusActive, req.Status)
	require.Len(t, req.Items, 2)
	for _, it := range req.Items {
		assert.NotEmpty(t, it.ID)
		assert.True(t, it.Funded.IsZero())
	}
	assert.True(t, req.TotalCost().Equal(dec("200")))

	got, err := svc.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
}

func TestServiceCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("clean commit applies in full", func(t *testing.T) {
		req := testRequest()
		repo := newRepoMock(req)
		svc := NewService(repo, nopLogger{})

		payload := payloadFor(t, req, "food", "meds")
		res, err := svc.Commit(ctx, payload)
		require.NoError(t, err)
		assert.True(t, res.TotalApplied.Equal(dec("1800")))
		assert.True(t, res.TotalApplied.Equal(res.TotalRequested))
		assert.Empty(t, res.Warnings)

		got, err := svc.GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.DonorsCount)
		food, _ := got.Item("food")
		assert.True(t, food.FullyFunded())
	})

	t.Run("stale payload is clamped with a warning", func(t *testing.T) {
		req := testRequest()
		repo := newRepoMock(req)
		svc := NewService(repo, nopLogger{})

		payload := payloadFor(t, req, "food")
		// another donor funds 1000 of the same item in the meantime
		_, err := repo.AtomicIncreaseFunded(ctx, "food", dec("1000"))
		require.NoError(t, err)

		res, err := svc.Commit(ctx, payload)
		require.NoError(t, err)
		assert.True(t, res.TotalApplied.Equal(dec("500")))
		require.Len(t, res.Warnings, 1)
		assert.Equal(t, WarnPartialCommit, res.Warnings[0].Kind)
		assert.True(t, res.Warnings[0].Requested.Equal(dec("1500")))
		assert.True(t, res.Warnings[0].Applied.Equal(dec("500")))

		got, _ := svc.GetByID(ctx, req.ID)
		food, _ := got.Item("food")
		assert.True(t, food.Funded.Equal(food.Cost), "funded must never exceed cost")
	})

	t.Run("replayed payload applies nothing", func(t *testing.T) {
		req := testRequest()
		repo := newRepoMock(req)
		svc := NewService(repo, nopLogger{})

		payload := payloadFor(t, req, "food")
		_, err := svc.Commit(ctx, payload)
		require.NoError(t, err)

		res, err := svc.Commit(ctx, payload)
		require.NoError(t, err)
		assert.True(t, res.TotalApplied.IsZero())
		require.Len(t, res.Warnings, 1)
		assert.Equal(t, WarnAlreadyFunded, res.Warnings[0].Kind)

		// donors count only moves when money was applied
		got, _ := svc.GetByID(ctx, req.ID)
		assert.Equal(t, 1, got.DonorsCount)
	})

	t.Run("request becomes funded once every item reaches cost", func(t *testing.T) {
		req := testRequest()
		repo := newRepoMock(req)
		svc := NewService(repo, nopLogger{})

		payload := payloadFor(t, req, "food", "meds")
		_, err := svc.Commit(ctx, payload)
		require.NoError(t, err)

		got, _ := svc.GetByID(ctx, req.ID)
		assert.Equal(t, StatusFunded, got.Status)
		assert.True(t, got.FullyFunded())
	})

	t.Run("tampered payload is rejected before any write", func(t *testing.T) {
		req := testRequest()
		repo := newRepoMock(req)
		svc := NewService(repo, nopLogger{})

		payload := payloadFor(t, req, "food")
		payload.Total = dec("1")
		_, err := svc.Commit(ctx, payload)
		require.Error(t, err)
		assert.True(t, IsPayloadSchemaError(err))

		got, _ := svc.GetByID(ctx, req.ID)
		food, _ := got.Item("food")
		assert.True(t, food.Funded.Equal(dec("500")))
	})

	t.Run("payload referencing a foreign item is rejected", func(t *testing.T) {
		req := testRequest()
		repo := newRepoMock(req)
		svc := NewService(repo, nopLogger{})

		payload := payloadFor(t, req, "food")
		payload.Lines[0].ItemID = "other-item"
		_, err := svc.Commit(ctx, payload)
		assert.Equal(t, ErrItemNotFound, errors.Cause(err))
	})

	t.Run("unknown request", func(t *testing.T) {
		req := testRequest()
		repo := newRepoMock()
		svc := NewService(repo, nopLogger{})

		payload := payloadFor(t, req, "food")
		_, err := svc.Commit(ctx, payload)
		assert.Equal(t, ErrRequestNotFound, errors.Cause(err))
	})
}

func TestServiceCommitConcurrent(t *testing.T) {
	ctx := context.Background()
	req := testRequest()
	repo := newRepoMock(req)
	svc := NewService(repo, nopLogger{})

	// ten donors race with identical payloads for the same 1500 gap
	const donors = 10
	payload := payloadFor(t, req, "food")

	applied := make([]decimal.Decimal, donors)
	var wg sync.WaitGroup
	for i := 0; i < donors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Commit(ctx, payload)
			assert.NoError(t, err)
			applied[i] = res.TotalApplied
		}(i)
	}
	wg.Wait()

	sum := decimal.Zero
	for _, a := range applied {
		sum = sum.Add(a)
	}
	assert.True(t, sum.Equal(dec("1500")), "applied total %s, want exactly the gap", sum)

	got, _ := svc.GetByID(ctx, req.ID)
	food, _ := got.Item("food")
	assert.True(t, food.Funded.Equal(food.Cost))
}

func TestServiceStats(t *testing.T) {
	ctx := context.Background()
	active := testRequest()
	delivered := Request{
		ID: "req2", VictimID: "vic2", Title: "Fire relief", Status: StatusDelivered,
		DonorsCount: 3,
		Items:       []Item{{ID: "kit", Name: "Rebuild kit", Cost: dec("1000"), Funded: dec("1000")}},
	}
	repo := newRepoMock(active, delivered)
	svc := NewService(repo, nopLogger{})

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RequestsTotal)
	assert.Equal(t, 1, stats.RequestsActive)
	assert.Equal(t, 1, stats.RequestsDelivered)
	assert.True(t, stats.AmountNeeded.Equal(dec("3800")))
	assert.True(t, stats.AmountFunded.Equal(dec("2000")))
	assert.Equal(t, 3, stats.Donors)
}

func TestServiceMarkDelivered(t *testing.T) {
	ctx := context.Background()
	req := testRequest()
	repo := newRepoMock(req)
	svc := NewService(repo, nopLogger{})

	require.NoError(t, svc.MarkDelivered(ctx, req.ID))
	got, _ := svc.GetByID(ctx, req.ID)
	assert.Equal(t, StatusDelivered, got.Status)

	err := svc.MarkDelivered(ctx, "nope")
	assert.Equal(t, ErrRequestNotFound, errors.Cause(err))
}

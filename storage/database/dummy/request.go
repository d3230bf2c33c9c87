package dummydb

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/trezcool/reliefbridge/core/relief"
)

type requestRepository struct {
	db *requestTable
}

var _ relief.Repository = (*requestRepository)(nil) // interface compliance check

func NewRequestRepository(db *DB) relief.Repository {
	return &requestRepository{db: db.request}
}

func (repo *requestRepository) query() []relief.Request {
	reqs := make([]relief.Request, 0, len(repo.db.table))
	for _, r := range repo.db.table {
		reqs = append(reqs, copyRequest(r))
	}
	return reqs
}

// copyRequest detaches the items slice so callers cannot mutate stored state.
func copyRequest(r *relief.Request) relief.Request {
	cp := *r
	cp.Items = append([]relief.Item(nil), r.Items...)
	return cp
}

func (repo *requestRepository) CreateRequest(ctx context.Context, req relief.Request) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	stored := copyRequest(&req)
	repo.db.table[req.ID] = &stored
	return nil
}

func (repo *requestRepository) GetRequest(ctx context.Context, id string) (relief.Request, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if req, ok := repo.db.table[id]; ok {
		return copyRequest(req), nil
	}
	return relief.Request{}, relief.ErrRequestNotFound
}

func (repo *requestRepository) QueryAllRequests(ctx context.Context) ([]relief.Request, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(), nil
}

func (repo *requestRepository) QueryRequestsByVictim(ctx context.Context, victimID string) ([]relief.Request, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var reqs []relief.Request
	for _, req := range repo.query() {
		if req.VictimID == victimID {
			reqs = append(reqs, req)
		}
	}
	return reqs, nil
}

func (repo *requestRepository) FilterRequests(ctx context.Context, filter relief.QueryFilter) ([]relief.Request, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	reqs := repo.query()

	// requests with search keyword matching Title, Description or Location ?
	if filter.Search != "" {
		var filtered []relief.Request
		search := strings.ToLower(filter.Search)
		for _, r := range reqs {
			if strings.Contains(strings.ToLower(r.Title), search) ||
				strings.Contains(strings.ToLower(r.Description), search) ||
				strings.Contains(strings.ToLower(r.Location), search) {
				filtered = append(filtered, r)
			}
		}
		reqs = filtered
	}
	if reqs != nil && filter.Disaster != "" {
		var filtered []relief.Request
		for _, r := range reqs {
			if strings.EqualFold(r.Disaster, filter.Disaster) {
				filtered = append(filtered, r)
			}
		}
		reqs = filtered
	}
	if reqs != nil && filter.Urgency != "" {
		var filtered []relief.Request
		for _, r := range reqs {
			if r.Urgency == filter.Urgency {
				filtered = append(filtered, r)
			}
		}
		reqs = filtered
	}
	if reqs != nil && filter.Status != "" {
		var filtered []relief.Request
		for _, r := range reqs {
			if r.Status == filter.Status {
				filtered = append(filtered, r)
			}
		}
		reqs = filtered
	}
	if reqs != nil && !filter.CreatedFrom.IsZero() {
		var filtered []relief.Request
		timeUTC := filter.CreatedFrom.UTC()
		for _, r := range reqs {
			if r.CreatedAt.Equal(timeUTC) || r.CreatedAt.After(timeUTC) {
				filtered = append(filtered, r)
			}
		}
		reqs = filtered
	}
	if reqs != nil && !filter.CreatedTo.IsZero() {
		var filtered []relief.Request
		timeUTC := filter.CreatedTo.UTC()
		for _, r := range reqs {
			if r.CreatedAt.Before(timeUTC) || r.CreatedAt.Equal(timeUTC) {
				filtered = append(filtered, r)
			}
		}
		reqs = filtered
	}

	return reqs, nil
}

// AtomicIncreaseFunded raises the item's funded amount under the table write
// lock, clamping at cost. Concurrent committers each get the portion that was
// still available when their turn came.
func (repo *requestRepository) AtomicIncreaseFunded(ctx context.Context, itemID string, amount decimal.Decimal) (decimal.Decimal, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, req := range repo.db.table {
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
	return decimal.Zero, relief.ErrItemNotFound
}

func (repo *requestRepository) UpdateRequestStatus(ctx context.Context, id string, status relief.Status) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	req, ok := repo.db.table[id]
	if !ok {
		return relief.ErrRequestNotFound
	}
	req.Status = status
	return nil
}

func (repo *requestRepository) IncrementDonorsCount(ctx context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	req, ok := repo.db.table[id]
	if !ok {
		return relief.ErrRequestNotFound
	}
	req.DonorsCount++
	return nil
}

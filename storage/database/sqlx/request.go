package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/reliefbridge/core/relief"
)

type (
	requestRow struct {
		ID          string    `db:"id"`
		VictimID    string    `db:"victim_id"`
		Title       string    `db:"title"`
		Description string    `db:"description"`
		Location    string    `db:"location"`
		Disaster    string    `db:"disaster"`
		Urgency     string    `db:"urgency"`
		Status      string    `db:"status"`
		DonorsCount int       `db:"donors_count"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}

	itemRow struct {
		ID          string          `db:"id"`
		RequestID   string          `db:"request_id"`
		Position    int             `db:"position"`
		Name        string          `db:"name"`
		Category    string          `db:"category"`
		Quantity    int             `db:"quantity"`
		Unit        string          `db:"unit"`
		Priority    string          `db:"priority"`
		Description string          `db:"description"`
		Cost        decimal.Decimal `db:"cost"`
		Funded      decimal.Decimal `db:"funded"`
	}
)

func (r requestRow) toRequest() relief.Request {
	return relief.Request{
		ID:          r.ID,
		VictimID:    r.VictimID,
		Title:       r.Title,
		Description: r.Description,
		Location:    r.Location,
		Disaster:    r.Disaster,
		Urgency:     relief.Priority(r.Urgency),
		Status:      relief.Status(r.Status),
		DonorsCount: r.DonorsCount,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (r itemRow) toItem() relief.Item {
	return relief.Item{
		ID:          r.ID,
		Name:        r.Name,
		Category:    r.Category,
		Quantity:    r.Quantity,
		Unit:        r.Unit,
		Priority:    relief.Priority(r.Priority),
		Description: r.Description,
		Cost:        r.Cost,
		Funded:      r.Funded,
	}
}

const (
	requestColumns = `id, victim_id, title, description, location, disaster, urgency, status, donors_count, created_at, updated_at`
	itemColumns    = `id, request_id, position, name, category, quantity, unit, priority, description, cost, funded`
)

type requestRepository struct {
	db *sqlx.DB
}

var _ relief.Repository = (*requestRepository)(nil) // interface compliance check

func NewRequestRepository(db *sqlx.DB) relief.Repository {
	return &requestRepository{db: db}
}

func (repo *requestRepository) CreateRequest(ctx context.Context, req relief.Request) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	defer func() { _ = tx.Rollback() }()

	q := `
INSERT INTO request (id, victim_id, title, description, location, disaster, urgency, status, donors_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = tx.ExecContext(ctx, q,
		req.ID, req.VictimID, req.Title, req.Description, req.Location,
		req.Disaster, req.Urgency, req.Status, req.DonorsCount, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "inserting request")
	}

	itemQ := `
INSERT INTO request_item (id, request_id, position, name, category, quantity, unit, priority, description, cost, funded)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	for i, it := range req.Items {
		id := it.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx, itemQ,
			id, req.ID, i, it.Name, it.Category, it.Quantity, it.Unit,
			it.Priority, it.Description, it.Cost, it.Funded,
		)
		if err != nil {
			return errors.Wrap(err, "inserting request item")
		}
	}
	return errors.Wrap(tx.Commit(), "creating request")
}

func (repo *requestRepository) GetRequest(ctx context.Context, id string) (relief.Request, error) {
	var row requestRow
	q := fmt.Sprintf(`SELECT %s FROM request WHERE id = $1`, requestColumns)
	err := repo.db.GetContext(ctx, &row, q, id)
	if err == sql.ErrNoRows {
		return relief.Request{}, relief.ErrRequestNotFound
	}
	if err != nil {
		return relief.Request{}, errors.Wrap(err, "getting request")
	}

	req := row.toRequest()
	if err = repo.loadItems(ctx, map[string]*relief.Request{req.ID: &req}); err != nil {
		return relief.Request{}, err
	}
	return req, nil
}

func (repo *requestRepository) QueryAllRequests(ctx context.Context) ([]relief.Request, error) {
	q := fmt.Sprintf(`SELECT %s FROM request ORDER BY created_at DESC`, requestColumns)
	return repo.selectRequests(ctx, q)
}

func (repo *requestRepository) QueryRequestsByVictim(ctx context.Context, victimID string) ([]relief.Request, error) {
	q := fmt.Sprintf(`SELECT %s FROM request WHERE victim_id = $1 ORDER BY created_at DESC`, requestColumns)
	return repo.selectRequests(ctx, q, victimID)
}

func (repo *requestRepository) FilterRequests(ctx context.Context, filter relief.QueryFilter) ([]relief.Request, error) {
	var conds []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		conds = append(conds, fmt.Sprintf(`(title ILIKE %[1]s OR description ILIKE %[1]s OR location ILIKE %[1]s)`, p))
	}
	if filter.Disaster != "" {
		conds = append(conds, `LOWER(disaster) = LOWER(`+arg(filter.Disaster)+`)`)
	}
	if filter.Urgency != "" {
		conds = append(conds, `urgency = `+arg(string(filter.Urgency)))
	}
	if filter.Status != "" {
		conds = append(conds, `status = `+arg(string(filter.Status)))
	}
	if !filter.CreatedFrom.IsZero() {
		conds = append(conds, `created_at >= `+arg(filter.CreatedFrom.UTC()))
	}
	if !filter.CreatedTo.IsZero() {
		conds = append(conds, `created_at <= `+arg(filter.CreatedTo.UTC()))
	}

	q := fmt.Sprintf(`SELECT %s FROM request`, requestColumns)
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY created_at DESC`
	return repo.selectRequests(ctx, q, args...)
}

// AtomicIncreaseFunded performs the whole read-clamp-write in one statement so
// racing committers can never push funded past cost. The applied portion is
// the difference between the stored value before and after.
func (repo *requestRepository) AtomicIncreaseFunded(ctx context.Context, itemID string, amount decimal.Decimal) (decimal.Decimal, error) {
	q := `
WITH prev AS (
    SELECT funded FROM request_item WHERE id = $1 FOR UPDATE
)
UPDATE request_item ri
SET funded = LEAST(ri.funded + $2, ri.cost)
FROM prev
WHERE ri.id = $1
RETURNING ri.funded - prev.funded`

	var applied decimal.Decimal
	err := repo.db.GetContext(ctx, &applied, q, itemID, amount)
	if err == sql.ErrNoRows {
		return decimal.Zero, relief.ErrItemNotFound
	}
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "increasing funded amount")
	}
	return applied, nil
}

func (repo *requestRepository) UpdateRequestStatus(ctx context.Context, id string, status relief.Status) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE request SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return errors.Wrap(err, "updating request status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return relief.ErrRequestNotFound
	}
	return nil
}

func (repo *requestRepository) IncrementDonorsCount(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx,
		`UPDATE request SET donors_count = donors_count + 1, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "incrementing donors count")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return relief.ErrRequestNotFound
	}
	return nil
}

func (repo *requestRepository) selectRequests(ctx context.Context, q string, args ...interface{}) ([]relief.Request, error) {
	var rows []requestRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying requests")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	reqs := make([]relief.Request, 0, len(rows))
	byID := make(map[string]*relief.Request, len(rows))
	for _, r := range rows {
		reqs = append(reqs, r.toRequest())
		byID[r.ID] = &reqs[len(reqs)-1]
	}
	if err := repo.loadItems(ctx, byID); err != nil {
		return nil, err
	}
	return reqs, nil
}

func (repo *requestRepository) loadItems(ctx context.Context, byID map[string]*relief.Request) error {
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	q, args, err := sqlx.In(
		fmt.Sprintf(`SELECT %s FROM request_item WHERE request_id IN (?) ORDER BY request_id, position`, itemColumns), ids)
	if err != nil {
		return errors.Wrap(err, "loading request items")
	}

	var rows []itemRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "loading request items")
	}
	for _, r := range rows {
		req := byID[r.RequestID]
		req.Items = append(req.Items, r.toItem())
	}
	return nil
}

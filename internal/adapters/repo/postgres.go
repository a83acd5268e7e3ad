package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"stairs-live/internal/domain"
	"stairs-live/internal/infra/metrics"
)

// Postgres реализует хранилище пожертвований и цели на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ContributionStore = (*Postgres)(nil)
	_ domain.GoalRepo          = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}

const contributionColumns = `id::text, amount::text, user_id, user_email, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContribution(row rowScanner) (domain.Contribution, error) {
	var (
		c       domain.Contribution
		amount  string
		donorID sql.NullString
		email   sql.NullString
	)
	if err := row.Scan(&c.ID, &amount, &donorID, &email, &c.CreatedAt); err != nil {
		return domain.Contribution{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Contribution{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	c.Amount = parsed
	if donorID.Valid {
		id := donorID.String
		c.DonorID = &id
	}
	if email.Valid {
		e := email.String
		c.DonorEmail = &e
	}
	return c, nil
}

// CreateContribution сохраняет пожертвование. Идентификатор и время создания назначает БД.
func (p *Postgres) CreateContribution(ctx context.Context, params domain.NewContributionParams) (domain.Contribution, error) {
	if err := params.Validate(); err != nil {
		return domain.Contribution{}, err
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO donations (amount, user_id, user_email)
VALUES ($1::numeric, $2, $3)
RETURNING `+contributionColumns, params.Amount.String(), params.DonorID, params.DonorEmail)
	c, err := scanContribution(row)
	metrics.ObserveNetworkRequest("postgres", "donations_insert", "donations", start, err)
	if err != nil {
		return domain.Contribution{}, persistenceErr("insert donation", err)
	}
	return c, nil
}

// SumAllAmounts возвращает сумму всех пожертвований.
func (p *Postgres) SumAllAmounts(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var raw string
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::text FROM donations`).Scan(&raw)
	metrics.ObserveNetworkRequest("postgres", "donations_sum", "donations", start, err)
	if err != nil {
		return decimal.Zero, persistenceErr("sum donations", err)
	}
	total, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, persistenceErr("parse sum", err)
	}
	return total, nil
}

// ListRecent возвращает последние пожертвования, новые первыми.
func (p *Postgres) ListRecent(ctx context.Context, limit int) ([]domain.Contribution, error) {
	if limit <= 0 {
		limit = 10
	}
	return p.list(ctx, "donations_list_recent", `
SELECT `+contributionColumns+`
FROM donations
ORDER BY created_at DESC
LIMIT $1
`, limit)
}

// ListAll возвращает все пожертвования, новые первыми.
func (p *Postgres) ListAll(ctx context.Context) ([]domain.Contribution, error) {
	return p.list(ctx, "donations_list_all", `
SELECT `+contributionColumns+`
FROM donations
ORDER BY created_at DESC
`)
}

func (p *Postgres) list(ctx context.Context, op, query string, args ...any) ([]domain.Contribution, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", op, "donations", start, err)
	if err != nil {
		return nil, persistenceErr(op, err)
	}
	defer rows.Close()

	var out []domain.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, persistenceErr(op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr(op, err)
	}
	return out, nil
}

// GetGoal возвращает цель "default" или цель по умолчанию, если записи нет.
func (p *Postgres) GetGoal(ctx context.Context) (domain.Goal, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		goal   domain.Goal
		target string
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT goal_name, target_amount::text, updated_at
FROM goals WHERE goal_name=$1
`, domain.DefaultGoalName).Scan(&goal.Name, &target, &goal.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "goals_get", "goals", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultGoal(), nil
	}
	if err != nil {
		return domain.Goal{}, persistenceErr("get goal", err)
	}
	goal.TargetAmount, err = decimal.NewFromString(target)
	if err != nil {
		return domain.Goal{}, persistenceErr("parse goal", err)
	}
	return goal, nil
}

// UpdateGoal меняет целевую сумму. Если записи ещё нет, создаёт её.
func (p *Postgres) UpdateGoal(ctx context.Context, target decimal.Decimal) (domain.Goal, error) {
	if !target.IsPositive() {
		return domain.Goal{}, domain.ErrInvalidAmount
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		goal  domain.Goal
		value string
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO goals (goal_name, target_amount, updated_at)
VALUES ($1, $2::numeric, now())
ON CONFLICT (goal_name) DO UPDATE SET target_amount = EXCLUDED.target_amount, updated_at = now()
RETURNING goal_name, target_amount::text, updated_at
`, domain.DefaultGoalName, target.String()).Scan(&goal.Name, &value, &goal.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "goals_upsert", "goals", start, err)
	if err != nil {
		return domain.Goal{}, persistenceErr("update goal", err)
	}
	goal.TargetAmount, err = decimal.NewFromString(value)
	if err != nil {
		return domain.Goal{}, persistenceErr("parse goal", err)
	}
	return goal, nil
}

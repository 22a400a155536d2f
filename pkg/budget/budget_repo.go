package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	// Get returns the stored budget or Unset when the user has none.
	Get(ctx context.Context, userUid string) (Budget, error)
	// Store upserts the user's single budget.
	Store(ctx context.Context, userUid string, budget Budget) (Budget, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) Get(ctx context.Context, userUid string) (Budget, error) {
	var limit, period string
	err := r.db.QueryRow(ctx, `SELECT limit_amount::text, period FROM budget WHERE user_uid = $1`, userUid).
		Scan(&limit, &period)
	if errors.Is(err, pgx.ErrNoRows) {
		log.Debugf("no budget stored for user %s", userUid)
		return Unset(), nil
	}
	if err != nil {
		err := fmt.Errorf("could not query budget: %w", err)
		log.Error(err)
		return Budget{}, err
	}
	return parseBudget(limit, period)
}

func (r *RepositoryImpl) Store(ctx context.Context, userUid string, budget Budget) (Budget, error) {
	budget = budget.Normalize()
	var limit, period string
	err := r.db.QueryRow(ctx, `INSERT INTO budget (user_uid, limit_amount, period) VALUES ($1, $2::numeric, $3)
			ON CONFLICT (user_uid) DO UPDATE SET limit_amount = excluded.limit_amount, period = excluded.period
			RETURNING limit_amount::text, period`,
		userUid, budget.LimitAmount.String(), string(budget.Period)).Scan(&limit, &period)
	if err != nil {
		err := fmt.Errorf("could not store budget: %w", err)
		log.Error(err)
		return Budget{}, err
	}
	return parseBudget(limit, period)
}

func parseBudget(limit, period string) (Budget, error) {
	amount, err := decimal.NewFromString(limit)
	if err != nil {
		return Budget{}, fmt.Errorf("could not parse budget limit %q: %w", limit, err)
	}
	return Budget{LimitAmount: amount, Period: Period(period)}, nil
}

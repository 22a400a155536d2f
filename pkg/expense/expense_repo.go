package expense

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	List(ctx context.Context, userUid string, query Query) ([]Expense, error)
	Create(ctx context.Context, userUid string, fields Fields) (Expense, error)
	Update(ctx context.Context, userUid string, id int64, fields Fields) (Expense, error)
	Delete(ctx context.Context, userUid string, id int64) error
	// Import stores all rows in a single transaction and returns the number stored.
	Import(ctx context.Context, userUid string, rows []ImportRow) (int, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

type queryer interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

const expenseColumns = `id, amount::text, category, coalesce(description, ''), coalesce(store_name, ''), created_at`

func (r *RepositoryImpl) List(ctx context.Context, userUid string, query Query) ([]Expense, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	var start, end any
	if query.Start != nil {
		start = StartOfDay(*query.Start)
	}
	if query.End != nil {
		end = StartOfDay(*query.End).AddDate(0, 0, 1)
	}

	rows, err := r.db.Query(ctx, `SELECT `+expenseColumns+`
			FROM expense
			WHERE user_uid = $1
			  AND ($2::timestamptz IS NULL OR created_at >= $2)
			  AND ($3::timestamptz IS NULL OR created_at < $3)
			ORDER BY created_at DESC, id DESC
			OFFSET $4 LIMIT $5`,
		userUid, start, end, query.Offset, limit)
	if err != nil {
		err := fmt.Errorf("could not query expenses: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	expenses := make([]Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("error iterating over rows: %w", err)
		log.Error(err)
		return nil, err
	}
	return expenses, nil
}

func (r *RepositoryImpl) Create(ctx context.Context, userUid string, fields Fields) (Expense, error) {
	return insertExpense(ctx, r.db, userUid, fields, time.Time{})
}

func (r *RepositoryImpl) Update(ctx context.Context, userUid string, id int64, fields Fields) (Expense, error) {
	row := r.db.QueryRow(ctx, `UPDATE expense SET
				amount = $1::numeric,
				category = $2,
				description = nullif($3, ''),
				store_name = nullif($4, '')
			WHERE id = $5 AND user_uid = $6
			RETURNING `+expenseColumns,
		fields.Amount.String(), fields.Category, fields.Description, fields.StoreName, id, userUid)
	e, err := scanExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Expense{}, ErrExpenseNotFound
	}
	return e, err
}

func (r *RepositoryImpl) Delete(ctx context.Context, userUid string, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM expense WHERE id = $1 AND user_uid = $2`, id, userUid)
	if err != nil {
		err := fmt.Errorf("could not delete expense: %w", err)
		log.Error(err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}
	return nil
}

func (r *RepositoryImpl) Import(ctx context.Context, userUid string, rows []ImportRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	for _, row := range rows {
		if _, err := insertExpense(ctx, tx, userUid, row.Fields, row.Date); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return len(rows), nil
}

func insertExpense(ctx context.Context, q queryer, userUid string, fields Fields, createdAt time.Time) (Expense, error) {
	var createdAtParam any
	if !createdAt.IsZero() {
		createdAtParam = createdAt
	}
	row := q.QueryRow(ctx, `INSERT INTO expense (user_uid, amount, category, description, store_name, created_at)
			VALUES ($1, $2::numeric, $3, nullif($4, ''), nullif($5, ''), coalesce($6::timestamptz, now()))
			RETURNING `+expenseColumns,
		userUid, fields.Amount.String(), fields.Category, fields.Description, fields.StoreName, createdAtParam)
	e, err := scanExpense(row)
	if err != nil {
		err := fmt.Errorf("could not insert expense: %w", err)
		log.Error(err)
		return Expense{}, err
	}
	return e, nil
}

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	var amount string
	if err := row.Scan(&e.ID, &amount, &e.Category, &e.Description, &e.StoreName, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, err
		}
		err := fmt.Errorf("could not scan expense: %w", err)
		log.Error(err)
		return Expense{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return Expense{}, fmt.Errorf("could not parse amount %q: %w", amount, err)
	}
	e.Amount = parsed
	return e, nil
}

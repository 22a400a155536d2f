package category

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	// GetAll returns the user's categories, seeding Defaults when there are none.
	GetAll(ctx context.Context, userUid string) ([]Category, error)
	Store(ctx context.Context, userUid string, category Category) (Category, error)
	Delete(ctx context.Context, userUid string, id int64) error
}

type RepositoryImpl struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) GetAll(ctx context.Context, userUid string) ([]Category, error) {
	categories, err := r.list(ctx, userUid)
	if err != nil {
		return nil, err
	}
	if len(categories) > 0 {
		return categories, nil
	}

	log.Debugf("seeding default categories for user %s", userUid)
	batch := &pgx.Batch{}
	for _, name := range Defaults {
		batch.Queue(`INSERT INTO category (user_uid, name, color) VALUES ($1, $2, $3)
				ON CONFLICT (user_uid, name) DO NOTHING`, userUid, name, string(DefaultColor))
	}
	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		err := fmt.Errorf("could not seed default categories: %w", err)
		log.Error(err)
		return nil, err
	}
	return r.list(ctx, userUid)
}

func (r *RepositoryImpl) list(ctx context.Context, userUid string) ([]Category, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, color FROM category WHERE user_uid = $1 ORDER BY id`, userUid)
	if err != nil {
		err := fmt.Errorf("could not query categories: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	categories := make([]Category, 0)
	for rows.Next() {
		var c Category
		var color string
		if err := rows.Scan(&c.ID, &c.Name, &color); err != nil {
			err := fmt.Errorf("could not scan category: %w", err)
			log.Error(err)
			return nil, err
		}
		c.Color = Color(color)
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		err := fmt.Errorf("error iterating over rows: %w", err)
		log.Error(err)
		return nil, err
	}
	return categories, nil
}

func (r *RepositoryImpl) Store(ctx context.Context, userUid string, category Category) (Category, error) {
	category = category.Normalize()
	err := r.db.QueryRow(ctx, `INSERT INTO category (user_uid, name, color) VALUES ($1, $2, $3) RETURNING id`,
		userUid, category.Name, string(category.Color)).Scan(&category.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Category{}, ErrDuplicateName
		}
		err := fmt.Errorf("could not insert category: %w", err)
		log.Error(err)
		return Category{}, err
	}
	return category, nil
}

func (r *RepositoryImpl) Delete(ctx context.Context, userUid string, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM category WHERE id = $1 AND user_uid = $2`, id, userUid)
	if err != nil {
		err := fmt.Errorf("could not delete category: %w", err)
		log.Error(err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

package category

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/fintrack/internal/test_utils"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var pgContainer *postgres.PostgresContainer
var openDb func() *pgxpool.Pool

func TestMain(m *testing.M) {
	pgContainer, openDb = test_utils.TestWithDB()
	code := m.Run()
	if err := testcontainers.TerminateContainer(pgContainer); err != nil {
		log.Errorf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func setupTestRepository(t *testing.T) (context.Context, Repository, string) {
	ctx := context.Background()
	db := openDb()
	repository := NewRepository(db)
	t.Cleanup(func() {
		db.Close()
		err := pgContainer.Restore(ctx)
		require.NoError(t, err)
	})
	return ctx, repository, "user-1"
}

func TestRepositoryImpl_GetAllSeedsDefaults(t *testing.T) {
	// given
	ctx, repo, userUid := setupTestRepository(t)

	// when
	first, err := repo.GetAll(ctx, userUid)
	require.NoError(t, err)
	second, err := repo.GetAll(ctx, userUid)
	require.NoError(t, err)

	// then
	assert.Equal(t, Defaults, Names(first))
	assert.Equal(t, first, second)
	for _, c := range first {
		assert.Equal(t, DefaultColor, c.Color)
	}
}

func TestRepositoryImpl_StoreRejectsDuplicateName(t *testing.T) {
	// given
	ctx, repo, userUid := setupTestRepository(t)
	stored, err := repo.Store(ctx, userUid, Category{Name: " Pets ", Color: Green})
	require.NoError(t, err)

	// when
	_, duplicateErr := repo.Store(ctx, userUid, Category{Name: "Pets"})
	_, otherUserErr := repo.Store(ctx, "user-2", Category{Name: "Pets"})

	// then
	assert.Equal(t, "Pets", stored.Name)
	assert.NotZero(t, stored.ID)
	assert.ErrorIs(t, duplicateErr, ErrDuplicateName)
	assert.NoError(t, otherUserErr)
}

func TestRepositoryImpl_Delete(t *testing.T) {
	// given
	ctx, repo, userUid := setupTestRepository(t)
	stored, err := repo.Store(ctx, userUid, Category{Name: "Pets"})
	require.NoError(t, err)

	// when
	err = repo.Delete(ctx, userUid, stored.ID)
	missingErr := repo.Delete(ctx, userUid, stored.ID)

	// then
	assert.NoError(t, err)
	assert.ErrorIs(t, missingErr, ErrCategoryNotFound)
}

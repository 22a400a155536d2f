package database_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/klokku/fintrack/internal/config"
	"github.com/klokku/fintrack/internal/database"
	"github.com/klokku/fintrack/internal/test_utils"
	"github.com/klokku/fintrack/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnString(t *testing.T) {
	cfg := config.Database{Host: "db.internal", Port: 6543, User: "fin", Pass: "p@ss'word", Name: "ledger", Schema: "fintrack"}

	connString := database.ConnString(cfg)

	parsed, err := url.Parse(connString)
	require.NoError(t, err)
	assert.Equal(t, "postgres", parsed.Scheme)
	assert.Equal(t, "db.internal:6543", parsed.Host)
	assert.Equal(t, "/ledger", parsed.Path)
	assert.Equal(t, "fin", parsed.User.Username())
	password, _ := parsed.User.Password()
	assert.Equal(t, "p@ss'word", password)
	assert.Equal(t, "fintrack", parsed.Query().Get("search_path"))
	assert.Equal(t, "disable", parsed.Query().Get("sslmode"))
}

func TestConnString_WithoutSchema(t *testing.T) {
	parsed, err := url.Parse(database.ConnString(config.Database{Host: "localhost", Port: 5432, User: "u", Name: "n"}))

	require.NoError(t, err)
	assert.False(t, parsed.Query().Has("search_path"))
}

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := migrations.FS.ReadDir(".")

	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "000001_init.up.sql")
	assert.Contains(t, names, "000001_init.down.sql")
}

func TestOpenAndMigrate(t *testing.T) {
	// given a container whose schema was migrated once already
	ctx := context.Background()
	pgContainer, openDb := test_utils.TestWithDB()
	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})
	db := openDb()
	defer db.Close()

	// when
	var tables int
	err := db.QueryRow(ctx, `SELECT count(*) FROM information_schema.tables
			WHERE table_schema = 'fintrack' AND table_name IN ('expense', 'category', 'budget')`).Scan(&tables)

	// then
	require.NoError(t, err)
	assert.Equal(t, 3, tables)
}

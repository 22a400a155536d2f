package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/fintrack/internal/config"
	"github.com/klokku/fintrack/internal/database"
	log "github.com/sirupsen/logrus"
)

// Application wires configuration, the ledger gateway, router, and server lifecycle.
type Application struct {
	cfg    config.Application
	deps   *Dependencies
	db     *pgxpool.Pool
	router *mux.Router
	srv    *http.Server
}

// NewApplication constructs the full HTTP application, ready to Run().
func NewApplication() (*Application, error) {
	cfg, err := config.Load("./config/application.yaml")
	if err != nil {
		return nil, err
	}

	// The database is only needed when the service owns the ledger.
	ctx := context.Background()
	var db *pgxpool.Pool
	if cfg.Gateway.Kind == config.GatewayPostgres {
		if err := database.Migrate(cfg.Database); err != nil {
			return nil, err
		}
		db, err = database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
	}

	r := mux.NewRouter()

	deps, err := BuildDependencies(ctx, db, cfg)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	SetupMiddleware(r, deps, cfg)

	RegisterRoutes(r, deps, cfg)

	srv := &http.Server{
		Handler:      r,
		Addr:         cfg.Listen,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{cfg: cfg, deps: deps, db: db, router: r, srv: srv}, nil
}

// Run starts the HTTP server and blocks.
func (a *Application) Run() error {
	defer a.Close()
	log.Infof("Starting server on %s with %s gateway", a.srv.Addr, a.cfg.Gateway.Kind)
	return a.srv.ListenAndServe()
}

func (a *Application) Close() {
	a.deps.Close()
	if a.db != nil {
		a.db.Close()
	}
}

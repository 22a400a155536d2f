package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/klokku/fintrack/internal/config"
	"github.com/klokku/fintrack/internal/utils"
	"github.com/klokku/fintrack/pkg/budget"
	"github.com/klokku/fintrack/pkg/category"
	"github.com/klokku/fintrack/pkg/expense"
	"github.com/klokku/fintrack/pkg/export"
	"github.com/klokku/fintrack/pkg/gateway"
	"github.com/klokku/fintrack/pkg/ledger"
	"github.com/klokku/fintrack/pkg/notify"
	"github.com/klokku/fintrack/pkg/stats"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock utils.Clock

	Gateway  gateway.Gateway
	Registry *ledger.Registry

	LedgerHandler *ledger.Handler

	CsvStatsRenderer *stats.CsvStatsRendererImpl
	StatsHandler     *stats.StatsHandler

	AmqpPublisher  *notify.AmqpPublisher
	Notifier       *notify.Notifier
	SheetsExporter *export.SheetsExporter
}

// BuildDependencies initializes and wires all application services and handlers.
// db is nil unless the postgres gateway is configured.
func BuildDependencies(ctx context.Context, db *pgxpool.Pool, cfg config.Application) (*Dependencies, error) {
	deps := &Dependencies{}

	deps.Clock = &utils.SystemClock{}

	gw, err := buildGateway(db, cfg, deps.Clock)
	if err != nil {
		return nil, err
	}
	deps.Gateway = gw
	deps.Registry = ledger.NewRegistry(deps.Gateway, ledger.Config{PageSize: cfg.Gateway.PageSize}, deps.Clock)

	if cfg.Notify.Enabled {
		deps.AmqpPublisher, err = notify.NewAmqpPublisher(cfg.Notify.URL, cfg.Notify.Exchange)
		if err != nil {
			return nil, fmt.Errorf("notifications: %w", err)
		}
		deps.Notifier = notify.NewNotifier(deps.AmqpPublisher, deps.Clock)
		deps.Registry.OnCreate(func(s *ledger.Session) {
			deps.Notifier.Attach(s)
		})
	}

	var sheets ledger.SheetExporter
	if cfg.Export.SpreadsheetId != "" {
		deps.SheetsExporter, err = export.NewSheetsExporter(ctx, cfg.Export)
		if err != nil {
			log.Errorf("Google Sheets export disabled: %v", err)
		} else {
			sheets = deps.SheetsExporter
		}
	}

	deps.LedgerHandler = ledger.NewHandler(deps.Registry.Current, sheets)

	deps.CsvStatsRenderer = stats.NewCsvStatsRenderer()
	deps.StatsHandler = stats.NewStatsHandler(currentSummary(deps.Registry), deps.CsvStatsRenderer, ledger.ErrorStatus)

	return deps, nil
}

func buildGateway(db *pgxpool.Pool, cfg config.Application, clock utils.Clock) (gateway.Gateway, error) {
	switch cfg.Gateway.Kind {
	case config.GatewayHTTP:
		return gateway.NewClient(clientConfig(cfg.Gateway)), nil
	case config.GatewayPostgres:
		if db == nil {
			return nil, fmt.Errorf("gateway %s requires a database", cfg.Gateway.Kind)
		}
		store := gateway.NewPostgresStore(
			expense.NewRepository(db),
			budget.NewRepository(db),
			category.NewRepository(db),
		)
		var assistant gateway.Assistant
		if cfg.Assistant.BaseURL != "" {
			assistantCfg := clientConfig(cfg.Gateway)
			assistantCfg.BaseURL = cfg.Assistant.BaseURL
			assistant = gateway.NewClient(assistantCfg)
		}
		return gateway.NewComposite(store, assistant), nil
	case config.GatewayMemory:
		log.Warn("using the in-memory gateway, data is lost on restart")
		return gateway.NewMemoryGateway(clock), nil
	}
	return nil, fmt.Errorf("unknown gateway kind %q", cfg.Gateway.Kind)
}

func clientConfig(cfg config.Gateway) gateway.ClientConfig {
	return gateway.ClientConfig{
		BaseURL:      cfg.BaseURL,
		Timeout:      cfg.Timeout,
		ClientId:     cfg.Auth.ClientId,
		ClientSecret: cfg.Auth.ClientSecret,
		TokenURL:     cfg.Auth.TokenURL,
	}
}

// currentSummary serves the summary of the caller's session, stale if its
// last load failed.
func currentSummary(registry *ledger.Registry) stats.SummaryProvider {
	return func(ctx context.Context) (stats.Summary, error) {
		session, err := registry.Current(ctx)
		if session == nil {
			return stats.Summary{}, err
		}
		return session.Summary(), nil
	}
}

func (deps *Dependencies) Close() {
	deps.Registry.Close()
	if deps.AmqpPublisher != nil {
		if err := deps.AmqpPublisher.Close(); err != nil {
			log.Errorf("failed to close AMQP connection: %v", err)
		}
	}
}

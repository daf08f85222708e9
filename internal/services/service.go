package services

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/config"
	"github.com/stakebonds/bonds-settlement/internal/db"
	"github.com/stakebonds/bonds-settlement/internal/executor"
	"github.com/stakebonds/bonds-settlement/internal/ledger"
	"github.com/stakebonds/bonds-settlement/internal/reconcile"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

// ReportPublisher announces finished operations, e.g. over RabbitMQ.
type ReportPublisher interface {
	PublishRunReport(ctx context.Context, report *types.RunReport) error
}

type Service struct {
	cfg    *config.Config
	ledger ledger.Ledger
	// db and publisher are nil when not configured
	db        db.DbInterface
	publisher ReportPublisher
	executor  *executor.Executor
	planner   *reconcile.Planner
}

func NewService(
	cfg *config.Config,
	l ledger.Ledger,
	rentCollector solana.PublicKey,
	db db.DbInterface,
	publisher ReportPublisher,
) *Service {
	return &Service{
		cfg:       cfg,
		ledger:    l,
		db:        db,
		publisher: publisher,
		executor:  executor.New(l, &cfg.Execution),
		planner:   reconcile.NewPlanner(l, rentCollector, cfg.Settlements.MarinadeFundingAuthority()),
	}
}

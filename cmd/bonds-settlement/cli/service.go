package cli

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/clients/solanaclient"
	"github.com/stakebonds/bonds-settlement/internal/config"
	"github.com/stakebonds/bonds-settlement/internal/db"
	dbmodel "github.com/stakebonds/bonds-settlement/internal/db/model"
	"github.com/stakebonds/bonds-settlement/internal/ledger"
	"github.com/stakebonds/bonds-settlement/internal/observability/metrics"
	"github.com/stakebonds/bonds-settlement/internal/queue"
	"github.com/stakebonds/bonds-settlement/internal/services"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

// epochs the in-memory program of the simulated backend keeps claims open
const simulatedEpochsToClaim = 4

type app struct {
	cfg     *config.Config
	service *services.Service
	db      db.DbInterface
	cleanup []func()
}

func (a *app) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

// newApp wires the service from the config file. Commands that only compute
// files skip the ledger connection.
func newApp(ctx context.Context, withLedger bool) (*app, error) {
	cfgPath := GetConfigPath()
	cfg, err := config.New(cfgPath)
	if err != nil {
		return nil, types.NewError(types.ValidationError, fmt.Errorf("error while loading config file %s: %w", cfgPath, err))
	}
	a := &app{cfg: cfg}

	var l ledger.Ledger
	var rentCollector solana.PublicKey
	if withLedger {
		l, rentCollector, err = newLedger(cfg)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Db != nil {
		if err := dbmodel.Setup(ctx, cfg.Db); err != nil {
			return nil, fmt.Errorf("error while setting up settlement db model: %w", err)
		}
		dbClient, err := db.New(ctx, *cfg.Db)
		if err != nil {
			return nil, fmt.Errorf("error while creating db client: %w", err)
		}
		a.cleanup = append(a.cleanup, func() {
			if err := dbClient.Disconnect(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to disconnect db client")
			}
		})
		a.db = db.NewDbWithMetrics(dbClient)
	}

	var publisher services.ReportPublisher
	if cfg.Queue != nil {
		qm, err := queue.NewQueueManager(cfg.Queue)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("error while creating queue manager: %w", err)
		}
		a.cleanup = append(a.cleanup, qm.Shutdown)
		publisher = qm
	}

	if cfg.Metrics != nil {
		// initialize metrics with the metrics port from config
		metrics.Init(cfg.Metrics.GetMetricsPort())
	}

	a.service = services.NewService(cfg, l, rentCollector, a.db, publisher)
	return a, nil
}

func newLedger(cfg *config.Config) (ledger.Ledger, solana.PublicKey, error) {
	switch cfg.Ledger.Backend {
	case config.LedgerBackendSimulated:
		sim := ledger.NewSimulated(cfg.Ledger.ProgramPubkey(), types.ConfigState{
			Address:                 cfg.Ledger.ConfigPubkey(),
			EpochsToClaimSettlement: simulatedEpochsToClaim,
		}, types.Clock{})
		return sim, cfg.Ledger.RentCollectorPubkey(solana.PublicKey{}), nil
	default:
		client, err := solanaclient.New(cfg.Solana, &cfg.Ledger)
		if err != nil {
			return nil, solana.PublicKey{}, types.NewError(types.ValidationError, fmt.Errorf("error while creating solana ledger client: %w", err))
		}
		return client, cfg.Ledger.RentCollectorPubkey(client.Operator()), nil
	}
}

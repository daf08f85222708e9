package executor

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/config"
	"github.com/stakebonds/bonds-settlement/internal/ledger"
	"github.com/stakebonds/bonds-settlement/internal/observability/metrics"
	"github.com/stakebonds/bonds-settlement/internal/reconcile"
	"github.com/stakebonds/bonds-settlement/internal/utils/retry"
	"golang.org/x/sync/errgroup"
)

// Executor sends the transactions of a plan to the ledger.
type Executor struct {
	writer ledger.Writer
	cfg    *config.ExecutionConfig
}

func New(writer ledger.Writer, cfg *config.ExecutionConfig) *Executor {
	return &Executor{writer: writer, cfg: cfg}
}

func (e *Executor) fee() ledger.PriorityFee {
	return ledger.PriorityFee{
		MicroLamportsPerComputeUnit: e.cfg.PriorityFeeMicroLamports,
		ComputeUnitLimit:            e.cfg.ComputeUnitLimit,
	}
}

// Execute runs every chain of the plan. Chains run concurrently up to the
// configured parallelism, or one after another in sequential mode; strict
// mode also stops at the first failure. A failed transaction ends its
// chain, other chains go on.
func (e *Executor) Execute(ctx context.Context, plan *reconcile.Plan) *Result {
	r := &reducer{result: Result{Operation: plan.Operation}}
	if plan.IsEmpty() {
		return r.done()
	}

	switch {
	case e.cfg.Strict:
		for _, chain := range plan.Chains {
			if !e.runChain(ctx, plan.Operation, chain, r) {
				break
			}
		}
	case e.cfg.Sequential:
		for _, chain := range plan.Chains {
			e.runChain(ctx, plan.Operation, chain, r)
		}
	default:
		var g errgroup.Group
		g.SetLimit(e.cfg.Parallelism)
		for _, chain := range plan.Chains {
			g.Go(func() error {
				e.runChain(ctx, plan.Operation, chain, r)
				return nil
			})
		}
		_ = g.Wait()
	}

	result := r.done()
	log.Ctx(ctx).Info().
		Str("operation", plan.Operation).
		Int("attempted_txs", result.AttemptedTxs).
		Int("executed_txs", result.ExecutedTxs).
		Int("attempted_ixs", result.AttemptedIxs).
		Int("executed_ixs", result.ExecutedIxs).
		Int("failures", len(result.Failures)).
		Msg("executed plan")
	return result
}

// runChain reports whether every transaction of the chain succeeded.
func (e *Executor) runChain(ctx context.Context, operation string, chain reconcile.Chain, r *reducer) bool {
	for _, tx := range chain {
		if ctx.Err() != nil {
			return false
		}
		r.attempt(tx)
		receipt, err := retry.Do(ctx, e.cfg.Retry, tx.Description, func(ctx context.Context) (*ledger.Receipt, error) {
			return e.writer.Execute(ctx, tx, e.fee())
		})
		metrics.RecordTransaction(operation, executedIxs(receipt), err != nil)
		if err != nil {
			log.Ctx(ctx).Error().
				Err(err).
				Str("operation", operation).
				Str("transaction", tx.Description).
				Msg("transaction failed")
			r.failure(tx, err)
			return false
		}
		log.Ctx(ctx).Debug().
			Str("operation", operation).
			Str("transaction", tx.Description).
			Str("signature", receipt.Signature).
			Msg("transaction executed")
		r.success(receipt)
	}
	return true
}

func executedIxs(receipt *ledger.Receipt) int {
	if receipt == nil {
		return 0
	}
	return receipt.ExecutedIxs
}

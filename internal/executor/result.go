package executor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stakebonds/bonds-settlement/internal/ledger"
	"github.com/stakebonds/bonds-settlement/internal/types"
	"github.com/stakebonds/bonds-settlement/internal/utils/retry"
)

type Failure struct {
	Description  string
	Instructions int
	Err          error
}

// Result is the reduced outcome of executing one plan. Executed counts never
// exceed attempted counts whatever order transactions complete in.
type Result struct {
	Operation    string
	AttemptedTxs int
	AttemptedIxs int
	ExecutedTxs  int
	ExecutedIxs  int
	Failures     []Failure
}

// reducer collects transaction outcomes from concurrent workers.
type reducer struct {
	mu     sync.Mutex
	result Result
}

func (r *reducer) attempt(tx *ledger.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.AttemptedTxs++
	r.result.AttemptedIxs += len(tx.Instructions)
}

func (r *reducer) success(receipt *ledger.Receipt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.ExecutedTxs++
	r.result.ExecutedIxs += receipt.ExecutedIxs
}

func (r *reducer) failure(tx *ledger.Transaction, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result.Failures = append(r.result.Failures, Failure{
		Description:  tx.Description,
		Instructions: len(tx.Instructions),
		Err:          err,
	})
}

func (r *reducer) done() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := r.result
	result.Failures = append([]Failure(nil), r.result.Failures...)
	return &result
}

func (r *Result) Succeeded() bool {
	return len(r.Failures) == 0
}

// Err summarizes the failures: retryable when any failure may pass on a
// re-run, a warning when the ledger only rejected transactions.
func (r *Result) Err() error {
	if r.Succeeded() {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	code := types.WarningError
	for _, failure := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", failure.Description, failure.Err))
		switch {
		case retry.IsRetryable(failure.Err) || errors.Is(failure.Err, retry.ErrMaxRetriesExceeded) || errors.Is(failure.Err, retry.ErrTimeout):
			code = types.RetryableError
		case code != types.RetryableError && !ledger.IsRejected(failure.Err):
			code = types.ExecutionError
		}
	}
	return types.NewError(code, fmt.Errorf(
		"%s: %d of %d transactions failed: %w", r.Operation, len(r.Failures), r.AttemptedTxs, errors.Join(errs...),
	))
}

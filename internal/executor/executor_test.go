package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stakebonds/bonds-settlement/internal/config"
	"github.com/stakebonds/bonds-settlement/internal/ledger"
	"github.com/stakebonds/bonds-settlement/internal/lifecycle"
	"github.com/stakebonds/bonds-settlement/internal/reconcile"
	"github.com/stakebonds/bonds-settlement/internal/types"
	"github.com/stakebonds/bonds-settlement/internal/utils/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu          sync.Mutex
	executed    []string
	fail        map[string]error
	transient   map[string]int
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
	fees        []ledger.PriorityFee
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{fail: make(map[string]error), transient: make(map[string]int)}
}

func (w *fakeWriter) Execute(ctx context.Context, tx *ledger.Transaction, fee ledger.PriorityFee) (*ledger.Receipt, error) {
	n := w.inFlight.Add(1)
	defer w.inFlight.Add(-1)
	for {
		current := w.maxInFlight.Load()
		if n <= current || w.maxInFlight.CompareAndSwap(current, n) {
			break
		}
	}
	time.Sleep(w.delay)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.fees = append(w.fees, fee)
	if w.transient[tx.Description] > 0 {
		w.transient[tx.Description]--
		return nil, types.NewErrorWithMsg(types.RetryableError, "blockhash not found")
	}
	if err, ok := w.fail[tx.Description]; ok {
		return nil, err
	}
	w.executed = append(w.executed, tx.Description)
	return &ledger.Receipt{Signature: "sig-" + tx.Description, ExecutedIxs: len(tx.Instructions)}, nil
}

func tx(description string, ixs int) *ledger.Transaction {
	instructions := make([]ledger.Instruction, ixs)
	for i := range instructions {
		instructions[i] = ledger.Instruction{Kind: ledger.CloseSettlement}
	}
	return ledger.NewTransaction(description, instructions...)
}

func testExecutionConfig() *config.ExecutionConfig {
	return &config.ExecutionConfig{
		Parallelism:              4,
		PriorityFeeMicroLamports: 1_000,
		ComputeUnitLimit:         300_000,
		Retry:                    retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
}

func TestExecuteParallel(t *testing.T) {
	w := newFakeWriter()
	w.delay = 5 * time.Millisecond
	plan := &reconcile.Plan{Operation: "claim-settlements"}
	for i := range 20 {
		plan.Chains = append(plan.Chains, reconcile.Chain{tx(fmt.Sprintf("tx-%d", i), 2)})
	}

	result := New(w, testExecutionConfig()).Execute(context.Background(), plan)
	require.True(t, result.Succeeded())
	require.NoError(t, result.Err())
	assert.Equal(t, 20, result.AttemptedTxs)
	assert.Equal(t, 20, result.ExecutedTxs)
	assert.Equal(t, 40, result.ExecutedIxs)
	assert.LessOrEqual(t, w.maxInFlight.Load(), int32(4))
	assert.Equal(t, ledger.PriorityFee{MicroLamportsPerComputeUnit: 1_000, ComputeUnitLimit: 300_000}, w.fees[0])
}

func TestExecuteChainStopsAtFailure(t *testing.T) {
	w := newFakeWriter()
	w.fail["init-b"] = fmt.Errorf("init: %w", lifecycle.ErrProgramPaused)
	plan := &reconcile.Plan{
		Operation: "init-settlements",
		Chains: []reconcile.Chain{
			{tx("init-a", 1), tx("upsize-a", 8)},
			{tx("init-b", 1), tx("upsize-b", 8)},
		},
	}

	result := New(w, testExecutionConfig()).Execute(context.Background(), plan)
	assert.Equal(t, 3, result.AttemptedTxs)
	assert.Equal(t, 10, result.AttemptedIxs)
	assert.Equal(t, 2, result.ExecutedTxs)
	assert.Equal(t, 9, result.ExecutedIxs)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "init-b", result.Failures[0].Description)
	assert.NotContains(t, w.executed, "upsize-b")

	err := result.Err()
	require.ErrorIs(t, err, lifecycle.ErrProgramPaused)
	// ledger rejections only
	assert.True(t, types.IsErrorCode(err, types.WarningError))
}

func TestExecuteSequentialKeepsOrder(t *testing.T) {
	w := newFakeWriter()
	cfg := testExecutionConfig()
	cfg.Sequential = true
	plan := &reconcile.Plan{Operation: "fund-settlements"}
	var want []string
	for i := range 10 {
		description := fmt.Sprintf("fund-%d", i)
		want = append(want, description)
		plan.Chains = append(plan.Chains, reconcile.Chain{tx(description, 1)})
	}

	result := New(w, cfg).Execute(context.Background(), plan)
	require.True(t, result.Succeeded())
	assert.Equal(t, want, w.executed)
	assert.Equal(t, int32(1), w.maxInFlight.Load())
}

func TestExecuteStrictStopsEverything(t *testing.T) {
	w := newFakeWriter()
	w.fail["b"] = errors.New("custom program error")
	cfg := testExecutionConfig()
	cfg.Strict = true
	plan := &reconcile.Plan{
		Operation: "claim-settlements",
		Chains:    []reconcile.Chain{{tx("a", 1)}, {tx("b", 1)}, {tx("c", 1)}},
	}

	result := New(w, cfg).Execute(context.Background(), plan)
	assert.Equal(t, 2, result.AttemptedTxs)
	assert.Equal(t, 1, result.ExecutedTxs)
	assert.Equal(t, []string{"a"}, w.executed)
	assert.True(t, types.IsErrorCode(result.Err(), types.ExecutionError))
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	w := newFakeWriter()
	w.transient["flaky"] = 2
	w.transient["broken"] = 10
	plan := &reconcile.Plan{
		Operation: "close-settlements",
		Chains:    []reconcile.Chain{{tx("flaky", 1)}, {tx("broken", 1)}},
	}

	result := New(w, testExecutionConfig()).Execute(context.Background(), plan)
	assert.Equal(t, 2, result.AttemptedTxs)
	assert.Equal(t, 1, result.ExecutedTxs)
	require.Len(t, result.Failures, 1)
	require.ErrorIs(t, result.Failures[0].Err, retry.ErrMaxRetriesExceeded)
	assert.Equal(t, types.ExitCodeRetryable, types.ExitCode(result.Err()))
	// max retries 2 means three attempts
	assert.Equal(t, 10-3, w.transient["broken"])
}

func TestExecuteEmptyPlan(t *testing.T) {
	result := New(newFakeWriter(), testExecutionConfig()).Execute(context.Background(), &reconcile.Plan{Operation: "noop"})
	assert.True(t, result.Succeeded())
	assert.Zero(t, result.AttemptedTxs)
	assert.NoError(t, result.Err())
}

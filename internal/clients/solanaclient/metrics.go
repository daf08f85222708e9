package solanaclient

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stakebonds/bonds-settlement/internal/observability/metrics"
)

type rpcWithMetrics struct {
	rpc RPC
}

func NewRPCWithMetrics(rpc RPC) *rpcWithMetrics {
	return &rpcWithMetrics{rpc: rpc}
}

func (r *rpcWithMetrics) GetEpochInfo(
	ctx context.Context, commitment solanarpc.CommitmentType,
) (*solanarpc.GetEpochInfoResult, error) {
	return runRPCMethodWithMetrics("GetEpochInfo", func() (*solanarpc.GetEpochInfoResult, error) {
		return r.rpc.GetEpochInfo(ctx, commitment)
	})
}

func (r *rpcWithMetrics) GetMultipleAccountsWithOpts(
	ctx context.Context, accounts []solana.PublicKey, opts *solanarpc.GetMultipleAccountsOpts,
) (*solanarpc.GetMultipleAccountsResult, error) {
	return runRPCMethodWithMetrics("GetMultipleAccounts", func() (*solanarpc.GetMultipleAccountsResult, error) {
		return r.rpc.GetMultipleAccountsWithOpts(ctx, accounts, opts)
	})
}

func (r *rpcWithMetrics) GetProgramAccountsWithOpts(
	ctx context.Context, program solana.PublicKey, opts *solanarpc.GetProgramAccountsOpts,
) (solanarpc.GetProgramAccountsResult, error) {
	return runRPCMethodWithMetrics("GetProgramAccounts", func() (solanarpc.GetProgramAccountsResult, error) {
		return r.rpc.GetProgramAccountsWithOpts(ctx, program, opts)
	})
}

func (r *rpcWithMetrics) GetLatestBlockhash(
	ctx context.Context, commitment solanarpc.CommitmentType,
) (*solanarpc.GetLatestBlockhashResult, error) {
	return runRPCMethodWithMetrics("GetLatestBlockhash", func() (*solanarpc.GetLatestBlockhashResult, error) {
		return r.rpc.GetLatestBlockhash(ctx, commitment)
	})
}

func (r *rpcWithMetrics) SendTransactionWithOpts(
	ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts,
) (solana.Signature, error) {
	return runRPCMethodWithMetrics("SendTransaction", func() (solana.Signature, error) {
		return r.rpc.SendTransactionWithOpts(ctx, tx, opts)
	})
}

func (r *rpcWithMetrics) GetSignatureStatuses(
	ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature,
) (*solanarpc.GetSignatureStatusesResult, error) {
	return runRPCMethodWithMetrics("GetSignatureStatuses", func() (*solanarpc.GetSignatureStatusesResult, error) {
		return r.rpc.GetSignatureStatuses(ctx, searchTransactionHistory, signatures...)
	})
}

func runRPCMethodWithMetrics[T any](method string, f func() (T, error)) (T, error) {
	startTime := time.Now()
	v, err := f()
	duration := time.Since(startTime)

	metrics.RecordSolanaClientLatency(duration, method, err != nil)
	return v, err
}

package solanaclient

import (
	"context"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

// RPC is the subset of *solanarpc.Client the settlement ledger uses.
type RPC interface {
	GetEpochInfo(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetEpochInfoResult, error)
	GetMultipleAccountsWithOpts(
		ctx context.Context, accounts []solana.PublicKey, opts *solanarpc.GetMultipleAccountsOpts,
	) (*solanarpc.GetMultipleAccountsResult, error)
	GetProgramAccountsWithOpts(
		ctx context.Context, program solana.PublicKey, opts *solanarpc.GetProgramAccountsOpts,
	) (solanarpc.GetProgramAccountsResult, error)
	GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(
		ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature,
	) (*solanarpc.GetSignatureStatusesResult, error)
}

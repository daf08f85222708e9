package ledger

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/dedup"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

// Reader is the read side of the settlement program.
type Reader interface {
	ProgramID() solana.PublicKey
	ConfigAddress() solana.PublicKey
	Clock(ctx context.Context) (types.Clock, error)
	ProgramConfig(ctx context.Context) (*types.ConfigState, error)
	// FindBonds returns every bond of the owning config.
	FindBonds(ctx context.Context) ([]types.BondState, error)
	// FindSettlements returns every live settlement of the owning config.
	FindSettlements(ctx context.Context) ([]types.SettlementLedgerState, error)
	// ClaimBitmaps returns the claim bitmaps of the given settlements; missing
	// ones are absent from the map.
	ClaimBitmaps(ctx context.Context, settlements []solana.PublicKey) (map[solana.PublicKey]*dedup.ClaimBitmap, error)
	// FindStakeAccounts returns the stake accounts owned by withdrawAuthority,
	// optionally narrowed to one stake authority.
	FindStakeAccounts(ctx context.Context, withdrawAuthority solana.PublicKey, stakeAuthority *solana.PublicKey) ([]types.StakeAccount, error)
	// BondStakeAccounts returns the stake accounts that may fund settlements of the bond.
	BondStakeAccounts(ctx context.Context, bond types.BondState) ([]types.StakeAccount, error)
}

// Writer applies transactions. A transaction applies fully or not at all.
type Writer interface {
	Execute(ctx context.Context, tx *Transaction, fee PriorityFee) (*Receipt, error)
}

type Ledger interface {
	Reader
	Writer
}

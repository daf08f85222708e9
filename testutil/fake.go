package testutil

import (
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

// RandomRunReport builds a report of a partially failed operation.
func RandomRunReport(epoch uint64) *types.RunReport {
	attempted := gofakeit.IntRange(2, 50)
	startedAt := gofakeit.DateRange(time.Now().Add(-24*time.Hour), time.Now()).UTC().Truncate(time.Millisecond)
	return &types.RunReport{
		ID:           gofakeit.UUID(),
		Epoch:        epoch,
		Operation:    gofakeit.RandomString([]string{"init-settlements", "fund-settlements", "claim-settlements"}),
		AttemptedTxs: attempted,
		AttemptedIxs: attempted * 2,
		ExecutedTxs:  attempted - 1,
		ExecutedIxs:  attempted*2 - 2,
		Failures:     []string{gofakeit.Word()},
		ErrorCode:    types.WarningError,
		StartedAt:    startedAt,
		FinishedAt:   startedAt.Add(time.Duration(gofakeit.IntRange(1, 600)) * time.Second),
	}
}

// RandomClaims builds n claims of distinct authority pairs.
func RandomClaims(n int) []types.SettlementClaim {
	claims := make([]types.SettlementClaim, n)
	for i := range claims {
		stake := uint64(gofakeit.IntRange(1_000_000_000, 100_000_000_000))
		account := RandomPubkey()
		claims[i] = types.SettlementClaim{
			WithdrawAuthority: RandomPubkey(),
			StakeAuthority:    RandomPubkey(),
			StakeAccounts:     map[solana.PublicKey]uint64{account: stake},
			ActiveStake:       stake,
			ClaimAmount:       uint64(gofakeit.IntRange(1, 1_000_000)),
		}
	}
	return claims
}

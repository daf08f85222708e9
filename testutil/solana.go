package testutil

import (
	"crypto/rand"

	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

// RandomPubkey returns a random 32 byte public key; it is not on the curve.
func RandomPubkey() solana.PublicKey {
	var pk solana.PublicKey
	if _, err := rand.Read(pk[:]); err != nil {
		panic(err)
	}
	return pk
}

func RandomPubkeys(n int) []solana.PublicKey {
	keys := make([]solana.PublicKey, n)
	for i := range keys {
		keys[i] = RandomPubkey()
	}
	return keys
}

// StakeMeta builds an active stake account delegated to validator.
func StakeMeta(validator, withdraw, stake solana.PublicKey, active uint64) types.StakeMeta {
	v := validator
	return types.StakeMeta{
		Pubkey:                   RandomPubkey(),
		BalanceLamports:          active,
		WithdrawAuthority:        withdraw,
		StakeAuthority:           stake,
		Validator:                &v,
		ActiveDelegationLamports: active,
	}
}

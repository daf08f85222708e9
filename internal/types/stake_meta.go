package types

import "github.com/gagliardetto/solana-go"

// StakeMeta is one stake account row of a snapshot taken at a given slot.
type StakeMeta struct {
	Pubkey                         solana.PublicKey  `json:"pubkey"`
	BalanceLamports                uint64            `json:"balance_lamports"`
	WithdrawAuthority              solana.PublicKey  `json:"withdraw_authority"`
	StakeAuthority                 solana.PublicKey  `json:"stake_authority"`
	Validator                      *solana.PublicKey `json:"validator,omitempty"`
	ActiveDelegationLamports       uint64            `json:"active_delegation_lamports"`
	ActivatingDelegationLamports   uint64            `json:"activating_delegation_lamports"`
	DeactivatingDelegationLamports uint64            `json:"deactivating_delegation_lamports"`
}

type StakeMetaCollection struct {
	Epoch      uint64      `json:"epoch"`
	Slot       uint64      `json:"slot"`
	StakeMetas []StakeMeta `json:"stake_metas"`
}

// SnapshotRef is the (epoch, slot) tag every input collection carries.
type SnapshotRef struct {
	Epoch uint64
	Slot  uint64
}

func (c *StakeMetaCollection) Ref() SnapshotRef {
	return SnapshotRef{Epoch: c.Epoch, Slot: c.Slot}
}

// EnsureSameSnapshot fails with a ValidationError when two paired inputs were
// produced for different epochs or slots.
func EnsureSameSnapshot(name string, a, b SnapshotRef) error {
	if a.Epoch != b.Epoch {
		return NewValidationError("%s epoch %d does not match stake meta epoch %d", name, b.Epoch, a.Epoch)
	}
	if a.Slot != b.Slot {
		return NewValidationError("%s slot %d does not match stake meta slot %d", name, b.Slot, a.Slot)
	}
	return nil
}

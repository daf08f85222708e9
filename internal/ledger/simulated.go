package ledger

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/dedup"
	"github.com/stakebonds/bonds-settlement/internal/lifecycle"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

// Simulated is an in-memory settlement program. It runs the same lifecycle
// rules as the deployed program and applies each transaction atomically.
type Simulated struct {
	mu            sync.Mutex
	programID     solana.PublicKey
	config        types.ConfigState
	clock         types.Clock
	bonds         map[solana.PublicKey]types.BondState
	settlements   map[solana.PublicKey]*lifecycle.Settlement
	stakeAccounts map[solana.PublicKey]types.StakeAccount
	refunds       []lifecycle.Refund
	failures      int
	txCount       uint64
}

func NewSimulated(programID solana.PublicKey, config types.ConfigState, clock types.Clock) *Simulated {
	return &Simulated{
		programID:     programID,
		config:        config,
		clock:         clock,
		bonds:         make(map[solana.PublicKey]types.BondState),
		settlements:   make(map[solana.PublicKey]*lifecycle.Settlement),
		stakeAccounts: make(map[solana.PublicKey]types.StakeAccount),
	}
}

func (l *Simulated) ProgramID() solana.PublicKey {
	return l.programID
}

func (l *Simulated) ConfigAddress() solana.PublicKey {
	return l.config.Address
}

func (l *Simulated) AddBond(voteAccount, authority solana.PublicKey) (types.BondState, error) {
	address, err := BondAddress(l.programID, l.config.Address, voteAccount)
	if err != nil {
		return types.BondState{}, err
	}
	bond := types.BondState{Address: address, Config: l.config.Address, VoteAccount: voteAccount, Authority: authority}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bonds[address] = bond
	return bond, nil
}

// AddBondStake creates a stake account delegated to the bond's validator and
// owned by the bonds withdrawer authority.
func (l *Simulated) AddBondStake(bond types.BondState, address solana.PublicKey, lamports uint64) error {
	withdrawer, err := BondsWithdrawerAuthority(l.programID, l.config.Address)
	if err != nil {
		return err
	}
	voter := bond.VoteAccount
	l.AddStakeAccount(types.StakeAccount{
		Address:           address,
		StakeAuthority:    withdrawer,
		WithdrawAuthority: withdrawer,
		Lamports:          lamports,
		Voter:             &voter,
	})
	return nil
}

func (l *Simulated) AddStakeAccount(account types.StakeAccount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stakeAccounts[account.Address] = account
}

func (l *Simulated) StakeAccount(address solana.PublicKey) (types.StakeAccount, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	account, ok := l.stakeAccounts[address]
	return account, ok
}

func (l *Simulated) SetClock(clock types.Clock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
}

func (l *Simulated) SetPaused(paused bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Paused = paused
}

// InjectFailures makes the next n executions fail with a retryable error
// before touching any state.
func (l *Simulated) InjectFailures(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = n
}

func (l *Simulated) Refunds() []lifecycle.Refund {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.refunds)
}

func (l *Simulated) Clock(ctx context.Context) (types.Clock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clock, nil
}

func (l *Simulated) ProgramConfig(ctx context.Context) (*types.ConfigState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	config := l.config
	return &config, nil
}

func (l *Simulated) FindBonds(ctx context.Context) ([]types.BondState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bonds := slices.Collect(maps.Values(l.bonds))
	slices.SortFunc(bonds, func(a, b types.BondState) int { return bytes.Compare(a.Address[:], b.Address[:]) })
	return bonds, nil
}

func (l *Simulated) FindSettlements(ctx context.Context) ([]types.SettlementLedgerState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	settlements := make([]types.SettlementLedgerState, 0, len(l.settlements))
	for _, settlement := range l.settlements {
		settlements = append(settlements, settlement.Clone().State)
	}
	slices.SortFunc(settlements, func(a, b types.SettlementLedgerState) int {
		return bytes.Compare(a.Address[:], b.Address[:])
	})
	return settlements, nil
}

func (l *Simulated) ClaimBitmaps(ctx context.Context, addresses []solana.PublicKey) (map[solana.PublicKey]*dedup.ClaimBitmap, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bitmaps := make(map[solana.PublicKey]*dedup.ClaimBitmap, len(addresses))
	for _, address := range addresses {
		if settlement, ok := l.settlements[address]; ok {
			bitmaps[address] = settlement.Bitmap.Clone()
		}
	}
	return bitmaps, nil
}

func (l *Simulated) FindStakeAccounts(
	ctx context.Context, withdrawAuthority solana.PublicKey, stakeAuthority *solana.PublicKey,
) ([]types.StakeAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filterStakeAccounts(func(account *types.StakeAccount) bool {
		if account.WithdrawAuthority != withdrawAuthority {
			return false
		}
		return stakeAuthority == nil || account.StakeAuthority == *stakeAuthority
	}), nil
}

func (l *Simulated) BondStakeAccounts(ctx context.Context, bond types.BondState) ([]types.StakeAccount, error) {
	withdrawer, err := BondsWithdrawerAuthority(l.programID, l.config.Address)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filterStakeAccounts(func(account *types.StakeAccount) bool {
		return account.WithdrawAuthority == withdrawer &&
			account.StakeAuthority == withdrawer &&
			account.Voter != nil && *account.Voter == bond.VoteAccount
	}), nil
}

func (l *Simulated) filterStakeAccounts(keep func(*types.StakeAccount) bool) []types.StakeAccount {
	var accounts []types.StakeAccount
	for _, account := range l.stakeAccounts {
		if keep(&account) {
			accounts = append(accounts, account)
		}
	}
	slices.SortFunc(accounts, func(a, b types.StakeAccount) int { return bytes.Compare(a.Address[:], b.Address[:]) })
	return accounts
}

func (l *Simulated) Execute(ctx context.Context, tx *Transaction, fee PriorityFee) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failures > 0 {
		l.failures--
		return nil, types.NewErrorWithMsg(types.RetryableError, "simulated transient ledger failure")
	}

	st := &staged{
		ledger:        l,
		settlements:   make(map[solana.PublicKey]*lifecycle.Settlement),
		removed:       make(map[solana.PublicKey]bool),
		stakeAccounts: make(map[solana.PublicKey]types.StakeAccount),
	}
	for i := range tx.Instructions {
		ix := &tx.Instructions[i]
		if err := ix.Validate(); err != nil {
			return nil, err
		}
		if err := st.apply(ix); err != nil {
			return nil, fmt.Errorf("%s instruction %d of %q failed: %w", ix.Kind, i, tx.Description, err)
		}
	}
	st.commit()

	l.txCount++
	return &Receipt{
		Signature:   fmt.Sprintf("simulated-%d", l.txCount),
		ExecutedIxs: len(tx.Instructions),
	}, nil
}

// staged collects the changes of one transaction on copies of the touched
// accounts until every instruction succeeded.
type staged struct {
	ledger        *Simulated
	settlements   map[solana.PublicKey]*lifecycle.Settlement
	removed       map[solana.PublicKey]bool
	stakeAccounts map[solana.PublicKey]types.StakeAccount
	refunds       []lifecycle.Refund
}

func (st *staged) settlement(address solana.PublicKey) (*lifecycle.Settlement, error) {
	if st.removed[address] {
		return nil, fmt.Errorf("%w: %s", ErrSettlementNotFound, address)
	}
	if settlement, ok := st.settlements[address]; ok {
		return settlement, nil
	}
	settlement, ok := st.ledger.settlements[address]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSettlementNotFound, address)
	}
	clone := settlement.Clone()
	st.settlements[address] = clone
	return clone, nil
}

func (st *staged) stakeAccount(address solana.PublicKey) (types.StakeAccount, error) {
	if account, ok := st.stakeAccounts[address]; ok {
		return account, nil
	}
	account, ok := st.ledger.stakeAccounts[address]
	if !ok {
		return types.StakeAccount{}, fmt.Errorf("%w: %s", ErrStakeAccountNotFound, address)
	}
	return account, nil
}

func (st *staged) apply(ix *Instruction) error {
	l := st.ledger
	switch ix.Kind {
	case InitSettlement:
		if _, ok := l.bonds[ix.Bond]; !ok {
			return fmt.Errorf("%w: %s", ErrBondNotFound, ix.Bond)
		}
		expected, err := SettlementAddress(l.programID, ix.Bond, ix.Init.MerkleRoot, ix.Init.Epoch)
		if err != nil {
			return err
		}
		if expected != ix.Settlement {
			return fmt.Errorf("%w: expected %s, got %s", ErrSettlementAddressMismatch, expected, ix.Settlement)
		}
		if _, err := st.settlement(ix.Settlement); err == nil {
			return fmt.Errorf("%w: %s", ErrSettlementExists, ix.Settlement)
		}
		stakerAuthority, err := SettlementStakerAuthority(l.programID, ix.Settlement)
		if err != nil {
			return err
		}
		settlement, err := lifecycle.Init(&l.config, l.clock, lifecycle.InitParams{
			Address:         ix.Settlement,
			Bond:            ix.Bond,
			StakerAuthority: stakerAuthority,
			MerkleRoot:      ix.Init.MerkleRoot,
			MaxTotalClaim:   ix.Init.MaxTotalClaim,
			MaxNumNodes:     ix.Init.MaxNumNodes,
			Epoch:           ix.Init.Epoch,
			RentCollector:   ix.Init.RentCollector,
		})
		if err != nil {
			return err
		}
		delete(st.removed, ix.Settlement)
		st.settlements[ix.Settlement] = settlement
		return nil

	case UpsizeSettlementClaims:
		settlement, err := st.settlement(ix.Settlement)
		if err != nil {
			return err
		}
		_, err = settlement.UpsizeClaims()
		return err

	case FundSettlement:
		settlement, err := st.settlement(ix.Settlement)
		if err != nil {
			return err
		}
		account, err := st.stakeAccount(ix.Fund.StakeAccount)
		if err != nil {
			return err
		}
		if account.Lamports < ix.Fund.Lamports {
			return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientStake, account.Address, account.Lamports, ix.Fund.Lamports)
		}
		if err := settlement.Fund(&l.config, ix.Fund.Lamports); err != nil {
			return err
		}
		account.Lamports -= ix.Fund.Lamports
		st.stakeAccounts[account.Address] = account
		return nil

	case ClaimSettlement:
		settlement, err := st.settlement(ix.Settlement)
		if err != nil {
			return err
		}
		account, err := st.stakeAccount(ix.Claim.StakeAccountTo)
		if err != nil {
			return err
		}
		node := &ix.Claim.Node
		if account.StakeAuthority != node.StakeAuthority || account.WithdrawAuthority != node.WithdrawAuthority {
			return fmt.Errorf("%w: %s", ErrStakeAccountMismatch, account.Address)
		}
		if err := settlement.Claim(&l.config, l.clock, node); err != nil {
			return err
		}
		account.Lamports += node.ClaimAmount
		st.stakeAccounts[account.Address] = account
		return nil

	case CloseSettlement, CancelSettlement:
		settlement, err := st.settlement(ix.Settlement)
		if err != nil {
			return err
		}
		var refund lifecycle.Refund
		if ix.Kind == CloseSettlement {
			refund, err = settlement.Close(&l.config, l.clock)
		} else {
			refund, err = settlement.Cancel(&l.config, l.clock)
		}
		if err != nil {
			return err
		}
		delete(st.settlements, ix.Settlement)
		st.removed[ix.Settlement] = true
		st.refunds = append(st.refunds, refund)
		return nil
	}
	return fmt.Errorf("unknown instruction kind %q", ix.Kind)
}

func (st *staged) commit() {
	l := st.ledger
	for address := range st.removed {
		delete(l.settlements, address)
	}
	maps.Copy(l.settlements, st.settlements)
	maps.Copy(l.stakeAccounts, st.stakeAccounts)
	l.refunds = append(l.refunds, st.refunds...)
}

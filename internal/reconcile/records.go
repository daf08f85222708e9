package reconcile

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/dedup"
	"github.com/stakebonds/bonds-settlement/internal/ledger"
	"github.com/stakebonds/bonds-settlement/internal/lifecycle"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

type Phase string

const (
	// PhaseMissing settlements need InitSettlement.
	PhaseMissing Phase = "Missing"
	// PhaseUnfunded settlements exist on the ledger without any funding.
	PhaseUnfunded Phase = "Unfunded"
	// PhaseClaimable settlements hold funding, possibly less than their max
	// total claim; unpaid leaves that fit the funding need claiming.
	PhaseClaimable Phase = "Claimable"
)

func (p Phase) String() string {
	return string(p)
}

// Record pairs one computed merkle tree with its ledger identity and state.
type Record struct {
	Tree    *types.MerkleTreeMeta
	Epoch   uint64
	Bond    types.BondState
	Address solana.PublicKey
	// Ledger is nil while the settlement does not exist on the ledger.
	Ledger *types.SettlementLedgerState
	Bitmap *dedup.ClaimBitmap
}

func (r *Record) Phase() Phase {
	switch {
	case r.Ledger == nil:
		return PhaseMissing
	case r.Ledger.TotalFunded == 0:
		return PhaseUnfunded
	default:
		return PhaseClaimable
	}
}

// NeedsFunding reports whether the ledger settlement is funded below its max
// total claim. Partly funded settlements are claimable and need a top-up.
func (r *Record) NeedsFunding() bool {
	return r.Ledger != nil && !r.Ledger.IsFunded()
}

// PendingUpsizes is how many UpsizeSettlementClaims calls the claim bitmap
// still needs.
func (r *Record) PendingUpsizes() int {
	switch {
	case r.Ledger == nil:
		return dedup.UpsizeCalls(r.Tree.MaxTotalClaims)
	case r.Bitmap == nil:
		return dedup.UpsizeCalls(r.Ledger.MaxNumNodes)
	case r.Bitmap.IsFullySized():
		return 0
	}
	missing := r.Bitmap.TargetSize() - r.Bitmap.Size()
	return (missing + dedup.MaxUpsizeBytes - 1) / dedup.MaxUpsizeBytes
}

// Reconciliation is the ledger view of one batch of computed trees.
type Reconciliation struct {
	Config  *types.ConfigState
	Clock   types.Clock
	Epoch   uint64
	Records []Record
	// Settlements holds every live settlement of the owning config, matched or not.
	Settlements []types.SettlementLedgerState
}

func (r *Reconciliation) ByPhase(phase Phase) []*Record {
	var out []*Record
	for i := range r.Records {
		if r.Records[i].Phase() == phase {
			out = append(out, &r.Records[i])
		}
	}
	return out
}

func (r *Reconciliation) settlementView(state *types.SettlementLedgerState) *lifecycle.Settlement {
	return &lifecycle.Settlement{State: *state}
}

// ClaimWindowError returns nil while claims of the ledger settlement are open.
func (r *Reconciliation) ClaimWindowError(state *types.SettlementLedgerState) error {
	return r.settlementView(state).CheckClaimWindow(r.Config, r.Clock)
}

func (r *Reconciliation) IsClosable(state *types.SettlementLedgerState) bool {
	return r.settlementView(state).IsExpired(r.Config, r.Clock) || state.IsFullyClaimed()
}

// BuildRecords pairs every tree of the collection with its deterministic
// ledger identity and attaches the ledger state found for it. Trees of
// validators without a bond are logged and skipped.
func BuildRecords(ctx context.Context, reader ledger.Reader, trees *types.MerkleTreeCollection) (*Reconciliation, error) {
	programConfig, err := reader.ProgramConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read program config: %w", err)
	}
	clock, err := reader.Clock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger clock: %w", err)
	}
	bonds, err := reader.FindBonds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find bonds: %w", err)
	}
	settlements, err := reader.FindSettlements(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find settlements: %w", err)
	}

	bondByVote := make(map[solana.PublicKey]types.BondState, len(bonds))
	for _, bond := range bonds {
		bondByVote[bond.VoteAccount] = bond
	}
	settlementByAddress := make(map[solana.PublicKey]*types.SettlementLedgerState, len(settlements))
	for i := range settlements {
		settlementByAddress[settlements[i].Address] = &settlements[i]
	}

	result := &Reconciliation{
		Config:      programConfig,
		Clock:       clock,
		Epoch:       trees.Epoch,
		Settlements: settlements,
	}
	seen := make(map[solana.PublicKey]struct{}, len(trees.Trees))
	var existing []solana.PublicKey
	for i := range trees.Trees {
		tree := &trees.Trees[i]
		bond, ok := bondByVote[tree.VoteAccount]
		if !ok {
			computationErr := types.NewError(types.ComputationError, fmt.Errorf("%w for vote account %s", ledger.ErrBondNotFound, tree.VoteAccount))
			log.Ctx(ctx).Warn().
				Err(computationErr).
				Stringer("vote_account", tree.VoteAccount).
				Stringer("reason", tree.Reason).
				Msg("skipping settlement without bond")
			continue
		}
		address, err := ledger.SettlementAddress(reader.ProgramID(), bond.Address, tree.MerkleRoot, trees.Epoch)
		if err != nil {
			return nil, types.NewError(types.InternalServiceError, err)
		}
		if _, dup := seen[address]; dup {
			log.Ctx(ctx).Warn().
				Stringer("settlement", address).
				Stringer("vote_account", tree.VoteAccount).
				Msg("skipping duplicate settlement of identical claims")
			continue
		}
		seen[address] = struct{}{}

		record := Record{Tree: tree, Epoch: trees.Epoch, Bond: bond, Address: address}
		if state, ok := settlementByAddress[address]; ok {
			record.Ledger = state
			existing = append(existing, address)
		}
		result.Records = append(result.Records, record)
	}

	if len(existing) > 0 {
		bitmaps, err := reader.ClaimBitmaps(ctx, existing)
		if err != nil {
			return nil, fmt.Errorf("failed to read claim bitmaps: %w", err)
		}
		for i := range result.Records {
			result.Records[i].Bitmap = bitmaps[result.Records[i].Address]
		}
	}

	log.Ctx(ctx).Info().
		Uint64("epoch", trees.Epoch).
		Int("trees", len(trees.Trees)).
		Int("records", len(result.Records)).
		Int("missing", len(result.ByPhase(PhaseMissing))).
		Int("unfunded", len(result.ByPhase(PhaseUnfunded))).
		Int("claimable", len(result.ByPhase(PhaseClaimable))).
		Msg("reconciled settlements with ledger")
	return result, nil
}

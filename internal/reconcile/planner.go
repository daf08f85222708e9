package reconcile

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/ledger"
	"github.com/stakebonds/bonds-settlement/internal/stakeindex"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

const (
	OperationInit  = "init-settlements"
	OperationFund  = "fund-settlements"
	OperationClaim = "claim-settlements"
	OperationClose = "close-settlements"

	upsizesPerTx = 8
	claimsPerTx  = 2
)

// Planner turns a Reconciliation into the transactions that move each
// settlement to its next lifecycle state.
type Planner struct {
	reader        ledger.Reader
	rentCollector solana.PublicKey
	// marinadeFunding is the withdraw authority of the stake accounts funding
	// Marinade funded settlements, nil when such settlements are not funded.
	marinadeFunding *solana.PublicKey
}

func NewPlanner(reader ledger.Reader, rentCollector solana.PublicKey, marinadeFunding *solana.PublicKey) *Planner {
	return &Planner{
		reader:          reader,
		rentCollector:   rentCollector,
		marinadeFunding: marinadeFunding,
	}
}

// PlanInit creates missing settlements and grows their claim bitmaps to
// full size. Settlements left partially sized by an earlier run only get
// the remaining upsizes.
func (p *Planner) PlanInit(ctx context.Context, r *Reconciliation) *Plan {
	plan := &Plan{Operation: OperationInit}
	for i := range r.Records {
		record := &r.Records[i]
		upsizes := record.PendingUpsizes()
		if record.Ledger != nil && upsizes == 0 {
			continue
		}
		// a closed settlement must not be recreated once its window is over
		if record.Ledger == nil && r.Clock.Epoch >= record.Epoch+r.Config.EpochsToClaimSettlement {
			log.Ctx(ctx).Debug().
				Stringer("settlement", record.Address).
				Uint64("epoch", record.Epoch).
				Msg("claim window over, not initializing settlement")
			continue
		}

		var ixs []ledger.Instruction
		if record.Ledger == nil {
			ixs = append(ixs, ledger.Instruction{
				Kind:       ledger.InitSettlement,
				Settlement: record.Address,
				Bond:       record.Bond.Address,
				Init: &ledger.InitArgs{
					VoteAccount:   record.Bond.VoteAccount,
					MerkleRoot:    record.Tree.MerkleRoot,
					MaxTotalClaim: record.Tree.MaxTotalClaimSum,
					MaxNumNodes:   record.Tree.MaxTotalClaims,
					Epoch:         record.Epoch,
					RentCollector: p.rentCollector,
				},
			})
		}
		for range upsizes {
			ixs = append(ixs, ledger.Instruction{
				Kind:       ledger.UpsizeSettlementClaims,
				Settlement: record.Address,
				Bond:       record.Bond.Address,
			})
		}

		var chain []*ledger.Transaction
		for part := range slices.Chunk(ixs, upsizesPerTx) {
			chain = append(chain, ledger.NewTransaction(
				fmt.Sprintf("init %s settlement %s of %s (%d/%d)",
					record.Tree.Reason, record.Address, record.Tree.VoteAccount, len(chain)+1, (len(ixs)+upsizesPerTx-1)/upsizesPerTx),
				part...,
			))
		}
		plan.add(chain...)
	}
	log.Ctx(ctx).Info().
		Int("transactions", plan.Transactions()).
		Int("instructions", plan.Instructions()).
		Msg("planned settlement initialization")
	return plan
}

// fundingSources hands out the lamports of funding stake accounts so one
// account is never drawn beyond its balance within a plan.
type fundingSources struct {
	reader    ledger.Reader
	byBond    map[solana.PublicKey][]types.StakeAccount
	marinade  []types.StakeAccount
	loaded    bool
	remaining map[solana.PublicKey]uint64
}

func (s *fundingSources) accounts(ctx context.Context, record *Record, marinadeFunding *solana.PublicKey) ([]types.StakeAccount, error) {
	if record.Tree.Funder == types.FunderMarinade {
		if marinadeFunding == nil {
			return nil, nil
		}
		if !s.loaded {
			accounts, err := s.reader.FindStakeAccounts(ctx, *marinadeFunding, nil)
			if err != nil {
				return nil, err
			}
			s.marinade, s.loaded = accounts, true
		}
		return s.marinade, nil
	}
	if accounts, ok := s.byBond[record.Bond.Address]; ok {
		return accounts, nil
	}
	accounts, err := s.reader.BondStakeAccounts(ctx, record.Bond)
	if err != nil {
		return nil, err
	}
	s.byBond[record.Bond.Address] = accounts
	return accounts, nil
}

func (s *fundingSources) balance(account types.StakeAccount) uint64 {
	if remaining, ok := s.remaining[account.Address]; ok {
		return remaining
	}
	return account.Lamports
}

// PlanFund funds every initialized settlement up to its max total claim,
// drawing from the largest funding stake accounts first. Settlements that
// cannot be fully funded get what is available and are topped up by a later
// run.
func (p *Planner) PlanFund(ctx context.Context, r *Reconciliation) (*Plan, error) {
	plan := &Plan{Operation: OperationFund}
	sources := &fundingSources{
		reader:    p.reader,
		byBond:    make(map[solana.PublicKey][]types.StakeAccount),
		remaining: make(map[solana.PublicKey]uint64),
	}

	for i := range r.Records {
		record := &r.Records[i]
		if !record.NeedsFunding() {
			continue
		}
		need := record.Ledger.MaxTotalClaim - record.Ledger.TotalFunded
		accounts, err := sources.accounts(ctx, record, p.marinadeFunding)
		if err != nil {
			return nil, fmt.Errorf("failed to find funding of settlement %s: %w", record.Address, err)
		}
		accounts = slices.Clone(accounts)
		slices.SortStableFunc(accounts, func(a, b types.StakeAccount) int {
			if c := cmp.Compare(sources.balance(b), sources.balance(a)); c != 0 {
				return c
			}
			return bytes.Compare(a.Address[:], b.Address[:])
		})

		var ixs []ledger.Instruction
		for _, account := range accounts {
			if need == 0 {
				break
			}
			available := sources.balance(account)
			if available == 0 {
				continue
			}
			amount := min(available, need)
			sources.remaining[account.Address] = available - amount
			need -= amount
			ixs = append(ixs, ledger.Instruction{
				Kind:       ledger.FundSettlement,
				Settlement: record.Address,
				Bond:       record.Bond.Address,
				Fund:       &ledger.FundArgs{StakeAccount: account.Address, Lamports: amount},
			})
		}
		if need > 0 {
			log.Ctx(ctx).Warn().
				Stringer("settlement", record.Address).
				Stringer("vote_account", record.Bond.VoteAccount).
				Stringer("funder", record.Tree.Funder).
				Uint64("missing_lamports", need).
				Msg("not enough stake to fully fund settlement")
		}
		if len(ixs) > 0 {
			plan.add(ledger.NewTransaction(
				fmt.Sprintf("fund %s settlement %s of %s", record.Tree.Reason, record.Address, record.Tree.VoteAccount),
				ixs...,
			))
		}
	}
	log.Ctx(ctx).Info().
		Int("transactions", plan.Transactions()).
		Int("instructions", plan.Instructions()).
		Msg("planned settlement funding")
	return plan, nil
}

// PlanClaims claims every unpaid leaf of funded settlements in their claim
// window. A leaf is claimed only into an existing stake account controlled
// by its authority pair.
func (p *Planner) PlanClaims(ctx context.Context, r *Reconciliation) (*Plan, error) {
	plan := &Plan{Operation: OperationClaim}
	destinations := make(map[stakeindex.AuthorityPair]*solana.PublicKey)
	var skippedNoAccount int

	for _, record := range r.ByPhase(PhaseClaimable) {
		if err := r.ClaimWindowError(record.Ledger); err != nil {
			log.Ctx(ctx).Debug().Err(err).Stringer("settlement", record.Address).Msg("settlement not claimable")
			continue
		}
		if record.Bitmap == nil || !record.Bitmap.IsFullySized() {
			log.Ctx(ctx).Warn().Stringer("settlement", record.Address).Msg("claim bitmap is not fully sized")
			continue
		}
		budget := record.Ledger.TotalFunded - record.Ledger.TotalClaimed

		var claims []ledger.Instruction
		for _, node := range record.Tree.TreeNodes {
			if node.ClaimAmount == 0 {
				continue
			}
			claimed, err := record.Bitmap.IsSet(node.Index)
			if err != nil {
				return nil, types.NewError(types.InvariantViolation, fmt.Errorf("settlement %s: %w", record.Address, err))
			}
			if claimed {
				continue
			}
			if node.ClaimAmount > budget {
				log.Ctx(ctx).Warn().
					Stringer("settlement", record.Address).
					Uint64("index", node.Index).
					Uint64("claim", node.ClaimAmount).
					Uint64("budget", budget).
					Msg("claim exceeds remaining settlement funding")
				continue
			}
			to, err := p.destination(ctx, destinations, node.WithdrawAuthority, node.StakeAuthority)
			if err != nil {
				return nil, err
			}
			if to == nil {
				skippedNoAccount++
				continue
			}
			budget -= node.ClaimAmount
			claims = append(claims, ledger.Instruction{
				Kind:       ledger.ClaimSettlement,
				Settlement: record.Address,
				Bond:       record.Bond.Address,
				Claim:      &ledger.ClaimArgs{Node: node, StakeAccountTo: *to},
			})
		}

		for part := range slices.Chunk(claims, claimsPerTx) {
			plan.add(ledger.NewTransaction(
				fmt.Sprintf("claim %d leaves of settlement %s", len(part), record.Address),
				part...,
			))
		}
	}
	log.Ctx(ctx).Info().
		Int("transactions", plan.Transactions()).
		Int("instructions", plan.Instructions()).
		Int("skipped_no_stake_account", skippedNoAccount).
		Msg("planned settlement claims")
	return plan, nil
}

// destination picks the stake account a claim is paid into, preferring
// delegated accounts. Nil means the authority pair controls no stake account.
func (p *Planner) destination(
	ctx context.Context,
	cache map[stakeindex.AuthorityPair]*solana.PublicKey,
	withdrawAuthority, stakeAuthority solana.PublicKey,
) (*solana.PublicKey, error) {
	key := stakeindex.AuthorityPair{Withdraw: withdrawAuthority, Stake: stakeAuthority}
	if to, ok := cache[key]; ok {
		return to, nil
	}
	accounts, err := p.reader.FindStakeAccounts(ctx, withdrawAuthority, &stakeAuthority)
	if err != nil {
		return nil, fmt.Errorf("failed to find stake accounts of %s: %w", withdrawAuthority, err)
	}
	var to *solana.PublicKey
	if len(accounts) > 0 {
		chosen := accounts[0].Address
		for _, account := range accounts {
			if account.Voter != nil {
				chosen = account.Address
				break
			}
		}
		to = &chosen
	}
	cache[key] = to
	return to, nil
}

// PlanClose closes ledger settlements whose claim window expired or that
// were fully claimed. With cancelUnknown, open settlements of the epoch that
// no computed tree matches are cancelled.
func (p *Planner) PlanClose(ctx context.Context, r *Reconciliation, cancelUnknown bool) *Plan {
	plan := &Plan{Operation: OperationClose}
	known := make(map[solana.PublicKey]struct{}, len(r.Records))
	for _, record := range r.Records {
		known[record.Address] = struct{}{}
	}

	for i := range r.Settlements {
		state := &r.Settlements[i]
		kind := ledger.CloseSettlement
		switch {
		case r.IsClosable(state):
		case cancelUnknown && state.EpochCreatedAt == r.Epoch:
			if _, ok := known[state.Address]; ok {
				continue
			}
			kind = ledger.CancelSettlement
		default:
			continue
		}
		plan.add(ledger.NewTransaction(
			fmt.Sprintf("%s %s of epoch %d", kind, state.Address, state.EpochCreatedAt),
			ledger.Instruction{Kind: kind, Settlement: state.Address, Bond: state.Bond},
		))
	}
	log.Ctx(ctx).Info().
		Int("transactions", plan.Transactions()).
		Bool("cancel_unknown", cancelUnknown).
		Msg("planned settlement closing")
	return plan
}

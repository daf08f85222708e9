package lifecycle

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/dedup"
	"github.com/stakebonds/bonds-settlement/internal/merkle"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

// Settlement is the ledger side record of one settlement together with its
// claim bitmap. Callers serialize access; every method either applies fully
// or leaves the settlement untouched.
type Settlement struct {
	State  types.SettlementLedgerState
	Bitmap *dedup.ClaimBitmap
	Status Status
}

type InitParams struct {
	Address             solana.PublicKey
	Bond                solana.PublicKey
	StakerAuthority     solana.PublicKey
	MerkleRoot          solana.Hash
	MaxTotalClaim       uint64
	MaxNumNodes         uint64
	// Epoch the settlement pays for; the claim window is counted from it.
	Epoch               uint64
	RentCollector       solana.PublicKey
	BitmapDiscriminator [8]byte
}

// Refund is what closing or cancelling a settlement returns.
type Refund struct {
	Settlement         solana.PublicKey
	Bond               solana.PublicKey
	RentCollector      solana.PublicKey
	UnclaimedLamports  uint64
	SplitRentCollector *solana.PublicKey
	SplitRentAmount    uint64
}

func Init(config *types.ConfigState, clock types.Clock, params InitParams) (*Settlement, error) {
	if config.Paused {
		return nil, ErrProgramPaused
	}
	if params.MaxNumNodes == 0 {
		return nil, fmt.Errorf("%w: max number of nodes must be positive", ErrInvalidSettlementState)
	}
	if params.MerkleRoot == (solana.Hash{}) {
		return nil, fmt.Errorf("%w: empty merkle root", ErrInvalidSettlementState)
	}
	return &Settlement{
		State: types.SettlementLedgerState{
			Address:         params.Address,
			Bond:            params.Bond,
			StakerAuthority: params.StakerAuthority,
			MerkleRoot:      params.MerkleRoot,
			MaxTotalClaim:   params.MaxTotalClaim,
			MaxNumNodes:     params.MaxNumNodes,
			EpochCreatedAt:  params.Epoch,
			SlotCreatedAt:   clock.Slot,
			RentCollector:   params.RentCollector,
		},
		Bitmap: dedup.New(dedup.Header{
			Discriminator: params.BitmapDiscriminator,
			Settlement:    params.Address,
			MaxRecords:    params.MaxNumNodes,
		}),
		Status: StatusInitialized,
	}, nil
}

func (s *Settlement) transition(to Status) error {
	if !IsQualifiedStatusChange(s.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusChange, s.Status, to)
	}
	s.Status = to
	return nil
}

// UpsizeClaims grows the claim bitmap once. It is allowed while paused.
func (s *Settlement) UpsizeClaims() (int, error) {
	if s.Status.IsTerminal() {
		return 0, fmt.Errorf("%w: upsize of %s settlement", ErrInvalidStatusChange, s.Status)
	}
	return s.Bitmap.Upsize()
}

// Fund adds lamports to the settlement; funding is additive until the
// settlement covers its max total claim.
func (s *Settlement) Fund(config *types.ConfigState, lamports uint64) error {
	if config.Paused {
		return ErrProgramPaused
	}
	if s.State.IsFunded() && s.Status == StatusFunded {
		return ErrAlreadyFunded
	}
	if err := s.transition(StatusFunded); err != nil {
		return err
	}
	s.State.TotalFunded += lamports
	return nil
}

// ClaimStartSlot is the first slot claims are accepted at.
func (s *Settlement) ClaimStartSlot(config *types.ConfigState) uint64 {
	return s.State.SlotCreatedAt + config.SlotsToStartSettlementClaiming
}

// ClaimEndEpoch is the first epoch claims are no longer accepted in.
func (s *Settlement) ClaimEndEpoch(config *types.ConfigState) uint64 {
	return s.State.EpochCreatedAt + config.EpochsToClaimSettlement
}

// CheckClaimWindow returns nil while claims are open.
func (s *Settlement) CheckClaimWindow(config *types.ConfigState, clock types.Clock) error {
	if clock.Slot < s.ClaimStartSlot(config) {
		return fmt.Errorf("%w: slot %d < %d", ErrClaimingNotStarted, clock.Slot, s.ClaimStartSlot(config))
	}
	if s.IsExpired(config, clock) {
		return fmt.Errorf("%w: epoch %d >= %d", ErrClaimingExpired, clock.Epoch, s.ClaimEndEpoch(config))
	}
	return nil
}

func (s *Settlement) IsExpired(config *types.ConfigState, clock types.Clock) bool {
	return clock.Epoch >= s.ClaimEndEpoch(config)
}

// Claim pays one merkle leaf. The bitmap bit is set last so a rejected claim
// leaves no trace.
func (s *Settlement) Claim(config *types.ConfigState, clock types.Clock, node *types.TreeNode) error {
	if config.Paused {
		return ErrProgramPaused
	}
	if s.Status != StatusFunded {
		return fmt.Errorf("%w: settlement is %s", ErrInsufficientFunding, s.Status)
	}
	if err := s.CheckClaimWindow(config, clock); err != nil {
		return err
	}
	if node.Index >= s.Bitmap.MaxRecords() {
		return fmt.Errorf("%w: index %d out of %d leaves", ErrInvalidProof, node.Index, s.Bitmap.MaxRecords())
	}
	if !merkle.VerifyTreeNode(node, s.State.MerkleRoot) {
		return ErrInvalidProof
	}
	claimed, err := s.Bitmap.IsSet(node.Index)
	if err != nil {
		return err
	}
	if claimed {
		return fmt.Errorf("%w: index %d", ErrDuplicateClaim, node.Index)
	}
	if s.State.TotalClaimed+node.ClaimAmount > s.State.MaxTotalClaim {
		return fmt.Errorf("%w: %d + %d > %d", ErrMaxTotalClaimExceeded, s.State.TotalClaimed, node.ClaimAmount, s.State.MaxTotalClaim)
	}
	if s.State.NumNodesClaimed+1 > s.State.MaxNumNodes {
		return fmt.Errorf("%w: %d", ErrMaxNumNodesExceeded, s.State.MaxNumNodes)
	}
	if s.State.TotalClaimed+node.ClaimAmount > s.State.TotalFunded {
		return fmt.Errorf("%w: funded %d, claimed %d, claim %d", ErrInsufficientFunding, s.State.TotalFunded, s.State.TotalClaimed, node.ClaimAmount)
	}
	set, err := s.Bitmap.TryToSet(node.Index)
	if err != nil {
		return err
	}
	if !set {
		return fmt.Errorf("%w: index %d", ErrDuplicateClaim, node.Index)
	}
	s.State.TotalClaimed += node.ClaimAmount
	s.State.NumNodesClaimed++
	return nil
}

// Close ends a settlement whose window expired or that was fully claimed.
func (s *Settlement) Close(config *types.ConfigState, clock types.Clock) (Refund, error) {
	if config.Paused {
		return Refund{}, ErrProgramPaused
	}
	if !s.IsExpired(config, clock) && !s.State.IsFullyClaimed() {
		return Refund{}, ErrClaimingNotExpired
	}
	if err := s.transition(StatusClosed); err != nil {
		return Refund{}, err
	}
	return s.refund(), nil
}

// Cancel ends a settlement before its claim window closes.
func (s *Settlement) Cancel(config *types.ConfigState, clock types.Clock) (Refund, error) {
	if config.Paused {
		return Refund{}, ErrProgramPaused
	}
	if s.IsExpired(config, clock) {
		return Refund{}, fmt.Errorf("%w: use close instead of cancel", ErrClaimingExpired)
	}
	if err := s.transition(StatusCancelled); err != nil {
		return Refund{}, err
	}
	return s.refund(), nil
}

func (s *Settlement) refund() Refund {
	return Refund{
		Settlement:         s.State.Address,
		Bond:               s.State.Bond,
		RentCollector:      s.State.RentCollector,
		UnclaimedLamports:  s.State.TotalFunded - s.State.TotalClaimed,
		SplitRentCollector: s.State.SplitRentCollector,
		SplitRentAmount:    s.State.SplitRentAmount,
	}
}

// Clone returns a deep copy, so a multi instruction transaction can be applied
// on copies and committed only when every instruction succeeded.
func (s *Settlement) Clone() *Settlement {
	clone := *s
	clone.Bitmap = s.Bitmap.Clone()
	if s.State.SplitRentCollector != nil {
		collector := *s.State.SplitRentCollector
		clone.State.SplitRentCollector = &collector
	}
	return &clone
}

// IsLedgerInvariantViolation tells rejected claims apart from other failures.
func IsLedgerInvariantViolation(err error) bool {
	for _, target := range []error{
		ErrDuplicateClaim, ErrInvalidProof, ErrClaimingNotStarted, ErrClaimingExpired,
		ErrClaimingNotExpired, ErrMaxTotalClaimExceeded, ErrMaxNumNodesExceeded,
		ErrInsufficientFunding, ErrAlreadyFunded, ErrProgramPaused, ErrInvalidStatusChange,
		dedup.ErrNotInitialized, dedup.ErrAlreadyInitialized, dedup.ErrIndexOutOfRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

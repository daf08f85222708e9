package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

type InstructionKind string

const (
	InitSettlement         InstructionKind = "InitSettlement"
	UpsizeSettlementClaims InstructionKind = "UpsizeSettlementClaims"
	FundSettlement         InstructionKind = "FundSettlement"
	ClaimSettlement        InstructionKind = "ClaimSettlement"
	CloseSettlement        InstructionKind = "CloseSettlement"
	CancelSettlement       InstructionKind = "CancelSettlement"
)

func (k InstructionKind) String() string {
	return string(k)
}

type InitArgs struct {
	VoteAccount   solana.PublicKey
	MerkleRoot    solana.Hash
	MaxTotalClaim uint64
	MaxNumNodes   uint64
	Epoch         uint64
	RentCollector solana.PublicKey
}

type FundArgs struct {
	StakeAccount solana.PublicKey
	Lamports     uint64
}

type ClaimArgs struct {
	Node           types.TreeNode
	StakeAccountTo solana.PublicKey
}

// Instruction is one settlement program call. Exactly one of the argument
// fields is set for the kinds that take arguments.
type Instruction struct {
	Kind       InstructionKind
	Settlement solana.PublicKey
	Bond       solana.PublicKey
	Init       *InitArgs
	Fund       *FundArgs
	Claim      *ClaimArgs
}

func (ix *Instruction) Validate() error {
	switch ix.Kind {
	case InitSettlement:
		if ix.Init == nil {
			return fmt.Errorf("%s instruction without init args", ix.Kind)
		}
	case FundSettlement:
		if ix.Fund == nil {
			return fmt.Errorf("%s instruction without fund args", ix.Kind)
		}
	case ClaimSettlement:
		if ix.Claim == nil {
			return fmt.Errorf("%s instruction without claim args", ix.Kind)
		}
	case UpsizeSettlementClaims, CloseSettlement, CancelSettlement:
	default:
		return fmt.Errorf("unknown instruction kind %q", ix.Kind)
	}
	return nil
}

type Transaction struct {
	Description  string
	Instructions []Instruction
}

func NewTransaction(description string, instructions ...Instruction) *Transaction {
	return &Transaction{Description: description, Instructions: instructions}
}

// PriorityFee is attached to every transaction as compute budget instructions.
type PriorityFee struct {
	MicroLamportsPerComputeUnit uint64
	ComputeUnitLimit            uint32
}

type Receipt struct {
	Signature   string
	ExecutedIxs int
}

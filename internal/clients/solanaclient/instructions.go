package solanaclient

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/ledger"
)

var (
	computeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")
	stakeConfigID          = solana.MustPublicKeyFromBase58("StakeConfig11111111111111111111111111111111")
)

const (
	setComputeUnitLimitTag = 2
	setComputeUnitPriceTag = 3
)

func computeBudgetInstructions(fee ledger.PriorityFee) []solana.Instruction {
	var ixs []solana.Instruction
	if fee.ComputeUnitLimit > 0 {
		data := make([]byte, 5)
		data[0] = setComputeUnitLimitTag
		binary.LittleEndian.PutUint32(data[1:], fee.ComputeUnitLimit)
		ixs = append(ixs, solana.NewInstruction(computeBudgetProgramID, solana.AccountMetaSlice{}, data))
	}
	if fee.MicroLamportsPerComputeUnit > 0 {
		data := make([]byte, 9)
		data[0] = setComputeUnitPriceTag
		binary.LittleEndian.PutUint64(data[1:], fee.MicroLamportsPerComputeUnit)
		ixs = append(ixs, solana.NewInstruction(computeBudgetProgramID, solana.AccountMetaSlice{}, data))
	}
	return ixs
}

type initSettlementArgs struct {
	MerkleRoot     solana.Hash
	MaxTotalClaim  uint64
	MaxMerkleNodes uint64
	RentCollector  solana.PublicKey
	Epoch          uint64
}

type claimSettlementArgs struct {
	Proof                  []solana.Hash
	StakeAccountStaker     solana.PublicKey
	StakeAccountWithdrawer solana.PublicKey
	Claim                  uint64
	Index                  uint64
}

// accountsEnv holds the addresses the program instructions reference beyond
// the ones carried by ledger.Instruction, looked up before building.
type accountsEnv struct {
	programID       solana.PublicKey
	config          solana.PublicKey
	operator        solana.PublicKey
	bondsWithdrawer solana.PublicKey
	voteAccounts    map[solana.PublicKey]solana.PublicKey
	// fundedStake maps a settlement to a stake account funded to it; the
	// program id stands for none.
	fundedStake    map[solana.PublicKey]solana.PublicKey
	rentCollectors map[solana.PublicKey]solana.PublicKey
}

func (env *accountsEnv) fundedStakeOrNone(settlement solana.PublicKey) solana.PublicKey {
	if stake, ok := env.fundedStake[settlement]; ok {
		return stake
	}
	return env.programID
}

type builtInstruction struct {
	instruction solana.Instruction
	// signers besides the operator
	signers []solana.PrivateKey
}

func anchorInstruction(
	programID solana.PublicKey, name string, args any, accounts solana.AccountMetaSlice,
) (solana.Instruction, error) {
	disc := instructionDiscriminator(name)
	data := disc[:]
	if args != nil {
		body, err := bin.MarshalBorsh(args)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s args: %w", name, err)
		}
		data = append(data, body...)
	}
	return solana.NewInstruction(programID, accounts, data), nil
}

func buildInstruction(env *accountsEnv, ix *ledger.Instruction) (*builtInstruction, error) {
	claims, err := ledger.SettlementClaimsAddress(env.programID, ix.Settlement)
	if err != nil {
		return nil, err
	}
	stakerAuthority, err := ledger.SettlementStakerAuthority(env.programID, ix.Settlement)
	if err != nil {
		return nil, err
	}

	var (
		name     string
		args     any
		accounts solana.AccountMetaSlice
		signers  []solana.PrivateKey
	)
	switch ix.Kind {
	case ledger.InitSettlement:
		name = "init_settlement"
		args = initSettlementArgs{
			MerkleRoot:     ix.Init.MerkleRoot,
			MaxTotalClaim:  ix.Init.MaxTotalClaim,
			MaxMerkleNodes: ix.Init.MaxNumNodes,
			RentCollector:  ix.Init.RentCollector,
			Epoch:          ix.Init.Epoch,
		}
		accounts = solana.AccountMetaSlice{
			solana.Meta(env.config),
			solana.Meta(ix.Bond),
			solana.Meta(ix.Settlement).WRITE(),
			solana.Meta(claims).WRITE(),
			solana.Meta(env.operator).SIGNER(),
			solana.Meta(env.operator).WRITE().SIGNER(),
			solana.Meta(solana.SystemProgramID),
		}

	case ledger.UpsizeSettlementClaims:
		name = "upsize_settlement_claims"
		accounts = solana.AccountMetaSlice{
			solana.Meta(claims).WRITE(),
			solana.Meta(env.operator).WRITE().SIGNER(),
			solana.Meta(solana.SystemProgramID),
		}

	case ledger.FundSettlement:
		voteAccount, ok := env.voteAccounts[ix.Bond]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ledger.ErrBondNotFound, ix.Bond)
		}
		// the program splits the funding out of the stake account into a
		// fresh account owned by the settlement
		split, err := solana.NewRandomPrivateKey()
		if err != nil {
			return nil, err
		}
		signers = append(signers, split)
		name = "fund_settlement"
		accounts = solana.AccountMetaSlice{
			solana.Meta(env.config),
			solana.Meta(ix.Bond),
			solana.Meta(voteAccount),
			solana.Meta(ix.Settlement).WRITE(),
			solana.Meta(env.operator).SIGNER(),
			solana.Meta(ix.Fund.StakeAccount).WRITE(),
			solana.Meta(stakerAuthority),
			solana.Meta(env.bondsWithdrawer),
			solana.Meta(split.PublicKey()).WRITE().SIGNER(),
			solana.Meta(env.operator).WRITE().SIGNER(),
			solana.Meta(solana.SystemProgramID),
			solana.Meta(solana.SysVarStakeHistoryPubkey),
			solana.Meta(solana.SysVarClockPubkey),
			solana.Meta(solana.SysVarRentPubkey),
			solana.Meta(solana.StakeProgramID),
			solana.Meta(stakeConfigID),
		}

	case ledger.ClaimSettlement:
		stakeFrom, ok := env.fundedStake[ix.Settlement]
		if !ok || stakeFrom == env.programID {
			return nil, fmt.Errorf("%w: no funded stake account of settlement %s", ledger.ErrStakeAccountNotFound, ix.Settlement)
		}
		node := &ix.Claim.Node
		name = "claim_settlement_v2"
		args = claimSettlementArgs{
			Proof:                  node.Proof,
			StakeAccountStaker:     node.StakeAuthority,
			StakeAccountWithdrawer: node.WithdrawAuthority,
			Claim:                  node.ClaimAmount,
			Index:                  node.Index,
		}
		accounts = solana.AccountMetaSlice{
			solana.Meta(env.config),
			solana.Meta(ix.Bond),
			solana.Meta(ix.Settlement).WRITE(),
			solana.Meta(claims).WRITE(),
			solana.Meta(stakeFrom).WRITE(),
			solana.Meta(ix.Claim.StakeAccountTo).WRITE(),
			solana.Meta(env.bondsWithdrawer),
			solana.Meta(solana.SysVarStakeHistoryPubkey),
			solana.Meta(solana.SysVarClockPubkey),
			solana.Meta(solana.StakeProgramID),
		}

	case ledger.CloseSettlement, ledger.CancelSettlement:
		rentCollector, ok := env.rentCollectors[ix.Settlement]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ledger.ErrSettlementNotFound, ix.Settlement)
		}
		name = "close_settlement_v2"
		accounts = solana.AccountMetaSlice{
			solana.Meta(env.config),
			solana.Meta(ix.Bond),
			solana.Meta(ix.Settlement).WRITE(),
			solana.Meta(claims).WRITE(),
			solana.Meta(env.bondsWithdrawer),
			solana.Meta(rentCollector).WRITE(),
			solana.Meta(env.fundedStakeOrNone(ix.Settlement)).WRITE(),
			solana.Meta(solana.SysVarClockPubkey),
			solana.Meta(solana.StakeProgramID),
			solana.Meta(solana.SysVarStakeHistoryPubkey),
		}
		if ix.Kind == ledger.CancelSettlement {
			name = "cancel_settlement"
			accounts = append(accounts, solana.Meta(env.operator).SIGNER())
		}

	default:
		return nil, fmt.Errorf("unknown instruction kind %q", ix.Kind)
	}

	instruction, err := anchorInstruction(env.programID, name, args, accounts)
	if err != nil {
		return nil, err
	}
	return &builtInstruction{instruction: instruction, signers: signers}, nil
}

package solanaclient

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stakebonds/bonds-settlement/internal/types"
)

const discriminatorSize = 8

var (
	configDiscriminator           = accountDiscriminator("Config")
	bondDiscriminator             = accountDiscriminator("Bond")
	settlementDiscriminator       = accountDiscriminator("Settlement")
	settlementClaimsDiscriminator = accountDiscriminator("SettlementClaims")
)

func accountDiscriminator(name string) [discriminatorSize]byte {
	return discriminator("account:" + name)
}

func instructionDiscriminator(name string) [discriminatorSize]byte {
	return discriminator("global:" + name)
}

func discriminator(preimage string) [discriminatorSize]byte {
	var out [discriminatorSize]byte
	sum := sha256.Sum256([]byte(preimage))
	copy(out[:], sum[:discriminatorSize])
	return out
}

type configAccount struct {
	AdminAuthority                 solana.PublicKey
	OperatorAuthority              solana.PublicKey
	EpochsToClaimSettlement        uint64
	WithdrawLockupEpochs           uint64
	MinimumStakeLamports           uint64
	BondsWithdrawerAuthorityBump   uint8
	PauseAuthority                 solana.PublicKey
	Paused                         bool
	SlotsToStartSettlementClaiming uint64
	MinBondMaxStakeWanted          uint64
}

type bondAccount struct {
	Config            solana.PublicKey
	VoteAccount       solana.PublicKey
	Authority         solana.PublicKey
	CostPerMilleEpoch uint64
	Bump              uint8
	MaxStakeWanted    uint64
}

type settlementBumps struct {
	Pda              uint8
	StakerAuthority  uint8
	SettlementClaims uint8
}

type settlementAccount struct {
	Bond               solana.PublicKey
	StakerAuthority    solana.PublicKey
	MerkleRoot         solana.Hash
	MaxTotalClaim      uint64
	MaxMerkleNodes     uint64
	LamportsFunded     uint64
	LamportsClaimed    uint64
	MerkleNodesClaimed uint64
	EpochCreatedFor    uint64
	SlotCreatedAt      uint64
	RentCollector      solana.PublicKey
	SplitRentCollector *solana.PublicKey `bin:"optional"`
	SplitRentAmount    uint64
	Bumps              settlementBumps
}

// decodeAccount checks the anchor discriminator and borsh decodes the rest
// of data into out.
func decodeAccount(data []byte, disc [discriminatorSize]byte, out any) error {
	if len(data) < discriminatorSize || !bytes.Equal(data[:discriminatorSize], disc[:]) {
		return fmt.Errorf("account discriminator mismatch")
	}
	return bin.NewBorshDecoder(data[discriminatorSize:]).Decode(out)
}

// encodeAccount is the inverse of decodeAccount.
func encodeAccount(disc [discriminatorSize]byte, account any) ([]byte, error) {
	body, err := bin.MarshalBorsh(account)
	if err != nil {
		return nil, err
	}
	return append(disc[:], body...), nil
}

func decodeConfig(address solana.PublicKey, data []byte) (*types.ConfigState, error) {
	var account configAccount
	if err := decodeAccount(data, configDiscriminator, &account); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", address, err)
	}
	return &types.ConfigState{
		Address:                        address,
		AdminAuthority:                 account.AdminAuthority,
		OperatorAuthority:              account.OperatorAuthority,
		PauseAuthority:                 account.PauseAuthority,
		Paused:                         account.Paused,
		EpochsToClaimSettlement:        account.EpochsToClaimSettlement,
		SlotsToStartSettlementClaiming: account.SlotsToStartSettlementClaiming,
		MinimumStakeLamports:           account.MinimumStakeLamports,
	}, nil
}

func decodeBond(address solana.PublicKey, data []byte) (types.BondState, error) {
	var account bondAccount
	if err := decodeAccount(data, bondDiscriminator, &account); err != nil {
		return types.BondState{}, fmt.Errorf("failed to decode bond %s: %w", address, err)
	}
	return types.BondState{
		Address:     address,
		Config:      account.Config,
		VoteAccount: account.VoteAccount,
		Authority:   account.Authority,
	}, nil
}

func decodeSettlement(address solana.PublicKey, data []byte) (types.SettlementLedgerState, error) {
	var account settlementAccount
	if err := decodeAccount(data, settlementDiscriminator, &account); err != nil {
		return types.SettlementLedgerState{}, fmt.Errorf("failed to decode settlement %s: %w", address, err)
	}
	return types.SettlementLedgerState{
		Address:            address,
		Bond:               account.Bond,
		StakerAuthority:    account.StakerAuthority,
		MerkleRoot:         account.MerkleRoot,
		MaxTotalClaim:      account.MaxTotalClaim,
		MaxNumNodes:        account.MaxMerkleNodes,
		TotalFunded:        account.LamportsFunded,
		TotalClaimed:       account.LamportsClaimed,
		NumNodesClaimed:    account.MerkleNodesClaimed,
		EpochCreatedAt:     account.EpochCreatedFor,
		SlotCreatedAt:      account.SlotCreatedAt,
		RentCollector:      account.RentCollector,
		SplitRentCollector: account.SplitRentCollector,
		SplitRentAmount:    account.SplitRentAmount,
	}, nil
}

// Stake program accounts are bincode encoded with fixed offsets.
const (
	stakeAccountSize       = 200
	stakeStateOffset       = 0
	stakerOffset           = 12
	withdrawerOffset       = 44
	voterOffset            = 124
	stakeStateInitialized  = 1
	stakeStateDelegated    = 2
	stakeAccountHeaderSize = voterOffset + solana.PublicKeyLength
)

func decodeStakeAccount(address solana.PublicKey, lamports uint64, data []byte) (types.StakeAccount, error) {
	if len(data) < withdrawerOffset+solana.PublicKeyLength {
		return types.StakeAccount{}, fmt.Errorf("stake account %s too short: %d bytes", address, len(data))
	}
	state := binary.LittleEndian.Uint32(data[stakeStateOffset:])
	if state != stakeStateInitialized && state != stakeStateDelegated {
		return types.StakeAccount{}, fmt.Errorf("stake account %s in unexpected state %d", address, state)
	}
	account := types.StakeAccount{
		Address:           address,
		StakeAuthority:    solana.PublicKeyFromBytes(data[stakerOffset : stakerOffset+solana.PublicKeyLength]),
		WithdrawAuthority: solana.PublicKeyFromBytes(data[withdrawerOffset : withdrawerOffset+solana.PublicKeyLength]),
		Lamports:          lamports,
	}
	if state == stakeStateDelegated && len(data) >= stakeAccountHeaderSize {
		voter := solana.PublicKeyFromBytes(data[voterOffset:stakeAccountHeaderSize])
		account.Voter = &voter
	}
	return account, nil
}

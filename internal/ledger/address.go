package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	bondSeed             = []byte("bond_account")
	settlementSeed       = []byte("settlement_account")
	settlementClaimsSeed = []byte("claims_account")
	bondsWithdrawerSeed  = []byte("bonds_authority")
	settlementStakerSeed = []byte("settlement_authority")
)

func findAddress(programID solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	address, _, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive program address: %w", err)
	}
	return address, nil
}

func BondAddress(programID, config, voteAccount solana.PublicKey) (solana.PublicKey, error) {
	return findAddress(programID, bondSeed, config[:], voteAccount[:])
}

// SettlementAddress is the deterministic identity of a settlement: the same
// bond, merkle root and epoch always map to the same account.
func SettlementAddress(programID, bond solana.PublicKey, merkleRoot solana.Hash, epoch uint64) (solana.PublicKey, error) {
	var epochBytes [8]byte
	binary.LittleEndian.PutUint64(epochBytes[:], epoch)
	return findAddress(programID, settlementSeed, bond[:], merkleRoot[:], epochBytes[:])
}

func SettlementClaimsAddress(programID, settlement solana.PublicKey) (solana.PublicKey, error) {
	return findAddress(programID, settlementClaimsSeed, settlement[:])
}

// BondsWithdrawerAuthority owns the stake accounts delegated to bonds.
func BondsWithdrawerAuthority(programID, config solana.PublicKey) (solana.PublicKey, error) {
	return findAddress(programID, bondsWithdrawerSeed, config[:])
}

// SettlementStakerAuthority is the stake authority of stake accounts funded
// into a settlement.
func SettlementStakerAuthority(programID, settlement solana.PublicKey) (solana.PublicKey, error) {
	return findAddress(programID, settlementStakerSeed, settlement[:])
}

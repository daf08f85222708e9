package pkg

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ValidateSolanaAddress checks that address is a base58 encoded 32 byte key.
func ValidateSolanaAddress(address string) error {
	bz, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("invalid base58 address %q: %w", address, err)
	}
	if len(bz) != solana.PublicKeyLength {
		return fmt.Errorf("invalid address %q: expected %d bytes, got %d", address, solana.PublicKeyLength, len(bz))
	}
	return nil
}

func ParsePublicKey(address string) (solana.PublicKey, error) {
	if err := ValidateSolanaAddress(address); err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBase58(address)
}

// ParseOptionalPublicKey returns nil for an empty address.
func ParseOptionalPublicKey(address string) (*solana.PublicKey, error) {
	if address == "" {
		return nil, nil
	}
	key, err := ParsePublicKey(address)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func ParsePublicKeys(addresses []string) ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, 0, len(addresses))
	for _, address := range addresses {
		key, err := ParsePublicKey(address)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

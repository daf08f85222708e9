package ledger

import (
	"errors"

	"github.com/stakebonds/bonds-settlement/internal/lifecycle"
)

var (
	ErrSettlementNotFound        = errors.New("settlement not found")
	ErrSettlementExists          = errors.New("settlement already exists")
	ErrSettlementAddressMismatch = errors.New("settlement address does not match bond, merkle root and epoch")
	ErrBondNotFound              = errors.New("bond not found")
	ErrStakeAccountNotFound      = errors.New("stake account not found")
	ErrStakeAccountMismatch      = errors.New("stake account authorities do not match the claim")
	ErrInsufficientStake         = errors.New("stake account has not enough lamports")
)

// IsRejected reports whether the program refused a transaction because of its
// own rules. Such transactions fail the same way when sent again.
func IsRejected(err error) bool {
	if lifecycle.IsLedgerInvariantViolation(err) {
		return true
	}
	for _, target := range []error{
		ErrSettlementNotFound, ErrSettlementExists, ErrSettlementAddressMismatch, ErrBondNotFound,
		ErrStakeAccountNotFound, ErrStakeAccountMismatch, ErrInsufficientStake,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

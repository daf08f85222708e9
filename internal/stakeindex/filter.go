package stakeindex

import "github.com/gagliardetto/solana-go"

// StakeAuthorityFilter decides whether stake controlled by the given stake
// authority takes part in a settlement.
type StakeAuthorityFilter func(stakeAuthority solana.PublicKey) bool

func AllowAll() StakeAuthorityFilter {
	return func(solana.PublicKey) bool { return true }
}

func AllowList(stakeAuthorities ...solana.PublicKey) StakeAuthorityFilter {
	allowed := make(map[solana.PublicKey]struct{}, len(stakeAuthorities))
	for _, authority := range stakeAuthorities {
		allowed[authority] = struct{}{}
	}
	return func(stakeAuthority solana.PublicKey) bool {
		_, ok := allowed[stakeAuthority]
		return ok
	}
}

// FilterFromList returns AllowAll for an empty list.
func FilterFromList(stakeAuthorities []solana.PublicKey) StakeAuthorityFilter {
	if len(stakeAuthorities) == 0 {
		return AllowAll()
	}
	return AllowList(stakeAuthorities...)
}

package lifecycle

import "errors"

var (
	ErrProgramPaused          = errors.New("program is paused")
	ErrInvalidStatusChange    = errors.New("invalid settlement status change")
	ErrClaimingNotStarted     = errors.New("settlement claiming has not started yet")
	ErrClaimingExpired        = errors.New("settlement claiming window has expired")
	ErrClaimingNotExpired     = errors.New("settlement claiming window has not expired and settlement is not fully claimed")
	ErrDuplicateClaim         = errors.New("settlement claim was already paid")
	ErrInvalidProof           = errors.New("invalid merkle proof")
	ErrMaxTotalClaimExceeded  = errors.New("settlement max total claim exceeded")
	ErrMaxNumNodesExceeded    = errors.New("settlement max number of claimed nodes exceeded")
	ErrInsufficientFunding    = errors.New("settlement is not funded enough for the claim")
	ErrAlreadyFunded          = errors.New("settlement is already fully funded")
	ErrInvalidSettlementState = errors.New("invalid settlement parameters")
)

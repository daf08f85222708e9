package solanaclient

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/stakebonds/bonds-settlement/internal/config"
	"github.com/stakebonds/bonds-settlement/internal/dedup"
	"github.com/stakebonds/bonds-settlement/internal/ledger"
	"github.com/stakebonds/bonds-settlement/internal/types"
	"github.com/stakebonds/bonds-settlement/internal/utils/retry"
	"golang.org/x/time/rate"
)

var errNotConfirmed = errors.New("transaction not confirmed yet")

const confirmPollInterval = 2 * time.Second

// Ledger is the settlement program as deployed, reached over Solana RPC.
type Ledger struct {
	rpc           RPC
	cfg           *config.SolanaConfig
	programID     solana.PublicKey
	configAddress solana.PublicKey
	operator      solana.PrivateKey
	limiter       *rate.Limiter
	clock         clockwork.Clock
}

// New connects to the configured RPC endpoint with the operator keypair
// loaded from disk.
func New(cfg *config.SolanaConfig, ledgerCfg *config.LedgerConfig) (*Ledger, error) {
	operator, err := solana.PrivateKeyFromSolanaKeygenFile(ledgerCfg.OperatorKeypair)
	if err != nil {
		return nil, fmt.Errorf("failed to load operator keypair: %w", err)
	}
	rpc := NewRPCWithMetrics(solanarpc.New(cfg.RPCAddr))
	return NewLedger(rpc, cfg, ledgerCfg.ProgramPubkey(), ledgerCfg.ConfigPubkey(), operator, clockwork.NewRealClock()), nil
}

func NewLedger(
	rpc RPC,
	cfg *config.SolanaConfig,
	programID, configAddress solana.PublicKey,
	operator solana.PrivateKey,
	clock clockwork.Clock,
) *Ledger {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Ledger{
		rpc:           rpc,
		cfg:           cfg,
		programID:     programID,
		configAddress: configAddress,
		operator:      operator,
		limiter:       rate.NewLimiter(limit, 1),
		clock:         clock,
	}
}

func (l *Ledger) ProgramID() solana.PublicKey {
	return l.programID
}

func (l *Ledger) ConfigAddress() solana.PublicKey {
	return l.configAddress
}

// Operator is the fee payer and signer of every transaction.
func (l *Ledger) Operator() solana.PublicKey {
	return l.operator.PublicKey()
}

func (l *Ledger) commitment() solanarpc.CommitmentType {
	return solanarpc.CommitmentType(l.cfg.Commitment)
}

// call rate limits fn and retries it with the configured policy.
func call[T any](ctx context.Context, l *Ledger, method string, fn func(ctx context.Context) (T, error)) (T, error) {
	policy := l.cfg.Retry
	policy.Clock = l.clock
	return retry.Do(ctx, policy, method, func(ctx context.Context) (T, error) {
		if err := l.limiter.Wait(ctx); err != nil {
			var empty T
			return empty, err
		}
		callCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
		return fn(callCtx)
	})
}

// callOnce rate limits fn without retrying it. Writes go through it: the
// executor retries a whole transaction, rebuilding it with a fresh blockhash.
func callOnce[T any](ctx context.Context, l *Ledger, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		var empty T
		return empty, err
	}
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()
	return fn(callCtx)
}

func (l *Ledger) Clock(ctx context.Context) (types.Clock, error) {
	info, err := call(ctx, l, "GetEpochInfo", func(ctx context.Context) (*solanarpc.GetEpochInfoResult, error) {
		return l.rpc.GetEpochInfo(ctx, l.commitment())
	})
	if err != nil {
		return types.Clock{}, fmt.Errorf("failed to get epoch info: %w", err)
	}
	return types.Clock{Epoch: info.Epoch, Slot: info.AbsoluteSlot}, nil
}

func (l *Ledger) ProgramConfig(ctx context.Context) (*types.ConfigState, error) {
	accounts, err := l.getAccounts(ctx, []solana.PublicKey{l.configAddress})
	if err != nil {
		return nil, err
	}
	account, ok := accounts[l.configAddress]
	if !ok {
		return nil, types.NewErrorWithMsg(types.CriticalError, fmt.Sprintf("config account %s not found", l.configAddress))
	}
	return decodeConfig(l.configAddress, account.Data.GetBinary())
}

// getAccounts fetches accounts in chunks of the configured batch size;
// missing accounts are absent from the result.
func (l *Ledger) getAccounts(ctx context.Context, addresses []solana.PublicKey) (map[solana.PublicKey]*solanarpc.Account, error) {
	accounts := make(map[solana.PublicKey]*solanarpc.Account, len(addresses))
	for chunk := range slices.Chunk(addresses, l.cfg.BatchSize) {
		result, err := call(ctx, l, "GetMultipleAccounts", func(ctx context.Context) (*solanarpc.GetMultipleAccountsResult, error) {
			return l.rpc.GetMultipleAccountsWithOpts(ctx, chunk, &solanarpc.GetMultipleAccountsOpts{
				Encoding:   solana.EncodingBase64,
				Commitment: l.commitment(),
			})
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get %d accounts: %w", len(chunk), err)
		}
		for i, account := range result.Value {
			if i < len(chunk) && account != nil && account.Data != nil {
				accounts[chunk[i]] = account
			}
		}
	}
	return accounts, nil
}

func (l *Ledger) getProgramAccounts(
	ctx context.Context, program solana.PublicKey, filters []solanarpc.RPCFilter,
) (solanarpc.GetProgramAccountsResult, error) {
	result, err := call(ctx, l, "GetProgramAccounts", func(ctx context.Context) (solanarpc.GetProgramAccountsResult, error) {
		return l.rpc.GetProgramAccountsWithOpts(ctx, program, &solanarpc.GetProgramAccountsOpts{
			Commitment: l.commitment(),
			Encoding:   solana.EncodingBase64,
			Filters:    filters,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts of program %s: %w", program, err)
	}
	return result, nil
}

func memcmp(offset uint64, bz []byte) solanarpc.RPCFilter {
	return solanarpc.RPCFilter{Memcmp: &solanarpc.RPCFilterMemcmp{Offset: offset, Bytes: solana.Base58(bz)}}
}

func (l *Ledger) FindBonds(ctx context.Context) ([]types.BondState, error) {
	result, err := l.getProgramAccounts(ctx, l.programID, []solanarpc.RPCFilter{
		memcmp(0, bondDiscriminator[:]),
		memcmp(discriminatorSize, l.configAddress[:]),
	})
	if err != nil {
		return nil, err
	}
	bonds := make([]types.BondState, 0, len(result))
	for _, keyed := range result {
		bond, err := decodeBond(keyed.Pubkey, keyed.Account.Data.GetBinary())
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("skipping undecodable bond account")
			continue
		}
		bonds = append(bonds, bond)
	}
	slices.SortFunc(bonds, func(a, b types.BondState) int { return bytes.Compare(a.Address[:], b.Address[:]) })
	return bonds, nil
}

func (l *Ledger) FindSettlements(ctx context.Context) ([]types.SettlementLedgerState, error) {
	bonds, err := l.FindBonds(ctx)
	if err != nil {
		return nil, err
	}
	ownBonds := make(map[solana.PublicKey]struct{}, len(bonds))
	for _, bond := range bonds {
		ownBonds[bond.Address] = struct{}{}
	}

	result, err := l.getProgramAccounts(ctx, l.programID, []solanarpc.RPCFilter{
		memcmp(0, settlementDiscriminator[:]),
	})
	if err != nil {
		return nil, err
	}
	settlements := make([]types.SettlementLedgerState, 0, len(result))
	for _, keyed := range result {
		settlement, err := decodeSettlement(keyed.Pubkey, keyed.Account.Data.GetBinary())
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("skipping undecodable settlement account")
			continue
		}
		if _, ok := ownBonds[settlement.Bond]; !ok {
			continue
		}
		settlements = append(settlements, settlement)
	}
	slices.SortFunc(settlements, func(a, b types.SettlementLedgerState) int {
		return bytes.Compare(a.Address[:], b.Address[:])
	})
	return settlements, nil
}

func (l *Ledger) ClaimBitmaps(ctx context.Context, settlements []solana.PublicKey) (map[solana.PublicKey]*dedup.ClaimBitmap, error) {
	claimsAddresses := make([]solana.PublicKey, 0, len(settlements))
	bySettlement := make(map[solana.PublicKey]solana.PublicKey, len(settlements))
	for _, settlement := range settlements {
		address, err := ledger.SettlementClaimsAddress(l.programID, settlement)
		if err != nil {
			return nil, err
		}
		claimsAddresses = append(claimsAddresses, address)
		bySettlement[address] = settlement
	}

	accounts, err := l.getAccounts(ctx, claimsAddresses)
	if err != nil {
		return nil, err
	}
	bitmaps := make(map[solana.PublicKey]*dedup.ClaimBitmap, len(accounts))
	for address, account := range accounts {
		bitmap, err := dedup.Decode(account.Data.GetBinary())
		if err != nil {
			return nil, fmt.Errorf("failed to decode claims account %s: %w", address, err)
		}
		bitmaps[bySettlement[address]] = bitmap
	}
	return bitmaps, nil
}

func (l *Ledger) FindStakeAccounts(
	ctx context.Context, withdrawAuthority solana.PublicKey, stakeAuthority *solana.PublicKey,
) ([]types.StakeAccount, error) {
	filters := []solanarpc.RPCFilter{
		{DataSize: stakeAccountSize},
		memcmp(withdrawerOffset, withdrawAuthority[:]),
	}
	if stakeAuthority != nil {
		filters = append(filters, memcmp(stakerOffset, stakeAuthority[:]))
	}
	return l.findStakeAccounts(ctx, filters)
}

func (l *Ledger) BondStakeAccounts(ctx context.Context, bond types.BondState) ([]types.StakeAccount, error) {
	withdrawer, err := ledger.BondsWithdrawerAuthority(l.programID, l.configAddress)
	if err != nil {
		return nil, err
	}
	return l.findStakeAccounts(ctx, []solanarpc.RPCFilter{
		{DataSize: stakeAccountSize},
		memcmp(stakerOffset, withdrawer[:]),
		memcmp(withdrawerOffset, withdrawer[:]),
		memcmp(voterOffset, bond.VoteAccount[:]),
	})
}

func (l *Ledger) findStakeAccounts(ctx context.Context, filters []solanarpc.RPCFilter) ([]types.StakeAccount, error) {
	result, err := l.getProgramAccounts(ctx, solana.StakeProgramID, filters)
	if err != nil {
		return nil, err
	}
	accounts := make([]types.StakeAccount, 0, len(result))
	for _, keyed := range result {
		account, err := decodeStakeAccount(keyed.Pubkey, keyed.Account.Lamports, keyed.Account.Data.GetBinary())
		if err != nil {
			log.Ctx(ctx).Debug().Err(err).Msg("skipping stake account")
			continue
		}
		accounts = append(accounts, account)
	}
	slices.SortFunc(accounts, func(a, b types.StakeAccount) int { return bytes.Compare(a.Address[:], b.Address[:]) })
	return accounts, nil
}

// Execute sends tx as one Solana transaction and waits for its confirmation.
func (l *Ledger) Execute(ctx context.Context, tx *ledger.Transaction, fee ledger.PriorityFee) (*ledger.Receipt, error) {
	for i := range tx.Instructions {
		if err := tx.Instructions[i].Validate(); err != nil {
			return nil, err
		}
	}
	env, err := l.resolveAccounts(ctx, tx)
	if err != nil {
		return nil, err
	}

	instructions := computeBudgetInstructions(fee)
	signers := map[solana.PublicKey]solana.PrivateKey{l.operator.PublicKey(): l.operator}
	for i := range tx.Instructions {
		built, err := buildInstruction(env, &tx.Instructions[i])
		if err != nil {
			return nil, fmt.Errorf("%s instruction %d of %q: %w", tx.Instructions[i].Kind, i, tx.Description, err)
		}
		instructions = append(instructions, built.instruction)
		for _, signer := range built.signers {
			signers[signer.PublicKey()] = signer
		}
	}

	blockhash, err := callOnce(ctx, l, func(ctx context.Context) (*solanarpc.GetLatestBlockhashResult, error) {
		return l.rpc.GetLatestBlockhash(ctx, l.commitment())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	solanaTx, err := solana.NewTransaction(instructions, blockhash.Value.Blockhash, solana.TransactionPayer(l.operator.PublicKey()))
	if err != nil {
		return nil, types.NewError(types.InternalServiceError, fmt.Errorf("failed to build transaction %q: %w", tx.Description, err))
	}
	if _, err := solanaTx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if signer, ok := signers[key]; ok {
			return &signer
		}
		return nil
	}); err != nil {
		return nil, types.NewError(types.InternalServiceError, fmt.Errorf("failed to sign transaction %q: %w", tx.Description, err))
	}

	signature, err := callOnce(ctx, l, func(ctx context.Context) (solana.Signature, error) {
		return l.rpc.SendTransactionWithOpts(ctx, solanaTx, solanarpc.TransactionOpts{
			PreflightCommitment: l.commitment(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send transaction %q: %w", tx.Description, err)
	}
	log.Ctx(ctx).Debug().
		Stringer("signature", signature).
		Str("description", tx.Description).
		Int("instructions", len(tx.Instructions)).
		Msg("transaction sent")

	if err := l.confirm(ctx, signature); err != nil {
		return nil, fmt.Errorf("transaction %q: %w", tx.Description, err)
	}
	return &ledger.Receipt{Signature: signature.String(), ExecutedIxs: len(tx.Instructions)}, nil
}

func (l *Ledger) confirm(ctx context.Context, signature solana.Signature) error {
	policy := retry.Policy{
		Timeout:   l.cfg.ConfirmTimeout,
		BaseDelay: confirmPollInterval,
		MaxDelay:  confirmPollInterval,
		Clock:     l.clock,
		Retryable: func(err error) bool {
			return errors.Is(err, errNotConfirmed) || retry.IsRetryable(err)
		},
	}
	_, err := retry.Do(ctx, policy, "ConfirmTransaction", func(ctx context.Context) (struct{}, error) {
		if err := l.limiter.Wait(ctx); err != nil {
			return struct{}{}, err
		}
		result, err := l.rpc.GetSignatureStatuses(ctx, false, signature)
		if err != nil {
			return struct{}{}, err
		}
		if len(result.Value) == 0 || result.Value[0] == nil {
			return struct{}{}, errNotConfirmed
		}
		status := result.Value[0]
		if status.Err != nil {
			return struct{}{}, types.NewError(types.ExecutionError, fmt.Errorf("%s failed: %v", signature, status.Err))
		}
		switch status.ConfirmationStatus {
		case solanarpc.ConfirmationStatusConfirmed, solanarpc.ConfirmationStatusFinalized:
			return struct{}{}, nil
		}
		return struct{}{}, errNotConfirmed
	})
	if errors.Is(err, retry.ErrTimeout) {
		return types.NewError(types.RetryableError, fmt.Errorf("%s not confirmed: %w", signature, err))
	}
	return err
}

// resolveAccounts looks up the accounts the instructions of tx reference
// beyond their own arguments.
func (l *Ledger) resolveAccounts(ctx context.Context, tx *ledger.Transaction) (*accountsEnv, error) {
	bondsWithdrawer, err := ledger.BondsWithdrawerAuthority(l.programID, l.configAddress)
	if err != nil {
		return nil, err
	}
	env := &accountsEnv{
		programID:       l.programID,
		config:          l.configAddress,
		operator:        l.operator.PublicKey(),
		bondsWithdrawer: bondsWithdrawer,
		voteAccounts:    make(map[solana.PublicKey]solana.PublicKey),
		fundedStake:     make(map[solana.PublicKey]solana.PublicKey),
		rentCollectors:  make(map[solana.PublicKey]solana.PublicKey),
	}

	var bonds, settlements []solana.PublicKey
	for _, ix := range tx.Instructions {
		switch ix.Kind {
		case ledger.FundSettlement:
			bonds = append(bonds, ix.Bond)
		case ledger.ClaimSettlement, ledger.CloseSettlement, ledger.CancelSettlement:
			settlements = append(settlements, ix.Settlement)
		}
	}
	slices.SortFunc(bonds, comparePublicKeys)
	bonds = slices.Compact(bonds)
	slices.SortFunc(settlements, comparePublicKeys)
	settlements = slices.Compact(settlements)

	if len(bonds) > 0 {
		accounts, err := l.getAccounts(ctx, bonds)
		if err != nil {
			return nil, err
		}
		for address, account := range accounts {
			bond, err := decodeBond(address, account.Data.GetBinary())
			if err != nil {
				return nil, err
			}
			env.voteAccounts[address] = bond.VoteAccount
		}
	}

	if len(settlements) > 0 {
		accounts, err := l.getAccounts(ctx, settlements)
		if err != nil {
			return nil, err
		}
		for address, account := range accounts {
			settlement, err := decodeSettlement(address, account.Data.GetBinary())
			if err != nil {
				return nil, err
			}
			env.rentCollectors[address] = settlement.RentCollector

			funded, err := l.FindStakeAccounts(ctx, bondsWithdrawer, &settlement.StakerAuthority)
			if err != nil {
				return nil, err
			}
			env.fundedStake[address] = l.programID
			if len(funded) > 0 {
				richest := slices.MaxFunc(funded, func(a, b types.StakeAccount) int {
					return cmp.Compare(a.Lamports, b.Lamports)
				})
				env.fundedStake[address] = richest.Address
			}
		}
	}
	return env, nil
}

func comparePublicKeys(a, b solana.PublicKey) int {
	return bytes.Compare(a[:], b[:])
}


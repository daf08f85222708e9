package solanaclient

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/jonboulle/clockwork"
	"github.com/stakebonds/bonds-settlement/internal/config"
	"github.com/stakebonds/bonds-settlement/internal/dedup"
	"github.com/stakebonds/bonds-settlement/internal/ledger"
	"github.com/stakebonds/bonds-settlement/internal/types"
	"github.com/stakebonds/bonds-settlement/internal/utils/retry"
	"github.com/stakebonds/bonds-settlement/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPC struct {
	mu                sync.Mutex
	epochInfo         solanarpc.GetEpochInfoResult
	epochInfoFailures int
	accounts          map[solana.PublicKey]*solanarpc.Account
	multipleCalls     int
	sent              []*solana.Transaction
	sendAttempts      int
	sendFailures      int
	txErr             any
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{accounts: make(map[solana.PublicKey]*solanarpc.Account)}
}

func (f *fakeRPC) put(address, owner solana.PublicKey, lamports uint64, data []byte) {
	f.accounts[address] = &solanarpc.Account{
		Lamports: lamports,
		Owner:    owner,
		Data:     solanarpc.DataBytesOrJSONFromBytes(data),
	}
}

func (f *fakeRPC) GetEpochInfo(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetEpochInfoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.epochInfoFailures > 0 {
		f.epochInfoFailures--
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	}
	info := f.epochInfo
	return &info, nil
}

func (f *fakeRPC) GetMultipleAccountsWithOpts(
	ctx context.Context, accounts []solana.PublicKey, opts *solanarpc.GetMultipleAccountsOpts,
) (*solanarpc.GetMultipleAccountsResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.multipleCalls++
	result := &solanarpc.GetMultipleAccountsResult{Value: make([]*solanarpc.Account, len(accounts))}
	for i, address := range accounts {
		result.Value[i] = f.accounts[address]
	}
	return result, nil
}

func (f *fakeRPC) GetProgramAccountsWithOpts(
	ctx context.Context, program solana.PublicKey, opts *solanarpc.GetProgramAccountsOpts,
) (solanarpc.GetProgramAccountsResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result solanarpc.GetProgramAccountsResult
	for address, account := range f.accounts {
		if account.Owner != program || !matches(account.Data.GetBinary(), opts.Filters) {
			continue
		}
		result = append(result, &solanarpc.KeyedAccount{Pubkey: address, Account: account})
	}
	return result, nil
}

func matches(data []byte, filters []solanarpc.RPCFilter) bool {
	for _, filter := range filters {
		if filter.DataSize != 0 && uint64(len(data)) != filter.DataSize {
			return false
		}
		if filter.Memcmp != nil {
			offset := int(filter.Memcmp.Offset)
			if offset > len(data) || !bytes.HasPrefix(data[offset:], filter.Memcmp.Bytes) {
				return false
			}
		}
	}
	return true
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error) {
	return &solanarpc.GetLatestBlockhashResult{
		Value: &solanarpc.LatestBlockhashResult{Blockhash: solana.Hash{1, 2, 3}},
	}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(
	ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts,
) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendAttempts++
	if f.sendFailures > 0 {
		f.sendFailures--
		return solana.Signature{}, &net.OpError{Op: "write", Net: "tcp", Err: syscall.ECONNRESET}
	}
	f.sent = append(f.sent, tx)
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(
	ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature,
) (*solanarpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &solanarpc.GetSignatureStatusesResult{
		Value: []*solanarpc.SignatureStatusesResult{{
			Slot:               1,
			Err:                f.txErr,
			ConfirmationStatus: solanarpc.ConfirmationStatusConfirmed,
		}},
	}, nil
}

type fixture struct {
	rpc      *fakeRPC
	ledger   *Ledger
	program  solana.PublicKey
	config   solana.PublicKey
	operator solana.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	operator, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	f := &fixture{
		rpc:      newFakeRPC(),
		program:  testutil.RandomPubkey(),
		config:   testutil.RandomPubkey(),
		operator: operator,
	}
	cfg := &config.SolanaConfig{
		RPCAddr:        "http://localhost:8899",
		Commitment:     "confirmed",
		Timeout:        time.Second,
		BatchSize:      2,
		ConfirmTimeout: 5 * time.Second,
		Retry:          retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
	f.ledger = NewLedger(f.rpc, cfg, f.program, f.config, operator, clockwork.NewRealClock())
	return f
}

func (f *fixture) addBond(t *testing.T, voteAccount solana.PublicKey) types.BondState {
	address, err := ledger.BondAddress(f.program, f.config, voteAccount)
	require.NoError(t, err)
	data, err := encodeAccount(bondDiscriminator, bondAccount{Config: f.config, VoteAccount: voteAccount})
	require.NoError(t, err)
	f.rpc.put(address, f.program, 0, data)
	return types.BondState{Address: address, Config: f.config, VoteAccount: voteAccount}
}

func (f *fixture) addSettlement(t *testing.T, bond solana.PublicKey, account settlementAccount) solana.PublicKey {
	address := testutil.RandomPubkey()
	account.Bond = bond
	data, err := encodeAccount(settlementDiscriminator, account)
	require.NoError(t, err)
	f.rpc.put(address, f.program, 0, data)
	return address
}

func stakeAccountData(staker, withdrawer solana.PublicKey, voter *solana.PublicKey) []byte {
	data := make([]byte, stakeAccountSize)
	binary.LittleEndian.PutUint32(data, stakeStateInitialized)
	copy(data[stakerOffset:], staker[:])
	copy(data[withdrawerOffset:], withdrawer[:])
	if voter != nil {
		binary.LittleEndian.PutUint32(data, stakeStateDelegated)
		copy(data[voterOffset:], voter[:])
	}
	return data
}

func TestLedger_Clock(t *testing.T) {
	f := newFixture(t)
	f.rpc.epochInfo = solanarpc.GetEpochInfoResult{Epoch: 600, AbsoluteSlot: 259_200_123}
	f.rpc.epochInfoFailures = 2

	clock, err := f.ledger.Clock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.Clock{Epoch: 600, Slot: 259_200_123}, clock)

	f.rpc.epochInfoFailures = 10
	_, err = f.ledger.Clock(context.Background())
	require.ErrorIs(t, err, retry.ErrMaxRetriesExceeded)
	var netErr net.Error
	assert.ErrorAs(t, err, &netErr)
	assert.Equal(t, types.RetryableError, types.CodeOf(err))
	assert.Equal(t, types.ExitCodeRetryable, types.ExitCode(err))
}

func TestLedger_ProgramConfig(t *testing.T) {
	f := newFixture(t)
	operator := testutil.RandomPubkey()
	data, err := encodeAccount(configDiscriminator, configAccount{
		OperatorAuthority:              operator,
		EpochsToClaimSettlement:        4,
		MinimumStakeLamports:           1_000_000_000,
		Paused:                         true,
		SlotsToStartSettlementClaiming: 3_000,
	})
	require.NoError(t, err)
	f.rpc.put(f.config, f.program, 0, data)

	cfg, err := f.ledger.ProgramConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.config, cfg.Address)
	assert.Equal(t, operator, cfg.OperatorAuthority)
	assert.Equal(t, uint64(4), cfg.EpochsToClaimSettlement)
	assert.Equal(t, uint64(3_000), cfg.SlotsToStartSettlementClaiming)
	assert.True(t, cfg.Paused)

	t.Run("wrong discriminator", func(t *testing.T) {
		f.rpc.put(f.config, f.program, 0, append(bondDiscriminator[:], data[discriminatorSize:]...))
		_, err := f.ledger.ProgramConfig(context.Background())
		require.Error(t, err)
	})
}

func TestLedger_FindSettlements(t *testing.T) {
	f := newFixture(t)
	bond := f.addBond(t, testutil.RandomPubkey())
	collector := testutil.RandomPubkey()
	own := f.addSettlement(t, bond.Address, settlementAccount{
		MerkleRoot:         solana.Hash{9},
		MaxTotalClaim:      1_000,
		MaxMerkleNodes:     3,
		LamportsFunded:     1_000,
		EpochCreatedFor:    600,
		SplitRentCollector: &collector,
		SplitRentAmount:    42,
	})
	// settlement of a bond under another config
	f.addSettlement(t, testutil.RandomPubkey(), settlementAccount{MaxTotalClaim: 5})

	bonds, err := f.ledger.FindBonds(context.Background())
	require.NoError(t, err)
	require.Len(t, bonds, 1)
	assert.Equal(t, bond, bonds[0])

	settlements, err := f.ledger.FindSettlements(context.Background())
	require.NoError(t, err)
	require.Len(t, settlements, 1)
	settlement := settlements[0]
	assert.Equal(t, own, settlement.Address)
	assert.Equal(t, solana.Hash{9}, settlement.MerkleRoot)
	assert.Equal(t, uint64(3), settlement.MaxNumNodes)
	assert.True(t, settlement.IsFunded())
	require.NotNil(t, settlement.SplitRentCollector)
	assert.Equal(t, collector, *settlement.SplitRentCollector)
	assert.Equal(t, uint64(42), settlement.SplitRentAmount)
}

func TestLedger_ClaimBitmaps(t *testing.T) {
	f := newFixture(t)
	settlements := []solana.PublicKey{testutil.RandomPubkey(), testutil.RandomPubkey(), testutil.RandomPubkey()}
	for i, settlement := range settlements[:2] {
		address, err := ledger.SettlementClaimsAddress(f.program, settlement)
		require.NoError(t, err)
		header, err := bin.MarshalBorsh(dedup.Header{
			Discriminator: settlementClaimsDiscriminator,
			Settlement:    settlement,
			MaxRecords:    16,
		})
		require.NoError(t, err)
		bitmap := []byte{0x80 >> i, 0}
		f.rpc.put(address, f.program, 0, append(header, bitmap...))
	}

	bitmaps, err := f.ledger.ClaimBitmaps(context.Background(), settlements)
	require.NoError(t, err)
	// batch size 2 splits three lookups into two calls
	assert.Equal(t, 2, f.rpc.multipleCalls)
	require.Len(t, bitmaps, 2)
	assert.NotContains(t, bitmaps, settlements[2])

	for i, settlement := range settlements[:2] {
		bitmap := bitmaps[settlement]
		assert.True(t, bitmap.IsFullySized())
		set, err := bitmap.IsSet(uint64(i))
		require.NoError(t, err)
		assert.True(t, set)
		assert.Equal(t, uint64(1), bitmap.NumberOfSetBits())
	}
}

func TestLedger_StakeAccounts(t *testing.T) {
	f := newFixture(t)
	bond := f.addBond(t, testutil.RandomPubkey())
	withdrawer, err := ledger.BondsWithdrawerAuthority(f.program, f.config)
	require.NoError(t, err)
	staker, owner := testutil.RandomPubkey(), testutil.RandomPubkey()
	otherVote := testutil.RandomPubkey()

	bondStake := testutil.RandomPubkey()
	f.rpc.put(bondStake, solana.StakeProgramID, 5_000, stakeAccountData(withdrawer, withdrawer, &bond.VoteAccount))
	f.rpc.put(testutil.RandomPubkey(), solana.StakeProgramID, 7_000, stakeAccountData(withdrawer, withdrawer, &otherVote))
	userStake := testutil.RandomPubkey()
	f.rpc.put(userStake, solana.StakeProgramID, 9_000, stakeAccountData(staker, owner, nil))

	accounts, err := f.ledger.BondStakeAccounts(context.Background(), bond)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, bondStake, accounts[0].Address)
	assert.Equal(t, uint64(5_000), accounts[0].Lamports)
	require.NotNil(t, accounts[0].Voter)
	assert.Equal(t, bond.VoteAccount, *accounts[0].Voter)

	accounts, err = f.ledger.FindStakeAccounts(context.Background(), owner, &staker)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, userStake, accounts[0].Address)
	assert.Nil(t, accounts[0].Voter)

	other := testutil.RandomPubkey()
	accounts, err = f.ledger.FindStakeAccounts(context.Background(), owner, &other)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestLedger_Execute(t *testing.T) {
	f := newFixture(t)
	bond := f.addBond(t, testutil.RandomPubkey())
	root := solana.Hash{7}
	settlement, err := ledger.SettlementAddress(f.program, bond.Address, root, 600)
	require.NoError(t, err)

	tx := ledger.NewTransaction("init settlement",
		ledger.Instruction{
			Kind:       ledger.InitSettlement,
			Settlement: settlement,
			Bond:       bond.Address,
			Init: &ledger.InitArgs{
				VoteAccount:   bond.VoteAccount,
				MerkleRoot:    root,
				MaxTotalClaim: 1_000,
				MaxNumNodes:   2,
				Epoch:         600,
				RentCollector: f.operator.PublicKey(),
			},
		},
		ledger.Instruction{Kind: ledger.UpsizeSettlementClaims, Settlement: settlement, Bond: bond.Address},
	)
	fee := ledger.PriorityFee{MicroLamportsPerComputeUnit: 5_000, ComputeUnitLimit: 200_000}

	receipt, err := f.ledger.Execute(context.Background(), tx, fee)
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.ExecutedIxs)

	require.Len(t, f.rpc.sent, 1)
	sent := f.rpc.sent[0]
	assert.Equal(t, receipt.Signature, sent.Signatures[0].String())
	assert.Equal(t, f.operator.PublicKey(), sent.Message.AccountKeys[0])
	require.Len(t, sent.Message.Instructions, 4)

	programOf := func(i int) solana.PublicKey {
		return sent.Message.AccountKeys[sent.Message.Instructions[i].ProgramIDIndex]
	}
	assert.Equal(t, computeBudgetProgramID, programOf(0))
	assert.Equal(t, computeBudgetProgramID, programOf(1))
	assert.Equal(t, f.program, programOf(2))
	initDisc := instructionDiscriminator("init_settlement")
	assert.Equal(t, initDisc[:], []byte(sent.Message.Instructions[2].Data[:discriminatorSize]))
	upsizeDisc := instructionDiscriminator("upsize_settlement_claims")
	assert.Equal(t, upsizeDisc[:], []byte(sent.Message.Instructions[3].Data))

	t.Run("send failure is left to the executor", func(t *testing.T) {
		attempts := f.rpc.sendAttempts
		f.rpc.sendFailures = 1
		_, err := f.ledger.Execute(context.Background(), tx, fee)
		require.Error(t, err)
		assert.True(t, retry.IsRetryable(err))
		assert.Equal(t, attempts+1, f.rpc.sendAttempts)
		assert.Len(t, f.rpc.sent, 1)
	})

	t.Run("program error", func(t *testing.T) {
		f.rpc.txErr = map[string]any{"InstructionError": []any{0, "Custom"}}
		_, err := f.ledger.Execute(context.Background(), tx, ledger.PriorityFee{})
		require.Error(t, err)
		assert.True(t, types.IsErrorCode(err, types.ExecutionError))
		assert.False(t, retry.IsRetryable(err))
	})

	t.Run("claim without funded stake", func(t *testing.T) {
		f.rpc.txErr = nil
		existing := f.addSettlement(t, bond.Address, settlementAccount{MaxTotalClaim: 10, MaxMerkleNodes: 1})
		claim := ledger.NewTransaction("claim", ledger.Instruction{
			Kind:       ledger.ClaimSettlement,
			Settlement: existing,
			Bond:       bond.Address,
			Claim:      &ledger.ClaimArgs{StakeAccountTo: testutil.RandomPubkey()},
		})
		_, err := f.ledger.Execute(context.Background(), claim, ledger.PriorityFee{})
		require.ErrorIs(t, err, ledger.ErrStakeAccountNotFound)
	})
}

func TestComputeBudgetInstructions(t *testing.T) {
	assert.Empty(t, computeBudgetInstructions(ledger.PriorityFee{}))

	ixs := computeBudgetInstructions(ledger.PriorityFee{MicroLamportsPerComputeUnit: 1, ComputeUnitLimit: 1_400_000})
	require.Len(t, ixs, 2)
	limit, err := ixs[0].Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 0xc0, 0x5c, 0x15, 0x00}, limit)
	price, err := ixs[1].Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 1, 0, 0, 0, 0, 0, 0, 0}, price)
}

package batch

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blockshard-io/validator-submitter/chain"
	"github.com/Blockshard-io/validator-submitter/db/memorydb"
	"github.com/Blockshard-io/validator-submitter/ledger"
	"github.com/Blockshard-io/validator-submitter/submitter"
	"github.com/Blockshard-io/validator-submitter/types"
)

var (
	testAccount = common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1")
	ethWei      = new(big.Int).SetUint64(1_000_000_000_000_000_000)
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), ethWei)
}

// testEntry builds a deposit entry whose data root actually verifies.
func testEntry(t *testing.T, fill string) *types.DepositEntry {
	t.Helper()
	e := &types.DepositEntry{
		Pubkey:                strings.Repeat(fill, 48),
		WithdrawalCredentials: "00" + strings.Repeat("11", 31),
		Signature:             strings.Repeat("22", 96),
		DepositDataRoot:       strings.Repeat("00", 32),
	}
	d, err := e.Decode()
	require.NoError(t, err)
	root := d.HashTreeRoot()
	e.DepositDataRoot = hex.EncodeToString(root[:])
	return e
}

type fakeChain struct {
	chain.Backend

	balance  *big.Int
	nonce    uint64
	receipts map[common.Hash]*gethtypes.Receipt
}

func (c *fakeChain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return new(big.Int).Set(c.balance), nil
}

func (c *fakeChain) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return c.nonce, nil
}

func (c *fakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	if rcpt, ok := c.receipts[txHash]; ok {
		return rcpt, nil
	}
	return nil, ethereum.NotFound
}

type fakeSubmitter struct {
	calls []string
	// errs maps a normalized pubkey to the error Submit returns for it.
	errs map[string]error
	cost *big.Int
}

func (f *fakeSubmitter) Submit(ctx context.Context, entry *types.DepositEntry) (*submitter.Result, error) {
	pubkey := entry.NormalizedPubkey()
	f.calls = append(f.calls, pubkey)
	if err, ok := f.errs[pubkey]; ok {
		return nil, err
	}
	cost := f.cost
	if cost == nil {
		cost = big.NewInt(0)
	}
	return &submitter.Result{
		TxHash:      common.HexToHash(fmt.Sprintf("0x%064x", len(f.calls))),
		Nonce:       uint64(len(f.calls)),
		GasUsed:     52_000,
		BlockNumber: big.NewInt(10),
		CostWei:     cost,
	}, nil
}

func testLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(ledger.NewDBStore(memorydb.NewDB()))
	require.NoError(t, err)
	return l
}

func defaultOpts() Options {
	return Options{VerifyRoots: true}
}

func TestRunSubmitsEveryEntry(t *testing.T) {
	entries := []*types.DepositEntry{testEntry(t, "a1"), testEntry(t, "b2"), testEntry(t, "c3")}
	led := testLedger(t)
	sub := &fakeSubmitter{}
	o := NewOrchestrator(&fakeChain{balance: eth(200)}, led, sub, testAccount, defaultOpts())

	summary, err := o.Run(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, &Summary{Submitted: 3}, summary)
	assert.True(t, summary.Success())
	assert.Equal(t, 3, summary.Total())
	for _, e := range entries {
		assert.True(t, led.Contains(e.NormalizedPubkey()))
	}
}

func TestRunSkipsRecordedEntries(t *testing.T) {
	entries := []*types.DepositEntry{testEntry(t, "a1"), testEntry(t, "b2"), testEntry(t, "c3")}
	led := testLedger(t)
	require.NoError(t, led.Record(entries[1].NormalizedPubkey(), "0xff"))

	sub := &fakeSubmitter{}
	o := NewOrchestrator(&fakeChain{balance: eth(200)}, led, sub, testAccount, defaultOpts())

	summary, err := o.Run(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, &Summary{Submitted: 2, AlreadyDone: 1}, summary)
	assert.Equal(t, []string{entries[0].NormalizedPubkey(), entries[2].NormalizedPubkey()}, sub.calls)
	assert.True(t, summary.Success())
}

func TestRunIsIdempotentAcrossRestarts(t *testing.T) {
	entries := []*types.DepositEntry{testEntry(t, "a1"), testEntry(t, "b2")}
	store := ledger.NewDBStore(memorydb.NewDB())

	led, err := ledger.Open(store)
	require.NoError(t, err)
	sub := &fakeSubmitter{}
	o := NewOrchestrator(&fakeChain{balance: eth(200)}, led, sub, testAccount, defaultOpts())
	_, err = o.Run(context.Background(), entries)
	require.NoError(t, err)

	// second run over the same store submits nothing
	led2, err := ledger.Open(store)
	require.NoError(t, err)
	sub2 := &fakeSubmitter{}
	o2 := NewOrchestrator(&fakeChain{balance: eth(200)}, led2, sub2, testAccount, defaultOpts())
	summary, err := o2.Run(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, &Summary{AlreadyDone: 2}, summary)
	assert.Empty(t, sub2.calls)
}

func TestRunCountsPermanentFailure(t *testing.T) {
	entries := []*types.DepositEntry{testEntry(t, "a1"), testEntry(t, "b2"), testEntry(t, "c3")}
	led := testLedger(t)
	sub := &fakeSubmitter{errs: map[string]error{
		entries[1].NormalizedPubkey(): &submitter.PermanentError{Reason: "node rejected transaction"},
	}}
	o := NewOrchestrator(&fakeChain{balance: eth(200)}, led, sub, testAccount, defaultOpts())

	summary, err := o.Run(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, &Summary{Submitted: 2, Failed: 1}, summary)
	assert.False(t, summary.Success())
	assert.False(t, led.Contains(entries[1].NormalizedPubkey()))
}

func TestRunCountsExhaustedRetries(t *testing.T) {
	entries := []*types.DepositEntry{testEntry(t, "a1"), testEntry(t, "b2")}
	led := testLedger(t)
	sub := &fakeSubmitter{errs: map[string]error{
		entries[0].NormalizedPubkey(): fmt.Errorf("%w after 5 attempts: connection refused", submitter.ErrRetriesExhausted),
	}}
	o := NewOrchestrator(&fakeChain{balance: eth(200)}, led, sub, testAccount, defaultOpts())

	summary, err := o.Run(context.Background(), entries)
	require.NoError(t, err)

	// the failed entry is skipped, the batch moves on
	assert.Equal(t, &Summary{Submitted: 1, Failed: 1}, summary)
	assert.True(t, led.Contains(entries[1].NormalizedPubkey()))
}

func TestRunHaltsOnNodeInsufficientFunds(t *testing.T) {
	entries := []*types.DepositEntry{testEntry(t, "a1"), testEntry(t, "b2"), testEntry(t, "c3")}
	led := testLedger(t)
	sub := &fakeSubmitter{errs: map[string]error{
		entries[1].NormalizedPubkey(): fmt.Errorf("%w: insufficient funds for gas * price + value", submitter.ErrInsufficientFunds),
	}}
	o := NewOrchestrator(&fakeChain{balance: eth(200)}, led, sub, testAccount, defaultOpts())

	summary, err := o.Run(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, &Summary{Submitted: 1, SkippedFunds: 2}, summary)
	// the third entry was never attempted
	assert.Equal(t, []string{entries[0].NormalizedPubkey(), entries[1].NormalizedPubkey()}, sub.calls)
}

func TestRunStopsWhenBalanceRunsOut(t *testing.T) {
	entries := []*types.DepositEntry{testEntry(t, "a1"), testEntry(t, "b2"), testEntry(t, "c3")}
	led := testLedger(t)
	sub := &fakeSubmitter{}
	// 64 ETH funds exactly two 32 ETH deposits
	o := NewOrchestrator(&fakeChain{balance: eth(64)}, led, sub, testAccount, defaultOpts())

	summary, err := o.Run(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, &Summary{Submitted: 2, SkippedFunds: 1}, summary)
	assert.Len(t, sub.calls, 2)
	assert.False(t, summary.Success())
}

func TestRunAccountsGasInLocalBalance(t *testing.T) {
	entries := []*types.DepositEntry{testEntry(t, "a1"), testEntry(t, "b2")}
	led := testLedger(t)
	// gas cost pushes the second deposit below the line
	sub := &fakeSubmitter{cost: eth(1)}
	o := NewOrchestrator(&fakeChain{balance: eth(64)}, led, sub, testAccount, defaultOpts())

	summary, err := o.Run(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, &Summary{Submitted: 1, SkippedFunds: 1}, summary)
}

func TestRunJournalsUnknownOutcome(t *testing.T) {
	entries := []*types.DepositEntry{testEntry(t, "a1"), testEntry(t, "b2"), testEntry(t, "c3")}
	led := testLedger(t)
	txHash := common.HexToHash("0xbeef")
	sub := &fakeSubmitter{errs: map[string]error{
		entries[1].NormalizedPubkey(): &submitter.UnknownOutcomeError{TxHash: txHash, Nonce: 12},
	}}
	o := NewOrchestrator(&fakeChain{balance: eth(200)}, led, sub, testAccount, defaultOpts())

	summary, err := o.Run(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, &Summary{Submitted: 2, Unknown: 1}, summary)

	pubkey := entries[1].NormalizedPubkey()
	assert.False(t, led.Contains(pubkey))
	p, ok := led.Pending(pubkey)
	require.True(t, ok)
	assert.Equal(t, txHash.Hex(), p.TxHash)
	assert.Equal(t, uint64(12), p.Nonce)
}

func TestRunSkipsEntryStillOnHold(t *testing.T) {
	entries := []*types.DepositEntry{testEntry(t, "a1"), testEntry(t, "b2")}
	led := testLedger(t)
	pubkey := entries[0].NormalizedPubkey()
	require.NoError(t, led.MarkPending(&ledger.PendingTx{Pubkey: pubkey, TxHash: "0x01", Nonce: 4}))

	sub := &fakeSubmitter{}
	// nonce 4 not yet passed, no receipt: the broadcast stays undecided
	o := NewOrchestrator(&fakeChain{balance: eth(200), nonce: 4}, led, sub, testAccount, defaultOpts())

	summary, err := o.Run(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, &Summary{Submitted: 1, Unknown: 1}, summary)
	assert.Equal(t, []string{entries[1].NormalizedPubkey()}, sub.calls)
	_, stillPending := led.Pending(pubkey)
	assert.True(t, stillPending)
}

func TestReconcilePromotesConfirmedBroadcast(t *testing.T) {
	entries := []*types.DepositEntry{testEntry(t, "a1")}
	led := testLedger(t)
	pubkey := entries[0].NormalizedPubkey()
	txHash := common.HexToHash("0xcafe")
	require.NoError(t, led.MarkPending(&ledger.PendingTx{Pubkey: pubkey, TxHash: txHash.Hex(), Nonce: 4}))

	client := &fakeChain{
		balance: eth(200),
		nonce:   5,
		receipts: map[common.Hash]*gethtypes.Receipt{
			txHash: {Status: gethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(9)},
		},
	}
	sub := &fakeSubmitter{}
	o := NewOrchestrator(client, led, sub, testAccount, defaultOpts())

	summary, err := o.Run(context.Background(), entries)
	require.NoError(t, err)

	// the journaled broadcast turned out to be mined, nothing to submit
	assert.Equal(t, &Summary{AlreadyDone: 1}, summary)
	assert.Empty(t, sub.calls)
	assert.True(t, led.Contains(pubkey))
	_, pending := led.Pending(pubkey)
	assert.False(t, pending)
}

func TestReconcileReleasesSupersededBroadcast(t *testing.T) {
	entries := []*types.DepositEntry{testEntry(t, "a1")}
	led := testLedger(t)
	pubkey := entries[0].NormalizedPubkey()
	require.NoError(t, led.MarkPending(&ledger.PendingTx{Pubkey: pubkey, TxHash: "0x0badc0de", Nonce: 4}))

	// the account's confirmed nonce moved past 4 with no receipt for the
	// journaled hash, so that broadcast can never land
	client := &fakeChain{balance: eth(200), nonce: 7}
	sub := &fakeSubmitter{}
	o := NewOrchestrator(client, led, sub, testAccount, defaultOpts())

	summary, err := o.Run(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, &Summary{Submitted: 1}, summary)
	assert.Equal(t, []string{pubkey}, sub.calls)
	assert.True(t, led.Contains(pubkey))
}

func TestReconcileReleasesRevertedBroadcast(t *testing.T) {
	led := testLedger(t)
	pubkey := strings.Repeat("a1", 48)
	txHash := common.HexToHash("0xdead")
	require.NoError(t, led.MarkPending(&ledger.PendingTx{Pubkey: pubkey, TxHash: txHash.Hex(), Nonce: 4}))

	client := &fakeChain{
		balance: eth(200),
		nonce:   5,
		receipts: map[common.Hash]*gethtypes.Receipt{
			txHash: {Status: gethtypes.ReceiptStatusFailed, BlockNumber: big.NewInt(9)},
		},
	}
	o := NewOrchestrator(client, led, &fakeSubmitter{}, testAccount, defaultOpts())

	require.NoError(t, o.Reconcile(context.Background()))

	assert.False(t, led.Contains(pubkey))
	_, pending := led.Pending(pubkey)
	assert.False(t, pending)
}

func TestRunDryRunTouchesNothing(t *testing.T) {
	entries := []*types.DepositEntry{testEntry(t, "a1"), testEntry(t, "b2")}
	led := testLedger(t)
	sub := &fakeSubmitter{}
	opts := defaultOpts()
	opts.DryRun = true
	o := NewOrchestrator(&fakeChain{balance: eth(200)}, led, sub, testAccount, opts)

	summary, err := o.Run(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, &Summary{Submitted: 2}, summary)
	assert.Empty(t, sub.calls)
	assert.Zero(t, led.Size())
}

func TestRunCountsInvalidEntries(t *testing.T) {
	good := testEntry(t, "a1")
	badRoot := testEntry(t, "b2")
	badRoot.DepositDataRoot = strings.Repeat("00", 32)
	badField := testEntry(t, "c3")
	badField.Pubkey = "abcd"

	led := testLedger(t)
	sub := &fakeSubmitter{}
	o := NewOrchestrator(&fakeChain{balance: eth(200)}, led, sub, testAccount, defaultOpts())

	summary, err := o.Run(context.Background(), []*types.DepositEntry{good, badRoot, badField})
	require.NoError(t, err)

	assert.Equal(t, &Summary{Submitted: 1, Invalid: 2}, summary)
	assert.Equal(t, []string{good.NormalizedPubkey()}, sub.calls)
}

func TestRunSkipsRootCheckWhenDisabled(t *testing.T) {
	entry := testEntry(t, "a1")
	entry.DepositDataRoot = strings.Repeat("00", 32)

	led := testLedger(t)
	sub := &fakeSubmitter{}
	o := NewOrchestrator(&fakeChain{balance: eth(200)}, led, sub, testAccount, Options{})

	summary, err := o.Run(context.Background(), []*types.DepositEntry{entry})
	require.NoError(t, err)
	assert.Equal(t, &Summary{Submitted: 1}, summary)
}

func TestRunAppliesAmountOverride(t *testing.T) {
	entry := testEntry(t, "a1")
	led := testLedger(t)
	sub := &fakeSubmitter{}
	opts := Options{AmountGwei: 1_000_000_000} // 1 ETH
	o := NewOrchestrator(&fakeChain{balance: eth(2)}, led, sub, testAccount, opts)

	summary, err := o.Run(context.Background(), []*types.DepositEntry{entry})
	require.NoError(t, err)

	// 2 ETH covers the overridden 1 ETH deposit but not a default 32 ETH one
	assert.Equal(t, &Summary{Submitted: 1}, summary)
	assert.Equal(t, uint64(1_000_000_000), entry.Amount)
}

func TestSummarySuccess(t *testing.T) {
	tests := []struct {
		name    string
		summary Summary
		want    bool
	}{
		{"Empty", Summary{}, true},
		{"AllSubmitted", Summary{Submitted: 3}, true},
		{"Mixed", Summary{Submitted: 1, AlreadyDone: 2}, true},
		{"Failed", Summary{Submitted: 2, Failed: 1}, false},
		{"Invalid", Summary{Invalid: 1}, false},
		{"Unknown", Summary{Submitted: 1, Unknown: 1}, false},
		{"SkippedFunds", Summary{SkippedFunds: 1}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.summary.Success())
		})
	}
}

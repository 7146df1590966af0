// Package submitter builds, signs, broadcasts and confirms single deposit
// transactions. Transient node failures are retried with exponential backoff
// under a fresh fee quote and nonce. Once a transaction is broadcast there
// are no further attempts: the outcome is a receipt, a revert, or an
// UnknownOutcomeError for the caller's journal.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/Blockshard-io/validator-submitter/chain"
	"github.com/Blockshard-io/validator-submitter/config"
	"github.com/Blockshard-io/validator-submitter/fees"
	"github.com/Blockshard-io/validator-submitter/types"
)

// The deposit contract entry point. The selector packs to 0x22895118.
const depositABIJSON = `[{"inputs":[{"internalType":"bytes","name":"pubkey","type":"bytes"},{"internalType":"bytes","name":"withdrawal_credentials","type":"bytes"},{"internalType":"bytes","name":"signature","type":"bytes"},{"internalType":"bytes32","name":"deposit_data_root","type":"bytes32"}],"name":"deposit","outputs":[],"stateMutability":"payable","type":"function"}]`

var depositABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(depositABIJSON))
	if err != nil {
		panic(err)
	}
	depositABI = parsed
}

// Quoter prices one submission attempt. *fees.Estimator satisfies it.
type Quoter interface {
	Estimate(ctx context.Context) (*fees.Quote, error)
}

// Result describes a confirmed deposit transaction.
type Result struct {
	TxHash      common.Hash
	Nonce       uint64
	GasUsed     uint64
	BlockNumber *big.Int
	// CostWei is the gas actually burned, the deposit value excluded.
	CostWei *big.Int
}

// Submitter pushes deposits through build, sign, broadcast and confirmation.
// It never touches the ledger; recording outcomes is the caller's job.
type Submitter struct {
	client   chain.Backend
	signer   chain.Signer
	quoter   Quoter
	chainID  *big.Int
	contract common.Address
	cfg      config.SubmissionConfig
	sleep    sleepFn
}

func New(
	client chain.Backend,
	signer chain.Signer,
	quoter Quoter,
	chainID *big.Int,
	contract common.Address,
	cfg config.SubmissionConfig,
) *Submitter {
	return &Submitter{
		client:   client,
		signer:   signer,
		quoter:   quoter,
		chainID:  chainID,
		contract: contract,
		cfg:      cfg,
		sleep:    sleepContext,
	}
}

// packDeposit encodes the deposit(bytes,bytes,bytes,bytes32) calldata.
func packDeposit(d *types.DepositData) ([]byte, error) {
	return depositABI.Pack("deposit", d.Pubkey[:], d.WithdrawalCredentials[:], d.Signature[:], d.Root)
}

// Submit runs one deposit to an outcome. Transient failures before a
// successful broadcast retry with a fresh quote and nonce; permanent
// rejections and on-chain reverts return a *PermanentError; exhausting the
// attempt budget returns ErrRetriesExhausted wrapping the last failure. A
// broadcast that times out waiting for its receipt returns
// *UnknownOutcomeError and is never rebuilt here.
func (s *Submitter) Submit(ctx context.Context, entry *types.DepositEntry) (*Result, error) {
	data, err := entry.Decode()
	if err != nil {
		return nil, &PermanentError{Reason: "invalid deposit entry", Err: err}
	}
	calldata, err := packDeposit(data)
	if err != nil {
		return nil, &PermanentError{Reason: "pack deposit calldata", Err: err}
	}

	log.Info().
		Str("pubkey", entry.NormalizedPubkey()).
		Uint64("amountGwei", data.Amount).
		Msg("Submitting deposit")

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 1 {
			delay := backoffDelay(attempt-1, s.cfg.RetryBaseDelay(), s.cfg.RetryMaxDelay())
			log.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("Retrying submission")
			if err := s.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		res, err := s.submitOnce(ctx, data, calldata)
		if err == nil {
			return res, nil
		}

		var unknown *UnknownOutcomeError
		if errors.As(err, &unknown) {
			return nil, err
		}
		var perm *PermanentError
		if errors.As(err, &perm) {
			return nil, err
		}
		switch classify(err) {
		case classInsufficientFunds:
			return nil, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		case classPermanent:
			return nil, &PermanentError{Reason: "node rejected transaction", Err: err}
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, s.cfg.MaxAttempts, lastErr)
}

func (s *Submitter) submitOnce(ctx context.Context, data *types.DepositData, calldata []byte) (*Result, error) {
	quote, err := s.quoter.Estimate(ctx)
	if err != nil {
		return nil, fmt.Errorf("fee quote: %w", err)
	}
	nonce, err := s.client.PendingNonceAt(ctx, s.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	value := data.ValueWei()
	gasLimit := s.cfg.GasLimit
	if gasLimit == 0 {
		est, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
			From:      s.signer.Address(),
			To:        &s.contract,
			Value:     value,
			GasFeeCap: quote.FeeCap,
			GasTipCap: quote.TipCap,
			Data:      calldata,
		})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
		gasLimit = est + s.cfg.GasEstimateBuffer
	}

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: quote.TipCap,
		GasFeeCap: quote.FeeCap,
		Gas:       gasLimit,
		To:        &s.contract,
		Value:     value,
		Data:      calldata,
	})
	signed, err := s.signer.SignTx(tx, s.chainID)
	if err != nil {
		return nil, &PermanentError{Reason: "sign transaction", Err: err}
	}

	log.Info().
		Str("tx", signed.Hash().Hex()).
		Uint64("nonce", nonce).
		Uint64("gasLimit", gasLimit).
		Str("tipCap", quote.TipCap.String()).
		Str("feeCap", quote.FeeCap.String()).
		Msg("Broadcasting deposit transaction")

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		if !alreadyKnown(err) {
			return nil, fmt.Errorf("send transaction: %w", err)
		}
		// The pool holds this exact transaction from an earlier send that
		// errored on our side. Wait for the hash we signed.
		log.Warn().Str("tx", signed.Hash().Hex()).Msg("Transaction already in the pool")
	}

	return s.waitMined(ctx, signed.Hash(), nonce, quote.FeeCap)
}

// waitMined polls for the receipt until the configured timeout. After a
// broadcast the only outcomes are a receipt or an UnknownOutcomeError.
func (s *Submitter) waitMined(ctx context.Context, txHash common.Hash, nonce uint64, feeCap *big.Int) (*Result, error) {
	ticker := time.NewTicker(s.cfg.ReceiptPollInterval())
	defer ticker.Stop()
	deadline := time.NewTimer(s.cfg.ReceiptTimeout())
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, &UnknownOutcomeError{TxHash: txHash, Nonce: nonce}
		case <-deadline.C:
			return nil, &UnknownOutcomeError{TxHash: txHash, Nonce: nonce}
		case <-ticker.C:
			rcpt, err := s.client.TransactionReceipt(ctx, txHash)
			if err != nil {
				// Not mined yet, or the node is briefly unreachable. Keep
				// polling until the deadline.
				continue
			}
			if rcpt.Status != gethtypes.ReceiptStatusSuccessful {
				return nil, &PermanentError{
					Reason: fmt.Sprintf("transaction %s reverted on chain", txHash.Hex()),
				}
			}

			price := rcpt.EffectiveGasPrice
			if price == nil {
				price = feeCap
			}
			cost := new(big.Int).Mul(new(big.Int).SetUint64(rcpt.GasUsed), price)

			log.Info().
				Str("tx", txHash.Hex()).
				Uint64("gasUsed", rcpt.GasUsed).
				Str("block", rcpt.BlockNumber.String()).
				Msg("Deposit transaction confirmed")

			return &Result{
				TxHash:      txHash,
				Nonce:       nonce,
				GasUsed:     rcpt.GasUsed,
				BlockNumber: rcpt.BlockNumber,
				CostWei:     cost,
			}, nil
		}
	}
}

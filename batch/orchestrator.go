// Package batch walks a deposit-data file entry by entry, submitting every
// deposit that is not already confirmed, journaled or unaffordable. The loop
// is strictly sequential: one funding account, one transaction in flight.
package batch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/Blockshard-io/validator-submitter/chain"
	"github.com/Blockshard-io/validator-submitter/ledger"
	"github.com/Blockshard-io/validator-submitter/submitter"
	"github.com/Blockshard-io/validator-submitter/types"
)

// DepositSubmitter runs one deposit to an outcome. *submitter.Submitter
// satisfies it.
type DepositSubmitter interface {
	Submit(ctx context.Context, entry *types.DepositEntry) (*submitter.Result, error)
}

// Options tune a run without touching the collaborators.
type Options struct {
	// AmountGwei overrides the deposit amount for entries that do not
	// carry one. Zero keeps the per-entry or protocol default.
	AmountGwei uint64
	// VerifyRoots recomputes each entry's deposit data root before
	// submission and fails the entry on a mismatch.
	VerifyRoots bool
	// DryRun reports what would be submitted without broadcasting or
	// writing the ledger.
	DryRun bool
}

// Orchestrator drives a batch run over an opened ledger.
type Orchestrator struct {
	client  chain.Backend
	led     *ledger.Ledger
	sub     DepositSubmitter
	address common.Address
	opts    Options
}

func NewOrchestrator(
	client chain.Backend,
	led *ledger.Ledger,
	sub DepositSubmitter,
	address common.Address,
	opts Options,
) *Orchestrator {
	return &Orchestrator{
		client:  client,
		led:     led,
		sub:     sub,
		address: address,
		opts:    opts,
	}
}

// Run processes the entries in input order and returns a Summary of every
// outcome. It returns an error only when the run as a whole cannot proceed:
// reconciliation cannot reach the node, the balance cannot be read, or a
// ledger write fails after a confirmed deposit.
func (o *Orchestrator) Run(ctx context.Context, entries []*types.DepositEntry) (*Summary, error) {
	summary := &Summary{}

	if !o.opts.DryRun {
		if err := o.Reconcile(ctx); err != nil {
			return summary, err
		}
	}

	balance, err := o.client.BalanceAt(ctx, o.address, nil)
	if err != nil {
		return summary, fmt.Errorf("account balance: %w", err)
	}
	log.Info().
		Str("account", o.address.Hex()).
		Str("balanceWei", balance.String()).
		Int("entries", len(entries)).
		Bool("dryRun", o.opts.DryRun).
		Msg("Starting deposit batch")

loop:
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if entry.Amount == 0 && o.opts.AmountGwei != 0 {
			entry.Amount = o.opts.AmountGwei
		}

		data, err := entry.Decode()
		if err != nil {
			summary.Invalid++
			log.Error().Err(err).Int("entry", i).Msg("Invalid deposit entry")
			continue
		}
		if o.opts.VerifyRoots {
			if err := data.VerifyRoot(); err != nil {
				summary.Invalid++
				log.Error().Err(err).Str("pubkey", entry.NormalizedPubkey()).Msg("Deposit data root mismatch")
				continue
			}
		}

		pubkey := entry.NormalizedPubkey()
		if o.led.Contains(pubkey) {
			summary.AlreadyDone++
			log.Info().Str("pubkey", pubkey).Msg("Deposit already recorded, skipping")
			continue
		}
		if _, pending := o.led.Pending(pubkey); pending {
			summary.Unknown++
			log.Warn().Str("pubkey", pubkey).Msg("Earlier broadcast still unresolved, skipping")
			continue
		}

		value := data.ValueWei()
		if balance.Cmp(value) < 0 {
			remaining := len(entries) - i
			summary.SkippedFunds += remaining
			log.Error().
				Str("balanceWei", balance.String()).
				Str("requiredWei", value.String()).
				Int("skipped", remaining).
				Msg("Balance below deposit value, stopping batch")
			break
		}

		if o.opts.DryRun {
			summary.Submitted++
			log.Info().
				Str("pubkey", pubkey).
				Uint64("amountGwei", data.Amount).
				Msg("Dry run, would submit deposit")
			balance = new(big.Int).Sub(balance, value)
			continue
		}

		res, err := o.sub.Submit(ctx, entry)
		if err == nil {
			if err := o.led.Record(pubkey, res.TxHash.Hex()); err != nil {
				// Without a durable record the deposit would be repeated on
				// the next run. Stop here.
				return summary, fmt.Errorf("record confirmed deposit %s: %w", pubkey, err)
			}
			summary.Submitted++
			spent := new(big.Int).Add(value, res.CostWei)
			balance = new(big.Int).Sub(balance, spent)
			continue
		}

		var unknown *submitter.UnknownOutcomeError
		switch {
		case errors.As(err, &unknown):
			if jerr := o.led.MarkPending(&ledger.PendingTx{
				Pubkey:      pubkey,
				TxHash:      unknown.TxHash.Hex(),
				Nonce:       unknown.Nonce,
				BroadcastAt: time.Now().UTC(),
			}); jerr != nil {
				return summary, fmt.Errorf("journal pending broadcast %s: %w", pubkey, jerr)
			}
			summary.Unknown++
			// The value may leave the account once the transaction lands.
			balance = new(big.Int).Sub(balance, value)
		case errors.Is(err, submitter.ErrInsufficientFunds):
			remaining := len(entries) - i
			summary.SkippedFunds += remaining
			log.Error().Err(err).Int("skipped", remaining).Msg("Node reports insufficient funds, stopping batch")
			break loop
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return summary, err
		default:
			summary.Failed++
			log.Error().Err(err).Str("pubkey", pubkey).Msg("Deposit submission failed")
		}
	}

	log.Info().
		Int("submitted", summary.Submitted).
		Int("alreadyDone", summary.AlreadyDone).
		Int("skippedFunds", summary.SkippedFunds).
		Int("unknown", summary.Unknown).
		Int("failed", summary.Failed).
		Int("invalid", summary.Invalid).
		Msg("Deposit batch finished")

	return summary, nil
}

// Reconcile resolves every journaled broadcast: a found receipt promotes or
// releases the entry, a passed nonce without a receipt releases it, anything
// else stays pending. Run calls it before touching any entry; the reconcile
// command exposes it standalone.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	pending := o.led.PendingAll()
	if len(pending) == 0 {
		return nil
	}

	confirmedNonce, err := o.client.NonceAt(ctx, o.address, nil)
	if err != nil {
		return fmt.Errorf("account nonce: %w", err)
	}

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		rcpt, err := o.client.TransactionReceipt(ctx, common.HexToHash(p.TxHash))
		switch {
		case err == nil:
			if rcpt.Status == gethtypes.ReceiptStatusSuccessful {
				if err := o.led.Record(p.Pubkey, p.TxHash); err != nil {
					return fmt.Errorf("promote pending deposit %s: %w", p.Pubkey, err)
				}
				log.Info().Str("pubkey", p.Pubkey).Str("tx", p.TxHash).Msg("Journaled broadcast confirmed on chain")
			} else {
				log.Warn().Str("pubkey", p.Pubkey).Str("tx", p.TxHash).Msg("Journaled broadcast reverted, entry eligible again")
			}
			if err := o.led.ResolvePending(p.Pubkey); err != nil {
				return fmt.Errorf("resolve pending %s: %w", p.Pubkey, err)
			}
		case errors.Is(err, ethereum.NotFound):
			if confirmedNonce > p.Nonce {
				// Another transaction consumed the nonce, this one can no
				// longer be included.
				if err := o.led.ResolvePending(p.Pubkey); err != nil {
					return fmt.Errorf("resolve pending %s: %w", p.Pubkey, err)
				}
				log.Warn().Str("pubkey", p.Pubkey).Str("tx", p.TxHash).Msg("Journaled broadcast superseded, entry eligible again")
			} else {
				log.Warn().Str("pubkey", p.Pubkey).Str("tx", p.TxHash).Msg("Journaled broadcast still undecided, keeping entry on hold")
			}
		default:
			// Cannot tell whether the transaction landed. Resubmitting now
			// could double-spend, so give up on this run.
			return fmt.Errorf("look up receipt %s: %w", p.TxHash, err)
		}
	}

	return nil
}

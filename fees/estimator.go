package fees

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/rs/zerolog/log"

	"github.com/Blockshard-io/validator-submitter/config"
)

// Fallback pricing for chains with no usable fee history, matching the
// submitter's long-standing constants: 30 gwei base, 1.5 gwei tip.
var (
	fallbackBaseFee = big.NewInt(30_000_000_000)
	fallbackTipCap  = big.NewInt(1_500_000_000)
)

// Quote prices one submission attempt. All values are in wei.
type Quote struct {
	BaseFee *big.Int
	TipCap  *big.Int
	FeeCap  *big.Int
}

// HistoryReader is the single node call the estimator needs.
type HistoryReader interface {
	FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error)
}

// Estimator derives a fresh Quote from recent fee history. Every submission
// attempt asks for its own quote; quotes are never reused.
type Estimator struct {
	client HistoryReader
	cfg    config.FeeConfig
}

func NewEstimator(client HistoryReader, cfg config.FeeConfig) *Estimator {
	return &Estimator{
		client: client,
		cfg:    cfg,
	}
}

// Estimate queries fee history once and prices the next block. The base fee
// is the history's projection for the upcoming block, the tip is the median
// of the percentile rewards over the window, floored at the configured
// minimum. The fee cap is base times multiplier plus tip, bounded by the
// configured absolute cap. RPC errors surface to the caller unretried.
func (e *Estimator) Estimate(ctx context.Context) (*Quote, error) {
	hist, err := e.client.FeeHistory(ctx, e.cfg.BlockCount, nil, []float64{e.cfg.RewardPercentile})
	if err != nil {
		return nil, fmt.Errorf("fee history: %w", err)
	}

	baseFee := nextBaseFee(hist)
	tip := medianReward(hist)
	if tip == nil {
		tip = new(big.Int).Set(fallbackTipCap)
	}

	minTip := big.NewInt(e.cfg.MinTipWei)
	if tip.Cmp(minTip) < 0 {
		tip = minTip
	}

	feeCap := new(big.Int).Mul(baseFee, big.NewInt(e.cfg.BaseFeeMultiplier))
	feeCap.Add(feeCap, tip)

	hardCap := big.NewInt(e.cfg.FeeCapWei)
	if feeCap.Cmp(hardCap) > 0 {
		log.Warn().
			Str("computedFeeCap", feeCap.String()).
			Str("configuredCap", hardCap.String()).
			Msg("Fee cap bounded by configuration, inclusion may lag")
		feeCap = hardCap
	}

	quote := &Quote{
		BaseFee: baseFee,
		TipCap:  tip,
		FeeCap:  feeCap,
	}
	log.Debug().
		Str("baseFee", quote.BaseFee.String()).
		Str("tipCap", quote.TipCap.String()).
		Str("feeCap", quote.FeeCap.String()).
		Msg("Fee quote")

	return quote, nil
}

// nextBaseFee picks the history's last base fee entry, the projection for
// the block the transaction targets. Empty history falls back to the fixed
// default.
func nextBaseFee(hist *ethereum.FeeHistory) *big.Int {
	if hist == nil || len(hist.BaseFee) == 0 {
		return new(big.Int).Set(fallbackBaseFee)
	}
	last := hist.BaseFee[len(hist.BaseFee)-1]
	if last == nil || last.Sign() == 0 {
		return new(big.Int).Set(fallbackBaseFee)
	}
	return new(big.Int).Set(last)
}

// medianReward returns the median of the per-block percentile rewards, nil
// when the window carries no samples.
func medianReward(hist *ethereum.FeeHistory) *big.Int {
	if hist == nil {
		return nil
	}

	var samples []*big.Int
	for _, rewards := range hist.Reward {
		if len(rewards) == 0 || rewards[0] == nil {
			continue
		}
		samples = append(samples, rewards[0])
	}
	if len(samples) == 0 {
		return nil
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Cmp(samples[j]) < 0 })

	mid := len(samples) / 2
	if len(samples)%2 == 1 {
		return new(big.Int).Set(samples[mid])
	}
	sum := new(big.Int).Add(samples[mid-1], samples[mid])
	return sum.Rsh(sum, 1)
}

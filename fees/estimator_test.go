package fees

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blockshard-io/validator-submitter/config"
)

type fakeHistoryReader struct {
	hist  *ethereum.FeeHistory
	err   error
	calls int
}

func (f *fakeHistoryReader) FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.hist, nil
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func testFeeConfig() config.FeeConfig {
	return config.DefaultConfig().Fees
}

func TestEstimateFromHistory(t *testing.T) {
	// three-block window: the history carries four base fees, the last one
	// being the projection for the next block
	client := &fakeHistoryReader{
		hist: &ethereum.FeeHistory{
			BaseFee: []*big.Int{gwei(10), gwei(20), gwei(30), gwei(40)},
			Reward:  [][]*big.Int{{gwei(2)}, {gwei(1)}, {gwei(3)}},
		},
	}

	quote, err := NewEstimator(client, testFeeConfig()).Estimate(context.Background())
	require.NoError(t, err)

	assert.Zero(t, quote.BaseFee.Cmp(gwei(40)))
	assert.Zero(t, quote.TipCap.Cmp(gwei(2)))
	// base * 2 + tip
	assert.Zero(t, quote.FeeCap.Cmp(gwei(82)))
}

func TestEstimateEmptyHistoryFallsBack(t *testing.T) {
	client := &fakeHistoryReader{hist: &ethereum.FeeHistory{}}

	quote, err := NewEstimator(client, testFeeConfig()).Estimate(context.Background())
	require.NoError(t, err)

	assert.Zero(t, quote.BaseFee.Cmp(gwei(30)))
	assert.Zero(t, quote.TipCap.Cmp(big.NewInt(1_500_000_000)))
	// 30 gwei * 2 + 1.5 gwei
	assert.Zero(t, quote.FeeCap.Cmp(big.NewInt(61_500_000_000)))
}

func TestEstimateTipFloor(t *testing.T) {
	client := &fakeHistoryReader{
		hist: &ethereum.FeeHistory{
			BaseFee: []*big.Int{gwei(10), gwei(10)},
			Reward:  [][]*big.Int{{big.NewInt(0)}},
		},
	}

	quote, err := NewEstimator(client, testFeeConfig()).Estimate(context.Background())
	require.NoError(t, err)

	// a zero-tip sample is floored at the configured minimum
	assert.Zero(t, quote.TipCap.Cmp(gwei(1)))
}

func TestEstimateHonorsHardCap(t *testing.T) {
	client := &fakeHistoryReader{
		hist: &ethereum.FeeHistory{
			BaseFee: []*big.Int{gwei(500), gwei(600)},
			Reward:  [][]*big.Int{{gwei(2)}},
		},
	}

	quote, err := NewEstimator(client, testFeeConfig()).Estimate(context.Background())
	require.NoError(t, err)

	assert.Zero(t, quote.FeeCap.Cmp(gwei(100)))
}

func TestEstimateEvenSampleMedian(t *testing.T) {
	client := &fakeHistoryReader{
		hist: &ethereum.FeeHistory{
			BaseFee: []*big.Int{gwei(10), gwei(10), gwei(10), gwei(10), gwei(10)},
			Reward:  [][]*big.Int{{gwei(1)}, {gwei(2)}, {gwei(3)}, {gwei(4)}},
		},
	}

	quote, err := NewEstimator(client, testFeeConfig()).Estimate(context.Background())
	require.NoError(t, err)

	// median of 1,2,3,4 gwei
	assert.Zero(t, quote.TipCap.Cmp(big.NewInt(2_500_000_000)))
}

func TestEstimateErrorIsNotRetried(t *testing.T) {
	client := &fakeHistoryReader{err: errors.New("connection refused")}

	_, err := NewEstimator(client, testFeeConfig()).Estimate(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
}

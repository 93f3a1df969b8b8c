package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

func TestExtractSeries(t *testing.T) {
	klines := []types.Kline{
		{Open: 1, High: 3, Low: 0.5, Close: 2, Volume: 100},
		{Open: 2, High: 4, Low: 1.5, Close: 3, Volume: 200},
	}
	s := ExtractSeries(klines)
	assert.Equal(t, []float64{2, 3}, s.Closes)
	assert.Equal(t, []float64{3, 4}, s.Highs)
	assert.Equal(t, []float64{0.5, 1.5}, s.Lows)
	assert.Equal(t, []float64{100, 200}, s.Volumes)
}

func TestEMA(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	out := EMA(closes, 10)
	require.NotEmpty(t, out)
	// 单调上涨序列里 EMA 跟随价格且落后于最新价。
	last := Last(out)
	assert.Greater(t, last, 130.0)
	assert.Less(t, last, closes[len(closes)-1])

	assert.Nil(t, EMA(closes, 0))
	assert.Nil(t, EMA(closes[:5], 10))
}

func TestRSI_Bounds(t *testing.T) {
	closes := []float64{
		44, 44.3, 44.1, 43.6, 44.3, 44.8, 45.1, 45.4, 45.8, 46.1,
		45.9, 46.3, 46.5, 46.2, 46.0, 46.6, 46.8, 47.1, 46.9, 47.3,
	}
	out := RSI(closes, 14)
	require.NotEmpty(t, out)
	for _, v := range out {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
	assert.Nil(t, RSI(closes[:10], 14))
}

func TestLast_SkipsTrailingInvalid(t *testing.T) {
	assert.Equal(t, 0.0, Last(nil))
	assert.Equal(t, 7.0, Last([]float64{1, 7}))
}

func TestMeanAndStdev(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 3, Mean([]float64{1, 3, 5}), 1e-9)

	assert.Equal(t, 0.0, Stdev([]float64{42}))
	assert.InDelta(t, 2, Stdev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
}

func TestOBV(t *testing.T) {
	closes := []float64{10, 11, 10.5, 11.5}
	volumes := []float64{100, 200, 150, 300}
	out := OBV(closes, volumes)
	require.NotEmpty(t, out)
	// 收盘走高加仓量、走低减仓量。
	assert.InDelta(t, 450, Last(out), 1e-9)

	assert.Nil(t, OBV(closes, volumes[:2]))
	assert.Nil(t, OBV(nil, nil))
}

func TestROC(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110}
	out := ROC(closes, 9)
	require.NotEmpty(t, out)
	assert.Greater(t, Last(out), 0.0)
}

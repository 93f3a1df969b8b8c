package indicator

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

// 中文说明：
// 本包是策略沙箱允许调用的指标函数白名单。所有函数均为纯计算，
// 不做任何 I/O。输出序列统一清洗 NaN/Inf 并保留四位小数。

// Series 从 K 线序列拆出指标计算所需的各列。
type Series struct {
	Closes  []float64
	Highs   []float64
	Lows    []float64
	Volumes []float64
}

// ExtractSeries 将 K 线序列转为列式数据。
func ExtractSeries(klines []types.Kline) Series {
	s := Series{
		Closes:  make([]float64, len(klines)),
		Highs:   make([]float64, len(klines)),
		Lows:    make([]float64, len(klines)),
		Volumes: make([]float64, len(klines)),
	}
	for i, k := range klines {
		s.Closes[i] = k.Close
		s.Highs[i] = k.High
		s.Lows[i] = k.Low
		s.Volumes[i] = k.Volume
	}
	return s
}

// EMA 指数移动平均。period<=0 时返回空序列。
func EMA(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}
	return trimLeadingZeros(sanitize(talib.Ema(closes, period)))
}

// RSI 相对强弱指数。
func RSI(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) <= period {
		return nil
	}
	return sanitize(talib.Rsi(closes, period))
}

// MACD 返回 macd/signal/histogram 三条序列。
func MACD(closes []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	if fast <= 0 {
		fast = 12
	}
	if slow <= 0 {
		slow = 26
	}
	if signal <= 0 {
		signal = 9
	}
	if len(closes) < slow+signal {
		return nil, nil, nil
	}
	m, s, h := talib.Macd(closes, fast, slow, signal)
	return sanitize(m), sanitize(s), sanitize(h)
}

// ATR 平均真实波幅。
func ATR(highs, lows, closes []float64, period int) []float64 {
	if period <= 0 {
		period = 14
	}
	if len(closes) <= period {
		return nil
	}
	return sanitize(talib.Atr(highs, lows, closes, period))
}

// Stoch 随机指标，返回 %K 与 %D。
func Stoch(highs, lows, closes []float64) (k, d []float64) {
	if len(closes) < 20 {
		return nil, nil
	}
	rk, rd := talib.Stoch(highs, lows, closes, 14, 3, talib.SMA, 3, talib.SMA)
	return sanitize(rk), sanitize(rd)
}

// WilliamsR 威廉指标。
func WilliamsR(highs, lows, closes []float64, period int) []float64 {
	if period <= 0 {
		period = 14
	}
	if len(closes) <= period {
		return nil
	}
	return sanitize(talib.WillR(highs, lows, closes, period))
}

// ROC 变动率。
func ROC(closes []float64, period int) []float64 {
	if period <= 0 {
		period = 9
	}
	if len(closes) <= period {
		return nil
	}
	return sanitize(talib.Roc(closes, period))
}

// OBV 能量潮。
func OBV(closes, volumes []float64) []float64 {
	if len(closes) == 0 || len(closes) != len(volumes) {
		return nil
	}
	return sanitize(talib.Obv(closes, volumes))
}

// Last 返回序列最后一个有效值，空序列返回 0。
func Last(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}

// Mean 算术平均。
func Mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// Stdev 总体标准差。
func Stdev(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	m := Mean(series)
	var acc float64
	for _, v := range series {
		d := v - m
		acc += d * d
	}
	return math.Sqrt(acc / float64(len(series)))
}

func sanitize(src []float64) []float64 {
	out := make([]float64, 0, len(src))
	for _, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, round4(v))
	}
	return out
}

// trimLeadingZeros 去掉 TALib EMA 序列开头的零值种子。
func trimLeadingZeros(series []float64) []float64 {
	start := 0
	for start < len(series) && math.Abs(series[start]) <= 1e-9 {
		start++
	}
	return series[start:]
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

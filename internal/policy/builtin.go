package policy

import (
	"context"
	"math"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/pkg/convert"
	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

// 中文说明：
// 内置处理器：随注册表提供的两个开箱即用策略实现。
// momentum —— 买入流程，EMA/RSI 动量开多；
// drawdown_guard —— 卖出流程，浮亏超过阈值时平仓止损。
// 参数全部来自策略记录的 params 字段。

// HandlerMomentum / HandlerDrawdownGuard 内置处理器 ID。
const (
	HandlerMomentum      = "momentum"
	HandlerDrawdownGuard = "drawdown_guard"
)

// DefaultRegistry 返回含内置处理器的注册表。
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.MustRegister(HandlerMomentum, newMomentum, types.FlowBuy)
	reg.MustRegister(HandlerDrawdownGuard, newDrawdownGuard, types.FlowSell)
	return reg
}

func newMomentum(rec Record) (Instance, error) {
	emaPeriod := convert.ToInt(rec.Params["ema_period"])
	if emaPeriod <= 0 {
		emaPeriod = 21
	}
	rsiPeriod := convert.ToInt(rec.Params["rsi_period"])
	if rsiPeriod <= 0 {
		rsiPeriod = 14
	}
	rsiCeiling := convert.ToFloat64(rec.Params["rsi_ceiling"])
	if rsiCeiling <= 0 {
		rsiCeiling = 70
	}
	stakeUSD := convert.ToFloat64(rec.Params["stake_usd"])
	if stakeUSD <= 0 {
		stakeUSD = 100
	}
	leverage := convert.ToFloat64(rec.Params["leverage"])
	if leverage < 1 {
		leverage = 1
	}
	timeframe := ""
	if v, ok := rec.Params["timeframe"].(string); ok {
		timeframe = v
	}
	if timeframe == "" {
		timeframe = "1h"
	}

	fn := func(_ context.Context, in Inputs, tk *Toolkit) (Raw, error) {
		out := make(Raw)
		for _, c := range in.Candidates {
			entry, ok := in.Market[c.Symbol]
			if !ok || entry.Price <= 0 {
				continue
			}
			tf, ok := entry.Indicators[timeframe]
			if !ok || len(tf.Klines) == 0 {
				continue
			}
			series := tk.Series(tf.Klines)
			ema := tk.Last(tk.EMA(series.Closes, emaPeriod))
			rsi := tk.Last(tk.RSI(series.Closes, rsiPeriod))
			if ema <= 0 || entry.Price <= ema || rsi <= 0 || rsi >= rsiCeiling {
				continue
			}
			out[c.Symbol] = []any{map[string]any{
				"signal":        types.SignalBuyToLong,
				"quantity":      stakeUSD / entry.Price,
				"leverage":      leverage,
				"justification": "price above EMA with RSI headroom",
			}}
		}
		return out, nil
	}
	return NewFuncInstance(rec.Name, types.FlowBuy, fn), nil
}

func newDrawdownGuard(rec Record) (Instance, error) {
	maxLossUSD := convert.ToFloat64(rec.Params["max_loss_usd"])
	if maxLossUSD <= 0 {
		maxLossUSD = 50
	}

	fn := func(_ context.Context, in Inputs, _ *Toolkit) (Raw, error) {
		out := make(Raw)
		for _, pos := range in.Positions {
			if pos.UnrealizedProfit >= -maxLossUSD {
				continue
			}
			out[pos.Symbol] = []any{map[string]any{
				"signal":        types.SignalStopLoss,
				"quantity":      math.Abs(pos.PositionAmt),
				"justification": "unrealized loss beyond threshold",
			}}
		}
		return out, nil
	}
	return NewFuncInstance(rec.Name, types.FlowSell, fn), nil
}

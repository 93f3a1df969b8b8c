package decision

import (
	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

// 中文说明：
// 决策合法性校验：信号是否属于对应流程的枚举、数量是否为正、
// 买入流程的保证金需求计算。未识别信号与非正数量静默丢弃
// （视为该记录"无动作"，不报错）。

var buySignals = map[string]bool{
	types.SignalBuyToLong:  true,
	types.SignalBuyToShort: true,
}

var sellSignals = map[string]bool{
	types.SignalClosePosition: true,
	types.SignalStopLoss:      true,
	types.SignalTakeProfit:    true,
}

// SignalRecognized 判断信号是否属于指定流程的枚举。
func SignalRecognized(flow types.Flow, signal string) bool {
	switch flow {
	case types.FlowBuy:
		return buySignals[signal]
	case types.FlowSell:
		return sellSignals[signal]
	default:
		return false
	}
}

// ValidSubset 返回列表中信号合法且数量为正的子集。
// 部分合法的列表按其合法子集被接受。
func ValidSubset(flow types.Flow, decs []types.Decision) []types.Decision {
	out := make([]types.Decision, 0, len(decs))
	for _, d := range decs {
		if !SignalRecognized(flow, d.Signal) {
			continue
		}
		if d.Quantity <= 0 {
			continue
		}
		out = append(out, d)
	}
	return out
}

// RequiredCapital 列表的保证金总需求：Σ quantity × price ÷ leverage。
// 记录未带价格时用 fallbackPrice（来自市场状态）。
func RequiredCapital(decs []types.Decision, fallbackPrice float64) float64 {
	var total float64
	for _, d := range decs {
		total += d.RequiredCapital(fallbackPrice)
	}
	return total
}

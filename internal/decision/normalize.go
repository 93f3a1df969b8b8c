package decision

import (
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/policy"
	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

// 中文说明：
// 归一化器：把策略的原始输出修整为规范的 symbol -> []Decision 形态。
// symbol 下的非序列值一律降级为空列表（防御性修整，不报错），
// 逼迫策略输出合规形态。数量按价格档位向上取整。

// NormalizeSignal 统一信号名称，兼容 long/short/close 等同义词。
func NormalizeSignal(s string) string {
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	s = replacer.Replace(strings.ToLower(strings.TrimSpace(s)))
	switch s {
	case "buy_to_long", "open_long", "long", "buy_long", "go_long":
		return types.SignalBuyToLong
	case "buy_to_short", "open_short", "short", "sell_short", "go_short":
		return types.SignalBuyToShort
	case "close_position", "close", "exit", "flat", "close_long", "close_short":
		return types.SignalClosePosition
	case "stop_loss", "stoploss", "sl":
		return types.SignalStopLoss
	case "take_profit", "takeprofit", "tp":
		return types.SignalTakeProfit
	default:
		return s
	}
}

// QuantityDecimals 价格档位对应的数量精度：价格越低取整越粗，
// 档位在 1/10/100/1,000/10,000/100,000 处按量级递进。
func QuantityDecimals(price float64) int32 {
	switch {
	case price < 1:
		return 0
	case price < 10:
		return 1
	case price < 100:
		return 2
	case price < 1000:
		return 3
	case price < 10000:
		return 4
	case price < 100000:
		return 5
	default:
		return 6
	}
}

// RoundQuantityUp 将数量向上取整到价格档位隐含的最小单位。
// 价格不可得时向上取整到整数单位；qty<=0 归一为 0。
func RoundQuantityUp(qty, price float64) float64 {
	if qty <= 0 {
		return 0
	}
	places := int32(0)
	if price > 0 {
		places = QuantityDecimals(price)
	}
	rounded, _ := decimal.NewFromFloat(qty).RoundUp(places).Float64()
	return rounded
}

// Normalize 把原始输出修整为规范形态并应用数量精度规则。
// 对已规范的输出再次调用是无操作（幂等）。
func Normalize(raw policy.Raw, market types.MarketState) map[string][]types.Decision {
	out := make(map[string][]types.Decision, len(raw))
	for symbol, value := range raw {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		out[symbol] = normalizeList(symbol, value, market)
	}
	return out
}

func normalizeList(symbol string, value any, market types.MarketState) []types.Decision {
	records := asSequence(value)
	if len(records) == 0 {
		return []types.Decision{}
	}
	price := market[symbol].Price
	out := make([]types.Decision, 0, len(records))
	for _, rec := range records {
		d, ok := decodeRecord(rec)
		if !ok {
			continue
		}
		if d.Symbol == "" {
			d.Symbol = symbol
		}
		d.Signal = NormalizeSignal(d.Signal)
		d.Quantity = RoundQuantityUp(d.Quantity, price)
		out = append(out, d)
	}
	return out
}

// asSequence 只接受序列形态；单条裸记录/映射等一律视为空列表。
func asSequence(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []map[string]any:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out
	case []types.Decision:
		out := make([]any, len(v))
		for i, d := range v {
			out[i] = d
		}
		return out
	default:
		return nil
	}
}

func decodeRecord(rec any) (types.Decision, bool) {
	if d, ok := rec.(types.Decision); ok {
		return d, true
	}
	var out types.Decision
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return types.Decision{}, false
	}
	if err := dec.Decode(rec); err != nil {
		return types.Decision{}, false
	}
	return out, true
}

package types

import "time"

// 中文说明：
// 本文件定义策略决策引擎使用的通用数据结构：候选币、持仓、账户、
// 组合快照与市场状态。均为每轮决策临时构建的快照，引擎不持久化。

// Flow 区分买入/卖出两条决策流程。
type Flow string

const (
	FlowBuy  Flow = "buy"
	FlowSell Flow = "sell"
)

// Valid 判断 flow 是否合法。
func (f Flow) Valid() bool { return f == FlowBuy || f == FlowSell }

// 买入流程识别的信号。
const (
	SignalBuyToLong  = "buy_to_long"
	SignalBuyToShort = "buy_to_short"
)

// 卖出流程识别的信号。
const (
	SignalClosePosition = "close_position"
	SignalStopLoss      = "stop_loss"
	SignalTakeProfit    = "take_profit"
)

// Candidate 买入流程的候选币（每轮从行情数据构建）。
type Candidate struct {
	Symbol         string  `json:"symbol"`
	ContractSymbol string  `json:"contract_symbol"`
	LastPrice      float64 `json:"last_price"`
	QuoteVolume24h float64 `json:"quote_volume_24h"`
}

// PositionSnapshot 卖出流程的持仓快照（来自交易所实时状态）。
type PositionSnapshot struct {
	Symbol           string  `json:"symbol"`
	PositionAmt      float64 `json:"position_amt"`
	PositionSide     string  `json:"position_side"` // LONG / SHORT
	EntryPrice       float64 `json:"entry_price"`
	Leverage         float64 `json:"leverage,omitempty"`
	UnrealizedProfit float64 `json:"unrealized_profit"`
}

// AccountSnapshot 账户资金概要。引擎仅在私有工作副本上做扣减。
type AccountSnapshot struct {
	Balance          float64 `json:"balance"`
	AvailableBalance float64 `json:"available_balance"`
	CumulativeReturn float64 `json:"cumulative_return"`
}

// PortfolioSnapshot 组合快照：可用现金、总价值与持仓序列。
type PortfolioSnapshot struct {
	Cash       float64            `json:"cash"`
	TotalValue float64            `json:"total_value"`
	Positions  []PositionSnapshot `json:"positions"`
}

// Kline 单根 K 线（OHLCV + 可选指标值）。
type Kline struct {
	OpenTime   time.Time          `json:"open_time,omitempty"`
	Open       float64            `json:"open"`
	High       float64            `json:"high"`
	Low        float64            `json:"low"`
	Close      float64            `json:"close"`
	Volume     float64            `json:"volume"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// TimeframeData 某个时间级别的有限有序 K 线序列。
type TimeframeData struct {
	Klines []Kline `json:"klines"`
}

// MarketEntry 单币种市场状态条目。引擎只读，不得修改。
type MarketEntry struct {
	Symbol         string                   `json:"symbol"`
	Price          float64                  `json:"price"`
	ContractSymbol string                   `json:"contract_symbol"`
	QuoteVolume    float64                  `json:"quote_volume"`
	Change24h      float64                  `json:"change_24h"`
	Indicators     map[string]TimeframeData `json:"indicators,omitempty"`
}

// MarketState symbol -> 市场状态条目。
type MarketState map[string]MarketEntry

// Decision 单条决策记录：策略产出、归一化器修整、引擎校验。
type Decision struct {
	Symbol        string  `json:"symbol"`
	Signal        string  `json:"signal"`
	Quantity      float64 `json:"quantity"`
	Leverage      float64 `json:"leverage,omitempty"`
	Price         float64 `json:"price,omitempty"`
	StopPrice     float64 `json:"stop_price,omitempty"`
	Justification string  `json:"justification,omitempty"`

	// 来源信息：由引擎在提交时补全。
	PolicyName string `json:"policy_name,omitempty"`
	Flow       Flow   `json:"flow,omitempty"`
}

// RequiredCapital 该决策占用的保证金：quantity × price ÷ leverage，
// leverage 缺省按 1 计。price 取记录自带价格，缺失时用 fallback。
func (d Decision) RequiredCapital(fallbackPrice float64) float64 {
	price := d.Price
	if price <= 0 {
		price = fallbackPrice
	}
	if price <= 0 || d.Quantity <= 0 {
		return 0
	}
	lev := d.Leverage
	if lev < 1 {
		lev = 1
	}
	return d.Quantity * price / lev
}

package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/policy"
	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

func TestNormalizeSignal(t *testing.T) {
	cases := map[string]string{
		"buy_to_long":    types.SignalBuyToLong,
		"Open_Long":      types.SignalBuyToLong,
		"  long ":        types.SignalBuyToLong,
		"go-short":       types.SignalBuyToShort,
		"open_short":     types.SignalBuyToShort,
		"close_position": types.SignalClosePosition,
		"CLOSE":          types.SignalClosePosition,
		"exit":           types.SignalClosePosition,
		"stop loss":      types.SignalStopLoss,
		"SL":             types.SignalStopLoss,
		"take_profit":    types.SignalTakeProfit,
		"tp":             types.SignalTakeProfit,
		"moon_ritual":    "moon_ritual",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeSignal(in), "input %q", in)
	}
}

func TestRoundQuantityUp(t *testing.T) {
	cases := []struct {
		name  string
		qty   float64
		price float64
		want  float64
	}{
		{"SubDollarPriceWholeUnits", 3.2, 0.5, 4},
		{"SingleDigitPriceOneDecimal", 3.24, 5, 3.3},
		{"TwoDigitPriceTwoDecimals", 1.001, 42, 1.01},
		{"ThreeDigitPriceThreeDecimals", 0.0001, 500, 0.001},
		{"FourDigitPriceFourDecimals", 0.00001, 2000, 0.0001},
		{"FiveDigitPriceFiveDecimals", 0.1, 50000, 0.1},
		{"SixDigitPriceSixDecimals", 0.0000001, 123456, 0.000001},
		{"UnresolvablePriceWholeUnits", 2.1, 0, 3},
		{"ZeroQuantityNormalizesToZero", 0, 50000, 0},
		{"NegativeQuantityNormalizesToZero", -1.5, 50000, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, RoundQuantityUp(tc.qty, tc.price), 1e-12)
		})
	}
}

func TestNormalize_CanonicalShape(t *testing.T) {
	market := types.MarketState{"BTC": {Symbol: "BTC", Price: 50000}}
	raw := policy.Raw{"BTC": []any{map[string]any{
		"signal":        "open_long",
		"quantity":      "0.1",
		"leverage":      "5",
		"justification": "breakout",
	}}}

	out := Normalize(raw, market)
	require.Contains(t, out, "BTC")
	require.Len(t, out["BTC"], 1)

	d := out["BTC"][0]
	assert.Equal(t, "BTC", d.Symbol)
	assert.Equal(t, types.SignalBuyToLong, d.Signal)
	assert.InDelta(t, 0.1, d.Quantity, 1e-9)
	assert.InDelta(t, 5, d.Leverage, 1e-9)
	assert.Equal(t, "breakout", d.Justification)
}

func TestNormalize_BareMappingDegradesToEmptyList(t *testing.T) {
	market := types.MarketState{"BTC": {Symbol: "BTC", Price: 50000}}
	raw := policy.Raw{
		"BTC": map[string]any{"signal": "buy_to_long", "quantity": 0.1},
		"ETH": "buy_to_long",
		"SOL": 42,
	}

	out := Normalize(raw, market)
	assert.Empty(t, out["BTC"])
	assert.Empty(t, out["ETH"])
	assert.Empty(t, out["SOL"])
	// key 保留但列表为空：该 symbol 本策略无决策。
	assert.Contains(t, out, "BTC")
}

func TestNormalize_Idempotent(t *testing.T) {
	market := types.MarketState{
		"BTC": {Symbol: "BTC", Price: 50000},
		"DOGE": {Symbol: "DOGE", Price: 0.2},
	}
	raw := policy.Raw{
		"BTC": []any{map[string]any{"signal": "long", "quantity": 0.123456789, "leverage": 3}},
		"DOGE": []any{map[string]any{"signal": "open_short", "quantity": 17.3}},
	}

	once := Normalize(raw, market)

	again := make(policy.Raw, len(once))
	for sym, decs := range once {
		again[sym] = decs
	}
	twice := Normalize(again, market)
	assert.Equal(t, once, twice)
}

func TestValidSubset(t *testing.T) {
	decs := []types.Decision{
		{Symbol: "BTC", Signal: types.SignalBuyToLong, Quantity: 0.1},
		{Symbol: "BTC", Signal: "hold", Quantity: 0.1},
		{Symbol: "BTC", Signal: types.SignalBuyToShort, Quantity: 0},
		{Symbol: "BTC", Signal: types.SignalClosePosition, Quantity: 0.1},
	}

	buy := ValidSubset(types.FlowBuy, decs)
	require.Len(t, buy, 1)
	assert.Equal(t, types.SignalBuyToLong, buy[0].Signal)

	sell := ValidSubset(types.FlowSell, decs)
	require.Len(t, sell, 1)
	assert.Equal(t, types.SignalClosePosition, sell[0].Signal)
}

func TestRequiredCapital(t *testing.T) {
	decs := []types.Decision{
		{Signal: types.SignalBuyToLong, Quantity: 0.1, Leverage: 5},
		{Signal: types.SignalBuyToShort, Quantity: 0.2},
	}
	// 0.1×50000÷5 + 0.2×50000÷1 = 1000 + 10000
	assert.InDelta(t, 11000, RequiredCapital(decs, 50000), 1e-6)

	withPrice := []types.Decision{{Signal: types.SignalBuyToLong, Quantity: 1, Price: 100, Leverage: 2}}
	assert.InDelta(t, 50, RequiredCapital(withPrice, 50000), 1e-6)
}

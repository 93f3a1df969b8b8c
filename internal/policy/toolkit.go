package policy

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/indicator"
	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/pkg/convert"
	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

// 中文说明：
// Toolkit 是策略沙箱的能力白名单：显式传入策略调用，只暴露被批准的
// 指标函数、数学/统计原语、时间与 JSON 辅助能力。策略拿不到任何
// 文件、网络、进程或反射入口。

// Toolkit 策略可用的全部能力集合。
type Toolkit struct {
	now func() time.Time
}

// NewToolkit 构建默认能力集。
func NewToolkit() *Toolkit {
	return &Toolkit{now: time.Now}
}

// NewToolkitWithClock 指定时钟，便于测试。
func NewToolkitWithClock(now func() time.Time) *Toolkit {
	if now == nil {
		now = time.Now
	}
	return &Toolkit{now: now}
}

// Now 当前时间。
func (t *Toolkit) Now() time.Time { return t.now() }

// --- 指标能力（白名单转发至 indicator 包） ---

func (t *Toolkit) Series(klines []types.Kline) indicator.Series {
	return indicator.ExtractSeries(klines)
}

func (t *Toolkit) EMA(closes []float64, period int) []float64 { return indicator.EMA(closes, period) }
func (t *Toolkit) RSI(closes []float64, period int) []float64 { return indicator.RSI(closes, period) }

func (t *Toolkit) MACD(closes []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	return indicator.MACD(closes, fast, slow, signal)
}

func (t *Toolkit) ATR(highs, lows, closes []float64, period int) []float64 {
	return indicator.ATR(highs, lows, closes, period)
}

func (t *Toolkit) Stoch(highs, lows, closes []float64) (k, d []float64) {
	return indicator.Stoch(highs, lows, closes)
}

func (t *Toolkit) WilliamsR(highs, lows, closes []float64, period int) []float64 {
	return indicator.WilliamsR(highs, lows, closes, period)
}

func (t *Toolkit) ROC(closes []float64, period int) []float64 { return indicator.ROC(closes, period) }

func (t *Toolkit) OBV(closes, volumes []float64) []float64 {
	return indicator.OBV(closes, volumes)
}

// --- 数学 / 统计原语 ---

func (t *Toolkit) Last(series []float64) float64  { return indicator.Last(series) }
func (t *Toolkit) Mean(series []float64) float64  { return indicator.Mean(series) }
func (t *Toolkit) Stdev(series []float64) float64 { return indicator.Stdev(series) }

// Float 宽松数值转换（string/json.Number/int 等 -> float64）。
func (t *Toolkit) Float(v any) float64 { return convert.ToFloat64(v) }

// --- JSON 辅助能力 ---

// JSONGet 按路径读取 JSON 字段（gjson path 语法）。
func (t *Toolkit) JSONGet(raw, path string) gjson.Result {
	return gjson.Get(raw, path)
}

// JSONMarshal 序列化为 JSON 文本，失败返回空串。
func (t *Toolkit) JSONMarshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

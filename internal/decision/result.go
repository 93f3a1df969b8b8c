package decision

import (
	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

// 解析结束时的诊断说明，用于区分"没有可用策略"与"策略均未产出"。
const (
	TraceNoPolicies   = "no eligible policies"
	TraceAllDeclined  = "all policies declined"
	TraceCommitted    = "decisions committed"
	TraceEmptyInput   = "empty universe"
	TraceProviderFail = "policy provider failed"
)

// Result 单轮解析的最终产物。引擎跨调用不保留任何状态。
type Result struct {
	// Decisions 最终 symbol -> 决策列表。每个 symbol 至多出现在
	// 一个策略的已接受集合中。
	Decisions map[string][]types.Decision `json:"decisions"`
	// Contributors 按提交顺序排列的贡献策略名。
	Contributors []string `json:"contributors,omitempty"`
	// Trace 诊断说明。
	Trace string `json:"trace"`
	// TraceID 本轮解析的追踪 ID。
	TraceID string `json:"trace_id"`
	// RemainingUniverse 解析结束后仍未被提交的候选数量。
	RemainingUniverse int `json:"remaining_universe"`
	// RemainingCapital 买入流程剩余可用保证金（卖出流程恒为 0）。
	RemainingCapital float64 `json:"remaining_capital"`
}

// Empty 是否没有任何已提交决策。
func (r Result) Empty() bool { return len(r.Decisions) == 0 }

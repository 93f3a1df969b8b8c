package policy

import (
	"context"
	"time"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

// 中文说明：
// 策略合约：每个决策策略都是 (输入快照) -> symbol 到决策记录列表 的纯函数。
// 策略只能通过 Toolkit 访问被批准的指标/数学能力，不可触达文件、网络与进程。

// Record 持久化存储中的策略定义。引擎每轮重新拉取，单轮内视为不可变。
type Record struct {
	Name      string         `json:"name"`
	ModelID   int64          `json:"model_id"`
	Kind      types.Flow     `json:"kind"`
	Priority  int            `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`
	Handler   string         `json:"handler"`
	Source    string         `json:"source,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Enabled   bool           `json:"enabled"`
}

// Provider 按 (模型, 流程) 提供已排序的策略列表：
// priority 降序，同优先级按 created_at 升序。
type Provider interface {
	ListPolicies(ctx context.Context, modelID int64, kind types.Flow) ([]Record, error)
}

// Inputs 策略调用的标准输入集。引擎已按剩余候选过滤。
type Inputs struct {
	Candidates []types.Candidate
	Positions  []types.PositionSnapshot
	Portfolio  types.PortfolioSnapshot
	Account    types.AccountSnapshot
	Market     types.MarketState
	OpenOrders []ConditionalOrder
}

// ConditionalOrder 可选的在途条件单信息（止损/止盈挂单）。
type ConditionalOrder struct {
	Symbol       string  `json:"symbol"`
	OrderType    string  `json:"order_type"`
	TriggerPrice float64 `json:"trigger_price,omitempty"`
	Quantity     float64 `json:"quantity,omitempty"`
}

// Raw 策略原始输出：symbol -> 任意形态的决策记录序列。
// 形态修整交给归一化器，策略返回非列表值会被降级为空列表。
type Raw map[string]any

// Instance 已加载、可调用的策略实例。
type Instance interface {
	Name() string
	Flow() types.Flow
	Decide(ctx context.Context, in Inputs, tk *Toolkit) (Raw, error)
}

// Func 便于用函数直接注册策略实现。
type Func func(ctx context.Context, in Inputs, tk *Toolkit) (Raw, error)

type funcInstance struct {
	name string
	flow types.Flow
	fn   Func
}

func (f *funcInstance) Name() string     { return f.name }
func (f *funcInstance) Flow() types.Flow { return f.flow }
func (f *funcInstance) Decide(ctx context.Context, in Inputs, tk *Toolkit) (Raw, error) {
	return f.fn(ctx, in, tk)
}

// NewFuncInstance 将函数包装为策略实例。
func NewFuncInstance(name string, flow types.Flow, fn Func) Instance {
	return &funcInstance{name: name, flow: flow, fn: fn}
}

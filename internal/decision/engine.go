package decision

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/logger"
	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/policy"
	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

// 中文说明：
// 解析引擎：按优先级降序（同级按创建时间升序）依次调用策略，
// 已提交的 symbol 从后续策略可见的候选域中移除；买入流程全程
// 跟踪并扣减可用保证金。单个策略的加载/运行故障只跳过该策略；
// 引擎级不变量破坏（重复提交、保证金为负）是致命缺陷，直接上抛。

// ErrInvariant 引擎级不变量被破坏：属于程序缺陷而非外部输入问题。
var ErrInvariant = errors.New("resolution invariant violated")

// 浮点保证金比较的容差。
const capitalEpsilon = 1e-9

// PassInput 单轮解析的完整输入。引擎绝不修改调用方提供的对象，
// 账户/组合的簿记只发生在私有工作副本上。
type PassInput struct {
	ModelID    int64
	Candidates []types.Candidate
	Positions  []types.PositionSnapshot
	Portfolio  types.PortfolioSnapshot
	Account    types.AccountSnapshot
	Market     types.MarketState
	OpenOrders []policy.ConditionalOrder
}

// Engine 优先级解析引擎。一次并发解析使用一个独立实例。
type Engine struct {
	provider policy.Provider
	loader   *policy.Loader
	toolkit  *policy.Toolkit
}

// NewEngine 创建引擎。loader 为 nil 时使用仅支持规则策略的默认加载器。
func NewEngine(provider policy.Provider, loader *policy.Loader) *Engine {
	if loader == nil {
		loader = policy.NewLoader(nil)
	}
	return &Engine{provider: provider, loader: loader, toolkit: policy.NewToolkit()}
}

// SetToolkit 替换策略沙箱能力集（测试注入时钟等）。
func (e *Engine) SetToolkit(tk *policy.Toolkit) {
	if tk != nil {
		e.toolkit = tk
	}
}

// ResolveBuy 执行买入流程解析。
func (e *Engine) ResolveBuy(ctx context.Context, in PassInput) (Result, error) {
	return e.resolve(ctx, types.FlowBuy, in)
}

// ResolveSell 执行卖出流程解析。
func (e *Engine) ResolveSell(ctx context.Context, in PassInput) (Result, error) {
	return e.resolve(ctx, types.FlowSell, in)
}

func (e *Engine) resolve(ctx context.Context, flow types.Flow, in PassInput) (Result, error) {
	res := Result{
		Decisions: make(map[string][]types.Decision),
		TraceID:   uuid.NewString(),
	}

	// Init：候选域按 symbol 去重，首次出现者生效。
	symbols := universeSymbols(flow, in)
	if len(symbols) == 0 {
		res.Trace = TraceEmptyInput
		return res, nil
	}

	// 私有工作副本：调用方原对象全程不被修改。
	workPort := clonePortfolio(in.Portfolio)
	workAcct := in.Account
	capital := workAcct.AvailableBalance
	if capital <= 0 {
		capital = workPort.Cash
	}

	records, err := e.provider.ListPolicies(ctx, in.ModelID, flow)
	if err != nil {
		res.Trace = TraceProviderFail
		res.RemainingUniverse = len(symbols)
		return res, fmt.Errorf("list policies failed model=%d flow=%s: %w", in.ModelID, flow, err)
	}
	if len(records) == 0 {
		res.Trace = TraceNoPolicies
		res.RemainingUniverse = len(symbols)
		if flow == types.FlowBuy {
			res.RemainingCapital = capital
		}
		return res, nil
	}
	// 供应方已按约定排序，这里再排一次兜底。
	policy.SortRecords(records)

	remaining := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		remaining[s] = true
	}
	remainingCount := len(symbols)
	prices := symbolPrices(in)

	for _, rec := range records {
		// Done：候选域耗尽，或买入流程保证金耗尽，提前结束。
		if remainingCount == 0 {
			break
		}
		if flow == types.FlowBuy && capital <= capitalEpsilon {
			logger.Infof("available capital exhausted, resolution pass ends early flow=%s trace=%s", flow, res.TraceID)
			break
		}

		// Filter：只让策略看到仍在候选域中的 symbol。
		filtered := filterInputs(flow, in, remaining, workPort, workAcct)

		// Invoke：单策略故障不终止本轮，记录后继续下一个策略。
		inst, err := e.loader.Load(rec)
		if err != nil {
			logger.Errorf("策略加载失败 name=%s priority=%d flow=%s err=%v", rec.Name, rec.Priority, flow, err)
			continue
		}
		raw, err := e.loader.Invoke(ctx, inst, filtered, e.toolkit)
		if err != nil {
			var rerr *policy.RuntimeError
			if errors.As(err, &rerr) && rerr.Stack != "" {
				logger.Errorf("策略执行失败 name=%s priority=%d flow=%s err=%v\n%s", rec.Name, rec.Priority, flow, err, rerr.Stack)
			} else {
				logger.Errorf("策略执行失败 name=%s priority=%d flow=%s err=%v", rec.Name, rec.Priority, flow, err)
			}
			continue
		}

		normalized := Normalize(raw, filtered.Market)

		// Validate&Commit：按原始候选域顺序逐 symbol 决定接受与否。
		committedHere := 0
		for _, sym := range symbols {
			if !remaining[sym] {
				continue
			}
			subset := ValidSubset(flow, normalized[sym])
			if len(subset) == 0 {
				continue
			}
			if flow == types.FlowBuy {
				required := RequiredCapital(subset, prices[sym])
				if required <= 0 {
					// 数量为正但价格不可得，无法定价的 symbol 不提交。
					logger.Warnf("symbol 无法定价，跳过 symbol=%s policy=%s", sym, rec.Name)
					continue
				}
				if required > capital+capitalEpsilon {
					// 保证金不足：整个 symbol 跳过，留给更低优先级策略。
					logger.Debugf("保证金不足跳过 symbol=%s required=%.2f remaining=%.2f policy=%s", sym, required, capital, rec.Name)
					continue
				}
				capital -= required
				if capital < -capitalEpsilon {
					return res, fmt.Errorf("%w: negative capital after commit symbol=%s policy=%s", ErrInvariant, sym, rec.Name)
				}
				if capital < 0 {
					capital = 0
				}
			}
			if _, dup := res.Decisions[sym]; dup {
				return res, fmt.Errorf("%w: double commit symbol=%s policy=%s", ErrInvariant, sym, rec.Name)
			}
			tagged := make([]types.Decision, len(subset))
			for i, d := range subset {
				d.PolicyName = rec.Name
				d.Flow = flow
				tagged[i] = d
			}
			res.Decisions[sym] = tagged

			// Shrink：提交的 symbol 立即退出候选域。
			remaining[sym] = false
			remainingCount--
			committedHere++
		}

		if committedHere > 0 {
			res.Contributors = append(res.Contributors, rec.Name)
			// 买入簿记：工作副本同步扣减，向下限 0 取齐。
			workAcct.AvailableBalance = capital
			if workPort.Cash > capital {
				workPort.Cash = capital
			}
			logger.Infof("策略提交决策 name=%s flow=%s symbols=%d remaining=%d trace=%s",
				rec.Name, flow, committedHere, remainingCount, res.TraceID)
		}
	}

	res.RemainingUniverse = remainingCount
	if flow == types.FlowBuy {
		res.RemainingCapital = capital
	}
	if res.Empty() {
		res.Trace = TraceAllDeclined
	} else {
		res.Trace = TraceCommitted
	}
	return res, nil
}

// universeSymbols 构建去重后的候选域（首次出现者生效，保持顺序）。
func universeSymbols(flow types.Flow, in PassInput) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(sym string) {
		if sym == "" || seen[sym] {
			return
		}
		seen[sym] = true
		out = append(out, sym)
	}
	switch flow {
	case types.FlowBuy:
		for _, c := range in.Candidates {
			add(c.Symbol)
		}
	case types.FlowSell:
		for _, p := range in.Positions {
			add(p.Symbol)
		}
	}
	return out
}

// symbolPrices 价格解析表：市场状态优先，候选快照兜底。
func symbolPrices(in PassInput) map[string]float64 {
	prices := make(map[string]float64, len(in.Market))
	for sym, entry := range in.Market {
		if entry.Price > 0 {
			prices[sym] = entry.Price
		}
	}
	for _, c := range in.Candidates {
		if _, ok := prices[c.Symbol]; !ok && c.LastPrice > 0 {
			prices[c.Symbol] = c.LastPrice
		}
	}
	return prices
}

// filterInputs 将输入限制到仍在候选域中的 symbol。
func filterInputs(flow types.Flow, in PassInput, remaining map[string]bool, workPort types.PortfolioSnapshot, workAcct types.AccountSnapshot) policy.Inputs {
	out := policy.Inputs{
		Portfolio: workPort,
		Account:   workAcct,
		Market:    make(types.MarketState, len(in.Market)),
	}
	seen := make(map[string]bool)
	switch flow {
	case types.FlowBuy:
		for _, c := range in.Candidates {
			if !remaining[c.Symbol] || seen[c.Symbol] {
				continue
			}
			seen[c.Symbol] = true
			out.Candidates = append(out.Candidates, c)
		}
	case types.FlowSell:
		for _, p := range in.Positions {
			if !remaining[p.Symbol] || seen[p.Symbol] {
				continue
			}
			seen[p.Symbol] = true
			out.Positions = append(out.Positions, p)
		}
	}
	for sym, entry := range in.Market {
		if remaining[sym] {
			out.Market[sym] = entry
		}
	}
	for _, o := range in.OpenOrders {
		if remaining[o.Symbol] {
			out.OpenOrders = append(out.OpenOrders, o)
		}
	}
	return out
}

func clonePortfolio(src types.PortfolioSnapshot) types.PortfolioSnapshot {
	dst := src
	dst.Positions = append([]types.PositionSnapshot(nil), src.Positions...)
	return dst
}

package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/logger"
	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

// 中文说明：
// 声明式规则策略：策略源是一段 YAML 文本，声明若干规则块。每个规则块
// 即一份流程能力实现；加载时取第一个与策略 kind 匹配的规则块，发现
// 多个匹配时记录告警（首个声明生效）。规则参数先经 JSON Schema 校验。

// HandlerRule 声明式规则策略的处理器 ID。
const HandlerRule = "rule"

type ruleCondition struct {
	Indicator string  `yaml:"indicator" json:"indicator"`
	Timeframe string  `yaml:"timeframe,omitempty" json:"timeframe,omitempty"`
	Period    int     `yaml:"period,omitempty" json:"period,omitempty"`
	Op        string  `yaml:"op" json:"op"`
	Value     float64 `yaml:"value" json:"value"`
}

type ruleSpec struct {
	Flow          string         `yaml:"flow" json:"flow"`
	Signal        string         `yaml:"signal" json:"signal"`
	Quantity      float64        `yaml:"quantity,omitempty" json:"quantity,omitempty"`
	QuantityUSD   float64        `yaml:"quantity_usd,omitempty" json:"quantity_usd,omitempty"`
	Leverage      float64        `yaml:"leverage,omitempty" json:"leverage,omitempty"`
	When          *ruleCondition `yaml:"when,omitempty" json:"when,omitempty"`
	Justification string         `yaml:"justification,omitempty" json:"justification,omitempty"`
}

type ruleDoc struct {
	Rules []ruleSpec `yaml:"rules" json:"rules"`
}

const ruleSchemaJSON = `{
  "type": "object",
  "required": ["rules"],
  "properties": {
    "rules": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["flow", "signal"],
        "properties": {
          "flow": {"enum": ["buy", "sell"]},
          "signal": {"type": "string", "minLength": 1},
          "quantity": {"type": "number", "minimum": 0},
          "quantity_usd": {"type": "number", "minimum": 0},
          "leverage": {"type": "number", "minimum": 0},
          "justification": {"type": "string"},
          "when": {
            "type": "object",
            "required": ["indicator", "op", "value"],
            "properties": {
              "indicator": {"type": "string", "minLength": 1},
              "timeframe": {"type": "string"},
              "period": {"type": "integer", "minimum": 1},
              "op": {"enum": ["lt", "le", "gt", "ge"]},
              "value": {"type": "number"}
            }
          }
        }
      }
    }
  }
}`

var ruleSchema = mustCompileRuleSchema()

func mustCompileRuleSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("rule_policy.json", strings.NewReader(ruleSchemaJSON)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("rule_policy.json")
}

// CompileRule 将策略记录的 YAML 源编译为可调用实例。
func CompileRule(rec Record) (Instance, error) {
	source := strings.TrimSpace(rec.Source)
	if source == "" {
		return nil, newLoadError(rec.Name, "rule source is empty", nil)
	}

	var doc ruleDoc
	dec := yaml.NewDecoder(bytes.NewReader([]byte(source)))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, newLoadError(rec.Name, "rule source parse failed", err)
	}
	if err := validateRuleDoc(source); err != nil {
		return nil, newLoadError(rec.Name, "rule source schema violation", err)
	}

	matched := make([]ruleSpec, 0, len(doc.Rules))
	for _, r := range doc.Rules {
		if types.Flow(strings.TrimSpace(r.Flow)) == rec.Kind {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return nil, newLoadError(rec.Name, fmt.Sprintf("source exposes no %s capability", rec.Kind), nil)
	}
	if len(matched) > 1 {
		logger.Warnf("策略源包含多个 %s 规则块，采用首个声明 name=%s extra=%d", rec.Kind, rec.Name, len(matched)-1)
	}
	return &ruleInstance{name: rec.Name, flow: rec.Kind, rule: matched[0]}, nil
}

// validateRuleDoc 将 YAML 转为通用结构后做 JSON Schema 校验。
func validateRuleDoc(source string) error {
	var generic any
	if err := yaml.Unmarshal([]byte(source), &generic); err != nil {
		return err
	}
	// jsonschema 要求 JSON 兼容类型，经一次 marshal/unmarshal 归一。
	raw, err := json.Marshal(generic)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return ruleSchema.Validate(doc)
}

type ruleInstance struct {
	name string
	flow types.Flow
	rule ruleSpec
}

func (p *ruleInstance) Name() string     { return p.name }
func (p *ruleInstance) Flow() types.Flow { return p.flow }

func (p *ruleInstance) Decide(_ context.Context, in Inputs, tk *Toolkit) (Raw, error) {
	out := make(Raw)
	switch p.flow {
	case types.FlowBuy:
		for _, c := range in.Candidates {
			entry, ok := in.Market[c.Symbol]
			if !ok {
				continue
			}
			if !p.matches(entry, 0, tk) {
				continue
			}
			qty := p.rule.Quantity
			if qty <= 0 && p.rule.QuantityUSD > 0 && entry.Price > 0 {
				qty = p.rule.QuantityUSD / entry.Price
			}
			if qty <= 0 {
				continue
			}
			out[c.Symbol] = []any{p.record(qty)}
		}
	case types.FlowSell:
		for _, pos := range in.Positions {
			entry := in.Market[pos.Symbol]
			if p.rule.When != nil && !p.matches(entry, pos.UnrealizedProfit, tk) {
				continue
			}
			qty := p.rule.Quantity
			if qty <= 0 {
				qty = math.Abs(pos.PositionAmt)
			}
			if qty <= 0 {
				continue
			}
			out[pos.Symbol] = []any{p.record(qty)}
		}
	}
	return out, nil
}

func (p *ruleInstance) record(qty float64) map[string]any {
	rec := map[string]any{
		"signal":   p.rule.Signal,
		"quantity": qty,
	}
	if p.rule.Leverage > 0 {
		rec["leverage"] = p.rule.Leverage
	}
	if p.rule.Justification != "" {
		rec["justification"] = p.rule.Justification
	}
	return rec
}

// matches 评估 when 条件；无条件视为恒真，数据不足视为不满足。
func (p *ruleInstance) matches(entry types.MarketEntry, unrealized float64, tk *Toolkit) bool {
	cond := p.rule.When
	if cond == nil {
		return true
	}
	value, ok := p.observe(cond, entry, unrealized, tk)
	if !ok {
		return false
	}
	switch cond.Op {
	case "lt":
		return value < cond.Value
	case "le":
		return value <= cond.Value
	case "gt":
		return value > cond.Value
	case "ge":
		return value >= cond.Value
	default:
		return false
	}
}

func (p *ruleInstance) observe(cond *ruleCondition, entry types.MarketEntry, unrealized float64, tk *Toolkit) (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(cond.Indicator)) {
	case "price":
		return entry.Price, entry.Price > 0
	case "change_24h":
		return entry.Change24h, true
	case "quote_volume":
		return entry.QuoteVolume, true
	case "unrealized_profit":
		return unrealized, true
	case "rsi":
		closes, ok := p.closes(cond, entry)
		if !ok {
			return 0, false
		}
		series := tk.RSI(closes, periodOr(cond.Period, 14))
		return tk.Last(series), len(series) > 0
	case "roc":
		closes, ok := p.closes(cond, entry)
		if !ok {
			return 0, false
		}
		series := tk.ROC(closes, periodOr(cond.Period, 9))
		return tk.Last(series), len(series) > 0
	case "ema_gap":
		// 价格相对 EMA 的偏离百分比。
		closes, ok := p.closes(cond, entry)
		if !ok || entry.Price <= 0 {
			return 0, false
		}
		ema := tk.Last(tk.EMA(closes, periodOr(cond.Period, 21)))
		if ema <= 0 {
			return 0, false
		}
		return (entry.Price - ema) / ema * 100, true
	default:
		return 0, false
	}
}

func (p *ruleInstance) closes(cond *ruleCondition, entry types.MarketEntry) ([]float64, bool) {
	tf, ok := entry.Indicators[strings.TrimSpace(cond.Timeframe)]
	if !ok || len(tf.Klines) == 0 {
		return nil, false
	}
	closes := make([]float64, len(tf.Klines))
	for i, k := range tf.Klines {
		closes[i] = k.Close
	}
	return closes, true
}

func periodOr(period, fallback int) int {
	if period > 0 {
		return period
	}
	return fallback
}

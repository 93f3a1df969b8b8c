package policy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/types"
)

// 中文说明：
// 注册式策略实现：编译期注册的处理器按 ID 查找，决策时不做任何
// 动态源码求值。处理器声明自己支持的流程能力，加载时校验与策略
// kind 是否匹配。

// FactoryFunc 由策略记录构建可调用实例。
type FactoryFunc func(rec Record) (Instance, error)

type registryEntry struct {
	flows   map[types.Flow]bool
	factory FactoryFunc
}

// Registry 处理器注册表。
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Register 注册处理器及其支持的流程能力。重复注册同一 ID 返回错误。
func (r *Registry) Register(id string, factory FactoryFunc, flows ...types.Flow) error {
	id = strings.TrimSpace(strings.ToLower(id))
	if id == "" {
		return fmt.Errorf("handler id cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("handler %s requires a factory", id)
	}
	if len(flows) == 0 {
		flows = []types.Flow{types.FlowBuy, types.FlowSell}
	}
	set := make(map[types.Flow]bool, len(flows))
	for _, f := range flows {
		if !f.Valid() {
			return fmt.Errorf("handler %s declares invalid flow %q", id, f)
		}
		set[f] = true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("handler %s already registered", id)
	}
	r.entries[id] = registryEntry{flows: set, factory: factory}
	return nil
}

// MustRegister Register 的 panic 版本，用于初始化期注册。
func (r *Registry) MustRegister(id string, factory FactoryFunc, flows ...types.Flow) {
	if err := r.Register(id, factory, flows...); err != nil {
		panic(err)
	}
}

// Lookup 返回处理器工厂；ok=false 表示未注册。
func (r *Registry) Lookup(id string) (FactoryFunc, map[types.Flow]bool, bool) {
	id = strings.TrimSpace(strings.ToLower(id))
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[id]
	if !ok {
		return nil, nil, false
	}
	flows := make(map[types.Flow]bool, len(entry.flows))
	for f := range entry.flows {
		flows[f] = true
	}
	return entry.factory, flows, true
}

// Handlers 返回已注册的处理器 ID（排序后），便于诊断输出。
func (r *Registry) Handlers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

package policy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// 中文说明：
// 加载器把策略记录解析为可调用实例：注册处理器直接查表，声明式规则
// 策略从源文本编译。实例按 策略名+内容指纹 缓存，跨轮复用；并发加载
// 经 singleflight 去重。调用统一带 panic 恢复，故障转为 RuntimeError。

// Loader 策略加载/调用入口。
type Loader struct {
	reg *Registry

	mu    sync.RWMutex
	cache map[string]Instance
	sf    singleflight.Group
}

// NewLoader 创建加载器。registry 为 nil 时仅支持声明式规则策略。
func NewLoader(reg *Registry) *Loader {
	return &Loader{reg: reg, cache: make(map[string]Instance)}
}

// Load 解析策略记录，返回可调用实例。
// 源无法解析或能力不匹配时返回 *LoadError。
func (l *Loader) Load(rec Record) (Instance, error) {
	if strings.TrimSpace(rec.Name) == "" {
		return nil, newLoadError("", "policy name is empty", nil)
	}
	if !rec.Kind.Valid() {
		return nil, newLoadError(rec.Name, fmt.Sprintf("unknown decision kind %q", rec.Kind), nil)
	}

	key := cacheKey(rec)
	l.mu.RLock()
	cached, ok := l.cache[key]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := l.sf.Do(key, func() (any, error) {
		inst, err := l.resolve(rec)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cache[key] = inst
		l.mu.Unlock()
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Instance), nil
}

func (l *Loader) resolve(rec Record) (Instance, error) {
	handler := strings.TrimSpace(strings.ToLower(rec.Handler))
	if handler == "" || handler == HandlerRule {
		return CompileRule(rec)
	}
	if l.reg == nil {
		return nil, newLoadError(rec.Name, fmt.Sprintf("handler %s not registered", handler), nil)
	}
	factory, flows, ok := l.reg.Lookup(handler)
	if !ok {
		return nil, newLoadError(rec.Name, fmt.Sprintf("handler %s not registered", handler), nil)
	}
	if !flows[rec.Kind] {
		return nil, newLoadError(rec.Name, fmt.Sprintf("handler %s lacks %s capability", handler, rec.Kind), nil)
	}
	inst, err := factory(rec)
	if err != nil {
		return nil, newLoadError(rec.Name, "factory failed", err)
	}
	if inst.Flow() != rec.Kind {
		return nil, newLoadError(rec.Name, fmt.Sprintf("instance flow %s mismatches kind %s", inst.Flow(), rec.Kind), nil)
	}
	return inst, nil
}

// Invoke 调用策略实例。panic 与 error 统一转为 *RuntimeError。
func (l *Loader) Invoke(ctx context.Context, inst Instance, in Inputs, tk *Toolkit) (raw Raw, err error) {
	if inst == nil {
		return nil, &RuntimeError{Message: "nil policy instance"}
	}
	if tk == nil {
		tk = NewToolkit()
	}
	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeError{
				Policy:  inst.Name(),
				Flow:    string(inst.Flow()),
				Message: fmt.Sprintf("panic: %v", r),
				Stack:   string(debug.Stack()),
			}
			raw = nil
		}
	}()
	raw, err = inst.Decide(ctx, in, tk)
	if err != nil {
		return nil, &RuntimeError{
			Policy:  inst.Name(),
			Flow:    string(inst.Flow()),
			Message: err.Error(),
		}
	}
	return raw, nil
}

// CacheSize 当前缓存实例数，便于诊断。
func (l *Loader) CacheSize() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cache)
}

// cacheKey 策略名 + 内容指纹（handler/source/params 的 SHA-256）。
func cacheKey(rec Record) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(rec.Handler))))
	h.Write([]byte{0})
	h.Write([]byte(rec.Source))
	if len(rec.Params) > 0 {
		if data, err := json.Marshal(rec.Params); err == nil {
			h.Write([]byte{0})
			h.Write(data)
		}
	}
	return rec.Name + "@" + hex.EncodeToString(h.Sum(nil))[:16]
}

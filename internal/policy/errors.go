package policy

import "fmt"

// LoadError 策略源无法解析为可调用实例：处理器缺失、源格式错误、
// 或声明的流程能力与策略 kind 不匹配。
type LoadError struct {
	Policy string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("policy load failed name=%s: %s: %v", e.Policy, e.Reason, e.Err)
	}
	return fmt.Sprintf("policy load failed name=%s: %s", e.Policy, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// RuntimeError 策略调用期间抛出的故障（含 panic），附带栈上下文。
// 引擎按策略粒度捕获后跳过该策略继续执行。
type RuntimeError struct {
	Policy  string
	Flow    string
	Message string
	Stack   string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("policy runtime failure name=%s flow=%s: %s", e.Policy, e.Flow, e.Message)
}

func newLoadError(policy, reason string, err error) *LoadError {
	return &LoadError{Policy: policy, Reason: reason, Err: err}
}

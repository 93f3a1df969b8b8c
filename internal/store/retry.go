package store

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	"github.com/gavenwangcn/AIFutureTrade-sub003/internal/logger"
)

// 中文说明：
// 通用的重试装饰器：统一退避策略，替代在每个表操作里重复
// 手写重连/重试样板。

// RetryConfig 重试参数。
type RetryConfig struct {
	Attempts int
	MinDelay time.Duration
	MaxDelay time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.MinDelay <= 0 {
		c.MinDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 2 * time.Second
	}
	return c
}

// withRetry 以指数退避重复执行 op，直到成功、尝试耗尽或 ctx 取消。
func withRetry(ctx context.Context, cfg RetryConfig, label string, op func() error) error {
	cfg = cfg.withDefaults()
	b := &backoff.Backoff{
		Min:    cfg.MinDelay,
		Max:    cfg.MaxDelay,
		Factor: 2,
		Jitter: true,
	}
	var err error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == cfg.Attempts {
			break
		}
		delay := b.Duration()
		logger.Warnf("%s failed, retrying attempt=%d/%d delay=%s err=%v", label, attempt, cfg.Attempts, delay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

package service

import (
	"context"
	"time"

	"VideoRitz-server/config"
)

// pollFn 单次探测：done=true 表示终态成功并携带结果；
// 返回 err 表示供应商明确失败或不可恢复错误
type pollFn func() (done bool, result string, err error)

// pollUntil 有界轮询：固定间隔 + 最大次数。超出次数返回 ProviderTimeoutError，
// 不会无限挂起；ctx 取消时在下一次唤醒点立即退出
func pollUntil(ctx context.Context, stage string, pc config.PollConfig, fn pollFn) (string, error) {
	interval := time.Duration(pc.IntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 0; attempt < pc.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			done, result, err := fn()
			if err != nil {
				return "", err
			}
			if done {
				return result, nil
			}
		}
	}
	return "", &ProviderTimeoutError{Stage: stage, Attempts: pc.MaxAttempts}
}

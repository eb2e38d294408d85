package service

import (
	"errors"
	"fmt"
)

// 错误分类：阶段内部用这些类型区分提交失败/轮询超时/供应商明确失败，
// 分镜边界之外只向上汇报 Shot.FailError 文本

// ProviderSubmitError 供应商拒绝或提交调用失败（Animator 会触发降级到下一家）
type ProviderSubmitError struct {
	Provider string
	Err      error
}

func (e *ProviderSubmitError) Error() string {
	return fmt.Sprintf("%s submit failed: %v", e.Provider, e.Err)
}

func (e *ProviderSubmitError) Unwrap() error { return e.Err }

// ProviderTimeoutError 轮询超过最大次数，等同于供应商明确失败处理
type ProviderTimeoutError struct {
	Stage    string
	Attempts int
}

func (e *ProviderTimeoutError) Error() string {
	return fmt.Sprintf("%s polling timed out after %d attempts", e.Stage, e.Attempts)
}

// ProviderFailedError 供应商返回终态失败
type ProviderFailedError struct {
	Provider string
	Status   string
	Message  string
}

func (e *ProviderFailedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s reported %s: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s reported %s", e.Provider, e.Status)
}

// TranscodeError ffmpeg 合成失败；对本次合成是致命的，不自动重试，
// stderr 保留在 Detail 里供人工排查后手动重跑
type TranscodeError struct {
	Err    error
	Detail string
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode failed: %v: %s", e.Err, e.Detail)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// PersistenceError 对象存储读写失败。checkpoint 写失败只告警不打断批次；
// 恢复所需的读失败必须致命上抛
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrObjectNotFound Get 未命中
var ErrObjectNotFound = errors.New("object not found")

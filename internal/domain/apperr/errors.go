// Package apperr 定义对话核心的错误类别
// 适配器用 Wrap 给底层错误打上类别，调用方用 errors.Is 判断
package apperr

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput 请求格式错误（空消息、缺少会话主体等），在编排器边界拒绝
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound 实体不存在
	ErrNotFound = errors.New("not found")

	// ErrRateLimited 凭证额度耗尽
	ErrRateLimited = errors.New("rate limited")

	// ErrUpstreamUnavailable 重试后上游（LLM、向量库、向量化接口）仍不可用
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrInvalidResponse 上游响应缺少预期字段
	ErrInvalidResponse = errors.New("invalid upstream response")

	// ErrModelUnavailable 本地模型产物缺失或损坏
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrPersistence 关系库读写失败
	ErrPersistence = errors.New("persistence failure")

	// ErrChatClosed 会话已关闭
	ErrChatClosed = errors.New("chat is closed")
)

// kindError 带类别的错误，Unwrap 同时暴露类别与原因
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.cause)
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.cause}
}

// Wrap 给错误打上类别
// err 为 nil 时返回 nil
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &kindError{kind: kind, cause: err}
}

// Kind 返回错误所属类别，未知类别返回 nil
func Kind(err error) error {
	for _, kind := range []error{
		ErrInvalidInput, ErrChatClosed, ErrNotFound, ErrRateLimited,
		ErrUpstreamUnavailable, ErrInvalidResponse, ErrModelUnavailable, ErrPersistence,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUpstreamUnavailable
	}
	return nil
}

// IsTransient 是否为稍后重试可能成功的错误
func IsTransient(err error) bool {
	kind := Kind(err)
	return kind == ErrRateLimited || kind == ErrUpstreamUnavailable
}

// ValidationError 字段校验错误
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Is 使 errors.Is(err, ErrInvalidInput) 对校验错误成立
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError 创建校验错误
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError 检查是否为校验错误
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类
type Kind string

const (
	KindValidation    Kind = "validation"    // 调用方参数错误，不重试
	KindTimeout       Kind = "timeout"       // 等待超时，调用方可重试
	KindExternal      Kind = "external"      // 外部服务（FFmpeg/API）失败，可退避重试
	KindNotFound      Kind = "not_found"     // 文件/任务/房间不存在
	KindConfiguration Kind = "configuration" // 配置错误
	KindInternal      Kind = "internal"      // 未预期的内部错误
)

// AppError 带分类的错误，支持 errors.Is/As 与 %w 链
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// E 构造分类错误
func E(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// Validation 构造参数错误
func Validation(message string) *AppError {
	return E(KindValidation, message, nil)
}

// Timeout 构造超时错误
func Timeout(message string, err error) *AppError {
	return E(KindTimeout, message, err)
}

// External 构造外部服务错误
func External(message string, err error) *AppError {
	return E(KindExternal, message, err)
}

// NotFound 构造未找到错误
func NotFound(message string) *AppError {
	return E(KindNotFound, message, nil)
}

// KindOf 提取错误分类，非 AppError 视为 internal
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsRetriable 判断错误是否值得调用方重试
func IsRetriable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindExternal:
		return true
	default:
		return false
	}
}

// HTTPStatus 将错误分类映射为 HTTP 状态码
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

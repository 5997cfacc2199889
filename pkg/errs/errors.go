// Package errs 定义了业务层的错误类型以及它们到 HTTP 状态码的映射。
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ValidationError 表示请求字段缺失或格式错误。
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validation 构造一个 ValidationError。
func Validation(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InvalidTagError 表示请求中引用了不存在或已停用的标签。
type InvalidTagError struct {
	IDs []int64
}

func (e *InvalidTagError) Error() string {
	parts := make([]string, 0, len(e.IDs))
	for _, id := range e.IDs {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return "Invalid tag IDs: " + strings.Join(parts, ", ")
}

// NotFoundError 表示目标资源不存在。
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

// NotFound 构造一个 NotFoundError。
func NotFound(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

// UpstreamError 包装存储、对象存储或其他外部依赖的失败。
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream 构造一个 UpstreamError。
func Upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}

// HTTPStatus 根据错误类型返回对应的 HTTP 状态码，未知错误按 500 处理。
func HTTPStatus(err error) int {
	var ve *ValidationError
	var ite *InvalidTagError
	var nfe *NotFoundError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve), errors.As(err, &ite):
		return http.StatusBadRequest
	case errors.As(err, &nfe):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage 返回可以直接暴露给调用方的错误信息，5xx 错误只返回通用描述。
func PublicMessage(err error) string {
	if HTTPStatus(err) >= http.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}

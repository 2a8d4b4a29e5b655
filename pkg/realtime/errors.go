package realtime

import (
	"context"
	"fmt"
	"net"

	"github.com/tokmz/tablesplit/pkg/errors"
)

// 连接错误分类（4xxx），按 Code 比较，使用 errors.Is 判断
var (
	ErrConnectionTimeout = errors.New(4001, 504, "realtime: connection timeout", nil)
	ErrAuth              = errors.New(4002, 401, "realtime: authentication rejected", nil)
	ErrTransientNetwork  = errors.New(4003, 503, "realtime: transient network error", nil)
	ErrUnknown           = errors.New(4004, 500, "realtime: unknown error", nil)

	ErrInvalidUserID     = errors.New(4005, 400, "realtime: user id is required", nil)
	ErrClientUnavailable = errors.New(4006, 503, "realtime: client unavailable", nil)
	ErrManagerClosed     = errors.New(4007, 503, "realtime: manager closed", nil)
	ErrInvalidHandler    = errors.New(4008, 400, "realtime: handler key and handler are required", nil)
)

// 后端错误码：认证类
const (
	CodeAuthRangeStart         = 400300 // 令牌/会话类错误区间
	CodeAuthRangeEnd           = 400399
	CodeUnauthorizedRangeStart = 40100 // 401xx
	CodeUnauthorizedRangeEnd   = 40199
	CodeUnauthorized           = 401
	CodeForbidden              = 403
)

// 后端错误码：可重试的网络类
const (
	CodeConnectionRequired = 800120
	CodeAckTimeout         = 800180
	CodeLoginTimeout       = 800190
	CodeWebSocketClosed    = 800200
	CodeNetworkError       = 800210
	CodeServerUnexpected   = 500901
	CodeServiceUnavailable = 503
)

// BackendError 后端返回的错误
type BackendError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Code, e.Message)
}

// Classify 将任意连接错误归入四类之一，已分类的错误原样返回
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if e := errors.FromError(err); e != nil && isClassified(e) {
		return err
	}

	var be *BackendError
	if errors.As(err, &be) {
		switch {
		case isAuthCode(be.Code):
			return ErrAuth.WithError(err)
		case isTransientCode(be.Code):
			return ErrTransientNetwork.WithError(err)
		default:
			return ErrUnknown.WithError(err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrConnectionTimeout.WithError(err)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return ErrConnectionTimeout.WithError(err)
		}
		return ErrTransientNetwork.WithError(err)
	}
	return ErrUnknown.WithError(err)
}

// IsRetryable 调用方可自行重试的错误；管理器本身从不自动重试
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, ErrConnectionTimeout)
}

// Kind 返回分类名称，用于日志与指标标签
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrConnectionTimeout):
		return "timeout"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrTransientNetwork):
		return "transient"
	case errors.Is(err, ErrClientUnavailable):
		return "unavailable"
	default:
		return "unknown"
	}
}

func isClassified(e *errors.Error) bool {
	return e.Code >= 4001 && e.Code <= 4099
}

func isAuthCode(code int) bool {
	return (code >= CodeAuthRangeStart && code <= CodeAuthRangeEnd) ||
		(code >= CodeUnauthorizedRangeStart && code <= CodeUnauthorizedRangeEnd) ||
		code == CodeUnauthorized || code == CodeForbidden
}

func isTransientCode(code int) bool {
	switch code {
	case CodeConnectionRequired, CodeAckTimeout, CodeLoginTimeout,
		CodeWebSocketClosed, CodeNetworkError, CodeServerUnexpected, CodeServiceUnavailable:
		return true
	}
	return false
}

package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/tablesplit/pkg/errors"
	"github.com/tokmz/tablesplit/pkg/logger"
)

// Response 统一响应结构
type Response struct {
	Code    int    `json:"code"`               // 业务状态码
	Data    any    `json:"data"`               // 响应数据
	Message string `json:"message"`            // 响应消息
	TraceID string `json:"trace_id,omitempty"` // 追踪ID（可选）
}

// Success 成功响应
func Success(c *gin.Context, data any) {
	respond(c, http.StatusOK, &Response{Code: http.StatusOK, Data: data, Message: "success"})
}

// RespondError 错误响应，业务错误使用其 HttpCode，裸的 context 错误视为请求超时
func RespondError(c *gin.Context, err error) {
	bizErr := errors.FromError(err)
	if bizErr == nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		bizErr = errors.ErrRequestTimeout.WithError(err)
	}

	if bizErr != nil {
		respond(c, bizErr.HttpCode, &Response{Code: bizErr.Code, Message: bizErr.Error()})
		return
	}

	message := errors.ErrServer.Message
	if err != nil {
		message = err.Error()
	}
	respond(c, errors.ErrServer.HttpCode, &Response{Code: errors.ErrServer.Code, Message: message})
}

// respond 统一响应处理（自动添加 TraceID）
func respond(c *gin.Context, status int, resp *Response) {
	if traceID := logger.TraceIDFromContext(c.Request.Context()); traceID != "" {
		resp.TraceID = traceID
	}
	c.JSON(status, resp)
}

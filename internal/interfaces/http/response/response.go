package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shopmind/backend/internal/domain/apperr"
)

// 业务错误码
const (
	CodeInvalidParam = 100001
	CodeNotFound     = 100002
	CodeChatClosed   = 100003
	CodeInternal     = 100004
	CodeRateLimited  = 100005
	CodeUpstream     = 100006
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, httpCode int, errCode int, message string) {
	c.JSON(httpCode, ErrorResponse{
		Code:    errCode,
		Message: message,
	})
}

// ErrorWithDetail 带详情的错误响应
func ErrorWithDetail(c *gin.Context, httpCode int, errCode int, message, detail string) {
	c.JSON(httpCode, ErrorResponse{
		Code:    errCode,
		Message: message,
		Detail:  detail,
	})
}

// FromError 按错误类别映射状态码，消息对用户安全
// 只有校验错误带 detail，上游原始信息不外泄
func FromError(c *gin.Context, err error) {
	status, code := StatusOf(err)
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		ErrorWithDetail(c, status, code, apperr.UserMessage(err), ve.Error())
		return
	}
	Error(c, status, code, apperr.UserMessage(err))
}

// StatusOf 错误类别对应的 HTTP 状态码与业务码
func StatusOf(err error) (int, int) {
	switch apperr.Kind(err) {
	case apperr.ErrInvalidInput:
		return http.StatusBadRequest, CodeInvalidParam
	case apperr.ErrNotFound:
		return http.StatusNotFound, CodeNotFound
	case apperr.ErrChatClosed:
		return http.StatusConflict, CodeChatClosed
	case apperr.ErrRateLimited:
		return http.StatusTooManyRequests, CodeRateLimited
	case apperr.ErrUpstreamUnavailable, apperr.ErrInvalidResponse:
		return http.StatusBadGateway, CodeUpstream
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

package handler

import (
	"net/http"

	"live-butler/app/errs"

	"github.com/gin-gonic/gin"
)

// ApiResponse 统一响应结构
type ApiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// respondOK 输出成功响应
func respondOK(c *gin.Context, data any, message string) {
	c.JSON(http.StatusOK, ApiResponse{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// respondError 按错误分类映射 HTTP 状态码输出错误响应。
// 只输出错误消息，不泄露内部堆栈。
func respondError(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	status := errs.HTTPStatus(kind)
	c.JSON(status, ApiResponse{
		Code:    status,
		Message: err.Error(),
		Data:    nil,
	})
}

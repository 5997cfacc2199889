// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"viba-annotation-go/pkg/errs"
	"viba-annotation-go/pkg/log"
)

// respondOK 返回 {success: true, data}
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// respondCreated 返回 201 {success: true, data}
func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

// respondBadRequest 返回 400 {success: false, error}
func respondBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

// respondError 按错误类型选择状态码。5xx 只返回通用描述，详细错误写入日志。
func respondError(c *gin.Context, tag string, err error) {
	status := errs.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("[%s] 请求处理失败, path: %s, error: %v", tag, c.Request.URL.Path, err)
	} else {
		log.Warnf("[%s] 请求被拒绝, path: %s, status: %d, error: %v", tag, c.Request.URL.Path, status, err)
	}
	c.JSON(status, gin.H{"success": false, "error": errs.PublicMessage(err)})
}

// NotFound 是未知路由的处理函数
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Endpoint not found"})
}

// MethodNotAllowed 是方法不匹配时的处理函数
func MethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"success": false, "error": "Method not allowed"})
}

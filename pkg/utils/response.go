package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope codes.
const (
	CodeOK   = 0
	CodeFail = 1
)

// OK writes {code:0, data}.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": CodeOK, "data": data})
}

// OKList writes {code:0, data, total}.
func OKList[T any](c *gin.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, gin.H{"code": CodeOK, "data": items, "total": len(items)})
}

// Fail writes {code:1, msg} with the given HTTP status.
func Fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"code": CodeFail, "msg": msg})
}

// Abort is Fail followed by c.Abort, for middleware.
func Abort(c *gin.Context, status int, msg string) {
	Fail(c, status, msg)
	c.Abort()
}

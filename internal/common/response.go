package common

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CodeError is an API error carrying the envelope code.
type CodeError struct {
	HTTPStatus int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("code=%d message=%s", e.Code, e.Message)
}

func NewCodeError(httpStatus, code int, msg string) *CodeError {
	return &CodeError{HTTPStatus: httpStatus, Code: code, Message: msg}
}

var (
	ErrUnauthorized  = NewCodeError(http.StatusUnauthorized, 40101, "unauthorized")
	ErrInvalidJSON   = NewCodeError(http.StatusBadRequest, 10001, "invalid json")
	ErrRateLimited   = NewCodeError(http.StatusTooManyRequests, 42901, "too many requests")
	ErrInternal      = NewCodeError(http.StatusInternalServerError, 50001, "internal error")
	ErrRouteNotFound = NewCodeError(http.StatusNotFound, 40400, "route not found")
)

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

// Abort writes e and stops the handler chain.
func Abort(c *gin.Context, e *CodeError) {
	Fail(c, e.HTTPStatus, e.Code, e.Message)
	c.Abort()
}

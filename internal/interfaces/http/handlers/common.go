// Package handlers implements the HTTP transport layer for molcore's
// application services.
package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cro-platform/molcore/pkg/errors"
	"github.com/cro-platform/molcore/pkg/types/common"
)

// userIDFromContext extracts the caller's user ID injected by the auth
// middleware, falling back to the anonymous user for unauthenticated routes.
func userIDFromContext(c *gin.Context) common.UserID {
	if v, ok := c.Get("user_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			return common.UserID(s)
		}
	}
	return common.UserID("anonymous")
}

// parsePagination extracts page and page_size query parameters. Page sizes
// outside 1–100 (or unparsable) are ignored and the default of 20 is used.
func parsePagination(c *gin.Context) common.PageRequest {
	page := 1
	pageSize := 20

	if v := c.Query("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := c.Query("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 && ps <= 100 {
			pageSize = ps
		}
	}
	return common.PageRequest{Page: page, PageSize: pageSize}
}

// ErrorResponse is the standard error response body returned by every handler.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// abortWithError maps an application error to its HTTP status code and
// writes the standard error envelope, masking internal errors.
func abortWithError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := code.HTTPStatus()

	message := err.Error()
	if code.Kind() == errors.KindInternal {
		message = "internal server error"
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    code.String(),
		Message: message,
	})
}

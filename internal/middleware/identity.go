package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// currentUserID returns the authenticated user id as a string for use in
// cache and rate limit keys, or "anon" before JWTAuth has run.
func currentUserID(c echo.Context) string {
	if uid, ok := c.Get(CtxUserID).(uint64); ok && uid != 0 {
		return strconv.FormatUint(uid, 10)
	}
	return "anon"
}

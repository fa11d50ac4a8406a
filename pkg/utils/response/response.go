// Package response contains response utility functions and types
package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorBody is the literal body returned for a failed Control API call.
type ErrorBody struct {
	Error string `json:"error"`
}

// SuccessResponse writes data as the literal JSON response body. The
// Control API's contract is the result shape itself (e.g. subscribe's
// `{subscribed, already_subscribed, failed}`), not a generic envelope
// around it, so data goes straight to the wire.
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, data)
}

// ErrorResponse writes a `{error}` body for a failed call.
func ErrorResponse(c echo.Context, httpStatus int, message string) error {
	return c.JSON(httpStatus, ErrorBody{Error: message})
}

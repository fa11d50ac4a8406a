package control

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nsvirk/tickcollector/pkg/utils/response"
)

// Handler adapts a Controller to Echo's handler signature, mirroring the
// teacher's handlers package: thin functions that unmarshal the request,
// call the service/controller, and write the result through the response
// package, which emits the data as-is with no envelope around it.
type Handler struct {
	ctrl *Controller
}

// NewHandler creates a Handler bound to ctrl.
func NewHandler(ctrl *Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

type instrumentsRequest struct {
	Instruments []string `json:"instruments"`
}

// Subscribe handles POST subscribe.
func (h *Handler) Subscribe(c echo.Context) error {
	var req instrumentsRequest
	if err := c.Bind(&req); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
	}
	result := h.ctrl.Subscribe(c.Request().Context(), req.Instruments)
	return response.SuccessResponse(c, result)
}

// Unsubscribe handles POST unsubscribe.
func (h *Handler) Unsubscribe(c echo.Context) error {
	var req instrumentsRequest
	if err := c.Bind(&req); err != nil {
		return response.ErrorResponse(c, http.StatusBadRequest, "invalid request body")
	}
	result := h.ctrl.Unsubscribe(c.Request().Context(), req.Instruments)
	return response.SuccessResponse(c, result)
}

// Status handles GET status.
func (h *Handler) Status(c echo.Context) error {
	return response.SuccessResponse(c, h.ctrl.Status())
}

// Health handles GET health. It always responds 200 -- the status field,
// not the HTTP code, carries "healthy"/"degraded", per spec §6.
func (h *Handler) Health(c echo.Context) error {
	return response.SuccessResponse(c, h.ctrl.Health())
}

// RegisterRoutes mounts the Control API under e, mirroring the teacher's
// flat route-group style in internal/api/routes.go.
func RegisterRoutes(e *echo.Echo, ctrl *Controller) {
	h := NewHandler(ctrl)
	g := e.Group("")
	g.POST("/subscribe", h.Subscribe)
	g.POST("/unsubscribe", h.Unsubscribe)
	g.GET("/status", h.Status)
	g.GET("/health", h.Health)
}

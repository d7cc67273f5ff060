package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary      Live meters
// @Description  Draining view of the caller's meters, updated every tick.
// @Tags         dashboard
// @Produce      json
// @Success      200  {object}  service.LiveView
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/dashboard/live [get]
// @Security     BearerAuth
func (h *Handler) dashboardLive(c *gin.Context) {
	uid := identityFrom(c).UserID
	v, err := h.services.Dashboard.Live(uid)
	if err != nil {
		h.respondServiceError(c, "failed to load live view", "dashboard_live_failed", err, "user_id", uid)
		return
	}
	c.JSON(http.StatusOK, v)
}

// @Summary      Canonical meters
// @Description  Last server-confirmed meter list held by the dashboard session.
// @Tags         dashboard
// @Produce      json
// @Success      200  {array}   models.Meter
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/dashboard/canonical [get]
// @Security     BearerAuth
func (h *Handler) dashboardCanonical(c *gin.Context) {
	uid := identityFrom(c).UserID
	ms, err := h.services.Dashboard.Canonical(uid)
	if err != nil {
		h.respondServiceError(c, "failed to load meters", "dashboard_canonical_failed", err, "user_id", uid)
		return
	}
	c.JSON(http.StatusOK, ms)
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"smart_cash_power/internal/drain"
	"smart_cash_power/internal/models"
	"smart_cash_power/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK        = "ok"
	statusDeleted   = "deleted"
	statusRefreshed = "refreshed"
	statusWritten   = "written"
	statusSignedOut = "signed_out"

	errListMeters      = "failed to load meters"
	errAddMeter        = "failed to add meter"
	errDeleteMeter     = "failed to delete meter"
	errWriteUnits      = "failed to write units"
	errRefresh         = "failed to refresh meters"
	errSnapshot        = "failed to load meter"
	errInvalidMeterID  = "invalid meter id"
	errInvalidBodyPref = "invalid body: "
)

// AddMeterRequest is the payload for registering a meter.
type AddMeterRequest struct {
	MeterNumber string `json:"meterNumber" binding:"required" example:"04-1188"`
}

// UnitsRequest is the payload for a manual ledger write.
type UnitsRequest struct {
	CurrentUnits *float64 `json:"currentUnits" binding:"required" example:"12.5"`
	UsedUnits    *float64 `json:"usedUnits" binding:"required" example:"30.25"`
}

func meterIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidMeterID})
		return 0, false
	}
	return id, true
}

// refreshAfterChange re-syncs the drain session with the directory. Users
// without a session (e.g. signed in elsewhere) are skipped.
func (h *Handler) refreshAfterChange(c *gin.Context, userID int) {
	err := h.services.Dashboard.Refresh(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, service.ErrNoSession) && h.log != nil {
		h.log.Warnw("dashboard_refresh_failed", "user_id", userID, "err", err)
	}
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      List meters
// @Description  Server-confirmed meter list of the caller.
// @Tags         meters
// @Produce      json
// @Success      200  {array}   models.Meter
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/meters [get]
// @Security     BearerAuth
func (h *Handler) listMeters(c *gin.Context) {
	uid := identityFrom(c).UserID
	meters, err := h.services.Meters.List(c.Request.Context(), uid)
	if err != nil {
		h.respondServiceError(c, errListMeters, "meters_list_failed", err, "user_id", uid)
		return
	}
	c.JSON(http.StatusOK, meters)
}

// @Summary      Add meter
// @Tags         meters
// @Accept       json
// @Produce      json
// @Param        body  body      AddMeterRequest  true  "Meter payload"
// @Success      201   {object}  models.Meter
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/meters [post]
// @Security     BearerAuth
func (h *Handler) addMeter(c *gin.Context) {
	var req AddMeterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	uid := identityFrom(c).UserID
	m, err := h.services.Meters.Add(c.Request.Context(), uid, req.MeterNumber)
	if err != nil {
		h.respondServiceError(c, errAddMeter, "meters_add_failed", err, "user_id", uid)
		return
	}
	h.refreshAfterChange(c, uid)
	c.JSON(http.StatusCreated, m)
}

// @Summary      Delete meter
// @Tags         meters
// @Produce      json
// @Param        id   path      int  true  "Meter ID"
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/meters/{id} [delete]
// @Security     BearerAuth
func (h *Handler) deleteMeter(c *gin.Context) {
	id, ok := meterIDParam(c)
	if !ok {
		return
	}
	uid := identityFrom(c).UserID
	if err := h.services.Meters.Delete(c.Request.Context(), uid, id); err != nil {
		h.respondServiceError(c, errDeleteMeter, "meters_delete_failed", err, "user_id", uid, "meter_id", id)
		return
	}
	h.refreshAfterChange(c, uid)
	c.JSON(http.StatusOK, gin.H{"status": statusDeleted})
}

// @Summary      Refresh meters
// @Description  Re-fetches the meter list into the dashboard, e.g. after a purchase. Unsaved drain progress is discarded.
// @Tags         meters
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/meters/refresh [post]
// @Security     BearerAuth
func (h *Handler) refreshMeters(c *gin.Context) {
	uid := identityFrom(c).UserID
	if err := h.services.Dashboard.Refresh(c.Request.Context(), uid); err != nil {
		h.respondServiceError(c, errRefresh, "meters_refresh_failed", err, "user_id", uid)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusRefreshed})
}

// @Summary      Purchase snapshot
// @Description  Point-in-time copy of a meter from the canonical list, unaffected by the live drain.
// @Tags         meters
// @Produce      json
// @Param        id   path      int  true  "Meter ID"
// @Success      200  {object}  models.Meter
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/meters/{id}/snapshot [get]
// @Security     BearerAuth
func (h *Handler) meterSnapshot(c *gin.Context) {
	id, ok := meterIDParam(c)
	if !ok {
		return
	}
	uid := identityFrom(c).UserID
	m, err := h.services.Dashboard.PurchaseSnapshot(uid, id)
	if err != nil {
		h.respondServiceError(c, errSnapshot, "meters_snapshot_failed", err, "user_id", uid, "meter_id", id)
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary      Write meter units
// @Description  Overwrites current and used units. Used units may not decrease.
// @Tags         meters
// @Accept       json
// @Produce      json
// @Param        id    path      int           true  "Meter ID"
// @Param        body  body      UnitsRequest  true  "Units"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/meters/{id}/units [put]
// @Security     BearerAuth
func (h *Handler) writeUnits(c *gin.Context) {
	id, ok := meterIDParam(c)
	if !ok {
		return
	}
	var req UnitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	uid := identityFrom(c).UserID
	ctx := drain.WithReason(c.Request.Context(), models.ReasonManual)
	u := models.Units{CurrentUnits: *req.CurrentUnits, UsedUnits: *req.UsedUnits}
	if err := h.services.Ledger.WriteUnits(ctx, uid, id, u); err != nil {
		h.respondServiceError(c, errWriteUnits, "meters_write_units_failed", err, "user_id", uid, "meter_id", id)
		return
	}
	h.refreshAfterChange(c, uid)
	c.JSON(http.StatusOK, gin.H{"status": statusWritten})
}

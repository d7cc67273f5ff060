package handlers

import (
	"errors"
	"net/http"

	"smart_cash_power/internal/models"
	"smart_cash_power/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errPurchase     = "failed to purchase units"
	errTransactions = "failed to load transactions"
)

// PurchaseRequest is the payload for buying units.
type PurchaseRequest struct {
	MeterID int64    `json:"meterId" binding:"required,gt=0" example:"1"`
	Amount  *float64 `json:"amount" binding:"required" example:"500"`
}

// @Summary      Purchase units
// @Description  Converts the amount into units and credits them to the meter. A failed credit answers with the FAILED transaction.
// @Tags         transactions
// @Accept       json
// @Produce      json
// @Param        body  body      PurchaseRequest  true  "Purchase"
// @Success      201   {object}  models.Transaction
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      502   {object}  map[string]interface{}  "error, transaction"
// @Router       /api/v1/transactions/purchase [post]
// @Security     BearerAuth
func (h *Handler) purchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	uid := identityFrom(c).UserID
	tx, err := h.services.Purchases.Purchase(c.Request.Context(), uid, req.MeterID, *req.Amount)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, tx)
	case tx.Status == models.TransactionFailed && !errors.Is(err, service.ErrRemoteCredential):
		if h.log != nil {
			h.log.Errorw("transactions_purchase_failed", "user_id", uid, "reference", tx.Reference, "err", err)
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": errPurchase, "transaction": tx})
	default:
		h.respondServiceError(c, errPurchase, "transactions_purchase_failed", err, "user_id", uid, "meter_id", req.MeterID)
	}
}

// @Summary      Transaction history
// @Description  Purchases of the caller, newest first.
// @Tags         transactions
// @Produce      json
// @Success      200  {array}   models.Transaction
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/transactions/history [get]
// @Security     BearerAuth
func (h *Handler) transactionHistory(c *gin.Context) {
	uid := identityFrom(c).UserID
	txs, err := h.services.Purchases.Transactions(c.Request.Context(), uid)
	if err != nil {
		h.respondServiceError(c, errTransactions, "transactions_history_failed", err, "user_id", uid)
		return
	}
	c.JSON(http.StatusOK, txs)
}

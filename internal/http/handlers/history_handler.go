// History HTTP handlers.
//
//   - GET /messages/history   (group sends and individual messages, ETag support)
//   - GET /deliveries/{id}    (one delivery record)
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-group-notify/internal/repo"
	"github.com/tbourn/go-group-notify/internal/services"
	"github.com/tbourn/go-group-notify/internal/utils"
)

// HistoryResponse is a page of history rows.
type HistoryResponse struct {
	Items     []services.HistoryEntry `json:"items"`
	SinceDays int                     `json:"since_days"`
	Limit     int                     `json:"limit"`
	Offset    int                     `json:"offset"`
}

// historyWindow parses since_days/limit/offset, applying the engine's
// defaults and caps.
func historyWindow(c *gin.Context) (sinceDays, limit, offset int) {
	sinceDays = utils.AtoiDefault(c.Query("since_days"), services.DefaultSinceDays)
	limit = utils.AtoiDefault(c.Query("limit"), services.DefaultHistoryLimit)
	offset = utils.AtoiDefault(c.Query("offset"), 0)
	// cap the window at a year so the scan stays bounded
	sinceDays = utils.ClampInt(sinceDays, 0, 366)
	return services.NormalizeWindow(sinceDays, limit, offset)
}

// ListHistory godoc
// @ID          listHistory
// @Summary     Message history
// @Description Returns group sends (with per-status counts) and individual messages from the last since_days days, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        History
// @Produce     json
//
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"history:30:12:1700000000000\")
// @Param       since_days     query   int     false  "Window in days"              minimum(1) maximum(366) default(30)
// @Param       limit          query   int     false  "Rows per page"               minimum(1) maximum(200) default(50)
// @Param       offset         query   int     false  "Rows to skip"                minimum(0) default(0)
//
// @Success     200  {object}  handlers.HistoryResponse
// @Header      200  {string}  ETag  "Weak ETag for the current window"
// @Success     304  {string}  string  "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/v1/messages/history [get]
func (h *Handlers) ListHistory(c *gin.Context) {
	ctx := c.Request.Context()
	sinceDays, limit, offset := historyWindow(c)

	// ETag pre-check (best effort).
	if h.db != nil {
		count, latest, err := repo.DeliveriesStats(ctx, h.db, h.history.Since(sinceDays))
		if err == nil {
			etag := utils.WeakETag(fmt.Sprintf("history:%d:%d:%d", sinceDays, limit, offset), count, latest)
			c.Header("ETag", etag)
			c.Header("Cache-Control", "private, no-cache")
			if utils.ETagMatches(c.GetHeader("If-None-Match"), etag) {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, err := h.history.Summarize(ctx, sinceDays, limit, offset)
	if err != nil {
		h.failService(c, err, ErrCodeHistoryFailed)
		return
	}
	ok(c, http.StatusOK, HistoryResponse{Items: items, SinceDays: sinceDays, Limit: limit, Offset: offset})
}

// GetDelivery godoc
// @ID          getDelivery
// @Summary     Get one delivery record
// @Tags        History
// @Produce     json
// @Param       id   path  string  true  "Delivery record ID"
// @Success     200  {object}  domain.DeliveryRecord
// @Failure     404  {object}  handlers.ErrorResponse  "not_found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /api/v1/deliveries/{id} [get]
func (h *Handlers) GetDelivery(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	rec, err := repo.GetDeliveryRecord(c.Request.Context(), h.db, id)
	if err != nil {
		h.failService(c, err, ErrCodeLookupFailed)
		return
	}
	ok(c, http.StatusOK, rec)
}

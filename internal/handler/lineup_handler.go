package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lineup-tv/lineup-api/internal/dto"
	"github.com/lineup-tv/lineup-api/internal/service"
	"github.com/lineup-tv/lineup-api/pkg/response"
)

// LineupHandler exposes saved lineup endpoints.
type LineupHandler struct {
	lineups *service.LineupService
}

// NewLineupHandler constructs LineupHandler.
func NewLineupHandler(lineups *service.LineupService) *LineupHandler {
	return &LineupHandler{lineups: lineups}
}

// List godoc
// @Summary List saved lineups
// @Tags Lineups
// @Produce json
// @Param profileId query string false "Filter by profile"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /lineups [get]
func (h *LineupHandler) List(c *gin.Context) {
	var query dto.LineupQuery
	query.ProfileID = strings.TrimSpace(c.Query("profileId"))
	query.Status = strings.TrimSpace(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		query.PageSize = size
	}
	query.SortBy = c.Query("sort")
	query.SortOrder = c.Query("order")

	lineups, pagination, err := h.lineups.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lineups, pagination)
}

// Get godoc
// @Summary Get lineup detail with full rundown
// @Tags Lineups
// @Produce json
// @Param id path string true "Lineup ID"
// @Success 200 {object} response.Envelope
// @Router /lineups/{id} [get]
func (h *LineupHandler) Get(c *gin.Context) {
	lineup, err := h.lineups.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lineup, nil)
}

// Delete godoc
// @Summary Delete saved lineup
// @Tags Lineups
// @Produce json
// @Param id path string true "Lineup ID"
// @Success 204
// @Router /lineups/{id} [delete]
func (h *LineupHandler) Delete(c *gin.Context) {
	if err := h.lineups.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

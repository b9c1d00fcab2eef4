package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lineup-tv/lineup-api/internal/dto"
	"github.com/lineup-tv/lineup-api/internal/service"
	appErrors "github.com/lineup-tv/lineup-api/pkg/errors"
	"github.com/lineup-tv/lineup-api/pkg/response"
)

// LibraryHandler exposes media library endpoints.
type LibraryHandler struct {
	library *service.LibraryService
}

// NewLibraryHandler constructs LibraryHandler.
func NewLibraryHandler(library *service.LibraryService) *LibraryHandler {
	return &LibraryHandler{library: library}
}

// List godoc
// @Summary List media items
// @Tags Library
// @Produce json
// @Param type query string false "Filter by content type (movie, episode)"
// @Param genre query string false "Filter by genre"
// @Param studio query string false "Filter by studio"
// @Param search query string false "Search by title"
// @Param filler query bool false "Filter by filler flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /library [get]
func (h *LibraryHandler) List(c *gin.Context) {
	var query dto.MediaQuery
	query.Type = strings.TrimSpace(c.Query("type"))
	query.Genre = strings.TrimSpace(c.Query("genre"))
	query.Studio = strings.TrimSpace(c.Query("studio"))
	query.Search = strings.TrimSpace(c.Query("search"))
	if filler := c.Query("filler"); filler != "" {
		if filler == "true" {
			v := true
			query.Filler = &v
		} else if filler == "false" {
			v := false
			query.Filler = &v
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		query.PageSize = size
	}
	query.SortBy = c.Query("sort")
	query.SortOrder = c.Query("order")

	items, pagination, err := h.library.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get media item detail
// @Tags Library
// @Produce json
// @Param id path string true "Media item ID"
// @Success 200 {object} response.Envelope
// @Router /library/{id} [get]
func (h *LibraryHandler) Get(c *gin.Context) {
	item, err := h.library.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Create godoc
// @Summary Add media item
// @Tags Library
// @Accept json
// @Produce json
// @Param payload body dto.MediaItemRequest true "Media item payload"
// @Success 201 {object} response.Envelope
// @Router /library [post]
func (h *LibraryHandler) Create(c *gin.Context) {
	var req dto.MediaItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid media payload"))
		return
	}
	item, err := h.library.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Update media item
// @Tags Library
// @Accept json
// @Produce json
// @Param id path string true "Media item ID"
// @Param payload body dto.MediaItemRequest true "Media item payload"
// @Success 200 {object} response.Envelope
// @Router /library/{id} [put]
func (h *LibraryHandler) Update(c *gin.Context) {
	var req dto.MediaItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid media payload"))
		return
	}
	item, err := h.library.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Import godoc
// @Summary Bulk import media items
// @Description Upserts every item in the payload. Existing ids are refreshed, new ids are created. Air history survives re-imports.
// @Tags Library
// @Accept json
// @Produce json
// @Param payload body dto.ImportLibraryRequest true "Import payload"
// @Success 200 {object} response.Envelope
// @Router /library/import [post]
func (h *LibraryHandler) Import(c *gin.Context) {
	var req dto.ImportLibraryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid import payload"))
		return
	}
	result, err := h.library.Import(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Remove media item
// @Tags Library
// @Produce json
// @Param id path string true "Media item ID"
// @Success 204
// @Router /library/{id} [delete]
func (h *LibraryHandler) Delete(c *gin.Context) {
	if err := h.library.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

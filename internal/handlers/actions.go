package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rulemate/internal/model"
	"rulemate/internal/repository"
)

// GetActions returns queued actions, optionally filtered by status
func (h *Handlers) GetActions(c *gin.Context) {
	page, limit, ok := pageParams(c)
	if !ok {
		return
	}

	filter := repository.ActionFilter{Limit: limit, Offset: (page - 1) * limit}
	if s := c.Query("status"); s != "" {
		status := model.ActionStatus(s)
		switch status {
		case model.ActionStatusPending, model.ActionStatusSuccess, model.ActionStatusFailed:
			filter.Status = status
		default:
			abort(c, http.StatusBadRequest, "invalid_status", "status must be pending, success or failed")
			return
		}
	}

	actions, total, err := h.store.ListActions(c.Request.Context(), filter)
	if err != nil {
		h.log.WithError(err).Error("Failed to list actions")
		abort(c, http.StatusInternalServerError, "database_error", "Failed to fetch actions")
		return
	}

	c.JSON(http.StatusOK, model.ActionListResponse{
		Actions:    actions,
		Pagination: model.Pagination{Page: page, Limit: limit, Total: total},
	})
}

// GetAction returns a single action by ID
func (h *Handlers) GetAction(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid_id", "Invalid action ID")
		return
	}

	entry, err := h.store.GetAction(c.Request.Context(), uint(id))
	if errors.Is(err, repository.ErrNotFound) {
		abort(c, http.StatusNotFound, "not_found", "Action not found")
		return
	}
	if err != nil {
		h.log.WithError(err).Error("Failed to fetch action")
		abort(c, http.StatusInternalServerError, "database_error", "Failed to fetch action")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// GetActionStats returns the number of actions per status
func (h *Handlers) GetActionStats(c *gin.Context) {
	counts, err := h.store.CountActionsByStatus(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to count actions")
		abort(c, http.StatusInternalServerError, "database_error", "Failed to count actions")
		return
	}
	c.JSON(http.StatusOK, counts)
}

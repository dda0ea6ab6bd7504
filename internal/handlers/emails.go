package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rulemate/internal/model"
	"rulemate/internal/repository"
)

// GetEmails returns stored emails, newest first
func (h *Handlers) GetEmails(c *gin.Context) {
	page, limit, ok := pageParams(c)
	if !ok {
		return
	}

	emails, total, err := h.store.ListEmails(c.Request.Context(), limit, (page-1)*limit)
	if err != nil {
		h.log.WithError(err).Error("Failed to list emails")
		abort(c, http.StatusInternalServerError, "database_error", "Failed to fetch emails")
		return
	}

	c.JSON(http.StatusOK, model.EmailListResponse{
		Emails:     emails,
		Pagination: model.Pagination{Page: page, Limit: limit, Total: total},
	})
}

// GetEmail returns a single email by message ID
func (h *Handlers) GetEmail(c *gin.Context) {
	email, err := h.store.GetEmail(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		abort(c, http.StatusNotFound, "not_found", "Email not found")
		return
	}
	if err != nil {
		h.log.WithError(err).Error("Failed to fetch email")
		abort(c, http.StatusInternalServerError, "database_error", "Failed to fetch email")
		return
	}
	c.JSON(http.StatusOK, email)
}

// GetCheckpoint returns the fetch checkpoint
func (h *Handlers) GetCheckpoint(c *gin.Context) {
	ts, err := h.store.GetLastFetchedTime(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to read checkpoint")
		abort(c, http.StatusInternalServerError, "database_error", "Failed to read checkpoint")
		return
	}
	c.JSON(http.StatusOK, model.CheckpointResponse{LastFetchedTimestamp: ts})
}

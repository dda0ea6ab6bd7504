package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rulemate/internal/model"
)

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := model.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Loops:     make(map[string]string),
	}

	if err := h.store.Ping(c.Request.Context()); err != nil {
		response.Status = "error"
		response.Database = "error"
		h.log.WithError(err).Error("Database health check failed")
	}

	for _, st := range h.loops.Statuses() {
		state := "stopped"
		if st.Running {
			state = "running"
		}
		response.Loops[st.Name] = state
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

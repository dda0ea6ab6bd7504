package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rulemate/internal/scheduler"
)

func (h *Handlers) loop(c *gin.Context) (*scheduler.Scheduler, bool) {
	s, err := h.loops.Get(c.Param("name"))
	if err != nil {
		abort(c, http.StatusNotFound, "unknown_loop", err.Error())
		return nil, false
	}
	return s, true
}

// StartLoop starts a polling loop
func (h *Handlers) StartLoop(c *gin.Context) {
	s, ok := h.loop(c)
	if !ok {
		return
	}
	if err := s.Start(); err != nil {
		abort(c, http.StatusConflict, "scheduler_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, s.Status())
}

// StopLoop stops a polling loop
func (h *Handlers) StopLoop(c *gin.Context) {
	s, ok := h.loop(c)
	if !ok {
		return
	}
	if err := s.Stop(); err != nil {
		abort(c, http.StatusInternalServerError, "scheduler_error", err.Error())
		return
	}
	c.JSON(http.StatusOK, s.Status())
}

// RunLoopOnce runs one cycle of a loop and waits for it
func (h *Handlers) RunLoopOnce(c *gin.Context) {
	s, ok := h.loop(c)
	if !ok {
		return
	}
	if err := s.RunOnce(c.Request.Context()); err != nil {
		abort(c, http.StatusInternalServerError, "cycle_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, s.Status())
}

// GetLoopStatus returns the state of a loop
func (h *Handlers) GetLoopStatus(c *gin.Context) {
	s, ok := h.loop(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Status())
}

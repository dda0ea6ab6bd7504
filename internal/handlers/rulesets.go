package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rulemate/internal/rules"
)

// GetRulesets returns the rulesets currently in effect
func (h *Handlers) GetRulesets(c *gin.Context) {
	rs := h.rulesets.Rulesets()
	if rs == nil {
		rs = []rules.Ruleset{}
	}
	c.JSON(http.StatusOK, rs)
}

package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"rulemate/internal/model"
	"rulemate/internal/repository"
	"rulemate/internal/rules"
	"rulemate/internal/scheduler"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Store is the read side of the repository used by the admin API.
type Store interface {
	Ping(ctx context.Context) error
	GetLastFetchedTime(ctx context.Context) (time.Time, error)
	GetEmail(ctx context.Context, id string) (*model.Email, error)
	ListEmails(ctx context.Context, limit, offset int) ([]model.Email, int64, error)
	GetAction(ctx context.Context, id uint) (*model.ActionEntry, error)
	ListActions(ctx context.Context, filter repository.ActionFilter) ([]model.ActionEntry, int64, error)
	CountActionsByStatus(ctx context.Context) (map[model.ActionStatus]int64, error)
}

// RulesetSource returns the rulesets currently in effect.
type RulesetSource interface {
	Rulesets() []rules.Ruleset
}

// Handlers contains all HTTP handlers
type Handlers struct {
	store    Store
	rulesets RulesetSource
	loops    *scheduler.Group
	gatherer prometheus.Gatherer
	log      logrus.FieldLogger
}

// NewHandlers creates new HTTP handlers
func NewHandlers(store Store, rs RulesetSource, loops *scheduler.Group, gatherer prometheus.Gatherer, log logrus.FieldLogger) *Handlers {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handlers{store: store, rulesets: rs, loops: loops, gatherer: gatherer, log: log}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.GET("/emails", h.GetEmails)
		api.GET("/emails/:id", h.GetEmail)

		api.GET("/actions", h.GetActions)
		api.GET("/actions/stats", h.GetActionStats)
		api.GET("/actions/:id", h.GetAction)

		api.GET("/rulesets", h.GetRulesets)
		api.GET("/checkpoint", h.GetCheckpoint)

		api.POST("/loops/:name/start", h.StartLoop)
		api.POST("/loops/:name/stop", h.StopLoop)
		api.POST("/loops/:name/run-once", h.RunLoopOnce)
		api.GET("/loops/:name/status", h.GetLoopStatus)
	}
}

func abort(c *gin.Context, code int, kind, message string) {
	c.JSON(code, model.ErrorResponse{Error: kind, Message: message, Code: code})
}

// pageParams reads page and limit, defaulting to the first page of
// defaultLimit entries.
func pageParams(c *gin.Context) (page, limit int, ok bool) {
	page, limit = 1, defaultLimit
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			abort(c, http.StatusBadRequest, "invalid_page", "page must be a positive integer")
			return 0, 0, false
		}
		page = n
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			abort(c, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return 0, 0, false
		}
		if n > maxLimit {
			n = maxLimit
		}
		limit = n
	}
	return page, limit, true
}

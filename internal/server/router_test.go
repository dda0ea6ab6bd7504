package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulemate/internal/config"
	"rulemate/internal/handlers"
	"rulemate/internal/repository"
	"rulemate/internal/rules"
	"rulemate/internal/scheduler"
	dbtest "rulemate/internal/testutil"
)

func TestSetupRouterLogsRequests(t *testing.T) {
	log, _ := test.NewNullLogger()
	repo := repository.New(dbtest.NewTestDB(t, time.Now()))
	h := handlers.NewHandlers(repo, rules.Static{}, scheduler.NewGroup(), prometheus.NewRegistry(), log)

	var out bytes.Buffer
	router := SetupRouter(h, &out)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rulesets", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Contains(t, out.String(), "GET /api/v1/rulesets")

	out.Reset()
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, out.String())
}

func TestNew(t *testing.T) {
	srv := New(config.ServerConfig{Port: "9090", ReadTimeout: time.Second, WriteTimeout: 2 * time.Second}, http.NotFoundHandler())
	assert.Equal(t, ":9090", srv.Addr)
	assert.Equal(t, time.Second, srv.ReadTimeout)
	assert.Equal(t, 2*time.Second, srv.WriteTimeout)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rulemate/internal/action"
	"rulemate/internal/metrics"
	"rulemate/internal/model"
	"rulemate/internal/repository"
	"rulemate/internal/rules"
	"rulemate/internal/scheduler"
	dbtest "rulemate/internal/testutil"
)

var checkpoint = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo   *repository.Repository
	router *gin.Engine
	runs   int
	fail   error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{repo: repository.New(dbtest.NewTestDB(t, checkpoint))}

	log, _ := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	m.FetchCycles.Inc()

	loops := scheduler.NewGroup(
		scheduler.NewScheduler(scheduler.Job{Name: scheduler.LoopFetcher, Run: func(ctx context.Context) error {
			f.runs++
			return f.fail
		}}, time.Hour, m, log),
	)
	t.Cleanup(loops.StopAll)

	source := rules.Static{{
		Name:            "Finance",
		GlobalPredicate: rules.All,
		Rules:           []rules.Rule{{Field: rules.FieldSubject, Predicate: rules.Contains, Value: "invoice"}},
		Actions:         []action.Action{{Kind: action.MoveToLabel, Label: "Finance"}},
	}}

	f.router = gin.New()
	NewHandlers(f.repo, source, loops, reg, log).SetupRoutes(f.router)
	return f
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) seed(t *testing.T) model.ActionEntry {
	t.Helper()
	ctx := context.Background()
	for i, id := range []string{"m1", "m2", "m3"} {
		email := model.Email{ID: id, Subject: "Invoice " + id, Received: checkpoint.Add(time.Duration(i) * time.Minute)}
		_, err := f.repo.AddEmail(ctx, &email)
		require.NoError(t, err)
	}
	entry := model.NewActionEntry("m1", action.Parse("move_to_label:Finance"), "Finance")
	require.NoError(t, f.repo.AddAction(ctx, &entry))
	done := model.NewActionEntry("m2", action.Parse("mark_as_read"), "Finance")
	require.NoError(t, f.repo.AddAction(ctx, &done))
	require.NoError(t, f.repo.UpdateActionStatus(ctx, done.ID, model.ActionStatusSuccess, 0, ""))
	return entry
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var resp model.HealthResponse
	decode(t, w, &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "ok", resp.Database)
	assert.Equal(t, map[string]string{scheduler.LoopFetcher: "stopped"}, resp.Loops)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rulemate_fetch_cycles_total 1")
}

func TestEmails(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	w := f.do(t, http.MethodGet, "/api/v1/emails?page=1&limit=2")
	require.Equal(t, http.StatusOK, w.Code)
	var list model.EmailListResponse
	decode(t, w, &list)
	assert.Equal(t, model.Pagination{Page: 1, Limit: 2, Total: 3}, list.Pagination)
	require.Len(t, list.Emails, 2)
	assert.Equal(t, "m3", list.Emails[0].ID)

	w = f.do(t, http.MethodGet, "/api/v1/emails/m2")
	require.Equal(t, http.StatusOK, w.Code)
	var email model.Email
	decode(t, w, &email)
	assert.Equal(t, "Invoice m2", email.Subject)

	w = f.do(t, http.MethodGet, "/api/v1/emails/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/emails?page=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestActions(t *testing.T) {
	f := newFixture(t)
	pending := f.seed(t)

	w := f.do(t, http.MethodGet, "/api/v1/actions?status=pending")
	require.Equal(t, http.StatusOK, w.Code)
	var list model.ActionListResponse
	decode(t, w, &list)
	assert.Equal(t, int64(1), list.Pagination.Total)
	require.Len(t, list.Actions, 1)
	assert.Equal(t, action.MoveToLabel, list.Actions[0].Action)
	assert.Equal(t, "Finance", list.Actions[0].Label)

	w = f.do(t, http.MethodGet, "/api/v1/actions")
	decode(t, w, &list)
	assert.Equal(t, int64(2), list.Pagination.Total)

	w = f.do(t, http.MethodGet, "/api/v1/actions?status=archived")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/actions/"+strconv.FormatUint(uint64(pending.ID), 10))
	require.Equal(t, http.StatusOK, w.Code)
	var entry model.ActionEntry
	decode(t, w, &entry)
	assert.Equal(t, "m1", entry.EmailID)
	require.NotNil(t, entry.Email)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/actions/999").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/actions/abc").Code)

	w = f.do(t, http.MethodGet, "/api/v1/actions/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]int64
	decode(t, w, &stats)
	assert.Equal(t, map[string]int64{"pending": 1, "success": 1, "failed": 0}, stats)
}

func TestRulesetsAndCheckpoint(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/rulesets")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"name":"Finance"`)
	assert.Contains(t, body, `"field":"subject"`)

	w = f.do(t, http.MethodGet, "/api/v1/checkpoint")
	require.Equal(t, http.StatusOK, w.Code)
	var cp model.CheckpointResponse
	decode(t, w, &cp)
	assert.True(t, checkpoint.Equal(cp.LastFetchedTimestamp))
}

func TestLoopControl(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/loops/fetcher/run-once")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.runs)

	f.fail = errors.New("mailbox unavailable")
	w = f.do(t, http.MethodPost, "/api/v1/loops/fetcher/run-once")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "mailbox unavailable")

	w = f.do(t, http.MethodPost, "/api/v1/loops/fetcher/start")
	require.Equal(t, http.StatusOK, w.Code)
	var st scheduler.Status
	decode(t, w, &st)
	assert.True(t, st.Running)
	assert.Equal(t, "mailbox unavailable", st.LastError)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/v1/loops/fetcher/start").Code)

	w = f.do(t, http.MethodPost, "/api/v1/loops/fetcher/stop")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/loops/fetcher/status")
	decode(t, w, &st)
	assert.False(t, st.Running)

	w = f.do(t, http.MethodGet, "/api/v1/loops/mailer/status")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "unknown loop"))
}

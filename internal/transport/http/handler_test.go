package httptransport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"job-escrow-service/internal/entity"
	"job-escrow-service/internal/escrow"
	"job-escrow-service/internal/service"
	httptransport "job-escrow-service/internal/transport/http"
)

// ---- helpers ----

// testContext returns a context canceled when the test finishes
// (equivalent of testing.T.Context, which needs Go 1.24).
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func newTestRouter(t *testing.T, opts httptransport.RouteOptions) (http.Handler, *service.Ledger) {
	t.Helper()
	l := service.NewLedger(escrow.NewCustodian())
	h := httptransport.NewHandler(l)
	return httptransport.Routes(h, opts), l
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body=%s", rr.Body.String())
	return v
}

// ---- tests ----

func TestHTTP_JobLifecycle(t *testing.T) {
	router, _ := newTestRouter(t, httptransport.RouteOptions{})

	rr := do(t, router, http.MethodPost, "/accounts/0xc/deposits", `{"amount":1000}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, router, http.MethodPost, "/jobs", `{"client":"0xc","description":"logo design","budget":100}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"id":0}`, rr.Body.String())

	rr = do(t, router, http.MethodGet, "/jobs/0", "")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[map[string]any](t, rr)
	assert.Equal(t, "open", got["status"])
	assert.Equal(t, "", got["freelancer"])
	assert.Equal(t, float64(100), got["budget"])

	rr = do(t, router, http.MethodGet, "/accounts/0xc/balance", "")
	assert.JSONEq(t, `{"actor":"0xc","balance":900}`, rr.Body.String())

	rr = do(t, router, http.MethodGet, "/jobs/0/escrow", "")
	assert.JSONEq(t, `{"job_id":0,"status":"open","escrowed":100}`, rr.Body.String())

	rr = do(t, router, http.MethodPost, "/jobs/0/accept", `{"freelancer":"0xf"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	job := decode[entity.Job](t, rr)
	assert.Equal(t, entity.StatusInProgress, job.Status)
	assert.Equal(t, entity.Actor("0xf"), job.Freelancer)

	rr = do(t, router, http.MethodPost, "/jobs/0/release", `{"caller":"0xf"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, router, http.MethodPost, "/jobs/0/release", `{"caller":"0xc"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, entity.StatusCompleted, decode[entity.Job](t, rr).Status)

	rr = do(t, router, http.MethodPost, "/jobs/0/release", `{"caller":"0xc"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodGet, "/accounts/0xf/balance", "")
	assert.JSONEq(t, `{"actor":"0xf","balance":100}`, rr.Body.String())

	rr = do(t, router, http.MethodGet, "/jobs/0/escrow", "")
	assert.JSONEq(t, `{"job_id":0,"status":"completed","escrowed":0}`, rr.Body.String())

	rr = do(t, router, http.MethodGet, "/jobs/stats", "")
	assert.JSONEq(t, `{"total":1,"open":0,"in_progress":0,"completed":1}`, rr.Body.String())

	rr = do(t, router, http.MethodGet, "/audit", "")
	require.Equal(t, http.StatusOK, rr.Code)
	audit := decode[map[string]any](t, rr)
	assert.Equal(t, true, audit["ok"])
}

func TestHTTP_PostJobErrors(t *testing.T) {
	router, l := newTestRouter(t, httptransport.RouteOptions{})
	require.NoError(t, l.Deposit(testContext(t), "0xc", 50))

	tests := []struct {
		name string
		body string
		code int
	}{
		{name: "invalid json", body: `{`, code: http.StatusBadRequest},
		{name: "missing client", body: `{"description":"x","budget":10}`, code: http.StatusBadRequest},
		{name: "zero budget", body: `{"client":"0xc","description":"x","budget":0}`, code: http.StatusBadRequest},
		{name: "empty description", body: `{"client":"0xc","description":"","budget":10}`, code: http.StatusBadRequest},
		{name: "insufficient funds", body: `{"client":"0xc","description":"x","budget":51}`, code: http.StatusPaymentRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, router, http.MethodPost, "/jobs", tt.body)
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
			assert.NotEmpty(t, decode[map[string]any](t, rr)["message"])
		})
	}
	assert.Equal(t, 0, l.Count())
}

func TestHTTP_AcceptErrors(t *testing.T) {
	router, l := newTestRouter(t, httptransport.RouteOptions{})
	ctx := testContext(t)
	require.NoError(t, l.Deposit(ctx, "0xc", 50))
	_, err := l.Post(ctx, "0xc", "x", 10)
	require.NoError(t, err)

	rr := do(t, router, http.MethodPost, "/jobs/999/accept", `{"freelancer":"0xf"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, http.MethodPost, "/jobs/abc/accept", `{"freelancer":"0xf"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPost, "/jobs/0/accept", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPost, "/jobs/0/accept", `{"freelancer":"0xc"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = do(t, router, http.MethodPost, "/jobs/0/accept", `{"freelancer":"0xf"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodPost, "/jobs/0/accept", `{"freelancer":"0xg"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodGet, "/jobs/999", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHTTP_ListJobs(t *testing.T) {
	router, l := newTestRouter(t, httptransport.RouteOptions{})
	ctx := testContext(t)
	require.NoError(t, l.Deposit(ctx, "0xc", 50))
	for i := 0; i < 3; i++ {
		_, err := l.Post(ctx, "0xc", "x", 10)
		require.NoError(t, err)
	}

	rr := do(t, router, http.MethodGet, "/jobs", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Jobs  []entity.Job `json:"jobs"`
		Count int          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Count)
	for i, j := range resp.Jobs {
		assert.Equal(t, entity.JobID(i), j.ID)
	}
}

func TestHTTP_DepositValidation(t *testing.T) {
	router, _ := newTestRouter(t, httptransport.RouteOptions{})

	rr := do(t, router, http.MethodPost, "/accounts/0xc/deposits", `{"amount":0}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHTTP_EventFeed(t *testing.T) {
	router, l := newTestRouter(t, httptransport.RouteOptions{})
	ctx := testContext(t)
	require.NoError(t, l.Deposit(ctx, "0xc", 50))
	_, err := l.Post(ctx, "0xc", "x", 10)
	require.NoError(t, err)
	require.NoError(t, l.Accept(ctx, 0, "0xf"))

	rr := do(t, router, http.MethodGet, "/events", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Events []entity.Event `json:"events"`
		Last   uint64         `json:"last"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 2)
	assert.Equal(t, entity.EventJobPosted, resp.Events[0].Kind)
	assert.Equal(t, "x", resp.Events[0].Description)
	assert.Equal(t, entity.EventJobTaken, resp.Events[1].Kind)
	assert.Equal(t, uint64(2), resp.Last)

	rr = do(t, router, http.MethodGet, "/events?after=1&limit=1", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, uint64(2), resp.Events[0].Seq)

	// nothing new: the long poll gives up after wait and echoes the cursor
	rr = do(t, router, http.MethodGet, "/events?after=2&wait=10ms", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"events":[],"last":2}`, rr.Body.String())

	rr = do(t, router, http.MethodGet, "/events?after=-1", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHTTP_RateLimit(t *testing.T) {
	router, _ := newTestRouter(t, httptransport.RouteOptions{RateLimitRPS: 0.001, RateLimitBurst: 1})

	rr := do(t, router, http.MethodGet, "/jobs", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, router, http.MethodGet, "/jobs", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	// health checks are not limited
	rr = do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHTTP_SwaggerDoc(t *testing.T) {
	router, _ := newTestRouter(t, httptransport.RouteOptions{})

	rr := do(t, router, http.MethodGet, "/swagger/doc.json", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "/jobs/{id}/release")
}

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"jobtracker/app/usecase"
	"jobtracker/internal/domain/entity"
	"jobtracker/internal/infrastructure/auth"
	"jobtracker/internal/infrastructure/ratelimit"
	"jobtracker/internal/infrastructure/store/memory"
)

type testEnv struct {
	router *mux.Router
	jwt    *auth.JWTProvider
	repo   *memory.JobRepo
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("unreachable") }

func newTestEnv(t *testing.T, opts HandlerOptions, store Pinger) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewJobRepo()
	jwt := auth.NewJWTProvider("test-secret")
	if opts.Authenticate == nil {
		opts.Authenticate = jwt.Authenticate
	}
	if store == nil {
		store = repo
	}

	h := NewJobHandler(usecase.NewJobService(repo, logger), store, logger, prometheus.NewRegistry(), opts)
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return &testEnv{router: r, jwt: jwt, repo: repo}
}

func (e *testEnv) token(t *testing.T, user string) string {
	t.Helper()
	tok, err := e.jwt.Generate(user, time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, user, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, user))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func createJob(t *testing.T, e *testEnv, user, body string) *entity.Job {
	t.Helper()
	rec := e.do(t, user, http.MethodPost, "/api/v1/jobs", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	return decode[map[string]*entity.Job](t, rec)["job"]
}

func TestCreateIgnoresInjectedOwner(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, HandlerOptions{}, nil)

	job := createJob(t, e, "alice", `{"company":"Acme","position":"Engineer","createdBy":"mallory","id":"fixed"}`)
	if job.CreatedBy != "alice" {
		t.Fatalf("createdBy = %q, want alice", job.CreatedBy)
	}
	if job.ID == "fixed" || job.ID == "" {
		t.Fatalf("id = %q, want store-assigned", job.ID)
	}
	if job.Status != entity.JobStatusPending {
		t.Fatalf("status = %q, want pending", job.Status)
	}
}

func TestRequestErrors(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, HandlerOptions{}, nil)
	job := createJob(t, e, "alice", `{"company":"Acme","position":"Engineer"}`)

	tests := []struct {
		name   string
		user   string
		method string
		path   string
		body   string
		want   int
	}{
		{"no token", "", http.MethodGet, "/api/v1/jobs", "", http.StatusUnauthorized},
		{"bad json", "alice", http.MethodPost, "/api/v1/jobs", `{`, http.StatusBadRequest},
		{"missing position", "alice", http.MethodPost, "/api/v1/jobs", `{"company":"Acme"}`, http.StatusBadRequest},
		{"bad status", "alice", http.MethodPost, "/api/v1/jobs", `{"company":"A","position":"B","status":"offer"}`, http.StatusBadRequest},
		{"update missing company", "alice", http.MethodPatch, "/api/v1/jobs/" + job.ID, `{"position":"B"}`, http.StatusBadRequest},
		{"update unknown", "alice", http.MethodPatch, "/api/v1/jobs/nope", `{"company":"A","position":"B"}`, http.StatusNotFound},
		{"update other owner", "bob", http.MethodPatch, "/api/v1/jobs/" + job.ID, `{"company":"A","position":"B"}`, http.StatusForbidden},
		{"get other owner", "bob", http.MethodGet, "/api/v1/jobs/" + job.ID, "", http.StatusForbidden},
		{"delete other owner", "bob", http.MethodDelete, "/api/v1/jobs/" + job.ID, "", http.StatusForbidden},
		{"delete unknown", "alice", http.MethodDelete, "/api/v1/jobs/nope", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(t, tt.user, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			body := decode[map[string]string](t, rec)
			if body["error"] == "" {
				t.Fatalf("missing error message: %s", rec.Body.String())
			}
			if strings.Contains(body["error"], "alice") {
				t.Fatalf("error leaks owner: %q", body["error"])
			}
		})
	}
}

func TestJobLifecycle(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, HandlerOptions{}, nil)

	job := createJob(t, e, "alice", `{"company":"Acme","position":"Engineer"}`)
	createJob(t, e, "bob", `{"company":"Other","position":"Dev"}`)

	rec := e.do(t, "alice", http.MethodPatch, "/api/v1/jobs/"+job.ID,
		`{"company":"Acme","position":"Senior Engineer","status":"interview"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", rec.Code, rec.Body.String())
	}
	updated := decode[map[string]*entity.Job](t, rec)["updatedJob"]
	if updated.Position != "Senior Engineer" || updated.Status != entity.JobStatusInterview {
		t.Fatalf("unexpected update %+v", updated)
	}

	rec = e.do(t, "alice", http.MethodGet, "/api/v1/jobs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d", rec.Code)
	}
	list := decode[usecase.JobList](t, rec)
	if list.TotalJobs != 1 || list.NumOfPages != 1 || len(list.Jobs) != 1 || list.Jobs[0].ID != job.ID {
		t.Fatalf("unexpected list %+v", list)
	}

	rec = e.do(t, "alice", http.MethodGet, "/api/v1/jobs/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status %d", rec.Code)
	}
	raw := decode[map[string]json.RawMessage](t, rec)
	var counts map[string]int
	if err := json.Unmarshal(raw["defaultStats"], &counts); err != nil {
		t.Fatalf("decode defaultStats: %v", err)
	}
	want := map[string]int{"pending": 0, "interview": 1, "declined": 0}
	if len(counts) != len(want) {
		t.Fatalf("defaultStats = %v, want exactly %v", counts, want)
	}
	for k, v := range want {
		if counts[k] != v {
			t.Fatalf("defaultStats[%s] = %d, want %d", k, counts[k], v)
		}
	}
	if string(raw["monthlyApplications"]) != "[]" {
		t.Fatalf("monthlyApplications = %s, want []", raw["monthlyApplications"])
	}

	rec = e.do(t, "alice", http.MethodDelete, "/api/v1/jobs/"+job.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status %d", rec.Code)
	}
	if msg := decode[map[string]string](t, rec)["msg"]; msg != "Success! Job removed" {
		t.Fatalf("delete msg %q", msg)
	}
	rec = e.do(t, "alice", http.MethodDelete, "/api/v1/jobs/"+job.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status %d, want 404", rec.Code)
	}
}

func TestEmptyListIsArray(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, HandlerOptions{}, nil)

	rec := e.do(t, "nobody", http.MethodGet, "/api/v1/jobs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"jobs":[]`)) {
		t.Fatalf("body %s, want empty jobs array", rec.Body.String())
	}
}

func TestMutationsAreRateLimited(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, HandlerOptions{
		Limiter:    ratelimit.NewMemoryLimiter(),
		RateLimit:  2,
		RateWindow: time.Hour,
	}, nil)

	body := `{"company":"Acme","position":"Engineer"}`
	for i := 0; i < 2; i++ {
		if rec := e.do(t, "alice", http.MethodPost, "/api/v1/jobs", body); rec.Code != http.StatusCreated {
			t.Fatalf("request %d status %d", i+1, rec.Code)
		}
	}
	if rec := e.do(t, "alice", http.MethodPost, "/api/v1/jobs", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status %d, want 429", rec.Code)
	}
	if rec := e.do(t, "bob", http.MethodPost, "/api/v1/jobs", body); rec.Code != http.StatusCreated {
		t.Fatalf("other user status %d, want 201", rec.Code)
	}
	if rec := e.do(t, "alice", http.MethodGet, "/api/v1/jobs", ""); rec.Code != http.StatusOK {
		t.Fatalf("reads must not be limited, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	ok := newTestEnv(t, HandlerOptions{}, nil)
	if rec := ok.do(t, "", http.MethodGet, "/api/v1/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}

	down := newTestEnv(t, HandlerOptions{}, downStore{})
	if rec := down.do(t, "", http.MethodGet, "/api/v1/health", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("health with store down status %d, want 503", rec.Code)
	}
}

func TestLiveStats(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, HandlerOptions{StatsPushInterval: 20 * time.Millisecond}, nil)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/jobs/stats/live"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+e.token(t, "alice"))

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status %d", resp.StatusCode)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first usecase.JobStats
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if first.DefaultStats != (entity.StatusCounts{}) {
		t.Fatalf("first push %+v, want zeros", first.DefaultStats)
	}

	createJob(t, e, "alice", `{"company":"Acme","position":"Engineer","status":"declined"}`)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var next usecase.JobStats
		if err := conn.ReadJSON(&next); err != nil {
			t.Fatalf("read: %v", err)
		}
		if next.DefaultStats.Declined == 1 {
			return
		}
	}
	t.Fatal("live stats never reflected the new job")
}

func TestLiveStatsRequiresToken(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, HandlerOptions{}, nil)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/jobs/stats/live"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake response %v, want 401", resp)
	}
}

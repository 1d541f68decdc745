package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oceansat/geoharvest/internal/config"
	"github.com/oceansat/geoharvest/internal/harvest"
)

type stubRunner struct {
	mu      sync.Mutex
	block   chan struct{}
	summary harvest.Summary
	jobs    []harvest.Job
}

func (r *stubRunner) RunJob(_ context.Context, job harvest.Job) (harvest.Summary, error) {
	r.mu.Lock()
	r.jobs = append(r.jobs, job)
	r.mu.Unlock()
	if r.block != nil {
		<-r.block
	}
	return r.summary, nil
}

func (r *stubRunner) lastJob() (harvest.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.jobs) == 0 {
		return harvest.Job{}, false
	}
	return r.jobs[len(r.jobs)-1], true
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type stubIDs struct{}

func (stubIDs) NewID() (string, error) { return "job-1", nil }

func newTestServer(runner Runner, cfg config.Config) *Server {
	runners := map[string]Runner{"esa": runner}
	return NewServer(runners, stubIDs{}, fixedClock{t: time.Now()}, cfg, nil)
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestServer(&stubRunner{}, config.Config{})
	require.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/readyz", "").Code)
	require.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/metrics", "").Code)
}

func TestListSources(t *testing.T) {
	t.Parallel()

	s := newTestServer(&stubRunner{}, config.Config{})
	rec := doRequest(s, http.MethodGet, "/v1/sources", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Sources []string `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, []string{"esa"}, payload.Sources)
}

func TestStartHarvestUnknownSource(t *testing.T) {
	t.Parallel()

	s := newTestServer(&stubRunner{}, config.Config{})
	rec := doRequest(s, http.MethodPost, "/v1/sources/nope/harvest", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartHarvestAcceptsAndSummarizes(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{summary: harvest.Summary{SourceID: "esa", Created: 3}}
	s := newTestServer(runner, config.Config{})

	rec := doRequest(s, http.MethodPost, "/v1/sources/esa/harvest", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "job-1")

	require.Eventually(t, func() bool {
		rec := doRequest(s, http.MethodGet, "/v1/sources/esa/summary", "")
		if rec.Code != http.StatusOK {
			return false
		}
		var payload struct {
			Running bool            `json:"running"`
			Summary harvest.Summary `json:"summary"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			return false
		}
		return !payload.Running && payload.Summary.Created == 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartHarvestConflictWhileRunning(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{block: make(chan struct{})}
	s := newTestServer(runner, config.Config{})

	require.Equal(t, http.StatusAccepted, doRequest(s, http.MethodPost, "/v1/sources/esa/harvest", "").Code)

	// The first run holds the per-source slot.
	require.Eventually(t, func() bool {
		_, ok := runner.lastJob()
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, http.StatusConflict, doRequest(s, http.MethodPost, "/v1/sources/esa/harvest", "").Code)

	close(runner.block)
	require.Eventually(t, func() bool {
		return doRequest(s, http.MethodPost, "/v1/sources/esa/harvest", "").Code == http.StatusAccepted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartHarvestSettingsOverride(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{}
	cfg := config.Config{
		Sources: map[string]config.SourceConfig{
			"esa": {
				Profile: "esa",
				Settings: harvest.JobSettings{
					StartDate: "2024-01-01",
					PageSize:  100,
					Limit:     1000,
				},
			},
		},
	}
	s := newTestServer(runner, cfg)

	body := `{"start_date":"2024-02-01","limit":50,"update_all":true}`
	rec := doRequest(s, http.MethodPost, "/v1/sources/esa/harvest", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Eventually(t, func() bool {
		job, ok := runner.lastJob()
		if !ok {
			return false
		}
		return job.Settings.StartDate == "2024-02-01" &&
			job.Settings.Limit == 50 &&
			job.Settings.PageSize == 100 &&
			job.Settings.UpdateAll
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartHarvestRejectsBadJSON(t *testing.T) {
	t.Parallel()

	s := newTestServer(&stubRunner{}, config.Config{})
	rec := doRequest(s, http.MethodPost, "/v1/sources/esa/harvest", "{nope")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummaryBeforeAnyRun(t *testing.T) {
	t.Parallel()

	s := newTestServer(&stubRunner{}, config.Config{})
	rec := doRequest(s, http.MethodGet, "/v1/sources/esa/summary", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "sekrit"}}
	s := newTestServer(&stubRunner{}, cfg)

	rec := doRequest(s, http.MethodGet, "/v1/sources", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	req.Header.Set("X-API-Key", "sekrit")
	ok := httptest.NewRecorder()
	s.Handler().ServeHTTP(ok, req)
	require.Equal(t, http.StatusOK, ok.Code)
}

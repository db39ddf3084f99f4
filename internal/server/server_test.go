package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/checkin/internal/logging"
	"github.com/fyrsmithlabs/checkin/internal/orchestrator"
	"github.com/fyrsmithlabs/checkin/internal/remote"
)

func newTestServer(t *testing.T, cfg *Config) (*Server, *logging.TestLogger) {
	t.Helper()
	tl := logging.NewTestLogger()
	s, err := NewServer(NewStore(), tl.Logger, cfg)
	require.NoError(t, err)
	return s, tl
}

func doJSON(s *Server, method, target string, body interface{}) *httptest.ResponseRecorder {
	var payload string
	if body != nil {
		b, _ := json.Marshal(body)
		payload = string(b)
	}
	req := httptest.NewRequest(method, target, strings.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) remote.ErrorResponse {
	t.Helper()
	var e remote.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestNewServer(t *testing.T) {
	t.Run("nil store", func(t *testing.T) {
		_, err := NewServer(nil, logging.NewNop(), nil)
		assert.Error(t, err)
	})

	t.Run("nil logger", func(t *testing.T) {
		_, err := NewServer(NewStore(), nil, nil)
		assert.Error(t, err)
	})

	t.Run("default config", func(t *testing.T) {
		s, err := NewServer(NewStore(), logging.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", s.config.Host)
		assert.Equal(t, 8765, s.config.Port)
	})
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doJSON(s, http.MethodGet, remote.HealthPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp remote.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Head)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestSubmit(t *testing.T) {
	s, tl := newTestServer(t, nil)

	rec := doJSON(s, http.MethodPost, remote.ChangesetsPath, remote.SubmitRequest{
		Author:  "dana",
		Comment: "fix parser",
		Changes: []remote.Change{{Path: "a.go", Kind: orchestrator.ChangeEdit, Content: []byte("package a\n")}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp remote.SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.ID)
	assert.NotEmpty(t, resp.UUID)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.ChangesetsTotal.WithLabelValues(ResultAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.Head))
	tl.AssertLogged(t, zapcore.InfoLevel, "changeset accepted")

	t.Run("get recorded changeset", func(t *testing.T) {
		rec := doJSON(s, http.MethodGet, remote.ChangesetsPath+"/1", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var cs remote.Changeset
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cs))
		assert.Equal(t, "dana", cs.Author)
		assert.Equal(t, "fix parser", cs.Comment)
		require.Len(t, cs.Changes, 1)
		assert.Equal(t, 10, cs.Changes[0].Size)
	})
}

func TestSubmit_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
		result string
	}{
		{
			name:   "stale base version",
			body:   remote.SubmitRequest{Changes: []remote.Change{{Path: "a.go", Kind: orchestrator.ChangeEdit}}},
			status: http.StatusConflict,
			code:   remote.CodeStaleVersion,
			result: ResultStale,
		},
		{
			name: "override without reason",
			body: remote.SubmitRequest{
				Changes:     []remote.Change{{Path: "b.go", Kind: orchestrator.ChangeEdit}},
				Forced:      true,
				Override:    &orchestrator.OverrideRecord{Policies: []string{"comment"}},
				BaseVersion: 1,
			},
			status: http.StatusUnprocessableEntity,
			code:   remote.CodeReasonRequired,
			result: ResultRejected,
		},
		{
			name:   "empty changeset",
			body:   remote.SubmitRequest{Comment: "nothing"},
			status: http.StatusBadRequest,
			code:   remote.CodeInvalidRequest,
			result: ResultInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, nil)
			_, err := s.store.Submit(&remote.SubmitRequest{Changes: []remote.Change{{Path: "a.go", Kind: orchestrator.ChangeEdit}}})
			require.NoError(t, err)

			rec := doJSON(s, http.MethodPost, remote.ChangesetsPath, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
			assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.ChangesetsTotal.WithLabelValues(tt.result)))
			assert.Equal(t, 1, s.store.Head())
		})
	}
}

func TestSubmit_InvalidBody(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, remote.ChangesetsPath, strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, remote.CodeInvalidRequest, decodeError(t, rec).Code)
}

func TestSubmit_OverrideCounted(t *testing.T) {
	s, tl := newTestServer(t, nil)

	rec := doJSON(s, http.MethodPost, remote.ChangesetsPath, remote.SubmitRequest{
		Changes:  []remote.Change{{Path: "a.go", Kind: orchestrator.ChangeEdit}},
		Forced:   true,
		Override: &orchestrator.OverrideRecord{Reason: "hotfix", Policies: []string{"comment"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.OverridesTotal))
	tl.AssertField(t, "changeset accepted with policy override", "reason", "hotfix")
}

func TestList(t *testing.T) {
	s, _ := newTestServer(t, nil)
	for _, p := range []string{"a", "b", "c"} {
		_, err := s.store.Submit(&remote.SubmitRequest{Comment: p, Changes: []remote.Change{{Path: p, Kind: orchestrator.ChangeAdd}}})
		require.NoError(t, err)
	}

	t.Run("limit", func(t *testing.T) {
		rec := doJSON(s, http.MethodGet, remote.ChangesetsPath+"?limit=2", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var list remote.ChangesetList
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
		assert.Equal(t, 3, list.Head)
		require.Len(t, list.Changesets, 2)
		assert.Equal(t, "c", list.Changesets[0].Comment)
	})

	t.Run("invalid limit", func(t *testing.T) {
		rec := doJSON(s, http.MethodGet, remote.ChangesetsPath+"?limit=zero", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGet_Errors(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doJSON(s, http.MethodGet, remote.ChangesetsPath+"/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(s, http.MethodGet, remote.ChangesetsPath+"/9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, remote.CodeNotFound, decodeError(t, rec).Code)
}

func TestUnknownRoute(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := doJSON(s, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, remote.CodeNotFound, decodeError(t, rec).Code)
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, &Config{Host: "localhost", Port: 8765, RateLimit: 0.001, Burst: 1})

	first := doJSON(s, http.MethodGet, remote.HealthPath, nil)
	assert.Equal(t, http.StatusOK, first.Code)

	second := doJSON(s, http.MethodGet, remote.HealthPath, nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, remote.CodeRateLimited, decodeError(t, second).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	doJSON(s, http.MethodPost, remote.ChangesetsPath, remote.SubmitRequest{
		Changes: []remote.Change{{Path: "a.go", Kind: orchestrator.ChangeAdd}},
	})

	rec := doJSON(s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `checkin_server_changesets_total{result="accepted"} 1`)
	assert.Contains(t, rec.Body.String(), "checkin_server_head 1")
}

func TestRequestLogging(t *testing.T) {
	s, tl := newTestServer(t, nil)

	doJSON(s, http.MethodGet, remote.HealthPath, nil)

	tl.AssertField(t, "http request", "status", int64(http.StatusOK))
	tl.AssertField(t, "http request", "method", http.MethodGet)
}

// TestClientRoundTrip drives the server through the real remote client.
func TestClientRoundTrip(t *testing.T) {
	s, _ := newTestServer(t, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	client, err := remote.NewClient(srv.URL, remote.WithAuthor("dana"))
	require.NoError(t, err)
	ctx := context.Background()

	sub := orchestrator.Submission{
		Changes: []orchestrator.PendingChange{{Path: "a.go", Kind: orchestrator.ChangeEdit}},
		Comment: "first",
	}
	id, err := client.Submit(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	// Same path from the old base version is stale; the client reports 0.
	id, err = client.Submit(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	health, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, health.Head)

	cs, err := client.Changeset(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "dana", cs.Author)
	assert.Equal(t, "first", cs.Comment)
}

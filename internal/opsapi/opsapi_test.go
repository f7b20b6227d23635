package opsapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"image-collector/internal/common/config"
	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/common/logger"
	"image-collector/internal/models"
	"image-collector/internal/scheduler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApprover struct {
	err     error
	lastKey models.ItemKey
	lastID  string
	calls   []string
}

func (f *fakeApprover) ForceApprove(ctx context.Context, key models.ItemKey, id string) (*models.Item, error) {
	f.calls = append(f.calls, "approve")
	return f.apply(key, id)
}

func (f *fakeApprover) SetPrimary(ctx context.Context, key models.ItemKey, id string) (*models.Item, error) {
	f.calls = append(f.calls, "primary")
	return f.apply(key, id)
}

func (f *fakeApprover) apply(key models.ItemKey, id string) (*models.Item, error) {
	f.lastKey, f.lastID = key, id
	if f.err != nil {
		return nil, f.err
	}
	return &models.Item{Key: key, Images: []models.ImageCandidate{{ID: id, Status: models.CandidateApproved, IsPrimary: true}}}, nil
}

type testServer struct {
	srv      *httptest.Server
	sched    *scheduler.Scheduler
	approver *fakeApprover
}

func createTestServer(t *testing.T, ready ReadinessFunc) *testServer {
	t.Helper()
	s := scheduler.New(logger.NewTestLogger(t), scheduler.Options{PollInterval: 10 * time.Millisecond})
	require.NoError(t, s.RegisterQueue(scheduler.QueueOptions{Name: config.QueueCollectItem, Concurrency: 2}))
	require.NoError(t, s.RegisterQueue(scheduler.QueueOptions{Name: config.QueueCollectCategory, Concurrency: 1}))

	approver := &fakeApprover{}
	srv := httptest.NewServer(NewRouter(NewHandler(s, approver, ready, logger.NewTestLogger(t))))
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, sched: s, approver: approver}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func TestHealthAndReady(t *testing.T) {
	ts := createTestServer(t, nil)
	status, body := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	status, _ = ts.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, status)

	failing := createTestServer(t, func(ctx context.Context) error { return errors.New("redis unreachable") })
	status, body = failing.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "redis unreachable", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := createTestServer(t, nil)
	resp, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "go_goroutines")
}

func TestCollectCategoryAndQueueIntrospection(t *testing.T) {
	ts := createTestServer(t, nil)

	status, body := ts.do(t, http.MethodPost, "/categories/fruits/collect", `{"batchSize":2,"forceRestart":true}`)
	require.Equal(t, http.StatusAccepted, status, body)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "collect-category:fruits", data["id"])

	status, body = ts.do(t, http.MethodPost, "/categories/fruits/collect", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]interface{})["existing"])

	status, body = ts.do(t, http.MethodGet, "/queues", "")
	require.Equal(t, http.StatusOK, status)
	queues := body["data"].(map[string]interface{})
	require.Contains(t, queues, config.QueueCollectCategory)
	assert.Equal(t, float64(1), queues[config.QueueCollectCategory].(map[string]interface{})["waiting"])

	status, body = ts.do(t, http.MethodGet, "/queues/collect-category/jobs/collect-category:fruits", "")
	require.Equal(t, http.StatusOK, status)
	job := body["data"].(map[string]interface{})
	assert.Equal(t, "waiting", job["state"])
	payload := job["payload"].(map[string]interface{})
	assert.Equal(t, "fruits", payload["category"])
	assert.Equal(t, float64(2), payload["batchSize"])

	status, body = ts.do(t, http.MethodGet, "/queues/collect-category/jobs?state=waiting&limit=5", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, _ = ts.do(t, http.MethodDelete, "/queues/collect-category/jobs/collect-category:fruits", "")
	assert.Equal(t, http.StatusNoContent, status)

	status, body = ts.do(t, http.MethodGet, "/queues/collect-category/jobs/collect-category:fruits", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "JOB_NOT_FOUND", errorCode(body))
}

func TestCollectCategory_InvalidBody(t *testing.T) {
	ts := createTestServer(t, nil)
	status, body := ts.do(t, http.MethodPost, "/categories/fruits/collect", `{"itemKeys":["animals/C/cat"]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_PAYLOAD", errorCode(body))

	status, _ = ts.do(t, http.MethodPost, "/categories/fruits/collect", `{`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestQueueOperations(t *testing.T) {
	ts := createTestServer(t, nil)

	status, body := ts.do(t, http.MethodPost, "/queues/collect-item/pause", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]interface{})["paused"])

	c, err := ts.sched.Counts(config.QueueCollectItem)
	require.NoError(t, err)
	assert.True(t, c.Paused)

	status, _ = ts.do(t, http.MethodPost, "/queues/collect-item/resume", "")
	assert.Equal(t, http.StatusOK, status)

	status, body = ts.do(t, http.MethodPost, "/queues/collect-item/retry-failed", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["data"].(map[string]interface{})["retried"])

	status, body = ts.do(t, http.MethodPost, "/queues/collect-item/clean?state=failed&grace=1000", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["data"].(map[string]interface{})["removed"])

	status, _ = ts.do(t, http.MethodPost, "/queues/collect-item/clean?state=active", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = ts.do(t, http.MethodGet, "/queues/collect-item", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "collect-item", body["data"].(map[string]interface{})["name"])

	status, body = ts.do(t, http.MethodPost, "/queues/resize/pause", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "UNKNOWN_QUEUE", errorCode(body))
}

func TestReviewRoutes(t *testing.T) {
	ts := createTestServer(t, nil)

	status, body := ts.do(t, http.MethodPost, "/items/fruits/A/apple/images/cand-1/approve", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.NewItemKey("fruits", "apple"), ts.approver.lastKey)
	assert.Equal(t, "cand-1", ts.approver.lastID)
	assert.NotNil(t, body["data"])

	status, _ = ts.do(t, http.MethodPost, "/items/fruits/A/apple/images/cand-1/primary", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"approve", "primary"}, ts.approver.calls)

	ts.approver.err = apperrors.NewItemNotFoundError("fruits/A/apple candidate x")
	status, body = ts.do(t, http.MethodPost, "/items/fruits/A/apple/images/x/approve", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "ITEM_NOT_FOUND", errorCode(body))

	status, _ = ts.do(t, http.MethodPost, "/items/fruits/AB/apple/images/x/approve", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(apperrors.ErrCodeItemBusy))
	assert.Equal(t, http.StatusConflict, statusFor(apperrors.ErrCodeJobActive))
	assert.Equal(t, http.StatusInternalServerError, statusFor(apperrors.ErrCodeItemCollectionFailed))
}

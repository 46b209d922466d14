package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeRecalculator struct {
	mu       sync.Mutex
	projects []string
}

func (f *fakeRecalculator) RecalculateBestEffort(_ context.Context, projectID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects = append(f.projects, projectID)
}

func (f *fakeRecalculator) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.projects...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestNewRecalculateConsumptionTask(t *testing.T) {
	task, err := NewRecalculateConsumptionTask(RecalculateConsumptionPayload{ProjectID: "p1", Origin: "confirm"})
	require.NoError(t, err)
	require.Equal(t, TaskRecalculateConsumption, task.Type())

	var payload RecalculateConsumptionPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "p1", payload.ProjectID)

	_, err = NewRecalculateConsumptionTask(RecalculateConsumptionPayload{})
	require.Error(t, err)
}

func TestConsumptionJobRunsRecalculation(t *testing.T) {
	recalc := &fakeRecalculator{}
	job := NewConsumptionJob(recalc, quietLogger())

	task, err := NewRecalculateConsumptionTask(RecalculateConsumptionPayload{ProjectID: "p1"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []string{"p1"}, recalc.calls())
}

func TestConsumptionJobSkipsMalformedPayload(t *testing.T) {
	recalc := &fakeRecalculator{}
	job := NewConsumptionJob(recalc, quietLogger())

	for _, payload := range [][]byte{[]byte("not json"), []byte(`{"projectId":""}`)} {
		err := job.Handle(context.Background(), asynq.NewTask(TaskRecalculateConsumption, payload))
		require.True(t, errors.Is(err, asynq.SkipRetry))
	}
	require.Empty(t, recalc.calls())
}

func TestConsumptionJobTaskHandler(t *testing.T) {
	h := NewConsumptionJob(&fakeRecalculator{}, nil).TaskHandler()
	require.Equal(t, TaskRecalculateConsumption, h.Type)
	require.NotNil(t, h.Handler)
}

func TestInlineTriggerOutlivesRequestContext(t *testing.T) {
	recalc := &fakeRecalculator{}
	inline := NewInline(recalc, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	inline.TriggerRecalculation(ctx, "p1", "confirm")
	cancel()
	inline.TriggerRecalculation(context.Background(), "p2", "manual")
	inline.Wait()

	require.ElementsMatch(t, []string{"p1", "p2"}, recalc.calls())
}

func TestNewWorkerRequiresHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"}})
	require.Error(t, err)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, quietLogger()).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"inline","pending":0}`, rr.Body.String())
}

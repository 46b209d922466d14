package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue background jobs are enqueued on.
	QueueDefault = "default"
	// TaskRecalculateConsumption recomputes the fabric totals of one project.
	TaskRecalculateConsumption = "consumption:recalculate"

	defaultJobTimeout = 30 * time.Second
)

// RecalculateConsumptionPayload names the project to recompute.
type RecalculateConsumptionPayload struct {
	ProjectID string `json:"projectId"`
	Origin    string `json:"origin,omitempty"`
}

// NewRecalculateConsumptionTask builds the task. Recalculation is best effort, so it is
// never retried: the next confirmation recomputes everything anyway.
func NewRecalculateConsumptionTask(payload RecalculateConsumptionPayload) (*asynq.Task, error) {
	if payload.ProjectID == "" {
		return nil, fmt.Errorf("build %s task: project id is required", TaskRecalculateConsumption)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", TaskRecalculateConsumption, err)
	}
	return asynq.NewTask(TaskRecalculateConsumption, data,
		asynq.MaxRetry(0),
		asynq.Queue(QueueDefault),
		asynq.Timeout(defaultJobTimeout),
	), nil
}

// Recalculator is the consumption operation run by the job.
type Recalculator interface {
	RecalculateBestEffort(ctx context.Context, projectID string)
}

// ConsumptionJob handles TaskRecalculateConsumption.
type ConsumptionJob struct {
	recalc Recalculator
	logger *slog.Logger
}

// NewConsumptionJob wires the job to the aggregator.
func NewConsumptionJob(recalc Recalculator, logger *slog.Logger) *ConsumptionJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumptionJob{recalc: recalc, logger: logger}
}

// Handle decodes the payload and recalculates. Failures are logged by the aggregator and
// never reach asynq; only an undecodable payload is reported, and never retried.
func (j *ConsumptionJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload RecalculateConsumptionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.ProjectID == "" {
		j.logger.Warn("discarding malformed consumption task", slog.String("payload", string(t.Payload())))
		return fmt.Errorf("decode %s payload: %w", TaskRecalculateConsumption, asynq.SkipRetry)
	}
	j.recalc.RecalculateBestEffort(ctx, payload.ProjectID)
	return nil
}

// TaskHandler registers it with a Worker.
func (j *ConsumptionJob) TaskHandler() TaskHandler {
	return TaskHandler{Type: TaskRecalculateConsumption, Handler: j.Handle}
}

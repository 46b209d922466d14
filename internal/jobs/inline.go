package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Inline runs recalculations in detached goroutines inside the server process. It is used
// when no Redis is configured.
type Inline struct {
	recalc  Recalculator
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewInline returns an in-process trigger.
func NewInline(recalc Recalculator, logger *slog.Logger) *Inline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inline{recalc: recalc, logger: logger, timeout: defaultJobTimeout}
}

// TriggerRecalculation starts a recalculation and returns immediately. The run is detached
// from ctx so it outlives the request that caused it.
func (i *Inline) TriggerRecalculation(ctx context.Context, projectID, origin string) {
	i.logger.Debug("consumption recalculation started inline",
		slog.String("project_id", projectID),
		slog.String("origin", origin),
	)
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.timeout)
		defer cancel()
		i.recalc.RecalculateBestEffort(runCtx, projectID)
	}()
}

// Wait blocks until every started recalculation has finished.
func (i *Inline) Wait() {
	i.wg.Wait()
}

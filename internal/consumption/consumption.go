// Package consumption recomputes how much fabric a project needs from its base garment and
// the sizes recorded in its fittings.
package consumption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/taller/internal/docstore"
	"github.com/Simplici0/taller/internal/projects"
	"github.com/Simplici0/taller/internal/quote"
	"github.com/Simplici0/taller/internal/sizes"
)

// ErrProjectNotFound is returned when the project to recalculate does not exist.
var ErrProjectNotFound = errors.New("project not found")

// Result is the fabric aggregate of a project.
type Result struct {
	TotalFabricLength float64 `json:"totalFabricLength"`
	TotalFabricCost   float64 `json:"totalFabricCost"`
	Fittings          int     `json:"fittings"`
}

// Compute sums the base garment's fabric length over every fitting, scaled by the size each
// participant chose for that garment. Only the first fabric's unit cost prices the total.
func Compute(base quote.LineItem, fittings []quote.Fitting) Result {
	baseLength := decimal.Zero
	costPerMeter := decimal.Zero
	priced := false
	for _, m := range base.MaterialItems {
		if m.Type != quote.MaterialFabric {
			continue
		}
		baseLength = baseLength.Add(decimal.NewFromFloat(m.Quantity))
		if !priced {
			costPerMeter = decimal.NewFromFloat(m.UnitCost)
			priced = true
		}
	}

	length := decimal.Zero
	for _, f := range fittings {
		size, ok := f.SizeFor(base.ID)
		if !ok {
			size = sizes.Default
		}
		length = length.Add(baseLength.Mul(sizes.ConsumptionFactor(size)))
	}
	cost := length.Mul(costPerMeter)

	return Result{
		TotalFabricLength: length.Round(2).InexactFloat64(),
		TotalFabricCost:   cost.Round(2).InexactFloat64(),
		Fittings:          len(fittings),
	}
}

// Recorder observes recalculation outcomes.
type Recorder interface {
	ObserveRecalculation(result string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRecalculation(string, time.Duration) {}

// Aggregator writes consumption totals back onto projects.
type Aggregator struct {
	store   *docstore.Store
	logger  *slog.Logger
	metrics Recorder
	now     func() time.Time
}

// NewAggregator returns an Aggregator. metrics may be nil.
func NewAggregator(store *docstore.Store, logger *slog.Logger, metrics Recorder) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Aggregator{
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Recalculate recomputes a project's fabric totals from all of its fittings inside one
// transaction and stores them on the project.
func (a *Aggregator) Recalculate(ctx context.Context, projectID string) (Result, error) {
	var result Result
	err := a.store.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Tx) error {
		doc, err := tx.Get(ctx, projects.ProjectsCollection, projectID)
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
		}
		if err != nil {
			return err
		}
		project, err := projects.DecodeProject(doc)
		if err != nil {
			return err
		}

		result = Result{}
		if base, ok := project.BaseGarment(); ok {
			fittingDocs, err := tx.List(ctx, projects.FittingsCollection(projectID))
			if err != nil {
				return err
			}
			fittings := make([]quote.Fitting, 0, len(fittingDocs))
			for _, d := range fittingDocs {
				f, err := projects.DecodeFitting(d)
				if err != nil {
					return err
				}
				fittings = append(fittings, f)
			}
			result = Compute(base, fittings)
		}

		return tx.Merge(ctx, projects.ProjectsCollection, projectID, map[string]any{
			"totalFabricLength":    result.TotalFabricLength,
			"totalFabricCost":      result.TotalFabricCost,
			"consumptionUpdatedAt": a.now(),
		})
	})
	if err != nil {
		return Result{}, fmt.Errorf("recalculate consumption: %w", err)
	}
	return result, nil
}

// RecalculateBestEffort runs Recalculate and logs any failure instead of returning it.
func (a *Aggregator) RecalculateBestEffort(ctx context.Context, projectID string) {
	start := time.Now()
	result, err := a.Recalculate(ctx, projectID)
	if err != nil {
		a.metrics.ObserveRecalculation("error", time.Since(start))
		a.logger.Error("consumption recalculation failed",
			slog.String("project_id", projectID),
			slog.Any("error", err),
		)
		return
	}
	a.metrics.ObserveRecalculation("ok", time.Since(start))
	a.logger.Info("consumption recalculated",
		slog.String("project_id", projectID),
		slog.Int("fittings", result.Fittings),
		slog.Float64("total_fabric_length", result.TotalFabricLength),
		slog.Float64("total_fabric_cost", result.TotalFabricCost),
	)
}

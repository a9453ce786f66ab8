package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"tunecrate/internal/config"
	"tunecrate/internal/logging"
)

// Task types for Asynq
const (
	TypeSweep = "maintenance:sweep"
)

// SweepPayload represents the payload for sweep jobs
type SweepPayload struct {
	DryRun bool `json:"dry_run"`
}

// NewSweepTask builds a sweep task for the given queue
func NewSweepTask(queue string, dryRun bool) (*asynq.Task, error) {
	payload, err := json.Marshal(SweepPayload{DryRun: dryRun})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sweep payload: %w", err)
	}
	opts := []asynq.Option{
		asynq.MaxRetry(1),
		asynq.Timeout(30 * time.Minute),
	}
	if queue != "" {
		opts = append(opts, asynq.Queue(queue))
	}
	return asynq.NewTask(TypeSweep, payload, opts...), nil
}

// HandleSweepTask processes sweep jobs. An empty payload runs a real sweep.
func (s *Sweeper) HandleSweepTask(ctx context.Context, t *asynq.Task) error {
	var p SweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("failed to unmarshal sweep payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	if id, ok := asynq.GetTaskID(ctx); ok {
		ctx = logging.ContextWithRequestID(ctx, id)
	}

	report, err := s.Sweep(ctx, p.DryRun)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	if w := t.ResultWriter(); w != nil {
		if data, err := json.Marshal(report); err == nil {
			_, _ = w.Write(data)
		}
	}
	return nil
}

// RegisterTasks registers the maintenance handlers with mux
func (s *Sweeper) RegisterTasks(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeSweep, s.HandleSweepTask)
}

// ScheduleSweep registers the periodic sweep with scheduler
func ScheduleSweep(scheduler *asynq.Scheduler, cfg config.MaintenanceConfig) (string, error) {
	if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
		return "", fmt.Errorf("invalid sweep schedule %q: %w", cfg.SweepSchedule, err)
	}

	task, err := NewSweepTask(cfg.Queue, false)
	if err != nil {
		return "", err
	}

	entryID, err := scheduler.Register(cfg.SweepSchedule, task)
	if err != nil {
		return "", fmt.Errorf("failed to schedule sweep: %w", err)
	}
	return entryID, nil
}

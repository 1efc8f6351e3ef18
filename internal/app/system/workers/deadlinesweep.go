// internal/app/system/workers/deadlinesweep.go
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dalemusser/taskhub/internal/app/system/metrics"
	"github.com/dalemusser/taskhub/internal/app/system/realtime"
	"github.com/dalemusser/taskhub/internal/app/system/timeouts"
	"github.com/dalemusser/taskhub/internal/app/system/workflow"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// SweepStore is the slice of the task store the sweeper needs.
type SweepStore interface {
	ListSweepable(ctx context.Context) ([]models.Task, error)
	SetWorkflowStatus(ctx context.Context, id primitive.ObjectID, version int64, from, to models.WorkflowStatus) (bool, error)
}

// ProjectGetter loads the project a task belongs to.
type ProjectGetter interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Project, error)
}

// Events is how the sweeper tells people about the phases it changed.
type Events interface {
	Notify(ctx context.Context, n models.Notification) (models.Notification, error)
	EmitToUsers(users []primitive.ObjectID, name string, data any)
}

// SweepResult summarizes one pass.
type SweepResult struct {
	Scanned int
	Changed int
	Skipped int
	Failed  int
}

// DeadlineSweeper periodically re-derives each open task's workflow phase
// from its deadline. Only workflow_status is written, guarded by the task's
// version, so a task edited mid-sweep is left for the next pass.
type DeadlineSweeper struct {
	tasks    SweepStore
	projects ProjectGetter
	events   Events
	log      *zap.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	window   time.Duration
	now      func() time.Time

	mu     sync.Mutex // serializes sweeps
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDeadlineSweeper creates the sweeper.
//
// Parameters:
//   - interval: how often to sweep (e.g., 30 seconds)
//   - window: how far ahead of a deadline a task counts as due soon (e.g., 72 hours)
func NewDeadlineSweeper(tasks SweepStore, projects ProjectGetter, events Events, logger *zap.Logger, interval, window time.Duration) *DeadlineSweeper {
	if window <= 0 {
		window = workflow.DefaultDueSoonWindow
	}
	return &DeadlineSweeper{
		tasks:    tasks,
		projects: projects,
		events:   events,
		log:      logger,
		interval: interval,
		window:   window,
		now:      func() time.Time { return time.Now().UTC() },
		stopCh:   make(chan struct{}),
	}
}

// SetMetrics records sweep outcomes on m.
func (w *DeadlineSweeper) SetMetrics(m *metrics.Metrics) {
	w.metrics = m
}

// SetClock replaces the time source (tests).
func (w *DeadlineSweeper) SetClock(now func() time.Time) {
	w.now = now
}

// Start sweeps once right away, then on every tick.
func (w *DeadlineSweeper) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("deadline sweeper started",
		zap.Duration("interval", w.interval),
		zap.Duration("due_soon_window", w.window))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *DeadlineSweeper) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("deadline sweeper stopped")
}

func (w *DeadlineSweeper) run() {
	defer w.wg.Done()

	w.tick()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *DeadlineSweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Long())
	defer cancel()

	res, err := w.Sweep(ctx)
	if err != nil {
		w.log.Error("deadline sweep failed", zap.Error(err))
		return
	}
	if res.Changed > 0 || res.Failed > 0 {
		w.log.Info("deadline sweep finished",
			zap.Int("scanned", res.Scanned),
			zap.Int("changed", res.Changed),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed))
	}
}

// Sweep runs one full pass. Running it twice with no clock advance and no
// other writes changes nothing the second time. Concurrent calls run one
// after the other.
func (w *DeadlineSweeper) Sweep(ctx context.Context) (SweepResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	defer func() { w.metrics.SweepFinished(time.Since(start)) }()

	tasks, err := w.tasks.ListSweepable(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list sweepable tasks: %w", err)
	}

	now := w.now()
	res := SweepResult{Scanned: len(tasks)}
	projects := map[primitive.ObjectID]models.Project{}
	for _, t := range tasks {
		project, cached := projects[t.ProjectID]
		if !cached {
			project, err = w.projects.GetByID(ctx, t.ProjectID)
			if err != nil {
				res.Failed++
				w.log.Warn("deadline sweep could not load project",
					zap.String("task_id", t.ID.Hex()),
					zap.String("project_id", t.ProjectID.Hex()),
					zap.Error(err))
				continue
			}
			projects[t.ProjectID] = project
		}

		to := workflow.Derive(t, project.Owner, now, w.window)
		if to == t.WorkflowStatus {
			continue
		}
		ok, err := w.tasks.SetWorkflowStatus(ctx, t.ID, t.Version, t.WorkflowStatus, to)
		if err != nil {
			res.Failed++
			w.log.Warn("deadline sweep write failed",
				zap.String("task_id", t.ID.Hex()),
				zap.Error(err))
			continue
		}
		if !ok {
			res.Skipped++
			w.metrics.SweepSkipped()
			continue
		}

		res.Changed++
		w.metrics.SweepTransition(string(to))
		w.log.Debug("deadline sweep moved task",
			zap.String("task_id", t.ID.Hex()),
			zap.String("from", string(t.WorkflowStatus)),
			zap.String("to", string(to)))

		t.WorkflowStatus = to
		t.Version++
		t.UpdatedAt = now
		w.announce(ctx, t, project)
	}
	return res, nil
}

// announce notifies the assignee of overdue and due-soon tasks and pushes
// the new state to everyone on the project.
func (w *DeadlineSweeper) announce(ctx context.Context, t models.Task, project models.Project) {
	var kind models.NotificationType
	var msg string
	switch t.WorkflowStatus {
	case models.WorkflowOverdue:
		kind, msg = models.NotifyTaskOverdue, fmt.Sprintf("Task %q is overdue", t.Title)
	case models.WorkflowDueSoon:
		kind, msg = models.NotifyTaskDueSoon, fmt.Sprintf("Task %q is due %s", t.Title, t.Deadline.Format("Jan 2 15:04 MST"))
	}
	if kind != "" {
		projectID, taskID := t.ProjectID, t.ID
		_, err := w.events.Notify(ctx, models.Notification{
			Recipient: t.Assignee,
			Type:      kind,
			Message:   msg,
			ProjectID: &projectID,
			TaskID:    &taskID,
		})
		if err != nil {
			w.log.Warn("deadline sweep notification failed",
				zap.String("task_id", t.ID.Hex()),
				zap.Error(err))
		}
	}

	w.events.EmitToUsers(project.Participants(), realtime.EventTaskUpdated, t)
}

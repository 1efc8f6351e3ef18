package workers_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	projectstore "github.com/dalemusser/taskhub/internal/app/store/projects"
	"github.com/dalemusser/taskhub/internal/app/system/realtime"
	"github.com/dalemusser/taskhub/internal/app/system/workers"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// memTasks mimics the version-guarded task store.
type memTasks struct {
	mu     sync.Mutex
	byID   map[primitive.ObjectID]models.Task
	writes int
	// bumpBeforeWrite simulates a concurrent edit landing between read and write.
	bumpBeforeWrite bool
}

func newMemTasks(tasks ...models.Task) *memTasks {
	m := &memTasks{byID: map[primitive.ObjectID]models.Task{}}
	for _, t := range tasks {
		m.byID[t.ID] = t
	}
	return m
}

func (m *memTasks) ListSweepable(context.Context) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, t := range m.byID {
		if t.WorkflowStatus != models.WorkflowSubmittedForReview && t.WorkflowStatus != models.WorkflowApprovedCompleted {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTasks) SetWorkflowStatus(_ context.Context, id primitive.ObjectID, version int64, from, to models.WorkflowStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return false, nil
	}
	if m.bumpBeforeWrite {
		t.Version++
		m.byID[id] = t
	}
	if t.Version != version || t.WorkflowStatus != from {
		return false, nil
	}
	t.WorkflowStatus = to
	t.Version++
	m.byID[id] = t
	m.writes++
	return true, nil
}

func (m *memTasks) get(id primitive.ObjectID) models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

type memProjects map[primitive.ObjectID]models.Project

func (m memProjects) GetByID(_ context.Context, id primitive.ObjectID) (models.Project, error) {
	p, ok := m[id]
	if !ok {
		return models.Project{}, projectstore.ErrNotFound
	}
	return p, nil
}

type capturedEvents struct {
	notes  []models.Notification
	pushes []string
	users  [][]primitive.ObjectID
}

func (c *capturedEvents) Notify(_ context.Context, n models.Notification) (models.Notification, error) {
	c.notes = append(c.notes, n)
	return n, nil
}

func (c *capturedEvents) EmitToUsers(users []primitive.ObjectID, name string, _ any) {
	c.pushes = append(c.pushes, name)
	c.users = append(c.users, users)
}

type sweepFixture struct {
	now     time.Time
	owner   primitive.ObjectID
	member  primitive.ObjectID
	project models.Project
}

func newSweepFixture() sweepFixture {
	owner, member := primitive.NewObjectID(), primitive.NewObjectID()
	return sweepFixture{
		now:    time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		owner:  owner,
		member: member,
		project: models.Project{
			ID:          primitive.NewObjectID(),
			Name:        "Apollo",
			Owner:       owner,
			TeamMembers: []primitive.ObjectID{member},
		},
	}
}

func (f sweepFixture) task(ws models.WorkflowStatus, status models.Status, deadline time.Time) models.Task {
	return models.Task{
		ID:             primitive.NewObjectID(),
		ProjectID:      f.project.ID,
		Title:          "Write docs",
		Status:         status,
		WorkflowStatus: ws,
		Assignee:       f.member,
		CreatedBy:      f.owner,
		Deadline:       deadline,
		Version:        1,
	}
}

func (f sweepFixture) sweeper(tasks *memTasks, ev *capturedEvents) *workers.DeadlineSweeper {
	w := workers.NewDeadlineSweeper(tasks, memProjects{f.project.ID: f.project}, ev, zap.NewNop(), time.Minute, 72*time.Hour)
	w.SetClock(func() time.Time { return f.now })
	return w
}

func TestSweep_DerivesPhases(t *testing.T) {
	f := newSweepFixture()
	past := f.task(models.WorkflowAssignedToMember, models.StatusInProgress, f.now.Add(-time.Hour))
	soon := f.task(models.WorkflowAssignedToMember, models.StatusInProgress, f.now.Add(24*time.Hour))
	far := f.task(models.WorkflowAssignedToMember, models.StatusInProgress, f.now.Add(30*24*time.Hour))
	review := f.task(models.WorkflowSubmittedForReview, models.StatusReview, f.now.Add(-time.Hour))
	done := f.task(models.WorkflowApprovedCompleted, models.StatusDone, f.now.Add(-time.Hour))

	tasks := newMemTasks(past, soon, far, review, done)
	ev := &capturedEvents{}
	res, err := f.sweeper(tasks, ev).Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if res.Changed != 2 {
		t.Errorf("changed: got %d, want 2", res.Changed)
	}
	if got := tasks.get(past.ID).WorkflowStatus; got != models.WorkflowOverdue {
		t.Errorf("past deadline: got %q, want overdue", got)
	}
	if got := tasks.get(soon.ID).WorkflowStatus; got != models.WorkflowDueSoon {
		t.Errorf("deadline in window: got %q, want due_soon", got)
	}
	if got := tasks.get(far.ID).WorkflowStatus; got != models.WorkflowAssignedToMember {
		t.Errorf("far deadline: got %q, want assigned_to_member", got)
	}
	if got := tasks.get(review.ID).WorkflowStatus; got != models.WorkflowSubmittedForReview {
		t.Errorf("under review must not change, got %q", got)
	}
	if got := tasks.get(done.ID).WorkflowStatus; got != models.WorkflowApprovedCompleted {
		t.Errorf("completed must not change, got %q", got)
	}
	if got := tasks.get(past.ID).Status; got != models.StatusInProgress {
		t.Errorf("sweep must not touch status, got %q", got)
	}
}

func TestSweep_Idempotent(t *testing.T) {
	f := newSweepFixture()
	tasks := newMemTasks(
		f.task(models.WorkflowAssignedToMember, models.StatusInProgress, f.now.Add(-time.Hour)),
		f.task(models.WorkflowAssignedToSelfTodo, models.StatusToDo, f.now.Add(time.Hour)),
		f.task(models.WorkflowDueSoon, models.StatusInProgress, f.now.Add(10*24*time.Hour)),
	)
	w := f.sweeper(tasks, &capturedEvents{})

	if _, err := w.Sweep(context.Background()); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	snapshot := map[primitive.ObjectID]models.Task{}
	for id := range tasks.byID {
		snapshot[id] = tasks.get(id)
	}
	writes := tasks.writes

	res, err := w.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if res.Changed != 0 || tasks.writes != writes {
		t.Errorf("second sweep wrote %d tasks, want 0", tasks.writes-writes)
	}
	for id, before := range snapshot {
		after := tasks.get(id)
		if after.WorkflowStatus != before.WorkflowStatus || after.Version != before.Version {
			t.Errorf("task %s changed on second sweep: %+v -> %+v", id.Hex(), before, after)
		}
	}
}

func TestSweep_DueSoonRevertsWhenDeadlineMovesOut(t *testing.T) {
	f := newSweepFixture()
	task := f.task(models.WorkflowAssignedToMember, models.StatusInProgress, f.now.Add(24*time.Hour))
	tasks := newMemTasks(task)
	w := f.sweeper(tasks, &capturedEvents{})

	if _, err := w.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if got := tasks.get(task.ID).WorkflowStatus; got != models.WorkflowDueSoon {
		t.Fatalf("expected due_soon, got %q", got)
	}

	// Owner pushes the deadline out of the window.
	moved := tasks.get(task.ID)
	moved.Deadline = f.now.Add(14 * 24 * time.Hour)
	tasks.byID[task.ID] = moved

	if _, err := w.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if got := tasks.get(task.ID).WorkflowStatus; got != models.WorkflowAssignedToMember {
		t.Errorf("expected assigned_to_member after deadline moved out, got %q", got)
	}
}

func TestSweep_SelfAssignedRevertsToSelfTodo(t *testing.T) {
	f := newSweepFixture()
	task := f.task(models.WorkflowOverdue, models.StatusToDo, f.now.Add(10*24*time.Hour))
	task.Assignee = f.owner
	tasks := newMemTasks(task)

	if _, err := f.sweeper(tasks, &capturedEvents{}).Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if got := tasks.get(task.ID).WorkflowStatus; got != models.WorkflowAssignedToSelfTodo {
		t.Errorf("expected assigned_to_self_todo, got %q", got)
	}
}

func TestSweep_SkipsConcurrentlyModifiedTask(t *testing.T) {
	f := newSweepFixture()
	task := f.task(models.WorkflowAssignedToMember, models.StatusInProgress, f.now.Add(-time.Hour))
	tasks := newMemTasks(task)
	tasks.bumpBeforeWrite = true
	ev := &capturedEvents{}

	res, err := f.sweeper(tasks, ev).Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Skipped != 1 || res.Changed != 0 {
		t.Errorf("got changed=%d skipped=%d, want 0 and 1", res.Changed, res.Skipped)
	}
	if len(ev.notes) != 0 || len(ev.pushes) != 0 {
		t.Error("skipped task must not be announced")
	}
}

func TestSweep_AnnouncesChanges(t *testing.T) {
	f := newSweepFixture()
	tasks := newMemTasks(f.task(models.WorkflowAssignedToMember, models.StatusInProgress, f.now.Add(-time.Hour)))
	ev := &capturedEvents{}

	if _, err := f.sweeper(tasks, ev).Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(ev.notes) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(ev.notes))
	}
	n := ev.notes[0]
	if n.Type != models.NotifyTaskOverdue || n.Recipient != f.member {
		t.Errorf("notification: got type %q to %s", n.Type, n.Recipient.Hex())
	}
	if len(ev.pushes) != 1 || ev.pushes[0] != realtime.EventTaskUpdated {
		t.Fatalf("expected one taskUpdated push, got %v", ev.pushes)
	}
	if len(ev.users[0]) != 2 {
		t.Errorf("expected push to owner and member, got %d users", len(ev.users[0]))
	}
}

func TestSweep_RevertUsesCurrentProjectOwner(t *testing.T) {
	f := newSweepFixture()
	// Created by the old owner, now held by the member who owns the project.
	task := f.task(models.WorkflowDueSoon, models.StatusToDo, f.now.Add(10*24*time.Hour))
	f.project.Owner = f.member
	f.project.TeamMembers = []primitive.ObjectID{f.owner}
	tasks := newMemTasks(task)

	if _, err := f.sweeper(tasks, &capturedEvents{}).Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if got := tasks.get(task.ID).WorkflowStatus; got != models.WorkflowAssignedToSelfTodo {
		t.Errorf("expected assigned_to_self_todo for the new owner, got %q", got)
	}
}

func TestSweep_MissingProjectCountsAsFailed(t *testing.T) {
	f := newSweepFixture()
	task := f.task(models.WorkflowAssignedToMember, models.StatusInProgress, f.now.Add(-time.Hour))
	task.ProjectID = primitive.NewObjectID()
	tasks := newMemTasks(task)
	ev := &capturedEvents{}

	res, err := f.sweeper(tasks, ev).Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Failed != 1 || res.Changed != 0 {
		t.Errorf("got failed=%d changed=%d, want 1 and 0", res.Failed, res.Changed)
	}
	if tasks.writes != 0 || len(ev.pushes) != 0 {
		t.Error("task without a project must be left alone")
	}
}

type failingList struct{}

func (failingList) ListSweepable(context.Context) ([]models.Task, error) {
	return nil, errors.New("cursor died")
}

func (failingList) SetWorkflowStatus(context.Context, primitive.ObjectID, int64, models.WorkflowStatus, models.WorkflowStatus) (bool, error) {
	return false, nil
}

func TestSweep_ListFailure(t *testing.T) {
	w := workers.NewDeadlineSweeper(failingList{}, memProjects{}, &capturedEvents{}, zap.NewNop(), time.Minute, 0)
	if _, err := w.Sweep(context.Background()); err == nil {
		t.Error("expected error when listing fails")
	}
}

func TestStartStop(t *testing.T) {
	f := newSweepFixture()
	tasks := newMemTasks(f.task(models.WorkflowAssignedToMember, models.StatusInProgress, time.Now().Add(-time.Hour)))
	w := workers.NewDeadlineSweeper(tasks, memProjects{f.project.ID: f.project}, &capturedEvents{}, zap.NewNop(), time.Hour, 72*time.Hour)

	w.Start()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		tasks.mu.Lock()
		n := tasks.writes
		tasks.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	w.Stop()

	tasks.mu.Lock()
	defer tasks.mu.Unlock()
	if tasks.writes != 1 {
		t.Errorf("expected the initial sweep to write once, got %d", tasks.writes)
	}
}

package tasks_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/taskhub/internal/app/features/tasks"
	"github.com/dalemusser/taskhub/internal/app/policy/projectpolicy"
	projectstore "github.com/dalemusser/taskhub/internal/app/store/projects"
	taskstore "github.com/dalemusser/taskhub/internal/app/store/tasks"
	"github.com/dalemusser/taskhub/internal/app/system/apperr"
	"github.com/dalemusser/taskhub/internal/app/system/realtime"
	"github.com/dalemusser/taskhub/internal/app/system/workers"
	"github.com/dalemusser/taskhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

/* ------------------------------ fakes ------------------------------ */

// memTasks behaves like taskstore.Store, version guard included.
type memTasks struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]models.Task
}

func newMemTasks() *memTasks {
	return &memTasks{byID: map[primitive.ObjectID]models.Task{}}
}

func (m *memTasks) Create(_ context.Context, t models.Task) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = primitive.NewObjectID()
	t.Version = 1
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	if t.Comments == nil {
		t.Comments = []models.Comment{}
	}
	m.byID[t.ID] = t
	return t, nil
}

func (m *memTasks) GetByID(_ context.Context, id primitive.ObjectID) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byID[id]
	if !ok {
		return models.Task{}, taskstore.ErrNotFound
	}
	t.Comments = append([]models.Comment(nil), t.Comments...)
	return t, nil
}

func (m *memTasks) ListByProject(_ context.Context, projectID primitive.ObjectID) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Task{}
	for _, t := range m.byID {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTasks) Update(_ context.Context, t models.Task) (models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[t.ID]
	if !ok {
		return models.Task{}, taskstore.ErrNotFound
	}
	if cur.Version != t.Version {
		return models.Task{}, taskstore.ErrVersionConflict
	}
	t.Version++
	t.UpdatedAt = time.Now().UTC()
	m.byID[t.ID] = t
	return t, nil
}

func (m *memTasks) Delete(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return taskstore.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memTasks) ListSweepable(ctx context.Context) ([]models.Task, error) {
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
	if !ok || t.Version != version || t.WorkflowStatus != from {
		return false, nil
	}
	t.WorkflowStatus = to
	t.Version++
	m.byID[id] = t
	return true, nil
}

// touch bumps a task's version as another writer would.
func (m *memTasks) touch(id primitive.ObjectID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.byID[id]
	t.Version++
	m.byID[id] = t
}

type memProjects struct {
	byID map[primitive.ObjectID]models.Project
}

func (m *memProjects) GetByID(_ context.Context, id primitive.ObjectID) (models.Project, error) {
	p, ok := m.byID[id]
	if !ok {
		return models.Project{}, projectstore.ErrNotFound
	}
	return p, nil
}

type capturedEvents struct {
	mu     sync.Mutex
	notes  []models.Notification
	pushes []string
}

func (c *capturedEvents) Notify(_ context.Context, n models.Notification) (models.Notification, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notes = append(c.notes, n)
	return n, nil
}

func (c *capturedEvents) EmitToUsers(_ []primitive.ObjectID, name string, _ any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushes = append(c.pushes, name)
}

func (c *capturedEvents) notesOfType(kind models.NotificationType) []models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Notification
	for _, n := range c.notes {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

/* ----------------------------- fixture ----------------------------- */

type fixture struct {
	svc      *tasks.Service
	store    *memTasks
	projects *memProjects
	events   *capturedEvents
	project  models.Project
	owner    tasks.Actor
	member   tasks.Actor
	outsider tasks.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	owner := tasks.Actor{ID: primitive.NewObjectID(), Name: "Olive Owner"}
	member := tasks.Actor{ID: primitive.NewObjectID(), Name: "Max Member"}
	outsider := tasks.Actor{ID: primitive.NewObjectID(), Name: "Otto Outsider"}
	project := models.Project{
		ID:          primitive.NewObjectID(),
		Name:        "Apollo",
		Owner:       owner.ID,
		TeamMembers: []primitive.ObjectID{member.ID},
	}
	projects := &memProjects{byID: map[primitive.ObjectID]models.Project{project.ID: project}}
	store := newMemTasks()
	events := &capturedEvents{}
	svc := tasks.NewService(store, projectpolicy.NewResolver(projects), events, nil, zap.NewNop())
	return &fixture{
		svc: svc, store: store, projects: projects, events: events,
		project: project, owner: owner, member: member, outsider: outsider,
	}
}

func (f *fixture) create(t *testing.T, assignee primitive.ObjectID, deadline time.Time) models.Task {
	t.Helper()
	task, err := f.svc.Create(context.Background(), f.owner, tasks.CreateInput{
		ProjectID: f.project.ID,
		Title:     "Write release notes",
		Assignee:  assignee,
		Deadline:  &deadline,
		Priority:  models.PriorityHigh,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return task
}

func (f *fixture) removeMember() {
	p := f.project
	p.TeamMembers = nil
	f.projects.byID[p.ID] = p
}

func assertKind(t *testing.T, err error, want *apperr.Error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Kind, err)
	}
}

func assertInvariant(t *testing.T, task models.Task) {
	t.Helper()
	done := task.Status == models.StatusDone
	approved := task.WorkflowStatus == models.WorkflowApprovedCompleted
	if done != approved {
		t.Errorf("invariant broken: status=%s workflowStatus=%s", task.Status, task.WorkflowStatus)
	}
}

func countKind(task models.Task, kind models.CommentKind) int {
	n := 0
	for _, c := range task.Comments {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

/* ------------------------------ tests ------------------------------ */

func TestCreate_SelfAssignedThenComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := f.create(t, f.owner.ID, time.Now().Add(24*time.Hour))
	if task.Status != models.StatusToDo || task.WorkflowStatus != models.WorkflowAssignedToSelfTodo {
		t.Fatalf("initial state: got %s/%s, want ToDo/assigned_to_self_todo", task.Status, task.WorkflowStatus)
	}
	if len(f.events.notesOfType(models.NotifyTaskAssigned)) != 0 {
		t.Error("self-assignment must not notify")
	}

	done, err := f.svc.Complete(ctx, f.owner, task.ID)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if done.Status != models.StatusDone || done.WorkflowStatus != models.WorkflowApprovedCompleted {
		t.Errorf("after complete: got %s/%s, want Done/approved_completed", done.Status, done.WorkflowStatus)
	}
	assertInvariant(t, done)
}

func TestComplete_AfterDeadlineSweep(t *testing.T) {
	tests := []struct {
		name     string
		deadline time.Duration
		phase    models.WorkflowStatus
	}{
		{"due tomorrow", 24 * time.Hour, models.WorkflowDueSoon},
		{"past deadline", -time.Hour, models.WorkflowOverdue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			task := f.create(t, f.owner.ID, time.Now().Add(tt.deadline))

			sweeper := workers.NewDeadlineSweeper(f.store, f.projects, f.events, zap.NewNop(), time.Minute, 72*time.Hour)
			if _, err := sweeper.Sweep(ctx); err != nil {
				t.Fatalf("Sweep failed: %v", err)
			}
			swept, _ := f.store.GetByID(ctx, task.ID)
			if swept.WorkflowStatus != tt.phase {
				t.Fatalf("after sweep: got %q, want %q", swept.WorkflowStatus, tt.phase)
			}

			done, err := f.svc.Complete(ctx, f.owner, task.ID)
			if err != nil {
				t.Fatalf("Complete failed: %v", err)
			}
			if done.Status != models.StatusDone || done.WorkflowStatus != models.WorkflowApprovedCompleted {
				t.Errorf("after complete: got %s/%s, want Done/approved_completed", done.Status, done.WorkflowStatus)
			}
			assertInvariant(t, done)
		})
	}
}

func TestCreate_AssignedToMember(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))

	if task.Status != models.StatusInProgress || task.WorkflowStatus != models.WorkflowAssignedToMember {
		t.Errorf("initial state: got %s/%s, want InProgress/assigned_to_member", task.Status, task.WorkflowStatus)
	}
	assigned := f.events.notesOfType(models.NotifyTaskAssigned)
	if len(assigned) != 1 || assigned[0].Recipient != f.member.ID {
		t.Errorf("expected one task_assigned notification to the member, got %+v", assigned)
	}
	if task.CreatedBy != f.owner.ID {
		t.Errorf("createdBy: got %s, want owner", task.CreatedBy.Hex())
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tomorrow := time.Now().Add(24 * time.Hour)

	tests := []struct {
		name string
		in   tasks.CreateInput
	}{
		{"missing deadline", tasks.CreateInput{ProjectID: f.project.ID, Title: "x", Assignee: f.member.ID}},
		{"blank title", tasks.CreateInput{ProjectID: f.project.ID, Title: " \t\r\n ", Assignee: f.member.ID, Deadline: &tomorrow}},
		{"assignee not on team", tasks.CreateInput{ProjectID: f.project.ID, Title: "x", Assignee: f.outsider.ID, Deadline: &tomorrow}},
		{"no assignee", tasks.CreateInput{ProjectID: f.project.ID, Title: "x", Deadline: &tomorrow}},
		{"bad priority", tasks.CreateInput{ProjectID: f.project.ID, Title: "x", Assignee: f.member.ID, Deadline: &tomorrow, Priority: "Urgent"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.owner, tt.in)
			assertKind(t, err, apperr.ErrValidation)
		})
	}
}

func TestCreate_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	tomorrow := time.Now().Add(24 * time.Hour)
	_, err := f.svc.Create(context.Background(), f.member, tasks.CreateInput{
		ProjectID: f.project.ID, Title: "x", Assignee: f.member.ID, Deadline: &tomorrow,
	})
	assertKind(t, err, apperr.ErrAccessDenied)

	_, err = f.svc.Create(context.Background(), f.owner, tasks.CreateInput{
		ProjectID: primitive.NewObjectID(), Title: "x", Assignee: f.member.ID, Deadline: &tomorrow,
	})
	assertKind(t, err, apperr.ErrNotFound)
}

func TestCreate_DefaultsPriority(t *testing.T) {
	f := newFixture(t)
	tomorrow := time.Now().Add(24 * time.Hour)
	task, err := f.svc.Create(context.Background(), f.owner, tasks.CreateInput{
		ProjectID: f.project.ID, Title: "x", Assignee: f.member.ID, Deadline: &tomorrow,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if task.Priority != models.PriorityMedium {
		t.Errorf("priority: got %q, want Medium", task.Priority)
	}
}

func TestOverdueThenSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.member.ID, time.Now().Add(-time.Hour))

	sweeper := workers.NewDeadlineSweeper(f.store, f.projects, f.events, zap.NewNop(), time.Minute, 72*time.Hour)
	if _, err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	swept, _ := f.store.GetByID(ctx, task.ID)
	if swept.WorkflowStatus != models.WorkflowOverdue {
		t.Fatalf("after sweep: got %q, want overdue", swept.WorkflowStatus)
	}

	submitted, err := f.svc.Submit(ctx, f.member, task.ID)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if submitted.Status != models.StatusReview || submitted.WorkflowStatus != models.WorkflowSubmittedForReview {
		t.Errorf("after submit: got %s/%s, want Review/submitted_for_review", submitted.Status, submitted.WorkflowStatus)
	}

	// Further sweeps leave the submitted task alone.
	if _, err := sweeper.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	after, _ := f.store.GetByID(ctx, task.ID)
	if after.WorkflowStatus != models.WorkflowSubmittedForReview {
		t.Errorf("sweep changed a submitted task to %q", after.WorkflowStatus)
	}

	toOwner := f.events.notesOfType(models.NotifyTaskSubmitted)
	if len(toOwner) != 1 || toOwner[0].Recipient != f.owner.ID {
		t.Errorf("expected task_submitted to the owner, got %+v", toOwner)
	}
}

func TestSubmit_AllowedPhases(t *testing.T) {
	phases := []struct {
		ws   models.WorkflowStatus
		want bool
	}{
		{models.WorkflowAssignedToMember, true},
		{models.WorkflowAssignedToSelfTodo, true},
		{models.WorkflowRejectedByOwner, true},
		{models.WorkflowOverdue, true},
		{models.WorkflowDueSoon, true},
		{models.WorkflowSubmittedForReview, false},
		{models.WorkflowApprovedCompleted, false},
	}
	for _, p := range phases {
		t.Run(string(p.ws), func(t *testing.T) {
			f := newFixture(t)
			task := f.create(t, f.member.ID, time.Now().Add(10*24*time.Hour))
			stored := f.store.byID[task.ID]
			stored.WorkflowStatus = p.ws
			f.store.byID[task.ID] = stored

			_, err := f.svc.Submit(context.Background(), f.member, task.ID)
			if p.want && err != nil {
				t.Fatalf("expected submit to succeed, got %v", err)
			}
			if !p.want {
				assertKind(t, err, apperr.ErrInvalidTransition)
			}
		})
	}
}

func TestSubmit_AssigneeOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))

	_, err := f.svc.Submit(ctx, f.owner, task.ID)
	assertKind(t, err, apperr.ErrAccessDenied)
	_, err = f.svc.Submit(ctx, f.outsider, task.ID)
	assertKind(t, err, apperr.ErrAccessDenied)
}

func TestSubmit_OrphanedAssignee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))

	f.removeMember()

	_, err := f.svc.Submit(ctx, f.member, task.ID)
	assertKind(t, err, apperr.ErrAccessDenied)

	// The owner can still manage the task.
	if _, err := f.svc.Get(ctx, f.owner, task.ID); err != nil {
		t.Errorf("owner Get on orphaned task: %v", err)
	}
}

func TestApproveAndReject_OnlyFromSubmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))

	_, err := f.svc.Approve(ctx, f.owner, task.ID)
	assertKind(t, err, apperr.ErrInvalidTransition)
	_, err = f.svc.Reject(ctx, f.owner, task.ID, "nope")
	assertKind(t, err, apperr.ErrInvalidTransition)
}

func TestApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))
	if _, err := f.svc.Submit(ctx, f.member, task.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	_, err := f.svc.Approve(ctx, f.member, task.ID)
	assertKind(t, err, apperr.ErrAccessDenied)

	approved, err := f.svc.Approve(ctx, f.owner, task.ID)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if approved.Status != models.StatusDone || approved.WorkflowStatus != models.WorkflowApprovedCompleted {
		t.Errorf("after approve: got %s/%s", approved.Status, approved.WorkflowStatus)
	}
	assertInvariant(t, approved)
	if n := f.events.notesOfType(models.NotifyTaskApproved); len(n) != 1 || n[0].Recipient != f.member.ID {
		t.Errorf("expected task_approved to the member, got %+v", n)
	}
	last, _ := approved.LastComment()
	if last.Kind != models.CommentUpdateLog {
		t.Errorf("expected an update_log comment, got %q", last.Kind)
	}
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))
	if _, err := f.svc.Submit(ctx, f.member, task.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	before, _ := f.store.GetByID(ctx, task.ID)
	_, err := f.svc.Reject(ctx, f.owner, task.ID, "   ")
	assertKind(t, err, apperr.ErrValidation)
	unchanged, _ := f.store.GetByID(ctx, task.ID)
	if len(unchanged.Comments) != len(before.Comments) || unchanged.WorkflowStatus != models.WorkflowSubmittedForReview {
		t.Fatal("failed reject must not change the task")
	}

	rejected, err := f.svc.Reject(ctx, f.owner, task.ID, "needs tests")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != models.StatusInProgress || rejected.WorkflowStatus != models.WorkflowRejectedByOwner {
		t.Errorf("after reject: got %s/%s, want InProgress/rejected_by_owner", rejected.Status, rejected.WorkflowStatus)
	}
	if got := len(rejected.Comments) - len(before.Comments); got != 1 {
		t.Errorf("expected exactly one new comment, got %d", got)
	}
	if countKind(rejected, models.CommentRejection) != 1 {
		t.Errorf("expected one rejection comment, got %d", countKind(rejected, models.CommentRejection))
	}
	last, _ := rejected.LastComment()
	if !strings.HasSuffix(last.Text, "needs tests") || last.Author != f.owner.ID {
		t.Errorf("last comment: %+v", last)
	}

	// Rejected work can be resubmitted.
	if _, err := f.svc.Submit(ctx, f.member, task.ID); err != nil {
		t.Errorf("resubmit after reject: %v", err)
	}
}

func TestReject_SelfAssignedGoesBackToToDo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.owner.ID, time.Now().Add(24*time.Hour))
	if _, err := f.svc.Submit(ctx, f.owner, task.ID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	rejected, err := f.svc.Reject(ctx, f.owner, task.ID, "redo")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != models.StatusToDo {
		t.Errorf("status: got %s, want ToDo", rejected.Status)
	}
}

func TestComplete_OnlySelfAssigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))

	_, err := f.svc.Complete(ctx, f.owner, task.ID)
	assertKind(t, err, apperr.ErrInvalidTransition)

	self := f.create(t, f.owner.ID, time.Now().Add(24*time.Hour))
	_, err = f.svc.Complete(ctx, f.member, self.ID)
	assertKind(t, err, apperr.ErrAccessDenied)
}

func TestUpdate_StatusInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))

	done := models.StatusDone
	edited, err := f.svc.Update(ctx, f.owner, task.ID, tasks.UpdateInput{Status: &done})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if edited.WorkflowStatus != models.WorkflowApprovedCompleted {
		t.Errorf("status Done must force approved_completed, got %q", edited.WorkflowStatus)
	}
	assertInvariant(t, edited)

	back := models.StatusInProgress
	reopened, err := f.svc.Update(ctx, f.owner, task.ID, tasks.UpdateInput{Status: &back})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if reopened.WorkflowStatus != models.WorkflowAssignedToMember {
		t.Errorf("leaving Done: got %q, want assigned_to_member", reopened.WorkflowStatus)
	}
	assertInvariant(t, reopened)
}

func TestUpdate_Reassign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.owner.ID, time.Now().Add(24*time.Hour))

	outsider := f.outsider.ID
	_, err := f.svc.Update(ctx, f.owner, task.ID, tasks.UpdateInput{Assignee: &outsider})
	assertKind(t, err, apperr.ErrValidation)

	member := f.member.ID
	edited, err := f.svc.Update(ctx, f.owner, task.ID, tasks.UpdateInput{Assignee: &member})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if edited.WorkflowStatus != models.WorkflowAssignedToMember {
		t.Errorf("phase after reassign: got %q", edited.WorkflowStatus)
	}
	if n := f.events.notesOfType(models.NotifyTaskAssigned); len(n) != 1 || n[0].Recipient != f.member.ID {
		t.Errorf("expected task_assigned to the new assignee, got %+v", n)
	}
	if countKind(edited, models.CommentUpdateLog) != 1 {
		t.Errorf("expected one update_log comment, got %d", countKind(edited, models.CommentUpdateLog))
	}
}

func TestUpdate_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))
	title := "Hijacked"
	_, err := f.svc.Update(context.Background(), f.member, task.ID, tasks.UpdateInput{Title: &title})
	assertKind(t, err, apperr.ErrAccessDenied)
}

func TestUpdate_VersionConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))

	stale := task.Version
	title := "Renamed"
	if _, err := f.svc.Update(ctx, f.owner, task.ID, tasks.UpdateInput{Title: &title}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	other := "Renamed again"
	_, err := f.svc.Update(ctx, f.owner, task.ID, tasks.UpdateInput{Title: &other, Version: &stale})
	assertKind(t, err, apperr.ErrConflict)
}

func TestUpdate_NoChangeIsNoWrite(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))
	same := task.Title
	got, err := f.svc.Update(context.Background(), f.owner, task.ID, tasks.UpdateInput{Title: &same})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Version != task.Version {
		t.Errorf("no-op edit bumped version %d -> %d", task.Version, got.Version)
	}
}

// concurrentStore lets another writer land between the service's read and write.
type concurrentStore struct {
	*memTasks
}

func (c concurrentStore) Update(ctx context.Context, t models.Task) (models.Task, error) {
	c.touch(t.ID)
	return c.memTasks.Update(ctx, t)
}

func TestTransition_ConcurrentWriteConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))

	svc := tasks.NewService(concurrentStore{f.store}, projectpolicy.NewResolver(f.projects), f.events, nil, zap.NewNop())
	_, err := svc.Submit(ctx, f.member, task.ID)
	assertKind(t, err, apperr.ErrConflict)
}

func TestComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))

	got, err := f.svc.Comment(ctx, f.member, task.ID, "On it")
	if err != nil {
		t.Fatalf("Comment failed: %v", err)
	}
	last, _ := got.LastComment()
	if last.Kind != models.CommentGeneral || last.Text != "On it" || last.AuthorName != f.member.Name {
		t.Errorf("last comment: %+v", last)
	}

	_, err = f.svc.Comment(ctx, f.member, task.ID, "  ")
	assertKind(t, err, apperr.ErrValidation)
	_, err = f.svc.Comment(ctx, f.outsider, task.ID, "hello")
	assertKind(t, err, apperr.ErrAccessDenied)
}

func TestListAndGet_ParticipantsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))

	list, err := f.svc.ListByProject(ctx, f.member, f.project.ID)
	if err != nil {
		t.Fatalf("ListByProject failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != task.ID {
		t.Errorf("unexpected list: %+v", list)
	}
	_, err = f.svc.ListByProject(ctx, f.outsider, f.project.ID)
	assertKind(t, err, apperr.ErrAccessDenied)
	_, err = f.svc.Get(ctx, f.outsider, task.ID)
	assertKind(t, err, apperr.ErrAccessDenied)
	_, err = f.svc.Get(ctx, f.owner, primitive.NewObjectID())
	assertKind(t, err, apperr.ErrNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))

	assertKind(t, f.svc.Delete(ctx, f.member, task.ID), apperr.ErrAccessDenied)

	if err := f.svc.Delete(ctx, f.owner, task.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	_, err := f.svc.Get(ctx, f.owner, task.ID)
	assertKind(t, err, apperr.ErrNotFound)

	if n := f.events.notesOfType(models.NotifyTaskDeleted); len(n) != 1 || n[0].Recipient != f.member.ID {
		t.Errorf("expected task_deleted to the member, got %+v", n)
	}
	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	if last := f.events.pushes[len(f.events.pushes)-1]; last != realtime.EventTaskDeleted {
		t.Errorf("expected final push taskDeleted, got %q", last)
	}
}

func TestInvariantHoldsAcrossFlows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.member.ID, time.Now().Add(24*time.Hour))

	steps := []func() (models.Task, error){
		func() (models.Task, error) { return f.svc.Submit(ctx, f.member, task.ID) },
		func() (models.Task, error) { return f.svc.Reject(ctx, f.owner, task.ID, "again") },
		func() (models.Task, error) { return f.svc.Submit(ctx, f.member, task.ID) },
		func() (models.Task, error) { return f.svc.Approve(ctx, f.owner, task.ID) },
	}
	for i, step := range steps {
		got, err := step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		assertInvariant(t, got)
	}
}

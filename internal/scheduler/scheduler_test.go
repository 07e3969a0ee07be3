package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/engram/internal/classify"
	"github.com/kalambet/engram/internal/storage"
	"github.com/kalambet/engram/internal/workflow"
)

const adminJSON = `{"type": "ADMIN", "title": "Filed task", "confidence": 0.9, "adminData": {"urgency": "low"}}`

type stubProvider struct {
	generateFn func(ctx context.Context, prompt string) (string, error)
	calls      int
}

func (s *stubProvider) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.generateFn != nil {
		return s.generateFn(ctx, prompt)
	}
	if strings.Contains(prompt, "classification engine") {
		return adminJSON, nil
	}
	return NoNudgeSentinel, nil
}

func (s *stubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.5, 0.5}, nil
}

type fixture struct {
	store    *storage.Store
	provider *stubProvider
	now      time.Time
	sched    *Scheduler
}

// newFixture builds a scheduler over an in-memory store with a frozen
// clock. Tests mutate f.now to move time.
func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &fixture{store: store, provider: &stubProvider{}, now: time.Now().UTC()}
	opts.Now = func() time.Time { return f.now }
	if opts.SweepEvery == 0 {
		opts.SweepEvery = 1
	}

	ex := workflow.NewExecutor(store, f.provider, time.Second, nil)
	en := workflow.NewEngine(store, classify.New(f.provider, time.Second), ex, nil, nil)
	f.sched = New(store, en, ex, f.provider, opts)
	return f
}

func (f *fixture) countSource(t *testing.T, source string) int {
	t.Helper()
	items, err := f.store.ListInboxItems("", 100, 0)
	if err != nil {
		t.Fatalf("ListInboxItems: %v", err)
	}
	n := 0
	for _, item := range items {
		if item.Source == source {
			n++
		}
	}
	return n
}

func (f *fixture) workflowByID(t *testing.T, id string) storage.Workflow {
	t.Helper()
	workflows, err := f.store.ListWorkflows()
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	for _, wf := range workflows {
		if wf.ID == id {
			return wf
		}
	}
	t.Fatalf("workflow %s not found", id)
	return storage.Workflow{}
}

func (f *fixture) auditCount(t *testing.T, action string) int {
	t.Helper()
	counts, err := f.store.CountAuditByAction()
	if err != nil {
		t.Fatalf("CountAuditByAction: %v", err)
	}
	return counts[action]
}

func TestRunOnceProcessesPendingBatch(t *testing.T) {
	f := newFixture(t, Options{SweepEvery: 100})

	item := storage.InboxItem{ID: "i1", Content: "renew the domain", Source: "cli", Status: storage.InboxPending, UserID: "u1"}
	if err := f.store.CreateInboxItem(item); err != nil {
		t.Fatalf("CreateInboxItem: %v", err)
	}

	f.sched.RunOnce(context.Background())

	got, err := f.store.GetInboxItem("i1")
	if err != nil {
		t.Fatalf("GetInboxItem: %v", err)
	}
	if got.Status != storage.InboxCompleted {
		t.Errorf("status = %s, want COMPLETED", got.Status)
	}
}

func TestSweepsRunEveryNthTick(t *testing.T) {
	f := newFixture(t, Options{SweepEvery: 3})

	ev := storage.CalendarEvent{ID: "ev1", Title: "Dentist", ScheduledAt: f.now.Add(-time.Hour), UserID: "u1"}
	if err := f.store.CreateCalendarEvent(ev); err != nil {
		t.Fatalf("CreateCalendarEvent: %v", err)
	}

	ctx := context.Background()
	f.sched.RunOnce(ctx)
	f.sched.RunOnce(ctx)
	if n := f.countSource(t, storage.SourceCalendar); n != 0 {
		t.Fatalf("sweep ran before the third tick, %d calendar items", n)
	}

	f.sched.RunOnce(ctx)
	if n := f.countSource(t, storage.SourceCalendar); n != 1 {
		t.Errorf("calendar items after third tick = %d, want 1", n)
	}
}

func TestCalendarEventFiresExactlyOnce(t *testing.T) {
	f := newFixture(t, Options{SweepEvery: 1})

	ev := storage.CalendarEvent{ID: "ev1", Title: "Standup", Description: "weekly sync", ScheduledAt: f.now.Add(-time.Minute), UserID: "u1"}
	if err := f.store.CreateCalendarEvent(ev); err != nil {
		t.Fatalf("CreateCalendarEvent: %v", err)
	}

	ctx := context.Background()
	f.sched.RunOnce(ctx)
	f.sched.RunOnce(ctx)
	f.sched.RunOnce(ctx)

	if n := f.countSource(t, storage.SourceCalendar); n != 1 {
		t.Errorf("calendar items = %d, want exactly 1", n)
	}
	if n := f.auditCount(t, storage.AuditCalendarFired); n != 1 {
		t.Errorf("calendar audit entries = %d, want exactly 1", n)
	}
}

func TestCalendarEventNotDueYet(t *testing.T) {
	f := newFixture(t, Options{SweepEvery: 1})

	ev := storage.CalendarEvent{ID: "ev1", Title: "Future", ScheduledAt: f.now.Add(time.Hour), UserID: "u1"}
	if err := f.store.CreateCalendarEvent(ev); err != nil {
		t.Fatalf("CreateCalendarEvent: %v", err)
	}

	f.sched.RunOnce(context.Background())
	if n := f.countSource(t, storage.SourceCalendar); n != 0 {
		t.Errorf("future event fired early, %d items", n)
	}

	f.now = f.now.Add(2 * time.Hour)
	f.sched.RunOnce(context.Background())
	if n := f.countSource(t, storage.SourceCalendar); n != 1 {
		t.Errorf("event did not fire after its time, %d items", n)
	}
}

func TestScheduledWorkflowIntervalGate(t *testing.T) {
	f := newFixture(t, Options{SweepEvery: 1})

	recent := f.now.Add(-10 * time.Second)
	overdue := f.now.Add(-90 * time.Second)
	workflows := []storage.Workflow{
		{
			ID: "wf-due", Name: "due every minute", Trigger: storage.TriggerSchedule,
			ActionsJSON: `[{"type": "notify", "params": {"message": "minute passed"}}]`,
			Interval:    "minute", IsActive: true, LastRunAt: &overdue, UserID: "u1",
		},
		{
			ID: "wf-recent", Name: "ran just now", Trigger: storage.TriggerSchedule,
			ActionsJSON: `[{"type": "notify", "params": {"message": "too soon"}}]`,
			Interval:    "minute", IsActive: true, LastRunAt: &recent, UserID: "u1",
		},
	}
	for _, wf := range workflows {
		if err := f.store.CreateWorkflow(wf); err != nil {
			t.Fatalf("CreateWorkflow(%s): %v", wf.ID, err)
		}
	}

	f.sched.RunOnce(context.Background())

	items, err := f.store.ListInboxItems("", 100, 0)
	if err != nil {
		t.Fatalf("ListInboxItems: %v", err)
	}
	var ranDue, ranRecent bool
	for _, item := range items {
		if strings.Contains(item.Content, "minute passed") {
			ranDue = true
		}
		if strings.Contains(item.Content, "too soon") {
			ranRecent = true
		}
	}
	if !ranDue {
		t.Error("overdue workflow did not run")
	}
	if ranRecent {
		t.Error("recently-run workflow ran again inside its interval")
	}

	got := f.workflowByID(t, "wf-due")
	if got.LastRunAt == nil || !got.LastRunAt.Equal(f.now.Truncate(time.Second)) {
		t.Errorf("last run not updated: %v", got.LastRunAt)
	}
}

func TestScheduledWorkflowNeverRunIsDue(t *testing.T) {
	f := newFixture(t, Options{SweepEvery: 1})

	wf := storage.Workflow{
		ID: "wf1", Name: "weekly digest", Trigger: storage.TriggerSchedule,
		ActionsJSON: `[{"type": "notify", "params": {"message": "digest time"}}]`,
		Interval:    "week", IsActive: true, UserID: "u1",
	}
	if err := f.store.CreateWorkflow(wf); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	f.sched.RunOnce(context.Background())

	if n := f.auditCount(t, storage.AuditWorkflowExecuted); n != 1 {
		t.Errorf("executed audit = %d, want 1 for a never-run workflow", n)
	}
}

func TestScheduledWorkflowFailureIsAudited(t *testing.T) {
	f := newFixture(t, Options{SweepEvery: 1})
	f.provider.generateFn = func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "proactive coach") {
			return "", context.DeadlineExceeded
		}
		return NoNudgeSentinel, nil
	}

	wf := storage.Workflow{
		ID: "wf1", Name: "broken nudger", Trigger: storage.TriggerSchedule,
		ActionsJSON: `[{"type": "ai_nudge"}]`,
		Interval:    "minute", IsActive: true, UserID: "u1",
	}
	if err := f.store.CreateWorkflow(wf); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	f.sched.RunOnce(context.Background())

	if n := f.auditCount(t, storage.AuditWorkflowFailed); n != 1 {
		t.Errorf("failed audit = %d, want 1", n)
	}

	got := f.workflowByID(t, "wf1")
	if got.LastRunAt != nil {
		t.Error("failed run must not advance last run time")
	}
}

func TestNudgeSweepRespectsNoNudge(t *testing.T) {
	f := newFixture(t, Options{SweepEvery: 1})

	project := &storage.Entity{
		ID: "p1", Title: "Website relaunch", Content: "relaunch",
		Type: storage.EntityProject, Status: "active", UserID: "u1",
		Project: &storage.ProjectMetadata{Goal: "ship v2", NextAction: "pick a theme"},
	}
	if err := f.store.CreateEntity(project); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	f.sched.RunOnce(context.Background())

	if n := f.countSource(t, storage.SourceAICoach); n != 0 {
		t.Errorf("NO_NUDGE answer still produced %d coach items", n)
	}
	if n := f.auditCount(t, storage.AuditNudgeGenerated); n != 0 {
		t.Errorf("NO_NUDGE answer still produced %d audit entries", n)
	}
}

func TestNudgeSweepWritesPendingItem(t *testing.T) {
	f := newFixture(t, Options{SweepEvery: 1})
	f.provider.generateFn = func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "has not been nudged recently") {
			return "Pick the theme today so the relaunch stops slipping.", nil
		}
		return adminJSON, nil
	}

	project := &storage.Entity{
		ID: "p1", Title: "Website relaunch", Content: "relaunch",
		Type: storage.EntityProject, Status: "active", UserID: "u1",
	}
	if err := f.store.CreateEntity(project); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	f.sched.RunOnce(context.Background())

	items, err := f.store.ListInboxItems(storage.InboxPending, 100, 0)
	if err != nil {
		t.Fatalf("ListInboxItems: %v", err)
	}
	var nudge *storage.InboxItem
	for i := range items {
		if items[i].Source == storage.SourceAICoach {
			nudge = &items[i]
		}
	}
	if nudge == nil {
		t.Fatal("nudge item not written as PENDING")
	}
	if !strings.HasPrefix(nudge.Content, "Website relaunch: ") {
		t.Errorf("nudge content = %q", nudge.Content)
	}
	if n := f.auditCount(t, storage.AuditNudgeGenerated); n != 1 {
		t.Errorf("nudge audit = %d, want 1", n)
	}
}

func TestNudgeSweepBoundsProviderCall(t *testing.T) {
	f := newFixture(t, Options{SweepEvery: 1, CallTimeout: 5 * time.Second})

	var sawDeadline bool
	f.provider.generateFn = func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "has not been nudged recently") {
			_, sawDeadline = ctx.Deadline()
		}
		return NoNudgeSentinel, nil
	}

	project := &storage.Entity{
		ID: "p1", Title: "Website relaunch", Content: "relaunch",
		Type: storage.EntityProject, Status: "active", UserID: "u1",
	}
	if err := f.store.CreateEntity(project); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}

	f.sched.RunOnce(context.Background())

	if !sawDeadline {
		t.Error("nudge provider call ran without a deadline")
	}
}

func TestNudgeSweepSuppressedByRecentMention(t *testing.T) {
	f := newFixture(t, Options{SweepEvery: 1})

	project := &storage.Entity{
		ID: "p1", Title: "Website relaunch", Content: "relaunch",
		Type: storage.EntityProject, Status: "active", UserID: "u1",
	}
	if err := f.store.CreateEntity(project); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	recent := storage.InboxItem{
		ID: "coach1", Content: "Website relaunch: already nudged",
		Source: storage.SourceAICoach, Status: storage.InboxCompleted, UserID: "u1",
	}
	if err := f.store.CreateInboxItem(recent); err != nil {
		t.Fatalf("CreateInboxItem: %v", err)
	}

	f.sched.RunOnce(context.Background())

	if f.provider.calls != 0 {
		t.Errorf("provider called %d times for a recently-nudged project", f.provider.calls)
	}
}

func TestSweepIdempotentWhenNothingDue(t *testing.T) {
	f := newFixture(t, Options{SweepEvery: 1})

	ctx := context.Background()
	f.sched.RunOnce(ctx)
	f.sched.RunOnce(ctx)

	items, err := f.store.ListInboxItems("", 100, 0)
	if err != nil {
		t.Fatalf("ListInboxItems: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("empty sweeps wrote %d items", len(items))
	}
	counts, err := f.store.CountAuditByAction()
	if err != nil {
		t.Fatalf("CountAuditByAction: %v", err)
	}
	if len(counts) != 0 {
		t.Errorf("empty sweeps wrote audit entries: %v", counts)
	}
}

func TestIntervalDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"minute", time.Minute},
		{"hour", time.Hour},
		{"day", 24 * time.Hour},
		{"week", 7 * 24 * time.Hour},
		{"HOUR", time.Hour},
		{" day ", 24 * time.Hour},
		{"fortnight", 24 * time.Hour},
		{"", 24 * time.Hour},
	}
	for _, c := range cases {
		if got := IntervalDuration(c.in); got != c.want {
			t.Errorf("IntervalDuration(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

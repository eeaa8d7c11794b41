package scheduler_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"taskpilot/internal/db"
	"taskpilot/internal/migrate"
	"taskpilot/internal/repo"
	"taskpilot/internal/scheduler"
)

type sent struct {
	chatID int64
	text   string
}

type recorder struct {
	msgs []sent
}

func (r *recorder) Send(chatID int64, text string) error {
	r.msgs = append(r.msgs, sent{chatID, text})
	return nil
}

var testNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) (repo.Repo, *recorder, *scheduler.Scheduler, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	r := repo.Repo{DB: conn, Now: func() time.Time { return testNow }}
	rec := &recorder{}
	s := scheduler.New(r, rec, log)
	s.Now = func() time.Time { return testNow }
	return r, rec, s, context.Background()
}

func seedTask(t *testing.T, r repo.Repo, ctx context.Context, desc string, deadline time.Time) int64 {
	t.Helper()
	p, err := r.CreateProject(ctx, "Alpha", 100)
	if err != nil {
		t.Fatal(err)
	}
	m, err := r.UpsertMembership(ctx, 200, p.ID, "Bea", "Dev")
	if err != nil {
		t.Fatal(err)
	}
	task, err := r.CreateTask(ctx, p.ID, desc, deadline, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	return task.ID
}

func TestSweepRemindsAssignee(t *testing.T) {
	r, rec, s, ctx := newFixture(t)
	seedTask(t, r, ctx, "ship it", testNow.Add(5*time.Hour))

	s.Sweep(ctx)
	if len(rec.msgs) != 1 {
		t.Fatalf("sent = %+v, want one reminder", rec.msgs)
	}
	if rec.msgs[0].chatID != 200 || !strings.Contains(rec.msgs[0].text, "ship it") {
		t.Fatalf("reminder = %+v", rec.msgs[0])
	}
	if !strings.Contains(rec.msgs[0].text, "5h") {
		t.Fatalf("reminder text lacks remaining time: %q", rec.msgs[0].text)
	}
}

func TestSweepEscalatesNearDeadline(t *testing.T) {
	r, rec, s, ctx := newFixture(t)
	seedTask(t, r, ctx, "ship it", testNow.Add(2*time.Hour))

	s.Sweep(ctx)
	if len(rec.msgs) != 2 {
		t.Fatalf("sent = %+v, want reminder plus escalation", rec.msgs)
	}
	if rec.msgs[0].chatID != 200 {
		t.Fatalf("first message to %d, want assignee", rec.msgs[0].chatID)
	}
	if rec.msgs[1].chatID != 100 || !strings.Contains(rec.msgs[1].text, "Bea") {
		t.Fatalf("escalation = %+v", rec.msgs[1])
	}
}

func TestSweepDoesNotEscalateJustOverThreshold(t *testing.T) {
	r, rec, s, ctx := newFixture(t)
	seedTask(t, r, ctx, "ship it", testNow.Add(2*time.Hour+time.Minute))

	s.Sweep(ctx)
	if len(rec.msgs) != 1 || rec.msgs[0].chatID != 200 {
		t.Fatalf("sent = %+v, want only the assignee reminder", rec.msgs)
	}
}

func TestRepeatedSweepsRemindAgain(t *testing.T) {
	r, rec, s, ctx := newFixture(t)
	seedTask(t, r, ctx, "ship it", testNow.Add(5*time.Hour))

	s.Sweep(ctx)
	s.Sweep(ctx)
	if len(rec.msgs) != 2 {
		t.Fatalf("sent = %d messages, want a reminder per sweep", len(rec.msgs))
	}
}

func TestDeduperSuppressesRepeats(t *testing.T) {
	r, rec, s, ctx := newFixture(t)
	s.Dedup = scheduler.NewDeduper()
	seedTask(t, r, ctx, "ship it", testNow.Add(2*time.Hour))

	s.Sweep(ctx)
	s.Sweep(ctx)
	if len(rec.msgs) != 2 {
		t.Fatalf("sent = %+v, want one reminder and one escalation total", rec.msgs)
	}
}

func TestCompletedTasksAreSkipped(t *testing.T) {
	r, rec, s, ctx := newFixture(t)
	id := seedTask(t, r, ctx, "ship it", testNow.Add(5*time.Hour))
	if err := r.SetTaskStatus(ctx, id, "completed"); err != nil {
		t.Fatal(err)
	}

	s.Sweep(ctx)
	if len(rec.msgs) != 0 {
		t.Fatalf("sent = %+v, want nothing for a completed task", rec.msgs)
	}
}

func TestManagerAssigneeGetsNoSelfEscalation(t *testing.T) {
	r, rec, s, ctx := newFixture(t)
	p, err := r.CreateProject(ctx, "Alpha", 100)
	if err != nil {
		t.Fatal(err)
	}
	m, err := r.UpsertMembership(ctx, 100, p.ID, "Mia", "Manager")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateTask(ctx, p.ID, "solo work", testNow.Add(time.Hour), m.ID); err != nil {
		t.Fatal(err)
	}

	s.Sweep(ctx)
	if len(rec.msgs) != 1 || rec.msgs[0].chatID != 100 {
		t.Fatalf("sent = %+v, want a single reminder", rec.msgs)
	}
}

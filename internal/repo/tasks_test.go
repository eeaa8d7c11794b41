package repo_test

import (
	"testing"
	"time"

	"taskpilot/internal/domain"
)

func TestTasksDueBetweenWindow(t *testing.T) {
	r, ctx := newTestRepo(t)
	p, err := r.CreateProject(ctx, "Alpha", 100)
	if err != nil {
		t.Fatal(err)
	}
	m, err := r.UpsertMembership(ctx, 200, p.ID, "Bea", "Dev")
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	mk := func(desc string, deadline time.Time) domain.Task {
		t.Helper()
		task, err := r.CreateTask(ctx, p.ID, desc, deadline, m.ID)
		if err != nil {
			t.Fatalf("create %s: %v", desc, err)
		}
		return task
	}
	mk("past", now.Add(-time.Hour))
	inside := mk("inside", now.Add(3*time.Hour))
	boundary := mk("boundary", now.Add(24*time.Hour))
	mk("beyond", now.Add(24*time.Hour+time.Second))
	done := mk("done", now.Add(2*time.Hour))
	if err := r.SetTaskStatus(ctx, done.ID, domain.TaskStatusCompleted); err != nil {
		t.Fatal(err)
	}

	due, err := r.TasksDueBetween(ctx, now, now.Add(24*time.Hour), domain.TaskStatusCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 {
		t.Fatalf("due = %d tasks, want 2", len(due))
	}
	// Ordered by deadline; the window end is inclusive.
	if due[0].Task.ID != inside.ID || due[1].Task.ID != boundary.ID {
		t.Fatalf("due ids = %d,%d want %d,%d", due[0].Task.ID, due[1].Task.ID, inside.ID, boundary.ID)
	}
	if due[0].AssigneeChatID != 200 || due[0].ManagerChatID != 100 || due[0].ProjectName != "Alpha" {
		t.Fatalf("contact join mismatch: %+v", due[0])
	}
}

func TestActiveTasksForMembershipSkipsCompleted(t *testing.T) {
	r, ctx := newTestRepo(t)
	p, _ := r.CreateProject(ctx, "Alpha", 100)
	m, _ := r.UpsertMembership(ctx, 200, p.ID, "Bea", "Dev")
	deadline := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)

	open, err := r.CreateTask(ctx, p.ID, "open", deadline, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	closed, err := r.CreateTask(ctx, p.ID, "closed", deadline.Add(time.Hour), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.SetTaskStatus(ctx, closed.ID, domain.TaskStatusCompleted); err != nil {
		t.Fatal(err)
	}

	tasks, err := r.ActiveTasksForMembership(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].ID != open.ID {
		t.Fatalf("active tasks = %+v, want only #%d", tasks, open.ID)
	}
}

func TestStatusReportGroups(t *testing.T) {
	r, ctx := newTestRepo(t)
	p, _ := r.CreateProject(ctx, "Alpha", 100)
	dev, _ := r.UpsertMembership(ctx, 200, p.ID, "Bea", "Dev")
	qa, _ := r.UpsertMembership(ctx, 201, p.ID, "Carl", "QA")
	deadline := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if _, err := r.CreateTask(ctx, p.ID, "dev work", deadline, dev.ID); err != nil {
			t.Fatal(err)
		}
	}
	done, err := r.CreateTask(ctx, p.ID, "qa work", deadline, qa.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.SetTaskStatus(ctx, done.ID, domain.TaskStatusCompleted); err != nil {
		t.Fatal(err)
	}

	rows, err := r.StatusReport(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	counts := map[string]int{}
	for _, row := range rows {
		counts[row.MemberName+"/"+row.Status] = row.Count
	}
	if counts["Bea/pending"] != 2 {
		t.Fatalf("Bea pending = %d, want 2", counts["Bea/pending"])
	}
	if counts["Carl/completed"] != 1 {
		t.Fatalf("Carl completed = %d, want 1", counts["Carl/completed"])
	}
}

package engine_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"taskpilot/internal/assign"
	"taskpilot/internal/db"
	"taskpilot/internal/domain"
	"taskpilot/internal/engine"
	"taskpilot/internal/events"
	"taskpilot/internal/migrate"
	"taskpilot/internal/repo"
	"taskpilot/internal/session"
)

const (
	managerID = int64(100)
	memberID  = int64(200)
	thirdID   = int64(300)
)

type stubRecommender struct {
	role string
	err  error
}

func (s stubRecommender) SuggestRole(ctx context.Context, description string, roles []string) (string, error) {
	return s.role, s.err
}

type testEnv struct {
	Engine *engine.Engine
	Repo   repo.Repo
	Ctx    context.Context
}

func newTestEnv(t *testing.T, rec stubRecommender) testEnv {
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
	now := func() time.Time { return time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC) }
	r := repo.Repo{DB: conn, Now: now}
	resolver := assign.New(r, rec, log)
	resolver.Intn = func(n int) int { return 0 }
	eng := engine.New(r, session.NewStore(), resolver, events.Writer{DB: conn, Now: now}, log)
	eng.Now = now
	return testEnv{Engine: eng, Repo: r, Ctx: context.Background()}
}

func (env testEnv) command(userID int64, name, cmd string) []engine.Message {
	return env.Engine.HandleEvent(env.Ctx, engine.Event{
		UserID: userID, ChatID: userID, DisplayName: name,
		Kind: engine.KindCommand, Command: cmd,
	})
}

func (env testEnv) text(userID int64, name, text string) []engine.Message {
	return env.Engine.HandleEvent(env.Ctx, engine.Event{
		UserID: userID, ChatID: userID, DisplayName: name,
		Kind: engine.KindText, Text: text,
	})
}

func (env testEnv) callback(t *testing.T, userID int64, name, token string) []engine.Message {
	t.Helper()
	cb, err := engine.ParseCallback(token)
	if err != nil {
		t.Fatalf("parse callback %q: %v", token, err)
	}
	return env.Engine.HandleEvent(env.Ctx, engine.Event{
		UserID: userID, ChatID: userID, DisplayName: name,
		Kind: engine.KindCallback, Callback: cb,
	})
}

func wantText(t *testing.T, msgs []engine.Message, substr string) {
	t.Helper()
	for _, m := range msgs {
		if strings.Contains(m.Text, substr) {
			return
		}
	}
	t.Fatalf("no message containing %q in %+v", substr, msgs)
}

// setupProject runs the full creation flow for the manager and joins the
// member through registration.
func setupProject(t *testing.T, env testEnv) domain.Project {
	t.Helper()
	env.command(managerID, "Mia", "create")
	env.text(managerID, "Mia", "Alpha")
	msgs := env.text(managerID, "Mia", "Dev, QA")
	wantText(t, msgs, "Project code")

	projects, err := env.Repo.ListProjects(env.Ctx)
	if err != nil || len(projects) != 1 {
		t.Fatalf("projects = %v, err = %v", projects, err)
	}
	p := projects[0]

	env.command(memberID, "Bea", "start")
	env.text(memberID, "Bea", "Bea")
	env.text(memberID, "Bea", p.Code)
	msgs = env.callback(t, memberID, "Bea", "role:Dev")
	wantText(t, msgs, "You're in!")
	return p
}

func TestFullTaskLifecycle(t *testing.T) {
	env := newTestEnv(t, stubRecommender{role: "Dev"})
	p := setupProject(t, env)

	env.callback(t, managerID, "Mia", "new_task")
	env.text(managerID, "Mia", "Fix crash in login")
	msgs := env.text(managerID, "Mia", "31.12.2026 15:00")
	wantText(t, msgs, "assigned to Bea")

	// The assignee is told immediately in their own chat.
	var notified bool
	for _, m := range msgs {
		if m.ChatID == memberID && strings.Contains(m.Text, "Fix crash in login") {
			notified = true
		}
	}
	if !notified {
		t.Fatalf("assignee was not notified: %+v", msgs)
	}

	tasks, err := env.Repo.ProjectTasks(env.Ctx, p.ID)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("tasks = %v, err = %v", tasks, err)
	}
	task := tasks[0]
	if task.Status != domain.TaskStatusPending {
		t.Fatalf("status = %s", task.Status)
	}

	msgs = env.callback(t, memberID, "Bea", "complete:1")
	wantText(t, msgs, "done")
	got, err := env.Repo.GetTask(env.Ctx, task.ID)
	if err != nil || got.Status != domain.TaskStatusCompleted {
		t.Fatalf("task after completion = %+v, err = %v", got, err)
	}
}

func TestCompletionScopedToTaskProject(t *testing.T) {
	env := newTestEnv(t, stubRecommender{role: "Dev"})
	setupProject(t, env)

	env.callback(t, managerID, "Mia", "new_task")
	env.text(managerID, "Mia", "Harden the backup job")
	env.text(managerID, "Mia", "31.12.2026 15:00")

	// Zoe manages an unrelated project and has no standing in Alpha.
	env.command(thirdID, "Zoe", "create")
	env.text(thirdID, "Zoe", "Beta")
	msgs := env.text(thirdID, "Zoe", "Ops")
	wantText(t, msgs, "Project code")

	msgs = env.callback(t, thirdID, "Zoe", "complete:1")
	wantText(t, msgs, "Only the project manager")
	task, err := env.Repo.GetTask(env.Ctx, 1)
	if err != nil || task.Status != domain.TaskStatusPending {
		t.Fatalf("task after foreign completion attempt = %+v, err = %v", task, err)
	}

	// The assignee and the owning manager are unaffected by the scoping.
	msgs = env.callback(t, memberID, "Bea", "complete:1")
	wantText(t, msgs, "done")
	got, err := env.Repo.GetTask(env.Ctx, 1)
	if err != nil || got.Status != domain.TaskStatusCompleted {
		t.Fatalf("task after assignee completion = %+v, err = %v", got, err)
	}
}

func TestManualChoiceWhenRecommenderFails(t *testing.T) {
	env := newTestEnv(t, stubRecommender{err: errors.New("connection refused")})
	p := setupProject(t, env)
	if _, err := env.Repo.UpsertMembership(env.Ctx, thirdID, p.ID, "Carl", "QA"); err != nil {
		t.Fatal(err)
	}

	env.callback(t, managerID, "Mia", "new_task")
	env.text(managerID, "Mia", "Investigate flaky pipeline")
	msgs := env.text(managerID, "Mia", "31.12.2026 15:00")
	wantText(t, msgs, "Choose one")

	var kb *engine.Keyboard
	for _, m := range msgs {
		if m.Keyboard != nil && m.Keyboard.Inline {
			kb = m.Keyboard
		}
	}
	if kb == nil || len(kb.Rows) != 3 {
		t.Fatalf("candidate keyboard = %+v, want all 3 members", kb)
	}

	member, err := env.Repo.GetMembershipByUser(env.Ctx, thirdID, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	msgs = env.callback(t, managerID, "Mia", engine.Callback{Action: engine.ActionAssignTask, ID: member.ID}.Token())
	wantText(t, msgs, "assigned to Carl")
}

func TestDeletionRequiresExactName(t *testing.T) {
	env := newTestEnv(t, stubRecommender{role: "Dev"})
	p := setupProject(t, env)

	env.command(managerID, "Mia", "delete")
	msgs := env.text(managerID, "Mia", "alpha")
	wantText(t, msgs, "cancelled")
	if _, err := env.Repo.GetProject(env.Ctx, p.ID); err != nil {
		t.Fatalf("project deleted on mismatched name: %v", err)
	}

	env.command(managerID, "Mia", "delete")
	msgs = env.text(managerID, "Mia", "Alpha")
	wantText(t, msgs, "deleted")
	if _, err := env.Repo.GetProject(env.Ctx, p.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("project survived confirmed deletion: %v", err)
	}
}

func TestDeadlineValidationReprompts(t *testing.T) {
	env := newTestEnv(t, stubRecommender{role: "Dev"})
	setupProject(t, env)

	env.callback(t, managerID, "Mia", "new_task")
	env.text(managerID, "Mia", "Some work")
	msgs := env.text(managerID, "Mia", "tomorrow")
	wantText(t, msgs, "valid date")
	msgs = env.text(managerID, "Mia", "01.01.2020 10:00")
	wantText(t, msgs, "future")
	// The workflow is still alive and accepts a good value.
	msgs = env.text(managerID, "Mia", "31.12.2026 15:00")
	wantText(t, msgs, "assigned to")
}

func TestManagerOnlySurfaces(t *testing.T) {
	env := newTestEnv(t, stubRecommender{role: "Dev"})
	setupProject(t, env)

	msgs := env.command(memberID, "Bea", "newtask")
	wantText(t, msgs, "Only the project manager")
	msgs = env.command(memberID, "Bea", "delete")
	wantText(t, msgs, "Only the project manager")
}

func TestCommandsEscapeWorkflows(t *testing.T) {
	env := newTestEnv(t, stubRecommender{role: "Dev"})
	p := setupProject(t, env)

	env.callback(t, managerID, "Mia", "new_task")
	env.text(managerID, "Mia", "half-finished description")
	msgs := env.command(managerID, "Mia", "cancel")
	wantText(t, msgs, "cancelled")

	// Nothing was written before the commit step.
	tasks, err := env.Repo.ProjectTasks(env.Ctx, p.ID)
	if err != nil || len(tasks) != 0 {
		t.Fatalf("tasks after cancel = %v, err = %v", tasks, err)
	}
}

func TestUnregisteredUserIsRoutedToRegistration(t *testing.T) {
	env := newTestEnv(t, stubRecommender{role: "Dev"})
	msgs := env.command(thirdID, "Zoe", "start")
	wantText(t, msgs, "enter your name")
	msgs = env.command(thirdID, "Zoe", "join")
	wantText(t, msgs, "register first")
}

func TestProjectSwitching(t *testing.T) {
	env := newTestEnv(t, stubRecommender{role: "Dev"})
	setupProject(t, env)

	// Manager starts a second project; creation makes it active.
	env.command(managerID, "Mia", "create")
	env.text(managerID, "Mia", "Beta")
	env.text(managerID, "Mia", "Ops")

	projects, err := env.Repo.ListProjects(env.Ctx)
	if err != nil || len(projects) != 2 {
		t.Fatalf("projects = %v, err = %v", projects, err)
	}
	active, err := env.Repo.GetActiveMembership(env.Ctx, managerID)
	if err != nil || active.ProjectID != projects[1].ID {
		t.Fatalf("active = %+v, err = %v", active, err)
	}

	msgs := env.callback(t, managerID, "Mia", engine.Callback{Action: engine.ActionSwitchProject, ID: projects[0].ID}.Token())
	wantText(t, msgs, "Active project is now")
	active, err = env.Repo.GetActiveMembership(env.Ctx, managerID)
	if err != nil || active.ProjectID != projects[0].ID {
		t.Fatalf("active after switch = %+v, err = %v", active, err)
	}
}

func TestTaskFeedbackFlow(t *testing.T) {
	env := newTestEnv(t, stubRecommender{role: "Dev"})
	p := setupProject(t, env)

	env.callback(t, managerID, "Mia", "new_task")
	env.text(managerID, "Mia", "Ship the release")
	env.text(managerID, "Mia", "31.12.2026 15:00")
	env.callback(t, memberID, "Bea", "complete:1")

	msgs := env.callback(t, memberID, "Bea", "rate:1")
	wantText(t, msgs, "Rate it 1 to 5")
	msgs = env.callback(t, memberID, "Bea", "rating:4")
	wantText(t, msgs, "comment")
	msgs = env.text(memberID, "Bea", "went smoothly")
	wantText(t, msgs, "feedback is saved")

	fb, err := env.Repo.ListTaskFeedback(env.Ctx, 1)
	if err != nil || len(fb) != 1 {
		t.Fatalf("feedback = %v, err = %v", fb, err)
	}
	if fb[0].Rating != 4 || fb[0].Comment != "went smoothly" {
		t.Fatalf("feedback row = %+v", fb[0])
	}
	_ = p
}

func TestBotFeedback(t *testing.T) {
	env := newTestEnv(t, stubRecommender{role: "Dev"})
	msgs := env.command(thirdID, "Zoe", "feedback")
	wantText(t, msgs, "what you think")
	msgs = env.text(thirdID, "Zoe", "love it")
	wantText(t, msgs, "Thanks")

	fb, err := env.Repo.ListBotFeedback(env.Ctx, 10)
	if err != nil || len(fb) != 1 || fb[0].Message != "love it" {
		t.Fatalf("bot feedback = %v, err = %v", fb, err)
	}
}

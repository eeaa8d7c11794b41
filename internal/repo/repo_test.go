package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskpilot/internal/db"
	"taskpilot/internal/migrate"
	"taskpilot/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn, Now: func() time.Time {
		return time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	}}
	return r, context.Background()
}

func TestCreateProjectGeneratesCode(t *testing.T) {
	r, ctx := newTestRepo(t)
	p, err := r.CreateProject(ctx, "Alpha", 100)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if len(p.Code) != 8 {
		t.Fatalf("code length = %d, want 8", len(p.Code))
	}
	for _, c := range p.Code {
		if !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			t.Fatalf("code %q contains %q", p.Code, c)
		}
	}
	got, err := r.GetProjectByCode(ctx, p.Code)
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if got.ID != p.ID || got.Name != "Alpha" || got.ManagerID != 100 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	other, err := r.CreateProject(ctx, "Beta", 101)
	if err != nil {
		t.Fatalf("second project: %v", err)
	}
	if other.Code == p.Code {
		t.Fatalf("duplicate join code %q", other.Code)
	}
}

func TestProjectRolesCatalog(t *testing.T) {
	r, ctx := newTestRepo(t)
	p, err := r.CreateProject(ctx, "Alpha", 100)
	if err != nil {
		t.Fatal(err)
	}
	for _, role := range []string{"Dev", "QA", "Dev"} {
		if err := r.AddProjectRole(ctx, p.ID, role); err != nil {
			t.Fatalf("add role %s: %v", role, err)
		}
	}
	roles, err := r.ProjectRoles(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 2 {
		t.Fatalf("roles = %v, want two distinct entries", roles)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	r, ctx := newTestRepo(t)
	p, err := r.CreateProject(ctx, "Alpha", 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.AddProjectRole(ctx, p.ID, "Dev"); err != nil {
		t.Fatal(err)
	}
	m, err := r.UpsertMembership(ctx, 200, p.ID, "Bea", "Dev")
	if err != nil {
		t.Fatal(err)
	}
	task, err := r.CreateTask(ctx, p.ID, "fix", time.Date(2026, 1, 11, 12, 0, 0, 0, time.UTC), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.AddTaskFeedback(ctx, task.ID, m.ID, 5, "smooth"); err != nil {
		t.Fatal(err)
	}

	if err := r.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if _, err := r.GetProject(ctx, p.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("project still present, err = %v", err)
	}
	if _, err := r.GetTask(ctx, task.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("task survived deletion, err = %v", err)
	}
	if _, err := r.GetMembership(ctx, m.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("membership survived deletion, err = %v", err)
	}
	if fb, err := r.ListTaskFeedback(ctx, task.ID); err != nil || len(fb) != 0 {
		t.Fatalf("task feedback survived deletion: %v %v", fb, err)
	}
	if err := r.DeleteProject(ctx, p.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

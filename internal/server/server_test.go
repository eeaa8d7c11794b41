package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskpilot/internal/db"
	"taskpilot/internal/events"
	"taskpilot/internal/migrate"
	"taskpilot/internal/repo"
	"taskpilot/internal/server"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*httptest.Server, repo.Repo) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	handler, err := server.New(server.Config{
		Repo:   r,
		Events: events.Writer{DB: conn},
		Auth:   server.AuthConfig{JWTSecret: testSecret},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, r
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops-user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthIsPublic(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := get(t, srv.URL+"/v0/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)
	if resp := get(t, srv.URL+"/v0/projects", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/v0/projects", signToken(t, "wrong-secret")); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", resp.StatusCode)
	}
}

func TestListProjects(t *testing.T) {
	srv, r := newTestServer(t)
	ctx := context.Background()
	p, err := r.CreateProject(ctx, "Alpha", 100)
	if err != nil {
		t.Fatal(err)
	}

	resp := get(t, srv.URL+"/v0/projects", signToken(t, testSecret))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var items []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != p.ID || items[0].Code != p.Code {
		t.Fatalf("items = %+v", items)
	}
}

func TestProjectReportAndNotFound(t *testing.T) {
	srv, r := newTestServer(t)
	ctx := context.Background()
	p, err := r.CreateProject(ctx, "Alpha", 100)
	if err != nil {
		t.Fatal(err)
	}
	m, err := r.UpsertMembership(ctx, 200, p.ID, "Bea", "Dev")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateTask(ctx, p.ID, "work", time.Now().Add(time.Hour), m.ID); err != nil {
		t.Fatal(err)
	}

	token := signToken(t, testSecret)
	resp := get(t, srv.URL+"/v0/projects/1/report", token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report status = %d", resp.StatusCode)
	}
	var rows []struct {
		MemberName string `json:"member_name"`
		Count      int    `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].MemberName != "Bea" || rows[0].Count != 1 {
		t.Fatalf("rows = %+v", rows)
	}

	if resp := get(t, srv.URL+"/v0/projects/999/report", token); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing project status = %d", resp.StatusCode)
	}
}

func TestDueTasksEndpoint(t *testing.T) {
	srv, r := newTestServer(t)
	ctx := context.Background()
	p, err := r.CreateProject(ctx, "Alpha", 100)
	if err != nil {
		t.Fatal(err)
	}
	m, err := r.UpsertMembership(ctx, 200, p.ID, "Bea", "Dev")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateTask(ctx, p.ID, "due soon", time.Now().Add(2*time.Hour), m.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := r.CreateTask(ctx, p.ID, "far away", time.Now().Add(72*time.Hour), m.ID); err != nil {
		t.Fatal(err)
	}

	resp := get(t, srv.URL+"/v0/tasks/due?window_hours=24", signToken(t, testSecret))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var items []struct {
		ProjectName string `json:"project_name"`
		Task        struct {
			Description string `json:"description"`
		} `json:"task"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Task.Description != "due soon" {
		t.Fatalf("items = %+v", items)
	}
}

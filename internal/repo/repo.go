package repo

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskpilot/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const codeLength = 8

// codeAttempts bounds collision retries on project code generation.
const codeAttempts = 10

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Repo) nowString() string {
	return r.now().UTC().Format(time.RFC3339)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// generateCode returns a random 8-character uppercase-alphanumeric join code.
func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// CreateProject inserts a project with a freshly generated join code,
// retrying generation on a code collision.
func (r Repo) CreateProject(ctx context.Context, name string, managerID int64) (domain.Project, error) {
	p := domain.Project{
		Name:      name,
		ManagerID: managerID,
		CreatedAt: r.nowString(),
	}
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return domain.Project{}, err
		}
		res, err := r.DB.ExecContext(ctx, `INSERT INTO projects(name,code,manager_id,created_at) VALUES (?,?,?,?)`,
			p.Name, code, p.ManagerID, p.CreatedAt)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return domain.Project{}, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return domain.Project{}, err
		}
		p.ID = id
		p.Code = code
		return p, nil
	}
	return domain.Project{}, fmt.Errorf("could not generate unique project code after %d attempts", codeAttempts)
}

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.ManagerID, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT id,name,code,manager_id,created_at FROM projects WHERE id=?`, id))
}

func (r Repo) GetProjectByCode(ctx context.Context, code string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT id,name,code,manager_id,created_at FROM projects WHERE code=?`, code))
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,code,manager_id,created_at FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Code, &p.ManagerID, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// AddProjectRole inserts a role into the project's catalog. Duplicate roles
// are ignored; a join never fails because a role was listed twice.
func (r Repo) AddProjectRole(ctx context.Context, projectID int64, roleName string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT OR IGNORE INTO project_roles(project_id,role_name) VALUES (?,?)`, projectID, roleName)
	return err
}

func (r Repo) ProjectRoles(ctx context.Context, projectID int64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT role_name FROM project_roles WHERE project_id=? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// DeleteProject removes a project and everything scoped to it in one
// transaction: tasks, role catalog, memberships, task feedback.
func (r Repo) DeleteProject(ctx context.Context, projectID int64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_feedback WHERE task_id IN (SELECT id FROM tasks WHERE project_id=?)`, projectID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE project_id=?`, projectID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_roles WHERE project_id=?`, projectID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE project_id=?`, projectID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

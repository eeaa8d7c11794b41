package repo

import (
	"context"
	"database/sql"
	"time"

	"taskpilot/internal/domain"
)

const taskCols = `id,project_id,description,deadline,assigned_to,status,created_at`

func scanTask(row *sql.Row) (domain.Task, error) {
	var t domain.Task
	err := row.Scan(&t.ID, &t.ProjectID, &t.Description, &t.Deadline, &t.AssignedTo, &t.Status, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) CreateTask(ctx context.Context, projectID int64, description string, deadline time.Time, assigneeMembershipID int64) (domain.Task, error) {
	t := domain.Task{
		ProjectID:   projectID,
		Description: description,
		Deadline:    deadline.UTC().Format(time.RFC3339),
		AssignedTo:  assigneeMembershipID,
		Status:      domain.TaskStatusPending,
		CreatedAt:   r.nowString(),
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO tasks(project_id,description,deadline,assigned_to,status,created_at) VALUES (?,?,?,?,?,?)`,
		t.ProjectID, t.Description, t.Deadline, t.AssignedTo, t.Status, t.CreatedAt)
	if err != nil {
		return domain.Task{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Task{}, err
	}
	t.ID = id
	return t, nil
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id))
}

func (r Repo) SetTaskStatus(ctx context.Context, taskID int64, status string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE tasks SET status=? WHERE id=?`, status, taskID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveTasksForMembership lists a member's not-yet-completed tasks, nearest
// deadline first.
func (r Repo) ActiveTasksForMembership(ctx context.Context, membershipID int64) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE assigned_to=? AND status != ? ORDER BY deadline`, membershipID, domain.TaskStatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Description, &t.Deadline, &t.AssignedTo, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) ProjectTasks(ctx context.Context, projectID int64) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE project_id=? ORDER BY deadline`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Description, &t.Deadline, &t.AssignedTo, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// TasksDueBetween returns tasks whose deadline falls in (windowStart,
// windowEnd], skipping tasks already at excludingStatus, joined with the
// contacts the scheduler notifies. RFC3339 UTC strings compare
// lexicographically, so the window is evaluated in SQL.
func (r Repo) TasksDueBetween(ctx context.Context, windowStart, windowEnd time.Time, excludingStatus string) ([]domain.DueTask, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT t.id, t.project_id, t.description, t.deadline, t.assigned_to, t.status, t.created_at,
		       p.name, m.telegram_id, m.display_name, p.manager_id
		FROM tasks t
		JOIN memberships m ON t.assigned_to = m.id
		JOIN projects p ON t.project_id = p.id
		WHERE t.status != ? AND t.deadline > ? AND t.deadline <= ?
		ORDER BY t.deadline`,
		excludingStatus,
		windowStart.UTC().Format(time.RFC3339),
		windowEnd.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DueTask
	for rows.Next() {
		var d domain.DueTask
		if err := rows.Scan(&d.Task.ID, &d.Task.ProjectID, &d.Task.Description, &d.Task.Deadline,
			&d.Task.AssignedTo, &d.Task.Status, &d.Task.CreatedAt,
			&d.ProjectName, &d.AssigneeChatID, &d.AssigneeName, &d.ManagerChatID); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// StatusReport aggregates task counts per member and status for one project.
func (r Repo) StatusReport(ctx context.Context, projectID int64) ([]domain.MemberReportRow, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT m.display_name, m.role, t.status, COUNT(*)
		FROM tasks t
		JOIN memberships m ON t.assigned_to = m.id
		WHERE t.project_id = ?
		GROUP BY m.display_name, m.role, t.status
		ORDER BY m.display_name, t.status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.MemberReportRow
	for rows.Next() {
		var row domain.MemberReportRow
		if err := rows.Scan(&row.MemberName, &row.Role, &row.Status, &row.Count); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

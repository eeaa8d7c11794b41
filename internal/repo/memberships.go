package repo

import (
	"context"
	"database/sql"

	"taskpilot/internal/domain"
)

const membershipCols = `id,telegram_id,project_id,display_name,role,active,joined_at`

func scanMembership(row *sql.Row) (domain.Membership, error) {
	var m domain.Membership
	err := row.Scan(&m.ID, &m.TelegramID, &m.ProjectID, &m.DisplayName, &m.Role, &m.Active, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

// UpsertMembership inserts a membership or returns the existing one
// unchanged. A duplicate join attempt, including one racing with another
// session, resolves to "already a member" rather than an error. New
// memberships start inactive; SetActiveProject is the only writer of the
// active flag.
func (r Repo) UpsertMembership(ctx context.Context, telegramID, projectID int64, displayName, role string) (domain.Membership, error) {
	existing, err := r.GetMembershipByUser(ctx, telegramID, projectID)
	if err == nil {
		return existing, nil
	}
	if err != ErrNotFound {
		return domain.Membership{}, err
	}
	joined := r.nowString()
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO memberships(telegram_id,project_id,display_name,role,active,joined_at) VALUES (?,?,?,?,0,?)`,
		telegramID, projectID, displayName, role, joined)
	if isUniqueViolation(err) {
		return r.GetMembershipByUser(ctx, telegramID, projectID)
	}
	if err != nil {
		return domain.Membership{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Membership{}, err
	}
	return domain.Membership{
		ID:          id,
		TelegramID:  telegramID,
		ProjectID:   projectID,
		DisplayName: displayName,
		Role:        role,
		JoinedAt:    joined,
	}, nil
}

// SetActiveProject makes the (user, project) membership the user's single
// active one. The clear-all-then-set-one is a single UPDATE inside one
// transaction, so no reader ever observes zero or two active rows.
func (r Repo) SetActiveProject(ctx context.Context, telegramID, projectID int64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM memberships WHERE telegram_id=? AND project_id=?`, telegramID, projectID).Scan(&id)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE memberships SET active = CASE WHEN project_id=? THEN 1 ELSE 0 END WHERE telegram_id=?`,
		projectID, telegramID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r Repo) GetMembership(ctx context.Context, id int64) (domain.Membership, error) {
	return scanMembership(r.DB.QueryRowContext(ctx, `SELECT `+membershipCols+` FROM memberships WHERE id=?`, id))
}

func (r Repo) GetMembershipByUser(ctx context.Context, telegramID, projectID int64) (domain.Membership, error) {
	return scanMembership(r.DB.QueryRowContext(ctx,
		`SELECT `+membershipCols+` FROM memberships WHERE telegram_id=? AND project_id=?`, telegramID, projectID))
}

// GetActiveMembership returns the membership the user is acting through, or
// ErrNotFound when the user is unregistered or no membership is flagged.
func (r Repo) GetActiveMembership(ctx context.Context, telegramID int64) (domain.Membership, error) {
	return scanMembership(r.DB.QueryRowContext(ctx,
		`SELECT `+membershipCols+` FROM memberships WHERE telegram_id=? AND active=1`, telegramID))
}

func (r Repo) ListMemberships(ctx context.Context, telegramID int64) ([]domain.Membership, error) {
	return r.queryMemberships(ctx, `SELECT `+membershipCols+` FROM memberships WHERE telegram_id=? ORDER BY joined_at, id`, telegramID)
}

func (r Repo) ProjectMemberships(ctx context.Context, projectID int64) ([]domain.Membership, error) {
	return r.queryMemberships(ctx, `SELECT `+membershipCols+` FROM memberships WHERE project_id=? ORDER BY joined_at, id`, projectID)
}

func (r Repo) MembersWithRole(ctx context.Context, projectID int64, role string) ([]domain.Membership, error) {
	return r.queryMemberships(ctx, `SELECT `+membershipCols+` FROM memberships WHERE project_id=? AND role=? ORDER BY joined_at, id`, projectID, role)
}

func (r Repo) queryMemberships(ctx context.Context, query string, args ...any) ([]domain.Membership, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		var m domain.Membership
		if err := rows.Scan(&m.ID, &m.TelegramID, &m.ProjectID, &m.DisplayName, &m.Role, &m.Active, &m.JoinedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// CountActiveMemberships reports how many memberships a user has flagged
// active. Exists for invariant checks; the answer is 0 or 1.
func (r Repo) CountActiveMemberships(ctx context.Context, telegramID int64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM memberships WHERE telegram_id=? AND active=1`, telegramID).Scan(&n)
	return n, err
}

package repo

import (
	"context"

	"github.com/google/uuid"

	"taskpilot/internal/domain"
)

// Feedback rows are append-only; nothing in the core mutates or deletes them
// outside the project-deletion cascade.

func (r Repo) AddTaskFeedback(ctx context.Context, taskID, membershipID int64, rating int, comment string) (domain.TaskFeedback, error) {
	f := domain.TaskFeedback{
		ID:           uuid.New().String(),
		TaskID:       taskID,
		MembershipID: membershipID,
		Rating:       rating,
		Comment:      comment,
		CreatedAt:    r.nowString(),
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO task_feedback(id,task_id,membership_id,rating,comment,created_at) VALUES (?,?,?,?,?,?)`,
		f.ID, f.TaskID, f.MembershipID, f.Rating, f.Comment, f.CreatedAt)
	if err != nil {
		return domain.TaskFeedback{}, err
	}
	return f, nil
}

func (r Repo) AddBotFeedback(ctx context.Context, telegramID int64, message string) (domain.BotFeedback, error) {
	f := domain.BotFeedback{
		ID:         uuid.New().String(),
		TelegramID: telegramID,
		Message:    message,
		CreatedAt:  r.nowString(),
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO bot_feedback(id,telegram_id,message,created_at) VALUES (?,?,?,?)`,
		f.ID, f.TelegramID, f.Message, f.CreatedAt)
	if err != nil {
		return domain.BotFeedback{}, err
	}
	return f, nil
}

func (r Repo) ListBotFeedback(ctx context.Context, limit int) ([]domain.BotFeedback, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,telegram_id,message,created_at FROM bot_feedback ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BotFeedback
	for rows.Next() {
		var f domain.BotFeedback
		if err := rows.Scan(&f.ID, &f.TelegramID, &f.Message, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

func (r Repo) ListTaskFeedback(ctx context.Context, taskID int64) ([]domain.TaskFeedback, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,task_id,membership_id,rating,COALESCE(comment,''),created_at FROM task_feedback WHERE task_id=? ORDER BY created_at`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskFeedback
	for rows.Next() {
		var f domain.TaskFeedback
		if err := rows.Scan(&f.ID, &f.TaskID, &f.MembershipID, &f.Rating, &f.Comment, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

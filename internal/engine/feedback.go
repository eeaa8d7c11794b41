package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"taskpilot/internal/events"
	"taskpilot/internal/session"
)

// Bot feedback is open to everyone, registered or not.
func (e *Engine) startBotFeedback(ev Event) ([]Message, error) {
	e.Sessions.Begin(ev.UserID, session.WorkflowBotFeedback, stepFeedbackText)
	return []Message{reply(ev, promptAskFeedback)}, nil
}

func (e *Engine) stepBotFeedback(ctx context.Context, ev Event, st *session.State) ([]Message, error) {
	if ev.Kind != KindText || strings.TrimSpace(ev.Text) == "" {
		return []Message{reply(ev, promptAskFeedback)}, nil
	}
	f, err := e.Repo.AddBotFeedback(ctx, ev.UserID, strings.TrimSpace(ev.Text))
	if err != nil {
		return nil, err
	}
	e.logEvent(ctx, "feedback.bot", 0, "bot_feedback", f.ID, ev.UserID, nil)
	e.Sessions.Clear(ev.UserID)

	kb, err := e.mainMenuFor(ctx, ev)
	if err != nil {
		return nil, err
	}
	return []Message{replyKb(ev, promptFeedbackThanks, kb)}, nil
}

func (e *Engine) startTaskFeedback(ctx context.Context, ev Event, taskID int64) ([]Message, error) {
	m, _, msgs, err := e.requireActive(ctx, ev)
	if err != nil || msgs != nil {
		return msgs, err
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.ProjectID != m.ProjectID {
		return nil, ErrUnauthorized
	}
	st := e.Sessions.Begin(ev.UserID, session.WorkflowTaskFeedback, stepFeedbackRating)
	st.SetInt64("task_id", t.ID)
	st.SetInt64("membership_id", m.ID)
	return []Message{replyKb(ev, promptAskRating, ratingKeyboard())}, nil
}

func (e *Engine) stepTaskFeedback(ctx context.Context, ev Event, st *session.State) ([]Message, error) {
	switch st.Step {
	case stepFeedbackRating:
		rating, ok := feedbackRating(ev)
		if !ok {
			return []Message{replyKb(ev, promptBadRating, ratingKeyboard())}, nil
		}
		st.SetInt64("rating", rating)
		st.Step = stepFeedbackComment
		return []Message{reply(ev, promptAskComment)}, nil
	case stepFeedbackComment:
		return e.commitTaskFeedback(ctx, ev, st)
	default:
		e.Sessions.Clear(ev.UserID)
		return []Message{reply(ev, promptHelp)}, nil
	}
}

func feedbackRating(ev Event) (int64, bool) {
	var rating int64
	switch {
	case ev.Kind == KindCallback && ev.Callback.Action == ActionSetRating:
		rating = ev.Callback.ID
	case ev.Kind == KindText:
		n, err := strconv.ParseInt(strings.TrimSpace(ev.Text), 10, 64)
		if err != nil {
			return 0, false
		}
		rating = n
	default:
		return 0, false
	}
	if rating < 1 || rating > 5 {
		return 0, false
	}
	return rating, true
}

func (e *Engine) commitTaskFeedback(ctx context.Context, ev Event, st *session.State) ([]Message, error) {
	if ev.Kind != KindText {
		return []Message{reply(ev, promptAskComment)}, nil
	}
	comment := strings.TrimSpace(ev.Text)
	if comment == "-" {
		comment = ""
	}
	taskID, ok := st.GetInt64("task_id")
	if !ok {
		e.Sessions.Clear(ev.UserID)
		return nil, fmt.Errorf("task feedback without task in session")
	}
	membershipID, _ := st.GetInt64("membership_id")
	rating, _ := st.GetInt64("rating")

	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	f, err := e.Repo.AddTaskFeedback(ctx, taskID, membershipID, int(rating), comment)
	if err != nil {
		return nil, err
	}
	e.logEvent(ctx, "feedback.task", t.ProjectID, "task_feedback", f.ID, ev.UserID,
		events.EventPayload{"task_id": taskID, "rating": rating})
	e.Sessions.Clear(ev.UserID)

	kb, err := e.mainMenuFor(ctx, ev)
	if err != nil {
		return nil, err
	}
	return []Message{replyKb(ev, promptRatingThanks, kb)}, nil
}

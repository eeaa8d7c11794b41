package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskpilot/internal/assign"
	"taskpilot/internal/domain"
	"taskpilot/internal/events"
	"taskpilot/internal/repo"
	"taskpilot/internal/session"
)

func (e *Engine) startTaskCreation(ctx context.Context, ev Event) ([]Message, error) {
	_, p, msgs, err := e.requireManager(ctx, ev)
	if err != nil || msgs != nil {
		return msgs, err
	}
	st := e.Sessions.Begin(ev.UserID, session.WorkflowTaskCreation, stepTaskDescription)
	st.SetInt64("project_id", p.ID)
	return []Message{reply(ev, promptAskDescription)}, nil
}

func (e *Engine) stepTaskCreation(ctx context.Context, ev Event, st *session.State) ([]Message, error) {
	switch st.Step {
	case stepTaskDescription:
		if ev.Kind != KindText || ev.Text == "" {
			return []Message{reply(ev, promptAskDescription)}, nil
		}
		st.Set("description", ev.Text)
		st.Step = stepTaskDeadline
		return []Message{reply(ev, promptAskDeadline)}, nil
	case stepTaskDeadline:
		return e.stepTaskDeadline(ctx, ev, st)
	case stepTaskAssignee:
		return e.stepTaskAssignee(ctx, ev, st)
	default:
		e.Sessions.Clear(ev.UserID)
		return []Message{reply(ev, promptHelp)}, nil
	}
}

// stepTaskDeadline parses the deadline in the user's local zone and then runs
// assignee resolution. When the resolver is confident the task is committed
// here; otherwise the workflow pauses on the candidate list.
func (e *Engine) stepTaskDeadline(ctx context.Context, ev Event, st *session.State) ([]Message, error) {
	if ev.Kind != KindText {
		return []Message{reply(ev, promptAskDeadline)}, nil
	}
	deadline, err := time.ParseInLocation(DeadlineLayout, ev.Text, time.Local)
	if err != nil {
		return []Message{reply(ev, promptBadDeadline)}, nil
	}
	if !deadline.After(e.now()) {
		return []Message{reply(ev, promptPastDeadline)}, nil
	}
	st.Set("deadline", deadline.UTC().Format(time.RFC3339))

	projectID, ok := st.GetInt64("project_id")
	if !ok {
		e.Sessions.Clear(ev.UserID)
		return nil, fmt.Errorf("task creation without project in session")
	}
	decision, err := e.Resolver.Resolve(ctx, projectID, st.Get("description"))
	if errors.Is(err, assign.ErrNoCandidates) {
		e.Sessions.Clear(ev.UserID)
		return []Message{replyKb(ev, promptNoMembers, mainMenu(true))}, nil
	}
	if err != nil {
		return nil, err
	}
	if decision.Auto != nil {
		return e.commitTask(ctx, ev, st, *decision.Auto)
	}
	st.Step = stepTaskAssignee
	return []Message{replyKb(ev, promptPickAssignee, candidateKeyboard(decision.Candidates))}, nil
}

func (e *Engine) stepTaskAssignee(ctx context.Context, ev Event, st *session.State) ([]Message, error) {
	projectID, ok := st.GetInt64("project_id")
	if !ok {
		e.Sessions.Clear(ev.UserID)
		return nil, fmt.Errorf("task assignment without project in session")
	}
	if ev.Kind != KindCallback || ev.Callback.Action != ActionAssignTask {
		members, err := e.Repo.ProjectMemberships(ctx, projectID)
		if err != nil {
			return nil, err
		}
		return []Message{replyKb(ev, promptPickAssignee, candidateKeyboard(members))}, nil
	}
	assignee, err := e.Repo.GetMembership(ctx, ev.Callback.ID)
	if err != nil || assignee.ProjectID != projectID {
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		members, merr := e.Repo.ProjectMemberships(ctx, projectID)
		if merr != nil {
			return nil, merr
		}
		return []Message{
			reply(ev, promptNotFound),
			replyKb(ev, promptPickAssignee, candidateKeyboard(members)),
		}, nil
	}
	return e.commitTask(ctx, ev, st, assignee)
}

// commitTask is the single write of the task-creation workflow. The assignee
// is notified immediately; the notification is just another outbound message
// addressed to their chat.
func (e *Engine) commitTask(ctx context.Context, ev Event, st *session.State, assignee domain.Membership) ([]Message, error) {
	projectID, _ := st.GetInt64("project_id")
	deadline, err := time.Parse(time.RFC3339, st.Get("deadline"))
	if err != nil {
		e.Sessions.Clear(ev.UserID)
		return nil, fmt.Errorf("task creation with bad deadline in session: %w", err)
	}
	t, err := e.Repo.CreateTask(ctx, projectID, st.Get("description"), deadline, assignee.ID)
	if err != nil {
		return nil, err
	}
	e.logEvent(ctx, "task.created", projectID, "task", fmt.Sprintf("%d", t.ID), ev.UserID,
		events.EventPayload{"assigned_to": assignee.ID})
	e.Sessions.Clear(ev.UserID)

	msgs := []Message{replyKb(ev,
		fmt.Sprintf("Task #%d created and assigned to %s (%s).", t.ID, assignee.DisplayName, assignee.Role),
		mainMenu(true))}
	if assignee.TelegramID != ev.UserID {
		msgs = append(msgs, Message{
			ChatID:   assignee.TelegramID,
			Text:     "You have a new task!\n\n" + formatTask(t),
			Keyboard: taskKeyboard(t.ID),
		})
	}
	return msgs, nil
}

func (e *Engine) showTasks(ctx context.Context, ev Event) ([]Message, error) {
	m, _, msgs, err := e.requireActive(ctx, ev)
	if err != nil || msgs != nil {
		return msgs, err
	}
	tasks, err := e.Repo.ActiveTasksForMembership(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	kb, err := e.mainMenuFor(ctx, ev)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return []Message{replyKb(ev, promptNoTasks, kb)}, nil
	}
	out := make([]Message, 0, len(tasks)+1)
	for _, t := range tasks {
		out = append(out, replyKb(ev, formatTask(t), taskKeyboard(t.ID)))
	}
	return append(out, replyKb(ev, promptChooseAction, kb)), nil
}

// completeTask may be done by the task's assignee or by the manager of the
// task's project. Authorization is scoped to the task's project, never to
// whichever project the caller currently has active.
func (e *Engine) completeTask(ctx context.Context, ev Event, taskID int64) ([]Message, error) {
	_, _, msgs, err := e.requireActive(ctx, ev)
	if err != nil || msgs != nil {
		return msgs, err
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	owner, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return nil, err
	}
	mine, err := e.Repo.GetMembershipByUser(ctx, ev.UserID, t.ProjectID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	isAssignee := err == nil && t.AssignedTo == mine.ID
	if !isAssignee && owner.ManagerID != ev.UserID {
		return nil, ErrUnauthorized
	}
	if err := e.Repo.SetTaskStatus(ctx, taskID, domain.TaskStatusCompleted); err != nil {
		return nil, err
	}
	e.logEvent(ctx, "task.completed", t.ProjectID, "task", fmt.Sprintf("%d", t.ID), ev.UserID, nil)

	kb, err := e.mainMenuFor(ctx, ev)
	if err != nil {
		return nil, err
	}
	return []Message{
		replyKb(ev, fmt.Sprintf("Task #%d is done. Nice work!", t.ID),
			inlineRows([]Button{inlineButton("Rate this task", Callback{Action: ActionRateTask, ID: t.ID})})),
		replyKb(ev, promptChooseAction, kb),
	}, nil
}

func (e *Engine) showTaskDetails(ctx context.Context, ev Event, taskID int64) ([]Message, error) {
	m, _, msgs, err := e.requireActive(ctx, ev)
	if err != nil || msgs != nil {
		return msgs, err
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.ProjectID != m.ProjectID && t.AssignedTo != m.ID {
		return nil, repo.ErrNotFound
	}
	p, err := e.Repo.GetProject(ctx, t.ProjectID)
	if err != nil {
		return nil, err
	}
	assignee, err := e.Repo.GetMembership(ctx, t.AssignedTo)
	if err != nil {
		return nil, err
	}
	return []Message{replyKb(ev, formatTaskDetails(t, p.Name, assignee), taskKeyboard(t.ID))}, nil
}

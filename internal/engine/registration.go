package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskpilot/internal/events"
	"taskpilot/internal/repo"
	"taskpilot/internal/session"
)

func (e *Engine) stepRegistration(ctx context.Context, ev Event, st *session.State) ([]Message, error) {
	switch st.Step {
	case stepRegName:
		if ev.Kind != KindText || strings.TrimSpace(ev.Text) == "" {
			return []Message{reply(ev, promptAskName)}, nil
		}
		st.Set("name", strings.TrimSpace(ev.Text))
		st.Step = stepRegProjectCode
		return []Message{reply(ev, promptAskProjectCode)}, nil
	case stepRegProjectCode:
		return e.stepProjectCode(ctx, ev, st, stepRegRole)
	case stepRegRole:
		return e.stepRoleSelection(ctx, ev, st)
	default:
		e.Sessions.Clear(ev.UserID)
		return []Message{reply(ev, promptHelp)}, nil
	}
}

// stepProjectCode looks up a project by its join code and moves on to role
// selection. Shared by registration and project-join; a wrong code re-prompts
// without consuming the turn.
func (e *Engine) stepProjectCode(ctx context.Context, ev Event, st *session.State, next session.Step) ([]Message, error) {
	if ev.Kind != KindText {
		return []Message{reply(ev, promptAskProjectCode)}, nil
	}
	code := strings.ToUpper(strings.TrimSpace(ev.Text))
	p, err := e.Repo.GetProjectByCode(ctx, code)
	if errors.Is(err, repo.ErrNotFound) {
		return []Message{reply(ev, promptProjectMissing)}, nil
	}
	if err != nil {
		return nil, err
	}
	roles, err := e.Repo.ProjectRoles(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return []Message{reply(ev, promptNoRolesDefined)}, nil
	}
	st.SetInt64("project_id", p.ID)
	st.Set("project_name", p.Name)
	st.Step = next
	return []Message{replyKb(ev, promptPickRole, roleKeyboard(roles))}, nil
}

// stepRoleSelection validates the chosen role against the project's role
// catalog, then commits the membership and makes the project active.
func (e *Engine) stepRoleSelection(ctx context.Context, ev Event, st *session.State) ([]Message, error) {
	projectID, ok := st.GetInt64("project_id")
	if !ok {
		e.Sessions.Clear(ev.UserID)
		return nil, fmt.Errorf("role selection without project in session")
	}
	roles, err := e.Repo.ProjectRoles(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var chosen string
	switch {
	case ev.Kind == KindCallback && ev.Callback.Action == ActionSetRole:
		chosen = ev.Callback.Role
	case ev.Kind == KindText:
		chosen = strings.TrimSpace(ev.Text)
	}
	role := ""
	for _, r := range roles {
		if strings.EqualFold(r, chosen) {
			role = r
			break
		}
	}
	if role == "" {
		return []Message{replyKb(ev, promptRoleInvalid, roleKeyboard(roles))}, nil
	}

	name := st.Get("name")
	if name == "" {
		name = ev.DisplayName
	}
	m, err := e.Repo.UpsertMembership(ctx, ev.UserID, projectID, name, role)
	if err != nil {
		return nil, err
	}
	if err := e.Repo.SetActiveProject(ctx, ev.UserID, projectID); err != nil {
		return nil, err
	}
	e.logEvent(ctx, "member.joined", projectID, "membership", fmt.Sprintf("%d", m.ID), ev.UserID, events.EventPayload{"role": m.Role})
	e.Sessions.Clear(ev.UserID)

	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return []Message{
		reply(ev, fmt.Sprintf("You're in! Project: %s, your role: %s.", p.Name, m.Role)),
		replyKb(ev, promptChooseAction, mainMenu(p.ManagerID == ev.UserID)),
	}, nil
}

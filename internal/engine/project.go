package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskpilot/internal/domain"
	"taskpilot/internal/events"
	"taskpilot/internal/repo"
	"taskpilot/internal/session"
)

func (e *Engine) startProjectCreation(ev Event) ([]Message, error) {
	e.Sessions.Begin(ev.UserID, session.WorkflowProjectCreation, stepCreateName)
	return []Message{reply(ev, promptAskProjectName)}, nil
}

func (e *Engine) stepProjectCreation(ctx context.Context, ev Event, st *session.State) ([]Message, error) {
	switch st.Step {
	case stepCreateName:
		if ev.Kind != KindText || strings.TrimSpace(ev.Text) == "" {
			return []Message{reply(ev, promptAskProjectName)}, nil
		}
		st.Set("project_name", strings.TrimSpace(ev.Text))
		st.Step = stepCreateRoles
		return []Message{reply(ev, promptAskProjectRoles)}, nil
	case stepCreateRoles:
		return e.commitProjectCreation(ctx, ev, st)
	default:
		e.Sessions.Clear(ev.UserID)
		return []Message{reply(ev, promptHelp)}, nil
	}
}

func parseRoleList(text string) []string {
	var roles []string
	seen := map[string]bool{}
	for _, part := range strings.Split(text, ",") {
		role := strings.TrimSpace(part)
		if role == "" || seen[strings.ToLower(role)] {
			continue
		}
		seen[strings.ToLower(role)] = true
		roles = append(roles, role)
	}
	return roles
}

// commitProjectCreation is the single commit step of the creation workflow:
// nothing is written to the Store before the role list arrives, which makes
// cancellation at any earlier step free.
func (e *Engine) commitProjectCreation(ctx context.Context, ev Event, st *session.State) ([]Message, error) {
	if ev.Kind != KindText {
		return []Message{reply(ev, promptAskProjectRoles)}, nil
	}
	roles := parseRoleList(ev.Text)
	if len(roles) == 0 {
		return []Message{reply(ev, promptRolesEmpty)}, nil
	}
	name := st.Get("project_name")

	p, err := e.Repo.CreateProject(ctx, name, ev.UserID)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if err := e.Repo.AddProjectRole(ctx, p.ID, role); err != nil {
			return nil, err
		}
	}
	creatorName := st.Get("name")
	if creatorName == "" {
		creatorName = ev.DisplayName
	}
	if _, err := e.Repo.UpsertMembership(ctx, ev.UserID, p.ID, creatorName, domain.RoleManager); err != nil {
		return nil, err
	}
	if err := e.Repo.SetActiveProject(ctx, ev.UserID, p.ID); err != nil {
		return nil, err
	}
	e.logEvent(ctx, "project.created", p.ID, "project", fmt.Sprintf("%d", p.ID), ev.UserID, events.EventPayload{"name": p.Name, "roles": roles})
	e.Sessions.Clear(ev.UserID)

	summary := fmt.Sprintf("Project %q created!\nYour role: %s\nProject roles: %s\n\nProject code: %s\n\nShare this code with your team.",
		p.Name, domain.RoleManager, strings.Join(roles, ", "), p.Code)
	return []Message{
		replyKb(ev, summary, mainMenu(true)),
		replyKb(ev, promptHomeHint, homeKeyboard()),
	}, nil
}

func (e *Engine) startProjectJoin(ctx context.Context, ev Event) ([]Message, error) {
	memberships, err := e.Repo.ListMemberships(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, errNotRegistered
	}
	e.Sessions.Begin(ev.UserID, session.WorkflowProjectJoin, stepJoinCode)
	return []Message{reply(ev, promptAskProjectCode)}, nil
}

func (e *Engine) stepProjectJoin(ctx context.Context, ev Event, st *session.State) ([]Message, error) {
	switch st.Step {
	case stepJoinCode:
		return e.stepProjectCode(ctx, ev, st, stepJoinRole)
	case stepJoinRole:
		return e.stepRoleSelection(ctx, ev, st)
	default:
		e.Sessions.Clear(ev.UserID)
		return []Message{reply(ev, promptHelp)}, nil
	}
}

func (e *Engine) showProjects(ctx context.Context, ev Event) ([]Message, error) {
	memberships, err := e.Repo.ListMemberships(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, errNotRegistered
	}
	return e.projectPicker(ctx, ev, memberships, "Your projects. Tap one to make it active:")
}

func (e *Engine) projectPicker(ctx context.Context, ev Event, memberships []domain.Membership, prompt string) ([]Message, error) {
	names := make(map[int64]string, len(memberships))
	for _, m := range memberships {
		p, err := e.Repo.GetProject(ctx, m.ProjectID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return nil, err
		}
		names[m.ProjectID] = p.Name
	}
	return []Message{replyKb(ev, prompt, projectListKeyboard(memberships, names))}, nil
}

// switchProject flips the user's single active flag to the chosen project.
// Switching to the already-active project is a no-op success; switching to a
// project the user never joined leaves the previous flag untouched.
func (e *Engine) switchProject(ctx context.Context, ev Event, projectID int64) ([]Message, error) {
	if current, err := e.Repo.GetActiveMembership(ctx, ev.UserID); err == nil && current.ProjectID == projectID {
		kb, err := e.mainMenuFor(ctx, ev)
		if err != nil {
			return nil, err
		}
		return []Message{replyKb(ev, promptAlreadyActive, kb)}, nil
	}
	err := e.Repo.SetActiveProject(ctx, ev.UserID, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		return []Message{reply(ev, promptNotAMember)}, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	e.logEvent(ctx, "project.switched", p.ID, "project", fmt.Sprintf("%d", p.ID), ev.UserID, nil)
	return []Message{replyKb(ev, fmt.Sprintf("Active project is now %q.", p.Name), mainMenu(p.ManagerID == ev.UserID))}, nil
}

func (e *Engine) startProjectDeletion(ctx context.Context, ev Event) ([]Message, error) {
	_, p, msgs, err := e.requireManager(ctx, ev)
	if err != nil || msgs != nil {
		return msgs, err
	}
	st := e.Sessions.Begin(ev.UserID, session.WorkflowProjectDeletion, stepDeleteConfirm)
	st.SetInt64("project_id", p.ID)
	st.Set("project_name", p.Name)
	return []Message{reply(ev, fmt.Sprintf("%s\n\nProject name: %s", promptConfirmDelete, p.Name))}, nil
}

// stepProjectDeletion commits only on an exact, case-sensitive re-type of
// the project name. Anything else abandons the workflow with nothing
// deleted.
func (e *Engine) stepProjectDeletion(ctx context.Context, ev Event, st *session.State) ([]Message, error) {
	projectID, ok := st.GetInt64("project_id")
	if !ok {
		e.Sessions.Clear(ev.UserID)
		return nil, fmt.Errorf("deletion confirmation without project in session")
	}
	if ev.Kind != KindText || ev.Text != st.Get("project_name") {
		e.Sessions.Clear(ev.UserID)
		kb, err := e.mainMenuFor(ctx, ev)
		if err != nil {
			return nil, err
		}
		return []Message{replyKb(ev, promptDeleteAborted, kb)}, nil
	}

	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		e.Sessions.Clear(ev.UserID)
		return nil, err
	}
	if p.ManagerID != ev.UserID {
		e.Sessions.Clear(ev.UserID)
		return nil, ErrUnauthorized
	}
	if err := e.Repo.DeleteProject(ctx, projectID); err != nil {
		e.Sessions.Clear(ev.UserID)
		return nil, err
	}
	e.logEvent(ctx, "project.deleted", projectID, "project", fmt.Sprintf("%d", projectID), ev.UserID, events.EventPayload{"name": p.Name})
	e.Sessions.Clear(ev.UserID)

	done := reply(ev, fmt.Sprintf("Project %q and everything in it has been deleted.", p.Name))
	home, err := e.showHome(ctx, ev)
	if err != nil {
		return nil, err
	}
	return append([]Message{done}, home...), nil
}

func (e *Engine) showProjectCode(ctx context.Context, ev Event) ([]Message, error) {
	_, p, msgs, err := e.requireManager(ctx, ev)
	if err != nil || msgs != nil {
		return msgs, err
	}
	text := fmt.Sprintf("Your project code:\n\n%s\n\nShare it with your team so they can join.", p.Code)
	return []Message{replyKb(ev, text, backToMenuKeyboard())}, nil
}

func (e *Engine) showReport(ctx context.Context, ev Event) ([]Message, error) {
	_, p, msgs, err := e.requireManager(ctx, ev)
	if err != nil || msgs != nil {
		return msgs, err
	}
	rows, err := e.Repo.StatusReport(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return []Message{replyKb(ev, formatReport(p.Name, rows), backToMenuKeyboard())}, nil
}

package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"taskpilot/internal/assign"
	"taskpilot/internal/domain"
	"taskpilot/internal/events"
	"taskpilot/internal/repo"
	"taskpilot/internal/session"
)

// Steps within each workflow. The pair (workflow, step) selects the handler
// for the next inbound event.
const (
	stepRegName        session.Step = "name"
	stepRegProjectCode session.Step = "project_code"
	stepRegRole        session.Step = "role"

	stepCreateName  session.Step = "project_name"
	stepCreateRoles session.Step = "project_roles"

	stepJoinCode session.Step = "join_code"
	stepJoinRole session.Step = "join_role"

	stepTaskDescription session.Step = "description"
	stepTaskDeadline    session.Step = "deadline"
	stepTaskAssignee    session.Step = "assignee"

	stepDeleteConfirm session.Step = "confirm"

	stepFeedbackText session.Step = "text"

	stepFeedbackRating  session.Step = "rating"
	stepFeedbackComment session.Step = "comment"
)

// ErrUnauthorized marks manager-only surfaces touched by a non-manager. It
// is one of the two error kinds shown to the user as an explicit denial.
var ErrUnauthorized = errors.New("unauthorized")

// errNotRegistered routes users with zero memberships to registration.
var errNotRegistered = errors.New("not registered")

// Engine is the per-session conversation state machine. Session state is
// private per user; all cross-user effects go through the Store's atomic
// operations, so different users' workflows may run concurrently.
type Engine struct {
	Repo     repo.Repo
	Sessions *session.Store
	Resolver assign.Resolver
	Events   events.Writer
	Log      *logrus.Logger
	Now      func() time.Time
}

func New(r repo.Repo, sessions *session.Store, resolver assign.Resolver, ew events.Writer, log *logrus.Logger) *Engine {
	return &Engine{
		Repo:     r,
		Sessions: sessions,
		Resolver: resolver,
		Events:   ew,
		Log:      log,
		Now:      time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// HandleEvent runs one inbound event to completion and returns the outbound
// messages. Internal failures never escape as errors: Unauthorized and
// NotFound become explicit denials, everything else is logged and converted
// to a generic retry message so a failed operation cannot kill the session.
func (e *Engine) HandleEvent(ctx context.Context, ev Event) []Message {
	msgs, err := e.dispatch(ctx, ev)
	if err == nil {
		return msgs
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return []Message{reply(ev, promptManagersOnly)}
	case errors.Is(err, errNotRegistered):
		return []Message{reply(ev, promptRegisterFirst)}
	case errors.Is(err, repo.ErrNotFound):
		return []Message{reply(ev, promptNotFound)}
	default:
		if e.Log != nil {
			e.Log.WithError(err).WithField("user_id", ev.UserID).Error("event handling failed")
		}
		return []Message{reply(ev, promptGenericFailure)}
	}
}

func (e *Engine) dispatch(ctx context.Context, ev Event) ([]Message, error) {
	// The home quick-reply acts like the /home command from any state.
	if ev.Kind == KindText && ev.Text == homeButtonLabel {
		ev.Kind = KindCommand
		ev.Command = "home"
	}
	if ev.Kind == KindCommand {
		return e.handleCommand(ctx, ev)
	}

	st := e.Sessions.Get(ev.UserID)
	if st.Workflow != session.WorkflowNone {
		return e.handleStep(ctx, ev, st)
	}
	if ev.Kind == KindCallback {
		return e.handleAction(ctx, ev)
	}
	return []Message{reply(ev, promptHelp)}, nil
}

// handleCommand treats every command as a fresh entry point: the session is
// reset before the command runs, so commands double as the global escape
// hatch out of any workflow.
func (e *Engine) handleCommand(ctx context.Context, ev Event) ([]Message, error) {
	e.Sessions.Clear(ev.UserID)
	switch ev.Command {
	case "start", "home":
		return e.showHome(ctx, ev)
	case "cancel":
		msgs, err := e.showHome(ctx, ev)
		if err != nil {
			return nil, err
		}
		return append([]Message{reply(ev, promptCancelled)}, msgs...), nil
	case "create":
		return e.startProjectCreation(ev)
	case "join":
		return e.startProjectJoin(ctx, ev)
	case "tasks":
		return e.showTasks(ctx, ev)
	case "newtask":
		return e.startTaskCreation(ctx, ev)
	case "projects":
		return e.showProjects(ctx, ev)
	case "delete":
		return e.startProjectDeletion(ctx, ev)
	case "feedback":
		return e.startBotFeedback(ev)
	default:
		return []Message{reply(ev, promptHelp)}, nil
	}
}

func (e *Engine) handleStep(ctx context.Context, ev Event, st *session.State) ([]Message, error) {
	switch st.Workflow {
	case session.WorkflowRegistration:
		return e.stepRegistration(ctx, ev, st)
	case session.WorkflowProjectCreation:
		return e.stepProjectCreation(ctx, ev, st)
	case session.WorkflowProjectJoin:
		return e.stepProjectJoin(ctx, ev, st)
	case session.WorkflowTaskCreation:
		return e.stepTaskCreation(ctx, ev, st)
	case session.WorkflowProjectDeletion:
		return e.stepProjectDeletion(ctx, ev, st)
	case session.WorkflowBotFeedback:
		return e.stepBotFeedback(ctx, ev, st)
	case session.WorkflowTaskFeedback:
		return e.stepTaskFeedback(ctx, ev, st)
	default:
		e.Sessions.Clear(ev.UserID)
		return []Message{reply(ev, promptHelp)}, nil
	}
}

func (e *Engine) handleAction(ctx context.Context, ev Event) ([]Message, error) {
	switch ev.Callback.Action {
	case ActionMainMenu:
		return e.showHome(ctx, ev)
	case ActionShowTasks:
		return e.showTasks(ctx, ev)
	case ActionCreateTask:
		return e.startTaskCreation(ctx, ev)
	case ActionProjectReport:
		return e.showReport(ctx, ev)
	case ActionProjectCode:
		return e.showProjectCode(ctx, ev)
	case ActionMyProjects:
		return e.showProjects(ctx, ev)
	case ActionLeaveFeedback:
		return e.startBotFeedback(ev)
	case ActionDeleteProject:
		return e.startProjectDeletion(ctx, ev)
	case ActionCompleteTask:
		return e.completeTask(ctx, ev, ev.Callback.ID)
	case ActionTaskDetails:
		return e.showTaskDetails(ctx, ev, ev.Callback.ID)
	case ActionSwitchProject:
		return e.switchProject(ctx, ev, ev.Callback.ID)
	case ActionRateTask:
		return e.startTaskFeedback(ctx, ev, ev.Callback.ID)
	default:
		// role / assign / rating buttons are only meaningful inside their
		// workflow; a press after the session was cleared is stale.
		return []Message{reply(ev, promptHelp)}, nil
	}
}

// showHome renders the entry surface: the main menu for registered users,
// the project picker when no membership is active, registration otherwise.
func (e *Engine) showHome(ctx context.Context, ev Event) ([]Message, error) {
	m, err := e.Repo.GetActiveMembership(ctx, ev.UserID)
	if err == nil {
		p, err := e.Repo.GetProject(ctx, m.ProjectID)
		if err != nil {
			return nil, err
		}
		return []Message{replyKb(ev, promptWelcomeBack, mainMenu(p.ManagerID == ev.UserID))}, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	memberships, err := e.Repo.ListMemberships(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	if len(memberships) > 0 {
		// Should not happen under the single-active invariant, but a user
		// must always have a way back in.
		return e.projectPicker(ctx, ev, memberships, promptNoActive)
	}
	e.Sessions.Begin(ev.UserID, session.WorkflowRegistration, stepRegName)
	return []Message{reply(ev, promptAskName)}, nil
}

// requireActive resolves the membership the user is acting through. The
// returned messages, when non-nil, are user guidance that short-circuits the
// caller (unregistered or no-active-flag states).
func (e *Engine) requireActive(ctx context.Context, ev Event) (domain.Membership, domain.Project, []Message, error) {
	m, err := e.Repo.GetActiveMembership(ctx, ev.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		memberships, lerr := e.Repo.ListMemberships(ctx, ev.UserID)
		if lerr != nil {
			return domain.Membership{}, domain.Project{}, nil, lerr
		}
		if len(memberships) == 0 {
			return domain.Membership{}, domain.Project{}, nil, errNotRegistered
		}
		msgs, perr := e.projectPicker(ctx, ev, memberships, promptNoActive)
		return domain.Membership{}, domain.Project{}, msgs, perr
	}
	if err != nil {
		return domain.Membership{}, domain.Project{}, nil, err
	}
	p, err := e.Repo.GetProject(ctx, m.ProjectID)
	if err != nil {
		return domain.Membership{}, domain.Project{}, nil, err
	}
	return m, p, nil, nil
}

// requireManager is requireActive plus the manager check for restricted
// surfaces.
func (e *Engine) requireManager(ctx context.Context, ev Event) (domain.Membership, domain.Project, []Message, error) {
	m, p, msgs, err := e.requireActive(ctx, ev)
	if err != nil || msgs != nil {
		return m, p, msgs, err
	}
	if p.ManagerID != ev.UserID {
		return m, p, nil, ErrUnauthorized
	}
	return m, p, nil, nil
}

func (e *Engine) mainMenuFor(ctx context.Context, ev Event) (*Keyboard, error) {
	m, err := e.Repo.GetActiveMembership(ctx, ev.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return mainMenu(false), nil
	}
	if err != nil {
		return nil, err
	}
	p, err := e.Repo.GetProject(ctx, m.ProjectID)
	if err != nil {
		return nil, err
	}
	return mainMenu(p.ManagerID == ev.UserID), nil
}

func (e *Engine) logEvent(ctx context.Context, evtType string, projectID int64, entityKind, entityID string, actorID int64, payload events.EventPayload) {
	if err := e.Events.Append(ctx, evtType, projectID, entityKind, entityID, actorID, payload); err != nil && e.Log != nil {
		e.Log.WithError(err).WithField("type", evtType).Warn("audit event append failed")
	}
}

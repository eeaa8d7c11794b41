package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// EventKind discriminates the three inbound event shapes.
type EventKind int

const (
	KindCommand EventKind = iota
	KindText
	KindCallback
)

// Event is one inbound chat event, already stripped of transport detail.
// UserID doubles as the session key and, for direct chats, the chat id to
// reply to.
type Event struct {
	UserID      int64
	ChatID      int64
	DisplayName string
	Kind        EventKind
	Command     string
	Text        string
	Callback    Callback
}

// Action names every callback the engine understands. The set is closed:
// tokens are decoded once at the boundary and matched exhaustively.
type Action string

const (
	ActionShowTasks     Action = "tasks"
	ActionCreateTask    Action = "new_task"
	ActionProjectReport Action = "report"
	ActionProjectCode   Action = "code"
	ActionMainMenu      Action = "menu"
	ActionMyProjects    Action = "projects"
	ActionLeaveFeedback Action = "feedback"
	ActionDeleteProject Action = "del_project"
	ActionCompleteTask  Action = "complete" // complete:<taskID>
	ActionTaskDetails   Action = "details"  // details:<taskID>
	ActionAssignTask    Action = "assign"   // assign:<membershipID>
	ActionSwitchProject Action = "switch"   // switch:<projectID>
	ActionRateTask      Action = "rate"     // rate:<taskID>
	ActionSetRating     Action = "rating"   // rating:<1..5>
	ActionSetRole       Action = "role"     // role:<roleName>
)

// Callback is a decoded callback token: an action plus its optional argument.
type Callback struct {
	Action Action
	ID     int64
	Role   string
}

var idActions = map[Action]bool{
	ActionCompleteTask:  true,
	ActionTaskDetails:   true,
	ActionAssignTask:    true,
	ActionSwitchProject: true,
	ActionRateTask:      true,
	ActionSetRating:     true,
}

var plainActions = map[Action]bool{
	ActionShowTasks:     true,
	ActionCreateTask:    true,
	ActionProjectReport: true,
	ActionProjectCode:   true,
	ActionMainMenu:      true,
	ActionMyProjects:    true,
	ActionLeaveFeedback: true,
	ActionDeleteProject: true,
}

// ParseCallback decodes a delimited callback token. A malformed numeric
// segment fails just this action; the session is untouched.
func ParseCallback(data string) (Callback, error) {
	action, arg, hasArg := strings.Cut(data, ":")
	a := Action(action)
	switch {
	case plainActions[a]:
		if hasArg {
			return Callback{}, fmt.Errorf("unexpected argument in callback %q", data)
		}
		return Callback{Action: a}, nil
	case idActions[a]:
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return Callback{}, fmt.Errorf("bad id in callback %q: %w", data, err)
		}
		return Callback{Action: a, ID: id}, nil
	case a == ActionSetRole:
		if arg == "" {
			return Callback{}, fmt.Errorf("missing role in callback %q", data)
		}
		return Callback{Action: a, Role: arg}, nil
	default:
		return Callback{}, fmt.Errorf("unknown callback %q", data)
	}
}

// Token encodes a callback for a keyboard button.
func (c Callback) Token() string {
	switch {
	case idActions[c.Action]:
		return string(c.Action) + ":" + strconv.FormatInt(c.ID, 10)
	case c.Action == ActionSetRole:
		return string(c.Action) + ":" + c.Role
	default:
		return string(c.Action)
	}
}

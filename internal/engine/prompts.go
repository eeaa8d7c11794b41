package engine

import (
	"fmt"
	"strings"
	"time"

	"taskpilot/internal/domain"
)

// DeadlineLayout is the format users type deadlines in: day.month.year
// hour:minute.
const DeadlineLayout = "02.01.2006 15:04"

const (
	promptHelp = "Sorry, I don't understand that. Use the menu buttons, or /start to begin."

	promptRegisterFirst = "Please register first with /start."

	promptAskName        = "Welcome! Please enter your name:"
	promptAskProjectCode = "Enter a project code, or send /create to start a new project:"
	promptProjectMissing = "Project not found. Check the code and try again, or send /create to start a new project."
	promptNoRolesDefined = "This project has no roles defined. Ask the project manager for help."
	promptPickRole       = "Pick your role in the project:"
	promptRoleInvalid    = "Please pick one of the project's roles using the buttons below:"

	promptAskProjectName  = "Enter the name of the new project:"
	promptAskProjectRoles = "Enter the roles for your project, separated by commas.\nFor example: Developer, Designer, Analyst, Tester"
	promptRolesEmpty      = "I need at least one role. Enter roles separated by commas:"

	promptAskDescription = "Describe the task:"
	promptAskDeadline    = "Now set the deadline as DD.MM.YYYY HH:MM\nFor example: 31.12.2026 15:00"
	promptBadDeadline    = "That doesn't look like a valid date. Try again as DD.MM.YYYY HH:MM."
	promptPastDeadline   = "The deadline has to be in the future. Try again as DD.MM.YYYY HH:MM."
	promptPickAssignee   = "I couldn't pick an assignee automatically. Choose one:"
	promptNoMembers      = "This project has no members to assign tasks to yet. Share the project code so people can join."

	promptConfirmDelete = "This will permanently delete the project, its tasks and its members.\nType the project name exactly to confirm:"
	promptDeleteAborted = "The name didn't match. Deletion cancelled."

	promptAskFeedback    = "Tell me what you think about the bot:"
	promptFeedbackThanks = "Thanks for the feedback!"

	promptAskRating     = "How did this task go? Rate it 1 to 5:"
	promptBadRating     = "Please rate 1 to 5 using the buttons."
	promptAskComment    = "Any comment to go with the rating? (send \"-\" to skip)"
	promptRatingThanks  = "Thanks, your task feedback is saved."

	promptChooseAction   = "Choose an action:"
	promptWelcomeBack    = "Welcome back! Choose an action:"
	promptHomeHint       = "Use the button below to get back to the main menu at any time."
	promptManagersOnly   = "Only the project manager can do that."
	promptNotFound       = "I couldn't find that. It may have been deleted."
	promptGenericFailure = "Something went wrong, please try again."
	promptCancelled      = "Okay, cancelled. Back to the main menu."
	promptNoActive       = "You are a member of several projects but none is active. Pick one:"
	promptNoTasks        = "You have no active tasks right now."
	promptNotAMember     = "You are not a member of that project."
	promptAlreadyActive  = "That project is already your active one."

	homeButtonLabel = "Home"
)

func mainMenu(isManager bool) *Keyboard {
	rows := [][]Button{
		{inlineButton("My tasks", Callback{Action: ActionShowTasks})},
		{inlineButton("My projects", Callback{Action: ActionMyProjects})},
		{inlineButton("Leave feedback", Callback{Action: ActionLeaveFeedback})},
	}
	if isManager {
		rows = append(rows,
			[]Button{inlineButton("Create task", Callback{Action: ActionCreateTask})},
			[]Button{inlineButton("Project report", Callback{Action: ActionProjectReport})},
			[]Button{inlineButton("Project code", Callback{Action: ActionProjectCode})},
			[]Button{inlineButton("Delete project", Callback{Action: ActionDeleteProject})},
		)
	}
	return &Keyboard{Inline: true, Rows: rows}
}

func homeKeyboard() *Keyboard {
	return &Keyboard{Rows: [][]Button{{{Label: homeButtonLabel}}}}
}

func roleKeyboard(roles []string) *Keyboard {
	rows := make([][]Button, 0, len(roles))
	for _, role := range roles {
		rows = append(rows, []Button{inlineButton(role, Callback{Action: ActionSetRole, Role: role})})
	}
	return &Keyboard{Inline: true, Rows: rows}
}

func candidateKeyboard(members []domain.Membership) *Keyboard {
	rows := make([][]Button, 0, len(members))
	for _, m := range members {
		label := fmt.Sprintf("%s (%s)", m.DisplayName, m.Role)
		rows = append(rows, []Button{inlineButton(label, Callback{Action: ActionAssignTask, ID: m.ID})})
	}
	return &Keyboard{Inline: true, Rows: rows}
}

func taskKeyboard(taskID int64) *Keyboard {
	return inlineRows(
		[]Button{inlineButton("Mark completed", Callback{Action: ActionCompleteTask, ID: taskID})},
		[]Button{inlineButton("Details", Callback{Action: ActionTaskDetails, ID: taskID})},
	)
}

func ratingKeyboard() *Keyboard {
	row := make([]Button, 0, 5)
	for i := int64(1); i <= 5; i++ {
		row = append(row, inlineButton(fmt.Sprintf("%d", i), Callback{Action: ActionSetRating, ID: i}))
	}
	return inlineRows(row)
}

func backToMenuKeyboard() *Keyboard {
	return inlineRows([]Button{inlineButton("Back", Callback{Action: ActionMainMenu})})
}

func projectListKeyboard(memberships []domain.Membership, names map[int64]string) *Keyboard {
	rows := make([][]Button, 0, len(memberships))
	for _, m := range memberships {
		label := names[m.ProjectID]
		if label == "" {
			label = fmt.Sprintf("project %d", m.ProjectID)
		}
		if m.Active {
			label = "• " + label
		}
		rows = append(rows, []Button{inlineButton(label, Callback{Action: ActionSwitchProject, ID: m.ProjectID})})
	}
	return &Keyboard{Inline: true, Rows: rows}
}

func formatTask(t domain.Task) string {
	deadline := t.Deadline
	if parsed, err := time.Parse(time.RFC3339, t.Deadline); err == nil {
		deadline = parsed.Local().Format(DeadlineLayout)
	}
	return fmt.Sprintf("Task #%d\nDescription: %s\nDeadline: %s\nStatus: %s", t.ID, t.Description, deadline, t.Status)
}

func formatTaskDetails(t domain.Task, projectName string, assignee domain.Membership) string {
	deadline := t.Deadline
	if parsed, err := time.Parse(time.RFC3339, t.Deadline); err == nil {
		deadline = parsed.Local().Format(DeadlineLayout)
	}
	created := t.CreatedAt
	if parsed, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
		created = parsed.Local().Format(DeadlineLayout)
	}
	return fmt.Sprintf("Task #%d\n\nDescription: %s\nDeadline: %s\nProject: %s\nAssignee: %s (%s)\nStatus: %s\nCreated: %s",
		t.ID, t.Description, deadline, projectName, assignee.DisplayName, assignee.Role, t.Status, created)
}

func formatReport(projectName string, rows []domain.MemberReportRow) string {
	if len(rows) == 0 {
		return fmt.Sprintf("Report for %q\n\nNo task data yet.", projectName)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Report for %q\n", projectName)
	current := ""
	for _, row := range rows {
		header := fmt.Sprintf("%s (%s)", row.MemberName, row.Role)
		if header != current {
			fmt.Fprintf(&b, "\n%s:\n", header)
			current = header
		}
		fmt.Fprintf(&b, "- %s: %d\n", row.Status, row.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

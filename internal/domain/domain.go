package domain

type Project struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	ManagerID int64  `json:"manager_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Membership ties one telegram user to one project. A user may hold many
// memberships but at most one of them has Active set.
type Membership struct {
	ID          int64  `json:"id"`
	TelegramID  int64  `json:"telegram_id"`
	ProjectID   int64  `json:"project_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Active      bool   `json:"active"`
	JoinedAt    string `json:"joined_at" format:"date-time"`
}

const (
	TaskStatusPending   = "pending"
	TaskStatusCompleted = "completed"
)

// RoleManager is assigned implicitly to a project's creator and is not part
// of the project's role catalog.
const RoleManager = "Manager"

type Task struct {
	ID          int64  `json:"id"`
	ProjectID   int64  `json:"project_id"`
	Description string `json:"description"`
	Deadline    string `json:"deadline" format:"date-time"`
	AssignedTo  int64  `json:"assigned_to"`
	Status      string `json:"status" enum:"pending,completed"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// DueTask is a task nearing its deadline together with the chat contacts the
// scheduler notifies: the assignee and the project manager.
type DueTask struct {
	Task           Task   `json:"task"`
	ProjectName    string `json:"project_name"`
	AssigneeChatID int64  `json:"assignee_chat_id"`
	AssigneeName   string `json:"assignee_name"`
	ManagerChatID  int64  `json:"manager_chat_id"`
}

type TaskFeedback struct {
	ID           string `json:"id"`
	TaskID       int64  `json:"task_id"`
	MembershipID int64  `json:"membership_id"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type BotFeedback struct {
	ID         string `json:"id"`
	TelegramID int64  `json:"telegram_id"`
	Message    string `json:"message"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  int64  `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    int64  `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// MemberReportRow is one line of the per-project status report.
type MemberReportRow struct {
	MemberName string `json:"member_name"`
	Role       string `json:"role"`
	Status     string `json:"status"`
	Count      int    `json:"count"`
}

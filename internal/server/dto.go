package server

import "taskpilot/internal/domain"

type ProjectResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	ManagerID int64  `json:"manager_id"`
	CreatedAt string `json:"created_at"`
}

type MemberResponse struct {
	ID          int64  `json:"id"`
	TelegramID  int64  `json:"telegram_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	Active      bool   `json:"active"`
	JoinedAt    string `json:"joined_at"`
}

type TaskResponse struct {
	ID          int64  `json:"id"`
	ProjectID   int64  `json:"project_id"`
	Description string `json:"description"`
	Deadline    string `json:"deadline"`
	AssignedTo  int64  `json:"assigned_to"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

type DueTaskResponse struct {
	Task         TaskResponse `json:"task"`
	ProjectName  string       `json:"project_name"`
	AssigneeName string       `json:"assignee_name"`
}

type ReportRowResponse struct {
	MemberName string `json:"member_name"`
	Role       string `json:"role"`
	Status     string `json:"status"`
	Count      int    `json:"count"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  int64  `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    int64  `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

type BotFeedbackResponse struct {
	ID         string `json:"id"`
	TelegramID int64  `json:"telegram_id"`
	Message    string `json:"message"`
	CreatedAt  string `json:"created_at"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{ID: p.ID, Name: p.Name, Code: p.Code, ManagerID: p.ManagerID, CreatedAt: p.CreatedAt}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

func mapMembers(items []domain.Membership) []MemberResponse {
	res := make([]MemberResponse, 0, len(items))
	for _, m := range items {
		res = append(res, MemberResponse{
			ID: m.ID, TelegramID: m.TelegramID, DisplayName: m.DisplayName,
			Role: m.Role, Active: m.Active, JoinedAt: m.JoinedAt,
		})
	}
	return res
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID: t.ID, ProjectID: t.ProjectID, Description: t.Description,
		Deadline: t.Deadline, AssignedTo: t.AssignedTo, Status: t.Status, CreatedAt: t.CreatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	res := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		res = append(res, taskResponse(t))
	}
	return res
}

func mapDueTasks(items []domain.DueTask) []DueTaskResponse {
	res := make([]DueTaskResponse, 0, len(items))
	for _, d := range items {
		res = append(res, DueTaskResponse{
			Task:         taskResponse(d.Task),
			ProjectName:  d.ProjectName,
			AssigneeName: d.AssigneeName,
		})
	}
	return res
}

func mapReportRows(items []domain.MemberReportRow) []ReportRowResponse {
	res := make([]ReportRowResponse, 0, len(items))
	for _, r := range items {
		res = append(res, ReportRowResponse{MemberName: r.MemberName, Role: r.Role, Status: r.Status, Count: r.Count})
	}
	return res
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, EventResponse{
			ID: e.ID, TS: e.TS, Type: e.Type, ProjectID: e.ProjectID,
			EntityKind: e.EntityKind, EntityID: e.EntityID, ActorID: e.ActorID, Payload: e.Payload,
		})
	}
	return res
}

func mapBotFeedback(items []domain.BotFeedback) []BotFeedbackResponse {
	res := make([]BotFeedbackResponse, 0, len(items))
	for _, f := range items {
		res = append(res, BotFeedbackResponse{ID: f.ID, TelegramID: f.TelegramID, Message: f.Message, CreatedAt: f.CreatedAt})
	}
	return res
}

package server

import (
	"net/http"
	"strings"

	"github.com/Ince88/prv/internal/crm"
)

// crmConfigured rejects CRM calls early when the integration is off.
func (s *Server) crmConfigured(w http.ResponseWriter) bool {
	if s.crm == nil {
		writeError(w, http.StatusBadRequest, "MiniCRM integration not configured")
		return false
	}
	return true
}

// handleCRMStatus reports whether the CRM gateway is available.
func (s *Server) handleCRMStatus(w http.ResponseWriter, _ *http.Request) {
	if s.crm == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":   true,
		"system_id": s.cfg.CRM.SystemID,
	})
}

type findContactRequest struct {
	Email string `json:"email"`
}

// handleFindContact resolves an email address to its CRM contact records.
func (s *Server) handleFindContact(w http.ResponseWriter, r *http.Request) {
	if !s.crmConfigured(w) {
		return
	}

	var req findContactRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "Email address is required")
		return
	}

	result, err := s.crm.ResolveContact(r.Context(), email)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type getTodosRequest struct {
	BusinessIDs   []int64 `json:"business_ids"`
	BusinessID    int64   `json:"business_id"`
	CategoryID    int64   `json:"category_id"`
	AssignedTo    string  `json:"assigned_to"`
	IncludeClosed bool    `json:"include_closed"`
}

// handleGetTodos aggregates the tasks of every project belonging to the
// given businesses.
func (s *Server) handleGetTodos(w http.ResponseWriter, r *http.Request) {
	if !s.crmConfigured(w) {
		return
	}

	var req getTodosRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	businessIDs := req.BusinessIDs
	if len(businessIDs) == 0 && req.BusinessID != 0 {
		businessIDs = []int64{req.BusinessID}
	}
	if len(businessIDs) == 0 {
		writeError(w, http.StatusBadRequest, "business_ids is required")
		return
	}

	projects, err := s.crm.DiscoverProjects(r.Context(), businessIDs, req.CategoryID)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}

	tasks := s.crm.FetchTasks(r.Context(), projects, crm.TaskOptions{
		IncludeClosed: req.IncludeClosed,
		Assignee:      req.AssignedTo,
	})
	if tasks == nil {
		tasks = []crm.Task{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"todos":   tasks,
		"count":   len(tasks),
	})
}

type dailyTodosRequest struct {
	AssignedTo string `json:"assigned_to"`
}

// handleDailyTodos scans active projects for tasks that are overdue or due
// today.
func (s *Server) handleDailyTodos(w http.ResponseWriter, r *http.Request) {
	if !s.crmConfigured(w) {
		return
	}

	var req dailyTodosRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.crm.DailyTodos(r.Context(), crm.DailyOptions{Assignee: req.AssignedTo})
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	if result.Tasks == nil {
		result.Tasks = []crm.DailyTask{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"todos":            result.Tasks,
		"count":            len(result.Tasks),
		"projects_scanned": result.ProjectsScanned,
		"cap_hit":          result.CapHit,
	})
}

type updateTodoRequest struct {
	TodoID   int64   `json:"todo_id"`
	Comment  *string `json:"comment"`
	Deadline *string `json:"deadline"`
}

// handleUpdateTodo writes the given fields of a todo.
func (s *Server) handleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	if !s.crmConfigured(w) {
		return
	}

	var req updateTodoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TodoID == 0 {
		writeError(w, http.StatusBadRequest, "todo_id is required")
		return
	}
	if req.Comment == nil && req.Deadline == nil {
		writeError(w, http.StatusBadRequest, "Nothing to update")
		return
	}

	err := s.crm.UpdateTodo(r.Context(), req.TodoID, crm.TodoUpdate{
		Comment:  req.Comment,
		Deadline: req.Deadline,
	})
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type updateDeadlineRequest struct {
	TodoID   int64  `json:"todo_id"`
	Deadline string `json:"deadline"`
}

// handleUpdateTodoDeadline moves a todo's deadline.
func (s *Server) handleUpdateTodoDeadline(w http.ResponseWriter, r *http.Request) {
	if !s.crmConfigured(w) {
		return
	}

	var req updateDeadlineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TodoID == 0 || strings.TrimSpace(req.Deadline) == "" {
		writeError(w, http.StatusBadRequest, "todo_id and deadline are required")
		return
	}

	deadline := strings.TrimSpace(req.Deadline)
	if err := s.crm.UpdateTodo(r.Context(), req.TodoID, crm.TodoUpdate{Deadline: &deadline}); err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Határidő sikeresen frissítve!",
	})
}

type updateProjectStatusRequest struct {
	ProjectID int64 `json:"project_id"`
	StatusID  int64 `json:"status_id"`
}

// handleUpdateProjectStatus moves a project to a new status.
func (s *Server) handleUpdateProjectStatus(w http.ResponseWriter, r *http.Request) {
	if !s.crmConfigured(w) {
		return
	}

	var req updateProjectStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProjectID == 0 || req.StatusID == 0 {
		writeError(w, http.StatusBadRequest, "project_id and status_id are required")
		return
	}

	if err := s.crm.UpdateProjectStatus(r.Context(), req.ProjectID, req.StatusID); err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type statusIDsRequest struct {
	CategoryID int64 `json:"category_id"`
}

// handleStatusIDs lists the valid status ids of a project category.
func (s *Server) handleStatusIDs(w http.ResponseWriter, r *http.Request) {
	if !s.crmConfigured(w) {
		return
	}

	var req statusIDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CategoryID == 0 {
		writeError(w, http.StatusBadRequest, "category_id is required")
		return
	}

	statuses, err := s.crm.StatusIDs(r.Context(), req.CategoryID)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"statuses": statuses,
	})
}

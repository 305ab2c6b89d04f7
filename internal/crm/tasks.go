package crm

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/Ince88/prv/internal/logging"
)

// untitledTask is the display text for todos carrying no usable title.
const untitledTask = "Névtelen teendő"

// TaskOptions controls task fetching and post-fetch filtering.
type TaskOptions struct {
	// IncludeClosed keeps closed tasks in the result.
	IncludeClosed bool
	// Assignee, when non-empty, keeps only tasks whose assignee matches
	// numerically or, failing that, as a case-insensitive string.
	Assignee string
}

// FetchTasks fetches the task list of every project concurrently, bounded by
// the configured worker count, and returns the normalized, filtered union.
//
// A failed fetch for one project contributes zero tasks and never aborts the
// others. No result ordering is guaranteed beyond grouping by project.
func (c *Client) FetchTasks(ctx context.Context, projects []Project, opts TaskOptions) []Task {
	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup
	var mu sync.Mutex

	var all []Task

	for _, project := range projects {
		wg.Add(1)
		sem <- struct{}{}

		go func(p Project) {
			defer wg.Done()
			defer func() { <-sem }()

			todos, err := c.listTodos(ctx, int64(p.ID), opts.IncludeClosed)
			if err != nil {
				c.logger.Warn("task fetch failed, skipping project",
					logging.Operation("fetch_tasks"),
					"project_id", int64(p.ID), logging.Err(err))
				return
			}

			var tasks []Task
			for _, todo := range todos {
				task := normalizeTodo(todo, p)
				if !opts.IncludeClosed && task.Completed {
					continue
				}
				if opts.Assignee != "" && !assigneeMatches(task.AssignedTo, opts.Assignee) {
					continue
				}
				tasks = append(tasks, task)
			}

			mu.Lock()
			all = append(all, tasks...)
			mu.Unlock()
		}(project)
	}

	wg.Wait()
	return all
}

// listTodos fetches the raw todo list of one project.
func (c *Client) listTodos(ctx context.Context, projectID int64, includeClosed bool) ([]Todo, error) {
	params := url.Values{}
	if includeClosed {
		params.Set("Status", "All")
	} else {
		params.Set("Status", "Open")
	}

	var resp listResponse[Todo]
	if err := c.get(ctx, fmt.Sprintf("ToDoList/%d", projectID), params, &resp); err != nil {
		return nil, err
	}
	return resp.Results.Items, nil
}

// normalizeTodo maps a raw CRM todo into the canonical task shape. The
// display text and deadline fall back through the API's alternative field
// names.
func normalizeTodo(todo Todo, project Project) Task {
	title := todo.Comment
	if title == "" {
		title = todo.Title
	}
	if title == "" {
		title = todo.Name
	}
	if title == "" {
		title = untitledTask
	}

	deadline := todo.Deadline
	if deadline == "" {
		deadline = todo.DueDate
	}

	status := todo.Status
	if status == "" {
		status = "Active"
	}

	var assignedTo string
	if todo.UserID != 0 {
		assignedTo = strconv.FormatInt(int64(todo.UserID), 10)
	}

	return Task{
		ID:          int64(todo.ID),
		Title:       title,
		Description: todo.Description,
		Deadline:    deadline,
		Status:      status,
		Completed:   todo.Status == "Closed",
		ProjectName: project.Name,
		ProjectID:   int64(project.ID),
		AssignedTo:  assignedTo,
	}
}

// assigneeMatches compares a task assignee against the requested filter.
// When both sides parse as integers the numeric comparison wins; otherwise
// a case-insensitive string comparison is used. Both fallbacks are kept
// deliberately; neither is authoritative.
func assigneeMatches(assignee, filter string) bool {
	a, errA := strconv.ParseInt(strings.TrimSpace(assignee), 10, 64)
	f, errF := strconv.ParseInt(strings.TrimSpace(filter), 10, 64)
	if errA == nil && errF == nil {
		return a == f
	}
	return strings.EqualFold(strings.TrimSpace(assignee), strings.TrimSpace(filter))
}

// TodoUpdate carries the writable todo fields. Nil fields are left untouched.
type TodoUpdate struct {
	Comment  *string
	Deadline *string
}

// UpdateTodo writes the given fields to a todo.
func (c *Client) UpdateTodo(ctx context.Context, todoID int64, update TodoUpdate) error {
	payload := make(map[string]string)
	if update.Comment != nil {
		payload["Comment"] = *update.Comment
	}
	if update.Deadline != nil {
		payload["Deadline"] = *update.Deadline
	}
	if len(payload) == 0 {
		return fmt.Errorf("no fields to update")
	}

	if err := c.put(ctx, fmt.Sprintf("ToDo/%d", todoID), payload); err != nil {
		return err
	}
	c.logger.Info("todo updated", logging.Operation("update_todo"), "todo_id", todoID)
	return nil
}

package crm

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/Ince88/prv/internal/logging"
)

// deadlineLayouts are the formats the CRM uses for todo deadlines.
var deadlineLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// DailyTask is a task qualified by the daily aggregation, annotated with its
// parsed deadline classification.
type DailyTask struct {
	Task
	IsOverdue bool `json:"is_overdue"`
}

// DailyOptions controls the daily aggregation.
type DailyOptions struct {
	// Assignee filters tasks to one assignee, matched like TaskOptions.Assignee.
	Assignee string
}

// DailyResult is the outcome of the daily/overdue scan. CapHit signals that
// at least one status bucket was truncated at the scan cap, so results may
// be incomplete; that is an accepted approximation of this endpoint.
type DailyResult struct {
	Tasks           []DailyTask `json:"todos"`
	ProjectsScanned int         `json:"projects_scanned"`
	CapHit          bool        `json:"cap_hit"`
}

// DailyTodos scans the CRM's project universe for active projects and
// aggregates their open tasks that are overdue or due today.
//
// For every category, the active status ids are resolved (schema lookup with
// configured fallback) and each (category, status) project search is capped
// at the configured scan cap to bound request volume. Task fetching uses the
// same bounded fan-out as FetchTasks; a failed fetch for any single project
// is swallowed. Tasks without a parseable deadline are dropped.
//
// The result is ordered overdue-first, and by ascending deadline string
// within each bucket.
func (c *Client) DailyTodos(ctx context.Context, opts DailyOptions) (*DailyResult, error) {
	categories, err := c.Categories(ctx)
	if err != nil {
		// Category enumeration is the scan's entry point; without it fall
		// back to the configured category list.
		c.logger.Warn("category listing failed, using fallback categories",
			logging.Operation("daily_todos"), logging.Err(err))
		if len(c.fallbackActive) == 0 {
			return nil, err
		}
		categories = make(map[int64]string, len(c.fallbackActive))
		for id := range c.fallbackActive {
			categories[int64(id)] = ""
		}
	}

	projects, capHit := c.scanActiveProjects(ctx, categories)

	tasks := c.FetchTasks(ctx, projects, TaskOptions{Assignee: opts.Assignee})

	today := time.Now().Format("2006-01-02")
	var qualified []DailyTask
	for _, task := range tasks {
		day, ok := deadlineDay(task.Deadline)
		if !ok {
			continue
		}
		switch {
		case day < today:
			qualified = append(qualified, DailyTask{Task: task, IsOverdue: true})
		case day == today:
			qualified = append(qualified, DailyTask{Task: task})
		}
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		if qualified[i].IsOverdue != qualified[j].IsOverdue {
			return qualified[i].IsOverdue
		}
		return qualified[i].Deadline < qualified[j].Deadline
	})

	c.logger.Info("daily todos aggregated", logging.Operation("daily_todos"),
		"projects_scanned", len(projects), "tasks", len(qualified), "cap_hit", capHit)

	return &DailyResult{
		Tasks:           qualified,
		ProjectsScanned: len(projects),
		CapHit:          capHit,
	}, nil
}

// scanActiveProjects enumerates projects per (category, active status),
// capped per status value, deduplicated by project id. Failures of single
// searches are skipped; the scan is best effort.
func (c *Client) scanActiveProjects(ctx context.Context, categories map[int64]string) ([]Project, bool) {
	seen := make(map[ID]bool)
	var projects []Project
	capHit := false

	// Deterministic traversal order.
	ids := make([]int64, 0, len(categories))
	for id := range categories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, categoryID := range ids {
		for _, statusID := range c.activeStatusIDs(ctx, categoryID) {
			params := url.Values{
				"CategoryId": {strconv.FormatInt(categoryID, 10)},
				"StatusId":   {strconv.FormatInt(statusID, 10)},
			}

			var resp listResponse[Project]
			if err := c.get(ctx, "Project", params, &resp); err != nil {
				c.logger.Warn("project scan failed for status, skipping",
					logging.Operation("daily_todos"),
					"category_id", categoryID, "status_id", statusID, logging.Err(err))
				continue
			}

			found := resp.Results.Items
			if len(found) > c.scanCap {
				found = found[:c.scanCap]
				capHit = true
			}

			for _, p := range found {
				if p.ID == 0 || seen[p.ID] {
					continue
				}
				seen[p.ID] = true
				if p.CategoryID == 0 {
					p.CategoryID = ID(categoryID)
				}
				projects = append(projects, p)
			}
		}
	}

	return projects, capHit
}

// deadlineDay parses a deadline into its calendar day (YYYY-MM-DD).
func deadlineDay(deadline string) (string, bool) {
	if deadline == "" {
		return "", false
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, deadline); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// String implements fmt.Stringer for log output.
func (r *DailyResult) String() string {
	return fmt.Sprintf("daily: %d tasks over %d projects (cap_hit=%v)",
		len(r.Tasks), r.ProjectsScanned, r.CapHit)
}

package crm

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Ince88/prv/internal/logging"
)

// GetProject fetches the full detail of one project.
func (c *Client) GetProject(ctx context.Context, projectID int64) (*Project, error) {
	var p Project
	if err := c.get(ctx, fmt.Sprintf("Project/%d", projectID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DiscoverProjects fetches the candidate projects of each business id and
// merges them into one set deduplicated by project id.
//
// When categoryID is non-zero, only projects of that category are kept. A
// search record that lacks category information is cross-checked against the
// project detail before the filter is applied; projects whose detail cannot
// be fetched are silently excluded rather than errored.
func (c *Client) DiscoverProjects(ctx context.Context, businessIDs []int64, categoryID int64) ([]Project, error) {
	seen := make(map[ID]bool)
	var merged []Project

	for _, businessID := range businessIDs {
		params := url.Values{"MainContactId": {strconv.FormatInt(businessID, 10)}}

		var resp listResponse[Project]
		if err := c.get(ctx, "Project", params, &resp); err != nil {
			return nil, fmt.Errorf("failed to list projects for business %d: %w", businessID, err)
		}

		for _, p := range resp.Results.Items {
			if p.ID == 0 || seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			merged = append(merged, p)
		}
	}

	if categoryID == 0 {
		return merged, nil
	}

	var filtered []Project
	for _, p := range merged {
		if p.CategoryID == 0 {
			// Search responses may omit the category; cross-check against
			// the project detail before filtering.
			detail, err := c.GetProject(ctx, int64(p.ID))
			if err != nil {
				c.logger.Debug("project detail cross-check failed",
					logging.Operation("discover_projects"),
					"project_id", int64(p.ID), logging.Err(err))
				continue
			}
			p.CategoryID = detail.CategoryID
			if p.StatusID == 0 {
				p.StatusID = detail.StatusID
			}
		}
		if p.CategoryID == ID(categoryID) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// UpdateProjectStatus moves a project to a new status.
func (c *Client) UpdateProjectStatus(ctx context.Context, projectID, statusID int64) error {
	payload := map[string]int64{"StatusId": statusID}
	if err := c.put(ctx, fmt.Sprintf("Project/%d", projectID), payload); err != nil {
		return err
	}
	c.logger.Info("project status updated", logging.Operation("update_project_status"),
		"project_id", projectID, "status_id", statusID)
	return nil
}

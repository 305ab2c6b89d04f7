package crm

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Ince88/prv/internal/logging"
)

// projectSchema is the subset of the schema-introspection response consumed
// here: the valid status ids of a project category, keyed by id with the
// human-readable label as value.
type projectSchema struct {
	StatusID map[string]string `json:"StatusId"`
}

// closedStatusNames marks status labels that denote a finished or dead
// project. Statuses with any other label count as active.
var closedStatusNames = []string{
	"closed", "lezárt", "lezart", "lost", "elveszett", "done", "kész", "kesz", "meghiúsult",
}

// Categories lists the CRM's project categories (id -> name).
func (c *Client) Categories(ctx context.Context) (map[int64]string, error) {
	raw := make(map[string]string)
	if err := c.get(ctx, "Category", nil, &raw); err != nil {
		return nil, err
	}

	categories := make(map[int64]string, len(raw))
	for k, name := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		categories[id] = name
	}
	return categories, nil
}

// StatusIDs returns the valid status ids of a category with their labels,
// via schema introspection.
func (c *Client) StatusIDs(ctx context.Context, categoryID int64) (map[int64]string, error) {
	var schema projectSchema
	if err := c.get(ctx, fmt.Sprintf("Schema/Project/%d", categoryID), nil, &schema); err != nil {
		return nil, err
	}

	statuses := make(map[int64]string, len(schema.StatusID))
	for k, label := range schema.StatusID {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		statuses[id] = label
	}
	return statuses, nil
}

// statusCache caches the discovered active-status lists per category for the
// process lifetime. Status schemas change rarely; a restart picks up edits.
type statusCache struct {
	mu     sync.Mutex
	active map[int64][]int64
}

func newStatusCache() *statusCache {
	return &statusCache{active: make(map[int64][]int64)}
}

// activeStatusIDs resolves the "active" status ids of a category: the cached
// schema lookup first, the configured fallback list when introspection
// fails.
func (c *Client) activeStatusIDs(ctx context.Context, categoryID int64) []int64 {
	c.statusCache.mu.Lock()
	cached, ok := c.statusCache.active[categoryID]
	c.statusCache.mu.Unlock()
	if ok {
		return cached
	}

	statuses, err := c.StatusIDs(ctx, categoryID)
	if err != nil {
		c.logger.Warn("status introspection failed, using fallback list",
			logging.Operation("active_statuses"),
			"category_id", categoryID, logging.Err(err))
		return c.fallbackStatusIDs(categoryID)
	}

	var active []int64
	for id, label := range statuses {
		if !isClosedStatusName(label) {
			active = append(active, id)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i] < active[j] })

	c.statusCache.mu.Lock()
	c.statusCache.active[categoryID] = active
	c.statusCache.mu.Unlock()

	return active
}

func (c *Client) fallbackStatusIDs(categoryID int64) []int64 {
	ids, ok := c.fallbackActive[int(categoryID)]
	if !ok {
		return nil
	}
	active := make([]int64, 0, len(ids))
	for _, id := range ids {
		active = append(active, int64(id))
	}
	return active
}

func isClosedStatusName(label string) bool {
	lower := strings.ToLower(strings.TrimSpace(label))
	for _, name := range closedStatusNames {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}

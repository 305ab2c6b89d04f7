package crm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ID is a CRM record identifier. The API is inconsistent about whether ids
// arrive as JSON numbers or strings, so both are accepted on decode.
type ID int64

// UnmarshalJSON accepts a number, a numeric string, null or an empty string.
func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", s, err)
	}
	*id = ID(n)
	return nil
}

// Contact is a CRM contact record. Multiple contact records can share one
// email address, each pointing at a different business.
type Contact struct {
	ID         ID     `json:"Id"`
	Name       string `json:"Name"`
	Email      string `json:"Email"`
	Company    string `json:"Company"`
	Phone      string `json:"Phone"`
	BusinessID ID     `json:"BusinessId"`
	URL        string `json:"Url"`
}

// Project is a CRM project record. CategoryId may be absent in search
// responses and only present in the project detail.
type Project struct {
	ID         ID     `json:"Id"`
	Name       string `json:"Name"`
	CategoryID ID     `json:"CategoryId"`
	StatusID   ID     `json:"StatusId"`
}

// Todo is a CRM task record as returned by the ToDoList endpoint. The API
// uses different field names for the display text and the deadline
// depending on record age, so all variants are kept and resolved during
// normalization.
type Todo struct {
	ID          ID     `json:"Id"`
	Comment     string `json:"Comment"`
	Title       string `json:"Title"`
	Name        string `json:"Name"`
	Description string `json:"Description"`
	Deadline    string `json:"Deadline"`
	DueDate     string `json:"DueDate"`
	Status      string `json:"Status"`
	UserID      ID     `json:"UserId"`
}

// Task is the normalized task shape returned to clients.
type Task struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Deadline    string `json:"deadline"`
	Status      string `json:"status"`
	Completed   bool   `json:"completed"`
	ProjectName string `json:"project_name"`
	ProjectID   int64  `json:"project_id"`
	AssignedTo  string `json:"assigned_to"`
}

// resultSet normalizes the CRM's two list encodings into one ordered slice.
// The API returns the same logical collection either as a JSON array or as
// an object keyed by record id; the object form is ordered by key so the
// output is deterministic.
type resultSet[T any] struct {
	Items []T
}

func (r *resultSet[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		r.Items = nil
		return nil
	}

	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &r.Items)
	}

	byKey := make(map[string]T)
	if err := json.Unmarshal(trimmed, &byKey); err != nil {
		return err
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.ParseInt(keys[i], 10, 64)
		b, errB := strconv.ParseInt(keys[j], 10, 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})

	r.Items = make([]T, 0, len(keys))
	for _, k := range keys {
		r.Items = append(r.Items, byKey[k])
	}
	return nil
}

// listResponse is the CRM's standard paginated list envelope.
type listResponse[T any] struct {
	Count   int          `json:"Count"`
	Results resultSet[T] `json:"Results"`
}

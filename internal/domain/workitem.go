package domain

import (
	"slices"
	"strings"
	"time"
)

// Status represents canonical work-item status values.
type Status string

// Canonical statuses.
const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
)

var validStatuses = []Status{StatusPlanned, StatusInProgress, StatusBlocked, StatusCompleted}

// MaxProgress is the upper bound for progress percentages.
const MaxProgress = 100

// WorkItem is one node of the project hierarchy.
type WorkItem struct {
	ID          string
	ParentID    string
	OrderIndex  int
	Name        string
	Status      Status
	Progress    int
	Description string
	Assignee    string
	Cost        float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkItemInput holds values for NewWorkItem.
type WorkItemInput struct {
	ID          string
	ParentID    string
	OrderIndex  int
	Name        string
	Status      Status
	Progress    int
	Description string
	Assignee    string
	Cost        float64
}

// WorkItemPatch carries a partial field update. ParentID and OrderIndex exist only so the
// patch path can reject them; structure changes go through reorder batches.
type WorkItemPatch struct {
	Name        *string
	Status      *Status
	Progress    *int
	Description *string
	Assignee    *string
	Cost        *float64

	ParentID   *string
	OrderIndex *int
}

// OrderChange is one (id, parent, order) triple of a reorder batch.
type OrderChange struct {
	ID         string `json:"id"`
	ParentID   string `json:"parent_id"`
	OrderIndex int    `json:"order_index"`
}

// NewWorkItem validates input and returns a normalized work item.
func NewWorkItem(in WorkItemInput, now time.Time) (WorkItem, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ParentID = strings.TrimSpace(in.ParentID)
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Assignee = strings.TrimSpace(in.Assignee)

	if in.ID == "" {
		return WorkItem{}, ErrInvalidID
	}
	if in.ParentID == in.ID {
		return WorkItem{}, ErrInvalidParentID
	}
	if in.Name == "" {
		return WorkItem{}, ErrInvalidName
	}
	if in.OrderIndex < 0 {
		return WorkItem{}, ErrInvalidOrderIndex
	}
	if in.Status == "" {
		in.Status = StatusPlanned
	}
	status, err := ParseStatus(string(in.Status))
	if err != nil {
		return WorkItem{}, err
	}
	if !validProgress(in.Progress) {
		return WorkItem{}, ErrInvalidProgress
	}
	if in.Cost < 0 {
		return WorkItem{}, ErrInvalidCost
	}

	ts := now.UTC()
	return WorkItem{
		ID:          in.ID,
		ParentID:    in.ParentID,
		OrderIndex:  in.OrderIndex,
		Name:        in.Name,
		Status:      status,
		Progress:    in.Progress,
		Description: in.Description,
		Assignee:    in.Assignee,
		Cost:        in.Cost,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}, nil
}

// IsRoot reports whether the item has no parent reference.
func (w WorkItem) IsRoot() bool {
	return w.ParentID == ""
}

// ApplyPatch applies non-structural field edits.
func (w *WorkItem) ApplyPatch(p WorkItemPatch, now time.Time) error {
	if p.IsStructural() {
		return ErrStructuralUpdate
	}
	next := *w
	if p.Name != nil {
		next.Name = strings.TrimSpace(*p.Name)
		if next.Name == "" {
			return ErrInvalidName
		}
	}
	if p.Status != nil {
		status, err := ParseStatus(string(*p.Status))
		if err != nil {
			return err
		}
		next.Status = status
	}
	if p.Progress != nil {
		if !validProgress(*p.Progress) {
			return ErrInvalidProgress
		}
		next.Progress = *p.Progress
	}
	if p.Description != nil {
		next.Description = strings.TrimSpace(*p.Description)
	}
	if p.Assignee != nil {
		next.Assignee = strings.TrimSpace(*p.Assignee)
	}
	if p.Cost != nil {
		if *p.Cost < 0 {
			return ErrInvalidCost
		}
		next.Cost = *p.Cost
	}
	next.UpdatedAt = now.UTC()
	*w = next
	return nil
}

// IsStructural reports whether the patch tries to touch parent or order.
func (p WorkItemPatch) IsStructural() bool {
	return p.ParentID != nil || p.OrderIndex != nil
}

// IsEmpty reports whether the patch carries no field at all.
func (p WorkItemPatch) IsEmpty() bool {
	return p.Name == nil && p.Status == nil && p.Progress == nil &&
		p.Description == nil && p.Assignee == nil && p.Cost == nil && !p.IsStructural()
}

// ParseStatus canonicalizes status aliases.
func ParseStatus(raw string) (Status, error) {
	status := normalizeStatus(Status(raw))
	if !slices.Contains(validStatuses, status) {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// Statuses returns the canonical status values in display order.
func Statuses() []Status {
	return slices.Clone(validStatuses)
}

// normalizeStatus canonicalizes status aliases.
func normalizeStatus(status Status) Status {
	switch strings.TrimSpace(strings.ToLower(string(status))) {
	case "planned", "todo", "to-do", "pending":
		return StatusPlanned
	case "in_progress", "in-progress", "progress", "doing":
		return StatusInProgress
	case "blocked", "stuck":
		return StatusBlocked
	case "completed", "complete", "done":
		return StatusCompleted
	default:
		return Status(strings.TrimSpace(strings.ToLower(string(status))))
	}
}

func validProgress(progress int) bool {
	return progress >= 0 && progress <= MaxProgress
}

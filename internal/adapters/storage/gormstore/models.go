package gormstore

import (
	"encoding/json"
	"time"

	"github.com/hylla/deskboard/internal/domain"
)

// WorkItem is the GORM row for one tree node. ParentID is a plain column with no foreign
// key so deleting a parent leaves its children in place as orphans.
type WorkItem struct {
	ID          string    `gorm:"primaryKey;size:64"`
	ParentID    string    `gorm:"size:64;not null;index:idx_work_items_parent_order,priority:1"`
	OrderIndex  int       `gorm:"not null;index:idx_work_items_parent_order,priority:2"`
	Name        string    `gorm:"size:255;not null"`
	Status      string    `gorm:"size:16;not null"`
	Progress    int       `gorm:"not null"`
	Description string    `gorm:"type:text"`
	Assignee    string    `gorm:"size:128"`
	Cost        float64   `gorm:"not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

// TableName pins the table name shared with the sqlite adapter schema.
func (WorkItem) TableName() string { return "work_items" }

// ChangeEvent is one ledger row.
type ChangeEvent struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	WorkItemID string    `gorm:"size:64;not null;index"`
	Operation  string    `gorm:"size:16;not null"`
	ActorID    string    `gorm:"size:128;not null;default:''"`
	ActorType  string    `gorm:"size:16;not null;default:'user'"`
	Metadata   string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"autoCreateTime:false;index"`
}

// TableName pins the ledger table name.
func (ChangeEvent) TableName() string { return "change_events" }

// AllModels returns every model migrated by Open.
func AllModels() []any {
	return []any{&WorkItem{}, &ChangeEvent{}}
}

func rowFromDomain(item domain.WorkItem) WorkItem {
	return WorkItem{
		ID:          item.ID,
		ParentID:    item.ParentID,
		OrderIndex:  item.OrderIndex,
		Name:        item.Name,
		Status:      string(item.Status),
		Progress:    item.Progress,
		Description: item.Description,
		Assignee:    item.Assignee,
		Cost:        item.Cost,
		CreatedAt:   item.CreatedAt.UTC(),
		UpdatedAt:   item.UpdatedAt.UTC(),
	}
}

func (r WorkItem) toDomain() domain.WorkItem {
	status, err := domain.ParseStatus(r.Status)
	if err != nil {
		status = domain.StatusPlanned
	}
	return domain.WorkItem{
		ID:          r.ID,
		ParentID:    r.ParentID,
		OrderIndex:  r.OrderIndex,
		Name:        r.Name,
		Status:      status,
		Progress:    r.Progress,
		Description: r.Description,
		Assignee:    r.Assignee,
		Cost:        r.Cost,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func (e ChangeEvent) toDomain() domain.ChangeEvent {
	metadata := map[string]string{}
	if e.Metadata != "" {
		_ = json.Unmarshal([]byte(e.Metadata), &metadata)
	}
	return domain.ChangeEvent{
		ID:         e.ID,
		WorkItemID: e.WorkItemID,
		Operation:  domain.ChangeOperation(e.Operation),
		ActorID:    e.ActorID,
		ActorType:  domain.NormalizeActorType(domain.ActorType(e.ActorType)),
		Metadata:   metadata,
		OccurredAt: e.CreatedAt.UTC(),
	}
}

// marshalJSON marshals a value to a JSON string, returning "{}" for nil.
func marshalJSON(v map[string]string) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

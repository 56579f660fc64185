package app

import (
	"context"

	"github.com/hylla/deskboard/internal/domain"
)

// Repository is the persistence collaborator that owns canonical work-item state.
type Repository interface {
	ListItems(context.Context) ([]domain.WorkItem, error)
	CreateItem(context.Context, domain.WorkItem) (domain.WorkItem, error)
	// UpdateItem applies non-structural edits and must reject parent/order changes.
	UpdateItem(context.Context, string, domain.WorkItemPatch) (domain.WorkItem, error)
	// ReorderBatch applies every change or none of them.
	ReorderBatch(context.Context, []domain.OrderChange) error
	// DeleteItem removes one item; children are left in place as orphans.
	DeleteItem(context.Context, string) error
}

// ChangeLog is implemented by repositories that keep an activity ledger.
type ChangeLog interface {
	ListChangeEvents(context.Context, int) ([]domain.ChangeEvent, error)
}

// Logger is the structured logger used by the app layer.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Info(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
	Error(msg any, keyvals ...any)
}

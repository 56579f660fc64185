// Package gormstore persists work items through GORM so the tree can live in a shared
// MySQL-compatible server instead of a local sqlite file.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hylla/deskboard/internal/app"
	"github.com/hylla/deskboard/internal/domain"
	"github.com/hylla/deskboard/internal/tree"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store implements app.Repository on top of a GORM connection.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// DSN builds a MySQL DSN.
func DSN(user, host string, port int, database string) string {
	if user == "" {
		user = "root"
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC", user, host, port, database)
}

// Connect opens a MySQL-backed store.
func Connect(user, host string, port int, database string) (*Store, error) {
	store, err := Open(mysql.Open(DSN(user, host, port, database)))
	if err != nil {
		return nil, fmt.Errorf("gormstore: connect to %s:%d/%s: %w", host, port, database, err)
	}
	return store, nil
}

// Open opens a store over any GORM dialector and migrates its tables.
func Open(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open: %w", err)
	}
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("gormstore: auto-migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ListItems lists every work item ordered by parent then order index.
func (s *Store) ListItems(ctx context.Context) ([]domain.WorkItem, error) {
	return listItems(s.db.WithContext(ctx))
}

// CreateItem inserts one item and its ledger entry. An insert that would close a parent
// cycle is rolled back.
func (s *Store) CreateItem(ctx context.Context, item domain.WorkItem) (domain.WorkItem, error) {
	if strings.TrimSpace(item.ID) == "" {
		return domain.WorkItem{}, domain.ErrInvalidID
	}
	row := rowFromDomain(item)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("gormstore: create work item %q: %w", item.ID, err)
		}
		if err := insertEvent(tx, item.ID, domain.ChangeOperationCreate, map[string]string{
			"parent_id":   item.ParentID,
			"order_index": strconv.Itoa(item.OrderIndex),
			"name":        item.Name,
		}, row.CreatedAt); err != nil {
			return err
		}
		items, err := listItems(tx)
		if err != nil {
			return err
		}
		if tree.Build(items).HasCycle() {
			return fmt.Errorf("gormstore: create work item %q: %w", item.ID, tree.ErrCycle)
		}
		return nil
	})
	if err != nil {
		return domain.WorkItem{}, err
	}
	return row.toDomain(), nil
}

// UpdateItem applies a non-structural patch.
func (s *Store) UpdateItem(ctx context.Context, id string, patch domain.WorkItemPatch) (domain.WorkItem, error) {
	if patch.IsStructural() {
		return domain.WorkItem{}, domain.ErrStructuralUpdate
	}
	var next domain.WorkItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := getItem(tx, id)
		if err != nil {
			return err
		}
		next = prev
		if err := next.ApplyPatch(patch, s.now()); err != nil {
			return err
		}
		row := rowFromDomain(next)
		if err := tx.Model(&WorkItem{}).Where("id = ?", id).Updates(map[string]any{
			"name":        row.Name,
			"status":      row.Status,
			"progress":    row.Progress,
			"description": row.Description,
			"assignee":    row.Assignee,
			"cost":        row.Cost,
			"updated_at":  row.UpdatedAt,
		}).Error; err != nil {
			return fmt.Errorf("gormstore: update work item %q: %w", id, err)
		}
		return insertEvent(tx, id, domain.ChangeOperationUpdate, nil, row.UpdatedAt)
	})
	if err != nil {
		return domain.WorkItem{}, err
	}
	return next, nil
}

// ReorderBatch applies every triple inside one database transaction or none of them.
func (s *Store) ReorderBatch(ctx context.Context, changes []domain.OrderChange) error {
	if len(changes) == 0 {
		return nil
	}
	now := s.now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, change := range changes {
			if change.ParentID == change.ID {
				return fmt.Errorf("gormstore: reorder %q: %w", change.ID, domain.ErrInvalidParentID)
			}
			if change.OrderIndex < 0 {
				return fmt.Errorf("gormstore: reorder %q: %w", change.ID, domain.ErrInvalidOrderIndex)
			}
			prev, err := getItem(tx, change.ID)
			if err != nil {
				return fmt.Errorf("gormstore: reorder %q: %w", change.ID, err)
			}
			if err := tx.Model(&WorkItem{}).Where("id = ?", change.ID).Updates(map[string]any{
				"parent_id":   change.ParentID,
				"order_index": change.OrderIndex,
				"updated_at":  now,
			}).Error; err != nil {
				return fmt.Errorf("gormstore: reorder %q: %w", change.ID, err)
			}
			if err := insertEvent(tx, change.ID, domain.ChangeOperationMove, map[string]string{
				"from_parent_id":   prev.ParentID,
				"to_parent_id":     change.ParentID,
				"from_order_index": strconv.Itoa(prev.OrderIndex),
				"to_order_index":   strconv.Itoa(change.OrderIndex),
			}, now); err != nil {
				return err
			}
		}
		items, err := listItems(tx)
		if err != nil {
			return err
		}
		if tree.Build(items).HasCycle() {
			return fmt.Errorf("gormstore: reorder batch of %d changes: %w", len(changes), tree.ErrCycle)
		}
		return nil
	})
}

// DeleteItem deletes one item without touching its children.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := getItem(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(&WorkItem{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("gormstore: delete work item %q: %w", id, err)
		}
		return insertEvent(tx, id, domain.ChangeOperationDelete, map[string]string{
			"parent_id":   item.ParentID,
			"order_index": strconv.Itoa(item.OrderIndex),
			"name":        item.Name,
		}, s.now())
	})
}

// ListChangeEvents lists the newest ledger entries first.
func (s *Store) ListChangeEvents(ctx context.Context, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []ChangeEvent
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gormstore: list change events: %w", err)
	}
	out := make([]domain.ChangeEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func listItems(tx *gorm.DB) ([]domain.WorkItem, error) {
	var rows []WorkItem
	if err := tx.Order("parent_id ASC, order_index ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gormstore: list work items: %w", err)
	}
	out := make([]domain.WorkItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func getItem(tx *gorm.DB, id string) (domain.WorkItem, error) {
	var row WorkItem
	if err := tx.Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.WorkItem{}, app.ErrNotFound
		}
		return domain.WorkItem{}, fmt.Errorf("gormstore: get work item %q: %w", id, err)
	}
	return row.toDomain(), nil
}

func insertEvent(tx *gorm.DB, id string, op domain.ChangeOperation, metadata map[string]string, at time.Time) error {
	raw, err := marshalJSON(metadata)
	if err != nil {
		return fmt.Errorf("gormstore: marshal event metadata: %w", err)
	}
	event := ChangeEvent{WorkItemID: id, Operation: string(op), ActorType: string(domain.ActorTypeUser), Metadata: raw, CreatedAt: at.UTC()}
	if actor, ok := app.ActorFromContext(tx.Statement.Context); ok {
		event.ActorID, event.ActorType = actor.ID, string(actor.Type)
	}
	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("gormstore: insert change event: %w", err)
	}
	return nil
}

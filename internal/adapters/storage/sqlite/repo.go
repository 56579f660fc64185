package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hylla/deskboard/internal/app"
	"github.com/hylla/deskboard/internal/domain"
	"github.com/hylla/deskboard/internal/tree"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository stores work items and their change ledger in one sqlite file.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db)
}

func newRepository(db *sql.DB) (*Repository, error) {
	repo := &Repository{db: db, now: time.Now}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA busy_timeout = 5000;`,
		// parent_id is a plain column: deleting a parent leaves its children as orphans.
		`CREATE TABLE IF NOT EXISTS work_items (
			id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL DEFAULT '',
			order_index INTEGER NOT NULL DEFAULT 0,
			name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'planned',
			progress INTEGER NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			assignee TEXT NOT NULL DEFAULT '',
			cost REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS change_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			work_item_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			actor_type TEXT NOT NULL DEFAULT 'user',
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_parent_order ON work_items(parent_id, order_index);`,
		`CREATE INDEX IF NOT EXISTS idx_change_events_created_at ON change_events(created_at DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// ListItems lists every work item ordered by parent then order index.
func (r *Repository) ListItems(ctx context.Context) ([]domain.WorkItem, error) {
	return listItems(ctx, r.db)
}

// GetItem returns one work item.
func (r *Repository) GetItem(ctx context.Context, id string) (domain.WorkItem, error) {
	return getItemByID(ctx, r.db, id)
}

// CreateItem creates item. An insert that would close a parent cycle is rolled back.
func (r *Repository) CreateItem(ctx context.Context, item domain.WorkItem) (domain.WorkItem, error) {
	if strings.TrimSpace(item.ID) == "" {
		return domain.WorkItem{}, domain.ErrInvalidID
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkItem{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO work_items(id, parent_id, order_index, name, status, progress, description, assignee, cost, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID,
		item.ParentID,
		item.OrderIndex,
		item.Name,
		string(item.Status),
		item.Progress,
		item.Description,
		item.Assignee,
		item.Cost,
		ts(item.CreatedAt),
		ts(item.UpdatedAt),
	)
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("insert work item %q: %w", item.ID, err)
	}
	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		WorkItemID: item.ID,
		Operation:  domain.ChangeOperationCreate,
		Metadata: map[string]string{
			"parent_id":   item.ParentID,
			"order_index": strconv.Itoa(item.OrderIndex),
			"name":        item.Name,
		},
		OccurredAt: item.CreatedAt,
	})
	if err != nil {
		return domain.WorkItem{}, err
	}
	var items []domain.WorkItem
	if items, err = listItems(ctx, tx); err != nil {
		return domain.WorkItem{}, err
	}
	if tree.Build(items).HasCycle() {
		err = fmt.Errorf("insert work item %q: %w", item.ID, tree.ErrCycle)
		return domain.WorkItem{}, err
	}
	if err = tx.Commit(); err != nil {
		return domain.WorkItem{}, err
	}
	return getItemByID(ctx, r.db, item.ID)
}

// UpdateItem applies a non-structural patch.
func (r *Repository) UpdateItem(ctx context.Context, id string, patch domain.WorkItemPatch) (domain.WorkItem, error) {
	if patch.IsStructural() {
		return domain.WorkItem{}, domain.ErrStructuralUpdate
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkItem{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	prev, err := getItemByID(ctx, tx, id)
	if err != nil {
		return domain.WorkItem{}, err
	}
	next := prev
	if err = next.ApplyPatch(patch, r.now()); err != nil {
		return domain.WorkItem{}, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE work_items
		SET name = ?, status = ?, progress = ?, description = ?, assignee = ?, cost = ?, updated_at = ?
		WHERE id = ?
	`,
		next.Name,
		string(next.Status),
		next.Progress,
		next.Description,
		next.Assignee,
		next.Cost,
		ts(next.UpdatedAt),
		id,
	)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if err = translateNoRows(res); err != nil {
		return domain.WorkItem{}, err
	}
	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		WorkItemID: id,
		Operation:  domain.ChangeOperationUpdate,
		Metadata:   map[string]string{"changed_fields": strings.Join(changedFields(prev, next), ",")},
		OccurredAt: next.UpdatedAt,
	})
	if err != nil {
		return domain.WorkItem{}, err
	}
	if err = tx.Commit(); err != nil {
		return domain.WorkItem{}, err
	}
	return next, nil
}

// ReorderBatch applies every (id, parent, order) triple in one sqlite transaction. An unknown
// id, a self-parent, or a batch that would close a parent cycle rolls the whole batch back.
func (r *Repository) ReorderBatch(ctx context.Context, changes []domain.OrderChange) error {
	if len(changes) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := r.now().UTC()
	for _, change := range changes {
		if change.ParentID == change.ID {
			err = fmt.Errorf("reorder %q: %w", change.ID, domain.ErrInvalidParentID)
			return err
		}
		if change.OrderIndex < 0 {
			err = fmt.Errorf("reorder %q: %w", change.ID, domain.ErrInvalidOrderIndex)
			return err
		}
		var prev domain.WorkItem
		prev, err = getItemByID(ctx, tx, change.ID)
		if err != nil {
			err = fmt.Errorf("reorder %q: %w", change.ID, err)
			return err
		}
		if _, err = tx.ExecContext(ctx, `
			UPDATE work_items SET parent_id = ?, order_index = ?, updated_at = ? WHERE id = ?
		`, change.ParentID, change.OrderIndex, ts(now), change.ID); err != nil {
			return err
		}
		err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
			WorkItemID: change.ID,
			Operation:  domain.ChangeOperationMove,
			Metadata: map[string]string{
				"from_parent_id":   prev.ParentID,
				"to_parent_id":     change.ParentID,
				"from_order_index": strconv.Itoa(prev.OrderIndex),
				"to_order_index":   strconv.Itoa(change.OrderIndex),
			},
			OccurredAt: now,
		})
		if err != nil {
			return err
		}
	}

	items, err := listItems(ctx, tx)
	if err != nil {
		return err
	}
	if tree.Build(items).HasCycle() {
		err = fmt.Errorf("reorder batch of %d changes: %w", len(changes), tree.ErrCycle)
		return err
	}
	err = tx.Commit()
	return err
}

// DeleteItem deletes one item. Children keep their parent_id and become orphans.
func (r *Repository) DeleteItem(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	item, err := getItemByID(ctx, tx, id)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM work_items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	err = insertChangeEvent(ctx, tx, domain.ChangeEvent{
		WorkItemID: item.ID,
		Operation:  domain.ChangeOperationDelete,
		Metadata: map[string]string{
			"parent_id":   item.ParentID,
			"order_index": strconv.Itoa(item.OrderIndex),
			"name":        item.Name,
		},
		OccurredAt: r.now(),
	})
	if err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// ListChangeEvents lists the newest ledger entries first.
func (r *Repository) ListChangeEvents(ctx context.Context, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, work_item_id, operation, actor_id, actor_type, metadata_json, created_at
		FROM change_events
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ChangeEvent, 0)
	for rows.Next() {
		var (
			event        domain.ChangeEvent
			opRaw        string
			actorTypeRaw string
			metadataRaw  string
			createdRaw   string
		)
		if err := rows.Scan(&event.ID, &event.WorkItemID, &opRaw, &event.ActorID, &actorTypeRaw, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		event.Operation = normalizeChangeOperation(opRaw)
		event.ActorType = domain.NormalizeActorType(domain.ActorType(actorTypeRaw))
		event.OccurredAt = parseTS(createdRaw)
		if strings.TrimSpace(metadataRaw) == "" {
			metadataRaw = "{}"
		}
		if err := json.Unmarshal([]byte(metadataRaw), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode change_events.metadata_json: %w", err)
		}
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// queryer represents a read-only DB contract used by DB and Tx implementations.
type queryer interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

const selectItemColumns = `
	SELECT id, parent_id, order_index, name, status, progress, description, assignee, cost, created_at, updated_at
	FROM work_items
`

func listItems(ctx context.Context, q queryer) ([]domain.WorkItem, error) {
	rows, err := q.QueryContext(ctx, selectItemColumns+` ORDER BY parent_id ASC, order_index ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.WorkItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// getItemByID returns a work item or app.ErrNotFound.
func getItemByID(ctx context.Context, q queryer, id string) (domain.WorkItem, error) {
	return scanItem(q.QueryRowContext(ctx, selectItemColumns+` WHERE id = ?`, id))
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// insertChangeEvent inserts a change-event ledger record stamped with the context's actor.
func insertChangeEvent(ctx context.Context, execer execerContext, event domain.ChangeEvent) error {
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode change event metadata: %w", err)
	}
	if actor, ok := app.ActorFromContext(ctx); ok && event.ActorID == "" {
		event.ActorID, event.ActorType = actor.ID, actor.Type
	}
	_, err = execer.ExecContext(ctx, `
		INSERT INTO change_events(work_item_id, operation, actor_id, actor_type, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		event.WorkItemID,
		string(event.Operation),
		event.ActorID,
		string(domain.NormalizeActorType(event.ActorType)),
		string(metadataJSON),
		ts(normalizeEventTS(event.OccurredAt)),
	)
	if err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}

// changedFields lists the non-structural fields that differ between two versions.
func changedFields(prev, next domain.WorkItem) []string {
	var out []string
	if prev.Name != next.Name {
		out = append(out, "name")
	}
	if prev.Status != next.Status {
		out = append(out, "status")
	}
	if prev.Progress != next.Progress {
		out = append(out, "progress")
	}
	if prev.Description != next.Description {
		out = append(out, "description")
	}
	if prev.Assignee != next.Assignee {
		out = append(out, "assignee")
	}
	if prev.Cost != next.Cost {
		out = append(out, "cost")
	}
	return out
}

// normalizeChangeOperation canonicalizes persisted operation values.
func normalizeChangeOperation(raw string) domain.ChangeOperation {
	switch op := domain.ChangeOperation(strings.TrimSpace(strings.ToLower(raw))); op {
	case domain.ChangeOperationCreate, domain.ChangeOperationUpdate, domain.ChangeOperationMove, domain.ChangeOperationDelete:
		return op
	default:
		return domain.ChangeOperationUpdate
	}
}

// normalizeEventTS ensures event timestamps are always populated and UTC-normalized.
func normalizeEventTS(in time.Time) time.Time {
	if in.IsZero() {
		return time.Now().UTC()
	}
	return in.UTC()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanItem handles scan item.
func scanItem(s scanner) (domain.WorkItem, error) {
	var (
		item       domain.WorkItem
		status     string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(
		&item.ID,
		&item.ParentID,
		&item.OrderIndex,
		&item.Name,
		&status,
		&item.Progress,
		&item.Description,
		&item.Assignee,
		&item.Cost,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WorkItem{}, app.ErrNotFound
		}
		return domain.WorkItem{}, err
	}
	parsed, err := domain.ParseStatus(status)
	if err != nil {
		parsed = domain.StatusPlanned
	}
	item.Status = parsed
	item.CreatedAt = parseTS(createdRaw)
	item.UpdatedAt = parseTS(updatedRaw)
	return item, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

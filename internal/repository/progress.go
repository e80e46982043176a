package repository

import (
	"context"
	"time"

	"github.com/eslsoft/chordnet/internal/entity"
)

// ListProgressQuery holds parameters for listing progress records.
type ListProgressQuery struct {
	Pagination
	FilterOrder

	ItemType entity.ItemType
}

// ProgressRepository is the key-value contract the engine needs from storage.
// Records are addressed by (item id, item type).
type ProgressRepository interface {
	// Get returns entity.ErrProgressNotFound when the item was never attempted.
	Get(ctx context.Context, key entity.ItemKey) (*entity.ProgressRecord, error)
	// Save inserts or replaces the record.
	Save(ctx context.Context, record *entity.ProgressRecord) error
	List(ctx context.Context, query *ListProgressQuery) ([]entity.ProgressRecord, int64, error)
	// ListDue returns records of itemType due at now, most overdue first. An
	// unspecified item type lists every type; limit <= 0 means no limit.
	ListDue(ctx context.Context, itemType entity.ItemType, now time.Time, limit int) ([]entity.ProgressRecord, error)
	ListByType(ctx context.Context, itemType entity.ItemType) ([]entity.ProgressRecord, error)
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/samber/lo"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/infrastructure/database"
	"github.com/eslsoft/chordnet/internal/repository"
	"github.com/eslsoft/chordnet/pkg/filterexpr"
)

var progressColumns = []string{
	"item_type",
	"item_id",
	"repetitions",
	"ease_factor",
	"interval_days",
	"next_review_date",
	"total_attempts",
	"correct_attempts",
	"average_response_time_ms",
	"last_quality",
	"last_attempt_date",
	"created_at",
	"updated_at",
}

type progressRow struct {
	ItemType              string       `db:"item_type"`
	ItemID                string       `db:"item_id"`
	Repetitions           int          `db:"repetitions"`
	EaseFactor            float64      `db:"ease_factor"`
	IntervalDays          float64      `db:"interval_days"`
	NextReviewDate        time.Time    `db:"next_review_date"`
	TotalAttempts         int          `db:"total_attempts"`
	CorrectAttempts       int          `db:"correct_attempts"`
	AverageResponseTimeMs float64      `db:"average_response_time_ms"`
	LastQuality           int          `db:"last_quality"`
	LastAttemptDate       sql.NullTime `db:"last_attempt_date"`
	CreatedAt             time.Time    `db:"created_at"`
	UpdatedAt             time.Time    `db:"updated_at"`
}

// SQLProgressRepository stores progress records in a relational database.
// Queries are built with ent's SQL builder and scanned with sqlx.
type SQLProgressRepository struct {
	db *database.DB
}

// NewSQLProgressRepository constructs a SQL-backed repository.
func NewSQLProgressRepository(db *database.DB) *SQLProgressRepository {
	return &SQLProgressRepository{db: db}
}

func (r *SQLProgressRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Dialect)
}

func (r *SQLProgressRepository) selectRecords() *entsql.Selector {
	b := r.builder()
	return b.Select(progressColumns...).From(b.Table(database.ProgressTableName))
}

func (r *SQLProgressRepository) Get(ctx context.Context, key entity.ItemKey) (*entity.ProgressRecord, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	sel := r.selectRecords()
	sel.Where(entsql.And(
		entsql.EQ(sel.C("item_type"), string(key.Type)),
		entsql.EQ(sel.C("item_id"), entity.NormalizeItemID(key.ID)),
	))
	query, args := sel.Query()

	var row progressRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrProgressNotFound
		}
		return nil, fmt.Errorf("get progress %s: %w", key, translateStoreError(err))
	}
	return row.toEntity(), nil
}

func (r *SQLProgressRepository) Save(ctx context.Context, record *entity.ProgressRecord) error {
	if record == nil {
		return entity.ErrInvalidItemID
	}
	if err := record.Key().Validate(); err != nil {
		return err
	}
	row := newProgressRow(record)
	query, args := r.builder().Insert(database.ProgressTableName).
		Columns(progressColumns...).
		Values(row.values()...).
		OnConflict(
			entsql.ConflictColumns("item_type", "item_id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save progress %s: %w", record.Key(), translateStoreError(err))
	}
	return nil
}

func (r *SQLProgressRepository) List(ctx context.Context, query *repository.ListProgressQuery) ([]entity.ProgressRecord, int64, error) {
	if query == nil {
		query = &repository.ListProgressQuery{}
	}
	preds, err := filterexpr.Parse(query.GetFilter(), listProgressSchema)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: filter: %s", entity.ErrUnsupportedQuery, err.Error())
	}
	order, err := filterexpr.ParseOrder(query.GetOrderBy(), listProgressSchema.Order)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: order_by: %s", entity.ErrUnsupportedQuery, err.Error())
	}
	query.Pagination.Normalize(defaultPageSize, maxPageSize)

	b := r.builder()
	countSel := b.Select(entsql.Count("*")).From(b.Table(database.ProgressTableName))
	if where := r.wherePredicates(countSel, query.ItemType, preds); where != nil {
		countSel.Where(where)
	}
	countQuery, countArgs := countSel.Query()
	var total int64
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count progress: %w", translateStoreError(err))
	}

	sel := r.selectRecords()
	if where := r.wherePredicates(sel, query.ItemType, preds); where != nil {
		sel.Where(where)
	}
	for _, term := range order {
		if term.Desc {
			sel.OrderBy(entsql.Desc(sel.C(term.Field)))
		} else {
			sel.OrderBy(entsql.Asc(sel.C(term.Field)))
		}
	}
	sel.Limit(int(query.PageSize)).Offset(int(query.Offset()))

	records, err := r.selectAll(ctx, sel)
	if err != nil {
		return nil, 0, fmt.Errorf("list progress: %w", err)
	}
	return records, total, nil
}

func (r *SQLProgressRepository) ListDue(ctx context.Context, itemType entity.ItemType, now time.Time, limit int) ([]entity.ProgressRecord, error) {
	sel := r.selectRecords()
	preds := []*entsql.Predicate{entsql.LTE(sel.C("next_review_date"), now.UTC())}
	if itemType != entity.ItemTypeUnspecified {
		preds = append(preds, entsql.EQ(sel.C("item_type"), string(itemType)))
	}
	sel.Where(entsql.And(preds...)).
		OrderBy(entsql.Asc(sel.C("next_review_date")), entsql.Asc(sel.C("item_id")))
	if limit > 0 {
		sel.Limit(limit)
	}

	records, err := r.selectAll(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("list due progress: %w", err)
	}
	return records, nil
}

func (r *SQLProgressRepository) ListByType(ctx context.Context, itemType entity.ItemType) ([]entity.ProgressRecord, error) {
	sel := r.selectRecords()
	if itemType != entity.ItemTypeUnspecified {
		sel.Where(entsql.EQ(sel.C("item_type"), string(itemType)))
	}
	sel.OrderBy(entsql.Asc(sel.C("item_type")), entsql.Asc(sel.C("item_id")))

	records, err := r.selectAll(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("list progress by type: %w", err)
	}
	return records, nil
}

func (r *SQLProgressRepository) selectAll(ctx context.Context, sel *entsql.Selector) ([]entity.ProgressRecord, error) {
	query, args := sel.Query()
	var rows []progressRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, translateStoreError(err)
	}
	return lo.Map(rows, func(row progressRow, _ int) entity.ProgressRecord {
		return *row.toEntity()
	}), nil
}

func (r *SQLProgressRepository) wherePredicates(sel *entsql.Selector, itemType entity.ItemType, preds []filterexpr.Predicate) *entsql.Predicate {
	var out []*entsql.Predicate
	if itemType != entity.ItemTypeUnspecified {
		out = append(out, entsql.EQ(sel.C("item_type"), string(itemType)))
	}
	for _, p := range preds {
		col := sel.C(p.Field)
		value := p.Value
		if ts, ok := value.(time.Time); ok {
			value = ts.UTC()
		}
		switch p.Op {
		case filterexpr.OpEQ:
			out = append(out, entsql.EQ(col, value))
		case filterexpr.OpGTE:
			out = append(out, entsql.GTE(col, value))
		case filterexpr.OpLTE:
			out = append(out, entsql.LTE(col, value))
		case filterexpr.OpSW:
			out = append(out, entsql.HasPrefix(col, value.(string)))
		case filterexpr.OpIN:
			list, _ := value.([]string)
			out = append(out, entsql.In(col, lo.ToAnySlice(list)...))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return entsql.And(out...)
}

func newProgressRow(rec *entity.ProgressRecord) progressRow {
	row := progressRow{
		ItemType:              string(rec.ItemType),
		ItemID:                entity.NormalizeItemID(rec.ItemID),
		Repetitions:           rec.Repetitions,
		EaseFactor:            rec.EaseFactor,
		IntervalDays:          rec.IntervalDays,
		NextReviewDate:        rec.NextReviewDate.UTC(),
		TotalAttempts:         rec.TotalAttempts,
		CorrectAttempts:       rec.CorrectAttempts,
		AverageResponseTimeMs: rec.AverageResponseTimeMs,
		LastQuality:           rec.LastQuality,
		CreatedAt:             rec.CreatedAt.UTC(),
		UpdatedAt:             rec.UpdatedAt.UTC(),
	}
	if rec.LastAttemptDate != nil {
		row.LastAttemptDate = sql.NullTime{Time: rec.LastAttemptDate.UTC(), Valid: true}
	}
	return row
}

func (row progressRow) values() []any {
	var last any
	if row.LastAttemptDate.Valid {
		last = row.LastAttemptDate.Time
	}
	return []any{
		row.ItemType,
		row.ItemID,
		row.Repetitions,
		row.EaseFactor,
		row.IntervalDays,
		row.NextReviewDate,
		row.TotalAttempts,
		row.CorrectAttempts,
		row.AverageResponseTimeMs,
		row.LastQuality,
		last,
		row.CreatedAt,
		row.UpdatedAt,
	}
}

func (row progressRow) toEntity() *entity.ProgressRecord {
	rec := &entity.ProgressRecord{
		ItemID:                row.ItemID,
		ItemType:              entity.ItemType(row.ItemType),
		Repetitions:           row.Repetitions,
		EaseFactor:            row.EaseFactor,
		IntervalDays:          row.IntervalDays,
		NextReviewDate:        row.NextReviewDate.UTC(),
		TotalAttempts:         row.TotalAttempts,
		CorrectAttempts:       row.CorrectAttempts,
		AverageResponseTimeMs: row.AverageResponseTimeMs,
		LastQuality:           row.LastQuality,
		CreatedAt:             row.CreatedAt.UTC(),
		UpdatedAt:             row.UpdatedAt.UTC(),
	}
	if row.LastAttemptDate.Valid {
		last := row.LastAttemptDate.Time.UTC()
		rec.LastAttemptDate = &last
	}
	return rec
}

// translateStoreError recognizes a missing schema across the supported drivers.
func translateStoreError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return fmt.Errorf("%w: %s", entity.ErrStoreNotInitialized, pgErr.Message)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
		return fmt.Errorf("%w: %s", entity.ErrStoreNotInitialized, pqErr.Message)
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && strings.Contains(liteErr.Error(), "no such table") {
		return fmt.Errorf("%w: %s", entity.ErrStoreNotInitialized, liteErr.Error())
	}
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%w: %s", entity.ErrStoreNotInitialized, err.Error())
	}
	return err
}

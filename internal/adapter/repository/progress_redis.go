package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/repository"
	"github.com/eslsoft/chordnet/pkg/filterexpr"
)

// RedisProgressRepository keeps each record in a hash and indexes due dates
// in one sorted set per item type, scored by next review time in unix ms.
type RedisProgressRepository struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisProgressRepository constructs a redis-backed repository.
func NewRedisProgressRepository(client redis.UniversalClient, prefix string) *RedisProgressRepository {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "chordnet"
	}
	return &RedisProgressRepository{client: client, prefix: prefix}
}

func (r *RedisProgressRepository) recordKey(key entity.ItemKey) string {
	return fmt.Sprintf("%s:progress:%s:%s", r.prefix, key.Type, entity.NormalizeItemID(key.ID))
}

func (r *RedisProgressRepository) dueKey(itemType entity.ItemType) string {
	return fmt.Sprintf("%s:due:%s", r.prefix, itemType)
}

func (r *RedisProgressRepository) Get(ctx context.Context, key entity.ItemKey) (*entity.ProgressRecord, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	fields, err := r.client.HGetAll(ctx, r.recordKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("get progress %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, entity.ErrProgressNotFound
	}
	return decodeProgressHash(fields)
}

func (r *RedisProgressRepository) Save(ctx context.Context, record *entity.ProgressRecord) error {
	if record == nil {
		return entity.ErrInvalidItemID
	}
	key := record.Key()
	if err := key.Validate(); err != nil {
		return err
	}
	id := entity.NormalizeItemID(key.ID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.recordKey(key), encodeProgressHash(record))
		pipe.ZAdd(ctx, r.dueKey(key.Type), redis.Z{
			Score:  float64(record.NextReviewDate.UnixMilli()),
			Member: id,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save progress %s: %w", key, err)
	}
	return nil
}

func (r *RedisProgressRepository) List(ctx context.Context, query *repository.ListProgressQuery) ([]entity.ProgressRecord, int64, error) {
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

	all, err := r.ListByType(ctx, query.ItemType)
	if err != nil {
		return nil, 0, err
	}
	matched := lo.Filter(all, func(rec entity.ProgressRecord, _ int) bool {
		return filterexpr.Match(preds, func(field string) any { return progressField(rec, field) })
	})
	sortProgress(matched, order)

	total := int64(len(matched))
	start := min(int(query.Offset()), len(matched))
	end := min(start+int(query.PageSize), len(matched))
	return matched[start:end], total, nil
}

func (r *RedisProgressRepository) ListDue(ctx context.Context, itemType entity.ItemType, now time.Time, limit int) ([]entity.ProgressRecord, error) {
	var out []entity.ProgressRecord
	for _, t := range typesOf(itemType) {
		rng := &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(now.UnixMilli(), 10)}
		if limit > 0 {
			rng.Count = int64(limit)
		}
		ids, err := r.client.ZRangeByScore(ctx, r.dueKey(t), rng).Result()
		if err != nil {
			return nil, fmt.Errorf("list due %s: %w", t, err)
		}
		records, err := r.load(ctx, t, ids)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].NextReviewDate.Equal(out[j].NextReviewDate) {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].NextReviewDate.Before(out[j].NextReviewDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *RedisProgressRepository) ListByType(ctx context.Context, itemType entity.ItemType) ([]entity.ProgressRecord, error) {
	var out []entity.ProgressRecord
	for _, t := range typesOf(itemType) {
		ids, err := r.client.ZRange(ctx, r.dueKey(t), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("list progress %s: %w", t, err)
		}
		sort.Strings(ids)
		records, err := r.load(ctx, t, ids)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

func (r *RedisProgressRepository) load(ctx context.Context, itemType entity.ItemType, ids []string) ([]entity.ProgressRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.recordKey(entity.ItemKey{ID: id, Type: itemType}))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load progress %s: %w", itemType, err)
	}

	out := make([]entity.ProgressRecord, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// index entry without a hash; skip it
			continue
		}
		rec, err := decodeProgressHash(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func typesOf(itemType entity.ItemType) []entity.ItemType {
	if itemType == entity.ItemTypeUnspecified {
		return entity.ItemTypes
	}
	return []entity.ItemType{itemType}
}

func encodeProgressHash(rec *entity.ProgressRecord) map[string]any {
	last := ""
	if rec.LastAttemptDate != nil {
		last = rec.LastAttemptDate.UTC().Format(time.RFC3339Nano)
	}
	return map[string]any{
		"item_type":                string(rec.ItemType),
		"item_id":                  entity.NormalizeItemID(rec.ItemID),
		"repetitions":              rec.Repetitions,
		"ease_factor":              strconv.FormatFloat(rec.EaseFactor, 'g', -1, 64),
		"interval_days":            strconv.FormatFloat(rec.IntervalDays, 'g', -1, 64),
		"next_review_date":         rec.NextReviewDate.UTC().Format(time.RFC3339Nano),
		"total_attempts":           rec.TotalAttempts,
		"correct_attempts":         rec.CorrectAttempts,
		"average_response_time_ms": strconv.FormatFloat(rec.AverageResponseTimeMs, 'g', -1, 64),
		"last_quality":             rec.LastQuality,
		"last_attempt_date":        last,
		"created_at":               rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":               rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeProgressHash(fields map[string]string) (*entity.ProgressRecord, error) {
	var errs []error
	atoi := func(name string) int {
		v, err := strconv.Atoi(fields[name])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return v
	}
	atof := func(name string) float64 {
		v, err := strconv.ParseFloat(fields[name], 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return v
	}
	ts := func(name string) time.Time {
		v, err := time.Parse(time.RFC3339Nano, fields[name])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return v
	}

	rec := &entity.ProgressRecord{
		ItemID:                fields["item_id"],
		ItemType:              entity.ItemType(fields["item_type"]),
		Repetitions:           atoi("repetitions"),
		EaseFactor:            atof("ease_factor"),
		IntervalDays:          atof("interval_days"),
		NextReviewDate:        ts("next_review_date"),
		TotalAttempts:         atoi("total_attempts"),
		CorrectAttempts:       atoi("correct_attempts"),
		AverageResponseTimeMs: atof("average_response_time_ms"),
		LastQuality:           atoi("last_quality"),
		CreatedAt:             ts("created_at"),
		UpdatedAt:             ts("updated_at"),
	}
	if fields["last_attempt_date"] != "" {
		last := ts("last_attempt_date")
		rec.LastAttemptDate = &last
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("decode progress %s:%s: %w", rec.ItemType, rec.ItemID, errors.Join(errs...))
	}
	return rec, nil
}

// progressField exposes a record's listable fields by column name.
func progressField(rec entity.ProgressRecord, field string) any {
	switch field {
	case "item_type":
		return string(rec.ItemType)
	case "item_id":
		return rec.ItemID
	case "repetitions":
		return rec.Repetitions
	case "ease_factor":
		return rec.EaseFactor
	case "interval_days":
		return rec.IntervalDays
	case "total_attempts":
		return rec.TotalAttempts
	case "next_review_date":
		return rec.NextReviewDate
	case "updated_at":
		return rec.UpdatedAt
	default:
		return nil
	}
}

func sortProgress(records []entity.ProgressRecord, order []filterexpr.OrderTerm) {
	sort.SliceStable(records, func(i, j int) bool {
		for _, term := range order {
			c := compareField(progressField(records[i], term.Field), progressField(records[j], term.Field))
			if c == 0 {
				continue
			}
			if term.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareField(a, b any) int {
	switch av := a.(type) {
	case string:
		return strings.Compare(av, b.(string))
	case int:
		return av - b.(int)
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case time.Time:
		return av.Compare(b.(time.Time))
	}
	return 0
}

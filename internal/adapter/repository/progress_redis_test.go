package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/repository"
	"github.com/eslsoft/chordnet/pkg/filterexpr"
)

func TestProgressHashRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	last := now.Add(-time.Minute)
	rec := &entity.ProgressRecord{
		ItemID:                "That",
		ItemType:              entity.ItemTypeWord,
		Repetitions:           3,
		EaseFactor:            2.36,
		IntervalDays:          1.5,
		NextReviewDate:        now.Add(36 * time.Hour),
		TotalAttempts:         7,
		CorrectAttempts:       6,
		AverageResponseTimeMs: 733.25,
		LastQuality:           4,
		LastAttemptDate:       &last,
		CreatedAt:             now.Add(-48 * time.Hour),
		UpdatedAt:             now,
	}

	fields := make(map[string]string)
	for k, v := range encodeProgressHash(rec) {
		fields[k] = fmt.Sprint(v)
	}
	got, err := decodeProgressHash(fields)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ItemID != "that" || got.ItemType != entity.ItemTypeWord {
		t.Fatalf("unexpected key %s", got.Key())
	}
	if got.EaseFactor != rec.EaseFactor || got.IntervalDays != rec.IntervalDays || got.AverageResponseTimeMs != rec.AverageResponseTimeMs {
		t.Fatalf("float fields drifted: %+v", got)
	}
	if !got.NextReviewDate.Equal(rec.NextReviewDate) || got.LastAttemptDate == nil || !got.LastAttemptDate.Equal(last) {
		t.Fatalf("time fields drifted: %+v", got)
	}

	rec.LastAttemptDate = nil
	fields["last_attempt_date"] = fmt.Sprint(encodeProgressHash(rec)["last_attempt_date"])
	got, err = decodeProgressHash(fields)
	if err != nil {
		t.Fatalf("decode without last attempt: %v", err)
	}
	if got.LastAttemptDate != nil {
		t.Fatalf("expected nil last attempt, got %v", got.LastAttemptDate)
	}
}

func TestDecodeProgressHashRejectsCorruptFields(t *testing.T) {
	_, err := decodeProgressHash(map[string]string{
		"item_type":        "character",
		"item_id":          "a",
		"repetitions":      "two",
		"next_review_date": "yesterday",
	})
	if err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestSortAndMatchInMemory(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []entity.ProgressRecord{
		{ItemID: "b", ItemType: entity.ItemTypeCharacter, Repetitions: 1, NextReviewDate: now.Add(time.Hour)},
		{ItemID: "a", ItemType: entity.ItemTypeCharacter, Repetitions: 3, NextReviewDate: now.Add(time.Hour)},
		{ItemID: "c", ItemType: entity.ItemTypeCharacter, Repetitions: 0, NextReviewDate: now},
	}

	order, err := filterexpr.ParseOrder("", listProgressSchema.Order)
	if err != nil {
		t.Fatalf("parse order: %v", err)
	}
	sortProgress(records, order)
	if ids := itemIDs(records); !equalStrings(ids, []string{"c", "a", "b"}) {
		t.Fatalf("default order: got %v", ids)
	}

	preds, err := filterexpr.Parse("repetitions >= 1 && item_id in ['a', 'c']", listProgressSchema)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	var matched []string
	for _, rec := range records {
		if filterexpr.Match(preds, func(field string) any { return progressField(rec, field) }) {
			matched = append(matched, rec.ItemID)
		}
	}
	if !equalStrings(matched, []string{"a"}) {
		t.Fatalf("matched: got %v", matched)
	}
}

// TestRedisProgressRepository runs against a live server when
// CHORDNET_TEST_REDIS_ADDR is set.
func TestRedisProgressRepository(t *testing.T) {
	addr := os.Getenv("CHORDNET_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHORDNET_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	prefix := fmt.Sprintf("chordnet-test-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	})
	repo := NewRedisProgressRepository(client, prefix)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		rec := entity.NewProgressRecord(entity.ItemKey{ID: id, Type: entity.ItemTypeCharacter}, now)
		rec.Repetitions = i
		rec.NextReviewDate = now.Add(time.Duration(i-1) * time.Hour)
		if err := repo.Save(ctx, rec); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	got, err := repo.Get(ctx, entity.ItemKey{ID: "B", Type: entity.ItemTypeCharacter})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Repetitions != 1 {
		t.Fatalf("unexpected record %+v", got)
	}

	due, err := repo.ListDue(ctx, entity.ItemTypeUnspecified, now, 0)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if ids := itemIDs(due); !equalStrings(ids, []string{"a", "b"}) {
		t.Fatalf("due: got %v", ids)
	}

	records, total, err := repo.List(ctx, &repository.ListProgressQuery{
		FilterOrder: repository.FilterOrder{Filter: "repetitions >= 1", OrderBy: "repetitions desc"},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || !equalStrings(itemIDs(records), []string{"c", "b"}) {
		t.Fatalf("list: total=%d ids=%v", total, itemIDs(records))
	}
}

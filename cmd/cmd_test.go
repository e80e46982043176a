package cmd

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/eslsoft/chordnet/internal/entity"
)

func TestNormalizeItemTypes(t *testing.T) {
	got := normalizeItemTypes([]string{"Character, word", " ", "two_key_chord"})
	want := []string{"character", "word", "two_key_chord"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("normalizeItemTypes = %v, want %v", got, want)
	}
	if got := normalizeItemTypes([]string{" , "}); got != nil {
		t.Fatalf("blank input should normalise to nil, got %v", got)
	}
}

func TestProgressStep(t *testing.T) {
	cases := map[int]int{0: 1000, 5: 1, 200: 10, 1_000_000: 1000}
	for total, want := range cases {
		if got := progressStep(total); got != want {
			t.Errorf("progressStep(%d) = %d, want %d", total, got, want)
		}
	}
}

func TestCLIProgressPrintsSections(t *testing.T) {
	var buf bytes.Buffer
	p := newCLIProgress(&buf)
	p.Start("word", 2)
	p.Increment("word", 1)
	p.Increment("word", 1)
	p.Finish("word")

	out := buf.String()
	for _, want := range []string{"exporting word (2 records)", "word: 2/2", "exported word: 2 records"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		at   time.Time
		want string
	}{
		{now, "now"},
		{now.Add(90 * time.Minute), "in 1h30m0s"},
		{now.Add(-10 * time.Minute), "10m0s ago"},
	}
	for _, tc := range cases {
		if got := relativeTime(tc.at, now); got != tc.want {
			t.Errorf("relativeTime(%s) = %q, want %q", tc.at, got, tc.want)
		}
	}
}

func TestPrintViews(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	views := []entity.ProgressView{{
		Record: entity.ProgressRecord{
			ItemID:      "the",
			ItemType:    entity.ItemTypeWord,
			Repetitions: 2,
			EaseFactor:  2.5,
		},
		Mastery:        entity.MasteryLearning,
		Confidence:     entity.ConfidenceModerate,
		NextReviewDate: now.Add(time.Hour),
		Accuracy:       0.75,
	}}

	var buf bytes.Buffer
	if err := printViews(&buf, views, now); err != nil {
		t.Fatalf("printViews: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	for _, want := range []string{"word", "the", "learning", "moderate", "75%", "2.50", "in 1h0m0s"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row %q missing %q", lines[1], want)
		}
	}
}

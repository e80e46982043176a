package filterexpr

import (
	"strings"
	"testing"
	"time"
)

var testSchema = Schema{
	Fields: map[string]Field{
		"item_type":   {Kind: KindString, Ops: []Op{OpEQ, OpIN}},
		"item_id":     {Kind: KindString, Ops: []Op{OpEQ, OpSW}},
		"repetitions": {Kind: KindNumber, Ops: []Op{OpGTE, OpLTE}},
		"next_review": {Kind: KindTimestamp, Ops: []Op{OpLTE, OpGTE}},
	},
}

func TestParseConjunction(t *testing.T) {
	filter := "item_type in ['word', 'character'] && item_id.startsWith('th') && repetitions >= 3 && next_review <= timestamp('2025-01-01T00:00:00Z')"
	preds, err := Parse(filter, testSchema)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(preds) != 4 {
		t.Fatalf("expected 4 predicates, got %d", len(preds))
	}

	byField := map[string]Predicate{}
	for _, p := range preds {
		byField[p.Field] = p
	}
	if list, ok := byField["item_type"].Value.([]string); !ok || len(list) != 2 || list[0] != "word" {
		t.Fatalf("unexpected item_type predicate %+v", byField["item_type"])
	}
	if p := byField["item_id"]; p.Op != OpSW || p.Value != "th" {
		t.Fatalf("unexpected item_id predicate %+v", p)
	}
	if p := byField["repetitions"]; p.Op != OpGTE || p.Value != float64(3) {
		t.Fatalf("unexpected repetitions predicate %+v", p)
	}
	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if ts, ok := byField["next_review"].Value.(time.Time); !ok || !ts.Equal(want) {
		t.Fatalf("unexpected next_review predicate %+v", byField["next_review"])
	}
}

func TestParseEmpty(t *testing.T) {
	preds, err := Parse("   ", testSchema)
	if err != nil || preds != nil {
		t.Fatalf("expected no predicates, got %v, %v", preds, err)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"item_type == 'word' || item_id == 'a'": "only AND",
		"ease >= 2":                             "not allowed",
		"item_id >= 'a'":                        "operator",
		"repetitions >= 'three'":                "expected number",
		"item_type in []":                       "must not be empty",
		"item_type ==":                          "invalid filter",
	}
	for filter, want := range cases {
		t.Run(filter, func(t *testing.T) {
			_, err := Parse(filter, testSchema)
			if err == nil {
				t.Fatalf("expected error for %q", filter)
			}
			if !strings.Contains(err.Error(), want) {
				t.Fatalf("expected error containing %q, got %v", want, err)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	preds, err := Parse("item_type == 'word' && item_id.startsWith('th') && repetitions >= 2", testSchema)
	if err != nil {
		t.Fatal(err)
	}
	record := map[string]any{"item_type": "word", "item_id": "the", "repetitions": 2}
	if !Match(preds, func(f string) any { return record[f] }) {
		t.Fatal("expected record to match")
	}
	record["repetitions"] = 1
	if Match(preds, func(f string) any { return record[f] }) {
		t.Fatal("expected record with too few repetitions to be rejected")
	}
}

func TestParseOrder(t *testing.T) {
	schema := OrderSchema{
		Fields:   []string{"next_review", "item_id", "updated_at"},
		Default:  OrderTerm{Field: "next_review"},
		Fallback: OrderTerm{Field: "item_id"},
	}

	terms, err := ParseOrder("", schema)
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 2 || terms[0].Field != "next_review" || terms[1].Field != "item_id" {
		t.Fatalf("unexpected default order %+v", terms)
	}

	terms, err = ParseOrder("updated_at desc", schema)
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 2 || !terms[0].Desc || terms[0].Field != "updated_at" || terms[1].Field != "item_id" {
		t.Fatalf("unexpected order %+v", terms)
	}

	terms, err = ParseOrder("item_id desc", schema)
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 1 {
		t.Fatalf("fallback must not be repeated, got %+v", terms)
	}

	for _, raw := range []string{"score", "item_id sideways", "item_id, item_id", "item_id, updated_at, next_review"} {
		if _, err := ParseOrder(raw, schema); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

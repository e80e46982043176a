package repository

import "github.com/eslsoft/chordnet/pkg/filterexpr"

// listProgressSchema whitelists the filter and order_by keys of progress
// listings. Keys are column names in the SQL store and hash fields in redis.
var listProgressSchema = filterexpr.Schema{
	Fields: map[string]filterexpr.Field{
		"item_type":        {Kind: filterexpr.KindString, Ops: []filterexpr.Op{filterexpr.OpEQ, filterexpr.OpIN}},
		"item_id":          {Kind: filterexpr.KindString, Ops: []filterexpr.Op{filterexpr.OpEQ, filterexpr.OpSW, filterexpr.OpIN}},
		"repetitions":      {Kind: filterexpr.KindNumber, Ops: []filterexpr.Op{filterexpr.OpGTE, filterexpr.OpLTE}},
		"ease_factor":      {Kind: filterexpr.KindNumber, Ops: []filterexpr.Op{filterexpr.OpGTE, filterexpr.OpLTE}},
		"interval_days":    {Kind: filterexpr.KindNumber, Ops: []filterexpr.Op{filterexpr.OpGTE, filterexpr.OpLTE}},
		"total_attempts":   {Kind: filterexpr.KindNumber, Ops: []filterexpr.Op{filterexpr.OpGTE, filterexpr.OpLTE}},
		"next_review_date": {Kind: filterexpr.KindTimestamp, Ops: []filterexpr.Op{filterexpr.OpGTE, filterexpr.OpLTE}},
	},
	Order: filterexpr.OrderSchema{
		Fields: []string{
			"item_id",
			"item_type",
			"next_review_date",
			"updated_at",
			"repetitions",
			"ease_factor",
			"total_attempts",
		},
		Default:  filterexpr.OrderTerm{Field: "next_review_date"},
		Fallback: filterexpr.OrderTerm{Field: "item_id"},
	},
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

package database

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// ProgressTableName is the table holding progress records.
const ProgressTableName = "progress_records"

var progressColumns = []*schema.Column{
	{Name: "item_type", Type: field.TypeString, Size: 32},
	{Name: "item_id", Type: field.TypeString, Size: 128},
	{Name: "repetitions", Type: field.TypeInt, Default: 0},
	{Name: "ease_factor", Type: field.TypeFloat64, Default: 2.5},
	{Name: "interval_days", Type: field.TypeFloat64, Default: 0},
	{Name: "next_review_date", Type: field.TypeTime},
	{Name: "total_attempts", Type: field.TypeInt, Default: 0},
	{Name: "correct_attempts", Type: field.TypeInt, Default: 0},
	{Name: "average_response_time_ms", Type: field.TypeFloat64, Default: 0},
	{Name: "last_quality", Type: field.TypeInt, Default: 0},
	{Name: "last_attempt_date", Type: field.TypeTime, Nullable: true},
	{Name: "created_at", Type: field.TypeTime},
	{Name: "updated_at", Type: field.TypeTime},
}

// ProgressTable describes progress_records for migrations.
var ProgressTable = &schema.Table{
	Name:       ProgressTableName,
	Columns:    progressColumns,
	PrimaryKey: []*schema.Column{progressColumns[0], progressColumns[1]},
	Indexes: []*schema.Index{
		{
			Name:    "progressrecord_item_type_next_review_date",
			Columns: []*schema.Column{progressColumns[0], progressColumns[5]},
		},
	},
}

// Tables lists every table the application owns.
var Tables = []*schema.Table{ProgressTable}

// Migrate creates or upgrades the schema.
func Migrate(ctx context.Context, db *DB) error {
	drv := entsql.OpenDB(db.Dialect, db.DB.DB)
	migrate, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := migrate.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Package backup streams progress records to and from newline-delimited JSON.
//
// The first line is a meta record describing the export; every following line
// carries one progress record. The format is store independent, so a backup
// taken from SQL can be restored into redis and the other way round.
package backup

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"entgo.io/ent/dialect/sql/schema"
	"github.com/samber/lo"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/infrastructure/database"
	"github.com/eslsoft/chordnet/internal/repository"
)

const (
	defaultBatchSize = 500
	formatVersion    = 1

	recordMeta     = "meta"
	recordProgress = "progress"
)

var errNoItemTypesSelected = errors.New("backup: no item types selected")

// ProgressReporter receives callbacks while an export runs, one section per
// item type.
type ProgressReporter interface {
	Start(section string, total int)
	Increment(section string, delta int)
	Finish(section string)
}

type noopProgress struct{}

func (noopProgress) Start(string, int)     {}
func (noopProgress) Increment(string, int) {}
func (noopProgress) Finish(string)         {}

// Service exports and imports progress records through a repository.
type Service struct {
	repo       repository.ProgressRepository
	batchSize  int
	clock      func() time.Time
	schemaHash string
}

type Option func(*Service)

// WithBatchSize sets how many records are read per page during export.
func WithBatchSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithClock overrides the export timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs a backup service over repo.
func NewService(repo repository.ProgressRepository, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("backup: repository is required")
	}
	svc := &Service{
		repo:       repo,
		batchSize:  defaultBatchSize,
		clock:      time.Now,
		schemaHash: computeSchemaHash(database.Tables),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

type ExportOption func(*exportConfig)

type exportConfig struct {
	itemTypes []string
	reporter  ProgressReporter
}

// WithItemTypes restricts export to the given item types.
func WithItemTypes(itemTypes []string) ExportOption {
	return func(cfg *exportConfig) {
		if len(itemTypes) == 0 {
			return
		}
		cfg.itemTypes = append([]string{}, itemTypes...)
	}
}

// WithProgressReporter registers a reporter that receives progress callbacks during export.
func WithProgressReporter(reporter ProgressReporter) ExportOption {
	return func(cfg *exportConfig) {
		cfg.reporter = reporter
	}
}

type ImportOption func(*importConfig)

type importConfig struct {
	itemTypes []string
	keepNewer bool
	dryRun    bool
}

// WithImportItemTypes restricts import to the given item types.
func WithImportItemTypes(itemTypes []string) ImportOption {
	return func(cfg *importConfig) {
		if len(itemTypes) == 0 {
			return
		}
		cfg.itemTypes = append([]string{}, itemTypes...)
	}
}

// WithKeepNewer skips incoming records that are older than the stored copy.
func WithKeepNewer() ImportOption {
	return func(cfg *importConfig) { cfg.keepNewer = true }
}

// WithDryRun validates the backup without writing anything.
func WithDryRun() ImportOption {
	return func(cfg *importConfig) { cfg.dryRun = true }
}

// ImportStats summarises an import.
type ImportStats struct {
	Read    int
	Written int
	Skipped int
}

type record struct {
	Type       string         `json:"type"`
	Version    int            `json:"version,omitempty"`
	ExportedAt *time.Time     `json:"exported_at,omitempty"`
	SchemaHash string         `json:"schema_hash,omitempty"`
	ItemTypes  []string       `json:"item_types,omitempty"`
	RowCounts  map[string]int `json:"row_counts,omitempty"`
	Payload    any            `json:"payload,omitempty"`
}

type rawRecord struct {
	Type       string          `json:"type"`
	Version    int             `json:"version"`
	ExportedAt *time.Time      `json:"exported_at"`
	SchemaHash string          `json:"schema_hash"`
	ItemTypes  []string        `json:"item_types"`
	RowCounts  map[string]int  `json:"row_counts"`
	Payload    json.RawMessage `json:"payload"`
}

// progressPayload is the wire form of one record. Field names match the SQL
// columns.
type progressPayload struct {
	ItemType              string     `json:"item_type"`
	ItemID                string     `json:"item_id"`
	Repetitions           int        `json:"repetitions"`
	EaseFactor            float64    `json:"ease_factor"`
	IntervalDays          float64    `json:"interval_days"`
	NextReviewDate        time.Time  `json:"next_review_date"`
	TotalAttempts         int        `json:"total_attempts"`
	CorrectAttempts       int        `json:"correct_attempts"`
	AverageResponseTimeMs float64    `json:"average_response_time_ms"`
	LastQuality           int        `json:"last_quality"`
	LastAttemptDate       *time.Time `json:"last_attempt_date,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (s *Service) Export(ctx context.Context, w io.Writer, opts ...ExportOption) error {
	cfg := exportConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	itemTypes, err := selectItemTypes(cfg.itemTypes)
	if err != nil {
		return err
	}
	reporter := cfg.reporter
	if reporter == nil {
		reporter = noopProgress{}
	}

	counts := make(map[string]int, len(itemTypes))
	for _, itemType := range itemTypes {
		_, total, err := s.repo.List(ctx, &repository.ListProgressQuery{
			Pagination: repository.Pagination{PageNo: 1, PageSize: 1},
			ItemType:   itemType,
		})
		if err != nil {
			return fmt.Errorf("count %s records: %w", itemType, err)
		}
		counts[string(itemType)] = int(total)
	}

	writer := bufio.NewWriter(w)
	defer writer.Flush()

	now := s.clock().UTC()
	meta := record{
		Type:       recordMeta,
		Version:    formatVersion,
		ExportedAt: &now,
		SchemaHash: s.schemaHash,
		ItemTypes:  lo.Map(itemTypes, func(t entity.ItemType, _ int) string { return string(t) }),
		RowCounts:  counts,
	}
	if err := writeRecord(writer, meta); err != nil {
		return err
	}

	for _, itemType := range itemTypes {
		section := string(itemType)
		reporter.Start(section, counts[section])
		if err := s.exportItemType(ctx, itemType, reporter, writer); err != nil {
			return err
		}
		reporter.Finish(section)
	}
	return writer.Flush()
}

func (s *Service) exportItemType(ctx context.Context, itemType entity.ItemType, reporter ProgressReporter, w io.Writer) error {
	for page := int32(1); ; page++ {
		records, _, err := s.repo.List(ctx, &repository.ListProgressQuery{
			Pagination:  repository.Pagination{PageNo: page, PageSize: int32(s.batchSize)},
			FilterOrder: repository.FilterOrder{OrderBy: "item_id"},
			ItemType:    itemType,
		})
		if err != nil {
			return fmt.Errorf("list %s records: %w", itemType, err)
		}
		for i := range records {
			if err := writeRecord(w, record{Type: recordProgress, Payload: toPayload(&records[i])}); err != nil {
				return err
			}
		}
		if len(records) == 0 {
			return nil
		}
		reporter.Increment(string(itemType), len(records))
	}
}

func (s *Service) Import(ctx context.Context, r io.Reader, opts ...ImportOption) (ImportStats, error) {
	cfg := importConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	itemTypes, err := selectItemTypes(cfg.itemTypes)
	if err != nil {
		return ImportStats{}, err
	}
	wanted := lo.SliceToMap(itemTypes, func(t entity.ItemType) (entity.ItemType, struct{}) {
		return t, struct{}{}
	})

	var (
		stats    ImportStats
		metaSeen bool
		pending  []*entity.ProgressRecord
	)

	br := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return stats, fmt.Errorf("read backup: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var rec rawRecord
			if err := json.Unmarshal(line, &rec); err != nil {
				return stats, fmt.Errorf("decode line %d: %w", lineNo, err)
			}

			switch rec.Type {
			case recordMeta:
				if rec.Version != formatVersion {
					return stats, fmt.Errorf("backup: unsupported format version %d", rec.Version)
				}
				metaSeen = true
			case recordProgress:
				if !metaSeen {
					return stats, errors.New("backup: missing meta record")
				}
				if len(rec.Payload) == 0 {
					return stats, fmt.Errorf("backup: line %d: missing payload", lineNo)
				}
				progress, err := decodePayload(rec.Payload, s.clock())
				if err != nil {
					return stats, fmt.Errorf("backup: line %d: %w", lineNo, err)
				}
				stats.Read++
				if _, ok := wanted[progress.ItemType]; !ok {
					stats.Skipped++
					break
				}
				pending = append(pending, progress)
			default:
				// Unknown record types come from newer writers; skip them.
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
	}
	if !metaSeen {
		return stats, errors.New("backup: missing meta record")
	}

	// Everything is decoded before the first write so a corrupt file leaves
	// the store untouched.
	for _, progress := range pending {
		if cfg.keepNewer {
			existing, err := s.repo.Get(ctx, progress.Key())
			switch {
			case err == nil:
				if !progress.UpdatedAt.After(existing.UpdatedAt) {
					stats.Skipped++
					continue
				}
			case !errors.Is(err, entity.ErrProgressNotFound):
				return stats, fmt.Errorf("read existing %s: %w", progress.Key(), err)
			}
		}
		if cfg.dryRun {
			stats.Written++
			continue
		}
		if err := s.repo.Save(ctx, progress); err != nil {
			return stats, fmt.Errorf("import %s: %w", progress.Key(), err)
		}
		stats.Written++
	}
	return stats, nil
}

func selectItemTypes(requested []string) ([]entity.ItemType, error) {
	if len(requested) == 0 {
		return append([]entity.ItemType(nil), entity.ItemTypes...), nil
	}
	set := make(map[entity.ItemType]struct{}, len(requested))
	for _, name := range requested {
		if strings.TrimSpace(name) == "" {
			continue
		}
		itemType := entity.ParseItemType(name)
		if !itemType.Valid() {
			return nil, fmt.Errorf("backup: unsupported item type %q", name)
		}
		set[itemType] = struct{}{}
	}
	if len(set) == 0 {
		return nil, errNoItemTypesSelected
	}
	return lo.Filter(entity.ItemTypes, func(t entity.ItemType, _ int) bool {
		_, ok := set[t]
		return ok
	}), nil
}

func toPayload(rec *entity.ProgressRecord) progressPayload {
	p := progressPayload{
		ItemType:              string(rec.ItemType),
		ItemID:                rec.ItemID,
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
		last := rec.LastAttemptDate.UTC()
		p.LastAttemptDate = &last
	}
	return p
}

// decodePayload parses and validates one record. Out-of-range values are
// clamped the same way the scheduler clamps them.
func decodePayload(raw json.RawMessage, now time.Time) (*entity.ProgressRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var p progressPayload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	rec := &entity.ProgressRecord{
		ItemID:                p.ItemID,
		ItemType:              entity.ItemType(p.ItemType),
		Repetitions:           p.Repetitions,
		EaseFactor:            p.EaseFactor,
		IntervalDays:          p.IntervalDays,
		NextReviewDate:        p.NextReviewDate.UTC(),
		TotalAttempts:         p.TotalAttempts,
		CorrectAttempts:       p.CorrectAttempts,
		AverageResponseTimeMs: p.AverageResponseTimeMs,
		LastQuality:           p.LastQuality,
		LastAttemptDate:       p.LastAttemptDate,
		CreatedAt:             p.CreatedAt.UTC(),
	}
	if err := rec.Key().Validate(); err != nil {
		return nil, err
	}
	updatedAt := p.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now.UTC()
	}
	rec.Normalize(updatedAt)
	return rec, nil
}

func computeSchemaHash(tables []*schema.Table) string {
	builder := &strings.Builder{}
	sorted := make([]*schema.Table, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, tbl := range sorted {
		builder.WriteString(tbl.Name)
		builder.WriteString("|cols:")
		for _, col := range tbl.Columns {
			fmt.Fprintf(builder, "%s:%d:%t;", col.Name, col.Type, col.Nullable)
		}
		builder.WriteString("|pk:")
		for _, pk := range tbl.PrimaryKey {
			builder.WriteString(pk.Name)
			builder.WriteByte(',')
		}
		builder.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(builder.String()))
	return fmt.Sprintf("%x", sum[:])
}

func writeRecord(w io.Writer, rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n")); err != nil {
		return err
	}
	return nil
}

// Package report renders progress records as an xlsx workbook.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"github.com/eslsoft/chordnet/internal/entity"
)

const summarySheet = "Summary"

var masteryOrder = []entity.MasteryLevel{
	entity.MasteryNew,
	entity.MasteryLearning,
	entity.MasteryFamiliar,
	entity.MasteryMastered,
}

var itemHeader = []any{
	"Item", "Mastery", "Confidence", "Accuracy", "Attempts", "Correct",
	"Repetitions", "Ease", "Interval (days)", "Next review", "Avg response (ms)", "Last attempt",
}

// Viewer derives the read-side view of a record.
type Viewer interface {
	View(rec entity.ProgressRecord) entity.ProgressView
}

// Writer builds progress workbooks.
type Writer struct {
	viewer Viewer
	clock  func() time.Time
}

// NewWriter returns a report writer.
func NewWriter(viewer Viewer) *Writer {
	return &Writer{viewer: viewer, clock: time.Now}
}

// Write renders records as a workbook: a summary sheet counting items per
// type and mastery level, then one sheet per item type listing every record.
func (w *Writer) Write(out io.Writer, records []entity.ProgressRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	views := lo.Map(records, func(rec entity.ProgressRecord, _ int) entity.ProgressView {
		return w.viewer.View(rec)
	})
	byType := lo.GroupBy(views, func(v entity.ProgressView) entity.ItemType { return v.Record.ItemType })

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	if err := w.writeSummary(f, byType, bold); err != nil {
		return err
	}

	for _, itemType := range entity.ItemTypes {
		rows, ok := byType[itemType]
		if !ok {
			continue
		}
		if err := writeItemSheet(f, string(itemType), rows, bold); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func (w *Writer) writeSummary(f *excelize.File, byType map[entity.ItemType][]entity.ProgressView, bold int) error {
	header := []any{"Item type"}
	for _, level := range masteryOrder {
		header = append(header, string(level))
	}
	header = append(header, "Total", "Due now")
	if err := f.SetSheetRow(summarySheet, "A1", &header); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}

	now := w.clock()
	row := 2
	for _, itemType := range entity.ItemTypes {
		views := byType[itemType]
		counts := make(map[entity.MasteryLevel]int, len(masteryOrder))
		for _, v := range views {
			counts[v.Mastery]++
		}
		line := []any{string(itemType)}
		for _, level := range masteryOrder {
			line = append(line, counts[level])
		}
		due := lo.CountBy(views, func(v entity.ProgressView) bool { return v.Record.IsDue(now) })
		line = append(line, len(views), due)

		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(summarySheet, cell, &line); err != nil {
			return fmt.Errorf("write summary row %s: %w", itemType, err)
		}
		row++
	}

	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(summarySheet, "A1", last, bold); err != nil {
		return fmt.Errorf("style summary header: %w", err)
	}
	return f.SetColWidth(summarySheet, "A", "A", 16)
}

func writeItemSheet(f *excelize.File, sheet string, views []entity.ProgressView, bold int) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	if err := f.SetSheetRow(sheet, "A1", &itemHeader); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	last, _ := excelize.CoordinatesToCellName(len(itemHeader), 1)
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}

	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Record.ItemID < views[j].Record.ItemID
	})
	for i, v := range views {
		rec := v.Record
		lastAttempt := ""
		if rec.LastAttemptDate != nil {
			lastAttempt = rec.LastAttemptDate.UTC().Format(time.RFC3339)
		}
		line := []any{
			rec.ItemID,
			string(v.Mastery),
			string(v.Confidence),
			v.Accuracy,
			rec.TotalAttempts,
			rec.CorrectAttempts,
			rec.Repetitions,
			rec.EaseFactor,
			rec.IntervalDays,
			v.NextReviewDate.UTC().Format(time.RFC3339),
			rec.AverageResponseTimeMs,
			lastAttempt,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &line); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return f.SetColWidth(sheet, "J", "L", 22)
}

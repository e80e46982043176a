/*
Copyright © 2025 Ambor <saltbo@foxmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eslsoft/chordnet/internal/entity"
	"github.com/eslsoft/chordnet/internal/repository"
	"github.com/eslsoft/chordnet/internal/usecase"
)

const _listPageSize = 500

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List items due for review, most overdue first",
	RunE: func(cmd *cobra.Command, args []string) error {
		itemType, err := itemTypeFlag(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		container, cleanup, err := initContainer()
		if err != nil {
			return err
		}
		defer cleanup()

		views, err := container.Progress.ListDue(cmd.Context(), itemType, limit)
		if err != nil {
			return err
		}
		if len(views) == 0 {
			cmd.Println("nothing due")
			return nil
		}
		return printViews(cmd.OutOrStdout(), views, time.Now())
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List progress records with an optional filter",
	Example: `  chordnet list --type word --filter 'repetitions >= 3' --order-by 'ease_factor desc'
  chordnet list --filter 'item_id.startsWith("t")'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		itemType, err := itemTypeFlag(cmd)
		if err != nil {
			return err
		}
		filter, _ := cmd.Flags().GetString("filter")
		orderBy, _ := cmd.Flags().GetString("order-by")
		page, _ := cmd.Flags().GetInt32("page")
		pageSize, _ := cmd.Flags().GetInt32("page-size")

		container, cleanup, err := initContainer()
		if err != nil {
			return err
		}
		defer cleanup()

		query := &repository.ListProgressQuery{
			Pagination:  repository.Pagination{PageNo: page, PageSize: pageSize},
			FilterOrder: repository.FilterOrder{Filter: filter, OrderBy: orderBy},
			ItemType:    itemType,
		}
		views, total, err := container.Progress.ListProgress(cmd.Context(), query)
		if err != nil {
			return err
		}
		if err := printViews(cmd.OutOrStdout(), views, time.Now()); err != nil {
			return err
		}
		cmd.Printf("%d of %d records\n", len(views), total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dueCmd)
	rootCmd.AddCommand(listCmd)

	dueCmd.Flags().String("type", "", "item type: character, two_key_chord or word")
	dueCmd.Flags().Int("limit", 20, "maximum items to list, 0 for all")

	listCmd.Flags().String("type", "", "item type: character, two_key_chord or word")
	listCmd.Flags().String("filter", "", "CEL filter expression")
	listCmd.Flags().String("order-by", "", "order, e.g. 'next_review_date asc'")
	listCmd.Flags().Int32("page", 1, "page number")
	listCmd.Flags().Int32("page-size", 50, "records per page")
}

func itemTypeFlag(cmd *cobra.Command) (entity.ItemType, error) {
	raw, _ := cmd.Flags().GetString("type")
	if raw == "" {
		return entity.ItemTypeUnspecified, nil
	}
	itemType := entity.ParseItemType(raw)
	if itemType == entity.ItemTypeUnspecified {
		return "", fmt.Errorf("%w: %q", entity.ErrInvalidItemType, raw)
	}
	return itemType, nil
}

func printViews(out io.Writer, views []entity.ProgressView, now time.Time) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tITEM\tMASTERY\tCONFIDENCE\tACCURACY\tREPS\tEASE\tNEXT REVIEW")
	for _, v := range views {
		rec := v.Record
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.0f%%\t%d\t%.2f\t%s\n",
			rec.ItemType, rec.ItemID, v.Mastery, v.Confidence,
			v.Accuracy*100, rec.Repetitions, rec.EaseFactor, relativeTime(v.NextReviewDate, now))
	}
	return tw.Flush()
}

func relativeTime(t, now time.Time) string {
	d := t.Sub(now).Round(time.Minute)
	switch {
	case d <= 0 && d > -time.Minute:
		return "now"
	case d < 0:
		return fmt.Sprintf("%s ago", -d)
	default:
		return fmt.Sprintf("in %s", d)
	}
}

// allViews pages through every record of itemType.
func allViews(ctx context.Context, progress usecase.ProgressUsecase, itemType entity.ItemType) ([]entity.ProgressView, error) {
	var out []entity.ProgressView
	for page := int32(1); ; page++ {
		query := &repository.ListProgressQuery{
			Pagination:  repository.Pagination{PageNo: page, PageSize: _listPageSize},
			FilterOrder: repository.FilterOrder{OrderBy: "item_id asc"},
			ItemType:    itemType,
		}
		views, total, err := progress.ListProgress(ctx, query)
		if err != nil {
			return nil, err
		}
		out = append(out, views...)
		if len(views) == 0 || int64(len(out)) >= total {
			return out, nil
		}
	}
}

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
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/eslsoft/chordnet/internal/entity"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise mastery per item type",
	RunE: func(cmd *cobra.Command, args []string) error {
		itemType, err := itemTypeFlag(cmd)
		if err != nil {
			return err
		}

		container, cleanup, err := initContainer()
		if err != nil {
			return err
		}
		defer cleanup()

		views, err := allViews(cmd.Context(), container.Progress, itemType)
		if err != nil {
			return err
		}

		now := time.Now()
		byType := lo.GroupBy(views, func(v entity.ProgressView) entity.ItemType { return v.Record.ItemType })

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TYPE\tNEW\tLEARNING\tFAMILIAR\tMASTERED\tDUE\tACCURACY\tAVG MS")
		for _, t := range entity.ItemTypes {
			if itemType != entity.ItemTypeUnspecified && t != itemType {
				continue
			}
			group := byType[t]
			counts := make(map[entity.MasteryLevel]int, 4)
			for _, v := range group {
				counts[v.Mastery]++
			}
			due := lo.CountBy(group, func(v entity.ProgressView) bool { return v.Record.IsDue(now) })
			total := lo.SumBy(group, func(v entity.ProgressView) int { return v.Record.TotalAttempts })
			correct := lo.SumBy(group, func(v entity.ProgressView) int { return v.Record.CorrectAttempts })
			accuracy := 0.0
			if total > 0 {
				accuracy = float64(correct) / float64(total)
			}
			avg := lo.SumBy(group, func(v entity.ProgressView) float64 {
				return v.Record.AverageResponseTimeMs * float64(v.Record.CorrectAttempts)
			})
			if correct > 0 {
				avg /= float64(correct)
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%.0f%%\t%.0f\n", t,
				counts[entity.MasteryNew], counts[entity.MasteryLearning],
				counts[entity.MasteryFamiliar], counts[entity.MasteryMastered],
				due, accuracy*100, avg)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().String("type", "", "item type: character, two_key_chord or word")
}

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
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eslsoft/chordnet/internal/usecase/backup"
)

const (
	importInputKey     = "backup.import.input"
	importGzipKey      = "backup.import.gzip"
	importItemTypesKey = "backup.import.item_types"
	importKeepNewerKey = "backup.import.keep_newer"
	importDryRunKey    = "backup.import.dry_run"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import progress records from a backup file",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()

		inputPath := viper.GetString(importInputKey)
		gzipEnabled := viper.GetBool(importGzipKey)
		itemTypes := itemTypesFromConfig(importItemTypesKey)

		if inputPath == "" {
			return fmt.Errorf("pass --input with a backup file, or - for stdin")
		}
		if !gzipEnabled && inputPath != "-" && strings.HasSuffix(strings.ToLower(inputPath), ".gz") {
			gzipEnabled = true
		}

		container, cleanup, err := initContainer()
		if err != nil {
			return err
		}
		defer cleanup()

		var (
			reader  = cmd.InOrStdin()
			closers []func() error
		)

		if inputPath != "-" {
			file, openErr := os.Open(filepath.Clean(inputPath))
			if openErr != nil {
				return fmt.Errorf("open backup file: %w", openErr)
			}
			reader = file
			closers = append(closers, file.Close)
		}

		if gzipEnabled {
			gzr, gzErr := gzip.NewReader(reader)
			if gzErr != nil {
				for _, closer := range closers {
					_ = closer()
				}
				return fmt.Errorf("open gzip reader: %w", gzErr)
			}
			reader = gzr
			closers = append([]func() error{gzr.Close}, closers...)
		}

		defer func() {
			for _, closer := range closers {
				if cerr := closer(); cerr != nil && err == nil {
					err = cerr
				}
			}
		}()

		var importOpts []backup.ImportOption
		if len(itemTypes) > 0 {
			importOpts = append(importOpts, backup.WithImportItemTypes(itemTypes))
		}
		if viper.GetBool(importKeepNewerKey) {
			importOpts = append(importOpts, backup.WithKeepNewer())
		}
		dryRun := viper.GetBool(importDryRunKey)
		if dryRun {
			importOpts = append(importOpts, backup.WithDryRun())
		}

		stats, err := container.Backup.Import(ctx, reader, importOpts...)
		if err != nil {
			return fmt.Errorf("import backup: %w", err)
		}

		prefix := "import complete"
		if dryRun {
			prefix = "dry run complete"
		}
		cmd.Printf("%s: read %d, written %d, skipped %d\n", prefix, stats.Read, stats.Written, stats.Skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringP("input", "i", "", "backup file path, - for stdin")
	importCmd.Flags().Bool("gzip", false, "input is gzip compressed")
	importCmd.Flags().StringSlice("item-types", nil, "only import these item types (comma separated or repeated)")
	importCmd.Flags().Bool("keep-newer", false, "skip records whose stored copy was updated later")
	importCmd.Flags().Bool("dry-run", false, "validate the backup without writing")

	bindImportConfig()
}

func bindImportConfig() {
	bindFlagToViper(importInputKey, importCmd.Flags().Lookup("input"))
	bindFlagToViper(importGzipKey, importCmd.Flags().Lookup("gzip"))
	bindFlagToViper(importItemTypesKey, importCmd.Flags().Lookup("item-types"))
	bindFlagToViper(importKeepNewerKey, importCmd.Flags().Lookup("keep-newer"))
	bindFlagToViper(importDryRunKey, importCmd.Flags().Lookup("dry-run"))
}

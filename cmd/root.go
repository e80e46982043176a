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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eslsoft/chordnet/internal/app"
)

const (
	logLevelKey     = "log.level"
	storeBackendKey = "store.backend"
	databaseDSNKey  = "database.dsn"
	catalogFileKey  = "catalog.file"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chordnet",
	Short: "Spaced-repetition trainer for chorded keyboards",
	Long: `chordnet drills characters, two-key power chords and chorded words,
grading every attempt on correctness and speed and scheduling reviews with
a modified SM-2 algorithm.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store", "", "progress store backend: sql, redis or mongo")
	rootCmd.PersistentFlags().String("dsn", "", "database connection string for the sql store")
	rootCmd.PersistentFlags().String("catalog", "", "challenge catalog file (yaml, json or toml)")

	bindFlagToViper(logLevelKey, rootCmd.PersistentFlags().Lookup("log-level"))
	bindFlagToViper(storeBackendKey, rootCmd.PersistentFlags().Lookup("store"))
	bindFlagToViper(databaseDSNKey, rootCmd.PersistentFlags().Lookup("dsn"))
	bindFlagToViper(catalogFileKey, rootCmd.PersistentFlags().Lookup("catalog"))
}

// initContainer builds the application. Callers must run the returned
// cleanup.
func initContainer() (*app.Container, func(), error) {
	container, cleanup, err := app.Initialize()
	if err != nil {
		return nil, nil, fmt.Errorf("initialize: %w", err)
	}
	return container, cleanup, nil
}

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
	"strings"

	"github.com/spf13/cobra"

	"github.com/eslsoft/chordnet/internal/adapter/repository"
	"github.com/eslsoft/chordnet/internal/app"
	"github.com/eslsoft/chordnet/internal/infrastructure/config"
	"github.com/eslsoft/chordnet/internal/infrastructure/database"
)

// dbInitCmd creates or upgrades the progress schema.
var dbInitCmd = &cobra.Command{
	Use:   "db-init",
	Short: "Create or upgrade the progress store schema",
	Long: `Runs the schema migrations of the sql progress store and creates the
indexes of the mongo store. The redis store needs no schema; the command only
checks the connection.
Note: the sqlite3 driver needs a CGO_ENABLED=1 build; use --driver sqlite for
the pure Go driver.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(cfg.Store.Backend)) {
		case app.BackendRedis:
			_, cleanup, err := app.NewRedisClient(cfg)
			if err != nil {
				return err
			}
			cleanup()
			cmd.Println("redis store reachable; nothing to migrate")
			return nil
		case app.BackendMongo:
			client, cleanup, err := app.NewMongoClient(cfg)
			if err != nil {
				return err
			}
			defer cleanup()
			repo := repository.NewMongoProgressRepository(client.Database(cfg.Mongo.Database), cfg.Mongo.Collection)
			if err := repo.EnsureIndexes(cmd.Context()); err != nil {
				return err
			}
			cmd.Printf("indexes ready (%s.%s)\n", cfg.Mongo.Database, cfg.Mongo.Collection)
			return nil
		}

		db, cleanup, err := database.NewDB(cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer cleanup()

		if err := database.Migrate(cmd.Context(), db); err != nil {
			return err
		}
		cmd.Printf("schema ready (%s)\n", db.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbInitCmd)

	dbInitCmd.Flags().String("driver", "", "database driver: sqlite3, sqlite, postgres or pgx")
	bindFlagToViper("database.driver", dbInitCmd.Flags().Lookup("driver"))
}

/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package cmd

import (
	"fmt"
	"maps"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ahsansaeedcdu/NTelligence/internal/seed"
	"github.com/ahsansaeedcdu/NTelligence/internal/utils"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the HR tables and views and load them from CSV exports",
	Long: `Creates the employee, action and performance tables plus the governed join views,
then loads tbl_Employee.csv, tbl_Action.csv and tbl_Perf.csv from --data-dir.`,
	Example: `./ntelligence seed --dialect sqlite --db-path hr.db --data-dir ./data
./ntelligence seed --dialect postgres --host localhost --username user --password pass --database hr --data-dir ./data --drop`,
	RunE: runSeed,
}

var (
	seedDataDir  string
	seedDrop     bool
	seedYes      bool
	seedExtraSQL string
)

func runSeed(cmd *cobra.Command, args []string) error {
	if !seed.Supported(cfg.Database.Dialect) {
		return fmt.Errorf("seeding is not supported for dialect %s", cfg.Database.Dialect)
	}

	var extra []string
	if seedExtraSQL != "" {
		stmts, err := utils.ReadSQLStatementsFromFile(seedExtraSQL)
		if err != nil {
			return err
		}
		extra = stmts
	}

	if seedDrop && !seedYes && !utils.ConfirmAction("drop and recreate the HR tables and views") {
		fmt.Println("Seed cancelled.")
		return nil
	}

	ctx := cmd.Context()
	db, err := setupDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("Starting seed operation", zap.String("dialect", cfg.Database.Dialect), zap.String("data_dir", seedDataDir))
	res, err := seed.Run(ctx, db, cfg.Database.Dialect, db.Handler, seed.Options{
		DataDir: seedDataDir,
		Drop:    seedDrop,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	if len(extra) > 0 {
		if err := db.ExecuteSQLStatements(ctx, extra); err != nil {
			return fmt.Errorf("failed to run %s: %w", seedExtraSQL, err)
		}
		logger.Info("Applied extra SQL", zap.Int("statements", len(extra)))
	}

	for _, table := range slices.Sorted(maps.Keys(res.Loaded)) {
		fmt.Printf("%s: %d rows loaded, %d skipped\n", table, res.Loaded[table], res.Skipped[table])
	}
	return nil
}

func init() {
	seedCmd.Flags().StringVar(&seedDataDir, "data-dir", "data", "Directory holding the CSV exports")
	seedCmd.Flags().BoolVar(&seedDrop, "drop", false, "Drop existing HR tables and views first")
	seedCmd.Flags().BoolVarP(&seedYes, "yes", "y", false, "Do not ask for confirmation before dropping")
	seedCmd.Flags().StringVar(&seedExtraSQL, "extra-sql", "", "File of ';'-separated statements to run after loading, e.g. additional views")
}

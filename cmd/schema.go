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
	"bytes"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ahsansaeedcdu/NTelligence/internal/schema"
	"github.com/ahsansaeedcdu/NTelligence/internal/utils"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect, export or import the governed schema",
}

var schemaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the governed objects as the planner sees them",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		fmt.Print(reg.Describe())
		return nil
	},
}

var schemaExportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Write the governed schema as a YAML schema file",
	Example: `./ntelligence schema export --out_file hr_schema.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		return exportRegistry(reg)
	},
}

var schemaImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Build a schema file from the database catalog",
	Long: `Introspects the connected database and writes a schema file listing its tables
and views. Use --tables to restrict the import, e.g. --tables "join_emp_perf,employee[EmpID,DepID]".`,
	Example: `./ntelligence schema import --dialect postgres --host localhost --username user --password pass --database hr --tables "join_emp_perf,join_emp_action"`,
	RunE:    runSchemaImport,
}

var (
	schemaOutputFile  string
	schemaTables      string
	schemaParallelism int
)

func runSchemaImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	filters, err := utils.ParseTablesFlag(schemaTables)
	if err != nil {
		return fmt.Errorf("invalid --tables: %w", err)
	}

	db, err := setupDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("Starting schema import", zap.String("dialect", cfg.Database.Dialect), zap.Int("filters", len(filters)))
	reg, err := schema.Import(ctx, db, schema.ImportOptions{
		Filters:     filters,
		Parallelism: schemaParallelism,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	logger.Info("Schema import completed", zap.Int("objects", reg.Len()))
	return exportRegistry(reg)
}

func exportRegistry(reg *schema.Registry) error {
	var buf bytes.Buffer
	if err := reg.Export(&buf); err != nil {
		return err
	}
	outputFile := schemaOutputFile
	if outputFile == "" {
		outputFile = utils.GetDefaultOutputFilePath(cfg.Database.DBName, "schema-export")
	}
	if err := utils.WriteOutput(buf.Bytes(), outputFile); err != nil {
		return err
	}
	fmt.Printf("Schema written to: %s\n", outputFile)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{schemaExportCmd, schemaImportCmd} {
		c.Flags().StringVarP(&schemaOutputFile, "out_file", "o", "", "File path to save the schema to (optional, defaults to <database>_schema.yaml)")
	}
	schemaImportCmd.Flags().StringVar(&schemaTables, "tables", "", "Tables and columns to import, e.g. 'table1[col1,col2],table2'")
	schemaImportCmd.Flags().IntVar(&schemaParallelism, "parallel", 4, "Tables introspected concurrently")

	schemaCmd.AddCommand(schemaShowCmd)
	schemaCmd.AddCommand(schemaExportCmd)
	schemaCmd.AddCommand(schemaImportCmd)
}

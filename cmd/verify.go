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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahsansaeedcdu/NTelligence/internal/trust"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a query hash against SQL text and parameters",
	Long: `Recomputes the fingerprint of the SQL text and its parameters. With --hash the
command fails unless the fingerprint matches; without it the fingerprint is printed.`,
	Example: `./ntelligence verify --sql 'SELECT "Department", COUNT(*) AS "n" FROM "join_emp_action" WHERE "ActionID" = ? GROUP BY "Department" LIMIT 100' --params '[1]' --hash 3f1c...`,
	RunE: runVerify,
}

var (
	verifySQL    string
	verifyParams string
	verifyHash   string
)

var errHashMismatch = errors.New("query hash does not match")

func runVerify(cmd *cobra.Command, args []string) error {
	var params []any
	if verifyParams != "" {
		decoded, err := trust.DecodeParams([]byte(verifyParams))
		if err != nil {
			return fmt.Errorf("--params must be a JSON array: %w", err)
		}
		params = decoded
	}

	fingerprint := trust.Fingerprint(verifySQL, params)
	if verifyHash == "" {
		fmt.Println(fingerprint)
		return nil
	}
	if !trust.Verify(verifySQL, params, trust.Record{QueryHash: verifyHash}) {
		return fmt.Errorf("%w: computed %s", errHashMismatch, fingerprint)
	}
	fmt.Println("OK: query hash matches")
	return nil
}

func init() {
	verifyCmd.Flags().StringVar(&verifySQL, "sql", "", "SQL text exactly as recorded - MANDATORY")
	verifyCmd.Flags().StringVar(&verifyParams, "params", "", "Parameters as a JSON array, e.g. '[\"2024-01-01\", 5]'")
	verifyCmd.Flags().StringVar(&verifyHash, "hash", "", "Query hash to check")
	_ = verifyCmd.MarkFlagRequired("sql")
}

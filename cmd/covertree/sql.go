package main

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/viant/covertree/engine"
	"github.com/viant/covertree/knn"
	"github.com/viant/covertree/knnadmin"
)

func (a *app) sqlCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sql <statement>",
		Short: "Runs a SQL statement with the cover_knn and cover_admin modules and cover_* functions registered.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.DB == "" {
				return fmt.Errorf("--db is required")
			}
			db, err := engine.Open(a.cfg.DB)
			if err != nil {
				return err
			}
			defer db.Close()
			if err = engine.RegisterCoverFunctions(db); err != nil {
				return err
			}
			if err = knn.Register(db); err != nil {
				return err
			}
			if err = knnadmin.Register(db); err != nil {
				return err
			}
			if !returnsRows(args[0]) {
				result, err := db.ExecContext(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				affected, _ := result.RowsAffected()
				a.log.Debug().Int64("affected", affected).Msg("statement executed")
				return nil
			}
			rows, err := db.QueryContext(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer rows.Close()
			n, err := printRows(cmd, rows)
			if err != nil {
				return err
			}
			a.log.Debug().Int("rows", n).Msg("statement executed")
			return nil
		},
	}
}

func returnsRows(statement string) bool {
	fields := strings.Fields(statement)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "PRAGMA", "VALUES", "EXPLAIN":
		return true
	}
	return false
}

// printRows writes a tab-separated header and every row; NULL prints as an empty field.
func printRows(cmd *cobra.Command, rows *sql.Rows) (int, error) {
	columns, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	out := cmd.OutOrStdout()
	if len(columns) > 0 {
		fmt.Fprintln(out, strings.Join(columns, "\t"))
	}
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	fields := make([]string, len(columns))
	n := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return n, err
		}
		for i, v := range values {
			switch actual := v.(type) {
			case nil:
				fields[i] = ""
			case []byte:
				fields[i] = fmt.Sprintf("x'%x'", actual)
			default:
				fields[i] = fmt.Sprint(actual)
			}
		}
		fmt.Fprintln(out, strings.Join(fields, "\t"))
		n++
	}
	return n, rows.Err()
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/JonMunkholm/shortages/internal/core"
	"github.com/JonMunkholm/shortages/internal/store"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// tableCount is one line of the verify output.
type tableCount struct {
	Table     string `json:"table"`
	Rows      int64  `json:"rows"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// rowCounter is the part of the store verify needs.
type rowCounter interface {
	CountRows(ctx context.Context, table string) (int64, error)
}

func newVerifyCommand(root *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Count the rows of every destination table",
		Long: `Verify prints the current row count of each destination table without
loading anything. It exits 1 when a table cannot be counted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root, false)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pg, err := store.Open(ctx, storeConfig(cfg))
			if err != nil {
				return err
			}
			defer pg.Close()

			if err := pg.Ping(ctx); err != nil {
				return err
			}

			counts := countTables(ctx, pg, core.Keys())
			if err := renderCounts(cmd.OutOrStdout(), counts, format); err != nil {
				return err
			}
			for _, c := range counts {
				if c.Error != "" {
					return &exitCodeError{code: 1}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "o", "table", "output format: table, json")
	return cmd
}

func countTables(ctx context.Context, st rowCounter, tables []string) []tableCount {
	counts := make([]tableCount, 0, len(tables))
	for _, table := range tables {
		n, err := st.CountRows(ctx, table)
		c := tableCount{Table: table, Rows: n}
		if err != nil {
			c.ErrorCode = core.MapError(err).Code
			c.Error = err.Error()
		}
		counts = append(counts, c)
	}
	return counts
}

func renderCounts(w io.Writer, counts []tableCount, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	case "", "table":
		table := tablewriter.NewTable(w)
		table.Header("Table", "Rows", "Error")
		for _, c := range counts {
			rows := strconv.FormatInt(c.Rows, 10)
			if c.Error != "" {
				rows = "-"
			}
			if err := table.Append(c.Table, rows, c.ErrorCode); err != nil {
				return err
			}
		}
		return table.Render()
	default:
		return fmt.Errorf("unknown output format %q: want table or json", format)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailtriage/internal/db"
	"github.com/daviddao/mailtriage/internal/display"
	"github.com/daviddao/mailtriage/internal/types"
)

var (
	auditLimit    int
	auditRun      string
	auditStatus   string
	auditCategory string
	auditStats    bool
	auditDB       string
)

type auditStatsOutput struct {
	Status   map[string]int `json:"status"`
	Category map[string]int `json:"category"`
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recent triage decisions from the audit database",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.AuditDB
		if cmd.Flags().Changed("audit-db") {
			path = auditDB
		}
		if path == "" {
			return fmt.Errorf("no audit database configured (set audit_db or pass --audit-db)")
		}
		store, err := db.Open(path)
		if err != nil {
			return fmt.Errorf("open audit database: %w", err)
		}
		defer store.Close()

		ctx := cmd.Context()
		w := cmd.OutOrStdout()

		if auditStats {
			status, err := store.CountByStatus(ctx)
			if err != nil {
				return fmt.Errorf("status counts: %w", err)
			}
			category, err := store.CountByCategory(ctx)
			if err != nil {
				return fmt.Errorf("category counts: %w", err)
			}
			if jsonOutput {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(auditStatsOutput{Status: status, Category: category})
			}

			display.Header(w, "Audit Statistics")
			fmt.Fprintln(w)
			fmt.Fprintln(w, "  Status")
			for _, k := range sortedKeys(status) {
				fmt.Fprintf(w, "    %-12s %4d\n", k, status[k])
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "  Category")
			for _, c := range types.Categories {
				if n := category[string(c)]; n > 0 {
					fmt.Fprintf(w, "    %-12s %4d\n", c, n)
				}
			}
			return nil
		}

		records, err := store.ListRecords(ctx, db.ListFilter{
			RunID:    auditRun,
			Status:   auditStatus,
			Category: auditCategory,
			Limit:    auditLimit,
		})
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(records)
		}

		if len(records) == 0 {
			if !quietFlag {
				fmt.Fprintln(w, "No audit records.")
			}
			return nil
		}
		for _, rec := range records {
			ago := display.Dim.Render(fmt.Sprintf("%-8s", display.TimeAgo(rec.Timestamp)))
			subject := display.Truncate(rec.Subject, 48)
			if rec.Decision == nil {
				fmt.Fprintf(w, "%s %s %-48s %s\n", ago, display.ErrStyle.Render("FAILED"),
					subject, display.Dim.Render(display.Truncate(rec.Error, 60)))
				continue
			}
			d := rec.Decision
			fmt.Fprintf(w, "%s %s %-48s %-10s %s\n", ago, display.PriorityLabel(d.Priority),
				subject, d.Category, display.Dim.Render(string(d.Action)))
		}
		return nil
	},
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Number of records to show")
	auditCmd.Flags().StringVar(&auditRun, "run", "", "Only records from this run ID")
	auditCmd.Flags().StringVar(&auditStatus, "status", "", "Filter by status: ok, failed")
	auditCmd.Flags().StringVar(&auditCategory, "category", "", "Filter by category")
	auditCmd.Flags().BoolVar(&auditStats, "stats", false, "Show counts by status and category")
	auditCmd.Flags().StringVar(&auditDB, "audit-db", "", "SQLite audit database (default from config)")
	rootCmd.AddCommand(auditCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/getpup/migration-orchestrator"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05 -0700 MST"

func registerTableFlag(command *cobra.Command) {
	command.Flags().Bool("table", false, "Whether to display output in a table or not.")
}

func printJSON(w io.Writer, data interface{}) error {
	encoded, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(encoded))
	return err
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(header)
	return table
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(timeLayout)
}

func printFleetReport(w io.Writer, report orchestrator.FleetReport) {
	table := newTable(w, "TENANT", "NAME", "STATUS", "APPLIED", "ERROR")
	for _, row := range report.Tenants {
		table.Append([]string{
			string(row.TenantID),
			row.TenantName,
			string(row.Status),
			strings.Join(row.Applied, ", "),
			row.ErrorMessage,
		})
	}
	table.Render()
}

func printApplyResult(w io.Writer, result orchestrator.ApplyResult) {
	table := newTable(w, "MODULE", "APPLIED", "ERROR")
	for _, m := range result.Modules {
		table.Append([]string{m.Module, strings.Join(m.Applied, ", "), m.Error})
	}
	table.Render()
}

func printHistory(w io.Writer, records []orchestrator.HistoryRecord) {
	table := newTable(w, "APPLIED AT", "MODULE", "MIGRATION", "OPERATION", "OUTCOME", "DURATION MS", "ERROR")
	for _, r := range records {
		table.Append([]string{
			formatTime(&r.AppliedAt),
			r.ModuleName,
			r.MigrationName,
			string(r.Operation),
			string(r.Outcome),
			fmt.Sprintf("%d", r.DurationMs),
			r.ErrorMessage,
		})
	}
	table.Render()
}

func printPending(w io.Writer, statuses []orchestrator.TenantMigrationStatus) {
	table := newTable(w, "TENANT", "NAME", "MODULE", "PENDING", "ERROR")
	for _, s := range statuses {
		if s.Error != "" || len(s.Pending) == 0 {
			table.Append([]string{string(s.TenantID), s.TenantName, "", "", s.Error})
			continue
		}
		for _, m := range s.Pending {
			table.Append([]string{string(s.TenantID), s.TenantName, m.Module, strings.Join(m.Migrations, ", "), ""})
		}
	}
	table.Render()
}

func printSchedules(w io.Writer, schedules []orchestrator.ScheduledMigration) {
	table := newTable(w, "ID", "TENANT", "SCHEDULED AT", "MODULE", "MIGRATION", "STATUS", "CREATED BY")
	for _, m := range schedules {
		table.Append([]string{
			m.ScheduleID,
			string(m.TenantID),
			formatTime(&m.ScheduledTime),
			m.Module.String(),
			m.Migration.String(),
			string(m.Status),
			m.CreatedBy,
		})
	}
	table.Render()
}

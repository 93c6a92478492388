package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teamportal/internal/engine"
)

func syncStatusCmd() *cobra.Command {
	var in engine.SyncStatusInput
	cmd := &cobra.Command{
		Use:   "sync-status",
		Short: "Roll a task's status change up to its ancestors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SyncTaskStatus(ctx, in)
				if err != nil {
					return err
				}
				if res.Message != "" {
					fmt.Println(res.Message)
					return nil
				}
				if viper.GetBool("json") {
					return printJSON(res.Levels)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Task", "From", "To", "Updated"})
				for _, l := range res.Levels {
					tw.AppendRow(table.Row{l.TaskID, l.OldStatus, l.NewStatus, l.Updated})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.TaskID, "task-id", "", "task whose status changed")
	cmd.Flags().StringVar(&in.OldStatus, "old", "", "previous status")
	cmd.Flags().StringVar(&in.NewStatus, "new", "", "new status")
	return cmd
}

func processOverdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process-overdue",
		Short: "Notify, escalate and reprioritize overdue tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ProcessOverdueTasks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.Message != "" {
					fmt.Println(res.Message)
					return nil
				}
				fmt.Printf("overdue: %d  notifications: %d  priorities raised: %d\n",
					res.OverdueTasksFound, res.NotificationsCreated, res.PrioritiesUpdated)
				for _, u := range res.PriorityUpdates {
					if !u.Success {
						fmt.Printf("  %s: %s\n", u.TaskID, u.Error)
					}
				}
				return nil
			})
		},
	}
}

func analyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show task metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CalculateAnalytics(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				summary := table.NewWriter()
				summary.SetOutputMirror(os.Stdout)
				summary.AppendRows([]table.Row{
					{"Total", a.Total},
					{"Completion rate", fmt.Sprintf("%.2f%%", a.CompletionRate)},
					{"Overdue", a.OverdueCount},
					{"Avg. completion (days)", strconv.FormatFloat(a.AverageCompletionTimeDays, 'f', 2, 64)},
					{"Calculated at", a.CalculatedAt},
				})
				for k, v := range a.ByStatus {
					summary.AppendRow(table.Row{"Status " + k, v})
				}
				for k, v := range a.ByPriority {
					summary.AppendRow(table.Row{"Priority " + k, v})
				}
				summary.SortBy([]table.SortBy{{Number: 1}})
				summary.Render()

				team := table.NewWriter()
				team.SetOutputMirror(os.Stdout)
				team.AppendHeader(table.Row{"User", "Name", "Tasks", "Completed", "Rate"})
				for _, m := range a.TeamPerformance {
					team.AppendRow(table.Row{m.UserID, m.UserName, m.TotalTasks, m.CompletedTasks, fmt.Sprintf("%.2f%%", m.CompletionRate)})
				}
				team.Render()
				return nil
			})
		},
	}
}

func bulkCmd() *cobra.Command {
	var op, status, assignee, priority string
	var ids []string
	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Apply one change to many tasks (superadmin only)",
		Long:  "Operations: update_status (--status), assign (--assignee), change_priority (--priority), delete.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.BulkOperation(ctx, engine.BulkInput{
					Operation:    op,
					TaskIDs:      ids,
					Status:       optionalString(status),
					AssignedToID: optionalString(assignee),
					Priority:     optionalString(priority),
					UserID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrValue(map[string]any{
					"operation":              res.Operation,
					"task_ids_count":         res.TaskIDsCount,
					res.Operation.ResultKey(): res.Affected,
				})
			})
		},
	}
	cmd.Flags().StringVar(&op, "operation", "", "update_status, assign, change_priority or delete")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "task ids (comma separated or repeated)")
	cmd.Flags().StringVar(&status, "status", "", "new status for update_status")
	cmd.Flags().StringVar(&assignee, "assignee", "", "profile id for assign")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority for change_priority")
	return cmd
}

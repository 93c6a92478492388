package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"teamportal/internal/app"
	"teamportal/internal/config"
	"teamportal/internal/engine"
	"teamportal/internal/migrate"
	"teamportal/internal/scheduler"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				v, err := migrate.Version(a.DB)
				if err != nil {
					return err
				}
				return printJSONOrValue(map[string]any{"schema_version": v})
			})
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert demo profiles and tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				sum, err := app.Seed(ctx, e.Repo, time.Now())
				if err != nil {
					return err
				}
				return printJSONOrValue(sum)
			})
		},
	}
}

func notificationsCmd() *cobra.Command {
	var userID string
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListNotifications(ctx, userID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Created", "User", "Type", "Message"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.CreatedAt, n.UserID, n.Type, n.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "recipient filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Audit log of job mutations"}
	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evts, err := e.Events.Tail(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, ev := range evts {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + ":" + ev.EntityID, ev.ActorID, ev.PayloadJSON})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	log.AddCommand(tail)
	return log
}

func jobsCmd() *cobra.Command {
	jobs := &cobra.Command{Use: "jobs", Short: "Scheduled jobs"}
	jobs.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs and their next run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := newScheduler(ctx, a)
				if err != nil {
					return err
				}
				return printJSONOrValue(s.Entries())
			})
		},
	})
	jobs.AddCommand(&cobra.Command{
		Use:   "run <name>",
		Short: "Run one scheduled job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				s, err := newScheduler(ctx, a)
				if err != nil {
					return err
				}
				return s.Run(args[0])
			})
		},
	})
	return jobs
}

func snapshotsCmd() *cobra.Command {
	snaps := &cobra.Command{Use: "snapshots", Short: "Stored analytics snapshots"}
	snaps.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List snapshot paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				store, err := snapshotStore(ctx)
				if err != nil {
					return err
				}
				paths, err := store.List(ctx, a.Config.Analytics.Snapshots.Prefix)
				if err != nil {
					return err
				}
				return printJSONOrValue(paths)
			})
		},
	})
	snaps.AddCommand(&cobra.Command{
		Use:   "show <path>",
		Short: "Print one snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapshotStore(cmd.Context())
			if err != nil {
				return err
			}
			data, err := store.Read(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	})
	snaps.AddCommand(&cobra.Command{
		Use:   "take",
		Short: "Calculate analytics and store a snapshot now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				store, err := snapshotStore(ctx)
				if err != nil {
					return err
				}
				res, err := a.Engine.CalculateAnalytics(ctx)
				if err != nil {
					return err
				}
				p, err := scheduler.SaveSnapshot(ctx, store, a.Config.Analytics.Snapshots.Prefix, res)
				if err != nil {
					return err
				}
				fmt.Println(p)
				return nil
			})
		},
	})
	return snaps
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Policy file"}
	var org string
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default teamportal.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(org)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	initCmd.Flags().StringVar(&org, "org", "default", "organization name")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the policy file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetString("config"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfgCmd
}

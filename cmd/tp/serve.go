package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"teamportal/internal/app"
	"teamportal/internal/scheduler"
	"teamportal/internal/server"
)

func serveCmd() *cobra.Command {
	var noSchedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the task functions over HTTP and run scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				log := a.Engine.Logger()
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					BasePath: viper.GetString("base-path"),
					Auth:     server.AuthConfig{JWTSecret: viper.GetString("jwt-secret")},
					Logger:   log.Named("http"),
				})
				if err != nil {
					return err
				}
				if viper.GetString("jwt-secret") == "" {
					log.Warn("no jwt secret configured; functions are open to any caller")
				}

				if !noSchedule {
					sched, err := newScheduler(ctx, a)
					if err != nil {
						return err
					}
					sched.Start()
					defer sched.Stop()
					for _, e := range sched.Entries() {
						log.Info("job scheduled", zap.String("job", e.Name), zap.String("spec", e.Spec), zap.Time("next", e.Next))
					}
				}

				addr := viper.GetString("addr")
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				log.Info("serving task functions", zap.String("addr", addr), zap.String("base_path", viper.GetString("base-path")))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().String("base-path", server.DefaultBasePath, "API base path")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for invoker tokens; empty disables auth")
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "do not run scheduled jobs")
	for _, name := range []string{"addr", "base-path", "jwt-secret"} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return cmd
}

// newScheduler registers the periodic jobs from the policy file. Snapshot
// storage is opened only when snapshots are enabled.
func newScheduler(ctx context.Context, a *app.App) (*scheduler.Scheduler, error) {
	cfg := a.Config
	s := scheduler.New(cfg.Location(), cfg.Schedule.JobTimeout.Duration, a.Engine.Logger().Named("scheduler"))
	jobs := scheduler.Jobs{Engine: a.Engine, SnapshotPrefix: cfg.Analytics.Snapshots.Prefix}
	if cfg.Analytics.Snapshots.Enabled {
		store, err := snapshotStore(ctx)
		if err != nil {
			return nil, err
		}
		jobs.Snapshots = store
	}
	if err := scheduler.Register(s, cfg, jobs); err != nil {
		return nil, err
	}
	return s, nil
}

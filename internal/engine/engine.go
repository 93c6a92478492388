package engine

import (
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"teamportal/internal/config"
	"teamportal/internal/engine/auth"
	"teamportal/internal/events"
	"teamportal/internal/notify"
	"teamportal/internal/repo"
)

// Engine runs the task jobs against one store. It holds no mutable state
// and is safe to share between goroutines.
type Engine struct {
	DB       *sqlx.DB
	Repo     repo.Repo
	Events   events.Writer
	Auth     auth.Service
	Config   *config.Config
	Messages *notify.Messages
	Log      *zap.Logger
	Now      func() time.Time
}

func New(db *sqlx.DB, cfg *config.Config, log *zap.Logger) (Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	msgs, err := notify.New(cfg.Organization.Language)
	if err != nil {
		return Engine{}, err
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:       db,
		Repo:     r,
		Events:   events.Writer{DB: db},
		Auth:     auth.New(r),
		Config:   cfg,
		Messages: msgs,
		Log:      log,
		Now:      time.Now,
	}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// today is the current calendar date in the organization's time zone.
func (e Engine) today() time.Time {
	local := e.now().In(e.Config.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// audit is the event writer stamped with the engine's clock.
func (e Engine) audit() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

// Logger never returns nil.
func (e Engine) Logger() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs named jobs on cron specs in one time zone. Each run gets
// its own context bounded by the job timeout; a run still in progress
// causes the next tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	loc     *time.Location
	timeout time.Duration

	mu    sync.Mutex
	names map[cron.EntryID]string
}

type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

func New(loc *time.Location, timeout time.Duration, log *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     log,
		loc:     loc,
		timeout: timeout,
		names:   map[cron.EntryID]string{},
	}
}

// Schedule registers job under name. spec uses the standard five-field
// syntax or a descriptor such as @hourly.
func (s *Scheduler) Schedule(name, spec string, job func(ctx context.Context) error) (cron.EntryID, error) {
	id, err := s.cron.AddJob(spec, namedJob{name: name, spec: spec, run: job, s: s})
	if err != nil {
		return 0, fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.mu.Lock()
	s.names[id] = name
	s.mu.Unlock()
	return id, nil
}

// Run executes the job registered as name once, outside the cron loop.
func (s *Scheduler) Run(name string) error {
	for _, e := range s.cron.Entries() {
		if j, ok := e.Job.(namedJob); ok && j.name == name {
			return s.execute(j.name, j.run)
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

func (s *Scheduler) execute(name string, job func(ctx context.Context) error) error {
	ctx := context.Background()
	var cancel context.CancelFunc
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	err := job(ctx)
	fields := []zap.Field{zap.String("job", name), zap.Duration("duration", time.Since(start))}
	if err != nil {
		s.log.Error("scheduled job failed", append(fields, zap.Error(err))...)
		return err
	}
	s.log.Info("scheduled job finished", fields...)
	return nil
}

// Entries lists registered jobs. Before Start the next run is computed
// from the spec.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []Entry
	for _, e := range s.cron.Entries() {
		entry := Entry{Name: s.names[e.ID], Next: e.Next}
		if entry.Next.IsZero() && e.Schedule != nil {
			entry.Next = e.Schedule.Next(time.Now().In(s.loc))
		}
		if j, ok := e.Job.(namedJob); ok {
			entry.Spec = j.spec
		}
		res = append(res, entry)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

type namedJob struct {
	name string
	spec string
	run  func(ctx context.Context) error
	s    *Scheduler
}

func (j namedJob) Run() {
	_ = j.s.execute(j.name, j.run)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}

package badges

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// runTimeout bounds one scheduled run.
const runTimeout = 10 * time.Minute

// Scheduler runs the engine on a cron schedule. A tick that fires while the
// previous run is still going is skipped.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine
	logger *zap.Logger
}

func NewScheduler(engine *Engine, schedule string, logger *zap.Logger) (*Scheduler, error) {
	cl := cronLogger{logger.Sugar().Named("cron")}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	s := &Scheduler{cron: c, engine: engine, logger: logger}
	if _, err := c.AddFunc(schedule, s.tick); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	// Run logs its own failures.
	_, _ = s.engine.Run(ctx)
}

func (s *Scheduler) Start() {
	s.logger.Info("badge scheduler started")
	s.cron.Start()
}

// Stop halts the schedule and waits for a running calculation to finish or
// for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("badge scheduler stopped before the running calculation finished")
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	*zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, append(keysAndValues, "error", err)...)
}

package treesync

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler fires recurring all-site syncs on a cron expression.
type Scheduler struct {
	spec   string
	run    func()
	logger *zap.Logger
	cron   *cron.Cron
}

// NewScheduler builds a scheduler; run fires once per tick. Standard
// five-field cron expressions and @every descriptors are accepted.
func NewScheduler(spec string, run func(), logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{spec: spec, run: run, logger: logger}
}

// Start begins scheduling. An invalid expression fails here, before
// anything is queued.
func (s *Scheduler) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.spec, s.run); err != nil {
		return fmt.Errorf("parse schedule %q: %w", s.spec, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("scheduler started", zap.String("schedule", s.spec))
	return nil
}

// Stop halts scheduling and waits for an in-flight tick to return.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info("scheduler stopped")
}

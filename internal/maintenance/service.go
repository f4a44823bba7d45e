// Package maintenance schedules periodic store upkeep.
package maintenance

import (
	"context"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mimicbot/mimic/pkg/logger"
)

// Target is anything that accepts an upkeep pass.
type Target interface {
	Optimize(ctx context.Context) error
}

const runTimeout = 5 * time.Minute

type Service struct {
	schedule string
	log      *logger.Logger

	mu      sync.Mutex
	targets map[string]Target
	cron    *rcron.Cron
}

// NewService creates a maintenance scheduler. schedule uses the six-field
// cron syntax (with seconds).
func NewService(schedule string, log *logger.Logger) *Service {
	return &Service{
		schedule: schedule,
		log:      log,
		targets:  make(map[string]Target),
	}
}

// Register adds a named upkeep target. Call before Start.
func (s *Service) Register(name string, t Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets[name] = t
}

func (s *Service) Start(ctx context.Context) error {
	s.cron = rcron.New(rcron.WithSeconds())

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.runAll(ctx)
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("maintenance scheduled", zap.String("schedule", s.schedule))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Service) runAll(ctx context.Context) {
	s.mu.Lock()
	targets := make(map[string]Target, len(s.targets))
	for name, t := range s.targets {
		targets[name] = t
	}
	s.mu.Unlock()

	for name, t := range targets {
		runCtx, cancel := context.WithTimeout(ctx, runTimeout)
		if err := t.Optimize(runCtx); err != nil {
			s.log.Warn("upkeep failed", zap.String("target", name), zap.Error(err))
		} else {
			s.log.Info("upkeep complete", zap.String("target", name))
		}
		cancel()
	}
}

func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

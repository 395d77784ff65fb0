// Package main provides the background sweep service: auto-approval of
// condition-satisfied steps and timeout handling for overdue ones.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/approvio/approvio/pkg/workflow"
	"github.com/robfig/cron/v3"
)

// Sweeper schedules the auto-approval and timeout sweeps on a shared cron.
type Sweeper struct {
	id           string
	schedule     string
	autoApprover *workflow.AutoApprover
	timeouts     *workflow.TimeoutSweeper
	logger       *slog.Logger
	cron         *cron.Cron
}

func NewSweeper(
	id string,
	schedule string,
	autoApprover *workflow.AutoApprover,
	timeouts *workflow.TimeoutSweeper,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		id:           id,
		schedule:     schedule,
		autoApprover: autoApprover,
		timeouts:     timeouts,
		logger:       logger.With("module", "sweeper"),
	}
}

// Start runs both sweeps on the configured schedule until the context is
// cancelled or a termination signal arrives.
func (s *Sweeper) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.handleSignals(cancel)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := s.cron.AddFunc(s.schedule, func() { s.sweep(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweeps: %w", err)
	}

	s.logger.Info("Starting sweeper", "schedule", s.schedule)
	s.cron.Start()

	<-ctx.Done()
	s.logger.Info("Sweeper context cancelled, stopping...")

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()

	return nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	if err := s.autoApprover.Sweep(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Auto-approval sweep failed", "error", err)
	}

	if err := s.timeouts.Sweep(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Timeout sweep failed", "error", err)
	}
}

// handleSignals sets up signal handling for graceful shutdown.
func (s *Sweeper) handleSignals(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		s.logger.Info("Received signal", "signal", sig)
		cancel()
	}()
}
